package api

import (
	"net/http"

	"pairsbot/internal/api/handlers"
	"pairsbot/internal/api/middleware"
	"pairsbot/internal/bot"
	"pairsbot/internal/repository"
	"pairsbot/internal/websocket"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Dependencies содержит все зависимости для API handlers
type Dependencies struct {
	Log     *zap.Logger
	Engine  *bot.Engine
	Hub     *websocket.Hub
	Pairs   *repository.PairRepository
	Spreads *repository.SpreadRepository
	Signals *repository.SignalRepository

	// bcrypt hash пароля панели; пусто = auth выключен
	PanelPassHash string
}

// SetupRoutes настраивает все HTTP маршруты приложения
//
// Структура маршрутов:
//
// /api/v1/  (PanelAuth если настроен пароль)
//
//	├── /pairs
//	│   ├── GET /          - список пар с runtime состоянием
//	│   ├── POST /         - регистрация новой пары
//	│   ├── GET /{id}      - снимок пары (состояние, позиция, ордера)
//	│   └── DELETE /{id}   - удаление пары
//	├── /spreads
//	│   ├── GET /          - последние сэмплы спреда
//	│   └── GET /range     - сэмплы за интервал
//	├── /signals
//	│   └── GET /          - журнал сигналов
//	├── /risk
//	│   └── GET /          - снимок рисковых агрегатов
//	└── /control
//	    ├── POST /mode     - auto-execute / alert-only
//	    ├── POST /breaker  - circuit breaker
//	    └── POST /flatten  - принудительное закрытие
//
// /ws/stream - WebSocket для real-time обновлений
// /metrics   - Prometheus
// /health    - liveness probe
//
// Middleware: Recovery -> Logging -> CORS глобально, PanelAuth только на /api/v1
func SetupRoutes(deps *Dependencies) *mux.Router {
	router := mux.NewRouter()

	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}

	router.Use(middleware.Recovery(log))
	router.Use(middleware.Logging(log))
	router.Use(middleware.CORS)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.PanelAuth(deps.PanelPassHash))

	if deps.Engine != nil {
		pairHandler := handlers.NewPairHandler(deps.Engine, deps.Pairs)
		api.HandleFunc("/pairs", pairHandler.GetPairs).Methods("GET")
		api.HandleFunc("/pairs/{id}", pairHandler.GetPair).Methods("GET")
		api.HandleFunc("/pairs/{id}/snapshot", pairHandler.GetPair).Methods("GET")
		if deps.Pairs != nil {
			api.HandleFunc("/pairs", pairHandler.CreatePair).Methods("POST")
			api.HandleFunc("/pairs/{id}", pairHandler.DeletePair).Methods("DELETE")
		}

		controlHandler := handlers.NewControlHandler(deps.Engine, deps.Hub)
		api.HandleFunc("/risk", controlHandler.GetRisk).Methods("GET")
		api.HandleFunc("/control/mode", controlHandler.SetMode).Methods("POST")
		api.HandleFunc("/control/breaker", controlHandler.SetBreaker).Methods("POST")
		api.HandleFunc("/control/flatten", controlHandler.Flatten).Methods("POST")
	}

	if deps.Spreads != nil {
		spreadHandler := handlers.NewSpreadHandler(deps.Spreads)
		api.HandleFunc("/spreads", spreadHandler.GetRecent).Methods("GET")
		api.HandleFunc("/spreads/range", spreadHandler.GetRange).Methods("GET")
	}

	if deps.Signals != nil {
		signalHandler := handlers.NewSignalHandler(deps.Signals)
		api.HandleFunc("/signals", signalHandler.GetRecent).Methods("GET")
	}

	if deps.Hub != nil {
		router.HandleFunc("/ws/stream", func(w http.ResponseWriter, r *http.Request) {
			websocket.ServeWS(deps.Hub, w, r)
		})
	}

	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	return router
}
