package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pairsbot/internal/api"
	"pairsbot/internal/bot"
	"pairsbot/internal/config"
	"pairsbot/internal/connector"
	"pairsbot/internal/models"
	"pairsbot/internal/repository"
	"pairsbot/internal/websocket"
	"pairsbot/pkg/utils"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := utils.InitLogger(utils.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	defer logger.Sync()

	db, err := initDatabase(cfg)
	if err != nil {
		logger.Fatal("database connection failed",
			zap.String("dsn", cfg.Database.DSNWithoutPassword()), zap.Error(err))
	}
	defer db.Close()

	if err := repository.EnsureSchema(db); err != nil {
		logger.Fatal("schema migration failed", zap.Error(err))
	}
	logger.Info("connected to state store", zap.String("dsn", cfg.Database.DSNWithoutPassword()))

	pairRepo := repository.NewPairRepository(db)
	spreadRepo := repository.NewSpreadRepository(db)
	signalRepo := repository.NewSignalRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	positionRepo := repository.NewPositionRepository(db)

	pairPtrs, err := pairRepo.GetAll()
	if err != nil {
		logger.Fatal("failed to load pairs", zap.Error(err))
	}
	pairs := make([]models.PairConfig, 0, len(pairPtrs))
	for _, p := range pairPtrs {
		pairs = append(pairs, *p)
	}
	logger.Info("pairs loaded", zap.Int("count", len(pairs)))

	// WebSocket hub панели
	hub := websocket.NewHub(logger.Logger)
	go hub.Run()

	// Фид: внешний Normalizer или внутрипроцессный paper-коннектор.
	// Исполнение всегда через paper-коннектор: реальные venue-коннекторы
	// живут в Normalizer'е, ядро говорит с ним нормализованным протоколом.
	paper := connector.NewPaperConnector(connector.DefaultPaperConfig(), pairs, logger.Logger)
	defer paper.Close()

	var feed connector.Feed = paper
	if cfg.Feed.URL != "" {
		wsFeed, err := connector.NewWSFeed(connector.FeedConfig{
			URL:         cfg.Feed.URL,
			FundingURL:  cfg.Feed.FundingURL,
			FundingPoll: cfg.Feed.FundingPoll,
			Token:       cfg.Feed.Token,
			WS:          connector.DefaultWSConfig(),
		}, logger.Logger)
		if err != nil {
			logger.Fatal("feed connection failed", zap.String("url", cfg.Feed.URL), zap.Error(err))
		}
		defer wsFeed.Close()
		feed = wsFeed
	}

	// Nonce-счётчики продолжаются с последнего известного значения
	nonces := bot.NewNonceAllocator(logger.Logger)
	for _, account := range accounts(pairs) {
		next := uint64(0)
		if max, ok, err := orderRepo.MaxNonce(account); err != nil {
			logger.Fatal("failed to restore nonce", zap.String("account", account), zap.Error(err))
		} else if ok {
			next = max + 1
		}
		nonces.InitAccount(account, next)
		logger.Info("nonce restored", zap.String("account", account), zap.Uint64("next", next))
	}

	risk := bot.NewRiskManager(cfg.Trading, logger.Logger)

	pub := &statePublisher{
		spreads:   spreadRepo,
		signals:   signalRepo,
		orders:    orderRepo,
		positions: positionRepo,
		hub:       hub,
		log:       logger.Logger,
	}

	exec := bot.NewExecutionEngine(cfg.Trading, paper, nonces, risk, logger.Logger,
		pub.PublishNotification)
	for _, venue := range venues(pairs) {
		exec.SetVenueLimit(venue, 10, 20)
	}

	// Жизненным циклом exec владеет Engine.Run (Start/Stop внутри)
	engine := bot.NewEngine(cfg, pairs, feed, paper, risk, exec, pub, logger.Logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := engine.Run(ctx); err != nil {
			logger.Error("engine stopped", zap.Error(err))
		}
	}()

	router := api.SetupRoutes(&api.Dependencies{
		Log:           logger.Logger,
		Engine:        engine,
		Hub:           hub,
		Pairs:         pairRepo,
		Spreads:       spreadRepo,
		Signals:       signalRepo,
		PanelPassHash: cfg.Security.PanelPassHash,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("forced shutdown", zap.Error(err))
	}

	logger.Info("server exited")
}

// accounts возвращает уникальные подписывающие аккаунты пар
func accounts(pairs []models.PairConfig) []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range pairs {
		if p.Account != "" && !seen[p.Account] {
			seen[p.Account] = true
			out = append(out, p.Account)
		}
	}
	return out
}

// venues возвращает уникальные площадки обеих ног всех пар
func venues(pairs []models.PairConfig) []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range pairs {
		for _, v := range []string{p.LegA.Venue, p.LegB.Venue} {
			if v != "" && !seen[v] {
				seen[v] = true
				out = append(out, v)
			}
		}
	}
	return out
}

// statePublisher разводит поток ядра в State Store и WebSocket hub.
// Ошибки записи логируются, но не останавливают торговый цикл:
// история вторична, позиция первична.
type statePublisher struct {
	spreads   *repository.SpreadRepository
	signals   *repository.SignalRepository
	orders    *repository.OrderRepository
	positions *repository.PositionRepository
	hub       *websocket.Hub
	log       *zap.Logger
}

func (p *statePublisher) PublishSample(s models.SpreadSample) {
	if err := p.spreads.Insert(&s); err != nil {
		p.log.Warn("spread insert failed", zap.Int("pair_id", s.PairID), zap.Error(err))
	}
	p.hub.BroadcastSpread(&s)
}

func (p *statePublisher) PublishSignal(sig models.Signal) {
	if err := p.signals.Insert(&sig); err != nil {
		p.log.Warn("signal insert failed", zap.Int("pair_id", sig.PairID), zap.Error(err))
	}
	p.hub.BroadcastSignal(&sig)
}

func (p *statePublisher) PublishPosition(pos models.Position) {
	if err := p.positions.Upsert(&pos); err != nil {
		p.log.Warn("position upsert failed", zap.Int("pair_id", pos.PairID), zap.Error(err))
	}
	p.hub.BroadcastPosition(pos.PairID, &pos)
}

// PublishOrder журналирует снапшот ордера. Первый снапшот (отправка)
// вставляет строку, последующие (fill/отмена/reject) обновляют её.
// Журнал - источник MaxNonce при рестарте.
func (p *statePublisher) PublishOrder(o models.Order) {
	err := p.orders.UpdateFill(&o)
	if errors.Is(err, repository.ErrOrderNotFound) {
		err = p.orders.Insert(&o)
	}
	if err != nil {
		p.log.Warn("order journal write failed", zap.String("order_id", o.OrderID), zap.Error(err))
	}
}

func (p *statePublisher) PublishNotification(n models.Notification) {
	p.hub.BroadcastNotification(&n)
}

// initDatabase открывает подключение к State Store и проверяет его
func initDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open(cfg.Database.Driver, cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}
