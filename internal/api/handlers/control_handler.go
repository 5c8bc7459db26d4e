package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"pairsbot/internal/bot"
	"pairsbot/internal/websocket"
)

// ControlHandler - операторский control surface
//
// Endpoints:
// - GET  /api/v1/risk              - снимок рисковых агрегатов
// - POST /api/v1/control/mode      - переключение auto-execute / alert-only
// - POST /api/v1/control/breaker   - установка/снятие circuit breaker
// - POST /api/v1/control/flatten   - принудительное закрытие позиций
type ControlHandler struct {
	engine *bot.Engine
	hub    *websocket.Hub
}

// NewControlHandler создает ControlHandler с внедрением зависимостей
func NewControlHandler(engine *bot.Engine, hub *websocket.Hub) *ControlHandler {
	return &ControlHandler{engine: engine, hub: hub}
}

// ModeRequest запрос на смену режима исполнения
type ModeRequest struct {
	Mode string `json:"mode"` // "auto" | "alert-only"
}

// BreakerRequest запрос на управление circuit breaker
type BreakerRequest struct {
	Active bool   `json:"active"`
	Reason string `json:"reason,omitempty"`
}

// FlattenRequest запрос на принудительное закрытие
type FlattenRequest struct {
	PairID int  `json:"pair_id,omitempty"`
	All    bool `json:"all,omitempty"`
}

// GetRisk возвращает снимок рисковых агрегатов
// GET /api/v1/risk
func (h *ControlHandler) GetRisk(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.engine.RiskSnapshot())
}

// SetMode переключает режим исполнения
// POST /api/v1/control/mode {"mode": "auto"}
func (h *ControlHandler) SetMode(w http.ResponseWriter, r *http.Request) {
	var req ModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body", err.Error())
		return
	}

	switch req.Mode {
	case "auto":
		h.engine.SetAutoExecute(true)
	case "alert-only":
		h.engine.SetAutoExecute(false)
	default:
		respondError(w, http.StatusBadRequest, "invalid_mode", `Mode must be "auto" or "alert-only"`, "")
		return
	}

	respondJSON(w, http.StatusOK, SuccessResponse{
		Message: "Mode updated",
		Data:    map[string]string{"mode": req.Mode},
	})
}

// SetBreaker устанавливает или снимает глобальный circuit breaker.
// Снятие не переотправляет подавленные входы - только разрешает новые.
// POST /api/v1/control/breaker {"active": true, "reason": "manual"}
func (h *ControlHandler) SetBreaker(w http.ResponseWriter, r *http.Request) {
	var req BreakerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body", err.Error())
		return
	}

	reason := req.Reason
	if req.Active && reason == "" {
		reason = "manual"
	}

	h.engine.SetBreaker(req.Active, reason)
	if h.hub != nil {
		h.hub.BroadcastBreaker(req.Active, reason)
	}

	respondJSON(w, http.StatusOK, SuccessResponse{Message: "Breaker updated"})
}

// Flatten принудительно закрывает позицию пары или все позиции
// POST /api/v1/control/flatten {"pair_id": 3} или {"all": true}
func (h *ControlHandler) Flatten(w http.ResponseWriter, r *http.Request) {
	var req FlattenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body", err.Error())
		return
	}

	switch {
	case req.All:
		if err := h.engine.FlattenAll(r.Context()); err != nil {
			respondError(w, http.StatusInternalServerError, "flatten_failed", "Failed to flatten all pairs", err.Error())
			return
		}
		respondJSON(w, http.StatusOK, SuccessResponse{Message: "All positions flattened"})

	case req.PairID > 0:
		if err := h.engine.FlattenPair(r.Context(), req.PairID); err != nil {
			if errors.Is(err, bot.ErrUnknownPair) {
				respondError(w, http.StatusNotFound, "pair_not_found", "Pair not found", "")
				return
			}
			respondError(w, http.StatusInternalServerError, "flatten_failed", "Failed to flatten pair", err.Error())
			return
		}
		respondJSON(w, http.StatusOK, SuccessResponse{Message: "Position flattened"})

	default:
		respondError(w, http.StatusBadRequest, "invalid_request", "Either pair_id or all is required", "")
	}
}
