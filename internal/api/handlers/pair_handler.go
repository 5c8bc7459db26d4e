package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"pairsbot/internal/bot"
	"pairsbot/internal/models"
	"pairsbot/internal/repository"
	"pairsbot/pkg/utils"

	"github.com/gorilla/mux"
)

// PairHandler отвечает за торговые пары
//
// Endpoints:
// - GET /api/v1/pairs                 - список пар с runtime состоянием
// - GET /api/v1/pairs/{id}            - снимок пары: состояние, позиция, ордера
// - POST /api/v1/pairs                - регистрация новой пары (подхватится при рестарте)
// - DELETE /api/v1/pairs/{id}         - удаление пары из конфигурации
type PairHandler struct {
	engine *bot.Engine
	pairs  *repository.PairRepository
}

// NewPairHandler создает PairHandler с внедрением зависимостей
func NewPairHandler(engine *bot.Engine, pairs *repository.PairRepository) *PairHandler {
	return &PairHandler{engine: engine, pairs: pairs}
}

// CreatePairRequest структура запроса на регистрацию пары
type CreatePairRequest struct {
	Name       string  `json:"name"`
	VenueA     string  `json:"venue_a"`
	SymbolA    string  `json:"symbol_a"`
	VenueB     string  `json:"venue_b"`
	SymbolB    string  `json:"symbol_b"`
	QuoteNorm  float64 `json:"quote_norm"`  // 0 = одна котируемая валюта (1.0)
	VolumeBase float64 `json:"volume_base"` // объем входа в базовой валюте
	Account    string  `json:"account"`
}

// PairSnapshotResponse снимок пары для панели
type PairSnapshotResponse struct {
	bot.PairStatus
	Orders []models.Order `json:"orders"`
}

// GetPairs возвращает все пары с их runtime состоянием
// GET /api/v1/pairs
func (h *PairHandler) GetPairs(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.engine.Pairs())
}

// GetPair возвращает снимок пары: состояние FSM, позицию, ордера
// GET /api/v1/pairs/{id}
func (h *PairHandler) GetPair(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_id", "Pair id must be an integer", "")
		return
	}

	status, orders, err := h.engine.PairSnapshot(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "pair_not_found", "Pair not found", "")
		return
	}

	respondJSON(w, http.StatusOK, PairSnapshotResponse{PairStatus: status, Orders: orders})
}

// CreatePair регистрирует новую пару в базе.
// Пара попадает в торговый цикл при следующем рестарте бота.
// POST /api/v1/pairs
func (h *PairHandler) CreatePair(w http.ResponseWriter, r *http.Request) {
	var req CreatePairRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body", err.Error())
		return
	}

	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "missing_name", "Name is required", "")
		return
	}
	for _, symbol := range []string{req.SymbolA, req.SymbolB} {
		if err := utils.ValidateSymbol(symbol); err != nil {
			respondError(w, http.StatusBadRequest, "invalid_symbol", "Invalid leg symbol", err.Error())
			return
		}
	}
	for _, venue := range []string{req.VenueA, req.VenueB} {
		if err := utils.ValidateVenue(venue); err != nil {
			respondError(w, http.StatusBadRequest, "invalid_venue", "Invalid venue", err.Error())
			return
		}
	}
	if err := utils.ValidateVolume(req.VolumeBase); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_volume", "Invalid volume_base", err.Error())
		return
	}

	pair := &models.PairConfig{
		Name:       req.Name,
		LegA:       models.LegID{Venue: req.VenueA, Symbol: req.SymbolA},
		LegB:       models.LegID{Venue: req.VenueB, Symbol: req.SymbolB},
		QuoteNorm:  req.QuoteNorm,
		VolumeBase: req.VolumeBase,
		Account:    req.Account,
	}

	if err := h.pairs.Create(pair); err != nil {
		if errors.Is(err, repository.ErrPairExists) {
			respondError(w, http.StatusConflict, "pair_exists", "Pair with this name already exists", "")
			return
		}
		respondError(w, http.StatusInternalServerError, "internal_error", "Failed to create pair", err.Error())
		return
	}

	respondJSON(w, http.StatusCreated, SuccessResponse{
		Message: "Pair registered, restart required to start trading",
		Data:    pair,
	})
}

// DeletePair удаляет пару из конфигурации
// DELETE /api/v1/pairs/{id}
func (h *PairHandler) DeletePair(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_id", "Pair id must be an integer", "")
		return
	}

	// Нельзя удалять пару с открытой позицией
	if status, _, err := h.engine.PairSnapshot(id); err == nil {
		if status.Position != nil && status.Position.Open() {
			respondError(w, http.StatusConflict, "position_open", "Cannot delete pair with an open position", "")
			return
		}
	}

	if err := h.pairs.Delete(id); err != nil {
		if errors.Is(err, repository.ErrPairNotFound) {
			respondError(w, http.StatusNotFound, "pair_not_found", "Pair not found", "")
			return
		}
		respondError(w, http.StatusInternalServerError, "internal_error", "Failed to delete pair", err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
