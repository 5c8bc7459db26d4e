package handlers

import (
	"net/http"

	"pairsbot/internal/repository"
)

// SignalHandler отдает журнал сигналов
//
// Endpoints:
// - GET /api/v1/signals?pair=N&limit=M - последние сигналы (pair=0 - все пары)
type SignalHandler struct {
	signals *repository.SignalRepository
}

// NewSignalHandler создает SignalHandler с внедрением зависимости
func NewSignalHandler(signals *repository.SignalRepository) *SignalHandler {
	return &SignalHandler{signals: signals}
}

// GetRecent возвращает последние сигналы (новые первыми)
// GET /api/v1/signals?pair=N&limit=M
func (h *SignalHandler) GetRecent(w http.ResponseWriter, r *http.Request) {
	pairID := queryInt(r, "pair", 0)

	limit := queryInt(r, "limit", 100)
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	signals, err := h.signals.GetRecent(pairID, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal_error", "Failed to load signals", err.Error())
		return
	}

	respondJSON(w, http.StatusOK, signals)
}
