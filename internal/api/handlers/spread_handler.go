package handlers

import (
	"net/http"
	"time"

	"pairsbot/internal/repository"
)

// SpreadHandler отдает историю метрик спреда для графиков панели
//
// Endpoints:
// - GET /api/v1/spreads?pair=N&limit=M       - последние M сэмплов пары
// - GET /api/v1/spreads/range?pair=N&from=&to= - сэмплы за интервал (RFC3339)
type SpreadHandler struct {
	spreads *repository.SpreadRepository
}

// NewSpreadHandler создает SpreadHandler с внедрением зависимости
func NewSpreadHandler(spreads *repository.SpreadRepository) *SpreadHandler {
	return &SpreadHandler{spreads: spreads}
}

// GetRecent возвращает последние сэмплы спреда (новые первыми)
// GET /api/v1/spreads?pair=N&limit=M
func (h *SpreadHandler) GetRecent(w http.ResponseWriter, r *http.Request) {
	pairID := queryInt(r, "pair", 0)
	if pairID <= 0 {
		respondError(w, http.StatusBadRequest, "missing_pair", "Query parameter pair is required", "")
		return
	}

	limit := queryInt(r, "limit", 200)
	if limit <= 0 || limit > 5000 {
		limit = 200
	}

	samples, err := h.spreads.GetRecent(pairID, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal_error", "Failed to load spreads", err.Error())
		return
	}

	respondJSON(w, http.StatusOK, samples)
}

// GetRange возвращает сэмплы за временной интервал (хронологический порядок)
// GET /api/v1/spreads/range?pair=N&from=RFC3339&to=RFC3339
func (h *SpreadHandler) GetRange(w http.ResponseWriter, r *http.Request) {
	pairID := queryInt(r, "pair", 0)
	if pairID <= 0 {
		respondError(w, http.StatusBadRequest, "missing_pair", "Query parameter pair is required", "")
		return
	}

	from, err := time.Parse(time.RFC3339, r.URL.Query().Get("from"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_from", "Query parameter from must be RFC3339", err.Error())
		return
	}
	to, err := time.Parse(time.RFC3339, r.URL.Query().Get("to"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_to", "Query parameter to must be RFC3339", err.Error())
		return
	}
	if !to.After(from) {
		respondError(w, http.StatusBadRequest, "invalid_range", "to must be after from", "")
		return
	}

	samples, err := h.spreads.GetRange(pairID, from, to)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal_error", "Failed to load spreads", err.Error())
		return
	}

	respondJSON(w, http.StatusOK, samples)
}
