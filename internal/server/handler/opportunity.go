package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/alanyoungcy/kalshiarb/internal/domain"
)

// OpportunityReader reads stored opportunities.
type OpportunityReader interface {
	ListRecent(ctx context.Context, limit int) ([]domain.ArbitrageOpportunity, error)
	Get(ctx context.Context, id string) (domain.ArbitrageOpportunity, error)
}

// OpportunityHandler serves stored arbitrage opportunities.
type OpportunityHandler struct {
	opps   OpportunityReader
	logger *slog.Logger
}

func NewOpportunityHandler(opps OpportunityReader, logger *slog.Logger) *OpportunityHandler {
	return &OpportunityHandler{opps: opps, logger: logHandler(logger, "opportunity")}
}

// ListRecent returns the newest opportunities as records.
// GET /api/opportunities?limit=
func (h *OpportunityHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	opps, err := h.opps.ListRecent(r.Context(), parseLimit(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list opportunities failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list opportunities")
		return
	}
	records := make([]domain.OpportunityRecord, 0, len(opps))
	for _, o := range opps {
		records = append(records, o.Record())
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"opportunities": records,
		"count":         len(records),
	})
}

// Get returns one opportunity by ID.
// GET /api/opportunities/{id}
func (h *OpportunityHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	opp, err := h.opps.Get(r.Context(), id)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "opportunity not found")
		return
	case err != nil:
		h.logger.ErrorContext(r.Context(), "get opportunity failed",
			slog.String("opp_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get opportunity")
		return
	}
	writeJSON(w, http.StatusOK, opp.Record())
}
