package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/kalshiarb/internal/domain"
)

// RelationshipLister reads persisted relationships.
type RelationshipLister interface {
	List(ctx context.Context, limit int) ([]domain.RelationshipRecord, error)
}

// relationshipView is a relationship plus the price constraint it implies.
type relationshipView struct {
	domain.RelationshipRecord
	Constraint string `json:"constraint,omitempty"`
	Action     string `json:"action,omitempty"`
}

func viewOf(rec domain.RelationshipRecord) relationshipView {
	constraint, action, _ := domain.Relationship{Kind: rec.Kind}.ArbitrageDirection()
	return relationshipView{RelationshipRecord: rec, Constraint: constraint, Action: action}
}

// RelationshipHandler serves discovered relationships. Live relationships
// from a running detector take precedence over the store.
type RelationshipHandler struct {
	store  RelationshipLister
	live   func() []domain.Relationship
	logger *slog.Logger
}

// NewRelationshipHandler creates a handler. Either source may be nil.
func NewRelationshipHandler(store RelationshipLister, live func() []domain.Relationship, logger *slog.Logger) *RelationshipHandler {
	return &RelationshipHandler{store: store, live: live, logger: logHandler(logger, "relationship")}
}

// List returns up to limit relationships with their arbitrage direction.
// GET /api/relationships?limit=
func (h *RelationshipHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r)
	views := make([]relationshipView, 0)
	source := "none"

	switch {
	case h.live != nil:
		source = "detector"
		now := time.Now().UTC()
		for _, rel := range h.live() {
			if len(views) == limit {
				break
			}
			views = append(views, viewOf(rel.Record(now)))
		}
	case h.store != nil:
		source = "store"
		recs, err := h.store.List(r.Context(), limit)
		if err != nil {
			h.logger.ErrorContext(r.Context(), "list relationships failed", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "failed to list relationships")
			return
		}
		for _, rec := range recs {
			views = append(views, viewOf(rec))
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"relationships": views,
		"count":         len(views),
		"source":        source,
	})
}
