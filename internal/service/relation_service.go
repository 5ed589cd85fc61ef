package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/kalshiarb/internal/domain"
	"github.com/alanyoungcy/kalshiarb/internal/relation"
)

// RelationService persists and reports discovered market relationships.
type RelationService struct {
	store  domain.RelationshipStore
	logger *slog.Logger
	now    func() time.Time
}

// NewRelationService creates a RelationService. A nil store disables
// persistence.
func NewRelationService(store domain.RelationshipStore, logger *slog.Logger) *RelationService {
	return &RelationService{
		store:  store,
		logger: logger.With(slog.String("component", "relation_service")),
		now:    time.Now,
	}
}

// Persist upserts every relationship and returns how many were written.
// It stops at the first failure.
func (s *RelationService) Persist(ctx context.Context, rels []domain.Relationship) (int, error) {
	if s.store == nil {
		return 0, nil
	}
	at := s.now().UTC()
	for i, r := range rels {
		if err := s.store.Upsert(ctx, r.Record(at)); err != nil {
			return i, fmt.Errorf("relation_service: persist: %w", err)
		}
	}
	s.logger.InfoContext(ctx, "relationships persisted", slog.Int("count", len(rels)))
	return len(rels), nil
}

// List returns up to limit stored relationships.
func (s *RelationService) List(ctx context.Context, limit int) ([]domain.RelationshipRecord, error) {
	if s.store == nil {
		return nil, nil
	}
	recs, err := s.store.List(ctx, domain.ListOpts{Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("relation_service: list: %w", err)
	}
	return recs, nil
}

// GroupSummary counts the relationships found by the grouped analyzers.
type GroupSummary struct {
	FedRates int
	Indexes  int
}

// Summarize runs the grouped analyzers over markets and logs what each finds
// per relationship kind.
func (s *RelationService) Summarize(ctx context.Context, markets []domain.MarketDescriptor) GroupSummary {
	fed := relation.AnalyzeFedRates(markets)
	idx := relation.AnalyzeIndexes(markets)
	for name, rels := range map[string][]domain.Relationship{"fed_rates": fed, "indexes": idx} {
		byKind := make(map[domain.RelationshipKind]int)
		for _, r := range rels {
			byKind[r.Kind]++
		}
		attrs := []any{slog.String("group", name), slog.Int("relationships", len(rels))}
		for kind, n := range byKind {
			attrs = append(attrs, slog.Int(string(kind), n))
		}
		s.logger.InfoContext(ctx, "grouped analysis", attrs...)
	}
	return GroupSummary{FedRates: len(fed), Indexes: len(idx)}
}
