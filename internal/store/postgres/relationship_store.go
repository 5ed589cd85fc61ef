package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/kalshiarb/internal/domain"
)

// RelationshipStore implements domain.RelationshipStore using PostgreSQL.
type RelationshipStore struct {
	pool *pgxpool.Pool
}

// NewRelationshipStore creates a new RelationshipStore.
func NewRelationshipStore(pool *pgxpool.Pool) *RelationshipStore {
	return &RelationshipStore{pool: pool}
}

// Upsert inserts or refreshes the relationship of an ordered ticker pair.
func (s *RelationshipStore) Upsert(ctx context.Context, r domain.RelationshipRecord) error {
	const query = `
		INSERT INTO relationships (ticker_a, ticker_b, kind, confidence, reasoning, discovered_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (ticker_a, ticker_b) DO UPDATE SET
			kind          = EXCLUDED.kind,
			confidence    = EXCLUDED.confidence,
			reasoning     = EXCLUDED.reasoning,
			discovered_at = EXCLUDED.discovered_at`
	_, err := s.pool.Exec(ctx, query,
		r.TickerA, r.TickerB, string(r.Kind), r.Confidence, r.Reasoning, r.DiscoveredAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert relationship %s/%s: %w", r.TickerA, r.TickerB, err)
	}
	return nil
}

// List returns relationships, most recently discovered first.
func (s *RelationshipStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.RelationshipRecord, error) {
	query := `SELECT ticker_a, ticker_b, kind, confidence, reasoning, discovered_at FROM relationships`
	var args []any
	if opts.Since != nil {
		args = append(args, *opts.Since)
		query += " WHERE discovered_at >= $1"
	}
	query += " ORDER BY discovered_at DESC, ticker_a, ticker_b"
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list relationships: %w", err)
	}
	defer rows.Close()

	var list []domain.RelationshipRecord
	for rows.Next() {
		var r domain.RelationshipRecord
		var kind string
		if err := rows.Scan(&r.TickerA, &r.TickerB, &kind, &r.Confidence, &r.Reasoning, &r.DiscoveredAt); err != nil {
			return nil, fmt.Errorf("postgres: scan relationship: %w", err)
		}
		r.Kind = domain.RelationshipKind(kind)
		list = append(list, r)
	}
	return list, rows.Err()
}

// Compile-time interface check.
var _ domain.RelationshipStore = (*RelationshipStore)(nil)
