package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/alanyoungcy/kalshiarb/internal/domain"
)

// RelationshipStore implements domain.RelationshipStore on SQLite.
type RelationshipStore struct {
	db *sql.DB
}

// NewRelationshipStore returns a store sharing d's handle.
func NewRelationshipStore(d *DB) *RelationshipStore {
	return &RelationshipStore{db: d.db}
}

// Upsert inserts or refreshes the relationship of an ordered ticker pair.
func (s *RelationshipStore) Upsert(ctx context.Context, r domain.RelationshipRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO relationships (ticker_a, ticker_b, kind, confidence, reasoning, discovered_at)
		VALUES (?,?,?,?,?,?)
		ON CONFLICT (ticker_a, ticker_b) DO UPDATE SET
			kind          = excluded.kind,
			confidence    = excluded.confidence,
			reasoning     = excluded.reasoning,
			discovered_at = excluded.discovered_at`,
		r.TickerA, r.TickerB, string(r.Kind), r.Confidence, r.Reasoning, r.DiscoveredAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: upsert relationship %s/%s: %w", r.TickerA, r.TickerB, err)
	}
	return nil
}

// List returns relationships, most recently discovered first.
func (s *RelationshipStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.RelationshipRecord, error) {
	query := `SELECT ticker_a, ticker_b, kind, confidence, reasoning, discovered_at FROM relationships`
	var args []any
	if opts.Since != nil {
		query += " WHERE discovered_at >= ?"
		args = append(args, opts.Since.UnixNano())
	}
	query += " ORDER BY discovered_at DESC, ticker_a, ticker_b"
	query, args = paginate(query, args, opts)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list relationships: %w", err)
	}
	defer rows.Close()

	var list []domain.RelationshipRecord
	for rows.Next() {
		var (
			r          domain.RelationshipRecord
			kind       string
			discovered int64
		)
		if err := rows.Scan(&r.TickerA, &r.TickerB, &kind, &r.Confidence, &r.Reasoning, &discovered); err != nil {
			return nil, fmt.Errorf("sqlite: scan relationship: %w", err)
		}
		r.Kind = domain.RelationshipKind(kind)
		r.DiscoveredAt = time.Unix(0, discovered).UTC()
		list = append(list, r)
	}
	return list, rows.Err()
}

var _ domain.RelationshipStore = (*RelationshipStore)(nil)
