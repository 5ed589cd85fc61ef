package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/kalshiarb/internal/domain"
)

// OpportunityStore implements domain.OpportunityStore using PostgreSQL.
type OpportunityStore struct {
	pool *pgxpool.Pool
}

// NewOpportunityStore creates a new OpportunityStore backed by the given
// connection pool.
func NewOpportunityStore(pool *pgxpool.Pool) *OpportunityStore {
	return &OpportunityStore{pool: pool}
}

// Money columns are read back as text so that no precision is lost.
const opportunitySelectCols = `id, strategy, markets, legs, size,
	gross_profit::text, total_fees::text, net_profit::text, required_capital::text,
	confidence, detected_at, expires_at`

// Insert stores a new opportunity. Inserting an existing id is a no-op.
func (s *OpportunityStore) Insert(ctx context.Context, opp domain.ArbitrageOpportunity) error {
	const query = `
		INSERT INTO opportunities (
			id, strategy, markets, legs, size,
			gross_profit, total_fees, net_profit, required_capital,
			confidence, detected_at, expires_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6::numeric, $7::numeric, $8::numeric, $9::numeric,
			$10, $11, $12
		)
		ON CONFLICT (id) DO NOTHING`

	legs, err := json.Marshal(opp.Legs)
	if err != nil {
		return fmt.Errorf("postgres: marshal legs %s: %w", opp.ID, err)
	}
	markets := opp.Markets
	if markets == nil {
		markets = []string{}
	}

	_, err = s.pool.Exec(ctx, query,
		opp.ID, string(opp.Strategy), markets, legs, opp.Size,
		opp.GrossProfit.String(), opp.TotalFees.String(), opp.NetProfit.String(), opp.RequiredCapital.String(),
		opp.Confidence, opp.DetectedAt, opp.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert opportunity %s: %w", opp.ID, err)
	}
	return nil
}

// GetByID returns a single opportunity or domain.ErrNotFound.
func (s *OpportunityStore) GetByID(ctx context.Context, id string) (domain.ArbitrageOpportunity, error) {
	query := `SELECT ` + opportunitySelectCols + ` FROM opportunities WHERE id = $1`
	opp, err := scanOpportunity(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ArbitrageOpportunity{}, fmt.Errorf("postgres: opportunity %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.ArbitrageOpportunity{}, fmt.Errorf("postgres: get opportunity %s: %w", id, err)
	}
	return opp, nil
}

// ListRecent returns opportunities newest first, filtered by opts.
func (s *OpportunityStore) ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.ArbitrageOpportunity, error) {
	query := `SELECT ` + opportunitySelectCols + ` FROM opportunities WHERE 1=1`
	var args []any
	if opts.Since != nil {
		args = append(args, *opts.Since)
		query += fmt.Sprintf(" AND detected_at >= $%d", len(args))
	}
	if opts.Until != nil {
		args = append(args, *opts.Until)
		query += fmt.Sprintf(" AND detected_at < $%d", len(args))
	}
	query += " ORDER BY detected_at DESC"
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	return s.query(ctx, "list recent opportunities", query, args...)
}

// ListBefore returns up to limit opportunities detected before the cutoff,
// oldest first.
func (s *OpportunityStore) ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.ArbitrageOpportunity, error) {
	query := `SELECT ` + opportunitySelectCols + ` FROM opportunities WHERE detected_at < $1 ORDER BY detected_at ASC`
	args := []any{before}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}
	return s.query(ctx, "list opportunities before", query, args...)
}

// DeleteBefore removes opportunities detected before the cutoff.
func (s *OpportunityStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM opportunities WHERE detected_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete opportunities before %s: %w", before.Format(time.RFC3339), err)
	}
	return tag.RowsAffected(), nil
}

func (s *OpportunityStore) query(ctx context.Context, op, query string, args ...any) ([]domain.ArbitrageOpportunity, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: %s: %w", op, err)
	}
	defer rows.Close()

	var opps []domain.ArbitrageOpportunity
	for rows.Next() {
		opp, err := scanOpportunity(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan opportunity: %w", err)
		}
		opps = append(opps, opp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: %s: %w", op, err)
	}
	return opps, nil
}

func scanOpportunity(row pgx.Row) (domain.ArbitrageOpportunity, error) {
	var (
		opp                       domain.ArbitrageOpportunity
		strategy                  string
		legs                      []byte
		gross, fees, net, capital string
	)
	if err := row.Scan(
		&opp.ID, &strategy, &opp.Markets, &legs, &opp.Size,
		&gross, &fees, &net, &capital,
		&opp.Confidence, &opp.DetectedAt, &opp.ExpiresAt,
	); err != nil {
		return domain.ArbitrageOpportunity{}, err
	}
	opp.Strategy = domain.StrategyType(strategy)
	if err := json.Unmarshal(legs, &opp.Legs); err != nil {
		return domain.ArbitrageOpportunity{}, fmt.Errorf("decode legs: %w", err)
	}
	var err error
	for _, f := range []struct {
		dst *decimal.Decimal
		src string
	}{
		{&opp.GrossProfit, gross}, {&opp.TotalFees, fees}, {&opp.NetProfit, net}, {&opp.RequiredCapital, capital},
	} {
		if *f.dst, err = decimal.NewFromString(f.src); err != nil {
			return domain.ArbitrageOpportunity{}, fmt.Errorf("decode money %q: %w", f.src, err)
		}
	}
	return opp, nil
}

// Compile-time interface check.
var _ domain.OpportunityStore = (*OpportunityStore)(nil)
