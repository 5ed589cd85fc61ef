package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/kalshiarb/internal/domain"
)

// OpportunityStore implements domain.OpportunityStore on SQLite.
type OpportunityStore struct {
	db *sql.DB
}

// NewOpportunityStore returns a store sharing d's handle.
func NewOpportunityStore(d *DB) *OpportunityStore {
	return &OpportunityStore{db: d.db}
}

const opportunityCols = `id, strategy, markets, legs, size,
	gross_profit, total_fees, net_profit, required_capital,
	confidence, detected_at, expires_at`

// Insert stores opp. Inserting an existing id is a no-op.
func (s *OpportunityStore) Insert(ctx context.Context, opp domain.ArbitrageOpportunity) error {
	markets := opp.Markets
	if markets == nil {
		markets = []string{}
	}
	marketsJSON, err := json.Marshal(markets)
	if err != nil {
		return fmt.Errorf("sqlite: marshal markets %s: %w", opp.ID, err)
	}
	legsJSON, err := json.Marshal(opp.Legs)
	if err != nil {
		return fmt.Errorf("sqlite: marshal legs %s: %w", opp.ID, err)
	}
	var expires sql.NullInt64
	if opp.ExpiresAt != nil {
		expires = sql.NullInt64{Int64: opp.ExpiresAt.UnixNano(), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO opportunities (`+opportunityCols+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		opp.ID, string(opp.Strategy), string(marketsJSON), string(legsJSON), opp.Size,
		opp.GrossProfit.String(), opp.TotalFees.String(), opp.NetProfit.String(), opp.RequiredCapital.String(),
		opp.Confidence, opp.DetectedAt.UnixNano(), expires,
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert opportunity %s: %w", opp.ID, err)
	}
	return nil
}

// GetByID returns one opportunity or domain.ErrNotFound.
func (s *OpportunityStore) GetByID(ctx context.Context, id string) (domain.ArbitrageOpportunity, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+opportunityCols+` FROM opportunities WHERE id = ?`, id)
	opp, err := scanOpportunity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ArbitrageOpportunity{}, fmt.Errorf("sqlite: opportunity %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.ArbitrageOpportunity{}, fmt.Errorf("sqlite: get opportunity %s: %w", id, err)
	}
	return opp, nil
}

// ListRecent returns opportunities newest first.
func (s *OpportunityStore) ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.ArbitrageOpportunity, error) {
	query := `SELECT ` + opportunityCols + ` FROM opportunities WHERE 1=1`
	var args []any
	if opts.Since != nil {
		query += " AND detected_at >= ?"
		args = append(args, opts.Since.UnixNano())
	}
	if opts.Until != nil {
		query += " AND detected_at < ?"
		args = append(args, opts.Until.UnixNano())
	}
	query += " ORDER BY detected_at DESC"
	query, args = paginate(query, args, opts)
	return s.query(ctx, "list recent opportunities", query, args...)
}

// ListBefore returns up to limit opportunities detected before the cutoff,
// oldest first.
func (s *OpportunityStore) ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.ArbitrageOpportunity, error) {
	query := `SELECT ` + opportunityCols + ` FROM opportunities WHERE detected_at < ? ORDER BY detected_at ASC`
	args := []any{before.UnixNano()}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return s.query(ctx, "list opportunities before", query, args...)
}

// DeleteBefore removes opportunities detected before the cutoff.
func (s *OpportunityStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM opportunities WHERE detected_at < ?`, before.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("sqlite: delete opportunities before %s: %w", before.Format(time.RFC3339), err)
	}
	return res.RowsAffected()
}

func (s *OpportunityStore) query(ctx context.Context, op, query string, args ...any) ([]domain.ArbitrageOpportunity, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: %s: %w", op, err)
	}
	defer rows.Close()

	var opps []domain.ArbitrageOpportunity
	for rows.Next() {
		opp, err := scanOpportunity(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan opportunity: %w", err)
		}
		opps = append(opps, opp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: %s: %w", op, err)
	}
	return opps, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOpportunity(row scanner) (domain.ArbitrageOpportunity, error) {
	var (
		opp                       domain.ArbitrageOpportunity
		strategy, markets, legs   string
		gross, fees, net, capital string
		detected                  int64
		expires                   sql.NullInt64
	)
	if err := row.Scan(
		&opp.ID, &strategy, &markets, &legs, &opp.Size,
		&gross, &fees, &net, &capital,
		&opp.Confidence, &detected, &expires,
	); err != nil {
		return domain.ArbitrageOpportunity{}, err
	}
	opp.Strategy = domain.StrategyType(strategy)
	opp.DetectedAt = time.Unix(0, detected).UTC()
	if expires.Valid {
		t := time.Unix(0, expires.Int64).UTC()
		opp.ExpiresAt = &t
	}
	if err := json.Unmarshal([]byte(markets), &opp.Markets); err != nil {
		return domain.ArbitrageOpportunity{}, fmt.Errorf("decode markets: %w", err)
	}
	if err := json.Unmarshal([]byte(legs), &opp.Legs); err != nil {
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

func paginate(query string, args []any, opts domain.ListOpts) (string, []any) {
	switch {
	case opts.Limit > 0:
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	case opts.Offset > 0:
		query += " LIMIT -1"
	}
	if opts.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, opts.Offset)
	}
	return query, args
}

var _ domain.OpportunityStore = (*OpportunityStore)(nil)
