package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// OpportunityStore persists detected arbitrage opportunities.
type OpportunityStore interface {
	Insert(ctx context.Context, opp ArbitrageOpportunity) error
	GetByID(ctx context.Context, id string) (ArbitrageOpportunity, error)
	ListRecent(ctx context.Context, opts ListOpts) ([]ArbitrageOpportunity, error)
	ListBefore(ctx context.Context, before time.Time, limit int) ([]ArbitrageOpportunity, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// RelationshipStore persists discovered market relationships.
type RelationshipStore interface {
	Upsert(ctx context.Context, rec RelationshipRecord) error
	List(ctx context.Context, opts ListOpts) ([]RelationshipRecord, error)
}
