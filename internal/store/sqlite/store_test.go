package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/kalshiarb/internal/domain"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), filepath.Join(t.TempDir(), "data", "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testOpportunity(id string, detected time.Time) domain.ArbitrageOpportunity {
	exp := detected.Add(5 * time.Minute)
	return domain.ArbitrageOpportunity{
		ID:       id,
		Strategy: domain.StrategySubset,
		Markets:  []string{"KXFED-25DEC-T4.25", "KXFED-25DEC-T4.50"},
		Legs: []domain.TradeLeg{
			{Ticker: "KXFED-25DEC-T4.25", Side: domain.SideSell, Position: domain.PositionYes, Price: decimal.RequireFromString("0.60"), Quantity: 100},
			{Ticker: "KXFED-25DEC-T4.50", Side: domain.SideBuy, Position: domain.PositionYes, Price: decimal.RequireFromString("0.55"), Quantity: 100},
		},
		Size:            100,
		GrossProfit:     decimal.RequireFromString("5.00"),
		TotalFees:       decimal.RequireFromString("3.41"),
		NetProfit:       decimal.RequireFromString("1.59"),
		RequiredCapital: decimal.RequireFromString("55.00"),
		Confidence:      0.95,
		DetectedAt:      detected,
		ExpiresAt:       &exp,
	}
}

func TestOpportunityStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewOpportunityStore(openTestDB(t))

	now := time.Date(2025, 6, 1, 12, 0, 0, 123456789, time.UTC)
	opp := testOpportunity("opp-1", now)
	if err := store.Insert(ctx, opp); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	// A second insert of the same id is ignored.
	if err := store.Insert(ctx, opp); err != nil {
		t.Fatalf("Insert duplicate: %v", err)
	}

	got, err := store.GetByID(ctx, "opp-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if !got.NetProfit.Equal(opp.NetProfit) || !got.RequiredCapital.Equal(opp.RequiredCapital) {
		t.Errorf("money = %s/%s", got.NetProfit, got.RequiredCapital)
	}
	if !got.DetectedAt.Equal(now) {
		t.Errorf("detected_at = %v, want %v", got.DetectedAt, now)
	}
	if got.ExpiresAt == nil || !got.ExpiresAt.Equal(*opp.ExpiresAt) {
		t.Errorf("expires_at = %v", got.ExpiresAt)
	}
	if len(got.Legs) != 2 || !got.Legs[0].Price.Equal(decimal.RequireFromString("0.60")) || got.Legs[1].Side != domain.SideBuy {
		t.Errorf("legs = %+v", got.Legs)
	}
	if len(got.Markets) != 2 || got.Strategy != domain.StrategySubset {
		t.Errorf("markets/strategy = %v/%s", got.Markets, got.Strategy)
	}

	if _, err := store.GetByID(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("GetByID missing: %v, want ErrNotFound", err)
	}
}

func TestOpportunityStoreRetention(t *testing.T) {
	ctx := context.Background()
	store := NewOpportunityStore(openTestDB(t))

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c", "d"} {
		opp := testOpportunity(id, base.Add(time.Duration(i)*time.Hour))
		opp.ExpiresAt = nil
		if err := store.Insert(ctx, opp); err != nil {
			t.Fatalf("Insert %s: %v", id, err)
		}
	}

	recent, err := store.ListRecent(ctx, domain.ListOpts{Limit: 2})
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	if len(recent) != 2 || recent[0].ID != "d" || recent[1].ID != "c" {
		t.Fatalf("ListRecent = %v", ids(recent))
	}
	if recent[0].ExpiresAt != nil {
		t.Errorf("expires_at should be nil, got %v", recent[0].ExpiresAt)
	}

	paged, err := store.ListRecent(ctx, domain.ListOpts{Offset: 3})
	if err != nil {
		t.Fatalf("ListRecent offset: %v", err)
	}
	if len(paged) != 1 || paged[0].ID != "a" {
		t.Fatalf("ListRecent offset = %v", ids(paged))
	}

	cutoff := base.Add(2 * time.Hour)
	old, err := store.ListBefore(ctx, cutoff, 0)
	if err != nil {
		t.Fatalf("ListBefore: %v", err)
	}
	if len(old) != 2 || old[0].ID != "a" || old[1].ID != "b" {
		t.Fatalf("ListBefore = %v", ids(old))
	}

	n, err := store.DeleteBefore(ctx, cutoff)
	if err != nil {
		t.Fatalf("DeleteBefore: %v", err)
	}
	if n != 2 {
		t.Errorf("deleted %d rows, want 2", n)
	}
	left, _ := store.ListRecent(ctx, domain.ListOpts{})
	if len(left) != 2 {
		t.Errorf("remaining = %v", ids(left))
	}
}

func TestRelationshipStoreUpsert(t *testing.T) {
	ctx := context.Background()
	store := NewRelationshipStore(openTestDB(t))

	t0 := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	rec := domain.RelationshipRecord{
		TickerA:      "KXFED-25DEC-T4.25",
		TickerB:      "KXFED-25DEC-T4.50",
		Kind:         domain.RelationSubset,
		Confidence:   0.95,
		Reasoning:    "threshold",
		DiscoveredAt: t0,
	}
	if err := store.Upsert(ctx, rec); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	rec.Confidence = 0.9
	rec.DiscoveredAt = t0.Add(time.Minute)
	if err := store.Upsert(ctx, rec); err != nil {
		t.Fatalf("Upsert again: %v", err)
	}

	list, err := store.List(ctx, domain.ListOpts{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("List returned %d records, want 1", len(list))
	}
	if list[0].Confidence != 0.9 || !list[0].DiscoveredAt.Equal(rec.DiscoveredAt) || list[0].Kind != domain.RelationSubset {
		t.Errorf("record = %+v", list[0])
	}
}

func ids(opps []domain.ArbitrageOpportunity) []string {
	out := make([]string, len(opps))
	for i, o := range opps {
		out[i] = o.ID
	}
	return out
}
