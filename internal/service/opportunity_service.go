// Package service holds the application services that sit between the
// exchange clients, the detection core and persistence.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/kalshiarb/internal/domain"
)

const (
	// OpportunityChannel is the pub/sub channel opportunity records are
	// published on.
	OpportunityChannel = "opportunities"
	// OpportunityStream is the durable stream opportunity records are
	// appended to.
	OpportunityStream = "opportunities:stream"
)

// OpportunityNotifier announces opportunities to operators.
type OpportunityNotifier interface {
	NotifyOpportunity(ctx context.Context, opp domain.ArbitrageOpportunity) error
}

// OpportunityService records detected opportunities. Only the store write is
// fatal; publishing and notification failures are logged.
type OpportunityService struct {
	store    domain.OpportunityStore
	bus      domain.SignalBus
	notifier OpportunityNotifier
	logger   *slog.Logger
}

// NewOpportunityService creates an OpportunityService. store, bus and
// notifier may each be nil.
func NewOpportunityService(
	store domain.OpportunityStore,
	bus domain.SignalBus,
	notifier OpportunityNotifier,
	logger *slog.Logger,
) *OpportunityService {
	return &OpportunityService{
		store:    store,
		bus:      bus,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "opportunity_service")),
	}
}

// Record persists opp and fans it out to the bus and notifier.
func (s *OpportunityService) Record(ctx context.Context, opp domain.ArbitrageOpportunity) error {
	if s.store != nil {
		if err := s.store.Insert(ctx, opp); err != nil {
			return fmt.Errorf("opportunity_service: insert %s: %w", opp.ID, err)
		}
	}

	roc, infinite := opp.ReturnOnCapital()
	rocText := roc.StringFixed(4)
	if infinite {
		rocText = "inf"
	}
	s.logger.InfoContext(ctx, "opportunity discovered",
		slog.String("opp_id", opp.ID),
		slog.String("strategy", string(opp.Strategy)),
		slog.Any("markets", opp.Markets),
		slog.Int64("size", opp.Size),
		slog.String("net_profit", opp.NetProfit.StringFixed(2)),
		slog.String("required_capital", opp.RequiredCapital.StringFixed(2)),
		slog.String("roc", rocText),
	)

	if s.bus != nil {
		s.publish(ctx, opp)
	}
	if s.notifier != nil {
		if err := s.notifier.NotifyOpportunity(ctx, opp); err != nil {
			s.logger.WarnContext(ctx, "notify failed",
				slog.String("opp_id", opp.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

func (s *OpportunityService) publish(ctx context.Context, opp domain.ArbitrageOpportunity) {
	payload, err := json.Marshal(opp.Record())
	if err != nil {
		s.logger.WarnContext(ctx, "encode opportunity record failed",
			slog.String("opp_id", opp.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := s.bus.Publish(ctx, OpportunityChannel, payload); err != nil {
		s.logger.WarnContext(ctx, "publish opportunity failed",
			slog.String("opp_id", opp.ID),
			slog.String("error", err.Error()),
		)
	}
	if err := s.bus.StreamAppend(ctx, OpportunityStream, payload); err != nil {
		s.logger.WarnContext(ctx, "stream append failed",
			slog.String("opp_id", opp.ID),
			slog.String("error", err.Error()),
		)
	}
}

// ListRecent returns up to limit stored opportunities, newest first.
func (s *OpportunityService) ListRecent(ctx context.Context, limit int) ([]domain.ArbitrageOpportunity, error) {
	if s.store == nil {
		return nil, nil
	}
	opps, err := s.store.ListRecent(ctx, domain.ListOpts{Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("opportunity_service: list recent: %w", err)
	}
	return opps, nil
}

// Get returns one stored opportunity.
func (s *OpportunityService) Get(ctx context.Context, id string) (domain.ArbitrageOpportunity, error) {
	if s.store == nil {
		return domain.ArbitrageOpportunity{}, fmt.Errorf("opportunity_service: get %s: %w", id, domain.ErrNotFound)
	}
	opp, err := s.store.GetByID(ctx, id)
	if err != nil {
		return domain.ArbitrageOpportunity{}, fmt.Errorf("opportunity_service: get %s: %w", id, err)
	}
	return opp, nil
}
