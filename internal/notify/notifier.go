// Package notify pushes discovered opportunities to chat channels (Telegram,
// Discord). Opportunities below a minimum net profit are not sent.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/kalshiarb/internal/domain"
)

// Sender is implemented by each notification channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier fans a notification out to all registered senders.
type Notifier struct {
	senders   []Sender
	minProfit decimal.Decimal
	logger    *slog.Logger
}

// NewNotifier creates a Notifier. NotifyOpportunity skips opportunities whose
// net profit is below minProfit.
func NewNotifier(senders []Sender, minProfit decimal.Decimal, logger *slog.Logger) *Notifier {
	return &Notifier{
		senders:   senders,
		minProfit: minProfit,
		logger:    logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether any sender is configured.
func (n *Notifier) Enabled() bool {
	return n != nil && len(n.senders) > 0
}

// NotifyOpportunity announces opp if it clears the profit threshold.
func (n *Notifier) NotifyOpportunity(ctx context.Context, opp domain.ArbitrageOpportunity) error {
	if !n.Enabled() {
		return nil
	}
	if opp.NetProfit.LessThan(n.minProfit) {
		n.logger.DebugContext(ctx, "opportunity below notify threshold",
			slog.String("id", opp.ID),
			slog.String("net_profit", opp.NetProfit.StringFixed(2)),
		)
		return nil
	}
	title, body := FormatOpportunity(opp)
	return n.dispatch(ctx, title, body)
}

// NotifyAll sends a free-form message to every sender.
func (n *Notifier) NotifyAll(ctx context.Context, title, message string) error {
	if !n.Enabled() {
		return nil
	}
	return n.dispatch(ctx, title, message)
}

// dispatch delivers to every sender even when some fail and joins the
// failures.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}
