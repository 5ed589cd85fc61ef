package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/kalshiarb/internal/arbitrage"
	"github.com/alanyoungcy/kalshiarb/internal/domain"
	"github.com/alanyoungcy/kalshiarb/internal/relation"
	"github.com/alanyoungcy/kalshiarb/internal/ticker"
)

// QuoteLookup fetches the current quote of a market.
type QuoteLookup interface {
	Quote(ctx context.Context, ticker string) (arbitrage.Quote, error)
}

// QuoteInput is one market in an evaluate request. Prices are decimal dollar
// strings; when all four are empty the quote is looked up.
type QuoteInput struct {
	Ticker     string `json:"ticker"`
	YesBid     string `json:"yes_bid,omitempty"`
	YesAsk     string `json:"yes_ask,omitempty"`
	NoBid      string `json:"no_bid,omitempty"`
	NoAsk      string `json:"no_ask,omitempty"`
	YesBidSize int64  `json:"yes_bid_size,omitempty"`
	YesAskSize int64  `json:"yes_ask_size,omitempty"`
	NoBidSize  int64  `json:"no_bid_size,omitempty"`
	NoAskSize  int64  `json:"no_ask_size,omitempty"`
}

func (in QuoteInput) priced() bool {
	return in.YesBid != "" || in.YesAsk != "" || in.NoBid != "" || in.NoAsk != ""
}

func (in QuoteInput) quote() (arbitrage.Quote, error) {
	q := arbitrage.Quote{
		Ticker:     in.Ticker,
		YesBidSize: in.YesBidSize,
		YesAskSize: in.YesAskSize,
		NoBidSize:  in.NoBidSize,
		NoAskSize:  in.NoAskSize,
	}
	var err error
	if q.YesBid, err = parsePrice(in.Ticker+" yes_bid", in.YesBid); err != nil {
		return q, err
	}
	if q.YesAsk, err = parsePrice(in.Ticker+" yes_ask", in.YesAsk); err != nil {
		return q, err
	}
	if q.NoBid, err = parsePrice(in.Ticker+" no_bid", in.NoBid); err != nil {
		return q, err
	}
	if q.NoAsk, err = parsePrice(in.Ticker+" no_ask", in.NoAsk); err != nil {
		return q, err
	}
	return q, nil
}

// EvaluateRequest asks for the opportunities between two markets. An empty
// Kind classifies the pair from the tickers.
type EvaluateRequest struct {
	A          QuoteInput `json:"a"`
	B          QuoteInput `json:"b"`
	Kind       string     `json:"kind,omitempty"`
	Confidence float64    `json:"confidence,omitempty"`
}

type evaluateResponse struct {
	Relationship  relationshipView           `json:"relationship"`
	Opportunities []domain.OpportunityRecord `json:"opportunities"`
}

var evaluableKinds = map[domain.RelationshipKind]bool{
	domain.RelationSubset:   true,
	domain.RelationSuperset: true,
	domain.RelationDisjoint: true,
}

// EvaluateHandler prices a pair of markets on demand.
type EvaluateHandler struct {
	eval   *arbitrage.Evaluator
	lookup QuoteLookup
	logger *slog.Logger
}

// NewEvaluateHandler creates an EvaluateHandler. lookup may be nil, in which
// case every quote must be supplied in the request.
func NewEvaluateHandler(eval *arbitrage.Evaluator, lookup QuoteLookup, logger *slog.Logger) *EvaluateHandler {
	return &EvaluateHandler{eval: eval, lookup: lookup, logger: logHandler(logger, "evaluate")}
}

// Evaluate classifies (or accepts) the relationship and returns the
// fee-net opportunities it yields at the given quotes.
// POST /api/evaluate
func (h *EvaluateHandler) Evaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.A.Ticker == "" || req.B.Ticker == "" {
		writeError(w, http.StatusBadRequest, "a.ticker and b.ticker are required")
		return
	}
	if req.A.Ticker == req.B.Ticker {
		writeError(w, http.StatusBadRequest, "a and b must be different markets")
		return
	}

	rel, status, err := h.relationship(req)
	if err != nil {
		writeError(w, status, err.Error())
		return
	}

	quotes := make(arbitrage.Quotes, 2)
	for _, in := range []QuoteInput{req.A, req.B} {
		q, status, err := h.resolveQuote(r.Context(), in)
		if err != nil {
			writeError(w, status, err.Error())
			return
		}
		quotes[in.Ticker] = q
	}

	opps := h.eval.Evaluate(rel, quotes)
	records := make([]domain.OpportunityRecord, 0, len(opps))
	for _, o := range opps {
		records = append(records, o.Record())
	}
	h.logger.DebugContext(r.Context(), "evaluated pair",
		slog.String("a", req.A.Ticker),
		slog.String("b", req.B.Ticker),
		slog.String("kind", string(rel.Kind)),
		slog.Int("opportunities", len(records)),
	)
	writeJSON(w, http.StatusOK, evaluateResponse{
		Relationship:  viewOf(rel.Record(time.Now().UTC())),
		Opportunities: records,
	})
}

func (h *EvaluateHandler) relationship(req EvaluateRequest) (domain.Relationship, int, error) {
	a, errA := ticker.Parse(req.A.Ticker, "")
	b, errB := ticker.Parse(req.B.Ticker, "")

	if req.Kind == "" {
		if errA != nil {
			return domain.Relationship{}, http.StatusBadRequest, errA
		}
		if errB != nil {
			return domain.Relationship{}, http.StatusBadRequest, errB
		}
		rel, ok := relation.Classify(a, b)
		if !ok {
			return domain.Relationship{}, http.StatusUnprocessableEntity,
				fmt.Errorf("no relationship between %s and %s", a.Ticker, b.Ticker)
		}
		return rel, 0, nil
	}

	kind := domain.RelationshipKind(req.Kind)
	if !evaluableKinds[kind] {
		return domain.Relationship{}, http.StatusBadRequest,
			fmt.Errorf("kind %q cannot be evaluated (want subset, superset or disjoint)", req.Kind)
	}
	conf := req.Confidence
	if conf <= 0 || conf > 1 {
		conf = 1
	}
	return domain.Relationship{
		A:          a,
		B:          b,
		Kind:       kind,
		Confidence: conf,
		Reasoning:  "supplied by request",
	}, 0, nil
}

func (h *EvaluateHandler) resolveQuote(ctx context.Context, in QuoteInput) (arbitrage.Quote, int, error) {
	if in.priced() {
		q, err := in.quote()
		if err != nil {
			return q, http.StatusBadRequest, err
		}
		return q, 0, nil
	}
	if h.lookup == nil {
		return arbitrage.Quote{}, http.StatusBadRequest, fmt.Errorf("%s: no prices supplied", in.Ticker)
	}
	q, err := h.lookup.Quote(ctx, in.Ticker)
	if err != nil {
		h.logger.WarnContext(ctx, "quote lookup failed",
			slog.String("ticker", in.Ticker),
			slog.String("error", err.Error()),
		)
		return q, http.StatusBadGateway, fmt.Errorf("%s: quote unavailable", in.Ticker)
	}
	q.Ticker = in.Ticker
	return q, 0, nil
}
