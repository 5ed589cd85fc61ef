package kalshi

import (
	"encoding/json"
	"time"

	"github.com/alanyoungcy/kalshiarb/internal/arbitrage"
	"github.com/alanyoungcy/kalshiarb/internal/domain"
	"github.com/alanyoungcy/kalshiarb/internal/orderbook"
	"github.com/alanyoungcy/kalshiarb/internal/ticker"
	"github.com/shopspring/decimal"
)

// --------------------------------------------------------------------------
// REST DTOs
// --------------------------------------------------------------------------

// Market represents a market as returned by the REST API. Prices are cents;
// zero means there is no quote on that side.
type Market struct {
	Ticker       string `json:"ticker"`
	EventTicker  string `json:"event_ticker"`
	Title        string `json:"title"`
	Subtitle     string `json:"subtitle"`
	Status       string `json:"status"` // "initialized", "active", "closed", "settled"
	YesBid       int64  `json:"yes_bid"`
	YesAsk       int64  `json:"yes_ask"`
	NoBid        int64  `json:"no_bid"`
	NoAsk        int64  `json:"no_ask"`
	LastPrice    int64  `json:"last_price"`
	Volume       int64  `json:"volume"`
	Volume24H    int64  `json:"volume_24h"`
	OpenInterest int64  `json:"open_interest"`
	Liquidity    int64  `json:"liquidity"`
	StrikeType   string `json:"strike_type"`
	OpenTime     string `json:"open_time"`
	CloseTime    string `json:"close_time"`
	Result       string `json:"result"`
}

// Descriptor parses the market ticker into its structured form.
func (m Market) Descriptor() (domain.MarketDescriptor, error) {
	return ticker.Parse(m.Ticker, m.Title)
}

// Quote converts the REST top of book into an evaluator quote. Depth is
// unknown.
func (m Market) Quote() arbitrage.Quote {
	return arbitrage.Quote{
		Ticker: m.Ticker,
		YesBid: cents(m.YesBid),
		YesAsk: cents(m.YesAsk),
		NoBid:  cents(m.NoBid),
		NoAsk:  cents(m.NoAsk),
	}
}

func cents(c int64) decimal.NullDecimal {
	if c <= 0 || c >= 100 {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(decimal.New(c, -2))
}

// MarketsParams filters GET /markets.
type MarketsParams struct {
	Limit        int
	Cursor       string
	EventTicker  string
	SeriesTicker string
	Status       string
	Tickers      []string
}

// MarketsPage is one page of GET /markets.
type MarketsPage struct {
	Markets []Market `json:"markets"`
	Cursor  string   `json:"cursor"`
}

// Event groups the markets of one event.
type Event struct {
	EventTicker  string   `json:"event_ticker"`
	SeriesTicker string   `json:"series_ticker"`
	Title        string   `json:"title"`
	SubTitle     string   `json:"sub_title"`
	Category     string   `json:"category"`
	Markets      []Market `json:"markets,omitempty"`
}

// EventsParams filters GET /events.
type EventsParams struct {
	Limit             int
	Cursor            string
	Status            string
	SeriesTicker      string
	WithNestedMarkets bool
}

// EventsPage is one page of GET /events.
type EventsPage struct {
	Events []Event `json:"events"`
	Cursor string  `json:"cursor"`
}

// Orderbook is the REST order book of one market: [price_cents, quantity]
// pairs per side.
type Orderbook struct {
	Ticker string     `json:"-"`
	Yes    [][2]int64 `json:"yes"`
	No     [][2]int64 `json:"no"`
}

// Snapshot converts the REST book into a feed snapshot.
func (o Orderbook) Snapshot() orderbook.Snapshot {
	return orderbook.Snapshot{
		Type:         orderbook.TypeSnapshot,
		MarketTicker: o.Ticker,
		Yes:          o.Yes,
		No:           o.No,
	}
}

// ErrorResponse represents an API error body.
type ErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e ErrorResponse) text() string {
	code, msg := e.Code, e.Message
	if code == "" && msg == "" {
		code, msg = e.Error.Code, e.Error.Message
	}
	return msg + " (" + code + ")"
}

// --------------------------------------------------------------------------
// WebSocket DTOs
// --------------------------------------------------------------------------

// WS message types.
const (
	WSTypeSnapshot   = orderbook.TypeSnapshot
	WSTypeDelta      = orderbook.TypeDelta
	WSTypeSubscribed = "subscribed"
	WSTypeError      = "error"
)

// WSMessage is the envelope for WebSocket messages. Sequence numbers are per
// subscription.
type WSMessage struct {
	Type string          `json:"type"`
	SID  *int64          `json:"sid,omitempty"`
	Seq  *int64          `json:"seq,omitempty"`
	ID   int64           `json:"id,omitempty"`
	Msg  json.RawMessage `json:"msg"`
}

// WSSnapshot is the body of an orderbook_snapshot message.
type WSSnapshot struct {
	MarketTicker string     `json:"market_ticker"`
	Yes          [][2]int64 `json:"yes"`
	No           [][2]int64 `json:"no"`
}

// WSDelta is the body of an orderbook_delta message.
type WSDelta struct {
	MarketTicker string              `json:"market_ticker"`
	Price        int64               `json:"price"`
	Delta        int64               `json:"delta"`
	Side         domain.PositionSide `json:"side"`
	TS           string              `json:"ts,omitempty"`
}

// WSError is the body of an error message.
type WSError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// WSSubscribeCmd is the command sent to subscribe to channels.
type WSSubscribeCmd struct {
	ID     int64             `json:"id"`
	Cmd    string            `json:"cmd"` // "subscribe" or "unsubscribe"
	Params WSSubscribeParams `json:"params"`
}

// WSSubscribeParams defines the subscription parameters.
type WSSubscribeParams struct {
	Channels []string `json:"channels"`
	Tickers  []string `json:"market_tickers,omitempty"`
}

// ToSnapshot attaches the envelope sequencing to the body.
func (s WSSnapshot) ToSnapshot(env WSMessage) orderbook.Snapshot {
	return orderbook.Snapshot{
		Type:         orderbook.TypeSnapshot,
		MarketTicker: s.MarketTicker,
		SID:          env.SID,
		Seq:          env.Seq,
		Yes:          s.Yes,
		No:           s.No,
	}
}

// ToDelta attaches the envelope sequencing to the body.
func (d WSDelta) ToDelta(env WSMessage) orderbook.Delta {
	return orderbook.Delta{
		Type:         orderbook.TypeDelta,
		MarketTicker: d.MarketTicker,
		PriceCents:   d.Price,
		Delta:        d.Delta,
		Side:         d.Side,
		SID:          env.SID,
		Seq:          env.Seq,
	}
}

// ParseTime parses an API timestamp; the zero time is returned on failure.
func ParseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
