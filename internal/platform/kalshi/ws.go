package kalshi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/alanyoungcy/kalshiarb/internal/crypto"
	"github.com/alanyoungcy/kalshiarb/internal/domain"
	"github.com/alanyoungcy/kalshiarb/internal/orderbook"
	"github.com/gorilla/websocket"
)

const (
	// kalshiWriteWait is the time allowed to write a message to the peer.
	kalshiWriteWait = 10 * time.Second

	// kalshiPongWait is the time allowed to read the next pong message.
	kalshiPongWait = 30 * time.Second

	// kalshiPingPeriod sends pings at this interval. Must be less than pongWait.
	kalshiPingPeriod = (kalshiPongWait * 9) / 10

	// kalshiReconnectDelay is the base delay before attempting to reconnect.
	kalshiReconnectDelay = 2 * time.Second

	// kalshiMaxReconnectDelay caps the exponential backoff.
	kalshiMaxReconnectDelay = 60 * time.Second

	channelOrderbookDelta = "orderbook_delta"
)

// SnapshotHandler is called for every orderbook_snapshot message.
type SnapshotHandler func(orderbook.Snapshot)

// DeltaHandler is called for every orderbook_delta message.
type DeltaHandler func(orderbook.Delta)

// ErrorHandler is called for undecodable messages, server errors and
// disconnects.
type ErrorHandler func(error)

// WSClient is a WebSocket client for real-time Kalshi order book data.
type WSClient struct {
	wsURL  string
	signer *crypto.RequestSigner

	mu      sync.RWMutex
	conn    *websocket.Conn
	writeMu sync.Mutex
	closed  bool

	// Tracked subscriptions for reconnection.
	subscribedTickers []string
	cmdID             int64

	handlerMu        sync.RWMutex
	snapshotHandlers []SnapshotHandler
	deltaHandlers    []DeltaHandler
	errorHandlers    []ErrorHandler

	// done is closed when the client shuts down.
	done chan struct{}
}

// NewWSClient creates a new Kalshi WebSocket client.
//
// wsURL is the WebSocket endpoint, e.g. "wss://api.elections.kalshi.com/trade-api/ws/v2".
// The handshake is signed when signer is not nil.
func NewWSClient(wsURL string, signer *crypto.RequestSigner) *WSClient {
	return &WSClient{
		wsURL:  wsURL,
		signer: signer,
		done:   make(chan struct{}),
	}
}

// Connect establishes a WebSocket connection and restores any previous
// subscriptions.
func (w *WSClient) Connect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("kalshi/ws: client is closed")
	}

	header, err := w.handshakeHeader()
	if err != nil {
		return fmt.Errorf("kalshi/ws: %w", err)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 15 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, w.wsURL, header)
	if err != nil {
		return fmt.Errorf("kalshi/ws: connect: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(kalshiPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(kalshiPongWait))
	})
	w.conn = conn

	go w.readLoop(conn)
	go w.pingLoop(conn)

	if len(w.subscribedTickers) > 0 {
		if err := w.sendSubscribe(w.subscribedTickers); err != nil {
			return fmt.Errorf("kalshi/ws: restore subscriptions: %w", err)
		}
	}
	return nil
}

func (w *WSClient) handshakeHeader() (http.Header, error) {
	if w.signer == nil {
		return nil, nil
	}
	u, err := url.Parse(w.wsURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	return w.signer.Headers(http.MethodGet, u.Path)
}

// Subscribe subscribes to order book updates for the given market tickers.
func (w *WSClient) Subscribe(ctx context.Context, tickers []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		return fmt.Errorf("kalshi/ws: not connected")
	}

	if err := w.sendSubscribe(tickers); err != nil {
		return fmt.Errorf("kalshi/ws: subscribe: %w", err)
	}

	existing := make(map[string]struct{}, len(w.subscribedTickers))
	for _, t := range w.subscribedTickers {
		existing[t] = struct{}{}
	}
	for _, t := range tickers {
		if _, ok := existing[t]; !ok {
			w.subscribedTickers = append(w.subscribedTickers, t)
		}
	}
	return nil
}

// OnSnapshot registers a handler for order book snapshots.
func (w *WSClient) OnSnapshot(h SnapshotHandler) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.snapshotHandlers = append(w.snapshotHandlers, h)
}

// OnDelta registers a handler for order book deltas.
func (w *WSClient) OnDelta(h DeltaHandler) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.deltaHandlers = append(w.deltaHandlers, h)
}

// OnError registers a handler for stream faults.
func (w *WSClient) OnError(h ErrorHandler) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.errorHandlers = append(w.errorHandlers, h)
}

// Done is closed once Close has been called.
func (w *WSClient) Done() <-chan struct{} { return w.done }

// Close shuts down the WebSocket connection.
func (w *WSClient) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	close(w.done)

	if w.conn != nil {
		w.writeMu.Lock()
		_ = w.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		w.writeMu.Unlock()
		return w.conn.Close()
	}
	return nil
}

// --------------------------------------------------------------------------
// Internal methods
// --------------------------------------------------------------------------

// sendSubscribe sends a subscribe command. Caller must hold w.mu.
func (w *WSClient) sendSubscribe(tickers []string) error {
	w.cmdID++

	cmd := WSSubscribeCmd{
		ID:  w.cmdID,
		Cmd: "subscribe",
		Params: WSSubscribeParams{
			Channels: []string{channelOrderbookDelta},
			Tickers:  tickers,
		},
	}
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal subscribe: %w", err)
	}
	return w.write(w.conn, websocket.TextMessage, data)
}

func (w *WSClient) write(conn *websocket.Conn, messageType int, data []byte) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(kalshiWriteWait))
	return conn.WriteMessage(messageType, data)
}

// readLoop reads messages from conn and dispatches them to handlers. On
// disconnect it attempts reconnection.
func (w *WSClient) readLoop(conn *websocket.Conn) {
	defer conn.Close()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-w.done:
				return
			default:
			}
			w.emitError(fmt.Errorf("kalshi/ws: read: %v: %w", err, domain.ErrWSDisconnect))
			go w.reconnect()
			return
		}
		w.handleMessage(message)
	}
}

// pingLoop sends periodic pings to keep conn alive.
func (w *WSClient) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(kalshiPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			if err := w.write(conn, websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage parses a raw WebSocket message and routes it.
func (w *WSClient) handleMessage(raw []byte) {
	var env WSMessage
	if err := json.Unmarshal(raw, &env); err != nil {
		w.emitError(fmt.Errorf("kalshi/ws: decode envelope: %v: %w", err, domain.ErrInvalidMessage))
		return
	}

	switch env.Type {
	case WSTypeSnapshot:
		var body WSSnapshot
		if err := json.Unmarshal(env.Msg, &body); err != nil {
			w.emitError(fmt.Errorf("kalshi/ws: decode snapshot: %v: %w", err, domain.ErrInvalidMessage))
			return
		}
		snap := body.ToSnapshot(env)
		w.handlerMu.RLock()
		handlers := w.snapshotHandlers
		w.handlerMu.RUnlock()
		for _, h := range handlers {
			h(snap)
		}
	case WSTypeDelta:
		var body WSDelta
		if err := json.Unmarshal(env.Msg, &body); err != nil {
			w.emitError(fmt.Errorf("kalshi/ws: decode delta: %v: %w", err, domain.ErrInvalidMessage))
			return
		}
		delta := body.ToDelta(env)
		w.handlerMu.RLock()
		handlers := w.deltaHandlers
		w.handlerMu.RUnlock()
		for _, h := range handlers {
			h(delta)
		}
	case WSTypeError:
		var body WSError
		_ = json.Unmarshal(env.Msg, &body)
		w.emitError(fmt.Errorf("kalshi/ws: server error %d: %s", body.Code, body.Msg))
	}
}

func (w *WSClient) emitError(err error) {
	w.handlerMu.RLock()
	handlers := w.errorHandlers
	w.handlerMu.RUnlock()
	for _, h := range handlers {
		h(err)
	}
}

// reconnect attempts to re-establish the WebSocket connection with
// exponential backoff.
func (w *WSClient) reconnect() {
	delay := kalshiReconnectDelay

	for {
		select {
		case <-w.done:
			return
		case <-time.After(delay):
		}

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := w.Connect(ctx)
		cancel()
		if err == nil {
			return
		}
		w.emitError(err)

		delay *= 2
		if delay > kalshiMaxReconnectDelay {
			delay = kalshiMaxReconnectDelay
		}
	}
}
