package kalshi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/kalshiarb/internal/crypto"
	"github.com/alanyoungcy/kalshiarb/internal/domain"
	"github.com/alanyoungcy/kalshiarb/internal/orderbook"
	"github.com/gorilla/websocket"
)

func TestWSClientDispatchesBookMessages(t *testing.T) {
	signer := testSigner(t)
	upgrader := websocket.Upgrader{}
	subscribed := make(chan WSSubscribeCmd, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/trade-api/ws/v2" {
			t.Errorf("path = %s", r.URL.Path)
		}
		ts := r.Header.Get(crypto.HeaderAccessTimestamp)
		if err := signer.Verify(ts+"GET/trade-api/ws/v2", r.Header.Get(crypto.HeaderAccessSignature)); err != nil {
			t.Errorf("handshake signature: %v", err)
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		var cmd WSSubscribeCmd
		if err := conn.ReadJSON(&cmd); err != nil {
			t.Errorf("read subscribe: %v", err)
			return
		}
		subscribed <- cmd

		msgs := []string{
			`{"type":"subscribed","id":1,"msg":{"channel":"orderbook_delta","sid":7}}`,
			`{"type":"orderbook_snapshot","sid":7,"seq":1,"msg":{"market_ticker":"KXFED-25DEC-T4.25","yes":[[40,10]],"no":[[58,3]]}}`,
			`{"type":"orderbook_delta","sid":7,"seq":2,"msg":{"market_ticker":"KXFED-25DEC-T4.25","price":41,"delta":5,"side":"yes"}}`,
			`not json`,
		}
		for _, m := range msgs {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(m)); err != nil {
				t.Errorf("write: %v", err)
				return
			}
		}
		// Hold the connection open until the client closes it.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/trade-api/ws/v2"
	c := NewWSClient(wsURL, signer)
	snaps := make(chan orderbook.Snapshot, 1)
	deltas := make(chan orderbook.Delta, 1)
	errs := make(chan error, 4)
	c.OnSnapshot(func(s orderbook.Snapshot) { snaps <- s })
	c.OnDelta(func(d orderbook.Delta) { deltas <- d })
	c.OnError(func(err error) { errs <- err })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Close()
	if err := c.Subscribe(ctx, []string{"KXFED-25DEC-T4.25"}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	select {
	case cmd := <-subscribed:
		if cmd.Cmd != "subscribe" || cmd.Params.Channels[0] != "orderbook_delta" || cmd.Params.Tickers[0] != "KXFED-25DEC-T4.25" {
			t.Fatalf("subscribe cmd = %+v", cmd)
		}
	case <-ctx.Done():
		t.Fatal("no subscribe command received")
	}

	select {
	case s := <-snaps:
		if s.MarketTicker != "KXFED-25DEC-T4.25" || s.Seq == nil || *s.Seq != 1 || *s.SID != 7 {
			t.Fatalf("snapshot = %+v", s)
		}
		if len(s.Yes) != 1 || s.Yes[0] != [2]int64{40, 10} {
			t.Fatalf("snapshot yes = %v", s.Yes)
		}
	case <-ctx.Done():
		t.Fatal("no snapshot received")
	}

	select {
	case d := <-deltas:
		if d.PriceCents != 41 || d.Delta != 5 || d.Side != domain.PositionYes || *d.Seq != 2 {
			t.Fatalf("delta = %+v", d)
		}
	case <-ctx.Done():
		t.Fatal("no delta received")
	}

	select {
	case err := <-errs:
		if !errors.Is(err, domain.ErrInvalidMessage) {
			t.Fatalf("err = %v, want ErrInvalidMessage", err)
		}
	case <-ctx.Done():
		t.Fatal("no decode error reported")
	}
}

func TestWSSubscribeRequiresConnection(t *testing.T) {
	c := NewWSClient("ws://127.0.0.1:1/trade-api/ws/v2", nil)
	if err := c.Subscribe(context.Background(), []string{"X"}); err == nil {
		t.Fatal("expected error when not connected")
	}
}
