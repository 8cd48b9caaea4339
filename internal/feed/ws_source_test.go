package feed

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hedgeworks/crossarb/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// pairJSON is a valid two-outcome matcher message. Kalshi quotes 47/51 and
// Polymarket 52/49; after per-venue normalization the away side reads 48 and
// 51, the home side 52 and 49.
const pairJSON = `{
	"away": {"code": "DET", "name": "Detroit Pistons", "quotes": [
		{"venue": "kalshi", "raw_price": 47, "market_id": "T-DET"},
		{"venue": "polymarket", "raw_price": 52, "market_id": "mkt-1"}
	]},
	"home": {"code": "NYK", "name": "New York Knicks", "quotes": [
		{"venue": "kalshi", "raw_price": 51, "market_id": "T-NYK"},
		{"venue": "polymarket", "raw_price": 49, "market_id": "mkt-1"}
	]}
}`

func quoteAt(t *testing.T, o domain.Outcome, v domain.Venue) float64 {
	t.Helper()
	q, ok := o.Quote(v)
	if !ok {
		t.Fatalf("no quote for venue %s", v)
	}
	return q.RawPrice
}

func TestDecodePairNormalizesPerVenue(t *testing.T) {
	pair, err := DecodePair([]byte(pairJSON))
	if err != nil {
		t.Fatalf("DecodePair: %v", err)
	}

	if got := pair.ID(); got != "DET@NYK" {
		t.Errorf("ID = %q, want DET@NYK", got)
	}
	if got := quoteAt(t, pair.Away, domain.VenueKalshi); got != 48 {
		t.Errorf("away kalshi = %v, want 48", got)
	}
	if got := quoteAt(t, pair.Home, domain.VenueKalshi); got != 52 {
		t.Errorf("home kalshi = %v, want 52", got)
	}
	if got := quoteAt(t, pair.Away, domain.VenuePolymarket); got != 51 {
		t.Errorf("away polymarket = %v, want 51", got)
	}
	if got := quoteAt(t, pair.Home, domain.VenuePolymarket); got != 49 {
		t.Errorf("home polymarket = %v, want 49", got)
	}
	if pair.CapturedAt.IsZero() {
		t.Error("CapturedAt not stamped")
	}
}

func TestDecodePairKeepsDrawPricesRaw(t *testing.T) {
	drawJSON := strings.Replace(pairJSON, `"away"`, `"has_draw": true, "away"`, 1)

	pair, err := DecodePair([]byte(drawJSON))
	if err != nil {
		t.Fatalf("DecodePair: %v", err)
	}
	if got := quoteAt(t, pair.Away, domain.VenueKalshi); got != 47 {
		t.Errorf("away kalshi = %v, want raw 47", got)
	}
	if got := quoteAt(t, pair.Home, domain.VenuePolymarket); got != 49 {
		t.Errorf("home polymarket = %v, want raw 49", got)
	}
}

func TestDecodePairRejects(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"invalid json", `{"away": `},
		{"missing outcome code", strings.ReplaceAll(pairJSON, `"DET"`, `""`)},
		{"missing market id", strings.ReplaceAll(pairJSON, `"T-DET"`, `""`)},
		{"negative price", strings.Replace(pairJSON, `"raw_price": 47`, `"raw_price": -1`, 1)},
		{"dead venue quotes", strings.NewReplacer(
			`"raw_price": 47`, `"raw_price": 0`,
			`"raw_price": 51`, `"raw_price": 0`,
		).Replace(pairJSON)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodePair([]byte(tt.data)); err == nil {
				t.Error("DecodePair accepted a bad message")
			}
		})
	}
}

// wsServer upgrades each connection and hands it to serve, counting
// connections as they arrive.
func wsServer(t *testing.T, serve func(n int, conn *websocket.Conn)) string {
	t.Helper()

	var (
		mu sync.Mutex
		n  int
	)
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		mu.Lock()
		n++
		cn := n
		mu.Unlock()
		serve(cn, conn)
		conn.Close()
	}))
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func recvPair(t *testing.T, out <-chan domain.OutcomePair) domain.OutcomePair {
	t.Helper()
	select {
	case pair := <-out:
		return pair
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for pair")
		return domain.OutcomePair{}
	}
}

func TestWSSourceDeliversPairs(t *testing.T) {
	url := wsServer(t, func(n int, conn *websocket.Conn) {
		// One garbage frame, then a real pair; the bad one must be dropped.
		conn.WriteMessage(websocket.TextMessage, []byte(`{"away": }`))
		conn.WriteMessage(websocket.TextMessage, []byte(pairJSON))
		// Hold the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := NewWSSource(url, testLogger())
	out := make(chan domain.OutcomePair)

	errc := make(chan error, 1)
	go func() { errc <- src.Run(ctx, out) }()

	pair := recvPair(t, out)
	if pair.ID() != "DET@NYK" {
		t.Errorf("pair ID = %q, want DET@NYK", pair.ID())
	}

	cancel()
	select {
	case err := <-errc:
		if err != context.Canceled {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestWSSourceReconnects(t *testing.T) {
	url := wsServer(t, func(n int, conn *websocket.Conn) {
		conn.WriteMessage(websocket.TextMessage, []byte(pairJSON))
		if n == 1 {
			return // drop the first connection right after one pair
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := NewWSSource(url, testLogger())
	src.SetReconnectDelay(10*time.Millisecond, 50*time.Millisecond)
	out := make(chan domain.OutcomePair)

	go func() { src.Run(ctx, out) }()

	first := recvPair(t, out)
	second := recvPair(t, out)
	if first.ID() != second.ID() {
		t.Errorf("pair IDs differ across reconnect: %q vs %q", first.ID(), second.ID())
	}
}
