package market_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/stockquest/stockquest/internal/market"
	"github.com/stockquest/stockquest/internal/metrics"
)

func TestTick_BroadcastReportsMarketClosed(t *testing.T) {
	hub := market.NewHub()
	go hub.Run()
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	// Sunday, well outside the trading window.
	p := market.NewProvider(hub, 1, func() time.Time {
		return time.Date(2025, 6, 8, 10, 0, 0, 0, time.UTC)
	})

	before := testutil.ToFloat64(metrics.WebSocketClients)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	// Wait for the hub to register the client before broadcasting.
	deadline := time.Now().Add(5 * time.Second)
	for testutil.ToFloat64(metrics.WebSocketClients) <= before {
		if time.Now().After(deadline) {
			t.Fatal("client never registered with the hub")
		}
		time.Sleep(10 * time.Millisecond)
	}

	p.Tick()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read broadcast failed: %v", err)
	}
	var msg market.WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("bad broadcast payload: %v", err)
	}

	if msg.Type != "quote_update" {
		t.Errorf("expected a quote_update, got %q", msg.Type)
	}
	if msg.MarketOpen {
		t.Error("a tick outside trading hours must report the market closed")
	}
}
