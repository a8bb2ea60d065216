package market

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"crossarb/internal/exchange"
	"crossarb/internal/models"
	"crossarb/pkg/utils"
)

// bingxServer отдаёт один несжатый снимок на каждую подписку
func bingxServer(t *testing.T) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		frame := `{"code":0,"dataType":"BTC-USDC@depth5","ts":1700000000000,` +
			`"data":{"bids":[["40000.5","0.4"],["39999","1"]],"asks":[["40001","0.3"],["40002","2"]]}}`
		conn.WriteMessage(websocket.TextMessage, []byte(frame))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestPumpOrderBooks_DeliversToAggregator(t *testing.T) {
	cfg := exchange.DefaultFeedConfig()
	cfg.Endpoints = []string{bingxServer(t)}
	cfg.ReconnectDelay = 10 * time.Millisecond
	feed := exchange.NewBingXFeed(cfg, utils.NewNop())

	agg := NewAggregator("BTC-USDC", utils.NewNop())
	got := make(chan *models.OrderBookSnapshot, 1)
	agg.Subscribe(func(s *models.OrderBookSnapshot) {
		select {
		case got <- s:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- PumpOrderBooks(ctx, feed, agg, 5, utils.NewNop()) }()

	select {
	case snap := <-got:
		if snap.Venue != models.VenueBingX {
			t.Errorf("venue = %s", snap.Venue)
		}
		if bid, _ := snap.BestBid(); !bid.Price.Equal(d("40000.5")) {
			t.Errorf("best bid = %s", bid.Price)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no snapshot reached the aggregator")
	}

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("pump returned %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("pump did not stop")
	}
}

func TestPumpOrderBooks_InvalidSymbol(t *testing.T) {
	feed := exchange.NewBingXFeed(exchange.DefaultFeedConfig(), utils.NewNop())
	agg := NewAggregator("BTC USDC!", utils.NewNop())

	if err := PumpOrderBooks(context.Background(), feed, agg, 5, nil); err == nil {
		t.Error("expected subscribe error")
	}
}
