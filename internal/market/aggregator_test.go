package market

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"crossarb/internal/models"
	"crossarb/pkg/utils"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func lvl(price, size string) models.PriceLevel {
	return models.PriceLevel{Price: d(price), Size: d(size)}
}

func book(venue models.Venue, bids, asks []models.PriceLevel) *models.OrderBookSnapshot {
	return &models.OrderBookSnapshot{
		Venue:      venue,
		Symbol:     "BTC-USDC",
		Bids:       bids,
		Asks:       asks,
		ObservedAt: time.Now(),
	}
}

// ============ Update / Get ============

func TestAggregator_UpdateAndGet(t *testing.T) {
	agg := NewAggregator("BTC-USDC", utils.NewNop())

	if _, ok := agg.Get(models.VenueMEXC); ok {
		t.Fatal("empty aggregator must return absent")
	}

	first := book(models.VenueMEXC, []models.PriceLevel{lvl("100", "1")}, []models.PriceLevel{lvl("101", "1")})
	second := book(models.VenueMEXC, []models.PriceLevel{lvl("102", "1")}, []models.PriceLevel{lvl("103", "1")})

	if err := agg.Update(models.VenueMEXC, first); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := agg.Update(models.VenueMEXC, second); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, ok := agg.Get(models.VenueMEXC)
	if !ok || got != second {
		t.Error("latest snapshot must win")
	}
	if agg.UpdateCount() != 2 {
		t.Errorf("UpdateCount = %d", agg.UpdateCount())
	}
}

func TestAggregator_RejectsForeignSnapshots(t *testing.T) {
	agg := NewAggregator("BTC-USDC", utils.NewNop())

	tests := []struct {
		name  string
		venue models.Venue
		snap  *models.OrderBookSnapshot
	}{
		{"nil", models.VenueMEXC, nil},
		{"venue mismatch", models.VenueBingX, book(models.VenueMEXC, nil, nil)},
		{"symbol mismatch", models.VenueMEXC, &models.OrderBookSnapshot{Venue: models.VenueMEXC, Symbol: "ETH-USDC"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := agg.Update(tt.venue, tt.snap); err == nil {
				t.Error("expected rejection")
			}
		})
	}
	if agg.RejectedCount() != 3 {
		t.Errorf("RejectedCount = %d", agg.RejectedCount())
	}

	// BTCUSDC и BTC-USDC один инструмент
	snap := book(models.VenueMEXC, []models.PriceLevel{lvl("1", "1")}, []models.PriceLevel{lvl("2", "1")})
	snap.Symbol = "BTCUSDC"
	if err := agg.Update(models.VenueMEXC, snap); err != nil {
		t.Errorf("normalized symbol rejected: %v", err)
	}
}

func TestAggregator_SpreadBetween(t *testing.T) {
	agg := NewAggregator("BTC-USDC", utils.NewNop())
	agg.Update(models.VenueMEXC, book(models.VenueMEXC,
		[]models.PriceLevel{lvl("39990", "1")}, []models.PriceLevel{lvl("40000", "1")}))

	if _, ok := agg.SpreadBetween(models.VenueMEXC, models.VenueBingX); ok {
		t.Error("spread with a missing venue must be absent")
	}

	agg.Update(models.VenueBingX, book(models.VenueBingX,
		[]models.PriceLevel{lvl("40500", "1")}, []models.PriceLevel{lvl("40510", "1")}))

	spread, ok := agg.SpreadBetween(models.VenueMEXC, models.VenueBingX)
	if !ok || !spread.Equal(d("500")) {
		t.Errorf("spread = %s/%v, want 500", spread, ok)
	}
	reverse, ok := agg.SpreadBetween(models.VenueBingX, models.VenueMEXC)
	if !ok || !reverse.Equal(d("-520")) {
		t.Errorf("reverse spread = %s, want -520", reverse)
	}

	// пустая сторона
	agg.Update(models.VenueBingX, book(models.VenueBingX, nil, []models.PriceLevel{lvl("40510", "1")}))
	if _, ok := agg.SpreadBetween(models.VenueMEXC, models.VenueBingX); ok {
		t.Error("spread with empty bid side must be absent")
	}
}

// ============ Подписчики ============

func TestAggregator_ListenerPanicDoesNotAbortUpdate(t *testing.T) {
	agg := NewAggregator("BTC-USDC", utils.NewNop())

	var seen int32
	agg.Subscribe(func(*models.OrderBookSnapshot) { panic("boom") })
	agg.Subscribe(func(snap *models.OrderBookSnapshot) {
		// снимок уже зафиксирован к моменту оповещения
		if got, ok := agg.Get(snap.Venue); !ok || got != snap {
			t.Error("listener observed uncommitted state")
		}
		atomic.AddInt32(&seen, 1)
	})

	snap := book(models.VenueMEXC, []models.PriceLevel{lvl("1", "1")}, []models.PriceLevel{lvl("2", "1")})
	if err := agg.Update(models.VenueMEXC, snap); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if atomic.LoadInt32(&seen) != 1 {
		t.Error("second listener must still be notified")
	}
	if agg.ListenerPanics() != 1 {
		t.Errorf("ListenerPanics = %d", agg.ListenerPanics())
	}
}

func TestAggregator_Unsubscribe(t *testing.T) {
	agg := NewAggregator("BTC-USDC", utils.NewNop())

	var calls int32
	id := agg.Subscribe(func(*models.OrderBookSnapshot) { atomic.AddInt32(&calls, 1) })

	snap := book(models.VenueMEXC, []models.PriceLevel{lvl("1", "1")}, []models.PriceLevel{lvl("2", "1")})
	agg.Update(models.VenueMEXC, snap)

	if !agg.Unsubscribe(id) {
		t.Fatal("Unsubscribe returned false")
	}
	if agg.Unsubscribe(id) {
		t.Error("second Unsubscribe must return false")
	}
	agg.Update(models.VenueMEXC, snap)

	if calls != 1 {
		t.Errorf("listener called %d times, want 1", calls)
	}
}

func TestAggregator_ConcurrentUpdatesAreSerialized(t *testing.T) {
	agg := NewAggregator("BTC-USDC", utils.NewNop())

	var inFlight, maxInFlight int32
	agg.Subscribe(func(*models.OrderBookSnapshot) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			cur := atomic.LoadInt32(&maxInFlight)
			if n <= cur || atomic.CompareAndSwapInt32(&maxInFlight, cur, n) {
				break
			}
		}
		time.Sleep(100 * time.Microsecond)
		atomic.AddInt32(&inFlight, -1)
	})

	var wg sync.WaitGroup
	for _, venue := range []models.Venue{models.VenueMEXC, models.VenueBingX} {
		wg.Add(1)
		go func(v models.Venue) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				agg.Update(v, book(v, []models.PriceLevel{lvl("1", "1")}, []models.PriceLevel{lvl("2", "1")}))
				agg.Get(v)
				agg.SpreadBetween(models.VenueMEXC, models.VenueBingX)
			}
		}(venue)
	}
	wg.Wait()

	if maxInFlight != 1 {
		t.Errorf("notification phases overlapped: max in flight %d", maxInFlight)
	}
	if agg.UpdateCount() != 400 {
		t.Errorf("UpdateCount = %d, want 400", agg.UpdateCount())
	}
}

func TestAggregator_LastTrade(t *testing.T) {
	agg := NewAggregator("BTC-USDC", utils.NewNop())
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	agg.RecordTrades(models.VenueMEXC, []models.TradeTick{
		{Price: d("2"), ExecutedAt: base.Add(2 * time.Second)},
		{Price: d("1"), ExecutedAt: base.Add(time.Second)},
	})
	tick, ok := agg.LastTrade(models.VenueMEXC)
	if !ok || !tick.Price.Equal(d("2")) {
		t.Errorf("LastTrade = %v/%v", tick.Price, ok)
	}
	if _, ok := agg.LastTrade(models.VenueBingX); ok {
		t.Error("no trades recorded for bingx")
	}
}
