package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// ============ OrderBookSnapshot Tests ============

func TestOrderBookSnapshot_BestPrices(t *testing.T) {
	snap := &OrderBookSnapshot{
		Venue:  VenueMEXC,
		Symbol: "BTC-USDC",
		Bids:   []PriceLevel{{Price: d("40000"), Size: d("1")}, {Price: d("39990"), Size: d("2")}},
		Asks:   []PriceLevel{{Price: d("40010"), Size: d("0.5")}},
	}

	bid, ok := snap.BestBid()
	if !ok || !bid.Price.Equal(d("40000")) {
		t.Errorf("BestBid = %v/%v, want 40000", bid.Price, ok)
	}
	ask, ok := snap.BestAsk()
	if !ok || !ask.Price.Equal(d("40010")) {
		t.Errorf("BestAsk = %v/%v, want 40010", ask.Price, ok)
	}
	mid, ok := snap.MidPrice()
	if !ok || !mid.Equal(d("40005")) {
		t.Errorf("MidPrice = %v, want 40005", mid)
	}
	if !snap.IsTradable() {
		t.Error("snapshot with both sides should be tradable")
	}
}

func TestOrderBookSnapshot_EmptySides(t *testing.T) {
	tests := []struct {
		name string
		snap *OrderBookSnapshot
	}{
		{"nil snapshot", nil},
		{"no bids", &OrderBookSnapshot{Asks: []PriceLevel{{Price: d("1"), Size: d("1")}}}},
		{"no asks", &OrderBookSnapshot{Bids: []PriceLevel{{Price: d("1"), Size: d("1")}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.snap.IsTradable() {
				t.Error("expected not tradable")
			}
			if _, ok := tt.snap.MidPrice(); ok {
				t.Error("MidPrice should be absent")
			}
		})
	}
}

// ============ Status Tests ============

func TestOrderStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status OrderStatus
		want   bool
	}{
		{OrderStatusPending, false},
		{OrderStatusSubmitted, false},
		{OrderStatusPartial, false},
		{OrderStatusFilled, true},
		{OrderStatusCancelled, true},
		{OrderStatusFailed, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.IsTerminal(); got != tt.want {
				t.Errorf("IsTerminal() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExecutionStatus_IsTerminal(t *testing.T) {
	terminal := map[ExecutionStatus]bool{
		ExecIdle:       false,
		ExecValidating: false,
		ExecReconfirm:  false,
		ExecBothLegs:   false,
		ExecAwaitFills: false,
		ExecSuccess:    true,
		ExecPartial:    true,
		ExecFailed:     true,
		ExecAborted:    true,
	}

	for status, want := range terminal {
		if got := status.IsTerminal(); got != want {
			t.Errorf("%s.IsTerminal() = %v, want %v", status, got, want)
		}
	}
}

// ============ TradeOrder Tests ============

func TestTradeOrder_HasFill(t *testing.T) {
	var nilOrder *TradeOrder
	if nilOrder.HasFill() {
		t.Error("nil order has no fill")
	}
	o := &TradeOrder{FilledAmount: d("0")}
	if o.HasFill() {
		t.Error("zero filled amount is not a fill")
	}
	o.FilledAmount = d("0.0001")
	if !o.HasFill() {
		t.Error("positive filled amount is a fill")
	}
}

func TestTradeOrder_JSONFieldNames(t *testing.T) {
	price := d("40000")
	o := TradeOrder{
		Venue:      VenueBingX,
		Symbol:     "BTC-USDC",
		Side:       SideBuy,
		Kind:       OrderKindLimit,
		LimitPrice: &price,
		Amount:     d("0.01"),
		Status:     OrderStatusSubmitted,
	}

	data, err := json.Marshal(o)
	if err != nil {
		t.Fatalf("ошибка сериализации: %v", err)
	}

	for _, field := range []string{`"venue":"bingx"`, `"kind":"limit"`, `"limit_price":"40000"`, `"status":"submitted"`} {
		if !strings.Contains(string(data), field) {
			t.Errorf("поле %s не найдено в %s", field, data)
		}
	}
	if strings.Contains(string(data), "average_price") {
		t.Error("average_price должен опускаться при nil")
	}
}

// ============ Execution / Notification Tests ============

func TestOpportunity_Direction(t *testing.T) {
	o := ArbitrageOpportunity{BuyVenue: VenueMEXC, SellVenue: VenueBingX}
	if o.Direction() != "mexc_to_bingx" {
		t.Errorf("Direction = %s", o.Direction())
	}
}

func TestSeverityForStatus(t *testing.T) {
	tests := []struct {
		status ExecutionStatus
		want   string
	}{
		{ExecSuccess, SeverityInfo},
		{ExecAborted, SeverityWarn},
		{ExecFailed, SeverityError},
		{ExecPartial, SeverityCritical},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := SeverityForStatus(tt.status); got != tt.want {
				t.Errorf("SeverityForStatus(%s) = %s, want %s", tt.status, got, tt.want)
			}
		})
	}
}

func TestNotificationForExecution(t *testing.T) {
	done := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	actual := d("480")
	exec := &ArbitrageExecution{
		ID:             "exec-1",
		Opportunity:    ArbitrageOpportunity{BuyVenue: VenueMEXC, SellVenue: VenueBingX, Volume: d("1")},
		ExpectedProfit: d("500"),
		ActualProfit:   &actual,
		Status:         ExecPartial,
		Reason:         "sell leg rejected",
		CompletedAt:    &done,
	}

	n := NotificationForExecution(exec)
	if n.Type != NotificationTypePartial {
		t.Errorf("Type = %s, want %s", n.Type, NotificationTypePartial)
	}
	if n.Severity != SeverityCritical {
		t.Errorf("Severity = %s, want critical", n.Severity)
	}
	if !n.Timestamp.Equal(done) {
		t.Errorf("Timestamp = %v, want %v", n.Timestamp, done)
	}
	if n.Meta["actual_profit"] != "480" || n.Meta["direction"] != "mexc_to_bingx" {
		t.Errorf("unexpected meta: %v", n.Meta)
	}
}

func TestStats_Derived(t *testing.T) {
	s := Stats{
		Successful:     3,
		Partial:        1,
		Failed:         2,
		Aborted:        4,
		ExpectedProfit: d("100"),
		ActualProfit:   d("92.5"),
	}
	if s.Attempts() != 10 {
		t.Errorf("Attempts = %d, want 10", s.Attempts())
	}
	if !s.ProfitBias().Equal(d("-7.5")) {
		t.Errorf("ProfitBias = %s, want -7.5", s.ProfitBias())
	}
}
