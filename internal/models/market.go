package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Venue идентификатор площадки
type Venue string

const (
	VenueMEXC  Venue = "mexc"
	VenueBingX Venue = "bingx"
)

func (v Venue) String() string { return string(v) }

// Side сторона сделки/ордера
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// PriceLevel уровень стакана (цена + объём). Оба поля >= 0.
type PriceLevel struct {
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"`
}

// OrderBookSnapshot полный снимок top-N стакана одной площадки.
//
// Bids отсортированы по убыванию цены, Asks по возрастанию.
// Снимок заменяет предыдущий целиком, после публикации в агрегатор
// не изменяется.
type OrderBookSnapshot struct {
	Venue      Venue        `json:"venue"`
	Symbol     string       `json:"symbol"`
	Bids       []PriceLevel `json:"bids"`
	Asks       []PriceLevel `json:"asks"`
	SequenceID int64        `json:"sequence_id"`
	ObservedAt time.Time    `json:"observed_at"`
}

// BestBid лучшая цена покупки
func (s *OrderBookSnapshot) BestBid() (PriceLevel, bool) {
	if s == nil || len(s.Bids) == 0 {
		return PriceLevel{}, false
	}
	return s.Bids[0], true
}

// BestAsk лучшая цена продажи
func (s *OrderBookSnapshot) BestAsk() (PriceLevel, bool) {
	if s == nil || len(s.Asks) == 0 {
		return PriceLevel{}, false
	}
	return s.Asks[0], true
}

// IsTradable обе стороны непустые
func (s *OrderBookSnapshot) IsTradable() bool {
	return s != nil && len(s.Bids) > 0 && len(s.Asks) > 0
}

// MidPrice средняя цена между лучшими bid и ask
func (s *OrderBookSnapshot) MidPrice() (decimal.Decimal, bool) {
	bid, okB := s.BestBid()
	ask, okA := s.BestAsk()
	if !okB || !okA {
		return decimal.Zero, false
	}
	return bid.Price.Add(ask.Price).Div(decimal.NewFromInt(2)), true
}

// TradeTick сделка с ленты (только диагностика, в решении не участвует)
type TradeTick struct {
	Venue      Venue           `json:"venue"`
	Symbol     string          `json:"symbol"`
	Price      decimal.Decimal `json:"price"`
	Quantity   decimal.Decimal `json:"quantity"`
	Side       Side            `json:"side"`
	ExecutedAt time.Time       `json:"executed_at"`
}

// FillResult результат симуляции исполнения по стакану
type FillResult struct {
	FilledAmount   decimal.Decimal `json:"filled_amount"`
	TotalCost      decimal.Decimal `json:"total_cost"`
	VWAP           decimal.Decimal `json:"vwap"`
	WorstPrice     decimal.Decimal `json:"worst_price"`
	LevelsConsumed int             `json:"levels_consumed"`
}
