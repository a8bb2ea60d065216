package models

import (
	"github.com/shopspring/decimal"
)

// OrderKind тип ордера
type OrderKind string

const (
	OrderKindLimit  OrderKind = "limit"
	OrderKindMarket OrderKind = "market"
)

// OrderStatus статус ноги с точки зрения движка
type OrderStatus string

// Статусы ордера
const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusSubmitted OrderStatus = "submitted"
	OrderStatusPartial   OrderStatus = "partially_filled"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusFailed    OrderStatus = "failed"
)

// IsTerminal filled, cancelled, failed
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusFilled || s == OrderStatusCancelled || s == OrderStatusFailed
}

// TradeOrder одна нога арбитража. Изменяется только движком исполнения.
type TradeOrder struct {
	Venue        Venue            `json:"venue"`
	Symbol       string           `json:"symbol"`
	Side         Side             `json:"side"`
	Kind         OrderKind        `json:"kind"`
	LimitPrice   *decimal.Decimal `json:"limit_price,omitempty"`
	Amount       decimal.Decimal  `json:"amount"`
	Status       OrderStatus      `json:"status"`
	OrderID      string           `json:"order_id,omitempty"`
	FilledAmount decimal.Decimal  `json:"filled_amount"`
	AveragePrice *decimal.Decimal `json:"average_price,omitempty"`
	Error        string           `json:"error,omitempty"`
}

// HasFill есть ли хоть какое-то исполнение (т.е. открытая экспозиция)
func (o *TradeOrder) HasFill() bool {
	return o != nil && o.FilledAmount.IsPositive()
}

// OrderState ответ биржи на запрос статуса ордера
type OrderState struct {
	OrderID string          `json:"order_id"`
	Status  OrderStatus     `json:"status"`
	Filled  decimal.Decimal `json:"filled"`
	Average decimal.Decimal `json:"average"`
}
