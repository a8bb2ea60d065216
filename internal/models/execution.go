package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ArbitrageOpportunity кандидат на арбитраж. Неизменяем после создания,
// потребляется движком ровно один раз.
type ArbitrageOpportunity struct {
	Symbol           string          `json:"symbol"`
	BuyVenue         Venue           `json:"buy_venue"`
	SellVenue        Venue           `json:"sell_venue"`
	BuyPrice         decimal.Decimal `json:"buy_price"`
	BuyVWAP          decimal.Decimal `json:"buy_vwap"`
	BuyWorstPrice    decimal.Decimal `json:"buy_worst_price"`
	SellPrice        decimal.Decimal `json:"sell_price"`
	SellVWAP         decimal.Decimal `json:"sell_vwap"`
	Volume           decimal.Decimal `json:"volume"`
	GrossProfit      decimal.Decimal `json:"gross_profit"`
	NetProfit        decimal.Decimal `json:"net_profit"`
	ProfitPercentage decimal.Decimal `json:"profit_percentage"`
	SpreadBps        decimal.Decimal `json:"spread_bps"`
	Confidence       float64         `json:"confidence"`
	DetectedAt       time.Time       `json:"detected_at"`
}

// Direction строка направления: mexc_to_bingx
func (o *ArbitrageOpportunity) Direction() string {
	return fmt.Sprintf("%s_to_%s", o.BuyVenue, o.SellVenue)
}

// ExecutionStatus состояние машины исполнения
type ExecutionStatus string

const (
	ExecIdle       ExecutionStatus = "IDLE"
	ExecValidating ExecutionStatus = "VALIDATING"
	ExecReconfirm  ExecutionStatus = "RECONFIRMING"
	ExecBothLegs   ExecutionStatus = "EXECUTING_BOTH_LEGS"
	ExecAwaitFills ExecutionStatus = "AWAITING_FILLS"
	ExecSuccess    ExecutionStatus = "SUCCESS"
	ExecPartial    ExecutionStatus = "PARTIAL"
	ExecFailed     ExecutionStatus = "FAILED"
	ExecAborted    ExecutionStatus = "ABORTED"
)

// IsTerminal SUCCESS, PARTIAL, FAILED, ABORTED
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case ExecSuccess, ExecPartial, ExecFailed, ExecAborted:
		return true
	}
	return false
}

// ArbitrageExecution одна попытка цикла. После CompletedAt не изменяется.
type ArbitrageExecution struct {
	ID             string               `json:"id"`
	Opportunity    ArbitrageOpportunity `json:"opportunity"`
	BuyOrder       *TradeOrder          `json:"buy_order,omitempty"`
	SellOrder      *TradeOrder          `json:"sell_order,omitempty"`
	ExpectedProfit decimal.Decimal      `json:"expected_profit"`
	ActualProfit   *decimal.Decimal     `json:"actual_profit,omitempty"`
	Status         ExecutionStatus      `json:"status"`
	Reason         string               `json:"reason,omitempty"`
	DryRun         bool                 `json:"dry_run"`
	CreatedAt      time.Time            `json:"created_at"`
	CompletedAt    *time.Time           `json:"completed_at,omitempty"`
}

// IsCompleted выставлен ли CompletedAt
func (e *ArbitrageExecution) IsCompleted() bool {
	return e.CompletedAt != nil
}
