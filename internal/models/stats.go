package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Stats агрегированная статистика движка исполнения
type Stats struct {
	Symbol         string          `json:"symbol"`
	Mode           string          `json:"mode"` // paper, live
	DryRun         bool            `json:"dry_run"`
	Cycles         int64           `json:"cycles"`
	Opportunities  int64           `json:"opportunities"`
	Successful     int64           `json:"successful"`
	Partial        int64           `json:"partial"`
	Failed         int64           `json:"failed"`
	Aborted        int64           `json:"aborted"`
	Skipped        int64           `json:"skipped"` // цикл пропущен: исполнение уже в полёте
	ExpectedProfit decimal.Decimal `json:"expected_profit"`
	ActualProfit   decimal.Decimal `json:"actual_profit"`
	InFlight       bool            `json:"in_flight"`
	StartedAt      time.Time       `json:"started_at"`
	Uptime         string          `json:"uptime"`
}

// Attempts количество исполнений, дошедших до терминального состояния
func (s Stats) Attempts() int64 {
	return s.Successful + s.Partial + s.Failed + s.Aborted
}

// ProfitBias actual - expected по успешным исполнениям.
// Систематический сдвиг говорит о неверной модели проскальзывания.
func (s Stats) ProfitBias() decimal.Decimal {
	return s.ActualProfit.Sub(s.ExpectedProfit)
}
