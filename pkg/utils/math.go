package utils

import (
	"github.com/shopspring/decimal"
)

// math.go - математические утилиты для арбитражной торговли
//
// Все функции чистые и работают на decimal.Decimal: цены и объёмы
// идут прямо в расчёт прибыли и проверку балансов, float64 здесь не годится.

var (
	// BpsMultiplier 1 bp = 0.01%
	BpsMultiplier = decimal.NewFromInt(10000)
	hundred       = decimal.NewFromInt(100)
)

// RoundToLotSize округляет значение ВНИЗ до ближайшего кратного lotSize.
//
// Округление вниз гарантирует, что мы не превысим доступные средства.
// Если lotSize <= 0, возвращает исходное значение.
//
// Примеры:
//   - RoundToLotSize(0.123456, 0.001) = 0.123
//   - RoundToLotSize(1.999, 0.01) = 1.99
func RoundToLotSize(value, lotSize decimal.Decimal) decimal.Decimal {
	if !lotSize.IsPositive() {
		return value
	}
	return value.Div(lotSize).Floor().Mul(lotSize)
}

// RoundToLotSizeUp округляет значение ВВЕРХ до ближайшего кратного lotSize.
func RoundToLotSizeUp(value, lotSize decimal.Decimal) decimal.Decimal {
	if !lotSize.IsPositive() {
		return value
	}
	return value.Div(lotSize).Ceil().Mul(lotSize)
}

// CalculateSpreadBps спред в базисных пунктах относительно цены покупки.
//
//	spread_bps = (sell - buy) / buy × 10000
//
// Если buy <= 0, возвращает 0.
func CalculateSpreadBps(sell, buy decimal.Decimal) decimal.Decimal {
	if !buy.IsPositive() {
		return decimal.Zero
	}
	return sell.Sub(buy).Div(buy).Mul(BpsMultiplier)
}

// BpsChange модуль изменения цены в bps: |to - from| / from × 10000
func BpsChange(from, to decimal.Decimal) decimal.Decimal {
	if !from.IsPositive() {
		return decimal.Zero
	}
	return to.Sub(from).Abs().Div(from).Mul(BpsMultiplier)
}

// BpsToRate переводит bps в долю: 10 bps = 0.001
func BpsToRate(bps decimal.Decimal) decimal.Decimal {
	return bps.Div(BpsMultiplier)
}

// Percent доля part от whole в процентах, 0 при whole <= 0
func Percent(part, whole decimal.Decimal) decimal.Decimal {
	if !whole.IsPositive() {
		return decimal.Zero
	}
	return part.Div(whole).Mul(hundred)
}

// MinDecimal минимум из непустого набора значений
func MinDecimal(first decimal.Decimal, rest ...decimal.Decimal) decimal.Decimal {
	m := first
	for _, v := range rest {
		if v.LessThan(m) {
			m = v
		}
	}
	return m
}

// CapRatio value/reference, ограниченное сверху единицей.
// При reference <= 0 возвращает 0.
func CapRatio(value, reference decimal.Decimal) decimal.Decimal {
	if !reference.IsPositive() {
		return decimal.Zero
	}
	r := value.Div(reference)
	if r.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.NewFromInt(1)
	}
	if r.IsNegative() {
		return decimal.Zero
	}
	return r
}
