package market

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"crossarb/internal/models"
)

// ErrInsufficientDepth уровни закончились раньше целевого объёма
var ErrInsufficientDepth = errors.New("insufficient depth")

// InsufficientDepthError подробности нехватки ликвидности
type InsufficientDepthError struct {
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientDepthError) Error() string {
	return fmt.Sprintf("insufficient depth: requested %s, available %s", e.Requested, e.Available)
}

func (e *InsufficientDepthError) Is(target error) bool { return target == ErrInsufficientDepth }

// SimulateFill проходит уровни (уже отсортированные) и набирает target.
//
// VWAP = cost / filled, WorstPrice = цена последнего задетого уровня.
// При нехватке объёма возвращает только ошибку, без частичного результата.
func SimulateFill(levels []models.PriceLevel, target decimal.Decimal) (*models.FillResult, error) {
	if !target.IsPositive() {
		return nil, fmt.Errorf("fill target must be positive, got %s", target)
	}

	filled := decimal.Zero
	cost := decimal.Zero
	worst := decimal.Zero
	consumed := 0

	for _, lvl := range levels {
		if filled.GreaterThanOrEqual(target) {
			break
		}
		if !lvl.Size.IsPositive() {
			continue
		}
		take := decimal.Min(lvl.Size, target.Sub(filled))
		filled = filled.Add(take)
		cost = cost.Add(lvl.Price.Mul(take))
		worst = lvl.Price
		consumed++
	}

	if filled.LessThan(target) {
		return nil, &InsufficientDepthError{Requested: target, Available: filled}
	}

	return &models.FillResult{
		FilledAmount:   filled,
		TotalCost:      cost,
		VWAP:           cost.Div(filled),
		WorstPrice:     worst,
		LevelsConsumed: consumed,
	}, nil
}

// TotalVolume суммарный объём первых n уровней (n <= 0 = все)
func TotalVolume(levels []models.PriceLevel, n int) decimal.Decimal {
	if n <= 0 || n > len(levels) {
		n = len(levels)
	}
	total := decimal.Zero
	for _, lvl := range levels[:n] {
		total = total.Add(lvl.Size)
	}
	return total
}

// CrossingLevels уровни, исполнимые по лимитной цене:
// для покупки asks <= limit, для продажи bids >= limit
func CrossingLevels(levels []models.PriceLevel, side models.Side, limit decimal.Decimal) []models.PriceLevel {
	n := 0
	for _, lvl := range levels {
		if side == models.SideBuy && lvl.Price.GreaterThan(limit) {
			break
		}
		if side == models.SideSell && lvl.Price.LessThan(limit) {
			break
		}
		n++
	}
	return levels[:n]
}
