package market

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"crossarb/internal/models"
)

func TestSimulateFill(t *testing.T) {
	bids := []models.PriceLevel{lvl("40500", "0.3"), lvl("40400", "0.5"), lvl("40300", "1.0")}

	tests := []struct {
		name     string
		levels   []models.PriceLevel
		target   string
		vwap     string
		cost     string
		worst    string
		consumed int
	}{
		{"single level", []models.PriceLevel{lvl("40500", "1.0")}, "1.0", "40500", "40500", "40500", 1},
		{"multi level vwap", bids, "1.0", "40410", "40410", "40300", 3},
		{"exact first level", bids, "0.3", "40500", "12150", "40500", 1},
		{"all depth", bids, "1.8", "40355.5555555555555556", "72640", "40300", 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := SimulateFill(tt.levels, d(tt.target))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !res.FilledAmount.Equal(d(tt.target)) {
				t.Errorf("filled = %s, want %s", res.FilledAmount, tt.target)
			}
			if !res.TotalCost.Equal(d(tt.cost)) {
				t.Errorf("cost = %s, want %s", res.TotalCost, tt.cost)
			}
			if !res.VWAP.Equal(d(tt.vwap)) {
				t.Errorf("vwap = %s, want %s", res.VWAP, tt.vwap)
			}
			if !res.WorstPrice.Equal(d(tt.worst)) {
				t.Errorf("worst = %s, want %s", res.WorstPrice, tt.worst)
			}
			if res.LevelsConsumed != tt.consumed {
				t.Errorf("levels = %d, want %d", res.LevelsConsumed, tt.consumed)
			}
		})
	}
}

func TestSimulateFill_InsufficientDepth(t *testing.T) {
	bids := []models.PriceLevel{lvl("40500", "0.3"), lvl("40400", "0.5"), lvl("40300", "1.0")}

	res, err := SimulateFill(bids, d("5.0"))
	if res != nil {
		t.Error("no partial result may be returned")
	}
	if !errors.Is(err, ErrInsufficientDepth) {
		t.Fatalf("expected ErrInsufficientDepth, got %v", err)
	}
	var depthErr *InsufficientDepthError
	if !errors.As(err, &depthErr) || !depthErr.Available.Equal(d("1.8")) {
		t.Errorf("available = %v", depthErr)
	}

	if _, err := SimulateFill(nil, d("0.1")); !errors.Is(err, ErrInsufficientDepth) {
		t.Error("empty book must be insufficient")
	}
	if _, err := SimulateFill(bids, decimal.Zero); err == nil {
		t.Error("zero target must fail")
	}
}

// cost == Σ(price × taken) для любого target <= доступного объёма
func TestSimulateFill_CostMatchesLevelSum(t *testing.T) {
	asks := []models.PriceLevel{lvl("100.1", "0.7"), lvl("100.5", "1.3"), lvl("101", "2"), lvl("103.25", "0.05")}
	total := TotalVolume(asks, 0)

	step := d("0.05")
	for target := step; target.LessThanOrEqual(total); target = target.Add(step) {
		res, err := SimulateFill(asks, target)
		if err != nil {
			t.Fatalf("target %s: %v", target, err)
		}

		remaining := target
		want := decimal.Zero
		for _, l := range asks {
			if !remaining.IsPositive() {
				break
			}
			take := decimal.Min(l.Size, remaining)
			want = want.Add(l.Price.Mul(take))
			remaining = remaining.Sub(take)
		}
		if !res.FilledAmount.Equal(target) || !res.TotalCost.Equal(want) {
			t.Fatalf("target %s: filled %s cost %s, want cost %s", target, res.FilledAmount, res.TotalCost, want)
		}
	}
}

func TestTotalVolumeAndCrossing(t *testing.T) {
	asks := []models.PriceLevel{lvl("100", "1"), lvl("101", "2"), lvl("102", "3")}

	if v := TotalVolume(asks, 2); !v.Equal(d("3")) {
		t.Errorf("TotalVolume(2) = %s", v)
	}
	if v := TotalVolume(asks, 10); !v.Equal(d("6")) {
		t.Errorf("TotalVolume(10) = %s", v)
	}

	if got := CrossingLevels(asks, models.SideBuy, d("101")); len(got) != 2 {
		t.Errorf("buy crossing = %d levels, want 2", len(got))
	}
	bids := []models.PriceLevel{lvl("100", "1"), lvl("99", "1")}
	if got := CrossingLevels(bids, models.SideSell, d("100.5")); len(got) != 0 {
		t.Errorf("sell crossing = %d levels, want 0", len(got))
	}
}
