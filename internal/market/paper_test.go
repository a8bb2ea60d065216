package market

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crossarb/internal/models"
	"crossarb/pkg/utils"
)

func newPaper(t *testing.T, bids, asks []models.PriceLevel) (*PaperClient, *Aggregator) {
	t.Helper()
	agg := NewAggregator("BTC-USDC", utils.NewNop())
	require.NoError(t, agg.Update(models.VenueMEXC, book(models.VenueMEXC, bids, asks)))

	p := NewPaperClient(models.VenueMEXC, agg, map[string]decimal.Decimal{
		"usdc": d("100000"),
		"BTC":  d("1"),
	}, utils.NewNop())
	return p, agg
}

func TestPaperClient_MarketOrderFillsAgainstBook(t *testing.T) {
	ctx := context.Background()
	p, _ := newPaper(t,
		[]models.PriceLevel{lvl("40500", "0.3"), lvl("40400", "0.5"), lvl("40300", "1.0")},
		[]models.PriceLevel{lvl("40000", "1")})

	id, err := p.SubmitMarketOrder(ctx, "BTC-USDC", models.SideSell, d("1.0"))
	require.NoError(t, err)

	state, err := p.FetchOrder(ctx, id, "BTC-USDC")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusFilled, state.Status)
	assert.True(t, state.Filled.Equal(d("1.0")))
	assert.True(t, state.Average.Equal(d("40410")), "average %s", state.Average)

	btc, _ := p.FetchBalance(ctx, "btc")
	usdc, _ := p.FetchBalance(ctx, "USDC")
	assert.True(t, btc.IsZero())
	assert.True(t, usdc.Equal(d("140410")), "usdc %s", usdc)
}

func TestPaperClient_Rejections(t *testing.T) {
	ctx := context.Background()
	p, _ := newPaper(t,
		[]models.PriceLevel{lvl("40500", "0.3")},
		[]models.PriceLevel{lvl("40000", "0.5")})

	_, err := p.SubmitMarketOrder(ctx, "BTC-USDC", models.SideSell, d("0.5"))
	assert.True(t, IsPaperRejection(err, "insufficient_liquidity"), "got %v", err)

	_, err = p.SubmitLimitOrder(ctx, "BTC-USDC", models.SideBuy, d("3"), d("40000"))
	assert.True(t, IsPaperRejection(err, "insufficient_balance"), "got %v", err)

	_, err = p.SubmitLimitOrder(ctx, "BTC-USDC", models.SideBuy, decimal.Zero, d("40000"))
	assert.True(t, IsPaperRejection(err, "invalid_order"), "got %v", err)

	_, err = p.FetchOrder(ctx, "missing", "BTC-USDC")
	assert.True(t, IsPaperRejection(err, "order_not_found"), "got %v", err)

	empty := NewPaperClient(models.VenueBingX, NewAggregator("BTC-USDC", utils.NewNop()), nil, utils.NewNop())
	_, err = empty.SubmitMarketOrder(ctx, "BTC-USDC", models.SideBuy, d("0.1"))
	assert.True(t, IsPaperRejection(err, "no_book"), "got %v", err)
}

func TestPaperClient_LimitOrderRestsAndFillsLater(t *testing.T) {
	ctx := context.Background()
	p, agg := newPaper(t,
		[]models.PriceLevel{lvl("39990", "1")},
		[]models.PriceLevel{lvl("40000", "0.2"), lvl("40100", "1")})

	id, err := p.SubmitLimitOrder(ctx, "BTC-USDC", models.SideBuy, d("0.5"), d("40000"))
	require.NoError(t, err)

	state, err := p.FetchOrder(ctx, id, "BTC-USDC")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPartial, state.Status)
	assert.True(t, state.Filled.Equal(d("0.2")))

	// стакан опустился, остаток доисполняется при следующем опросе
	require.NoError(t, agg.Update(models.VenueMEXC, book(models.VenueMEXC,
		[]models.PriceLevel{lvl("39900", "1")},
		[]models.PriceLevel{lvl("39950", "1")})))

	state, err = p.FetchOrder(ctx, id, "BTC-USDC")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusFilled, state.Status)
	assert.True(t, state.Filled.Equal(d("0.5")))
	// 0.2 × 40000 + 0.3 × 39950 = 19985
	assert.True(t, state.Average.Equal(d("39970")), "average %s", state.Average)

	err = p.CancelOrder(ctx, id, "BTC-USDC")
	assert.True(t, IsPaperRejection(err, "order_closed"), "got %v", err)
}

func TestPaperClient_CancelRestingOrder(t *testing.T) {
	ctx := context.Background()
	p, _ := newPaper(t,
		[]models.PriceLevel{lvl("39990", "1")},
		[]models.PriceLevel{lvl("40100", "1")})

	id, err := p.SubmitLimitOrder(ctx, "BTC-USDC", models.SideBuy, d("0.5"), d("40000"))
	require.NoError(t, err)
	require.NoError(t, p.CancelOrder(ctx, id, "BTC-USDC"))

	state, err := p.FetchOrder(ctx, id, "BTC-USDC")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, state.Status)
	assert.True(t, state.Filled.IsZero())

	usdc, _ := p.FetchBalance(ctx, "USDC")
	assert.True(t, usdc.Equal(d("100000")))
}

func TestPaperClient_FetchOrderBookTruncates(t *testing.T) {
	p, _ := newPaper(t,
		[]models.PriceLevel{lvl("3", "1"), lvl("2", "1"), lvl("1", "1")},
		[]models.PriceLevel{lvl("4", "1"), lvl("5", "1")})

	snap, err := p.FetchOrderBook(context.Background(), "BTC-USDC", 2)
	require.NoError(t, err)
	assert.Len(t, snap.Bids, 2)
	assert.Len(t, snap.Asks, 2)
}

func TestPaperClient_CancelledContext(t *testing.T) {
	p, _ := newPaper(t, []models.PriceLevel{lvl("1", "1")}, []models.PriceLevel{lvl("2", "1")})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.SubmitMarketOrder(ctx, "BTC-USDC", models.SideBuy, d("0.1"))
	assert.ErrorIs(t, err, context.Canceled)
}
