package bot

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crossarb/internal/exchange"
	"crossarb/internal/models"
	"crossarb/pkg/utils"
)

func TestRiskGuard_RefreshBalances(t *testing.T) {
	mexc, bingx := newFake(models.VenueMEXC), newFake(models.VenueBingX)
	mexc.balances["BTC"] = d("0.5")
	mexc.balances["USDC"] = d("20000")
	bingx.balances["BTC"] = d("2")
	bingx.balances["USDC"] = d("100")

	g := NewRiskGuard(testSymbol, fakeClients(mexc, bingx), utils.NewNop())
	assert.Nil(t, g.Balances(), "no balances before first refresh")

	got, err := g.RefreshBalances(context.Background())
	require.NoError(t, err)
	assert.True(t, got[models.VenueMEXC].Quote.Equal(d("20000")))
	assert.True(t, got[models.VenueBingX].Base.Equal(d("2")))

	// площадка с ошибкой сохраняет прошлые остатки
	bingx.balanceErr = errors.New("signature rejected")
	mexc.balances["USDC"] = d("15000")

	got, err = g.RefreshBalances(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bingx balance")
	assert.True(t, got[models.VenueMEXC].Quote.Equal(d("15000")))
	assert.True(t, got[models.VenueBingX].Base.Equal(d("2")))

	// Balances отдаёт копию
	snapshot := g.Balances()
	snapshot[models.VenueMEXC] = Balance{}
	assert.True(t, g.Balances()[models.VenueMEXC].Quote.Equal(d("15000")))
}

func TestRiskGuard_CheckBothLegs(t *testing.T) {
	tests := []struct {
		name    string
		quote   string
		base    string
		sellErr error
		wantErr string
	}{
		{name: "enough on both venues", quote: "40000", base: "1"},
		{name: "quote short on buy venue", quote: "39999", base: "1", wantErr: "USDC"},
		{name: "base short on sell venue", quote: "50000", base: "0.9", wantErr: "BTC"},
		{name: "balance query fails", quote: "50000", base: "1", sellErr: errors.New("timeout"), wantErr: "timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buy, sell := newFake(models.VenueMEXC), newFake(models.VenueBingX)
			buy.balances["USDC"] = d(tt.quote)
			sell.balances["BTC"] = d(tt.base)
			sell.balanceErr = tt.sellErr

			g := NewRiskGuard(testSymbol, fakeClients(buy, sell), utils.NewNop())
			err := g.CheckBothLegs(context.Background(), scenarioOpp())

			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrValidation)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRiskGuard_CheckBothLegsMissingClient(t *testing.T) {
	buy := newFake(models.VenueMEXC)
	g := NewRiskGuard(testSymbol, map[models.Venue]exchange.TradingClient{models.VenueMEXC: buy}, utils.NewNop())

	err := g.CheckBothLegs(context.Background(), scenarioOpp())
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRiskGuard_HaltResume(t *testing.T) {
	g := NewRiskGuard(testSymbol, nil, utils.NewNop())

	halted, reason := g.Halted()
	assert.False(t, halted)
	assert.Empty(t, reason)

	g.Halt("partial execution e1")
	halted, reason = g.Halted()
	assert.True(t, halted)
	assert.Equal(t, "partial execution e1", reason)

	g.Resume()
	halted, _ = g.Halted()
	assert.False(t, halted)
}
