package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crossarb/internal/exchange"
	"crossarb/internal/market"
	"crossarb/internal/models"
	"crossarb/pkg/utils"
)

// ============================================================
// fakeClient - управляемая площадка
// ============================================================

type fakeClient struct {
	venue models.Venue

	mu         sync.Mutex
	limitErr   error
	marketErr  error
	cancelErr  error
	fetchErr   error
	balanceErr error
	panicFetch bool

	// state ответ FetchOrder; afterCancel заменяет его после CancelOrder
	state       *models.OrderState
	afterCancel *models.OrderState
	balances    map[string]decimal.Decimal

	// onLimit и onMarket вызываются в начале отправки, вне мьютекса
	onLimit  func(ctx context.Context)
	onMarket func(ctx context.Context)
	// fillDelay FetchOrder отвечает SUBMITTED, пока не прошло fillDelay от отправки
	fillDelay   time.Duration
	submittedAt time.Time
	// honorCtx FetchOrder возвращает ctx.Err() на отменённом контексте
	honorCtx bool

	limitCalls  int
	marketCalls int
	cancelCalls int
	fetchCalls  int
}

var _ exchange.TradingClient = (*fakeClient)(nil)

func newFake(venue models.Venue) *fakeClient {
	return &fakeClient{venue: venue, balances: map[string]decimal.Decimal{}}
}

func (f *fakeClient) Venue() models.Venue { return f.venue }

func (f *fakeClient) FetchOrderBook(context.Context, string, int) (*models.OrderBookSnapshot, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeClient) SubmitLimitOrder(ctx context.Context, _ string, _ models.Side, _, _ decimal.Decimal) (string, error) {
	if f.onLimit != nil {
		f.onLimit(ctx)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.limitCalls++
	f.submittedAt = time.Now()
	if f.limitErr != nil {
		return "", f.limitErr
	}
	return string(f.venue) + "-limit", nil
}

func (f *fakeClient) SubmitMarketOrder(ctx context.Context, _ string, _ models.Side, _ decimal.Decimal) (string, error) {
	if f.onMarket != nil {
		f.onMarket(ctx)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marketCalls++
	f.submittedAt = time.Now()
	if f.marketErr != nil {
		return "", f.marketErr
	}
	return string(f.venue) + "-market", nil
}

func (f *fakeClient) FetchOrder(ctx context.Context, orderID, _ string) (*models.OrderState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCalls++
	if f.panicFetch {
		panic("venue client exploded")
	}
	if f.honorCtx && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	if f.state == nil || time.Since(f.submittedAt) < f.fillDelay {
		return &models.OrderState{OrderID: orderID, Status: models.OrderStatusSubmitted}, nil
	}
	s := *f.state
	s.OrderID = orderID
	return &s, nil
}

func (f *fakeClient) CancelOrder(context.Context, string, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelCalls++
	if f.cancelErr != nil {
		return f.cancelErr
	}
	if f.afterCancel != nil {
		f.state = f.afterCancel
	}
	return nil
}

func (f *fakeClient) FetchBalance(_ context.Context, asset string) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.balanceErr != nil {
		return decimal.Zero, f.balanceErr
	}
	return f.balances[asset], nil
}

func (f *fakeClient) submits() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.limitCalls + f.marketCalls
}

func filled(amount, avg string) *models.OrderState {
	return &models.OrderState{Status: models.OrderStatusFilled, Filled: d(amount), Average: d(avg)}
}

// ============================================================
// Окружение
// ============================================================

// scenarioBooks MEXC ask 40000×1, BingX bid 40500×1
func scenarioBooks(t *testing.T) *market.Aggregator {
	t.Helper()
	agg := market.NewAggregator(testSymbol, utils.NewNop())
	require.NoError(t, agg.Update(models.VenueMEXC, book(models.VenueMEXC, levels(lvl("39990", "1")), levels(lvl("40000", "1")))))
	require.NoError(t, agg.Update(models.VenueBingX, book(models.VenueBingX, levels(lvl("40500", "1")), levels(lvl("40510", "1")))))
	return agg
}

func scenarioOpp() *models.ArbitrageOpportunity {
	return &models.ArbitrageOpportunity{
		Symbol:        testSymbol,
		BuyVenue:      models.VenueMEXC,
		SellVenue:     models.VenueBingX,
		BuyPrice:      d("40000"),
		BuyVWAP:       d("40000"),
		BuyWorstPrice: d("40000"),
		SellPrice:     d("40500"),
		SellVWAP:      d("40500"),
		Volume:        d("1"),
		GrossProfit:   d("500"),
		NetProfit:     d("500"),
		SpreadBps:     d("125"),
		Confidence:    0.715,
		DetectedAt:    time.Now(),
	}
}

func testExecutorConfig(dryRun bool) ExecutorConfig {
	return ExecutorConfig{
		Symbol:             testSymbol,
		DryRun:             dryRun,
		MinBookLevels:      1,
		DepthCheckLevels:   5,
		SlippageCheckLevel: 2,
		MaxSlippageBps:     d("50"),
		ReconfirmBps:       d("10"),
		OrderTimeout:       100 * time.Millisecond,
		PollInterval:       5 * time.Millisecond,
	}
}

func newTestExecutor(cfg ExecutorConfig, books BookSource, clients map[models.Venue]exchange.TradingClient) *Executor {
	x := NewExecutor(cfg, books, clients, NewProfitModel(ZeroFeeSchedule(), decimal.Zero, false), utils.NewNop())
	x.newID = func() string { return "exec-1" }
	return x
}

func fakeClients(buy, sell *fakeClient) map[models.Venue]exchange.TradingClient {
	return map[models.Venue]exchange.TradingClient{buy.venue: buy, sell.venue: sell}
}

func assertTerminal(t *testing.T, exec *models.ArbitrageExecution, want models.ExecutionStatus) {
	t.Helper()
	require.NotNil(t, exec)
	assert.Equal(t, want, exec.Status, "reason: %s", exec.Reason)
	assert.True(t, exec.Status.IsTerminal())
	assert.NotNil(t, exec.CompletedAt)
}

// ============================================================
// До коммита
// ============================================================

func TestExecutor_DryRunSucceeds(t *testing.T) {
	x := newTestExecutor(testExecutorConfig(true), scenarioBooks(t), nil)

	exec := x.Execute(context.Background(), scenarioOpp())

	assertTerminal(t, exec, models.ExecSuccess)
	assert.True(t, exec.DryRun)
	require.NotNil(t, exec.ActualProfit)
	assert.True(t, exec.ActualProfit.Equal(exec.ExpectedProfit))
	assert.Equal(t, "dry-exec-1-buy", exec.BuyOrder.OrderID)
	assert.Equal(t, models.OrderKindLimit, exec.BuyOrder.Kind)
	assert.Equal(t, models.OrderKindMarket, exec.SellOrder.Kind)
	assert.True(t, exec.SellOrder.AveragePrice.Equal(d("40500")))
}

func TestExecutor_ScenarioD_WindowClosedBeforeCommit(t *testing.T) {
	agg := scenarioBooks(t)
	opp := scenarioOpp()
	// между обнаружением и исполнением bid BingX уходит ниже ask MEXC
	require.NoError(t, agg.Update(models.VenueBingX, book(models.VenueBingX, levels(lvl("39990", "1")), levels(lvl("40010", "1")))))

	buy, sell := newFake(models.VenueMEXC), newFake(models.VenueBingX)
	x := newTestExecutor(testExecutorConfig(false), agg, fakeClients(buy, sell))

	exec := x.Execute(context.Background(), opp)

	assertTerminal(t, exec, models.ExecAborted)
	assert.Contains(t, exec.Reason, "window closed")
	assert.Zero(t, buy.submits())
	assert.Zero(t, sell.submits())
	assert.Nil(t, exec.BuyOrder)
}

func TestExecutor_ReconfirmPriceMoved(t *testing.T) {
	agg := scenarioBooks(t)
	opp := scenarioOpp()
	// окно ещё открыто, но bid сдвинулся на ~24.7 bps
	require.NoError(t, agg.Update(models.VenueBingX, book(models.VenueBingX, levels(lvl("40400", "1")), levels(lvl("40510", "1")))))

	buy, sell := newFake(models.VenueMEXC), newFake(models.VenueBingX)
	x := newTestExecutor(testExecutorConfig(false), agg, fakeClients(buy, sell))

	exec := x.Execute(context.Background(), opp)

	assertTerminal(t, exec, models.ExecAborted)
	assert.Contains(t, exec.Reason, "sell price moved")
	assert.Zero(t, buy.submits()+sell.submits())
}

func TestExecutor_ValidationAborts(t *testing.T) {
	tests := []struct {
		name      string
		mutateCfg func(c *ExecutorConfig)
		mutateOpp func(o *models.ArbitrageOpportunity)
		books     func(t *testing.T) *market.Aggregator
		dropSell  bool
		wantCheck string
	}{
		{
			name:      "zero volume",
			mutateOpp: func(o *models.ArbitrageOpportunity) { o.Volume = decimal.Zero },
			wantCheck: "volume",
		},
		{
			name:      "missing trading client",
			dropSell:  true,
			wantCheck: "client",
		},
		{
			name: "missing order book",
			books: func(t *testing.T) *market.Aggregator {
				return market.NewAggregator(testSymbol, utils.NewNop())
			},
			wantCheck: "book",
		},
		{
			name:      "too few levels",
			mutateCfg: func(c *ExecutorConfig) { c.MinBookLevels = 3 },
			wantCheck: "levels",
		},
		{
			name:      "top levels too thin",
			mutateOpp: func(o *models.ArbitrageOpportunity) { o.Volume = d("2") },
			wantCheck: "depth",
		},
		{
			name: "intra-book slippage",
			books: func(t *testing.T) *market.Aggregator {
				agg := scenarioBooks(t)
				// 40000 → 40500 на третьем уровне: 125 bps
				require.NoError(t, agg.Update(models.VenueMEXC, book(models.VenueMEXC,
					levels(lvl("39990", "1")),
					levels(lvl("40000", "1"), lvl("40010", "1"), lvl("40500", "1")))))
				return agg
			},
			wantCheck: "slippage",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testExecutorConfig(false)
			if tt.mutateCfg != nil {
				tt.mutateCfg(&cfg)
			}
			opp := scenarioOpp()
			if tt.mutateOpp != nil {
				tt.mutateOpp(opp)
			}
			agg := scenarioBooks(t)
			if tt.books != nil {
				agg = tt.books(t)
			}
			buy, sell := newFake(models.VenueMEXC), newFake(models.VenueBingX)
			clients := fakeClients(buy, sell)
			if tt.dropSell {
				delete(clients, models.VenueBingX)
			}

			exec := newTestExecutor(cfg, agg, clients).Execute(context.Background(), opp)

			assertTerminal(t, exec, models.ExecAborted)
			assert.True(t, strings.HasPrefix(exec.Reason, "validation "+tt.wantCheck), "reason: %s", exec.Reason)
			assert.Zero(t, buy.submits()+sell.submits())
		})
	}
}

func TestExecutor_CancelledBeforeCommit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	buy, sell := newFake(models.VenueMEXC), newFake(models.VenueBingX)
	x := newTestExecutor(testExecutorConfig(false), scenarioBooks(t), fakeClients(buy, sell))

	exec := x.Execute(ctx, scenarioOpp())

	assertTerminal(t, exec, models.ExecAborted)
	assert.Contains(t, exec.Reason, context.Canceled.Error())
	assert.Zero(t, buy.submits()+sell.submits())
}

func TestExecutor_RiskGuardInsufficientFunds(t *testing.T) {
	buy, sell := newFake(models.VenueMEXC), newFake(models.VenueBingX)
	buy.balances["USDC"] = d("1000")
	sell.balances["BTC"] = d("5")
	clients := fakeClients(buy, sell)

	x := newTestExecutor(testExecutorConfig(false), scenarioBooks(t), clients)
	x.SetRiskGuard(NewRiskGuard(testSymbol, clients, utils.NewNop()))

	exec := x.Execute(context.Background(), scenarioOpp())

	assertTerminal(t, exec, models.ExecAborted)
	assert.Contains(t, exec.Reason, "validation balance")
	assert.Contains(t, exec.Reason, "USDC")
	assert.Zero(t, buy.submits()+sell.submits())
}

// ============================================================
// После коммита
// ============================================================

func TestExecutor_ScenarioE_SellRejectedBuyFilled(t *testing.T) {
	buy, sell := newFake(models.VenueMEXC), newFake(models.VenueBingX)
	buy.state = filled("1", "40000")
	buy.cancelErr = errors.New("order already filled")
	sell.marketErr = errors.New("insufficient balance")

	x := newTestExecutor(testExecutorConfig(false), scenarioBooks(t), fakeClients(buy, sell))
	exec := x.Execute(context.Background(), scenarioOpp())

	assertTerminal(t, exec, models.ExecPartial)
	assert.Equal(t, 1, buy.cancelCalls, "compensating cancel attempted")
	assert.Contains(t, exec.Reason, "insufficient balance")
	assert.True(t, exec.BuyOrder.FilledAmount.Equal(d("1")))
	assert.Equal(t, models.OrderStatusFailed, exec.SellOrder.Status)
	assert.Nil(t, exec.ActualProfit)
}

func TestExecutor_SellRejectedBuyCancelledClean(t *testing.T) {
	buy, sell := newFake(models.VenueMEXC), newFake(models.VenueBingX)
	sell.marketErr = errors.New("rejected")

	x := newTestExecutor(testExecutorConfig(false), scenarioBooks(t), fakeClients(buy, sell))
	exec := x.Execute(context.Background(), scenarioOpp())

	assertTerminal(t, exec, models.ExecFailed)
	assert.Equal(t, 1, buy.cancelCalls)
	assert.Equal(t, models.OrderStatusCancelled, exec.BuyOrder.Status)
	assert.False(t, exec.BuyOrder.HasFill())
}

func TestExecutor_SellRejectedBuyStateUnknown(t *testing.T) {
	buy, sell := newFake(models.VenueMEXC), newFake(models.VenueBingX)
	sell.marketErr = errors.New("rejected")
	buy.cancelErr = errors.New("timeout")
	buy.fetchErr = errors.New("timeout")

	x := newTestExecutor(testExecutorConfig(false), scenarioBooks(t), fakeClients(buy, sell))
	exec := x.Execute(context.Background(), scenarioOpp())

	assertTerminal(t, exec, models.ExecPartial)
	assert.Contains(t, exec.Reason, "buy leg state unknown")
}

func TestExecutor_BuyRejected(t *testing.T) {
	buy, sell := newFake(models.VenueMEXC), newFake(models.VenueBingX)
	buy.limitErr = errors.New("price out of band")

	x := newTestExecutor(testExecutorConfig(false), scenarioBooks(t), fakeClients(buy, sell))
	exec := x.Execute(context.Background(), scenarioOpp())

	assertTerminal(t, exec, models.ExecFailed)
	assert.Equal(t, 1, sell.marketCalls, "sell leg is submitted concurrently")
	assert.Contains(t, exec.Reason, "price out of band")
	assert.Equal(t, models.OrderStatusFailed, exec.BuyOrder.Status)
}

func TestExecutor_FillTimeout(t *testing.T) {
	tests := []struct {
		name       string
		buyState   *models.OrderState
		afterCanel *models.OrderState
		want       models.ExecutionStatus
	}{
		{
			name:       "buy never fills",
			buyState:   &models.OrderState{Status: models.OrderStatusSubmitted},
			afterCanel: &models.OrderState{Status: models.OrderStatusCancelled},
			want:       models.ExecFailed,
		},
		{
			name:       "buy partially fills",
			buyState:   &models.OrderState{Status: models.OrderStatusPartial, Filled: d("0.4"), Average: d("40000")},
			afterCanel: &models.OrderState{Status: models.OrderStatusCancelled, Filled: d("0.4"), Average: d("40000")},
			want:       models.ExecPartial,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buy, sell := newFake(models.VenueMEXC), newFake(models.VenueBingX)
			buy.state = tt.buyState
			buy.afterCancel = tt.afterCanel
			sell.state = filled("1", "40500")

			x := newTestExecutor(testExecutorConfig(false), scenarioBooks(t), fakeClients(buy, sell))
			exec := x.Execute(context.Background(), scenarioOpp())

			assertTerminal(t, exec, tt.want)
			assert.Contains(t, exec.Reason, "not filled within")
			assert.Equal(t, 1, buy.cancelCalls)
			assert.Zero(t, sell.cancelCalls)
			assert.Equal(t, models.OrderStatusCancelled, exec.BuyOrder.Status)
		})
	}
}

func TestExecutor_FetchErrorsAreRetriedUntilFilled(t *testing.T) {
	buy, sell := newFake(models.VenueMEXC), newFake(models.VenueBingX)
	buy.fetchErr = errors.New("connection reset")
	buy.state = filled("1", "40000")
	sell.state = filled("1", "40500")

	go func() {
		time.Sleep(20 * time.Millisecond)
		buy.mu.Lock()
		buy.fetchErr = nil
		buy.mu.Unlock()
	}()

	cfg := testExecutorConfig(false)
	cfg.OrderTimeout = time.Second
	x := newTestExecutor(cfg, scenarioBooks(t), fakeClients(buy, sell))
	exec := x.Execute(context.Background(), scenarioOpp())

	assertTerminal(t, exec, models.ExecSuccess)
	assert.Greater(t, buy.fetchCalls, 1)
}

func TestExecutor_PanicBecomesFailed(t *testing.T) {
	buy, sell := newFake(models.VenueMEXC), newFake(models.VenueBingX)
	buy.panicFetch = true

	x := newTestExecutor(testExecutorConfig(false), scenarioBooks(t), fakeClients(buy, sell))

	var exec *models.ArbitrageExecution
	require.NotPanics(t, func() {
		exec = x.Execute(context.Background(), scenarioOpp())
	})
	assertTerminal(t, exec, models.ExecFailed)
	assert.Contains(t, exec.Reason, "panic")
}

func TestExecutor_PaperVenuesSucceed(t *testing.T) {
	agg := scenarioBooks(t)
	mexc := market.NewPaperClient(models.VenueMEXC, agg, map[string]decimal.Decimal{"USDC": d("100000")}, utils.NewNop())
	bingx := market.NewPaperClient(models.VenueBingX, agg, map[string]decimal.Decimal{"BTC": d("5")}, utils.NewNop())
	clients := map[models.Venue]exchange.TradingClient{models.VenueMEXC: mexc, models.VenueBingX: bingx}

	x := newTestExecutor(testExecutorConfig(false), agg, clients)
	x.SetRiskGuard(NewRiskGuard(testSymbol, clients, utils.NewNop()))

	exec := x.Execute(context.Background(), scenarioOpp())

	assertTerminal(t, exec, models.ExecSuccess)
	require.NotNil(t, exec.ActualProfit)
	assert.True(t, exec.ActualProfit.Equal(d("500")), "actual %s", exec.ActualProfit)
	assert.Equal(t, models.OrderStatusFilled, exec.BuyOrder.Status)
	assert.Equal(t, models.OrderStatusFilled, exec.SellOrder.Status)

	ctx := context.Background()
	btc, err := mexc.FetchBalance(ctx, "BTC")
	require.NoError(t, err)
	assert.True(t, btc.Equal(d("1")))
	usdc, err := bingx.FetchBalance(ctx, "USDC")
	require.NoError(t, err)
	assert.True(t, usdc.Equal(d("40500")))
}

func TestExecutor_LegsSubmittedConcurrently(t *testing.T) {
	buy, sell := newFake(models.VenueMEXC), newFake(models.VenueBingX)
	buy.state = filled("1", "40000")
	sell.state = filled("1", "40500")

	// каждая нога ждёт начала другой: последовательная отправка не пройдёт
	buyStarted, sellStarted := make(chan struct{}), make(chan struct{})
	wait := func(other chan struct{}, leg string) {
		select {
		case <-other:
		case <-time.After(2 * time.Second):
			t.Errorf("%s submit did not overlap with the other leg", leg)
		}
	}
	buy.onLimit = func(context.Context) {
		close(buyStarted)
		wait(sellStarted, "buy")
	}
	sell.onMarket = func(context.Context) {
		close(sellStarted)
		wait(buyStarted, "sell")
	}

	x := newTestExecutor(testExecutorConfig(false), scenarioBooks(t), fakeClients(buy, sell))
	exec := x.Execute(context.Background(), scenarioOpp())

	assertTerminal(t, exec, models.ExecSuccess)
	assert.Equal(t, 1, buy.limitCalls)
	assert.Equal(t, 1, sell.marketCalls)
}

func TestExecutor_StopAfterCommitCompletes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	buy, sell := newFake(models.VenueMEXC), newFake(models.VenueBingX)
	buy.state = filled("1", "40000")
	sell.state = filled("1", "40500")
	buy.honorCtx, sell.honorCtx = true, true
	// остановка приходит, когда ноги уже отправляются
	sell.onMarket = func(context.Context) { cancel() }

	x := newTestExecutor(testExecutorConfig(false), scenarioBooks(t), fakeClients(buy, sell))
	exec := x.Execute(ctx, scenarioOpp())

	require.ErrorIs(t, ctx.Err(), context.Canceled)
	assertTerminal(t, exec, models.ExecSuccess)
	assert.Equal(t, models.OrderStatusFilled, exec.BuyOrder.Status)
	assert.Equal(t, models.OrderStatusFilled, exec.SellOrder.Status)
	require.NotNil(t, exec.ActualProfit)
	assert.True(t, exec.ActualProfit.Equal(d("500")), "actual %s", exec.ActualProfit)
}
