package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"crossarb/internal/config"
	"crossarb/internal/exchange"
	"crossarb/internal/market"
	"crossarb/internal/models"
	"crossarb/pkg/utils"
)

// BookSource источник последних снимков (агрегатор)
type BookSource interface {
	Get(venue models.Venue) (*models.OrderBookSnapshot, bool)
}

var _ BookSource = (*market.Aggregator)(nil)

// ExecutorConfig параметры машины исполнения
type ExecutorConfig struct {
	Symbol string
	DryRun bool

	MinBookLevels      int             // минимум уровней на каждой стороне
	DepthCheckLevels   int             // по скольким уровням суммировать объём
	SlippageCheckLevel int             // уровень для проверки проскальзывания внутри стакана
	MaxSlippageBps     decimal.Decimal // допустимая разница цены уровня 0 и SlippageCheckLevel
	ReconfirmBps       decimal.Decimal // допустимый сдвиг цен с момента обнаружения

	OrderTimeout time.Duration
	PollInterval time.Duration
	UseMaker     bool
}

// ExecutorConfigFromBot параметры из конфигурации бота
func ExecutorConfigFromBot(cfg config.BotConfig) ExecutorConfig {
	return ExecutorConfig{
		Symbol:             cfg.Symbol,
		DryRun:             cfg.DryRun,
		MinBookLevels:      cfg.MinBookLevels,
		DepthCheckLevels:   5,
		SlippageCheckLevel: 2,
		MaxSlippageBps:     cfg.MaxSlippageBps,
		ReconfirmBps:       cfg.ReconfirmBps,
		OrderTimeout:       cfg.OrderTimeout,
		PollInterval:       cfg.FillPollInterval,
		UseMaker:           cfg.UseMakerOrders,
	}
}

// Executor проводит одну возможность через машину состояний.
//
// Execute всегда возвращает исполнение в терминальном состоянии:
// ошибки площадок, стаканов и паники переводятся в статус и причину.
// Единственный писатель ArbitrageExecution.
type Executor struct {
	cfg     ExecutorConfig
	books   BookSource
	clients map[models.Venue]exchange.TradingClient
	profit  *ProfitModel
	guard   *RiskGuard
	log     *utils.Logger

	now   func() time.Time
	newID func() string
}

// NewExecutor создаёт исполнитель
func NewExecutor(cfg ExecutorConfig, books BookSource, clients map[models.Venue]exchange.TradingClient, profit *ProfitModel, log *utils.Logger) *Executor {
	if log == nil {
		log = utils.L()
	}
	if cfg.DepthCheckLevels <= 0 {
		cfg.DepthCheckLevels = 5
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.OrderTimeout <= 0 {
		cfg.OrderTimeout = 30 * time.Second
	}
	return &Executor{
		cfg:     cfg,
		books:   books,
		clients: clients,
		profit:  profit,
		log:     log.WithComponent("executor"),
		now:     time.Now,
		newID:   func() string { return uuid.New().String() },
	}
}

// SetRiskGuard включает проверку средств перед размещением ног
func (x *Executor) SetRiskGuard(g *RiskGuard) { x.guard = g }

// DryRun включён ли режим без размещения ордеров
func (x *Executor) DryRun() bool { return x.cfg.DryRun }

// Execute проводит возможность до терминального состояния.
//
// Отмена ctx учитывается только до коммита. После RECONFIRMING
// исполнение доводится до конца независимо от остановки.
func (x *Executor) Execute(ctx context.Context, opp *models.ArbitrageOpportunity) (exec *models.ArbitrageExecution) {
	exec = &models.ArbitrageExecution{
		ID:             x.newID(),
		Opportunity:    *opp,
		ExpectedProfit: opp.NetProfit,
		Status:         models.ExecIdle,
		DryRun:         x.cfg.DryRun,
		CreatedAt:      x.now(),
	}
	log := x.log.WithExecutionID(exec.ID)

	defer func() {
		if r := recover(); r != nil {
			log.Error("PANIC in execution", zap.Any("panic", r), utils.State(string(exec.Status)))
			if !exec.Status.IsTerminal() {
				// аварийный выход минуя таблицу переходов
				exec.Status = models.ExecFailed
				exec.Reason = fmt.Sprintf("panic: %v", r)
				x.complete(exec, log)
			}
		}
	}()

	log.Info("execution started",
		zap.String("direction", opp.Direction()),
		utils.Volume(opp.Volume),
		utils.PNL(opp.NetProfit),
		zap.Bool("dry_run", x.cfg.DryRun),
	)

	x.must(exec, models.ExecValidating)
	if err := x.validate(ctx, opp); err != nil {
		return x.finish(exec, models.ExecAborted, err, log)
	}

	x.must(exec, models.ExecReconfirm)
	if err := x.reconfirm(opp); err != nil {
		return x.finish(exec, models.ExecAborted, err, log)
	}
	if err := ctx.Err(); err != nil {
		return x.finish(exec, models.ExecAborted, err, log)
	}

	// точка коммита: дальше остановка не прерывает исполнение
	ctx = context.WithoutCancel(ctx)
	x.must(exec, models.ExecBothLegs)
	DetectionToCommitLatency.Observe(float64(x.now().Sub(opp.DetectedAt).Microseconds()) / 1000)

	if x.cfg.DryRun {
		return x.simulate(exec, log)
	}
	return x.placeLegs(ctx, exec, log)
}

// ============ VALIDATING ============

// validate глубина, объём верхних уровней, проскальзывание внутри стакана
// и, вне dry-run, средства на обе ноги
func (x *Executor) validate(ctx context.Context, opp *models.ArbitrageOpportunity) error {
	if !opp.Volume.IsPositive() {
		return validationErrorf("volume", "volume %s must be positive", opp.Volume)
	}
	if !x.cfg.DryRun {
		for _, v := range []models.Venue{opp.BuyVenue, opp.SellVenue} {
			if _, ok := x.clients[v]; !ok {
				return validationErrorf("client", "no trading client for %s", v)
			}
		}
	}

	buy, ok := x.books.Get(opp.BuyVenue)
	if !ok {
		return validationErrorf("book", "no order book for %s", opp.BuyVenue)
	}
	sell, ok := x.books.Get(opp.SellVenue)
	if !ok {
		return validationErrorf("book", "no order book for %s", opp.SellVenue)
	}

	sides := []struct {
		name   string
		levels []models.PriceLevel
	}{
		{"buy asks", buy.Asks},
		{"sell bids", sell.Bids},
	}
	for _, s := range sides {
		if len(s.levels) < x.cfg.MinBookLevels {
			return validationErrorf("levels", "%s: %d levels, need %d", s.name, len(s.levels), x.cfg.MinBookLevels)
		}
		if top := market.TotalVolume(s.levels, x.cfg.DepthCheckLevels); top.LessThan(opp.Volume) {
			return validationErrorf("depth", "%s: top-%d volume %s below %s", s.name, x.cfg.DepthCheckLevels, top, opp.Volume)
		}
		if slip := intraBookSlippage(s.levels, x.cfg.SlippageCheckLevel); slip.GreaterThan(x.cfg.MaxSlippageBps) {
			return validationErrorf("slippage", "%s: %s bps between level 0 and %d exceeds %s", s.name, slip.StringFixed(2), x.cfg.SlippageCheckLevel, x.cfg.MaxSlippageBps)
		}
	}

	if !x.cfg.DryRun && x.guard != nil {
		return x.guard.CheckBothLegs(ctx, opp)
	}
	return nil
}

// intraBookSlippage разница цены первого и level-го уровня в bps
func intraBookSlippage(levels []models.PriceLevel, level int) decimal.Decimal {
	if len(levels) == 0 || level <= 0 {
		return decimal.Zero
	}
	if level >= len(levels) {
		level = len(levels) - 1
	}
	return utils.BpsChange(levels[0].Price, levels[level].Price)
}

// ============ RECONFIRMING ============

// reconfirm свежие лучшие цены из агрегатора: окно открыто и цены
// не ушли дальше допуска от тех, по которым считался объём
func (x *Executor) reconfirm(opp *models.ArbitrageOpportunity) error {
	buy, okBuy := x.books.Get(opp.BuyVenue)
	sell, okSell := x.books.Get(opp.SellVenue)
	if !okBuy || !okSell {
		return &StaleWindowError{Reason: "order book disappeared"}
	}
	ask, okAsk := buy.BestAsk()
	bid, okBid := sell.BestBid()
	if !okAsk || !okBid {
		return &StaleWindowError{Reason: "top of book is empty"}
	}

	if !bid.Price.GreaterThan(ask.Price) {
		return &StaleWindowError{Reason: "window closed", BuyAsk: ask.Price, SellBid: bid.Price}
	}
	if moved := utils.BpsChange(opp.BuyPrice, ask.Price); moved.GreaterThan(x.cfg.ReconfirmBps) {
		return &StaleWindowError{Reason: fmt.Sprintf("buy price moved %s bps", moved.StringFixed(2)), BuyAsk: ask.Price, SellBid: bid.Price}
	}
	if moved := utils.BpsChange(opp.SellPrice, bid.Price); moved.GreaterThan(x.cfg.ReconfirmBps) {
		return &StaleWindowError{Reason: fmt.Sprintf("sell price moved %s bps", moved.StringFixed(2)), BuyAsk: ask.Price, SellBid: bid.Price}
	}
	return nil
}

// ============ EXECUTING_BOTH_LEGS ============

func newLeg(opp *models.ArbitrageOpportunity, venue models.Venue, side models.Side, kind models.OrderKind, limit *decimal.Decimal) *models.TradeOrder {
	return &models.TradeOrder{
		Venue:      venue,
		Symbol:     opp.Symbol,
		Side:       side,
		Kind:       kind,
		LimitPrice: limit,
		Amount:     opp.Volume,
		Status:     models.OrderStatusPending,
	}
}

// simulate dry-run: ноги считаются исполненными по уже посчитанным ценам
func (x *Executor) simulate(exec *models.ArbitrageExecution, log *utils.Logger) *models.ArbitrageExecution {
	opp := &exec.Opportunity
	limit := opp.BuyWorstPrice
	buyAvg := opp.BuyVWAP
	if !buyAvg.IsPositive() {
		buyAvg = opp.BuyPrice
	}
	sellAvg := opp.SellVWAP

	exec.BuyOrder = newLeg(opp, opp.BuyVenue, models.SideBuy, models.OrderKindLimit, &limit)
	exec.SellOrder = newLeg(opp, opp.SellVenue, models.SideSell, models.OrderKindMarket, nil)
	for _, leg := range []struct {
		order *models.TradeOrder
		avg   decimal.Decimal
	}{{exec.BuyOrder, buyAvg}, {exec.SellOrder, sellAvg}} {
		avg := leg.avg
		leg.order.OrderID = "dry-" + exec.ID + "-" + string(leg.order.Side)
		leg.order.Status = models.OrderStatusFilled
		leg.order.FilledAmount = leg.order.Amount
		leg.order.AveragePrice = &avg
	}

	x.must(exec, models.ExecAwaitFills)
	actual := exec.ExpectedProfit
	exec.ActualProfit = &actual
	return x.finish(exec, models.ExecSuccess, nil, log)
}

// placeLegs обе ноги одновременно: лимитная покупка не хуже худшего
// задетого уровня и рыночная продажа
func (x *Executor) placeLegs(ctx context.Context, exec *models.ArbitrageExecution, log *utils.Logger) *models.ArbitrageExecution {
	opp := &exec.Opportunity
	limit := opp.BuyWorstPrice
	exec.BuyOrder = newLeg(opp, opp.BuyVenue, models.SideBuy, models.OrderKindLimit, &limit)
	exec.SellOrder = newLeg(opp, opp.SellVenue, models.SideSell, models.OrderKindMarket, nil)

	// ошибка одной ноги не отменяет отправку другой
	var g errgroup.Group
	var buyErr, sellErr error
	g.Go(func() error {
		buyErr = x.submit(ctx, exec.BuyOrder)
		return buyErr
	})
	g.Go(func() error {
		sellErr = x.submit(ctx, exec.SellOrder)
		return sellErr
	})
	_ = g.Wait()

	switch {
	case buyErr != nil:
		if sellErr == nil {
			log.Warn("sell leg placed without buy leg",
				utils.OrderID(exec.SellOrder.OrderID), utils.Venue(opp.SellVenue.String()))
		}
		return x.finish(exec, models.ExecFailed, buyErr, log)

	case sellErr != nil:
		return x.compensateBuy(ctx, exec, sellErr, log)
	}

	x.must(exec, models.ExecAwaitFills)
	return x.awaitFills(ctx, exec, log)
}

// submit размещает ногу
func (x *Executor) submit(ctx context.Context, leg *models.TradeOrder) error {
	client := x.clients[leg.Venue]
	start := time.Now()

	var id string
	var err error
	if leg.Kind == models.OrderKindLimit {
		id, err = client.SubmitLimitOrder(ctx, leg.Symbol, leg.Side, leg.Amount, *leg.LimitPrice)
	} else {
		id, err = client.SubmitMarketOrder(ctx, leg.Symbol, leg.Side, leg.Amount)
	}
	RecordOrderSubmit(leg.Venue.String(), string(leg.Side), float64(time.Since(start).Microseconds())/1000)

	if err != nil {
		leg.Status = models.OrderStatusFailed
		leg.Error = err.Error()
		return &OrderPlacementError{Venue: leg.Venue, Side: leg.Side, Err: err}
	}
	leg.OrderID = id
	leg.Status = models.OrderStatusSubmitted
	return nil
}

// compensateBuy продажа не разместилась: отменяем покупку и по факту её
// исполнения решаем PARTIAL или FAILED
func (x *Executor) compensateBuy(ctx context.Context, exec *models.ArbitrageExecution, cause error, log *utils.Logger) *models.ArbitrageExecution {
	buy := exec.BuyOrder
	client := x.clients[buy.Venue]

	cancelErr := client.CancelOrder(ctx, buy.OrderID, buy.Symbol)
	if cancelErr != nil {
		CompensationFailures.WithLabelValues(buy.Venue.String()).Inc()
		log.Error("compensating cancel failed", utils.OrderID(buy.OrderID), utils.Err(cancelErr))
	}

	state, fetchErr := client.FetchOrder(ctx, buy.OrderID, buy.Symbol)
	if fetchErr != nil {
		log.Error("buy leg state unknown after compensation", utils.OrderID(buy.OrderID), utils.Err(fetchErr))
		// исполнение покупки неизвестно: считаем позицию открытой
		return x.finish(exec, models.ExecPartial, fmt.Errorf("%v; buy leg state unknown: %v", cause, fetchErr), log)
	}
	applyState(buy, state)

	if buy.HasFill() {
		return x.finish(exec, models.ExecPartial, cause, log)
	}
	if cancelErr == nil {
		buy.Status = models.OrderStatusCancelled
	}
	return x.finish(exec, models.ExecFailed, cause, log)
}

// ============ AWAITING_FILLS ============

// awaitFills опрос обеих ног до терминального статуса или таймаута
func (x *Executor) awaitFills(ctx context.Context, exec *models.ArbitrageExecution, log *utils.Logger) *models.ArbitrageExecution {
	legs := []*models.TradeOrder{exec.BuyOrder, exec.SellOrder}

	deadline := time.NewTimer(x.cfg.OrderTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(x.cfg.PollInterval)
	defer ticker.Stop()

	var timeoutErr error
poll:
	for {
		done := true
		for _, leg := range legs {
			if !leg.Status.IsTerminal() {
				x.refresh(ctx, leg, log)
			}
			done = done && leg.Status.IsTerminal()
		}
		if done {
			break
		}

		select {
		case <-deadline.C:
			timeoutErr = x.cancelPending(ctx, legs, log)
			break poll
		case <-ticker.C:
		}
	}

	return x.classify(exec, timeoutErr, log)
}

// refresh обновляет ногу по ответу биржи; ошибка связи не меняет ногу
func (x *Executor) refresh(ctx context.Context, leg *models.TradeOrder, log *utils.Logger) {
	state, err := x.clients[leg.Venue].FetchOrder(ctx, leg.OrderID, leg.Symbol)
	if err != nil {
		log.Warn("fetch order failed", utils.Venue(leg.Venue.String()), utils.OrderID(leg.OrderID), utils.Err(err))
		return
	}
	applyState(leg, state)
}

func applyState(leg *models.TradeOrder, state *models.OrderState) {
	if state == nil {
		return
	}
	if state.Status != "" {
		leg.Status = state.Status
	}
	leg.FilledAmount = state.Filled
	if state.Average.IsPositive() {
		avg := state.Average
		leg.AveragePrice = &avg
	}
}

// cancelPending отменяет неисполнившиеся ноги после таймаута
func (x *Executor) cancelPending(ctx context.Context, legs []*models.TradeOrder, log *utils.Logger) error {
	var first error
	for _, leg := range legs {
		if leg.Status.IsTerminal() {
			continue
		}
		if first == nil {
			first = &FillTimeoutError{Venue: leg.Venue, OrderID: leg.OrderID, Filled: leg.FilledAmount, Timeout: x.cfg.OrderTimeout}
		}
		if err := x.clients[leg.Venue].CancelOrder(ctx, leg.OrderID, leg.Symbol); err != nil {
			log.Error("cancel after timeout failed", utils.Venue(leg.Venue.String()), utils.OrderID(leg.OrderID), utils.Err(err))
		}
		x.refresh(ctx, leg, log)
		if !leg.Status.IsTerminal() {
			leg.Status = models.OrderStatusCancelled
		}
	}
	return first
}

// classify итог по исполненным объёмам:
//
//	покупка не исполнилась               → FAILED
//	продано ровно столько, сколько куплено → SUCCESS
//	иначе                                → PARTIAL (открытая позиция)
func (x *Executor) classify(exec *models.ArbitrageExecution, cause error, log *utils.Logger) *models.ArbitrageExecution {
	buy, sell := exec.BuyOrder, exec.SellOrder

	if !buy.HasFill() {
		if sell.HasFill() {
			log.Warn("sell leg filled without buy leg: inventory rebalance required",
				utils.Venue(sell.Venue.String()), utils.Volume(sell.FilledAmount))
		}
		if cause == nil {
			cause = fmt.Errorf("buy leg %s ended %s without fill", buy.OrderID, buy.Status)
		}
		return x.finish(exec, models.ExecFailed, cause, log)
	}

	if sell.FilledAmount.Equal(buy.FilledAmount) && buy.AveragePrice != nil && sell.AveragePrice != nil {
		res := x.profit.Calculate(ProfitInput{
			BuyPrice:  *buy.AveragePrice,
			SellPrice: *sell.AveragePrice,
			Volume:    buy.FilledAmount,
			BuyVenue:  buy.Venue,
			SellVenue: sell.Venue,
			Maker:     x.cfg.UseMaker,
		})
		actual := res.NetProfit
		exec.ActualProfit = &actual
		return x.finish(exec, models.ExecSuccess, nil, log)
	}

	if cause == nil {
		cause = fmt.Errorf("bought %s, sold %s", buy.FilledAmount, sell.FilledAmount)
	}
	return x.finish(exec, models.ExecPartial, cause, log)
}

// ============ Завершение ============

// must переход, недопустимый только при ошибке в самой машине
func (x *Executor) must(exec *models.ArbitrageExecution, to models.ExecutionStatus) {
	if err := transition(exec, to); err != nil {
		panic(err)
	}
}

// finish переводит в терминальное состояние и пишет итог
func (x *Executor) finish(exec *models.ArbitrageExecution, status models.ExecutionStatus, cause error, log *utils.Logger) *models.ArbitrageExecution {
	x.must(exec, status)
	if cause != nil {
		exec.Reason = cause.Error()
	}
	x.complete(exec, log)
	return exec
}

func (x *Executor) complete(exec *models.ArbitrageExecution, log *utils.Logger) {
	completed := x.now()
	exec.CompletedAt = &completed

	fields := []zap.Field{
		utils.State(string(exec.Status)),
		zap.String("direction", exec.Opportunity.Direction()),
		zap.String("expected_profit", exec.ExpectedProfit.String()),
		zap.String("reason", exec.Reason),
		zap.Duration("duration", completed.Sub(exec.CreatedAt)),
	}
	actual := 0.0
	if exec.ActualProfit != nil {
		actual = exec.ActualProfit.InexactFloat64()
		fields = append(fields, zap.String("actual_profit", exec.ActualProfit.String()))
	}

	switch exec.Status {
	case models.ExecSuccess:
		log.Info("execution succeeded", fields...)
	case models.ExecAborted:
		log.Info("execution aborted", fields...)
	case models.ExecFailed:
		log.Warn("execution failed", fields...)
	case models.ExecPartial:
		if exec.BuyOrder != nil {
			fields = append(fields, zap.String("unhedged_volume", exec.BuyOrder.FilledAmount.Sub(exec.SellOrder.FilledAmount).String()))
		}
		log.Error("CRITICAL: partial execution, unhedged position", fields...)
	}

	RecordExecution(string(exec.Status), exec.DryRun, exec.ExpectedProfit.InexactFloat64(), actual)
}
