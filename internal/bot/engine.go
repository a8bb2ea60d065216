package bot

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"crossarb/internal/config"
	"crossarb/internal/market"
	"crossarb/internal/models"
	"crossarb/pkg/utils"
)

// Broadcaster - интерфейс для отправки событий клиентам UI
//
// Реализуется пакетом internal/websocket/Hub
type Broadcaster interface {
	// BroadcastOpportunity возможность, прошедшая порог confidence
	BroadcastOpportunity(opp *models.ArbitrageOpportunity)

	// BroadcastExecution завершённое исполнение
	BroadcastExecution(exec *models.ArbitrageExecution)

	// BroadcastStats статистика после каждого исполнения
	BroadcastStats(stats *models.Stats)

	// BroadcastNotification уведомление о событии
	BroadcastNotification(notif *models.Notification)
}

// ExecutionStore архив завершённых исполнений (PostgreSQL)
type ExecutionStore interface {
	SaveExecution(ctx context.Context, exec *models.ArbitrageExecution) error
}

// EngineConfig параметры цикла
type EngineConfig struct {
	Symbol           string
	Mode             string
	DryRun           bool
	CycleInterval    time.Duration
	Cooldown         time.Duration
	StopAfterSuccess bool
	HaltOnPartial    bool
	BalanceRefresh   time.Duration
	ExecutionLogSize int
}

// EngineConfigFromBot параметры из конфигурации бота
func EngineConfigFromBot(cfg config.BotConfig) EngineConfig {
	return EngineConfig{
		Symbol:           cfg.Symbol,
		Mode:             cfg.Mode,
		DryRun:           cfg.DryRun,
		CycleInterval:    cfg.CycleInterval,
		Cooldown:         cfg.Cooldown,
		StopAfterSuccess: cfg.StopAfterSuccess,
		HaltOnPartial:    cfg.HaltOnPartial,
		BalanceRefresh:   cfg.BalanceRefresh,
		ExecutionLogSize: cfg.ExecutionLogSize,
	}
}

// Engine - цикл решения и исполнения для одного символа
//
// Архитектура:
// - цикл по таймеру CycleInterval и по обновлениям агрегатора (схлопываются)
// - детектор читает последние зафиксированные снимки на каждом проходе
// - не больше одного исполнения в полёте (atomic guard), остальные циклы пропускаются
// - исполнение идёт в своей горутине, остановка ждёт его завершения
//
// Поток данных:
// Feeds → Aggregator → Detector → Executor → ExecutionLog/Store/Hub
type Engine struct {
	cfg      EngineConfig
	agg      *market.Aggregator
	detector *Detector
	executor *Executor
	guard    *RiskGuard
	hub      Broadcaster
	store    ExecutionStore
	log      *utils.Logger

	execLog *ExecutionLog
	trigger chan struct{}
	done    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup

	inFlight      int32 // atomic
	cooldownUntil int64 // atomic, unix nano

	statsMu sync.Mutex
	stats   models.Stats

	oppsMu sync.RWMutex
	opps   []*models.ArbitrageOpportunity
}

// NewEngine создаёт движок. guard, hub и store опциональны.
func NewEngine(cfg EngineConfig, agg *market.Aggregator, detector *Detector, executor *Executor, guard *RiskGuard, log *utils.Logger) *Engine {
	if log == nil {
		log = utils.L()
	}
	if cfg.CycleInterval <= 0 {
		cfg.CycleInterval = time.Second
	}
	if guard == nil {
		guard = NewRiskGuard(cfg.Symbol, nil, log)
	}
	return &Engine{
		cfg:      cfg,
		agg:      agg,
		detector: detector,
		executor: executor,
		guard:    guard,
		log:      log.WithComponent("engine").WithSymbol(cfg.Symbol),
		execLog:  NewExecutionLog(cfg.ExecutionLogSize),
		trigger:  make(chan struct{}, 1),
		done:     make(chan struct{}),
		stats: models.Stats{
			Symbol:         cfg.Symbol,
			Mode:           cfg.Mode,
			DryRun:         cfg.DryRun,
			ExpectedProfit: decimal.Zero,
			ActualProfit:   decimal.Zero,
		},
	}
}

// SetBroadcaster подключает UI hub
func (e *Engine) SetBroadcaster(hub Broadcaster) { e.hub = hub }

// SetExecutionStore подключает архив исполнений
func (e *Engine) SetExecutionStore(store ExecutionStore) { e.store = store }

// Run крутит цикл до отмены ctx или до первого успеха в режиме
// StopAfterSuccess. Перед возвратом дожидается исполнения в полёте.
func (e *Engine) Run(ctx context.Context) error {
	e.statsMu.Lock()
	e.stats.StartedAt = time.Now()
	e.statsMu.Unlock()

	id := e.agg.Subscribe(func(*models.OrderBookSnapshot) {
		select {
		case e.trigger <- struct{}{}:
		default:
		}
	})
	defer e.agg.Unsubscribe(id)

	e.refreshBalances(ctx)

	cycleTicker := time.NewTicker(e.cfg.CycleInterval)
	defer cycleTicker.Stop()

	balanceEvery := e.cfg.BalanceRefresh
	if balanceEvery <= 0 {
		balanceEvery = time.Minute
	}
	balanceTicker := time.NewTicker(balanceEvery)
	defer balanceTicker.Stop()

	e.log.Info("engine started",
		zap.String("mode", e.cfg.Mode),
		zap.Bool("dry_run", e.cfg.DryRun),
		zap.Duration("cycle_interval", e.cfg.CycleInterval),
	)

	var err error
loop:
	for {
		select {
		case <-ctx.Done():
			err = ctx.Err()
			break loop
		case <-e.done:
			e.log.Info("stop after success: engine finished")
			break loop
		case <-cycleTicker.C:
			e.cycle(ctx)
		case <-e.trigger:
			e.cycle(ctx)
		case <-balanceTicker.C:
			e.refreshBalances(ctx)
		}
	}

	// исполнение после коммита доводится до терминального состояния
	e.wg.Wait()
	e.log.Info("engine stopped")
	return err
}

// cycle один проход: детекция и, если можно, запуск исполнения
func (e *Engine) cycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("PANIC in decision cycle", zap.Any("panic", r))
		}
	}()

	CyclesTotal.Inc()
	e.statsMu.Lock()
	e.stats.Cycles++
	e.statsMu.Unlock()

	if halted, _ := e.guard.Halted(); halted {
		e.skip("halted")
		return
	}
	if atomic.LoadInt32(&e.inFlight) == 1 {
		e.skip("in_flight")
		return
	}
	if time.Now().UnixNano() < atomic.LoadInt64(&e.cooldownUntil) {
		e.skip("cooldown")
		return
	}
	select {
	case <-e.done:
		return
	default:
	}

	snaps := e.agg.Snapshots()
	if len(snaps) < 2 {
		e.skip("no_books")
		return
	}

	opps := e.detector.FindOpportunities(snaps, e.guard.Balances())
	e.oppsMu.Lock()
	e.opps = opps
	e.oppsMu.Unlock()

	best := e.detector.GetBest(opps)
	if best == nil {
		return
	}

	if !atomic.CompareAndSwapInt32(&e.inFlight, 0, 1) {
		e.skip("in_flight")
		return
	}
	SetInFlight(true)

	e.statsMu.Lock()
	e.stats.Opportunities++
	e.statsMu.Unlock()

	if e.hub != nil {
		e.hub.BroadcastOpportunity(best)
		e.hub.BroadcastNotification(&models.Notification{
			Timestamp: best.DetectedAt,
			Type:      models.NotificationTypeOpportunity,
			Severity:  models.SeverityInfo,
			Message:   fmt.Sprintf("%s spread %s bps, net %s", best.Direction(), best.SpreadBps.StringFixed(2), best.NetProfit.StringFixed(4)),
		})
	}

	e.wg.Add(1)
	go func(opp *models.ArbitrageOpportunity) {
		defer e.wg.Done()
		defer func() {
			atomic.StoreInt32(&e.inFlight, 0)
			SetInFlight(false)
		}()
		exec := e.executor.Execute(ctx, opp)
		e.record(ctx, exec)
	}(best)
}

func (e *Engine) skip(reason string) {
	RecordSkip(reason)
	e.statsMu.Lock()
	e.stats.Skipped++
	e.statsMu.Unlock()
}

// record учитывает завершённое исполнение
func (e *Engine) record(ctx context.Context, exec *models.ArbitrageExecution) {
	e.execLog.Add(exec)

	e.statsMu.Lock()
	switch exec.Status {
	case models.ExecSuccess:
		e.stats.Successful++
		e.stats.ExpectedProfit = e.stats.ExpectedProfit.Add(exec.ExpectedProfit)
		if exec.ActualProfit != nil {
			e.stats.ActualProfit = e.stats.ActualProfit.Add(*exec.ActualProfit)
		}
	case models.ExecPartial:
		e.stats.Partial++
	case models.ExecFailed:
		e.stats.Failed++
	case models.ExecAborted:
		e.stats.Aborted++
	}
	e.statsMu.Unlock()

	if exec.Status != models.ExecAborted && e.cfg.Cooldown > 0 {
		atomic.StoreInt64(&e.cooldownUntil, time.Now().Add(e.cfg.Cooldown).UnixNano())
	}

	if e.store != nil {
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		if err := e.store.SaveExecution(saveCtx, exec); err != nil {
			e.log.Error("failed to archive execution", utils.ExecutionID(exec.ID), utils.Err(err))
		}
		cancel()
	}

	if e.hub != nil {
		notif := models.NotificationForExecution(exec)
		stats := e.Stats()
		e.hub.BroadcastExecution(exec)
		e.hub.BroadcastNotification(&notif)
		e.hub.BroadcastStats(&stats)
	}

	switch {
	case exec.Status == models.ExecPartial && e.cfg.HaltOnPartial:
		e.guard.Halt(fmt.Sprintf("partial execution %s: %s", exec.ID, exec.Reason))
	case exec.Status == models.ExecSuccess && e.cfg.StopAfterSuccess:
		e.once.Do(func() { close(e.done) })
	}
}

// refreshBalances остатки для ограничения объёма детектора
func (e *Engine) refreshBalances(ctx context.Context) {
	if _, err := e.guard.RefreshBalances(ctx); err != nil {
		e.log.Warn("balance refresh incomplete", utils.Err(err))
	}
}

// ============================================================
// Чтение состояния (API)
// ============================================================

// Stats снимок статистики
func (e *Engine) Stats() models.Stats {
	e.statsMu.Lock()
	s := e.stats
	e.statsMu.Unlock()

	s.InFlight = atomic.LoadInt32(&e.inFlight) == 1
	if !s.StartedAt.IsZero() {
		s.Uptime = utils.FormatDuration(time.Since(s.StartedAt))
	}
	return s
}

// Opportunities кандидаты последнего прохода детектора
func (e *Engine) Opportunities() []models.ArbitrageOpportunity {
	e.oppsMu.RLock()
	defer e.oppsMu.RUnlock()
	out := make([]models.ArbitrageOpportunity, 0, len(e.opps))
	for _, o := range e.opps {
		out = append(out, *o)
	}
	return out
}

// Executions последние завершённые исполнения, новые первыми
func (e *Engine) Executions(limit int) []models.ArbitrageExecution {
	return e.execLog.Recent(limit)
}

// Halted остановлена ли торговля после PARTIAL
func (e *Engine) Halted() (bool, string) { return e.guard.Halted() }

// Resume ручной сброс остановки
func (e *Engine) Resume() { e.guard.Resume() }
