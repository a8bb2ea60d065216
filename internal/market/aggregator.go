// Package market текущее состояние рынка: агрегатор стаканов площадок,
// симулятор исполнения по стакану, paper-клиент и насосы фидов.
package market

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"

	"crossarb/internal/models"
	"crossarb/pkg/utils"
)

// Listener получает каждый зафиксированный снимок.
// Вызывается внутри фазы обновления: должен быть быстрым и не вызывать Update.
type Listener func(snap *models.OrderBookSnapshot)

// ListenerID идентификатор подписчика для Unsubscribe
type ListenerID uint64

type listenerEntry struct {
	id ListenerID
	fn Listener
}

// Aggregator единственный владелец "текущего рынка" одного инструмента.
//
// Один снимок на площадку, последний побеждает, истории нет.
// Update сериализованы updateMu: фиксация снимка и оповещение
// подписчиков идут одной фазой. Читатели берут только mu на чтение,
// поэтому Get из подписчика не блокируется и никогда не видит
// наполовину записанный снимок.
type Aggregator struct {
	symbol string
	log    *utils.Logger

	updateMu sync.Mutex

	mu        sync.RWMutex
	books     map[models.Venue]*models.OrderBookSnapshot
	trades    map[models.Venue]models.TradeTick
	listeners []listenerEntry
	nextID    ListenerID

	updates  uint64 // atomic
	panics   uint64 // atomic
	rejected uint64 // atomic
}

// NewAggregator создаёт агрегатор для символа
func NewAggregator(symbol string, log *utils.Logger) *Aggregator {
	if log == nil {
		log = utils.L()
	}
	return &Aggregator{
		symbol: symbol,
		log:    log.WithComponent("aggregator").WithSymbol(symbol),
		books:  make(map[models.Venue]*models.OrderBookSnapshot),
		trades: make(map[models.Venue]models.TradeTick),
	}
}

// Symbol инструмент агрегатора
func (a *Aggregator) Symbol() string { return a.symbol }

// Update заменяет снимок площадки целиком и оповещает подписчиков.
// Снимок после передачи принадлежит агрегатору и не должен изменяться.
func (a *Aggregator) Update(venue models.Venue, snap *models.OrderBookSnapshot) error {
	if snap == nil {
		atomic.AddUint64(&a.rejected, 1)
		return fmt.Errorf("nil snapshot for %s", venue)
	}
	if snap.Venue != venue {
		atomic.AddUint64(&a.rejected, 1)
		return fmt.Errorf("snapshot venue %s does not match %s", snap.Venue, venue)
	}
	if utils.NormalizeSymbol(snap.Symbol) != utils.NormalizeSymbol(a.symbol) {
		atomic.AddUint64(&a.rejected, 1)
		return fmt.Errorf("snapshot symbol %s does not match %s", snap.Symbol, a.symbol)
	}

	a.updateMu.Lock()
	defer a.updateMu.Unlock()

	a.mu.Lock()
	a.books[venue] = snap
	listeners := make([]listenerEntry, len(a.listeners))
	copy(listeners, a.listeners)
	a.mu.Unlock()

	atomic.AddUint64(&a.updates, 1)

	for _, l := range listeners {
		a.notify(l, snap)
	}
	return nil
}

// notify ошибки (паники) подписчика логируются и не прерывают обновление
func (a *Aggregator) notify(l listenerEntry, snap *models.OrderBookSnapshot) {
	defer func() {
		if r := recover(); r != nil {
			atomic.AddUint64(&a.panics, 1)
			a.log.Error("listener panicked",
				utils.Int64("listener", int64(l.id)),
				utils.Venue(snap.Venue.String()),
				utils.Any("panic", r))
		}
	}()
	l.fn(snap)
}

// Get последний снимок площадки
func (a *Aggregator) Get(venue models.Venue) (*models.OrderBookSnapshot, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	snap, ok := a.books[venue]
	return snap, ok
}

// Snapshots копия карты текущих снимков, площадки по имени
func (a *Aggregator) Snapshots() []*models.OrderBookSnapshot {
	a.mu.RLock()
	out := make([]*models.OrderBookSnapshot, 0, len(a.books))
	for _, s := range a.books {
		out = append(out, s)
	}
	a.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Venue < out[j].Venue })
	return out
}

// SpreadBetween sellVenue.bestBid - buyVenue.bestAsk.
// false если у любой из сторон нет котировки.
func (a *Aggregator) SpreadBetween(buyVenue, sellVenue models.Venue) (decimal.Decimal, bool) {
	a.mu.RLock()
	buy := a.books[buyVenue]
	sell := a.books[sellVenue]
	a.mu.RUnlock()

	ask, okA := buy.BestAsk()
	bid, okB := sell.BestBid()
	if !okA || !okB {
		return decimal.Zero, false
	}
	return bid.Price.Sub(ask.Price), true
}

// Subscribe добавляет подписчика, порядок вызова = порядок подписки
func (a *Aggregator) Subscribe(fn Listener) ListenerID {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nextID++
	a.listeners = append(a.listeners, listenerEntry{id: a.nextID, fn: fn})
	return a.nextID
}

// Unsubscribe удаляет подписчика. Вызов из самого подписчика допустим:
// текущая фаза оповещения использует копию списка.
func (a *Aggregator) Unsubscribe(id ListenerID) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i, l := range a.listeners {
		if l.id == id {
			a.listeners = append(a.listeners[:i], a.listeners[i+1:]...)
			return true
		}
	}
	return false
}

// ============ Сделки (диагностика) ============

// RecordTrades запоминает последнюю сделку площадки. В решении не участвует.
func (a *Aggregator) RecordTrades(venue models.Venue, ticks []models.TradeTick) {
	if len(ticks) == 0 {
		return
	}
	last := ticks[0]
	for _, t := range ticks[1:] {
		if t.ExecutedAt.After(last.ExecutedAt) {
			last = t
		}
	}
	a.mu.Lock()
	a.trades[venue] = last
	a.mu.Unlock()
}

// LastTrade последняя сделка площадки
func (a *Aggregator) LastTrade(venue models.Venue) (models.TradeTick, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	t, ok := a.trades[venue]
	return t, ok
}

// ============ Счётчики ============

// UpdateCount количество принятых снимков
func (a *Aggregator) UpdateCount() uint64 { return atomic.LoadUint64(&a.updates) }

// ListenerPanics количество пойманных паник подписчиков
func (a *Aggregator) ListenerPanics() uint64 { return atomic.LoadUint64(&a.panics) }

// RejectedCount отклонённые снимки
func (a *Aggregator) RejectedCount() uint64 { return atomic.LoadUint64(&a.rejected) }
