package market

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"crossarb/internal/exchange"
	"crossarb/internal/models"
	"crossarb/pkg/utils"
)

var _ exchange.TradingClient = (*PaperClient)(nil)

// paperOrder ордер paper-площадки
type paperOrder struct {
	id        string
	symbol    string
	side      models.Side
	kind      models.OrderKind
	limit     decimal.Decimal
	amount    decimal.Decimal
	filled    decimal.Decimal
	quoteCost decimal.Decimal
	status    models.OrderStatus
	// снимок, о который ордер уже исполнялся: его ликвидность выбрана
	matchedOn *models.OrderBookSnapshot
}

func (o *paperOrder) state() *models.OrderState {
	avg := decimal.Zero
	if o.filled.IsPositive() {
		avg = o.quoteCost.Div(o.filled)
	}
	return &models.OrderState{OrderID: o.id, Status: o.status, Filled: o.filled, Average: avg}
}

// PaperClient торговый клиент, исполняющий ордера по текущему стакану агрегатора.
//
// Рыночный ордер исполняется сразу симулятором; лимитный исполняется по
// пересекающим уровням, остаток ждёт и доисполняется при FetchOrder,
// когда стакан начинает пересекаться. Балансы ведутся в памяти.
type PaperClient struct {
	venue models.Venue
	agg   *Aggregator
	log   *utils.Logger

	mu       sync.Mutex
	orders   map[string]*paperOrder
	balances map[string]decimal.Decimal
	seq      int64
}

// NewPaperClient создаёт paper-клиент площадки
func NewPaperClient(venue models.Venue, agg *Aggregator, balances map[string]decimal.Decimal, log *utils.Logger) *PaperClient {
	if log == nil {
		log = utils.L()
	}
	b := make(map[string]decimal.Decimal, len(balances))
	for asset, amount := range balances {
		b[strings.ToUpper(asset)] = amount
	}
	return &PaperClient{
		venue:    venue,
		agg:      agg,
		log:      log.WithComponent("paper").WithVenue(venue.String()),
		orders:   make(map[string]*paperOrder),
		balances: b,
	}
}

func (p *PaperClient) Venue() models.Venue { return p.venue }

func (p *PaperClient) reject(code, format string, args ...interface{}) error {
	return &exchange.ExchangeError{Venue: p.venue, Code: code, Message: fmt.Sprintf(format, args...)}
}

// FetchOrderBook копия top-N стакана агрегатора
func (p *PaperClient) FetchOrderBook(_ context.Context, symbol string, depth int) (*models.OrderBookSnapshot, error) {
	snap, ok := p.agg.Get(p.venue)
	if !ok {
		return nil, p.reject("no_book", "no order book for %s", symbol)
	}
	out := *snap
	out.Bids = truncate(snap.Bids, depth)
	out.Asks = truncate(snap.Asks, depth)
	return &out, nil
}

func truncate(levels []models.PriceLevel, depth int) []models.PriceLevel {
	if depth <= 0 || depth > len(levels) {
		depth = len(levels)
	}
	return append([]models.PriceLevel(nil), levels[:depth]...)
}

// SubmitMarketOrder исполняется целиком или отклоняется
func (p *PaperClient) SubmitMarketOrder(ctx context.Context, symbol string, side models.Side, amount decimal.Decimal) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	snap, ok := p.agg.Get(p.venue)
	if !ok {
		return "", p.reject("no_book", "no order book for %s", symbol)
	}

	fill, err := SimulateFill(bookSide(snap, side), amount)
	if err != nil {
		return "", p.reject("insufficient_liquidity", "%v", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.settle(symbol, side, fill.FilledAmount, fill.TotalCost); err != nil {
		return "", err
	}
	o := p.newOrder(symbol, side, models.OrderKindMarket, decimal.Zero, amount)
	o.filled = fill.FilledAmount
	o.quoteCost = fill.TotalCost
	o.status = models.OrderStatusFilled

	p.log.Info("paper market order filled",
		utils.OrderID(o.id), utils.Side(string(side)),
		utils.Volume(amount), utils.Price(fill.VWAP))
	return o.id, nil
}

// SubmitLimitOrder исполняет пересекающую часть, остаток ждёт
func (p *PaperClient) SubmitLimitOrder(ctx context.Context, symbol string, side models.Side, amount, price decimal.Decimal) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !amount.IsPositive() || !price.IsPositive() {
		return "", p.reject("invalid_order", "amount %s and price %s must be positive", amount, price)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// средства проверяются на полный объём
	if err := p.checkFunds(symbol, side, amount, amount.Mul(price)); err != nil {
		return "", err
	}
	o := p.newOrder(symbol, side, models.OrderKindLimit, price, amount)
	o.status = models.OrderStatusSubmitted
	p.match(o)
	return o.id, nil
}

// FetchOrder статус; ждущий лимитный ордер пытается доисполниться
func (p *PaperClient) FetchOrder(ctx context.Context, orderID, _ string) (*models.OrderState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	o, ok := p.orders[orderID]
	if !ok {
		return nil, p.reject("order_not_found", "order %s not found", orderID)
	}
	if !o.status.IsTerminal() {
		p.match(o)
	}
	return o.state(), nil
}

// CancelOrder отменяет неисполненный остаток
func (p *PaperClient) CancelOrder(ctx context.Context, orderID, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	o, ok := p.orders[orderID]
	if !ok {
		return p.reject("order_not_found", "order %s not found", orderID)
	}
	if o.status.IsTerminal() {
		return p.reject("order_closed", "order %s is already %s", orderID, o.status)
	}
	o.status = models.OrderStatusCancelled
	return nil
}

// FetchBalance свободный остаток актива
func (p *PaperClient) FetchBalance(ctx context.Context, asset string) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.balances[strings.ToUpper(asset)], nil
}

// ============ Внутреннее (под p.mu) ============

func (p *PaperClient) newOrder(symbol string, side models.Side, kind models.OrderKind, limit, amount decimal.Decimal) *paperOrder {
	p.seq++
	o := &paperOrder{
		id:     fmt.Sprintf("paper-%s-%d-%d", p.venue, utils.UnixMillis(), p.seq),
		symbol: symbol,
		side:   side,
		kind:   kind,
		limit:  limit,
		amount: amount,
	}
	p.orders[o.id] = o
	return o
}

// match доисполняет лимитный ордер по текущему стакану
func (p *PaperClient) match(o *paperOrder) {
	snap, ok := p.agg.Get(p.venue)
	if !ok || snap == o.matchedOn {
		return
	}
	o.matchedOn = snap
	remaining := o.amount.Sub(o.filled)
	levels := CrossingLevels(bookSide(snap, o.side), o.side, o.limit)
	available := TotalVolume(levels, 0)
	if !available.IsPositive() {
		return
	}

	take := decimal.Min(remaining, available)
	fill, err := SimulateFill(levels, take)
	if err != nil {
		return
	}
	if err := p.settle(o.symbol, o.side, fill.FilledAmount, fill.TotalCost); err != nil {
		p.log.Warn("paper limit fill rejected", utils.OrderID(o.id), utils.Err(err))
		return
	}

	o.filled = o.filled.Add(fill.FilledAmount)
	o.quoteCost = o.quoteCost.Add(fill.TotalCost)
	if o.filled.GreaterThanOrEqual(o.amount) {
		o.status = models.OrderStatusFilled
	} else {
		o.status = models.OrderStatusPartial
	}
}

func (p *PaperClient) checkFunds(symbol string, side models.Side, base, quote decimal.Decimal) error {
	baseAsset := utils.ExtractBaseCurrency(symbol)
	quoteAsset := utils.ExtractQuoteCurrency(symbol)
	if side == models.SideBuy {
		if p.balances[quoteAsset].LessThan(quote) {
			return p.reject("insufficient_balance", "need %s %s, have %s", quote, quoteAsset, p.balances[quoteAsset])
		}
		return nil
	}
	if p.balances[baseAsset].LessThan(base) {
		return p.reject("insufficient_balance", "need %s %s, have %s", base, baseAsset, p.balances[baseAsset])
	}
	return nil
}

// settle переносит балансы по факту исполнения
func (p *PaperClient) settle(symbol string, side models.Side, base, quote decimal.Decimal) error {
	if err := p.checkFunds(symbol, side, base, quote); err != nil {
		return err
	}
	baseAsset := utils.ExtractBaseCurrency(symbol)
	quoteAsset := utils.ExtractQuoteCurrency(symbol)
	if side == models.SideBuy {
		p.balances[quoteAsset] = p.balances[quoteAsset].Sub(quote)
		p.balances[baseAsset] = p.balances[baseAsset].Add(base)
	} else {
		p.balances[baseAsset] = p.balances[baseAsset].Sub(base)
		p.balances[quoteAsset] = p.balances[quoteAsset].Add(quote)
	}
	return nil
}

// bookSide сторона стакана, о которую исполняется ордер
func bookSide(snap *models.OrderBookSnapshot, side models.Side) []models.PriceLevel {
	if side == models.SideBuy {
		return snap.Asks
	}
	return snap.Bids
}

// IsPaperRejection отказ paper-площадки (для тестов и логов)
func IsPaperRejection(err error, code string) bool {
	var exErr *exchange.ExchangeError
	return errors.As(err, &exErr) && exErr.Code == code
}
