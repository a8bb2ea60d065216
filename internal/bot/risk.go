package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"crossarb/internal/exchange"
	"crossarb/internal/models"
	"crossarb/pkg/retry"
	"crossarb/pkg/utils"
)

// RiskGuard - проверки капитала вокруг исполнения
//
// Функции:
// - Остатки по площадкам для ограничения объёма детектора
// - Проверка средств на обе ноги перед размещением
// - Остановка торговли после PARTIAL до ручного сброса
type RiskGuard struct {
	symbol  string
	base    string
	quote   string
	clients map[models.Venue]exchange.TradingClient
	retry   retry.Config
	log     *utils.Logger

	mu       sync.RWMutex
	balances Balances
	syncedAt time.Time

	haltMu     sync.RWMutex
	halted     bool
	haltReason string
}

// NewRiskGuard создаёт guard для символа
func NewRiskGuard(symbol string, clients map[models.Venue]exchange.TradingClient, log *utils.Logger) *RiskGuard {
	if log == nil {
		log = utils.L()
	}
	cfg := retry.BalanceConfig()
	cfg.RetryIf = retry.RetryIfTemporary
	return &RiskGuard{
		symbol:  symbol,
		base:    utils.ExtractBaseCurrency(symbol),
		quote:   utils.ExtractQuoteCurrency(symbol),
		clients: clients,
		retry:   cfg,
		log:     log.WithComponent("risk"),
	}
}

// ============================================================
// Балансы
// ============================================================

// RefreshBalances запрашивает остатки всех площадок параллельно.
// Площадка с ошибкой сохраняет прошлое значение.
func (g *RiskGuard) RefreshBalances(ctx context.Context) (Balances, error) {
	type result struct {
		venue models.Venue
		bal   Balance
		err   error
	}

	results := make(chan result, len(g.clients))
	var wg sync.WaitGroup
	for venue, client := range g.clients {
		wg.Add(1)
		go func(venue models.Venue, client exchange.TradingClient) {
			defer wg.Done()
			bal, err := g.fetchBalance(ctx, client)
			results <- result{venue: venue, bal: bal, err: err}
		}(venue, client)
	}
	wg.Wait()
	close(results)

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.balances == nil {
		g.balances = make(Balances, len(g.clients))
	}

	var firstErr error
	for r := range results {
		if r.err != nil {
			g.log.Warn("balance refresh failed", utils.Venue(r.venue.String()), utils.Err(r.err))
			if firstErr == nil {
				firstErr = fmt.Errorf("%s balance: %w", r.venue, r.err)
			}
			continue
		}
		g.balances[r.venue] = r.bal
		UpdateBalance(r.venue.String(), g.base, r.bal.Base.InexactFloat64())
		UpdateBalance(r.venue.String(), g.quote, r.bal.Quote.InexactFloat64())
	}
	g.syncedAt = time.Now()
	return g.copyBalances(), firstErr
}

func (g *RiskGuard) fetchBalance(ctx context.Context, client exchange.TradingClient) (Balance, error) {
	base, err := retry.DoWithResult(ctx, func() (decimal.Decimal, error) {
		return client.FetchBalance(ctx, g.base)
	}, g.retry)
	if err != nil {
		return Balance{}, err
	}
	quote, err := retry.DoWithResult(ctx, func() (decimal.Decimal, error) {
		return client.FetchBalance(ctx, g.quote)
	}, g.retry)
	if err != nil {
		return Balance{}, err
	}
	return Balance{Base: base, Quote: quote}, nil
}

// Balances последние известные остатки (копия), nil до первого обновления
func (g *RiskGuard) Balances() Balances {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.copyBalances()
}

func (g *RiskGuard) copyBalances() Balances {
	if g.balances == nil {
		return nil
	}
	out := make(Balances, len(g.balances))
	for k, v := range g.balances {
		out[k] = v
	}
	return out
}

// CheckBothLegs хватает ли средств: котируемой валюты на покупку по
// лимитной цене и базовой на продажу. Запрашивает остатки заново.
func (g *RiskGuard) CheckBothLegs(ctx context.Context, opp *models.ArbitrageOpportunity) error {
	buyClient, okBuy := g.clients[opp.BuyVenue]
	sellClient, okSell := g.clients[opp.SellVenue]
	if !okBuy || !okSell {
		return validationErrorf("balance", "no trading client for %s or %s", opp.BuyVenue, opp.SellVenue)
	}

	var wg sync.WaitGroup
	var quote, base decimal.Decimal
	var quoteErr, baseErr error

	wg.Add(2)
	go func() {
		defer wg.Done()
		quote, quoteErr = buyClient.FetchBalance(ctx, g.quote)
	}()
	go func() {
		defer wg.Done()
		base, baseErr = sellClient.FetchBalance(ctx, g.base)
	}()
	wg.Wait()

	if quoteErr != nil {
		return validationErrorf("balance", "%s %s balance: %v", opp.BuyVenue, g.quote, quoteErr)
	}
	if baseErr != nil {
		return validationErrorf("balance", "%s %s balance: %v", opp.SellVenue, g.base, baseErr)
	}

	price := opp.BuyWorstPrice
	if !price.IsPositive() {
		price = opp.BuyPrice
	}
	if need := opp.Volume.Mul(price); quote.LessThan(need) {
		return validationErrorf("balance", "%s: need %s %s, have %s", opp.BuyVenue, need, g.quote, quote)
	}
	if base.LessThan(opp.Volume) {
		return validationErrorf("balance", "%s: need %s %s, have %s", opp.SellVenue, opp.Volume, g.base, base)
	}
	return nil
}

// ============================================================
// Остановка после PARTIAL
// ============================================================

// Halt останавливает новые исполнения
func (g *RiskGuard) Halt(reason string) {
	g.haltMu.Lock()
	defer g.haltMu.Unlock()
	g.halted = true
	g.haltReason = reason
	g.log.Error("trading halted", utils.String("reason", reason))
}

// Resume ручной сброс остановки
func (g *RiskGuard) Resume() {
	g.haltMu.Lock()
	defer g.haltMu.Unlock()
	if g.halted {
		g.log.Info("trading resumed", utils.String("previous_reason", g.haltReason))
	}
	g.halted = false
	g.haltReason = ""
}

// Halted остановлена ли торговля и почему
func (g *RiskGuard) Halted() (bool, string) {
	g.haltMu.RLock()
	defer g.haltMu.RUnlock()
	return g.halted, g.haltReason
}
