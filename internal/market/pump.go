package market

import (
	"context"

	"crossarb/internal/exchange"
	"crossarb/pkg/utils"
)

// PumpOrderBooks переносит снимки фида в агрегатор до отмены ctx.
// Фид сам переподключается, поэтому выход только по ctx.
func PumpOrderBooks(ctx context.Context, feed exchange.OrderBookFeed, agg *Aggregator, depth int, log *utils.Logger) error {
	sub, err := feed.SubscribeOrderBook(ctx, agg.Symbol(), depth)
	if err != nil {
		return err
	}
	defer sub.Close()

	if log == nil {
		log = utils.L()
	}
	log = log.WithComponent("pump").WithVenue(feed.Venue().String())
	log.Info("order book pump started", utils.Int("depth", depth))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case snap, ok := <-sub.C:
			if !ok {
				return ctx.Err()
			}
			if err := agg.Update(feed.Venue(), snap); err != nil {
				log.Warn("snapshot rejected", utils.Err(err))
			}
		}
	}
}

// PumpTrades переносит сделки в диагностический слот агрегатора
func PumpTrades(ctx context.Context, feed exchange.TradeFeed, agg *Aggregator, intervalMs int, log *utils.Logger) error {
	sub, err := feed.SubscribeTrades(ctx, agg.Symbol(), intervalMs)
	if err != nil {
		return err
	}
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ticks, ok := <-sub.C:
			if !ok {
				return ctx.Err()
			}
			agg.RecordTrades(feed.Venue(), ticks)
		}
	}
}
