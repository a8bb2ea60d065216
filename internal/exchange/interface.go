package exchange

import (
	"context"

	"github.com/shopspring/decimal"

	"crossarb/internal/models"
)

// TradingClient единый интерфейс торговых операций площадки.
//
// Реализация выбирается при сборке (paper или live), а не в местах вызова.
// Все вызовы могут вернуть ошибку связи; ядро считает такие ошибки
// восстановимыми в точке вызова.
type TradingClient interface {
	// Venue площадка клиента
	Venue() models.Venue

	// FetchOrderBook стакан через REST (top-N)
	FetchOrderBook(ctx context.Context, symbol string, depth int) (*models.OrderBookSnapshot, error)

	// SubmitLimitOrder лимитный ордер, возвращает id ордера
	SubmitLimitOrder(ctx context.Context, symbol string, side models.Side, amount, price decimal.Decimal) (string, error)

	// SubmitMarketOrder рыночный ордер, возвращает id ордера
	SubmitMarketOrder(ctx context.Context, symbol string, side models.Side, amount decimal.Decimal) (string, error)

	// FetchOrder статус, исполненный объём и средняя цена
	FetchOrder(ctx context.Context, orderID, symbol string) (*models.OrderState, error)

	// CancelOrder отмена ордера
	CancelOrder(ctx context.Context, orderID, symbol string) error

	// FetchBalance доступный остаток по активу
	FetchBalance(ctx context.Context, asset string) (decimal.Decimal, error)
}

// OrderBookFeed потоковый источник стаканов площадки.
//
// Подписка перезапускаемая: при обрыве транспорта адаптер сам
// переподключается, канал снимков не закрывается. Остановка только
// через ctx или Subscription.Close.
type OrderBookFeed interface {
	Venue() models.Venue
	SubscribeOrderBook(ctx context.Context, symbol string, depth int) (*Subscription[*models.OrderBookSnapshot], error)
}

// TradeFeed потоковый источник сделок (диагностика)
type TradeFeed interface {
	Venue() models.Venue
	SubscribeTrades(ctx context.Context, symbol string, intervalMs int) (*Subscription[[]models.TradeTick], error)
}
