package exchange

import (
	"context"
	"fmt"
	"strings"

	"github.com/gorilla/websocket"

	"crossarb/internal/models"
	"crossarb/pkg/utils"
)

// MEXC spot websocket
var mexcWSEndpoints = []string{
	"wss://wbs-api.mexc.com/ws",
	"wss://wbs.mexc.com/ws",
}

const (
	mexcDepthChannel = "spot@public.limit.depth.v3.api@%s@%d"
	mexcDealsChannel = "spot@public.aggre.deals.v3.api.pb@%dms@%s"
)

var mexcKeepalive = []byte(`{"method":"PING"}`)

// mexcRequest SUBSCRIPTION / PING
type mexcRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params,omitempty"`
}

// MEXCFeed потоковый адаптер MEXC: JSON стакан, бинарные сделки
type MEXCFeed struct {
	cfg   FeedConfig
	log   *utils.Logger
	clock venueClock
}

// NewMEXCFeed создаёт адаптер
func NewMEXCFeed(cfg FeedConfig, log *utils.Logger) *MEXCFeed {
	if log == nil {
		log = utils.L()
	}
	return &MEXCFeed{cfg: cfg, log: log.WithComponent("feed").WithVenue(models.VenueMEXC.String())}
}

func (f *MEXCFeed) Venue() models.Venue { return models.VenueMEXC }

// mexcDepth допустимые глубины limit depth: 5, 10, 20
func mexcDepth(depth int) int {
	switch {
	case depth <= 5:
		return 5
	case depth <= 10:
		return 10
	default:
		return 20
	}
}

// SubscribeOrderBook подписка на полный top-N стакан
func (f *MEXCFeed) SubscribeOrderBook(ctx context.Context, symbol string, depth int) (*Subscription[*models.OrderBookSnapshot], error) {
	if err := utils.ValidateSymbol(symbol); err != nil {
		return nil, err
	}
	channel := fmt.Sprintf(mexcDepthChannel, venueSymbol(symbol), mexcDepth(depth))

	mgr := NewWSReconnectManager(models.VenueMEXC, f.cfg.wsConfig(mexcWSEndpoints, mexcKeepalive), f.log)
	mgr.AddSubscription(mexcRequest{Method: "SUBSCRIPTION", Params: []string{channel}})

	decode := func(messageType int, data []byte) (*models.OrderBookSnapshot, bool, error) {
		return f.decodeDepth(messageType, data, symbol)
	}
	return startStream(ctx, mgr, f.cfg.Buffer, "depth", decode, f.log.WithSymbol(symbol)), nil
}

// SubscribeTrades подписка на агрегированные сделки (protobuf)
func (f *MEXCFeed) SubscribeTrades(ctx context.Context, symbol string, intervalMs int) (*Subscription[[]models.TradeTick], error) {
	if err := utils.ValidateSymbol(symbol); err != nil {
		return nil, err
	}
	if intervalMs <= 0 {
		intervalMs = 100
	}
	channel := fmt.Sprintf(mexcDealsChannel, intervalMs, venueSymbol(symbol))

	mgr := NewWSReconnectManager(models.VenueMEXC, f.cfg.wsConfig(mexcWSEndpoints, mexcKeepalive), f.log)
	mgr.AddSubscription(mexcRequest{Method: "SUBSCRIPTION", Params: []string{channel}})

	decode := func(messageType int, data []byte) ([]models.TradeTick, bool, error) {
		return f.decodeTrades(messageType, data, symbol)
	}
	return startStream(ctx, mgr, f.cfg.Buffer, "trades", decode, f.log.WithSymbol(symbol)), nil
}

// decodeDepth формат-проба: текст -> JSON, иначе protobuf обёртка
func (f *MEXCFeed) decodeDepth(messageType int, data []byte, symbol string) (*models.OrderBookSnapshot, bool, error) {
	if messageType == websocket.BinaryMessage && !looksLikeText(data) {
		w, err := parsePushWrapper(data)
		if err != nil {
			return nil, false, newDecodeError(models.VenueMEXC, "push wrapper", err)
		}
		if w.LimitDepth == nil {
			return nil, false, nil
		}
		book, err := parseLimitDepth(w.LimitDepth)
		if err != nil {
			return nil, false, newDecodeError(models.VenueMEXC, "limit depth", err)
		}
		snap, err := buildSnapshot(models.VenueMEXC, symbol, book, firstNonZero(w.SendTime, w.CreateTime), f.clock.now())
		if err != nil {
			return nil, false, err
		}
		return snap, true, nil
	}

	env, ok, err := f.decodeControl(data)
	if err != nil || !ok {
		return nil, false, err
	}

	var book wireBook
	if err := json.Unmarshal(env.payload(), &book); err != nil {
		return nil, false, newDecodeError(models.VenueMEXC, "depth payload", err)
	}
	snap, err := buildSnapshot(models.VenueMEXC, symbol, &book, firstNonZero(env.T, env.Ts), f.clock.now())
	if err != nil {
		return nil, false, err
	}
	return snap, true, nil
}

// decodeTrades бинарные агрегированные сделки; текстовые фреймы только служебные
func (f *MEXCFeed) decodeTrades(messageType int, data []byte, symbol string) ([]models.TradeTick, bool, error) {
	if messageType == websocket.TextMessage || looksLikeText(data) {
		_, _, err := f.decodeControl(data)
		return nil, false, err
	}

	w, err := parsePushWrapper(data)
	if err != nil {
		return nil, false, newDecodeError(models.VenueMEXC, "push wrapper", err)
	}
	if w.AggreDeals == nil {
		return nil, false, nil
	}
	deals, _, err := parseAggreDeals(w.AggreDeals)
	if err != nil {
		return nil, false, newDecodeError(models.VenueMEXC, "aggre deals", err)
	}
	ticks, err := dealsToTicks(symbol, deals)
	if err != nil {
		return nil, false, newDecodeError(models.VenueMEXC, "deal fields", err)
	}
	if len(ticks) == 0 {
		return nil, false, nil
	}
	return ticks, true, nil
}

// decodeControl разбирает JSON конверт.
// ok=true только если в конверте есть данные.
// Ненулевой code логируется и сообщение отбрасывается, соединение живёт.
func (f *MEXCFeed) decodeControl(data []byte) (*wireEnvelope, bool, error) {
	trimmed := trimSpace(data)
	if len(trimmed) == 0 || strings.EqualFold(string(trimmed), "pong") {
		return nil, false, nil
	}

	var env wireEnvelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, false, newDecodeError(models.VenueMEXC, "envelope", err)
	}

	if env.Code != nil && *env.Code != 0 {
		f.log.Warn("subscription error",
			utils.Int("code", *env.Code),
			utils.String("msg", env.Msg))
		return nil, false, nil
	}
	if env.payload() == nil {
		// ack подписки или PONG
		return &env, false, nil
	}
	return &env, true, nil
}
