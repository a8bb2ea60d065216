package exchange

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"crossarb/internal/models"
	"crossarb/pkg/utils"
)

var bingxWSEndpoints = []string{
	"wss://open-api-ws.bingx.com/market",
}

// bingxRequest {id, reqType:"sub", dataType:"BTC-USDC@depth50"}
type bingxRequest struct {
	ID       string `json:"id"`
	ReqType  string `json:"reqType"`
	DataType string `json:"dataType"`
}

// BingXFeed потоковый адаптер BingX. Каждый фрейм сжат gzip.
type BingXFeed struct {
	cfg   FeedConfig
	log   *utils.Logger
	clock venueClock
}

// NewBingXFeed создаёт адаптер
func NewBingXFeed(cfg FeedConfig, log *utils.Logger) *BingXFeed {
	if log == nil {
		log = utils.L()
	}
	return &BingXFeed{cfg: cfg, log: log.WithComponent("feed").WithVenue(models.VenueBingX.String())}
}

func (f *BingXFeed) Venue() models.Venue { return models.VenueBingX }

// bingxDepth допустимые глубины: 5, 10, 20, 50, 100
func bingxDepth(depth int) int {
	for _, d := range []int{5, 10, 20, 50} {
		if depth <= d {
			return d
		}
	}
	return 100
}

// SubscribeOrderBook подписка на полный top-N стакан
func (f *BingXFeed) SubscribeOrderBook(ctx context.Context, symbol string, depth int) (*Subscription[*models.OrderBookSnapshot], error) {
	if err := utils.ValidateSymbol(symbol); err != nil {
		return nil, err
	}
	dataType := fmt.Sprintf("%s@depth%d", dashSymbol(symbol), bingxDepth(depth))

	// keepalive протокольными ping фреймами (KeepaliveMessage = nil)
	mgr := NewWSReconnectManager(models.VenueBingX, f.cfg.wsConfig(bingxWSEndpoints, nil), f.log)
	mgr.AddSubscription(bingxRequest{
		ID:       strings.ReplaceAll(uuid.NewString(), "-", ""),
		ReqType:  "sub",
		DataType: dataType,
	})

	decode := func(_ int, data []byte) (*models.OrderBookSnapshot, bool, error) {
		return f.decodeDepth(mgr, data, symbol)
	}
	return startStream(ctx, mgr, f.cfg.Buffer, "depth", decode, f.log.WithSymbol(symbol)), nil
}

// decodeDepth gzip -> Ping/JSON
func (f *BingXFeed) decodeDepth(mgr *WSReconnectManager, data []byte, symbol string) (*models.OrderBookSnapshot, bool, error) {
	payload, err := gunzip(data)
	if err != nil {
		return nil, false, newDecodeError(models.VenueBingX, "gzip", err)
	}

	text := trimSpace(payload)
	if strings.EqualFold(string(text), "ping") {
		if err := mgr.SendText([]byte("Pong")); err != nil {
			f.log.Warn("pong failed", utils.Err(err))
		}
		return nil, false, nil
	}

	var env wireEnvelope
	if err := json.Unmarshal(text, &env); err != nil {
		return nil, false, newDecodeError(models.VenueBingX, "envelope", err)
	}
	if env.Code != nil && *env.Code != 0 {
		f.log.Warn("subscription error",
			utils.Int("code", *env.Code),
			utils.String("msg", env.Msg),
			utils.String("data_type", env.DataType))
		return nil, false, nil
	}
	raw := env.payload()
	if raw == nil {
		return nil, false, nil
	}

	var book wireBook
	if err := json.Unmarshal(raw, &book); err != nil {
		return nil, false, newDecodeError(models.VenueBingX, "depth payload", err)
	}
	snap, err := buildSnapshot(models.VenueBingX, symbol, &book, firstNonZero(env.Ts, env.T), f.clock.now())
	if err != nil {
		return nil, false, err
	}
	return snap, true, nil
}

// gunzip распаковка фрейма. Несжатый фрейм возвращается как есть.
func gunzip(data []byte) ([]byte, error) {
	if len(data) < 2 || data[0] != 0x1f || data[1] != 0x8b {
		return data, nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "gzip header")
	}
	defer zr.Close()

	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, errors.Wrap(err, "gzip body")
	}
	return out, nil
}
