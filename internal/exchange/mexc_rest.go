package exchange

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"crossarb/internal/models"
	"crossarb/pkg/utils"
)

const mexcBaseURL = "https://api.mexc.com"

// MEXCClient торговый REST клиент MEXC spot v3
type MEXCClient struct {
	rc *restClient
}

// NewMEXCClient создаёт клиент. Пустой BaseURL = боевой адрес.
func NewMEXCClient(cfg RESTConfig, log *utils.Logger) *MEXCClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = mexcBaseURL
	}
	rc := newRESTClient(models.VenueMEXC, cfg, "X-MEXC-APIKEY", log)
	rc.checkBody = mexcCheckBody
	return &MEXCClient{rc: rc}
}

// mexcCheckBody ошибки MEXC: HTTP 4xx с {"code":..., "msg":...}
func mexcCheckBody(status int, body []byte) error {
	if status < 400 {
		return nil
	}
	var resp struct {
		Code flexString `json:"code"`
		Msg  string     `json:"msg"`
	}
	if err := json.Unmarshal(body, &resp); err != nil || resp.Code == "" {
		return &ExchangeError{Venue: models.VenueMEXC, Code: strconv.Itoa(status), Message: string(body)}
	}
	return &ExchangeError{Venue: models.VenueMEXC, Code: string(resp.Code), Message: resp.Msg}
}

func (c *MEXCClient) Venue() models.Venue { return models.VenueMEXC }

// FetchOrderBook GET /api/v3/depth
func (c *MEXCClient) FetchOrderBook(ctx context.Context, symbol string, depth int) (*models.OrderBookSnapshot, error) {
	params := url.Values{}
	params.Set("symbol", venueSymbol(symbol))
	params.Set("limit", strconv.Itoa(depth))

	body, err := c.rc.doRetry(ctx, http.MethodGet, "/api/v3/depth", limitMarket, params, false)
	if err != nil {
		return nil, err
	}

	var book wireBook
	if err := json.Unmarshal(body, &book); err != nil {
		return nil, newDecodeError(models.VenueMEXC, "depth response", err)
	}
	return buildSnapshot(models.VenueMEXC, symbol, &book, 0, c.rc.now())
}

// SubmitLimitOrder POST /api/v3/order type=LIMIT
func (c *MEXCClient) SubmitLimitOrder(ctx context.Context, symbol string, side models.Side, amount, price decimal.Decimal) (string, error) {
	params := url.Values{}
	params.Set("type", "LIMIT")
	params.Set("price", price.String())
	return c.submit(ctx, symbol, side, amount, params)
}

// SubmitMarketOrder POST /api/v3/order type=MARKET
func (c *MEXCClient) SubmitMarketOrder(ctx context.Context, symbol string, side models.Side, amount decimal.Decimal) (string, error) {
	params := url.Values{}
	params.Set("type", "MARKET")
	return c.submit(ctx, symbol, side, amount, params)
}

// submit без повторов: повтор размещения под устаревшей ценой небезопасен
func (c *MEXCClient) submit(ctx context.Context, symbol string, side models.Side, amount decimal.Decimal, params url.Values) (string, error) {
	params.Set("symbol", venueSymbol(symbol))
	params.Set("side", sideParam(side))
	params.Set("quantity", amount.String())
	params.Set("newClientOrderId", strings.ReplaceAll(uuid.NewString(), "-", ""))

	body, err := c.rc.do(ctx, http.MethodPost, "/api/v3/order", limitOrder, params, true)
	if err != nil {
		return "", err
	}

	var resp struct {
		OrderID flexString `json:"orderId"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", newDecodeError(models.VenueMEXC, "order response", err)
	}
	if resp.OrderID == "" {
		return "", &ExchangeError{Venue: models.VenueMEXC, Code: "empty_order_id", Message: string(body)}
	}
	return string(resp.OrderID), nil
}

// FetchOrder GET /api/v3/order
func (c *MEXCClient) FetchOrder(ctx context.Context, orderID, symbol string) (*models.OrderState, error) {
	params := url.Values{}
	params.Set("symbol", venueSymbol(symbol))
	params.Set("orderId", orderID)

	body, err := c.rc.doRetry(ctx, http.MethodGet, "/api/v3/order", limitOrder, params, true)
	if err != nil {
		return nil, err
	}

	var resp struct {
		OrderID             flexString `json:"orderId"`
		Status              string     `json:"status"`
		ExecutedQty         string     `json:"executedQty"`
		CummulativeQuoteQty string     `json:"cummulativeQuoteQty"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, newDecodeError(models.VenueMEXC, "order status", err)
	}
	state, err := orderState(orderID, resp.Status, resp.ExecutedQty, resp.CummulativeQuoteQty)
	if err != nil {
		return nil, newDecodeError(models.VenueMEXC, "order status", err)
	}
	return state, nil
}

// CancelOrder DELETE /api/v3/order
func (c *MEXCClient) CancelOrder(ctx context.Context, orderID, symbol string) error {
	params := url.Values{}
	params.Set("symbol", venueSymbol(symbol))
	params.Set("orderId", orderID)

	_, err := c.rc.doRetry(ctx, http.MethodDelete, "/api/v3/order", limitOrder, params, true)
	return err
}

// FetchBalance GET /api/v3/account, свободный остаток
func (c *MEXCClient) FetchBalance(ctx context.Context, asset string) (decimal.Decimal, error) {
	body, err := c.rc.doRetry(ctx, http.MethodGet, "/api/v3/account", limitAccount, nil, true)
	if err != nil {
		return decimal.Zero, err
	}

	var resp struct {
		Balances []struct {
			Asset string `json:"asset"`
			Free  string `json:"free"`
		} `json:"balances"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return decimal.Zero, newDecodeError(models.VenueMEXC, "account", err)
	}
	for _, b := range resp.Balances {
		if strings.EqualFold(b.Asset, asset) {
			free, err := decimal.NewFromString(defaultZero(b.Free))
			if err != nil {
				return decimal.Zero, newDecodeError(models.VenueMEXC, "balance", err)
			}
			return free, nil
		}
	}
	return decimal.Zero, nil
}
