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

const bingxBaseURL = "https://open-api.bingx.com"

// BingXClient торговый REST клиент BingX spot
type BingXClient struct {
	rc *restClient
}

// NewBingXClient создаёт клиент. Пустой BaseURL = боевой адрес.
func NewBingXClient(cfg RESTConfig, log *utils.Logger) *BingXClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = bingxBaseURL
	}
	rc := newRESTClient(models.VenueBingX, cfg, "X-BX-APIKEY", log)
	rc.checkBody = bingxCheckBody
	return &BingXClient{rc: rc}
}

// bingxCheckBody BingX всегда отвечает {"code":0, "msg":"", "data":...}
func bingxCheckBody(status int, body []byte) error {
	var resp struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		if status >= 400 {
			return &ExchangeError{Venue: models.VenueBingX, Code: strconv.Itoa(status), Message: string(body)}
		}
		return newDecodeError(models.VenueBingX, "response envelope", err)
	}
	if resp.Code != 0 {
		return &ExchangeError{Venue: models.VenueBingX, Code: strconv.Itoa(resp.Code), Message: resp.Msg}
	}
	return nil
}

func (c *BingXClient) Venue() models.Venue { return models.VenueBingX }

// FetchOrderBook GET /openApi/spot/v1/market/depth
func (c *BingXClient) FetchOrderBook(ctx context.Context, symbol string, depth int) (*models.OrderBookSnapshot, error) {
	params := url.Values{}
	params.Set("symbol", dashSymbol(symbol))
	params.Set("limit", strconv.Itoa(depth))

	body, err := c.rc.doRetry(ctx, http.MethodGet, "/openApi/spot/v1/market/depth", limitMarket, params, false)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Data wireBook `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, newDecodeError(models.VenueBingX, "depth response", err)
	}
	return buildSnapshot(models.VenueBingX, symbol, &resp.Data, 0, c.rc.now())
}

// SubmitLimitOrder POST /openApi/spot/v1/trade/order type=LIMIT
func (c *BingXClient) SubmitLimitOrder(ctx context.Context, symbol string, side models.Side, amount, price decimal.Decimal) (string, error) {
	params := url.Values{}
	params.Set("type", "LIMIT")
	params.Set("price", price.String())
	params.Set("timeInForce", "GTC")
	return c.submit(ctx, symbol, side, amount, params)
}

// SubmitMarketOrder POST /openApi/spot/v1/trade/order type=MARKET
func (c *BingXClient) SubmitMarketOrder(ctx context.Context, symbol string, side models.Side, amount decimal.Decimal) (string, error) {
	params := url.Values{}
	params.Set("type", "MARKET")
	return c.submit(ctx, symbol, side, amount, params)
}

func (c *BingXClient) submit(ctx context.Context, symbol string, side models.Side, amount decimal.Decimal, params url.Values) (string, error) {
	params.Set("symbol", dashSymbol(symbol))
	params.Set("side", sideParam(side))
	params.Set("quantity", amount.String())
	params.Set("newClientOrderId", strings.ReplaceAll(uuid.NewString(), "-", ""))

	body, err := c.rc.do(ctx, http.MethodPost, "/openApi/spot/v1/trade/order", limitOrder, params, true)
	if err != nil {
		return "", err
	}

	var resp struct {
		Data struct {
			OrderID flexString `json:"orderId"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", newDecodeError(models.VenueBingX, "order response", err)
	}
	if resp.Data.OrderID == "" {
		return "", &ExchangeError{Venue: models.VenueBingX, Code: "empty_order_id", Message: string(body)}
	}
	return string(resp.Data.OrderID), nil
}

// FetchOrder GET /openApi/spot/v1/trade/query
func (c *BingXClient) FetchOrder(ctx context.Context, orderID, symbol string) (*models.OrderState, error) {
	params := url.Values{}
	params.Set("symbol", dashSymbol(symbol))
	params.Set("orderId", orderID)

	body, err := c.rc.doRetry(ctx, http.MethodGet, "/openApi/spot/v1/trade/query", limitOrder, params, true)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Data struct {
			Status              string `json:"status"`
			ExecutedQty         string `json:"executedQty"`
			CummulativeQuoteQty string `json:"cummulativeQuoteQty"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, newDecodeError(models.VenueBingX, "order status", err)
	}
	state, err := orderState(orderID, resp.Data.Status, resp.Data.ExecutedQty, resp.Data.CummulativeQuoteQty)
	if err != nil {
		return nil, newDecodeError(models.VenueBingX, "order status", err)
	}
	return state, nil
}

// CancelOrder POST /openApi/spot/v1/trade/cancel
func (c *BingXClient) CancelOrder(ctx context.Context, orderID, symbol string) error {
	params := url.Values{}
	params.Set("symbol", dashSymbol(symbol))
	params.Set("orderId", orderID)

	_, err := c.rc.doRetry(ctx, http.MethodPost, "/openApi/spot/v1/trade/cancel", limitOrder, params, true)
	return err
}

// FetchBalance GET /openApi/spot/v1/account/balance
func (c *BingXClient) FetchBalance(ctx context.Context, asset string) (decimal.Decimal, error) {
	body, err := c.rc.doRetry(ctx, http.MethodGet, "/openApi/spot/v1/account/balance", limitAccount, nil, true)
	if err != nil {
		return decimal.Zero, err
	}

	var resp struct {
		Data struct {
			Balances []struct {
				Asset string `json:"asset"`
				Free  string `json:"free"`
			} `json:"balances"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return decimal.Zero, newDecodeError(models.VenueBingX, "balance", err)
	}
	for _, b := range resp.Data.Balances {
		if strings.EqualFold(b.Asset, asset) {
			free, err := decimal.NewFromString(defaultZero(b.Free))
			if err != nil {
				return decimal.Zero, newDecodeError(models.VenueBingX, "balance", err)
			}
			return free, nil
		}
	}
	return decimal.Zero, nil
}
