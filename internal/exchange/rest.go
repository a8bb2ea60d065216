package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"crossarb/internal/models"
	"crossarb/pkg/ratelimit"
	"crossarb/pkg/retry"
	"crossarb/pkg/utils"
)

// Категории лимитов запросов
const (
	limitMarket  = ratelimit.Market
	limitOrder   = ratelimit.Order
	limitAccount = ratelimit.Account
)

// Credentials ключи API площадки
type Credentials struct {
	APIKey    string
	SecretKey string
}

// RESTConfig параметры REST клиента
type RESTConfig struct {
	BaseURL     string
	Credentials Credentials
	// Retry только для чтения и отмены; размещение ордера не повторяется
	Retry retry.Config
	// RecvWindow окно валидности подписи
	RecvWindow time.Duration
}

// restClient общая часть подписанных REST клиентов
type restClient struct {
	venue    models.Venue
	baseURL  string
	creds    Credentials
	keyHdr   string
	http     *http.Client
	limiter  *ratelimit.Limiter
	retryCfg retry.Config
	recv     time.Duration
	log      *utils.Logger
	now      func() time.Time

	// checkBody разбор кода ошибки в теле ответа площадки
	checkBody func(status int, body []byte) error
}

func newRESTClient(venue models.Venue, cfg RESTConfig, keyHeader string, log *utils.Logger) *restClient {
	if log == nil {
		log = utils.L()
	}
	retryCfg := cfg.Retry
	if retryCfg.MaxRetries == 0 {
		retryCfg = retry.DefaultConfig()
	}
	retryCfg.RetryIf = retry.RetryIfTemporary

	recv := cfg.RecvWindow
	if recv <= 0 {
		recv = 5 * time.Second
	}

	return &restClient{
		venue:    venue,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		creds:    cfg.Credentials,
		keyHdr:   keyHeader,
		http:     GetGlobalHTTPClient().GetClient(),
		limiter:  ratelimit.NewLimiter(ratelimit.VenueLimits(venue.String())),
		retryCfg: retryCfg,
		recv:     recv,
		log:      log.WithComponent("rest").WithVenue(venue.String()),
		now:      time.Now,
	}
}

// sign HMAC-SHA256 hex от строки запроса
func sign(secret, payload string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(payload))
	return hex.EncodeToString(h.Sum(nil))
}

// signQuery добавляет timestamp, recvWindow и signature
func (c *restClient) signQuery(params url.Values) string {
	params.Set("timestamp", strconv.FormatInt(c.now().UnixMilli(), 10))
	params.Set("recvWindow", strconv.FormatInt(c.recv.Milliseconds(), 10))
	query := params.Encode()
	return query + "&signature=" + sign(c.creds.SecretKey, query)
}

// do один HTTP запрос без повторов
func (c *restClient) do(ctx context.Context, method, endpoint string, category ratelimit.Category, params url.Values, signed bool) ([]byte, error) {
	if err := c.limiter.Wait(ctx, category); err != nil {
		return nil, err
	}
	if params == nil {
		params = url.Values{}
	}

	query := params.Encode()
	if signed {
		query = c.signQuery(params)
	}
	reqURL := c.baseURL + endpoint
	if query != "" {
		reqURL += "?" + query
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.creds.APIKey != "" {
		req.Header.Set(c.keyHdr, c.creds.APIKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	RESTLatency.WithLabelValues(c.venue.String(), endpoint).Observe(float64(time.Since(start).Microseconds()) / 1000)
	if err != nil {
		RESTErrors.WithLabelValues(c.venue.String(), "transport").Inc()
		return nil, &TransportError{Venue: c.venue, Op: method + " " + endpoint, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		RESTErrors.WithLabelValues(c.venue.String(), "transport").Inc()
		return nil, &TransportError{Venue: c.venue, Op: "read body", Err: err}
	}

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		RESTErrors.WithLabelValues(c.venue.String(), "transport").Inc()
		return nil, &TransportError{Venue: c.venue, Op: method + " " + endpoint, Err: errors.Errorf("http %d", resp.StatusCode)}
	}
	if err := c.checkBody(resp.StatusCode, body); err != nil {
		RESTErrors.WithLabelValues(c.venue.String(), "exchange").Inc()
		return nil, err
	}
	return body, nil
}

// doRetry запрос с повтором только транспортных ошибок
func (c *restClient) doRetry(ctx context.Context, method, endpoint string, category ratelimit.Category, params url.Values, signed bool) ([]byte, error) {
	cfg := c.retryCfg
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		c.log.Warn("retrying request",
			utils.String("endpoint", endpoint),
			utils.Int("attempt", attempt),
			utils.Duration("delay", delay),
			utils.Err(err))
	}
	return retry.DoWithResult(ctx, func() ([]byte, error) {
		// копия: signQuery дописывает timestamp
		p := url.Values{}
		for k, v := range params {
			p[k] = append([]string(nil), v...)
		}
		return c.do(ctx, method, endpoint, category, p, signed)
	}, cfg)
}

// ============ Общие преобразования ============

// flexString значение, приходящее то строкой, то числом (orderId)
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = trimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	*f = flexString(string(data))
	return nil
}

// mapOrderStatus статусы Binance-подобных API (обе площадки)
func mapOrderStatus(status string) models.OrderStatus {
	switch strings.ToUpper(status) {
	case "NEW", "PENDING":
		return models.OrderStatusSubmitted
	case "PARTIALLY_FILLED":
		return models.OrderStatusPartial
	case "FILLED":
		return models.OrderStatusFilled
	case "CANCELED", "CANCELLED", "PARTIALLY_CANCELED", "EXPIRED":
		return models.OrderStatusCancelled
	case "REJECTED", "FAILED":
		return models.OrderStatusFailed
	default:
		return models.OrderStatusSubmitted
	}
}

// orderState из executedQty и cummulativeQuoteQty
func orderState(orderID, status, executed, quote string) (*models.OrderState, error) {
	filled, err := decimal.NewFromString(defaultZero(executed))
	if err != nil {
		return nil, errors.Wrap(err, "executedQty")
	}
	quoteQty, err := decimal.NewFromString(defaultZero(quote))
	if err != nil {
		return nil, errors.Wrap(err, "cummulativeQuoteQty")
	}
	avg := decimal.Zero
	if filled.IsPositive() {
		avg = quoteQty.Div(filled)
	}
	return &models.OrderState{
		OrderID: orderID,
		Status:  mapOrderStatus(status),
		Filled:  filled,
		Average: avg,
	}, nil
}

func defaultZero(s string) string {
	if s == "" {
		return "0"
	}
	return s
}

func sideParam(side models.Side) string {
	return strings.ToUpper(string(side))
}
