package exchange

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"crossarb/internal/models"
	"crossarb/pkg/utils"
)

// json горячий путь декодирования фреймов стакана
var json = jsoniter.Config{
	EscapeHTML:             false,
	CaseSensitive:          true,
	UseNumber:              true,
	ValidateJsonRawMessage: true,
}.Froze()

// ============ Wire типы ============

// wireLevel уровень в одном из двух форматов:
// массив [price, size] (строки или числа) или объект {"p": ..., "v": ...}
type wireLevel struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

func (l *wireLevel) UnmarshalJSON(data []byte) error {
	data = trimSpace(data)
	if len(data) == 0 {
		return errors.New("empty level")
	}

	var price, size interface{}
	switch data[0] {
	case '[':
		var arr []interface{}
		if err := json.Unmarshal(data, &arr); err != nil {
			return err
		}
		if len(arr) < 2 {
			return errors.Errorf("level has %d fields, want 2", len(arr))
		}
		price, size = arr[0], arr[1]
	case '{':
		var obj struct {
			P interface{} `json:"p"`
			V interface{} `json:"v"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		price, size = obj.P, obj.V
	default:
		return errors.Errorf("unexpected level token %q", data[0])
	}

	var err error
	if l.Price, err = toDecimal(price); err != nil {
		return errors.Wrap(err, "price")
	}
	if l.Size, err = toDecimal(size); err != nil {
		return errors.Wrap(err, "size")
	}
	return nil
}

// wireBook полезная нагрузка стакана (обе площадки)
type wireBook struct {
	Bids         []wireLevel `json:"bids"`
	Asks         []wireLevel `json:"asks"`
	UpdateTime   int64       `json:"updateTime"`
	UpdateID     int64       `json:"updateId"`
	LastUpdateID int64       `json:"lastUpdateId"`
	Version      string      `json:"version"`
	R            string      `json:"r"`
	Ts           int64       `json:"ts"`
	T            int64       `json:"T"`
}

// wireEnvelope общий конверт JSON фрейма
type wireEnvelope struct {
	Code     *int                `json:"code"`
	Msg      string              `json:"msg"`
	Channel  string              `json:"c"`
	Symbol   string              `json:"s"`
	DataType string              `json:"dataType"`
	Data     jsoniter.RawMessage `json:"data"`
	D        jsoniter.RawMessage `json:"d"`
	Ts       int64               `json:"ts"`
	T        int64               `json:"t"`
	ID       string              `json:"id"`
}

// payload data или d (у MEXC v3 тело в "d")
func (e *wireEnvelope) payload() jsoniter.RawMessage {
	if len(e.Data) > 0 && string(e.Data) != "null" {
		return e.Data
	}
	if len(e.D) > 0 && string(e.D) != "null" {
		return e.D
	}
	return nil
}

// ============ Нормализация ============

// SortLevels сортирует уровни: bids по убыванию, asks по возрастанию.
// Стабильная сортировка, повторный вызов не меняет порядок.
func SortLevels(levels []models.PriceLevel, descending bool) {
	sort.SliceStable(levels, func(i, j int) bool {
		if descending {
			return levels[i].Price.GreaterThan(levels[j].Price)
		}
		return levels[i].Price.LessThan(levels[j].Price)
	})
}

// normalizeLevels отбрасывает нулевые уровни, отрицательные значения ошибка
func normalizeLevels(wire []wireLevel, descending bool) ([]models.PriceLevel, error) {
	levels := make([]models.PriceLevel, 0, len(wire))
	for _, w := range wire {
		if w.Price.IsNegative() || w.Size.IsNegative() {
			return nil, errors.Errorf("negative level %s@%s", w.Size, w.Price)
		}
		if w.Price.IsZero() || w.Size.IsZero() {
			continue
		}
		levels = append(levels, models.PriceLevel{Price: w.Price, Size: w.Size})
	}
	SortLevels(levels, descending)
	return levels, nil
}

// buildSnapshot собирает канонический снимок. Пустая сторона = DecodeError,
// частично валидный снимок не публикуется.
func buildSnapshot(venue models.Venue, symbol string, book *wireBook, envelopeTs int64, now time.Time) (*models.OrderBookSnapshot, error) {
	bids, err := normalizeLevels(book.Bids, true)
	if err != nil {
		return nil, newDecodeError(venue, "bids", err)
	}
	asks, err := normalizeLevels(book.Asks, false)
	if err != nil {
		return nil, newDecodeError(venue, "asks", err)
	}
	if len(bids) == 0 || len(asks) == 0 {
		return nil, newDecodeError(venue, "empty book side", nil)
	}

	return &models.OrderBookSnapshot{
		Venue:      venue,
		Symbol:     symbol,
		Bids:       bids,
		Asks:       asks,
		SequenceID: firstNonZero(book.UpdateTime, book.LastUpdateID, book.UpdateID, parseVersion(book.Version), parseVersion(book.R), book.Ts, book.T, envelopeTs),
		ObservedAt: now,
	}, nil
}

// ============ Helpers ============

func toDecimal(v interface{}) (decimal.Decimal, error) {
	switch x := v.(type) {
	case string:
		return decimal.NewFromString(x)
	case fmt.Stringer:
		// json.Number при UseNumber
		return decimal.NewFromString(x.String())
	case float64:
		return decimal.NewFromFloat(x), nil
	case nil:
		return decimal.Zero, errors.New("missing value")
	default:
		return decimal.Zero, errors.Errorf("unsupported value type %T", v)
	}
}

func firstNonZero(values ...int64) int64 {
	for _, v := range values {
		if v != 0 {
			return v
		}
	}
	return 0
}

// parseVersion строковая версия стакана MEXC ("r", version); мусор = 0
func parseVersion(v string) int64 {
	if v == "" {
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func trimSpace(b []byte) []byte {
	i, j := 0, len(b)
	for i < j && (b[i] == ' ' || b[i] == '\n' || b[i] == '\r' || b[i] == '\t') {
		i++
	}
	for j > i && (b[j-1] == ' ' || b[j-1] == '\n' || b[j-1] == '\r' || b[j-1] == '\t') {
		j--
	}
	return b[i:j]
}

// looksLikeText формат-проба: JSON или текстовый служебный фрейм
func looksLikeText(data []byte) bool {
	data = trimSpace(data)
	if len(data) == 0 {
		return true
	}
	switch data[0] {
	case '{', '[':
		return true
	}
	s := string(data)
	return strings.EqualFold(s, "ping") || strings.EqualFold(s, "pong")
}

// venueSymbol BTC-USDC -> BTCUSDC
func venueSymbol(symbol string) string {
	return utils.NormalizeSymbol(symbol)
}

// dashSymbol BTCUSDC/BTC-USDC/btc_usdc -> BTC-USDC
func dashSymbol(symbol string) string {
	s := strings.ToUpper(strings.NewReplacer("/", "-", "_", "-").Replace(symbol))
	if strings.Contains(s, "-") {
		return s
	}
	base, quote := utils.ExtractBaseCurrency(s), utils.ExtractQuoteCurrency(s)
	if base == "" || quote == "" {
		return s
	}
	return base + "-" + quote
}
