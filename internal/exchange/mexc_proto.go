package exchange

import (
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"google.golang.org/protobuf/encoding/protowire"

	"crossarb/internal/models"
	"crossarb/pkg/utils"
)

// ============================================================
// Бинарные push фреймы MEXC (PushDataV3ApiWrapper)
// ============================================================
//
// Схема разбирается напрямую через protowire по номерам полей:
// сгенерированный код для одной обёртки и двух тел не нужен.
// Неизвестные поля пропускаются.

// Номера полей обёртки
const (
	wrapperChannel          protowire.Number = 1
	wrapperSymbol           protowire.Number = 3
	wrapperSymbolID         protowire.Number = 4
	wrapperCreateTime       protowire.Number = 5
	wrapperSendTime         protowire.Number = 6
	wrapperPublicLimitDepth protowire.Number = 303
	wrapperPublicAggreDeals protowire.Number = 314
)

// pushWrapper разобранная обёртка (тела остаются сырыми байтами)
type pushWrapper struct {
	Channel    string
	Symbol     string
	SymbolID   string
	CreateTime int64
	SendTime   int64
	LimitDepth []byte
	AggreDeals []byte
}

func parsePushWrapper(b []byte) (*pushWrapper, error) {
	w := &pushWrapper{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		b = b[n:]

		switch {
		case num == wrapperChannel && typ == protowire.BytesType:
			w.Channel, n = protowire.ConsumeString(b)
		case num == wrapperSymbol && typ == protowire.BytesType:
			w.Symbol, n = protowire.ConsumeString(b)
		case num == wrapperSymbolID && typ == protowire.BytesType:
			w.SymbolID, n = protowire.ConsumeString(b)
		case num == wrapperCreateTime && typ == protowire.VarintType:
			var v uint64
			v, n = protowire.ConsumeVarint(b)
			w.CreateTime = int64(v)
		case num == wrapperSendTime && typ == protowire.VarintType:
			var v uint64
			v, n = protowire.ConsumeVarint(b)
			w.SendTime = int64(v)
		case num == wrapperPublicLimitDepth && typ == protowire.BytesType:
			w.LimitDepth, n = protowire.ConsumeBytes(b)
		case num == wrapperPublicAggreDeals && typ == protowire.BytesType:
			w.AggreDeals, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return nil, errors.Wrapf(protowire.ParseError(n), "field %d", num)
		}
		b = b[n:]
	}
	return w, nil
}

// ============ publicAggreDeals ============

// aggreDeal одна агрегированная сделка
type aggreDeal struct {
	Price     string
	Quantity  string
	TradeType int32
	Time      int64
}

// parseAggreDeals PublicAggreDealsV3Api{deals=1 repeated, eventType=2}
func parseAggreDeals(b []byte) ([]aggreDeal, string, error) {
	var (
		deals     []aggreDeal
		eventType string
	)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, "", protowire.ParseError(n)
		}
		b = b[n:]

		switch {
		case num == 1 && typ == protowire.BytesType:
			var raw []byte
			raw, n = protowire.ConsumeBytes(b)
			if n >= 0 {
				deal, err := parseAggreDeal(raw)
				if err != nil {
					return nil, "", errors.Wrap(err, "deal")
				}
				deals = append(deals, deal)
			}
		case num == 2 && typ == protowire.BytesType:
			eventType, n = protowire.ConsumeString(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return nil, "", protowire.ParseError(n)
		}
		b = b[n:]
	}
	return deals, eventType, nil
}

// parseAggreDeal {price=1, quantity=2, tradeType=3, time=4}
func parseAggreDeal(b []byte) (aggreDeal, error) {
	var d aggreDeal
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return d, protowire.ParseError(n)
		}
		b = b[n:]

		switch {
		case num == 1 && typ == protowire.BytesType:
			d.Price, n = protowire.ConsumeString(b)
		case num == 2 && typ == protowire.BytesType:
			d.Quantity, n = protowire.ConsumeString(b)
		case num == 3 && typ == protowire.VarintType:
			var v uint64
			v, n = protowire.ConsumeVarint(b)
			d.TradeType = int32(v)
		case num == 4 && typ == protowire.VarintType:
			var v uint64
			v, n = protowire.ConsumeVarint(b)
			d.Time = int64(v)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return d, protowire.ParseError(n)
		}
		b = b[n:]
	}
	return d, nil
}

// ============ publicLimitDepths ============

// parseLimitDepth PublicLimitDepthsV3Api{asks=1, bids=2, eventType=3, version=4},
// уровень {price=1, quantity=2}
func parseLimitDepth(b []byte) (*wireBook, error) {
	book := &wireBook{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		b = b[n:]

		switch {
		case (num == 1 || num == 2) && typ == protowire.BytesType:
			var raw []byte
			raw, n = protowire.ConsumeBytes(b)
			if n >= 0 {
				lvl, err := parseDepthItem(raw)
				if err != nil {
					return nil, err
				}
				if num == 1 {
					book.Asks = append(book.Asks, lvl)
				} else {
					book.Bids = append(book.Bids, lvl)
				}
			}
		case num == 4 && typ == protowire.BytesType:
			book.Version, n = protowire.ConsumeString(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		b = b[n:]
	}
	return book, nil
}

func parseDepthItem(b []byte) (wireLevel, error) {
	var price, qty string
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return wireLevel{}, protowire.ParseError(n)
		}
		b = b[n:]
		switch {
		case num == 1 && typ == protowire.BytesType:
			price, n = protowire.ConsumeString(b)
		case num == 2 && typ == protowire.BytesType:
			qty, n = protowire.ConsumeString(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return wireLevel{}, protowire.ParseError(n)
		}
		b = b[n:]
	}

	p, err := decimal.NewFromString(price)
	if err != nil {
		return wireLevel{}, errors.Wrap(err, "price")
	}
	q, err := decimal.NewFromString(qty)
	if err != nil {
		return wireLevel{}, errors.Wrap(err, "quantity")
	}
	return wireLevel{Price: p, Size: q}, nil
}

// ============ Преобразование в модель ============

// dealsToTicks любая битая сделка отбрасывает всё сообщение
func dealsToTicks(symbol string, deals []aggreDeal) ([]models.TradeTick, error) {
	ticks := make([]models.TradeTick, 0, len(deals))
	for i, d := range deals {
		price, err := decimal.NewFromString(d.Price)
		if err != nil {
			return nil, errors.Wrapf(err, "deal %d price", i)
		}
		qty, err := decimal.NewFromString(d.Quantity)
		if err != nil {
			return nil, errors.Wrapf(err, "deal %d quantity", i)
		}
		side := models.SideSell
		if d.TradeType == 1 {
			side = models.SideBuy
		}
		ticks = append(ticks, models.TradeTick{
			Venue:      models.VenueMEXC,
			Symbol:     symbol,
			Price:      price,
			Quantity:   qty,
			Side:       side,
			ExecutedAt: utils.MillisOrNow(d.Time),
		})
	}
	return ticks, nil
}
