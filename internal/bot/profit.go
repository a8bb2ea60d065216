package bot

import (
	"github.com/shopspring/decimal"

	"crossarb/internal/config"
	"crossarb/internal/models"
	"crossarb/pkg/utils"
)

// ============================================================
// Модель прибыли
// ============================================================
//
//	gross    = (sell - buy) × volume
//	fees     = buy_notional × fee_buy + sell_notional × fee_sell [+ вывод × sell]
//	slippage = (buy_notional + sell_notional) / 2 × slippage_bps / 10000
//	net      = gross - fees - slippage
//
// Проскальзывание всегда неотрицательная издержка, знак направления
// здесь не участвует.

// FeeRates ставки площадки (доли: 0.002 = 0.2%)
type FeeRates struct {
	Maker    decimal.Decimal
	Taker    decimal.Decimal
	Withdraw decimal.Decimal // в базовой валюте
}

// Rate maker или taker ставка
func (f FeeRates) Rate(maker bool) decimal.Decimal {
	if maker {
		return f.Maker
	}
	return f.Taker
}

// FeeSchedule ставки по площадкам
type FeeSchedule map[models.Venue]FeeRates

// DefaultFeeSchedule MEXC 0/0.2%, BingX 0.02/0.04%, вывод BTC 0.0005
func DefaultFeeSchedule() FeeSchedule {
	return FeeScheduleFromConfig(config.Defaults().Fees)
}

// FeeScheduleFromConfig ставки из конфигурации
func FeeScheduleFromConfig(fees config.FeesConfig) FeeSchedule {
	return FeeSchedule{
		models.VenueMEXC:  {Maker: fees.MEXC.Maker, Taker: fees.MEXC.Taker, Withdraw: fees.MEXC.Withdraw},
		models.VenueBingX: {Maker: fees.BingX.Maker, Taker: fees.BingX.Taker, Withdraw: fees.BingX.Withdraw},
	}
}

// ZeroFeeSchedule без комиссий (для сценариев и dry-run анализа)
func ZeroFeeSchedule() FeeSchedule {
	return FeeSchedule{models.VenueMEXC: {}, models.VenueBingX: {}}
}

// ProfitResult разложение прибыли
type ProfitResult struct {
	Volume           decimal.Decimal `json:"volume"`
	BuyPrice         decimal.Decimal `json:"buy_price"`
	SellPrice        decimal.Decimal `json:"sell_price"`
	BuyNotional      decimal.Decimal `json:"buy_notional"`
	SellNotional     decimal.Decimal `json:"sell_notional"`
	GrossProfit      decimal.Decimal `json:"gross_profit"`
	BuyFee           decimal.Decimal `json:"buy_fee"`
	SellFee          decimal.Decimal `json:"sell_fee"`
	WithdrawalFee    decimal.Decimal `json:"withdrawal_fee"`
	TotalFees        decimal.Decimal `json:"total_fees"`
	SlippageCost     decimal.Decimal `json:"slippage_cost"`
	NetProfit        decimal.Decimal `json:"net_profit"`
	ProfitPercentage decimal.Decimal `json:"profit_percentage"`
}

// IsProfitable net > 0
func (r ProfitResult) IsProfitable() bool {
	return r.NetProfit.IsPositive()
}

// ProfitInput параметры одного расчёта
type ProfitInput struct {
	BuyPrice  decimal.Decimal
	SellPrice decimal.Decimal
	Volume    decimal.Decimal
	BuyVenue  models.Venue
	SellVenue models.Venue
	Maker     bool
	// SlippageBps переопределяет значение модели; nil = по умолчанию.
	// Ноль допустим и означает расчёт без проскальзывания.
	SlippageBps *decimal.Decimal
}

// ProfitModel считает чистую прибыль с комиссиями и проскальзыванием
type ProfitModel struct {
	fees               FeeSchedule
	slippageBps        decimal.Decimal
	includeWithdrawals bool
}

// NewProfitModel создаёт модель. Площадки без ставок считаются бесплатными.
func NewProfitModel(fees FeeSchedule, slippageBps decimal.Decimal, includeWithdrawals bool) *ProfitModel {
	if fees == nil {
		fees = DefaultFeeSchedule()
	}
	return &ProfitModel{fees: fees, slippageBps: slippageBps, includeWithdrawals: includeWithdrawals}
}

// SlippageBps ставка проскальзывания по умолчанию
func (m *ProfitModel) SlippageBps() decimal.Decimal { return m.slippageBps }

// Calculate полный расчёт прибыли
func (m *ProfitModel) Calculate(in ProfitInput) ProfitResult {
	buyNotional := in.BuyPrice.Mul(in.Volume)
	sellNotional := in.SellPrice.Mul(in.Volume)

	buyFees := m.fees[in.BuyVenue]
	sellFees := m.fees[in.SellVenue]
	buyFee := buyNotional.Mul(buyFees.Rate(in.Maker))
	sellFee := sellNotional.Mul(sellFees.Rate(in.Maker))

	withdrawal := decimal.Zero
	if m.includeWithdrawals {
		withdrawal = buyFees.Withdraw.Add(sellFees.Withdraw).Mul(in.SellPrice)
	}

	slippageBps := m.slippageBps
	if in.SlippageBps != nil {
		slippageBps = *in.SlippageBps
	}
	slippage := buyNotional.Add(sellNotional).Div(decimal.NewFromInt(2)).Mul(utils.BpsToRate(slippageBps.Abs()))

	gross := sellNotional.Sub(buyNotional)
	totalFees := buyFee.Add(sellFee).Add(withdrawal)
	net := gross.Sub(totalFees).Sub(slippage)

	return ProfitResult{
		Volume:           in.Volume,
		BuyPrice:         in.BuyPrice,
		SellPrice:        in.SellPrice,
		BuyNotional:      buyNotional,
		SellNotional:     sellNotional,
		GrossProfit:      gross,
		BuyFee:           buyFee,
		SellFee:          sellFee,
		WithdrawalFee:    withdrawal,
		TotalFees:        totalFees,
		SlippageCost:     slippage,
		NetProfit:        net,
		ProfitPercentage: utils.Percent(net, buyNotional),
	}
}

// BreakevenSpread минимальный спред (в котируемой валюте за единицу),
// при котором net = 0:
//
//	buy × (fee_buy + fee_sell + slippage_rate + withdraw/volume)
func (m *ProfitModel) BreakevenSpread(buyPrice, volume decimal.Decimal, buyVenue, sellVenue models.Venue, maker bool) decimal.Decimal {
	buyFees := m.fees[buyVenue]
	sellFees := m.fees[sellVenue]

	rate := buyFees.Rate(maker).Add(sellFees.Rate(maker)).Add(utils.BpsToRate(m.slippageBps.Abs()))
	if m.includeWithdrawals && volume.IsPositive() {
		rate = rate.Add(buyFees.Withdraw.Add(sellFees.Withdraw).Div(volume))
	}
	return buyPrice.Mul(rate)
}

// MinProfitableSellPrice цена продажи, дающая profitTarget на объёме volume
func (m *ProfitModel) MinProfitableSellPrice(buyPrice, volume decimal.Decimal, buyVenue, sellVenue models.Venue, maker bool, profitTarget decimal.Decimal) decimal.Decimal {
	price := buyPrice.Add(m.BreakevenSpread(buyPrice, volume, buyVenue, sellVenue, maker))
	if volume.IsPositive() {
		price = price.Add(profitTarget.Div(volume))
	}
	return price
}

// SimulateProfitRange расчёт для набора объёмов при фиксированных ценах
func (m *ProfitModel) SimulateProfitRange(buyPrice, sellPrice decimal.Decimal, buyVenue, sellVenue models.Venue, maker bool, volumes []decimal.Decimal) []ProfitResult {
	out := make([]ProfitResult, 0, len(volumes))
	for _, v := range volumes {
		out = append(out, m.Calculate(ProfitInput{
			BuyPrice:  buyPrice,
			SellPrice: sellPrice,
			Volume:    v,
			BuyVenue:  buyVenue,
			SellVenue: sellVenue,
			Maker:     maker,
		}))
	}
	return out
}
