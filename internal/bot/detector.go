package bot

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"crossarb/internal/config"
	"crossarb/internal/market"
	"crossarb/internal/models"
	"crossarb/pkg/utils"
)

// Причины отказа кандидату (метка метрики CandidatesRejected)
const (
	rejectNoLiquidity       = "no_liquidity"
	rejectNoSpread          = "no_spread"
	rejectSpreadBelowMin    = "spread_below_min"
	rejectVolumeBelowMin    = "volume_below_min"
	rejectBelowBreakeven    = "below_breakeven"
	rejectInsufficientDepth = "insufficient_depth"
	rejectProfitBelowMin    = "profit_below_min"
)

// Веса составляющих confidence
const (
	confidenceSpreadWeight = 0.4
	confidenceVolumeWeight = 0.3
	confidenceDepthWeight  = 0.3
)

// confidenceSpreadReference спред, дающий полную оценку по спреду (1%)
var confidenceSpreadReference = decimal.NewFromInt(100)

// Balance доступные остатки на площадке
type Balance struct {
	Base  decimal.Decimal `json:"base"`
	Quote decimal.Decimal `json:"quote"`
}

// Balances остатки по площадкам; nil = без ограничения балансом
type Balances map[models.Venue]Balance

// DetectorConfig пороги детектора
type DetectorConfig struct {
	Symbol        string
	MinSpreadBps  decimal.Decimal
	MinVolume     decimal.Decimal
	MaxVolume     decimal.Decimal
	TargetSize    decimal.Decimal // 0 = без ограничения
	LotSize       decimal.Decimal // объём округляется вниз до шага, 0 = без округления
	MinProfit     decimal.Decimal
	MinProfitPct  decimal.Decimal
	MinConfidence float64
	UseMaker      bool

	// ReferenceSize объём, дающий полную оценку по объёму
	ReferenceSize decimal.Decimal
	// ReferenceDepth число уровней, дающее полную оценку по глубине
	ReferenceDepth int
	// LiquidityLevels сколько верхних уровней считать доступной ликвидностью
	LiquidityLevels int
}

// DetectorConfigFromBot пороги из конфигурации бота
func DetectorConfigFromBot(cfg config.BotConfig) DetectorConfig {
	return DetectorConfig{
		Symbol:          cfg.Symbol,
		MinSpreadBps:    cfg.MinSpreadBps,
		MinVolume:       utils.RoundToLotSizeUp(cfg.MinVolume, cfg.LotSize),
		MaxVolume:       cfg.MaxVolume,
		TargetSize:      cfg.TargetSize,
		LotSize:         cfg.LotSize,
		MinProfit:       cfg.MinProfit,
		MinProfitPct:    cfg.MinProfitPct,
		MinConfidence:   cfg.MinConfidence,
		UseMaker:        cfg.UseMakerOrders,
		ReferenceSize:   decimal.RequireFromString("0.1"),
		ReferenceDepth:  20,
		LiquidityLevels: 1,
	}
}

// Detector ищет возможности по последним снимкам агрегатора.
// Чистая функция от входа: без состояния между вызовами.
type Detector struct {
	cfg    DetectorConfig
	profit *ProfitModel
	log    *utils.Logger
	now    func() time.Time
}

// NewDetector создаёт детектор
func NewDetector(cfg DetectorConfig, profit *ProfitModel, log *utils.Logger) *Detector {
	if log == nil {
		log = utils.L()
	}
	if cfg.ReferenceDepth <= 0 {
		cfg.ReferenceDepth = 20
	}
	if !cfg.ReferenceSize.IsPositive() {
		cfg.ReferenceSize = decimal.RequireFromString("0.1")
	}
	if cfg.LiquidityLevels <= 0 {
		cfg.LiquidityLevels = 1
	}
	return &Detector{
		cfg:    cfg,
		profit: profit,
		log:    log.WithComponent("detector"),
		now:    time.Now,
	}
}

// Config текущие пороги
func (d *Detector) Config() DetectorConfig { return d.cfg }

// FindOpportunities оценивает все направления между площадками и
// возвращает кандидатов по убыванию чистой прибыли.
func (d *Detector) FindOpportunities(snaps []*models.OrderBookSnapshot, balances Balances) []*models.ArbitrageOpportunity {
	start := time.Now()
	defer func() {
		DetectionLatency.Observe(float64(time.Since(start).Microseconds()) / 1000)
	}()

	var out []*models.ArbitrageOpportunity
	for _, buy := range snaps {
		for _, sell := range snaps {
			if buy == nil || sell == nil || buy.Venue == sell.Venue {
				continue
			}
			opp, reason := d.evaluate(buy, sell, balances)
			if opp == nil {
				RecordRejection(reason)
				continue
			}
			out = append(out, opp)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].NetProfit.Equal(out[j].NetProfit) {
			return out[i].NetProfit.GreaterThan(out[j].NetProfit)
		}
		return out[i].Direction() < out[j].Direction()
	})
	return out
}

// evaluate одно направление: купить на buy, продать на sell
func (d *Detector) evaluate(buy, sell *models.OrderBookSnapshot, balances Balances) (*models.ArbitrageOpportunity, string) {
	ask, okAsk := buy.BestAsk()
	bid, okBid := sell.BestBid()
	if !okAsk || !okBid || !ask.Price.IsPositive() {
		return nil, rejectNoLiquidity
	}

	direction := string(buy.Venue) + "_to_" + string(sell.Venue)
	spreadBps := utils.CalculateSpreadBps(bid.Price, ask.Price)
	SpreadObserved.WithLabelValues(direction).Observe(spreadBps.InexactFloat64())

	if !bid.Price.GreaterThan(ask.Price) {
		return nil, rejectNoSpread
	}
	if spreadBps.LessThan(d.cfg.MinSpreadBps) {
		return nil, rejectSpreadBelowMin
	}

	volume := d.maxVolume(buy, sell, ask.Price, balances)
	if !volume.IsPositive() || volume.LessThan(d.cfg.MinVolume) {
		return nil, rejectVolumeBelowMin
	}

	// Дешёвый отсев до симуляции: VWAP продажи не выше лучшего bid
	minSell := d.profit.MinProfitableSellPrice(ask.Price, volume, buy.Venue, sell.Venue, d.cfg.UseMaker, d.cfg.MinProfit)
	if bid.Price.LessThan(minSell) {
		return nil, rejectBelowBreakeven
	}

	buyFill, err := market.SimulateFill(buy.Asks, volume)
	if err != nil {
		return nil, rejectInsufficientDepth
	}
	sellFill, err := market.SimulateFill(sell.Bids, volume)
	if err != nil {
		return nil, rejectInsufficientDepth
	}

	res := d.profit.Calculate(ProfitInput{
		BuyPrice:  buyFill.VWAP,
		SellPrice: sellFill.VWAP,
		Volume:    volume,
		BuyVenue:  buy.Venue,
		SellVenue: sell.Venue,
		Maker:     d.cfg.UseMaker,
	})
	if !res.IsProfitable() || res.NetProfit.LessThan(d.cfg.MinProfit) || res.ProfitPercentage.LessThan(d.cfg.MinProfitPct) {
		return nil, rejectProfitBelowMin
	}

	opp := &models.ArbitrageOpportunity{
		Symbol:           d.cfg.Symbol,
		BuyVenue:         buy.Venue,
		SellVenue:        sell.Venue,
		BuyPrice:         ask.Price,
		BuyVWAP:          buyFill.VWAP,
		BuyWorstPrice:    buyFill.WorstPrice,
		SellPrice:        bid.Price,
		SellVWAP:         sellFill.VWAP,
		Volume:           volume,
		GrossProfit:      res.GrossProfit,
		NetProfit:        res.NetProfit,
		ProfitPercentage: res.ProfitPercentage,
		SpreadBps:        spreadBps,
		Confidence:       d.confidence(spreadBps, volume, len(buy.Asks), len(sell.Bids)),
		DetectedAt:       d.now(),
	}

	d.log.Debug("opportunity",
		zap.String("direction", direction),
		utils.SpreadBps(spreadBps),
		utils.Volume(volume),
		utils.PNL(res.NetProfit),
		zap.Float64("confidence", opp.Confidence),
	)
	return opp, ""
}

// maxVolume min(ликвидность верхних уровней, MaxVolume, TargetSize, балансы),
// округлённый вниз до шага лота
func (d *Detector) maxVolume(buy, sell *models.OrderBookSnapshot, askPrice decimal.Decimal, balances Balances) decimal.Decimal {
	volume := utils.MinDecimal(
		market.TotalVolume(buy.Asks, d.cfg.LiquidityLevels),
		market.TotalVolume(sell.Bids, d.cfg.LiquidityLevels),
	)
	if d.cfg.MaxVolume.IsPositive() {
		volume = utils.MinDecimal(volume, d.cfg.MaxVolume)
	}
	if d.cfg.TargetSize.IsPositive() {
		volume = utils.MinDecimal(volume, d.cfg.TargetSize)
	}
	if balances != nil {
		if b, ok := balances[buy.Venue]; ok {
			volume = utils.MinDecimal(volume, b.Quote.Div(askPrice))
		}
		if b, ok := balances[sell.Venue]; ok {
			volume = utils.MinDecimal(volume, b.Base)
		}
	}
	return utils.RoundToLotSize(volume, d.cfg.LotSize)
}

// confidence взвешенная оценка в [0,1]
func (d *Detector) confidence(spreadBps, volume decimal.Decimal, buyLevels, sellLevels int) float64 {
	spreadScore := utils.CapRatio(spreadBps, confidenceSpreadReference).InexactFloat64()
	volumeScore := utils.CapRatio(volume, d.cfg.ReferenceSize).InexactFloat64()

	avgDepth := float64(buyLevels+sellLevels) / 2
	depthScore := avgDepth / float64(d.cfg.ReferenceDepth)
	if depthScore > 1 {
		depthScore = 1
	}

	return spreadScore*confidenceSpreadWeight + volumeScore*confidenceVolumeWeight + depthScore*confidenceDepthWeight
}

// GetBest лучший кандидат с confidence не ниже порога или nil.
// Вход уже отсортирован FindOpportunities.
func (d *Detector) GetBest(opps []*models.ArbitrageOpportunity) *models.ArbitrageOpportunity {
	for _, o := range opps {
		if o.Confidence >= d.cfg.MinConfidence {
			RecordOpportunity(o.Direction(), true)
			return o
		}
		RecordOpportunity(o.Direction(), false)
	}
	return nil
}
