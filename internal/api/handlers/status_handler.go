package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"crossarb/internal/models"
	"crossarb/pkg/utils"
)

// EngineReader состояние движка, читаемое API
//
// Реализуется *bot.Engine
type EngineReader interface {
	Stats() models.Stats
	Opportunities() []models.ArbitrageOpportunity
	Executions(limit int) []models.ArbitrageExecution
	Halted() (bool, string)
	Resume()
}

// BookReader последние снимки стаканов
//
// Реализуется *market.Aggregator
type BookReader interface {
	Symbol() string
	Get(venue models.Venue) (*models.OrderBookSnapshot, bool)
	Snapshots() []*models.OrderBookSnapshot
	SpreadBetween(buyVenue, sellVenue models.Venue) (decimal.Decimal, bool)
}

// StatusHandler обрабатывает запросы состояния движка и рынка.
//
// Endpoints:
// - GET /api/v1/books - верх стаканов всех площадок
// - GET /api/v1/books/{venue}?depth=N - стакан площадки
// - GET /api/v1/spread?buy=mexc&sell=bingx - межбиржевой спред
// - GET /api/v1/opportunities - кандидаты последнего прохода детектора
// - GET /api/v1/executions?limit=N - последние исполнения из памяти
// - GET /api/v1/stats - статистика движка
// - GET /api/v1/halt - остановлена ли торговля
// - POST /api/v1/resume - снять остановку после PARTIAL
//
// Все ответы только для чтения, кроме resume.
type StatusHandler struct {
	engine EngineReader
	books  BookReader
	now    func() time.Time
}

// NewStatusHandler создает StatusHandler с внедрением зависимостей.
func NewStatusHandler(engine EngineReader, books BookReader) *StatusHandler {
	return &StatusHandler{engine: engine, books: books, now: time.Now}
}

// BookSummary верх стакана площадки
type BookSummary struct {
	Venue      models.Venue     `json:"venue"`
	Symbol     string           `json:"symbol"`
	BestBid    *decimal.Decimal `json:"best_bid"`
	BestAsk    *decimal.Decimal `json:"best_ask"`
	Mid        *decimal.Decimal `json:"mid"`
	BidLevels  int              `json:"bid_levels"`
	AskLevels  int              `json:"ask_levels"`
	SequenceID int64            `json:"sequence_id"`
	ObservedAt time.Time        `json:"observed_at"`
	AgeMs      int64            `json:"age_ms"`
}

func (h *StatusHandler) summarize(snap *models.OrderBookSnapshot) BookSummary {
	s := BookSummary{
		Venue:      snap.Venue,
		Symbol:     snap.Symbol,
		BidLevels:  len(snap.Bids),
		AskLevels:  len(snap.Asks),
		SequenceID: snap.SequenceID,
		ObservedAt: snap.ObservedAt,
		AgeMs:      h.now().Sub(snap.ObservedAt).Milliseconds(),
	}
	if bid, ok := snap.BestBid(); ok {
		s.BestBid = &bid.Price
	}
	if ask, ok := snap.BestAsk(); ok {
		s.BestAsk = &ask.Price
	}
	if mid, ok := snap.MidPrice(); ok {
		s.Mid = &mid
	}
	return s
}

// GetBooks верх стаканов всех площадок.
//
// GET /api/v1/books
//
// Response 200 OK:
//
//	[{"venue": "bingx", "symbol": "BTC-USDC", "best_bid": "40500", "best_ask": "40510", ...}]
func (h *StatusHandler) GetBooks(w http.ResponseWriter, r *http.Request) {
	snaps := h.books.Snapshots()
	out := make([]BookSummary, 0, len(snaps))
	for _, s := range snaps {
		out = append(out, h.summarize(s))
	}
	respondWithJSON(w, http.StatusOK, out)
}

// GetBook стакан одной площадки, обрезанный до depth уровней.
//
// GET /api/v1/books/{venue}?depth=10
//
// Response 400: неизвестная площадка или depth
// Response 404: снимка ещё нет
func (h *StatusHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	venue, ok := parseVenue(mux.Vars(r)["venue"])
	if !ok {
		respondWithError(w, http.StatusBadRequest, "invalid_venue", "unknown venue", mux.Vars(r)["venue"])
		return
	}

	depth := 0
	if raw := r.URL.Query().Get("depth"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondWithError(w, http.StatusBadRequest, "invalid_depth", "depth must be a positive integer", raw)
			return
		}
		depth = n
	}

	snap, ok := h.books.Get(venue)
	if !ok {
		respondWithError(w, http.StatusNotFound, "no_snapshot", "no snapshot for venue yet", venue.String())
		return
	}

	out := *snap
	if depth > 0 {
		if len(out.Bids) > depth {
			out.Bids = out.Bids[:depth]
		}
		if len(out.Asks) > depth {
			out.Asks = out.Asks[:depth]
		}
	}
	respondWithJSON(w, http.StatusOK, out)
}

// SpreadResponse межбиржевой спред для направления buy -> sell
type SpreadResponse struct {
	Symbol    string          `json:"symbol"`
	BuyVenue  models.Venue    `json:"buy_venue"`
	SellVenue models.Venue    `json:"sell_venue"`
	BuyAsk    decimal.Decimal `json:"buy_ask"`
	SellBid   decimal.Decimal `json:"sell_bid"`
	Spread    decimal.Decimal `json:"spread"`
	SpreadBps decimal.Decimal `json:"spread_bps"`
}

// GetSpread спред sell.bestBid - buy.bestAsk.
//
// GET /api/v1/spread?buy=mexc&sell=bingx
//
// Response 400: площадки не указаны, неизвестны или совпадают
// Response 404: у одной из площадок нет котировки
func (h *StatusHandler) GetSpread(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	buy, okB := parseVenue(q.Get("buy"))
	sell, okS := parseVenue(q.Get("sell"))
	if !okB || !okS {
		respondWithError(w, http.StatusBadRequest, "invalid_venue", "buy and sell must be known venues", "")
		return
	}
	if buy == sell {
		respondWithError(w, http.StatusBadRequest, "same_venue", "buy and sell venues must differ", "")
		return
	}

	spread, ok := h.books.SpreadBetween(buy, sell)
	if !ok {
		respondWithError(w, http.StatusNotFound, "no_quote", "one of the venues has no quote", "")
		return
	}

	buySnap, _ := h.books.Get(buy)
	sellSnap, _ := h.books.Get(sell)
	ask, _ := buySnap.BestAsk()
	bid, _ := sellSnap.BestBid()

	respondWithJSON(w, http.StatusOK, SpreadResponse{
		Symbol:    h.books.Symbol(),
		BuyVenue:  buy,
		SellVenue: sell,
		BuyAsk:    ask.Price,
		SellBid:   bid.Price,
		Spread:    spread,
		SpreadBps: utils.CalculateSpreadBps(bid.Price, ask.Price).Round(2),
	})
}

// GetOpportunities кандидаты последнего прохода детектора, лучшие первыми.
//
// GET /api/v1/opportunities
func (h *StatusHandler) GetOpportunities(w http.ResponseWriter, r *http.Request) {
	opps := h.engine.Opportunities()
	if opps == nil {
		opps = []models.ArbitrageOpportunity{}
	}
	respondWithJSON(w, http.StatusOK, opps)
}

// GetExecutions последние исполнения из кольцевого журнала, новые первыми.
//
// GET /api/v1/executions?limit=50
//
// Query Parameters:
// - limit (optional): по умолчанию 50, максимум 500
func (h *StatusHandler) GetExecutions(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(r, 50, 500)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer", r.URL.Query().Get("limit"))
		return
	}
	execs := h.engine.Executions(limit)
	if execs == nil {
		execs = []models.ArbitrageExecution{}
	}
	respondWithJSON(w, http.StatusOK, execs)
}

// GetStats статистика движка.
//
// GET /api/v1/stats
func (h *StatusHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, h.engine.Stats())
}

// HaltResponse состояние остановки торговли
type HaltResponse struct {
	Halted bool   `json:"halted"`
	Reason string `json:"reason,omitempty"`
}

// GetHalt остановлена ли торговля после PARTIAL.
//
// GET /api/v1/halt
func (h *StatusHandler) GetHalt(w http.ResponseWriter, r *http.Request) {
	halted, reason := h.engine.Halted()
	respondWithJSON(w, http.StatusOK, HaltResponse{Halted: halted, Reason: reason})
}

// Resume ручной сброс остановки. Оператор подтверждает, что
// незакрытая позиция после PARTIAL разобрана.
//
// POST /api/v1/resume
//
// Response 409: торговля не была остановлена
func (h *StatusHandler) Resume(w http.ResponseWriter, r *http.Request) {
	halted, _ := h.engine.Halted()
	if !halted {
		respondWithError(w, http.StatusConflict, "not_halted", "trading is not halted", "")
		return
	}
	h.engine.Resume()
	respondWithJSON(w, http.StatusOK, SuccessResponse{Message: "trading resumed"})
}
