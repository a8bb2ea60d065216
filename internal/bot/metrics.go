package bot

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ============================================================
// Prometheus метрики цикла решения и исполнения
// ============================================================
//
// - латентность detection → commit и размещения ног
// - счётчики циклов, возможностей, отказов по причинам
// - итоги исполнений; PARTIAL отдельным счётчиком для алертов
// - ожидаемая и фактическая прибыль для поиска систематического сдвига

// ============ Метрики латентности ============

// DetectionLatency - время одного прохода детектора
var DetectionLatency = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "crossarb",
		Subsystem: "decision",
		Name:      "detection_latency_ms",
		Help:      "Time to evaluate both directions in milliseconds",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	},
)

// DetectionToCommitLatency - от обнаружения до отправки обеих ног
var DetectionToCommitLatency = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "crossarb",
		Subsystem: "execution",
		Name:      "detection_to_commit_latency_ms",
		Help:      "Latency from opportunity detection to leg submission in milliseconds",
		Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
	},
)

// OrderSubmitLatency - время размещения ноги на бирже
var OrderSubmitLatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "crossarb",
		Subsystem: "execution",
		Name:      "order_submit_latency_ms",
		Help:      "Time to submit an order leg in milliseconds",
		Buckets:   []float64{10, 25, 50, 100, 200, 500, 1000, 2000, 5000},
	},
	[]string{"venue", "side"},
)

// ============ Счётчики событий ============

// CyclesTotal - проходы цикла решения
var CyclesTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "crossarb",
		Subsystem: "decision",
		Name:      "cycles_total",
		Help:      "Total number of decision cycles",
	},
)

// CyclesSkipped - пропущенные циклы
var CyclesSkipped = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "crossarb",
		Subsystem: "decision",
		Name:      "cycles_skipped_total",
		Help:      "Decision cycles skipped",
	},
	[]string{"reason"}, // in_flight, cooldown, halted, no_books
)

// OpportunitiesDetected - обнаруженные возможности
var OpportunitiesDetected = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "crossarb",
		Subsystem: "decision",
		Name:      "opportunities_detected_total",
		Help:      "Number of arbitrage opportunities detected",
	},
	[]string{"direction", "triggered"}, // triggered: yes, no (below confidence)
)

// CandidatesRejected - отброшенные кандидаты по причинам
var CandidatesRejected = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "crossarb",
		Subsystem: "decision",
		Name:      "candidates_rejected_total",
		Help:      "Number of rejected candidates by reason",
	},
	[]string{"reason"},
)

// ExecutionsTotal - завершённые исполнения по итоговому статусу
var ExecutionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "crossarb",
		Subsystem: "execution",
		Name:      "executions_total",
		Help:      "Completed executions by final status",
	},
	[]string{"status", "dry_run"},
)

// PartialExecutions - незахеджированные позиции. Любое увеличение требует внимания.
var PartialExecutions = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "crossarb",
		Subsystem: "execution",
		Name:      "partial_total",
		Help:      "Executions that left an unhedged position",
	},
)

// CompensationFailures - не удалось отменить ногу после сбоя второй
var CompensationFailures = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "crossarb",
		Subsystem: "execution",
		Name:      "compensation_failures_total",
		Help:      "Failed compensating cancellations",
	},
	[]string{"venue"},
)

// ============ Прибыль ============

// ExpectedProfitTotal - суммарная ожидаемая прибыль успешных исполнений
var ExpectedProfitTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "crossarb",
		Subsystem: "execution",
		Name:      "expected_profit_total",
		Help:      "Cumulative expected net profit in quote currency",
	},
)

// ActualProfitTotal - суммарная фактическая прибыль (может быть отрицательной)
var ActualProfitTotal = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "crossarb",
		Subsystem: "execution",
		Name:      "actual_profit_total",
		Help:      "Cumulative realized net profit in quote currency",
	},
)

// ============ Метрики состояния ============

// InFlight - идёт ли исполнение
var InFlight = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "crossarb",
		Subsystem: "execution",
		Name:      "in_flight",
		Help:      "1 while an execution is in flight",
	},
)

// VenueBalance - доступные остатки
var VenueBalance = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "crossarb",
		Subsystem: "venue",
		Name:      "balance",
		Help:      "Available balance per venue and asset",
	},
	[]string{"venue", "asset"},
)

// SpreadObserved - спред лучшей цены по направлениям
var SpreadObserved = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "crossarb",
		Subsystem: "decision",
		Name:      "spread_observed_bps",
		Help:      "Observed top-of-book spread in basis points",
		Buckets:   []float64{-50, -20, -10, -5, 0, 5, 10, 20, 50, 100, 200},
	},
	[]string{"direction"},
)

// ============ Вспомогательные функции ============

// RecordOpportunity записывает обнаруженную возможность
func RecordOpportunity(direction string, triggered bool) {
	triggeredStr := "no"
	if triggered {
		triggeredStr = "yes"
	}
	OpportunitiesDetected.WithLabelValues(direction, triggeredStr).Inc()
}

// RecordRejection записывает отброшенного кандидата
func RecordRejection(reason string) {
	CandidatesRejected.WithLabelValues(reason).Inc()
}

// RecordSkip записывает пропущенный цикл
func RecordSkip(reason string) {
	CyclesSkipped.WithLabelValues(reason).Inc()
}

// RecordExecution записывает итог исполнения
func RecordExecution(status string, dryRun bool, expected, actual float64) {
	dry := "false"
	if dryRun {
		dry = "true"
	}
	ExecutionsTotal.WithLabelValues(status, dry).Inc()
	if status == "PARTIAL" {
		PartialExecutions.Inc()
	}
	if status == "SUCCESS" {
		if expected > 0 {
			ExpectedProfitTotal.Add(expected)
		}
		ActualProfitTotal.Add(actual)
	}
}

// RecordOrderSubmit записывает латентность размещения ноги
func RecordOrderSubmit(venue, side string, latencyMs float64) {
	OrderSubmitLatency.WithLabelValues(venue, side).Observe(latencyMs)
}

// UpdateBalance обновляет остаток
func UpdateBalance(venue, asset string, value float64) {
	VenueBalance.WithLabelValues(venue, asset).Set(value)
}

// SetInFlight обновляет флаг исполнения
func SetInFlight(active bool) {
	if active {
		InFlight.Set(1)
		return
	}
	InFlight.Set(0)
}
