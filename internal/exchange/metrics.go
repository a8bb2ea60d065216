package exchange

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ============================================================
// Prometheus метрики фидов и REST клиентов
// ============================================================

// ============ Фиды ============

// FeedMessages - декодированные сообщения по типам (depth, trades, control)
var FeedMessages = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "crossarb",
		Subsystem: "feed",
		Name:      "messages_total",
		Help:      "Total number of decoded feed messages",
	},
	[]string{"venue", "kind"},
)

// FeedDecodeErrors - отброшенные сообщения
var FeedDecodeErrors = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "crossarb",
		Subsystem: "feed",
		Name:      "decode_errors_total",
		Help:      "Total number of dropped undecodable feed messages",
	},
	[]string{"venue"},
)

// FeedDroppedSnapshots - вытесненные из буфера подписки снимки (медленный потребитель)
var FeedDroppedSnapshots = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "crossarb",
		Subsystem: "feed",
		Name:      "dropped_snapshots_total",
		Help:      "Snapshots evicted from a full subscription buffer",
	},
	[]string{"venue"},
)

// ============ Соединения ============

// WSReconnects - переподключения
var WSReconnects = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "crossarb",
		Subsystem: "ws",
		Name:      "reconnects_total",
		Help:      "Total number of websocket reconnect attempts",
	},
	[]string{"venue"},
)

// WSConnected - 1 если соединение установлено
var WSConnected = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "crossarb",
		Subsystem: "ws",
		Name:      "connected",
		Help:      "Whether the websocket connection is up (1) or down (0)",
	},
	[]string{"venue"},
)

// ============ REST ============

// RESTLatency - латентность REST запросов к бирже
var RESTLatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "crossarb",
		Subsystem: "rest",
		Name:      "request_latency_ms",
		Help:      "Exchange REST request latency in milliseconds",
		Buckets:   []float64{25, 50, 100, 200, 300, 500, 1000, 2000, 5000},
	},
	[]string{"venue", "endpoint"},
)

// RESTErrors - ошибки REST по классу (transport, exchange, decode)
var RESTErrors = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "crossarb",
		Subsystem: "rest",
		Name:      "errors_total",
		Help:      "Exchange REST errors by class",
	},
	[]string{"venue", "class"},
)
