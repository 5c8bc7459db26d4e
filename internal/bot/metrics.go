package bot

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ============================================================
// Prometheus метрики ядра
// ============================================================
//
// Использование:
// - Grafana дашборды (z-score, сигналы, отказы риска)
// - Alertmanager: деградации пар, nonce desync, breaker

// ============ Метрики спреда ============

// ZScoreGauge - текущий z-score по парам
var ZScoreGauge = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "pairsbot",
		Subsystem: "spread",
		Name:      "z_score",
		Help:      "Current spread z-score per pair",
	},
	[]string{"pair"},
)

// SpreadStdGauge - текущее rolling std спреда
var SpreadStdGauge = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "pairsbot",
		Subsystem: "spread",
		Name:      "rolling_std",
		Help:      "Rolling population std of the spread per pair",
	},
	[]string{"pair"},
)

// TicksProcessed - обработанные тики
var TicksProcessed = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "pairsbot",
		Subsystem: "spread",
		Name:      "ticks_processed_total",
		Help:      "Total number of processed ticks",
	},
	[]string{"pair"},
)

// StaleTicks - тики, признанные устаревшими (входы подавлены)
var StaleTicks = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "pairsbot",
		Subsystem: "spread",
		Name:      "stale_ticks_total",
		Help:      "Ticks suppressed for entries due to staleness or skew",
	},
	[]string{"pair"},
)

// ============ Метрики сигналов ============

// SignalsTotal - количество сигналов по видам и причинам
var SignalsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "pairsbot",
		Subsystem: "signal",
		Name:      "signals_total",
		Help:      "Signals emitted by kind and reason",
	},
	[]string{"pair", "kind", "reason"},
)

// PairState - текущее состояние автомата пары (1 для активного)
var PairState = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "pairsbot",
		Subsystem: "signal",
		Name:      "pair_state",
		Help:      "Pair state machine position (1 = current state)",
	},
	[]string{"pair", "state"},
)

// ============ Метрики риска ============

// RiskRejections - отказы риск-менеджера по проверкам
var RiskRejections = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "pairsbot",
		Subsystem: "risk",
		Name:      "rejections_total",
		Help:      "Risk rejections by first failing check",
	},
	[]string{"pair", "check"},
)

// GrossNotional - суммарный открытый notional в USD
var GrossNotional = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "pairsbot",
		Subsystem: "risk",
		Name:      "gross_notional_usd",
		Help:      "Aggregate open notional in USD",
	},
)

// BreakerGauge - состояние circuit breaker (1 = установлен)
var BreakerGauge = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "pairsbot",
		Subsystem: "risk",
		Name:      "breaker_engaged",
		Help:      "Circuit breaker state (1 = engaged)",
	},
)

// ============ Метрики исполнения ============

// OrderSubmitLatency - время от решения до подтверждения отправки
var OrderSubmitLatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "pairsbot",
		Subsystem: "execution",
		Name:      "order_submit_latency_ms",
		Help:      "Time from decision to confirmed submission in milliseconds",
		Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500},
	},
	[]string{"venue", "type"},
)

// OrdersTotal - ордера по финальным статусам
var OrdersTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "pairsbot",
		Subsystem: "execution",
		Name:      "orders_total",
		Help:      "Orders by terminal status",
	},
	[]string{"type", "status"},
)

// IOCEscalations - эскалации LIMIT -> IOC после таймаута
var IOCEscalations = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "pairsbot",
		Subsystem: "execution",
		Name:      "ioc_escalations_total",
		Help:      "LIMIT orders escalated to IOC after fill timeout",
	},
	[]string{"pair"},
)

// HedgeFlattens - аварийные закрытия первой ноги после сбоя хеджа
var HedgeFlattens = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "pairsbot",
		Subsystem: "execution",
		Name:      "hedge_flattens_total",
		Help:      "First-leg emergency flattens after hedge failure",
	},
)

// NonceDesyncs - обнаруженные рассинхронизации nonce
var NonceDesyncs = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "pairsbot",
		Subsystem: "execution",
		Name:      "nonce_desyncs_total",
		Help:      "Detected nonce desynchronizations per account",
	},
	[]string{"account"},
)

// DegradedPairs - количество пар в DEGRADED
var DegradedPairs = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "pairsbot",
		Subsystem: "execution",
		Name:      "degraded_pairs",
		Help:      "Number of pairs currently in DEGRADED state",
	},
)
