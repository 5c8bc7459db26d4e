package models

import "time"

// SignalKind - вид торгового сигнала
type SignalKind string

const (
	SignalEnterLongAShortB SignalKind = "ENTER_LONG_A_SHORT_B" // z <= -enter_z_high
	SignalEnterShortALongB SignalKind = "ENTER_SHORT_A_LONG_B" // z >= enter_z_high
	SignalExit             SignalKind = "EXIT"
	SignalHold             SignalKind = "HOLD"
)

// Причины сигналов (для аудита; каждая rejection/failure даёт reason)
const (
	ReasonThreshold  = "threshold"
	ReasonStop       = "stop"
	ReasonManual     = "manual"
	ReasonRiskReject = "risk-reject" // дополняется ":<check>"
	ReasonStale      = "stale-data"
	ReasonCooldown   = "cooldown"
	ReasonDailyCap   = "daily-cap"
	ReasonMinHold    = "min-hold"
	ReasonLowConf    = "low-confidence"
)

// Signal - решение Signal Engine по паре на очередном SpreadSample.
// Логически один поток сигналов на пару; новый сигнал вытесняет предыдущий.
type Signal struct {
	PairID    int        `json:"pair_id" db:"pair_id"`
	Timestamp time.Time  `json:"timestamp" db:"ts"`
	Kind      SignalKind `json:"kind" db:"kind"`
	Z         float64    `json:"z" db:"z"`
	Reason    string     `json:"reason" db:"reason"`
}

// IsEnter возвращает true для сигналов входа
func (s *Signal) IsEnter() bool {
	return s.Kind == SignalEnterLongAShortB || s.Kind == SignalEnterShortALongB
}
