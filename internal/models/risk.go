package models

import "time"

// RiskState - снапшот рисковых счётчиков. Мутирует только Risk Manager
// (и fill-callback'и Execution Engine через него); все читатели получают
// копию, что исключает гонки между парами без мелкозернистых локов.
type RiskState struct {
	// Агрегаты по всем парам
	GrossNotionalUSD float64 `json:"gross_notional_usd"`
	OpenLegs         int     `json:"open_legs"`
	Breaker          bool    `json:"breaker"`
	BreakerReason    string  `json:"breaker_reason,omitempty"`

	// Per-pair счётчики
	Pairs map[int]PairRisk `json:"pairs"`
}

// PairRisk - рисковые счётчики одной пары
type PairRisk struct {
	EntriesToday int       `json:"entries_today"`
	LastEntry    time.Time `json:"last_entry"`
	LastExit     time.Time `json:"last_exit"`
	NotionalUSD  float64   `json:"notional_usd"`
	Degraded     bool      `json:"degraded"`
}

// Clone возвращает глубокую копию для безопасного чтения вне лока
func (rs *RiskState) Clone() RiskState {
	out := *rs
	out.Pairs = make(map[int]PairRisk, len(rs.Pairs))
	for id, pr := range rs.Pairs {
		out.Pairs[id] = pr
	}
	return out
}
