package models

import "time"

// Leg идентифицирует одну ногу пары: рынок на конкретной площадке
type LegID struct {
	Venue  string `json:"venue" db:"venue"`   // lighter, aster, ...
	Symbol string `json:"symbol" db:"symbol"` // BTCUSDT / BTC (как листингуется площадкой)
}

// PairConfig представляет конфигурацию торгуемой пары (immutable после загрузки)
type PairConfig struct {
	ID         int     `json:"id" db:"id"`
	Name       string  `json:"name" db:"name"` // BTCUSDT
	LegA       LegID   `json:"leg_a"`
	LegB       LegID   `json:"leg_b"`
	QuoteNorm  float64 `json:"quote_norm" db:"quote_norm"`   // нормализация котируемой валюты (1.0 = одна валюта)
	VolumeBase float64 `json:"volume_base" db:"volume_base"` // объём входа в базовой валюте
	Account    string  `json:"account" db:"account"`         // подписывающий аккаунт для исполнения

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Сторона ноги
const (
	LegSideA = "A"
	LegSideB = "B"
)
