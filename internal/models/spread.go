package models

import "time"

// SpreadSample - производная от Tick точка спреда с rolling-статистикой.
// Добавляется в ограниченное по времени окно пары; старейшие точки
// вытесняются когда окно превышает lookback.
type SpreadSample struct {
	PairID    int       `json:"pair_id" db:"pair_id"`
	Timestamp time.Time `json:"timestamp" db:"ts"`

	PriceA float64 `json:"price_a" db:"price_a"`
	PriceB float64 `json:"price_b" db:"price_b"`
	Spread float64 `json:"spread" db:"spread"` // price_a - price_b (с учётом QuoteNorm)

	Mean float64 `json:"mean" db:"mean"` // rolling mean по окну
	Std  float64 `json:"std" db:"std"`   // population std по окну
	Z    float64 `json:"z" db:"z"`       // (spread - mean) / std, 0 при std==0
	EMA  float64 `json:"ema" db:"ema"`   // сглаженный спред

	// LowConfidence выставляется когда std==0 или точек меньше минимума:
	// z в этом случае равен 0 и не должен использоваться для входов
	LowConfidence bool `json:"low_confidence" db:"low_confidence"`

	// Стейлнесс входных данных (входы подавляются, выходы нет)
	Stale bool `json:"stale" db:"stale"`

	// Оценка возврата к среднему: AR(1) half-life и время до exit-порога.
	// 0 когда оценка недоступна (мало точек или вырожденный ряд)
	HalfLifeSecs float64 `json:"half_life_secs,omitempty" db:"half_life_secs"`
	TimeToExitSecs float64 `json:"time_to_exit_secs,omitempty" db:"time_to_exit_secs"`

	// Чистый фандинг за цикл для предлагаемого направления, USD на notional
	NetFundingUSD float64 `json:"net_funding_usd,omitempty" db:"net_funding_usd"`
}
