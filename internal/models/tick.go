package models

import "time"

// Tick - одно нормализованное обновление от Normalizer для пары.
// Immutable: создаётся один раз на обновление и дальше только читается.
type Tick struct {
	PairID    int       `json:"pair_id"`
	Timestamp time.Time `json:"timestamp"`

	PriceA float64 `json:"price_a"` // mid ноги A
	PriceB float64 `json:"price_b"` // mid ноги B

	// Доступная глубина у лучших цен, в USD
	LiquidityA float64 `json:"liquidity_a"`
	LiquidityB float64 `json:"liquidity_b"`

	// Фандинг за цикл (доля, например 0.0001 = 1bp)
	FundingA float64 `json:"funding_a"`
	FundingB float64 `json:"funding_b"`

	// Возраст котировок на момент сборки тика
	AgeA time.Duration `json:"age_a_ms"`
	AgeB time.Duration `json:"age_b_ms"`
}

// Skew возвращает рассинхронизацию котировок двух ног
func (t *Tick) Skew() time.Duration {
	d := t.AgeA - t.AgeB
	if d < 0 {
		d = -d
	}
	return d
}

// Stale возвращает true если хотя бы одна нога старше порога
// или ноги разъехались по времени сильнее skew-порога
func (t *Tick) Stale(maxAge, maxSkew time.Duration) bool {
	return t.AgeA > maxAge || t.AgeB > maxAge || t.Skew() > maxSkew
}
