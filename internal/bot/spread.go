package bot

import (
	"math"
	"time"

	"pairsbot/internal/config"
	"pairsbot/internal/models"
)

// SpreadCalculator - Metrics Engine одной пары.
//
// Ведёт ограниченное ПО ВРЕМЕНИ окно наблюдений спреда (lookback),
// а не по числу точек: тики приходят нерегулярно, и окно по count
// давало бы плавающую фактическую глубину статистики.
//
// Владелец - горутина пары; внутренних локов нет. Детерминирован:
// результат - чистая функция собственного состояния и входного тика
// (время берётся из тика, не из часов), реплей последовательности
// тиков воспроизводит идентичные SpreadSample.
type SpreadCalculator struct {
	pairID    int
	quoteNorm float64

	lookback   time.Duration
	minSamples int
	emaAlpha   float64 // 2/(window+1)

	exitZLow        float64 // для оценки времени до выхода
	fundingNotional float64 // USD для оценки фандинга в сэмпле

	obs []observation // отсортированы по времени прихода

	ema     float64
	emaInit bool
}

type observation struct {
	ts     time.Time
	spread float64
}

// NewSpreadCalculator создаёт калькулятор для пары
func NewSpreadCalculator(pair models.PairConfig, cfg config.TradingConfig) *SpreadCalculator {
	norm := pair.QuoteNorm
	if norm <= 0 {
		norm = 1.0
	}
	window := cfg.EMAWindow
	if window < 1 {
		window = 1
	}
	return &SpreadCalculator{
		pairID:          pair.ID,
		quoteNorm:       norm,
		lookback:        time.Duration(cfg.LookbackSecs) * time.Second,
		minSamples:      cfg.MinSamples,
		emaAlpha:        2.0 / float64(window+1),
		exitZLow:        cfg.ExitZLow,
		fundingNotional: cfg.FundingNotionalUSD,
	}
}

// Update обрабатывает очередной тик: считает спред, добавляет в окно,
// вытесняет устаревшие точки и возвращает SpreadSample с rolling-статистикой.
//
// z = (spread - mean) / std. При std == 0 или числе точек ниже минимума
// z = 0 и выставляется LowConfidence: такой сэмпл не годится для входа.
func (c *SpreadCalculator) Update(tick models.Tick, stale bool) models.SpreadSample {
	spread := tick.PriceA - tick.PriceB*c.quoteNorm

	c.obs = append(c.obs, observation{ts: tick.Timestamp, spread: spread})
	c.evict(tick.Timestamp)

	// EMA сидируется первым наблюдением
	if !c.emaInit {
		c.ema = spread
		c.emaInit = true
	} else {
		c.ema = c.emaAlpha*spread + (1-c.emaAlpha)*c.ema
	}

	mean, std := c.meanStd()

	sample := models.SpreadSample{
		PairID:    c.pairID,
		Timestamp: tick.Timestamp,
		PriceA:    tick.PriceA,
		PriceB:    tick.PriceB,
		Spread:    spread,
		Mean:      mean,
		Std:       std,
		EMA:       c.ema,
		Stale:     stale,
	}

	if std == 0 || len(c.obs) < c.minSamples {
		sample.Z = 0
		sample.LowConfidence = true
	} else {
		sample.Z = (spread - mean) / std
	}

	sample.HalfLifeSecs, sample.TimeToExitSecs = c.estimateReversion(sample.Z)
	sample.NetFundingUSD = c.netFunding(tick, sample.Z)

	return sample
}

// evict удаляет наблюдения старше lookback относительно времени тика
func (c *SpreadCalculator) evict(now time.Time) {
	cutoff := now.Add(-c.lookback)
	i := 0
	for i < len(c.obs) && c.obs[i].ts.Before(cutoff) {
		i++
	}
	if i > 0 {
		c.obs = append(c.obs[:0], c.obs[i:]...)
	}
}

// meanStd возвращает среднее и POPULATION std по текущему окну
func (c *SpreadCalculator) meanStd() (mean, std float64) {
	n := len(c.obs)
	if n == 0 {
		return 0, 0
	}

	var sum float64
	for _, o := range c.obs {
		sum += o.spread
	}
	mean = sum / float64(n)

	var sq float64
	for _, o := range c.obs {
		d := o.spread - mean
		sq += d * d
	}
	std = math.Sqrt(sq / float64(n))
	return mean, std
}

// estimateReversion оценивает скорость возврата спреда к среднему.
//
// Спред моделируется AR(1): x_t = phi*x_{t-1} + e. Half-life
// полураспада отклонения = -ln(2)/ln(phi) в шагах, переводится в
// секунды через средний интервал между наблюдениями. Время до
// exit-порога - экстраполяция текущего |z| по той же геометрии.
//
// Возвращает нули когда оценка не определена: мало точек, вырожденный
// ряд или phi вне (0, 1) - ряд не возвращается к среднему.
func (c *SpreadCalculator) estimateReversion(z float64) (halfLifeSecs, timeToExitSecs float64) {
	n := len(c.obs)
	if n < 3 {
		return 0, 0
	}

	// Центрируем по среднему окна
	mean, _ := c.meanStd()

	var cov, varPrev float64
	for i := 1; i < n; i++ {
		prev := c.obs[i-1].spread - mean
		cur := c.obs[i].spread - mean
		cov += prev * cur
		varPrev += prev * prev
	}
	if varPrev == 0 {
		return 0, 0
	}

	phi := cov / varPrev
	if phi <= 0 || phi >= 1 {
		return 0, 0
	}

	meanDt := c.obs[n-1].ts.Sub(c.obs[0].ts).Seconds() / float64(n-1)
	if meanDt <= 0 {
		return 0, 0
	}

	halfLifeSecs = -math.Ln2 / math.Log(phi) * meanDt

	absZ := math.Abs(z)
	if absZ > c.exitZLow && c.exitZLow > 0 {
		// |z| затухает в 2 раза за half-life
		timeToExitSecs = halfLifeSecs * math.Log2(absZ/c.exitZLow)
	}

	return halfLifeSecs, timeToExitSecs
}

// netFunding - чистый фандинг в USD за цикл для направления,
// которое предложил бы текущий z.
//
// Для short-A/long-B шорт получает funding_a, лонг платит funding_b;
// для обратного направления зеркально. При z около нуля направление
// не определено - берём то, куда указывает знак z (z=0 -> long-A).
func (c *SpreadCalculator) netFunding(tick models.Tick, z float64) float64 {
	if c.fundingNotional <= 0 {
		return 0
	}
	if z >= 0 {
		// short A / long B
		return (tick.FundingA - tick.FundingB) * c.fundingNotional
	}
	// long A / short B
	return (tick.FundingB - tick.FundingA) * c.fundingNotional
}

// WindowSize возвращает число точек в окне (для мониторинга)
func (c *SpreadCalculator) WindowSize() int {
	return len(c.obs)
}
