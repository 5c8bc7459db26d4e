package bot

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"pairsbot/internal/config"
	"pairsbot/internal/models"
	"pairsbot/pkg/utils"
)

// Имена проверок (попадают в reason отказа: "risk-reject:<check>")
const (
	CheckBreaker   = "breaker"
	CheckNotional  = "notional"
	CheckLegs      = "legs"
	CheckLiquidity = "liquidity"
	CheckSlippage  = "slippage"
)

// Rejection - отказ риск-менеджера с именем первой не прошедшей проверки.
// Ожидаемое событие: логируется и попадает в аудит, но не является сбоем.
type Rejection struct {
	Check  string
	Detail string
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("risk check %q rejected: %s", r.Check, r.Detail)
}

func (r *Rejection) Unwrap() error {
	return ErrRiskRejected
}

// RiskManager - единственный владелец RiskState.
//
// Все мутации сериализуются одним мьютексом (единственный кросс-парный
// shared ресурс); читатели получают глубокую копию через Snapshot и не
// видят промежуточных состояний.
//
// Валидация НЕ мутирует состояние: повторная валидация одинакового
// отклонённого сигнала даёт одинаковый результат и не меняет счётчики.
type RiskManager struct {
	mu    sync.Mutex
	cfg   config.TradingConfig
	state models.RiskState
	log   *zap.Logger
}

// NewRiskManager создаёт менеджер с пустым состоянием
func NewRiskManager(cfg config.TradingConfig, log *zap.Logger) *RiskManager {
	return &RiskManager{
		cfg: cfg,
		state: models.RiskState{
			Pairs: make(map[int]models.PairRisk),
		},
		log: log,
	}
}

// Snapshot возвращает консистентную копию состояния
func (rm *RiskManager) Snapshot() models.RiskState {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.state.Clone()
}

// PairSnapshot возвращает счётчики одной пары
func (rm *RiskManager) PairSnapshot(pairID int) models.PairRisk {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.state.Pairs[pairID]
}

// EntryDepth - входные данные проверки глубины: уровни стакана той
// стороны, которой будет исполняться вход по каждой ноге.
type EntryDepth struct {
	LegA []utils.DepthLevel
	LegB []utils.DepthLevel
}

// ValidateEntry прогоняет вход через проверки в фиксированном порядке;
// первая не прошедшая проверка даёт отказ с её именем:
//
//  1. circuit breaker не установлен
//  2. notional входа + текущий gross notional <= max_gross_notional_usd
//  3. число открытых ног < max_legs
//  4. глубина обеих ног у лучшей цены >= min_liquidity_usd
//  5. прогноз проскальзывания по глубине стакана <= max_slippage_bps
func (rm *RiskManager) ValidateEntry(sig models.Signal, pair models.PairConfig, tick models.Tick, depth EntryDepth) error {
	rm.mu.Lock()
	breaker := rm.state.Breaker
	breakerReason := rm.state.BreakerReason
	gross := rm.state.GrossNotionalUSD
	openLegs := rm.state.OpenLegs
	degraded := rm.state.Pairs[sig.PairID].Degraded
	rm.mu.Unlock()

	if breaker {
		return &Rejection{Check: CheckBreaker, Detail: breakerReason}
	}
	if degraded {
		return &Rejection{Check: CheckBreaker, Detail: "pair degraded"}
	}

	entryNotional := pair.VolumeBase * (tick.PriceA + tick.PriceB)
	if gross+entryNotional > rm.cfg.MaxGrossNotionalUSD {
		return &Rejection{
			Check:  CheckNotional,
			Detail: fmt.Sprintf("%.0f + %.0f > %.0f USD", gross, entryNotional, rm.cfg.MaxGrossNotionalUSD),
		}
	}

	if openLegs+2 > rm.cfg.MaxLegs {
		return &Rejection{
			Check:  CheckLegs,
			Detail: fmt.Sprintf("open legs %d, limit %d", openLegs, rm.cfg.MaxLegs),
		}
	}

	if tick.LiquidityA < rm.cfg.MinLiquidityUSD || tick.LiquidityB < rm.cfg.MinLiquidityUSD {
		return &Rejection{
			Check:  CheckLiquidity,
			Detail: fmt.Sprintf("depth A=%.0f B=%.0f, need %.0f USD", tick.LiquidityA, tick.LiquidityB, rm.cfg.MinLiquidityUSD),
		}
	}

	slipA := utils.SlippageBps(depth.LegA, pair.VolumeBase)
	slipB := utils.SlippageBps(depth.LegB, pair.VolumeBase)
	if slipA > rm.cfg.MaxSlippageBps || slipB > rm.cfg.MaxSlippageBps {
		return &Rejection{
			Check:  CheckSlippage,
			Detail: fmt.Sprintf("projected A=%.1f B=%.1f bps, limit %.1f", slipA, slipB, rm.cfg.MaxSlippageBps),
		}
	}

	return nil
}

// ValidateExit гейтит выход только по breaker'у: закрытие риска должно
// быть разрешено всегда. Недостаточная ликвидность выхода не блокирует,
// а возвращается как degraded-предупреждение для аудита.
func (rm *RiskManager) ValidateExit(sig models.Signal, tick models.Tick) (degradedLiquidity bool, err error) {
	rm.mu.Lock()
	breaker := rm.state.Breaker
	breakerReason := rm.state.BreakerReason
	rm.mu.Unlock()

	// Stop-выход идёт даже при breaker'е: breaker блокирует только
	// НОВЫЙ риск, а stop сокращает существующий
	if breaker && sig.Reason != models.ReasonStop {
		return false, &Rejection{Check: CheckBreaker, Detail: breakerReason}
	}

	if tick.LiquidityA < rm.cfg.MinLiquidityUSD || tick.LiquidityB < rm.cfg.MinLiquidityUSD {
		degradedLiquidity = true
	}

	return degradedLiquidity, nil
}

// RecordEntry фиксирует открытие позиции: notional, ноги, дневной
// счётчик (сбрасывается на границе дня UTC), last_entry.
func (rm *RiskManager) RecordEntry(pairID int, notionalUSD float64, now time.Time) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	pr := rm.state.Pairs[pairID]
	if !utils.SameUTCDay(pr.LastEntry, now) {
		pr.EntriesToday = 0
	}
	pr.EntriesToday++
	pr.LastEntry = now
	pr.NotionalUSD = notionalUSD
	rm.state.Pairs[pairID] = pr

	rm.state.GrossNotionalUSD += notionalUSD
	rm.state.OpenLegs += 2
}

// RecordExit фиксирует закрытие позиции
func (rm *RiskManager) RecordExit(pairID int, now time.Time) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	pr := rm.state.Pairs[pairID]
	rm.state.GrossNotionalUSD -= pr.NotionalUSD
	if rm.state.GrossNotionalUSD < 0 {
		rm.state.GrossNotionalUSD = 0
	}
	rm.state.OpenLegs -= 2
	if rm.state.OpenLegs < 0 {
		rm.state.OpenLegs = 0
	}

	pr.NotionalUSD = 0
	pr.LastExit = now
	rm.state.Pairs[pairID] = pr
}

// SetBreaker устанавливает или снимает глобальный circuit breaker.
// Сам breaker вычисляется внешним монитором либо оператором; здесь
// он только хранится и читается.
func (rm *RiskManager) SetBreaker(on bool, reason string) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	rm.state.Breaker = on
	if on {
		rm.state.BreakerReason = reason
		rm.log.Warn("circuit breaker set", zap.String("reason", reason))
	} else {
		rm.state.BreakerReason = ""
		rm.log.Info("circuit breaker cleared")
	}
}

// Breaker возвращает текущее состояние breaker'а
func (rm *RiskManager) Breaker() (bool, string) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.state.Breaker, rm.state.BreakerReason
}

// SetDegraded помечает пару деградировавшей (или снимает пометку).
// Деградация блокирует новые входы пары; выходы остаются разрешены.
func (rm *RiskManager) SetDegraded(pairID int, degraded bool) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	pr := rm.state.Pairs[pairID]
	pr.Degraded = degraded
	rm.state.Pairs[pairID] = pr

	if degraded {
		rm.log.Error("pair degraded", zap.Int("pair_id", pairID))
	}
}
