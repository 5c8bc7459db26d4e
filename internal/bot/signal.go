package bot

import (
	"math"
	"time"

	"pairsbot/internal/config"
	"pairsbot/internal/models"
	"pairsbot/pkg/utils"
)

// SignalEngine - автомат решений одной пары:
// FLAT -> ENTERING -> OPEN -> EXITING -> FLAT (+ DEGRADED).
//
// Владелец - горутина пары. Принимает SpreadSample, текущую позицию и
// снапшот рисковых таймеров, выдаёт Signal. Повторные одинаковые
// сэмплы в OPEN или FLAT дают HOLD без побочных эффектов.
//
// Время берётся из сэмпла: оценка реплеябельна.
type SignalEngine struct {
	pairID int
	cfg    config.TradingConfig
	state  string
}

// NewSignalEngine создаёт автомат пары в состоянии FLAT
func NewSignalEngine(pairID int, cfg config.TradingConfig) *SignalEngine {
	return &SignalEngine{
		pairID: pairID,
		cfg:    cfg,
		state:  models.StateFlat,
	}
}

// State возвращает текущее состояние автомата
func (e *SignalEngine) State() string {
	return e.state
}

// Transition переводит автомат в новое состояние.
// Недопустимый переход игнорируется и возвращает false.
func (e *SignalEngine) Transition(to string) bool {
	if !CanTransition(e.state, to) {
		return false
	}
	e.state = to
	return true
}

// ForceState выставляет состояние без проверки переходов.
// Только для восстановления из State Store при старте.
func (e *SignalEngine) ForceState(s string) {
	e.state = s
}

// Evaluate принимает решение по очередному сэмплу.
//
// Порядок проверок в OPEN: stop-условие ПЕРВЫМ - оно обходит
// min_hold и cooldown. Затем пороговый выход (|z| <= exit_z_low
// и min_hold выдержан).
//
// В FLAT гейтинг входа: staleness, low_confidence, порог, cooldown
// после прошлого выхода, дневной лимит входов. Каждый отказ - HOLD
// с причиной, ничего не глотается молча.
func (e *SignalEngine) Evaluate(sample models.SpreadSample, pr models.PairRisk) models.Signal {
	now := sample.Timestamp
	absZ := math.Abs(sample.Z)

	switch e.state {
	case models.StateOpen:
		// Stop проверяется первым: обходит min_hold
		if absZ >= e.cfg.StopZ {
			return e.signal(now, models.SignalExit, sample.Z, models.ReasonStop)
		}

		if absZ <= e.cfg.ExitZLow {
			held := now.Sub(pr.LastEntry)
			if held < e.cfg.MinHold {
				return e.signal(now, models.SignalHold, sample.Z, models.ReasonMinHold)
			}
			return e.signal(now, models.SignalExit, sample.Z, models.ReasonThreshold)
		}

		return e.signal(now, models.SignalHold, sample.Z, models.ReasonThreshold)

	case models.StateFlat:
		return e.evaluateEntry(sample, pr)

	default:
		// ENTERING / EXITING / DEGRADED: решений нет, ждём исполнения
		return e.signal(now, models.SignalHold, sample.Z, models.ReasonThreshold)
	}
}

func (e *SignalEngine) evaluateEntry(sample models.SpreadSample, pr models.PairRisk) models.Signal {
	now := sample.Timestamp

	// Staleness подавляет только входы, выходы идут выше по OPEN-ветке
	if sample.Stale {
		return e.signal(now, models.SignalHold, sample.Z, models.ReasonStale)
	}
	if sample.LowConfidence {
		return e.signal(now, models.SignalHold, sample.Z, models.ReasonLowConf)
	}

	absZ := math.Abs(sample.Z)
	if absZ < e.cfg.EnterZHigh {
		return e.signal(now, models.SignalHold, sample.Z, models.ReasonThreshold)
	}

	// Cooldown после последнего выхода
	if !pr.LastExit.IsZero() && now.Sub(pr.LastExit) < e.cfg.MinReentry {
		return e.signal(now, models.SignalHold, sample.Z, models.ReasonCooldown)
	}

	// Дневной лимит входов (день по UTC)
	if e.cfg.MaxEntriesPerDay > 0 &&
		utils.SameUTCDay(pr.LastEntry, now) &&
		pr.EntriesToday >= e.cfg.MaxEntriesPerDay {
		return e.signal(now, models.SignalHold, sample.Z, models.ReasonDailyCap)
	}

	kind := models.SignalEnterShortALongB // z >= enter_z_high: A дорогая
	if sample.Z <= -e.cfg.EnterZHigh {
		kind = models.SignalEnterLongAShortB
	}
	return e.signal(now, kind, sample.Z, models.ReasonThreshold)
}

func (e *SignalEngine) signal(ts time.Time, kind models.SignalKind, z float64, reason string) models.Signal {
	return models.Signal{
		PairID:    e.pairID,
		Timestamp: ts,
		Kind:      kind,
		Z:         z,
		Reason:    reason,
	}
}
