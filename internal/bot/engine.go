package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"pairsbot/internal/config"
	"pairsbot/internal/connector"
	"pairsbot/internal/models"
)

// Publisher - потребители потока сэмплов/сигналов ядра:
// State Store и WebSocket hub панели
type Publisher interface {
	PublishSample(models.SpreadSample)
	PublishSignal(models.Signal)
	PublishPosition(models.Position)
	PublishOrder(models.Order)
	PublishNotification(models.Notification)
}

// NopPublisher - заглушка для тестов и alert-only запусков без панели
type NopPublisher struct{}

func (NopPublisher) PublishSample(models.SpreadSample)       {}
func (NopPublisher) PublishSignal(models.Signal)             {}
func (NopPublisher) PublishPosition(models.Position)         {}
func (NopPublisher) PublishOrder(models.Order)               {}
func (NopPublisher) PublishNotification(models.Notification) {}

// Engine - оркестратор ядра: Normalizer -> Metrics -> Signal -> Risk ->
// Execution, данные текут в одну сторону на каждом тике.
//
// На каждую пару - одна горутина, читающая эксклюзивный канал тиков:
// тики пары обрабатываются строго в порядке прихода, пары независимы.
// Единственный общий ресурс - RiskState за мьютексом риск-менеджера.
//
// Операторские команды (режим, flatten, breaker) синхронны: мутируют
// состояние под локом runtime'а пары и видны не позже следующего тика.
type Engine struct {
	cfg    *config.Config
	pairs  map[int]models.PairConfig
	feed   connector.Feed
	trader connector.Trader
	risk   *RiskManager
	exec   *ExecutionEngine
	pub    Publisher
	log    *zap.Logger

	modeMu      sync.RWMutex
	autoExecute bool

	runtimes map[int]*pairRuntime

	wg sync.WaitGroup
}

// pairRuntime - состояние одной пары, принадлежащее её горутине.
// Лок нужен только для операторских команд (flatten, сброс DEGRADED),
// вклинивающихся между тиками.
type pairRuntime struct {
	mu     sync.Mutex
	pair   models.PairConfig
	calc   *SpreadCalculator
	se     *SignalEngine
	degraded bool
}

// NewEngine собирает ядро из компонентов
func NewEngine(cfg *config.Config, pairs []models.PairConfig, feed connector.Feed, trader connector.Trader, risk *RiskManager, exec *ExecutionEngine, pub Publisher, log *zap.Logger) *Engine {
	if pub == nil {
		pub = NopPublisher{}
	}

	e := &Engine{
		cfg:         cfg,
		pairs:       make(map[int]models.PairConfig, len(pairs)),
		feed:        feed,
		trader:      trader,
		risk:        risk,
		exec:        exec,
		pub:         pub,
		log:         log,
		autoExecute: cfg.Trading.AutoExecute,
		runtimes:    make(map[int]*pairRuntime, len(pairs)),
	}

	for _, p := range pairs {
		e.pairs[p.ID] = p
		e.runtimes[p.ID] = &pairRuntime{
			pair: p,
			calc: NewSpreadCalculator(p, cfg.Trading),
			se:   NewSignalEngine(p.ID, cfg.Trading),
		}
	}

	exec.SetOrderSink(e.pub.PublishOrder)

	return e
}

// Run запускает горутины пар и блокируется до отмены контекста
func (e *Engine) Run(ctx context.Context) error {
	e.exec.Start()
	defer e.exec.Stop()

	for id, rt := range e.runtimes {
		ch, err := e.feed.Subscribe(id)
		if err != nil {
			return fmt.Errorf("subscribe pair %d: %w", id, err)
		}

		e.wg.Add(1)
		go e.runPair(ctx, rt, ch)
	}

	e.log.Info("engine started",
		zap.Int("pairs", len(e.runtimes)),
		zap.Bool("auto_execute", e.autoExecute))

	<-ctx.Done()
	e.wg.Wait()
	return ctx.Err()
}

func (e *Engine) runPair(ctx context.Context, rt *pairRuntime, ticks <-chan models.Tick) {
	defer e.wg.Done()

	for {
		select {
		case tick, ok := <-ticks:
			if !ok {
				return
			}
			e.handleTick(ctx, rt, tick)
		case <-ctx.Done():
			return
		}
	}
}

// handleTick - один проход конвейера для одного тика
func (e *Engine) handleTick(ctx context.Context, rt *pairRuntime, tick models.Tick) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	pairLabel := strconv.Itoa(rt.pair.ID)
	TicksProcessed.WithLabelValues(pairLabel).Inc()

	stale := tick.Stale(e.cfg.Trading.StaleAfter, e.cfg.Trading.MaxSkew)
	if stale {
		StaleTicks.WithLabelValues(pairLabel).Inc()
	}

	sample := rt.calc.Update(tick, stale)
	ZScoreGauge.WithLabelValues(pairLabel).Set(sample.Z)
	SpreadStdGauge.WithLabelValues(pairLabel).Set(sample.Std)
	e.pub.PublishSample(sample)

	pr := e.risk.PairSnapshot(rt.pair.ID)
	sig := rt.se.Evaluate(sample, pr)

	SignalsTotal.WithLabelValues(pairLabel, string(sig.Kind), sig.Reason).Inc()

	// HOLD по обычному порогу не публикуем в аудит: это фон.
	// HOLD с гейт-причинами (stale, cooldown, ...) публикуем.
	if sig.Kind != models.SignalHold || sig.Reason != models.ReasonThreshold {
		e.pub.PublishSignal(sig)
	}

	switch {
	case sig.IsEnter():
		e.handleEnter(ctx, rt, sig, tick)
	case sig.Kind == models.SignalExit:
		e.handleExit(ctx, rt, sig, tick)
	}
}

func (e *Engine) handleEnter(ctx context.Context, rt *pairRuntime, sig models.Signal, tick models.Tick) {
	pairLabel := strconv.Itoa(rt.pair.ID)

	depth, err := e.fetchEntryDepth(ctx, rt.pair, sig)
	if err != nil {
		e.log.Warn("depth fetch failed, entry skipped",
			zap.Int("pair_id", rt.pair.ID), zap.Error(err))
		return
	}

	if err := e.risk.ValidateEntry(sig, rt.pair, tick, depth); err != nil {
		var rej *Rejection
		if errors.As(err, &rej) {
			RiskRejections.WithLabelValues(pairLabel, rej.Check).Inc()
			// Отказ фиксируется как HOLD с причиной, не глотается
			hold := sig
			hold.Kind = models.SignalHold
			hold.Reason = models.ReasonRiskReject + ":" + rej.Check
			e.pub.PublishSignal(hold)
			e.notifyPair(rt.pair.ID, models.NotificationTypeRiskReject, models.SeverityInfo, rej.Error())
		}
		return
	}

	if !e.AutoExecute() {
		// Alert-only: сигнал опубликован, позиция не открывается
		e.notifyPair(rt.pair.ID, models.NotificationTypeEnter, models.SeverityInfo,
			fmt.Sprintf("entry signal %s at z=%.2f (alert-only)", sig.Kind, sig.Z))
		return
	}

	rt.se.Transition(models.StateEntering)
	e.setStateGauge(pairLabel, rt.se.State())

	pos, err := e.exec.ExecuteEntry(ctx, rt.pair, sig, tick)
	if err != nil {
		if errors.Is(err, ErrPairDegraded) {
			rt.se.Transition(models.StateDegraded)
			rt.degraded = true
			DegradedPairs.Inc()
		} else {
			// Вход прерван без открытой ноги: обратно в FLAT
			rt.se.Transition(models.StateFlat)
		}
		e.setStateGauge(pairLabel, rt.se.State())
		return
	}

	rt.se.Transition(models.StateOpen)
	e.setStateGauge(pairLabel, rt.se.State())
	GrossNotional.Set(e.risk.Snapshot().GrossNotionalUSD)

	e.pub.PublishPosition(*pos)
	e.notifyPair(rt.pair.ID, models.NotificationTypeEnter, models.SeverityInfo,
		fmt.Sprintf("entered %s at z=%.2f", sig.Kind, sig.Z))
}

func (e *Engine) handleExit(ctx context.Context, rt *pairRuntime, sig models.Signal, tick models.Tick) {
	pairLabel := strconv.Itoa(rt.pair.ID)

	degradedLiq, err := e.risk.ValidateExit(sig, tick)
	if err != nil {
		var rej *Rejection
		if errors.As(err, &rej) {
			RiskRejections.WithLabelValues(pairLabel, rej.Check).Inc()
			hold := sig
			hold.Kind = models.SignalHold
			hold.Reason = models.ReasonRiskReject + ":" + rej.Check
			e.pub.PublishSignal(hold)
		}
		return
	}
	if degradedLiq {
		// Выход не блокируется, но фиксируем деградированную ликвидность
		e.notifyPair(rt.pair.ID, models.NotificationTypeDegradedExit, models.SeverityWarn,
			"exit under insufficient liquidity")
	}

	rt.se.Transition(models.StateExiting)
	e.setStateGauge(pairLabel, rt.se.State())

	if err := e.exec.ExecuteExit(ctx, rt.pair, sig); err != nil {
		rt.se.Transition(models.StateDegraded)
		rt.degraded = true
		DegradedPairs.Inc()
		e.setStateGauge(pairLabel, rt.se.State())
		return
	}

	rt.se.Transition(models.StateFlat)
	e.setStateGauge(pairLabel, rt.se.State())
	GrossNotional.Set(e.risk.Snapshot().GrossNotionalUSD)

	notifType := models.NotificationTypeExit
	if sig.Reason == models.ReasonStop {
		notifType = models.NotificationTypeStop
	}
	e.notifyPair(rt.pair.ID, notifType, models.SeverityInfo,
		fmt.Sprintf("exited at z=%.2f (%s)", sig.Z, sig.Reason))
}

// fetchEntryDepth запрашивает стаканы обеих ног со сторон входа
func (e *Engine) fetchEntryDepth(ctx context.Context, pair models.PairConfig, sig models.Signal) (EntryDepth, error) {
	sideA, sideB := models.SideSell, models.SideBuy
	if sig.Kind == models.SignalEnterLongAShortB {
		sideA, sideB = models.SideBuy, models.SideSell
	}

	depthA, err := e.trader.Depth(ctx, pair.LegA, sideA)
	if err != nil {
		return EntryDepth{}, fmt.Errorf("leg A depth: %w", err)
	}
	depthB, err := e.trader.Depth(ctx, pair.LegB, sideB)
	if err != nil {
		return EntryDepth{}, fmt.Errorf("leg B depth: %w", err)
	}
	return EntryDepth{LegA: depthA, LegB: depthB}, nil
}

// ============================================================
// Операторский control surface
// ============================================================

// AutoExecute возвращает текущий режим (true = исполнение включено)
func (e *Engine) AutoExecute() bool {
	e.modeMu.RLock()
	defer e.modeMu.RUnlock()
	return e.autoExecute
}

// SetAutoExecute переключает режим auto-execute / alert-only.
// Видно следующему тику любой пары.
func (e *Engine) SetAutoExecute(on bool) {
	e.modeMu.Lock()
	e.autoExecute = on
	e.modeMu.Unlock()

	e.log.Info("execution mode changed", zap.Bool("auto_execute", on))
}

// SetBreaker устанавливает/снимает глобальный circuit breaker
func (e *Engine) SetBreaker(on bool, reason string) {
	e.risk.SetBreaker(on, reason)
	if on {
		BreakerGauge.Set(1)
	} else {
		BreakerGauge.Set(0)
	}

	e.pub.PublishNotification(models.Notification{
		Timestamp: time.Now().UTC(),
		Type:      models.NotificationTypeBreaker,
		Severity:  models.SeverityWarn,
		Message:   fmt.Sprintf("breaker=%v reason=%s", on, reason),
	})
}

// FlattenPair принудительно закрывает позицию пары.
// Берёт лок runtime'а: команда не пересечётся с обработкой тика,
// а начатый вход завершится до хеджа-или-flatten'а - голой ноги
// команда не оставляет.
func (e *Engine) FlattenPair(ctx context.Context, pairID int) error {
	rt, ok := e.runtimes[pairID]
	if !ok {
		return fmt.Errorf("pair %d: %w", pairID, ErrUnknownPair)
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()

	if err := e.exec.Flatten(ctx, rt.pair); err != nil {
		return err
	}

	if rt.degraded {
		rt.degraded = false
		DegradedPairs.Dec()
	}
	rt.se.ForceState(models.StateFlat)
	e.setStateGauge(strconv.Itoa(pairID), models.StateFlat)
	GrossNotional.Set(e.risk.Snapshot().GrossNotionalUSD)
	return nil
}

// FlattenAll закрывает позиции всех пар; возвращает первую ошибку,
// но пытается закрыть все
func (e *Engine) FlattenAll(ctx context.Context) error {
	var firstErr error
	for id := range e.runtimes {
		if err := e.FlattenPair(ctx, id); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ============================================================
// Снапшоты для панели
// ============================================================

// PairStatus - состояние пары для панели и аудита
type PairStatus struct {
	Pair     models.PairConfig `json:"pair"`
	State    string            `json:"state"`
	StateInfo string           `json:"state_info"`
	Position *models.Position  `json:"position,omitempty"`
	Risk     models.PairRisk   `json:"risk"`
}

// PairSnapshot возвращает статус пары с позицией и ордерами
func (e *Engine) PairSnapshot(pairID int) (PairStatus, []models.Order, error) {
	rt, ok := e.runtimes[pairID]
	if !ok {
		return PairStatus{}, nil, fmt.Errorf("pair %d: %w", pairID, ErrUnknownPair)
	}

	rt.mu.Lock()
	state := rt.se.State()
	rt.mu.Unlock()

	return PairStatus{
		Pair:      rt.pair,
		State:     state,
		StateInfo: StateInfo(state),
		Position:  e.exec.PositionSnapshot(pairID),
		Risk:      e.risk.PairSnapshot(pairID),
	}, e.exec.OrdersSnapshot(pairID), nil
}

// Pairs возвращает статусы всех пар
func (e *Engine) Pairs() []PairStatus {
	out := make([]PairStatus, 0, len(e.runtimes))
	for id := range e.runtimes {
		st, _, err := e.PairSnapshot(id)
		if err == nil {
			out = append(out, st)
		}
	}
	return out
}

// RiskSnapshot возвращает копию RiskState
func (e *Engine) RiskSnapshot() models.RiskState {
	return e.risk.Snapshot()
}

func (e *Engine) setStateGauge(pairLabel, state string) {
	for _, s := range []string{
		models.StateFlat, models.StateEntering, models.StateOpen,
		models.StateExiting, models.StateDegraded,
	} {
		v := 0.0
		if s == state {
			v = 1.0
		}
		PairState.WithLabelValues(pairLabel, s).Set(v)
	}
}

func (e *Engine) notifyPair(pairID int, typ, severity, msg string) {
	pid := pairID
	e.pub.PublishNotification(models.Notification{
		Timestamp: time.Now().UTC(),
		Type:      typ,
		Severity:  severity,
		PairID:    &pid,
		Message:   msg,
	})
}
