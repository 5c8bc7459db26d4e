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
	"pairsbot/pkg/ratelimit"
	"pairsbot/pkg/retry"
)

// ExecutionEngine размещает, отслеживает и сверяет двухногие ордера
// принятых сигналов. Владеет состоянием ордеров и позиций пар.
//
// Модель конкурентности: на каждый подписывающий аккаунт - ровно одна
// writer-горутина, через которую проходят ВСЕ отправки аккаунта.
// Это сериализует выдачу nonce и исключает гонки на последовательности
// ордеров аккаунта. Горутины пар обращаются к writer'у синхронно
// (отправил задачу - ждёт результат).
//
// Секвенирование ног входа: первой отправляется менее ликвидная нога
// (при равенстве - нога A); хедж отправляется только после
// подтверждённого исполнения первой ноги и сайзится ПОДТВЕРЖДЁННЫМ
// количеством, не запрошенным - частичное исполнение первой ноги не
// оставляет одностороннего остатка.
type ExecutionEngine struct {
	cfg     config.TradingConfig
	trader  connector.Trader
	nonces  *NonceAllocator
	risk    *RiskManager
	log     *zap.Logger
	notify  func(models.Notification)
	persist func(models.Order)      // снапшоты ордеров в State Store
	limiter *ratelimit.VenueLimiter // частота отправок к venue API

	mu        sync.Mutex
	orders    map[string]*models.Order // по order_id
	lastSeq   map[string]int64         // дедупликация событий (order_id, seq)
	pending   map[string][]connector.OrderEvent
	positions map[int]*models.Position
	waiters   map[string]chan models.Order // ожидающие финала ордера

	workers  map[string]chan func() // single writer per account
	wg       sync.WaitGroup
	done     chan struct{}
	stopOnce sync.Once
}

// NewExecutionEngine создаёт движок исполнения
func NewExecutionEngine(cfg config.TradingConfig, trader connector.Trader, nonces *NonceAllocator, risk *RiskManager, log *zap.Logger, notify func(models.Notification)) *ExecutionEngine {
	if notify == nil {
		notify = func(models.Notification) {}
	}
	return &ExecutionEngine{
		cfg:       cfg,
		trader:    trader,
		nonces:    nonces,
		risk:      risk,
		log:       log,
		notify:    notify,
		persist:   func(models.Order) {},
		limiter:   ratelimit.NewVenueLimiter(),
		orders:    make(map[string]*models.Order),
		lastSeq:   make(map[string]int64),
		pending:   make(map[string][]connector.OrderEvent),
		positions: make(map[int]*models.Position),
		waiters:   make(map[string]chan models.Order),
		workers:   make(map[string]chan func()),
		done:      make(chan struct{}),
	}
}

// SetOrderSink задаёт получателя снапшотов ордеров: каждая отправка
// и каждое применённое событие (fill/отмена/reject) уходит в sink.
// Sink - журнал orders в State Store: он переживает рестарты и
// по нему восстанавливаются nonce-счётчики аккаунтов.
func (ee *ExecutionEngine) SetOrderSink(fn func(models.Order)) {
	if fn != nil {
		ee.persist = fn
	}
}

// SetVenueLimit задаёт частоту отправки ордеров на площадку.
// Незарегистрированная площадка не ограничивается.
func (ee *ExecutionEngine) SetVenueLimit(venue string, rate, burst float64) {
	ee.limiter.Register(venue, "orders", rate, burst)
}

// Start запускает диспетчер событий исполнения
func (ee *ExecutionEngine) Start() {
	ee.wg.Add(1)
	go ee.dispatchEvents()
}

// Stop останавливает диспетчер и writer-горутины аккаунтов.
// Повторные вызовы - no-op.
func (ee *ExecutionEngine) Stop() {
	ee.stopOnce.Do(func() {
		close(ee.done)

		ee.mu.Lock()
		for _, ch := range ee.workers {
			close(ch)
		}
		ee.workers = make(map[string]chan func())
		ee.mu.Unlock()

		ee.wg.Wait()
	})
}

// ============================================================
// Single-writer на аккаунт
// ============================================================

// runOnAccount выполняет fn на writer-горутине аккаунта и ждёт
// завершения. Все отправки одного аккаунта линеаризованы.
func (ee *ExecutionEngine) runOnAccount(account string, fn func()) {
	ee.mu.Lock()
	ch, ok := ee.workers[account]
	if !ok {
		ch = make(chan func(), 16)
		ee.workers[account] = ch
		ee.wg.Add(1)
		go func() {
			defer ee.wg.Done()
			for task := range ch {
				task()
			}
		}()
	}
	ee.mu.Unlock()

	doneCh := make(chan struct{})
	select {
	case ch <- func() { fn(); close(doneCh) }:
		<-doneCh
	case <-ee.done:
	}
}

// ============================================================
// Вход
// ============================================================

type legPlan struct {
	leg  string // A / B
	id   models.LegID
	side string
	qty  float64
	ref  float64 // референсная цена (mid из тика)
}

// ExecuteEntry исполняет принятый ENTER-сигнал: две ноги по политике
// секвенирования. Возвращает открытую позицию либо ошибку
// (ErrEntryAborted - вход прерван без открытой ноги, ErrPairDegraded -
// требуется вмешательство).
func (ee *ExecutionEngine) ExecuteEntry(ctx context.Context, pair models.PairConfig, sig models.Signal, tick models.Tick) (pos *models.Position, err error) {
	first, hedge := ee.planEntry(pair, sig, tick)

	ee.runOnAccount(pair.Account, func() {
		pos, err = ee.enterSequenced(ctx, pair, sig, first, hedge)
	})
	return pos, err
}

// planEntry строит план ног: стороны из направления сигнала,
// порядок - менее ликвидная нога первой (tie -> A)
func (ee *ExecutionEngine) planEntry(pair models.PairConfig, sig models.Signal, tick models.Tick) (first, hedge legPlan) {
	sideA, sideB := models.SideSell, models.SideBuy // SHORT_A_LONG_B
	if sig.Kind == models.SignalEnterLongAShortB {
		sideA, sideB = models.SideBuy, models.SideSell
	}

	planA := legPlan{leg: models.LegSideA, id: pair.LegA, side: sideA, qty: pair.VolumeBase, ref: tick.PriceA}
	planB := legPlan{leg: models.LegSideB, id: pair.LegB, side: sideB, qty: pair.VolumeBase, ref: tick.PriceB}

	if tick.LiquidityB < tick.LiquidityA {
		return planB, planA
	}
	return planA, planB
}

func (ee *ExecutionEngine) enterSequenced(ctx context.Context, pair models.PairConfig, sig models.Signal, first, hedge legPlan) (*models.Position, error) {
	// Первая нога: LIMIT у касания, по таймауту эскалация в IOC
	firstOrder, err := ee.fillLeg(ctx, pair, first)
	if err != nil {
		// Хедж не открывался: входа нет, голой ноги нет
		ee.log.Warn("entry aborted on first leg",
			zap.Int("pair_id", pair.ID),
			zap.String("leg", first.leg),
			zap.Error(err))
		return nil, fmt.Errorf("first leg %s: %w", first.leg, ErrEntryAborted)
	}

	// Хедж сайзится подтверждённым количеством первой ноги
	hedge.qty = firstOrder.FilledQty
	hedgeOrder, err := ee.fillLeg(ctx, pair, hedge)
	if err != nil {
		// Первая нога исполнена, хедж не встал: немедленный
		// best-effort flatten первой ноги, голой позиции не оставляем
		pid := pair.ID
		ee.notify(models.Notification{
			Timestamp: time.Now().UTC(),
			Type:      models.NotificationTypeHedgeFail,
			Severity:  models.SeverityError,
			PairID:    &pid,
			Message:   fmt.Sprintf("hedge leg %s failed, flattening first leg", hedge.leg),
		})

		if ferr := ee.flattenLeg(ctx, pair, first, firstOrder.FilledQty); ferr != nil {
			ee.degradePair(pair.ID, fmt.Sprintf("hedge failed and first-leg flatten failed: %v", ferr))
			return nil, fmt.Errorf("hedge leg %s: %w", hedge.leg, ErrPairDegraded)
		}
		return nil, fmt.Errorf("hedge leg %s failed, first leg flattened: %w", hedge.leg, ErrEntryAborted)
	}

	pos := ee.openPosition(pair, sig, first, firstOrder, hedge, hedgeOrder)
	ee.risk.RecordEntry(pair.ID, pos.GrossNotionalUSD(firstOrder.AvgFillPrice, hedgeOrder.AvgFillPrice), sig.Timestamp)
	return pos, nil
}

func (ee *ExecutionEngine) openPosition(pair models.PairConfig, sig models.Signal, first legPlan, firstOrder models.Order, hedge legPlan, hedgeOrder models.Order) *models.Position {
	pos := &models.Position{
		PairID:    pair.ID,
		EntryTime: sig.Timestamp,
		EntryZ:    sig.Z,
		State:     models.StateOpen,
	}

	apply := func(plan legPlan, ord models.Order) {
		qty := ord.FilledQty
		if plan.side == models.SideSell {
			qty = -qty
		}
		if plan.leg == models.LegSideA {
			pos.LegAQty = qty
			pos.EntryPriceA = ord.AvgFillPrice
		} else {
			pos.LegBQty = qty
			pos.EntryPriceB = ord.AvgFillPrice
		}
	}
	apply(first, firstOrder)
	apply(hedge, hedgeOrder)

	ee.mu.Lock()
	ee.positions[pair.ID] = pos
	ee.mu.Unlock()
	return pos
}

// ============================================================
// Выход
// ============================================================

// ExecuteExit закрывает обе ноги позиции (целиком, частичных выходов
// нет). Ноги закрываются последовательно на writer'е аккаунта;
// неустранимый сбой любой ноги переводит пару в DEGRADED.
func (ee *ExecutionEngine) ExecuteExit(ctx context.Context, pair models.PairConfig, sig models.Signal) (err error) {
	ee.mu.Lock()
	pos, ok := ee.positions[pair.ID]
	ee.mu.Unlock()
	if !ok || !pos.Open() {
		return nil // уже плоско: выход идемпотентен
	}

	ee.runOnAccount(pair.Account, func() {
		err = ee.exitSequenced(ctx, pair, sig, pos)
	})
	return err
}

func (ee *ExecutionEngine) exitSequenced(ctx context.Context, pair models.PairConfig, sig models.Signal, pos *models.Position) error {
	closeLeg := func(leg string, id models.LegID, qty float64) error {
		if qty == 0 {
			return nil
		}
		side := models.SideSell
		if qty < 0 {
			side = models.SideBuy
			qty = -qty
		}
		plan := legPlan{leg: leg, id: id, side: side, qty: qty}
		_, err := ee.marketLeg(ctx, pair, plan, retry.AggressiveConfig())
		return err
	}

	var firstErr error
	if err := closeLeg(models.LegSideA, pair.LegA, pos.LegAQty); err != nil {
		firstErr = err
	} else {
		ee.mu.Lock()
		pos.LegAQty = 0
		ee.mu.Unlock()
	}
	if err := closeLeg(models.LegSideB, pair.LegB, pos.LegBQty); err != nil && firstErr == nil {
		firstErr = err
	} else if err == nil {
		ee.mu.Lock()
		pos.LegBQty = 0
		ee.mu.Unlock()
	}

	if firstErr != nil {
		ee.degradePair(pair.ID, fmt.Sprintf("exit failed: %v", firstErr))
		return fmt.Errorf("exit: %w", ErrPairDegraded)
	}

	ee.mu.Lock()
	pos.State = models.StateFlat
	delete(ee.positions, pair.ID)
	ee.mu.Unlock()

	ee.risk.RecordExit(pair.ID, sig.Timestamp)
	return nil
}

// Flatten принудительно закрывает позицию пары (операторская команда).
// Для DEGRADED пары это и есть путь восстановления.
func (ee *ExecutionEngine) Flatten(ctx context.Context, pair models.PairConfig) error {
	sig := models.Signal{
		PairID:    pair.ID,
		Timestamp: time.Now().UTC(),
		Kind:      models.SignalExit,
		Reason:    models.ReasonManual,
	}
	if err := ee.ExecuteExit(ctx, pair, sig); err != nil {
		return err
	}
	ee.risk.SetDegraded(pair.ID, false)
	return nil
}

// ============================================================
// Исполнение одной ноги
// ============================================================

// fillLeg исполняет одну ногу: LIMIT у референсной цены, по таймауту
// отмена и переотправка IOC с потолком отклонения max_slippage_bps.
// Если и IOC не исполнился - ошибка (вход прерывается выше).
func (ee *ExecutionEngine) fillLeg(ctx context.Context, pair models.PairConfig, plan legPlan) (models.Order, error) {
	// LIMIT у касания
	order, err := ee.submitAndWait(ctx, pair, plan, models.OrderTypeLimit, plan.ref, ee.cfg.OrderTimeout)
	if err == nil && order.FilledQty >= plan.qty {
		return order, nil
	}
	if err != nil && !errors.Is(err, ErrOrderTimeout) {
		return models.Order{}, err
	}

	// Эскалация: IOC с ценой, ограниченной max_slippage_bps от референса
	ioc := plan
	ioc.qty = plan.qty - order.FilledQty // LIMIT мог исполниться частично
	if ioc.qty <= 0 {
		return order, nil
	}
	IOCEscalations.WithLabelValues(strconv.Itoa(pair.ID)).Inc()

	iocOrder, err := ee.submitAndWait(ctx, pair, ioc, models.OrderTypeIOC, ee.cappedPrice(plan), ee.cfg.OrderTimeout)
	if err != nil && !errors.Is(err, ErrOrderTimeout) {
		return models.Order{}, err
	}
	if order.FilledQty+iocOrder.FilledQty <= 0 {
		return models.Order{}, fmt.Errorf("leg %s unfilled after IOC escalation: %w", plan.leg, ErrOrderTimeout)
	}

	// Частично исполненный IOC (остаток отменён площадкой) - тоже
	// подтверждённое количество: хедж сайзится им
	return mergeFills(order, iocOrder), nil
}

// marketLeg исполняет ногу MARKET-ордером с агрессивным retry.
// Используется для выходов и аварийного flatten'а.
func (ee *ExecutionEngine) marketLeg(ctx context.Context, pair models.PairConfig, plan legPlan, rcfg retry.Config) (models.Order, error) {
	rcfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		ee.log.Warn("market leg retry",
			zap.Int("pair_id", pair.ID),
			zap.String("leg", plan.leg),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))
	}
	return retry.DoWithResult(ctx, func() (models.Order, error) {
		return ee.submitAndWait(ctx, pair, plan, models.OrderTypeMarket, 0, ee.cfg.OrderTimeout)
	}, rcfg)
}

// flattenLeg закрывает остаток первой ноги после сбоя хеджа
func (ee *ExecutionEngine) flattenLeg(ctx context.Context, pair models.PairConfig, plan legPlan, filledQty float64) error {
	if filledQty <= 0 {
		return nil
	}
	HedgeFlattens.Inc()

	closing := plan
	closing.qty = filledQty
	closing.side = models.SideSell
	if plan.side == models.SideSell {
		closing.side = models.SideBuy
	}
	_, err := ee.marketLeg(ctx, pair, closing, retry.AggressiveConfig())
	return err
}

// cappedPrice возвращает предельную цену IOC: референс, сдвинутый на
// max_slippage_bps в сторону исполнения
func (ee *ExecutionEngine) cappedPrice(plan legPlan) float64 {
	shift := plan.ref * ee.cfg.MaxSlippageBps / 10000
	if plan.side == models.SideBuy {
		return plan.ref + shift
	}
	return plan.ref - shift
}

// submitAndWait резервирует nonce, отправляет ордер с ограниченным
// retry и ждёт финального события либо таймаута исполнения.
//
// Контракт nonce: резервация - до сетевого вызова; неудачная отправка
// либо возвращает nonce (Reclaim старшего), либо сжигает его - локальный
// счётчик никогда молча не расходится с площадкой.
func (ee *ExecutionEngine) submitAndWait(ctx context.Context, pair models.PairConfig, plan legPlan, orderType string, limitPrice float64, timeout time.Duration) (models.Order, error) {
	nonce, err := ee.nonces.Reserve(pair.Account)
	if err != nil {
		return models.Order{}, err
	}

	req := connector.OrderRequest{
		PairID:     pair.ID,
		Leg:        plan.id,
		Account:    pair.Account,
		Side:       plan.side,
		Type:       orderType,
		Qty:        plan.qty,
		LimitPrice: limitPrice,
		Nonce:      nonce,
	}

	rcfg := retry.Config{
		MaxRetries:   ee.cfg.MaxRetries,
		InitialDelay: ee.cfg.RetryBackoff,
		MaxDelay:     10 * ee.cfg.RetryBackoff,
		Multiplier:   2.0,
		JitterFactor: 0.1,
		RetryIf: func(err error) bool {
			// Desync не ретраится: аккаунт остановлен
			return !errors.Is(err, ErrNonceDesync)
		},
	}

	submitStart := time.Now()
	orderID, err := retry.DoWithResult(ctx, func() (string, error) {
		if lerr := ee.limiter.Wait(ctx, plan.id.Venue, "orders"); lerr != nil {
			return "", fmt.Errorf("%w: %v", ErrSubmissionFailed, lerr)
		}
		id, perr := ee.trader.PlaceOrder(ctx, req)
		if perr != nil {
			return "", fmt.Errorf("%w: %v", ErrSubmissionFailed, perr)
		}
		return id, nil
	}, rcfg)
	if err != nil {
		ee.nonces.Reclaim(pair.Account, nonce)
		return models.Order{}, err
	}
	ee.nonces.Confirm(pair.Account, nonce)
	OrderSubmitLatency.WithLabelValues(plan.id.Venue, orderType).
		Observe(float64(time.Since(submitStart).Milliseconds()))

	order := &models.Order{
		OrderID:    orderID,
		PairID:     pair.ID,
		Leg:        plan.leg,
		Side:       plan.side,
		Type:       orderType,
		Qty:        plan.qty,
		LimitPrice: limitPrice,
		Status:     models.OrderStatusSubmitted,
		Nonce:      nonce,
		CreatedAt:  time.Now().UTC(),
	}

	waiter := make(chan models.Order, 1)
	ee.mu.Lock()
	ee.orders[orderID] = order
	ee.waiters[orderID] = waiter
	// События, пришедшие до регистрации ордера (коннектор может
	// прислать fill раньше, чем вернётся PlaceOrder), доигрываются
	pend := ee.pending[orderID]
	delete(ee.pending, orderID)
	submitted := *order
	ee.mu.Unlock()

	ee.persist(submitted)

	for _, ev := range pend {
		ee.applyEvent(ev)
	}

	defer func() {
		ee.mu.Lock()
		delete(ee.waiters, orderID)
		ee.mu.Unlock()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case final := <-waiter:
		switch final.Status {
		case models.OrderStatusFilled:
			return final, nil
		case models.OrderStatusRejected:
			return final, fmt.Errorf("order %s rejected: %w", orderID, ErrSubmissionFailed)
		default: // cancelled
			return final, fmt.Errorf("order %s cancelled: %w", orderID, ErrOrderTimeout)
		}

	case <-timer.C:
		// Не исполнился за отведённое время: отменяем и возвращаем
		// частичное состояние, эскалация решается уровнем выше
		if cerr := ee.trader.CancelOrder(ctx, plan.id.Venue, orderID); cerr != nil {
			ee.log.Warn("cancel after timeout failed",
				zap.String("order_id", orderID), zap.Error(cerr))
		}
		ee.mu.Lock()
		snapshot := *ee.orders[orderID]
		ee.mu.Unlock()
		return snapshot, fmt.Errorf("order %s: %w", orderID, ErrOrderTimeout)

	case <-ctx.Done():
		_ = ee.trader.CancelOrder(context.Background(), plan.id.Venue, orderID)
		return models.Order{}, ctx.Err()
	}
}

func mergeFills(a, b models.Order) models.Order {
	out := b
	total := a.FilledQty + b.FilledQty
	if total > 0 {
		out.AvgFillPrice = (a.AvgFillPrice*a.FilledQty + b.AvgFillPrice*b.FilledQty) / total
	}
	out.FilledQty = total
	out.Status = models.OrderStatusFilled
	return out
}

// ============================================================
// Поток событий исполнения
// ============================================================

// dispatchEvents читает поток fill/cancel/reject и применяет события
// к ордерам. Доставка at-least-once: события дедуплицируются по
// (order_id, seq), дубликат - no-op.
func (ee *ExecutionEngine) dispatchEvents() {
	defer ee.wg.Done()

	events := ee.trader.Events()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			ee.applyEvent(ev)
		case <-ee.done:
			return
		}
	}
}

func (ee *ExecutionEngine) applyEvent(ev connector.OrderEvent) {
	ee.mu.Lock()

	order, ok := ee.orders[ev.OrderID]
	if !ok {
		// Ордер ещё не зарегистрирован: буферизуем до submitAndWait
		ee.pending[ev.OrderID] = append(ee.pending[ev.OrderID], ev)
		ee.mu.Unlock()
		return
	}

	if last, seen := ee.lastSeq[ev.OrderID]; seen && ev.Seq <= last {
		ee.mu.Unlock()
		return // дубликат at-least-once доставки
	}
	ee.lastSeq[ev.OrderID] = ev.Seq

	switch ev.Kind {
	case connector.EventFill:
		order.FilledQty = ev.FillQty
		order.AvgFillPrice = ev.FillPrice
		if order.FilledQty >= order.Qty {
			order.Status = models.OrderStatusFilled
			now := ev.Timestamp
			order.FilledAt = &now
		} else {
			order.Status = models.OrderStatusPartial
		}
	case connector.EventCancel:
		order.Status = models.OrderStatusCancelled
	case connector.EventReject:
		order.Status = models.OrderStatusRejected
	}

	var waiter chan models.Order
	if order.Terminal() {
		waiter = ee.waiters[ev.OrderID]
		OrdersTotal.WithLabelValues(order.Type, order.Status).Inc()
	}
	snapshot := *order
	ee.mu.Unlock()

	ee.persist(snapshot)

	if waiter != nil {
		select {
		case waiter <- snapshot:
		default:
		}
	}
}

// ============================================================
// Снапшоты и деградация
// ============================================================

// PositionSnapshot возвращает копию позиции пары (nil если плоско)
func (ee *ExecutionEngine) PositionSnapshot(pairID int) *models.Position {
	ee.mu.Lock()
	defer ee.mu.Unlock()

	pos, ok := ee.positions[pairID]
	if !ok {
		return nil
	}
	out := *pos
	return &out
}

// OrdersSnapshot возвращает копии ордеров пары для аудита
func (ee *ExecutionEngine) OrdersSnapshot(pairID int) []models.Order {
	ee.mu.Lock()
	defer ee.mu.Unlock()

	var out []models.Order
	for _, o := range ee.orders {
		if o.PairID == pairID {
			out = append(out, *o)
		}
	}
	return out
}

func (ee *ExecutionEngine) degradePair(pairID int, detail string) {
	ee.risk.SetDegraded(pairID, true)

	ee.mu.Lock()
	if pos, ok := ee.positions[pairID]; ok {
		pos.State = models.StateDegraded
	}
	ee.mu.Unlock()

	pid := pairID
	ee.notify(models.Notification{
		Timestamp: time.Now().UTC(),
		Type:      models.NotificationTypeDegraded,
		Severity:  models.SeverityError,
		PairID:    &pid,
		Message:   detail,
	})
}
