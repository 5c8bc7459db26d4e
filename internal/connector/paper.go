package connector

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"pairsbot/internal/models"
	"pairsbot/pkg/utils"
)

// PaperConfig - параметры paper-коннектора
type PaperConfig struct {
	// Интервал генерации тиков
	TickInterval time.Duration
	// Волатильность базовой ноги за тик (доля цены)
	Volatility float64
	// AR(1)-коэффициент симулируемого спреда (0..1, ближе к 1 - медленнее возврат)
	SpreadPhi float64
	// Стандартное отклонение шума спреда (доля цены)
	SpreadNoise float64
	// Симулируемая глубина у лучших цен, USD
	DepthUSD float64
	// Seed генератора; 0 = от текущего времени
	Seed int64
}

// DefaultPaperConfig возвращает параметры по умолчанию
func DefaultPaperConfig() PaperConfig {
	return PaperConfig{
		TickInterval: 500 * time.Millisecond,
		Volatility:   0.0005,
		SpreadPhi:    0.97,
		SpreadNoise:  0.0002,
		DepthUSD:     50000,
	}
}

// PaperConnector - внутрипроцессный коннектор: Feed и Trader без сети.
// Используется в alert-only режиме и как площадка для ручной обкатки:
// базовая нога ходит случайным блужданием, спред между ногами -
// mean-reverting AR(1), так что сигнальный контур периодически
// срабатывает на реалистичных данных.
//
// Ордеры исполняются мгновенно по референсной цене; события идут через
// тот же at-least-once поток, что и у реальных коннекторов.
type PaperConnector struct {
	cfg PaperConfig
	log *zap.Logger

	mu     sync.Mutex
	pairs  map[int]models.PairConfig
	state  map[int]*paperMarket
	subs   map[int]chan models.Tick
	orders map[string]OrderRequest
	nextID int

	events chan OrderEvent
	done   chan struct{}
	wg     sync.WaitGroup
	rng    *rand.Rand
}

type paperMarket struct {
	priceB float64
	spread float64
}

// NewPaperConnector создаёт paper-коннектор для заданных пар.
// Начальная цена базовой ноги - 100 (значение не играет роли,
// сигнальный контур работает на относительных величинах).
func NewPaperConnector(cfg PaperConfig, pairs []models.PairConfig, log *zap.Logger) *PaperConnector {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	p := &PaperConnector{
		cfg:    cfg,
		log:    log,
		pairs:  make(map[int]models.PairConfig, len(pairs)),
		state:  make(map[int]*paperMarket, len(pairs)),
		subs:   make(map[int]chan models.Tick),
		orders: make(map[string]OrderRequest),
		events: make(chan OrderEvent, 256),
		done:   make(chan struct{}),
		rng:    rand.New(rand.NewSource(seed)),
	}
	for _, pair := range pairs {
		p.pairs[pair.ID] = pair
		p.state[pair.ID] = &paperMarket{priceB: 100}
	}
	return p
}

// ============================================================
// Feed
// ============================================================

// Subscribe возвращает канал тиков пары и запускает её генератор
func (p *PaperConnector) Subscribe(pairID int) (<-chan models.Tick, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pair, ok := p.pairs[pairID]
	if !ok {
		return nil, fmt.Errorf("paper: unknown pair %d", pairID)
	}
	if ch, ok := p.subs[pairID]; ok {
		return ch, nil
	}

	ch := make(chan models.Tick, 64)
	p.subs[pairID] = ch

	p.wg.Add(1)
	go p.generate(pair, ch)
	return ch, nil
}

func (p *PaperConnector) generate(pair models.PairConfig, ch chan models.Tick) {
	defer p.wg.Done()
	defer close(ch)

	ticker := time.NewTicker(p.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			tick := p.nextTick(pair)
			select {
			case ch <- tick:
			default:
				// Потребитель не успевает: тик отбрасывается,
				// сигнальному контуру важнее свежесть чем полнота
			}
		}
	}
}

// nextTick продвигает симуляцию пары на один шаг
func (p *PaperConnector) nextTick(pair models.PairConfig) models.Tick {
	p.mu.Lock()
	defer p.mu.Unlock()

	m := p.state[pair.ID]
	m.priceB *= 1 + p.cfg.Volatility*p.rng.NormFloat64()
	m.spread = p.cfg.SpreadPhi*m.spread + p.cfg.SpreadNoise*m.priceB*p.rng.NormFloat64()

	priceA := m.priceB*pair.QuoteNorm + m.spread

	return models.Tick{
		PairID:     pair.ID,
		Timestamp:  time.Now().UTC(),
		PriceA:     priceA,
		PriceB:     m.priceB,
		LiquidityA: p.cfg.DepthUSD,
		LiquidityB: p.cfg.DepthUSD,
		FundingA:   0.0001,
		FundingB:   0.00005,
	}
}

// Close останавливает генераторы и закрывает каналы подписок
func (p *PaperConnector) Close() error {
	select {
	case <-p.done:
		return nil
	default:
		close(p.done)
	}
	p.wg.Wait()
	return nil
}

// ============================================================
// Trader
// ============================================================

// PlaceOrder мгновенно исполняет ордер по референсной цене.
// LIMIT/IOC исполняются по лимитной цене, MARKET - по текущему mid ноги.
func (p *PaperConnector) PlaceOrder(_ context.Context, req OrderRequest) (string, error) {
	p.mu.Lock()
	p.nextID++
	orderID := fmt.Sprintf("paper-%d", p.nextID)
	p.orders[orderID] = req

	price := req.LimitPrice
	if price <= 0 {
		price = p.midLocked(req)
	}
	p.mu.Unlock()

	p.log.Debug("paper order filled",
		zap.String("order_id", orderID),
		zap.String("venue", req.Leg.Venue),
		zap.String("side", req.Side),
		zap.Float64("qty", req.Qty),
		zap.Float64("price", price))

	p.events <- OrderEvent{
		OrderID:   orderID,
		Seq:       1,
		Kind:      EventFill,
		FillQty:   req.Qty,
		FillPrice: price,
		Timestamp: time.Now().UTC(),
	}
	return orderID, nil
}

// midLocked возвращает текущий mid ноги запроса (под p.mu)
func (p *PaperConnector) midLocked(req OrderRequest) float64 {
	m, ok := p.state[req.PairID]
	if !ok {
		return 100
	}
	pair := p.pairs[req.PairID]
	if req.Leg == pair.LegA {
		return m.priceB*pair.QuoteNorm + m.spread
	}
	return m.priceB
}

// CancelOrder подтверждает отмену событием cancel
func (p *PaperConnector) CancelOrder(_ context.Context, _, orderID string) error {
	p.mu.Lock()
	_, ok := p.orders[orderID]
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("paper: unknown order %s", orderID)
	}

	p.events <- OrderEvent{
		OrderID:   orderID,
		Seq:       2,
		Kind:      EventCancel,
		Timestamp: time.Now().UTC(),
	}
	return nil
}

// Depth возвращает синтетический стакан: три уровня вокруг mid
func (p *PaperConnector) Depth(_ context.Context, leg models.LegID, side string) ([]utils.DepthLevel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	mid := 100.0
	for id, pair := range p.pairs {
		if leg == pair.LegA || leg == pair.LegB {
			req := OrderRequest{PairID: id, Leg: leg}
			mid = p.midLocked(req)
			break
		}
	}

	step := mid * 0.0001
	if side == models.SideSell {
		step = -step
	}
	volPerLevel := p.cfg.DepthUSD / mid / 3

	return []utils.DepthLevel{
		{Price: mid + step, Volume: volPerLevel},
		{Price: mid + 2*step, Volume: volPerLevel},
		{Price: mid + 3*step, Volume: volPerLevel},
	}, nil
}

// Events - поток событий исполнения
func (p *PaperConnector) Events() <-chan OrderEvent {
	return p.events
}
