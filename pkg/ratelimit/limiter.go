package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter - Token Bucket rate limiter для контроля частоты запросов к API бирж
//
// Алгоритм Token Bucket:
// - Ведро наполняется токенами с постоянной скоростью (rate токенов/сек)
// - Максимальная ёмкость ведра = burst (позволяет короткие всплески)
// - Каждый запрос потребляет 1 токен
// - Если токенов нет, запрос ждёт или отклоняется
type Limiter struct {
	rate       float64   // токенов в секунду
	burst      float64   // максимальная ёмкость
	tokens     float64   // текущее количество токенов
	lastRefill time.Time // время последнего пополнения
	mu         sync.Mutex
}

// NewLimiter создаёт новый rate limiter
//
//	limiter := ratelimit.NewLimiter(10, 20) // 10 req/sec, burst 20
func NewLimiter(rate, burst float64) *Limiter {
	if rate <= 0 {
		rate = 10
	}
	if burst <= 0 {
		burst = rate * 2
	}
	if burst < rate {
		burst = rate
	}

	return &Limiter{
		rate:       rate,
		burst:      burst,
		tokens:     burst, // начинаем с полным ведром
		lastRefill: time.Now(),
	}
}

// refill пополняет токены на основе прошедшего времени
// ВАЖНО: вызывается под lock'ом
func (l *Limiter) refill() {
	now := time.Now()
	elapsed := now.Sub(l.lastRefill).Seconds()

	l.tokens += elapsed * l.rate
	if l.tokens > l.burst {
		l.tokens = l.burst
	}

	l.lastRefill = now
}

// Wait блокирует до получения токена или отмены контекста
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		l.mu.Lock()
		l.refill()

		if l.tokens >= 1 {
			l.tokens--
			l.mu.Unlock()
			return nil
		}

		waitTime := time.Duration((1 - l.tokens) / l.rate * float64(time.Second))
		l.mu.Unlock()

		select {
		case <-time.After(waitTime):
			continue
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Allow проверяет доступность токена без блокировки
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refill()

	if l.tokens >= 1 {
		l.tokens--
		return true
	}

	return false
}

// Tokens возвращает текущее количество доступных токенов
func (l *Limiter) Tokens() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refill()
	return l.tokens
}

// Rate возвращает скорость пополнения (токенов/сек)
func (l *Limiter) Rate() float64 {
	return l.rate
}

// SetRate изменяет скорость пополнения токенов.
// Потокобезопасно.
func (l *Limiter) SetRate(rate float64) {
	if rate <= 0 {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.refill() // фиксируем текущие токены перед сменой rate
	l.rate = rate
}

// ============================================================
// VenueLimiter - лимиты по ключу "биржа:эндпоинт"
// ============================================================

// VenueLimiter ведёт отдельное ведро на каждую пару биржа:эндпоинт.
// У бирж разные лимиты для ордеров, маркет-даты и аккаунта,
// поэтому один общий limiter на биржу не подходит.
//
// Незарегистрированный ключ пропускается без ограничений.
type VenueLimiter struct {
	limiters map[string]*Limiter
	mu       sync.RWMutex
}

// NewVenueLimiter создаёт пустой VenueLimiter
func NewVenueLimiter() *VenueLimiter {
	return &VenueLimiter{
		limiters: make(map[string]*Limiter),
	}
}

func key(venue, endpoint string) string {
	return venue + ":" + endpoint
}

// Register задаёт лимит для пары биржа:эндпоинт
func (vl *VenueLimiter) Register(venue, endpoint string, rate, burst float64) {
	vl.mu.Lock()
	defer vl.mu.Unlock()
	vl.limiters[key(venue, endpoint)] = NewLimiter(rate, burst)
}

// Wait ожидает токен для указанного эндпоинта биржи
func (vl *VenueLimiter) Wait(ctx context.Context, venue, endpoint string) error {
	vl.mu.RLock()
	limiter, ok := vl.limiters[key(venue, endpoint)]
	vl.mu.RUnlock()

	if !ok {
		return nil // лимит не задан
	}

	return limiter.Wait(ctx)
}

// Allow проверяет доступность токена для эндпоинта биржи
func (vl *VenueLimiter) Allow(venue, endpoint string) bool {
	vl.mu.RLock()
	limiter, ok := vl.limiters[key(venue, endpoint)]
	vl.mu.RUnlock()

	if !ok {
		return true
	}

	return limiter.Allow()
}

// Get возвращает limiter для эндпоинта биржи или nil
func (vl *VenueLimiter) Get(venue, endpoint string) *Limiter {
	vl.mu.RLock()
	defer vl.mu.RUnlock()
	return vl.limiters[key(venue, endpoint)]
}
