package bot

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// NonceAllocator - единственный владелец nonce-счётчиков аккаунтов.
//
// Nonce резервируется СИНХРОННО до любого сетевого вызова: для одного
// аккаунта выданные значения строго возрастают и не содержат дыр.
// Неудачная отправка обязана либо подтвердить-и-продвинуть (burn),
// либо явно вернуть nonce через Reclaim - молча разойтись с площадкой
// счётчик не может.
//
// Обнаруженный расход с удалённой последовательностью фатален для
// аккаунта: новые резервации блокируются до Reconcile.
type NonceAllocator struct {
	mu       sync.Mutex
	accounts map[string]*accountNonce
	log      *zap.Logger
}

type accountNonce struct {
	next     uint64 // следующий к выдаче
	reserved map[uint64]bool
	halted   bool
}

// NewNonceAllocator создаёт пустой аллокатор
func NewNonceAllocator(log *zap.Logger) *NonceAllocator {
	return &NonceAllocator{
		accounts: make(map[string]*accountNonce),
		log:      log,
	}
}

// InitAccount инициализирует счётчик аккаунта значением удалённой
// последовательности, полученным при старте
func (na *NonceAllocator) InitAccount(account string, startNonce uint64) {
	na.mu.Lock()
	defer na.mu.Unlock()

	na.accounts[account] = &accountNonce{
		next:     startNonce,
		reserved: make(map[uint64]bool),
	}
}

func (na *NonceAllocator) get(account string) *accountNonce {
	an, ok := na.accounts[account]
	if !ok {
		an = &accountNonce{reserved: make(map[uint64]bool)}
		na.accounts[account] = an
	}
	return an
}

// Reserve выдаёт следующий nonce аккаунта.
// Для остановленного аккаунта возвращает ErrNonceDesync.
func (na *NonceAllocator) Reserve(account string) (uint64, error) {
	na.mu.Lock()
	defer na.mu.Unlock()

	an := na.get(account)
	if an.halted {
		return 0, fmt.Errorf("account %s halted: %w", account, ErrNonceDesync)
	}

	n := an.next
	an.next++
	an.reserved[n] = true
	return n, nil
}

// Confirm помечает nonce использованным: площадка приняла отправку
// (или nonce сознательно сожжён через recovery-путь)
func (na *NonceAllocator) Confirm(account string, nonce uint64) {
	na.mu.Lock()
	defer na.mu.Unlock()

	an := na.get(account)
	delete(an.reserved, nonce)
}

// Reclaim возвращает nonce после неудачной отправки, НЕ дошедшей до
// площадки. Вернуть без дыры можно только самый старший выданный
// nonce; иначе значение сжигается (confirm-and-advance), о чём
// сообщает возвращаемый false.
func (na *NonceAllocator) Reclaim(account string, nonce uint64) bool {
	na.mu.Lock()
	defer na.mu.Unlock()

	an := na.get(account)
	if !an.reserved[nonce] {
		return false
	}
	delete(an.reserved, nonce)

	if nonce == an.next-1 {
		an.next--
		return true
	}

	// Между этим nonce и next есть другие выдачи: откат создал бы
	// дыру, значение остаётся сожжённым
	na.log.Warn("nonce burned instead of reclaimed",
		zap.String("account", account),
		zap.Uint64("nonce", nonce))
	return false
}

// ObserveRemote сверяет локальный счётчик с удалённой
// последовательностью. Расхождение останавливает аккаунт:
// все новые резервации получают ErrNonceDesync до Reconcile.
func (na *NonceAllocator) ObserveRemote(account string, remoteNext uint64) error {
	na.mu.Lock()
	defer na.mu.Unlock()

	an := na.get(account)

	// Удалённый next может отставать на число in-flight отправок,
	// но не может обгонять локальный или отставать сильнее
	inFlight := uint64(len(an.reserved))
	if remoteNext > an.next || remoteNext+inFlight < an.next {
		an.halted = true
		NonceDesyncs.WithLabelValues(account).Inc()
		na.log.Error("nonce desync detected",
			zap.String("account", account),
			zap.Uint64("local_next", an.next),
			zap.Uint64("remote_next", remoteNext),
			zap.Uint64("in_flight", inFlight))
		return fmt.Errorf("account %s: local next %d, remote next %d: %w",
			account, an.next, remoteNext, ErrNonceDesync)
	}

	return nil
}

// Halted возвращает true если аккаунт остановлен из-за desync
func (na *NonceAllocator) Halted(account string) bool {
	na.mu.Lock()
	defer na.mu.Unlock()
	return na.get(account).halted
}

// Reconcile сбрасывает счётчик на сверенное удалённое значение и
// снимает остановку. Вызывается оператором после ручной сверки.
func (na *NonceAllocator) Reconcile(account string, remoteNext uint64) {
	na.mu.Lock()
	defer na.mu.Unlock()

	an := na.get(account)
	an.next = remoteNext
	an.reserved = make(map[uint64]bool)
	an.halted = false

	na.log.Info("nonce reconciled",
		zap.String("account", account),
		zap.Uint64("next", remoteNext))
}
