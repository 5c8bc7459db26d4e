package bot

import "errors"

// Ошибки ядра. Классификация по способу восстановления:
// staleness и таймауты - локально, retry с backoff - до лимита,
// nonce desync - фатально для аккаунта до ручной сверки.
var (
	// ErrDataStale - тик старше порога; входы подавлены, выходы разрешены
	ErrDataStale = errors.New("market data stale")

	// ErrRiskRejected - отказ риск-менеджера; ожидаемое событие, не сбой
	ErrRiskRejected = errors.New("risk check rejected")

	// ErrOrderTimeout - LIMIT не исполнился за отведённое время
	ErrOrderTimeout = errors.New("order fill timeout")

	// ErrSubmissionFailed - сетевая/транзиентная ошибка отправки
	ErrSubmissionFailed = errors.New("order submission failed")

	// ErrNonceDesync - локальный счётчик разошёлся с площадкой.
	// Новые отправки аккаунта останавливаются до реконсиляции.
	ErrNonceDesync = errors.New("nonce desynchronized with remote sequence")

	// ErrPairDegraded - пара в DEGRADED, новые входы заблокированы
	ErrPairDegraded = errors.New("pair degraded")

	// ErrEntryAborted - вход прерван до открытия второй ноги
	ErrEntryAborted = errors.New("entry aborted")

	// ErrUnknownPair - пара не сконфигурирована
	ErrUnknownPair = errors.New("unknown pair")
)
