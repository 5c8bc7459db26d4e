package models

import "time"

// Notification представляет событие для операторского контура
type Notification struct {
	Timestamp time.Time              `json:"timestamp"`
	Type      string                 `json:"type"`
	Severity  string                 `json:"severity"` // info, warn, error
	PairID    *int                   `json:"pair_id,omitempty"`
	Message   string                 `json:"message"`
	Meta      map[string]interface{} `json:"meta,omitempty"`
}

// Типы уведомлений
const (
	NotificationTypeEnter       = "ENTER"         // открытие позиции
	NotificationTypeExit        = "EXIT"          // закрытие позиции
	NotificationTypeStop        = "STOP"          // сработал stop_z
	NotificationTypeRiskReject  = "RISK_REJECT"   // отказ риск-менеджера
	NotificationTypeDegraded    = "DEGRADED"      // пара деградировала после retry
	NotificationTypeNonceDesync = "NONCE_DESYNC"  // рассинхронизация nonce аккаунта
	NotificationTypeHedgeFail   = "HEDGE_FAIL"    // не открылась вторая нога
	NotificationTypeBreaker     = "BREAKER"       // установка/снятие circuit breaker
	NotificationTypeStale       = "STALE_DATA"    // устаревшие данные, входы подавлены
	NotificationTypeDegradedExit = "DEGRADED_EXIT" // выход при недостаточной ликвидности
)

// Уровни важности
const (
	SeverityInfo  = "info"
	SeverityWarn  = "warn"
	SeverityError = "error"
)
