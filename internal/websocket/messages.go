package websocket

import (
	"time"

	"pairsbot/internal/models"
)

// MessageType определяет тип WebSocket сообщения
type MessageType string

// Типы сообщений потока /ws/stream
const (
	// MessageTypeSpreadUpdate - очередная точка спреда с rolling-статистикой
	MessageTypeSpreadUpdate MessageType = "spreadUpdate"

	// MessageTypeSignalUpdate - решение Signal Engine (ENTER/EXIT/значимый HOLD)
	MessageTypeSignalUpdate MessageType = "signalUpdate"

	// MessageTypePositionUpdate - изменение позиции пары
	MessageTypePositionUpdate MessageType = "positionUpdate"

	// MessageTypeNotification - операторское уведомление
	MessageTypeNotification MessageType = "notification"

	// MessageTypeBreakerUpdate - установка/снятие circuit breaker
	MessageTypeBreakerUpdate MessageType = "breakerUpdate"
)

// BaseMessage - общая шапка всех сообщений потока
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
}

// SpreadUpdateMessage - точка спреда пары
type SpreadUpdateMessage struct {
	BaseMessage
	PairID int                  `json:"pair_id"`
	Data   *models.SpreadSample `json:"data"`
}

// SignalUpdateMessage - сигнал пары
type SignalUpdateMessage struct {
	BaseMessage
	PairID int            `json:"pair_id"`
	Data   *models.Signal `json:"data"`
}

// PositionUpdateMessage - позиция пары (nil Data = пара плоская)
type PositionUpdateMessage struct {
	BaseMessage
	PairID int              `json:"pair_id"`
	Data   *models.Position `json:"data"`
}

// NotificationMessage - операторское уведомление
type NotificationMessage struct {
	BaseMessage
	Data *models.Notification `json:"data"`
}

// BreakerUpdateMessage - состояние circuit breaker
type BreakerUpdateMessage struct {
	BaseMessage
	Active bool   `json:"active"`
	Reason string `json:"reason,omitempty"`
}

// ============ Фабричные функции ============

// NewSpreadUpdateMessage создает сообщение точки спреда
func NewSpreadUpdateMessage(sample *models.SpreadSample) *SpreadUpdateMessage {
	return &SpreadUpdateMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeSpreadUpdate,
			Timestamp: time.Now().UTC(),
		},
		PairID: sample.PairID,
		Data:   sample,
	}
}

// NewSignalUpdateMessage создает сообщение сигнала
func NewSignalUpdateMessage(sig *models.Signal) *SignalUpdateMessage {
	return &SignalUpdateMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeSignalUpdate,
			Timestamp: time.Now().UTC(),
		},
		PairID: sig.PairID,
		Data:   sig,
	}
}

// NewPositionUpdateMessage создает сообщение позиции
func NewPositionUpdateMessage(pairID int, pos *models.Position) *PositionUpdateMessage {
	return &PositionUpdateMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypePositionUpdate,
			Timestamp: time.Now().UTC(),
		},
		PairID: pairID,
		Data:   pos,
	}
}

// NewNotificationMessage создает сообщение уведомления
func NewNotificationMessage(notif *models.Notification) *NotificationMessage {
	return &NotificationMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeNotification,
			Timestamp: time.Now().UTC(),
		},
		Data: notif,
	}
}

// NewBreakerUpdateMessage создает сообщение состояния breaker'а
func NewBreakerUpdateMessage(active bool, reason string) *BreakerUpdateMessage {
	return &BreakerUpdateMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeBreakerUpdate,
			Timestamp: time.Now().UTC(),
		},
		Active: active,
		Reason: reason,
	}
}
