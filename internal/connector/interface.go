package connector

import (
	"context"
	"time"

	"pairsbot/internal/models"
	"pairsbot/pkg/utils"
)

// Коннекторы площадок - внешние коллабораторы ядра. Ядро видит только
// эти интерфейсы; конкретные реализации живут вне репозитория
// (кроме paper-коннектора для alert-only режима и тестов).

// Feed поставляет нормализованные тики по парам.
// Каждая пара получает собственный канал: тики пары обрабатываются
// строго в порядке прихода, буферы не шарятся между парами.
type Feed interface {
	// Subscribe возвращает канал тиков пары. Канал закрывается
	// при остановке фида.
	Subscribe(pairID int) (<-chan models.Tick, error)

	// Close останавливает фид и закрывает все каналы подписок
	Close() error
}

// OrderRequest - запрос на размещение ордера одной ноги
type OrderRequest struct {
	PairID     int
	Leg        models.LegID
	Account    string
	Side       string // models.SideBuy / models.SideSell
	Type       string // models.OrderTypeLimit / Market / IOC
	Qty        float64
	LimitPrice float64 // 0 для MARKET
	Nonce      uint64  // зарезервирован до сетевого вызова
}

// Виды асинхронных событий по ордерам
const (
	EventFill   = "fill" // полное или частичное исполнение
	EventCancel = "cancel"
	EventReject = "reject"
)

// OrderEvent - событие потока исполнения, ключ (OrderID, Seq).
// Доставка at-least-once: потребитель обязан дедуплицировать.
type OrderEvent struct {
	OrderID   string
	Seq       int64 // монотонный номер события в рамках ордера
	Kind      string
	FillQty   float64 // накопленное исполненное количество
	FillPrice float64 // средняя цена исполнения
	Reason    string  // для reject
	Timestamp time.Time
}

// Trader - торговый интерфейс коннектора.
// place_order/cancel_order + асинхронный поток fill/cancel/reject.
type Trader interface {
	// PlaceOrder отправляет ордер. Возвращённый order_id - ключ
	// для последующих событий и отмены.
	PlaceOrder(ctx context.Context, req OrderRequest) (orderID string, err error)

	// CancelOrder отменяет ордер. Отмена уже исполненного ордера
	// не является ошибкой: придёт финальное fill-событие.
	CancelOrder(ctx context.Context, venue, orderID string) error

	// Depth возвращает уровни стакана ноги со стороны side,
	// от лучшей цены к худшей. Используется risk-менеджером
	// для проверки ликвидности и оценки проскальзывания.
	Depth(ctx context.Context, leg models.LegID, side string) ([]utils.DepthLevel, error)

	// Events - общий поток событий исполнения по всем ордерам
	Events() <-chan OrderEvent
}
