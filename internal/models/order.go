package models

import "time"

// Типы ордеров
const (
	OrderTypeLimit  = "LIMIT"
	OrderTypeMarket = "MARKET"
	OrderTypeIOC    = "IOC" // immediate-or-cancel, эскалация после таймаута LIMIT
)

// Стороны ордера
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Статусы ордера
const (
	OrderStatusNew       = "new"       // зарезервирован nonce, ещё не подтверждён площадкой
	OrderStatusSubmitted = "submitted" // принят площадкой
	OrderStatusPartial   = "partial"
	OrderStatusFilled    = "filled"
	OrderStatusCancelled = "cancelled"
	OrderStatusRejected  = "rejected"
)

// Order - ордер одной ноги. Владеет им исключительно Execution Engine;
// nonce строго возрастает per-account и никогда не переиспользуется.
type Order struct {
	OrderID   string  `json:"order_id" db:"order_id"`
	PairID    int     `json:"pair_id" db:"pair_id"`
	Leg       string  `json:"leg" db:"leg"` // A или B
	Side      string  `json:"side" db:"side"`
	Type      string  `json:"type" db:"type"`
	Qty       float64 `json:"qty" db:"qty"`
	LimitPrice float64 `json:"limit_price,omitempty" db:"limit_price"` // 0 для MARKET
	Status    string  `json:"status" db:"status"`
	Nonce     uint64  `json:"nonce" db:"nonce"`

	FilledQty    float64 `json:"filled_qty" db:"filled_qty"`
	AvgFillPrice float64 `json:"avg_fill_price" db:"avg_fill_price"`

	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	FilledAt  *time.Time `json:"filled_at,omitempty" db:"filled_at"`
}

// Terminal возвращает true для финальных статусов
func (o *Order) Terminal() bool {
	switch o.Status {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected:
		return true
	}
	return false
}
