package models

import "time"

// Состояния пары (state machine Signal Engine)
const (
	StateFlat     = "FLAT"     // позиции нет, мониторинг активен
	StateEntering = "ENTERING" // процесс открытия двух ног
	StateOpen     = "OPEN"     // обе ноги открыты
	StateExiting  = "EXITING"  // процесс закрытия
	StateDegraded = "DEGRADED" // исчерпаны retry, требуется вмешательство
)

// Position - открытая двухногая позиция пары.
// Существует максимум одна открытая позиция на пару (без пирамидинга).
type Position struct {
	PairID    int       `json:"pair_id" db:"pair_id"`
	LegAQty   float64   `json:"leg_a_qty" db:"leg_a_qty"` // знак = направление (+long, -short)
	LegBQty   float64   `json:"leg_b_qty" db:"leg_b_qty"`
	EntryTime time.Time `json:"entry_time" db:"entry_time"`
	EntryZ    float64   `json:"entry_z" db:"entry_z"`

	EntryPriceA float64 `json:"entry_price_a" db:"entry_price_a"`
	EntryPriceB float64 `json:"entry_price_b" db:"entry_price_b"`

	RealizedPnl   float64 `json:"realized_pnl" db:"realized_pnl"`
	UnrealizedPnl float64 `json:"unrealized_pnl" db:"unrealized_pnl"`

	State string `json:"state" db:"state"`
}

// Open возвращает true если хотя бы одна нога не плоская
func (p *Position) Open() bool {
	return p.LegAQty != 0 || p.LegBQty != 0
}

// GrossNotionalUSD возвращает суммарный notional обеих ног по текущим ценам
func (p *Position) GrossNotionalUSD(priceA, priceB float64) float64 {
	return abs(p.LegAQty)*priceA + abs(p.LegBQty)*priceB
}

// UpdateUnrealized пересчитывает нереализованный PNL по текущим ценам
func (p *Position) UpdateUnrealized(priceA, priceB float64) {
	p.UnrealizedPnl = p.LegAQty*(priceA-p.EntryPriceA) + p.LegBQty*(priceB-p.EntryPriceB)
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
