package repository

import (
	"database/sql"
	"errors"

	"pairsbot/internal/models"
)

// Ошибки репозитория ордеров
var (
	ErrOrderNotFound = errors.New("order not found")
)

// OrderRepository - журнал ордеров в таблице orders.
// Записывается Execution Engine'ом при отправке и на финальных
// событиях: журнал переживает рестарты и служит для сверки nonce.
type OrderRepository struct {
	db *sql.DB
}

// NewOrderRepository создает новый экземпляр репозитория
func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Insert сохраняет отправленный ордер
func (r *OrderRepository) Insert(o *models.Order) error {
	query := `
		INSERT INTO orders (order_id, pair_id, leg, side, type, qty, limit_price, status, nonce, filled_qty, avg_fill_price, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := r.db.Exec(
		query,
		o.OrderID,
		o.PairID,
		o.Leg,
		o.Side,
		o.Type,
		o.Qty,
		o.LimitPrice,
		o.Status,
		o.Nonce,
		o.FilledQty,
		o.AvgFillPrice,
		o.CreatedAt,
	)
	return err
}

// UpdateFill обновляет исполнение и статус ордера
func (r *OrderRepository) UpdateFill(o *models.Order) error {
	query := `
		UPDATE orders
		SET status = $1, filled_qty = $2, avg_fill_price = $3, filled_at = $4
		WHERE order_id = $5`

	result, err := r.db.Exec(query, o.Status, o.FilledQty, o.AvgFillPrice, o.FilledAt, o.OrderID)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrOrderNotFound
	}

	return nil
}

// GetByID возвращает ордер по order_id площадки
func (r *OrderRepository) GetByID(orderID string) (*models.Order, error) {
	query := `
		SELECT order_id, pair_id, leg, side, type, qty, limit_price, status, nonce, filled_qty, avg_fill_price, created_at, filled_at
		FROM orders
		WHERE order_id = $1`

	o := &models.Order{}
	err := r.db.QueryRow(query, orderID).Scan(
		&o.OrderID,
		&o.PairID,
		&o.Leg,
		&o.Side,
		&o.Type,
		&o.Qty,
		&o.LimitPrice,
		&o.Status,
		&o.Nonce,
		&o.FilledQty,
		&o.AvgFillPrice,
		&o.CreatedAt,
		&o.FilledAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}

	return o, nil
}

// GetByPair возвращает последние limit ордеров пары, новейшие первыми
func (r *OrderRepository) GetByPair(pairID, limit int) ([]*models.Order, error) {
	query := `
		SELECT order_id, pair_id, leg, side, type, qty, limit_price, status, nonce, filled_qty, avg_fill_price, created_at, filled_at
		FROM orders
		WHERE pair_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := r.db.Query(query, pairID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		o := &models.Order{}
		err := rows.Scan(
			&o.OrderID,
			&o.PairID,
			&o.Leg,
			&o.Side,
			&o.Type,
			&o.Qty,
			&o.LimitPrice,
			&o.Status,
			&o.Nonce,
			&o.FilledQty,
			&o.AvgFillPrice,
			&o.CreatedAt,
			&o.FilledAt,
		)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return orders, nil
}

// MaxNonce возвращает наибольший записанный nonce аккаунта.
// Используется при старте для инициализации NonceAllocator:
// orders хранит nonce каждой отправки, поэтому next = max + 1.
func (r *OrderRepository) MaxNonce(account string) (uint64, bool, error) {
	query := `
		SELECT MAX(o.nonce)
		FROM orders o
		JOIN pairs p ON p.id = o.pair_id
		WHERE p.account = $1`

	var max sql.NullInt64
	if err := r.db.QueryRow(query, account).Scan(&max); err != nil {
		return 0, false, err
	}
	if !max.Valid {
		return 0, false, nil
	}
	return uint64(max.Int64), true, nil
}
