package repository

import (
	"database/sql"
	"errors"

	"pairsbot/internal/models"
)

// Ошибки репозитория позиций
var (
	ErrPositionNotFound = errors.New("position not found")
)

// PositionRepository - открытые позиции в таблице positions.
// Максимум одна строка на пару; закрытие позиции удаляет строку.
// После рестарта открытые строки показывают, где осталась экспозиция.
type PositionRepository struct {
	db *sql.DB
}

// NewPositionRepository создает новый экземпляр репозитория
func NewPositionRepository(db *sql.DB) *PositionRepository {
	return &PositionRepository{db: db}
}

// Upsert сохраняет позицию пары (insert либо обновление существующей)
func (r *PositionRepository) Upsert(p *models.Position) error {
	query := `
		INSERT INTO positions (pair_id, leg_a_qty, leg_b_qty, entry_time, entry_z, entry_price_a, entry_price_b, realized_pnl, unrealized_pnl, state)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (pair_id) DO UPDATE
		SET leg_a_qty = EXCLUDED.leg_a_qty,
		    leg_b_qty = EXCLUDED.leg_b_qty,
		    realized_pnl = EXCLUDED.realized_pnl,
		    unrealized_pnl = EXCLUDED.unrealized_pnl,
		    state = EXCLUDED.state`

	_, err := r.db.Exec(
		query,
		p.PairID,
		p.LegAQty,
		p.LegBQty,
		p.EntryTime,
		p.EntryZ,
		p.EntryPriceA,
		p.EntryPriceB,
		p.RealizedPnl,
		p.UnrealizedPnl,
		p.State,
	)
	return err
}

// GetByPair возвращает позицию пары
func (r *PositionRepository) GetByPair(pairID int) (*models.Position, error) {
	query := `
		SELECT pair_id, leg_a_qty, leg_b_qty, entry_time, entry_z, entry_price_a, entry_price_b, realized_pnl, unrealized_pnl, state
		FROM positions
		WHERE pair_id = $1`

	p := &models.Position{}
	err := r.db.QueryRow(query, pairID).Scan(
		&p.PairID,
		&p.LegAQty,
		&p.LegBQty,
		&p.EntryTime,
		&p.EntryZ,
		&p.EntryPriceA,
		&p.EntryPriceB,
		&p.RealizedPnl,
		&p.UnrealizedPnl,
		&p.State,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPositionNotFound
		}
		return nil, err
	}

	return p, nil
}

// GetOpen возвращает все открытые позиции
func (r *PositionRepository) GetOpen() ([]*models.Position, error) {
	query := `
		SELECT pair_id, leg_a_qty, leg_b_qty, entry_time, entry_z, entry_price_a, entry_price_b, realized_pnl, unrealized_pnl, state
		FROM positions
		WHERE leg_a_qty != 0 OR leg_b_qty != 0
		ORDER BY pair_id`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []*models.Position
	for rows.Next() {
		p := &models.Position{}
		err := rows.Scan(
			&p.PairID,
			&p.LegAQty,
			&p.LegBQty,
			&p.EntryTime,
			&p.EntryZ,
			&p.EntryPriceA,
			&p.EntryPriceB,
			&p.RealizedPnl,
			&p.UnrealizedPnl,
			&p.State,
		)
		if err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return positions, nil
}

// Delete удаляет позицию пары (вызывается при полном закрытии)
func (r *PositionRepository) Delete(pairID int) error {
	result, err := r.db.Exec(`DELETE FROM positions WHERE pair_id = $1`, pairID)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrPositionNotFound
	}

	return nil
}
