package repository

import (
	"database/sql"
	"time"

	"pairsbot/internal/models"
)

// SpreadRepository - история спредов в таблице spreads.
// Пишется батчами из публикующего контура; читается панелью
// (/api/v1/spreads) и для пост-анализа сигналов.
type SpreadRepository struct {
	db *sql.DB
}

// NewSpreadRepository создает новый экземпляр репозитория
func NewSpreadRepository(db *sql.DB) *SpreadRepository {
	return &SpreadRepository{db: db}
}

// Insert сохраняет одну точку спреда
func (r *SpreadRepository) Insert(s *models.SpreadSample) error {
	query := `
		INSERT INTO spreads (pair_id, ts, price_a, price_b, spread, mean, std, z, ema, low_confidence, stale, half_life_secs, time_to_exit_secs, net_funding_usd)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err := r.db.Exec(
		query,
		s.PairID,
		s.Timestamp,
		s.PriceA,
		s.PriceB,
		s.Spread,
		s.Mean,
		s.Std,
		s.Z,
		s.EMA,
		s.LowConfidence,
		s.Stale,
		s.HalfLifeSecs,
		s.TimeToExitSecs,
		s.NetFundingUSD,
	)
	return err
}

// InsertBatch сохраняет пачку точек одной транзакцией
func (r *SpreadRepository) InsertBatch(samples []models.SpreadSample) error {
	if len(samples) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT INTO spreads (pair_id, ts, price_a, price_b, spread, mean, std, z, ema, low_confidence, stale, half_life_secs, time_to_exit_secs, net_funding_usd)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := range samples {
		s := &samples[i]
		_, err := stmt.Exec(
			s.PairID, s.Timestamp, s.PriceA, s.PriceB, s.Spread,
			s.Mean, s.Std, s.Z, s.EMA, s.LowConfidence, s.Stale,
			s.HalfLifeSecs, s.TimeToExitSecs, s.NetFundingUSD,
		)
		if err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// GetRecent возвращает последние limit точек пары, новейшие первыми
func (r *SpreadRepository) GetRecent(pairID, limit int) ([]*models.SpreadSample, error) {
	query := `
		SELECT pair_id, ts, price_a, price_b, spread, mean, std, z, ema, low_confidence, stale, half_life_secs, time_to_exit_secs, net_funding_usd
		FROM spreads
		WHERE pair_id = $1
		ORDER BY ts DESC
		LIMIT $2`

	rows, err := r.db.Query(query, pairID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSpreads(rows)
}

// GetRange возвращает точки пары в интервале [from, to)
func (r *SpreadRepository) GetRange(pairID int, from, to time.Time) ([]*models.SpreadSample, error) {
	query := `
		SELECT pair_id, ts, price_a, price_b, spread, mean, std, z, ema, low_confidence, stale, half_life_secs, time_to_exit_secs, net_funding_usd
		FROM spreads
		WHERE pair_id = $1 AND ts >= $2 AND ts < $3
		ORDER BY ts`

	rows, err := r.db.Query(query, pairID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSpreads(rows)
}

// DeleteOlderThan удаляет точки старше cutoff, возвращает число удалённых
func (r *SpreadRepository) DeleteOlderThan(cutoff time.Time) (int64, error) {
	result, err := r.db.Exec(`DELETE FROM spreads WHERE ts < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func scanSpreads(rows *sql.Rows) ([]*models.SpreadSample, error) {
	var samples []*models.SpreadSample
	for rows.Next() {
		s := &models.SpreadSample{}
		err := rows.Scan(
			&s.PairID,
			&s.Timestamp,
			&s.PriceA,
			&s.PriceB,
			&s.Spread,
			&s.Mean,
			&s.Std,
			&s.Z,
			&s.EMA,
			&s.LowConfidence,
			&s.Stale,
			&s.HalfLifeSecs,
			&s.TimeToExitSecs,
			&s.NetFundingUSD,
		)
		if err != nil {
			return nil, err
		}
		samples = append(samples, s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return samples, nil
}
