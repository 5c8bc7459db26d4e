package repository

import (
	"database/sql"

	"pairsbot/internal/models"
)

// SignalRepository - audit trail сигналов в таблице signals.
// Каждое небэкграундное решение Signal Engine попадает сюда,
// включая отказы риск-менеджера (kind=HOLD, reason=risk-reject:<check>).
type SignalRepository struct {
	db *sql.DB
}

// NewSignalRepository создает новый экземпляр репозитория
func NewSignalRepository(db *sql.DB) *SignalRepository {
	return &SignalRepository{db: db}
}

// Insert сохраняет сигнал
func (r *SignalRepository) Insert(s *models.Signal) error {
	query := `
		INSERT INTO signals (pair_id, ts, kind, z, reason)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := r.db.Exec(query, s.PairID, s.Timestamp, string(s.Kind), s.Z, s.Reason)
	return err
}

// GetRecent возвращает последние limit сигналов пары, новейшие первыми.
// pairID = 0 - по всем парам.
func (r *SignalRepository) GetRecent(pairID, limit int) ([]*models.Signal, error) {
	var (
		rows *sql.Rows
		err  error
	)

	if pairID > 0 {
		rows, err = r.db.Query(`
			SELECT pair_id, ts, kind, z, reason
			FROM signals
			WHERE pair_id = $1
			ORDER BY ts DESC
			LIMIT $2`, pairID, limit)
	} else {
		rows, err = r.db.Query(`
			SELECT pair_id, ts, kind, z, reason
			FROM signals
			ORDER BY ts DESC
			LIMIT $1`, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var signals []*models.Signal
	for rows.Next() {
		s := &models.Signal{}
		var kind string
		if err := rows.Scan(&s.PairID, &s.Timestamp, &kind, &s.Z, &s.Reason); err != nil {
			return nil, err
		}
		s.Kind = models.SignalKind(kind)
		signals = append(signals, s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return signals, nil
}

// CountByKind возвращает число сигналов пары данного вида
func (r *SignalRepository) CountByKind(pairID int, kind models.SignalKind) (int, error) {
	var count int
	err := r.db.QueryRow(`
		SELECT COUNT(*) FROM signals WHERE pair_id = $1 AND kind = $2`,
		pairID, string(kind)).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}
