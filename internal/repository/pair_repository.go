package repository

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"pairsbot/internal/models"
)

// Ошибки репозитория пар
var (
	ErrPairNotFound = errors.New("pair not found")
	ErrPairExists   = errors.New("pair already exists")
)

// PairRepository - работа с таблицей pairs (конфигурация торгуемых пар)
type PairRepository struct {
	db *sql.DB
}

// NewPairRepository создает новый экземпляр репозитория
func NewPairRepository(db *sql.DB) *PairRepository {
	return &PairRepository{db: db}
}

// Create создает новую пару
func (r *PairRepository) Create(pair *models.PairConfig) error {
	query := `
		INSERT INTO pairs (name, venue_a, symbol_a, venue_b, symbol_b, quote_norm, volume_base, account, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`

	pair.CreatedAt = time.Now()
	if pair.QuoteNorm == 0 {
		pair.QuoteNorm = 1.0
	}

	err := r.db.QueryRow(
		query,
		pair.Name,
		pair.LegA.Venue,
		pair.LegA.Symbol,
		pair.LegB.Venue,
		pair.LegB.Symbol,
		pair.QuoteNorm,
		pair.VolumeBase,
		pair.Account,
		pair.CreatedAt,
	).Scan(&pair.ID)

	if err != nil {
		if isUniqueViolation(err) {
			return ErrPairExists
		}
		return err
	}

	return nil
}

// GetByID возвращает пару по ID
func (r *PairRepository) GetByID(id int) (*models.PairConfig, error) {
	query := `
		SELECT id, name, venue_a, symbol_a, venue_b, symbol_b, quote_norm, volume_base, account, created_at
		FROM pairs
		WHERE id = $1`

	pair := &models.PairConfig{}
	err := r.db.QueryRow(query, id).Scan(
		&pair.ID,
		&pair.Name,
		&pair.LegA.Venue,
		&pair.LegA.Symbol,
		&pair.LegB.Venue,
		&pair.LegB.Symbol,
		&pair.QuoteNorm,
		&pair.VolumeBase,
		&pair.Account,
		&pair.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPairNotFound
		}
		return nil, err
	}

	return pair, nil
}

// GetAll возвращает все сконфигурированные пары
func (r *PairRepository) GetAll() ([]*models.PairConfig, error) {
	query := `
		SELECT id, name, venue_a, symbol_a, venue_b, symbol_b, quote_norm, volume_base, account, created_at
		FROM pairs
		ORDER BY id`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pairs []*models.PairConfig
	for rows.Next() {
		pair := &models.PairConfig{}
		err := rows.Scan(
			&pair.ID,
			&pair.Name,
			&pair.LegA.Venue,
			&pair.LegA.Symbol,
			&pair.LegB.Venue,
			&pair.LegB.Symbol,
			&pair.QuoteNorm,
			&pair.VolumeBase,
			&pair.Account,
			&pair.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, pair)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return pairs, nil
}

// Delete удаляет пару
func (r *PairRepository) Delete(id int) error {
	result, err := r.db.Exec(`DELETE FROM pairs WHERE id = $1`, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrPairNotFound
	}

	return nil
}

// isUniqueViolation проверяет, является ли ошибка нарушением UNIQUE constraint
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "duplicate key") || strings.Contains(errStr, "23505")
}
