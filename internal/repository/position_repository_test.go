package repository

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"pairsbot/internal/models"
)

// ============================================================
// PositionRepository Tests
// ============================================================

func samplePosition() *models.Position {
	return &models.Position{
		PairID:      1,
		LegAQty:     -0.1,
		LegBQty:     0.1,
		EntryTime:   time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC),
		EntryZ:      2.6,
		EntryPriceA: 101.2,
		EntryPriceB: 100.9,
		State:       models.StateOpen,
	}
}

func TestPositionRepositoryUpsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	p := samplePosition()
	mock.ExpectExec(`INSERT INTO positions`).
		WithArgs(p.PairID, p.LegAQty, p.LegBQty, p.EntryTime, p.EntryZ,
			p.EntryPriceA, p.EntryPriceB, p.RealizedPnl, p.UnrealizedPnl, p.State).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewPositionRepository(db)
	if err := repo.Upsert(p); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPositionRepositoryGetByPair(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	p := samplePosition()
	rows := sqlmock.NewRows([]string{
		"pair_id", "leg_a_qty", "leg_b_qty", "entry_time", "entry_z",
		"entry_price_a", "entry_price_b", "realized_pnl", "unrealized_pnl", "state",
	}).AddRow(p.PairID, p.LegAQty, p.LegBQty, p.EntryTime, p.EntryZ,
		p.EntryPriceA, p.EntryPriceB, p.RealizedPnl, p.UnrealizedPnl, p.State)

	mock.ExpectQuery(`SELECT .+ FROM positions`).
		WithArgs(1).
		WillReturnRows(rows)

	repo := NewPositionRepository(db)
	got, err := repo.GetByPair(1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got.LegAQty != p.LegAQty || got.LegBQty != p.LegBQty {
		t.Errorf("leg quantities mismatch: %+v", got)
	}
	if !got.Open() {
		t.Error("expected position to be open")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPositionRepositoryGetByPairNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`SELECT .+ FROM positions`).
		WithArgs(42).
		WillReturnError(sql.ErrNoRows)

	repo := NewPositionRepository(db)
	if _, err := repo.GetByPair(42); !errors.Is(err, ErrPositionNotFound) {
		t.Errorf("expected ErrPositionNotFound, got %v", err)
	}
}

func TestPositionRepositoryGetOpen(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	p := samplePosition()
	rows := sqlmock.NewRows([]string{
		"pair_id", "leg_a_qty", "leg_b_qty", "entry_time", "entry_z",
		"entry_price_a", "entry_price_b", "realized_pnl", "unrealized_pnl", "state",
	}).
		AddRow(1, p.LegAQty, p.LegBQty, p.EntryTime, p.EntryZ,
			p.EntryPriceA, p.EntryPriceB, 0.0, 0.0, p.State).
		AddRow(3, 0.2, -0.2, p.EntryTime, -2.1,
			50.0, 49.8, 0.0, 0.0, p.State)

	mock.ExpectQuery(`SELECT .+ FROM positions`).
		WillReturnRows(rows)

	repo := NewPositionRepository(db)
	positions, err := repo.GetOpen()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(positions) != 2 {
		t.Fatalf("expected 2 positions, got %d", len(positions))
	}
	if positions[0].PairID != 1 || positions[1].PairID != 3 {
		t.Errorf("unexpected pair ids: %d, %d", positions[0].PairID, positions[1].PairID)
	}
}

func TestPositionRepositoryDelete(t *testing.T) {
	tests := []struct {
		name         string
		rowsAffected int64
		wantErr      error
	}{
		{name: "deleted", rowsAffected: 1, wantErr: nil},
		{name: "not found", rowsAffected: 0, wantErr: ErrPositionNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			if err != nil {
				t.Fatalf("failed to create mock: %v", err)
			}
			defer db.Close()

			mock.ExpectExec(`DELETE FROM positions`).
				WithArgs(1).
				WillReturnResult(sqlmock.NewResult(0, tt.rowsAffected))

			repo := NewPositionRepository(db)
			err = repo.Delete(1)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}
