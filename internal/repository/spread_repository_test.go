package repository

import (
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"pairsbot/internal/models"
)

// ============================================================
// SpreadRepository Tests
// ============================================================

func sampleSpread() *models.SpreadSample {
	return &models.SpreadSample{
		PairID:    1,
		Timestamp: time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC),
		PriceA:    101.2,
		PriceB:    100.9,
		Spread:    0.3,
		Mean:      0.1,
		Std:       0.08,
		Z:         2.5,
		EMA:       0.15,
	}
}

func TestSpreadRepositoryInsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	s := sampleSpread()
	mock.ExpectExec(`INSERT INTO spreads`).
		WithArgs(s.PairID, s.Timestamp, s.PriceA, s.PriceB, s.Spread,
			s.Mean, s.Std, s.Z, s.EMA, false, false,
			float64(0), float64(0), float64(0)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewSpreadRepository(db)
	if err := repo.Insert(s); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestSpreadRepositoryInsertBatch(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	samples := []models.SpreadSample{*sampleSpread(), *sampleSpread()}
	samples[1].Timestamp = samples[0].Timestamp.Add(time.Second)

	mock.ExpectBegin()
	mock.ExpectPrepare(`INSERT INTO spreads`)
	for range samples {
		mock.ExpectExec(`INSERT INTO spreads`).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectCommit()

	repo := NewSpreadRepository(db)
	if err := repo.InsertBatch(samples); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestSpreadRepositoryInsertBatchEmpty(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	repo := NewSpreadRepository(db)
	if err := repo.InsertBatch(nil); err != nil {
		t.Errorf("empty batch must be no-op, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unexpected calls: %v", err)
	}
}

func TestSpreadRepositoryInsertBatchRollback(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectPrepare(`INSERT INTO spreads`)
	mock.ExpectExec(`INSERT INTO spreads`).
		WillReturnError(errors.New("constraint violation"))
	mock.ExpectRollback()

	repo := NewSpreadRepository(db)
	if err := repo.InsertBatch([]models.SpreadSample{*sampleSpread()}); err == nil {
		t.Error("expected error from failed insert")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestSpreadRepositoryGetRecent(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	ts := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"pair_id", "ts", "price_a", "price_b", "spread", "mean", "std", "z", "ema",
		"low_confidence", "stale", "half_life_secs", "time_to_exit_secs", "net_funding_usd",
	}).
		AddRow(1, ts.Add(2*time.Second), 101.0, 100.8, 0.2, 0.1, 0.05, 2.0, 0.12, false, false, 120.0, 240.0, 1.5).
		AddRow(1, ts, 100.9, 100.8, 0.1, 0.1, 0.05, 0.0, 0.1, true, false, 0.0, 0.0, 0.0)

	mock.ExpectQuery(`SELECT (.+) FROM spreads`).
		WithArgs(1, 100).
		WillReturnRows(rows)

	repo := NewSpreadRepository(db)
	samples, err := repo.GetRecent(1, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(samples) != 2 {
		t.Fatalf("got %d samples, want 2", len(samples))
	}
	if samples[0].Z != 2.0 {
		t.Errorf("z = %f, want 2.0", samples[0].Z)
	}
	if !samples[1].LowConfidence {
		t.Error("second sample must be low confidence")
	}
}

func TestSpreadRepositoryDeleteOlderThan(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	cutoff := time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(`DELETE FROM spreads`).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 42))

	repo := NewSpreadRepository(db)
	deleted, err := repo.DeleteOlderThan(cutoff)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if deleted != 42 {
		t.Errorf("deleted = %d, want 42", deleted)
	}
}
