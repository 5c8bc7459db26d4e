package repository

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"pairsbot/internal/models"
)

// ============================================================
// SignalRepository Tests
// ============================================================

func TestSignalRepositoryInsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	s := &models.Signal{
		PairID:    1,
		Timestamp: time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC),
		Kind:      models.SignalEnterShortALongB,
		Z:         2.7,
		Reason:    "threshold",
	}

	mock.ExpectExec(`INSERT INTO signals`).
		WithArgs(s.PairID, s.Timestamp, string(s.Kind), s.Z, s.Reason).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewSignalRepository(db)
	if err := repo.Insert(s); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestSignalRepositoryGetRecent(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	ts := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"pair_id", "ts", "kind", "z", "reason"}).
		AddRow(1, ts, "EXIT", 0.3, "threshold").
		AddRow(1, ts.Add(-time.Minute), "ENTER_SHORT_A_LONG_B", 2.6, "threshold")

	mock.ExpectQuery(`SELECT pair_id, ts, kind, z, reason`).
		WithArgs(1, 50).
		WillReturnRows(rows)

	repo := NewSignalRepository(db)
	signals, err := repo.GetRecent(1, 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(signals) != 2 {
		t.Fatalf("expected 2 signals, got %d", len(signals))
	}
	if signals[0].Kind != models.SignalExit {
		t.Errorf("expected EXIT first, got %s", signals[0].Kind)
	}
	if signals[1].Kind != models.SignalEnterShortALongB {
		t.Errorf("expected ENTER_SHORT_A_LONG_B second, got %s", signals[1].Kind)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestSignalRepositoryGetRecentAllPairs(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	// pairID=0: запрос без фильтра по паре, один аргумент
	rows := sqlmock.NewRows([]string{"pair_id", "ts", "kind", "z", "reason"}).
		AddRow(2, time.Now().UTC(), "HOLD", 1.1, "cooldown")

	mock.ExpectQuery(`SELECT pair_id, ts, kind, z, reason`).
		WithArgs(10).
		WillReturnRows(rows)

	repo := NewSignalRepository(db)
	signals, err := repo.GetRecent(0, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(signals) != 1 || signals[0].PairID != 2 {
		t.Errorf("unexpected result: %+v", signals)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestSignalRepositoryCountByKind(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM signals`).
		WithArgs(1, "EXIT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	repo := NewSignalRepository(db)
	count, err := repo.CountByKind(1, models.SignalExit)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 7 {
		t.Errorf("expected 7, got %d", count)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
