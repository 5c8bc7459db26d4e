package bot

import (
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"pairsbot/internal/models"
	"pairsbot/pkg/utils"
)

func goodTick() models.Tick {
	return models.Tick{
		PairID:     1,
		Timestamp:  time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC),
		PriceA:     100,
		PriceB:     100,
		LiquidityA: 50000,
		LiquidityB: 50000,
	}
}

func deepBook(price float64) []utils.DepthLevel {
	return []utils.DepthLevel{{Price: price, Volume: 1000}}
}

func goodDepth() EntryDepth {
	return EntryDepth{LegA: deepBook(100), LegB: deepBook(100)}
}

func enterSig() models.Signal {
	return models.Signal{
		PairID:    1,
		Timestamp: time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC),
		Kind:      models.SignalEnterShortALongB,
		Z:         2.5,
		Reason:    models.ReasonThreshold,
	}
}

func rejectedCheck(t *testing.T, err error) string {
	t.Helper()
	if err == nil {
		t.Fatal("expected rejection, got nil")
	}
	if !errors.Is(err, ErrRiskRejected) {
		t.Fatalf("error %v does not wrap ErrRiskRejected", err)
	}
	var rej *Rejection
	if !errors.As(err, &rej) {
		t.Fatalf("error %v is not a *Rejection", err)
	}
	return rej.Check
}

func TestRiskManager_ValidatesInOrder(t *testing.T) {
	log := zap.NewNop()

	t.Run("clean entry passes", func(t *testing.T) {
		rm := NewRiskManager(testTradingConfig(), log)
		if err := rm.ValidateEntry(enterSig(), testPair(), goodTick(), goodDepth()); err != nil {
			t.Errorf("unexpected rejection: %v", err)
		}
	})

	t.Run("breaker first", func(t *testing.T) {
		rm := NewRiskManager(testTradingConfig(), log)
		rm.SetBreaker(true, "volatility anomaly")
		// Всё остальное тоже плохое - но причина именно breaker
		tick := goodTick()
		tick.LiquidityA = 0
		if check := rejectedCheck(t, rm.ValidateEntry(enterSig(), testPair(), tick, EntryDepth{})); check != CheckBreaker {
			t.Errorf("check = %s, want breaker", check)
		}
	})

	t.Run("notional", func(t *testing.T) {
		cfg := testTradingConfig()
		cfg.MaxGrossNotionalUSD = 10 // 0.1 * (100+100) = 20 > 10
		rm := NewRiskManager(cfg, log)
		if check := rejectedCheck(t, rm.ValidateEntry(enterSig(), testPair(), goodTick(), goodDepth())); check != CheckNotional {
			t.Errorf("check = %s, want notional", check)
		}
	})

	t.Run("legs", func(t *testing.T) {
		cfg := testTradingConfig()
		cfg.MaxLegs = 2
		rm := NewRiskManager(cfg, log)
		rm.RecordEntry(99, 100, time.Now().UTC()) // уже 2 ноги чужой пары
		if check := rejectedCheck(t, rm.ValidateEntry(enterSig(), testPair(), goodTick(), goodDepth())); check != CheckLegs {
			t.Errorf("check = %s, want legs", check)
		}
	})

	t.Run("liquidity", func(t *testing.T) {
		rm := NewRiskManager(testTradingConfig(), log)
		tick := goodTick()
		tick.LiquidityB = 500 // < MinLiquidityUSD
		if check := rejectedCheck(t, rm.ValidateEntry(enterSig(), testPair(), tick, goodDepth())); check != CheckLiquidity {
			t.Errorf("check = %s, want liquidity", check)
		}
	})

	t.Run("slippage", func(t *testing.T) {
		rm := NewRiskManager(testTradingConfig(), log) // MaxSlippageBps = 20
		// Тонкий стакан: объём входа 0.1, на лучшем уровне лишь 0.01
		thin := []utils.DepthLevel{
			{Price: 100.0, Volume: 0.01},
			{Price: 101.0, Volume: 10},
		}
		depth := EntryDepth{LegA: thin, LegB: deepBook(100)}
		if check := rejectedCheck(t, rm.ValidateEntry(enterSig(), testPair(), goodTick(), depth)); check != CheckSlippage {
			t.Errorf("check = %s, want slippage", check)
		}
	})

	t.Run("degraded pair rejected", func(t *testing.T) {
		rm := NewRiskManager(testTradingConfig(), log)
		rm.SetDegraded(1, true)
		if check := rejectedCheck(t, rm.ValidateEntry(enterSig(), testPair(), goodTick(), goodDepth())); check != CheckBreaker {
			t.Errorf("check = %s, want breaker (degraded)", check)
		}
	})
}

func TestRiskManager_RejectionIdempotent(t *testing.T) {
	// Одинаковые отклонённые сигналы не мутируют RiskState
	rm := NewRiskManager(testTradingConfig(), zap.NewNop())
	rm.SetBreaker(true, "test")

	before := rm.Snapshot()
	for i := 0; i < 5; i++ {
		_ = rm.ValidateEntry(enterSig(), testPair(), goodTick(), goodDepth())
	}
	after := rm.Snapshot()

	if before.GrossNotionalUSD != after.GrossNotionalUSD ||
		before.OpenLegs != after.OpenLegs ||
		len(before.Pairs) != len(after.Pairs) {
		t.Errorf("rejected validations mutated state: %+v vs %+v", before, after)
	}
}

func TestRiskManager_ExitOnlyBreakerGated(t *testing.T) {
	log := zap.NewNop()
	exit := models.Signal{PairID: 1, Kind: models.SignalExit, Reason: models.ReasonThreshold}

	t.Run("illiquid exit allowed with warning", func(t *testing.T) {
		rm := NewRiskManager(testTradingConfig(), log)
		tick := goodTick()
		tick.LiquidityA = 100 // сильно ниже минимума
		degraded, err := rm.ValidateExit(exit, tick)
		if err != nil {
			t.Fatalf("exit must not be blocked by liquidity: %v", err)
		}
		if !degraded {
			t.Error("expected degraded-liquidity warning")
		}
	})

	t.Run("breaker blocks threshold exit", func(t *testing.T) {
		rm := NewRiskManager(testTradingConfig(), log)
		rm.SetBreaker(true, "halt")
		if _, err := rm.ValidateExit(exit, goodTick()); err == nil {
			t.Error("expected breaker rejection")
		}
	})

	t.Run("stop exit passes breaker", func(t *testing.T) {
		rm := NewRiskManager(testTradingConfig(), log)
		rm.SetBreaker(true, "halt")
		stop := exit
		stop.Reason = models.ReasonStop
		if _, err := rm.ValidateExit(stop, goodTick()); err != nil {
			t.Errorf("stop exit must bypass breaker: %v", err)
		}
	})
}

func TestRiskManager_EntryExitAccounting(t *testing.T) {
	rm := NewRiskManager(testTradingConfig(), zap.NewNop())
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

	rm.RecordEntry(1, 20000, now)
	st := rm.Snapshot()
	if st.GrossNotionalUSD != 20000 || st.OpenLegs != 2 {
		t.Fatalf("after entry: notional=%f legs=%d", st.GrossNotionalUSD, st.OpenLegs)
	}
	if st.Pairs[1].EntriesToday != 1 {
		t.Errorf("entries today = %d, want 1", st.Pairs[1].EntriesToday)
	}

	rm.RecordExit(1, now.Add(time.Minute))
	st = rm.Snapshot()
	if st.GrossNotionalUSD != 0 || st.OpenLegs != 0 {
		t.Fatalf("after exit: notional=%f legs=%d", st.GrossNotionalUSD, st.OpenLegs)
	}
	if st.Pairs[1].LastExit.IsZero() {
		t.Error("last exit not recorded")
	}
}

func TestRiskManager_DailyCounterResetsAcrossUTCDays(t *testing.T) {
	rm := NewRiskManager(testTradingConfig(), zap.NewNop())
	day1 := time.Date(2024, 3, 15, 23, 0, 0, 0, time.UTC)
	day2 := time.Date(2024, 3, 16, 1, 0, 0, 0, time.UTC)

	rm.RecordEntry(1, 100, day1)
	rm.RecordExit(1, day1.Add(time.Minute))
	rm.RecordEntry(1, 100, day2)

	if got := rm.PairSnapshot(1).EntriesToday; got != 1 {
		t.Errorf("entries today = %d, want 1 after UTC day boundary", got)
	}
}

func TestRiskManager_SnapshotIsolated(t *testing.T) {
	rm := NewRiskManager(testTradingConfig(), zap.NewNop())
	rm.RecordEntry(1, 100, time.Now().UTC())

	snap := rm.Snapshot()
	snap.Pairs[1] = models.PairRisk{EntriesToday: 99}

	if rm.PairSnapshot(1).EntriesToday == 99 {
		t.Error("mutating a snapshot must not affect the manager state")
	}
}
