package bot

import (
	"math"
	"testing"
	"time"

	"pairsbot/internal/models"
)

func sampleAt(ts time.Time, z float64) models.SpreadSample {
	return models.SpreadSample{
		PairID:    1,
		Timestamp: ts,
		Z:         z,
	}
}

func TestSignalEngine_EntryDirections(t *testing.T) {
	base := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		z    float64
		want models.SignalKind
	}{
		{"high z shorts expensive leg A", 2.5, models.SignalEnterShortALongB},
		{"low z longs cheap leg A", -2.5, models.SignalEnterLongAShortB},
		{"below threshold holds", 1.9, models.SignalHold},
		{"above negative threshold holds", -1.9, models.SignalHold},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			se := NewSignalEngine(1, testTradingConfig())
			sig := se.Evaluate(sampleAt(base, tt.z), models.PairRisk{})
			if sig.Kind != tt.want {
				t.Errorf("kind = %s, want %s", sig.Kind, tt.want)
			}
		})
	}
}

func TestSignalEngine_FlatThenJumpScenario(t *testing.T) {
	// Спред около нуля 900 секунд, затем скачок: HOLD всё время,
	// ENTERING-сигнал на первом тике с z за порогом 2.0,
	// направление short-A/long-B
	cfg := testTradingConfig()
	calc := NewSpreadCalculator(testPair(), cfg)
	se := NewSignalEngine(1, cfg)
	base := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 900; i++ {
		// Небольшой детерминированный шум, чтобы std был ненулевым
		noise := 0.01 * math.Sin(float64(i)/7.0)
		s := calc.Update(tickAt(base.Add(time.Duration(i)*time.Second), 100+noise, 100), false)
		sig := se.Evaluate(s, models.PairRisk{})
		if sig.Kind != models.SignalHold {
			t.Fatalf("tick %d: kind = %s, want HOLD while spread is flat (z=%.2f)", i, sig.Kind, s.Z)
		}
	}

	jump := calc.Update(tickAt(base.Add(900*time.Second), 101, 100), false)
	if jump.Z < cfg.EnterZHigh {
		t.Fatalf("jump z = %.2f, expected to cross %.1f", jump.Z, cfg.EnterZHigh)
	}
	sig := se.Evaluate(jump, models.PairRisk{})
	if sig.Kind != models.SignalEnterShortALongB {
		t.Errorf("kind = %s, want ENTER_SHORT_A_LONG_B at threshold crossing", sig.Kind)
	}
	if sig.Reason != models.ReasonThreshold {
		t.Errorf("reason = %s, want threshold", sig.Reason)
	}
}

func TestSignalEngine_ThresholdExitRespectsMinHold(t *testing.T) {
	cfg := testTradingConfig() // MinHold = 30s, ExitZLow = 0.5
	se := NewSignalEngine(1, cfg)
	se.ForceState(models.StateOpen)
	entry := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	pr := models.PairRisk{LastEntry: entry}

	t.Run("hold before min hold elapsed", func(t *testing.T) {
		sig := se.Evaluate(sampleAt(entry.Add(10*time.Second), 0.4), pr)
		if sig.Kind != models.SignalHold || sig.Reason != models.ReasonMinHold {
			t.Errorf("got %s/%s, want HOLD/min-hold", sig.Kind, sig.Reason)
		}
	})

	t.Run("exit at entry+45s with z=0.4", func(t *testing.T) {
		sig := se.Evaluate(sampleAt(entry.Add(45*time.Second), 0.4), pr)
		if sig.Kind != models.SignalExit || sig.Reason != models.ReasonThreshold {
			t.Errorf("got %s/%s, want EXIT/threshold", sig.Kind, sig.Reason)
		}
	})

	t.Run("no exit while z above exit threshold", func(t *testing.T) {
		sig := se.Evaluate(sampleAt(entry.Add(45*time.Second), 1.2), pr)
		if sig.Kind != models.SignalHold {
			t.Errorf("kind = %s, want HOLD", sig.Kind)
		}
	})
}

func TestSignalEngine_StopBypassesMinHold(t *testing.T) {
	cfg := testTradingConfig() // StopZ = 4.0, MinHold = 30s
	se := NewSignalEngine(1, cfg)
	se.ForceState(models.StateOpen)
	entry := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	pr := models.PairRisk{LastEntry: entry}

	// z=4.5 через 10 секунд после входа: немедленный EXIT
	sig := se.Evaluate(sampleAt(entry.Add(10*time.Second), 4.5), pr)
	if sig.Kind != models.SignalExit {
		t.Fatalf("kind = %s, want EXIT on stop", sig.Kind)
	}
	if sig.Reason != models.ReasonStop {
		t.Errorf("reason = %s, want stop", sig.Reason)
	}

	// Stop срабатывает и на отрицательном z
	sig = se.Evaluate(sampleAt(entry.Add(10*time.Second), -4.5), pr)
	if sig.Kind != models.SignalExit || sig.Reason != models.ReasonStop {
		t.Errorf("got %s/%s, want EXIT/stop for negative z", sig.Kind, sig.Reason)
	}
}

func TestSignalEngine_EntryGates(t *testing.T) {
	base := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	cfg := testTradingConfig()

	t.Run("stale suppresses entry", func(t *testing.T) {
		se := NewSignalEngine(1, cfg)
		s := sampleAt(base, 2.5)
		s.Stale = true
		sig := se.Evaluate(s, models.PairRisk{})
		if sig.Kind != models.SignalHold || sig.Reason != models.ReasonStale {
			t.Errorf("got %s/%s, want HOLD/stale-data", sig.Kind, sig.Reason)
		}
	})

	t.Run("stale never suppresses exit", func(t *testing.T) {
		se := NewSignalEngine(1, cfg)
		se.ForceState(models.StateOpen)
		s := sampleAt(base.Add(time.Hour), 4.5)
		s.Stale = true
		sig := se.Evaluate(s, models.PairRisk{LastEntry: base})
		if sig.Kind != models.SignalExit {
			t.Errorf("kind = %s, want EXIT despite staleness", sig.Kind)
		}
	})

	t.Run("low confidence suppresses entry", func(t *testing.T) {
		se := NewSignalEngine(1, cfg)
		s := sampleAt(base, 0)
		s.LowConfidence = true
		sig := se.Evaluate(s, models.PairRisk{})
		if sig.Kind != models.SignalHold || sig.Reason != models.ReasonLowConf {
			t.Errorf("got %s/%s, want HOLD/low-confidence", sig.Kind, sig.Reason)
		}
	})

	t.Run("reentry cooldown", func(t *testing.T) {
		se := NewSignalEngine(1, cfg) // MinReentry = 60s
		pr := models.PairRisk{LastExit: base.Add(-30 * time.Second)}
		sig := se.Evaluate(sampleAt(base, 2.5), pr)
		if sig.Kind != models.SignalHold || sig.Reason != models.ReasonCooldown {
			t.Errorf("got %s/%s, want HOLD/cooldown", sig.Kind, sig.Reason)
		}

		pr.LastExit = base.Add(-90 * time.Second)
		sig = se.Evaluate(sampleAt(base, 2.5), pr)
		if !sig.IsEnter() {
			t.Errorf("kind = %s, want enter after cooldown", sig.Kind)
		}
	})

	t.Run("daily entry cap", func(t *testing.T) {
		se := NewSignalEngine(1, cfg) // MaxEntriesPerDay = 5
		pr := models.PairRisk{
			EntriesToday: 5,
			LastEntry:    base.Add(-2 * time.Hour), // тот же день UTC
		}
		sig := se.Evaluate(sampleAt(base, 2.5), pr)
		if sig.Kind != models.SignalHold || sig.Reason != models.ReasonDailyCap {
			t.Errorf("got %s/%s, want HOLD/daily-cap", sig.Kind, sig.Reason)
		}

		// Счётчик со вчера не считается
		pr.LastEntry = base.Add(-24 * time.Hour)
		sig = se.Evaluate(sampleAt(base, 2.5), pr)
		if !sig.IsEnter() {
			t.Errorf("kind = %s, want enter on a fresh day", sig.Kind)
		}
	})
}

func TestSignalEngine_HoldIdempotent(t *testing.T) {
	// Повторные одинаковые сэмплы в OPEN и FLAT дают HOLD без
	// побочных эффектов
	base := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	cfg := testTradingConfig()

	se := NewSignalEngine(1, cfg)
	se.ForceState(models.StateOpen)
	pr := models.PairRisk{LastEntry: base}
	s := sampleAt(base.Add(time.Minute), 1.5)

	first := se.Evaluate(s, pr)
	second := se.Evaluate(s, pr)
	if first != second {
		t.Errorf("repeated evaluation differs: %+v vs %+v", first, second)
	}
	if se.State() != models.StateOpen {
		t.Errorf("state = %s, evaluation must not mutate state", se.State())
	}
}

func TestSignalEngine_NoDecisionsWhileTransitioning(t *testing.T) {
	base := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

	for _, state := range []string{models.StateEntering, models.StateExiting, models.StateDegraded} {
		t.Run(state, func(t *testing.T) {
			se := NewSignalEngine(1, testTradingConfig())
			se.ForceState(state)
			sig := se.Evaluate(sampleAt(base, 5.0), models.PairRisk{})
			if sig.Kind != models.SignalHold {
				t.Errorf("kind = %s, want HOLD in %s", sig.Kind, state)
			}
		})
	}
}

func TestSignalEngine_HysteresisNoReentryWithoutFlat(t *testing.T) {
	// После ENTERING пара не может снова дать ENTER, не пройдя FLAT
	cfg := testTradingConfig()
	se := NewSignalEngine(1, cfg)
	base := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

	sig := se.Evaluate(sampleAt(base, 2.5), models.PairRisk{})
	if !sig.IsEnter() {
		t.Fatalf("expected enter, got %s", sig.Kind)
	}
	if !se.Transition(models.StateEntering) {
		t.Fatal("FLAT -> ENTERING must be allowed")
	}

	// Тот же z: решений больше нет до завершения входа
	for i := 1; i <= 3; i++ {
		sig = se.Evaluate(sampleAt(base.Add(time.Duration(i)*time.Second), 2.5), models.PairRisk{})
		if sig.IsEnter() {
			t.Fatalf("re-enter emitted while ENTERING")
		}
	}

	se.Transition(models.StateOpen)
	sig = se.Evaluate(sampleAt(base.Add(10*time.Second), 2.5), models.PairRisk{LastEntry: base})
	if sig.IsEnter() {
		t.Fatal("re-enter emitted while OPEN")
	}
}
