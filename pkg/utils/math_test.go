package utils

import (
	"math"
	"testing"
)

func TestRoundToLotSize(t *testing.T) {
	tests := []struct {
		name    string
		value   float64
		lotSize float64
		want    float64
	}{
		{"round down", 0.123456, 0.001, 0.123},
		{"exact multiple", 1.99, 0.01, 1.99},
		{"whole lot", 100.5, 1.0, 100.0},
		{"zero lot size", 0.5, 0, 0.5},
		{"negative lot size", 0.5, -1, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RoundToLotSize(tt.value, tt.lotSize)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("RoundToLotSize(%f, %f) = %f, want %f", tt.value, tt.lotSize, got, tt.want)
			}
		})
	}
}

func TestWalkDepth(t *testing.T) {
	asks := []DepthLevel{
		{Price: 100.0, Volume: 10.0},
		{Price: 101.0, Volume: 20.0},
		{Price: 102.0, Volume: 10.0},
	}

	t.Run("fills across levels", func(t *testing.T) {
		avg, filled := WalkDepth(asks, 30.0)
		if filled != 30.0 {
			t.Fatalf("filled = %f, want 30", filled)
		}
		// (100*10 + 101*20) / 30 = 3020/30
		want := 3020.0 / 30.0
		if math.Abs(avg-want) > 1e-9 {
			t.Errorf("avg = %f, want %f", avg, want)
		}
	})

	t.Run("partial fill when depth exhausted", func(t *testing.T) {
		avg, filled := WalkDepth(asks, 100.0)
		if filled != 40.0 {
			t.Errorf("filled = %f, want 40", filled)
		}
		if avg <= 100.0 || avg >= 102.0 {
			t.Errorf("avg = %f, expected between best and worst level", avg)
		}
	})

	t.Run("empty book", func(t *testing.T) {
		avg, filled := WalkDepth(nil, 10.0)
		if avg != 0 || filled != 0 {
			t.Errorf("got avg=%f filled=%f, want zeros", avg, filled)
		}
	})

	t.Run("skips invalid levels", func(t *testing.T) {
		levels := []DepthLevel{
			{Price: 100.0, Volume: 5.0},
			{Price: 0, Volume: 100.0},
			{Price: 101.0, Volume: 5.0},
		}
		avg, filled := WalkDepth(levels, 10.0)
		if filled != 10.0 {
			t.Fatalf("filled = %f, want 10", filled)
		}
		want := (100.0*5 + 101.0*5) / 10.0
		if math.Abs(avg-want) > 1e-9 {
			t.Errorf("avg = %f, want %f", avg, want)
		}
	})
}

func TestSlippageBps(t *testing.T) {
	asks := []DepthLevel{
		{Price: 100.0, Volume: 10.0},
		{Price: 101.0, Volume: 90.0},
	}

	t.Run("within best level no slippage", func(t *testing.T) {
		if got := SlippageBps(asks, 5.0); got != 0 {
			t.Errorf("SlippageBps = %f, want 0", got)
		}
	})

	t.Run("walking deeper costs bps", func(t *testing.T) {
		// 10 @ 100 + 10 @ 101 -> avg 100.5, 50 bps от лучшей цены
		got := SlippageBps(asks, 20.0)
		if math.Abs(got-50.0) > 1e-9 {
			t.Errorf("SlippageBps = %f, want 50", got)
		}
	})

	t.Run("empty book", func(t *testing.T) {
		if got := SlippageBps(nil, 10.0); got != 0 {
			t.Errorf("SlippageBps = %f, want 0", got)
		}
	})
}

func TestCalculatePairPNL(t *testing.T) {
	tests := []struct {
		name string
		// long A short B: qtyA > 0, qtyB < 0
		entryA, currentA, qtyA float64
		entryB, currentB, qtyB float64
		want                   float64
	}{
		{"converging spread profits", 100, 102, 1.0, 105, 104, -1.0, 3.0},
		{"diverging spread loses", 100, 99, 1.0, 105, 107, -1.0, -3.0},
		{"flat prices zero pnl", 100, 100, 1.0, 105, 105, -1.0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculatePairPNL(tt.entryA, tt.currentA, tt.qtyA, tt.entryB, tt.currentB, tt.qtyB)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("CalculatePairPNL = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestClamp(t *testing.T) {
	if got := Clamp(5, 0, 10); got != 5 {
		t.Errorf("Clamp(5,0,10) = %f", got)
	}
	if got := Clamp(-1, 0, 10); got != 0 {
		t.Errorf("Clamp(-1,0,10) = %f", got)
	}
	if got := Clamp(11, 0, 10); got != 10 {
		t.Errorf("Clamp(11,0,10) = %f", got)
	}
}
