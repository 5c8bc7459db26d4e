package connector

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"pairsbot/internal/models"
)

func testPaperPairs() []models.PairConfig {
	return []models.PairConfig{{
		ID:         1,
		Name:       "BTCUSDT",
		LegA:       models.LegID{Venue: "lighter", Symbol: "BTCUSDT"},
		LegB:       models.LegID{Venue: "aster", Symbol: "BTCUSDT"},
		QuoteNorm:  1.0,
		VolumeBase: 0.1,
		Account:    "acct-1",
	}}
}

func newTestPaper(t *testing.T) *PaperConnector {
	t.Helper()
	cfg := DefaultPaperConfig()
	cfg.TickInterval = 5 * time.Millisecond
	cfg.Seed = 42
	p := NewPaperConnector(cfg, testPaperPairs(), zap.NewNop())
	t.Cleanup(func() { p.Close() })
	return p
}

func TestPaperConnector_SubscribeDeliversTicks(t *testing.T) {
	p := newTestPaper(t)

	ch, err := p.Subscribe(1)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	select {
	case tick := <-ch:
		if tick.PairID != 1 {
			t.Errorf("pair_id = %d, want 1", tick.PairID)
		}
		if tick.PriceA <= 0 || tick.PriceB <= 0 {
			t.Errorf("prices = %f/%f, want positive", tick.PriceA, tick.PriceB)
		}
		if tick.LiquidityA <= 0 {
			t.Error("liquidity must be positive")
		}
	case <-time.After(time.Second):
		t.Fatal("no tick within 1s")
	}
}

func TestPaperConnector_SubscribeUnknownPair(t *testing.T) {
	p := newTestPaper(t)

	if _, err := p.Subscribe(99); err == nil {
		t.Fatal("expected error for unknown pair")
	}
}

func TestPaperConnector_OrderFillsImmediately(t *testing.T) {
	p := newTestPaper(t)

	req := OrderRequest{
		PairID:     1,
		Leg:        models.LegID{Venue: "lighter", Symbol: "BTCUSDT"},
		Account:    "acct-1",
		Side:       models.SideBuy,
		Type:       models.OrderTypeLimit,
		Qty:        0.1,
		LimitPrice: 100.5,
	}
	orderID, err := p.PlaceOrder(context.Background(), req)
	if err != nil {
		t.Fatalf("place order: %v", err)
	}

	select {
	case ev := <-p.Events():
		if ev.OrderID != orderID {
			t.Errorf("order_id = %s, want %s", ev.OrderID, orderID)
		}
		if ev.Kind != EventFill {
			t.Errorf("kind = %s, want fill", ev.Kind)
		}
		if ev.FillQty != req.Qty {
			t.Errorf("fill qty = %f, want %f", ev.FillQty, req.Qty)
		}
		if ev.FillPrice != req.LimitPrice {
			t.Errorf("fill price = %f, want limit %f", ev.FillPrice, req.LimitPrice)
		}
	case <-time.After(time.Second):
		t.Fatal("no fill event")
	}
}

func TestPaperConnector_MarketOrderFillsAtMid(t *testing.T) {
	p := newTestPaper(t)

	req := OrderRequest{
		PairID:  1,
		Leg:     models.LegID{Venue: "aster", Symbol: "BTCUSDT"},
		Account: "acct-1",
		Side:    models.SideSell,
		Type:    models.OrderTypeMarket,
		Qty:     0.1,
	}
	if _, err := p.PlaceOrder(context.Background(), req); err != nil {
		t.Fatalf("place order: %v", err)
	}

	ev := <-p.Events()
	if ev.FillPrice <= 0 {
		t.Errorf("market fill price = %f, want positive mid", ev.FillPrice)
	}
}

func TestPaperConnector_CancelUnknownOrder(t *testing.T) {
	p := newTestPaper(t)

	if err := p.CancelOrder(context.Background(), "lighter", "nope"); err == nil {
		t.Fatal("expected error for unknown order")
	}
}

func TestPaperConnector_DepthAroundMid(t *testing.T) {
	p := newTestPaper(t)

	levels, err := p.Depth(context.Background(), models.LegID{Venue: "lighter", Symbol: "BTCUSDT"}, models.SideBuy)
	if err != nil {
		t.Fatalf("depth: %v", err)
	}
	if len(levels) != 3 {
		t.Fatalf("levels = %d, want 3", len(levels))
	}
	// Покупка: уровни от лучшей цены вверх
	if !(levels[0].Price < levels[1].Price && levels[1].Price < levels[2].Price) {
		t.Errorf("buy levels not ascending: %+v", levels)
	}

	sells, err := p.Depth(context.Background(), models.LegID{Venue: "lighter", Symbol: "BTCUSDT"}, models.SideSell)
	if err != nil {
		t.Fatalf("depth: %v", err)
	}
	if !(sells[0].Price > sells[1].Price) {
		t.Errorf("sell levels not descending: %+v", sells)
	}
}

func TestPaperConnector_CloseStopsFeed(t *testing.T) {
	p := newTestPaper(t)

	ch, err := p.Subscribe(1)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Канал закрывается после остановки генератора
	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("subscription channel not closed")
		}
	}
}
