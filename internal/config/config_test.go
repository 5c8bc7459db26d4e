package config

import (
	"strings"
	"testing"
	"time"

	"pairsbot/pkg/crypto"
)

func validTrading() TradingConfig {
	return TradingConfig{
		EnterZHigh:          2.0,
		ExitZLow:            0.5,
		StopZ:               4.0,
		LookbackSecs:        900,
		EMAWindow:           30,
		MinSamples:          2,
		MinLiquidityUSD:     5000,
		MaxSlippageBps:      10,
		MaxGrossNotionalUSD: 50000,
		MaxLegs:             8,
		MaxEntriesPerDay:    10,
		MinHold:             30 * time.Second,
		MinReentry:          time.Minute,
		OrderTimeout:        5 * time.Second,
		StaleAfter:          3 * time.Second,
		MaxSkew:             500 * time.Millisecond,
	}
}

func TestTradingConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*TradingConfig)
		wantErr bool
	}{
		{"valid defaults", func(c *TradingConfig) {}, false},
		{"enter equals exit", func(c *TradingConfig) { c.EnterZHigh = 0.5 }, true},
		{"enter below exit", func(c *TradingConfig) { c.EnterZHigh = 0.3 }, true},
		{"stop below enter", func(c *TradingConfig) { c.StopZ = 1.5 }, true},
		{"negative exit", func(c *TradingConfig) { c.ExitZLow = -0.1 }, true},
		{"zero lookback", func(c *TradingConfig) { c.LookbackSecs = 0 }, true},
		{"zero ema window", func(c *TradingConfig) { c.EMAWindow = 0 }, true},
		{"min samples one", func(c *TradingConfig) { c.MinSamples = 1 }, true},
		{"zero notional cap", func(c *TradingConfig) { c.MaxGrossNotionalUSD = 0 }, true},
		{"max legs one", func(c *TradingConfig) { c.MaxLegs = 1 }, true},
		{"zero slippage cap", func(c *TradingConfig) { c.MaxSlippageBps = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validTrading()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	// Без переменных окружения должны применяться дефолты,
	// и они обязаны проходить собственную валидацию
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() with defaults failed: %v", err)
	}

	if cfg.Trading.EnterZHigh != 2.0 {
		t.Errorf("expected EnterZHigh=2.0, got %f", cfg.Trading.EnterZHigh)
	}
	if cfg.Trading.ExitZLow != 0.5 {
		t.Errorf("expected ExitZLow=0.5, got %f", cfg.Trading.ExitZLow)
	}
	if cfg.Trading.AutoExecute {
		t.Error("AutoExecute must default to false (alert-only)")
	}
}

func TestLoadHysteresisViolation(t *testing.T) {
	t.Setenv("ENTER_Z_HIGH", "0.4")
	t.Setenv("EXIT_Z_LOW", "0.5")

	if _, err := Load(); err == nil {
		t.Fatal("expected fatal error when ENTER_Z_HIGH <= EXIT_Z_LOW")
	}
}

func TestDSNWithoutPassword(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "secret", Name: "pairsbot", SSLMode: "disable"}

	dsn := d.DSNWithoutPassword()
	if dsn == "" {
		t.Fatal("empty DSN")
	}
	if strings.Contains(dsn, "secret") {
		t.Error("DSNWithoutPassword must not leak the password")
	}
	if !strings.Contains(d.DSN(), "secret") {
		t.Error("DSN must contain the password")
	}
}

func TestLoadFeedTokenEncrypted(t *testing.T) {
	key := "0123456789abcdef0123456789abcdef"
	enc, err := crypto.Encrypt("normalizer-secret", []byte(key))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	t.Setenv("ENCRYPTION_KEY", key)
	t.Setenv("FEED_TOKEN_ENC", enc)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Feed.Token != "normalizer-secret" {
		t.Errorf("Feed.Token = %q, want decrypted token", cfg.Feed.Token)
	}
}

func TestLoadFeedTokenEncryptedWithoutKey(t *testing.T) {
	t.Setenv("FEED_TOKEN_ENC", "AAAA")

	if _, err := Load(); err == nil {
		t.Fatal("expected error: FEED_TOKEN_ENC without ENCRYPTION_KEY")
	}
}

func TestLoadFeedTokenPlainWins(t *testing.T) {
	t.Setenv("FEED_TOKEN", "plain-token")
	t.Setenv("FEED_TOKEN_ENC", "garbage")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Feed.Token != "plain-token" {
		t.Errorf("Feed.Token = %q, want FEED_TOKEN to take precedence", cfg.Feed.Token)
	}
}
