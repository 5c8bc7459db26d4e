package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"pairsbot/pkg/crypto"
)

// Config содержит всю конфигурацию приложения
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Security SecurityConfig
	Trading  TradingConfig
	Feed     FeedConfig
	Logging  LoggingConfig
}

// ServerConfig - настройки HTTP сервера (панель и control surface)
type ServerConfig struct {
	Port int
	Host string
}

// DatabaseConfig - настройки подключения к State Store
type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
}

// SecurityConfig - настройки безопасности
type SecurityConfig struct {
	EncryptionKey string // AES-256 ключ для API credentials коннекторов
	PanelPassHash string // bcrypt hash пароля панели (пусто = auth выключен)
}

// TradingConfig - числовые параметры ядра.
// Валидируется при старте: нарушение инвариантов - фатальная ошибка.
type TradingConfig struct {
	// Пороги z-score (hysteresis: EnterZHigh строго больше ExitZLow)
	EnterZHigh float64
	ExitZLow   float64
	StopZ      float64 // форсированный выход, игнорирует MinHold

	// Окна
	LookbackSecs int // rolling-окно спреда, по времени (не по числу точек)
	EMAWindow    int // окно EMA, alpha = 2/(window+1)
	MinSamples   int // минимум точек для валидного z (иначе low_confidence)

	// Риск-лимиты
	MinLiquidityUSD    float64
	MaxSlippageBps     float64
	MaxGrossNotionalUSD float64
	MaxLegs            int
	MaxEntriesPerDay   int

	// Таймеры
	MinHold      time.Duration // минимальное удержание до порогового выхода
	MinReentry   time.Duration // пауза после выхода до следующего входа
	OrderTimeout time.Duration // ожидание исполнения LIMIT до эскалации в IOC
	StaleAfter   time.Duration // тик старше - входы подавляются
	MaxSkew      time.Duration // максимальная рассинхронизация котировок ног

	// Retry при отправке ордеров
	MaxRetries   int
	RetryBackoff time.Duration

	// Режим: auto (исполнение) или alert-only (только сигналы)
	AutoExecute bool

	// Notional для оценки фандинга в публикуемых сэмплах
	FundingNotionalUSD float64
}

// FeedConfig - источник нормализованных тиков.
// Пустой URL означает внутрипроцессный paper-коннектор
// (alert-only и локальная обкатка).
type FeedConfig struct {
	URL         string
	FundingURL  string
	FundingPoll time.Duration
	// Токен авторизации фида. Берётся из FEED_TOKEN, либо из
	// FEED_TOKEN_ENC (AES-GCM, расшифровывается ENCRYPTION_KEY)
	Token string
}

// LoggingConfig - настройки логирования
type LoggingConfig struct {
	Level  string
	Format string
}

// Load загружает конфигурацию из переменных окружения
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: getEnvAsInt("SERVER_PORT", 8080),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "postgres"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			Name:     getEnv("DB_NAME", "pairsbot"),
			User:     getEnv("DB_USER", "user"),
			Password: getEnv("DB_PASSWORD", "password"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Security: SecurityConfig{
			EncryptionKey: getEnv("ENCRYPTION_KEY", ""),
			PanelPassHash: getEnv("PANEL_PASS_HASH", ""),
		},
		Trading: TradingConfig{
			EnterZHigh: getEnvAsFloat("ENTER_Z_HIGH", 2.0),
			ExitZLow:   getEnvAsFloat("EXIT_Z_LOW", 0.5),
			StopZ:      getEnvAsFloat("STOP_Z", 4.0),

			LookbackSecs: getEnvAsInt("LOOKBACK_SECS", 900),
			EMAWindow:    getEnvAsInt("EMA_WINDOW", 30),
			MinSamples:   getEnvAsInt("MIN_SAMPLES", 2),

			MinLiquidityUSD:     getEnvAsFloat("MIN_LIQUIDITY_USD", 5000),
			MaxSlippageBps:      getEnvAsFloat("MAX_SLIPPAGE_BPS", 10),
			MaxGrossNotionalUSD: getEnvAsFloat("MAX_GROSS_NOTIONAL_USD", 50000),
			MaxLegs:             getEnvAsInt("MAX_LEGS", 8),
			MaxEntriesPerDay:    getEnvAsInt("MAX_ENTRIES_PER_DAY", 10),

			MinHold:      getEnvAsDuration("MIN_HOLD", 30*time.Second),
			MinReentry:   getEnvAsDuration("MIN_REENTRY", 60*time.Second),
			OrderTimeout: getEnvAsDuration("ORDER_TIMEOUT", 5*time.Second),
			StaleAfter:   getEnvAsDuration("STALE_AFTER", 3*time.Second),
			MaxSkew:      getEnvAsDuration("MAX_SKEW", 500*time.Millisecond),

			MaxRetries:   getEnvAsInt("MAX_RETRIES", 4),
			RetryBackoff: getEnvAsDuration("RETRY_BACKOFF", 500*time.Millisecond),

			AutoExecute: getEnvAsBool("AUTO_EXECUTE", false),

			FundingNotionalUSD: getEnvAsFloat("FUNDING_NOTIONAL_USD", 1000),
		},
		Feed: FeedConfig{
			URL:         getEnv("FEED_URL", ""),
			FundingURL:  getEnv("FUNDING_URL", ""),
			FundingPoll: getEnvAsDuration("FUNDING_POLL", time.Minute),
			Token:       getEnv("FEED_TOKEN", ""),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	// Токен в окружении может лежать зашифрованным (деплой без
	// секретов в plaintext); явный FEED_TOKEN имеет приоритет
	if enc := getEnv("FEED_TOKEN_ENC", ""); enc != "" && cfg.Feed.Token == "" {
		if cfg.Security.EncryptionKey == "" {
			return nil, fmt.Errorf("FEED_TOKEN_ENC requires ENCRYPTION_KEY to be set")
		}
		token, err := crypto.Decrypt(enc, []byte(cfg.Security.EncryptionKey))
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt FEED_TOKEN_ENC: %w", err)
		}
		cfg.Feed.Token = token
	}

	if err := cfg.Trading.Validate(); err != nil {
		return nil, err
	}

	if err := cfg.validateRanges(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate проверяет инварианты торговых параметров.
// Нарушение любого из них - фатальная ошибка старта, не per-tick проверка.
func (t *TradingConfig) Validate() error {
	if t.EnterZHigh <= t.ExitZLow {
		return fmt.Errorf("ENTER_Z_HIGH (%.2f) must be strictly greater than EXIT_Z_LOW (%.2f)",
			t.EnterZHigh, t.ExitZLow)
	}

	if t.StopZ <= t.EnterZHigh {
		return fmt.Errorf("STOP_Z (%.2f) must be greater than ENTER_Z_HIGH (%.2f)",
			t.StopZ, t.EnterZHigh)
	}

	if t.ExitZLow < 0 {
		return fmt.Errorf("EXIT_Z_LOW cannot be negative, got %.2f", t.ExitZLow)
	}

	if t.LookbackSecs <= 0 {
		return fmt.Errorf("LOOKBACK_SECS must be positive, got %d", t.LookbackSecs)
	}

	if t.EMAWindow <= 0 {
		return fmt.Errorf("EMA_WINDOW must be positive, got %d", t.EMAWindow)
	}

	if t.MinSamples < 2 {
		return fmt.Errorf("MIN_SAMPLES must be at least 2, got %d", t.MinSamples)
	}

	if t.MaxGrossNotionalUSD <= 0 {
		return fmt.Errorf("MAX_GROSS_NOTIONAL_USD must be positive, got %.2f", t.MaxGrossNotionalUSD)
	}

	if t.MaxLegs < 2 {
		return fmt.Errorf("MAX_LEGS must be at least 2 (one open pair), got %d", t.MaxLegs)
	}

	if t.MaxSlippageBps <= 0 {
		return fmt.Errorf("MAX_SLIPPAGE_BPS must be positive, got %.2f", t.MaxSlippageBps)
	}

	return nil
}

// validateRanges проверяет остальные числовые диапазоны
func (c *Config) validateRanges() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("DB_PORT must be between 1 and 65535, got %d", c.Database.Port)
	}

	if c.Trading.MaxRetries < 0 || c.Trading.MaxRetries > 10 {
		return fmt.Errorf("MAX_RETRIES must be between 0 and 10, got %d", c.Trading.MaxRetries)
	}

	if c.Trading.OrderTimeout <= 0 {
		return fmt.Errorf("ORDER_TIMEOUT must be positive, got %v", c.Trading.OrderTimeout)
	}

	if c.Trading.StaleAfter <= 0 {
		return fmt.Errorf("STALE_AFTER must be positive, got %v", c.Trading.StaleAfter)
	}

	// ENCRYPTION_KEY обязателен только если заданы credentials коннекторов
	if c.Security.EncryptionKey != "" && len(c.Security.EncryptionKey) != 32 {
		return fmt.Errorf("ENCRYPTION_KEY must be exactly 32 bytes for AES-256")
	}

	return nil
}

// DSN возвращает строку подключения к базе данных
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// DSNWithoutPassword возвращает строку подключения без пароля (для логирования)
func (d DatabaseConfig) DSNWithoutPassword() string {
	return fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Name, d.SSLMode)
}

// Вспомогательные функции для чтения переменных окружения

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
