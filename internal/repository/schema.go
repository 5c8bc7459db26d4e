package repository

import "database/sql"

// EnsureSchema создаёт таблицы State Store, если их ещё нет.
// Вызывается при старте; идемпотентна.
func EnsureSchema(db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS pairs (
			id          SERIAL PRIMARY KEY,
			name        TEXT NOT NULL UNIQUE,
			venue_a     TEXT NOT NULL,
			symbol_a    TEXT NOT NULL,
			venue_b     TEXT NOT NULL,
			symbol_b    TEXT NOT NULL,
			quote_norm  DOUBLE PRECISION NOT NULL DEFAULT 1.0,
			volume_base DOUBLE PRECISION NOT NULL,
			account     TEXT NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS spreads (
			pair_id           INTEGER NOT NULL REFERENCES pairs(id) ON DELETE CASCADE,
			ts                TIMESTAMPTZ NOT NULL,
			price_a           DOUBLE PRECISION NOT NULL,
			price_b           DOUBLE PRECISION NOT NULL,
			spread            DOUBLE PRECISION NOT NULL,
			mean              DOUBLE PRECISION NOT NULL,
			std               DOUBLE PRECISION NOT NULL,
			z                 DOUBLE PRECISION NOT NULL,
			ema               DOUBLE PRECISION NOT NULL,
			low_confidence    BOOLEAN NOT NULL DEFAULT FALSE,
			stale             BOOLEAN NOT NULL DEFAULT FALSE,
			half_life_secs    DOUBLE PRECISION NOT NULL DEFAULT 0,
			time_to_exit_secs DOUBLE PRECISION NOT NULL DEFAULT 0,
			net_funding_usd   DOUBLE PRECISION NOT NULL DEFAULT 0,
			PRIMARY KEY (pair_id, ts)
		)`,
		`CREATE TABLE IF NOT EXISTS signals (
			id      BIGSERIAL PRIMARY KEY,
			pair_id INTEGER NOT NULL REFERENCES pairs(id) ON DELETE CASCADE,
			ts      TIMESTAMPTZ NOT NULL,
			kind    TEXT NOT NULL,
			z       DOUBLE PRECISION NOT NULL,
			reason  TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_signals_pair_ts ON signals (pair_id, ts DESC)`,
		`CREATE TABLE IF NOT EXISTS orders (
			order_id       TEXT PRIMARY KEY,
			pair_id        INTEGER NOT NULL REFERENCES pairs(id) ON DELETE CASCADE,
			leg            TEXT NOT NULL,
			side           TEXT NOT NULL,
			type           TEXT NOT NULL,
			qty            DOUBLE PRECISION NOT NULL,
			limit_price    DOUBLE PRECISION NOT NULL DEFAULT 0,
			status         TEXT NOT NULL,
			nonce          BIGINT NOT NULL,
			filled_qty     DOUBLE PRECISION NOT NULL DEFAULT 0,
			avg_fill_price DOUBLE PRECISION NOT NULL DEFAULT 0,
			created_at     TIMESTAMPTZ NOT NULL,
			filled_at      TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_pair_created ON orders (pair_id, created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS positions (
			pair_id        INTEGER PRIMARY KEY REFERENCES pairs(id) ON DELETE CASCADE,
			leg_a_qty      DOUBLE PRECISION NOT NULL,
			leg_b_qty      DOUBLE PRECISION NOT NULL,
			entry_time     TIMESTAMPTZ NOT NULL,
			entry_z        DOUBLE PRECISION NOT NULL,
			entry_price_a  DOUBLE PRECISION NOT NULL,
			entry_price_b  DOUBLE PRECISION NOT NULL,
			realized_pnl   DOUBLE PRECISION NOT NULL DEFAULT 0,
			unrealized_pnl DOUBLE PRECISION NOT NULL DEFAULT 0,
			state          TEXT NOT NULL
		)`,
	}

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
