package journal

// Schema creates the SQLite tables. Timestamps are stored as UTC unix
// nanoseconds so range scans compare integers.
const Schema = `
CREATE TABLE IF NOT EXISTS orders (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	symbol TEXT NOT NULL,
	type TEXT NOT NULL,
	side TEXT NOT NULL,
	price REAL NOT NULL,
	quantity REAL NOT NULL,
	status TEXT NOT NULL,
	stop_loss REAL NOT NULL DEFAULT 0,
	take_profit REAL NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_orders_user ON orders(user_id, created_at);
CREATE INDEX IF NOT EXISTS idx_orders_symbol_status ON orders(symbol, status);

CREATE TABLE IF NOT EXISTS trades (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	order_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	price REAL NOT NULL,
	quantity REAL NOT NULL,
	executed_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trades_user ON trades(user_id, seq);
CREATE INDEX IF NOT EXISTS idx_trades_time ON trades(executed_at);

CREATE TABLE IF NOT EXISTS balances (
	user_id TEXT PRIMARY KEY,
	balance REAL NOT NULL
);
`

// PostgresSchema is the equivalent schema for the Postgres journal. Times
// are stored as unix nanoseconds, like Schema.
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS orders (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	symbol TEXT NOT NULL,
	type TEXT NOT NULL,
	side TEXT NOT NULL,
	price DOUBLE PRECISION NOT NULL,
	quantity DOUBLE PRECISION NOT NULL,
	status TEXT NOT NULL,
	stop_loss DOUBLE PRECISION NOT NULL DEFAULT 0,
	take_profit DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at BIGINT NOT NULL,
	updated_at BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_orders_user ON orders(user_id, created_at);
CREATE INDEX IF NOT EXISTS idx_orders_symbol_status ON orders(symbol, status);

CREATE TABLE IF NOT EXISTS trades (
	seq BIGSERIAL PRIMARY KEY,
	id TEXT NOT NULL UNIQUE,
	order_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	price DOUBLE PRECISION NOT NULL,
	quantity DOUBLE PRECISION NOT NULL,
	executed_at BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trades_user ON trades(user_id, seq);
CREATE INDEX IF NOT EXISTS idx_trades_time ON trades(executed_at);

CREATE TABLE IF NOT EXISTS balances (
	user_id TEXT PRIMARY KEY,
	balance DOUBLE PRECISION NOT NULL
);
`
