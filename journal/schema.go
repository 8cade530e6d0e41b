// journal/schema.go
package journal

const Schema = `
CREATE TABLE IF NOT EXISTS trades (
	order_id TEXT PRIMARY KEY,
	time DATETIME NOT NULL,
	signal_time DATETIME,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	qty REAL NOT NULL,
	filled_price REAL NOT NULL,
	status TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trades_symbol_time ON trades(symbol, time);

CREATE TABLE IF NOT EXISTS equity (
	time DATETIME NOT NULL,
	update_type TEXT NOT NULL,
	cash REAL NOT NULL,
	portfolio_value REAL NOT NULL,
	buying_power REAL NOT NULL,
	positions INTEGER NOT NULL,
	trades_executed INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_equity_time ON equity(time);
`
