// Package sqlite archives closed positions so realized P/L survives restarts
// and feeds the status surface.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/theHarlequins/binance-futures-bot-algotrading/internal/domain"
	"github.com/theHarlequins/binance-futures-bot-algotrading/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Repository implements ports.TradeRepository using SQLite.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository opens (and if needed creates) the trade archive database.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/trading_bot.db"
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating data directory for %s: %v", ports.ErrDBConnection, dbPath, err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("%w: opening database at %s: %v", ports.ErrDBConnection, dbPath, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: pinging database at %s: %v", ports.ErrDBConnection, dbPath, err)
	}

	// SQLite serializes writers internally; one connection avoids lock churn.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	repo := &Repository{db: db, logger: cfg.Logger}
	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: initializing schema: %v", ports.ErrDBConnection, err)
	}
	cfg.Logger.Info(context.Background(), "Trade archive opened", map[string]interface{}{"path": dbPath})
	return repo, nil
}

func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS trade_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		strategy_id INTEGER NOT NULL,
		side TEXT NOT NULL,
		entry_price REAL NOT NULL,
		exit_price REAL NOT NULL,
		quantity REAL NOT NULL,
		leverage INTEGER NOT NULL,
		pnl REAL NOT NULL,
		entry_time TIMESTAMP NOT NULL,
		exit_time TIMESTAMP NOT NULL,
		close_reason TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_trade_history_symbol_exit_time ON trade_history (symbol, exit_time);
	`
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// CreateTrade saves a new trade record and returns its assigned ID.
func (r *Repository) CreateTrade(ctx context.Context, trade *domain.Trade) (int64, error) {
	const query = `
	INSERT INTO trade_history (symbol, strategy_id, side, entry_price, exit_price, quantity, leverage, pnl, entry_time, exit_time, close_reason)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := r.db.ExecContext(ctx, query,
		trade.Symbol, trade.StrategyID, trade.Side, trade.EntryPrice, trade.ExitPrice,
		trade.Quantity, trade.Leverage, trade.PNL, trade.EntryTime, trade.ExitTime, trade.CloseReason)
	if err != nil {
		return 0, fmt.Errorf("%w: inserting trade for %s: %v", ports.ErrQueryFailed, trade.Symbol, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%w: reading trade id: %v", ports.ErrQueryFailed, err)
	}
	return id, nil
}

// FindBySymbol retrieves the most recent trades for a symbol, up to limit.
func (r *Repository) FindBySymbol(ctx context.Context, symbol string, limit int) ([]*domain.Trade, error) {
	const query = `
	SELECT id, symbol, strategy_id, side, entry_price, exit_price, quantity, leverage, pnl, entry_time, exit_time, close_reason
	FROM trade_history WHERE symbol = ? ORDER BY exit_time DESC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: querying trades for %s: %v", ports.ErrQueryFailed, symbol, err)
	}
	defer rows.Close()

	var trades []*domain.Trade
	for rows.Next() {
		t := &domain.Trade{}
		if err := rows.Scan(&t.ID, &t.Symbol, &t.StrategyID, &t.Side, &t.EntryPrice, &t.ExitPrice,
			&t.Quantity, &t.Leverage, &t.PNL, &t.EntryTime, &t.ExitTime, &t.CloseReason); err != nil {
			return nil, fmt.Errorf("%w: scanning trade row: %v", ports.ErrQueryFailed, err)
		}
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating trade rows: %v", ports.ErrQueryFailed, err)
	}
	return trades, nil
}

// GetTotalProfit sums realized PNL across all archived trades for a symbol.
func (r *Repository) GetTotalProfit(ctx context.Context, symbol string) (float64, error) {
	const query = `SELECT COALESCE(SUM(pnl), 0) FROM trade_history WHERE symbol = ?`
	var total float64
	if err := r.db.QueryRowContext(ctx, query, symbol).Scan(&total); err != nil {
		return 0, fmt.Errorf("%w: summing pnl for %s: %v", ports.ErrQueryFailed, symbol, err)
	}
	return total, nil
}
