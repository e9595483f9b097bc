package ports

import (
	"context"

	"github.com/theHarlequins/binance-futures-bot-algotrading/internal/domain"
)

// TradeRepository archives fully closed positions.
type TradeRepository interface {
	// CreateTrade saves a new trade record and returns its assigned ID.
	CreateTrade(ctx context.Context, trade *domain.Trade) (int64, error)
	// FindBySymbol retrieves the most recent trades for a symbol, up to limit.
	FindBySymbol(ctx context.Context, symbol string, limit int) ([]*domain.Trade, error)
	// GetTotalProfit sums realized PNL across all archived trades for a symbol.
	GetTotalProfit(ctx context.Context, symbol string) (float64, error)
}
