package ports

import (
	"context"
	"time"

	"github.com/theHarlequins/binance-futures-bot-algotrading/internal/domain"
)

// OrderResponse represents the essential details returned after placing or
// canceling an order.
type OrderResponse struct {
	OrderID       int64     // Exchange's order ID
	Symbol        string    // Symbol for the order
	ClientOrderID string    // User-defined order ID
	Price         float64   // Price of the order (0 for market orders initially)
	AvgPrice      float64   // Average filled price
	OrigQuantity  float64   // Original quantity requested
	ExecutedQty   float64   // Quantity filled
	Status        string    // Order status (e.g., NEW, FILLED, CANCELED)
	Type          string    // Order type (e.g., MARKET, STOP_MARKET)
	Side          string    // Order side (BUY, SELL)
	PositionSide  string    // Position side (LONG, SHORT, BOTH)
	Timestamp     time.Time // Time the order response was generated
}

// AccountBalance holds the balance view for one asset.
type AccountBalance struct {
	Asset         string  // Asset symbol (e.g., "USDT")
	Available     float64 // Balance available for new orders
	Total         float64 // Wallet balance
	UnrealizedPnL float64 // Unrealized profit across open positions
}

// PositionRisk represents one exchange-reported position. Under hedge mode the
// exchange returns one entry per side.
type PositionRisk struct {
	Symbol           string              // Symbol of the position
	PositionSide     domain.PositionSide // LONG or SHORT
	PositionAmt      float64             // Position size (always >= 0 here; direction is PositionSide)
	EntryPrice       float64             // Average entry price
	MarkPrice        float64             // Current mark price
	UnRealizedProfit float64             // Unrealized profit/loss
	LiquidationPrice float64             // Estimated liquidation price
	Leverage         int                 // Current leverage for the symbol
}

// ExchangeClient is the narrow interface the core uses to talk to the
// exchange. Every call may fail with a transport error; the core retries up
// to its budget and never retries here.
type ExchangeClient interface {
	// SetServerTime synchronizes the client's clock offset with the exchange.
	SetServerTime(ctx context.Context) error

	// Ping checks connectivity to the exchange API.
	Ping(ctx context.Context) error

	// GetServerTime retrieves the current exchange server time.
	GetServerTime(ctx context.Context) (time.Time, error)

	// GetKlines retrieves the most recent closed candles for the symbol.
	GetKlines(ctx context.Context, symbol, interval string, limit int) ([]*domain.Candle, error)

	// GetLastPrice retrieves the last traded price for the symbol.
	GetLastPrice(ctx context.Context, symbol string) (float64, error)

	// GetAccountBalance retrieves the balance view for one asset.
	GetAccountBalance(ctx context.Context, asset string) (AccountBalance, error)

	// SetLeverage sets the leverage for the symbol.
	SetLeverage(ctx context.Context, symbol string, leverage int) error

	// SetPositionMode switches the account between hedge (dual-side) and
	// one-way position mode. Setting the mode it is already in is not an error.
	SetPositionMode(ctx context.Context, hedge bool) error

	// PlaceMarketOrder places a market order on the given position side.
	PlaceMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, posSide domain.PositionSide, quantity string) (*OrderResponse, error)

	// PlaceStopMarketOrder places a reduce-only stop-market order for the
	// given quantity on the given position side. It reduces at most the
	// quantity requested, never the whole side.
	PlaceStopMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, posSide domain.PositionSide, quantity, stopPrice string) (*OrderResponse, error)

	// PlaceTakeProfitMarketOrder places a reduce-only take-profit-market
	// order for the given quantity on the given position side.
	PlaceTakeProfitMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, posSide domain.PositionSide, quantity, stopPrice string) (*OrderResponse, error)

	// CancelOrder cancels an open order by its exchange ID.
	CancelOrder(ctx context.Context, symbol string, orderID int64) (*OrderResponse, error)

	// GetOpenOrders lists the IDs of all currently open orders for the symbol.
	GetOpenOrders(ctx context.Context, symbol string) ([]int64, error)

	// GetPositionRisk retrieves exchange-reported positions for the symbol.
	// Sides with zero size are omitted; an empty slice means flat.
	GetPositionRisk(ctx context.Context, symbol string) ([]*PositionRisk, error)
}
