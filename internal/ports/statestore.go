package ports

import (
	"context"
	"time"

	"github.com/theHarlequins/binance-futures-bot-algotrading/internal/domain"
)

// IndicatorSnapshot is the persisted form of the indicator state store.
// Version guards against silently misreading stale or foreign files.
type IndicatorSnapshot struct {
	Version         int                  `json:"version"`
	Symbol          string               `json:"symbol"`
	Timeframe       domain.Timeframe     `json:"timeframe"`
	CandleOpenTime  time.Time            `json:"candle_open_time"`
	CandleCloseTime time.Time            `json:"candle_close_time"`
	LastClosePrice  float64              `json:"last_close_price"`
	ClosePrices     []float64            `json:"close_prices"`
	Derived         map[string]float64   `json:"derived"`
	Prev            map[string]float64   `json:"prev"`
	MacdHistory     map[string][]float64 `json:"macd_history"`
}

// OrderSnapshot is the persisted form of the order state machine: every live
// position record plus the set of order IDs not yet confirmed filled or
// canceled, keyed for orphan detection.
type OrderSnapshot struct {
	Version      int                               `json:"version"`
	Symbol       string                            `json:"symbol"`
	Positions    map[string]*domain.PositionRecord `json:"positions"` // key: "strategyID:SIDE"
	OpenOrderIDs []int64                           `json:"open_order_ids"`
}

// StateStore is the persistence gateway contract. Load returns ErrNotFound
// when nothing has been persisted yet and ErrStateCorrupted when the blob is
// unreadable or carries an unexpected version; callers recover by resetting
// to a zero state, never by crashing.
type StateStore interface {
	LoadIndicatorState(ctx context.Context) (*IndicatorSnapshot, error)
	SaveIndicatorState(ctx context.Context, snap *IndicatorSnapshot) error
	LoadOrderState(ctx context.Context) (*OrderSnapshot, error)
	SaveOrderState(ctx context.Context, snap *OrderSnapshot) error
}
