package domain

import (
	"fmt"
	"time"
)

// PositionKey identifies the owner of a position record. Under hedge mode one
// record may exist per (strategy, side) pair; without hedge mode a strategy
// may hold at most one record on either side.
type PositionKey struct {
	StrategyID int
	Side       PositionSide
}

// String renders the key in the "id:SIDE" form used for persisted map keys.
func (k PositionKey) String() string {
	return fmt.Sprintf("%d:%s", k.StrategyID, k.Side)
}

// ParsePositionKey is the inverse of PositionKey.String.
func ParsePositionKey(s string) (PositionKey, error) {
	var id int
	var side string
	if _, err := fmt.Sscanf(s, "%d:%s", &id, &side); err != nil {
		return PositionKey{}, fmt.Errorf("malformed position key %q: %w", s, err)
	}
	ps := PositionSide(side)
	if ps != Long && ps != Short {
		return PositionKey{}, fmt.Errorf("malformed position key %q: bad side", s)
	}
	return PositionKey{StrategyID: id, Side: ps}, nil
}

// PositionRecord is the bot's local view of one open position. The exchange is
// the source of truth for fills; records are a cache reconciled every cycle.
type PositionRecord struct {
	StrategyID   int            `json:"strategy_id"`
	Symbol       string         `json:"symbol"`
	Side         PositionSide   `json:"side"`
	Quantity     float64        `json:"quantity"`
	EntryPrice   float64        `json:"entry_price"`
	EntryTime    time.Time      `json:"entry_time"`
	Leverage     int            `json:"leverage"`
	TakeProfit   float64        `json:"take_profit"`
	StopLoss     float64        `json:"stop_loss"`
	EntryOrderID int64          `json:"entry_order_id"`
	TPOrderID    int64          `json:"tp_order_id"`
	SLOrderID    int64          `json:"sl_order_id"`
	Status       PositionStatus `json:"status"`
}

// Key returns the (strategy, side) key owning this record.
func (p *PositionRecord) Key() PositionKey {
	return PositionKey{StrategyID: p.StrategyID, Side: p.Side}
}

// PNL computes the realized profit for an exit at the given price.
func (p *PositionRecord) PNL(exitPrice float64) float64 {
	if p.Side == Short {
		return (p.EntryPrice - exitPrice) * p.Quantity
	}
	return (exitPrice - p.EntryPrice) * p.Quantity
}

// Trade is an archived record of a fully closed position.
type Trade struct {
	ID          int64        // Assigned by the repository
	Symbol      string       // Trading symbol
	StrategyID  int          // Strategy that owned the position
	Side        PositionSide // LONG or SHORT
	EntryPrice  float64      // Average entry fill price
	ExitPrice   float64      // Exit price used for the P/L calculation
	Quantity    float64      // Position size
	Leverage    int          // Leverage at entry
	PNL         float64      // Realized profit and loss
	EntryTime   time.Time    // When the position was opened
	ExitTime    time.Time    // When the close was observed
	CloseReason CloseReason  // Why the position closed
}
