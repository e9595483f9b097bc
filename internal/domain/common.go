package domain

// OrderSide represents the side of an order (BUY or SELL).
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// PositionSide identifies the direction of a position under hedge mode.
// With hedge mode disabled the exchange reports a single BOTH side; the bot
// still tracks LONG/SHORT internally and maps at the adapter boundary.
type PositionSide string

const (
	Long  PositionSide = "LONG"
	Short PositionSide = "SHORT"
)

// Opposite returns the other position side.
func (s PositionSide) Opposite() PositionSide {
	if s == Long {
		return Short
	}
	return Long
}

// EntryOrderSide returns the order side that opens a position on this side.
func (s PositionSide) EntryOrderSide() OrderSide {
	if s == Long {
		return Buy
	}
	return Sell
}

// CloseOrderSide returns the order side that closes a position on this side.
func (s PositionSide) CloseOrderSide() OrderSide {
	if s == Long {
		return Sell
	}
	return Buy
}

// PositionStatus tracks where a position record is in its lifecycle.
// FLAT is implicit: no record exists for the (strategy, side) key.
type PositionStatus string

const (
	StatusOpening PositionStatus = "opening"
	StatusOpen    PositionStatus = "open"
	StatusClosing PositionStatus = "closing"
)

// CloseReason indicates why a position was closed.
type CloseReason string

const (
	CloseReasonStopLoss   CloseReason = "SL"
	CloseReasonTakeProfit CloseReason = "TP"
	CloseReasonExternal   CloseReason = "EXTERNAL" // closed on the exchange outside the bot (manual or liquidation)
	CloseReasonEmergency  CloseReason = "EMERGENCY"
	CloseReasonUnknown    CloseReason = "UNKNOWN"
)
