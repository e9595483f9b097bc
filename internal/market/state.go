// Package market maintains the rolling indicator state for the one tracked
// contract and timeframe: a bounded window of close prices, the derived
// indicator values recomputed once per closed candle, and the previous
// candle's values needed for crossover detection. The state round-trips
// through a versioned snapshot so a restart resumes without refetching full
// history.
package market

import (
	"fmt"
	"time"

	"github.com/theHarlequins/binance-futures-bot-algotrading/internal/domain"
	"github.com/theHarlequins/binance-futures-bot-algotrading/internal/indicator"
	"github.com/theHarlequins/binance-futures-bot-algotrading/internal/ports"
)

// SnapshotVersion tags persisted indicator state so stale or foreign files
// are detected instead of silently misread.
const SnapshotVersion = 1

// DefaultCapacity bounds the recent-candle window.
const DefaultCapacity = 100

// State is the single authoritative indicator state store. It is owned
// exclusively by the scheduler loop; external readers get copies via
// Snapshot.
type State struct {
	symbol    string
	timeframe domain.Timeframe
	capacity  int
	set       IndicatorSet

	candleOpenTime  time.Time
	candleCloseTime time.Time
	lastClosePrice  float64
	closePrices     []float64
	derived         map[string]float64
	prev            map[string]float64
	macdHistory     map[string][]float64
}

// NewState creates a zero-state store for one symbol/timeframe. The set lists
// every indicator the enabled strategies need; capacity <= 0 selects the
// default window size.
func NewState(symbol string, tf domain.Timeframe, capacity int, set IndicatorSet) *State {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &State{
		symbol:      symbol,
		timeframe:   tf,
		capacity:    capacity,
		set:         set,
		closePrices: make([]float64, 0, capacity),
		derived:     map[string]float64{},
		prev:        map[string]float64{},
		macdHistory: map[string][]float64{},
	}
}

// Symbol returns the tracked contract symbol.
func (s *State) Symbol() string { return s.symbol }

// Timeframe returns the tracked candle interval.
func (s *State) Timeframe() domain.Timeframe { return s.timeframe }

// LastClose returns the close price of the newest processed candle.
func (s *State) LastClose() float64 { return s.lastClosePrice }

// LastCloseTime returns the close timestamp of the newest processed candle.
// Zero for a cold store.
func (s *State) LastCloseTime() time.Time { return s.candleCloseTime }

// WindowLen returns how many closes the rolling window currently holds.
func (s *State) WindowLen() int { return len(s.closePrices) }

// Value returns the current derived value for a key, if computed.
func (s *State) Value(key string) (float64, bool) {
	v, ok := s.derived[key]
	return v, ok
}

// PrevValue returns the derived value as of the previous candle, if any.
func (s *State) PrevValue(key string) (float64, bool) {
	v, ok := s.prev[key]
	return v, ok
}

// IsNewCandle reports whether a candle boundary has been crossed since the
// last processed candle. It is true exactly once per boundary: once the new
// closed candle is fed through OnCandleClose, re-invocations within the same
// interval return false, which keeps the sub-second poll loop idempotent.
func (s *State) IsNewCandle(now time.Time) bool {
	lastClosedOpen := s.timeframe.Floor(now).Add(-s.timeframe.Duration())
	return s.candleOpenTime.Before(lastClosedOpen)
}

// OnCandleClose appends a closed candle to the window, evicts the oldest
// entry beyond capacity, and recomputes every configured indicator. Derived
// values are swapped in atomically: the maps are rebuilt in full before they
// replace the old ones, so readers never observe a partial update. Candles at
// or before the last processed close time are ignored.
func (s *State) OnCandleClose(c *domain.Candle) {
	if !c.IsFinal {
		return
	}
	if !s.candleCloseTime.IsZero() && !c.CloseTime.After(s.candleCloseTime) {
		return
	}

	s.closePrices = append(s.closePrices, c.Close)
	if len(s.closePrices) > s.capacity {
		s.closePrices = s.closePrices[len(s.closePrices)-s.capacity:]
	}

	next := make(map[string]float64, len(s.set.EMAPeriods)+len(s.set.RSIPeriods)+2*len(s.set.MACDs))
	for _, p := range s.set.EMAPeriods {
		next[EMAKey(p)] = indicator.EMAFromSeries(s.closePrices, p)
	}
	for _, p := range s.set.RSIPeriods {
		next[RSIKey(p)] = indicator.RSI(s.closePrices, p)
	}
	for _, m := range s.set.MACDs {
		line := indicator.MACDLine(s.closePrices, m.Fast, m.Slow)
		histKey := MACDLineKey(m)
		hist := append(s.macdHistory[histKey], line)
		if len(hist) > s.capacity {
			hist = hist[len(hist)-s.capacity:]
		}
		s.macdHistory[histKey] = hist
		next[histKey] = line
		next[MACDSignalKey(m)] = indicator.SignalLine(hist, m.Signal)
	}

	s.prev = s.derived
	s.derived = next
	s.candleOpenTime = c.OpenTime
	s.candleCloseTime = c.CloseTime
	s.lastClosePrice = c.Close
}

// Snapshot builds the persisted form of the full state. The returned value
// shares no memory with the live store.
func (s *State) Snapshot() *ports.IndicatorSnapshot {
	snap := &ports.IndicatorSnapshot{
		Version:         SnapshotVersion,
		Symbol:          s.symbol,
		Timeframe:       s.timeframe,
		CandleOpenTime:  s.candleOpenTime,
		CandleCloseTime: s.candleCloseTime,
		LastClosePrice:  s.lastClosePrice,
		ClosePrices:     append([]float64(nil), s.closePrices...),
		Derived:         copyFloatMap(s.derived),
		Prev:            copyFloatMap(s.prev),
		MacdHistory:     make(map[string][]float64, len(s.macdHistory)),
	}
	for k, v := range s.macdHistory {
		snap.MacdHistory[k] = append([]float64(nil), v...)
	}
	return snap
}

// Restore loads a snapshot into the store. A version, symbol, or timeframe
// mismatch returns ErrStateCorrupted; the caller resets to zero state rather
// than failing startup.
func (s *State) Restore(snap *ports.IndicatorSnapshot) error {
	if snap.Version != SnapshotVersion {
		return fmt.Errorf("%w: indicator snapshot version %d, expected %d", ports.ErrStateCorrupted, snap.Version, SnapshotVersion)
	}
	if snap.Symbol != s.symbol || snap.Timeframe != s.timeframe {
		return fmt.Errorf("%w: indicator snapshot is for %s/%s, store tracks %s/%s",
			ports.ErrStateCorrupted, snap.Symbol, snap.Timeframe, s.symbol, s.timeframe)
	}

	s.candleOpenTime = snap.CandleOpenTime
	s.candleCloseTime = snap.CandleCloseTime
	s.lastClosePrice = snap.LastClosePrice
	s.closePrices = append([]float64(nil), snap.ClosePrices...)
	if len(s.closePrices) > s.capacity {
		s.closePrices = s.closePrices[len(s.closePrices)-s.capacity:]
	}
	s.derived = copyFloatMap(snap.Derived)
	s.prev = copyFloatMap(snap.Prev)
	s.macdHistory = make(map[string][]float64, len(snap.MacdHistory))
	for k, v := range snap.MacdHistory {
		s.macdHistory[k] = append([]float64(nil), v...)
	}
	return nil
}

// Reset clears the store back to the documented zero state: empty window,
// zero timestamps, no derived values.
func (s *State) Reset() {
	s.candleOpenTime = time.Time{}
	s.candleCloseTime = time.Time{}
	s.lastClosePrice = 0
	s.closePrices = s.closePrices[:0]
	s.derived = map[string]float64{}
	s.prev = map[string]float64{}
	s.macdHistory = map[string][]float64{}
}

func copyFloatMap(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
