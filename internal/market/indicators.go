package market

import "fmt"

// MACDSpec parameterizes one MACD computation.
type MACDSpec struct {
	Fast   int
	Slow   int
	Signal int
}

// IndicatorSet is the union of indicator computations the enabled strategies
// need from the state store. Duplicate entries are deduplicated so strategies
// sharing a period share one computation.
type IndicatorSet struct {
	EMAPeriods []int
	RSIPeriods []int
	MACDs      []MACDSpec
}

// Merge folds another set into this one, skipping duplicates.
func (s *IndicatorSet) Merge(other IndicatorSet) {
	for _, p := range other.EMAPeriods {
		if !containsInt(s.EMAPeriods, p) {
			s.EMAPeriods = append(s.EMAPeriods, p)
		}
	}
	for _, p := range other.RSIPeriods {
		if !containsInt(s.RSIPeriods, p) {
			s.RSIPeriods = append(s.RSIPeriods, p)
		}
	}
	for _, m := range other.MACDs {
		if !containsMACD(s.MACDs, m) {
			s.MACDs = append(s.MACDs, m)
		}
	}
}

func containsInt(xs []int, x int) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

func containsMACD(xs []MACDSpec, x MACDSpec) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

// Derived-value keys. Strategies read indicator values from the store by
// these names; they also appear as-is in the persisted snapshot.

// EMAKey names an EMA derived value, e.g. "ema_20".
func EMAKey(period int) string {
	return fmt.Sprintf("ema_%d", period)
}

// RSIKey names an RSI derived value, e.g. "rsi_14".
func RSIKey(period int) string {
	return fmt.Sprintf("rsi_%d", period)
}

// MACDLineKey names the MACD line for a fast/slow pair, e.g. "macd_line_12_26".
func MACDLineKey(spec MACDSpec) string {
	return fmt.Sprintf("macd_line_%d_%d", spec.Fast, spec.Slow)
}

// MACDSignalKey names the smoothed signal line, e.g. "macd_signal_12_26_9".
func MACDSignalKey(spec MACDSpec) string {
	return fmt.Sprintf("macd_signal_%d_%d_%d", spec.Fast, spec.Slow, spec.Signal)
}
