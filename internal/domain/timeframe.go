package domain

import (
	"fmt"
	"time"
)

// Timeframe is the candle interval governing how often strategies re-evaluate.
// The set is closed; anything else is a configuration error.
type Timeframe string

const (
	TimeframeM1  Timeframe = "m1"
	TimeframeM3  Timeframe = "m3"
	TimeframeM15 Timeframe = "m15"
	TimeframeH1  Timeframe = "h1"
	TimeframeH2  Timeframe = "h2"
	TimeframeH4  Timeframe = "h4"
	TimeframeD1  Timeframe = "d1"
)

var timeframes = map[Timeframe]struct {
	duration time.Duration
	interval string // Binance kline interval string
}{
	TimeframeM1:  {time.Minute, "1m"},
	TimeframeM3:  {3 * time.Minute, "3m"},
	TimeframeM15: {15 * time.Minute, "15m"},
	TimeframeH1:  {time.Hour, "1h"},
	TimeframeH2:  {2 * time.Hour, "2h"},
	TimeframeH4:  {4 * time.Hour, "4h"},
	TimeframeD1:  {24 * time.Hour, "1d"},
}

// ParseTimeframe validates a timeframe string against the closed set.
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(s)
	if _, ok := timeframes[tf]; !ok {
		return "", fmt.Errorf("unknown timeframe %q", s)
	}
	return tf, nil
}

// Duration returns the wall-clock length of one candle.
func (tf Timeframe) Duration() time.Duration {
	return timeframes[tf].duration
}

// Interval returns the Binance kline interval string (e.g., "1h").
func (tf Timeframe) Interval() string {
	return timeframes[tf].interval
}

// Floor truncates t down to the open time of the candle containing it.
func (tf Timeframe) Floor(t time.Time) time.Time {
	return t.Truncate(tf.Duration())
}
