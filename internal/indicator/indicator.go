// Package indicator holds the pure numeric functions the bot derives its
// signals from. All functions degrade gracefully on insufficient data instead
// of returning errors; the documented defaults are a contract relied on by the
// state store and the strategies.
package indicator

import "math"

// WeightedAverage computes an exponentially weighted mean over the whole
// window. The first sample is the anchor with coefficient 1 and each later
// sample compounds by base 2^(1/(n-1)), so recent samples dominate. Returns 0
// for an empty sequence and the single value for length 1.
//
// This is a fixed-window weighted mean recomputed fresh each call, not a
// streaming EMA.
func WeightedAverage(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return values[0]
	}
	base := math.Pow(2, 1/float64(n-1))
	coe := 1.0
	var sum, coeSum float64
	for _, v := range values {
		sum += v * coe
		coeSum += coe
		coe *= base
	}
	return sum / coeSum
}

// SimpleAverage computes the arithmetic mean. Returns 0 for an empty sequence.
func SimpleAverage(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// EMAStep applies one step of the exponential moving average recurrence:
// multiplier = 2/(period+1), newEMA = price*multiplier + prev*(1-multiplier).
// This is the incremental form used for streaming updates.
func EMAStep(prevEMA, price float64, period int) float64 {
	multiplier := 2 / float64(period+1)
	return price*multiplier + prevEMA*(1-multiplier)
}

// EMAFromSeries bootstraps an EMA with the simple average of the first period
// values, then applies EMAStep for each subsequent value. When the series is
// shorter than period it returns the last value (0 when empty); that
// degenerate warm-up behavior is load-bearing for the crossover strategies and
// must not change.
func EMAFromSeries(values []float64, period int) float64 {
	if len(values) == 0 {
		return 0
	}
	if len(values) < period {
		return values[len(values)-1]
	}
	ema := SimpleAverage(values[:period])
	for _, v := range values[period:] {
		ema = EMAStep(ema, v, period)
	}
	return ema
}

// RSI computes the Relative Strength Index over the last period price
// changes. Needs at least period+1 prices, otherwise it returns the neutral
// 50.0. A window with zero average loss returns 100.0. The result is rounded
// to 2 decimals.
func RSI(prices []float64, period int) float64 {
	if len(prices) < period+1 {
		return 50.0
	}

	changes := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		changes = append(changes, prices[i]-prices[i-1])
	}

	var avgGain, avgLoss float64
	for _, change := range changes[len(changes)-period:] {
		if change > 0 {
			avgGain += change
		} else {
			avgLoss -= change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	if avgLoss == 0 {
		return 100.0
	}

	rs := avgGain / avgLoss
	rsi := 100 - 100/(1+rs)
	return math.Round(rsi*100) / 100
}

// MACDLine computes the MACD line: EMA(fast) - EMA(slow) over the series.
func MACDLine(prices []float64, fast, slow int) float64 {
	return EMAFromSeries(prices, fast) - EMAFromSeries(prices, slow)
}

// SignalLine smooths a rolling history of MACD-line values with an EMA of the
// given period. The caller maintains the history across candles; feeding a
// single-point series collapses the signal line onto the MACD line.
func SignalLine(macdHistory []float64, period int) float64 {
	return EMAFromSeries(macdHistory, period)
}
