package strategy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theHarlequins/binance-futures-bot-algotrading/internal/domain"
	"github.com/theHarlequins/binance-futures-bot-algotrading/internal/market"
	"github.com/theHarlequins/binance-futures-bot-algotrading/internal/ports"
)

type mockLogger struct {
	infoMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.infoMsgs = append(m.infoMsgs, msg)
}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

// feedCloses drives a fresh state store with one candle per close price and
// invokes the strategy after each, returning the per-candle signals.
func feedCloses(t *testing.T, s Strategy, closes []float64) []Signal {
	t.Helper()
	tf := domain.TimeframeH1
	st := market.NewState("BTCUSDT", tf, market.DefaultCapacity, s.Indicators())
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	signals := make([]Signal, 0, len(closes))
	for i, close := range closes {
		open := base.Add(time.Duration(i) * tf.Duration())
		st.OnCandleClose(&domain.Candle{
			OpenTime:  open,
			CloseTime: open.Add(tf.Duration()),
			Symbol:    "BTCUSDT",
			Interval:  tf.Interval(),
			Open:      close,
			High:      close,
			Low:       close,
			Close:     close,
			Volume:    1,
			IsFinal:   true,
		})
		signals = append(signals, s.Evaluate(context.Background(), st))
	}
	return signals
}

func TestEmaCrossover(t *testing.T) {
	targets := Targets{TakeProfitPct: 2, StopLossPct: -1}

	t.Run("sixty rising closes fire exactly one long and no shorts", func(t *testing.T) {
		s, err := NewEmaCrossover(0, 20, 50, targets, &mockLogger{})
		require.NoError(t, err)

		closes := make([]float64, 60)
		for i := range closes {
			closes[i] = 100 + float64(i)
		}
		signals := feedCloses(t, s, closes)

		longs, shorts := 0, 0
		for _, sig := range signals {
			if sig.Long {
				longs++
			}
			if sig.Short {
				shorts++
			}
		}
		assert.Equal(t, 1, longs, "a sustained trend crosses once, never re-fires")
		assert.Equal(t, 0, shorts, "warm-up equality must not count as a cross")
	})

	t.Run("downtrend after uptrend fires a short", func(t *testing.T) {
		s, err := NewEmaCrossover(0, 3, 5, targets, &mockLogger{})
		require.NoError(t, err)

		closes := []float64{100, 101, 102, 103, 104, 105, 106, 104, 102, 100, 98, 96, 94}
		signals := feedCloses(t, s, closes)

		shorts := 0
		for _, sig := range signals {
			assert.False(t, sig.Long && sig.Short, "one candle never signals both sides")
			if sig.Short {
				shorts++
			}
		}
		assert.Equal(t, 1, shorts)
	})

	t.Run("no signal without previous values", func(t *testing.T) {
		s, err := NewEmaCrossover(0, 3, 5, targets, &mockLogger{})
		require.NoError(t, err)
		signals := feedCloses(t, s, []float64{100})
		assert.Equal(t, Signal{}, signals[0])
	})

	t.Run("rejects bad periods", func(t *testing.T) {
		_, err := NewEmaCrossover(0, 50, 20, targets, &mockLogger{})
		assert.Error(t, err)
		_, err = NewEmaCrossover(0, 0, 20, targets, &mockLogger{})
		assert.Error(t, err)
	})
}

func TestMacdCrossover(t *testing.T) {
	targets := Targets{TakeProfitPct: 1.5, StopLossPct: -1.5}

	t.Run("v-shaped series crosses long exactly once on the way up", func(t *testing.T) {
		s, err := NewMacdCrossover(2, 3, 5, 2, targets, &mockLogger{})
		require.NoError(t, err)

		var closes []float64
		for i := 0; i < 15; i++ {
			closes = append(closes, 100-float64(i))
		}
		for i := 1; i <= 15; i++ {
			closes = append(closes, 85+float64(i))
		}
		signals := feedCloses(t, s, closes)

		longsInRise := 0
		for i, sig := range signals {
			assert.False(t, sig.Long && sig.Short, "one candle never signals both sides")
			if i >= 15 && sig.Long {
				longsInRise++
			}
			if i >= 5 && i < 15 {
				assert.False(t, sig.Long, "no long while the trend is still falling (candle %d)", i)
			}
		}
		assert.Equal(t, 1, longsInRise)
	})

	t.Run("rejects bad periods", func(t *testing.T) {
		_, err := NewMacdCrossover(2, 26, 12, 9, targets, &mockLogger{})
		assert.Error(t, err)
		_, err = NewMacdCrossover(2, 12, 26, 0, targets, &mockLogger{})
		assert.Error(t, err)
	})
}

func TestRsiThreshold(t *testing.T) {
	targets := Targets{TakeProfitPct: 1.5, StopLossPct: -1}

	t.Run("pure uptrend pins RSI at the overbought level", func(t *testing.T) {
		s, err := NewRsiThreshold(4, 3, 30, 70, targets, &mockLogger{})
		require.NoError(t, err)

		signals := feedCloses(t, s, []float64{100, 101, 102, 103, 104, 105})
		last := signals[len(signals)-1]
		assert.True(t, last.Short)
		assert.False(t, last.Long)
	})

	t.Run("pure downtrend pins RSI at the oversold level", func(t *testing.T) {
		s, err := NewRsiThreshold(4, 3, 30, 70, targets, &mockLogger{})
		require.NoError(t, err)

		signals := feedCloses(t, s, []float64{105, 104, 103, 102, 101, 100})
		last := signals[len(signals)-1]
		assert.True(t, last.Long)
		assert.False(t, last.Short)
	})

	t.Run("neutral warm-up value never signals", func(t *testing.T) {
		s, err := NewRsiThreshold(4, 14, 30, 70, targets, &mockLogger{})
		require.NoError(t, err)

		// Window shorter than period+1: RSI sits at its neutral value and the
		// evaluator is gated regardless of thresholds.
		signals := feedCloses(t, s, []float64{100, 110, 120})
		for _, sig := range signals {
			assert.Equal(t, Signal{}, sig)
		}
	})

	t.Run("rejects inverted thresholds", func(t *testing.T) {
		_, err := NewRsiThreshold(4, 14, 70, 30, targets, &mockLogger{})
		assert.Error(t, err)
	})
}

func TestBuild(t *testing.T) {
	logger := &mockLogger{}

	t.Run("skips disabled slots and sorts ascending", func(t *testing.T) {
		configs := DefaultConfigs()
		configs[4].Enabled = true
		configs[2].Enabled = true

		built, err := Build(configs, logger)
		require.NoError(t, err)
		require.Len(t, built, 3)
		assert.Equal(t, 0, built[0].ID())
		assert.Equal(t, 2, built[1].ID())
		assert.Equal(t, 4, built[2].ID())
	})

	t.Run("slot kind follows the slot number", func(t *testing.T) {
		configs := DefaultConfigs()
		for i := range configs {
			configs[i].Enabled = true
		}
		built, err := Build(configs, logger)
		require.NoError(t, err)
		require.Len(t, built, NumSlots)

		assert.IsType(t, &EmaCrossover{}, built[0])
		assert.IsType(t, &EmaCrossover{}, built[1])
		assert.IsType(t, &MacdCrossover{}, built[2])
		assert.IsType(t, &MacdCrossover{}, built[3])
		assert.IsType(t, &RsiThreshold{}, built[4])
	})

	t.Run("invalid targets are configuration errors", func(t *testing.T) {
		configs := DefaultConfigs()
		configs[0].StopLossPct = 1 // must be negative
		_, err := Build(configs, logger)
		assert.ErrorIs(t, err, ports.ErrConfigurationError)
	})

	t.Run("unknown slot is a configuration error", func(t *testing.T) {
		_, err := Build([]Config{{ID: 7, Enabled: true, TakeProfitPct: 1, StopLossPct: -1}}, logger)
		assert.ErrorIs(t, err, ports.ErrConfigurationError)
	})
}

func TestRequiredIndicators(t *testing.T) {
	logger := &mockLogger{}
	configs := DefaultConfigs()
	for i := range configs {
		configs[i].Enabled = true
	}
	built, err := Build(configs, logger)
	require.NoError(t, err)

	set := RequiredIndicators(built)
	assert.ElementsMatch(t, []int{20, 50}, set.EMAPeriods, "shared EMA periods are deduplicated")
	assert.ElementsMatch(t, []int{14}, set.RSIPeriods)
	assert.ElementsMatch(t, []market.MACDSpec{{Fast: 12, Slow: 26, Signal: 9}}, set.MACDs)
}
