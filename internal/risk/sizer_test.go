package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theHarlequins/binance-futures-bot-algotrading/internal/domain"
)

func newTestSizer(t *testing.T) *Sizer {
	t.Helper()
	s, err := NewSizer(SizerConfig{
		WalletUsagePct:    50,
		Leverage:          2,
		QuantityPrecision: 3,
		PricePrecision:    2,
	})
	require.NoError(t, err)
	return s
}

func TestNewSizer(t *testing.T) {
	cases := []struct {
		name string
		cfg  SizerConfig
	}{
		{"zero wallet usage", SizerConfig{WalletUsagePct: 0, Leverage: 1}},
		{"wallet usage above 100", SizerConfig{WalletUsagePct: 101, Leverage: 1}},
		{"zero leverage", SizerConfig{WalletUsagePct: 50, Leverage: 0}},
		{"negative precision", SizerConfig{WalletUsagePct: 50, Leverage: 1, QuantityPrecision: -1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewSizer(tc.cfg)
			assert.Error(t, err)
		})
	}
}

func TestPositionQuantity(t *testing.T) {
	s := newTestSizer(t)

	t.Run("applies wallet usage and leverage", func(t *testing.T) {
		// 1000 * 50% * 2x / 100 = 10
		qty, err := s.PositionQuantity(1000, 100)
		require.NoError(t, err)
		assert.Equal(t, 10.0, qty)
	})

	t.Run("rounds down to the exchange precision", func(t *testing.T) {
		// 1000 * 50% * 2x / 30000 = 0.033333...
		qty, err := s.PositionQuantity(1000, 30000)
		require.NoError(t, err)
		assert.Equal(t, 0.033, qty)
	})

	t.Run("quantity rounding to zero is an error", func(t *testing.T) {
		_, err := s.PositionQuantity(0.01, 100000)
		assert.Error(t, err)
	})

	t.Run("rejects non-positive inputs", func(t *testing.T) {
		_, err := s.PositionQuantity(0, 100)
		assert.Error(t, err)
		_, err = s.PositionQuantity(1000, 0)
		assert.Error(t, err)
	})
}

func TestBracketPrices(t *testing.T) {
	s := newTestSizer(t)

	t.Run("long brackets straddle the entry", func(t *testing.T) {
		tp, sl := s.BracketPrices(domain.Long, 100, 2, -1)
		assert.Equal(t, 102.0, tp)
		assert.Equal(t, 99.0, sl)
	})

	t.Run("short brackets are mirrored", func(t *testing.T) {
		tp, sl := s.BracketPrices(domain.Short, 100, 2, -1)
		assert.Equal(t, 98.0, tp)
		assert.Equal(t, 101.0, sl)
	})

	t.Run("prices are rounded to the price precision", func(t *testing.T) {
		tp, _ := s.BracketPrices(domain.Long, 33333.333, 1.5, -1)
		assert.Equal(t, 33833.33, tp)
	})
}

func TestFormatting(t *testing.T) {
	s := newTestSizer(t)
	assert.Equal(t, "0.033", s.FormatQuantity(0.033))
	assert.Equal(t, "102.00", s.FormatPrice(102))
}
