// Package risk computes order quantities and bracket price levels. It is the
// only place the wallet-usage fraction, leverage, and exchange precision
// rules are applied, so every entry the bot places is sized consistently.
package risk

import (
	"fmt"
	"math"

	"github.com/theHarlequins/binance-futures-bot-algotrading/internal/domain"
)

// SizerConfig holds the account-level sizing parameters, fixed for a run.
type SizerConfig struct {
	WalletUsagePct    float64 // share of total balance committed per position, in percent
	Leverage          int     // position leverage
	QuantityPrecision int     // decimal digits the exchange accepts for quantity
	PricePrecision    int     // decimal digits the exchange accepts for prices
}

// Sizer turns balances and prices into order parameters.
type Sizer struct {
	cfg SizerConfig
}

// NewSizer validates the configuration and builds a sizer.
func NewSizer(cfg SizerConfig) (*Sizer, error) {
	if cfg.WalletUsagePct <= 0 || cfg.WalletUsagePct > 100 {
		return nil, fmt.Errorf("wallet usage must be in (0, 100], got %v", cfg.WalletUsagePct)
	}
	if cfg.Leverage < 1 {
		return nil, fmt.Errorf("leverage must be at least 1, got %d", cfg.Leverage)
	}
	if cfg.QuantityPrecision < 0 || cfg.PricePrecision < 0 {
		return nil, fmt.Errorf("precision digits cannot be negative")
	}
	return &Sizer{cfg: cfg}, nil
}

// PositionQuantity computes the contract quantity for a new entry from the
// total account balance and the current price, rounded down to the configured
// precision. A quantity that rounds to zero is an error: a position record
// with zero quantity must never exist.
func (s *Sizer) PositionQuantity(totalBalance, price float64) (float64, error) {
	if price <= 0 {
		return 0, fmt.Errorf("cannot size position at non-positive price %v", price)
	}
	if totalBalance <= 0 {
		return 0, fmt.Errorf("cannot size position with non-positive balance %v", totalBalance)
	}

	notional := totalBalance * s.cfg.WalletUsagePct / 100 * float64(s.cfg.Leverage)
	qty := roundDown(notional/price, s.cfg.QuantityPrecision)
	if qty <= 0 {
		return 0, fmt.Errorf("computed quantity rounds to zero (balance %v, price %v)", totalBalance, price)
	}
	return qty, nil
}

// BracketPrices computes the take-profit and stop-loss trigger prices off the
// entry fill. tpPct is positive and slPct negative; percentages are applied in
// the direction of the position, so a short's take profit sits below entry.
func (s *Sizer) BracketPrices(side domain.PositionSide, entryPrice, tpPct, slPct float64) (tp, sl float64) {
	if side == domain.Short {
		tpPct, slPct = -tpPct, -slPct
	}
	tp = roundTo(entryPrice*(1+tpPct/100), s.cfg.PricePrecision)
	sl = roundTo(entryPrice*(1+slPct/100), s.cfg.PricePrecision)
	return tp, sl
}

// FormatQuantity renders a quantity with the exchange's precision.
func (s *Sizer) FormatQuantity(qty float64) string {
	return fmt.Sprintf("%.*f", s.cfg.QuantityPrecision, qty)
}

// FormatPrice renders a price with the exchange's precision.
func (s *Sizer) FormatPrice(price float64) string {
	return fmt.Sprintf("%.*f", s.cfg.PricePrecision, price)
}

func roundDown(v float64, digits int) float64 {
	scale := math.Pow(10, float64(digits))
	return math.Floor(v*scale) / scale
}

func roundTo(v float64, digits int) float64 {
	scale := math.Pow(10, float64(digits))
	return math.Round(v*scale) / scale
}
