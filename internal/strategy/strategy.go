// Package strategy holds the five entry-signal evaluators. Each strategy is a
// pure predicate pair over the market state: should a long open, should a
// short open. The set is closed (EMA crossover, MACD crossover, RSI
// threshold), each variant carrying its own parameters. Dispatch happens
// through one uniform interface, never by branching on numeric IDs.
package strategy

import (
	"context"
	"fmt"
	"sort"

	"github.com/theHarlequins/binance-futures-bot-algotrading/internal/market"
	"github.com/theHarlequins/binance-futures-bot-algotrading/internal/ports"
)

// Signal is the per-side open decision produced by one evaluation.
type Signal struct {
	Long  bool
	Short bool
}

// Strategy is one independently parameterized entry evaluator.
type Strategy interface {
	// ID returns the fixed strategy slot (0..4).
	ID() int
	// Name returns a short human-readable name for logging.
	Name() string
	// Indicators lists the derived values this strategy reads from the store.
	Indicators() market.IndicatorSet
	// Evaluate produces the open-signal pair for the current market state.
	// Strategies never mutate state and never fail; missing indicator values
	// degrade to a no-op signal.
	Evaluate(ctx context.Context, st *market.State) Signal
	// Targets returns the bracket percentages for positions this strategy opens.
	Targets() Targets
}

// Targets holds the bracket-order percentages off the entry fill price.
// StopLossPct is negative (a loss), TakeProfitPct positive.
type Targets struct {
	TakeProfitPct float64
	StopLossPct   float64
}

// Config is the run-time configuration for one strategy slot, supplied once
// at bot start. Slots 0/1 are EMA crossover, 2/3 MACD crossover, 4 RSI
// threshold; only the parameters for the slot's kind are read.
type Config struct {
	ID            int     `yaml:"id"`
	Enabled       bool    `yaml:"enabled"`
	TakeProfitPct float64 `yaml:"take_profit_pct"`
	StopLossPct   float64 `yaml:"stop_loss_pct"`

	EmaFast int `yaml:"ema_fast"`
	EmaSlow int `yaml:"ema_slow"`

	MacdFast   int `yaml:"macd_fast"`
	MacdSlow   int `yaml:"macd_slow"`
	MacdSignal int `yaml:"macd_signal"`

	RsiPeriod     int     `yaml:"rsi_period"`
	RsiOversold   float64 `yaml:"rsi_oversold"`
	RsiOverbought float64 `yaml:"rsi_overbought"`
}

// NumSlots is the fixed number of strategy slots.
const NumSlots = 5

// Build turns the configured slots into evaluators, skipping disabled ones.
// The result is sorted ascending by ID so evaluation order is deterministic.
func Build(configs []Config, logger ports.Logger) ([]Strategy, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required to build strategies")
	}

	var out []Strategy
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		s, err := build(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("%w: strategy %d: %v", ports.ErrConfigurationError, cfg.ID, err)
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out, nil
}

func build(cfg Config, logger ports.Logger) (Strategy, error) {
	if cfg.TakeProfitPct <= 0 {
		return nil, fmt.Errorf("take profit pct must be positive, got %v", cfg.TakeProfitPct)
	}
	if cfg.StopLossPct >= 0 {
		return nil, fmt.Errorf("stop loss pct must be negative, got %v", cfg.StopLossPct)
	}
	targets := Targets{TakeProfitPct: cfg.TakeProfitPct, StopLossPct: cfg.StopLossPct}

	switch cfg.ID {
	case 0, 1:
		return NewEmaCrossover(cfg.ID, cfg.EmaFast, cfg.EmaSlow, targets, logger)
	case 2, 3:
		return NewMacdCrossover(cfg.ID, cfg.MacdFast, cfg.MacdSlow, cfg.MacdSignal, targets, logger)
	case 4:
		return NewRsiThreshold(cfg.ID, cfg.RsiPeriod, cfg.RsiOversold, cfg.RsiOverbought, targets, logger)
	default:
		return nil, fmt.Errorf("unknown strategy slot %d", cfg.ID)
	}
}

// RequiredIndicators merges the indicator needs of all built strategies into
// one deduplicated set for the state store.
func RequiredIndicators(strategies []Strategy) market.IndicatorSet {
	var set market.IndicatorSet
	for _, s := range strategies {
		set.Merge(s.Indicators())
	}
	return set
}

// DefaultConfigs returns the stock five-slot configuration: two EMA-crossover
// slots with narrow and wide targets, two MACD-crossover slots, one RSI slot.
func DefaultConfigs() []Config {
	return []Config{
		{ID: 0, Enabled: true, TakeProfitPct: 2, StopLossPct: -1, EmaFast: 20, EmaSlow: 50},
		{ID: 1, Enabled: false, TakeProfitPct: 3, StopLossPct: -1, EmaFast: 20, EmaSlow: 50},
		{ID: 2, Enabled: false, TakeProfitPct: 1.5, StopLossPct: -1.5, MacdFast: 12, MacdSlow: 26, MacdSignal: 9},
		{ID: 3, Enabled: false, TakeProfitPct: 2, StopLossPct: -1.5, MacdFast: 12, MacdSlow: 26, MacdSignal: 9},
		{ID: 4, Enabled: false, TakeProfitPct: 1.5, StopLossPct: -1, RsiPeriod: 14, RsiOversold: 30, RsiOverbought: 70},
	}
}
