package strategy

import (
	"context"
	"fmt"

	"github.com/theHarlequins/binance-futures-bot-algotrading/internal/market"
	"github.com/theHarlequins/binance-futures-bot-algotrading/internal/ports"
)

// RsiThreshold signals long while RSI sits at or below the oversold level and
// short at or above the overbought level. Level semantics are intentional: the
// position state machine suppresses re-entry while a position is open on the
// side, so a lingering extreme does not stack orders.
type RsiThreshold struct {
	id         int
	period     int
	oversold   float64
	overbought float64
	targets    Targets
	logger     ports.Logger
}

// NewRsiThreshold validates the thresholds and builds the evaluator.
func NewRsiThreshold(id, period int, oversold, overbought float64, targets Targets, logger ports.Logger) (*RsiThreshold, error) {
	if period <= 0 {
		return nil, fmt.Errorf("RSI period must be positive, got %d", period)
	}
	if oversold < 0 || overbought > 100 || oversold >= overbought {
		return nil, fmt.Errorf("invalid RSI thresholds oversold=%v overbought=%v", oversold, overbought)
	}
	return &RsiThreshold{
		id:         id,
		period:     period,
		oversold:   oversold,
		overbought: overbought,
		targets:    targets,
		logger:     logger,
	}, nil
}

func (s *RsiThreshold) ID() int          { return s.id }
func (s *RsiThreshold) Targets() Targets { return s.targets }

func (s *RsiThreshold) Name() string {
	return fmt.Sprintf("rsi_threshold_%d", s.period)
}

func (s *RsiThreshold) Indicators() market.IndicatorSet {
	return market.IndicatorSet{RSIPeriods: []int{s.period}}
}

// Evaluate reads the current RSI only once the window actually covers the
// period; the neutral warm-up value sits between any sane thresholds and
// would otherwise be a silent no-op anyway.
func (s *RsiThreshold) Evaluate(ctx context.Context, st *market.State) Signal {
	rsi, ok := st.Value(market.RSIKey(s.period))
	if !ok || st.WindowLen() < s.period+1 {
		return Signal{}
	}

	sig := Signal{
		Long:  rsi <= s.oversold,
		Short: rsi >= s.overbought,
	}
	if sig.Long || sig.Short {
		s.logger.Info(ctx, "RSI threshold reached", map[string]interface{}{
			"strategy": s.Name(),
			"rsi":      rsi,
			"long":     sig.Long,
			"short":    sig.Short,
		})
	}
	return sig
}
