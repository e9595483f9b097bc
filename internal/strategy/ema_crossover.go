package strategy

import (
	"context"
	"fmt"

	"github.com/theHarlequins/binance-futures-bot-algotrading/internal/market"
	"github.com/theHarlequins/binance-futures-bot-algotrading/internal/ports"
)

// EmaCrossover signals long when the fast EMA crosses above the slow EMA and
// short on the inverse. Crossing, not level: the signal fires only on the
// candle where the relative order of the two lines flips, so a persistent
// trend does not re-trigger every tick.
type EmaCrossover struct {
	id      int
	fast    int
	slow    int
	targets Targets
	logger  ports.Logger
}

// NewEmaCrossover validates the periods and builds the evaluator.
func NewEmaCrossover(id, fast, slow int, targets Targets, logger ports.Logger) (*EmaCrossover, error) {
	if fast <= 0 || slow <= 0 {
		return nil, fmt.Errorf("EMA periods must be positive, got fast=%d slow=%d", fast, slow)
	}
	if fast >= slow {
		return nil, fmt.Errorf("fast EMA period %d must be less than slow period %d", fast, slow)
	}
	return &EmaCrossover{id: id, fast: fast, slow: slow, targets: targets, logger: logger}, nil
}

func (s *EmaCrossover) ID() int          { return s.id }
func (s *EmaCrossover) Targets() Targets { return s.targets }

func (s *EmaCrossover) Name() string {
	return fmt.Sprintf("ema_crossover_%d_%d", s.fast, s.slow)
}

func (s *EmaCrossover) Indicators() market.IndicatorSet {
	return market.IndicatorSet{EMAPeriods: []int{s.fast, s.slow}}
}

// Evaluate compares the current and previous fast/slow EMA ordering. Both
// inequalities are strict: an equal-valued warm-up window (where both EMAs
// degrade to the last close) never counts as being on one side of a cross.
func (s *EmaCrossover) Evaluate(ctx context.Context, st *market.State) Signal {
	fastKey, slowKey := market.EMAKey(s.fast), market.EMAKey(s.slow)
	fast, ok1 := st.Value(fastKey)
	slow, ok2 := st.Value(slowKey)
	prevFast, ok3 := st.PrevValue(fastKey)
	prevSlow, ok4 := st.PrevValue(slowKey)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return Signal{}
	}

	sig := Signal{
		Long:  prevFast < prevSlow && fast > slow,
		Short: prevFast > prevSlow && fast < slow,
	}
	if sig.Long || sig.Short {
		s.logger.Info(ctx, "EMA crossover detected", map[string]interface{}{
			"strategy": s.Name(),
			"fast":     fast,
			"slow":     slow,
			"long":     sig.Long,
			"short":    sig.Short,
		})
	}
	return sig
}
