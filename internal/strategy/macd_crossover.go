package strategy

import (
	"context"
	"fmt"

	"github.com/theHarlequins/binance-futures-bot-algotrading/internal/market"
	"github.com/theHarlequins/binance-futures-bot-algotrading/internal/ports"
)

// MacdCrossover signals long when the MACD line crosses above its signal line
// and short on the inverse. The signal line is smoothed over the rolling
// MACD-line history the state store maintains across candles.
type MacdCrossover struct {
	id      int
	spec    market.MACDSpec
	targets Targets
	logger  ports.Logger
}

// NewMacdCrossover validates the periods and builds the evaluator.
func NewMacdCrossover(id, fast, slow, signal int, targets Targets, logger ports.Logger) (*MacdCrossover, error) {
	if fast <= 0 || slow <= 0 || signal <= 0 {
		return nil, fmt.Errorf("MACD periods must be positive, got fast=%d slow=%d signal=%d", fast, slow, signal)
	}
	if fast >= slow {
		return nil, fmt.Errorf("MACD fast period %d must be less than slow period %d", fast, slow)
	}
	return &MacdCrossover{
		id:      id,
		spec:    market.MACDSpec{Fast: fast, Slow: slow, Signal: signal},
		targets: targets,
		logger:  logger,
	}, nil
}

func (s *MacdCrossover) ID() int          { return s.id }
func (s *MacdCrossover) Targets() Targets { return s.targets }

func (s *MacdCrossover) Name() string {
	return fmt.Sprintf("macd_crossover_%d_%d_%d", s.spec.Fast, s.spec.Slow, s.spec.Signal)
}

func (s *MacdCrossover) Indicators() market.IndicatorSet {
	return market.IndicatorSet{MACDs: []market.MACDSpec{s.spec}}
}

func (s *MacdCrossover) Evaluate(ctx context.Context, st *market.State) Signal {
	lineKey, sigKey := market.MACDLineKey(s.spec), market.MACDSignalKey(s.spec)
	line, ok1 := st.Value(lineKey)
	signal, ok2 := st.Value(sigKey)
	prevLine, ok3 := st.PrevValue(lineKey)
	prevSignal, ok4 := st.PrevValue(sigKey)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return Signal{}
	}

	sig := Signal{
		Long:  prevLine < prevSignal && line > signal,
		Short: prevLine > prevSignal && line < signal,
	}
	if sig.Long || sig.Short {
		s.logger.Info(ctx, "MACD crossover detected", map[string]interface{}{
			"strategy": s.Name(),
			"macd":     line,
			"signal":   signal,
			"long":     sig.Long,
			"short":    sig.Short,
		})
	}
	return sig
}
