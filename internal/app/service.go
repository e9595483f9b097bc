// Package app contains the TradingService: the single cooperative loop that
// drives indicator refresh, strategy evaluation, the position/order state
// machine, reconciliation against the exchange, and state persistence.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jpillora/backoff"

	"github.com/theHarlequins/binance-futures-bot-algotrading/config"
	"github.com/theHarlequins/binance-futures-bot-algotrading/internal/domain"
	"github.com/theHarlequins/binance-futures-bot-algotrading/internal/market"
	"github.com/theHarlequins/binance-futures-bot-algotrading/internal/ports"
	"github.com/theHarlequins/binance-futures-bot-algotrading/internal/risk"
	"github.com/theHarlequins/binance-futures-bot-algotrading/internal/strategy"
)

// orderSnapshotVersion tags persisted order state.
const orderSnapshotVersion = 1

// Status is the immutable view of the bot built at tick boundaries for the
// presentation layer. It shares no memory with the live state.
type Status struct {
	Running     bool
	Symbol      string
	Timeframe   domain.Timeframe
	LastPrice   float64
	LastTick    time.Time
	Balance     ports.AccountBalance
	Positions   []domain.PositionRecord
	TotalProfit float64
}

// TradingService orchestrates the trading bot's operations.
type TradingService struct {
	cfg        *config.Config
	logger     ports.Logger
	exchange   ports.ExchangeClient
	stateStore ports.StateStore
	tradeRepo  ports.TradeRepository
	strategies []strategy.Strategy
	market     *market.State
	sizer      *risk.Sizer

	// Loop-owned state. Only positions' status snapshot escapes the loop.
	positions  map[domain.PositionKey]*domain.PositionRecord
	reconciled bool // restart gate: no new entries until one clean reconcile
	lastPrice  float64
	balance    ports.AccountBalance

	mu      sync.Mutex // protects running and status
	running bool
	status  Status
}

// NewTradingService creates a new application service instance.
func NewTradingService(
	cfg *config.Config,
	logger ports.Logger,
	exchange ports.ExchangeClient,
	stateStore ports.StateStore,
	tradeRepo ports.TradeRepository,
	strategies []strategy.Strategy,
) (*TradingService, error) {
	if cfg == nil || logger == nil || exchange == nil || stateStore == nil || tradeRepo == nil {
		return nil, fmt.Errorf("missing required dependencies for TradingService")
	}
	if len(strategies) == 0 {
		return nil, fmt.Errorf("%w: at least one strategy must be enabled", ports.ErrConfigurationError)
	}

	sizer, err := risk.NewSizer(risk.SizerConfig{
		WalletUsagePct:    cfg.WalletUsagePct,
		Leverage:          cfg.Leverage,
		QuantityPrecision: cfg.QuantityPrecision,
		PricePrecision:    cfg.PricePrecision,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ports.ErrConfigurationError, err)
	}

	st := market.NewState(cfg.Symbol, cfg.Timeframe, cfg.CandleWindow, strategy.RequiredIndicators(strategies))

	return &TradingService{
		cfg:        cfg,
		logger:     logger,
		exchange:   exchange,
		stateStore: stateStore,
		tradeRepo:  tradeRepo,
		strategies: strategies,
		market:     st,
		sizer:      sizer,
		positions:  make(map[domain.PositionKey]*domain.PositionRecord),
	}, nil
}

// Start begins the trading bot's main loop. It blocks until the context is
// canceled, a shutdown signal arrives, or an order action exhausts its retry
// budget. A second concurrent Start returns ErrAlreadyRunning.
func (s *TradingService) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ports.ErrAlreadyRunning
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.status.Running = false
		s.mu.Unlock()
	}()

	s.logger.Info(ctx, "Starting Trading Service...", map[string]interface{}{
		"symbol":     s.cfg.Symbol,
		"timeframe":  s.cfg.Timeframe,
		"strategies": len(s.strategies),
		"hedgeMode":  s.cfg.HedgeMode,
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			s.logger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := s.initialize(ctx); err != nil {
		return err
	}

	return s.run(ctx)
}

// Status returns the most recent immutable status snapshot.
func (s *TradingService) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// initialize performs the pre-loop setup: clock sync, exchange account
// configuration, state restore, and window seeding.
func (s *TradingService) initialize(ctx context.Context) error {
	op := "initialize"

	if err := s.retry(ctx, "SetServerTime", func(c context.Context) error {
		return s.exchange.SetServerTime(c)
	}); err != nil {
		return fmt.Errorf("failed to synchronize server time: %w", err)
	}

	if err := s.retry(ctx, "SetPositionMode", func(c context.Context) error {
		return s.exchange.SetPositionMode(c, s.cfg.HedgeMode)
	}); err != nil {
		return fmt.Errorf("failed to set position mode: %w", err)
	}

	if err := s.retry(ctx, "SetLeverage", func(c context.Context) error {
		return s.exchange.SetLeverage(c, s.cfg.Symbol, s.cfg.Leverage)
	}); err != nil {
		return fmt.Errorf("failed to set leverage: %w", err)
	}

	s.restoreIndicatorState(ctx)
	s.restoreOrderState(ctx)

	// Seed the window when the store is cold so strategies have history on
	// the first boundary instead of warming up for a full window of candles.
	if s.market.WindowLen() == 0 {
		if err := s.refreshIndicators(ctx); err != nil {
			return fmt.Errorf("failed to seed candle window: %w", err)
		}
		s.logger.Info(ctx, op+": seeded candle window", map[string]interface{}{"candles": s.market.WindowLen()})
	}

	if err := s.refreshAccount(ctx); err != nil {
		return fmt.Errorf("failed to read account balance: %w", err)
	}

	s.logger.Info(ctx, op+": complete", map[string]interface{}{
		"candles":   s.market.WindowLen(),
		"positions": len(s.positions),
		"balance":   s.balance.Total,
	})
	return nil
}

// run is the scheduler: one cooperative loop, stop observed at the top of each
// iteration, orphan cleanup on its own faster tick.
func (s *TradingService) run(ctx context.Context) error {
	poll := time.NewTicker(s.cfg.PollInterval)
	defer poll.Stop()
	housekeeping := time.NewTicker(s.cfg.HousekeepingInterval)
	defer housekeeping.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "Stop requested, persisting state before exit")
			s.persistState(context.WithoutCancel(ctx))
			return nil
		case <-housekeeping.C:
			if err := s.housekeep(ctx); err != nil {
				return err
			}
		case <-poll.C:
			if err := s.tick(ctx, time.Now()); err != nil {
				return err
			}
		}
	}
}

// tick runs one scheduler iteration. Within a candle boundary it executes the
// fixed order: indicator refresh, reconciliation, strategy evaluation, order
// actions, persistence. Off-boundary ticks are no-ops.
func (s *TradingService) tick(ctx context.Context, now time.Time) error {
	if !s.market.IsNewCandle(now) {
		return nil
	}

	if err := s.refreshIndicators(ctx); err != nil {
		// Transient data failures never abort the loop; retry next boundary.
		s.logger.Warn(ctx, "Indicator refresh failed, will retry", map[string]interface{}{"error": err.Error()})
		return nil
	}
	if err := s.refreshAccount(ctx); err != nil {
		s.logger.Warn(ctx, "Account refresh failed", map[string]interface{}{"error": err.Error()})
	}

	if err := s.reconcile(ctx); err != nil {
		if errors.Is(err, ports.ErrRetryExhausted) {
			return err
		}
		s.logger.Warn(ctx, "Reconciliation failed, holding entries", map[string]interface{}{"error": err.Error()})
	}

	if err := s.evaluateAndAct(ctx); err != nil {
		return err
	}

	s.persistState(ctx)
	s.publishStatus(ctx, now)
	return nil
}

// housekeep runs the faster maintenance tick: orphan-order cleanup plus a
// reconciliation pass, so externally closed positions are noticed within
// seconds rather than at the next candle boundary.
func (s *TradingService) housekeep(ctx context.Context) error {
	if err := s.reconcile(ctx); err != nil {
		if errors.Is(err, ports.ErrRetryExhausted) {
			return err
		}
		s.logger.Warn(ctx, "Housekeeping reconciliation failed", map[string]interface{}{"error": err.Error()})
		return nil
	}
	if err := s.cleanupOrphanOrders(ctx); err != nil {
		if errors.Is(err, ports.ErrRetryExhausted) {
			return err
		}
		s.logger.Warn(ctx, "Orphan order cleanup failed", map[string]interface{}{"error": err.Error()})
	}
	s.persistState(ctx)
	return nil
}

// refreshIndicators fetches recent candles and feeds every final candle newer
// than the last processed close through the state store.
func (s *TradingService) refreshIndicators(ctx context.Context) error {
	var candles []*domain.Candle
	err := s.retry(ctx, "GetKlines", func(c context.Context) error {
		var err error
		candles, err = s.exchange.GetKlines(c, s.cfg.Symbol, s.cfg.Timeframe.Interval(), s.cfg.CandleWindow)
		return err
	})
	if err != nil {
		return err
	}

	lastClose := s.market.LastCloseTime()
	processed := 0
	for _, c := range candles {
		if !c.IsFinal || !c.CloseTime.After(lastClose) {
			continue
		}
		s.market.OnCandleClose(c)
		processed++
	}
	if processed > 0 {
		s.logger.Debug(ctx, "Processed closed candles", map[string]interface{}{
			"count":     processed,
			"lastClose": s.market.LastClose(),
			"window":    s.market.WindowLen(),
		})
	}

	var price float64
	err = s.retry(ctx, "GetLastPrice", func(c context.Context) error {
		var err error
		price, err = s.exchange.GetLastPrice(c, s.cfg.Symbol)
		return err
	})
	if err != nil {
		return err
	}
	s.lastPrice = price
	return nil
}

// refreshAccount updates the cached balance view for sizing and the status
// surface.
func (s *TradingService) refreshAccount(ctx context.Context) error {
	var bal ports.AccountBalance
	err := s.retry(ctx, "GetAccountBalance", func(c context.Context) error {
		var err error
		bal, err = s.exchange.GetAccountBalance(c, s.cfg.Asset)
		return err
	})
	if err != nil {
		return err
	}
	s.balance = bal
	return nil
}

// evaluateAndAct runs every enabled strategy in ascending ID order and opens
// positions for the signals that fired. Entries are gated until a clean
// reconcile has confirmed the restart state.
func (s *TradingService) evaluateAndAct(ctx context.Context) error {
	if !s.reconciled {
		s.logger.Debug(ctx, "Entries held until reconciliation passes clean")
		return nil
	}

	for _, strat := range s.strategies {
		sig := strat.Evaluate(ctx, s.market)
		if sig.Long {
			if err := s.maybeOpen(ctx, strat, domain.Long); err != nil {
				return err
			}
		}
		if sig.Short {
			if err := s.maybeOpen(ctx, strat, domain.Short); err != nil {
				return err
			}
		}
	}
	return nil
}

// persistState saves the indicator and order snapshots. Persistence failures
// are logged, never fatal; the exchange remains the source of truth.
func (s *TradingService) persistState(ctx context.Context) {
	if err := s.stateStore.SaveIndicatorState(ctx, s.market.Snapshot()); err != nil {
		s.logger.Error(ctx, err, "Failed to persist indicator state")
	}
	if err := s.stateStore.SaveOrderState(ctx, s.orderSnapshot()); err != nil {
		s.logger.Error(ctx, err, "Failed to persist order state")
	}
}

// publishStatus swaps in a fresh immutable status snapshot.
func (s *TradingService) publishStatus(ctx context.Context, now time.Time) {
	positions := make([]domain.PositionRecord, 0, len(s.positions))
	for _, rec := range s.positions {
		positions = append(positions, *rec)
	}

	total, err := s.tradeRepo.GetTotalProfit(ctx, s.cfg.Symbol)
	if err != nil {
		s.logger.Warn(ctx, "Failed to read total profit for status", map[string]interface{}{"error": err.Error()})
	}

	s.mu.Lock()
	s.status = Status{
		Running:     true,
		Symbol:      s.cfg.Symbol,
		Timeframe:   s.cfg.Timeframe,
		LastPrice:   s.lastPrice,
		LastTick:    now,
		Balance:     s.balance,
		Positions:   positions,
		TotalProfit: total,
	}
	s.mu.Unlock()
}

// restoreIndicatorState loads the persisted indicator snapshot. A missing file
// is a cold start; a corrupt or mismatched one resets to zero state.
func (s *TradingService) restoreIndicatorState(ctx context.Context) {
	snap, err := s.stateStore.LoadIndicatorState(ctx)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			s.logger.Info(ctx, "No persisted indicator state, starting cold")
		} else {
			s.logger.Warn(ctx, "Indicator state unreadable, resetting", map[string]interface{}{"error": err.Error()})
		}
		s.market.Reset()
		return
	}
	if err := s.market.Restore(snap); err != nil {
		s.logger.Warn(ctx, "Indicator state rejected, resetting", map[string]interface{}{"error": err.Error()})
		s.market.Reset()
		return
	}
	s.logger.Info(ctx, "Indicator state restored", map[string]interface{}{
		"window":    s.market.WindowLen(),
		"lastClose": s.market.LastCloseTime(),
	})
}

// restoreOrderState loads persisted position records. Loaded records are
// treated as unverified until reconciliation confirms them against the
// exchange.
func (s *TradingService) restoreOrderState(ctx context.Context) {
	snap, err := s.stateStore.LoadOrderState(ctx)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			s.logger.Info(ctx, "No persisted order state, starting flat")
		} else {
			s.logger.Warn(ctx, "Order state unreadable, starting flat", map[string]interface{}{"error": err.Error()})
		}
		return
	}
	if snap.Version != orderSnapshotVersion || snap.Symbol != s.cfg.Symbol {
		s.logger.Warn(ctx, "Order state rejected, starting flat", map[string]interface{}{
			"version": snap.Version,
			"symbol":  snap.Symbol,
		})
		return
	}

	for keyStr, rec := range snap.Positions {
		key, err := domain.ParsePositionKey(keyStr)
		if err != nil || rec == nil || rec.Quantity <= 0 {
			s.logger.Warn(ctx, "Dropping malformed position record", map[string]interface{}{"key": keyStr})
			continue
		}
		s.positions[key] = rec
	}
	s.logger.Info(ctx, "Order state restored", map[string]interface{}{"positions": len(s.positions)})
}

// orderSnapshot builds the persisted form of the order state machine.
func (s *TradingService) orderSnapshot() *ports.OrderSnapshot {
	snap := &ports.OrderSnapshot{
		Version:   orderSnapshotVersion,
		Symbol:    s.cfg.Symbol,
		Positions: make(map[string]*domain.PositionRecord, len(s.positions)),
	}
	for key, rec := range s.positions {
		cp := *rec
		snap.Positions[key.String()] = &cp
		if rec.TPOrderID != 0 {
			snap.OpenOrderIDs = append(snap.OpenOrderIDs, rec.TPOrderID)
		}
		if rec.SLOrderID != 0 {
			snap.OpenOrderIDs = append(snap.OpenOrderIDs, rec.SLOrderID)
		}
	}
	return snap
}

// retry invokes fn up to the configured budget with jittered exponential
// backoff, retrying only transient transport errors. Exhaustion wraps
// ErrRetryExhausted.
func (s *TradingService) retry(ctx context.Context, op string, fn func(context.Context) error) error {
	b := &backoff.Backoff{
		Min:    s.cfg.RetryBaseDelay,
		Max:    10 * time.Second,
		Factor: 2,
		Jitter: true,
	}

	var lastErr error
	for attempt := 1; attempt <= s.cfg.MaxAPIRetries; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !ports.IsTransient(lastErr) {
			return lastErr
		}
		if attempt == s.cfg.MaxAPIRetries {
			break
		}

		delay := b.Duration()
		s.logger.Warn(ctx, op+" failed, retrying", map[string]interface{}{
			"attempt": attempt,
			"budget":  s.cfg.MaxAPIRetries,
			"delay":   delay.String(),
			"error":   lastErr.Error(),
		})
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("%s: %w: %w", op, ports.ErrContextCanceled, ctx.Err())
		}
	}
	return fmt.Errorf("%s: %w: %w", op, ports.ErrRetryExhausted, lastErr)
}
