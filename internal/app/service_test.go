package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theHarlequins/binance-futures-bot-algotrading/config"
	"github.com/theHarlequins/binance-futures-bot-algotrading/internal/domain"
	"github.com/theHarlequins/binance-futures-bot-algotrading/internal/ports"
	"github.com/theHarlequins/binance-futures-bot-algotrading/internal/strategy"
)

// Mock implementations

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

type placedOrder struct {
	kind     string // "market", "tp", "sl"
	side     domain.OrderSide
	posSide  domain.PositionSide
	quantity string
	price    string
}

type mockExchange struct {
	nextOrderID int64
	fillPrice   float64

	placed    []placedOrder
	canceled  []int64
	openIDs   []int64
	risks     []*ports.PositionRisk
	balance   ports.AccountBalance
	lastPrice float64

	marketErr    error
	tpErr        error
	slErr        error
	transientErr error // returned by every call when set, for retry tests
	calls        int
}

func (m *mockExchange) fail() error {
	m.calls++
	return m.transientErr
}

func (m *mockExchange) SetServerTime(ctx context.Context) error               { return m.fail() }
func (m *mockExchange) Ping(ctx context.Context) error                        { return m.fail() }
func (m *mockExchange) SetPositionMode(ctx context.Context, hedge bool) error { return m.fail() }
func (m *mockExchange) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	return m.fail()
}

func (m *mockExchange) GetServerTime(ctx context.Context) (time.Time, error) {
	return time.Now(), m.fail()
}

func (m *mockExchange) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]*domain.Candle, error) {
	return nil, m.fail()
}

func (m *mockExchange) GetLastPrice(ctx context.Context, symbol string) (float64, error) {
	return m.lastPrice, m.fail()
}

func (m *mockExchange) GetAccountBalance(ctx context.Context, asset string) (ports.AccountBalance, error) {
	return m.balance, m.fail()
}

func (m *mockExchange) PlaceMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, posSide domain.PositionSide, quantity string) (*ports.OrderResponse, error) {
	if err := m.fail(); err != nil {
		return nil, err
	}
	if m.marketErr != nil {
		return nil, m.marketErr
	}
	m.placed = append(m.placed, placedOrder{kind: "market", side: side, posSide: posSide, quantity: quantity})
	m.nextOrderID++
	return &ports.OrderResponse{OrderID: m.nextOrderID, Symbol: symbol, AvgPrice: m.fillPrice, Status: "FILLED"}, nil
}

func (m *mockExchange) PlaceStopMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, posSide domain.PositionSide, quantity, stopPrice string) (*ports.OrderResponse, error) {
	if err := m.fail(); err != nil {
		return nil, err
	}
	if m.slErr != nil {
		return nil, m.slErr
	}
	m.placed = append(m.placed, placedOrder{kind: "sl", side: side, posSide: posSide, quantity: quantity, price: stopPrice})
	m.nextOrderID++
	return &ports.OrderResponse{OrderID: m.nextOrderID, Symbol: symbol, Status: "NEW"}, nil
}

func (m *mockExchange) PlaceTakeProfitMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, posSide domain.PositionSide, quantity, stopPrice string) (*ports.OrderResponse, error) {
	if err := m.fail(); err != nil {
		return nil, err
	}
	if m.tpErr != nil {
		return nil, m.tpErr
	}
	m.placed = append(m.placed, placedOrder{kind: "tp", side: side, posSide: posSide, quantity: quantity, price: stopPrice})
	m.nextOrderID++
	return &ports.OrderResponse{OrderID: m.nextOrderID, Symbol: symbol, Status: "NEW"}, nil
}

func (m *mockExchange) CancelOrder(ctx context.Context, symbol string, orderID int64) (*ports.OrderResponse, error) {
	if err := m.fail(); err != nil {
		return nil, err
	}
	m.canceled = append(m.canceled, orderID)
	return &ports.OrderResponse{OrderID: orderID, Status: "CANCELED"}, nil
}

func (m *mockExchange) GetOpenOrders(ctx context.Context, symbol string) ([]int64, error) {
	return m.openIDs, m.fail()
}

func (m *mockExchange) GetPositionRisk(ctx context.Context, symbol string) ([]*ports.PositionRisk, error) {
	return m.risks, m.fail()
}

type mockStateStore struct {
	indicator *ports.IndicatorSnapshot
	order     *ports.OrderSnapshot
	saveErr   error
}

func (m *mockStateStore) LoadIndicatorState(ctx context.Context) (*ports.IndicatorSnapshot, error) {
	if m.indicator == nil {
		return nil, ports.ErrNotFound
	}
	return m.indicator, nil
}

func (m *mockStateStore) SaveIndicatorState(ctx context.Context, snap *ports.IndicatorSnapshot) error {
	m.indicator = snap
	return m.saveErr
}

func (m *mockStateStore) LoadOrderState(ctx context.Context) (*ports.OrderSnapshot, error) {
	if m.order == nil {
		return nil, ports.ErrNotFound
	}
	return m.order, nil
}

func (m *mockStateStore) SaveOrderState(ctx context.Context, snap *ports.OrderSnapshot) error {
	m.order = snap
	return m.saveErr
}

type mockTradeRepo struct {
	trades []*domain.Trade
}

func (m *mockTradeRepo) CreateTrade(ctx context.Context, trade *domain.Trade) (int64, error) {
	m.trades = append(m.trades, trade)
	return int64(len(m.trades)), nil
}

func (m *mockTradeRepo) FindBySymbol(ctx context.Context, symbol string, limit int) ([]*domain.Trade, error) {
	return m.trades, nil
}

func (m *mockTradeRepo) GetTotalProfit(ctx context.Context, symbol string) (float64, error) {
	var total float64
	for _, t := range m.trades {
		total += t.PNL
	}
	return total, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Symbol:               "BTCUSDT",
		Asset:                "USDT",
		Timeframe:            domain.TimeframeH1,
		Leverage:             2,
		HedgeMode:            true,
		WalletUsagePct:       50,
		QuantityPrecision:    3,
		PricePrecision:       2,
		PollInterval:         250 * time.Millisecond,
		HousekeepingInterval: 10 * time.Second,
		CandleWindow:         100,
		MaxAPIRetries:        3,
		RetryBaseDelay:       time.Millisecond,
	}
}

func newTestService(t *testing.T, ex *mockExchange) (*TradingService, *mockStateStore, *mockTradeRepo) {
	t.Helper()
	configs := strategy.DefaultConfigs()
	strategies, err := strategy.Build(configs, &mockLogger{})
	require.NoError(t, err)

	store := &mockStateStore{}
	repo := &mockTradeRepo{}
	svc, err := NewTradingService(testConfig(), &mockLogger{}, ex, store, repo, strategies)
	require.NoError(t, err)

	svc.balance = ports.AccountBalance{Asset: "USDT", Available: 1000, Total: 1000}
	svc.lastPrice = 100
	return svc, store, repo
}

func TestOpenPosition(t *testing.T) {
	ctx := context.Background()

	t.Run("successful open places entry and both brackets", func(t *testing.T) {
		ex := &mockExchange{fillPrice: 100, lastPrice: 100}
		svc, _, _ := newTestService(t, ex)
		strat := svc.strategies[0]

		require.NoError(t, svc.openPosition(ctx, strat, domain.Long))

		require.Len(t, ex.placed, 3)
		assert.Equal(t, "market", ex.placed[0].kind)
		assert.Equal(t, domain.Buy, ex.placed[0].side)
		assert.Equal(t, domain.Long, ex.placed[0].posSide)
		assert.Equal(t, "tp", ex.placed[1].kind)
		assert.Equal(t, domain.Sell, ex.placed[1].side)
		assert.Equal(t, "sl", ex.placed[2].kind)
		assert.Equal(t, domain.Sell, ex.placed[2].side)
		// Brackets are sized to the record, never the whole position side.
		assert.Equal(t, ex.placed[0].quantity, ex.placed[1].quantity)
		assert.Equal(t, ex.placed[0].quantity, ex.placed[2].quantity)

		key := domain.PositionKey{StrategyID: strat.ID(), Side: domain.Long}
		rec, ok := svc.positions[key]
		require.True(t, ok)
		assert.Equal(t, domain.StatusOpen, rec.Status)
		assert.Greater(t, rec.Quantity, 0.0)
		assert.NotEqual(t, rec.TPOrderID, rec.SLOrderID, "order IDs never collide across records")
		assert.NotEqual(t, rec.EntryOrderID, rec.TPOrderID)
		// TP above entry, SL below for a long.
		assert.Greater(t, rec.TakeProfit, rec.EntryPrice)
		assert.Less(t, rec.StopLoss, rec.EntryPrice)
	})

	t.Run("short brackets flip around the entry", func(t *testing.T) {
		ex := &mockExchange{fillPrice: 100, lastPrice: 100}
		svc, _, _ := newTestService(t, ex)
		strat := svc.strategies[0]

		require.NoError(t, svc.openPosition(ctx, strat, domain.Short))

		key := domain.PositionKey{StrategyID: strat.ID(), Side: domain.Short}
		rec := svc.positions[key]
		require.NotNil(t, rec)
		assert.Less(t, rec.TakeProfit, rec.EntryPrice)
		assert.Greater(t, rec.StopLoss, rec.EntryPrice)
		assert.Equal(t, domain.Sell, ex.placed[0].side, "short entry sells")
		assert.Equal(t, domain.Buy, ex.placed[1].side, "short brackets buy")
	})

	t.Run("TP failure compensates with emergency close", func(t *testing.T) {
		ex := &mockExchange{fillPrice: 100, lastPrice: 100, tpErr: ports.ErrOrderPlacementFailed}
		svc, _, _ := newTestService(t, ex)
		strat := svc.strategies[0]

		err := svc.openPosition(ctx, strat, domain.Long)
		require.Error(t, err)

		// Entry plus emergency close; nothing canceled since no bracket stood.
		require.Len(t, ex.placed, 2)
		assert.Equal(t, "market", ex.placed[0].kind)
		assert.Equal(t, "market", ex.placed[1].kind)
		assert.Equal(t, domain.Sell, ex.placed[1].side, "emergency close reverses the entry")
		assert.Empty(t, ex.canceled)
		assert.Empty(t, svc.positions, "no record survives a failed open")
	})

	t.Run("SL failure cancels the placed TP before closing", func(t *testing.T) {
		ex := &mockExchange{fillPrice: 100, lastPrice: 100, slErr: ports.ErrOrderPlacementFailed}
		svc, _, _ := newTestService(t, ex)
		strat := svc.strategies[0]

		err := svc.openPosition(ctx, strat, domain.Long)
		require.Error(t, err)

		require.Len(t, ex.canceled, 1, "the standing TP bracket is canceled")
		assert.Empty(t, svc.positions)
	})

	t.Run("two strategies long at once keep independent brackets", func(t *testing.T) {
		ex := &mockExchange{fillPrice: 100, lastPrice: 100}
		configs := strategy.DefaultConfigs()
		configs[1].Enabled = true
		strategies, err := strategy.Build(configs, &mockLogger{})
		require.NoError(t, err)
		svc, err := NewTradingService(testConfig(), &mockLogger{}, ex, &mockStateStore{}, &mockTradeRepo{}, strategies)
		require.NoError(t, err)
		svc.lastPrice = 100

		svc.balance = ports.AccountBalance{Asset: "USDT", Total: 1000}
		require.NoError(t, svc.openPosition(ctx, svc.strategies[0], domain.Long))
		svc.balance.Total = 500
		require.NoError(t, svc.openPosition(ctx, svc.strategies[1], domain.Long))

		require.Len(t, ex.placed, 6)
		assert.Equal(t, "10.000", ex.placed[1].quantity, "first record's TP covers its own slice")
		assert.Equal(t, "10.000", ex.placed[2].quantity)
		assert.Equal(t, "5.000", ex.placed[4].quantity, "second record's TP covers its own slice")
		assert.Equal(t, "5.000", ex.placed[5].quantity)

		recA := svc.positions[domain.PositionKey{StrategyID: 0, Side: domain.Long}]
		recB := svc.positions[domain.PositionKey{StrategyID: 1, Side: domain.Long}]
		require.NotNil(t, recA)
		require.NotNil(t, recB)
		assert.NotEqual(t, recA.Quantity, recB.Quantity)
	})

	t.Run("zero quantity skips order placement entirely", func(t *testing.T) {
		ex := &mockExchange{fillPrice: 100, lastPrice: 100}
		svc, _, _ := newTestService(t, ex)
		svc.balance.Total = 0

		err := svc.openPosition(ctx, svc.strategies[0], domain.Long)
		require.Error(t, err)
		assert.Empty(t, ex.placed)
		assert.Empty(t, svc.positions)
	})
}

func TestMaybeOpen(t *testing.T) {
	ctx := context.Background()

	t.Run("existing record suppresses re-entry", func(t *testing.T) {
		ex := &mockExchange{fillPrice: 100, lastPrice: 100}
		svc, _, _ := newTestService(t, ex)
		strat := svc.strategies[0]
		key := domain.PositionKey{StrategyID: strat.ID(), Side: domain.Long}
		svc.positions[key] = &domain.PositionRecord{StrategyID: strat.ID(), Side: domain.Long, Quantity: 1, Status: domain.StatusOpen}

		require.NoError(t, svc.maybeOpen(ctx, strat, domain.Long))
		assert.Empty(t, ex.placed)
	})

	t.Run("one-way mode blocks the opposite side", func(t *testing.T) {
		ex := &mockExchange{fillPrice: 100, lastPrice: 100}
		svc, _, _ := newTestService(t, ex)
		svc.cfg.HedgeMode = false
		strat := svc.strategies[0]
		key := domain.PositionKey{StrategyID: strat.ID(), Side: domain.Long}
		svc.positions[key] = &domain.PositionRecord{StrategyID: strat.ID(), Side: domain.Long, Quantity: 1, Status: domain.StatusOpen}

		require.NoError(t, svc.maybeOpen(ctx, strat, domain.Short))
		assert.Empty(t, ex.placed)
	})

	t.Run("hedge mode allows both sides simultaneously", func(t *testing.T) {
		ex := &mockExchange{fillPrice: 100, lastPrice: 100}
		svc, _, _ := newTestService(t, ex)
		strat := svc.strategies[0]

		require.NoError(t, svc.maybeOpen(ctx, strat, domain.Long))
		require.NoError(t, svc.maybeOpen(ctx, strat, domain.Short))
		assert.Len(t, svc.positions, 2)
	})
}

func TestReconcile(t *testing.T) {
	ctx := context.Background()

	t.Run("first clean pass lifts the entry gate", func(t *testing.T) {
		ex := &mockExchange{lastPrice: 100}
		svc, _, _ := newTestService(t, ex)
		assert.False(t, svc.reconciled)

		require.NoError(t, svc.reconcile(ctx))
		assert.True(t, svc.reconciled)
	})

	t.Run("exchange-backed records survive untouched", func(t *testing.T) {
		ex := &mockExchange{lastPrice: 100}
		ex.risks = []*ports.PositionRisk{{Symbol: "BTCUSDT", PositionSide: domain.Long, PositionAmt: 1}}
		svc, _, repo := newTestService(t, ex)
		key := domain.PositionKey{StrategyID: 0, Side: domain.Long}
		svc.positions[key] = &domain.PositionRecord{
			StrategyID: 0, Symbol: "BTCUSDT", Side: domain.Long,
			Quantity: 1, EntryPrice: 100, Status: domain.StatusOpen,
			TPOrderID: 11, SLOrderID: 12,
		}

		require.NoError(t, svc.reconcile(ctx))
		assert.Len(t, svc.positions, 1)
		assert.Empty(t, repo.trades)
	})

	t.Run("vanished position is archived as a TP close", func(t *testing.T) {
		ex := &mockExchange{lastPrice: 100}
		ex.openIDs = []int64{12} // SL still open, TP gone: TP filled
		svc, _, repo := newTestService(t, ex)
		key := domain.PositionKey{StrategyID: 0, Side: domain.Long}
		svc.positions[key] = &domain.PositionRecord{
			StrategyID: 0, Symbol: "BTCUSDT", Side: domain.Long,
			Quantity: 2, EntryPrice: 100, TakeProfit: 102, StopLoss: 99,
			Status: domain.StatusOpen, TPOrderID: 11, SLOrderID: 12,
		}

		require.NoError(t, svc.reconcile(ctx))

		assert.Empty(t, svc.positions, "record is force-flattened")
		assert.Equal(t, []int64{12}, ex.canceled, "leftover SL bracket canceled")
		require.Len(t, repo.trades, 1)
		assert.Equal(t, domain.CloseReasonTakeProfit, repo.trades[0].CloseReason)
		assert.InDelta(t, 4.0, repo.trades[0].PNL, 1e-9, "(102-100)*2")
	})

	t.Run("vanished position with SL gone is a stop-loss close", func(t *testing.T) {
		ex := &mockExchange{lastPrice: 100}
		ex.openIDs = []int64{11} // TP still open, SL gone
		svc, _, repo := newTestService(t, ex)
		key := domain.PositionKey{StrategyID: 0, Side: domain.Long}
		svc.positions[key] = &domain.PositionRecord{
			StrategyID: 0, Symbol: "BTCUSDT", Side: domain.Long,
			Quantity: 2, EntryPrice: 100, TakeProfit: 102, StopLoss: 99,
			Status: domain.StatusOpen, TPOrderID: 11, SLOrderID: 12,
		}

		require.NoError(t, svc.reconcile(ctx))
		require.Len(t, repo.trades, 1)
		assert.Equal(t, domain.CloseReasonStopLoss, repo.trades[0].CloseReason)
		assert.InDelta(t, -2.0, repo.trades[0].PNL, 1e-9, "(99-100)*2")
	})

	t.Run("both brackets gone reads as an external close at a fresh mark", func(t *testing.T) {
		ex := &mockExchange{lastPrice: 95}
		svc, _, repo := newTestService(t, ex)
		svc.lastPrice = 100 // stale cache from the last candle boundary
		key := domain.PositionKey{StrategyID: 0, Side: domain.Long}
		svc.positions[key] = &domain.PositionRecord{
			StrategyID: 0, Symbol: "BTCUSDT", Side: domain.Long,
			Quantity: 1, EntryPrice: 100, TakeProfit: 102, StopLoss: 99,
			Status: domain.StatusOpen, TPOrderID: 11, SLOrderID: 12,
		}

		require.NoError(t, svc.reconcile(ctx))
		require.Len(t, repo.trades, 1)
		assert.Equal(t, domain.CloseReasonExternal, repo.trades[0].CloseReason)
		assert.InDelta(t, 95.0, repo.trades[0].ExitPrice, 1e-9, "archived at the refreshed mark, not the cache")
		assert.InDelta(t, -5.0, repo.trades[0].PNL, 1e-9)
	})

	t.Run("untracked exposure holds the gate and spares its brackets", func(t *testing.T) {
		ex := &mockExchange{lastPrice: 100}
		ex.risks = []*ports.PositionRisk{{Symbol: "BTCUSDT", PositionSide: domain.Long, PositionAmt: 1}}
		ex.openIDs = []int64{501, 502}
		svc, _, _ := newTestService(t, ex)

		// A crash between entry fill and persist leaves the exchange long with
		// no local record.
		require.NoError(t, svc.reconcile(ctx))
		assert.False(t, svc.reconciled, "gate stays down over unaccounted exposure")

		require.NoError(t, svc.cleanupOrphanOrders(ctx))
		assert.Empty(t, ex.canceled, "the exposure's brackets survive cleanup")

		// Once the exposure is resolved the gate lifts and cleanup resumes.
		ex.risks = nil
		require.NoError(t, svc.reconcile(ctx))
		assert.True(t, svc.reconciled)
		require.NoError(t, svc.cleanupOrphanOrders(ctx))
		assert.ElementsMatch(t, []int64{501, 502}, ex.canceled)
	})

	t.Run("exposure appearing mid-run drops the gate again", func(t *testing.T) {
		ex := &mockExchange{lastPrice: 100}
		svc, _, _ := newTestService(t, ex)

		require.NoError(t, svc.reconcile(ctx))
		require.True(t, svc.reconciled)

		ex.risks = []*ports.PositionRisk{{Symbol: "BTCUSDT", PositionSide: domain.Short, PositionAmt: 2}}
		require.NoError(t, svc.reconcile(ctx))
		assert.False(t, svc.reconciled)

		require.NoError(t, svc.evaluateAndAct(ctx))
		assert.Empty(t, ex.placed, "no entries while the mismatch stands")
	})

	t.Run("restart promotes ambiguous opening record backed by the exchange", func(t *testing.T) {
		ex := &mockExchange{lastPrice: 100}
		ex.risks = []*ports.PositionRisk{{Symbol: "BTCUSDT", PositionSide: domain.Short, PositionAmt: 1}}
		svc, _, _ := newTestService(t, ex)
		key := domain.PositionKey{StrategyID: 0, Side: domain.Short}
		svc.positions[key] = &domain.PositionRecord{
			StrategyID: 0, Symbol: "BTCUSDT", Side: domain.Short,
			Quantity: 1, EntryPrice: 100, Status: domain.StatusOpening,
		}

		require.NoError(t, svc.reconcile(ctx))
		assert.Equal(t, domain.StatusOpen, svc.positions[key].Status)
	})
}

func TestEvaluateAndAct(t *testing.T) {
	ctx := context.Background()

	t.Run("entries held until reconciliation passes clean", func(t *testing.T) {
		ex := &mockExchange{fillPrice: 100, lastPrice: 100}
		svc, _, _ := newTestService(t, ex)
		require.False(t, svc.reconciled)

		require.NoError(t, svc.evaluateAndAct(ctx))
		assert.Empty(t, ex.placed)
	})
}

func TestCleanupOrphanOrders(t *testing.T) {
	ctx := context.Background()
	ex := &mockExchange{lastPrice: 100}
	ex.openIDs = []int64{11, 12, 99}
	svc, _, _ := newTestService(t, ex)
	key := domain.PositionKey{StrategyID: 0, Side: domain.Long}
	svc.positions[key] = &domain.PositionRecord{
		StrategyID: 0, Symbol: "BTCUSDT", Side: domain.Long,
		Quantity: 1, Status: domain.StatusOpen, TPOrderID: 11, SLOrderID: 12,
	}

	require.NoError(t, svc.cleanupOrphanOrders(ctx))
	assert.Empty(t, ex.canceled, "cleanup waits for a clean reconcile")

	svc.reconciled = true
	require.NoError(t, svc.cleanupOrphanOrders(ctx))
	assert.Equal(t, []int64{99}, ex.canceled, "only the unowned order is canceled")
}

func TestRetry(t *testing.T) {
	ctx := context.Background()

	t.Run("transient errors consume the budget then exhaust", func(t *testing.T) {
		ex := &mockExchange{}
		svc, _, _ := newTestService(t, ex)

		attempts := 0
		err := svc.retry(ctx, "op", func(context.Context) error {
			attempts++
			return ports.ErrTimeout
		})
		assert.ErrorIs(t, err, ports.ErrRetryExhausted)
		assert.Equal(t, svc.cfg.MaxAPIRetries, attempts)
	})

	t.Run("non-transient errors fail immediately", func(t *testing.T) {
		ex := &mockExchange{}
		svc, _, _ := newTestService(t, ex)

		attempts := 0
		err := svc.retry(ctx, "op", func(context.Context) error {
			attempts++
			return ports.ErrInsufficientFunds
		})
		assert.ErrorIs(t, err, ports.ErrInsufficientFunds)
		assert.NotErrorIs(t, err, ports.ErrRetryExhausted)
		assert.Equal(t, 1, attempts)
	})

	t.Run("success after a transient failure", func(t *testing.T) {
		ex := &mockExchange{}
		svc, _, _ := newTestService(t, ex)

		attempts := 0
		err := svc.retry(ctx, "op", func(context.Context) error {
			attempts++
			if attempts < 2 {
				return ports.ErrConnectionFailed
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 2, attempts)
	})
}

func TestStartRejectsSecondRun(t *testing.T) {
	ex := &mockExchange{lastPrice: 100}
	svc, _, _ := newTestService(t, ex)

	svc.mu.Lock()
	svc.running = true
	svc.mu.Unlock()

	err := svc.Start(context.Background())
	assert.ErrorIs(t, err, ports.ErrAlreadyRunning)
}

func TestOrderSnapshotRoundTrip(t *testing.T) {
	ex := &mockExchange{lastPrice: 100}
	svc, store, _ := newTestService(t, ex)
	key := domain.PositionKey{StrategyID: 0, Side: domain.Long}
	svc.positions[key] = &domain.PositionRecord{
		StrategyID: 0, Symbol: "BTCUSDT", Side: domain.Long,
		Quantity: 1.5, EntryPrice: 100, Status: domain.StatusOpen,
		EntryOrderID: 10, TPOrderID: 11, SLOrderID: 12,
	}

	snap := svc.orderSnapshot()
	assert.Equal(t, orderSnapshotVersion, snap.Version)
	assert.ElementsMatch(t, []int64{11, 12}, snap.OpenOrderIDs)

	store.order = snap
	fresh, _, _ := newTestService(t, ex)
	fresh.stateStore = store
	fresh.restoreOrderState(context.Background())

	rec, ok := fresh.positions[key]
	require.True(t, ok)
	assert.Equal(t, 1.5, rec.Quantity)
	assert.Equal(t, int64(11), rec.TPOrderID)
}
