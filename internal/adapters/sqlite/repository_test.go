package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/theHarlequins/binance-futures-bot-algotrading/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

// setupTestDB creates a temporary database for testing
func setupTestDB(t *testing.T) (*Repository, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "trading-bot-test-*")
	require.NoError(t, err)

	dbPath := filepath.Join(tmpDir, "test.db")
	repo, err := NewRepository(Config{
		DBPath: dbPath,
		Logger: &mockLogger{},
	})
	require.NoError(t, err)

	cleanup := func() {
		repo.Close()
		os.RemoveAll(tmpDir)
	}

	return repo, cleanup
}

func testTrade(symbol string, pnl float64, exitTime time.Time) *domain.Trade {
	return &domain.Trade{
		Symbol:      symbol,
		StrategyID:  0,
		Side:        domain.Long,
		EntryPrice:  2000.0,
		ExitPrice:   2000.0 + pnl,
		Quantity:    1.0,
		Leverage:    2,
		PNL:         pnl,
		EntryTime:   exitTime.Add(-time.Hour),
		ExitTime:    exitTime,
		CloseReason: domain.CloseReasonTakeProfit,
	}
}

func TestRepository_CreateTrade(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	id, err := repo.CreateTrade(ctx, testTrade("ETHUSDT", 50, time.Now().UTC()))
	require.NoError(t, err)
	assert.Greater(t, id, int64(0))

	id2, err := repo.CreateTrade(ctx, testTrade("ETHUSDT", -10, time.Now().UTC()))
	require.NoError(t, err)
	assert.Greater(t, id2, id)
}

func TestRepository_FindBySymbol(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		_, err := repo.CreateTrade(ctx, testTrade("ETHUSDT", float64(10*(i+1)), base.Add(time.Duration(i)*time.Hour)))
		require.NoError(t, err)
	}
	_, err := repo.CreateTrade(ctx, testTrade("BTCUSDT", 99, base))
	require.NoError(t, err)

	t.Run("filters by symbol, newest first", func(t *testing.T) {
		trades, err := repo.FindBySymbol(ctx, "ETHUSDT", 10)
		require.NoError(t, err)
		require.Len(t, trades, 3)
		assert.Equal(t, 30.0, trades[0].PNL)
		assert.Equal(t, domain.Long, trades[0].Side)
		assert.Equal(t, domain.CloseReasonTakeProfit, trades[0].CloseReason)
	})

	t.Run("respects the limit", func(t *testing.T) {
		trades, err := repo.FindBySymbol(ctx, "ETHUSDT", 2)
		require.NoError(t, err)
		assert.Len(t, trades, 2)
	})

	t.Run("unknown symbol is empty, not an error", func(t *testing.T) {
		trades, err := repo.FindBySymbol(ctx, "DOGEUSDT", 10)
		require.NoError(t, err)
		assert.Empty(t, trades)
	})
}

func TestRepository_GetTotalProfit(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	t.Run("no trades sums to zero", func(t *testing.T) {
		total, err := repo.GetTotalProfit(ctx, "ETHUSDT")
		require.NoError(t, err)
		assert.Equal(t, 0.0, total)
	})

	t.Run("sums wins and losses per symbol", func(t *testing.T) {
		now := time.Now().UTC()
		_, err := repo.CreateTrade(ctx, testTrade("ETHUSDT", 50, now))
		require.NoError(t, err)
		_, err = repo.CreateTrade(ctx, testTrade("ETHUSDT", -20, now))
		require.NoError(t, err)
		_, err = repo.CreateTrade(ctx, testTrade("BTCUSDT", 100, now))
		require.NoError(t, err)

		total, err := repo.GetTotalProfit(ctx, "ETHUSDT")
		require.NoError(t, err)
		assert.InDelta(t, 30.0, total, 1e-9)
	})
}
