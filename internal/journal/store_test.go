package journal

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"tradesim/internal/core"
	"tradesim/internal/trading/position"
	apperrors "tradesim/pkg/errors"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var closedAt = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func record(symbol, id, net string) position.Record {
	return position.Record{
		ID:           id,
		Symbol:       symbol,
		Direction:    core.DirectionLong,
		Size:         decimal.RequireFromString("0.5"),
		Leverage:     decimal.NewFromInt(2),
		EntryPrice:   decimal.RequireFromString("100"),
		EntryTime:    closedAt.Add(-time.Hour),
		NetProfit:    decimal.RequireFromString(net),
		Commission:   decimal.RequireFromString("0.04"),
		Closed:       true,
		ExitPrice:    decimal.RequireFromString("104.5"),
		ExitTime:     closedAt,
		ExitBarIndex: 60,
		ExitKind:     core.CloseKindTakeProfit,
		EntryComment: "signal",
		ExitComment:  "signal",
	}
}

func newSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func stores(t *testing.T) map[string]Store {
	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": newSQLite(t),
	}
}

func TestStore_AppendAndList(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Append(ctx, record("BTCUSDT", "1", "2.21")))
			require.NoError(t, store.Append(ctx, record("BTCUSDT", "2", "-1.5")))
			require.NoError(t, store.Append(ctx, record("ETHUSDT", "1", "0.3")))

			got, err := store.List(ctx, "BTCUSDT")
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.Equal(t, "1", got[0].ID)
			assert.Equal(t, "2", got[1].ID)
			assert.Equal(t, "-1.5", got[1].NetProfit.String())
			assert.Equal(t, "104.5", got[0].ExitPrice.String())
			assert.Equal(t, core.CloseKindTakeProfit, got[0].ExitKind)
			assert.True(t, got[0].ExitTime.Equal(closedAt))
			assert.Equal(t, int64(60), got[0].ExitBarIndex)

			symbols, err := store.Symbols(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, symbols)

			none, err := store.List(ctx, "SOLUSDT")
			require.NoError(t, err)
			assert.Empty(t, none)
		})
	}
}

func TestMemoryStore_Closed(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Close())

	assert.ErrorIs(t, store.Append(ctx, record("BTCUSDT", "1", "1")), apperrors.ErrStoreClosed)
	_, err := store.List(ctx, "BTCUSDT")
	assert.ErrorIs(t, err, apperrors.ErrStoreClosed)
}

func TestStore_UpsertSamePosition(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Append(ctx, record("BTCUSDT", "7", "1")))
			require.NoError(t, store.Append(ctx, record("BTCUSDT", "8", "2")))
			require.NoError(t, store.Append(ctx, record("BTCUSDT", "7", "3")))
			require.NoError(t, store.Append(ctx, record("ETHUSDT", "7", "4")))

			got, err := store.List(ctx, "BTCUSDT")
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.Equal(t, "7", got[0].ID)
			assert.Equal(t, "3", got[0].NetProfit.String())
			assert.Equal(t, "8", got[1].ID)
		})
	}
}

func TestSQLiteStore_RunsDoNotOverwrite(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "journal.db")

	first, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, first.Append(ctx, record("BTCUSDT", "1", "1.25")))
	require.NoError(t, first.Close())

	second, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer second.Close()
	assert.NotEqual(t, first.RunID(), second.RunID())
	require.NoError(t, second.Append(ctx, record("BTCUSDT", "1", "-2")))

	got, err := second.List(ctx, "BTCUSDT")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "1.25", got[0].NetProfit.String())
	assert.Equal(t, "-2", got[1].NetProfit.String())
}

func TestSQLiteStore_DetectsCorruption(t *testing.T) {
	ctx := context.Background()
	store := newSQLite(t)
	require.NoError(t, store.Append(ctx, record("BTCUSDT", "1", "1")))

	_, err := store.db.ExecContext(ctx, `UPDATE closed_positions SET data = replace(data, '"1"', '"9"')`)
	require.NoError(t, err)

	_, err = store.List(ctx, "BTCUSDT")
	assert.ErrorIs(t, err, apperrors.ErrChecksumMismatch)
}

func TestSQLiteStore_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "journal.db")

	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Append(ctx, record("BTCUSDT", "1", "1.25")))
	require.NoError(t, store.Close())

	store, err = NewSQLiteStore(path)
	require.NoError(t, err)
	defer store.Close()

	got, err := store.List(ctx, "BTCUSDT")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "1.25", got[0].NetProfit.String())
}

func TestIsBusy(t *testing.T) {
	busy := fmt.Errorf("write: %w", sqlite3.Error{Code: sqlite3.ErrBusy})
	assert.True(t, isBusy(busy))
	assert.True(t, isBusy(sqlite3.Error{Code: sqlite3.ErrLocked}))
	assert.False(t, isBusy(sqlite3.Error{Code: sqlite3.ErrConstraint}))
	assert.False(t, isBusy(apperrors.ErrStoreClosed))
}
