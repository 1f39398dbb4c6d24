package market

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "candles"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func hourlyCandles(n int, baseTS int64) []Candle {
	step := time.Hour.Milliseconds()
	out := make([]Candle, n)
	for i := range out {
		ts := baseTS + int64(i)*step
		price := 100 + float64(i)
		out[i] = Candle{
			OpenTime:  ts,
			CloseTime: ts + step - 1,
			Open:      price - 0.5,
			High:      price + 1,
			Low:       price - 1,
			Close:     price,
			Volume:    1000,
		}
	}
	return out
}

func TestStoreInsertAndQuery(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	candles := hourlyCandles(10, 1700000000000)

	n, err := store.InsertCandles(ctx, "btcusdt", "1H", candles)
	require.NoError(t, err)
	assert.Equal(t, 10, n)

	// symbol/timeframe 大小写不敏感，落到同一个库。
	all, err := store.AllCandles(ctx, "BTCUSDT", "1h")
	require.NoError(t, err)
	require.Len(t, all, 10)
	assert.Equal(t, candles[0].OpenTime, all[0].OpenTime)
	assert.Equal(t, candles[9].Close, all[9].Close)

	got, err := store.RangeCandles(ctx, "BTCUSDT", "1h", candles[2].OpenTime, candles[5].OpenTime)
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, candles[2].OpenTime, got[0].OpenTime)
	assert.Equal(t, candles[5].OpenTime, got[3].OpenTime)

	// 区间颠倒时自动交换。
	swapped, err := store.RangeCandles(ctx, "BTCUSDT", "1h", candles[5].OpenTime, candles[2].OpenTime)
	require.NoError(t, err)
	assert.Equal(t, got, swapped)

	_, err = store.RangeCandles(ctx, "BTCUSDT", "1h", 0, candles[5].OpenTime)
	assert.Error(t, err)
}

func TestStoreUpsertByOpenTime(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	candles := hourlyCandles(5, 1700000000000)

	_, err := store.InsertCandles(ctx, "ETHUSDT", "1h", candles)
	require.NoError(t, err)

	// 相同 open_time 重写而不是追加。
	candles[2].Close = 999
	n, err := store.InsertCandles(ctx, "ETHUSDT", "1h", candles[2:3])
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	all, err := store.AllCandles(ctx, "ETHUSDT", "1h")
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, 999.0, all[2].Close)
}

func TestStoreManifest(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	candles := hourlyCandles(8, 1700000000000)

	_, err := store.InsertCandles(ctx, "btcusdt", "1h", candles)
	require.NoError(t, err)

	m, err := store.Manifest(ctx, "BTCUSDT", "1h")
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", m.Symbol)
	assert.Equal(t, "1h", m.Timeframe)
	assert.EqualValues(t, 8, m.Rows)
	assert.Equal(t, candles[0].OpenTime, m.MinTime)
	assert.Equal(t, candles[7].OpenTime, m.MaxTime)
	assert.NotEmpty(t, m.Path)
	assert.Greater(t, m.LastSyncAt, int64(0))
}

func TestStoreRejectsEmptyKey(t *testing.T) {
	store := newTestStore(t)
	_, err := store.AllCandles(context.Background(), "", "1h")
	assert.Error(t, err)
	_, err = store.AllCandles(context.Background(), "BTCUSDT", "")
	assert.Error(t, err)
}

func TestStoreInsertEmptyIsNoop(t *testing.T) {
	store := newTestStore(t)
	n, err := store.InsertCandles(context.Background(), "BTCUSDT", "1h", nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}
