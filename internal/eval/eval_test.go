package eval

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridbt/internal/combo"
	"gridbt/internal/market"
	"gridbt/internal/score"
	"gridbt/internal/signal"
)

func syntheticCandles(n int) []market.Candle {
	candles := make([]market.Candle, n)
	price := 100.0
	for i := 0; i < n; i++ {
		// 带回撤的上行行情，保证多头与空头信号都会出现。
		if i%7 == 3 {
			price *= 0.97
		} else {
			price *= 1.01
		}
		candles[i] = market.Candle{
			OpenTime:  int64(i+1) * 3_600_000,
			CloseTime: int64(i+2)*3_600_000 - 1,
			Open:      price * 0.999,
			High:      price * 1.004,
			Low:       price * 0.996,
			Close:     price,
			Volume:    50 + float64(i%10),
		}
	}
	return candles
}

func testRequest(t *testing.T, n int) Request {
	t.Helper()
	tf, err := market.ParseTimeframe("1h")
	require.NoError(t, err)
	return Request{
		Candles:   syntheticCandles(n),
		Timeframe: tf,
		Grid: combo.Grid{
			Kinds:      []signal.Kind{signal.KindMA, signal.KindVWAP},
			ComboSizes: []int{1, 2},
			MA: combo.MAGrid{
				ShortPeriods: []int{2, 3},
				LongPeriods:  []int{5},
				BandFilters:  []float64{0},
			},
			VWAP: combo.VWAPGrid{Enabled: true},
		},
		Aggregation:   signal.ModeSum,
		Costs:         Costs{CommissionRate: 0.0004, SlippageRate: 0.0002, Leverage: 1, AllowShort: true, StartCapital: 100_000},
		InsampleRatio: 0.7,
		Workers:       4,
	}
}

func TestEvaluatePreservesComboOrder(t *testing.T) {
	report, err := Evaluate(context.Background(), testRequest(t, 80))
	require.NoError(t, err)
	// MA 2 点 + VWAP 1 点 + MA×VWAP 2 点。
	require.Len(t, report.Rows, 5)
	for i, row := range report.Rows {
		assert.Equal(t, i, row.Combo.Index, "row %d", i)
		assert.NotEmpty(t, row.Label)
	}
}

func TestEvaluateIsReproducible(t *testing.T) {
	req := testRequest(t, 80)
	a, err := Evaluate(context.Background(), req)
	require.NoError(t, err)
	b, err := Evaluate(context.Background(), req)
	require.NoError(t, err)

	require.Equal(t, len(a.Rows), len(b.Rows))
	for i := range a.Rows {
		assert.Equal(t, a.Rows[i].IS, b.Rows[i].IS, "row %d", i)
		assert.Equal(t, a.Rows[i].OOS, b.Rows[i].OOS, "row %d", i)
		assert.Equal(t, a.Rows[i].Pass, b.Rows[i].Pass, "row %d", i)
	}
}

func TestEvaluatePassRequiresBothPhases(t *testing.T) {
	report, err := Evaluate(context.Background(), testRequest(t, 80))
	require.NoError(t, err)

	for i, row := range report.Rows {
		want := row.Err == "" &&
			row.IS != nil && row.IS.Pass &&
			row.OOS != nil && row.OOS.Pass
		assert.Equal(t, want, row.Pass, "row %d", i)

		if row.IS != nil {
			assert.Equal(t,
				beatsBenchmark(row.IS.Card, report.BenchmarkIS.Card),
				row.IS.Pass, "row %d IS", i)
		}
		// 只有 IS 通过者才会有 OOS 结果。
		if row.IS == nil || !row.IS.Pass {
			assert.Nil(t, row.OOS, "row %d", i)
		}
	}
}

func TestEvaluateBenchmarkIsAlwaysLong(t *testing.T) {
	report, err := Evaluate(context.Background(), testRequest(t, 80))
	require.NoError(t, err)

	require.Len(t, report.BenchmarkIS.Trades, 1)
	bh := report.BenchmarkIS.Trades[0]
	assert.Equal(t, 0, bh.EntryIndex)
	assert.True(t, bh.Forced)
	assert.Equal(t, report.InsampleCut, bh.ExitIndex)
}

func TestEvaluateContainsPerComboErrors(t *testing.T) {
	req := testRequest(t, 80)
	req.Combos = []combo.Combo{
		{Index: 0, Rules: []signal.Params{{Kind: signal.KindVWAP}}, BuyDelay: 1, SellDelay: 1, Holding: math.Inf(1)},
		{Index: 1, Rules: []signal.Params{{Kind: signal.Kind("MFI")}}, BuyDelay: 1, SellDelay: 1, Holding: math.Inf(1)},
	}

	report, err := Evaluate(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, report.Rows, 2)

	assert.Empty(t, report.Rows[0].Err)
	assert.NotNil(t, report.Rows[0].IS)

	assert.NotEmpty(t, report.Rows[1].Err)
	assert.Nil(t, report.Rows[1].IS)
	assert.False(t, report.Rows[1].Pass)
	assert.Equal(t, 1, report.Failed)
}

func TestBeatsBenchmark(t *testing.T) {
	bh := score.Card{Return: 0.10, Sharpe: 1.0}

	assert.True(t, beatsBenchmark(score.Card{Return: 0.10, Sharpe: 1.0}, bh))
	assert.True(t, beatsBenchmark(score.Card{Return: 0.15, Sharpe: 1.2}, bh))
	assert.False(t, beatsBenchmark(score.Card{Return: 0.09, Sharpe: 1.2}, bh))
	assert.False(t, beatsBenchmark(score.Card{Return: 0.15, Sharpe: 0.9}, bh))
}

func TestEvaluateRejectsTinySeries(t *testing.T) {
	req := testRequest(t, 80)
	req.Candles = req.Candles[:1]
	_, err := Evaluate(context.Background(), req)
	assert.Error(t, err)
}

func TestReportTopRows(t *testing.T) {
	report, err := Evaluate(context.Background(), testRequest(t, 80))
	require.NoError(t, err)

	top := report.TopRows(3)
	assert.LessOrEqual(t, len(top), 3)
	for i := 1; i < len(top); i++ {
		assert.GreaterOrEqual(t, rowScore(top[i-1]), rowScore(top[i]))
	}
	for _, row := range top {
		assert.True(t, row.Pass)
	}
}
