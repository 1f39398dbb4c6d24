package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridbt/internal/combo"
	"gridbt/internal/eval"
	"gridbt/internal/market"
	"gridbt/internal/signal"
	"gridbt/internal/store/runstore"
)

func newTestService(t *testing.T) (*Service, *market.Store, *runstore.Store, string) {
	t.Helper()
	root := t.TempDir()

	candles, err := market.NewStore(filepath.Join(root, "data"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = candles.Close() })

	results, err := runstore.New(filepath.Join(root, "results.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = results.Close() })

	reportDir := filepath.Join(root, "reports")
	svc, err := NewService(ServiceConfig{
		Candles:   candles,
		Results:   results,
		ReportDir: reportDir,
	})
	require.NoError(t, err)
	return svc, candles, results, reportDir
}

func seedCandles(t *testing.T, store *market.Store, symbol string, n int) {
	t.Helper()
	step := time.Hour.Milliseconds()
	candles := make([]market.Candle, n)
	price := 100.0
	for i := range candles {
		if i%7 == 3 {
			price *= 0.97
		} else {
			price *= 1.01
		}
		ts := int64(1700000000000) + int64(i)*step
		candles[i] = market.Candle{
			OpenTime:  ts,
			CloseTime: ts + step - 1,
			Open:      price * 0.999,
			High:      price * 1.01,
			Low:       price * 0.99,
			Close:     price,
			Volume:    1000,
		}
	}
	_, err := store.InsertCandles(context.Background(), symbol, "1h", candles)
	require.NoError(t, err)
}

func smallParams() RunParams {
	return RunParams{
		Symbol:    "btcusdt",
		Timeframe: "1h",
		Grid: combo.Grid{
			Kinds:      []signal.Kind{signal.KindMA, signal.KindVWAP},
			ComboSizes: []int{1, 2},
			MA: combo.MAGrid{
				ShortPeriods: []int{3},
				LongPeriods:  []int{8},
				BandFilters:  []float64{0},
			},
			VWAP: combo.VWAPGrid{Enabled: true},
		},
		Costs: eval.Costs{
			StartCapital:   100000,
			CommissionRate: 0.0004,
			Leverage:       1,
		},
		InsampleRatio: 0.7,
		Workers:       2,
		TopN:          3,
	}
}

func waitForJob(t *testing.T, svc *Service, id string) Job {
	t.Helper()
	var job Job
	require.Eventually(t, func() bool {
		snap, ok := svc.JobSnapshot(id)
		if !ok {
			return false
		}
		job = snap
		return job.Status == JobStatusDone || job.Status == JobStatusFailed
	}, 30*time.Second, 20*time.Millisecond)
	return job
}

func TestSubmitRunCompletes(t *testing.T) {
	svc, candles, results, reportDir := newTestService(t)
	seedCandles(t, candles, "BTCUSDT", 300)

	job, err := svc.SubmitRun(smallParams())
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", job.Symbol)
	assert.Equal(t, 3, job.Combos)

	done := waitForJob(t, svc, job.ID)
	require.Equal(t, JobStatusDone, done.Status, done.Message)
	assert.Equal(t, 300, done.Bars)
	require.NotEmpty(t, done.RunID)

	run, err := results.GetRun(context.Background(), done.RunID)
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", run.Symbol)
	assert.Equal(t, 3, run.Combos)

	rows, err := results.ListRows(context.Background(), done.RunID, runstore.RowFilter{})
	require.NoError(t, err)
	assert.Len(t, rows, 3)

	htmlPath := filepath.Join(reportDir, done.RunID+".html")
	assert.Equal(t, htmlPath, done.ReportPath)
	_, err = os.Stat(htmlPath)
	assert.NoError(t, err)
}

func TestSubmitRunFailsWithoutData(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	job, err := svc.SubmitRun(smallParams())
	require.NoError(t, err)

	done := waitForJob(t, svc, job.ID)
	assert.Equal(t, JobStatusFailed, done.Status)
	assert.NotEmpty(t, done.Message)
}

func TestSubmitRunValidation(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	params := smallParams()
	params.Symbol = " "
	_, err := svc.SubmitRun(params)
	assert.Error(t, err)

	params = smallParams()
	params.Timeframe = "2h"
	_, err = svc.SubmitRun(params)
	assert.Error(t, err)

	params = smallParams()
	params.Aggregation = "median"
	_, err = svc.SubmitRun(params)
	assert.Error(t, err)

	params = smallParams()
	params.Grid.ComboSizes = nil
	_, err = svc.SubmitRun(params)
	assert.ErrorIs(t, err, combo.ErrBadGrid)
}

func TestSubmitRunWithPreset(t *testing.T) {
	svc, candles, _, _ := newTestService(t)
	seedCandles(t, candles, "BTCUSDT", 120)

	presetYAML := `
presets:
  vwap-only:
    grid:
      kinds: ["VWAP"]
      combo_sizes: [1]
      vwap: {enabled: true}
`
	path := filepath.Join(t.TempDir(), "presets.yaml")
	require.NoError(t, os.WriteFile(path, []byte(presetYAML), 0o644))
	reg, err := combo.NewPresetRegistry(path)
	require.NoError(t, err)
	svc.presets = reg

	params := smallParams()
	params.Preset = "vwap-only"
	job, err := svc.SubmitRun(params)
	require.NoError(t, err)
	assert.Equal(t, 1, job.Combos)

	done := waitForJob(t, svc, job.ID)
	assert.Equal(t, JobStatusDone, done.Status, done.Message)

	params.Preset = "missing"
	_, err = svc.SubmitRun(params)
	assert.Error(t, err)
}

func TestJobsSnapshotOrdering(t *testing.T) {
	svc, candles, _, _ := newTestService(t)
	seedCandles(t, candles, "BTCUSDT", 120)

	first, err := svc.SubmitRun(smallParams())
	require.NoError(t, err)
	waitForJob(t, svc, first.ID)

	second, err := svc.SubmitRun(smallParams())
	require.NoError(t, err)
	waitForJob(t, svc, second.ID)

	jobs := svc.JobsSnapshot()
	require.Len(t, jobs, 2)
	assert.False(t, jobs[1].StartedAt.After(jobs[0].StartedAt))
}

func TestImportCSV(t *testing.T) {
	svc, candles, _, _ := newTestService(t)

	var sb strings.Builder
	sb.WriteString("timestamp,open,high,low,close,volume\n")
	step := time.Hour.Milliseconds()
	for i := 0; i < 5; i++ {
		ts := int64(1700000000000) + int64(i)*step
		fmt.Fprintf(&sb, "%d,100,101,99,100.5,1000\n", ts)
	}
	path := filepath.Join(t.TempDir(), "btc.csv")
	require.NoError(t, os.WriteFile(path, []byte(sb.String()), 0o644))

	inserted, err := svc.ImportCSV(context.Background(), "btcusdt", "1h", path)
	require.NoError(t, err)
	assert.Equal(t, 5, inserted)

	manifest, err := svc.Manifest(context.Background(), "BTCUSDT", "1h")
	require.NoError(t, err)
	assert.EqualValues(t, 5, manifest.Rows)

	all, err := candles.AllCandles(context.Background(), "BTCUSDT", "1h")
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestQueryCandlesLimit(t *testing.T) {
	svc, candles, _, _ := newTestService(t)
	seedCandles(t, candles, "ETHUSDT", 50)

	all, err := svc.AllCandles(context.Background(), "ethusdt", "1h")
	require.NoError(t, err)
	require.Len(t, all, 50)

	got, err := svc.QueryCandles(context.Background(), "ETHUSDT", "1h", all[0].OpenTime, all[49].OpenTime, 10)
	require.NoError(t, err)
	require.Len(t, got, 10)
	// limit 从尾部截取，保留最新数据。
	assert.Equal(t, all[40].OpenTime, got[0].OpenTime)
}
