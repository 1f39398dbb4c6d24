package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridbt/internal/signal"
)

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "config.yaml", `
dataset:
  symbol: btcusdt
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.App.Env)
	assert.Equal(t, ":9980", cfg.App.HTTPAddr)
	assert.Equal(t, "BTCUSDT", cfg.Dataset.Symbol)
	assert.Equal(t, "1h", cfg.Dataset.Timeframe)
	assert.Equal(t, 100000.0, cfg.Costs.StartCapital)
	assert.Equal(t, 0.0004, cfg.Costs.CommissionRate)
	assert.Equal(t, 1.0, cfg.Costs.Leverage)
	assert.Equal(t, "sum", cfg.Eval.Aggregation)
	assert.Equal(t, 0.7, cfg.Eval.InsampleRatio)
	assert.Equal(t, 5, cfg.Report.TopN)
	assert.Equal(t, "data/results.db", cfg.Store.ResultsPath)
}

func TestLoadExplicitZeroCommissionKept(t *testing.T) {
	// 显式写 0 的字段不应被默认值覆盖。
	path := writeConfig(t, t.TempDir(), "config.yaml", `
costs:
  commission_rate: 0
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.0, cfg.Costs.CommissionRate)
}

func TestLoadGridAndKinds(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "config.yaml", `
grid:
  kinds: ["MA", "VWAP"]
  combo_sizes: [1, 2]
  buy_delays: [1, 2]
  holding_periods: [0, 24]
  ma:
    short_periods: [5, 20]
    long_periods: [50]
    band_filters: [0, 0.01]
  vwap:
    enabled: true
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Grid.Kinds, 2)
	assert.Equal(t, signal.KindMA, cfg.Grid.Kinds[0])
	assert.Equal(t, []int{5, 20}, cfg.Grid.MA.ShortPeriods)
	assert.True(t, cfg.Grid.VWAP.Enabled)
	assert.Equal(t, []float64{0, 24}, cfg.Grid.HoldingPeriods)
}

func TestLoadInclude(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "base.yaml", `
app:
  http_addr: ":8000"
costs:
  start_capital: 50000
`)
	path := writeConfig(t, dir, "config.yaml", `
include:
  - base.yaml
costs:
  start_capital: 200000
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	// 主文件覆盖 include，未覆盖的字段沿用 include。
	assert.Equal(t, 200000.0, cfg.Costs.StartCapital)
	assert.Equal(t, ":8000", cfg.App.HTTPAddr)
}

func TestLoadIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "a.yaml", "include: [b.yaml]\n")
	writeConfig(t, dir, "b.yaml", "include: [a.yaml]\n")
	_, err := Load(filepath.Join(dir, "a.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestLoadValidation(t *testing.T) {
	cases := map[string]string{
		"bad timeframe": `
dataset:
  timeframe: 2h
`,
		"bad aggregation": `
eval:
  aggregation: median
`,
		"bad ratio": `
eval:
  insample_ratio: 1.5
`,
		"negative weight": `
eval:
  weights:
    sharpe: -1
`,
		"negative commission": `
costs:
  commission_rate: -0.1
`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := writeConfig(t, t.TempDir(), "config.yaml", content)
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}
