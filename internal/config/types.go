package config

import (
	"strings"

	"gridbt/internal/combo"
	"gridbt/internal/eval"
	"gridbt/internal/score"
)

// Config 是 gridbt 的主配置载体。
type Config struct {
	App     AppConfig     `mapstructure:"app"`
	Dataset DatasetConfig `mapstructure:"dataset"`
	Costs   eval.Costs    `mapstructure:"costs"`
	Grid    combo.Grid    `mapstructure:"grid"`
	Eval    EvalConfig    `mapstructure:"eval"`
	Store   StoreConfig   `mapstructure:"store"`
	Report  ReportConfig  `mapstructure:"report"`
}

type AppConfig struct {
	Env      string `mapstructure:"env"`
	LogLevel string `mapstructure:"log_level"`
	HTTPAddr string `mapstructure:"http_addr"`
	LogPath  string `mapstructure:"log_path"`
}

// DatasetConfig 描述默认评估的数据集与本地缓存位置。
type DatasetConfig struct {
	Symbol    string `mapstructure:"symbol"`
	Timeframe string `mapstructure:"timeframe"`
	DataRoot  string `mapstructure:"data_root"`
	CSVPath   string `mapstructure:"csv_path"`
}

// EvalConfig 控制评估调度与评分。
type EvalConfig struct {
	Aggregation       string        `mapstructure:"aggregation"`
	InsampleRatio     float64       `mapstructure:"insample_ratio"`
	Workers           int           `mapstructure:"workers"`
	MaxConcurrentRuns int           `mapstructure:"max_concurrent_runs"`
	RiskFreeAnnual    float64       `mapstructure:"risk_free_annual"`
	Weights           score.Weights `mapstructure:"weights"`
	PresetsPath       string        `mapstructure:"presets_path"`
}

type StoreConfig struct {
	ResultsPath string `mapstructure:"results_path"`
}

type ReportConfig struct {
	Dir  string `mapstructure:"dir"`
	TopN int    `mapstructure:"top_n"`
}

// keySet 用于追踪配置文件中显式设置的字段路径。
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault 描述单个字段的默认值设置规则。
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
