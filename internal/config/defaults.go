package config

import "strings"

// 默认值常量
const (
	defaultAppEnv      = "dev"
	defaultAppLogLevel = "info"
	defaultAppHTTPAddr = ":9980"

	defaultDatasetTimeframe = "1h"
	defaultDatasetDataRoot  = "data/candles"

	defaultCostStartCapital   = 100000
	defaultCostCommissionRate = 0.0004
	defaultCostLeverage       = 1

	defaultEvalAggregation   = "sum"
	defaultEvalInsampleRatio = 0.7
	defaultEvalMaxConcurrent = 1

	defaultStoreResultsPath = "data/results.db"
	defaultReportDir        = "data/reports"
	defaultReportTopN       = 5
)

// applyDefaults 为所有子配置应用默认值。
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Dataset.applyDefaults(keys)
	c.applyCostDefaults(keys)
	c.Eval.applyDefaults(keys)
	c.Store.applyDefaults(keys)
	c.Report.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
	)
}

func (d *DatasetConfig) applyDefaults(keys keySet) {
	if d == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("dataset.timeframe", &d.Timeframe, defaultDatasetTimeframe),
		stringFieldDefault("dataset.data_root", &d.DataRoot, defaultDatasetDataRoot),
	)
	d.Symbol = strings.ToUpper(strings.TrimSpace(d.Symbol))
}

func (c *Config) applyCostDefaults(keys keySet) {
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "costs.start_capital",
			need:  func() bool { return c.Costs.StartCapital <= 0 },
			apply: func() { c.Costs.StartCapital = defaultCostStartCapital },
		},
		fieldDefault{
			key:   "costs.commission_rate",
			need:  func() bool { return c.Costs.CommissionRate == 0 },
			apply: func() { c.Costs.CommissionRate = defaultCostCommissionRate },
		},
		fieldDefault{
			key:   "costs.leverage",
			need:  func() bool { return c.Costs.Leverage <= 0 },
			apply: func() { c.Costs.Leverage = defaultCostLeverage },
		},
	)
	if c.Costs.SlippageRate < 0 {
		c.Costs.SlippageRate = 0
	}
}

func (e *EvalConfig) applyDefaults(keys keySet) {
	if e == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("eval.aggregation", &e.Aggregation, defaultEvalAggregation),
		fieldDefault{
			key:   "eval.insample_ratio",
			need:  func() bool { return e.InsampleRatio <= 0 || e.InsampleRatio >= 1 },
			apply: func() { e.InsampleRatio = defaultEvalInsampleRatio },
		},
		fieldDefault{
			key:   "eval.max_concurrent_runs",
			need:  func() bool { return e.MaxConcurrentRuns <= 0 },
			apply: func() { e.MaxConcurrentRuns = defaultEvalMaxConcurrent },
		},
	)
	if e.Workers < 0 {
		e.Workers = 0
	}
}

func (s *StoreConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("store.results_path", &s.ResultsPath, defaultStoreResultsPath),
	)
}

func (r *ReportConfig) applyDefaults(keys keySet) {
	if r == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("report.dir", &r.Dir, defaultReportDir),
		fieldDefault{
			key:   "report.top_n",
			need:  func() bool { return r.TopN <= 0 },
			apply: func() { r.TopN = defaultReportTopN },
		},
	)
}

// Helper functions

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}
