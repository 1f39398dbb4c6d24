// Package eval 负责把组合全集调度到 IS/OOS 两段行情上并汇总结果。
// 单个组合的失败只记录在自己的结果行里，绝不中断整批评估。
package eval

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"gridbt/internal/combo"
	"gridbt/internal/engine"
	"gridbt/internal/indicator"
	"gridbt/internal/logger"
	"gridbt/internal/market"
	"gridbt/internal/score"
	"gridbt/internal/signal"
)

// Costs 是全局成交与资金参数，对每个组合一视同仁。
type Costs struct {
	CommissionRate float64 `mapstructure:"commission_rate" json:"commission_rate"`
	SlippageRate   float64 `mapstructure:"slippage_rate" json:"slippage_rate"`
	Leverage       float64 `mapstructure:"leverage" json:"leverage"`
	AllowShort     bool    `mapstructure:"allow_short" json:"allow_short"`
	StartCapital   float64 `mapstructure:"start_capital" json:"start_capital"`
}

// Request 是一次批量评估的完整输入。
// Combos 非空时直接使用（序号必须连续从 0 开始），否则由 Grid 生成。
type Request struct {
	Candles       []market.Candle
	Timeframe     market.Timeframe
	Grid          combo.Grid
	Combos        []combo.Combo
	Aggregation   signal.Mode
	Costs         Costs
	InsampleRatio float64

	Workers        int
	RiskFreeAnnual float64
	Weights        score.Weights
}

// Phase 保存组合在某一段行情（IS 或 OOS）上的完整评估产物。
// EndPosition 非 Flat 表示期末仍有持仓被强平。
type Phase struct {
	Card        score.Card     `json:"card"`
	Equity      []float64      `json:"equity"`
	Returns     []float64      `json:"returns"`
	Trades      []engine.Trade `json:"trades"`
	EndPosition int            `json:"end_position"`
	Pass        bool           `json:"pass"`
}

// Row 是单个组合的结果行。Err 非空时其余字段不可信。
type Row struct {
	Combo combo.Combo `json:"combo"`
	Label string      `json:"label"`
	IS    *Phase      `json:"is,omitempty"`
	OOS   *Phase      `json:"oos,omitempty"`
	Pass  bool        `json:"pass"`
	Err   string      `json:"err,omitempty"`
}

// Report 是一次运行的全部输出，Rows 按组合生成顺序排列。
type Report struct {
	RunID       string        `json:"run_id"`
	Timeframe   string        `json:"timeframe"`
	Bars        int           `json:"bars"`
	InsampleCut int           `json:"insample_cut"`
	StartedAt   time.Time     `json:"started_at"`
	Elapsed     time.Duration `json:"elapsed"`

	BenchmarkIS  Phase `json:"benchmark_is"`
	BenchmarkOOS Phase `json:"benchmark_oos"`

	Rows     []Row `json:"rows"`
	ISPassed int   `json:"is_passed"`
	Passed   int   `json:"passed"`
	Failed   int   `json:"failed"`
}

// Evaluate 生成组合、跑基准、并发评估 IS，再把 IS 通过者放到 OOS 上复核。
// 结果顺序与组合生成顺序一致，保证同一配置下输出可复现。
func Evaluate(ctx context.Context, req Request) (*Report, error) {
	combos := req.Combos
	if len(combos) == 0 {
		var err error
		combos, err = combo.Generate(req.Grid)
		if err != nil {
			return nil, err
		}
	}
	if len(req.Candles) < 2 {
		return nil, fmt.Errorf("need at least 2 candles, got %d", len(req.Candles))
	}
	if req.Aggregation == "" {
		req.Aggregation = signal.ModeSum
	}
	workers := req.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	isCandles, oosCandles := market.Split(req.Candles, req.InsampleRatio)
	isFrame := indicator.NewFrame(isCandles)
	oosFrame := indicator.NewFrame(oosCandles)

	report := &Report{
		RunID:       uuid.NewString(),
		Timeframe:   req.Timeframe.Key,
		Bars:        len(req.Candles),
		InsampleCut: len(isCandles),
		StartedAt:   time.Now(),
		Rows:        make([]Row, len(combos)),
	}
	logger.Infof("评估开始 run=%s combos=%d bars=%d is=%d oos=%d workers=%d",
		report.RunID, len(combos), len(req.Candles), len(isCandles), len(oosCandles), workers)

	// B/H 基准：始终满仓做多，两段各算一次。
	bhIS, err := runBenchmark(isFrame, req)
	if err != nil {
		return nil, fmt.Errorf("in-sample benchmark failed: %w", err)
	}
	report.BenchmarkIS = bhIS
	if len(oosCandles) >= 2 {
		bhOOS, err := runBenchmark(oosFrame, req)
		if err != nil {
			return nil, fmt.Errorf("out-of-sample benchmark failed: %w", err)
		}
		report.BenchmarkOOS = bhOOS
	}

	// IS 阶段：全量并发评估，结果按组合序号写入预分配切片。
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, c := range combos {
		c := c
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			row := Row{Combo: c, Label: c.Label()}
			phase, err := evaluateOne(isFrame, c, req)
			if err != nil {
				row.Err = err.Error()
			} else {
				phase.Pass = beatsBenchmark(phase.Card, report.BenchmarkIS.Card)
				row.IS = &phase
			}
			report.Rows[c.Index] = row
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// OOS 阶段：只复核 IS 通过者。
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range report.Rows {
		row := &report.Rows[i]
		if row.Err != "" || row.IS == nil || !row.IS.Pass {
			continue
		}
		if len(oosCandles) < 2 {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			phase, err := evaluateOne(oosFrame, row.Combo, req)
			if err != nil {
				row.Err = err.Error()
				return nil
			}
			phase.Pass = beatsBenchmark(phase.Card, report.BenchmarkOOS.Card)
			row.OOS = &phase
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i := range report.Rows {
		row := &report.Rows[i]
		switch {
		case row.Err != "":
			report.Failed++
		case row.IS != nil && row.IS.Pass:
			report.ISPassed++
		}
		row.Pass = row.Err == "" &&
			row.IS != nil && row.IS.Pass &&
			row.OOS != nil && row.OOS.Pass
		if row.Pass {
			report.Passed++
		}
	}
	report.Elapsed = time.Since(report.StartedAt)
	logger.Infof("评估完成 run=%s is_passed=%d passed=%d failed=%d elapsed=%s",
		report.RunID, report.ISPassed, report.Passed, report.Failed, report.Elapsed)
	return report, nil
}

// beatsBenchmark 的通过标准：收益与 Sharpe 同时不低于基准。
func beatsBenchmark(card, benchmark score.Card) bool {
	return card.Return >= benchmark.Return && card.Sharpe >= benchmark.Sharpe
}

// evaluateOne 在给定 Frame 上跑完一个组合的信号、推演与评分。
func evaluateOne(f *indicator.Frame, c combo.Combo, req Request) (Phase, error) {
	rules, err := signal.BuildAll(c.Rules)
	if err != nil {
		return Phase{}, err
	}
	signals, err := signal.EvaluateRules(f, rules, req.Aggregation)
	if err != nil {
		return Phase{}, err
	}
	return runPhase(f, signals, engine.Settings{
		StartCapital:   req.Costs.StartCapital,
		CommissionRate: req.Costs.CommissionRate,
		SlippageRate:   req.Costs.SlippageRate,
		Leverage:       req.Costs.Leverage,
		AllowShort:     req.Costs.AllowShort,
		BuyDelay:       c.BuyDelay,
		SellDelay:      c.SellDelay,
		HoldingPeriod:  c.Holding,
	}, req)
}

// runBenchmark 用始终做多的信号序列评估 B/H。
func runBenchmark(f *indicator.Frame, req Request) (Phase, error) {
	signals := make([]int, f.Len())
	for i := range signals {
		signals[i] = engine.Long
	}
	return runPhase(f, signals, engine.Settings{
		StartCapital:   req.Costs.StartCapital,
		CommissionRate: req.Costs.CommissionRate,
		SlippageRate:   req.Costs.SlippageRate,
		Leverage:       1,
		AllowShort:     false,
		BuyDelay:       1,
		SellDelay:      1,
		HoldingPeriod:  math.Inf(1),
	}, req)
}

func runPhase(f *indicator.Frame, signals []int, settings engine.Settings, req Request) (Phase, error) {
	res, err := engine.Run(f.Candles(), signals, settings)
	if err != nil {
		return Phase{}, err
	}
	card, err := score.Compute(res.Equity, res.Returns, res.Trades, score.Options{
		Timeframe:      req.Timeframe,
		RiskFreeAnnual: req.RiskFreeAnnual,
		Weights:        req.Weights,
	})
	if err != nil {
		return Phase{}, err
	}
	return Phase{
		Card:        card,
		Equity:      res.Equity,
		Returns:     res.Returns,
		Trades:      res.Trades,
		EndPosition: res.EndPosition,
	}, nil
}

// TopRows 按综合得分挑选 OOS 通过的前 n 行（用于报表）。
func (r *Report) TopRows(n int) []Row {
	rows := make([]Row, 0, len(r.Rows))
	for _, row := range r.Rows {
		if row.Pass {
			rows = append(rows, row)
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rowScore(rows[i]) > rowScore(rows[j])
	})
	if len(rows) > n {
		rows = rows[:n]
	}
	return rows
}

func rowScore(r Row) float64 {
	if r.OOS != nil {
		return r.OOS.Card.Score
	}
	if r.IS != nil {
		return r.IS.Card.Score
	}
	return math.Inf(-1)
}
