// Package runner 把一次批量评估包装成可查询的后台任务，
// 负责取数、调度评估、落库与生成报表。
package runner

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"gridbt/internal/combo"
	"gridbt/internal/eval"
	"gridbt/internal/logger"
	"gridbt/internal/market"
	"gridbt/internal/report"
	"gridbt/internal/score"
	"gridbt/internal/signal"
	"gridbt/internal/store/runstore"
)

const (
	JobStatusPending = "pending"
	JobStatusRunning = "running"
	JobStatusDone    = "done"
	JobStatusFailed  = "failed"
)

// RunParams 是提交一次评估任务的全部输入。
// Preset 非空时网格从预设库解析，忽略内联 Grid。
type RunParams struct {
	Symbol        string     `json:"symbol"`
	Timeframe     string     `json:"timeframe"`
	Preset        string     `json:"preset,omitempty"`
	Grid          combo.Grid `json:"grid"`
	Aggregation   string     `json:"aggregation"`
	Costs         eval.Costs `json:"costs"`
	InsampleRatio float64    `json:"insample_ratio"`

	Workers        int           `json:"workers"`
	RiskFreeAnnual float64       `json:"risk_free_annual"`
	Weights        score.Weights `json:"weights"`
	TopN           int           `json:"top_n"`
}

// Job 是评估任务的对外快照。
type Job struct {
	ID         string    `json:"id"`
	Status     string    `json:"status"`
	Symbol     string    `json:"symbol"`
	Timeframe  string    `json:"timeframe"`
	Combos     int       `json:"combos"`
	Bars       int       `json:"bars"`
	ISPassed   int       `json:"is_passed"`
	Passed     int       `json:"passed"`
	Failed     int       `json:"failed"`
	RunID      string    `json:"run_id,omitempty"`
	ReportPath string    `json:"report_path,omitempty"`
	Message    string    `json:"message,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (j *Job) copy() Job { return *j }

// ServiceConfig 描述 runner 的依赖。
type ServiceConfig struct {
	Candles       *market.Store
	Results       *runstore.Store
	Presets       *combo.PresetRegistry
	ReportDir     string
	MaxConcurrent int
}

// Service 管理评估任务的生命周期。
type Service struct {
	candles   *market.Store
	results   *runstore.Store
	presets   *combo.PresetRegistry
	reportDir string

	sem chan struct{}

	mu   sync.RWMutex
	jobs map[string]*Job

	baseCtx context.Context
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Candles == nil {
		return nil, fmt.Errorf("candle store 不能为空")
	}
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Service{
		candles:   cfg.Candles,
		results:   cfg.Results,
		presets:   cfg.Presets,
		reportDir: cfg.ReportDir,
		sem:       make(chan struct{}, maxConcurrent),
		jobs:      make(map[string]*Job),
		baseCtx:   context.Background(),
	}, nil
}

// SetContext 注入宿主 ctx，用于任务取消。
func (s *Service) SetContext(ctx context.Context) {
	if ctx != nil {
		s.baseCtx = ctx
	}
}

func (s *Service) ctx() context.Context {
	if s.baseCtx == nil {
		return context.Background()
	}
	return s.baseCtx
}

// SubmitRun 校验参数并异步启动评估。组合全集在提交时生成，
// 参数有问题立即报错而不是留给后台任务。
func (s *Service) SubmitRun(params RunParams) (Job, error) {
	if strings.TrimSpace(params.Symbol) == "" {
		return Job{}, fmt.Errorf("symbol 不能为空")
	}
	tf, err := market.ParseTimeframe(params.Timeframe)
	if err != nil {
		return Job{}, err
	}
	mode := signal.ModeSum
	if params.Aggregation != "" {
		mode, err = signal.ParseMode(params.Aggregation)
		if err != nil {
			return Job{}, err
		}
	}
	if params.Preset != "" {
		if s.presets == nil {
			return Job{}, fmt.Errorf("预设库未配置")
		}
		p, ok := s.presets.Preset(params.Preset)
		if !ok {
			return Job{}, fmt.Errorf("未知预设: %s", params.Preset)
		}
		params.Grid = p.Grid
	}
	combos, err := combo.Generate(params.Grid)
	if err != nil {
		return Job{}, err
	}
	if len(combos) == 0 {
		return Job{}, fmt.Errorf("组合全集为空，请检查参数网格")
	}

	job := &Job{
		ID:        uuid.NewString(),
		Status:    JobStatusPending,
		Symbol:    strings.ToUpper(params.Symbol),
		Timeframe: tf.Key,
		Combos:    len(combos),
		StartedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()
	logger.Infof("[runner] 任务 %s 提交：%s %s combos=%d", job.ID, job.Symbol, job.Timeframe, len(combos))

	go s.runJob(job.ID, params, tf, mode, combos)
	return job.copy(), nil
}

func (s *Service) runJob(jobID string, params RunParams, tf market.Timeframe, mode signal.Mode, combos []combo.Combo) {
	select {
	case s.sem <- struct{}{}:
	case <-s.ctx().Done():
		s.fail(jobID, "服务已关闭")
		return
	}
	defer func() { <-s.sem }()

	ctx := s.ctx()
	symbol := strings.ToUpper(params.Symbol)
	s.updateJob(jobID, func(j *Job) { j.Status = JobStatusRunning })

	candles, err := s.candles.AllCandles(ctx, symbol, tf.Key)
	if err != nil {
		s.fail(jobID, fmt.Sprintf("读取行情失败: %v", err))
		return
	}
	if len(candles) < 2 {
		s.fail(jobID, fmt.Sprintf("%s %s 本地数据不足，请先导入 CSV", symbol, tf.Key))
		return
	}

	rep, err := eval.Evaluate(ctx, eval.Request{
		Candles:        candles,
		Timeframe:      tf,
		Combos:         combos,
		Aggregation:    mode,
		Costs:          params.Costs,
		InsampleRatio:  params.InsampleRatio,
		Workers:        params.Workers,
		RiskFreeAnnual: params.RiskFreeAnnual,
		Weights:        params.Weights,
	})
	if err != nil {
		s.fail(jobID, fmt.Sprintf("评估失败: %v", err))
		return
	}

	if s.results != nil {
		if err := s.results.SaveReport(ctx, symbol, string(mode), params, rep); err != nil {
			s.fail(jobID, fmt.Sprintf("结果落库失败: %v", err))
			return
		}
	}

	reportPath := ""
	if s.reportDir != "" {
		reportPath = s.ReportPath(rep.RunID)
		if err := report.WriteHTML(reportPath, symbol, rep, params.TopN); err != nil {
			// 报表只是附属产物，失败不拖垮整个任务。
			logger.Warnf("[runner] 任务 %s 报表生成失败: %v", jobID, err)
			reportPath = ""
		}
	}

	logger.InfoBlock(leaderboard(rep, params.TopN))

	s.updateJob(jobID, func(j *Job) {
		j.Status = JobStatusDone
		j.Bars = rep.Bars
		j.ISPassed = rep.ISPassed
		j.Passed = rep.Passed
		j.Failed = rep.Failed
		j.RunID = rep.RunID
		j.ReportPath = reportPath
		j.Message = "评估完成"
		j.UpdatedAt = time.Now()
	})
	logger.Infof("[runner] 任务 %s 完成 run=%s passed=%d/%d", jobID, rep.RunID, rep.Passed, len(rep.Rows))
}

// leaderboard 渲染双重筛选通过者的文字排行榜。
func leaderboard(rep *eval.Report, topN int) string {
	top := rep.TopRows(topN)
	if len(top) == 0 {
		return fmt.Sprintf("run=%s 没有组合通过双重筛选（基准 IS 收益 %.2f%%）",
			rep.RunID, rep.BenchmarkIS.Card.Return*100)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "run=%s 通过 %d/%d，排行：", rep.RunID, rep.Passed, len(rep.Rows))
	for i, row := range top {
		oos := row.OOS
		if oos == nil {
			continue
		}
		fmt.Fprintf(&b, "\n%2d. %-40s score=%.4f oos收益=%.2f%% sharpe=%.2f",
			i+1, row.Label, oos.Card.Score, oos.Card.Return*100, oos.Card.Sharpe)
	}
	return b.String()
}

func (s *Service) fail(jobID, message string) {
	s.updateJob(jobID, func(j *Job) {
		j.Status = JobStatusFailed
		j.Message = message
		j.UpdatedAt = time.Now()
	})
	logger.Warnf("[runner] 任务 %s 失败: %s", jobID, message)
}

func (s *Service) updateJob(id string, fn func(*Job)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[id]; ok && fn != nil {
		fn(job)
	}
}

// JobSnapshot 返回任务副本。
func (s *Service) JobSnapshot(id string) (Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return Job{}, false
	}
	return job.copy(), true
}

// JobsSnapshot 返回所有任务的拷贝列表，按提交时间倒序。
func (s *Service) JobsSnapshot() []Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, job.copy())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out
}

// Presets 返回预设列表，未配置预设库时为 nil。
func (s *Service) Presets() []combo.Preset {
	if s.presets == nil {
		return nil
	}
	return s.presets.Presets()
}

// ReportPath 返回某次 run 的报表文件路径。
func (s *Service) ReportPath(runID string) string {
	if s.reportDir == "" {
		return ""
	}
	return filepath.Join(s.reportDir, runID+".html")
}

// ImportCSV 把本地 CSV 行情导入 K 线缓存，返回新写入的行数。
func (s *Service) ImportCSV(ctx context.Context, symbol, timeframe, path string) (int, error) {
	if strings.TrimSpace(symbol) == "" {
		return 0, fmt.Errorf("symbol 不能为空")
	}
	tf, err := market.ParseTimeframe(timeframe)
	if err != nil {
		return 0, err
	}
	candles, err := market.ReadCSV(path, tf)
	if err != nil {
		return 0, err
	}
	inserted, err := s.candles.InsertCandles(ctx, strings.ToUpper(symbol), tf.Key, candles)
	if err != nil {
		return 0, err
	}
	logger.Infof("[runner] 导入 %s：%s %s 新增 %d/%d 根", path, strings.ToUpper(symbol), tf.Key, inserted, len(candles))
	return inserted, nil
}

// Manifest 查询本地数据集统计。
func (s *Service) Manifest(ctx context.Context, symbol, timeframe string) (market.Manifest, error) {
	if symbol == "" || timeframe == "" {
		return market.Manifest{}, fmt.Errorf("symbol/timeframe 不能为空")
	}
	return s.candles.Manifest(ctx, strings.ToUpper(symbol), timeframe)
}

// QueryCandles 读取指定区间 K 线，limit<=0 时默认 200。
func (s *Service) QueryCandles(ctx context.Context, symbol, timeframe string, start, end int64, limit int) ([]market.Candle, error) {
	if symbol == "" || timeframe == "" {
		return nil, fmt.Errorf("symbol/timeframe 不能为空")
	}
	candles, err := s.candles.RangeCandles(ctx, strings.ToUpper(symbol), timeframe, start, end)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 200
	}
	if len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}
	return candles, nil
}

// AllCandles 返回完整数据集。
func (s *Service) AllCandles(ctx context.Context, symbol, timeframe string) ([]market.Candle, error) {
	if symbol == "" || timeframe == "" {
		return nil, fmt.Errorf("symbol/timeframe 不能为空")
	}
	return s.candles.AllCandles(ctx, strings.ToUpper(symbol), timeframe)
}
