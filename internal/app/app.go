// Package app 负责应用级编排：加载配置→初始化依赖→启动 HTTP 服务。
package app

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"gridbt/internal/combo"
	"gridbt/internal/config"
	"gridbt/internal/logger"
	"gridbt/internal/market"
	"gridbt/internal/runner"
	"gridbt/internal/store/runstore"
	httpapi "gridbt/internal/transport/http"
)

// App 持有 gridbt 的全部运行时依赖。
type App struct {
	cfg     *config.Config
	candles *market.Store
	results *runstore.Store
	runner  *runner.Service
	server  *httpapi.Server
}

// NewApp 根据配置构建应用对象（不启动）。
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)

	candles, err := market.NewStore(cfg.Dataset.DataRoot)
	if err != nil {
		return nil, fmt.Errorf("初始化行情缓存失败: %w", err)
	}
	results, err := runstore.New(cfg.Store.ResultsPath)
	if err != nil {
		_ = candles.Close()
		return nil, fmt.Errorf("初始化结果库失败: %w", err)
	}
	var presets *combo.PresetRegistry
	if strings.TrimSpace(cfg.Eval.PresetsPath) != "" {
		presets, err = combo.NewPresetRegistry(cfg.Eval.PresetsPath)
		if err != nil {
			_ = results.Close()
			_ = candles.Close()
			return nil, fmt.Errorf("加载网格预设失败: %w", err)
		}
	}
	svc, err := runner.NewService(runner.ServiceConfig{
		Candles:       candles,
		Results:       results,
		Presets:       presets,
		ReportDir:     cfg.Report.Dir,
		MaxConcurrent: cfg.Eval.MaxConcurrentRuns,
	})
	if err != nil {
		_ = results.Close()
		_ = candles.Close()
		return nil, err
	}
	server, err := httpapi.NewServer(httpapi.Config{
		Addr:    cfg.App.HTTPAddr,
		Runner:  svc,
		Results: results,
	})
	if err != nil {
		_ = results.Close()
		_ = candles.Close()
		return nil, err
	}
	return &App{
		cfg:     cfg,
		candles: candles,
		results: results,
		runner:  svc,
		server:  server,
	}, nil
}

// Run 启动 HTTP 服务并阻塞到 ctx 取消。
// 配置里给了 csv_path 时先把数据集导入本地缓存。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	defer a.Close()

	a.runner.SetContext(ctx)
	if err := a.seedDataset(ctx); err != nil {
		return err
	}
	logger.Infof("✓ gridbt 启动（环境=%s，HTTP=%s）", a.cfg.App.Env, a.cfg.App.HTTPAddr)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := a.server.Start(ctx); err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})
	return group.Wait()
}

func (a *App) seedDataset(ctx context.Context) error {
	csvPath := strings.TrimSpace(a.cfg.Dataset.CSVPath)
	if csvPath == "" {
		return nil
	}
	if a.cfg.Dataset.Symbol == "" {
		return fmt.Errorf("dataset.csv_path 已配置但 dataset.symbol 为空")
	}
	inserted, err := a.runner.ImportCSV(ctx, a.cfg.Dataset.Symbol, a.cfg.Dataset.Timeframe, csvPath)
	if err != nil {
		return fmt.Errorf("导入数据集失败: %w", err)
	}
	logger.Infof("✓ 数据集就绪：%s %s 新增 %d 根", a.cfg.Dataset.Symbol, a.cfg.Dataset.Timeframe, inserted)
	return nil
}

// Runner 暴露任务服务（测试与回放用）。
func (a *App) Runner() *runner.Service {
	if a == nil {
		return nil
	}
	return a.runner
}

// Close 释放存储资源。
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.results != nil {
		_ = a.results.Close()
	}
	if a.candles != nil {
		_ = a.candles.Close()
	}
}
