// Package runstore 用 Gorm + SQLite 持久化评估结果，供 HTTP 层与报表复用。
package runstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"gridbt/internal/eval"
)

// Store 持有结果库连接。
type Store struct {
	db *gorm.DB
}

// New 打开（必要时创建）结果库并迁移表结构。
func New(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("run store: 结果库路径不能为空")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&RunModel{}, &RowModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL：给并发的 HTTP 读请求留一点余量。
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveReport 在单个事务里写入 run 元信息与全部结果行。
// config 原样存为 JSON，保证复跑时能还原同一组合全集。
func (s *Store) SaveReport(ctx context.Context, symbol string, aggregation string, config any, report *eval.Report) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("run store 未初始化")
	}
	if report == nil {
		return fmt.Errorf("report 不能为空")
	}
	cfgJSON, err := json.Marshal(config)
	if err != nil {
		return err
	}
	bhIS, err := json.Marshal(report.BenchmarkIS.Card)
	if err != nil {
		return err
	}
	bhOOS, err := json.Marshal(report.BenchmarkOOS.Card)
	if err != nil {
		return err
	}
	run := RunModel{
		ID:           report.RunID,
		Symbol:       strings.ToUpper(symbol),
		Timeframe:    report.Timeframe,
		Aggregation:  aggregation,
		Bars:         report.Bars,
		InsampleCut:  report.InsampleCut,
		Combos:       len(report.Rows),
		ISPassed:     report.ISPassed,
		Passed:       report.Passed,
		Failed:       report.Failed,
		BenchmarkIS:  datatypes.JSON(bhIS),
		BenchmarkOOS: datatypes.JSON(bhOOS),
		ConfigJSON:   datatypes.JSON(cfgJSON),
		StartedAt:    report.StartedAt,
		ElapsedMS:    report.Elapsed.Milliseconds(),
	}

	rows := make([]RowModel, 0, len(report.Rows))
	for _, r := range report.Rows {
		row, err := newRowModel(report.RunID, r)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&run).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.CreateInBatches(&rows, 200).Error
	})
}

func newRowModel(runID string, r eval.Row) (RowModel, error) {
	params, err := json.Marshal(r.Combo)
	if err != nil {
		return RowModel{}, err
	}
	row := RowModel{
		RunID:      runID,
		ComboIndex: r.Combo.Index,
		Label:      r.Label,
		Params:     datatypes.JSON(params),
		Pass:       r.Pass,
		Err:        r.Err,
	}
	if r.IS != nil {
		card, err := json.Marshal(r.IS.Card)
		if err != nil {
			return RowModel{}, err
		}
		trades, err := json.Marshal(r.IS.Trades)
		if err != nil {
			return RowModel{}, err
		}
		row.ISCard = datatypes.JSON(card)
		row.Trades = datatypes.JSON(trades)
		row.ISPass = r.IS.Pass
		row.ISReturn = r.IS.Card.Return
		row.ISSharpe = r.IS.Card.Sharpe
		row.Score = r.IS.Card.Score
		row.EndPosition = r.IS.EndPosition
	}
	if r.OOS != nil {
		card, err := json.Marshal(r.OOS.Card)
		if err != nil {
			return RowModel{}, err
		}
		row.OOSCard = datatypes.JSON(card)
		row.OOSPass = r.OOS.Pass
		row.OOSReturn = r.OOS.Card.Return
		row.OOSSharpe = r.OOS.Card.Sharpe
		row.Score = r.OOS.Card.Score
		row.EndPosition = r.OOS.EndPosition
	}
	return row, nil
}

// ListRuns 按开始时间倒序返回最近的 run。
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunModel, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("run store 未初始化")
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	var runs []RunModel
	err := s.db.WithContext(ctx).
		Order("started_at DESC").
		Limit(limit).
		Find(&runs).Error
	return runs, err
}

// GetRun 按 ID 取单个 run，不存在时返回 gorm.ErrRecordNotFound。
func (s *Store) GetRun(ctx context.Context, id string) (RunModel, error) {
	var run RunModel
	if s == nil || s.db == nil {
		return run, fmt.Errorf("run store 未初始化")
	}
	err := s.db.WithContext(ctx).First(&run, "id = ?", id).Error
	return run, err
}

// RowFilter 控制结果行列表的过滤与分页。
type RowFilter struct {
	PassedOnly bool
	MinScore   *float64
	Limit      int
	Offset     int
}

// ListRows 返回某个 run 的结果行，按综合得分倒序。
func (s *Store) ListRows(ctx context.Context, runID string, f RowFilter) ([]RowModel, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("run store 未初始化")
	}
	if f.Limit <= 0 || f.Limit > 1000 {
		f.Limit = 100
	}
	q := s.db.WithContext(ctx).Where("run_id = ?", runID)
	if f.PassedOnly {
		q = q.Where("pass = ?", true)
	}
	if f.MinScore != nil {
		q = q.Where("score >= ?", *f.MinScore)
	}
	var rows []RowModel
	err := q.Order("score DESC, combo_index ASC").
		Limit(f.Limit).
		Offset(f.Offset).
		Find(&rows).Error
	return rows, err
}

// GetRow 取某个 run 中指定序号的结果行。
func (s *Store) GetRow(ctx context.Context, runID string, comboIndex int) (RowModel, error) {
	var row RowModel
	if s == nil || s.db == nil {
		return row, fmt.Errorf("run store 未初始化")
	}
	err := s.db.WithContext(ctx).
		First(&row, "run_id = ? AND combo_index = ?", runID, comboIndex).Error
	return row, err
}

// IsNotFound 判断是否为记录不存在错误。
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
