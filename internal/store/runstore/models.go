package runstore

import (
	"time"

	"gorm.io/datatypes"
)

// RunModel 是一次批量评估的元信息行。
type RunModel struct {
	ID          string `gorm:"primaryKey;size:64"`
	Symbol      string `gorm:"size:32;index"`
	Timeframe   string `gorm:"size:8"`
	Aggregation string `gorm:"size:8"`
	Bars        int
	InsampleCut int
	Combos      int
	ISPassed    int
	Passed      int
	Failed      int

	BenchmarkIS  datatypes.JSON `gorm:"column:benchmark_is"`
	BenchmarkOOS datatypes.JSON `gorm:"column:benchmark_oos"`
	ConfigJSON   datatypes.JSON `gorm:"column:config_json"`

	StartedAt time.Time
	ElapsedMS int64
	CreatedAt time.Time
}

func (RunModel) TableName() string { return "runs" }

// RowModel 是单个组合的结果行。评分卡整体存 JSON，
// 常用排序/过滤字段冗余成列，避免列表页解析全部 JSON。
type RowModel struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	RunID      string `gorm:"size:64;index:idx_run_combo,unique"`
	ComboIndex int    `gorm:"index:idx_run_combo,unique"`
	Label      string `gorm:"size:256"`

	Params  datatypes.JSON `gorm:"column:params_json"`
	ISCard  datatypes.JSON `gorm:"column:is_card"`
	OOSCard datatypes.JSON `gorm:"column:oos_card"`
	Trades  datatypes.JSON `gorm:"column:trades_json"`

	ISPass  bool `gorm:"index"`
	OOSPass bool
	Pass    bool `gorm:"index"`
	Err     string

	ISReturn  float64
	ISSharpe  float64
	OOSReturn float64
	OOSSharpe float64
	Score     float64 `gorm:"index"`

	// 最后评估段（有 OOS 取 OOS）期末被强平的持仓方向，0 为正常离场。
	EndPosition int

	CreatedAt time.Time
}

func (RowModel) TableName() string { return "run_rows" }
