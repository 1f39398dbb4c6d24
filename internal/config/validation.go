package config

import (
	"fmt"

	"gridbt/internal/market"
	"gridbt/internal/signal"
)

// validate 对配置进行基础校验。
// 参数网格本身的合法性留给组合生成阶段，避免两处规则漂移。
func validate(c *Config) error {
	if err := c.Dataset.validate(); err != nil {
		return err
	}
	if err := c.validateCosts(); err != nil {
		return err
	}
	if err := c.Eval.validate(); err != nil {
		return err
	}
	return nil
}

func (d *DatasetConfig) validate() error {
	if _, err := market.ParseTimeframe(d.Timeframe); err != nil {
		return fmt.Errorf("dataset.timeframe: %w", err)
	}
	return nil
}

func (c *Config) validateCosts() error {
	if c.Costs.StartCapital <= 0 {
		return fmt.Errorf("costs.start_capital must be > 0")
	}
	if c.Costs.CommissionRate < 0 {
		return fmt.Errorf("costs.commission_rate must be >= 0")
	}
	if c.Costs.SlippageRate < 0 {
		return fmt.Errorf("costs.slippage_rate must be >= 0")
	}
	if c.Costs.Leverage <= 0 {
		return fmt.Errorf("costs.leverage must be > 0")
	}
	return nil
}

func (e *EvalConfig) validate() error {
	if _, err := signal.ParseMode(e.Aggregation); err != nil {
		return fmt.Errorf("eval.aggregation: %w", err)
	}
	if e.InsampleRatio <= 0 || e.InsampleRatio >= 1 {
		return fmt.Errorf("eval.insample_ratio must be in (0, 1)")
	}
	if e.Weights.Return < 0 || e.Weights.Sharpe < 0 || e.Weights.MDD < 0 || e.Weights.Slope < 0 {
		return fmt.Errorf("eval.weights must be >= 0")
	}
	return nil
}
