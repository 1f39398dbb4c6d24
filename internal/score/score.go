// Package score 把权益曲线、逐 bar 收益与成交明细汇总成评分卡。
// 所有指标都是确定性的纯计算，年化换算只依赖周期表中的 bars_per_year。
package score

import (
	"errors"
	"math"

	"gridbt/internal/engine"
	"gridbt/internal/market"
)

// ErrInsufficientData 表示权益点不足 2 个或收益序列长度不匹配。
var ErrInsufficientData = errors.New("insufficient data for scoring")

// Weights 为综合得分的各项权重，仅用于组合排序。
type Weights struct {
	Return float64 `json:"return"`
	Sharpe float64 `json:"sharpe"`
	MDD    float64 `json:"mdd"`
	Slope  float64 `json:"slope"`
}

// DefaultWeights 是排序得分的默认权重。
func DefaultWeights() Weights {
	return Weights{Return: 0.30, Sharpe: 0.25, MDD: 0.15, Slope: 0.30}
}

// Options 控制年化与无风险利率口径。
type Options struct {
	Timeframe      market.Timeframe
	RiskFreeAnnual float64
	Weights        Weights
}

// Card 是单次回测的完整评分卡。
// ProfitFactor 在有盈利且无亏损交易时约定为 +Inf，序列化时需注意。
type Card struct {
	StartCapital float64 `json:"start_capital"`
	EndCapital   float64 `json:"end_capital"`
	Return       float64 `json:"return"`
	CAGR         float64 `json:"cagr"`
	Sharpe       float64 `json:"sharpe"`
	MDD          float64 `json:"mdd"`
	Last10Slope  float64 `json:"last10_slope"`
	Score        float64 `json:"score"`

	Trades           int     `json:"trades"`
	WinRate          float64 `json:"win_rate"`
	ProfitFactor     float64 `json:"profit_factor"`
	AvgHoldingPeriod float64 `json:"avg_holding_period"`
	AvgPnlPerTrade   float64 `json:"avg_pnl_per_trade"`

	LongTrades  int     `json:"long_trades"`
	ShortTrades int     `json:"short_trades"`
	LongReturn  float64 `json:"long_return"`
	ShortReturn float64 `json:"short_return"`
}

// Compute 汇总一次回测的评分卡。
func Compute(equity, returns []float64, trades []engine.Trade, opts Options) (Card, error) {
	if len(equity) < 2 {
		return Card{}, errors.Join(ErrInsufficientData, errors.New("equity curve has fewer than 2 points"))
	}
	if len(returns) != len(equity) {
		return Card{}, errors.Join(ErrInsufficientData, errors.New("returns length mismatch"))
	}
	if opts.Weights == (Weights{}) {
		opts.Weights = DefaultWeights()
	}
	barsPerYear := opts.Timeframe.BarsPerYear
	if barsPerYear <= 0 {
		barsPerYear = 365
	}

	card := Card{
		StartCapital: equity[0],
		EndCapital:   equity[len(equity)-1],
	}
	if card.StartCapital != 0 {
		card.Return = card.EndCapital/card.StartCapital - 1
	}

	// CAGR：经过的 bar 数换算为年。
	years := float64(len(equity)-1) / float64(barsPerYear)
	if years > 0 && card.StartCapital > 0 && card.EndCapital > 0 {
		card.CAGR = math.Pow(card.EndCapital/card.StartCapital, 1/years) - 1
	}

	// Sharpe：样本标准差（ddof=1），波动为 0 时定义为 0。
	mean := meanOf(returns)
	std := sampleStdev(returns, mean)
	if std > 0 {
		rfrPerBar := opts.RiskFreeAnnual / float64(barsPerYear)
		card.Sharpe = (mean - rfrPerBar) * math.Sqrt(float64(barsPerYear)) / std
	}

	card.MDD = maxDrawdown(equity)
	card.Last10Slope = last10Slope(equity)
	card.Score = opts.Weights.Return*card.Return +
		opts.Weights.Sharpe*card.Sharpe +
		opts.Weights.MDD*(-card.MDD) +
		opts.Weights.Slope*card.Last10Slope

	fillTradeStats(&card, trades)
	return card, nil
}

func fillTradeStats(card *Card, trades []engine.Trade) {
	card.Trades = len(trades)
	if len(trades) == 0 {
		return
	}
	var wins, losses int
	var winSum, lossSum, pnlSum, holdSum float64
	var longPnL, shortPnL float64
	for _, t := range trades {
		pnlSum += t.NetPnL
		holdSum += float64(t.HoldingBars)
		switch {
		case t.NetPnL > 0:
			wins++
			winSum += t.NetPnL
		case t.NetPnL < 0:
			losses++
			lossSum += t.NetPnL
		}
		if t.Side == engine.Long {
			card.LongTrades++
			longPnL += t.NetPnL
		} else {
			card.ShortTrades++
			shortPnL += t.NetPnL
		}
	}
	card.WinRate = float64(wins) / float64(len(trades))
	if lossSum != 0 {
		card.ProfitFactor = math.Abs(winSum / lossSum)
	} else if winSum > 0 {
		// 有盈利且无亏损：约定为 +Inf。
		card.ProfitFactor = math.Inf(1)
	}
	card.AvgHoldingPeriod = holdSum / float64(len(trades))
	card.AvgPnlPerTrade = pnlSum / float64(len(trades))
	if card.StartCapital > 0 {
		card.LongReturn = longPnL / card.StartCapital
		card.ShortReturn = shortPnL / card.StartCapital
	}
}

func meanOf(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

// sampleStdev 使用 n-1 自由度，少于 2 个样本返回 0。
func sampleStdev(vals []float64, mean float64) float64 {
	if len(vals) < 2 {
		return 0
	}
	sum := 0.0
	for _, v := range vals {
		d := v - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(vals)-1))
}

// maxDrawdown 返回相对运行峰值的最大回撤比例。
func maxDrawdown(equity []float64) float64 {
	if len(equity) == 0 {
		return 0
	}
	peak := equity[0]
	mdd := 0.0
	for _, v := range equity {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			if dd := (peak - v) / peak; dd > mdd {
				mdd = dd
			}
		}
	}
	return mdd
}

// last10Slope 对权益曲线最后 10%（至少 2 点）做最小二乘，返回每 bar 斜率。
func last10Slope(equity []float64) float64 {
	n := len(equity)
	window := n / 10
	if window < 2 {
		window = 2
	}
	if window > n {
		window = n
	}
	tail := equity[n-window:]

	meanX := float64(len(tail)-1) / 2
	meanY := meanOf(tail)
	var num, den float64
	for i, y := range tail {
		dx := float64(i) - meanX
		num += dx * (y - meanY)
		den += dx * dx
	}
	if den == 0 {
		return 0
	}
	return num / den
}
