// Package engine 按既定信号序列逐 bar 推演仓位、权益与成交明细。
// 引擎只消费信号，不理解规则语义，所有成交按收盘价加滑点撮合。
package engine

import (
	"errors"
	"math"

	"gridbt/internal/market"
)

// 持仓方向。
const (
	Flat  = 0
	Long  = 1
	Short = -1
)

// ErrInvalidInput 表示 K 线或信号序列不满足前置条件。
var ErrInvalidInput = errors.New("invalid engine input")

// Settings 是单次推演的成交与资金参数。
type Settings struct {
	StartCapital   float64
	CommissionRate float64
	SlippageRate   float64
	Leverage       float64
	AllowShort     bool

	// BuyDelay/SellDelay 为开仓所需的连续同向信号 bar 数（含当前 bar）。
	BuyDelay  int
	SellDelay int
	// HoldingPeriod 为平仓前的最短持仓 bar 数，+Inf 表示不限。
	HoldingPeriod float64
}

// Trade 是一笔完整的开平仓记录。ExitIndex == len(bars) 表示期末强制平仓。
type Trade struct {
	Side        int     `json:"side"`
	EntryIndex  int     `json:"entry_index"`
	ExitIndex   int     `json:"exit_index"`
	EntryPrice  float64 `json:"entry_price"`
	ExitPrice   float64 `json:"exit_price"`
	Size        float64 `json:"size"`
	NetPnL      float64 `json:"net_pnl"`
	HoldingBars int     `json:"holding_bars"`
	Forced      bool    `json:"forced,omitempty"`
}

// Result 的 Equity/Returns 与输入 K 线等长。
// EndPosition 记录期末仍持有、被强平的方向，正常离场则为 Flat。
type Result struct {
	Equity      []float64
	Returns     []float64
	Trades      []Trade
	EndPosition int
}

// Run 逐 bar 推演。每根 bar 的处理顺序固定：
// 先按收盘价盯市，再判断平仓，然后在空仓时判断开仓，最后落账权益与收益。
func Run(bars []market.Candle, signals []int, s Settings) (Result, error) {
	if len(bars) == 0 {
		return Result{}, errors.Join(ErrInvalidInput, errors.New("no bars"))
	}
	if len(signals) != len(bars) {
		return Result{}, errors.Join(ErrInvalidInput, errors.New("signals length mismatch"))
	}
	for _, b := range bars {
		if math.IsNaN(b.Close) {
			return Result{}, errors.Join(ErrInvalidInput, errors.New("NaN close price"))
		}
	}
	if s.StartCapital <= 0 {
		return Result{}, errors.Join(ErrInvalidInput, errors.New("start capital must be > 0"))
	}
	if s.Leverage <= 0 {
		s.Leverage = 1
	}
	if s.BuyDelay < 1 {
		s.BuyDelay = 1
	}
	if s.SellDelay < 1 {
		s.SellDelay = 1
	}
	if s.HoldingPeriod <= 0 {
		s.HoldingPeriod = math.Inf(1)
	}

	n := len(bars)
	res := Result{
		Equity:  make([]float64, n),
		Returns: make([]float64, n),
	}

	capital := s.StartCapital
	position := Flat
	var entryPrice, size float64
	var entryIndex, barsHeld int

	// 连续同向原始信号计数，每根 bar 都更新，与是否持仓无关。
	runSig, runLen := 0, 0

	lastIdx := n - 1
	for i := 0; i < n; i++ {
		close := bars[i].Close
		sig := signals[i]

		if sig == runSig && sig != 0 {
			runLen++
		} else {
			runSig = sig
			if sig != 0 {
				runLen = 1
			} else {
				runLen = 0
			}
		}

		// 盯市。
		unrealized := 0.0
		if position != Flat {
			unrealized = markToMarket(position, entryPrice, close, size)
		}

		// 平仓判定。不限持仓时只认反向信号，0 视为继续持有；
		// 有限持仓则在持满后遇 0 或反向信号即离场。
		justClosed := false
		if position != Flat {
			barsHeld++
			var wantsExit bool
			if math.IsInf(s.HoldingPeriod, 1) {
				wantsExit = sig == -position
			} else {
				wantsExit = float64(barsHeld) >= s.HoldingPeriod && (sig == 0 || sig == -position)
			}
			if wantsExit {
				exitPrice := applySlippage(close, -position, s.SlippageRate)
				pnl := markToMarket(position, entryPrice, exitPrice, size)
				commission := (entryPrice + exitPrice) * size * s.CommissionRate
				net := pnl - commission
				capital += net
				res.Trades = append(res.Trades, Trade{
					Side:        position,
					EntryIndex:  entryIndex,
					ExitIndex:   i,
					EntryPrice:  entryPrice,
					ExitPrice:   exitPrice,
					Size:        size,
					NetPnL:      net,
					HoldingBars: barsHeld,
				})
				position = Flat
				size = 0
				unrealized = 0
				justClosed = true
			}
		}

		if capital <= 0 {
			// 爆仓：资金归零并停止推演，剩余 bar 权益为 0。
			capital = 0
			res.Equity[i] = 0
			prev := s.StartCapital
			if i > 0 {
				prev = res.Equity[i-1]
			}
			if prev != 0 {
				res.Returns[i] = (0 - prev) / prev
			}
			break
		}

		// 开仓判定。刚平仓的 bar 不允许反手，下一根 bar 起重新入场。
		if position == Flat && !justClosed {
			switch {
			case sig == Long && runLen >= s.BuyDelay:
				position = Long
			case sig == Short && runLen >= s.SellDelay && s.AllowShort:
				position = Short
			}
			if position != Flat {
				entryPrice = applySlippage(close, position, s.SlippageRate)
				size = capital * s.Leverage / entryPrice
				entryIndex = i
				barsHeld = 0
				unrealized = markToMarket(position, entryPrice, close, size)
			}
		}

		eq := capital
		if position != Flat {
			eq = capital + unrealized
		}
		res.Equity[i] = eq
		prev := s.StartCapital
		if i > 0 {
			prev = res.Equity[i-1]
		}
		if prev != 0 {
			res.Returns[i] = (eq - prev) / prev
		}
	}

	// 期末强平：修正最后一根 bar 的权益与收益，ExitIndex 越过序列末尾。
	if position != Flat {
		res.EndPosition = position
		close := bars[lastIdx].Close
		exitPrice := applySlippage(close, -position, s.SlippageRate)
		pnl := markToMarket(position, entryPrice, exitPrice, size)
		commission := (entryPrice + exitPrice) * size * s.CommissionRate
		net := pnl - commission
		capital += net
		res.Trades = append(res.Trades, Trade{
			Side:        position,
			EntryIndex:  entryIndex,
			ExitIndex:   n,
			EntryPrice:  entryPrice,
			ExitPrice:   exitPrice,
			Size:        size,
			NetPnL:      net,
			HoldingBars: barsHeld + 1,
			Forced:      true,
		})
		position = Flat

		if capital < 0 {
			capital = 0
		}
		res.Equity[lastIdx] = capital
		prev := s.StartCapital
		if lastIdx > 0 {
			prev = res.Equity[lastIdx-1]
		}
		if prev != 0 {
			res.Returns[lastIdx] = (capital - prev) / prev
		} else {
			res.Returns[lastIdx] = 0
		}
	}

	return res, nil
}

// markToMarket 返回浮动盈亏（多头涨赚、空头跌赚）。
func markToMarket(position int, entry, price, size float64) float64 {
	if position == Long {
		return (price - entry) * size
	}
	return (entry - price) * size
}

// applySlippage 对成交价施加逆向滑点：买入抬价、卖出压价。
// direction 为本次成交的买卖方向（开多/平空为 +1，开空/平多为 -1）。
func applySlippage(price float64, direction int, rate float64) float64 {
	if direction == Long {
		return price * (1 + rate)
	}
	return price * (1 - rate)
}
