// Package signal 将指标列转换为逐 bar 的方向投票（+1/0/-1），并按模式聚合。
// 预热期（NaN）一律投 0，由执行引擎决定是否开平仓。
package signal

import (
	"fmt"
	"math"

	"gridbt/internal/indicator"
)

// Rule 在整段 Frame 上一次性产出与 K 线等长的投票序列。
type Rule interface {
	Kind() Kind
	Params() Params
	Evaluate(f *indicator.Frame) []int
}

// Build 将参数解析为具体规则，未知 Kind 返回错误。
// 解析只在组合构建时发生一次，回测热路径不再分发类型。
func Build(p Params) (Rule, error) {
	switch p.Kind {
	case KindMA:
		return maRule{p}, nil
	case KindRSI:
		return rsiRule{p}, nil
	case KindFilter:
		return filterRule{p}, nil
	case KindSR:
		return srRule{p}, nil
	case KindCB:
		return cbRule{p}, nil
	case KindOBV:
		return obvRule{p}, nil
	case KindMACD:
		return macdRule{p}, nil
	case KindDMIADX:
		return dmiRule{p}, nil
	case KindBollinger:
		return bollRule{p}, nil
	case KindIchimoku:
		return ichimokuRule{p}, nil
	case KindPSAR:
		return psarRule{p}, nil
	case KindSupertrend:
		return supertrendRule{p}, nil
	case KindStoch:
		return stochRule{p}, nil
	case KindStochRSI:
		return stochRSIRule{p}, nil
	case KindVWAP:
		return vwapRule{p}, nil
	default:
		return nil, fmt.Errorf("unknown rule kind: %q", p.Kind)
	}
}

// BuildAll 批量构建，任一参数非法即失败。
func BuildAll(params []Params) ([]Rule, error) {
	rules := make([]Rule, 0, len(params))
	for _, p := range params {
		r, err := Build(p)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, nil
}

func anyNaN(vals ...float64) bool {
	for _, v := range vals {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}

type maRule struct{ p Params }

func (r maRule) Kind() Kind     { return KindMA }
func (r maRule) Params() Params { return r.p }

func (r maRule) Evaluate(f *indicator.Frame) []int {
	short := f.SMA(r.p.ShortPeriod)
	long := f.SMA(r.p.LongPeriod)
	votes := make([]int, f.Len())
	for i := range votes {
		if anyNaN(short[i], long[i]) {
			continue
		}
		switch {
		case short[i] >= long[i]*(1+r.p.BandFilter):
			votes[i] = 1
		case short[i] <= long[i]*(1-r.p.BandFilter):
			votes[i] = -1
		}
	}
	return votes
}

// rsiRule 为趋势跟随口径：突破上轨看多、跌破下轨看空。
type rsiRule struct{ p Params }

func (r rsiRule) Kind() Kind     { return KindRSI }
func (r rsiRule) Params() Params { return r.p }

func (r rsiRule) Evaluate(f *indicator.Frame) []int {
	rsi := f.RSI(r.p.Period)
	votes := make([]int, f.Len())
	for i, v := range rsi {
		if math.IsNaN(v) {
			continue
		}
		switch {
		case v > r.p.Overbought:
			votes[i] = 1
		case v < r.p.Oversold:
			votes[i] = -1
		}
	}
	return votes
}

type filterRule struct{ p Params }

func (r filterRule) Kind() Kind     { return KindFilter }
func (r filterRule) Params() Params { return r.p }

func (r filterRule) Evaluate(f *indicator.Frame) []int {
	minCol, maxCol := f.RollingCloseBounds("filter", r.p.Window)
	closes := f.Closes()
	votes := make([]int, f.Len())
	for i := range votes {
		if anyNaN(minCol[i], maxCol[i]) {
			continue
		}
		switch {
		case closes[i] > (1+r.p.BuyFilter)*minCol[i]:
			votes[i] = 1
		case closes[i] < (1-r.p.SellFilter)*maxCol[i]:
			votes[i] = -1
		}
	}
	return votes
}

type srRule struct{ p Params }

func (r srRule) Kind() Kind     { return KindSR }
func (r srRule) Params() Params { return r.p }

func (r srRule) Evaluate(f *indicator.Frame) []int {
	minCol, maxCol := f.RollingCloseBounds("sr", r.p.Window)
	closes := f.Closes()
	votes := make([]int, f.Len())
	for i := range votes {
		if anyNaN(minCol[i], maxCol[i]) {
			continue
		}
		switch {
		case closes[i] > maxCol[i]*(1+r.p.BandPct):
			votes[i] = 1
		case closes[i] < minCol[i]*(1-r.p.BandPct):
			votes[i] = -1
		}
	}
	return votes
}

type cbRule struct{ p Params }

func (r cbRule) Kind() Kind     { return KindCB }
func (r cbRule) Params() Params { return r.p }

func (r cbRule) Evaluate(f *indicator.Frame) []int {
	minCol, maxCol := f.RollingCloseBounds("ch", r.p.Window)
	closes := f.Closes()
	votes := make([]int, f.Len())
	for i := range votes {
		if anyNaN(minCol[i], maxCol[i]) || minCol[i] <= 0 {
			continue
		}
		// 通道足够窄时才认定横盘，向上/向下突破才投票。
		inChannel := (maxCol[i]-minCol[i])/minCol[i] <= r.p.ChannelPct
		if !inChannel {
			continue
		}
		switch {
		case closes[i] > maxCol[i]:
			votes[i] = 1
		case closes[i] < minCol[i]:
			votes[i] = -1
		}
	}
	return votes
}

type obvRule struct{ p Params }

func (r obvRule) Kind() Kind     { return KindOBV }
func (r obvRule) Params() Params { return r.p }

func (r obvRule) Evaluate(f *indicator.Frame) []int {
	short := f.OBVSMA(r.p.ShortPeriod)
	long := f.OBVSMA(r.p.LongPeriod)
	votes := make([]int, f.Len())
	for i := range votes {
		if anyNaN(short[i], long[i]) {
			continue
		}
		switch {
		case short[i] > long[i]:
			votes[i] = 1
		case short[i] < long[i]:
			votes[i] = -1
		}
	}
	return votes
}

type macdRule struct{ p Params }

func (r macdRule) Kind() Kind     { return KindMACD }
func (r macdRule) Params() Params { return r.p }

func (r macdRule) Evaluate(f *indicator.Frame) []int {
	line, sig := f.MACD(r.p.FastPeriod, r.p.SlowPeriod, r.p.SignalPeriod)
	votes := make([]int, f.Len())
	for i := range votes {
		if anyNaN(line[i], sig[i]) {
			continue
		}
		switch {
		case line[i] > sig[i]:
			votes[i] = 1
		case line[i] < sig[i]:
			votes[i] = -1
		}
	}
	return votes
}

// dmiRule 先用 ADX 过滤无趋势区间，再比较 +DI/-DI 方向。
type dmiRule struct{ p Params }

func (r dmiRule) Kind() Kind     { return KindDMIADX }
func (r dmiRule) Params() Params { return r.p }

func (r dmiRule) Evaluate(f *indicator.Frame) []int {
	plusDI, minusDI, adx := f.DMI(r.p.Period)
	votes := make([]int, f.Len())
	for i := range votes {
		if anyNaN(plusDI[i], minusDI[i], adx[i]) || adx[i] < r.p.ADXThreshold {
			continue
		}
		switch {
		case plusDI[i] > minusDI[i]:
			votes[i] = 1
		case plusDI[i] < minusDI[i]:
			votes[i] = -1
		}
	}
	return votes
}

type bollRule struct{ p Params }

func (r bollRule) Kind() Kind     { return KindBollinger }
func (r bollRule) Params() Params { return r.p }

func (r bollRule) Evaluate(f *indicator.Frame) []int {
	_, upper, lower := f.Bollinger(r.p.Period, r.p.StdDevMult)
	closes := f.Closes()
	votes := make([]int, f.Len())
	for i := range votes {
		if anyNaN(upper[i], lower[i]) {
			continue
		}
		switch {
		case closes[i] > upper[i]:
			votes[i] = 1
		case closes[i] < lower[i]:
			votes[i] = -1
		}
	}
	return votes
}

type ichimokuRule struct{ p Params }

func (r ichimokuRule) Kind() Kind     { return KindIchimoku }
func (r ichimokuRule) Params() Params { return r.p }

func (r ichimokuRule) Evaluate(f *indicator.Frame) []int {
	tenkan, kijun, spanA, spanB := f.Ichimoku(r.p.TenkanPeriod, r.p.KijunPeriod, r.p.SpanBPeriod)
	closes := f.Closes()
	votes := make([]int, f.Len())
	for i := range votes {
		if anyNaN(tenkan[i], kijun[i], spanA[i], spanB[i]) {
			continue
		}
		cloudTop := math.Max(spanA[i], spanB[i])
		cloudBottom := math.Min(spanA[i], spanB[i])
		switch {
		case tenkan[i] > kijun[i] && closes[i] > cloudTop:
			votes[i] = 1
		case tenkan[i] < kijun[i] && closes[i] < cloudBottom:
			votes[i] = -1
		}
	}
	return votes
}

type psarRule struct{ p Params }

func (r psarRule) Kind() Kind     { return KindPSAR }
func (r psarRule) Params() Params { return r.p }

func (r psarRule) Evaluate(f *indicator.Frame) []int {
	psar := f.PSAR(r.p.AccelStep, r.p.AccelMax)
	closes := f.Closes()
	votes := make([]int, f.Len())
	for i, v := range psar {
		if math.IsNaN(v) {
			continue
		}
		switch {
		case v < closes[i]:
			votes[i] = 1
		case v > closes[i]:
			votes[i] = -1
		}
	}
	return votes
}

type supertrendRule struct{ p Params }

func (r supertrendRule) Kind() Kind     { return KindSupertrend }
func (r supertrendRule) Params() Params { return r.p }

func (r supertrendRule) Evaluate(f *indicator.Frame) []int {
	st := f.Supertrend(r.p.ATRPeriod, r.p.Multiplier)
	closes := f.Closes()
	votes := make([]int, f.Len())
	for i, v := range st {
		if math.IsNaN(v) {
			continue
		}
		switch {
		case closes[i] > v:
			votes[i] = 1
		case closes[i] < v:
			votes[i] = -1
		}
	}
	return votes
}

type stochRule struct{ p Params }

func (r stochRule) Kind() Kind     { return KindStoch }
func (r stochRule) Params() Params { return r.p }

func (r stochRule) Evaluate(f *indicator.Frame) []int {
	k, d := f.Stoch(r.p.KPeriod, r.p.DPeriod)
	return stochVotes(k, d, r.p.Overbought, r.p.Oversold)
}

type stochRSIRule struct{ p Params }

func (r stochRSIRule) Kind() Kind     { return KindStochRSI }
func (r stochRSIRule) Params() Params { return r.p }

func (r stochRSIRule) Evaluate(f *indicator.Frame) []int {
	k, d := f.StochRSI(r.p.RSILength, r.p.StochLength, r.p.KPeriod, r.p.DPeriod)
	return stochVotes(k, d, r.p.Overbought, r.p.Oversold)
}

// stochVotes 要求 %K/%D 同向越界才投票，减少单线噪声。
func stochVotes(k, d []float64, upper, lower float64) []int {
	votes := make([]int, len(k))
	for i := range votes {
		if anyNaN(k[i], d[i]) {
			continue
		}
		switch {
		case k[i] >= upper && d[i] >= upper:
			votes[i] = 1
		case k[i] <= lower && d[i] <= lower:
			votes[i] = -1
		}
	}
	return votes
}

type vwapRule struct{ p Params }

func (r vwapRule) Kind() Kind     { return KindVWAP }
func (r vwapRule) Params() Params { return r.p }

func (r vwapRule) Evaluate(f *indicator.Frame) []int {
	vwap := f.VWAP()
	closes := f.Closes()
	votes := make([]int, f.Len())
	for i, v := range vwap {
		if math.IsNaN(v) {
			continue
		}
		switch {
		case closes[i] > v:
			votes[i] = 1
		case closes[i] < v:
			votes[i] = -1
		}
	}
	return votes
}
