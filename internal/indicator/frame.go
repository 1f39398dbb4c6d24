// Package indicator 基于 go-talib 按需计算并缓存每根 K 线的指标列。
// 列名遵循 <type>_<period...> 约定，预热期一律填 NaN，交由信号层视为观望。
package indicator

import (
	"fmt"
	"math"
	"sync"

	talib "github.com/markcheno/go-talib"

	"gridbt/internal/market"
)

// Frame 持有一段只读 K 线及其惰性计算的指标列。
// 列一经计算即缓存，多个组合可并发读取同一 Frame。
type Frame struct {
	candles []market.Candle
	closes  []float64
	highs   []float64
	lows    []float64
	volumes []float64

	mu      sync.Mutex
	columns map[string][]float64
}

func NewFrame(candles []market.Candle) *Frame {
	f := &Frame{
		candles: candles,
		closes:  make([]float64, len(candles)),
		highs:   make([]float64, len(candles)),
		lows:    make([]float64, len(candles)),
		volumes: make([]float64, len(candles)),
		columns: make(map[string][]float64),
	}
	for i, c := range candles {
		f.closes[i] = c.Close
		f.highs[i] = c.High
		f.lows[i] = c.Low
		f.volumes[i] = c.Volume
	}
	return f
}

func (f *Frame) Len() int                 { return len(f.candles) }
func (f *Frame) Candles() []market.Candle { return f.candles }
func (f *Frame) Closes() []float64        { return f.closes }

// Slice 返回 [start,end) 子区间上的新 Frame，指标重新计算以避免前视。
func (f *Frame) Slice(start, end int) *Frame {
	if start < 0 {
		start = 0
	}
	if end > len(f.candles) {
		end = len(f.candles)
	}
	return NewFrame(f.candles[start:end])
}

// column 按名取缓存列，缺失时用 compute 计算一次。
// compute 在持锁状态下运行，内部需要其他列时直接读写 f.columns。
func (f *Frame) column(name string, compute func() []float64) []float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if col, ok := f.columns[name]; ok {
		return col
	}
	col := compute()
	f.columns[name] = col
	return col
}

func (f *Frame) cached(name string) []float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.columns[name]
}

// markWarmup 将前 lookback 个值置为 NaN（talib 以 0 填充预热区）。
func markWarmup(series []float64, lookback int) []float64 {
	out := make([]float64, len(series))
	copy(out, series)
	if lookback > len(out) {
		lookback = len(out)
	}
	for i := 0; i < lookback; i++ {
		out[i] = math.NaN()
	}
	return out
}

func (f *Frame) SMA(period int) []float64 {
	name := fmt.Sprintf("ma_%d", period)
	return f.column(name, func() []float64 {
		return markWarmup(talib.Sma(f.closes, period), period-1)
	})
}

func (f *Frame) RSI(period int) []float64 {
	name := fmt.Sprintf("rsi_%d", period)
	return f.column(name, func() []float64 {
		return markWarmup(talib.Rsi(f.closes, period), period)
	})
}

func (f *Frame) OBVSMA(period int) []float64 {
	name := fmt.Sprintf("obv_sma_%d", period)
	return f.column(name, func() []float64 {
		obv, ok := f.columns["obv"]
		if !ok {
			obv = talib.Obv(f.closes, f.volumes)
			f.columns["obv"] = obv
		}
		return markWarmup(talib.Sma(obv, period), period-1)
	})
}

func (f *Frame) MACD(fast, slow, signal int) (line, sig []float64) {
	lineName := fmt.Sprintf("macd_line_%d_%d_%d", fast, slow, signal)
	sigName := fmt.Sprintf("macd_signal_%d_%d_%d", fast, slow, signal)
	line = f.column(lineName, func() []float64 {
		l, s, _ := talib.Macd(f.closes, fast, slow, signal)
		f.columns[sigName] = markWarmup(s, slow+signal-2)
		return markWarmup(l, slow-1)
	})
	sig = f.cached(sigName)
	return line, sig
}

func (f *Frame) DMI(period int) (plusDI, minusDI, adx []float64) {
	plusDI = f.column(fmt.Sprintf("plus_di_%d", period), func() []float64 {
		return markWarmup(talib.PlusDI(f.highs, f.lows, f.closes, period), period)
	})
	minusDI = f.column(fmt.Sprintf("minus_di_%d", period), func() []float64 {
		return markWarmup(talib.MinusDI(f.highs, f.lows, f.closes, period), period)
	})
	adx = f.column(fmt.Sprintf("adx_%d", period), func() []float64 {
		return markWarmup(talib.Adx(f.highs, f.lows, f.closes, period), 2*period-1)
	})
	return plusDI, minusDI, adx
}

func (f *Frame) Bollinger(period int, mult float64) (mid, upper, lower []float64) {
	key := fmt.Sprintf("%d_%g", period, mult)
	mid = f.column("boll_mid_"+key, func() []float64 {
		u, m, l := talib.BBands(f.closes, period, mult, mult, talib.SMA)
		f.columns["boll_upper_"+key] = markWarmup(u, period-1)
		f.columns["boll_lower_"+key] = markWarmup(l, period-1)
		return markWarmup(m, period-1)
	})
	upper = f.cached("boll_upper_" + key)
	lower = f.cached("boll_lower_" + key)
	return mid, upper, lower
}

func (f *Frame) PSAR(step, maxStep float64) []float64 {
	name := fmt.Sprintf("psar_%g_%g", step, maxStep)
	return f.column(name, func() []float64 {
		return markWarmup(talib.Sar(f.highs, f.lows, step, maxStep), 1)
	})
}

// Stoch 返回慢速 %K/%D（K 平滑固定为 3，与常规参数一致）。
func (f *Frame) Stoch(kPeriod, dPeriod int) (k, d []float64) {
	key := fmt.Sprintf("%d_%d", kPeriod, dPeriod)
	k = f.column("stoch_k_"+key, func() []float64 {
		sk, sd := talib.Stoch(f.highs, f.lows, f.closes, kPeriod, 3, talib.SMA, dPeriod, talib.SMA)
		f.columns["stoch_d_"+key] = markWarmup(sd, kPeriod+1+dPeriod)
		return markWarmup(sk, kPeriod+2)
	})
	d = f.cached("stoch_d_" + key)
	return k, d
}

// StochRSI 在 RSI 序列上做随机指标，再以 SMA 平滑出 %K/%D。
func (f *Frame) StochRSI(rsiLen, stochLen, kPeriod, dPeriod int) (k, d []float64) {
	key := fmt.Sprintf("%d_%d_%d_%d", rsiLen, stochLen, kPeriod, dPeriod)
	k = f.column("stoch_rsi_k_"+key, func() []float64 {
		rsi := talib.Rsi(f.closes, rsiLen)
		lo := talib.Min(rsi, stochLen)
		hi := talib.Max(rsi, stochLen)
		raw := make([]float64, len(rsi))
		for i := range rsi {
			if hi[i] > lo[i] {
				raw[i] = (rsi[i] - lo[i]) / (hi[i] - lo[i]) * 100
			}
		}
		smoothK := talib.Sma(raw, kPeriod)
		smoothD := talib.Sma(smoothK, dPeriod)
		lookback := rsiLen + stochLen + kPeriod - 2
		f.columns["stoch_rsi_d_"+key] = markWarmup(smoothD, lookback+dPeriod-1)
		return markWarmup(smoothK, lookback)
	})
	d = f.cached("stoch_rsi_d_" + key)
	return k, d
}

// Ichimoku 返回转换线/基准线与前移 kijun 根的云层上下沿。
func (f *Frame) Ichimoku(tenkanP, kijunP, spanBP int) (tenkan, kijun, spanA, spanB []float64) {
	key := fmt.Sprintf("%d_%d_%d", tenkanP, kijunP, spanBP)
	tenkan = f.column(fmt.Sprintf("ich_%s_tenkan", key), func() []float64 {
		return midline(f.highs, f.lows, tenkanP)
	})
	kijun = f.column(fmt.Sprintf("ich_%s_kijun", key), func() []float64 {
		return midline(f.highs, f.lows, kijunP)
	})
	spanA = f.column(fmt.Sprintf("ich_%s_span_a", key), func() []float64 {
		raw := make([]float64, len(tenkan))
		for i := range raw {
			raw[i] = (tenkan[i] + kijun[i]) / 2
		}
		return shiftForward(raw, kijunP)
	})
	spanB = f.column(fmt.Sprintf("ich_%s_span_b", key), func() []float64 {
		return shiftForward(midline(f.highs, f.lows, spanBP), kijunP)
	})
	return tenkan, kijun, spanA, spanB
}

func midline(highs, lows []float64, period int) []float64 {
	hi := talib.Max(highs, period)
	lo := talib.Min(lows, period)
	out := make([]float64, len(highs))
	for i := range out {
		out[i] = (hi[i] + lo[i]) / 2
	}
	return markWarmup(out, period-1)
}

func shiftForward(series []float64, n int) []float64 {
	out := make([]float64, len(series))
	for i := range out {
		if i < n {
			out[i] = math.NaN()
		} else {
			out[i] = series[i-n]
		}
	}
	return out
}

// Supertrend 由 ATR 带宽递推出跟踪止损线。
func (f *Frame) Supertrend(atrPeriod int, mult float64) []float64 {
	name := fmt.Sprintf("supertrend_%d_%g", atrPeriod, mult)
	return f.column(name, func() []float64 {
		n := len(f.closes)
		st := make([]float64, n)
		if n == 0 {
			return st
		}
		atr := talib.Atr(f.highs, f.lows, f.closes, atrPeriod)
		finalUB := make([]float64, n)
		finalLB := make([]float64, n)
		up := true
		for i := 0; i < n; i++ {
			hl2 := (f.highs[i] + f.lows[i]) / 2
			basicUB := hl2 + mult*atr[i]
			basicLB := hl2 - mult*atr[i]
			if i == 0 {
				finalUB[i], finalLB[i] = basicUB, basicLB
			} else {
				if basicUB < finalUB[i-1] || f.closes[i-1] > finalUB[i-1] {
					finalUB[i] = basicUB
				} else {
					finalUB[i] = finalUB[i-1]
				}
				if basicLB > finalLB[i-1] || f.closes[i-1] < finalLB[i-1] {
					finalLB[i] = basicLB
				} else {
					finalLB[i] = finalLB[i-1]
				}
			}
			if f.closes[i] > finalUB[i] {
				up = true
			} else if f.closes[i] < finalLB[i] {
				up = false
			}
			if up {
				st[i] = finalLB[i]
			} else {
				st[i] = finalUB[i]
			}
		}
		return markWarmup(st, atrPeriod)
	})
}

// RollingCloseBounds 返回收盘价在 window 内的滚动最小/最大（含当前 bar）。
// prefix 对应不同规则的列族：filter/sr/ch。
func (f *Frame) RollingCloseBounds(prefix string, window int) (minCol, maxCol []float64) {
	minCol = f.column(fmt.Sprintf("%s_min_%d", prefix, window), func() []float64 {
		return markWarmup(talib.Min(f.closes, window), window-1)
	})
	maxCol = f.column(fmt.Sprintf("%s_max_%d", prefix, window), func() []float64 {
		return markWarmup(talib.Max(f.closes, window), window-1)
	})
	return minCol, maxCol
}

// VWAP 为自起点累计的成交量加权均价。
func (f *Frame) VWAP() []float64 {
	return f.column("vwap", func() []float64 {
		out := make([]float64, len(f.closes))
		var pvSum, vSum float64
		for i := range f.closes {
			typical := (f.highs[i] + f.lows[i] + f.closes[i]) / 3
			pvSum += typical * f.volumes[i]
			vSum += f.volumes[i]
			if vSum > 0 {
				out[i] = pvSum / vSum
			} else {
				out[i] = math.NaN()
			}
		}
		return out
	})
}
