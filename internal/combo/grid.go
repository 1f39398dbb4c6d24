// Package combo 将参数网格展开为待评估的规则组合全集。
// 展开顺序是确定性的：同一份网格配置永远生成同一份组合清单。
package combo

import (
	"errors"
	"fmt"
	"math"

	"gridbt/internal/signal"
)

// ErrBadGrid 表示网格配置不合法（未知 kind、非法组合大小等）。
var ErrBadGrid = errors.New("bad parameter grid")

// Grid 描述一次批量评估的完整参数空间。
// 每个启用的 kind 给出自己的参数网格，组合层叠加确认延迟与持仓周期。
type Grid struct {
	Kinds      []signal.Kind `mapstructure:"kinds" json:"kinds"`
	ComboSizes []int         `mapstructure:"combo_sizes" json:"combo_sizes"`

	// 组合级参数：买/卖确认延迟（连续同向 bar 数）与最短持仓（bar 数，<=0 视为不限）。
	BuyDelays      []int     `mapstructure:"buy_delays" json:"buy_delays"`
	SellDelays     []int     `mapstructure:"sell_delays" json:"sell_delays"`
	HoldingPeriods []float64 `mapstructure:"holding_periods" json:"holding_periods"`

	MA         MAGrid         `mapstructure:"ma" json:"ma"`
	RSI        RSIGrid        `mapstructure:"rsi" json:"rsi"`
	Filter     FilterGrid     `mapstructure:"filter" json:"filter"`
	SR         SRGrid         `mapstructure:"sr" json:"sr"`
	CB         CBGrid         `mapstructure:"cb" json:"cb"`
	OBV        OBVGrid        `mapstructure:"obv" json:"obv"`
	MACD       MACDGrid       `mapstructure:"macd" json:"macd"`
	DMIADX     DMIGrid        `mapstructure:"dmi_adx" json:"dmi_adx"`
	Bollinger  BollGrid       `mapstructure:"boll" json:"boll"`
	Ichimoku   IchimokuGrid   `mapstructure:"ichimoku" json:"ichimoku"`
	PSAR       PSARGrid       `mapstructure:"psar" json:"psar"`
	Supertrend SupertrendGrid `mapstructure:"supertrend" json:"supertrend"`
	Stoch      StochGrid      `mapstructure:"stoch" json:"stoch"`
	StochRSI   StochRSIGrid   `mapstructure:"stoch_rsi" json:"stoch_rsi"`
	VWAP       VWAPGrid       `mapstructure:"vwap" json:"vwap"`
}

type MAGrid struct {
	ShortPeriods []int     `mapstructure:"short_periods" json:"short_periods"`
	LongPeriods  []int     `mapstructure:"long_periods" json:"long_periods"`
	BandFilters  []float64 `mapstructure:"band_filters" json:"band_filters"`
}

type RSIGrid struct {
	Periods     []int     `mapstructure:"periods" json:"periods"`
	Overboughts []float64 `mapstructure:"overboughts" json:"overboughts"`
	Oversolds   []float64 `mapstructure:"oversolds" json:"oversolds"`
}

type FilterGrid struct {
	Windows     []int     `mapstructure:"windows" json:"windows"`
	BuyFilters  []float64 `mapstructure:"buy_filters" json:"buy_filters"`
	SellFilters []float64 `mapstructure:"sell_filters" json:"sell_filters"`
}

type SRGrid struct {
	Windows  []int     `mapstructure:"windows" json:"windows"`
	BandPcts []float64 `mapstructure:"band_pcts" json:"band_pcts"`
}

type CBGrid struct {
	Windows     []int     `mapstructure:"windows" json:"windows"`
	ChannelPcts []float64 `mapstructure:"channel_pcts" json:"channel_pcts"`
}

type OBVGrid struct {
	ShortPeriods []int `mapstructure:"short_periods" json:"short_periods"`
	LongPeriods  []int `mapstructure:"long_periods" json:"long_periods"`
}

type MACDGrid struct {
	FastPeriods   []int `mapstructure:"fast_periods" json:"fast_periods"`
	SlowPeriods   []int `mapstructure:"slow_periods" json:"slow_periods"`
	SignalPeriods []int `mapstructure:"signal_periods" json:"signal_periods"`
}

type DMIGrid struct {
	Periods       []int     `mapstructure:"periods" json:"periods"`
	ADXThresholds []float64 `mapstructure:"adx_thresholds" json:"adx_thresholds"`
}

type BollGrid struct {
	Periods     []int     `mapstructure:"periods" json:"periods"`
	StdDevMults []float64 `mapstructure:"stddev_mults" json:"stddev_mults"`
}

type IchimokuGrid struct {
	TenkanPeriods []int `mapstructure:"tenkan_periods" json:"tenkan_periods"`
	KijunPeriods  []int `mapstructure:"kijun_periods" json:"kijun_periods"`
	SpanBPeriods  []int `mapstructure:"senkou_span_b_periods" json:"senkou_span_b_periods"`
}

type PSARGrid struct {
	AccelSteps []float64 `mapstructure:"acceleration_steps" json:"acceleration_steps"`
	AccelMaxes []float64 `mapstructure:"acceleration_maxes" json:"acceleration_maxes"`
}

type SupertrendGrid struct {
	ATRPeriods  []int     `mapstructure:"atr_periods" json:"atr_periods"`
	Multipliers []float64 `mapstructure:"multipliers" json:"multipliers"`
}

type StochGrid struct {
	KPeriods    []int     `mapstructure:"k_periods" json:"k_periods"`
	DPeriods    []int     `mapstructure:"d_periods" json:"d_periods"`
	Overboughts []float64 `mapstructure:"overboughts" json:"overboughts"`
	Oversolds   []float64 `mapstructure:"oversolds" json:"oversolds"`
}

type StochRSIGrid struct {
	RSILengths   []int     `mapstructure:"rsi_lengths" json:"rsi_lengths"`
	StochLengths []int     `mapstructure:"stoch_lengths" json:"stoch_lengths"`
	KPeriods     []int     `mapstructure:"k_periods" json:"k_periods"`
	DPeriods     []int     `mapstructure:"d_periods" json:"d_periods"`
	Overboughts  []float64 `mapstructure:"overboughts" json:"overboughts"`
	Oversolds    []float64 `mapstructure:"oversolds" json:"oversolds"`
}

// VWAPGrid 无可调参数，Enabled 控制是否参与组合。
type VWAPGrid struct {
	Enabled bool `mapstructure:"enabled" json:"enabled"`
}

// expandKind 按配置顺序展开某一 kind 的全部参数点。
// 均线类会跳过 short>=long 的无效点；列表为空则该 kind 展开为空。
func (g Grid) expandKind(k signal.Kind) ([]signal.Params, error) {
	var out []signal.Params
	switch k {
	case signal.KindMA:
		for _, s := range g.MA.ShortPeriods {
			for _, l := range g.MA.LongPeriods {
				if s >= l {
					continue
				}
				for _, b := range g.MA.BandFilters {
					out = append(out, signal.Params{Kind: k, ShortPeriod: s, LongPeriod: l, BandFilter: b})
				}
			}
		}
	case signal.KindRSI:
		for _, p := range g.RSI.Periods {
			for _, ob := range g.RSI.Overboughts {
				for _, os := range g.RSI.Oversolds {
					if os >= ob {
						continue
					}
					out = append(out, signal.Params{Kind: k, Period: p, Overbought: ob, Oversold: os})
				}
			}
		}
	case signal.KindFilter:
		for _, w := range g.Filter.Windows {
			for _, x := range g.Filter.BuyFilters {
				for _, y := range g.Filter.SellFilters {
					out = append(out, signal.Params{Kind: k, Window: w, BuyFilter: x, SellFilter: y})
				}
			}
		}
	case signal.KindSR:
		for _, w := range g.SR.Windows {
			for _, b := range g.SR.BandPcts {
				out = append(out, signal.Params{Kind: k, Window: w, BandPct: b})
			}
		}
	case signal.KindCB:
		for _, w := range g.CB.Windows {
			for _, c := range g.CB.ChannelPcts {
				out = append(out, signal.Params{Kind: k, Window: w, ChannelPct: c})
			}
		}
	case signal.KindOBV:
		for _, s := range g.OBV.ShortPeriods {
			for _, l := range g.OBV.LongPeriods {
				if s >= l {
					continue
				}
				out = append(out, signal.Params{Kind: k, ShortPeriod: s, LongPeriod: l})
			}
		}
	case signal.KindMACD:
		for _, f := range g.MACD.FastPeriods {
			for _, s := range g.MACD.SlowPeriods {
				if f >= s {
					continue
				}
				for _, sig := range g.MACD.SignalPeriods {
					out = append(out, signal.Params{Kind: k, FastPeriod: f, SlowPeriod: s, SignalPeriod: sig})
				}
			}
		}
	case signal.KindDMIADX:
		for _, p := range g.DMIADX.Periods {
			for _, th := range g.DMIADX.ADXThresholds {
				out = append(out, signal.Params{Kind: k, Period: p, ADXThreshold: th})
			}
		}
	case signal.KindBollinger:
		for _, p := range g.Bollinger.Periods {
			for _, m := range g.Bollinger.StdDevMults {
				out = append(out, signal.Params{Kind: k, Period: p, StdDevMult: m})
			}
		}
	case signal.KindIchimoku:
		for _, t := range g.Ichimoku.TenkanPeriods {
			for _, kj := range g.Ichimoku.KijunPeriods {
				if t >= kj {
					continue
				}
				for _, sb := range g.Ichimoku.SpanBPeriods {
					out = append(out, signal.Params{Kind: k, TenkanPeriod: t, KijunPeriod: kj, SpanBPeriod: sb})
				}
			}
		}
	case signal.KindPSAR:
		for _, st := range g.PSAR.AccelSteps {
			for _, mx := range g.PSAR.AccelMaxes {
				if st > mx {
					continue
				}
				out = append(out, signal.Params{Kind: k, AccelStep: st, AccelMax: mx})
			}
		}
	case signal.KindSupertrend:
		for _, p := range g.Supertrend.ATRPeriods {
			for _, m := range g.Supertrend.Multipliers {
				out = append(out, signal.Params{Kind: k, ATRPeriod: p, Multiplier: m})
			}
		}
	case signal.KindStoch:
		for _, kp := range g.Stoch.KPeriods {
			for _, dp := range g.Stoch.DPeriods {
				for _, ob := range g.Stoch.Overboughts {
					for _, os := range g.Stoch.Oversolds {
						if os >= ob {
							continue
						}
						out = append(out, signal.Params{Kind: k, KPeriod: kp, DPeriod: dp, Overbought: ob, Oversold: os})
					}
				}
			}
		}
	case signal.KindStochRSI:
		for _, rl := range g.StochRSI.RSILengths {
			for _, sl := range g.StochRSI.StochLengths {
				for _, kp := range g.StochRSI.KPeriods {
					for _, dp := range g.StochRSI.DPeriods {
						for _, ob := range g.StochRSI.Overboughts {
							for _, os := range g.StochRSI.Oversolds {
								if os >= ob {
									continue
								}
								out = append(out, signal.Params{
									Kind: k, RSILength: rl, StochLength: sl,
									KPeriod: kp, DPeriod: dp, Overbought: ob, Oversold: os,
								})
							}
						}
					}
				}
			}
		}
	case signal.KindVWAP:
		if g.VWAP.Enabled {
			out = append(out, signal.Params{Kind: k})
		}
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrBadGrid, k)
	}
	return out, nil
}

// normalizeHolding 将 <=0 的持仓配置映射为不限持仓。
func normalizeHolding(h float64) float64 {
	if h <= 0 {
		return math.Inf(1)
	}
	return h
}
