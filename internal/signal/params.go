package signal

import "fmt"

// Kind 是封闭的规则类型枚举，在构建组合时解析一次，bar 循环内不再做字符串分发。
type Kind string

const (
	KindMA         Kind = "MA"
	KindRSI        Kind = "RSI"
	KindFilter     Kind = "FILTER"
	KindSR         Kind = "SR"
	KindCB         Kind = "CB"
	KindOBV        Kind = "OBV"
	KindMACD       Kind = "MACD"
	KindDMIADX     Kind = "DMI_ADX"
	KindBollinger  Kind = "BOLL"
	KindIchimoku   Kind = "ICHIMOKU"
	KindPSAR       Kind = "PSAR"
	KindSupertrend Kind = "SUPERTREND"
	KindStoch      Kind = "STOCH"
	KindStochRSI   Kind = "STOCH_RSI"
	KindVWAP       Kind = "VWAP"
)

// Kinds 返回全部规则类型，顺序固定，组合生成依赖该顺序保证可复现。
func Kinds() []Kind {
	return []Kind{
		KindMA, KindRSI, KindFilter, KindSR, KindCB, KindOBV,
		KindMACD, KindDMIADX, KindBollinger, KindIchimoku, KindPSAR,
		KindSupertrend, KindStoch, KindStochRSI, KindVWAP,
	}
}

// Params 是单条规则的不可变参数集，由生成器创建后不再修改。
// 各字段仅对相应 Kind 有意义，JSON 序列化时省略零值。
type Params struct {
	Kind Kind `json:"kind"`

	ShortPeriod int     `json:"short_period,omitempty"`
	LongPeriod  int     `json:"long_period,omitempty"`
	BandFilter  float64 `json:"band_filter,omitempty"`

	Period     int     `json:"period,omitempty"`
	Overbought float64 `json:"overbought,omitempty"`
	Oversold   float64 `json:"oversold,omitempty"`

	Window     int     `json:"window,omitempty"`
	BuyFilter  float64 `json:"buy_filter,omitempty"`
	SellFilter float64 `json:"sell_filter,omitempty"`
	BandPct    float64 `json:"band_pct,omitempty"`
	ChannelPct float64 `json:"channel_pct,omitempty"`

	FastPeriod   int `json:"fast_period,omitempty"`
	SlowPeriod   int `json:"slow_period,omitempty"`
	SignalPeriod int `json:"signal_period,omitempty"`

	ADXThreshold float64 `json:"adx_threshold,omitempty"`
	StdDevMult   float64 `json:"stddev_mult,omitempty"`

	TenkanPeriod int `json:"tenkan_period,omitempty"`
	KijunPeriod  int `json:"kijun_period,omitempty"`
	SpanBPeriod  int `json:"senkou_span_b_period,omitempty"`

	AccelStep float64 `json:"acceleration_step,omitempty"`
	AccelMax  float64 `json:"acceleration_max,omitempty"`

	ATRPeriod  int     `json:"atr_period,omitempty"`
	Multiplier float64 `json:"multiplier,omitempty"`

	KPeriod     int `json:"k_period,omitempty"`
	DPeriod     int `json:"d_period,omitempty"`
	RSILength   int `json:"rsi_length,omitempty"`
	StochLength int `json:"stoch_length,omitempty"`
}

// Label 生成形如 MA(5,50) 的简短标识，用于日志与报表。
func (p Params) Label() string {
	switch p.Kind {
	case KindMA:
		return fmt.Sprintf("MA(%d,%d,%g)", p.ShortPeriod, p.LongPeriod, p.BandFilter)
	case KindRSI:
		return fmt.Sprintf("RSI(%d,%g/%g)", p.Period, p.Oversold, p.Overbought)
	case KindFilter:
		return fmt.Sprintf("FILTER(%d,%g/%g)", p.Window, p.BuyFilter, p.SellFilter)
	case KindSR:
		return fmt.Sprintf("SR(%d,%g)", p.Window, p.BandPct)
	case KindCB:
		return fmt.Sprintf("CB(%d,%g)", p.Window, p.ChannelPct)
	case KindOBV:
		return fmt.Sprintf("OBV(%d,%d)", p.ShortPeriod, p.LongPeriod)
	case KindMACD:
		return fmt.Sprintf("MACD(%d,%d,%d)", p.FastPeriod, p.SlowPeriod, p.SignalPeriod)
	case KindDMIADX:
		return fmt.Sprintf("DMI_ADX(%d,%g)", p.Period, p.ADXThreshold)
	case KindBollinger:
		return fmt.Sprintf("BOLL(%d,%g)", p.Period, p.StdDevMult)
	case KindIchimoku:
		return fmt.Sprintf("ICHIMOKU(%d,%d,%d)", p.TenkanPeriod, p.KijunPeriod, p.SpanBPeriod)
	case KindPSAR:
		return fmt.Sprintf("PSAR(%g,%g)", p.AccelStep, p.AccelMax)
	case KindSupertrend:
		return fmt.Sprintf("SUPERTREND(%d,%g)", p.ATRPeriod, p.Multiplier)
	case KindStoch:
		return fmt.Sprintf("STOCH(%d,%d,%g/%g)", p.KPeriod, p.DPeriod, p.Oversold, p.Overbought)
	case KindStochRSI:
		return fmt.Sprintf("STOCH_RSI(%d,%d,%d,%d)", p.RSILength, p.StochLength, p.KPeriod, p.DPeriod)
	case KindVWAP:
		return "VWAP"
	default:
		return string(p.Kind)
	}
}
