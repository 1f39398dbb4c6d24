package market

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Timeframe 描述评估使用的周期信息（内部 duration + 年化换算用的每年 bar 数）。
type Timeframe struct {
	Key         string
	Duration    time.Duration
	BarsPerYear int
}

// BarsPerYear 为表驱动的固定值：Sharpe/CAGR 年化换算禁止按调用点临时推算。
var supportedTimeframes = map[string]Timeframe{
	"5m":  {Key: "5m", Duration: 5 * time.Minute, BarsPerYear: 288 * 365},
	"15m": {Key: "15m", Duration: 15 * time.Minute, BarsPerYear: 96 * 365},
	"30m": {Key: "30m", Duration: 30 * time.Minute, BarsPerYear: 48 * 365},
	"1h":  {Key: "1h", Duration: time.Hour, BarsPerYear: 24 * 365},
	"4h":  {Key: "4h", Duration: 4 * time.Hour, BarsPerYear: 6 * 365},
	"1d":  {Key: "1d", Duration: 24 * time.Hour, BarsPerYear: 365},
	"3d":  {Key: "3d", Duration: 72 * time.Hour, BarsPerYear: 365 / 3},
	"1w":  {Key: "1w", Duration: 7 * 24 * time.Hour, BarsPerYear: 52},
}

// ParseTimeframe 返回标准化周期定义。
func ParseTimeframe(input string) (Timeframe, error) {
	key := strings.ToLower(strings.TrimSpace(input))
	tf, ok := supportedTimeframes[key]
	if !ok {
		return Timeframe{}, fmt.Errorf("unsupported timeframe: %s", input)
	}
	return tf, nil
}

// SupportedTimeframes 返回所有支持的 key（排序后）。
func SupportedTimeframes() []string {
	keys := make([]string, 0, len(supportedTimeframes))
	for k := range supportedTimeframes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (tf Timeframe) durationMillis() int64 {
	return tf.Duration.Milliseconds()
}

func alignDown(ts, step int64) int64 {
	if step <= 0 {
		return ts
	}
	rem := ts % step
	if rem < 0 {
		rem += step
	}
	return ts - rem
}

// AlignRange 将输入的毫秒时间对齐到周期网格，保证 start<=end。
func (tf Timeframe) AlignRange(start, end int64) (int64, int64) {
	step := tf.durationMillis()
	if end < start {
		start, end = end, start
	}
	alStart := alignDown(start, step)
	alEnd := alignDown(end, step)
	if alEnd < alStart {
		alEnd = alStart
	}
	return alStart, alEnd
}
