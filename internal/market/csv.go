package market

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ReadCSV 解析本地 OHLCV CSV 文件。
// 首行为表头，必须含 timestamp/open/high/low/close/volume 列（大小写不敏感），
// timestamp 为毫秒；可选 close_time 与 trades 列。
func ReadCSV(path string, tf Timeframe) ([]Candle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseCSV(f, tf)
}

func parseCSV(r io.Reader, tf Timeframe) ([]Candle, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading csv header failed: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[strings.ToLower(strings.TrimSpace(name))] = i
	}
	tsCol, ok := idx["timestamp"]
	if !ok {
		tsCol, ok = idx["open_time"]
	}
	if !ok {
		return nil, fmt.Errorf("csv missing timestamp column")
	}
	for _, col := range []string{"open", "high", "low", "close", "volume"} {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("csv missing %s column", col)
		}
	}

	var (
		out    []Candle
		lastTS int64
		line   = 1
	)
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading csv row failed: %w", err)
		}
		line++
		c, err := candleFromRecord(rec, idx, tsCol, tf)
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		if c.OpenTime <= lastTS {
			return nil, fmt.Errorf("csv line %d: timestamps must be strictly increasing", line)
		}
		lastTS = c.OpenTime
		out = append(out, c)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("csv contains no candles")
	}
	return out, nil
}

func candleFromRecord(rec []string, idx map[string]int, tsCol int, tf Timeframe) (Candle, error) {
	field := func(col string) (float64, error) {
		i := idx[col]
		if i >= len(rec) {
			return 0, fmt.Errorf("short row")
		}
		return strconv.ParseFloat(strings.TrimSpace(rec[i]), 64)
	}
	if tsCol >= len(rec) {
		return Candle{}, fmt.Errorf("short row")
	}
	ts, err := strconv.ParseInt(strings.TrimSpace(rec[tsCol]), 10, 64)
	if err != nil {
		return Candle{}, fmt.Errorf("bad timestamp: %w", err)
	}
	var c Candle
	c.OpenTime = ts
	c.CloseTime = ts + tf.durationMillis() - 1
	if i, ok := idx["close_time"]; ok && i < len(rec) {
		if v, err := strconv.ParseInt(strings.TrimSpace(rec[i]), 10, 64); err == nil {
			c.CloseTime = v
		}
	}
	if c.Open, err = field("open"); err != nil {
		return Candle{}, fmt.Errorf("bad open: %w", err)
	}
	if c.High, err = field("high"); err != nil {
		return Candle{}, fmt.Errorf("bad high: %w", err)
	}
	if c.Low, err = field("low"); err != nil {
		return Candle{}, fmt.Errorf("bad low: %w", err)
	}
	if c.Close, err = field("close"); err != nil {
		return Candle{}, fmt.Errorf("bad close: %w", err)
	}
	if c.Volume, err = field("volume"); err != nil {
		return Candle{}, fmt.Errorf("bad volume: %w", err)
	}
	if i, ok := idx["trades"]; ok && i < len(rec) {
		if v, err := strconv.ParseInt(strings.TrimSpace(rec[i]), 10, 64); err == nil {
			c.Trades = v
		}
	}
	return c, nil
}
