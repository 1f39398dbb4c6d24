package market

type Candle struct {
	OpenTime  int64   `json:"open_time"`
	CloseTime int64   `json:"close_time"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	Trades    int64   `json:"trades"`
}

// Closes 提取收盘价序列，顺序与输入一致。
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// Split 按比例切分 K 线为样本内/样本外两段（比例作用于样本内）。
func Split(candles []Candle, insampleRatio float64) (is, oos []Candle) {
	if len(candles) == 0 {
		return nil, nil
	}
	if insampleRatio <= 0 {
		return nil, candles
	}
	if insampleRatio >= 1 {
		return candles, nil
	}
	cut := int(float64(len(candles)) * insampleRatio)
	if cut < 1 {
		cut = 1
	}
	if cut >= len(candles) {
		cut = len(candles) - 1
	}
	return candles[:cut], candles[cut:]
}
