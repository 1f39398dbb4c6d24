package score

import (
	"bytes"
	"encoding/json"
	"math"
)

// MarshalJSON 将 +Inf 的 ProfitFactor 编码为字符串 "inf"，其余字段按数值输出。
// encoding/json 不接受 Inf，落库与 HTTP 输出都走这里。
func (c Card) MarshalJSON() ([]byte, error) {
	type alias Card
	out := struct {
		alias
		ProfitFactor any `json:"profit_factor"`
	}{alias: alias(c)}
	if math.IsInf(c.ProfitFactor, 1) {
		out.ProfitFactor = "inf"
	} else {
		out.ProfitFactor = c.ProfitFactor
	}
	return json.Marshal(out)
}

func (c *Card) UnmarshalJSON(data []byte) error {
	type alias Card
	aux := struct {
		*alias
		ProfitFactor json.RawMessage `json:"profit_factor"`
	}{alias: (*alias)(c)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	switch {
	case len(aux.ProfitFactor) == 0 || bytes.Equal(aux.ProfitFactor, []byte("null")):
		c.ProfitFactor = 0
	case bytes.Equal(aux.ProfitFactor, []byte(`"inf"`)):
		c.ProfitFactor = math.Inf(1)
	default:
		return json.Unmarshal(aux.ProfitFactor, &c.ProfitFactor)
	}
	return nil
}
