package combo

import (
	"encoding/json"
	"math"
)

// MarshalJSON 将不限持仓（+Inf）编码为 0，与配置中 "<=0 即不限" 的约定一致。
func (c Combo) MarshalJSON() ([]byte, error) {
	type alias Combo
	out := alias(c)
	if math.IsInf(out.Holding, 1) {
		out.Holding = 0
	}
	return json.Marshal(out)
}

func (c *Combo) UnmarshalJSON(data []byte) error {
	type alias Combo
	if err := json.Unmarshal(data, (*alias)(c)); err != nil {
		return err
	}
	c.Holding = normalizeHolding(c.Holding)
	return nil
}
