package combo

import (
	"fmt"
	"math"
	"strings"

	"gridbt/internal/signal"
)

// Combo 是一次完整回测的参数快照：规则集合加上组合级延迟与持仓约束。
// Index 是生成顺序下的全局序号，结果表按它定位。
type Combo struct {
	Index     int             `json:"index"`
	Rules     []signal.Params `json:"rules"`
	BuyDelay  int             `json:"buy_delay"`
	SellDelay int             `json:"sell_delay"`
	Holding   float64         `json:"holding"`
}

// Label 生成形如 "MA(5,50,0)+RSI(14,30/70) d=2/2 h=48" 的可读标识。
func (c Combo) Label() string {
	parts := make([]string, 0, len(c.Rules))
	for _, r := range c.Rules {
		parts = append(parts, r.Label())
	}
	h := "inf"
	if !math.IsInf(c.Holding, 1) {
		h = fmt.Sprintf("%g", c.Holding)
	}
	return fmt.Sprintf("%s d=%d/%d h=%s", strings.Join(parts, "+"), c.BuyDelay, c.SellDelay, h)
}

// Generate 展开网格为组合全集。
// 顺序固定：组合大小按配置顺序，kind 子集按字典序，参数点按各自列表顺序，
// 最后叠加 buy_delay × sell_delay × holding。
func Generate(g Grid) ([]Combo, error) {
	if err := validate(g); err != nil {
		return nil, err
	}
	expansions := make(map[signal.Kind][]signal.Params, len(g.Kinds))
	for _, k := range g.Kinds {
		params, err := g.expandKind(k)
		if err != nil {
			return nil, err
		}
		expansions[k] = params
	}

	buyDelays := g.BuyDelays
	if len(buyDelays) == 0 {
		buyDelays = []int{1}
	}
	sellDelays := g.SellDelays
	if len(sellDelays) == 0 {
		sellDelays = []int{1}
	}
	holdings := g.HoldingPeriods
	if len(holdings) == 0 {
		holdings = []float64{0}
	}

	var combos []Combo
	for _, size := range g.ComboSizes {
		for _, subset := range subsets(g.Kinds, size) {
			for _, ruleSet := range crossKinds(subset, expansions) {
				for _, bd := range buyDelays {
					for _, sd := range sellDelays {
						for _, h := range holdings {
							rules := make([]signal.Params, len(ruleSet))
							copy(rules, ruleSet)
							combos = append(combos, Combo{
								Index:     len(combos),
								Rules:     rules,
								BuyDelay:  bd,
								SellDelay: sd,
								Holding:   normalizeHolding(h),
							})
						}
					}
				}
			}
		}
	}
	return combos, nil
}

func validate(g Grid) error {
	if len(g.Kinds) == 0 {
		return fmt.Errorf("%w: no kinds configured", ErrBadGrid)
	}
	seen := make(map[signal.Kind]bool, len(g.Kinds))
	for _, k := range g.Kinds {
		if seen[k] {
			return fmt.Errorf("%w: duplicate kind %q", ErrBadGrid, k)
		}
		seen[k] = true
	}
	if len(g.ComboSizes) == 0 {
		return fmt.Errorf("%w: no combo sizes configured", ErrBadGrid)
	}
	for _, size := range g.ComboSizes {
		if size < 1 || size > len(g.Kinds) {
			return fmt.Errorf("%w: combo size %d out of range [1,%d]", ErrBadGrid, size, len(g.Kinds))
		}
	}
	for _, d := range g.BuyDelays {
		if d < 1 {
			return fmt.Errorf("%w: buy delay %d must be >= 1", ErrBadGrid, d)
		}
	}
	for _, d := range g.SellDelays {
		if d < 1 {
			return fmt.Errorf("%w: sell delay %d must be >= 1", ErrBadGrid, d)
		}
	}
	return nil
}

// subsets 返回 kinds 中所有大小为 size 的子集，保持输入顺序（字典序组合）。
func subsets(kinds []signal.Kind, size int) [][]signal.Kind {
	var out [][]signal.Kind
	cur := make([]signal.Kind, 0, size)
	var walk func(start int)
	walk = func(start int) {
		if len(cur) == size {
			picked := make([]signal.Kind, size)
			copy(picked, cur)
			out = append(out, picked)
			return
		}
		for i := start; i <= len(kinds)-(size-len(cur)); i++ {
			cur = append(cur, kinds[i])
			walk(i + 1)
			cur = cur[:len(cur)-1]
		}
	}
	walk(0)
	return out
}

// crossKinds 对子集内各 kind 的参数点做笛卡尔积。
// 任一 kind 展开为空，则整个子集不产生组合。
func crossKinds(subset []signal.Kind, expansions map[signal.Kind][]signal.Params) [][]signal.Params {
	result := [][]signal.Params{{}}
	for _, k := range subset {
		params := expansions[k]
		if len(params) == 0 {
			return nil
		}
		next := make([][]signal.Params, 0, len(result)*len(params))
		for _, prefix := range result {
			for _, p := range params {
				row := make([]signal.Params, len(prefix), len(prefix)+1)
				copy(row, prefix)
				next = append(next, append(row, p))
			}
		}
		result = next
	}
	return result
}
