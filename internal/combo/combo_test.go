package combo

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridbt/internal/signal"
)

func twoKindGrid() Grid {
	return Grid{
		Kinds:      []signal.Kind{signal.KindMA, signal.KindRSI},
		ComboSizes: []int{1, 2},
		MA: MAGrid{
			ShortPeriods: []int{5, 20},
			LongPeriods:  []int{10},
			BandFilters:  []float64{0},
		},
		RSI: RSIGrid{
			Periods:     []int{14},
			Overboughts: []float64{70},
			Oversolds:   []float64{30},
		},
	}
}

func TestGenerateCountsAndOrder(t *testing.T) {
	combos, err := Generate(twoKindGrid())
	require.NoError(t, err)

	// MA 展开 1 个有效点（20>=10 被剔除），RSI 1 个点。
	// size=1: MA, RSI；size=2: MA×RSI。共 3 个组合。
	require.Len(t, combos, 3)

	assert.Equal(t, signal.KindMA, combos[0].Rules[0].Kind)
	assert.Equal(t, signal.KindRSI, combos[1].Rules[0].Kind)
	require.Len(t, combos[2].Rules, 2)
	assert.Equal(t, signal.KindMA, combos[2].Rules[0].Kind)
	assert.Equal(t, signal.KindRSI, combos[2].Rules[1].Kind)

	for i, c := range combos {
		assert.Equal(t, i, c.Index)
	}
}

func TestGenerateIsDeterministic(t *testing.T) {
	g := twoKindGrid()
	g.BuyDelays = []int{1, 2}
	g.SellDelays = []int{1}
	g.HoldingPeriods = []float64{0, 48}

	first, err := Generate(g)
	require.NoError(t, err)
	second, err := Generate(g)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// 3 个规则组合 × 2 buy × 1 sell × 2 holding。
	assert.Len(t, first, 12)
}

func TestGenerateSkipsInvalidPeriodPairs(t *testing.T) {
	g := Grid{
		Kinds:      []signal.Kind{signal.KindMA},
		ComboSizes: []int{1},
		MA: MAGrid{
			ShortPeriods: []int{10, 20},
			LongPeriods:  []int{10},
			BandFilters:  []float64{0},
		},
	}
	combos, err := Generate(g)
	require.NoError(t, err)
	assert.Empty(t, combos)
}

func TestGenerateEmptyKindDropsSubset(t *testing.T) {
	g := twoKindGrid()
	g.RSI = RSIGrid{}

	combos, err := Generate(g)
	require.NoError(t, err)
	// RSI 无参数点：含 RSI 的子集静默消失，只剩单 MA。
	require.Len(t, combos, 1)
	assert.Equal(t, signal.KindMA, combos[0].Rules[0].Kind)
}

func TestGenerateHoldingNormalization(t *testing.T) {
	g := twoKindGrid()
	g.ComboSizes = []int{1}
	g.HoldingPeriods = []float64{0, 24}

	combos, err := Generate(g)
	require.NoError(t, err)
	require.Len(t, combos, 4)
	assert.True(t, math.IsInf(combos[0].Holding, 1))
	assert.Equal(t, 24.0, combos[1].Holding)
}

func TestGenerateDefaultsDelaysToOne(t *testing.T) {
	combos, err := Generate(twoKindGrid())
	require.NoError(t, err)
	for _, c := range combos {
		assert.Equal(t, 1, c.BuyDelay)
		assert.Equal(t, 1, c.SellDelay)
		assert.True(t, math.IsInf(c.Holding, 1))
	}
}

func TestGenerateRejectsBadGrid(t *testing.T) {
	cases := map[string]Grid{
		"no kinds":       {ComboSizes: []int{1}},
		"no sizes":       {Kinds: []signal.Kind{signal.KindVWAP}},
		"size too large": {Kinds: []signal.Kind{signal.KindVWAP}, ComboSizes: []int{2}},
		"duplicate kind": {Kinds: []signal.Kind{signal.KindVWAP, signal.KindVWAP}, ComboSizes: []int{1}},
		"zero buy delay": {Kinds: []signal.Kind{signal.KindVWAP}, ComboSizes: []int{1}, BuyDelays: []int{0}},
	}
	for name, g := range cases {
		_, err := Generate(g)
		assert.ErrorIs(t, err, ErrBadGrid, name)
	}
}

func TestComboJSONEncodesInfiniteHoldingAsZero(t *testing.T) {
	c := Combo{
		Index:     2,
		Rules:     []signal.Params{{Kind: signal.KindVWAP}},
		BuyDelay:  1,
		SellDelay: 1,
		Holding:   math.Inf(1),
	}
	data, err := json.Marshal(c)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"holding":0`)

	var back Combo
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, math.IsInf(back.Holding, 1))
	assert.Equal(t, c.Rules, back.Rules)
}

func TestComboLabel(t *testing.T) {
	c := Combo{
		Rules: []signal.Params{
			{Kind: signal.KindMA, ShortPeriod: 5, LongPeriod: 50},
			{Kind: signal.KindVWAP},
		},
		BuyDelay:  2,
		SellDelay: 3,
		Holding:   math.Inf(1),
	}
	assert.Equal(t, "MA(5,50,0)+VWAP d=2/3 h=inf", c.Label())
}
