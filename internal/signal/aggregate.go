package signal

import (
	"fmt"

	"gridbt/internal/indicator"
)

// Mode 为多规则聚合口径。
type Mode string

const (
	// ModeSum 取逐 bar 票数和的符号。
	ModeSum Mode = "sum"
	// ModeAnd 要求全体规则同向且非 0，否则观望。
	ModeAnd Mode = "and"
)

func ParseMode(input string) (Mode, error) {
	switch Mode(input) {
	case ModeSum, ModeAnd:
		return Mode(input), nil
	default:
		return "", fmt.Errorf("unknown aggregation mode: %q", input)
	}
}

// Aggregate 将多条等长投票序列合并为最终信号序列。
// votes 为空或各序列长度不一致时返回错误。
func Aggregate(mode Mode, votes [][]int) ([]int, error) {
	if len(votes) == 0 {
		return nil, fmt.Errorf("no votes to aggregate")
	}
	n := len(votes[0])
	for i, v := range votes {
		if len(v) != n {
			return nil, fmt.Errorf("vote series %d has length %d, want %d", i, len(v), n)
		}
	}
	out := make([]int, n)
	switch mode {
	case ModeSum:
		for i := 0; i < n; i++ {
			sum := 0
			for _, v := range votes {
				sum += v[i]
			}
			out[i] = sign(sum)
		}
	case ModeAnd:
		for i := 0; i < n; i++ {
			first := votes[0][i]
			if first == 0 {
				continue
			}
			agree := true
			for _, v := range votes[1:] {
				if v[i] != first {
					agree = false
					break
				}
			}
			if agree {
				out[i] = first
			}
		}
	default:
		return nil, fmt.Errorf("unknown aggregation mode: %q", mode)
	}
	return out, nil
}

// EvaluateRules 依次跑出各规则的投票再聚合，是组合评估的信号入口。
func EvaluateRules(f *indicator.Frame, rules []Rule, mode Mode) ([]int, error) {
	votes := make([][]int, 0, len(rules))
	for _, r := range rules {
		votes = append(votes, r.Evaluate(f))
	}
	return Aggregate(mode, votes)
}

func sign(v int) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
