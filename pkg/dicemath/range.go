package dicemath

import (
	"math/rand"

	"github.com/shopspring/decimal"
)

// Outcomes 骰子结果空间 0..9999。
const Outcomes = 10000

// RangeWidth 将胜率（百分比）量化为区间覆盖的结果个数：floor(p×100)，至少 1，至多 Outcomes-1。
func RangeWidth(probability decimal.Decimal) int {
	w := int(probability.Mul(Hundred).IntPart())
	if w < 1 {
		w = 1
	}
	if w > Outcomes-1 {
		w = Outcomes - 1
	}
	return w
}

// RangeProbability 区间宽度对应的胜率（百分比）。
func RangeProbability(width int) decimal.Decimal {
	return decimal.NewFromInt(int64(width)).DivRound(Hundred, ProbabilityPlaces)
}

// PlaceRange 用注入的随机源放置 [low, high] 窗口（闭区间）。rng 为 nil 时从 0 开始。
func PlaceRange(width int, rng *rand.Rand) (low, high int) {
	if width < 1 {
		width = 1
	}
	slack := Outcomes - width
	if rng != nil && slack > 0 {
		low = rng.Intn(slack + 1)
	}
	return low, low + width - 1
}

// QuantizeChance 把胜率向下对齐到一个结果（0.01%）的粒度，至少一个结果。
// 单数字骰子与区间骰子都只能表达整数个结果，结算与下单都按对齐后的胜率。
func QuantizeChance(probability decimal.Decimal) decimal.Decimal {
	return RangeProbability(RangeWidth(probability))
}

// RollWins 判定单数字骰子：high 为 roll > 9999-chance×100，low 为 roll < chance×100。
func RollWins(roll int, probability decimal.Decimal, high bool) bool {
	threshold := int(probability.Mul(Hundred).IntPart())
	if high {
		return roll > Outcomes-1-threshold
	}
	return roll < threshold
}

// RangeWins 判定区间骰子：inside 为 low<=roll<=high，否则为区间外。
func RangeWins(roll, low, high int, inside bool) bool {
	in := roll >= low && roll <= high
	return in == inside
}
