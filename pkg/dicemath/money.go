package dicemath

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// 精度约定：
// - 金额（stake / profit / balance）固定 8 位小数，最小单位 1e-8
// - 胜率（百分比）最多 4 位小数
// - 除法统一使用 16 位精度，避免依赖 decimal.DivisionPrecision 全局变量
const (
	MoneyPlaces       int32 = 8
	ProbabilityPlaces int32 = 4
	divPlaces         int32 = 16
)

var (
	// MinUnit 最小金额单位（1e-8）
	MinUnit = decimal.New(1, -MoneyPlaces)
	// Hundred 百分比基数
	Hundred = decimal.NewFromInt(100)

	one = decimal.NewFromInt(1)
)

var (
	// ErrInvalidInput 输入超出定义域（非正余额、胜率不在 (0,100) 等）
	ErrInvalidInput = errors.New("dicemath: invalid input")
	// ErrStakeBelowUnit 计算出的下注额不足一个最小单位
	ErrStakeBelowUnit = errors.New("dicemath: stake below minimum unit")
)

// FloorMoney 向下取整到最小金额单位。
func FloorMoney(d decimal.Decimal) decimal.Decimal {
	return d.RoundFloor(MoneyPlaces)
}

// CeilMoney 向上取整到最小金额单位。
func CeilMoney(d decimal.Decimal) decimal.Decimal {
	return d.RoundCeil(MoneyPlaces)
}

// FormatMoney 以固定 8 位小数输出（wire 格式）。
func FormatMoney(d decimal.Decimal) string {
	return d.StringFixed(MoneyPlaces)
}

// FormatProbability 输出最多 4 位小数的胜率字符串。
func FormatProbability(p decimal.Decimal) string {
	return p.Round(ProbabilityPlaces).String()
}

// ParseMoney 解析十进制金额字符串，拒绝空串与多于 8 位的小数。
func ParseMoney(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("%w: empty amount", ErrInvalidInput)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: amount %q: %v", ErrInvalidInput, s, err)
	}
	if !d.Equal(d.Round(MoneyPlaces)) {
		return decimal.Zero, fmt.Errorf("%w: amount %q has more than %d decimals", ErrInvalidInput, s, MoneyPlaces)
	}
	return d, nil
}

// ParseProbability 解析胜率百分比字符串，要求严格位于 (0,100)。
func ParseProbability(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	p, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: probability %q: %v", ErrInvalidInput, s, err)
	}
	if err := checkProbability(p); err != nil {
		return decimal.Zero, err
	}
	return p, nil
}

func checkProbability(p decimal.Decimal) error {
	if !p.IsPositive() || p.GreaterThanOrEqual(Hundred) {
		return fmt.Errorf("%w: probability %s outside (0,100)", ErrInvalidInput, p.String())
	}
	return nil
}

// PayoutMultiplier 赔付倍数 = (100 - houseEdge) / probability。
func PayoutMultiplier(probability, houseEdge decimal.Decimal) (decimal.Decimal, error) {
	if err := checkProbability(probability); err != nil {
		return decimal.Zero, err
	}
	if houseEdge.IsNegative() || houseEdge.GreaterThanOrEqual(Hundred) {
		return decimal.Zero, fmt.Errorf("%w: house edge %s outside [0,100)", ErrInvalidInput, houseEdge.String())
	}
	return Hundred.Sub(houseEdge).DivRound(probability, divPlaces), nil
}

// ProfitOnWin 赢一注的净利润 = stake × (multiplier - 1)。
// 返回精确值（不取整），结算时由服务方按最小单位截断。
func ProfitOnWin(stake, probability, houseEdge decimal.Decimal) (decimal.Decimal, error) {
	if !stake.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: stake %s must be > 0", ErrInvalidInput, stake.String())
	}
	m, err := PayoutMultiplier(probability, houseEdge)
	if err != nil {
		return decimal.Zero, err
	}
	return stake.Mul(m.Sub(one)), nil
}

// Payout 赢一注的总返还 = stake × multiplier（截断到最小单位）。
func Payout(stake, probability, houseEdge decimal.Decimal) (decimal.Decimal, error) {
	m, err := PayoutMultiplier(probability, houseEdge)
	if err != nil {
		return decimal.Zero, err
	}
	return FloorMoney(stake.Mul(m)), nil
}

// Clamp 将 v 限制在 [lo, hi]。
func Clamp(v, lo, hi decimal.Decimal) decimal.Decimal {
	if v.LessThan(lo) {
		return lo
	}
	if v.GreaterThan(hi) {
		return hi
	}
	return v
}

// Lerp 线性插值：from + (to-from) × step/(steps-1)。steps<=1 时返回 from。
func Lerp(from, to decimal.Decimal, step, steps int) decimal.Decimal {
	if steps <= 1 || step <= 0 {
		return from
	}
	if step >= steps-1 {
		return to
	}
	t := decimal.NewFromInt(int64(step)).DivRound(decimal.NewFromInt(int64(steps-1)), divPlaces)
	return from.Add(to.Sub(from).Mul(t))
}
