package dicemath

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Band 单个阶段的胜率区间与下注比例区间。
// 胜率为百分比；下注比例为当前余额的分数（0.01 = 1%）。
type Band struct {
	ProbMin          decimal.Decimal
	ProbMax          decimal.Decimal
	StakeMinFraction decimal.Decimal
	StakeMaxFraction decimal.Decimal
}

// Validate 校验区间自洽：0 < probMin <= probMax < 100，0 < stakeMin <= stakeMax <= 1。
func (b Band) Validate() error {
	if !b.ProbMin.IsPositive() || b.ProbMax.GreaterThanOrEqual(Hundred) || b.ProbMin.GreaterThan(b.ProbMax) {
		return fmt.Errorf("%w: probability band [%s, %s]", ErrInvalidInput, b.ProbMin, b.ProbMax)
	}
	if !b.StakeMinFraction.IsPositive() || b.StakeMinFraction.GreaterThan(b.StakeMaxFraction) || b.StakeMaxFraction.GreaterThan(one) {
		return fmt.Errorf("%w: stake band [%s, %s]", ErrInvalidInput, b.StakeMinFraction, b.StakeMaxFraction)
	}
	return nil
}

// normalize 把胜率边界对齐到 4 位小数（向内取整，保证不越界）。
func (b Band) normalize() Band {
	b.ProbMin = b.ProbMin.RoundCeil(ProbabilityPlaces)
	b.ProbMax = b.ProbMax.RoundFloor(ProbabilityPlaces)
	if b.ProbMax.LessThan(b.ProbMin) {
		b.ProbMax = b.ProbMin
	}
	return b
}

// Sizing 一次下注尺寸计算的结果。
type Sizing struct {
	Probability    decimal.Decimal // 实际使用的胜率（已截断、已对齐 4 位小数）
	RawProbability decimal.Decimal // 反推出的原始胜率
	Multiplier     decimal.Decimal // 实际赔付倍数
	Stake          decimal.Decimal // 下注额（最小单位对齐）
	Clamped        bool            // 胜率被区间截断
	Degenerate     bool            // 倍数 <= 1，回退到最小下注比例 + 区间上限胜率
	Capped         bool            // 触发独立的硬上限
}

// Sizer 由“目标利润比例 + 期望下注比例”反推 (胜率, 下注额)。
//
// 说明：
// - 截断胜率后赔付倍数会改变，因此下注额按“保住目标利润”重新计算，而不是保住下注比例
// - HardCapFraction 与阶段区间无关，是独立的安全上限
type Sizer struct {
	HouseEdge       decimal.Decimal
	HardCapFraction decimal.Decimal
}

// NewSizer 创建 Sizer。houseEdge 为百分比（1 = 1%）；hardCap 为余额分数（0,1]。
func NewSizer(houseEdge, hardCap decimal.Decimal) (*Sizer, error) {
	if houseEdge.IsNegative() || houseEdge.GreaterThanOrEqual(Hundred) {
		return nil, fmt.Errorf("%w: house edge %s", ErrInvalidInput, houseEdge)
	}
	if !hardCap.IsPositive() || hardCap.GreaterThan(one) {
		return nil, fmt.Errorf("%w: hard cap fraction %s", ErrInvalidInput, hardCap)
	}
	return &Sizer{HouseEdge: houseEdge, HardCapFraction: hardCap}, nil
}

// Size 按目标利润比例 target（0.5 = 余额 +50%）与下注比例 fraction 计算一注。
//
//	payoutNeeded = target/fraction + 1
//	probRaw      = (100 - edge) / payoutNeeded
//	prob         = clamp(probRaw, band)
//	stake        = balance × target / (multiplier(prob) - 1)，再夹到下注比例区间
func (s *Sizer) Size(balance, target, fraction decimal.Decimal, band Band) (Sizing, error) {
	if !target.IsPositive() || !fraction.IsPositive() {
		return Sizing{}, fmt.Errorf("%w: target=%s fraction=%s", ErrInvalidInput, target, fraction)
	}
	payoutNeeded := target.DivRound(fraction, divPlaces).Add(one)
	raw := Hundred.Sub(s.HouseEdge).DivRound(payoutNeeded, divPlaces)
	return s.sizeFrom(balance, target, raw, band)
}

// SizeAt 在给定胜率下计算达到目标利润所需的下注额（胜率仍受区间约束）。
func (s *Sizer) SizeAt(balance, target, probability decimal.Decimal, band Band) (Sizing, error) {
	if !target.IsPositive() {
		return Sizing{}, fmt.Errorf("%w: target=%s", ErrInvalidInput, target)
	}
	return s.sizeFrom(balance, target, probability, band)
}

func (s *Sizer) sizeFrom(balance, target, raw decimal.Decimal, band Band) (Sizing, error) {
	if !balance.IsPositive() {
		return Sizing{}, fmt.Errorf("%w: balance %s must be > 0", ErrInvalidInput, balance)
	}
	if err := band.Validate(); err != nil {
		return Sizing{}, err
	}
	band = band.normalize()

	out := Sizing{RawProbability: raw}
	out.Probability = Clamp(raw.Round(ProbabilityPlaces), band.ProbMin, band.ProbMax)
	out.Clamped = !out.Probability.Equal(raw.Round(ProbabilityPlaces))

	lo := CeilMoney(band.StakeMinFraction.Mul(balance))
	hi := FloorMoney(band.StakeMaxFraction.Mul(balance))
	if hi.LessThan(lo) {
		hi = lo
	}

	edgeFactor := Hundred.Sub(s.HouseEdge)
	out.Multiplier = edgeFactor.DivRound(out.Probability, divPlaces)
	if out.Multiplier.LessThanOrEqual(one) {
		out.Degenerate = true
		out.Probability = band.ProbMax
		out.Multiplier = edgeFactor.DivRound(out.Probability, divPlaces)
		out.Stake = lo
	} else {
		stake := balance.Mul(target).DivRound(out.Multiplier.Sub(one), divPlaces)
		out.Stake = Clamp(FloorMoney(stake), lo, hi)
	}

	if capAmt := FloorMoney(s.HardCapFraction.Mul(balance)); out.Stake.GreaterThan(capAmt) {
		out.Stake = capAmt
		out.Capped = true
	}
	if out.Stake.GreaterThan(balance) {
		out.Stake = FloorMoney(balance)
		out.Capped = true
	}
	if out.Stake.LessThan(MinUnit) {
		return out, ErrStakeBelowUnit
	}
	return out, nil
}
