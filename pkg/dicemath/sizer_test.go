package dicemath

import (
	"testing"
	"testing/quick"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSizer_ConcreteScenario(t *testing.T) {
	s, err := NewSizer(d("1"), d("0.05"))
	require.NoError(t, err)

	band := Band{
		ProbMin:          d("0.10"),
		ProbMax:          d("0.50"),
		StakeMinFraction: d("0.002"),
		StakeMaxFraction: d("0.02"),
	}
	out, err := s.Size(d("1.00000000"), d("0.50"), d("0.01"), band)
	require.NoError(t, err)

	// 99 / 51 ≈ 1.94%，超出区间被截到 0.50
	assert.Equal(t, "1.9412", FormatProbability(out.RawProbability))
	assert.True(t, out.Clamped)
	assert.True(t, out.Probability.Equal(d("0.5")), "prob=%s", out.Probability)
	assert.True(t, out.Multiplier.Equal(d("198")), "mult=%s", out.Multiplier)
	assert.Equal(t, "0.00253807", FormatMoney(out.Stake))
	assert.False(t, out.Degenerate)
	assert.False(t, out.Capped)

	profit, err := ProfitOnWin(out.Stake, out.Probability, d("1"))
	require.NoError(t, err)
	assert.Equal(t, "0.49999979", FormatMoney(profit))

	payout, err := Payout(out.Stake, out.Probability, d("1"))
	require.NoError(t, err)
	assert.Equal(t, "0.50253786", FormatMoney(payout))
}

func TestSizer_DegenerateFallsBackToMinFraction(t *testing.T) {
	s, err := NewSizer(d("1"), d("1"))
	require.NoError(t, err)
	band := Band{ProbMin: d("99.5"), ProbMax: d("99.9"), StakeMinFraction: d("0.01"), StakeMaxFraction: d("0.1")}
	out, err := s.Size(d("2"), d("0.01"), d("0.05"), band)
	require.NoError(t, err)
	assert.True(t, out.Degenerate)
	assert.True(t, out.Probability.Equal(d("99.9")))
	assert.True(t, out.Stake.Equal(d("0.02")), "stake=%s", out.Stake)
}

func TestSizer_HardCap(t *testing.T) {
	s, err := NewSizer(d("1"), d("0.01"))
	require.NoError(t, err)
	band := Band{ProbMin: d("1"), ProbMax: d("50"), StakeMinFraction: d("0.001"), StakeMaxFraction: d("0.5")}
	out, err := s.Size(d("10"), d("0.5"), d("0.2"), band)
	require.NoError(t, err)
	assert.True(t, out.Capped)
	assert.True(t, out.Stake.Equal(d("0.1")), "stake=%s", out.Stake)
}

func TestSizer_Errors(t *testing.T) {
	s, err := NewSizer(d("1"), d("1"))
	require.NoError(t, err)
	band := Band{ProbMin: d("1"), ProbMax: d("50"), StakeMinFraction: d("0.001"), StakeMaxFraction: d("0.5")}

	_, err = s.Size(decimal.Zero, d("0.5"), d("0.01"), band)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = s.Size(d("1"), decimal.Zero, d("0.01"), band)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = s.Size(d("1"), d("0.5"), decimal.Zero, band)
	assert.ErrorIs(t, err, ErrInvalidInput)

	bad := band
	bad.ProbMin = d("60")
	_, err = s.Size(d("1"), d("0.5"), d("0.01"), bad)
	assert.ErrorIs(t, err, ErrInvalidInput)

	// 余额太小：硬上限截到 0，下注额不足 1e-8
	tiny, err := NewSizer(d("1"), d("0.01"))
	require.NoError(t, err)
	_, err = tiny.Size(d("0.00000010"), d("0.5"), d("0.01"), band)
	assert.ErrorIs(t, err, ErrStakeBelowUnit)

	_, err = NewSizer(d("-1"), d("1"))
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = NewSizer(d("1"), d("1.5"))
	assert.ErrorIs(t, err, ErrInvalidInput)
}

// 反推往返：未截断时 profit ≈ B×T；截断时 profit >= 0 且下注额位于比例区间内
func TestProperty_InverseRoundTrip(t *testing.T) {
	edge := d("1")
	s, err := NewSizer(edge, d("1"))
	require.NoError(t, err)

	wide := Band{ProbMin: d("0.0001"), ProbMax: d("98"), StakeMinFraction: d("0.0001"), StakeMaxFraction: d("0.5")}
	narrow := Band{ProbMin: d("0.10"), ProbMax: d("0.50"), StakeMinFraction: d("0.002"), StakeMaxFraction: d("0.02")}

	property := func(bRaw, tRaw, fRaw uint32, useNarrow bool) bool {
		// B ∈ [1, ~1000]，T ∈ (0, 5]，f ∈ [0.001, 0.1]
		balance := decimal.NewFromInt(int64(bRaw%100000) + 100).Shift(-2)
		target := decimal.NewFromInt(int64(tRaw%5000) + 1).Shift(-3)
		fraction := decimal.NewFromInt(int64(fRaw%100) + 1).Shift(-3)
		band := wide
		if useNarrow {
			// f 取区间内部 [0.003, 0.019]
			band = narrow
			fraction = decimal.NewFromInt(int64(fRaw%17) + 3).Shift(-3)
		}

		out, err := s.Size(balance, target, fraction, band)
		if err != nil {
			t.Logf("B=%s T=%s f=%s err=%v", balance, target, fraction, err)
			return false
		}
		profit, err := ProfitOnWin(out.Stake, out.Probability, edge)
		if err != nil {
			return false
		}

		lo := balance.Mul(band.StakeMinFraction)
		hi := balance.Mul(band.StakeMaxFraction)
		if out.Clamped {
			if profit.IsNegative() || out.Stake.LessThan(lo) || out.Stake.GreaterThan(hi) {
				t.Logf("clamped: B=%s T=%s f=%s stake=%s profit=%s", balance, target, fraction, out.Stake, profit)
				return false
			}
			return true
		}
		// 未截断：误差不超过一个最小单位 × (倍数-1)
		tolerance := MinUnit.Mul(out.Multiplier)
		diff := profit.Sub(balance.Mul(target)).Abs()
		if diff.GreaterThan(tolerance) {
			t.Logf("round trip: B=%s T=%s f=%s p=%s stake=%s profit=%s diff=%s", balance, target, fraction, out.Probability, out.Stake, profit, diff)
			return false
		}
		return true
	}
	require.NoError(t, quick.Check(property, &quick.Config{MaxCount: 1000}))
}
