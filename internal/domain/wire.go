package domain

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sushiomsky/duckdice-bot-sub000/pkg/dicemath"
)

// 字符串转换只发生在这里（策略/外部边界），核心内部统一使用 decimal。

// BetSpecWire BetSpec 的线上格式
type BetSpecWire struct {
	Kind        string  `json:"kind"`
	Stake       string  `json:"stake"`
	Probability string  `json:"probability,omitempty"`
	Range       *[2]int `json:"range,omitempty"`
	Direction   bool    `json:"direction"`
}

// BetResultWire BetResult 的线上格式
type BetResultWire struct {
	Won             bool    `json:"won"`
	Profit          string  `json:"profit"`
	Balance         string  `json:"balance"`
	ProbabilityUsed string  `json:"probability_used"`
	Roll            float64 `json:"roll"`
}

// Wire 转为线上格式
func (b BetSpec) Wire() BetSpecWire {
	w := BetSpecWire{
		Kind:      string(b.Kind),
		Stake:     dicemath.FormatMoney(b.Stake),
		Direction: b.High,
	}
	if b.Kind == GameRange {
		w.Range = &[2]int{b.RangeLow, b.RangeHigh}
	} else {
		w.Probability = dicemath.FormatProbability(b.Probability)
	}
	return w
}

// ParseBetSpec 从线上格式解析并校验
func ParseBetSpec(w BetSpecWire) (BetSpec, error) {
	stake, err := dicemath.ParseMoney(w.Stake)
	if err != nil {
		return BetSpec{}, fmt.Errorf("%w: %v", ErrInvalidBet, err)
	}
	b := BetSpec{Kind: GameKind(w.Kind), Stake: stake, High: w.Direction}
	switch b.Kind {
	case GameRange:
		if w.Range == nil {
			return BetSpec{}, fmt.Errorf("%w: range bet without range", ErrInvalidBet)
		}
		b.RangeLow, b.RangeHigh = w.Range[0], w.Range[1]
	case GameSingle:
		p, err := dicemath.ParseProbability(w.Probability)
		if err != nil {
			return BetSpec{}, fmt.Errorf("%w: %v", ErrInvalidBet, err)
		}
		b.Probability = p
	}
	if err := b.Validate(decimal.Zero); err != nil {
		return BetSpec{}, err
	}
	return b, nil
}

func (b BetSpec) MarshalJSON() ([]byte, error) { return json.Marshal(b.Wire()) }

func (b *BetSpec) UnmarshalJSON(data []byte) error {
	var w BetSpecWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	parsed, err := ParseBetSpec(w)
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// Wire 转为线上格式
func (r BetResult) Wire() BetResultWire {
	return BetResultWire{
		Won:             r.Won,
		Profit:          dicemath.FormatMoney(r.Profit),
		Balance:         dicemath.FormatMoney(r.Balance),
		ProbabilityUsed: dicemath.FormatProbability(r.Probability),
		Roll:            r.Roll,
	}
}

// ParseBetResult 从线上格式解析。赢的注 profit 不能为负，输的注 profit 不能为正。
func ParseBetResult(w BetResultWire) (BetResult, error) {
	profit, err := dicemath.ParseMoney(w.Profit)
	if err != nil {
		return BetResult{}, fmt.Errorf("profit: %w", err)
	}
	balance, err := dicemath.ParseMoney(w.Balance)
	if err != nil {
		return BetResult{}, fmt.Errorf("balance: %w", err)
	}
	p, err := dicemath.ParseProbability(w.ProbabilityUsed)
	if err != nil {
		return BetResult{}, fmt.Errorf("probability_used: %w", err)
	}
	if w.Won && profit.IsNegative() {
		return BetResult{}, fmt.Errorf("%w: won with negative profit %s", dicemath.ErrInvalidInput, w.Profit)
	}
	if !w.Won && profit.IsPositive() {
		return BetResult{}, fmt.Errorf("%w: lost with positive profit %s", dicemath.ErrInvalidInput, w.Profit)
	}
	return BetResult{Won: w.Won, Profit: profit, Balance: balance, Probability: p, Roll: w.Roll}, nil
}

func (r BetResult) MarshalJSON() ([]byte, error) { return json.Marshal(r.Wire()) }

func (r *BetResult) UnmarshalJSON(data []byte) error {
	var w BetResultWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	parsed, err := ParseBetResult(w)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
