package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sushiomsky/duckdice-bot-sub000/pkg/dicemath"
)

// ErrInvalidBet 下注参数违反不变量
var ErrInvalidBet = errors.New("invalid bet")

// GameKind 游戏类型
type GameKind string

const (
	GameSingle GameKind = "single" // 单数字骰子（high/low）
	GameRange  GameKind = "range"  // 区间骰子（inside/outside）
)

// BetSpec 一注的完整描述。
//
// 方向语义：
// - single: High=true 表示押大（roll > 9999-chance×100），false 押小
// - range:  High=true 表示区间内（inside），false 表示区间外
type BetSpec struct {
	Kind        GameKind
	Stake       decimal.Decimal
	Probability decimal.Decimal // single 使用
	RangeLow    int             // range 使用（闭区间）
	RangeHigh   int
	High        bool

	// Phase 产生该注的阶段（仅用于记录/叙述，不上送）
	Phase string
}

// Chance 实际胜率（百分比）。区间外的胜率为 100 - 区间胜率。
func (b BetSpec) Chance() decimal.Decimal {
	if b.Kind == GameRange {
		p := dicemath.RangeProbability(b.RangeHigh - b.RangeLow + 1)
		if !b.High {
			return dicemath.Hundred.Sub(p)
		}
		return p
	}
	return b.Probability
}

// Validate 校验：stake > 0，胜率位于 (0,100)，stake <= balance（balance 为零值时跳过）。
func (b BetSpec) Validate(balance decimal.Decimal) error {
	if !b.Stake.IsPositive() {
		return fmt.Errorf("%w: stake %s must be > 0", ErrInvalidBet, b.Stake)
	}
	switch b.Kind {
	case GameSingle:
	case GameRange:
		if b.RangeLow < 0 || b.RangeHigh >= dicemath.Outcomes || b.RangeLow > b.RangeHigh {
			return fmt.Errorf("%w: range [%d, %d]", ErrInvalidBet, b.RangeLow, b.RangeHigh)
		}
	default:
		return fmt.Errorf("%w: unknown game kind %q", ErrInvalidBet, b.Kind)
	}
	p := b.Chance()
	if !p.IsPositive() || p.GreaterThanOrEqual(dicemath.Hundred) {
		return fmt.Errorf("%w: probability %s outside (0,100)", ErrInvalidBet, p)
	}
	if !balance.IsZero() && b.Stake.GreaterThan(balance) {
		return fmt.Errorf("%w: stake %s exceeds balance %s", ErrInvalidBet, b.Stake, balance)
	}
	return nil
}

// Settle 按赔付公式结算：赢 profit = stake×(multiplier-1)（截断到最小单位），输 profit = -stake。
func (b BetSpec) Settle(won bool, roll float64, balanceBefore, houseEdge decimal.Decimal) (BetResult, error) {
	if err := b.Validate(balanceBefore); err != nil {
		return BetResult{}, err
	}
	p := b.Chance()
	profit := b.Stake.Neg()
	if won {
		gain, err := dicemath.ProfitOnWin(b.Stake, p, houseEdge)
		if err != nil {
			return BetResult{}, err
		}
		profit = dicemath.FloorMoney(gain)
	}
	return BetResult{
		Won:         won,
		Profit:      profit,
		Balance:     balanceBefore.Add(profit),
		Probability: p,
		Roll:        roll,
	}, nil
}

// BetResult 结算结果。Profit 有符号：输时等于 -stake。
type BetResult struct {
	BetID       string // 服务端/模拟器分配的注单号（可为空）
	Won         bool
	Profit      decimal.Decimal
	Balance     decimal.Decimal
	Probability decimal.Decimal
	Roll        float64
}

// SessionLimits 会话级限制，会话开始时提供一次，核心只读。
// 比例为起始余额的分数；零值表示关闭对应限制。
type SessionLimits struct {
	StopLoss      decimal.Decimal
	TakeProfit    decimal.Decimal
	MaxStake      decimal.Decimal
	MaxBets       int64
	MaxLossStreak int
	MaxDuration   time.Duration
}
