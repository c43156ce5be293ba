package phase

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sushiomsky/duckdice-bot-sub000/internal/strategycore/window"
	"github.com/sushiomsky/duckdice-bot-sub000/pkg/dicemath"
)

// Phase 状态机的一个状态。同一时刻只有一个处于激活状态。
type Phase string

const (
	Passive  Phase = "passive"
	Probe    Phase = "probe"
	Load     Phase = "load"
	Snipe    Phase = "snipe"
	Cooldown Phase = "cooldown"

	// 简化变体：Observe -> Attack -> Cooldown
	Observe Phase = "observe"
	Attack  Phase = "attack"
)

// Tier 一个升级阶段的参数。
// 目标利润比例与下注比例在阶段预算内从 From 线性过渡到 To。
type Tier struct {
	Phase Phase
	Bets  int // 阶段预算：这么多注未命中即离开
	Band  dicemath.Band

	TargetFrom   decimal.Decimal
	TargetTo     decimal.Decimal
	FractionFrom decimal.Decimal
	FractionTo   decimal.Decimal

	// RecheckOnExit 预算耗尽进入下一阶段前要求窗口仍然打开，否则放弃周期
	RecheckOnExit bool

	// 在本阶段命中后的冷却区间（注数）。越深的阶段应配置越长。
	CooldownMin int
	CooldownMax int
}

// Plan 一个完整的状态机实例化：空闲阶段 + 有序的升级阶段 + 冷却。
type Plan struct {
	Idle  Phase
	Tiers []Tier

	// 空闲阶段的观察注：参考胜率 + 余额比例（至少一个最小单位）
	IdleProbability   decimal.Decimal
	IdleStakeFraction decimal.Decimal

	// 冷却阶段的填充注：固定胜率 + 固定金额
	FillerProbability decimal.Decimal
	FillerStake       decimal.Decimal

	// 放弃周期（预算耗尽/风控触发/复检失败）后的冷却区间
	AbortCooldownMin int
	AbortCooldownMax int

	Thresholds window.Thresholds

	// Quantize 可选：把胜率对齐到游戏可表达的值（区间骰子）。返回值必须 <= 输入。
	Quantize func(p decimal.Decimal) decimal.Decimal
}

func validProbability(p decimal.Decimal) bool {
	return p.IsPositive() && p.LessThan(dicemath.Hundred)
}

// Validate 校验计划自洽。
func (p Plan) Validate() error {
	if p.Idle == "" || p.Idle == Cooldown {
		return fmt.Errorf("phase: invalid idle phase %q", p.Idle)
	}
	if len(p.Tiers) == 0 {
		return fmt.Errorf("phase: at least one tier is required")
	}
	seen := map[Phase]bool{p.Idle: true, Cooldown: true}
	for i, t := range p.Tiers {
		if t.Phase == "" || seen[t.Phase] {
			return fmt.Errorf("phase: tier %d has duplicate or reserved phase %q", i, t.Phase)
		}
		seen[t.Phase] = true
		if t.Bets < 1 {
			return fmt.Errorf("phase: tier %s bets must be >= 1", t.Phase)
		}
		if err := t.Band.Validate(); err != nil {
			return fmt.Errorf("phase: tier %s: %w", t.Phase, err)
		}
		if !t.TargetFrom.IsPositive() || !t.TargetTo.IsPositive() {
			return fmt.Errorf("phase: tier %s target ratios must be > 0", t.Phase)
		}
		if !t.FractionFrom.IsPositive() || !t.FractionTo.IsPositive() {
			return fmt.Errorf("phase: tier %s stake fractions must be > 0", t.Phase)
		}
		if t.CooldownMin < 1 || t.CooldownMax < t.CooldownMin {
			return fmt.Errorf("phase: tier %s cooldown [%d, %d]", t.Phase, t.CooldownMin, t.CooldownMax)
		}
	}
	if !validProbability(p.IdleProbability) || !validProbability(p.FillerProbability) {
		return fmt.Errorf("phase: idle/filler probability must be inside (0,100)")
	}
	if !p.IdleStakeFraction.IsPositive() || !p.FillerStake.IsPositive() {
		return fmt.Errorf("phase: idle stake fraction and filler stake must be > 0")
	}
	if p.AbortCooldownMin < 1 || p.AbortCooldownMax < p.AbortCooldownMin {
		return fmt.Errorf("phase: abort cooldown [%d, %d]", p.AbortCooldownMin, p.AbortCooldownMax)
	}
	return nil
}

// Phases 计划内所有阶段（空闲、各升级阶段、冷却）
func (p Plan) Phases() []Phase {
	out := []Phase{p.Idle}
	for _, t := range p.Tiers {
		out = append(out, t.Phase)
	}
	return append(out, Cooldown)
}
