// Package guard 限制单个狩猎周期与整个会话可能造成的损失。
package guard

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sushiomsky/duckdice-bot-sub000/pkg/dicemath"
)

// Trip 风控触发类型。触发不是错误，而是预期内的提前退出。
type Trip int

const (
	TripNone      Trip = iota
	TripCycleLoss      // 周期累计亏损达到上限
	TripCycleBets      // 周期下注数达到上限
	TripDrawdown       // 会话从峰值回撤达到上限（永久停止）
)

func (t Trip) String() string {
	switch t {
	case TripCycleLoss:
		return "cycle_loss_cap"
	case TripCycleBets:
		return "cycle_bet_cap"
	case TripDrawdown:
		return "session_drawdown"
	default:
		return "none"
	}
}

// Config 风控配置。
// 约定：比例为分数（0.05 = 5%）；值 <= 0 表示关闭对应限制。
type Config struct {
	CycleLossFraction decimal.Decimal // 默认 0.05
	CycleMaxBets      int             // 默认 300
	SessionDrawdown   decimal.Decimal // 默认 0.25
}

func DefaultConfig() Config {
	return Config{
		CycleLossFraction: decimal.RequireFromString("0.05"),
		CycleMaxBets:      300,
		SessionDrawdown:   decimal.RequireFromString("0.25"),
	}
}

// Snapshot 当前风控状态（只读副本）
type Snapshot struct {
	Peak              decimal.Decimal
	Balance           decimal.Decimal
	Drawdown          decimal.Decimal
	Halted            bool
	CycleActive       bool
	CycleStartBalance decimal.Decimal
	CycleLoss         decimal.Decimal
	CycleBets         int
}

// Guard 周期 + 会话风控。
//
// 说明：
// - 周期亏损只累计负收益的绝对值，周期内单调不减，直到周期重置
// - 会话回撤一旦触发即永久停止，不会因余额回升而恢复
// - 非并发安全：由所属策略实例串行访问
type Guard struct {
	cfg Config

	peak    decimal.Decimal
	balance decimal.Decimal
	halted  bool

	cycleActive bool
	cycleStart  decimal.Decimal
	cycleLoss   decimal.Decimal
	cycleBets   int
}

func New(cfg Config) *Guard {
	return &Guard{cfg: cfg}
}

// Start 会话开始：峰值与当前余额都设为起始余额。
func (g *Guard) Start(balance decimal.Decimal) error {
	if !balance.IsPositive() {
		return fmt.Errorf("guard: starting balance %s must be > 0", balance)
	}
	g.peak = balance
	g.balance = balance
	g.halted = false
	g.EndCycle()
	return nil
}

// BeginCycle 记录周期起始余额并清零周期统计。
func (g *Guard) BeginCycle() {
	g.cycleActive = true
	g.cycleStart = g.balance
	g.cycleLoss = decimal.Zero
	g.cycleBets = 0
}

// EndCycle 销毁当前周期（命中或放弃）。
func (g *Guard) EndCycle() {
	g.cycleActive = false
	g.cycleStart = decimal.Zero
	g.cycleLoss = decimal.Zero
	g.cycleBets = 0
}

// Observe 记录一注的结算：更新峰值、周期亏损与周期下注数，并检查会话回撤。
func (g *Guard) Observe(profit, balanceAfter decimal.Decimal) {
	g.balance = balanceAfter
	if balanceAfter.GreaterThan(g.peak) {
		g.peak = balanceAfter
	}
	if g.cycleActive {
		g.cycleBets++
		if profit.IsNegative() {
			g.cycleLoss = g.cycleLoss.Add(profit.Abs())
		}
	}
	if !g.halted && g.drawdownReached() {
		g.halted = true
	}
}

func (g *Guard) drawdownReached() bool {
	if !g.cfg.SessionDrawdown.IsPositive() || !g.peak.IsPositive() {
		return false
	}
	return g.Drawdown().GreaterThanOrEqual(g.cfg.SessionDrawdown)
}

// Drawdown (peak - balance) / peak
func (g *Guard) Drawdown() decimal.Decimal {
	if !g.peak.IsPositive() {
		return decimal.Zero
	}
	return g.peak.Sub(g.balance).DivRound(g.peak, 16)
}

// Halted 会话已因回撤永久停止
func (g *Guard) Halted() bool { return g.halted }

// CheckSession 只检查会话级回撤（非周期阶段使用）
func (g *Guard) CheckSession() Trip {
	if g.halted {
		return TripDrawdown
	}
	return TripNone
}

// Check 检查会话回撤与当前周期的亏损/下注上限。
func (g *Guard) Check() Trip {
	if g.halted {
		return TripDrawdown
	}
	if !g.cycleActive {
		return TripNone
	}
	if g.cfg.CycleLossFraction.IsPositive() && g.cycleLoss.GreaterThanOrEqual(g.cycleLimit()) {
		return TripCycleLoss
	}
	if g.cfg.CycleMaxBets > 0 && g.cycleBets >= g.cfg.CycleMaxBets {
		return TripCycleBets
	}
	return TripNone
}

// cycleLimit 周期亏损上限，截断到最小单位，保证被上限截断的一注恰好触发。
func (g *Guard) cycleLimit() decimal.Decimal {
	return dicemath.FloorMoney(g.cycleStart.Mul(g.cfg.CycleLossFraction))
}

// CycleRemaining 本周期剩余可亏损额度（未启用或无周期时返回 false）。
func (g *Guard) CycleRemaining() (decimal.Decimal, bool) {
	if !g.cycleActive || !g.cfg.CycleLossFraction.IsPositive() {
		return decimal.Zero, false
	}
	rem := g.cycleLimit().Sub(g.cycleLoss)
	if rem.IsNegative() {
		rem = decimal.Zero
	}
	return rem, true
}

func (g *Guard) Snapshot() Snapshot {
	return Snapshot{
		Peak:              g.peak,
		Balance:           g.balance,
		Drawdown:          g.Drawdown(),
		Halted:            g.halted,
		CycleActive:       g.cycleActive,
		CycleStartBalance: g.cycleStart,
		CycleLoss:         g.cycleLoss,
		CycleBets:         g.cycleBets,
	}
}
