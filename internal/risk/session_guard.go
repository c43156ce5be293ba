// Package risk 会话级限制：止损、止盈、最大注数、最大连败、最长时长与连续传输错误。
package risk

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sushiomsky/duckdice-bot-sub000/internal/domain"
)

// ErrSessionStopped 会话已停止，禁止继续下注。
var ErrSessionStopped = errors.New("session stopped")

// StopReason 会话停止原因
type StopReason string

const (
	StopNone       StopReason = ""
	StopLoss       StopReason = "stop_loss"
	StopTakeProfit StopReason = "take_profit"
	StopMaxBets    StopReason = "max_bets"
	StopLossStreak StopReason = "max_loss_streak"
	StopDuration   StopReason = "max_duration"
	StopErrors     StopReason = "transport_errors"
	StopStrategy   StopReason = "strategy_halted"
	StopDrawdown   StopReason = "session_drawdown"
	StopManual     StopReason = "manual"
	StopCancelled  StopReason = "cancelled"
)

// SessionGuard 运行器侧的会话限制。
//
// 说明：
// - halted/reason 用原子变量，允许信号处理等其它 goroutine 调用 Halt
// - 下注统计只由运行循环更新（mu 保护，保持简单）
// - 阈值 <= 0 表示关闭对应限制
type SessionGuard struct {
	limits               domain.SessionLimits
	maxConsecutiveErrors int64

	halted            atomic.Bool
	reason            atomic.Value // StopReason
	consecutiveErrors atomic.Int64

	mu         sync.Mutex
	start      decimal.Decimal
	startedAt  time.Time
	bets       int64
	lossStreak int
}

func NewSessionGuard(limits domain.SessionLimits, maxConsecutiveErrors int64) *SessionGuard {
	g := &SessionGuard{limits: limits, maxConsecutiveErrors: maxConsecutiveErrors}
	g.reason.Store(StopNone)
	return g
}

// Start 记录起始余额与开始时间
func (g *SessionGuard) Start(balance decimal.Decimal, now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.start = balance
	g.startedAt = now
	g.bets = 0
	g.lossStreak = 0
	g.consecutiveErrors.Store(0)
	g.halted.Store(false)
	g.reason.Store(StopNone)
}

// Halt 停止会话；只记录第一次的原因。
func (g *SessionGuard) Halt(reason StopReason) {
	if g.halted.CompareAndSwap(false, true) {
		g.reason.Store(reason)
	}
}

func (g *SessionGuard) Halted() bool { return g.halted.Load() }

func (g *SessionGuard) Reason() StopReason {
	r, _ := g.reason.Load().(StopReason)
	return r
}

// Allow 下注前检查（含时长限制）。
func (g *SessionGuard) Allow(now time.Time) error {
	if g.halted.Load() {
		return ErrSessionStopped
	}
	if d := g.limits.MaxDuration; d > 0 {
		g.mu.Lock()
		elapsed := now.Sub(g.startedAt)
		g.mu.Unlock()
		if elapsed >= d {
			g.Halt(StopDuration)
			return ErrSessionStopped
		}
	}
	if limit := g.maxConsecutiveErrors; limit > 0 && g.consecutiveErrors.Load() >= limit {
		g.Halt(StopErrors)
		return ErrSessionStopped
	}
	return nil
}

// CheckStake 单注上限复核
func (g *SessionGuard) CheckStake(stake decimal.Decimal) bool {
	return !g.limits.MaxStake.IsPositive() || stake.LessThanOrEqual(g.limits.MaxStake)
}

// Observe 记录结算结果，返回触发的停止原因（未触发为 StopNone）。
func (g *SessionGuard) Observe(res domain.BetResult) StopReason {
	g.consecutiveErrors.Store(0)

	g.mu.Lock()
	g.bets++
	if res.Won {
		g.lossStreak = 0
	} else {
		g.lossStreak++
	}
	reason := g.evaluate(res.Balance)
	g.mu.Unlock()

	if reason != StopNone {
		g.Halt(reason)
	}
	return reason
}

func (g *SessionGuard) evaluate(balance decimal.Decimal) StopReason {
	if g.start.IsPositive() {
		change := balance.Sub(g.start).DivRound(g.start, 16)
		if sl := g.limits.StopLoss; sl.IsPositive() && change.Neg().GreaterThanOrEqual(sl) {
			return StopLoss
		}
		if tp := g.limits.TakeProfit; tp.IsPositive() && change.GreaterThanOrEqual(tp) {
			return StopTakeProfit
		}
	}
	if limit := g.limits.MaxBets; limit > 0 && g.bets >= limit {
		return StopMaxBets
	}
	if limit := g.limits.MaxLossStreak; limit > 0 && g.lossStreak >= limit {
		return StopLossStreak
	}
	return StopNone
}

// OnError 一次下注请求失败（传输/服务端错误）
func (g *SessionGuard) OnError() {
	g.consecutiveErrors.Add(1)
}

// Bets 已结算注数
func (g *SessionGuard) Bets() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.bets
}
