// Package strategies 定义运行器与策略之间的生命周期契约。
package strategies

import (
	"math/rand"

	"github.com/shopspring/decimal"
	"github.com/sushiomsky/duckdice-bot-sub000/internal/domain"
	"github.com/sushiomsky/duckdice-bot-sub000/internal/events"
	"github.com/sushiomsky/duckdice-bot-sub000/pkg/bbgo"
)

// SessionContext 会话开始时由运行器一次性提供，策略只读。
type SessionContext struct {
	SessionID string
	Balance   string // 起始余额（十进制字符串，线上边界格式）
	Limits    domain.SessionLimits
	Rand      *rand.Rand
	Emitter   events.Emitter
}

// Tick 每次请求下一注时运行器提供的只读输入。
type Tick struct {
	Balance string // 当前余额（十进制字符串）
	Bets    int64  // 本会话已结算注数（单调递增）
}

// Strategy 策略生命周期：
//
//	OnSessionStart -> (NextBet -> OnBetResult)* -> OnSessionEnd
//
// NextBet 与 OnBetResult 必须严格交替调用，不可重入，不可并发。
// NextBet 返回 nil 表示本 tick 不下注（不是错误）。
type Strategy interface {
	ID() string
	OnSessionStart(ctx SessionContext) error
	NextBet(tick Tick) *domain.BetSpec
	OnBetResult(res domain.BetResult)
	// OnSessionEnd 只用于最终叙述与汇总；幂等，不会 panic。
	OnSessionEnd(reason string)
	Summary() Summary
}

// Summary 会话汇总，全部来自运行中已跟踪的值。
type Summary struct {
	Strategy        string           `json:"strategy"`
	Bets            int64            `json:"bets"`
	Wins            int64            `json:"wins"`
	CyclesAttempted int64            `json:"cyclesAttempted"`
	CyclesHit       int64            `json:"cyclesHit"`
	CyclesAborted   int64            `json:"cyclesAborted"`
	GuardTrips      map[string]int64 `json:"guardTrips,omitempty"`
	Faults          int64            `json:"faults"`
	FinalPhase      string           `json:"finalPhase"`
	StartBalance    decimal.Decimal  `json:"startBalance"`
	Balance         decimal.Decimal  `json:"balance"`
	Peak            decimal.Decimal  `json:"peak"`
	Profit          decimal.Decimal  `json:"profit"`
	EndReason       string           `json:"endReason,omitempty"`
	Halted          bool             `json:"halted,omitempty"` // 策略已因会话回撤永久停止
}

// Registry 策略注册表（启动时构建一次，见 all.NewRegistry）
type Registry = bbgo.Registry[Strategy]

// Definition 策略定义
type Definition = bbgo.Definition[Strategy]
