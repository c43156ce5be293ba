// Package adaptive 把分阶段状态机包装成运行器可驱动的策略生命周期。
//
// 约定：
// - 会话开始阶段的错误直接返回（构造期失败）
// - 运行期异常一律转换为“本 tick 不下注”并发出 fault 事件，不会 panic
// - 所有金额都以 decimal 传递，只有 Tick/SessionContext 的余额是字符串
package adaptive

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/shopspring/decimal"
	"github.com/sushiomsky/duckdice-bot-sub000/internal/domain"
	"github.com/sushiomsky/duckdice-bot-sub000/internal/events"
	"github.com/sushiomsky/duckdice-bot-sub000/internal/strategies"
	"github.com/sushiomsky/duckdice-bot-sub000/internal/strategycore/guard"
	"github.com/sushiomsky/duckdice-bot-sub000/internal/strategycore/phase"
	"github.com/sushiomsky/duckdice-bot-sub000/internal/strategycore/window"
	"github.com/sushiomsky/duckdice-bot-sub000/pkg/dicemath"
)

var ErrNotStarted = errors.New("adaptive: session not started")

// Strategy 分阶段策略实例。每个实例独占自己的窗口、周期与阶段状态。
type Strategy struct {
	opts Options

	ctrl  *phase.Controller
	guard *guard.Guard
	rng   *rand.Rand
	emit  events.Emitter

	started     bool
	ended       bool
	outstanding bool
	highNext    bool

	start   decimal.Decimal
	balance decimal.Decimal
	faults  int64
	reason  string
}

// New 校验静态参数并构造策略（会话状态在 OnSessionStart 中建立）。
func New(opts Options) (*Strategy, error) {
	if opts.ID == "" {
		return nil, fmt.Errorf("adaptive: empty strategy id")
	}
	switch opts.Game {
	case domain.GameSingle, domain.GameRange:
	default:
		return nil, fmt.Errorf("adaptive: unknown game kind %q", opts.Game)
	}
	if _, err := dicemath.NewSizer(opts.HouseEdge, opts.HardCap); err != nil {
		return nil, err
	}
	if err := opts.Plan.Validate(); err != nil {
		return nil, err
	}
	opts.Plan.Quantize = dicemath.QuantizeChance
	return &Strategy{opts: opts, emit: events.Nop, highNext: true}, nil
}

var _ strategies.Strategy = (*Strategy)(nil)

func (s *Strategy) ID() string { return s.opts.ID }

// Phase 当前阶段（会话开始前为空）
func (s *Strategy) Phase() phase.Phase {
	if s.ctrl == nil {
		return ""
	}
	return s.ctrl.Phase()
}

func (s *Strategy) OnSessionStart(ctx strategies.SessionContext) error {
	balance, err := dicemath.ParseMoney(ctx.Balance)
	if err != nil {
		return fmt.Errorf("adaptive: starting balance: %w", err)
	}
	if ctx.Rand == nil {
		return fmt.Errorf("adaptive: a seeded random source is required")
	}
	sizer, err := dicemath.NewSizer(s.opts.HouseEdge, s.opts.HardCap)
	if err != nil {
		return err
	}
	g := guard.New(s.opts.Guard)
	if err := g.Start(balance); err != nil {
		return err
	}
	emit := ctx.Emitter
	if emit == nil {
		emit = events.Nop
	}
	ctrl, err := phase.New(s.opts.Plan, phase.Deps{
		Window:   window.New(s.opts.WindowSize, s.opts.MinReady),
		Sizer:    sizer,
		Guard:    g,
		Rand:     ctx.Rand,
		Emitter:  emit,
		MaxStake: ctx.Limits.MaxStake,
	})
	if err != nil {
		return err
	}

	s.ctrl, s.guard, s.rng, s.emit = ctrl, g, ctx.Rand, emit
	s.start, s.balance = balance, balance
	s.started, s.ended, s.outstanding = true, false, false
	s.faults, s.reason = 0, ""
	s.highNext = s.opts.Direction != DirectionLow

	s.emit.Emit(events.Event{
		Kind:    events.KindSession,
		Phase:   string(ctrl.Phase()),
		Message: "session started",
		Fields: map[string]interface{}{
			"strategy": s.opts.ID,
			"session":  ctx.SessionID,
			"balance":  dicemath.FormatMoney(balance),
			"game":     string(s.opts.Game),
		},
	})
	return nil
}

func (s *Strategy) fault(format string, args ...interface{}) {
	s.faults++
	phaseName := ""
	if s.ctrl != nil {
		phaseName = string(s.ctrl.Phase())
	}
	s.emit.Emit(events.Event{
		Kind:    events.KindFault,
		Phase:   phaseName,
		Message: fmt.Sprintf(format, args...),
	})
}

// NextBet 给出下一注；nil 表示本 tick 不下注。
func (s *Strategy) NextBet(tick strategies.Tick) *domain.BetSpec {
	if !s.started || s.ended {
		s.fault("next bet requested outside a session")
		return nil
	}
	if s.outstanding {
		s.fault("next bet requested while a bet is outstanding")
		return nil
	}
	balance, err := dicemath.ParseMoney(tick.Balance)
	if err != nil {
		s.fault("unparseable balance %q: %v", tick.Balance, err)
		return nil
	}
	s.balance = balance

	dec, err := s.ctrl.Next(balance)
	if errors.Is(err, phase.ErrHalted) {
		return nil
	}
	if err != nil {
		s.fault("sizing failed: %v", err)
		return nil
	}

	spec := s.materialize(dec)
	if err := spec.Validate(balance); err != nil {
		s.fault("invalid bet: %v", err)
		return nil
	}
	s.outstanding = true
	return &spec
}

// materialize 把状态机决策转换成具体游戏下注
func (s *Strategy) materialize(dec phase.Decision) domain.BetSpec {
	spec := domain.BetSpec{
		Kind:  s.opts.Game,
		Stake: dec.Stake,
		Phase: string(dec.Phase),
	}
	if s.opts.Game == domain.GameRange {
		low, high := dicemath.PlaceRange(dicemath.RangeWidth(dec.Probability), s.rng)
		spec.RangeLow, spec.RangeHigh = low, high
		spec.High = true
		return spec
	}
	spec.Probability = dec.Probability
	spec.High = s.direction()
	return spec
}

func (s *Strategy) direction() bool {
	switch s.opts.Direction {
	case DirectionLow:
		return false
	case DirectionAlternate:
		h := s.highNext
		s.highNext = !s.highNext
		return h
	case DirectionRandom:
		return s.rng.Intn(2) == 1
	default:
		return true
	}
}

// OnBetResult 记录结算结果。没有未决注时仍然应用（服务端余额为准）。
func (s *Strategy) OnBetResult(res domain.BetResult) {
	if !s.started || s.ended {
		s.fault("bet result delivered outside a session")
		return
	}
	if !s.outstanding {
		s.fault("bet result without an outstanding bet")
	}
	s.outstanding = false
	s.balance = res.Balance
	s.ctrl.Settle(res)

	if n := s.opts.ProgressEvery; n > 0 {
		if st := s.ctrl.Stats(); st.Bets%int64(n) == 0 {
			snap := s.guard.Snapshot()
			s.emit.Emit(events.Event{
				Kind:    events.KindProgress,
				Phase:   string(s.ctrl.Phase()),
				Message: "progress",
				Fields: map[string]interface{}{
					"bets":    st.Bets,
					"wins":    st.Wins,
					"balance": dicemath.FormatMoney(res.Balance),
					"peak":    dicemath.FormatMoney(snap.Peak),
					"cycles":  st.CyclesStarted,
					"hits":    st.CyclesHit,
				},
			})
		}
	}
}

// OnSessionEnd 幂等：只有第一次调用会发出汇总事件。
func (s *Strategy) OnSessionEnd(reason string) {
	if s.ended {
		return
	}
	s.ended = true
	s.reason = reason
	if !s.started {
		return
	}
	sum := s.Summary()
	s.emit.Emit(events.Event{
		Kind:    events.KindSession,
		Phase:   sum.FinalPhase,
		Message: "session ended",
		Fields: map[string]interface{}{
			"reason":  reason,
			"bets":    sum.Bets,
			"wins":    sum.Wins,
			"cycles":  sum.CyclesAttempted,
			"hits":    sum.CyclesHit,
			"aborted": sum.CyclesAborted,
			"profit":  dicemath.FormatMoney(sum.Profit),
			"peak":    dicemath.FormatMoney(sum.Peak),
		},
	})
}

func (s *Strategy) Summary() strategies.Summary {
	sum := strategies.Summary{
		Strategy:     s.opts.ID,
		Faults:       s.faults,
		StartBalance: s.start,
		Balance:      s.balance,
		Peak:         s.start,
		Profit:       s.balance.Sub(s.start),
		EndReason:    s.reason,
	}
	if s.ctrl == nil {
		return sum
	}
	st := s.ctrl.Stats()
	sum.Bets = st.Bets
	sum.Wins = st.Wins
	sum.CyclesAttempted = st.CyclesStarted
	sum.CyclesHit = st.CyclesHit
	sum.CyclesAborted = st.CyclesAborted
	sum.GuardTrips = st.GuardTrips
	sum.FinalPhase = string(s.ctrl.Phase())
	sum.Peak = s.guard.Snapshot().Peak
	sum.Halted = s.guard.Halted()
	return sum
}
