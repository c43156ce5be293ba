// Package phase 多阶段升级状态机：空闲观察 -> 逐级升级 -> 冷却。
package phase

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/shopspring/decimal"
	"github.com/sushiomsky/duckdice-bot-sub000/internal/domain"
	"github.com/sushiomsky/duckdice-bot-sub000/internal/events"
	"github.com/sushiomsky/duckdice-bot-sub000/internal/strategycore/guard"
	"github.com/sushiomsky/duckdice-bot-sub000/internal/strategycore/window"
	"github.com/sushiomsky/duckdice-bot-sub000/pkg/dicemath"
)

// ErrHalted 会话已因回撤永久停止，不再产生任何下注。
var ErrHalted = errors.New("phase: session halted")

// Decision 状态机给出的一注（尚未转换成游戏下注）。
type Decision struct {
	Phase       Phase
	Probability decimal.Decimal
	Stake       decimal.Decimal
	Target      decimal.Decimal // 升级阶段的目标利润比例；空闲/冷却为 0
	Sizing      dicemath.Sizing
	CycleCapped bool
	MaxCapped   bool
}

// Stats 累计统计
type Stats struct {
	Bets          int64
	Wins          int64
	CyclesStarted int64
	CyclesHit     int64
	CyclesAborted int64
	GuardTrips    map[string]int64
	PhaseBets     map[Phase]int64
}

// Deps 状态机依赖（由策略实例构造并注入）
type Deps struct {
	Window   *window.Window
	Sizer    *dicemath.Sizer
	Guard    *guard.Guard
	Rand     *rand.Rand
	Emitter  events.Emitter
	MaxStake decimal.Decimal // 会话单注上限；<= 0 表示不限制
}

// Controller 状态机实例。非并发安全：调用方保证 Next/Settle 串行。
type Controller struct {
	plan Plan
	deps Deps

	phase        Phase
	tier         int // 当前升级阶段下标；空闲/冷却时为 -1
	phaseBets    int
	cooldownLeft int

	stats Stats
}

func New(plan Plan, deps Deps) (*Controller, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	if deps.Window == nil || deps.Sizer == nil || deps.Guard == nil || deps.Rand == nil {
		return nil, fmt.Errorf("phase: window, sizer, guard and rand are required")
	}
	if deps.Emitter == nil {
		deps.Emitter = events.Nop
	}
	return &Controller{
		plan:  plan,
		deps:  deps,
		phase: plan.Idle,
		tier:  -1,
		stats: Stats{
			GuardTrips: map[string]int64{},
			PhaseBets:  map[Phase]int64{},
		},
	}, nil
}

func (c *Controller) Phase() Phase { return c.phase }

// CooldownLeft 冷却剩余注数（非冷却阶段为 0）
func (c *Controller) CooldownLeft() int {
	if c.phase != Cooldown {
		return 0
	}
	return c.cooldownLeft
}

// PhaseBets 当前阶段已结算的注数
func (c *Controller) PhaseBets() int { return c.phaseBets }

func (c *Controller) Stats() Stats {
	out := c.stats
	out.GuardTrips = make(map[string]int64, len(c.stats.GuardTrips))
	for k, v := range c.stats.GuardTrips {
		out.GuardTrips[k] = v
	}
	out.PhaseBets = make(map[Phase]int64, len(c.stats.PhaseBets))
	for k, v := range c.stats.PhaseBets {
		out.PhaseBets[k] = v
	}
	return out
}

// Next 根据当前阶段给出下一注。
// 返回 ErrHalted 表示会话已停止；其它错误表示本 tick 无法下注。
func (c *Controller) Next(balance decimal.Decimal) (Decision, error) {
	if c.deps.Guard.Halted() {
		return Decision{}, ErrHalted
	}
	if !balance.IsPositive() {
		return Decision{}, fmt.Errorf("%w: balance %s", dicemath.ErrInvalidInput, balance)
	}

	if c.tier >= 0 {
		if trip := c.deps.Guard.Check(); trip != guard.TripNone {
			c.abort(trip.String(), trip)
			if trip == guard.TripDrawdown {
				return Decision{}, ErrHalted
			}
		}
	}

	switch {
	case c.phase == Cooldown:
		return c.filler(balance)
	case c.tier >= 0:
		return c.escalate(balance)
	default:
		if c.deps.Guard.CheckSession() != guard.TripNone {
			return Decision{}, ErrHalted
		}
		return c.observe(balance)
	}
}

func (c *Controller) quantize(p decimal.Decimal) decimal.Decimal {
	if c.plan.Quantize == nil {
		return p
	}
	return c.plan.Quantize(p)
}

func (c *Controller) observe(balance decimal.Decimal) (Decision, error) {
	stake := dicemath.FloorMoney(c.plan.IdleStakeFraction.Mul(balance))
	if stake.LessThan(dicemath.MinUnit) {
		stake = dicemath.MinUnit
	}
	return c.finish(Decision{
		Phase:       c.phase,
		Probability: c.quantize(c.plan.IdleProbability),
		Stake:       stake,
	}, balance)
}

func (c *Controller) filler(balance decimal.Decimal) (Decision, error) {
	return c.finish(Decision{
		Phase:       Cooldown,
		Probability: c.quantize(c.plan.FillerProbability),
		Stake:       c.plan.FillerStake,
	}, balance)
}

func (c *Controller) escalate(balance decimal.Decimal) (Decision, error) {
	t := c.plan.Tiers[c.tier]
	target := dicemath.Lerp(t.TargetFrom, t.TargetTo, c.phaseBets, t.Bets)
	fraction := dicemath.Lerp(t.FractionFrom, t.FractionTo, c.phaseBets, t.Bets)

	sz, err := c.deps.Sizer.Size(balance, target, fraction, t.Band)
	if err == nil {
		if q := c.quantize(sz.Probability); !q.Equal(sz.Probability) {
			band := t.Band
			if q.LessThan(band.ProbMin) {
				band.ProbMin = q
			}
			sz, err = c.deps.Sizer.SizeAt(balance, target, q, band)
		}
	}
	if errors.Is(err, dicemath.ErrStakeBelowUnit) {
		return c.belowUnit(balance)
	}
	if err != nil {
		return Decision{}, err
	}

	d := Decision{
		Phase:       t.Phase,
		Probability: sz.Probability,
		Stake:       sz.Stake,
		Target:      target,
		Sizing:      sz,
	}
	if rem, ok := c.deps.Guard.CycleRemaining(); ok && d.Stake.GreaterThan(rem) {
		d.Stake = dicemath.FloorMoney(rem)
		d.CycleCapped = true
	}
	out, err := c.finish(d, balance)
	if errors.Is(err, dicemath.ErrStakeBelowUnit) {
		return c.belowUnit(balance)
	}
	return out, err
}

// belowUnit 余额已不足以按阶段参数下注：放弃周期，本 tick 改下冷却填充注。
func (c *Controller) belowUnit(balance decimal.Decimal) (Decision, error) {
	c.abort("stake_below_unit", guard.TripNone)
	return c.filler(balance)
}

// finish 应用会话单注上限与余额上限，并检查最小单位。
func (c *Controller) finish(d Decision, balance decimal.Decimal) (Decision, error) {
	if c.deps.MaxStake.IsPositive() && d.Stake.GreaterThan(c.deps.MaxStake) {
		d.Stake = dicemath.FloorMoney(c.deps.MaxStake)
		d.MaxCapped = true
	}
	if d.Stake.GreaterThan(balance) {
		d.Stake = dicemath.FloorMoney(balance)
	}
	if d.Stake.LessThan(dicemath.MinUnit) {
		return Decision{}, fmt.Errorf("%w: phase=%s balance=%s", dicemath.ErrStakeBelowUnit, d.Phase, balance)
	}
	return d, nil
}

// Settle 记录一注结果并推进状态机。
func (c *Controller) Settle(res domain.BetResult) {
	prob, _ := res.Probability.Float64()
	c.deps.Window.Push(prob, res.Won)
	wasHalted := c.deps.Guard.Halted()
	c.deps.Guard.Observe(res.Profit, res.Balance)
	if !wasHalted && c.deps.Guard.Halted() {
		c.tripped(guard.TripDrawdown)
	}

	c.stats.Bets++
	c.stats.PhaseBets[c.phase]++
	if res.Won {
		c.stats.Wins++
	}

	switch {
	case c.phase == Cooldown:
		c.cooldownLeft--
		if c.cooldownLeft <= 0 {
			c.transition(c.plan.Idle, nil)
		}
	case c.tier >= 0:
		c.phaseBets++
		c.settleTier(res)
	default:
		if c.deps.Guard.Halted() {
			return
		}
		sig := c.deps.Window.Evaluate(c.plan.Thresholds)
		if sig.Open() {
			c.beginCycle(sig, res.Balance)
		}
	}
}

func (c *Controller) settleTier(res domain.BetResult) {
	t := c.plan.Tiers[c.tier]
	if res.Won {
		c.stats.CyclesHit++
		c.deps.Guard.EndCycle()
		c.deps.Emitter.Emit(events.Event{
			Kind:    events.KindCycle,
			Phase:   string(t.Phase),
			Message: "cycle hit",
			Fields: map[string]interface{}{
				"profit":  dicemath.FormatMoney(res.Profit),
				"balance": dicemath.FormatMoney(res.Balance),
				"bets":    c.phaseBets,
			},
		})
		c.enterCooldown(t.CooldownMin, t.CooldownMax)
		return
	}
	if trip := c.deps.Guard.Check(); trip != guard.TripNone {
		c.abort(trip.String(), trip)
		return
	}
	if c.phaseBets < t.Bets {
		return
	}
	if c.tier == len(c.plan.Tiers)-1 {
		c.abort("budget exhausted", guard.TripNone)
		return
	}
	if t.RecheckOnExit {
		if sig := c.deps.Window.Evaluate(c.plan.Thresholds); !sig.Open() {
			c.abort("window closed", guard.TripNone)
			return
		}
	}
	c.tier++
	c.transition(c.plan.Tiers[c.tier].Phase, nil)
}

func (c *Controller) beginCycle(sig window.Signals, balance decimal.Decimal) {
	c.deps.Guard.BeginCycle()
	c.stats.CyclesStarted++
	c.tier = 0
	fields := map[string]interface{}{
		"z":       fmt.Sprintf("%.3f", sig.ZScore),
		"cold":    fmt.Sprintf("%.3f", sig.ColdRatio),
		"balance": dicemath.FormatMoney(balance),
	}
	c.deps.Emitter.Emit(events.Event{
		Kind:    events.KindCycle,
		Phase:   string(c.plan.Tiers[0].Phase),
		Message: "cycle started",
		Fields:  fields,
	})
	c.transition(c.plan.Tiers[0].Phase, fields)
}

// abort 放弃当前周期并进入冷却。trip 为 TripNone 表示非风控原因；
// 回撤触发已在 Settle 中记录，这里不重复计数。
func (c *Controller) abort(reason string, trip guard.Trip) {
	from := c.phase
	if trip != guard.TripNone && trip != guard.TripDrawdown {
		c.tripped(trip)
	}
	c.stats.CyclesAborted++
	c.deps.Guard.EndCycle()
	c.deps.Emitter.Emit(events.Event{
		Kind:    events.KindCycle,
		Phase:   string(from),
		Message: "cycle aborted",
		Fields:  map[string]interface{}{"reason": reason, "bets": c.phaseBets},
	})
	c.enterCooldown(c.plan.AbortCooldownMin, c.plan.AbortCooldownMax)
}

func (c *Controller) tripped(trip guard.Trip) {
	c.stats.GuardTrips[trip.String()]++
	snap := c.deps.Guard.Snapshot()
	c.deps.Emitter.Emit(events.Event{
		Kind:    events.KindGuard,
		Phase:   string(c.phase),
		Message: trip.String(),
		Fields: map[string]interface{}{
			"peak":       dicemath.FormatMoney(snap.Peak),
			"balance":    dicemath.FormatMoney(snap.Balance),
			"cycle_loss": dicemath.FormatMoney(snap.CycleLoss),
			"cycle_bets": snap.CycleBets,
		},
	})
}

func (c *Controller) enterCooldown(lo, hi int) {
	n := lo
	if hi > lo {
		n += c.deps.Rand.Intn(hi - lo + 1)
	}
	c.tier = -1
	c.cooldownLeft = n
	c.transition(Cooldown, map[string]interface{}{"bets": n})
}

// transition 切换阶段并重置阶段内计数。不允许切换到自身。
func (c *Controller) transition(to Phase, fields map[string]interface{}) {
	if to == c.phase {
		return
	}
	from := c.phase
	c.phase = to
	c.phaseBets = 0
	out := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	out["from"] = string(from)
	c.deps.Emitter.Emit(events.Event{
		Kind:    events.KindTransition,
		Phase:   string(to),
		Message: fmt.Sprintf("%s -> %s", from, to),
		Fields:  out,
	})
}
