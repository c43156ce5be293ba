package flat

import (
	"fmt"
	"math/rand"

	"github.com/shopspring/decimal"
	"github.com/sushiomsky/duckdice-bot-sub000/internal/domain"
	"github.com/sushiomsky/duckdice-bot-sub000/internal/events"
	"github.com/sushiomsky/duckdice-bot-sub000/internal/strategies"
	"github.com/sushiomsky/duckdice-bot-sub000/internal/strategycore/guard"
	"github.com/sushiomsky/duckdice-bot-sub000/pkg/bbgo"
	"github.com/sushiomsky/duckdice-bot-sub000/pkg/dicemath"
)

const phaseName = "flat"

// Strategy 每注固定胜率与余额比例；只受会话回撤保护
type Strategy struct {
	Config

	guard   *guard.Guard
	rng     *rand.Rand
	emit    events.Emitter
	limits  domain.SessionLimits
	started bool
	ended   bool
	pending bool

	start, balance decimal.Decimal
	bets, wins     int64
	faults         int64
	reason         string
}

func Definition() strategies.Definition {
	return strategies.Definition{
		ID:          ID,
		Description: "fixed-probability, fixed-fraction baseline",
		Schema:      Schema(),
		New:         New,
	}
}

func New(params map[string]interface{}) (strategies.Strategy, error) {
	s := &Strategy{emit: events.Nop}
	if err := bbgo.Decode(params, &s.Config); err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	s.Probability = dicemath.QuantizeChance(s.Probability)
	return s, nil
}

func (s *Strategy) ID() string { return ID }

func (s *Strategy) OnSessionStart(ctx strategies.SessionContext) error {
	balance, err := dicemath.ParseMoney(ctx.Balance)
	if err != nil {
		return fmt.Errorf("flat: starting balance: %w", err)
	}
	s.guard = guard.New(guard.Config{SessionDrawdown: s.SessionDrawdown})
	if err := s.guard.Start(balance); err != nil {
		return err
	}
	s.rng = ctx.Rand
	if s.rng == nil {
		return fmt.Errorf("flat: a seeded random source is required")
	}
	s.emit = ctx.Emitter
	if s.emit == nil {
		s.emit = events.Nop
	}
	s.limits = ctx.Limits
	s.start, s.balance = balance, balance
	s.started, s.ended, s.pending = true, false, false
	s.bets, s.wins, s.faults, s.reason = 0, 0, 0, ""
	s.emit.Emit(events.Event{
		Kind: events.KindSession, Phase: phaseName, Message: "session started",
		Fields: map[string]interface{}{"strategy": ID, "session": ctx.SessionID, "balance": dicemath.FormatMoney(balance)},
	})
	return nil
}

func (s *Strategy) fault(format string, args ...interface{}) {
	s.faults++
	s.emit.Emit(events.Event{Kind: events.KindFault, Phase: phaseName, Message: fmt.Sprintf(format, args...)})
}

func (s *Strategy) NextBet(tick strategies.Tick) *domain.BetSpec {
	if !s.started || s.ended || s.pending {
		s.fault("next bet requested out of order")
		return nil
	}
	if s.guard.Halted() {
		return nil
	}
	balance, err := dicemath.ParseMoney(tick.Balance)
	if err != nil {
		s.fault("unparseable balance %q: %v", tick.Balance, err)
		return nil
	}
	s.balance = balance

	stake := dicemath.FloorMoney(s.StakeFraction.Mul(balance))
	if stake.LessThan(dicemath.MinUnit) {
		stake = dicemath.MinUnit
	}
	if s.limits.MaxStake.IsPositive() && stake.GreaterThan(s.limits.MaxStake) {
		stake = dicemath.FloorMoney(s.limits.MaxStake)
	}
	spec := domain.BetSpec{Kind: domain.GameKind(s.GameKind), Stake: stake, High: s.High, Phase: phaseName}
	if spec.Kind == domain.GameRange {
		spec.RangeLow, spec.RangeHigh = dicemath.PlaceRange(dicemath.RangeWidth(s.Probability), s.rng)
	} else {
		spec.Probability = s.Probability
	}
	if err := spec.Validate(balance); err != nil {
		s.fault("invalid bet: %v", err)
		return nil
	}
	s.pending = true
	return &spec
}

func (s *Strategy) OnBetResult(res domain.BetResult) {
	if !s.started || s.ended {
		s.fault("bet result delivered outside a session")
		return
	}
	s.pending = false
	s.balance = res.Balance
	s.bets++
	if res.Won {
		s.wins++
	}
	wasHalted := s.guard.Halted()
	s.guard.Observe(res.Profit, res.Balance)
	if !wasHalted && s.guard.Halted() {
		s.emit.Emit(events.Event{
			Kind: events.KindGuard, Phase: phaseName, Message: guard.TripDrawdown.String(),
			Fields: map[string]interface{}{"balance": dicemath.FormatMoney(res.Balance)},
		})
	}
}

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
		Kind: events.KindSession, Phase: phaseName, Message: "session ended",
		Fields: map[string]interface{}{"reason": reason, "bets": sum.Bets, "profit": dicemath.FormatMoney(sum.Profit)},
	})
}

func (s *Strategy) Summary() strategies.Summary {
	sum := strategies.Summary{
		Strategy:     ID,
		Bets:         s.bets,
		Wins:         s.wins,
		Faults:       s.faults,
		FinalPhase:   phaseName,
		StartBalance: s.start,
		Balance:      s.balance,
		Peak:         s.start,
		Profit:       s.balance.Sub(s.start),
		EndReason:    s.reason,
	}
	if s.guard != nil {
		sum.Peak = s.guard.Snapshot().Peak
		if s.guard.Halted() {
			sum.Halted = true
			sum.GuardTrips = map[string]int64{guard.TripDrawdown.String(): 1}
		}
	}
	return sum
}
