package execution

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sushiomsky/duckdice-bot-sub000/internal/domain"
	"github.com/sushiomsky/duckdice-bot-sub000/internal/events"
	"github.com/sushiomsky/duckdice-bot-sub000/internal/recorder"
	"github.com/sushiomsky/duckdice-bot-sub000/internal/risk"
	"github.com/sushiomsky/duckdice-bot-sub000/internal/simulator"
	"github.com/sushiomsky/duckdice-bot-sub000/internal/strategies"
	"github.com/sushiomsky/duckdice-bot-sub000/internal/strategies/all"
	"github.com/sushiomsky/duckdice-bot-sub000/pkg/bbgo"
	"github.com/sushiomsky/duckdice-bot-sub000/pkg/persistence"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// countingStrategy 统计生命周期调用次数
type countingStrategy struct {
	strategies.Strategy
	starts, ends int
	outstanding  bool
	overlaps     int
}

func (c *countingStrategy) OnSessionStart(ctx strategies.SessionContext) error {
	c.starts++
	return c.Strategy.OnSessionStart(ctx)
}

func (c *countingStrategy) NextBet(t strategies.Tick) *domain.BetSpec {
	if c.outstanding {
		c.overlaps++
	}
	spec := c.Strategy.NextBet(t)
	if spec != nil {
		c.outstanding = true
	}
	return spec
}

func (c *countingStrategy) OnBetResult(res domain.BetResult) {
	c.outstanding = false
	c.Strategy.OnBetResult(res)
}

func (c *countingStrategy) OnSessionEnd(reason string) {
	c.ends++
	c.Strategy.OnSessionEnd(reason)
}

func build(t *testing.T, id string, raw map[string]interface{}) (*countingStrategy, []bbgo.Anomaly) {
	t.Helper()
	r, err := all.NewRegistry()
	require.NoError(t, err)
	s, anomalies, err := r.Build(id, raw)
	require.NoError(t, err)
	return &countingStrategy{Strategy: s}, anomalies
}

func newSim(t *testing.T, balance string) *simulator.Dice {
	t.Helper()
	dice, err := simulator.New(simulator.Options{Seed: 11, Balance: d(balance), HouseEdge: d("1")})
	require.NoError(t, err)
	return dice
}

func TestRun_MaxBetsWithSimulator(t *testing.T) {
	strat, _ := build(t, "flat", map[string]interface{}{"probability": "49.5", "stakeFraction": "0.001"})
	rec, err := recorder.NewSQLiteRecorder(filepath.Join(t.TempDir(), "bets.db"))
	require.NoError(t, err)
	defer rec.Close()
	store := persistence.NewMemoryService()
	dice := newSim(t, "1")

	e, err := NewEngine(Config{
		Strategy:    strat,
		Casino:      dice,
		Limits:      domain.SessionLimits{MaxBets: 50},
		Recorder:    rec,
		Persistence: store,
		Seed:        5,
		DryRun:      true,
	})
	require.NoError(t, err)

	report, err := e.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, risk.StopMaxBets, report.Reason)
	assert.Equal(t, e.SessionID(), report.SessionID)
	assert.Equal(t, int64(50), report.Summary.Bets)
	assert.Equal(t, 1, strat.starts)
	assert.Equal(t, 1, strat.ends)
	assert.Equal(t, 0, strat.overlaps)

	simBal, err := dice.Balance(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Summary.Balance.Equal(simBal))

	bets, wins, err := rec.SessionStats(report.SessionID)
	require.NoError(t, err)
	assert.Equal(t, int64(50), bets)
	assert.Equal(t, report.Summary.Wins, wins)
	reason, err := rec.EndReason(report.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "max_bets", reason)

	var saved strategies.Summary
	require.NoError(t, store.NewStore(StatePrefix, "flat", report.SessionID).Load(&saved))
	assert.Equal(t, int64(50), saved.Bets)
	assert.Equal(t, "max_bets", saved.EndReason)
}

func TestRun_HunterRespectsSessionLimits(t *testing.T) {
	strat, _ := build(t, "hunter", nil)
	e, err := NewEngine(Config{
		Strategy:     strat,
		Casino:       newSim(t, "1"),
		Limits:       domain.SessionLimits{MaxBets: 400, StopLoss: d("0.5"), MaxStake: d("0.05")},
		Seed:         9,
		MaxIdleTicks: 3,
	})
	require.NoError(t, err)

	report, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Contains(t, []risk.StopReason{risk.StopMaxBets, risk.StopLoss, risk.StopStrategy, risk.StopDrawdown}, report.Reason)
	assert.True(t, report.Summary.Bets <= 400)
	assert.Equal(t, 0, strat.overlaps)
	assert.Equal(t, 1, strat.ends)
}

func TestRun_AnomaliesEmittedAsConfigEvents(t *testing.T) {
	strat, anomalies := build(t, "flat", map[string]interface{}{"probability": "150", "bogus": 1})
	require.Len(t, anomalies, 2)

	var mu sync.Mutex
	var got []events.Event
	e, err := NewEngine(Config{
		Strategy:  strat,
		Casino:    newSim(t, "1"),
		Limits:    domain.SessionLimits{MaxBets: 1},
		Anomalies: anomalies,
		Emitter: events.EmitterFunc(func(ev events.Event) {
			mu.Lock()
			got = append(got, ev)
			mu.Unlock()
		}),
	})
	require.NoError(t, err)
	_, err = e.Run(context.Background())
	require.NoError(t, err)

	configs := 0
	for _, ev := range got {
		if ev.Kind == events.KindConfig {
			configs++
		}
	}
	assert.Equal(t, 2, configs)
}

// idleStrategy 从不下注
type idleStrategy struct{ ends []string }

func (s *idleStrategy) ID() string                                     { return "idle" }
func (s *idleStrategy) OnSessionStart(strategies.SessionContext) error { return nil }
func (s *idleStrategy) NextBet(strategies.Tick) *domain.BetSpec        { return nil }
func (s *idleStrategy) OnBetResult(domain.BetResult)                   {}
func (s *idleStrategy) OnSessionEnd(reason string)                     { s.ends = append(s.ends, reason) }
func (s *idleStrategy) Summary() strategies.Summary                    { return strategies.Summary{Strategy: "idle"} }

func TestRun_ConsecutiveNoneEndsSession(t *testing.T) {
	s := &idleStrategy{}
	e, err := NewEngine(Config{
		Strategy:     s,
		Casino:       newSim(t, "1"),
		IdleInterval: time.Millisecond,
		MaxIdleTicks: 3,
	})
	require.NoError(t, err)
	report, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, risk.StopStrategy, report.Reason)
	assert.Equal(t, []string{"strategy_halted"}, s.ends)
}

// haltedStrategy 已因回撤停止，不再下注
type haltedStrategy struct{ idleStrategy }

func (s *haltedStrategy) Summary() strategies.Summary {
	return strategies.Summary{Strategy: "halted", Halted: true}
}

func TestRun_HaltedStrategyEndsImmediately(t *testing.T) {
	s := &haltedStrategy{}
	e, err := NewEngine(Config{
		Strategy:     s,
		Casino:       newSim(t, "1"),
		IdleInterval: time.Hour,
		MaxIdleTicks: 1000,
	})
	require.NoError(t, err)
	report, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, risk.StopDrawdown, report.Reason)
	assert.Equal(t, []string{"session_drawdown"}, s.ends)
	assert.True(t, report.Summary.Halted)
}

func TestRun_CancelledContext(t *testing.T) {
	s := &idleStrategy{}
	ctx, cancel := context.WithCancel(context.Background())
	e, err := NewEngine(Config{Strategy: s, Casino: newSim(t, "1"), IdleInterval: time.Hour})
	require.NoError(t, err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	report, err := e.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, risk.StopCancelled, report.Reason)
	assert.Equal(t, []string{"cancelled"}, s.ends)
}

// flakyCasino 前 failures 次下注失败
type flakyCasino struct {
	*simulator.Dice
	failures int
	calls    int
	err      error
	onCall   func(n int)
}

func (f *flakyCasino) PlaceBet(ctx context.Context, spec domain.BetSpec) (domain.BetResult, error) {
	f.calls++
	if f.onCall != nil {
		f.onCall(f.calls)
	}
	if f.calls <= f.failures {
		return domain.BetResult{}, f.err
	}
	return f.Dice.PlaceBet(ctx, spec)
}

var errTransport = errors.New("connection reset")

func TestRun_TransportErrorsRetriedThenStop(t *testing.T) {
	strat, _ := build(t, "flat", nil)
	casino := &flakyCasino{Dice: newSim(t, "1"), failures: 2, err: errTransport}
	e, err := NewEngine(Config{
		Strategy:             strat,
		Casino:               casino,
		Limits:               domain.SessionLimits{MaxBets: 3},
		MaxConsecutiveErrors: 5,
		IdleInterval:         time.Millisecond,
	})
	require.NoError(t, err)
	report, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, risk.StopMaxBets, report.Reason)
	assert.Equal(t, 5, casino.calls)
	assert.Equal(t, 0, strat.overlaps)

	strat2, _ := build(t, "flat", nil)
	casino2 := &flakyCasino{Dice: newSim(t, "1"), failures: 100, err: errTransport}
	e2, err := NewEngine(Config{
		Strategy:             strat2,
		Casino:               casino2,
		MaxConsecutiveErrors: 3,
		IdleInterval:         time.Millisecond,
	})
	require.NoError(t, err)
	report, err = e2.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, risk.StopErrors, report.Reason)
	assert.Equal(t, 3, casino2.calls)
	assert.Equal(t, 1, strat2.ends)
}

func TestRun_NonRetryableErrorStops(t *testing.T) {
	strat, _ := build(t, "flat", nil)
	casino := &flakyCasino{Dice: newSim(t, "1"), failures: 100, err: errTransport}
	e, err := NewEngine(Config{
		Strategy:  strat,
		Casino:    casino,
		Retryable: func(error) bool { return false },
	})
	require.NoError(t, err)
	report, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, risk.StopErrors, report.Reason)
	assert.Equal(t, 1, casino.calls)
}

func TestRun_ManualStop(t *testing.T) {
	strat, _ := build(t, "flat", nil)
	casino := &flakyCasino{Dice: newSim(t, "1")}
	e, err := NewEngine(Config{Strategy: strat, Casino: casino})
	require.NoError(t, err)
	casino.onCall = func(n int) {
		if n == 4 {
			e.Stop()
		}
	}
	report, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, risk.StopManual, report.Reason)
	assert.Equal(t, int64(4), report.Summary.Bets)
}

// failingStart 拒绝启动
type failingStart struct{ idleStrategy }

func (f *failingStart) OnSessionStart(strategies.SessionContext) error {
	return errors.New("no rng")
}

func TestRun_StartFailure(t *testing.T) {
	s := &failingStart{}
	e, err := NewEngine(Config{Strategy: s, Casino: newSim(t, "1")})
	require.NoError(t, err)
	_, err = e.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, []string{"start_failed"}, s.ends)

	_, err = e.Run(context.Background())
	assert.Error(t, err)
}

func TestNewEngine_RequiresDeps(t *testing.T) {
	_, err := NewEngine(Config{Casino: newSim(t, "1")})
	assert.Error(t, err)
	_, err = NewEngine(Config{Strategy: &idleStrategy{}})
	assert.Error(t, err)
}

func TestRun_BetIntervalPacesBets(t *testing.T) {
	strat, _ := build(t, "flat", nil)
	e, err := NewEngine(Config{
		Strategy:    strat,
		Casino:      newSim(t, "1"),
		Limits:      domain.SessionLimits{MaxBets: 5},
		BetInterval: 10 * time.Millisecond,
	})
	require.NoError(t, err)
	start := time.Now()
	report, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(5), report.Summary.Bets)
	assert.GreaterOrEqual(t, time.Since(start), 35*time.Millisecond)
}
