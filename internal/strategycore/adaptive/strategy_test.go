package adaptive

import (
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sushiomsky/duckdice-bot-sub000/internal/domain"
	"github.com/sushiomsky/duckdice-bot-sub000/internal/events"
	"github.com/sushiomsky/duckdice-bot-sub000/internal/strategies"
	"github.com/sushiomsky/duckdice-bot-sub000/internal/strategycore/phase"
	"github.com/sushiomsky/duckdice-bot-sub000/pkg/bbgo"
	"github.com/sushiomsky/duckdice-bot-sub000/pkg/dicemath"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testTier() TierParams {
	return TierParams{
		Bets: 5, ProbMin: d("1"), ProbMax: d("5"), StakeMin: d("0.001"), StakeMax: d("0.02"),
		TargetStart: d("0.05"), TargetEnd: d("0.1"), FractionStart: d("0.002"), FractionEnd: d("0.005"),
		CooldownMin: 3, CooldownMax: 5,
	}
}

func testOptions(game domain.GameKind, direction string) Options {
	c := DefaultCommon()
	c.GameKind = string(game)
	c.Direction = direction
	c.ProgressEvery = 0
	return c.Options("test", phase.Observe, []phase.Tier{testTier().Tier(phase.Attack, false)})
}

type recorder struct{ events []events.Event }

func (r *recorder) Emit(e events.Event) { r.events = append(r.events, e) }

func (r *recorder) count(kind events.Kind, message string) int {
	n := 0
	for _, e := range r.events {
		if e.Kind == kind && (message == "" || e.Message == message) {
			n++
		}
	}
	return n
}

func started(t *testing.T, opts Options, limits domain.SessionLimits) (*Strategy, *recorder) {
	t.Helper()
	s, err := New(opts)
	require.NoError(t, err)
	rec := &recorder{}
	require.NoError(t, s.OnSessionStart(strategies.SessionContext{
		SessionID: "test-session",
		Balance:   "1.00000000",
		Limits:    limits,
		Rand:      rand.New(rand.NewSource(42)),
		Emitter:   rec,
	}))
	return s, rec
}

func settle(t *testing.T, s *Strategy, spec *domain.BetSpec, won bool, balance decimal.Decimal) decimal.Decimal {
	t.Helper()
	res, err := spec.Settle(won, 0, balance, decimal.NewFromInt(1))
	require.NoError(t, err)
	s.OnBetResult(res)
	return res.Balance
}

func TestNew_RejectsBadOptions(t *testing.T) {
	opts := testOptions(domain.GameSingle, DirectionHigh)
	opts.Game = "roulette"
	_, err := New(opts)
	assert.Error(t, err)

	opts = testOptions(domain.GameSingle, DirectionHigh)
	opts.Plan.Tiers = nil
	_, err = New(opts)
	assert.Error(t, err)
}

func TestOnSessionStart_Errors(t *testing.T) {
	s, err := New(testOptions(domain.GameSingle, DirectionHigh))
	require.NoError(t, err)
	assert.Error(t, s.OnSessionStart(strategies.SessionContext{Balance: "abc", Rand: rand.New(rand.NewSource(1))}))
	assert.Error(t, s.OnSessionStart(strategies.SessionContext{Balance: "0", Rand: rand.New(rand.NewSource(1))}))
	assert.Error(t, s.OnSessionStart(strategies.SessionContext{Balance: "1"}))
}

func TestNextBet_BeforeStartIsNone(t *testing.T) {
	s, err := New(testOptions(domain.GameSingle, DirectionHigh))
	require.NoError(t, err)
	assert.Nil(t, s.NextBet(strategies.Tick{Balance: "1"}))
	assert.EqualValues(t, 1, s.Summary().Faults)
}

func TestNextBet_OutOfOrder(t *testing.T) {
	s, rec := started(t, testOptions(domain.GameSingle, DirectionHigh), domain.SessionLimits{})

	spec := s.NextBet(strategies.Tick{Balance: "1.00000000"})
	require.NotNil(t, spec)
	assert.Equal(t, string(phase.Observe), spec.Phase)
	assert.True(t, spec.Probability.Equal(d("2")))
	assert.Equal(t, "0.00010000", dicemath.FormatMoney(spec.Stake))

	assert.Nil(t, s.NextBet(strategies.Tick{Balance: "1.00000000"}))
	assert.Equal(t, 1, rec.count(events.KindFault, ""))

	settle(t, s, spec, false, d("1"))
	assert.NotNil(t, s.NextBet(strategies.Tick{Balance: "0.99990000"}))
}

func TestNextBet_UnparseableBalance(t *testing.T) {
	s, rec := started(t, testOptions(domain.GameSingle, DirectionHigh), domain.SessionLimits{})
	assert.Nil(t, s.NextBet(strategies.Tick{Balance: "1,5"}))
	assert.Equal(t, 1, rec.count(events.KindFault, ""))
	assert.NotNil(t, s.NextBet(strategies.Tick{Balance: "1"}))
}

func TestNextBet_MaxStakeCap(t *testing.T) {
	s, _ := started(t, testOptions(domain.GameSingle, DirectionHigh), domain.SessionLimits{MaxStake: d("0.00005")})
	spec := s.NextBet(strategies.Tick{Balance: "1"})
	require.NotNil(t, spec)
	assert.Equal(t, "0.00005000", dicemath.FormatMoney(spec.Stake))
}

func TestNextBet_Directions(t *testing.T) {
	collect := func(direction string) []bool {
		s, _ := started(t, testOptions(domain.GameSingle, direction), domain.SessionLimits{})
		balance := d("1")
		var out []bool
		for i := 0; i < 6; i++ {
			spec := s.NextBet(strategies.Tick{Balance: balance.String()})
			require.NotNil(t, spec)
			out = append(out, spec.High)
			balance = settle(t, s, spec, false, balance)
		}
		return out
	}
	assert.Equal(t, []bool{true, true, true, true, true, true}, collect(DirectionHigh))
	assert.Equal(t, []bool{false, false, false, false, false, false}, collect(DirectionLow))
	assert.Equal(t, []bool{true, false, true, false, true, false}, collect(DirectionAlternate))
}

func TestNextBet_RangeGame(t *testing.T) {
	s, _ := started(t, testOptions(domain.GameRange, DirectionHigh), domain.SessionLimits{})
	spec := s.NextBet(strategies.Tick{Balance: "1"})
	require.NotNil(t, spec)
	assert.Equal(t, domain.GameRange, spec.Kind)
	assert.True(t, spec.High)
	assert.Equal(t, 200, spec.RangeHigh-spec.RangeLow+1)
	assert.GreaterOrEqual(t, spec.RangeLow, 0)
	assert.Less(t, spec.RangeHigh, dicemath.Outcomes)
	assert.True(t, spec.Chance().Equal(d("2")))
}

func TestDrawdown_NoneForever(t *testing.T) {
	s, rec := started(t, testOptions(domain.GameSingle, DirectionHigh), domain.SessionLimits{})
	spec := s.NextBet(strategies.Tick{Balance: "1"})
	require.NotNil(t, spec)
	s.OnBetResult(domain.BetResult{Won: false, Profit: d("-0.3"), Balance: d("0.7"), Probability: d("2")})

	for i := 0; i < 50; i++ {
		assert.Nil(t, s.NextBet(strategies.Tick{Balance: "0.7", Bets: int64(i + 1)}))
	}
	assert.Equal(t, 0, rec.count(events.KindFault, ""))
	assert.Equal(t, 1, rec.count(events.KindGuard, "session_drawdown"))
	assert.EqualValues(t, 1, s.Summary().GuardTrips["session_drawdown"])
	assert.True(t, s.Summary().Halted)
}

func TestOnSessionEnd_Idempotent(t *testing.T) {
	s, rec := started(t, testOptions(domain.GameSingle, DirectionHigh), domain.SessionLimits{})
	balance := d("1")
	for i := 0; i < 10; i++ {
		spec := s.NextBet(strategies.Tick{Balance: balance.String()})
		require.NotNil(t, spec)
		balance = settle(t, s, spec, i == 3, balance)
	}
	s.OnSessionEnd("stop")
	s.OnSessionEnd("again")
	assert.Equal(t, 1, rec.count(events.KindSession, "session ended"))

	sum := s.Summary()
	assert.EqualValues(t, 10, sum.Bets)
	assert.EqualValues(t, 1, sum.Wins)
	assert.Equal(t, "stop", sum.EndReason)
	assert.Equal(t, string(phase.Observe), sum.FinalPhase)
	assert.True(t, sum.Profit.Equal(balance.Sub(d("1"))))
	assert.True(t, sum.Peak.GreaterThanOrEqual(d("1")))

	assert.Nil(t, s.NextBet(strategies.Tick{Balance: balance.String()}))
}

func TestCommonSchema_DefaultsDecodeToDefaults(t *testing.T) {
	schema := append(CommonSchema(DefaultCommon()), TierSchema("probe", testTier())...)
	require.NoError(t, bbgo.ValidateSchema(schema))

	params, anomalies := bbgo.ResolveParams(schema, nil)
	require.Empty(t, anomalies)

	var c Common
	require.NoError(t, bbgo.Decode(params, &c))
	want := DefaultCommon()
	assert.Equal(t, want.GameKind, c.GameKind)
	assert.Equal(t, want.WindowSize, c.WindowSize)
	assert.Equal(t, want.ZThreshold, c.ZThreshold)
	assert.True(t, want.ReferenceProbability.Equal(c.ReferenceProbability))
	assert.True(t, want.FillerStake.Equal(c.FillerStake))
	assert.True(t, want.SessionDrawdown.Equal(c.SessionDrawdown))

	tier, err := DecodeTier(params, "probe")
	require.NoError(t, err)
	assert.Equal(t, 5, tier.Bets)
	assert.True(t, tier.ProbMax.Equal(d("5")))
	assert.Equal(t, 5, tier.CooldownMax)
}

func TestTierParams_NormalizesCrossedBounds(t *testing.T) {
	tp := testTier()
	tp.ProbMin, tp.ProbMax = d("5"), d("1")
	tp.CooldownMin, tp.CooldownMax = 9, 2
	tier := tp.Tier(phase.Probe, true)
	assert.True(t, tier.Band.ProbMin.Equal(d("1")))
	assert.True(t, tier.Band.ProbMax.Equal(d("5")))
	assert.Equal(t, 9, tier.CooldownMax)
	assert.True(t, tier.RecheckOnExit)
}

func TestNextBet_SingleChanceOnOutcomeGrain(t *testing.T) {
	s, _ := started(t, testOptions(domain.GameSingle, DirectionLow), domain.SessionLimits{})
	require.NotNil(t, s.opts.Plan.Quantize)
	assert.True(t, s.opts.Plan.Quantize(d("1.2345")).Equal(d("1.23")))

	balance := d("1")
	for i := 0; i < 400; i++ {
		spec := s.NextBet(strategies.Tick{Balance: balance.String(), Bets: int64(i)})
		if spec == nil {
			break
		}
		scaled := spec.Probability.Mul(dicemath.Hundred)
		require.True(t, scaled.Equal(scaled.Truncate(0)), "bet %d chance %s", i, spec.Probability)
		balance = settle(t, s, spec, false, balance)
	}
}
