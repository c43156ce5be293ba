// Package strike 简化的三阶段变体：Observe -> Attack -> Cooldown。
package strike

import (
	"github.com/shopspring/decimal"
	"github.com/sushiomsky/duckdice-bot-sub000/internal/strategies"
	"github.com/sushiomsky/duckdice-bot-sub000/internal/strategycore/adaptive"
	"github.com/sushiomsky/duckdice-bot-sub000/internal/strategycore/phase"
	"github.com/sushiomsky/duckdice-bot-sub000/pkg/bbgo"
)

const ID = "strike"

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var defaultAttack = adaptive.TierParams{
	Bets: 25, ProbMin: dec("2"), ProbMax: dec("8"), StakeMin: dec("0.002"), StakeMax: dec("0.02"),
	TargetStart: dec("0.1"), TargetEnd: dec("0.2"), FractionStart: dec("0.004"), FractionEnd: dec("0.008"),
	CooldownMin: 30, CooldownMax: 90,
}

func defaultCommon() adaptive.Common {
	c := adaptive.DefaultCommon()
	c.ReferenceProbability = dec("10")
	c.ZThreshold = -2.5
	c.ColdRatio = 2
	c.AbortCooldownMin, c.AbortCooldownMax = 20, 50
	return c
}

func Schema() []bbgo.ParamSpec {
	return append(adaptive.CommonSchema(defaultCommon()), adaptive.TierSchema("attack", defaultAttack)...)
}

func Definition() strategies.Definition {
	return strategies.Definition{
		ID:          ID,
		Description: "three-phase strike: observe, single attack tier, cooldown",
		Schema:      Schema(),
		New:         New,
	}
}

func New(params map[string]interface{}) (strategies.Strategy, error) {
	var common adaptive.Common
	if err := bbgo.Decode(params, &common); err != nil {
		return nil, err
	}
	attack, err := adaptive.DecodeTier(params, "attack")
	if err != nil {
		return nil, err
	}
	s, err := adaptive.New(common.Options(ID, phase.Observe, []phase.Tier{attack.Tier(phase.Attack, false)}))
	if err != nil {
		return nil, err
	}
	return s, nil
}
