// Package hunter 五阶段狩猎策略：Passive -> Probe -> Load -> Snipe -> Cooldown。
//
// Passive 以参考胜率下小额观察注填充窗口；窗口打开后逐级降低胜率、提高目标利润。
// Probe 预算耗尽时需复检窗口；Load 预算耗尽无条件进入 Snipe。
package hunter

import (
	"github.com/shopspring/decimal"
	"github.com/sushiomsky/duckdice-bot-sub000/internal/strategies"
	"github.com/sushiomsky/duckdice-bot-sub000/internal/strategycore/adaptive"
	"github.com/sushiomsky/duckdice-bot-sub000/internal/strategycore/phase"
	"github.com/sushiomsky/duckdice-bot-sub000/pkg/bbgo"
)

const ID = "hunter"

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// 默认阶段参数：越深的阶段胜率越低、目标越高、冷却越长
var (
	defaultProbe = adaptive.TierParams{
		Bets: 20, ProbMin: dec("1"), ProbMax: dec("5"), StakeMin: dec("0.001"), StakeMax: dec("0.01"),
		TargetStart: dec("0.05"), TargetEnd: dec("0.1"), FractionStart: dec("0.002"), FractionEnd: dec("0.004"),
		CooldownMin: 20, CooldownMax: 40,
	}
	defaultLoad = adaptive.TierParams{
		Bets: 30, ProbMin: dec("0.5"), ProbMax: dec("2"), StakeMin: dec("0.001"), StakeMax: dec("0.015"),
		TargetStart: dec("0.1"), TargetEnd: dec("0.25"), FractionStart: dec("0.003"), FractionEnd: dec("0.006"),
		CooldownMin: 40, CooldownMax: 80,
	}
	defaultSnipe = adaptive.TierParams{
		Bets: 40, ProbMin: dec("0.1"), ProbMax: dec("0.5"), StakeMin: dec("0.002"), StakeMax: dec("0.02"),
		TargetStart: dec("0.25"), TargetEnd: dec("0.5"), FractionStart: dec("0.005"), FractionEnd: dec("0.01"),
		CooldownMin: 80, CooldownMax: 160,
	}
)

// Schema 参数模式：共用参数 + probe/load/snipe 三组阶段参数
func Schema() []bbgo.ParamSpec {
	schema := adaptive.CommonSchema(adaptive.DefaultCommon())
	schema = append(schema, adaptive.TierSchema("probe", defaultProbe)...)
	schema = append(schema, adaptive.TierSchema("load", defaultLoad)...)
	return append(schema, adaptive.TierSchema("snipe", defaultSnipe)...)
}

func Definition() strategies.Definition {
	return strategies.Definition{
		ID:          ID,
		Description: "five-phase hunter: passive observation, probe, load, snipe, cooldown",
		Schema:      Schema(),
		New:         New,
	}
}

// New 由已解析参数构造策略
func New(params map[string]interface{}) (strategies.Strategy, error) {
	var common adaptive.Common
	if err := bbgo.Decode(params, &common); err != nil {
		return nil, err
	}
	probe, err := adaptive.DecodeTier(params, "probe")
	if err != nil {
		return nil, err
	}
	load, err := adaptive.DecodeTier(params, "load")
	if err != nil {
		return nil, err
	}
	snipe, err := adaptive.DecodeTier(params, "snipe")
	if err != nil {
		return nil, err
	}
	s, err := adaptive.New(common.Options(ID, phase.Passive, []phase.Tier{
		probe.Tier(phase.Probe, true),
		load.Tier(phase.Load, false),
		snipe.Tier(phase.Snipe, false),
	}))
	if err != nil {
		return nil, err
	}
	return s, nil
}
