package adaptive

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
	"github.com/sushiomsky/duckdice-bot-sub000/internal/domain"
	"github.com/sushiomsky/duckdice-bot-sub000/internal/strategycore/guard"
	"github.com/sushiomsky/duckdice-bot-sub000/internal/strategycore/phase"
	"github.com/sushiomsky/duckdice-bot-sub000/internal/strategycore/window"
	"github.com/sushiomsky/duckdice-bot-sub000/pkg/bbgo"
	"github.com/sushiomsky/duckdice-bot-sub000/pkg/dicemath"
)

// Direction 单数字骰子的押注方向策略
const (
	DirectionHigh      = "high"
	DirectionLow       = "low"
	DirectionAlternate = "alternate"
	DirectionRandom    = "random"
)

// Common 所有分阶段策略共用的参数（bbgo 风格，camelCase）
type Common struct {
	GameKind        string          `yaml:"gameKind" json:"gameKind"`   // single / range
	Direction       string          `yaml:"direction" json:"direction"` // high / low / alternate / random
	HouseEdge       decimal.Decimal `yaml:"houseEdge" json:"houseEdge"` // 百分比，默认 1
	HardCapFraction decimal.Decimal `yaml:"hardCapFraction" json:"hardCapFraction"`

	// 滚动窗口
	WindowSize           int             `yaml:"windowSize" json:"windowSize"`
	MinReady             int             `yaml:"minReady" json:"minReady"`
	ReferenceProbability decimal.Decimal `yaml:"referenceProbability" json:"referenceProbability"`
	ZThreshold           float64         `yaml:"zThreshold" json:"zThreshold"`
	ColdRatio            float64         `yaml:"coldRatio" json:"coldRatio"` // <= 0 关闭连败信号

	// 空闲观察注与冷却填充注
	PassiveStakeFraction decimal.Decimal `yaml:"passiveStakeFraction" json:"passiveStakeFraction"`
	FillerProbability    decimal.Decimal `yaml:"fillerProbability" json:"fillerProbability"`
	FillerStake          decimal.Decimal `yaml:"fillerStake" json:"fillerStake"`
	AbortCooldownMin     int             `yaml:"abortCooldownMin" json:"abortCooldownMin"`
	AbortCooldownMax     int             `yaml:"abortCooldownMax" json:"abortCooldownMax"`

	// 风控
	CycleLossFraction decimal.Decimal `yaml:"cycleLossFraction" json:"cycleLossFraction"`
	CycleMaxBets      int             `yaml:"cycleMaxBets" json:"cycleMaxBets"`
	SessionDrawdown   decimal.Decimal `yaml:"sessionDrawdown" json:"sessionDrawdown"`

	ProgressEvery int `yaml:"progressEvery" json:"progressEvery"` // 每 N 注发一次进度事件，0 关闭
}

// DefaultCommon 默认共用参数
func DefaultCommon() Common {
	g := guard.DefaultConfig()
	return Common{
		GameKind:             string(domain.GameSingle),
		Direction:            DirectionHigh,
		HouseEdge:            decimal.NewFromInt(1),
		HardCapFraction:      decimal.RequireFromString("0.05"),
		WindowSize:           window.DefaultCapacity,
		MinReady:             window.DefaultMinReady,
		ReferenceProbability: decimal.NewFromInt(2),
		ZThreshold:           -2,
		ColdRatio:            1.5,
		PassiveStakeFraction: decimal.RequireFromString("0.0001"),
		FillerProbability:    decimal.NewFromInt(50),
		FillerStake:          dicemath.MinUnit,
		AbortCooldownMin:     30,
		AbortCooldownMax:     60,
		CycleLossFraction:    g.CycleLossFraction,
		CycleMaxBets:         g.CycleMaxBets,
		SessionDrawdown:      g.SessionDrawdown,
		ProgressEvery:        100,
	}
}

// CommonSchema 共用参数模式，d 提供各策略自己的默认值
func CommonSchema(d Common) []bbgo.ParamSpec {
	return []bbgo.ParamSpec{
		{Name: "gameKind", Type: bbgo.TypeString, Default: d.GameKind, Choices: []string{string(domain.GameSingle), string(domain.GameRange)}, Description: "single-number dice or range dice"},
		{Name: "direction", Type: bbgo.TypeString, Default: d.Direction, Choices: []string{DirectionHigh, DirectionLow, DirectionAlternate, DirectionRandom}, Description: "single dice side"},
		{Name: "houseEdge", Type: bbgo.TypeDecimal, Default: d.HouseEdge.String(), Min: bbgo.Bound(0), Max: bbgo.Bound(10), Description: "house edge in percent"},
		{Name: "hardCapFraction", Type: bbgo.TypeDecimal, Default: d.HardCapFraction.String(), Min: bbgo.Bound(0.0001), Max: bbgo.Bound(1), Description: "absolute stake ceiling as a fraction of balance"},
		{Name: "windowSize", Type: bbgo.TypeInt, Default: d.WindowSize, Min: bbgo.Bound(window.MinCapacity), Max: bbgo.Bound(window.MaxCapacity), Description: "rolling window capacity"},
		{Name: "minReady", Type: bbgo.TypeInt, Default: d.MinReady, Min: bbgo.Bound(10), Max: bbgo.Bound(window.MinCapacity), Description: "entries required before signals are evaluated"},
		{Name: "referenceProbability", Type: bbgo.TypeDecimal, Default: d.ReferenceProbability.String(), Min: bbgo.Bound(0.01), Max: bbgo.Bound(98), Description: "observation bet probability and cold-streak reference"},
		{Name: "zThreshold", Type: bbgo.TypeFloat, Default: d.ZThreshold, Min: bbgo.Bound(-10), Max: bbgo.Bound(0), Description: "window opens when z-score falls below this"},
		{Name: "coldRatio", Type: bbgo.TypeFloat, Default: d.ColdRatio, Min: bbgo.Bound(0), Max: bbgo.Bound(50), Description: "window opens when cold-streak ratio exceeds this (0 disables)"},
		{Name: "passiveStakeFraction", Type: bbgo.TypeDecimal, Default: d.PassiveStakeFraction.String(), Min: bbgo.Bound(0.00000001), Max: bbgo.Bound(0.01), Description: "observation stake as a fraction of balance"},
		{Name: "fillerProbability", Type: bbgo.TypeDecimal, Default: d.FillerProbability.String(), Min: bbgo.Bound(0.01), Max: bbgo.Bound(98), Description: "cooldown filler bet probability"},
		{Name: "fillerStake", Type: bbgo.TypeDecimal, Default: d.FillerStake.String(), Min: bbgo.Bound(0.00000001), Max: bbgo.Bound(1), Description: "cooldown filler bet stake"},
		{Name: "abortCooldownMin", Type: bbgo.TypeInt, Default: d.AbortCooldownMin, Min: bbgo.Bound(1), Max: bbgo.Bound(10000), Description: "cooldown bets after an aborted cycle (min)"},
		{Name: "abortCooldownMax", Type: bbgo.TypeInt, Default: d.AbortCooldownMax, Min: bbgo.Bound(1), Max: bbgo.Bound(10000), Description: "cooldown bets after an aborted cycle (max)"},
		{Name: "cycleLossFraction", Type: bbgo.TypeDecimal, Default: d.CycleLossFraction.String(), Min: bbgo.Bound(0), Max: bbgo.Bound(1), Description: "cycle loss cap as a fraction of cycle start balance (0 disables)"},
		{Name: "cycleMaxBets", Type: bbgo.TypeInt, Default: d.CycleMaxBets, Min: bbgo.Bound(0), Max: bbgo.Bound(100000), Description: "cycle bet cap (0 disables)"},
		{Name: "sessionDrawdown", Type: bbgo.TypeDecimal, Default: d.SessionDrawdown.String(), Min: bbgo.Bound(0), Max: bbgo.Bound(1), Description: "permanent stop at this drawdown from peak (0 disables)"},
		{Name: "progressEvery", Type: bbgo.TypeInt, Default: d.ProgressEvery, Min: bbgo.Bound(0), Max: bbgo.Bound(1000000), Description: "emit a progress event every N bets"},
	}
}

// TierParams 单个升级阶段的参数；在参数表中带阶段前缀（probeBets、loadProbMin ...）
type TierParams struct {
	Bets          int             `yaml:"bets" json:"bets"`
	ProbMin       decimal.Decimal `yaml:"probMin" json:"probMin"`
	ProbMax       decimal.Decimal `yaml:"probMax" json:"probMax"`
	StakeMin      decimal.Decimal `yaml:"stakeMin" json:"stakeMin"`
	StakeMax      decimal.Decimal `yaml:"stakeMax" json:"stakeMax"`
	TargetStart   decimal.Decimal `yaml:"targetStart" json:"targetStart"`
	TargetEnd     decimal.Decimal `yaml:"targetEnd" json:"targetEnd"`
	FractionStart decimal.Decimal `yaml:"fractionStart" json:"fractionStart"`
	FractionEnd   decimal.Decimal `yaml:"fractionEnd" json:"fractionEnd"`
	CooldownMin   int             `yaml:"cooldownMin" json:"cooldownMin"`
	CooldownMax   int             `yaml:"cooldownMax" json:"cooldownMax"`
}

func prefixed(prefix, name string) string {
	r := []rune(name)
	r[0] = unicode.ToUpper(r[0])
	return prefix + string(r)
}

// TierSchema 以 prefix 命名的阶段参数模式
func TierSchema(prefix string, d TierParams) []bbgo.ParamSpec {
	p := func(name string) string { return prefixed(prefix, name) }
	return []bbgo.ParamSpec{
		{Name: p("bets"), Type: bbgo.TypeInt, Default: d.Bets, Min: bbgo.Bound(1), Max: bbgo.Bound(10000), Description: prefix + " bet budget"},
		{Name: p("probMin"), Type: bbgo.TypeDecimal, Default: d.ProbMin.String(), Min: bbgo.Bound(0.01), Max: bbgo.Bound(98), Description: prefix + " probability floor (%)"},
		{Name: p("probMax"), Type: bbgo.TypeDecimal, Default: d.ProbMax.String(), Min: bbgo.Bound(0.01), Max: bbgo.Bound(98), Description: prefix + " probability ceiling (%)"},
		{Name: p("stakeMin"), Type: bbgo.TypeDecimal, Default: d.StakeMin.String(), Min: bbgo.Bound(0.00000001), Max: bbgo.Bound(1), Description: prefix + " minimum stake fraction"},
		{Name: p("stakeMax"), Type: bbgo.TypeDecimal, Default: d.StakeMax.String(), Min: bbgo.Bound(0.00000001), Max: bbgo.Bound(1), Description: prefix + " maximum stake fraction"},
		{Name: p("targetStart"), Type: bbgo.TypeDecimal, Default: d.TargetStart.String(), Min: bbgo.Bound(0.0001), Max: bbgo.Bound(5), Description: prefix + " target profit ratio at first bet"},
		{Name: p("targetEnd"), Type: bbgo.TypeDecimal, Default: d.TargetEnd.String(), Min: bbgo.Bound(0.0001), Max: bbgo.Bound(5), Description: prefix + " target profit ratio at last bet"},
		{Name: p("fractionStart"), Type: bbgo.TypeDecimal, Default: d.FractionStart.String(), Min: bbgo.Bound(0.00000001), Max: bbgo.Bound(1), Description: prefix + " stake fraction at first bet"},
		{Name: p("fractionEnd"), Type: bbgo.TypeDecimal, Default: d.FractionEnd.String(), Min: bbgo.Bound(0.00000001), Max: bbgo.Bound(1), Description: prefix + " stake fraction at last bet"},
		{Name: p("cooldownMin"), Type: bbgo.TypeInt, Default: d.CooldownMin, Min: bbgo.Bound(1), Max: bbgo.Bound(10000), Description: prefix + " cooldown after a hit (min bets)"},
		{Name: p("cooldownMax"), Type: bbgo.TypeInt, Default: d.CooldownMax, Min: bbgo.Bound(1), Max: bbgo.Bound(10000), Description: prefix + " cooldown after a hit (max bets)"},
	}
}

// DecodeTier 从已解析参数中取出带 prefix 的阶段参数
func DecodeTier(params map[string]interface{}, prefix string) (TierParams, error) {
	sub := make(map[string]interface{})
	for k, v := range params {
		if !strings.HasPrefix(k, prefix) || len(k) == len(prefix) {
			continue
		}
		rest := []rune(k[len(prefix):])
		if !unicode.IsUpper(rest[0]) {
			continue
		}
		rest[0] = unicode.ToLower(rest[0])
		sub[string(rest)] = v
	}
	var t TierParams
	if err := bbgo.Decode(sub, &t); err != nil {
		return TierParams{}, fmt.Errorf("%s: %w", prefix, err)
	}
	return t, nil
}

// Tier 转换成状态机阶段。交叉约束（min > max）按交换/抬高处理，不报错。
func (t TierParams) Tier(p phase.Phase, recheckOnExit bool) phase.Tier {
	if t.ProbMin.GreaterThan(t.ProbMax) {
		t.ProbMin, t.ProbMax = t.ProbMax, t.ProbMin
	}
	if t.StakeMin.GreaterThan(t.StakeMax) {
		t.StakeMin, t.StakeMax = t.StakeMax, t.StakeMin
	}
	if t.CooldownMax < t.CooldownMin {
		t.CooldownMax = t.CooldownMin
	}
	return phase.Tier{
		Phase: p,
		Bets:  t.Bets,
		Band: dicemath.Band{
			ProbMin:          t.ProbMin,
			ProbMax:          t.ProbMax,
			StakeMinFraction: t.StakeMin,
			StakeMaxFraction: t.StakeMax,
		},
		TargetFrom:    t.TargetStart,
		TargetTo:      t.TargetEnd,
		FractionFrom:  t.FractionStart,
		FractionTo:    t.FractionEnd,
		RecheckOnExit: recheckOnExit,
		CooldownMin:   t.CooldownMin,
		CooldownMax:   t.CooldownMax,
	}
}

// Options 构造 Strategy 所需的全部静态参数
type Options struct {
	ID            string
	Game          domain.GameKind
	Direction     string
	HouseEdge     decimal.Decimal
	HardCap       decimal.Decimal
	WindowSize    int
	MinReady      int
	Guard         guard.Config
	Plan          phase.Plan
	ProgressEvery int
}

// Options 由共用参数与阶段列表组装 Options
func (c Common) Options(id string, idle phase.Phase, tiers []phase.Tier) Options {
	abortMax := c.AbortCooldownMax
	if abortMax < c.AbortCooldownMin {
		abortMax = c.AbortCooldownMin
	}
	ref, _ := c.ReferenceProbability.Float64()
	return Options{
		ID:         id,
		Game:       domain.GameKind(c.GameKind),
		Direction:  c.Direction,
		HouseEdge:  c.HouseEdge,
		HardCap:    c.HardCapFraction,
		WindowSize: c.WindowSize,
		MinReady:   c.MinReady,
		Guard: guard.Config{
			CycleLossFraction: c.CycleLossFraction,
			CycleMaxBets:      c.CycleMaxBets,
			SessionDrawdown:   c.SessionDrawdown,
		},
		Plan: phase.Plan{
			Idle:              idle,
			Tiers:             tiers,
			IdleProbability:   c.ReferenceProbability,
			IdleStakeFraction: c.PassiveStakeFraction,
			FillerProbability: c.FillerProbability,
			FillerStake:       c.FillerStake,
			AbortCooldownMin:  c.AbortCooldownMin,
			AbortCooldownMax:  abortMax,
			Thresholds: window.Thresholds{
				ZScore:               c.ZThreshold,
				ColdRatio:            c.ColdRatio,
				ReferenceProbability: ref,
			},
		},
		ProgressEvery: c.ProgressEvery,
	}
}
