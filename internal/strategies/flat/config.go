package flat

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sushiomsky/duckdice-bot-sub000/internal/domain"
	"github.com/sushiomsky/duckdice-bot-sub000/pkg/bbgo"
	"github.com/sushiomsky/duckdice-bot-sub000/pkg/dicemath"
)

const ID = "flat"

// Config 固定胜率、固定比例下注的基准策略（用于对照分阶段策略）
type Config struct {
	GameKind        string          `yaml:"gameKind" json:"gameKind"`
	Probability     decimal.Decimal `yaml:"probability" json:"probability"`
	StakeFraction   decimal.Decimal `yaml:"stakeFraction" json:"stakeFraction"`
	High            bool            `yaml:"high" json:"high"`
	HouseEdge       decimal.Decimal `yaml:"houseEdge" json:"houseEdge"`
	SessionDrawdown decimal.Decimal `yaml:"sessionDrawdown" json:"sessionDrawdown"`
}

func Schema() []bbgo.ParamSpec {
	return []bbgo.ParamSpec{
		{Name: "gameKind", Type: bbgo.TypeString, Default: string(domain.GameSingle), Choices: []string{string(domain.GameSingle), string(domain.GameRange)}, Description: "single-number dice or range dice"},
		{Name: "probability", Type: bbgo.TypeDecimal, Default: "49.5", Min: bbgo.Bound(0.01), Max: bbgo.Bound(98), Description: "win probability (%)"},
		{Name: "stakeFraction", Type: bbgo.TypeDecimal, Default: "0.001", Min: bbgo.Bound(0.00000001), Max: bbgo.Bound(0.1), Description: "stake as a fraction of current balance"},
		{Name: "high", Type: bbgo.TypeBool, Default: true, Description: "bet high (single dice) / inside (range dice)"},
		{Name: "houseEdge", Type: bbgo.TypeDecimal, Default: "1", Min: bbgo.Bound(0), Max: bbgo.Bound(10), Description: "house edge in percent"},
		{Name: "sessionDrawdown", Type: bbgo.TypeDecimal, Default: "0.25", Min: bbgo.Bound(0), Max: bbgo.Bound(1), Description: "permanent stop at this drawdown from peak (0 disables)"},
	}
}

func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config 不能为空")
	}
	if c.GameKind != string(domain.GameSingle) && c.GameKind != string(domain.GameRange) {
		return fmt.Errorf("gameKind 必须是 single 或 range")
	}
	if !c.Probability.IsPositive() || c.Probability.GreaterThanOrEqual(dicemath.Hundred) {
		return fmt.Errorf("probability 必须在 (0, 100) 内")
	}
	if !c.StakeFraction.IsPositive() {
		return fmt.Errorf("stakeFraction 必须 > 0")
	}
	return nil
}
