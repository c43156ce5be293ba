// Package simulator 纸上模式（dry run）下的本地骰子，实现 ports.Casino。
package simulator

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/sushiomsky/duckdice-bot-sub000/internal/domain"
	"github.com/sushiomsky/duckdice-bot-sub000/pkg/dicemath"
)

var log = logrus.WithField("component", "simulator")

// ErrInsufficientBalance 下注额超过模拟余额
var ErrInsufficientBalance = errors.New("simulator: insufficient balance")

// Dice 种子化的本地骰子：roll 均匀分布于 0..9999，按赔付公式结算，余额精确跟踪。
type Dice struct {
	mu        sync.Mutex
	rng       *rand.Rand
	balance   decimal.Decimal
	houseEdge decimal.Decimal
	bets      int64
	wins      int64
}

// Options 模拟器参数；Seed 为 0 时使用当前时间。
type Options struct {
	Seed      int64
	Balance   decimal.Decimal
	HouseEdge decimal.Decimal
}

func New(opts Options) (*Dice, error) {
	if !opts.Balance.IsPositive() {
		return nil, errors.Wrapf(dicemath.ErrInvalidInput, "simulator balance %s", opts.Balance)
	}
	if opts.HouseEdge.IsNegative() || opts.HouseEdge.GreaterThanOrEqual(dicemath.Hundred) {
		return nil, errors.Wrapf(dicemath.ErrInvalidInput, "simulator house edge %s", opts.HouseEdge)
	}
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	log.Infof("🎲 模拟器启动: balance=%s edge=%s%% seed=%d", dicemath.FormatMoney(opts.Balance), opts.HouseEdge, seed)
	return &Dice{
		rng:       rand.New(rand.NewSource(seed)),
		balance:   dicemath.FloorMoney(opts.Balance),
		houseEdge: opts.HouseEdge,
	}, nil
}

// PlaceBet 掷骰并结算。无效的下注不消耗随机数。
func (d *Dice) PlaceBet(ctx context.Context, spec domain.BetSpec) (domain.BetResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.BetResult{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if spec.Stake.GreaterThan(d.balance) {
		return domain.BetResult{}, errors.Wrapf(ErrInsufficientBalance, "stake %s > balance %s",
			dicemath.FormatMoney(spec.Stake), dicemath.FormatMoney(d.balance))
	}
	if err := spec.Validate(d.balance); err != nil {
		return domain.BetResult{}, err
	}

	roll := d.rng.Intn(dicemath.Outcomes)
	var won bool
	if spec.Kind == domain.GameRange {
		won = dicemath.RangeWins(roll, spec.RangeLow, spec.RangeHigh, spec.High)
	} else {
		// 与线上一致：胜率向下对齐到结果粒度，判定与赔付用同一个胜率
		spec.Probability = dicemath.QuantizeChance(spec.Probability)
		won = dicemath.RollWins(roll, spec.Probability, spec.High)
	}

	res, err := spec.Settle(won, float64(roll), d.balance, d.houseEdge)
	if err != nil {
		return domain.BetResult{}, err
	}
	res.BetID = uuid.NewString()
	d.balance = res.Balance
	d.bets++
	if won {
		d.wins++
	}
	return res, nil
}

// Balance 当前模拟余额
func (d *Dice) Balance(ctx context.Context) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.balance, nil
}

// Stats 已结算注数与胜场
func (d *Dice) Stats() (bets, wins int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.bets, d.wins
}
