// Package duckdice DuckDice 机器人 API 的传输层：下注与余额查询，实现 ports.Casino。
package duckdice

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/sushiomsky/duckdice-bot-sub000/internal/domain"
	"github.com/sushiomsky/duckdice-bot-sub000/pkg/dicemath"
	sdkhttp "github.com/sushiomsky/duckdice-bot-sub000/pkg/sdk/http"
)

var log = logrus.WithField("component", "duckdice")

const (
	PathPlay      = "/api/play"
	PathRangePlay = "/api/range-dice/play"
	PathUserInfo  = "/api/bot/user-info"
)

var (
	// ErrMissingAPIKey 未配置 API key
	ErrMissingAPIKey = errors.New("duckdice: api key is required")
	// ErrBadResponse 响应无法解码为结算结果
	ErrBadResponse = errors.New("duckdice: malformed response")
	// ErrCurrencyNotFound 用户余额中没有该币种
	ErrCurrencyNotFound = errors.New("duckdice: currency not found")
)

// Config 客户端配置
type Config struct {
	BaseURL   string
	APIKey    string
	Currency  string
	Faucet    bool
	Timeout   time.Duration
	UserAgent string
}

// Client resty 客户端。下注请求不重试（非幂等），查询请求带限流重试。
type Client struct {
	cfg   Config
	bets  *sdkhttp.Client
	query *sdkhttp.Client
}

func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.Currency == "" {
		return nil, errors.New("duckdice: currency is required")
	}
	cfg.Currency = strings.ToUpper(cfg.Currency)
	return &Client{
		cfg:   cfg,
		bets:  sdkhttp.NewClient(cfg.BaseURL, sdkhttp.Options{Timeout: cfg.Timeout, UserAgent: cfg.UserAgent}),
		query: sdkhttp.NewClient(cfg.BaseURL, sdkhttp.Options{Timeout: cfg.Timeout, UserAgent: cfg.UserAgent, RetryCount: 3}),
	}, nil
}

// playRequest 单数字骰子
type playRequest struct {
	Symbol string `json:"symbol"`
	Chance string `json:"chance"`
	IsHigh bool   `json:"isHigh"`
	Amount string `json:"amount"`
	Faucet bool   `json:"faucet,omitempty"`
}

// rangePlayRequest 区间骰子
type rangePlayRequest struct {
	Symbol string `json:"symbol"`
	Range  [2]int `json:"range"`
	IsIn   bool   `json:"isIn"`
	Amount string `json:"amount"`
	Faucet bool   `json:"faucet,omitempty"`
}

type playResponse struct {
	Bet struct {
		Hash   string          `json:"hash"`
		Result bool            `json:"result"`
		Number int             `json:"number"`
		Chance decimal.Decimal `json:"chance"`
		Profit decimal.Decimal `json:"profit"`
	} `json:"bet"`
	User struct {
		Balance decimal.Decimal `json:"balance"`
	} `json:"user"`
}

type userInfoResponse struct {
	Username string `json:"username"`
	Balances []struct {
		Currency string          `json:"currency"`
		Main     decimal.Decimal `json:"main"`
		Faucet   decimal.Decimal `json:"faucet"`
	} `json:"balances"`
}

func (c *Client) params() map[string]any {
	return map[string]any{"api_key": c.cfg.APIKey}
}

// PlaceBet 下一注并返回服务端结算结果（服务端余额为准）。
func (c *Client) PlaceBet(ctx context.Context, spec domain.BetSpec) (domain.BetResult, error) {
	if err := spec.Validate(decimal.Zero); err != nil {
		return domain.BetResult{}, err
	}

	var (
		path string
		body any
	)
	amount := dicemath.FormatMoney(spec.Stake)
	if spec.Kind == domain.GameRange {
		path = PathRangePlay
		body = rangePlayRequest{
			Symbol: c.cfg.Currency,
			Range:  [2]int{spec.RangeLow, spec.RangeHigh},
			IsIn:   spec.High,
			Amount: amount,
			Faucet: c.cfg.Faucet,
		}
	} else {
		path = PathPlay
		body = playRequest{
			Symbol: c.cfg.Currency,
			Chance: dicemath.QuantizeChance(spec.Probability).StringFixed(2),
			IsHigh: spec.High,
			Amount: amount,
			Faucet: c.cfg.Faucet,
		}
	}

	var out playResponse
	if _, err := c.bets.DoRequest(ctx, http.MethodPost, path, &sdkhttp.RequestOptions{
		Params: c.params(),
		Data:   body,
	}, &out); err != nil {
		return domain.BetResult{}, errors.Wrap(err, "place bet")
	}
	return decodePlay(spec, out)
}

func decodePlay(spec domain.BetSpec, out playResponse) (domain.BetResult, error) {
	if out.Bet.Hash == "" {
		return domain.BetResult{}, errors.Wrap(ErrBadResponse, "missing bet hash")
	}
	profit := out.Bet.Profit
	if (out.Bet.Result && profit.IsNegative()) || (!out.Bet.Result && profit.IsPositive()) {
		return domain.BetResult{}, errors.Wrapf(ErrBadResponse, "result=%v profit=%s", out.Bet.Result, profit)
	}
	if out.User.Balance.IsNegative() {
		return domain.BetResult{}, errors.Wrapf(ErrBadResponse, "balance %s", out.User.Balance)
	}
	p := dicemath.QuantizeChance(spec.Chance())
	if out.Bet.Chance.IsPositive() {
		p = out.Bet.Chance
	}
	res := domain.BetResult{
		BetID:       out.Bet.Hash,
		Won:         out.Bet.Result,
		Profit:      profit,
		Balance:     out.User.Balance,
		Probability: p,
		Roll:        float64(out.Bet.Number),
	}
	log.Debugf("bet %s won=%v profit=%s balance=%s", res.BetID, res.Won, dicemath.FormatMoney(res.Profit), dicemath.FormatMoney(res.Balance))
	return res, nil
}

// Balance 当前币种余额（faucet 模式取 faucet 余额）
func (c *Client) Balance(ctx context.Context) (decimal.Decimal, error) {
	var out userInfoResponse
	if _, err := c.query.DoRequest(ctx, http.MethodGet, PathUserInfo, &sdkhttp.RequestOptions{
		Params: c.params(),
	}, &out); err != nil {
		return decimal.Zero, errors.Wrap(err, "user info")
	}
	for _, b := range out.Balances {
		if !strings.EqualFold(b.Currency, c.cfg.Currency) {
			continue
		}
		if c.cfg.Faucet {
			return b.Faucet, nil
		}
		return b.Main, nil
	}
	return decimal.Zero, errors.Wrap(ErrCurrencyNotFound, c.cfg.Currency)
}

// Temporary 判断错误是否可恢复（限流或服务端错误、网络错误）
func Temporary(err error) bool {
	var httpErr *sdkhttp.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Temporary()
	}
	return err != nil && !errors.Is(err, ErrBadResponse) && !errors.Is(err, domain.ErrInvalidBet)
}
