package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/sushiomsky/duckdice-bot-sub000/internal/domain"
	"github.com/sushiomsky/duckdice-bot-sub000/pkg/bbgo"
	"github.com/sushiomsky/duckdice-bot-sub000/pkg/dicemath"
)

// DefaultBaseURL DuckDice 机器人 API 地址
const DefaultBaseURL = "https://duckdice.io"

// APIConfig DuckDice API 配置
type APIConfig struct {
	BaseURL   string        `yaml:"baseURL" json:"baseURL"`
	APIKey    string        `yaml:"apiKey" json:"apiKey"`       // 为空时从 secret store 读取
	Currency  string        `yaml:"currency" json:"currency"`   // 例如 BTC、DOGE、USDT
	Faucet    bool          `yaml:"faucet" json:"faucet"`       // 使用 faucet 余额下注
	Timeout   time.Duration `yaml:"timeout" json:"timeout"`     // 单次请求超时
	UserAgent string        `yaml:"userAgent" json:"userAgent"` // 可选
}

// SimulatorConfig 纸上模式（dry run）的本地模拟器
type SimulatorConfig struct {
	Seed      int64  `yaml:"seed" json:"seed"`           // 0 表示使用当前时间
	Balance   string `yaml:"balance" json:"balance"`     // 起始余额（十进制字符串）
	HouseEdge string `yaml:"houseEdge" json:"houseEdge"` // 百分比，默认 1
}

// LimitsConfig 会话限制（比例为起始余额的分数，0 表示关闭）
type LimitsConfig struct {
	StopLoss      string        `yaml:"stopLoss" json:"stopLoss"`
	TakeProfit    string        `yaml:"takeProfit" json:"takeProfit"`
	MaxStake      string        `yaml:"maxStake" json:"maxStake"`
	MaxBets       int64         `yaml:"maxBets" json:"maxBets"`
	MaxLossStreak int           `yaml:"maxLossStreak" json:"maxLossStreak"`
	MaxDuration   time.Duration `yaml:"maxDuration" json:"maxDuration"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `yaml:"level" json:"level"`
	File       string `yaml:"file" json:"file"`
	JSON       bool   `yaml:"json" json:"json"`
	BySession  bool   `yaml:"bySession" json:"bySession"` // 按会话命名日志文件
	MaxSize    int    `yaml:"maxSize" json:"maxSize"`
	MaxBackups int    `yaml:"maxBackups" json:"maxBackups"`
	MaxAge     int    `yaml:"maxAge" json:"maxAge"`
}

// RunnerConfig 运行循环配置
type RunnerConfig struct {
	IdleInterval         time.Duration `yaml:"idleInterval" json:"idleInterval"`                 // 策略返回 none 后的等待
	MaxIdleTicks         int           `yaml:"maxIdleTicks" json:"maxIdleTicks"`                 // 连续 none 超过此值结束会话
	MaxConsecutiveErrors int64         `yaml:"maxConsecutiveErrors" json:"maxConsecutiveErrors"` // 连续传输错误上限
	BetInterval          time.Duration `yaml:"betInterval" json:"betInterval"`                   // 两注之间的最小间隔
	Seed                 int64         `yaml:"seed" json:"seed"`                                 // 策略 RNG 种子，0 表示使用当前时间
}

// SecretStoreConfig 加密 KV（存放 API key）
type SecretStoreConfig struct {
	Path          string `yaml:"path" json:"path"`
	EncryptionKey string `yaml:"encryptionKey" json:"encryptionKey"`
}

// Config 应用配置
type Config struct {
	API         APIConfig         `yaml:"api" json:"api"`
	DryRun      bool              `yaml:"dryRun" json:"dryRun"`
	Simulator   SimulatorConfig   `yaml:"simulator" json:"simulator"`
	Limits      LimitsConfig      `yaml:"limits" json:"limits"`
	Runner      RunnerConfig      `yaml:"runner" json:"runner"`
	Log         LogConfig         `yaml:"log" json:"log"`
	SecretStore SecretStoreConfig `yaml:"secretStore" json:"secretStore"`

	// Strategy 选中的策略 ID；Strategies 为各策略的扁平参数表（与 bbgo 策略文件同构）
	Strategy   string                     `yaml:"strategy" json:"strategy"`
	Strategies []bbgo.StrategyConfigEntry `yaml:"strategies" json:"strategies"`

	RecorderPath   string `yaml:"recorderPath" json:"recorderPath"`     // 为空则不记录
	PersistenceDir string `yaml:"persistenceDir" json:"persistenceDir"` // 会话汇总目录
	MetricsAddr    string `yaml:"metricsAddr" json:"metricsAddr"`       // 为空则不启动
}

// Default 默认配置
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:  DefaultBaseURL,
			Currency: "BTC",
			Timeout:  15 * time.Second,
		},
		Simulator: SimulatorConfig{
			Balance:   "1",
			HouseEdge: "1",
		},
		Runner: RunnerConfig{
			IdleInterval:         time.Second,
			MaxIdleTicks:         3,
			MaxConsecutiveErrors: 5,
		},
		Log: LogConfig{
			Level:      "info",
			File:       "logs/bot.log",
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     7,
		},
		SecretStore: SecretStoreConfig{
			Path: "data/secrets.badger",
		},
		Strategy:       "hunter",
		PersistenceDir: "data/sessions",
	}
}

// Load 加载配置：默认值 < 配置文件 < 环境变量（含 .env）。
// filePath 为空时只使用默认值与环境变量。
func Load(filePath string, envFiles ...string) (*Config, error) {
	loadDotEnv(envFiles...)

	cfg := Default()
	if filePath != "" {
		content, err := os.ReadFile(filePath)
		if err != nil {
			return nil, errors.Wrapf(err, "read config %s", filePath)
		}
		if err := yaml.Unmarshal(content, cfg); err != nil {
			return nil, errors.Wrapf(err, "parse config %s", filePath)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadDotEnv .env 不存在不是错误；已存在的环境变量不会被覆盖。
func loadDotEnv(files ...string) {
	if len(files) == 0 {
		_ = godotenv.Load()
		return
	}
	for _, f := range files {
		if f == "" {
			continue
		}
		_ = godotenv.Load(f)
	}
}

func (c *Config) applyEnv() {
	c.API.APIKey = getEnv("DUCKDICE_API_KEY", c.API.APIKey)
	c.API.Currency = getEnv("DUCKDICE_CURRENCY", c.API.Currency)
	c.API.BaseURL = getEnv("DUCKDICE_BASE_URL", c.API.BaseURL)
	c.API.Faucet = parseBoolEnv("DUCKDICE_FAUCET", c.API.Faucet)
	c.Strategy = getEnv("DUCKDICE_STRATEGY", c.Strategy)
	c.DryRun = parseBoolEnv("DUCKDICE_DRY_RUN", c.DryRun)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.File = getEnv("LOG_FILE", c.Log.File)
	c.MetricsAddr = getEnv("METRICS_ADDR", c.MetricsAddr)
	c.SecretStore.Path = getEnv("SECRETSTORE_PATH", c.SecretStore.Path)
	c.SecretStore.EncryptionKey = getEnv("SECRETSTORE_KEY", c.SecretStore.EncryptionKey)
}

// Validate 结构性错误（启动即失败）。参数表的取值问题由 bbgo.ResolveParams 报告，不在这里处理。
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Strategy) == "" {
		return errors.New("strategy is required")
	}
	if c.API.Currency == "" {
		return errors.New("api.currency is required")
	}
	if !c.DryRun && c.API.BaseURL == "" {
		return errors.New("api.baseURL is required")
	}
	if c.DryRun {
		bal, err := dicemath.ParseMoney(c.Simulator.Balance)
		if err != nil {
			return errors.Wrap(err, "simulator.balance")
		}
		if !bal.IsPositive() {
			return errors.New("simulator.balance must be > 0")
		}
	}
	if _, err := c.HouseEdge(); err != nil {
		return err
	}
	if _, err := c.SessionLimits(); err != nil {
		return err
	}
	if c.Runner.IdleInterval < 0 || c.Runner.BetInterval < 0 {
		return errors.New("runner intervals must be >= 0")
	}
	if c.Runner.MaxIdleTicks < 0 || c.Runner.MaxConsecutiveErrors < 0 {
		return errors.New("runner limits must be >= 0")
	}
	return nil
}

// HouseEdge 模拟器庄家优势（百分比，[0,100)）
func (c *Config) HouseEdge() (decimal.Decimal, error) {
	s := c.Simulator.HouseEdge
	if s == "" {
		return decimal.NewFromInt(1), nil
	}
	edge, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "simulator.houseEdge")
	}
	if edge.IsNegative() || edge.GreaterThanOrEqual(dicemath.Hundred) {
		return decimal.Zero, errors.Errorf("simulator.houseEdge %s outside [0,100)", s)
	}
	return edge, nil
}

// SessionLimits 转换为核心使用的会话限制
func (c *Config) SessionLimits() (domain.SessionLimits, error) {
	l := c.Limits
	ratio := func(name, s string) (decimal.Decimal, error) {
		if s == "" {
			return decimal.Zero, nil
		}
		v, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Zero, errors.Wrapf(err, "limits.%s", name)
		}
		if v.IsNegative() {
			return decimal.Zero, errors.Errorf("limits.%s must be >= 0", name)
		}
		return v, nil
	}
	stopLoss, err := ratio("stopLoss", l.StopLoss)
	if err != nil {
		return domain.SessionLimits{}, err
	}
	takeProfit, err := ratio("takeProfit", l.TakeProfit)
	if err != nil {
		return domain.SessionLimits{}, err
	}
	maxStake, err := ratio("maxStake", l.MaxStake)
	if err != nil {
		return domain.SessionLimits{}, err
	}
	if l.MaxBets < 0 || l.MaxLossStreak < 0 || l.MaxDuration < 0 {
		return domain.SessionLimits{}, errors.New("limits must be >= 0")
	}
	return domain.SessionLimits{
		StopLoss:      stopLoss,
		TakeProfit:    takeProfit,
		MaxStake:      maxStake,
		MaxBets:       l.MaxBets,
		MaxLossStreak: l.MaxLossStreak,
		MaxDuration:   l.MaxDuration,
	}, nil
}

// StrategyEntry 选中策略的参数表；未配置的策略使用全部默认值。
func (c *Config) StrategyEntry() (bbgo.StrategyEntry, error) {
	sc := bbgo.Config{Strategies: c.Strategies}
	entry, err := sc.Find(c.Strategy)
	if err != nil {
		return bbgo.StrategyEntry{}, errors.Wrap(err, "strategies")
	}
	return entry, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}
