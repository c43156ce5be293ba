package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/sushiomsky/duckdice-bot-sub000/internal/duckdice"
	"github.com/sushiomsky/duckdice-bot-sub000/internal/events"
	"github.com/sushiomsky/duckdice-bot-sub000/internal/execution"
	"github.com/sushiomsky/duckdice-bot-sub000/internal/metrics"
	"github.com/sushiomsky/duckdice-bot-sub000/internal/ports"
	"github.com/sushiomsky/duckdice-bot-sub000/internal/recorder"
	"github.com/sushiomsky/duckdice-bot-sub000/internal/simulator"
	"github.com/sushiomsky/duckdice-bot-sub000/internal/strategies"
	"github.com/sushiomsky/duckdice-bot-sub000/internal/strategies/all"
	"github.com/sushiomsky/duckdice-bot-sub000/pkg/config"
	"github.com/sushiomsky/duckdice-bot-sub000/pkg/dicemath"
	"github.com/sushiomsky/duckdice-bot-sub000/pkg/logger"
	"github.com/sushiomsky/duckdice-bot-sub000/pkg/persistence"
	"github.com/sushiomsky/duckdice-bot-sub000/pkg/secretstore"
	"github.com/sushiomsky/duckdice-bot-sub000/pkg/shutdown"
)

func main() {
	// 解析命令行参数
	configPath := flag.String("config", "", "配置文件路径（.yaml/.yml）")
	envFile := flag.String("env", "", ".env 文件路径（默认读取当前目录 .env）")
	strategyName := flag.String("strategy", "", "策略 ID（覆盖配置文件）")
	dryRun := flag.Bool("dry-run", false, "纸上模式：使用本地模拟器，不调用 DuckDice API")
	listStrategies := flag.Bool("list-strategies", false, "列出所有策略及其参数后退出")
	flag.Parse()

	// 注册表只在这里构建一次
	registry, err := all.NewRegistry()
	if err != nil {
		fmt.Fprintln(os.Stderr, "构建策略注册表失败:", err)
		os.Exit(1)
	}
	if *listStrategies {
		printStrategies(os.Stdout, registry)
		return
	}

	var envFiles []string
	if *envFile != "" {
		envFiles = append(envFiles, *envFile)
	}
	cfg, err := config.Load(*configPath, envFiles...)
	if err != nil {
		fmt.Fprintln(os.Stderr, "加载配置失败:", err)
		os.Exit(1)
	}
	if *strategyName != "" {
		cfg.Strategy = *strategyName
	}
	if *dryRun {
		cfg.DryRun = true
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "配置无效:", err)
		os.Exit(1)
	}

	sessionID := uuid.NewString()
	logCfg := logger.Config{
		Level:      cfg.Log.Level,
		OutputFile: cfg.Log.File,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   true,
		JSON:       cfg.Log.JSON,
	}
	if cfg.Log.BySession {
		logCfg.Session = sessionID
	}
	if err := logger.Init(logCfg); err != nil {
		panic(fmt.Sprintf("初始化日志失败: %v", err))
	}
	if *configPath != "" {
		logrus.Infof("使用配置文件: %s", *configPath)
	}

	shutdowns := shutdown.NewManager()
	code := run(cfg, registry, sessionID, shutdowns)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if failed := shutdowns.Shutdown(shutdownCtx); failed > 0 {
		logrus.Warnf("%d 个资源关闭失败", failed)
	}
	cancel()
	_ = logger.Close()
	os.Exit(code)
}

func run(cfg *config.Config, registry *strategies.Registry, sessionID string, shutdowns *shutdown.Manager) int {
	entry, err := cfg.StrategyEntry()
	if err != nil {
		logrus.Errorf("解析策略配置失败: %v", err)
		return 1
	}
	strategy, anomalies, err := registry.Build(entry.ID, entry.Params)
	if err != nil {
		logrus.Errorf("构建策略失败: %v（可用策略: %s）", err, strings.Join(registry.IDs(), ", "))
		return 1
	}
	limits, err := cfg.SessionLimits()
	if err != nil {
		logrus.Errorf("会话限制无效: %v", err)
		return 1
	}

	casino, retryable, err := newCasino(cfg)
	if err != nil {
		logrus.Errorf("初始化下注通道失败: %v", err)
		return 1
	}

	var rec recorder.Recorder = recorder.NewNoopRecorder()
	if cfg.RecorderPath != "" {
		sqliteRec, err := recorder.NewSQLiteRecorder(cfg.RecorderPath)
		if err != nil {
			logrus.Warnf("init sqlite recorder failed, using noop: %v", err)
		} else {
			rec = sqliteRec
		}
	}
	shutdowns.OnShutdown("recorder", func(context.Context) error { return rec.Close() })

	var store persistence.Service
	if cfg.PersistenceDir != "" {
		store = persistence.NewJSONFileService(cfg.PersistenceDir)
	}

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	if cfg.MetricsAddr != "" {
		srv, err := metrics.StartAsync(rootCtx, cfg.MetricsAddr)
		if err != nil {
			logrus.Warnf("启动 metrics 服务失败: %v", err)
		} else {
			shutdowns.OnShutdown("metrics", srv.Shutdown)
		}
	}

	engine, err := execution.NewEngine(execution.Config{
		Strategy:             strategy,
		Casino:               casino,
		Limits:               limits,
		Recorder:             rec,
		Persistence:          store,
		Emitter:              events.LogEmitter(logrus.WithField("strategy", strategy.ID())),
		Anomalies:            anomalies,
		Seed:                 cfg.Runner.Seed,
		IdleInterval:         cfg.Runner.IdleInterval,
		MaxIdleTicks:         cfg.Runner.MaxIdleTicks,
		MaxConsecutiveErrors: cfg.Runner.MaxConsecutiveErrors,
		BetInterval:          cfg.Runner.BetInterval,
		Retryable:            retryable,
		SessionID:            sessionID,
		Currency:             cfg.API.Currency,
		DryRun:               cfg.DryRun,
	})
	if err != nil {
		logrus.Errorf("创建运行器失败: %v", err)
		return 1
	}

	// 第一次信号：结算完当前这一注后停止；第二次信号：立即取消
	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
		case <-rootCtx.Done():
			return
		}
		logrus.Info("收到停止信号，当前一注结算后停止（再按一次立即退出）...")
		engine.Stop()
		select {
		case <-sigChan:
			logrus.Warn("再次收到停止信号，立即取消")
			rootCancel()
		case <-rootCtx.Done():
		}
	}()

	logrus.Infof("✅ 机器人已启动: strategy=%s currency=%s dryRun=%v，按 Ctrl+C 停止", strategy.ID(), cfg.API.Currency, cfg.DryRun)
	report, err := engine.Run(rootCtx)
	if err != nil {
		logrus.Errorf("会话启动失败: %v", err)
		return 1
	}

	sum := report.Summary
	logrus.WithFields(logrus.Fields{
		"session": report.SessionID,
		"reason":  report.Reason,
		"bets":    sum.Bets,
		"wins":    sum.Wins,
		"cycles":  sum.CyclesAttempted,
		"hits":    sum.CyclesHit,
		"phase":   sum.FinalPhase,
		"peak":    dicemath.FormatMoney(sum.Peak),
		"profit":  dicemath.FormatMoney(sum.Profit),
		"elapsed": report.EndedAt.Sub(report.StartedAt).Round(time.Second),
	}).Info("📊 会话汇总")
	printSummary(os.Stdout, *report)
	return 0
}

// newCasino 纸上模式使用本地模拟器；否则使用 DuckDice API（API key 来自配置/环境变量或 secret store）。
func newCasino(cfg *config.Config) (ports.Casino, func(error) bool, error) {
	if cfg.DryRun {
		balance, err := dicemath.ParseMoney(cfg.Simulator.Balance)
		if err != nil {
			return nil, nil, err
		}
		edge, err := cfg.HouseEdge()
		if err != nil {
			return nil, nil, err
		}
		dice, err := simulator.New(simulator.Options{Seed: cfg.Simulator.Seed, Balance: balance, HouseEdge: edge})
		if err != nil {
			return nil, nil, err
		}
		return dice, func(error) bool { return false }, nil
	}

	apiKey := cfg.API.APIKey
	if apiKey == "" {
		key, err := apiKeyFromStore(cfg.SecretStore)
		if err != nil {
			return nil, nil, err
		}
		apiKey = key
	}
	client, err := duckdice.NewClient(duckdice.Config{
		BaseURL:   cfg.API.BaseURL,
		APIKey:    apiKey,
		Currency:  cfg.API.Currency,
		Faucet:    cfg.API.Faucet,
		Timeout:   cfg.API.Timeout,
		UserAgent: cfg.API.UserAgent,
	})
	if err != nil {
		return nil, nil, err
	}
	return client, duckdice.Temporary, nil
}

func apiKeyFromStore(sc config.SecretStoreConfig) (string, error) {
	if sc.Path == "" {
		return "", duckdice.ErrMissingAPIKey
	}
	if _, err := os.Stat(sc.Path); err != nil {
		return "", fmt.Errorf("%w（未设置 DUCKDICE_API_KEY，且 secret store %s 不可用）", duckdice.ErrMissingAPIKey, sc.Path)
	}
	keyBytes, err := secretstore.ParseKey(sc.EncryptionKey)
	if err != nil {
		return "", err
	}
	ss, err := secretstore.Open(secretstore.OpenOptions{Path: sc.Path, EncryptionKey: keyBytes, ReadOnly: true})
	if err != nil {
		return "", fmt.Errorf("open secret store: %w", err)
	}
	defer ss.Close()
	key, found, err := ss.APIKey()
	if err != nil {
		return "", err
	}
	if !found {
		return "", duckdice.ErrMissingAPIKey
	}
	logrus.Infof("🔑 已从 secret store 读取 API key")
	return key, nil
}
