// Package execution 顺序运行器：一问一答地驱动策略，任何时刻最多只有一注在途。
//
//	NextBet -> PlaceBet -> OnBetResult -> NextBet ...
//
// 会话限制由 risk.SessionGuard 判定；OnSessionEnd 恰好调用一次。
package execution

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/sushiomsky/duckdice-bot-sub000/internal/domain"
	"github.com/sushiomsky/duckdice-bot-sub000/internal/events"
	"github.com/sushiomsky/duckdice-bot-sub000/internal/metrics"
	"github.com/sushiomsky/duckdice-bot-sub000/internal/ports"
	"github.com/sushiomsky/duckdice-bot-sub000/internal/recorder"
	"github.com/sushiomsky/duckdice-bot-sub000/internal/risk"
	"github.com/sushiomsky/duckdice-bot-sub000/internal/strategies"
	"github.com/sushiomsky/duckdice-bot-sub000/pkg/bbgo"
	"github.com/sushiomsky/duckdice-bot-sub000/pkg/dicemath"
	"github.com/sushiomsky/duckdice-bot-sub000/pkg/persistence"
	"github.com/sushiomsky/duckdice-bot-sub000/pkg/ratelimit"
)

var log = logrus.WithField("component", "engine")

// StatePrefix 会话汇总在持久化中的前缀：state:<strategy>:<session>
const StatePrefix = "state"

// Config 运行器依赖与参数
type Config struct {
	Strategy    strategies.Strategy
	Casino      ports.Casino
	Limits      domain.SessionLimits
	Recorder    recorder.Recorder   // 可选
	Persistence persistence.Service // 可选
	Emitter     events.Emitter      // 可选，策略事件的去向
	Anomalies   []bbgo.Anomaly      // 参数解析异常，会话开始时作为 config 事件发出

	Seed                 int64         // 0 表示使用当前时间
	IdleInterval         time.Duration // 策略返回 none 后的等待
	MaxIdleTicks         int           // 连续 none 达到此值结束会话（0 表示不限）
	MaxConsecutiveErrors int64         // 连续传输错误上限
	BetInterval          time.Duration // 两注之间的最小间隔（令牌桶，容量 1）
	// Retryable 判断下注错误是否可重试；为 nil 时全部可重试
	Retryable func(error) bool

	SessionID string // 为空时自动生成
	Currency  string
	DryRun    bool
	Now       func() time.Time
}

// Report 会话结果
type Report struct {
	SessionID string
	Reason    risk.StopReason
	Summary   strategies.Summary
	StartedAt time.Time
	EndedAt   time.Time
}

type Engine struct {
	cfg     Config
	guard   *risk.SessionGuard
	emit    events.Emitter
	limiter ratelimit.RateLimiter

	sessionID string
	running   bool
}

func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Strategy == nil {
		return nil, errors.New("engine: strategy is required")
	}
	if cfg.Casino == nil {
		return nil, errors.New("engine: casino is required")
	}
	if cfg.Recorder == nil {
		cfg.Recorder = recorder.NewNoopRecorder()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Retryable == nil {
		cfg.Retryable = func(error) bool { return true }
	}
	if cfg.SessionID == "" {
		cfg.SessionID = uuid.NewString()
	}
	emit := cfg.Emitter
	if emit == nil {
		emit = events.Nop
	}
	return &Engine{
		cfg:       cfg,
		guard:     risk.NewSessionGuard(cfg.Limits, cfg.MaxConsecutiveErrors),
		emit:      events.Multi(emit, metrics.Emitter()),
		limiter:   ratelimit.NewTokenBucket(1, cfg.BetInterval),
		sessionID: cfg.SessionID,
	}, nil
}

// SessionID 本次会话 ID
func (e *Engine) SessionID() string { return e.sessionID }

// Stop 请求停止（可在其它 goroutine 调用）；当前在途的一注仍会结算。
func (e *Engine) Stop() { e.guard.Halt(risk.StopManual) }

// Run 运行一个会话直到触发停止条件或 ctx 取消。
// 只有会话开始前的错误（余额查询失败、策略拒绝启动）会作为 error 返回。
func (e *Engine) Run(ctx context.Context) (*Report, error) {
	if e.running {
		return nil, errors.New("engine: already ran")
	}
	e.running = true

	balance, err := e.cfg.Casino.Balance(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "fetch starting balance")
	}
	startedAt := e.cfg.Now()
	e.guard.Start(balance, startedAt)

	for _, a := range e.cfg.Anomalies {
		e.emit.Emit(events.Event{
			Kind:    events.KindConfig,
			Message: a.String(),
			Fields: map[string]interface{}{
				"param": a.Param,
				"kind":  string(a.Kind),
			},
		})
	}

	seed := e.cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	strategy := e.cfg.Strategy
	if err := strategy.OnSessionStart(strategies.SessionContext{
		SessionID: e.sessionID,
		Balance:   dicemath.FormatMoney(balance),
		Limits:    e.cfg.Limits,
		Rand:      rand.New(rand.NewSource(seed)),
		Emitter:   e.emit,
	}); err != nil {
		strategy.OnSessionEnd("start_failed")
		return nil, errors.Wrapf(err, "start strategy %s", strategy.ID())
	}

	log.Infof("🚀 会话开始: session=%s strategy=%s balance=%s dryRun=%v",
		e.sessionID, strategy.ID(), dicemath.FormatMoney(balance), e.cfg.DryRun)
	metrics.Balance.Set(dicemath.FormatMoney(balance))

	wins := int64(0)
	final := e.loop(ctx, balance, &wins)

	reason := e.guard.Reason()
	if reason == risk.StopNone {
		reason = risk.StopManual
	}
	strategy.OnSessionEnd(string(reason))
	endedAt := e.cfg.Now()

	report := &Report{
		SessionID: e.sessionID,
		Reason:    reason,
		Summary:   strategy.Summary(),
		StartedAt: startedAt,
		EndedAt:   endedAt,
	}
	e.persist(report, balance, final, wins)

	log.Infof("🏁 会话结束: session=%s reason=%s bets=%d profit=%s",
		e.sessionID, reason, report.Summary.Bets, dicemath.FormatMoney(final.Sub(balance)))
	return report, nil
}

// loop 主循环，返回最后已知余额
func (e *Engine) loop(ctx context.Context, balance decimal.Decimal, wins *int64) decimal.Decimal {
	strategy := e.cfg.Strategy
	idle := 0
	seq := int64(0)

	for {
		if ctx.Err() != nil {
			e.guard.Halt(risk.StopCancelled)
			return balance
		}
		if err := e.guard.Allow(e.cfg.Now()); err != nil {
			return balance
		}

		spec := strategy.NextBet(strategies.Tick{
			Balance: dicemath.FormatMoney(balance),
			Bets:    e.guard.Bets(),
		})
		if spec == nil {
			if strategy.Summary().Halted {
				log.Warnf("策略已因会话回撤停止，结束会话")
				e.guard.Halt(risk.StopDrawdown)
				return balance
			}
			idle++
			metrics.Idle.Add(1)
			if e.cfg.MaxIdleTicks > 0 && idle >= e.cfg.MaxIdleTicks {
				log.Warnf("策略连续 %d 次不下注，结束会话", idle)
				e.guard.Halt(risk.StopStrategy)
				return balance
			}
			if !sleep(ctx, e.cfg.IdleInterval) {
				e.guard.Halt(risk.StopCancelled)
				return balance
			}
			continue
		}
		idle = 0

		if !e.guard.CheckStake(spec.Stake) {
			e.emit.Emit(events.Event{
				Kind:    events.KindFault,
				Phase:   spec.Phase,
				Message: fmt.Sprintf("stake %s exceeds max stake %s", dicemath.FormatMoney(spec.Stake), dicemath.FormatMoney(e.cfg.Limits.MaxStake)),
			})
			e.guard.Halt(risk.StopStrategy)
			return balance
		}

		if err := e.limiter.Wait(ctx); err != nil {
			e.guard.Halt(risk.StopCancelled)
			return balance
		}
		res, ok := e.place(ctx, *spec)
		if !ok {
			return balance
		}

		seq++
		metrics.Bets.Add(1)
		if res.Won {
			*wins++
			metrics.Wins.Add(1)
		}
		metrics.Balance.Set(dicemath.FormatMoney(res.Balance))

		stop := e.guard.Observe(res)
		strategy.OnBetResult(res)
		balance = res.Balance
		e.record(seq, *spec, res)

		if stop != risk.StopNone {
			log.Infof("⛔ 会话限制触发: %s", stop)
			return balance
		}
	}
}

// place 下注；可重试错误按 IdleInterval 重试同一注，直到成功、达到连续错误上限或被取消。
func (e *Engine) place(ctx context.Context, spec domain.BetSpec) (domain.BetResult, bool) {
	for {
		res, err := e.cfg.Casino.PlaceBet(ctx, spec)
		if err == nil {
			return res, true
		}
		if ctx.Err() != nil {
			e.guard.Halt(risk.StopCancelled)
			return domain.BetResult{}, false
		}
		e.guard.OnError()
		metrics.TransportErrors.Add(1)
		if !e.cfg.Retryable(err) {
			log.WithError(err).Error("❌ 下注失败（不可重试）")
			e.guard.Halt(risk.StopErrors)
			return domain.BetResult{}, false
		}
		log.WithError(err).Warn("⚠️ 下注失败，稍后重试")
		if err := e.guard.Allow(e.cfg.Now()); err != nil {
			return domain.BetResult{}, false
		}
		if !sleep(ctx, e.cfg.IdleInterval) {
			e.guard.Halt(risk.StopCancelled)
			return domain.BetResult{}, false
		}
	}
}

func (e *Engine) record(seq int64, spec domain.BetSpec, res domain.BetResult) {
	err := e.cfg.Recorder.RecordBet(&recorder.BetRecord{
		SessionID:   e.sessionID,
		Seq:         seq,
		BetID:       res.BetID,
		Strategy:    e.cfg.Strategy.ID(),
		Phase:       spec.Phase,
		Kind:        string(spec.Kind),
		Stake:       spec.Stake,
		Probability: res.Probability,
		High:        spec.High,
		RangeLow:    spec.RangeLow,
		RangeHigh:   spec.RangeHigh,
		Won:         res.Won,
		Profit:      res.Profit,
		Balance:     res.Balance,
		Roll:        res.Roll,
		At:          e.cfg.Now(),
	})
	if err != nil {
		log.WithError(err).Warn("记录下注失败")
	}
}

// persist 保存会话汇总；失败只记录日志，不影响会话结果。
func (e *Engine) persist(r *Report, start, end decimal.Decimal, wins int64) {
	if svc := e.cfg.Persistence; svc != nil {
		store := svc.NewStore(StatePrefix, r.Summary.Strategy, r.SessionID)
		if err := store.Save(r.Summary); err != nil {
			log.WithError(err).Warnf("保存会话汇总失败: %s", store.Key())
		} else {
			metrics.SummarySaves.Add(1)
		}
	}

	summaryJSON, err := json.Marshal(r.Summary)
	if err != nil {
		log.WithError(err).Warn("序列化会话汇总失败")
	}
	if err := e.cfg.Recorder.RecordSession(&recorder.SessionRecord{
		SessionID:    r.SessionID,
		Strategy:     e.cfg.Strategy.ID(),
		Currency:     e.cfg.Currency,
		DryRun:       e.cfg.DryRun,
		StartedAt:    r.StartedAt,
		EndedAt:      r.EndedAt,
		EndReason:    string(r.Reason),
		StartBalance: start,
		EndBalance:   end,
		Bets:         e.guard.Bets(),
		Wins:         wins,
		SummaryJSON:  string(summaryJSON),
	}); err != nil {
		log.WithError(err).Warn("记录会话失败")
	}
}

// sleep 可被 ctx 打断；返回 false 表示已取消。
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
