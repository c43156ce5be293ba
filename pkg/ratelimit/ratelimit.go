package ratelimit

import (
	"context"
	"sync"
	"time"
)

// RateLimiter 速率限制器接口
type RateLimiter interface {
	Wait(ctx context.Context) error
	Allow() bool
}

// TokenBucket 令牌桶速率限制器：每 interval 补充一个令牌，最多积累 capacity 个。
type TokenBucket struct {
	capacity   float64       // 桶容量
	tokens     float64       // 当前令牌数
	interval   time.Duration // 每个令牌的补充间隔
	lastRefill time.Time     // 上次补充时间
	now        func() time.Time
	mu         sync.Mutex
}

// NewTokenBucket 创建新的令牌桶（初始为满）。interval <= 0 表示不限速。
func NewTokenBucket(capacity int, interval time.Duration) *TokenBucket {
	if capacity < 1 {
		capacity = 1
	}
	return &TokenBucket{
		capacity:   float64(capacity),
		tokens:     float64(capacity),
		interval:   interval,
		lastRefill: time.Now(),
		now:        time.Now,
	}
}

// refill 补充令牌（调用方持有锁）
func (tb *TokenBucket) refill() {
	now := tb.now()
	elapsed := now.Sub(tb.lastRefill)
	if elapsed <= 0 {
		return
	}
	tb.tokens += float64(elapsed) / float64(tb.interval)
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
	tb.lastRefill = now
}

// Allow 检查是否允许请求（允许时消耗一个令牌）
func (tb *TokenBucket) Allow() bool {
	_, ok := tb.reserve()
	return ok
}

// reserve 尝试取令牌；失败时返回需要等待的时间
func (tb *TokenBucket) reserve() (time.Duration, bool) {
	if tb.interval <= 0 {
		return 0, true
	}
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()
	if tb.tokens >= 1 {
		tb.tokens--
		return 0, true
	}
	missing := 1 - tb.tokens
	return time.Duration(missing * float64(tb.interval)), false
}

// Wait 等待直到允许请求或 ctx 取消
func (tb *TokenBucket) Wait(ctx context.Context) error {
	for {
		wait, ok := tb.reserve()
		if ok {
			return nil
		}
		if wait < time.Millisecond {
			wait = time.Millisecond
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}
