package shutdown

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "shutdown")

// Handler 关闭处理函数
type Handler func(ctx context.Context) error

type hook struct {
	name string
	fn   Handler
}

// Manager 优雅关闭管理器：按注册的逆序依次执行（后打开的资源先关闭）。
type Manager struct {
	mu    sync.Mutex
	hooks []hook
	done  bool
}

func NewManager() *Manager {
	return &Manager{}
}

// OnShutdown 注册关闭回调
func (m *Manager) OnShutdown(name string, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, hook{name: name, fn: handler})
}

// Shutdown 执行所有回调（阻塞，幂等）。ctx 应带超时；超时后剩余回调不再执行。
// 返回失败的回调数量。
func (m *Manager) Shutdown(ctx context.Context) int {
	m.mu.Lock()
	if m.done {
		m.mu.Unlock()
		return 0
	}
	m.done = true
	hooks := m.hooks
	m.mu.Unlock()

	failed := 0
	for i := len(hooks) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			log.Warnf("关闭超时，跳过剩余 %d 个回调: %v", i+1, err)
			return failed + i + 1
		}
		h := hooks[i]
		if err := h.fn(ctx); err != nil {
			failed++
			log.Warnf("关闭 %s 失败: %v", h.name, err)
			continue
		}
		log.Debugf("已关闭 %s", h.name)
	}
	return failed
}
