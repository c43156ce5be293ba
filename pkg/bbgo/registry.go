package bbgo

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrStrategyNotFound   = errors.New("strategy not found")
	ErrStrategyRegistered = errors.New("strategy already registered")
)

// Definition 一个可注册的策略：ID、说明、参数模式与构造函数。
// New 收到的参数已经按 Schema 解析（缺省值、类型回退、范围截断都已完成）。
type Definition[S any] struct {
	ID          string
	Description string
	Schema      []ParamSpec
	New         func(params map[string]interface{}) (S, error)
}

// Registry 显式的策略注册表。
// 启动时构建一次并按引用传递，不使用包级全局变量与 init() 注册。
type Registry[S any] struct {
	mu   sync.RWMutex
	defs map[string]Definition[S]
}

func NewRegistry[S any]() *Registry[S] {
	return &Registry[S]{defs: make(map[string]Definition[S])}
}

// Register 注册策略；ID 重复或模式非法时返回错误。
func (r *Registry[S]) Register(def Definition[S]) error {
	if def.ID == "" || def.New == nil {
		return fmt.Errorf("bbgo: strategy definition requires id and constructor")
	}
	if err := ValidateSchema(def.Schema); err != nil {
		return fmt.Errorf("bbgo: strategy %s: %w", def.ID, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.defs[def.ID]; exists {
		return fmt.Errorf("%w: %s", ErrStrategyRegistered, def.ID)
	}
	r.defs[def.ID] = def
	return nil
}

// MustRegister 启动阶段使用：注册失败即 panic。
func (r *Registry[S]) MustRegister(def Definition[S]) {
	if err := r.Register(def); err != nil {
		panic(err)
	}
}

func (r *Registry[S]) Get(id string) (Definition[S], error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.defs[id]
	if !ok {
		return Definition[S]{}, fmt.Errorf("%w: %s", ErrStrategyNotFound, id)
	}
	return def, nil
}

// IDs 已注册策略 ID（排序后）
func (r *Registry[S]) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.defs))
	for id := range r.defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Build 解析原始参数并构造策略实例。参数异常只通过返回值报告，不会导致失败；
// 只有未注册的 ID 或构造函数本身的错误才返回 error。
func (r *Registry[S]) Build(id string, raw map[string]interface{}) (S, []Anomaly, error) {
	var zero S
	def, err := r.Get(id)
	if err != nil {
		return zero, nil, err
	}
	params, anomalies := ResolveParams(def.Schema, raw)
	s, err := def.New(params)
	if err != nil {
		return zero, anomalies, fmt.Errorf("bbgo: build strategy %s: %w", id, err)
	}
	return s, anomalies, nil
}
