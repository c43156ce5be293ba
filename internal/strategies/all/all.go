// Package all 汇总所有内置策略。
// 入口只需调用 NewRegistry，新增策略时在 Register 中追加一行。
package all

import (
	"github.com/sushiomsky/duckdice-bot-sub000/internal/strategies"
	"github.com/sushiomsky/duckdice-bot-sub000/internal/strategies/flat"
	"github.com/sushiomsky/duckdice-bot-sub000/internal/strategies/hunter"
	"github.com/sushiomsky/duckdice-bot-sub000/internal/strategies/strike"
	"github.com/sushiomsky/duckdice-bot-sub000/pkg/bbgo"
)

// Register 把内置策略注册到 r
func Register(r *strategies.Registry) error {
	for _, def := range []strategies.Definition{
		hunter.Definition(),
		strike.Definition(),
		flat.Definition(),
	} {
		if err := r.Register(def); err != nil {
			return err
		}
	}
	return nil
}

// NewRegistry 构建包含所有内置策略的注册表
func NewRegistry() (*strategies.Registry, error) {
	r := bbgo.NewRegistry[strategies.Strategy]()
	if err := Register(r); err != nil {
		return nil, err
	}
	return r, nil
}
