// Package ports 运行器、传输层与模拟器之间共享的小接口，放在中立包里避免循环依赖。
package ports

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/sushiomsky/duckdice-bot-sub000/internal/domain"
)

// BetPlacer 下一注并同步返回结算结果。实现必须在返回前完成结算：运行器任何时刻最多只有一注在途。
type BetPlacer interface {
	PlaceBet(ctx context.Context, spec domain.BetSpec) (domain.BetResult, error)
}

// BalanceSource 查询当前余额（服务端为准）
type BalanceSource interface {
	Balance(ctx context.Context) (decimal.Decimal, error)
}

// Casino 同时具备下注与查余额能力
type Casino interface {
	BetPlacer
	BalanceSource
}
