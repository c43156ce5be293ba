// Package recorder 下注历史记录（供离线分析）。
package recorder

import (
	"time"

	"github.com/shopspring/decimal"
)

// BetRecord 一注的完整记录
type BetRecord struct {
	SessionID   string
	Seq         int64 // 会话内序号，从 1 开始
	BetID       string
	Strategy    string
	Phase       string
	Kind        string
	Stake       decimal.Decimal
	Probability decimal.Decimal
	High        bool
	RangeLow    int
	RangeHigh   int
	Won         bool
	Profit      decimal.Decimal
	Balance     decimal.Decimal
	Roll        float64
	At          time.Time
}

// SessionRecord 会话汇总
type SessionRecord struct {
	SessionID    string
	Strategy     string
	Currency     string
	DryRun       bool
	StartedAt    time.Time
	EndedAt      time.Time
	EndReason    string
	StartBalance decimal.Decimal
	EndBalance   decimal.Decimal
	Bets         int64
	Wins         int64
	SummaryJSON  string // strategies.Summary 的 JSON
}

// Recorder persists historical data for analysis.
type Recorder interface {
	RecordBet(rec *BetRecord) error
	RecordSession(rec *SessionRecord) error
	Close() error
}
