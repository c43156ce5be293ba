package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sushiomsky/duckdice-bot-sub000/internal/execution"
	"github.com/sushiomsky/duckdice-bot-sub000/internal/risk"
	"github.com/sushiomsky/duckdice-bot-sub000/internal/strategies"
	"github.com/sushiomsky/duckdice-bot-sub000/internal/strategies/all"
	"github.com/sushiomsky/duckdice-bot-sub000/pkg/bbgo"
)

func TestPrintStrategies(t *testing.T) {
	registry, err := all.NewRegistry()
	require.NoError(t, err)

	var buf bytes.Buffer
	printStrategies(&buf, registry)
	out := buf.String()
	for _, want := range []string{"hunter", "strike", "flat", "probeBets", "attackProbMin", "high|low|alternate|random"} {
		assert.Contains(t, out, want)
	}
}

func TestParamRange(t *testing.T) {
	assert.Equal(t, "", paramRange(bbgo.ParamSpec{Name: "x"}))
	assert.Equal(t, "[0, 1]", paramRange(bbgo.ParamSpec{Min: bbgo.Bound(0), Max: bbgo.Bound(1)}))
	assert.Equal(t, "[-inf, 5]", paramRange(bbgo.ParamSpec{Max: bbgo.Bound(5)}))
	assert.Equal(t, "a|b", paramRange(bbgo.ParamSpec{Choices: []string{"a", "b"}}))
}

func TestPrintSummary(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	var buf bytes.Buffer
	printSummary(&buf, execution.Report{
		SessionID: "s-1",
		Reason:    risk.StopMaxBets,
		StartedAt: start,
		EndedAt:   start.Add(90 * time.Second),
		Summary: strategies.Summary{
			Strategy:     "hunter",
			Bets:         10,
			StartBalance: decimal.NewFromInt(1),
			Balance:      decimal.RequireFromString("1.5"),
			Peak:         decimal.RequireFromString("1.5"),
			Profit:       decimal.RequireFromString("0.5"),
			GuardTrips:   map[string]int64{"cycle_loss_cap": 2},
		},
	})
	out := buf.String()
	assert.Contains(t, out, "session s-1")
	assert.Contains(t, out, "1.50000000")
	assert.Contains(t, out, "guard cycle_loss_cap")
	assert.Contains(t, out, "1m30s")
}
