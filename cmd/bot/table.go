package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/sushiomsky/duckdice-bot-sub000/internal/execution"
	"github.com/sushiomsky/duckdice-bot-sub000/internal/strategies"
	"github.com/sushiomsky/duckdice-bot-sub000/pkg/bbgo"
	"github.com/sushiomsky/duckdice-bot-sub000/pkg/dicemath"
)

// printStrategies 每个策略一张参数表：名称、类型、默认值、范围、说明
func printStrategies(w io.Writer, registry *strategies.Registry) {
	for _, id := range registry.IDs() {
		def, err := registry.Get(id)
		if err != nil {
			continue
		}
		t := table.NewWriter()
		t.SetOutputMirror(w)
		t.SetTitle(fmt.Sprintf("%s: %s", def.ID, def.Description))
		t.AppendHeader(table.Row{"param", "type", "default", "range", "description"})
		for _, p := range def.Schema {
			t.AppendRow(table.Row{p.Name, p.Type, p.Default, paramRange(p), p.Description})
		}
		t.SetStyle(table.StyleLight)
		t.Render()
		fmt.Fprintln(w)
	}
}

func paramRange(p bbgo.ParamSpec) string {
	if len(p.Choices) > 0 {
		return strings.Join(p.Choices, "|")
	}
	if p.Min == nil && p.Max == nil {
		return ""
	}
	lo, hi := "-inf", "+inf"
	if p.Min != nil {
		lo = fmt.Sprint(*p.Min)
	}
	if p.Max != nil {
		hi = fmt.Sprint(*p.Max)
	}
	return fmt.Sprintf("[%s, %s]", lo, hi)
}

// printSummary 会话结束后的汇总表
func printSummary(w io.Writer, report execution.Report) {
	sum := report.Summary
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("session " + report.SessionID)
	t.AppendRows([]table.Row{
		{"strategy", sum.Strategy},
		{"end reason", string(report.Reason)},
		{"elapsed", report.EndedAt.Sub(report.StartedAt).Round(time.Second)},
		{"bets", sum.Bets},
		{"wins", sum.Wins},
		{"cycles attempted", sum.CyclesAttempted},
		{"cycles hit", sum.CyclesHit},
		{"cycles aborted", sum.CyclesAborted},
		{"final phase", sum.FinalPhase},
		{"start balance", dicemath.FormatMoney(sum.StartBalance)},
		{"balance", dicemath.FormatMoney(sum.Balance)},
		{"peak", dicemath.FormatMoney(sum.Peak)},
		{"profit", dicemath.FormatMoney(sum.Profit)},
	})
	trips := make([]string, 0, len(sum.GuardTrips))
	for k := range sum.GuardTrips {
		trips = append(trips, k)
	}
	sort.Strings(trips)
	for _, k := range trips {
		t.AppendRow(table.Row{"guard " + k, sum.GuardTrips[k]})
	}
	if sum.Faults > 0 {
		t.AppendRow(table.Row{"faults", sum.Faults})
	}
	t.SetStyle(table.StyleLight)
	t.Render()
}
