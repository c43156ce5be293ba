package metrics

import (
	"expvar"

	"github.com/sushiomsky/duckdice-bot-sub000/internal/events"
)

var (
	Bets            = expvar.NewInt("bets")
	Wins            = expvar.NewInt("wins")
	TransportErrors = expvar.NewInt("transport_errors")
	Idle            = expvar.NewInt("idle_ticks")
	CyclesStarted   = expvar.NewInt("cycles_started")
	CyclesHit       = expvar.NewInt("cycles_hit")
	CyclesAborted   = expvar.NewInt("cycles_aborted")
	Faults          = expvar.NewInt("faults")
	GuardTrips      = expvar.NewMap("guard_trips")
	Balance         = expvar.NewString("balance")
	Phase           = expvar.NewString("phase")
	SummarySaves    = expvar.NewInt("summary_saves")
)

// Emitter 把策略事件折算成计数器
func Emitter() events.Emitter {
	return events.EmitterFunc(func(e events.Event) {
		switch e.Kind {
		case events.KindTransition:
			Phase.Set(e.Phase)
		case events.KindCycle:
			switch e.Message {
			case "cycle started":
				CyclesStarted.Add(1)
			case "cycle hit":
				CyclesHit.Add(1)
			case "cycle aborted":
				CyclesAborted.Add(1)
			}
		case events.KindGuard:
			GuardTrips.Add(e.Message, 1)
		case events.KindFault:
			Faults.Add(1)
		}
	})
}
