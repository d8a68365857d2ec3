package internal

import (
	"sync/atomic"
	"time"

	"github.com/docker/go-metrics"
)

var (
	renderTimer        metrics.Timer
	commitTimer        metrics.Timer
	rendersCounter     metrics.Counter
	commitsCounter     metrics.Counter
	interruptedCounter metrics.Counter
	yieldsCounter      metrics.Counter
	recoveredCounter   metrics.Counter
)

func init() {
	ns := metrics.NewNamespace("loom", "reconciler", nil)
	renderTimer = ns.NewTimer("render_duration", "The number of seconds spent in the render phase per slice")
	commitTimer = ns.NewTimer("commit_duration", "The number of seconds spent committing a finished tree")
	rendersCounter = ns.NewCounter("renders", "The number of render passes started")
	commitsCounter = ns.NewCounter("commits", "The number of trees committed")
	interruptedCounter = ns.NewCounter("interrupted_renders", "The number of render passes discarded for more urgent work")
	yieldsCounter = ns.NewCounter("yields", "The number of times a render yielded back to the scheduler")
	recoveredCounter = ns.NewCounter("recovered_errors", "The number of render errors routed to a boundary")
	metrics.Register(ns)
}

// Profile is a snapshot of a root's counters.
type Profile struct {
	Renders         int64
	Commits         int64
	Interruptions   int64
	Yields          int64
	RecoveredErrors int64
}

type profile struct {
	enabled bool

	renders         atomic.Int64
	commits         atomic.Int64
	interruptions   atomic.Int64
	yields          atomic.Int64
	recoveredErrors atomic.Int64
}

func (p *profile) snapshot() Profile {
	return Profile{
		Renders:         p.renders.Load(),
		Commits:         p.commits.Load(),
		Interruptions:   p.interruptions.Load(),
		Yields:          p.yields.Load(),
		RecoveredErrors: p.recoveredErrors.Load(),
	}
}

func (p *profile) render() {
	p.renders.Add(1)
	if p.enabled {
		rendersCounter.Inc()
	}
}

func (p *profile) commit(start time.Time) {
	p.commits.Add(1)
	if p.enabled {
		commitsCounter.Inc()
		commitTimer.UpdateSince(start)
	}
}

func (p *profile) renderSlice(start time.Time) {
	if p.enabled {
		renderTimer.UpdateSince(start)
	}
}

func (p *profile) interrupt() {
	p.interruptions.Add(1)
	if p.enabled {
		interruptedCounter.Inc()
	}
}

func (p *profile) yield() {
	p.yields.Add(1)
	if p.enabled {
		yieldsCounter.Inc()
	}
}

func (p *profile) recovered() {
	p.recoveredErrors.Add(1)
	if p.enabled {
		recoveredCounter.Inc()
	}
}
