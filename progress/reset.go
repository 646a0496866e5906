package progress

import (
	"time"

	"github.com/teranos/trellis/graph"
)

// DateLayout is the format of Settings.ProgressReset.LastProgressReset.
const DateLayout = "2006-01-02"

// ResetPolicy decides when a graph's task progress is cleared. The zero
// value uses UTC.
type ResetPolicy struct {
	Location *time.Location
}

// NewResetPolicy returns a policy evaluated in loc.
func NewResetPolicy(loc *time.Location) ResetPolicy {
	return ResetPolicy{Location: loc}
}

func (p ResetPolicy) location() *time.Location {
	if p.Location == nil {
		return time.UTC
	}
	return p.Location
}

// Due reports whether settings call for a reset at now: resets are enabled
// and the last reset does not fall in the current day, ISO week or month.
// A missing or unparseable last reset date is always due.
func (p ResetPolicy) Due(settings graph.Settings, now time.Time) bool {
	reset := settings.ProgressReset
	if !reset.Enabled {
		return false
	}
	if reset.LastProgressReset == "" {
		return true
	}
	loc := p.location()
	last, err := time.ParseInLocation(DateLayout, reset.LastProgressReset, loc)
	if err != nil {
		return true
	}
	return !samePeriod(reset.Frequency, last, now.In(loc))
}

func samePeriod(freq graph.ResetFrequency, a, b time.Time) bool {
	switch freq {
	case graph.ResetWeekly:
		ay, aw := a.ISOWeek()
		by, bw := b.ISOWeek()
		return ay == by && aw == bw
	case graph.ResetMonthly:
		return a.Year() == b.Year() && a.Month() == b.Month()
	default:
		return a.Format(DateLayout) == b.Format(DateLayout)
	}
}

// Apply clears isDone and currentCompletions on every task node, refreshes
// every cached progress value and stamps today's date. It returns the
// number of task nodes cleared.
func (p ResetPolicy) Apply(g *graph.Graph, now time.Time) int {
	cleared := 0
	graph.Walk(g.Nodes, func(n, _ *graph.Node, _ int) bool {
		if n.IsTask() {
			n.IsDone = false
			n.CurrentCompletions = 0
			cleared++
		}
		return true
	})
	RecalculateAll(g, graph.BuildIndex(g))
	g.Settings.ProgressReset.LastProgressReset = now.In(p.location()).Format(DateLayout)
	return cleared
}

// ApplyIfDue runs Apply when Due and reports whether it did.
func (p ResetPolicy) ApplyIfDue(g *graph.Graph, now time.Time) bool {
	if !p.Due(g.Settings, now) {
		return false
	}
	p.Apply(g, now)
	return true
}
