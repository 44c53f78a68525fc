package capture

import (
	"fmt"
	"sync"
)

// Reporter receives coalesced progress messages during a walk. The MCP layer
// plugs a notification sink in here; tests plug in a recorder.
type Reporter interface {
	ReportProgress(percent int, message string)
}

// ReporterFunc adapts a function to the Reporter interface.
type ReporterFunc func(percent int, message string)

func (f ReporterFunc) ReportProgress(percent int, message string) { f(percent, message) }

// Progress tracks queued-vs-completed work items across one graph walk and
// forwards deduplicated percentage updates to a Reporter. The percentage is
// capped at 99 until Done is called so the final transition stays visually
// distinct and owned by the caller.
//
// One Progress instance serves one capture invocation; it is safe for the
// walk's concurrent goroutines to share.
type Progress struct {
	reporter Reporter

	mu        sync.Mutex
	total     int
	completed int
	lastPct   int
}

// NewProgress creates a counter reporting to r. A nil r discards updates.
func NewProgress(r Reporter) *Progress {
	return &Progress{reporter: r, lastPct: -1}
}

// AddItems records n newly-discovered work items.
func (p *Progress) AddItems(n int) {
	p.mu.Lock()
	p.total += n
	p.reportLocked()
	p.mu.Unlock()
}

// CompleteItem records one finished work item.
func (p *Progress) CompleteItem() {
	p.mu.Lock()
	p.completed++
	p.reportLocked()
	p.mu.Unlock()
}

// Done emits the terminal 100% update. The walk itself never reports 100.
func (p *Progress) Done() {
	p.mu.Lock()
	if p.lastPct != 100 {
		p.lastPct = 100
		if p.reporter != nil {
			p.reporter.ReportProgress(100, "capture complete")
		}
	}
	p.mu.Unlock()
}

func (p *Progress) reportLocked() {
	if p.total == 0 {
		return
	}
	pct := p.completed * 100 / p.total
	if pct > 99 {
		pct = 99
	}
	// Newly-added items lower the ratio; suppressing non-increases keeps the
	// emitted sequence monotonic as well as deduplicated.
	if pct <= p.lastPct {
		return
	}
	p.lastPct = pct
	if p.reporter != nil {
		p.reporter.ReportProgress(pct, fmt.Sprintf("resolved %d of %d values", p.completed, p.total))
	}
}
