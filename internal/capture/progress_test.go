package capture

import (
	"testing"
)

// recorder collects reported percentages in order.
type recorder struct {
	percents []int
	messages []string
}

func (r *recorder) ReportProgress(percent int, message string) {
	r.percents = append(r.percents, percent)
	r.messages = append(r.messages, message)
}

// TestProgressCoalesced verifies the emitted percentage sequence for a fixed
// batch of work: strictly increasing, deduplicated, capped at 99.
func TestProgressCoalesced(t *testing.T) {
	rec := &recorder{}
	p := NewProgress(rec)

	p.AddItems(4)
	for i := 0; i < 4; i++ {
		p.CompleteItem()
	}

	want := []int{0, 25, 50, 75, 99}
	if len(rec.percents) != len(want) {
		t.Fatalf("expected %v, got %v", want, rec.percents)
	}
	for i := range want {
		if rec.percents[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, rec.percents)
		}
	}
}

// TestProgressNeverDecreases verifies that discovering new work mid-walk,
// which lowers the completion ratio, never produces a lower report.
func TestProgressNeverDecreases(t *testing.T) {
	rec := &recorder{}
	p := NewProgress(rec)

	p.AddItems(2)
	p.CompleteItem() // 1/2 = 50
	p.AddItems(2)    // 1/4 = 25, must be suppressed
	p.CompleteItem() // 2/4 = 50, duplicate, suppressed
	p.CompleteItem() // 3/4 = 75
	p.CompleteItem() // 4/4 -> capped 99

	last := -1
	for _, pct := range rec.percents {
		if pct <= last {
			t.Fatalf("non-increasing report %d after %d in %v", pct, last, rec.percents)
		}
		last = pct
	}
	if last != 99 {
		t.Errorf("expected final in-flight report 99, got %d", last)
	}
}

// TestProgressCapUntilDone verifies that 100 is only ever emitted by Done,
// and only once.
func TestProgressCapUntilDone(t *testing.T) {
	rec := &recorder{}
	p := NewProgress(rec)

	p.AddItems(1)
	p.CompleteItem()
	for _, pct := range rec.percents {
		if pct >= 100 {
			t.Errorf("walk reported %d before Done", pct)
		}
	}

	p.Done()
	p.Done()

	count := 0
	for _, pct := range rec.percents {
		if pct == 100 {
			count++
		}
	}
	if count != 1 {
		t.Errorf("expected exactly one 100%% report, got %d in %v", count, rec.percents)
	}
}

// TestProgressNilReporter verifies the counter tolerates having nowhere to
// report.
func TestProgressNilReporter(t *testing.T) {
	p := NewProgress(nil)
	p.AddItems(3)
	p.CompleteItem()
	p.Done()
}
