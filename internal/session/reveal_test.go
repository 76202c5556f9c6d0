package session

import (
	"strings"
	"sync"
	"testing"
	"time"
)

type revealCollector struct {
	mu       sync.Mutex
	partials []string
	finals   []string
	turns    []int
}

func (rc *revealCollector) sink(turnIndex int, partial string, final bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.turns = append(rc.turns, turnIndex)
	if final {
		rc.finals = append(rc.finals, partial)
	} else {
		rc.partials = append(rc.partials, partial)
	}
}

func (rc *revealCollector) snapshot() (partials, finals []string) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return append([]string(nil), rc.partials...), append([]string(nil), rc.finals...)
}

func TestRevealerEmitsOnePartialPerWord(t *testing.T) {
	rc := &revealCollector{}
	r := NewRevealer(mustTestLogger(t), time.Millisecond, rc.sink)

	text := "one two three four"
	r.Start(3, text, 0)
	r.Wait()

	partials, finals := rc.snapshot()
	words := strings.Fields(text)
	if len(partials) != len(words)-1 {
		t.Fatalf("got %d non-final partials, want %d", len(partials), len(words)-1)
	}
	if len(finals) != 1 {
		t.Fatalf("got %d finals, want exactly 1", len(finals))
	}
	if finals[0] != text {
		t.Fatalf("final partial = %q, want full text %q", finals[0], text)
	}

	// Each partial extends the previous one by a single word.
	for i, p := range partials {
		want := strings.Join(words[:i+1], " ")
		if p != want {
			t.Fatalf("partial %d = %q, want %q", i, p, want)
		}
	}
}

func TestRevealerRevealAll(t *testing.T) {
	rc := &revealCollector{}
	r := NewRevealer(mustTestLogger(t), time.Hour, rc.sink) // would take forever unassisted

	text := "alpha beta gamma delta epsilon"
	r.Start(0, text, 0)

	if !r.RevealAll(0) {
		t.Fatalf("RevealAll returned false for the streaming turn")
	}
	r.Wait()

	_, finals := rc.snapshot()
	if len(finals) != 1 || finals[0] != text {
		t.Fatalf("finals = %v, want one final equal to full text", finals)
	}

	// A stale turn index is ignored.
	if r.RevealAll(7) {
		t.Fatalf("RevealAll accepted a stale turn index")
	}
}

func TestRevealerNewStartCancelsPrevious(t *testing.T) {
	rc := &revealCollector{}
	r := NewRevealer(mustTestLogger(t), 50*time.Millisecond, rc.sink)

	first := "slow turn that gets replaced midway"
	r.Start(0, first, 0)
	time.Sleep(5 * time.Millisecond)
	r.Start(1, "fast one", 0)
	r.Wait()

	// The superseded reveal completes its text immediately so turn 0 is
	// never left showing a prefix, then the new reveal runs to its end.
	_, finals := rc.snapshot()
	if len(finals) != 2 {
		t.Fatalf("got %d finals, want 2 (superseded then replacement)", len(finals))
	}
	if finals[0] != first {
		t.Fatalf("first final = %q, want the superseded turn's full text", finals[0])
	}
	if finals[1] != "fast one" {
		t.Fatalf("second final = %q, want the replacing turn", finals[1])
	}
	if r.Active() != -1 {
		t.Fatalf("Active() = %d after completion, want -1", r.Active())
	}
}

func TestRevealerStaleStartCompletesImmediately(t *testing.T) {
	rc := &revealCollector{}
	r := NewRevealer(mustTestLogger(t), 50*time.Millisecond, rc.sink)

	current := "the newer turn keeps streaming to its end"
	r.Start(2, current, 0)
	time.Sleep(5 * time.Millisecond)

	// An older turn arriving late (a straggling goroutine) must not
	// preempt the newer reveal; its text completes at once instead.
	stale := "an older turn arriving late"
	r.Start(0, stale, 0)

	if r.Active() != 2 {
		t.Fatalf("Active() = %d after stale Start, want the newer turn 2", r.Active())
	}
	_, finals := rc.snapshot()
	if len(finals) != 1 || finals[0] != stale {
		t.Fatalf("finals after stale Start = %v, want just the stale text", finals)
	}

	r.RevealAll(2)
	r.Wait()
	_, finals = rc.snapshot()
	if len(finals) != 2 || finals[1] != current {
		t.Fatalf("finals = %v, want the newer turn to finish last", finals)
	}
}

func TestRevealerStopResetsTurnWatermark(t *testing.T) {
	rc := &revealCollector{}
	r := NewRevealer(mustTestLogger(t), time.Millisecond, rc.sink)

	r.Start(5, "last turn of a finished session", 0)
	r.Wait()
	r.Stop()

	// A fresh session starts over at its welcome turn.
	welcome := "welcome back to the course"
	r.Start(0, welcome, 0)
	r.Wait()

	partials, finals := rc.snapshot()
	if len(finals) != 2 || finals[1] != welcome {
		t.Fatalf("finals = %v, want the fresh welcome revealed after Stop", finals)
	}
	wantPartials := len(strings.Fields("last turn of a finished session")) - 1 +
		len(strings.Fields(welcome)) - 1
	if len(partials) != wantPartials {
		t.Fatalf("got %d partials, want %d (both turns streamed word by word)", len(partials), wantPartials)
	}
}

func TestRevealerStop(t *testing.T) {
	rc := &revealCollector{}
	r := NewRevealer(mustTestLogger(t), 50*time.Millisecond, rc.sink)

	text := "this reveal is torn down early"
	r.Start(2, text, 0)
	time.Sleep(5 * time.Millisecond)
	r.Stop()

	// Stop completes the text instead of freezing a prefix.
	_, finals := rc.snapshot()
	if len(finals) != 1 || finals[0] != text {
		t.Fatalf("finals after Stop = %v, want the completed text", finals)
	}
	if r.Active() != -1 {
		t.Fatalf("Active() = %d after Stop, want -1", r.Active())
	}

	time.Sleep(100 * time.Millisecond)
	if _, finals := rc.snapshot(); len(finals) != 1 {
		t.Fatalf("stopped reveal emitted again after teardown: %v", finals)
	}
}

func TestRevealerEmptyText(t *testing.T) {
	rc := &revealCollector{}
	r := NewRevealer(mustTestLogger(t), time.Millisecond, rc.sink)

	r.Start(0, "", 0)
	r.Wait()

	partials, finals := rc.snapshot()
	if len(partials) != 0 || len(finals) != 1 {
		t.Fatalf("empty text: partials=%v finals=%v, want single empty final", partials, finals)
	}
}

func TestRevealerDurationPacing(t *testing.T) {
	rc := &revealCollector{}
	r := NewRevealer(mustTestLogger(t), time.Hour, rc.sink)

	// Five words spread across 50ms beats the base delay by orders of
	// magnitude; finishing quickly proves the estimate drives pacing.
	start := time.Now()
	r.Start(0, "a b c d e", 50*time.Millisecond)
	r.Wait()
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("reveal took %v, estimated duration was ignored", elapsed)
	}

	_, finals := rc.snapshot()
	if len(finals) != 1 {
		t.Fatalf("got %d finals, want 1", len(finals))
	}
}
