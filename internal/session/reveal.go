package session

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lumenlms/tutor-backend/internal/pkg/logger"
)

// RevealSink receives each partial as it is produced. final is true exactly
// once per reveal, with partial equal to the full text.
type RevealSink func(turnIndex int, partial string, final bool)

// Revealer paces the word-by-word presentation of assistant turns. One
// reveal is in flight at most; starting a new one cancels its predecessor,
// and cancellation drops every pending word timer so nothing leaks into a
// later turn. Turn indexes only move forward: a Start for an older turn
// completes that turn's text at once instead of preempting the newer one.
type Revealer struct {
	log       *logger.Logger
	baseDelay time.Duration
	sink      RevealSink

	mu      sync.Mutex
	current *reveal
	highest int
}

type reveal struct {
	turnIndex int
	full      string

	skip   chan struct{}
	cancel chan struct{}
	done   chan struct{}

	once     sync.Once // guards skip close
	stopOnce sync.Once // guards cancel close
	finished atomic.Bool
}

func NewRevealer(log *logger.Logger, baseDelay time.Duration, sink RevealSink) *Revealer {
	if baseDelay <= 0 {
		baseDelay = 120 * time.Millisecond
	}
	if sink == nil {
		sink = func(int, string, bool) {}
	}
	return &Revealer{
		log:       log.With("component", "Revealer"),
		baseDelay: baseDelay,
		sink:      sink,
		highest:   -1,
	}
}

// Start begins revealing text for turnIndex. A reveal already in flight is
// cancelled and its text completed immediately so no turn is left showing a
// stale prefix. A Start for a turn older than the latest one started never
// preempts it; the older text is completed immediately instead. estimated
// > 0 spreads the words across that duration; otherwise the base per-word
// delay applies.
func (r *Revealer) Start(turnIndex int, text string, estimated time.Duration) {
	rv := &reveal{
		turnIndex: turnIndex,
		full:      text,
		skip:      make(chan struct{}),
		cancel:    make(chan struct{}),
		done:      make(chan struct{}),
	}

	r.mu.Lock()
	if turnIndex < r.highest {
		r.mu.Unlock()
		r.sink(turnIndex, text, true)
		return
	}
	r.highest = turnIndex
	prev := r.current
	r.current = rv
	r.mu.Unlock()

	r.finish(prev)
	go r.run(rv, estimated)
}

// RevealAll short-circuits the in-flight reveal to the full text. It only
// applies to the turn currently streaming; a stale index is ignored.
func (r *Revealer) RevealAll(turnIndex int) bool {
	r.mu.Lock()
	rv := r.current
	r.mu.Unlock()
	if rv == nil || rv.turnIndex != turnIndex {
		return false
	}
	rv.once.Do(func() { close(rv.skip) })
	return true
}

// Stop tears down the in-flight reveal, if any, completing its text so the
// transcript never keeps a partial prefix. The turn-index watermark resets
// with it; the next session lifecycle starts over from its welcome turn.
func (r *Revealer) Stop() {
	r.mu.Lock()
	rv := r.current
	r.current = nil
	r.highest = -1
	r.mu.Unlock()
	r.finish(rv)
}

// finish cancels rv, waits for its goroutine to drain, and emits the final
// partial if the reveal never got there on its own.
func (r *Revealer) finish(rv *reveal) {
	if rv == nil {
		return
	}
	rv.stop()
	<-rv.done
	if rv.finished.CompareAndSwap(false, true) {
		r.sink(rv.turnIndex, rv.full, true)
	}
}

// Active reports the turn index currently streaming, or -1.
func (r *Revealer) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return -1
	}
	return r.current.turnIndex
}

// Wait blocks until the given reveal generation finishes; test hook.
func (r *Revealer) Wait() {
	r.mu.Lock()
	rv := r.current
	r.mu.Unlock()
	if rv != nil {
		<-rv.done
	}
}

func (rv *reveal) stop() {
	rv.stopOnce.Do(func() { close(rv.cancel) })
}

func (r *Revealer) run(rv *reveal, estimated time.Duration) {
	defer close(rv.done)
	defer func() {
		r.mu.Lock()
		if r.current == rv {
			r.current = nil
		}
		r.mu.Unlock()
	}()

	words := strings.Fields(rv.full)
	if len(words) == 0 {
		rv.finished.Store(true)
		r.sink(rv.turnIndex, rv.full, true)
		return
	}

	delay := r.baseDelay
	if estimated > 0 {
		delay = estimated / time.Duration(len(words))
	}

	var sb strings.Builder
	for i, w := range words {
		select {
		case <-rv.cancel:
			return
		case <-rv.skip:
			rv.finished.Store(true)
			r.sink(rv.turnIndex, rv.full, true)
			return
		default:
		}

		if i > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString(w)
		last := i == len(words)-1
		if last {
			rv.finished.Store(true)
		}
		r.sink(rv.turnIndex, sb.String(), last)
		if last {
			return
		}

		timer := time.NewTimer(pauseAfter(w, delay))
		select {
		case <-rv.cancel:
			timer.Stop()
			return
		case <-rv.skip:
			timer.Stop()
			rv.finished.Store(true)
			r.sink(rv.turnIndex, rv.full, true)
			return
		case <-timer.C:
		}
	}
}

// pauseAfter mimics speech cadence: longer rests follow sentence-ending
// punctuation, shorter ones follow clause breaks.
func pauseAfter(word string, base time.Duration) time.Duration {
	if word == "" {
		return base
	}
	switch word[len(word)-1] {
	case '.', '!', '?':
		return base * 3 / 2
	case ',', ';':
		return base * 6 / 5
	default:
		return base
	}
}
