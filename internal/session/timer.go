package session

import (
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

type TimerPhase int

const (
	TimerIdle TimerPhase = iota
	TimerRunning
	TimerExpired
)

// Countdown enforces an optional wall-clock session limit. Idle until the
// first user turn is sent; once Running it decrements each second and fires
// the expiry callback exactly once at zero.
type Countdown struct {
	mu        sync.Mutex
	phase     TimerPhase
	remaining int
	fired     bool
	stop      chan struct{}
	onExpire  func()
	tick      time.Duration
}

func NewCountdown(seconds int, onExpire func()) *Countdown {
	return &Countdown{
		phase:     TimerIdle,
		remaining: seconds,
		onExpire:  onExpire,
		tick:      time.Second,
	}
}

// SetTick shrinks the tick interval; test hook.
func (c *Countdown) SetTick(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d > 0 {
		c.tick = d
	}
}

// Start moves Idle to Running. Calling it again, or with no time budget, is
// a no-op.
func (c *Countdown) Start() {
	c.mu.Lock()
	if c.phase != TimerIdle || c.remaining <= 0 {
		c.mu.Unlock()
		return
	}
	c.phase = TimerRunning
	c.stop = make(chan struct{})
	stop := c.stop
	tick := c.tick
	c.mu.Unlock()

	go func() {
		ticker := time.NewTicker(tick)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if c.decrement() {
					return
				}
			}
		}
	}()
}

func (c *Countdown) decrement() (expired bool) {
	c.mu.Lock()
	if c.phase != TimerRunning {
		c.mu.Unlock()
		return true
	}
	c.remaining--
	if c.remaining > 0 {
		c.mu.Unlock()
		return false
	}
	c.remaining = 0
	c.phase = TimerExpired
	fire := !c.fired
	c.fired = true
	cb := c.onExpire
	c.mu.Unlock()

	if fire && cb != nil {
		cb()
	}
	return true
}

// Halt stops the countdown without firing the callback.
func (c *Countdown) Halt() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase == TimerRunning && c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
	if c.phase != TimerExpired {
		c.phase = TimerIdle
	}
}

func (c *Countdown) Phase() TimerPhase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

var durationDescriptorRe = regexp.MustCompile(`(?i)^\s*(\d+)\s*(hours?|hrs?|h|minutes?|mins?|m|seconds?|secs?|s)?\s*$`)

// ParseDurationDescriptor turns a human-readable course duration ("30
// minutes", "1 hour", "No time limit") into seconds. ok is false for
// no-limit descriptors and anything unparseable; such sessions never start
// a countdown.
func ParseDurationDescriptor(s string) (seconds int, ok bool) {
	t := strings.ToLower(strings.TrimSpace(s))
	if t == "" || strings.Contains(t, "no limit") || strings.Contains(t, "no time limit") ||
		strings.Contains(t, "unlimited") || t == "none" {
		return 0, false
	}
	m := durationDescriptorRe.FindStringSubmatch(t)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return 0, false
	}
	unit := m[2]
	switch {
	case strings.HasPrefix(unit, "h"):
		return n * 3600, true
	case unit == "" || strings.HasPrefix(unit, "m"):
		// Bare numbers read as minutes.
		return n * 60, true
	default:
		return n, true
	}
}
