package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lumenlms/tutor-backend/internal/data/repos"
	types "github.com/lumenlms/tutor-backend/internal/domain"
	errs "github.com/lumenlms/tutor-backend/internal/pkg/errors"
	"github.com/lumenlms/tutor-backend/internal/pkg/logger"
)

type Phase string

const (
	PhaseNew     Phase = "new"
	PhaseActive  Phase = "active"
	PhaseEnded   Phase = "ended"
	PhaseExpired Phase = "expired"
)

// Deps bundles the collaborators a Controller orchestrates. All remote
// dependencies arrive as interfaces so tests can substitute them.
type Deps struct {
	Store      SnapshotStore
	Pipeline   *Pipeline
	TTS        SynthesisClient
	Player     Player
	Capability AudioCapability
	STT        Transcriber
	Mic        MicrophoneSource
	Progress   repos.ProgressRepo
	Notifier   Notifier
}

// StartOptions carries the course metadata a session starts against.
type StartOptions struct {
	CourseTitle string
	// Duration is the human-readable course length ("30 minutes", "No
	// time limit"). It decides whether a countdown exists at all.
	Duration string
}

// SendResult is what a completed turn hands back to the HTTP layer. The
// assistant text streams separately over the realtime channel; the full
// text is returned here for non-streaming clients.
type SendResult struct {
	TurnIndex       int    `json:"turn_index"`
	Reply           string `json:"reply"`
	ProgressPercent int    `json:"progress_percent"`
}

// State is the read-model of one session, safe to serialize.
type State struct {
	Phase            Phase                    `json:"phase"`
	CourseID         uuid.UUID                `json:"course_id"`
	CourseTitle      string                   `json:"course_title"`
	Transcript       []types.ConversationTurn `json:"transcript"`
	ProgressPercent  int                      `json:"progress_percent"`
	Interactions     int                      `json:"interactions"`
	TimerPhase       TimerPhase               `json:"timer_phase"`
	RemainingSeconds int                      `json:"remaining_seconds"`
	Muted            bool                     `json:"muted"`
	PendingAudio     bool                     `json:"pending_audio"`
	Capturing        bool                     `json:"capturing"`
	StreamingTurn    int                      `json:"streaming_turn"`
}

// Controller owns one learner's tutoring session for one course: the
// transcript, the countdown, progress, and the audio pipeline. All state
// transitions go through its mutex; at most one turn is in flight, a
// second submission while one is processing fails with ErrSessionBusy.
type Controller struct {
	log      *logger.Logger
	cfg      Config
	userID   uuid.UUID
	courseID uuid.UUID

	store    SnapshotStore
	pipeline *Pipeline
	revealer *Revealer
	speaker  *Speaker
	capture  *Capture
	tracker  *Tracker
	notify   Notifier

	mu           sync.Mutex
	phase        Phase
	busy         bool
	courseTitle  string
	transcript   []types.ConversationTurn
	partials     map[int]string
	interactions int
	timer        *Countdown
	lastActive   time.Time
}

func NewController(log *logger.Logger, cfg Config, userID, courseID uuid.UUID, deps Deps) *Controller {
	notify := deps.Notifier
	if notify == nil {
		notify = NopNotifier{}
	}
	c := &Controller{
		log:        log.With("component", "Controller", "user_id", userID, "course_id", courseID),
		cfg:        cfg,
		userID:     userID,
		courseID:   courseID,
		store:      deps.Store,
		pipeline:   deps.Pipeline,
		notify:     notify,
		phase:      PhaseNew,
		partials:   map[int]string{},
		lastActive: time.Now(),
	}
	c.revealer = NewRevealer(log, cfg.BaseRevealDelay, c.onReveal)
	c.speaker = NewSpeaker(log, deps.TTS, deps.Player, deps.Capability, c.revealer, cfg.Voice)
	c.capture = NewCapture(log, deps.STT, deps.Mic)
	c.tracker = NewTracker(log, deps.Progress, notify, userID, courseID)
	return c
}

// Start activates the session. The snapshot store is consulted exactly
// once, here: a stored snapshot resumes the prior transcript and progress,
// anything else begins fresh with the welcome turn. Idempotent once active.
func (c *Controller) Start(ctx context.Context, opts StartOptions) (State, error) {
	c.mu.Lock()
	if c.phase == PhaseActive {
		c.mu.Unlock()
		return c.State(), nil
	}
	if c.phase != PhaseNew {
		c.mu.Unlock()
		return State{}, fmt.Errorf("session already %s: %w", c.phase, errs.ErrValidation)
	}
	c.courseTitle = opts.CourseTitle
	if seconds, ok := ParseDurationDescriptor(opts.Duration); ok {
		c.timer = NewCountdown(seconds, c.expire)
	}
	c.mu.Unlock()

	snap, err := c.store.Load(ctx, c.userID, c.courseID)
	if err != nil {
		c.log.Warn("snapshot load failed, starting fresh", "error", err)
		snap = nil
	}

	c.mu.Lock()
	c.phase = PhaseActive
	c.touchLocked()
	if snap != nil && len(snap.Transcript) > 0 {
		c.transcript = snap.Transcript
		c.interactions = countUserTurns(snap.Transcript)
		c.tracker.Seed(snap.ProgressPercent)
		c.mu.Unlock()
		c.log.Info("session resumed", "turns", len(snap.Transcript), "progress", snap.ProgressPercent)
		return c.State(), nil
	}
	welcome := types.ConversationTurn{
		Role:      types.RoleAssistant,
		Content:   c.cfg.WelcomeMessage,
		Timestamp: time.Now().UTC(),
	}
	c.transcript = []types.ConversationTurn{welcome}
	c.mu.Unlock()

	// The welcome is a greeting, not an interaction: it starts no timer
	// and earns no progress.
	go c.speaker.Speak(context.WithoutCancel(ctx), welcome.Content, "", 0)
	c.log.Info("session initialized")
	return c.State(), nil
}

// SendMessage runs one typed (or transcribed) user turn end to end.
func (c *Controller) SendMessage(ctx context.Context, raw string) (SendResult, error) {
	if err := c.acquireTurn(); err != nil {
		return SendResult{}, err
	}
	defer c.releaseTurn()

	msg, err := c.pipeline.Prepare(ctx, c.userID, raw)
	if err != nil {
		return SendResult{}, err
	}

	c.mu.Lock()
	c.transcript = append(c.transcript, types.ConversationTurn{
		Role:      types.RoleUser,
		Content:   msg,
		Timestamp: time.Now().UTC(),
	})
	c.interactions++
	interactions := c.interactions
	history := append([]types.ConversationTurn(nil), c.transcript[:len(c.transcript)-1]...)
	timer := c.timer
	c.touchLocked()
	c.mu.Unlock()

	if timer != nil {
		timer.Start()
	}

	percent, _ := c.tracker.Update(ctx, interactions)

	reply, err := c.pipeline.Dispatch(ctx, c.userID, c.courseID, msg, history)
	if err != nil {
		c.saveSnapshot(ctx)
		return SendResult{}, err
	}

	c.mu.Lock()
	c.transcript = append(c.transcript, types.ConversationTurn{
		Role:        types.RoleAssistant,
		Content:     reply.Reply,
		Timestamp:   time.Now().UTC(),
		IsStreaming: true,
	})
	idx := len(c.transcript) - 1
	c.mu.Unlock()

	go c.speaker.Speak(context.WithoutCancel(ctx), reply.Reply, reply.SpeechVariant, idx)

	c.saveSnapshot(ctx)
	return SendResult{TurnIndex: idx, Reply: reply.Reply, ProgressPercent: percent}, nil
}

// VoiceStart begins buffering a voice recording.
func (c *Controller) VoiceStart(ctx context.Context) error {
	if err := c.requireActive(); err != nil {
		return err
	}
	return c.capture.Start(ctx)
}

// VoiceChunk appends recorded audio to the active capture.
func (c *Controller) VoiceChunk(data []byte, mimeType string) {
	c.capture.AddChunk(data, mimeType)
}

// VoiceStop finishes the capture, transcribes it, and submits the result
// through the same path a typed message takes.
func (c *Controller) VoiceStop(ctx context.Context) (SendResult, error) {
	if err := c.requireActive(); err != nil {
		return SendResult{}, err
	}
	text, err := c.capture.Stop(ctx)
	if err != nil {
		return SendResult{}, err
	}
	return c.SendMessage(ctx, text)
}

// ManualPlay replays the parked utterance after a user gesture.
func (c *Controller) ManualPlay(ctx context.Context) error {
	if err := c.requireActive(); err != nil {
		return err
	}
	return c.speaker.ManualPlay(ctx)
}

// ConfirmPlayback acknowledges that the browser played the utterance,
// clearing any parked audio.
func (c *Controller) ConfirmPlayback() error {
	if err := c.requireActive(); err != nil {
		return err
	}
	c.speaker.ConfirmPlayback()
	return nil
}

// ReportPlaybackBlocked parks the current utterance after the browser
// refused autoplay, so the learner can trigger it manually.
func (c *Controller) ReportPlaybackBlocked() error {
	if err := c.requireActive(); err != nil {
		return err
	}
	if p := c.speaker.ReportPlaybackBlocked(); p != nil {
		c.notify.Publish(c.userID, EventAudioPending, map[string]any{
			"turn_index": p.TurnIndex,
		})
	}
	return nil
}

// RevealAll skips the pacing of the turn currently streaming.
func (c *Controller) RevealAll(turnIndex int) bool {
	c.touch()
	return c.revealer.RevealAll(turnIndex)
}

// ToggleAudio flips the mute preference and returns the new muted state.
func (c *Controller) ToggleAudio() bool {
	c.touch()
	return c.speaker.ToggleMuted()
}

// End closes the session, persisting the final snapshot so the learner can
// resume later.
func (c *Controller) End(ctx context.Context) error {
	c.mu.Lock()
	if c.phase != PhaseActive {
		c.mu.Unlock()
		return nil
	}
	c.phase = PhaseEnded
	timer := c.timer
	c.mu.Unlock()

	if timer != nil {
		timer.Halt()
	}
	c.speaker.Stop()
	c.capture.Abort()
	c.saveSnapshot(ctx)
	c.notify.Publish(c.userID, EventSessionEnded, map[string]any{
		"course_id": c.courseID.String(),
	})
	c.log.Info("session ended")
	return nil
}

// Reset discards the stored snapshot and restarts the session fresh.
func (c *Controller) Reset(ctx context.Context) (State, error) {
	c.mu.Lock()
	timer := c.timer
	c.mu.Unlock()
	if timer != nil {
		timer.Halt()
	}
	c.speaker.Stop()
	c.capture.Abort()

	if err := c.store.Clear(ctx, c.userID, c.courseID); err != nil {
		c.log.Warn("snapshot clear failed", "error", err)
	}
	c.tracker.Reset()

	c.mu.Lock()
	welcome := types.ConversationTurn{
		Role:      types.RoleAssistant,
		Content:   c.cfg.WelcomeMessage,
		Timestamp: time.Now().UTC(),
	}
	c.transcript = []types.ConversationTurn{welcome}
	c.partials = map[int]string{}
	c.interactions = 0
	c.phase = PhaseActive
	c.touchLocked()
	c.mu.Unlock()

	go c.speaker.Speak(context.WithoutCancel(ctx), welcome.Content, "", 0)
	c.log.Info("session reset")
	return c.State(), nil
}

// State returns a consistent snapshot of the session read-model. The turn
// currently streaming shows its revealed prefix, not the full text.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	transcript := make([]types.ConversationTurn, len(c.transcript))
	copy(transcript, c.transcript)
	streaming := -1
	for i := range transcript {
		if p, ok := c.partials[i]; ok {
			transcript[i].Content = p
			streaming = i
		}
	}

	st := State{
		Phase:           c.phase,
		CourseID:        c.courseID,
		CourseTitle:     c.courseTitle,
		Transcript:      transcript,
		ProgressPercent: c.tracker.Percent(),
		Interactions:    c.interactions,
		Muted:           c.speaker.IsMuted(),
		PendingAudio:    c.speaker.Pending() != nil,
		Capturing:       c.capture.Capturing(),
		StreamingTurn:   streaming,
	}
	if c.timer != nil {
		st.TimerPhase = c.timer.Phase()
		st.RemainingSeconds = c.timer.Remaining()
	}
	return st
}

// LastActive reports the most recent command time; the registry sweeps
// controllers idle past its threshold.
func (c *Controller) LastActive() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActive
}

func (c *Controller) acquireTurn() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != PhaseActive {
		return fmt.Errorf("session is %s: %w", c.phase, errs.ErrValidation)
	}
	if c.busy {
		return fmt.Errorf("a turn is already in flight: %w", errs.ErrSessionBusy)
	}
	c.busy = true
	c.touchLocked()
	return nil
}

func (c *Controller) releaseTurn() {
	c.mu.Lock()
	c.busy = false
	c.mu.Unlock()
}

func (c *Controller) requireActive() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != PhaseActive {
		return fmt.Errorf("session is %s: %w", c.phase, errs.ErrValidation)
	}
	c.touchLocked()
	return nil
}

func (c *Controller) touch() {
	c.mu.Lock()
	c.touchLocked()
	c.mu.Unlock()
}

func (c *Controller) touchLocked() { c.lastActive = time.Now() }

// onReveal is the revealer sink: it tracks the streamed prefix for State
// reads and forwards each partial to the realtime channel.
func (c *Controller) onReveal(turnIndex int, partial string, final bool) {
	c.mu.Lock()
	if turnIndex >= 0 && turnIndex < len(c.transcript) {
		if final {
			delete(c.partials, turnIndex)
			c.transcript[turnIndex].IsStreaming = false
		} else {
			c.partials[turnIndex] = partial
		}
	}
	c.mu.Unlock()

	c.notify.Publish(c.userID, EventRevealPartial, map[string]any{
		"turn_index": turnIndex,
		"text":       partial,
		"final":      final,
	})
	if final {
		if p := c.speaker.Pending(); p != nil && p.TurnIndex == turnIndex {
			c.notify.Publish(c.userID, EventAudioPending, map[string]any{
				"turn_index": turnIndex,
			})
		}
	}
}

// expire is the countdown callback. It fires at most once.
func (c *Controller) expire() {
	c.mu.Lock()
	if c.phase != PhaseActive {
		c.mu.Unlock()
		return
	}
	c.phase = PhaseExpired
	c.mu.Unlock()

	c.speaker.Stop()
	c.capture.Abort()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	c.saveSnapshot(ctx)

	c.notify.Publish(c.userID, EventSessionExpired, map[string]any{
		"course_id": c.courseID.String(),
	})
	c.log.Info("session expired")
}

func (c *Controller) saveSnapshot(ctx context.Context) {
	c.mu.Lock()
	snap := &types.SessionSnapshot{
		Transcript:      append([]types.ConversationTurn(nil), c.transcript...),
		ProgressPercent: c.tracker.Percent(),
		SavedAt:         time.Now().UTC(),
	}
	c.mu.Unlock()
	for i := range snap.Transcript {
		snap.Transcript[i].IsStreaming = false
	}
	if err := c.store.Save(ctx, c.userID, c.courseID, snap); err != nil {
		c.log.Warn("snapshot save failed, continuing in memory", "error", err)
	}
}

func countUserTurns(turns []types.ConversationTurn) int {
	n := 0
	for _, t := range turns {
		if t.Role == types.RoleUser {
			n++
		}
	}
	return n
}
