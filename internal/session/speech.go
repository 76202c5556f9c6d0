package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lumenlms/tutor-backend/internal/clients/openai"
	errs "github.com/lumenlms/tutor-backend/internal/pkg/errors"
	"github.com/lumenlms/tutor-backend/internal/pkg/logger"
)

// AudioContextState mirrors the platform audio output state.
type AudioContextState int

const (
	AudioReady AudioContextState = iota
	AudioSuspended
)

// AudioCapability answers platform questions about audio playback. This is
// a capability probe, not a user-agent match: platforms that demand a user
// gesture before audio can start report it here.
type AudioCapability interface {
	RequiresUserGestureForAudio() bool
	AudioContextState() AudioContextState
}

// Player is the audio sink for synthesized speech. Play blocks until
// playback has started (not finished) and reports the real audio duration,
// which becomes the reveal pacing hint.
type Player interface {
	Play(ctx context.Context, audio []byte, mimeType string) (time.Duration, error)
	Stop()
}

// SynthesisClient is the remote text-to-speech dependency.
type SynthesisClient interface {
	Synthesize(ctx context.Context, text string, voice string) (*openai.Synthesis, error)
}

// PendingAudio is a synthesized-or-not utterance waiting on a user gesture.
// It exists only between synthesis and playback (automatic or manual) and
// is discarded after either.
type PendingAudio struct {
	Text       string
	SpeechText string
	TurnIndex  int
	Payload    []byte
	MimeType   string
}

// Speaker presents assistant turns: synthesis, playback, and the paced text
// reveal, degrading to text-only whenever audio cannot proceed. At most one
// utterance plays at a time; a new Speak detaches the previous one.
type Speaker struct {
	log        *logger.Logger
	tts        SynthesisClient
	player     Player
	capability AudioCapability
	revealer   *Revealer
	voice      string

	mu      sync.Mutex
	muted   bool
	pending *PendingAudio
	// last is the most recently dispatched utterance, kept so a browser
	// that later reports blocked autoplay can park it for manual play.
	last *PendingAudio
	// latestTurn is the highest turn index handed to Speak. Utterances for
	// older turns arriving late (a slow goroutine or synthesis round trip)
	// must not stop or restart the newer turn's presentation.
	latestTurn int
}

func NewSpeaker(log *logger.Logger, tts SynthesisClient, player Player, capability AudioCapability, revealer *Revealer, voice string) *Speaker {
	return &Speaker{
		log:        log.With("component", "Speaker"),
		tts:        tts,
		player:     player,
		capability: capability,
		revealer:   revealer,
		voice:      voice,
		latestTurn: -1,
	}
}

// Speak presents one assistant turn. speechVariant, when non-empty, is the
// text actually synthesized; the display text always drives the reveal.
// Synthesis failure degrades to a text-only reveal and playback failure
// parks the audio for ManualPlay; neither blocks the conversation.
func (s *Speaker) Speak(ctx context.Context, text, speechVariant string, turnIndex int) {
	s.mu.Lock()
	if turnIndex < s.latestTurn {
		s.mu.Unlock()
		// A newer turn is already presenting; the revealer completes this
		// one's text without touching the newer reveal or its audio.
		s.revealer.Start(turnIndex, text, 0)
		return
	}
	s.latestTurn = turnIndex
	s.mu.Unlock()

	s.player.Stop()

	if s.IsMuted() {
		s.revealer.Start(turnIndex, text, 0)
		return
	}

	if s.capability.RequiresUserGestureForAudio() && s.capability.AudioContextState() == AudioSuspended {
		// Park the utterance unsynthesized and let the learner read on.
		s.setPending(&PendingAudio{Text: text, SpeechText: s.speechText(text, speechVariant), TurnIndex: turnIndex})
		s.revealer.Start(turnIndex, text, 0)
		return
	}

	synth, err := s.tts.Synthesize(ctx, s.speechText(text, speechVariant), s.voice)
	if err != nil {
		s.log.Warn("synthesis failed, falling back to text-only reveal", "turn", turnIndex, "error", err)
		s.revealer.Start(turnIndex, text, 0)
		return
	}

	// Mute may have been toggled, and a newer turn may have started,
	// during the network round trip.
	s.mu.Lock()
	superseded := turnIndex < s.latestTurn
	muted := s.muted
	s.mu.Unlock()
	if superseded || muted {
		s.revealer.Start(turnIndex, text, 0)
		return
	}

	dur, err := s.player.Play(ctx, synth.Audio, synth.MimeType)
	if err != nil {
		s.log.Warn("playback blocked, keeping audio for manual play", "turn", turnIndex, "error", err)
		s.setPending(&PendingAudio{
			Text:       text,
			SpeechText: s.speechText(text, speechVariant),
			TurnIndex:  turnIndex,
			Payload:    synth.Audio,
			MimeType:   synth.MimeType,
		})
		s.revealer.Start(turnIndex, text, 0)
		return
	}

	s.mu.Lock()
	s.pending = nil
	s.last = &PendingAudio{
		Text:       text,
		SpeechText: s.speechText(text, speechVariant),
		TurnIndex:  turnIndex,
		Payload:    synth.Audio,
		MimeType:   synth.MimeType,
	}
	s.mu.Unlock()
	if dur <= 0 {
		dur = synth.EstimatedDuration
	}
	s.revealer.Start(turnIndex, text, dur)
}

// ConfirmPlayback records that the browser actually played the utterance.
// Clears the pending slot and reports whether anything was outstanding.
func (s *Speaker) ConfirmPlayback() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	had := s.pending != nil || s.last != nil
	s.pending = nil
	s.last = nil
	return had
}

// ReportPlaybackBlocked parks the current utterance after the browser
// refused autoplay. Returns the parked utterance, or nil when there is
// nothing to park.
func (s *Speaker) ReportPlaybackBlocked() *PendingAudio {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		s.pending = s.last
	}
	s.last = nil
	return s.pending
}

// ManualPlay plays the parked utterance after a user gesture, synthesizing
// first if Speak never got that far. Clears the pending slot on success.
func (s *Speaker) ManualPlay(ctx context.Context) error {
	s.mu.Lock()
	pending := s.pending
	s.mu.Unlock()
	if pending == nil {
		return fmt.Errorf("no pending audio: %w", errs.ErrNotFound)
	}

	if len(pending.Payload) == 0 {
		synth, err := s.tts.Synthesize(ctx, pending.SpeechText, s.voice)
		if err != nil {
			return fmt.Errorf("synthesis: %w", errs.ErrRemoteCallFailed)
		}
		pending.Payload = synth.Audio
		pending.MimeType = synth.MimeType
		s.setPending(pending)
	}

	if _, err := s.player.Play(ctx, pending.Payload, pending.MimeType); err != nil {
		return fmt.Errorf("manual playback: %w", errs.ErrPlaybackBlocked)
	}
	s.setPending(nil)
	return nil
}

func (s *Speaker) speechText(text, variant string) string {
	if variant != "" {
		return SanitizeForSpeech(variant)
	}
	return SanitizeForSpeech(text)
}

func (s *Speaker) setPending(p *PendingAudio) {
	s.mu.Lock()
	s.pending = p
	s.mu.Unlock()
}

// Pending returns the parked utterance, or nil.
func (s *Speaker) Pending() *PendingAudio {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

func (s *Speaker) IsMuted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.muted
}

// ToggleMuted flips the audio preference and returns the new muted state.
func (s *Speaker) ToggleMuted() bool {
	s.mu.Lock()
	s.muted = !s.muted
	muted := s.muted
	s.mu.Unlock()
	if muted {
		s.player.Stop()
	}
	return muted
}

// Stop tears down playback and the in-flight reveal; called on session end.
func (s *Speaker) Stop() {
	s.player.Stop()
	s.revealer.Stop()
	s.mu.Lock()
	s.pending = nil
	s.last = nil
	s.latestTurn = -1
	s.mu.Unlock()
}

// NopPlayer accepts all playback; the real audio element lives in the
// browser, which confirms or rejects playback over the API.
type NopPlayer struct{}

func (NopPlayer) Play(_ context.Context, _ []byte, _ string) (time.Duration, error) { return 0, nil }
func (NopPlayer) Stop()                                                             {}

// StaticCapability is a fixed capability answer, set from configuration or
// from client hints at session start.
type StaticCapability struct {
	GestureRequired bool
	State           AudioContextState
}

func (c StaticCapability) RequiresUserGestureForAudio() bool { return c.GestureRequired }
func (c StaticCapability) AudioContextState() AudioContextState {
	return c.State
}
