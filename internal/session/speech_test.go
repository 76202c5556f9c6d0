package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lumenlms/tutor-backend/internal/clients/openai"
	errs "github.com/lumenlms/tutor-backend/internal/pkg/errors"
)

func newTestSpeaker(t *testing.T, tts *fakeTTS, player *fakePlayer, cap StaticCapability) (*Speaker, *revealCollector) {
	t.Helper()
	rc := &revealCollector{}
	log := mustTestLogger(t)
	r := NewRevealer(log, time.Millisecond, rc.sink)
	return NewSpeaker(log, tts, player, cap, r, "alloy"), rc
}

func TestSpeakerHappyPath(t *testing.T) {
	tts := &fakeTTS{}
	player := &fakePlayer{dur: 10 * time.Millisecond}
	s, rc := newTestSpeaker(t, tts, player, StaticCapability{})

	s.Speak(context.Background(), "hello there learner", "", 1)
	s.revealer.Wait()

	if tts.callCount() != 1 {
		t.Fatalf("synthesize called %d times, want 1", tts.callCount())
	}
	if player.playCount() != 1 {
		t.Fatalf("play called %d times, want 1", player.playCount())
	}
	if s.Pending() != nil {
		t.Fatalf("successful playback left pending audio")
	}
	_, finals := rc.snapshot()
	if len(finals) != 1 || finals[0] != "hello there learner" {
		t.Fatalf("finals = %v", finals)
	}
}

func TestSpeakerMutedSkipsSynthesis(t *testing.T) {
	tts := &fakeTTS{}
	player := &fakePlayer{}
	s, rc := newTestSpeaker(t, tts, player, StaticCapability{})

	s.ToggleMuted()
	s.Speak(context.Background(), "silent text", "", 0)
	s.revealer.Wait()

	if tts.callCount() != 0 {
		t.Fatalf("muted speak reached the synthesizer")
	}
	if player.playCount() != 0 {
		t.Fatalf("muted speak reached the player")
	}
	_, finals := rc.snapshot()
	if len(finals) != 1 {
		t.Fatalf("muted speak did not reveal text: finals=%v", finals)
	}
}

func TestSpeakerGestureRequiredParksUnsynthesized(t *testing.T) {
	tts := &fakeTTS{}
	player := &fakePlayer{}
	s, rc := newTestSpeaker(t, tts, player, StaticCapability{GestureRequired: true, State: AudioSuspended})

	s.Speak(context.Background(), "read this while audio waits", "", 2)
	s.revealer.Wait()

	if tts.callCount() != 0 {
		t.Fatalf("suspended context still synthesized")
	}
	p := s.Pending()
	if p == nil {
		t.Fatalf("no pending audio parked")
	}
	if p.TurnIndex != 2 || len(p.Payload) != 0 {
		t.Fatalf("pending = %+v, want turn 2 with no payload yet", p)
	}
	_, finals := rc.snapshot()
	if len(finals) != 1 {
		t.Fatalf("text reveal did not run while audio was parked")
	}
}

func TestSpeakerGestureRequiredButReady(t *testing.T) {
	tts := &fakeTTS{}
	player := &fakePlayer{}
	s, _ := newTestSpeaker(t, tts, player, StaticCapability{GestureRequired: true, State: AudioReady})

	s.Speak(context.Background(), "audio can start", "", 0)
	s.revealer.Wait()

	if player.playCount() != 1 {
		t.Fatalf("ready context did not play")
	}
	if s.Pending() != nil {
		t.Fatalf("ready context parked audio")
	}
}

func TestSpeakerSynthesisFailureDegradesToText(t *testing.T) {
	tts := &fakeTTS{err: errBoom}
	player := &fakePlayer{}
	s, rc := newTestSpeaker(t, tts, player, StaticCapability{})

	s.Speak(context.Background(), "text still arrives", "", 0)
	s.revealer.Wait()

	if player.playCount() != 0 {
		t.Fatalf("failed synthesis still played")
	}
	if s.Pending() != nil {
		t.Fatalf("failed synthesis parked audio")
	}
	_, finals := rc.snapshot()
	if len(finals) != 1 || finals[0] != "text still arrives" {
		t.Fatalf("finals = %v", finals)
	}
}

func TestSpeakerPlaybackFailureParksWithPayload(t *testing.T) {
	tts := &fakeTTS{}
	player := &fakePlayer{err: errBoom}
	s, rc := newTestSpeaker(t, tts, player, StaticCapability{})

	s.Speak(context.Background(), "blocked playback", "", 3)
	s.revealer.Wait()

	p := s.Pending()
	if p == nil {
		t.Fatalf("blocked playback parked nothing")
	}
	if p.TurnIndex != 3 || len(p.Payload) == 0 {
		t.Fatalf("pending = %+v, want turn 3 with synthesized payload", p)
	}
	_, finals := rc.snapshot()
	if len(finals) != 1 {
		t.Fatalf("blocked playback suppressed the text reveal")
	}
}

func TestSpeakerSpeechVariantDrivesSynthesisOnly(t *testing.T) {
	tts := &fakeTTS{}
	player := &fakePlayer{}
	s, rc := newTestSpeaker(t, tts, player, StaticCapability{})

	s.Speak(context.Background(), "**display** text", "spoken text", 0)
	s.revealer.Wait()

	tts.mu.Lock()
	synthesized := tts.calls[0]
	tts.mu.Unlock()
	if synthesized != "spoken text" {
		t.Fatalf("synthesized %q, want the speech variant", synthesized)
	}
	_, finals := rc.snapshot()
	if len(finals) != 1 || finals[0] != "**display** text" {
		t.Fatalf("reveal used %v, want the display text", finals)
	}
}

func TestSpeakerManualPlay(t *testing.T) {
	t.Run("no pending", func(t *testing.T) {
		s, _ := newTestSpeaker(t, &fakeTTS{}, &fakePlayer{}, StaticCapability{})
		if err := s.ManualPlay(context.Background()); !errors.Is(err, errs.ErrNotFound) {
			t.Fatalf("ManualPlay error = %v, want ErrNotFound", err)
		}
	})

	t.Run("synthesizes parked utterance", func(t *testing.T) {
		tts := &fakeTTS{}
		player := &fakePlayer{}
		s, _ := newTestSpeaker(t, tts, player, StaticCapability{GestureRequired: true, State: AudioSuspended})

		s.Speak(context.Background(), "parked until a tap", "", 1)
		s.revealer.Wait()
		if tts.callCount() != 0 {
			t.Fatalf("synthesis ran before the gesture")
		}

		if err := s.ManualPlay(context.Background()); err != nil {
			t.Fatalf("ManualPlay: %v", err)
		}
		if tts.callCount() != 1 {
			t.Fatalf("manual play synthesized %d times, want 1", tts.callCount())
		}
		if player.playCount() != 1 {
			t.Fatalf("manual play played %d times, want 1", player.playCount())
		}
		if s.Pending() != nil {
			t.Fatalf("pending survived a successful manual play")
		}
	})

	t.Run("replays synthesized payload without re-synthesis", func(t *testing.T) {
		tts := &fakeTTS{}
		player := &fakePlayer{err: errBoom}
		s, _ := newTestSpeaker(t, tts, player, StaticCapability{})

		s.Speak(context.Background(), "playback will fail", "", 0)
		s.revealer.Wait()
		if s.Pending() == nil {
			t.Fatalf("no pending after blocked playback")
		}

		player.mu.Lock()
		player.err = nil
		player.mu.Unlock()

		if err := s.ManualPlay(context.Background()); err != nil {
			t.Fatalf("ManualPlay: %v", err)
		}
		if tts.callCount() != 1 {
			t.Fatalf("manual play re-synthesized, want payload reuse")
		}
	})

	t.Run("still blocked", func(t *testing.T) {
		s, _ := newTestSpeaker(t, &fakeTTS{}, &fakePlayer{err: errBoom}, StaticCapability{GestureRequired: true, State: AudioSuspended})
		s.Speak(context.Background(), "no luck", "", 0)
		s.revealer.Wait()

		if err := s.ManualPlay(context.Background()); !errors.Is(err, errs.ErrPlaybackBlocked) {
			t.Fatalf("ManualPlay error = %v, want ErrPlaybackBlocked", err)
		}
		if s.Pending() == nil {
			t.Fatalf("pending cleared despite blocked manual play")
		}
	})
}

// mutingTTS flips the speaker's mute switch during the synthesis round
// trip, modeling a learner tapping mute while the network call is out.
type mutingTTS struct {
	fakeTTS
	speaker **Speaker
}

func (m *mutingTTS) Synthesize(ctx context.Context, text, voice string) (*openai.Synthesis, error) {
	(*m.speaker).ToggleMuted()
	return m.fakeTTS.Synthesize(ctx, text, voice)
}

func TestSpeakerMuteDuringSynthesisRoundTrip(t *testing.T) {
	player := &fakePlayer{}
	rc := &revealCollector{}
	log := mustTestLogger(t)
	r := NewRevealer(log, time.Millisecond, rc.sink)

	var s *Speaker
	tts := &mutingTTS{speaker: &s}
	s = NewSpeaker(log, tts, player, StaticCapability{}, r, "alloy")

	s.Speak(context.Background(), "muted midway", "", 0)
	s.revealer.Wait()

	if !s.IsMuted() {
		t.Fatalf("mute toggle during synthesis was lost")
	}
	if player.playCount() != 0 {
		t.Fatalf("playback ran despite muting during the round trip")
	}
	_, finals := rc.snapshot()
	if len(finals) != 1 || finals[0] != "muted midway" {
		t.Fatalf("text reveal missing after mute: finals=%v", finals)
	}
}

func TestSpeakerStaleTurnLeavesNewerPlaybackAlone(t *testing.T) {
	tts := &fakeTTS{}
	player := &fakePlayer{}
	s, rc := newTestSpeaker(t, tts, player, StaticCapability{})

	s.Speak(context.Background(), "the current turn with audio", "", 2)
	s.revealer.Wait()

	player.mu.Lock()
	stopsBefore := player.stops
	player.mu.Unlock()

	// A welcome utterance whose goroutine ran late must neither stop the
	// newer turn's audio nor synthesize; its text just completes.
	s.Speak(context.Background(), "welcome text arriving late", "", 0)

	if tts.callCount() != 1 {
		t.Fatalf("synthesize called %d times, want only the newer turn's 1", tts.callCount())
	}
	player.mu.Lock()
	stopsAfter := player.stops
	player.mu.Unlock()
	if stopsAfter != stopsBefore {
		t.Fatalf("stale utterance stopped the newer turn's playback")
	}
	_, finals := rc.snapshot()
	if len(finals) != 2 || finals[1] != "welcome text arriving late" {
		t.Fatalf("finals = %v, want the stale text completed last", finals)
	}
}

func TestSpeakerPlaybackBlockedParksLastUtterance(t *testing.T) {
	tts := &fakeTTS{}
	player := &fakePlayer{}
	s, _ := newTestSpeaker(t, tts, player, StaticCapability{})

	s.Speak(context.Background(), "the browser will refuse this", "", 3)
	s.revealer.Wait()
	if s.Pending() != nil {
		t.Fatalf("pending set before the browser reported anything")
	}

	p := s.ReportPlaybackBlocked()
	if p == nil {
		t.Fatalf("blocked report parked nothing")
	}
	if p.TurnIndex != 3 || len(p.Payload) == 0 {
		t.Fatalf("parked utterance = %+v, want turn 3 with payload", p)
	}
	if s.Pending() == nil {
		t.Fatalf("pending slot empty after blocked report")
	}

	// Manual play should reuse the parked payload without re-synthesis.
	if err := s.ManualPlay(context.Background()); err != nil {
		t.Fatalf("ManualPlay: %v", err)
	}
	if tts.callCount() != 1 {
		t.Fatalf("synthesize called %d times, want the original 1", tts.callCount())
	}
}

func TestSpeakerConfirmPlaybackClears(t *testing.T) {
	tts := &fakeTTS{}
	player := &fakePlayer{}
	s, _ := newTestSpeaker(t, tts, player, StaticCapability{})

	s.Speak(context.Background(), "confirmed by the browser", "", 1)
	s.revealer.Wait()

	if !s.ConfirmPlayback() {
		t.Fatalf("confirm found nothing outstanding")
	}
	if s.ReportPlaybackBlocked() != nil {
		t.Fatalf("blocked report parked an utterance after confirmation")
	}
	if s.ConfirmPlayback() {
		t.Fatalf("second confirm still found something")
	}
}

func TestSpeakerStopClearsEverything(t *testing.T) {
	tts := &fakeTTS{}
	player := &fakePlayer{err: errBoom}
	s, _ := newTestSpeaker(t, tts, player, StaticCapability{})

	s.Speak(context.Background(), "about to be torn down", "", 0)
	s.Stop()

	if s.Pending() != nil {
		t.Fatalf("Stop left pending audio")
	}
	player.mu.Lock()
	stops := player.stops
	player.mu.Unlock()
	if stops == 0 {
		t.Fatalf("Stop never reached the player")
	}
}
