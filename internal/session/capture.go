package session

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/lumenlms/tutor-backend/internal/clients/gcp"
	errs "github.com/lumenlms/tutor-backend/internal/pkg/errors"
	"github.com/lumenlms/tutor-backend/internal/pkg/logger"
)

// MicrophoneSource gates access to the capture device. Acquire returns
// errs.ErrPermissionDenied (wrapped) when the learner refuses access.
type MicrophoneSource interface {
	Acquire(ctx context.Context) error
	Release()
}

// OpenMicrophone grants access unconditionally; the browser owns the real
// permission prompt and reports refusals through the API.
type OpenMicrophone struct{}

func (OpenMicrophone) Acquire(context.Context) error { return nil }
func (OpenMicrophone) Release()                      {}

// Transcriber is the remote speech-to-text dependency.
type Transcriber interface {
	TranscribeAudioBytes(ctx context.Context, audio []byte, mimeType string, cfg gcp.SpeechConfig) (*gcp.SpeechResult, error)
}

// Capture buffers one voice recording and turns it into typed-equivalent
// input. Only one capture may be active; Start while capturing is a no-op.
type Capture struct {
	log *logger.Logger
	stt Transcriber
	mic MicrophoneSource

	mu        sync.Mutex
	capturing bool
	chunks    [][]byte
	mimeType  string
}

func NewCapture(log *logger.Logger, stt Transcriber, mic MicrophoneSource) *Capture {
	return &Capture{
		log: log.With("component", "Capture"),
		stt: stt,
		mic: mic,
	}
}

// Start acquires the microphone and begins buffering. Idempotent while a
// capture is already active.
func (c *Capture) Start(ctx context.Context) error {
	if c.stt == nil {
		return fmt.Errorf("voice input unavailable: %w", errs.ErrValidation)
	}
	// Claim the capture slot before touching the device so two concurrent
	// Starts cannot both acquire the microphone.
	c.mu.Lock()
	if c.capturing {
		c.mu.Unlock()
		return nil
	}
	c.capturing = true
	c.chunks = nil
	c.mimeType = ""
	c.mu.Unlock()

	if err := c.mic.Acquire(ctx); err != nil {
		c.mu.Lock()
		c.capturing = false
		c.mu.Unlock()
		return fmt.Errorf("microphone: %w", errs.ErrPermissionDenied)
	}
	return nil
}

// AddChunk appends recorded audio. Chunks arriving while not capturing are
// dropped.
func (c *Capture) AddChunk(data []byte, mimeType string) {
	if len(data) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.capturing {
		return
	}
	c.chunks = append(c.chunks, data)
	if c.mimeType == "" && mimeType != "" {
		c.mimeType = mimeType
	}
}

// Stop releases the device and submits the buffered audio for
// transcription. An empty or failed transcription discards the recording
// and returns a recoverable error; the session is unaffected.
func (c *Capture) Stop(ctx context.Context) (string, error) {
	c.mu.Lock()
	if !c.capturing {
		c.mu.Unlock()
		return "", fmt.Errorf("no capture in progress: %w", errs.ErrInvalidArgument)
	}
	c.capturing = false
	chunks := c.chunks
	mimeType := c.mimeType
	c.chunks = nil
	c.mimeType = ""
	c.mu.Unlock()

	c.mic.Release()

	if len(chunks) == 0 {
		return "", fmt.Errorf("empty recording: %w", errs.ErrRemoteCallFailed)
	}

	var buf bytes.Buffer
	for _, ch := range chunks {
		buf.Write(ch)
	}

	res, err := c.stt.TranscribeAudioBytes(ctx, buf.Bytes(), mimeType, gcp.SpeechConfig{
		EnableAutomaticPunctuation: true,
	})
	if err != nil {
		c.log.Warn("transcription failed, discarding recording", "error", err)
		return "", fmt.Errorf("transcription: %w", errs.ErrRemoteCallFailed)
	}
	text := strings.TrimSpace(res.PrimaryText)
	if text == "" {
		return "", fmt.Errorf("empty transcript: %w", errs.ErrRemoteCallFailed)
	}
	return text, nil
}

// Abort releases the device and discards any buffered audio without
// transcribing it. A no-op when nothing is capturing; session teardown
// calls it unconditionally.
func (c *Capture) Abort() {
	c.mu.Lock()
	if !c.capturing {
		c.mu.Unlock()
		return
	}
	c.capturing = false
	c.chunks = nil
	c.mimeType = ""
	c.mu.Unlock()
	c.mic.Release()
}

// Capturing reports whether a recording is in progress.
func (c *Capture) Capturing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capturing
}
