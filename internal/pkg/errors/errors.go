package errors

import "errors"

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrValidation rejects empty or malformed user input before any
	// processing; the transcript is never touched.
	ErrValidation = errors.New("validation failed")
	// ErrRateLimited means the per-user limiter is exhausted.
	ErrRateLimited = errors.New("rate limited")
	// ErrSecurityRejected means the threat scan matched the input. The
	// caller must not forward or append the message.
	ErrSecurityRejected = errors.New("security rejected")
	// ErrRemoteCallFailed covers chat/synthesis/transcription failures.
	// Never fatal to a session.
	ErrRemoteCallFailed = errors.New("remote call failed")
	// ErrPermissionDenied means the audio capture device was refused.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrStorageUnavailable means the snapshot store could not persist;
	// the session continues in memory only.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrPlaybackBlocked means automatic playback was refused by the
	// platform; content is kept for manual play.
	ErrPlaybackBlocked = errors.New("playback blocked")
	// ErrSessionBusy means a prior submission's remote call is still
	// outstanding.
	ErrSessionBusy = errors.New("session busy")
)
