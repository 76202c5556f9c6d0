package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/lumenlms/tutor-backend/internal/clients/openai"
	"github.com/lumenlms/tutor-backend/internal/data/repos"
	types "github.com/lumenlms/tutor-backend/internal/domain"
	"github.com/lumenlms/tutor-backend/internal/pkg/dbctx"
	errs "github.com/lumenlms/tutor-backend/internal/pkg/errors"
	"github.com/lumenlms/tutor-backend/internal/pkg/logger"
)

// MaxMessageLength bounds one user turn. Longer input is rejected before
// any other intake stage runs.
const MaxMessageLength = 4000

// ChatClient is the remote tutoring-model dependency.
type ChatClient interface {
	TutorReply(ctx context.Context, req openai.ChatRequest) (*openai.ChatReply, error)
}

// Pipeline runs each user turn through intake and dispatch. Intake stages
// run in a fixed order (validate, rate limit, sanitize, threat scan) and
// any rejection stops the turn before it reaches the model or the
// transcript.
type Pipeline struct {
	log     *logger.Logger
	limiter RateLimiter
	scanner *threatScanner
	secRepo repos.SecurityEventRepo
	chat    ChatClient

	systemPrompt string
	historyLimit int
}

func NewPipeline(log *logger.Logger, cfg Config, limiter RateLimiter, secRepo repos.SecurityEventRepo, chat ChatClient) (*Pipeline, error) {
	scanner, err := newThreatScanner(cfg.ThreatPatterns)
	if err != nil {
		return nil, fmt.Errorf("compile threat patterns: %w", err)
	}
	return &Pipeline{
		log:          log.With("component", "Pipeline"),
		limiter:      limiter,
		scanner:      scanner,
		secRepo:      secRepo,
		chat:         chat,
		systemPrompt: cfg.SystemPrompt,
		historyLimit: cfg.HistoryLimit,
	}, nil
}

// Prepare runs the intake stages and returns the sanitized message ready
// for dispatch. A rejected turn has no side effects beyond the security
// event written on a threat match.
func (p *Pipeline) Prepare(ctx context.Context, userID uuid.UUID, raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", fmt.Errorf("empty message: %w", errs.ErrValidation)
	}
	if len(raw) > MaxMessageLength {
		return "", fmt.Errorf("message exceeds %d characters: %w", MaxMessageLength, errs.ErrValidation)
	}

	dec, err := p.limiter.Allow(ctx, userID)
	if err != nil {
		p.log.Warn("rate limiter unavailable, allowing turn", "user_id", userID, "error", err)
	} else if !dec.Allowed {
		return "", fmt.Errorf("retry in %s: %w", dec.RetryAfter.Round(time.Second), errs.ErrRateLimited)
	}

	msg := SanitizeInput(raw)
	if msg == "" {
		return "", fmt.Errorf("message empty after sanitization: %w", errs.ErrValidation)
	}

	if pattern := p.scanner.Match(msg); pattern != "" {
		p.recordThreat(ctx, userID, pattern, len(raw))
		return "", fmt.Errorf("message rejected: %w", errs.ErrSecurityRejected)
	}
	return msg, nil
}

// Dispatch sends a prepared message to the tutoring model with a bounded
// window of prior turns.
func (p *Pipeline) Dispatch(ctx context.Context, userID, courseID uuid.UUID, msg string, history []types.ConversationTurn) (*openai.ChatReply, error) {
	window := history
	if p.historyLimit > 0 && len(window) > p.historyLimit {
		window = window[len(window)-p.historyLimit:]
	}

	reply, err := p.chat.TutorReply(ctx, openai.ChatRequest{
		Message:      msg,
		History:      window,
		SystemPrompt: p.systemPrompt,
		CourseID:     courseID.String(),
		UserID:       userID.String(),
	})
	if err != nil {
		return nil, fmt.Errorf("tutoring call: %w", errs.ErrRemoteCallFailed)
	}
	if strings.TrimSpace(reply.Reply) == "" {
		return nil, fmt.Errorf("empty model reply: %w", errs.ErrRemoteCallFailed)
	}
	return reply, nil
}

func (p *Pipeline) recordThreat(ctx context.Context, userID uuid.UUID, pattern string, inputLen int) {
	p.log.Warn("threat pattern matched, rejecting message", "user_id", userID, "pattern", pattern)
	if p.secRepo == nil {
		return
	}
	details, _ := json.Marshal(map[string]any{
		"pattern":      pattern,
		"input_length": inputLen,
	})
	_, err := p.secRepo.Create(dbctx.Context{Ctx: ctx}, &types.SecurityEvent{
		UserID:   userID,
		Type:     types.SecurityEventInjectionAttempt,
		Severity: types.SecuritySeverityCritical,
		Details:  datatypes.JSON(details),
	})
	if err != nil {
		p.log.Error("security event persist failed", "user_id", userID, "error", err)
	}
}
