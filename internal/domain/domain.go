package domain

import (
	"github.com/lumenlms/tutor-backend/internal/domain/session"
)

const (
	RoleUser      = session.RoleUser
	RoleAssistant = session.RoleAssistant

	SecuritySeverityCritical = session.SecuritySeverityCritical
	SecuritySeverityWarning  = session.SecuritySeverityWarning

	SecurityEventInjectionAttempt = session.SecurityEventInjectionAttempt
)

type ConversationTurn = session.ConversationTurn
type SessionSnapshot = session.SessionSnapshot
type ProgressRecord = session.ProgressRecord
type SecurityEvent = session.SecurityEvent
