package handlers

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lumenlms/tutor-backend/internal/http/response"
	"github.com/lumenlms/tutor-backend/internal/pkg/ctxutil"
	errs "github.com/lumenlms/tutor-backend/internal/pkg/errors"
	"github.com/lumenlms/tutor-backend/internal/pkg/logger"
	"github.com/lumenlms/tutor-backend/internal/session"
)

// maxAudioUpload bounds one voice recording upload.
const maxAudioUpload = 16 << 20

type SessionHandler struct {
	log      *logger.Logger
	registry *session.Registry
}

func NewSessionHandler(log *logger.Logger, registry *session.Registry) *SessionHandler {
	return &SessionHandler{
		log:      log.With("handler", "SessionHandler"),
		registry: registry,
	}
}

type startRequest struct {
	CourseTitle string `json:"course_title"`
	Duration    string `json:"duration"`
}

func (h *SessionHandler) Start(c *gin.Context) {
	userID, courseID, ok := h.identify(c)
	if !ok {
		return
	}
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	ctrl := h.registry.Obtain(userID, courseID)
	state, err := ctrl.Start(c.Request.Context(), session.StartOptions{
		CourseTitle: req.CourseTitle,
		Duration:    req.Duration,
	})
	if err != nil {
		response.RespondFromError(c, err)
		return
	}
	response.RespondOK(c, state)
}

func (h *SessionHandler) State(c *gin.Context) {
	userID, courseID, ok := h.identify(c)
	if !ok {
		return
	}
	ctrl := h.registry.Lookup(userID, courseID)
	if ctrl == nil {
		response.RespondFromError(c, fmt.Errorf("no active session: %w", errs.ErrNotFound))
		return
	}
	response.RespondOK(c, ctrl.State())
}

type messageRequest struct {
	Message string `json:"message"`
}

func (h *SessionHandler) Message(c *gin.Context) {
	ctrl, ok := h.lookup(c)
	if !ok {
		return
	}
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	res, err := ctrl.SendMessage(c.Request.Context(), req.Message)
	if err != nil {
		response.RespondFromError(c, err)
		return
	}
	response.RespondOK(c, res)
}

func (h *SessionHandler) VoiceStart(c *gin.Context) {
	ctrl, ok := h.lookup(c)
	if !ok {
		return
	}
	if err := ctrl.VoiceStart(c.Request.Context()); err != nil {
		response.RespondFromError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"capturing": true})
}

func (h *SessionHandler) VoiceChunk(c *gin.Context) {
	ctrl, ok := h.lookup(c)
	if !ok {
		return
	}
	data, err := io.ReadAll(io.LimitReader(c.Request.Body, maxAudioUpload))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	ctrl.VoiceChunk(data, c.ContentType())
	response.RespondOK(c, gin.H{"received": len(data)})
}

// VoiceStop finishes the capture. The request body may carry the final
// audio chunk; recorders that upload incrementally send an empty body.
func (h *SessionHandler) VoiceStop(c *gin.Context) {
	ctrl, ok := h.lookup(c)
	if !ok {
		return
	}
	if c.Request.ContentLength != 0 {
		data, err := io.ReadAll(io.LimitReader(c.Request.Body, maxAudioUpload))
		if err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
			return
		}
		ctrl.VoiceChunk(data, c.ContentType())
	}
	res, err := ctrl.VoiceStop(c.Request.Context())
	if err != nil {
		response.RespondFromError(c, err)
		return
	}
	response.RespondOK(c, res)
}

func (h *SessionHandler) ManualPlay(c *gin.Context) {
	ctrl, ok := h.lookup(c)
	if !ok {
		return
	}
	if err := ctrl.ManualPlay(c.Request.Context()); err != nil {
		response.RespondFromError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"playing": true})
}

func (h *SessionHandler) PlaybackConfirm(c *gin.Context) {
	ctrl, ok := h.lookup(c)
	if !ok {
		return
	}
	if err := ctrl.ConfirmPlayback(); err != nil {
		response.RespondFromError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"confirmed": true})
}

func (h *SessionHandler) PlaybackBlocked(c *gin.Context) {
	ctrl, ok := h.lookup(c)
	if !ok {
		return
	}
	if err := ctrl.ReportPlaybackBlocked(); err != nil {
		response.RespondFromError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"parked": true})
}

func (h *SessionHandler) ToggleAudio(c *gin.Context) {
	ctrl, ok := h.lookup(c)
	if !ok {
		return
	}
	response.RespondOK(c, gin.H{"muted": ctrl.ToggleAudio()})
}

type revealAllRequest struct {
	TurnIndex int `json:"turn_index"`
}

func (h *SessionHandler) RevealAll(c *gin.Context) {
	ctrl, ok := h.lookup(c)
	if !ok {
		return
	}
	var req revealAllRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	response.RespondOK(c, gin.H{"revealed": ctrl.RevealAll(req.TurnIndex)})
}

func (h *SessionHandler) End(c *gin.Context) {
	userID, courseID, ok := h.identify(c)
	if !ok {
		return
	}
	ctrl := h.registry.Lookup(userID, courseID)
	if ctrl == nil {
		response.RespondFromError(c, fmt.Errorf("no active session: %w", errs.ErrNotFound))
		return
	}
	if err := ctrl.End(c.Request.Context()); err != nil {
		response.RespondFromError(c, err)
		return
	}
	h.registry.Drop(userID, courseID)
	response.RespondOK(c, gin.H{"ended": true})
}

func (h *SessionHandler) Reset(c *gin.Context) {
	ctrl, ok := h.lookup(c)
	if !ok {
		return
	}
	state, err := ctrl.Reset(c.Request.Context())
	if err != nil {
		response.RespondFromError(c, err)
		return
	}
	response.RespondOK(c, state)
}

func (h *SessionHandler) identify(c *gin.Context) (userID, courseID uuid.UUID, ok bool) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", fmt.Errorf("not authenticated"))
		return uuid.Nil, uuid.Nil, false
	}
	courseID, err := uuid.Parse(c.Param("courseID"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", fmt.Errorf("invalid course id"))
		return uuid.Nil, uuid.Nil, false
	}
	return rd.UserID, courseID, true
}

func (h *SessionHandler) lookup(c *gin.Context) (*session.Controller, bool) {
	userID, courseID, ok := h.identify(c)
	if !ok {
		return nil, false
	}
	ctrl := h.registry.Lookup(userID, courseID)
	if ctrl == nil {
		response.RespondFromError(c, fmt.Errorf("no active session: %w", errs.ErrNotFound))
		return nil, false
	}
	return ctrl, true
}
