package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/certeva/certexam-backend/internal/engine"
	"github.com/certeva/certexam-backend/internal/middleware"
	"github.com/certeva/certexam-backend/internal/model"
	"github.com/certeva/certexam-backend/internal/response"
	"github.com/certeva/certexam-backend/internal/service"
	"github.com/certeva/certexam-backend/internal/validator"
)

// AttemptHandler exposes the attempt lifecycle over REST. The WebSocket
// stream covers the same operations for clients that keep a connection
// open; both talk to the same live session.
type AttemptHandler struct {
	attemptService *service.AttemptService
	examService    *service.ExamService
}

// NewAttemptHandler creates a new AttemptHandler.
func NewAttemptHandler(attemptService *service.AttemptService, examService *service.ExamService) *AttemptHandler {
	return &AttemptHandler{
		attemptService: attemptService,
		examService:    examService,
	}
}

// ListExams godoc
// GET /api/v1/exams
// Lists exams a candidate may start.
func (h *AttemptHandler) ListExams(c *gin.Context) {
	exams, err := h.examService.ListPublished(c.Request.Context())
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"exams": exams})
}

// Start godoc
// POST /api/v1/exams/:exam_id/attempts
// Validates eligibility and starts (or rejoins) an attempt.
func (h *AttemptHandler) Start(c *gin.Context) {
	claims := middleware.GetClaims(c)
	examID, ok := h.examIDParam(c)
	if !ok {
		return
	}

	// Open exams need no entry token, so an empty body is allowed here.
	var req model.StartAttemptRequest
	if c.Request.ContentLength > 0 {
		if fields := validator.Bind(c, &req); fields != nil {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
			return
		}
	}

	result, err := h.attemptService.Start(c.Request.Context(), claims.CandidateID, examID, req.EntryToken)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrExamNotAvailable):
			response.Fail(c, http.StatusConflict, response.ErrExamNotAvailable)
		case errors.Is(err, service.ErrInvalidEntryToken):
			response.Fail(c, http.StatusForbidden, response.ErrInvalidEntryToken)
		case errors.Is(err, service.ErrMaxAttemptsReached):
			response.Fail(c, http.StatusConflict, response.ErrMaxAttemptsReached)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusCreated, result)
}

// RecordAnswer godoc
// PUT /api/v1/exams/:exam_id/attempts/current/answers
// Upserts one answer into the live attempt.
func (h *AttemptHandler) RecordAnswer(c *gin.Context) {
	claims := middleware.GetClaims(c)
	examID, ok := h.examIDParam(c)
	if !ok {
		return
	}

	var req model.RecordAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.attemptService.RecordAnswer(c.Request.Context(), claims.CandidateID, examID, &req); err != nil {
		h.failLifecycle(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"question_id": req.QuestionID})
}

// ReportViolation godoc
// POST /api/v1/exams/:exam_id/attempts/current/violations
// Reports one client-observed integrity signal.
func (h *AttemptHandler) ReportViolation(c *gin.Context) {
	claims := middleware.GetClaims(c)
	examID, ok := h.examIDParam(c)
	if !ok {
		return
	}

	var req model.ReportViolationRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	accepted, count, err := h.attemptService.ReportViolation(c.Request.Context(), claims.CandidateID, examID, &req)
	if err != nil {
		h.failLifecycle(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"accepted": accepted,
		"count":    count,
	})
}

// Pause godoc
// POST /api/v1/exams/:exam_id/attempts/current/pause
func (h *AttemptHandler) Pause(c *gin.Context) {
	claims := middleware.GetClaims(c)
	examID, ok := h.examIDParam(c)
	if !ok {
		return
	}

	if err := h.attemptService.Pause(c.Request.Context(), claims.CandidateID, examID); err != nil {
		h.failLifecycle(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"state": model.AttemptStatePaused})
}

// Resume godoc
// POST /api/v1/exams/:exam_id/attempts/current/resume
func (h *AttemptHandler) Resume(c *gin.Context) {
	claims := middleware.GetClaims(c)
	examID, ok := h.examIDParam(c)
	if !ok {
		return
	}

	if err := h.attemptService.Resume(c.Request.Context(), claims.CandidateID, examID); err != nil {
		h.failLifecycle(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"state": model.AttemptStateInProgress})
}

// Submit godoc
// POST /api/v1/exams/:exam_id/attempts/current/submit
// Finalizes and grades the attempt. Safe to call twice; the second call
// returns the original score.
func (h *AttemptHandler) Submit(c *gin.Context) {
	claims := middleware.GetClaims(c)
	examID, ok := h.examIDParam(c)
	if !ok {
		return
	}

	score, err := h.attemptService.Submit(c.Request.Context(), claims.CandidateID, examID)
	if err != nil {
		h.failLifecycle(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"score": score})
}

// Abandon godoc
// DELETE /api/v1/exams/:exam_id/attempts/current
// Ends the attempt without grading.
func (h *AttemptHandler) Abandon(c *gin.Context) {
	claims := middleware.GetClaims(c)
	examID, ok := h.examIDParam(c)
	if !ok {
		return
	}

	if err := h.attemptService.Abandon(c.Request.Context(), claims.CandidateID, examID); err != nil {
		h.failLifecycle(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"state": model.AttemptStateAbandoned})
}

// GetState godoc
// GET /api/v1/exams/:exam_id/attempts/current
// Returns the reload-recovery view: state, autosaved answers and the
// remaining seconds recomputed from the wall clock.
func (h *AttemptHandler) GetState(c *gin.Context) {
	claims := middleware.GetClaims(c)
	examID, ok := h.examIDParam(c)
	if !ok {
		return
	}

	state, err := h.attemptService.GetState(c.Request.Context(), claims.CandidateID, examID)
	if err != nil {
		if errors.Is(err, service.ErrNoActiveAttempt) {
			response.Fail(c, http.StatusNotFound, response.ErrAttemptNotActive)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, state)
}

// History godoc
// GET /api/v1/exams/:exam_id/attempts
// Lists the candidate's attempts for an exam.
func (h *AttemptHandler) History(c *gin.Context) {
	claims := middleware.GetClaims(c)
	examID, ok := h.examIDParam(c)
	if !ok {
		return
	}

	attempts, err := h.attemptService.History(c.Request.Context(), claims.CandidateID, examID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"attempts": attempts})
}

// Violations godoc
// GET /api/v1/attempts/:attempt_id/violations
// Lists the integrity events recorded against one of the candidate's
// attempts.
func (h *AttemptHandler) Violations(c *gin.Context) {
	claims := middleware.GetClaims(c)
	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	violations, err := h.attemptService.Violations(c.Request.Context(), claims.CandidateID, attemptID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			response.Fail(c, http.StatusNotFound, response.ErrAttemptNotFound)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"violations": violations})
}

func (h *AttemptHandler) examIDParam(c *gin.Context) (uuid.UUID, bool) {
	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return examID, true
}

// failLifecycle maps engine and registry errors onto API error codes.
func (h *AttemptHandler) failLifecycle(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrNoActiveAttempt):
		response.Fail(c, http.StatusNotFound, response.ErrAttemptNotActive)
	case errors.Is(err, engine.ErrPauseNotAllowed):
		response.Fail(c, http.StatusConflict, response.ErrPauseNotAllowed)
	case errors.Is(err, engine.ErrSessionNotActive):
		response.Fail(c, http.StatusConflict, response.ErrAttemptFinalized)
	case errors.Is(err, engine.ErrInvalidTransition):
		response.Fail(c, http.StatusConflict, response.ErrInvalidTransition)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}
