package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/certeva/certexam-backend/internal/response"
	"github.com/certeva/certexam-backend/internal/service"
)

// CertificateHandler exposes certificate eligibility and issuance.
type CertificateHandler struct {
	certificateService *service.CertificateService
}

// NewCertificateHandler creates a new CertificateHandler.
func NewCertificateHandler(certificateService *service.CertificateService) *CertificateHandler {
	return &CertificateHandler{certificateService: certificateService}
}

// CheckEligibility godoc
// GET /api/v1/attempts/:attempt_id/certificate/eligibility
// Evaluates the attempt against the exam's certificate template.
func (h *CertificateHandler) CheckEligibility(c *gin.Context) {
	attemptID, ok := h.attemptIDParam(c)
	if !ok {
		return
	}

	result, err := h.certificateService.CheckEligibility(c.Request.Context(), attemptID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			response.Fail(c, http.StatusNotFound, response.ErrAttemptNotFound)
			return
		}
		if errors.Is(err, service.ErrAttemptNotGraded) {
			response.Fail(c, http.StatusConflict, response.ErrAttemptNotActive)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// Issue godoc
// POST /api/v1/attempts/:attempt_id/certificate
// Issues a certificate for an eligible attempt. Idempotent.
func (h *CertificateHandler) Issue(c *gin.Context) {
	attemptID, ok := h.attemptIDParam(c)
	if !ok {
		return
	}

	cert, err := h.certificateService.Issue(c.Request.Context(), attemptID)
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			response.Fail(c, http.StatusNotFound, response.ErrAttemptNotFound)
		case errors.Is(err, service.ErrNotEligible):
			response.Fail(c, http.StatusConflict, response.ErrNotEligible)
		case errors.Is(err, service.ErrAttemptNotGraded):
			response.Fail(c, http.StatusConflict, response.ErrAttemptNotActive)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"certificate": cert})
}

// Get godoc
// GET /api/v1/attempts/:attempt_id/certificate
// Returns the issued certificate for an attempt.
func (h *CertificateHandler) Get(c *gin.Context) {
	attemptID, ok := h.attemptIDParam(c)
	if !ok {
		return
	}

	cert, err := h.certificateService.GetByAttempt(c.Request.Context(), attemptID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			response.Fail(c, http.StatusNotFound, response.ErrCertificateNotFound)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"certificate": cert})
}

func (h *CertificateHandler) attemptIDParam(c *gin.Context) (uuid.UUID, bool) {
	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return attemptID, true
}
