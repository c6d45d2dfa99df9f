package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/certeva/certexam-backend/internal/middleware"
	"github.com/certeva/certexam-backend/internal/model"
	"github.com/certeva/certexam-backend/internal/response"
	"github.com/certeva/certexam-backend/internal/service"
	"github.com/certeva/certexam-backend/internal/validator"
)

// AuthHandler handles candidate authentication endpoints.
type AuthHandler struct {
	authService      *service.AuthService
	candidateService *service.CandidateService
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authService *service.AuthService, candidateService *service.CandidateService) *AuthHandler {
	return &AuthHandler{
		authService:      authService,
		candidateService: candidateService,
	}
}

// Login godoc
// POST /api/v1/auth/login
// Validates email + password, rejects if a session is already active on
// another device, returns JWT.
func (h *AuthHandler) Login(c *gin.Context) {
	var req model.LoginRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	candidate, err := h.candidateService.GetByEmail(c.Request.Context(), req.Email)
	if err != nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrInvalidCredentials)
		return
	}

	if err := h.authService.CheckPassword(candidate.PasswordHash, req.Password); err != nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrInvalidCredentials)
		return
	}

	token, err := h.authService.GenerateToken(c.Request.Context(), candidate.ID, candidate.FullName)
	if err != nil {
		if errors.Is(err, service.ErrSessionAlreadyActive) {
			response.Fail(c, http.StatusConflict, response.ErrSessionActive)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"token": token,
		"candidate": gin.H{
			"id":        candidate.ID,
			"email":     candidate.Email,
			"full_name": candidate.FullName,
		},
	})
}

// Me godoc
// GET /api/v1/auth/me
// Returns the profile of the currently authenticated candidate.
func (h *AuthHandler) Me(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	candidate, err := h.candidateService.GetByID(c.Request.Context(), claims.CandidateID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"candidate": gin.H{
			"id":        candidate.ID,
			"email":     candidate.Email,
			"full_name": candidate.FullName,
		},
	})
}

// Logout godoc
// POST /api/v1/auth/logout
// Ends the candidate's login session so another device may log in.
func (h *AuthHandler) Logout(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	if err := h.authService.ResetSession(c.Request.Context(), claims.CandidateID); err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}
