package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/certeva/certexam-backend/internal/config"
	"github.com/certeva/certexam-backend/internal/handler"
	"github.com/certeva/certexam-backend/internal/middleware"
	"github.com/certeva/certexam-backend/internal/response"
	"github.com/certeva/certexam-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth        *handler.AuthHandler
	Attempt     *handler.AttemptHandler
	Certificate *handler.CertificateHandler
	WS          *handler.WSHandler
	System      *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// Restrict to the configured list when set; otherwise allow all (*)
	// so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Request ID first so every response carries metadata.
	router.Use(response.RequestIDMiddleware())
	router.Use(middleware.Brotli())

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// Rate limiter for auth routes (30 requests per minute per IP).
	authLimiter := middleware.NewRateLimiter(30, time.Minute)

	// ─── 1. Auth Group (Public, Rate Limited) ──────────────────────────
	auth := router.Group("/api/v1/auth")
	auth.Use(authLimiter.Middleware())
	{
		auth.POST("/login", handlers.Auth.Login)
		auth.POST("/logout", middleware.RequireCandidateJWT(authService), handlers.Auth.Logout)
		auth.GET("/me", middleware.RequireCandidateJWT(authService), handlers.Auth.Me)
	}

	// ─── 2. Candidate Group (JWT + Single Device) ──────────────────────
	api := router.Group("/api/v1")
	api.Use(
		middleware.RequireCandidateJWT(authService),
		middleware.CheckSingleDeviceSession(authService),
	)
	{
		api.GET("/exams", handlers.Attempt.ListExams)

		api.POST("/exams/:exam_id/attempts", handlers.Attempt.Start)
		api.GET("/exams/:exam_id/attempts", handlers.Attempt.History)
		api.GET("/exams/:exam_id/attempts/current", handlers.Attempt.GetState)
		api.DELETE("/exams/:exam_id/attempts/current", handlers.Attempt.Abandon)
		api.PUT("/exams/:exam_id/attempts/current/answers", handlers.Attempt.RecordAnswer)
		api.POST("/exams/:exam_id/attempts/current/violations", handlers.Attempt.ReportViolation)
		api.POST("/exams/:exam_id/attempts/current/pause", handlers.Attempt.Pause)
		api.POST("/exams/:exam_id/attempts/current/resume", handlers.Attempt.Resume)
		api.POST("/exams/:exam_id/attempts/current/submit", handlers.Attempt.Submit)

		api.GET("/attempts/:attempt_id/violations", handlers.Attempt.Violations)

		api.GET("/attempts/:attempt_id/certificate/eligibility", handlers.Certificate.CheckEligibility)
		api.POST("/attempts/:attempt_id/certificate", handlers.Certificate.Issue)
		api.GET("/attempts/:attempt_id/certificate", handlers.Certificate.Get)

		api.GET("/system/metrics", handlers.System.SystemMetricsSSE)
	}

	// ─── 3. WebSocket Group (WS Auth via query token) ──────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireCandidateWSAuth(authService))
	{
		ws.GET("/exams/:exam_id/stream", handlers.WS.AttemptStream)
	}

	return router
}
