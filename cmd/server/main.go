package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/certeva/certexam-backend/internal/config"
	"github.com/certeva/certexam-backend/internal/database"
	"github.com/certeva/certexam-backend/internal/engine"
	"github.com/certeva/certexam-backend/internal/handler"
	"github.com/certeva/certexam-backend/internal/logger"
	"github.com/certeva/certexam-backend/internal/repository"
	"github.com/certeva/certexam-backend/internal/router"
	"github.com/certeva/certexam-backend/internal/service"
	"github.com/certeva/certexam-backend/internal/validator"
	"github.com/certeva/certexam-backend/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting CertExam Backend")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Initialize Repositories ───────────────────────────────────────
	candidateRepo := repository.NewCandidateRepository(pool)
	examRepo := repository.NewExamRepository(pool)
	attemptRepo := repository.NewAttemptRepository(pool)
	certificateRepo := repository.NewCertificateRepository(pool)

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg, rdb)
	candidateService := service.NewCandidateService(candidateRepo)
	examService := service.NewExamService(examRepo, rdb, log)
	attemptService := service.NewAttemptService(
		attemptRepo,
		examService,
		rdb,
		engine.SystemClock(),
		engine.NoopProber{},
		log,
	)
	var renderer service.Renderer = service.NewLogRenderer(log)
	if _, err := os.Stat(cfg.CertificateFontPath); err == nil {
		renderer = service.NewPDFRenderer(cfg.CertificateOutputDir, cfg.CertificateFontPath, log)
	} else {
		log.Warn().
			Str("font_path", cfg.CertificateFontPath).
			Msg("certificate font not found, pdf rendering disabled")
	}
	certificateService := service.NewCertificateService(
		cfg,
		certificateRepo,
		attemptRepo,
		candidateRepo,
		examRepo,
		renderer,
		log,
	)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Auth:        handler.NewAuthHandler(authService, candidateService),
		Attempt:     handler.NewAttemptHandler(attemptService, examService),
		Certificate: handler.NewCertificateHandler(certificateService),
		WS:          handler.NewWSHandler(attemptService, log, cfg.AllowedOrigins),
		System:      handler.NewSystemHandler(rdb, log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())

	answerWorker := worker.NewAnswerWorker(pool, rdb, log)
	violationWorker := worker.NewViolationWorker(pool, rdb, log)
	resultWorker := worker.NewResultWorker(pool, rdb, log)

	go answerWorker.Start(workerCtx)
	go violationWorker.Start(workerCtx)
	go resultWorker.Start(workerCtx)

	// ─── Prewarm Redis Caches ─────────────────────────────────────────
	// Load all published exams into Redis BEFORE accepting traffic so a
	// cohort starting simultaneously never lazy-loads under load.
	if err := examService.PrewarmAllCaches(ctx); err != nil {
		log.Warn().Err(err).Msg("Cache prewarm failed")
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Release live sessions so monitors and tickers stop cleanly.
	attemptService.Shutdown()

	// 3. Stop background workers and wait for queues to drain.
	workerCancel()
	time.Sleep(2 * time.Second)

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
