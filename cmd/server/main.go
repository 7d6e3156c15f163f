package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-assessment/internal/config"
	"github.com/stemsi/exstem-assessment/internal/database"
	"github.com/stemsi/exstem-assessment/internal/handler"
	"github.com/stemsi/exstem-assessment/internal/logger"
	"github.com/stemsi/exstem-assessment/internal/middleware"
	"github.com/stemsi/exstem-assessment/internal/repository"
	"github.com/stemsi/exstem-assessment/internal/router"
	"github.com/stemsi/exstem-assessment/internal/service"
	"github.com/stemsi/exstem-assessment/internal/validator"
	"github.com/stemsi/exstem-assessment/internal/worker"
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
		Msg("Starting ExStem Assessment")

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
	examRepo := repository.NewExamRepository(pool)
	questionRepo := repository.NewQuestionRepository(pool)
	sessionRepo := repository.NewExamSessionRepository(pool)
	monitorRepo := repository.NewMonitorRepository(pool)
	auditRepo := repository.NewGradeAuditRepository(pool)

	// ─── Initialize Services ──────────────────────────────────────────
	payloadCache := service.NewRedisPayloadCache(rdb, cfg.ExamCacheTTL)
	publisher := service.NewRedisEventPublisher(rdb)
	auditQueue := service.NewRedisAuditQueue(rdb)

	authService := service.NewAuthService(cfg)
	examService := service.NewExamService(examRepo, questionRepo, payloadCache, log)
	questionService := service.NewQuestionService(questionRepo, log)
	sessionService := service.NewExamSessionService(
		sessionRepo, examRepo, questionRepo, examService, publisher, auditQueue, log,
	)
	monitorService := service.NewMonitorService(monitorRepo, examRepo)

	// ─── Initialize Workers ───────────────────────────────────────────
	auditList := worker.NewRedisQueue(rdb, config.WorkerKey.PersistGradeAuditQueue)
	auditWorker := worker.NewGradeAuditWorker(auditList, auditRepo, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		StudentPortal: handler.NewStudentPortalHandler(sessionService, examService, log),
		Result:        handler.NewResultHandler(sessionService, log),
		Exam:          handler.NewExamHandler(examService, log),
		Question:      handler.NewQuestionHandler(questionService, log),
		Monitor:       handler.NewMonitorHandler(monitorService, publisher, log),
		WS:            handler.NewWSHandler(sessionService, log, cfg.AllowedOrigins),
		System: handler.NewSystemHandler(
			map[string]handler.Check{
				"postgres": pool.Ping,
				"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
			},
			map[string]handler.QueueDepth{
				config.WorkerKey.PersistGradeAuditQueue: auditList.Len,
			},
			log,
		),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	workerDone := make(chan struct{})
	go func() {
		auditWorker.Start(workerCtx)
		close(workerDone)
	}()

	// ─── Prewarm Redis Caches ─────────────────────────────────────────
	// Load all published exams into Redis BEFORE accepting traffic.
	// This avoids race conditions from lazy loading under thundering herd.
	if err := examService.PrewarmAllCaches(ctx); err != nil {
		log.Warn().Err(err).Msg("Cache prewarm failed")
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(ctx, cfg, router.Deps{
		Tokens:          authService,
		AutosaveCounter: middleware.NewRedisWindowCounter(rdb),
		Log:             log,
	}, handlers)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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

	// 2. Stop the audit worker and wait for its final flush.
	workerCancel()
	select {
	case <-workerDone:
	case <-time.After(5 * time.Second):
		log.Warn().Msg("Audit worker did not drain in time")
	}

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
