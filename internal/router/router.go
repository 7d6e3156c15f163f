package router

import (
	"context"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-assessment/internal/config"
	"github.com/stemsi/exstem-assessment/internal/handler"
	"github.com/stemsi/exstem-assessment/internal/middleware"
	"github.com/stemsi/exstem-assessment/internal/model"
	"github.com/stemsi/exstem-assessment/internal/response"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	StudentPortal *handler.StudentPortalHandler
	Result        *handler.ResultHandler
	Exam          *handler.ExamHandler
	Question      *handler.QuestionHandler
	Monitor       *handler.MonitorHandler
	WS            *handler.WSHandler
	System        *handler.SystemHandler
}

// Deps carries the collaborators middlewares need.
type Deps struct {
	Tokens          middleware.TokenValidator
	AutosaveCounter middleware.WindowCounter
	Log             zerolog.Logger
}

// WS connections per IP per minute.
const wsConnectRate = 30

// SetupRouter configures all Gin route groups with appropriate middlewares.
// ctx bounds background goroutines owned by middlewares.
func SetupRouter(ctx context.Context, cfg *config.Config, deps Deps, handlers *Handlers) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID", "Retry-After"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())
	router.Use(requestLogger(deps.Log))

	router.GET("/health", handlers.System.Health)

	requireStudent := middleware.RequireRole(model.RoleStudent)
	requireAdmin := middleware.RequireRole(model.RoleAdmin)

	api := router.Group("/api/v1")
	api.Use(middleware.RequireAuth(deps.Tokens))

	// ─── 1. Exam sessions (student) ────────────────────────────────────
	sessions := api.Group("/exams/:exam_id")
	sessions.Use(requireStudent, middleware.NoStore())
	{
		sessions.POST("/start", handlers.StudentPortal.StartExam)
		sessions.PUT("/session",
			middleware.AutosaveLimit(deps.AutosaveCounter, cfg.AutosaveRatePerMinute, deps.Log),
			handlers.StudentPortal.Autosave,
		)
		sessions.POST("/submit", handlers.StudentPortal.SubmitExam)
	}

	student := api.Group("/student")
	student.Use(requireStudent, middleware.NoStore())
	{
		student.GET("/exams", handlers.StudentPortal.ListAvailableExams)
		student.GET("/results", handlers.StudentPortal.MyResults)
	}

	// ─── 2. Results (any caller; students are narrowed to their own) ───
	results := api.Group("/results")
	results.Use(middleware.NoStore())
	{
		results.GET("", middleware.Brotli(), handlers.Result.QueryResults)
		results.POST("", middleware.Brotli(), handlers.Result.QueryResults)
		results.POST("/grade", requireAdmin, handlers.Result.GradeOverride)
	}

	// ─── 3. Exam catalog (read) ────────────────────────────────────────
	api.GET("/exams", handlers.Exam.ListExams)
	api.GET("/exams/:exam_id", handlers.Exam.GetExam)

	// ─── 4. Admin ──────────────────────────────────────────────────────
	admin := api.Group("/admin")
	admin.Use(requireAdmin)
	{
		admin.POST("/exams", handlers.Exam.CreateExam)
		admin.PUT("/exams/:id", handlers.Exam.UpdateExam)
		admin.DELETE("/exams/:id", handlers.Exam.DeleteExam)
		admin.POST("/exams/:id/publish", handlers.Exam.PublishExam)
		admin.POST("/exams/:id/unpublish", handlers.Exam.UnpublishExam)
		admin.GET("/exams/:id/monitor", handlers.Monitor.MonitorExamSSE)

		admin.POST("/questions", middleware.Brotli(), handlers.Question.CreateQuestions)
		admin.GET("/questions", middleware.Brotli(), handlers.Question.ListQuestions)
		admin.GET("/questions/:id", handlers.Question.GetQuestion)

		admin.GET("/system/metrics", handlers.System.SystemMetricsSSE)
	}

	// ─── 5. WebSocket (token in query string) ──────────────────────────
	wsLimiter := middleware.NewRateLimiter(ctx, wsConnectRate, time.Minute, middleware.ByIP)
	ws := router.Group("/ws/v1")
	ws.Use(wsLimiter.Middleware(), middleware.RequireWSAuth(deps.Tokens), requireStudent)
	{
		ws.GET("/exams/:exam_id/stream", handlers.WS.ExamWebSocketStream)
	}

	return router
}

// requestLogger logs one line per request with the request id.
func requestLogger(log zerolog.Logger) gin.HandlerFunc {
	log = log.With().Str("component", "http").Logger()
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		ev := log.Debug()
		switch {
		case status >= 500:
			ev = log.Error()
		case status >= 400:
			ev = log.Info()
		}
		ev.Str("request_id", response.RequestID(c)).
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Msg("Request handled")
	}
}
