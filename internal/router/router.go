package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/praxislabs/codelab-engine/internal/config"
	"github.com/praxislabs/codelab-engine/internal/handler"
	"github.com/praxislabs/codelab-engine/internal/middleware"
	"github.com/praxislabs/codelab-engine/internal/response"
	"github.com/praxislabs/codelab-engine/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Session *handler.SessionHandler
	WS      *handler.WSHandler
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
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
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

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Apply brotli middleware globally. The compiled preview documents are
	// plain HTML and compress well.
	router.Use(middleware.Brotli())

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// Rate limiter for submission dispatch (30 requests per minute per IP);
	// edits flow over the WebSocket so this only gates the expensive path.
	submitLimiter := middleware.NewRateLimiter(30, time.Minute)

	// ─── 1. Session Group (Student JWT) ────────────────────────────────
	sessionAPI := router.Group("/api/v1/sessions")
	sessionAPI.Use(middleware.RequireStudentJWT(authService))
	{
		sessionAPI.POST("", handlers.Session.OpenSession)
		sessionAPI.GET("/:session_id", handlers.Session.GetSession)
		sessionAPI.POST("/:session_id/begin", handlers.Session.BeginSession)
		sessionAPI.POST("/:session_id/consent", handlers.Session.Consent)
		sessionAPI.PUT("/:session_id/buffers", handlers.Session.UpdateBuffers)
		sessionAPI.GET("/:session_id/preview", handlers.Session.Preview)
		sessionAPI.POST("/:session_id/submit", submitLimiter.Middleware(), handlers.Session.Submit)
		sessionAPI.POST("/:session_id/navigate", handlers.Session.Navigate)
		sessionAPI.POST("/:session_id/proctor", handlers.Session.ReportProctorEvent)
		sessionAPI.DELETE("/:session_id", handlers.Session.CloseSession)
	}

	// ─── 2. WebSocket Group (Student WS Auth) ──────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireStudentWSAuth(authService))
	{
		ws.GET("/sessions/:session_id/stream", handlers.WS.SessionStream)
	}

	return router
}
