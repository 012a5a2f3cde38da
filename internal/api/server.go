package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/medmap-diagnosis-server/internal/domain"
	"github.com/medmap-diagnosis-server/internal/metrics"
	"github.com/medmap-diagnosis-server/internal/middleware"
	"github.com/medmap-diagnosis-server/internal/service"
)

// Server represents the HTTP server
type Server struct {
	cfg      *domain.Config
	services *service.Services
	logger   *logrus.Logger
	router   *gin.Engine
	server   *http.Server
}

// NewServer creates a new HTTP server instance
func NewServer(cfg *domain.Config, services *service.Services, logger *logrus.Logger) *Server {
	// Set Gin mode based on log level
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(middleware.CorrelationID())
	router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logger.WithFields(logrus.Fields{
			"request_id": middleware.RequestID(c),
			"panic":      recovered,
		}).Error("Recovered from panic")
		c.AbortWithStatusJSON(http.StatusInternalServerError, domain.NewAPIError(
			domain.CodeInternalServer, "Internal server error", "", middleware.RequestID(c),
		))
	}))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CORS(cfg.Server.CORSOrigins))
	router.Use(middleware.AuditLogger(logger))
	router.Use(metrics.GinMiddleware())
	if cfg.RateLimit.Enabled {
		limiter := middleware.NewIPRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
		router.Use(limiter.Middleware())
	}
	router.Use(middleware.RequestTimeout(cfg.Server.RequestTimeout))

	s := &Server{
		cfg:      cfg,
		services: services,
		logger:   logger,
		router:   router,
	}

	s.setupRoutes()

	return s
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	cfg := s.cfg.Server
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("HTTP server listening")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownTimeout := cfg.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.logger.Info("Shutting down HTTP server")
	return s.server.Shutdown(shutdownCtx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(metrics.Handler()))

	s.router.POST("/diagnose", s.handleDiagnose)
	s.router.GET("/alert", s.handleRedZoneAlert)

	api := s.router.Group("/api")
	{
		api.POST("/diagnose", s.handleDiagnose)
		api.GET("/clusters", s.handleRadialClusters)
		api.GET("/outbreak", s.handleOutbreak)
		api.POST("/report", s.handleSubmitReport)
		api.GET("/reports", s.handleListReports)
		api.GET("/diseases", s.handleListDiseases)
		api.GET("/diseases/:name", s.handleGetDisease)
	}

	admin := s.router.Group("/admin")
	{
		admin.GET("/clusters", s.handleExactClusters)
		admin.GET("/trends", s.handleTrends)
		admin.POST("/diseases", s.handleUpsertDiseases)
	}
}

// handleHealth reports liveness and report store reachability
func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status, code := "healthy", http.StatusOK
	store := "ok"
	if err := s.services.Ping(ctx); err != nil {
		s.logger.WithError(err).Warn("Health check: report store unreachable")
		status, code, store = "degraded", http.StatusServiceUnavailable, "unreachable"
	}

	c.JSON(code, gin.H{
		"status":    status,
		"store":     store,
		"timestamp": time.Now().UTC(),
	})
}
