package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"salon-chat/config"
	"salon-chat/internal/handler"
	"salon-chat/internal/middleware"
	"salon-chat/internal/services"
	"salon-chat/internal/websocket"
	"salon-chat/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type Server struct {
	httpServer *http.Server
	engine     *gin.Engine
	config     *config.Config
	logger     *logger.Logger
}

var (
	ReleaseMode = "release"
	DebugMode   = "debug"
	TestMode    = "test"
)

type Handlers struct {
	Chats    *handler.ChatHandler
	Messages *handler.MessageHandler
	Presence *handler.PresenceHandler
	Uploads  *handler.UploadHandler
	Health   *handler.HealthHandler
	Gateway  *websocket.Gateway
}

func New(cfg *config.Config, l *logger.Logger) *Server {
	if cfg.AppMode == ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	} else if cfg.AppMode == TestMode {
		gin.SetMode(gin.TestMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%s", cfg.AppPort),
			Handler:           otelhttp.NewHandler(engine, "http.server"),
			ReadHeaderTimeout: 5 * time.Second,
		},
		engine: engine,
		config: cfg,
		logger: l,
	}
}

// Engine exposes the router, mainly for tests.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// SetupRoutes mounts every route. limiter may be nil when redis is not
// configured.
func (s *Server) SetupRoutes(h Handlers, verifier services.IdentityVerifier, limiter middleware.RequestLimiter) {
	s.engine.Use(middleware.RequestIDMiddleware())
	s.engine.Use(middleware.CORSMiddleware(s.config.CORSOrigins))
	s.engine.Use(middleware.LoggingMiddleware(s.logger))
	s.engine.Use(middleware.ErrorHandler(s.logger))

	s.engine.GET("/ping", h.Health.Ping)
	s.engine.GET("/health", h.Health.Health)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.engine.GET("/ws", h.Gateway.Handle)

	v1 := s.engine.Group("/v1")
	v1.Use(middleware.AuthMiddleware(verifier))
	if limiter != nil {
		v1.Use(middleware.RateLimitMiddleware(limiter, s.logger))
	}

	chats := v1.Group("/chats")
	{
		chats.GET("", h.Chats.List)
		chats.POST("", h.Chats.Create)
		chats.GET("/:id", h.Chats.Get)
		chats.PUT("/:id", h.Chats.Update)
		chats.DELETE("/:id", h.Chats.Deactivate)
		chats.GET("/:id/members", h.Chats.Members)
		chats.POST("/:id/members", h.Chats.AddMembers)
		chats.DELETE("/:id/members/:memberId", h.Chats.RemoveMember)
		chats.PUT("/:id/members/:memberId/role", h.Chats.SetRole)
		chats.POST("/:id/leave", h.Chats.Leave)
		chats.PUT("/:id/mute", h.Chats.SetMute)
		chats.GET("/:id/messages", h.Messages.List)
		chats.POST("/:id/messages", h.Messages.Send)
		chats.POST("/:id/mark-read", h.Chats.MarkRead)
		chats.GET("/:id/unread-count", h.Chats.UnreadCount)
	}

	messages := v1.Group("/messages")
	{
		messages.GET("/:id", h.Messages.Get)
		messages.PUT("/:id", h.Messages.Edit)
		messages.DELETE("/:id", h.Messages.Delete)
		messages.POST("/:id/read", h.Messages.MarkRead)
	}

	v1.GET("/unread", h.Chats.UnreadSummary)
	v1.GET("/presence", h.Presence.Get)
	v1.POST("/uploads/presign", h.Uploads.Presign)
}

// Start serves until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if s.logger != nil {
			s.logger.Infof("Starting the server on port %s...", s.config.AppPort)
		}
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			if s.logger != nil {
				s.logger.Errorf("Error in starting the server: %s", err)
			}
			return err
		}
		return nil
	case <-ctx.Done():
	}

	if s.logger != nil {
		s.logger.Infof("Quitting signal received.. Shutting down after 5 seconds")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		if s.logger != nil {
			s.logger.Infof("Error in the graceful shutdown of the server: %s", err)
		}
		return err
	}

	if s.logger != nil {
		s.logger.Infof("Server stopped gracefully")
	}
	return nil
}
