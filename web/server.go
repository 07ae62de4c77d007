package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"admissions-agent/agent"
	"admissions-agent/calllog"
	"admissions-agent/config"
	"admissions-agent/knowledge"
	"admissions-agent/llmclient"
	"admissions-agent/session"
	"admissions-agent/web/handlers"
	"admissions-agent/web/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Server struct {
	router   *gin.Engine
	handler  *handlers.CallHandler
	limiter  *middleware.CallRateLimiter
	sessions *session.Store
	logger   *zap.Logger
	config   *config.Config
}

func NewServer(cfg *config.Config, ag *agent.Agent, sessions *session.Store, client *llmclient.Client, logs *calllog.Store, retriever *knowledge.Retriever, logger *zap.Logger) (*Server, error) {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(func(c *gin.Context) {
		c.Set("logger", logger)
		c.Next()
	})

	callHandler, err := handlers.NewCallHandler(cfg, ag, sessions, client, logs, retriever, logger)
	if err != nil {
		return nil, err
	}

	limiter := middleware.NewCallRateLimiter(middleware.RateLimiterConfig{
		TurnsPerMinute:  cfg.RateLimitTurnsPerMin,
		BurstSize:       cfg.RateLimitBurstSize,
		CleanupInterval: cfg.CleanupInterval,
	}, logger)

	server := &Server{
		router:   router,
		handler:  callHandler,
		limiter:  limiter,
		sessions: sessions,
		logger:   logger,
		config:   cfg,
	}

	server.setupRoutes()
	return server, nil
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handler.Health)
	s.router.GET("/api/debug", s.handler.Debug)
	s.router.GET("/api/metrics", s.handler.Metrics)
	s.router.GET("/audio/:file", s.handler.Audio)

	s.router.POST("/api/start_call", s.handler.StartCall)
	s.router.POST("/api/query", middleware.RateLimitMiddleware(s.limiter), s.handler.Query)
}

// Handler returns the persistence hook for sessions dropped by the
// expiry loop.
func (s *Server) Handler() *handlers.CallHandler {
	return s.handler
}

func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.config.WebPort)
	s.logger.Info("Starting web server", zap.String("address", addr))

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Web server failed to start", zap.Error(err))
		}
	}()

	<-ctx.Done()

	s.logger.Info("Shutting down web server")
	s.limiter.Stop()
	return srv.Shutdown(context.Background())
}
