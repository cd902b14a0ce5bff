package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"forward_bot/internal/logger"
)

// Server exposes the dashboard actions over HTTP.
type Server struct {
	srv *http.Server
}

// NewServer configures the Gin router with all routes
func NewServer(addr string, service ForwardService) *Server {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(logger.L()))
	r.Use(CORSMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "forward-bot",
		})
	})

	h := &handlers{service: service}

	v1 := r.Group("/api/v1")
	{
		v1.POST("/config", h.Configure)
		v1.GET("/status", h.Status)

		fwd := v1.Group("/forward")
		{
			fwd.POST("", h.StartForward)
			fwd.POST("/resume", h.Resume)
			fwd.POST("/stop", h.Stop)
			fwd.GET("/progress", h.Progress)
		}
	}

	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Run starts the HTTP server (blocking, run in a goroutine)
func (s *Server) Run() error {
	logger.L().Infof("API server listening on %s", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
