package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Pinger reports whether a backing dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	Engine *gin.Engine
	Addr   string
	store  Pinger
}

func New(addr string, store Pinger, mode string) *Server {
	if mode == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()

	s := &Server{
		Engine: r,
		Addr:   addr,
		store:  store,
	}

	// Health check endpoint with event store connectivity verification
	r.GET("/health", s.healthHandler)

	return s
}

func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if s.store != nil {
		if err := s.store.Ping(ctx); err != nil {
			slog.Error("Health check failed: event store unreachable", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "event store unreachable",
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":      "healthy",
		"event_store": "connected",
	})
}

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.Addr,
		Handler: s.Engine,
	}

	slog.Info("Starting HTTP Server...", "address", s.Addr)

	go func() {
		<-ctx.Done()
		slog.Info("Stopping HTTP Server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP Server forced to shutdown", "error", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
