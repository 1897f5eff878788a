// Package server is the HTTP gateway over the worker protocol. It adapts
// REST requests onto the single-client, one-command-at-a-time channel; the
// client's lock is the serialization point.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	ginlogger "github.com/gin-contrib/logger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/embedworks/embedd/internal/config"
	"github.com/embedworks/embedd/pkg/client"
)

type Server struct {
	ginEngine *gin.Engine
	inner     *http.Server

	client *client.Client
	stats  struct {
		requests int64
		start    time.Time
	}
}

func NewServer(cfg *config.Config, c *client.Client) *Server {
	gin.SetMode(getGinMode(cfg.Environment))
	r := gin.New()

	r.Use(requestID())
	r.Use(ginlogger.SetLogger(
		ginlogger.WithUTC(true),
	))
	r.Use(cors.New(
		cors.Config{
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowOrigins:     []string{"*"},
			AllowHeaders:     []string{"*"},
			ExposeHeaders:    []string{"*"},
			AllowCredentials: true,
			MaxAge:           300,
		},
	))
	r.Use(gin.Recovery())

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	s := &Server{
		ginEngine: r,
		inner: &http.Server{
			Handler: r,
			Addr:    addr,
		},
		client: c,
	}
	s.stats.start = time.Now()
	s.setupRoutes()

	return s
}

// requestID tags every request so gateway log lines can be correlated.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

func (s *Server) Start() error {
	return s.inner.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return s.inner.Shutdown(ctx)
}

// Engine exposes the router for tests.
func (s *Server) Engine() *gin.Engine {
	return s.ginEngine
}

func getGinMode(env string) string {
	switch env {
	case "dev":
		return gin.DebugMode
	case "test":
		return gin.TestMode
	default:
		return gin.ReleaseMode
	}
}
