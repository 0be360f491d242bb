// Package api exposes the query runtime over HTTP.
package api

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/finsight-ai/finsight/pkg/history"
	"github.com/finsight-ai/finsight/pkg/queue"
)

// Server wires the worker pool and the optional history store into HTTP
// handlers. A nil store disables the archive lookups.
type Server struct {
	pool   *queue.Pool
	store  *history.Store
	logger *slog.Logger
}

// NewServer creates the API server.
func NewServer(pool *queue.Pool, store *history.Store, logger *slog.Logger) *Server {
	return &Server{pool: pool, store: store, logger: logger}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(s.requestLogger(), gin.Recovery())

	v1 := r.Group("/api/v1")
	{
		v1.POST("/queries", s.submitQuery)
		v1.GET("/queries", s.listQueries)
		v1.GET("/queries/:id", s.getQuery)
		v1.GET("/queries/:id/traces", s.getQueryTraces)
		v1.DELETE("/queries/:id", s.cancelQuery)
		v1.GET("/health", s.health)
	}
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}

// requestLogger logs one line per request through the shared slog logger.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
