// Package server exposes the search orchestrator and stored data over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/qepting91/reddit-promo-scout/internal/dashboard"
	"github.com/qepting91/reddit-promo-scout/internal/domain"
	"github.com/qepting91/reddit-promo-scout/internal/export"
	"github.com/qepting91/reddit-promo-scout/internal/storage"
)

// Searcher is the orchestrator surface the API drives.
type Searcher interface {
	Search(ctx context.Context, req domain.SearchRequest) (*domain.SearchResult, error)
	CollectPromotional(ctx context.Context, communities []string, limit int) (*domain.SearchResult, error)
	Replay(ctx context.Context, historyID string) (*domain.SearchResult, error)
}

type Options struct {
	CORSOrigins   []string
	ExportMaxSize int
}

type Server struct {
	searcher Searcher
	store    storage.Gateway
	files    export.FileStore
	opts     Options
	logger   logrus.FieldLogger
	router   *gin.Engine
	started  time.Time
	now      func() time.Time
}

// New builds the router. files may be nil, in which case ?save=true exports are rejected.
func New(searcher Searcher, store storage.Gateway, files export.FileStore, opts Options, logger logrus.FieldLogger) *Server {
	if opts.ExportMaxSize <= 0 || opts.ExportMaxSize > export.MaxExportSize {
		opts.ExportMaxSize = export.MaxExportSize
	}
	s := &Server{
		searcher: searcher,
		store:    store,
		files:    files,
		opts:     opts,
		logger:   logger,
		now:      time.Now,
	}
	s.started = s.now()
	s.router = s.routes()
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), s.accessLog())
	router.Use(corsMiddleware(s.opts.CORSOrigins))

	api := router.Group("/api")
	api.POST("/search", s.handleSearch)
	api.POST("/collect-promotional", s.handleCollectPromotional)
	api.GET("/posts", s.handleListPosts)
	api.GET("/posts/:id", s.handleGetPost)
	api.GET("/history", s.handleListHistory)
	api.POST("/history/:id/replay", s.handleReplay)
	api.GET("/export", s.handleExport)
	api.GET("/download/:filename", s.handleDownload)
	api.GET("/statistics", s.handleStatistics)
	api.GET("/health", s.handleHealth)

	router.GET("/dashboard", gin.WrapH(dashboard.Handler(s.store, s.logger)))
	router.GET("/", func(c *gin.Context) {
		c.Redirect(http.StatusFound, "/dashboard")
	})
	return router
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	if len(origins) == 0 {
		return cors.Default()
	}
	for _, o := range origins {
		if o == "*" {
			return cors.Default()
		}
	}
	cfg := cors.DefaultConfig()
	cfg.AllowOrigins = origins
	return cors.New(cfg)
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		entry := s.logger.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
		})
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Warn("request failed")
			return
		}
		entry.Debug("request served")
	}
}
