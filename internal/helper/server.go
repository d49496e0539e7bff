package helper

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ytdown/ytdown"
	"github.com/ytdown/ytdown/internal/cache"
)

const (
	DefaultListen   = ":3500"
	DefaultCacheTTL = 5 * time.Minute
)

type Config struct {
	Listen   string
	CacheTTL time.Duration
}

func DefaultConfig() Config {
	return Config{
		Listen:   DefaultListen,
		CacheTTL: DefaultCacheTTL,
	}
}

type Server struct {
	config    Config
	extractor Extractor
	streams   *cache.Cache[*StreamList]
	previews  *cache.Cache[*Preview]
	log       *zap.SugaredLogger
}

func New(config Config, extractor Extractor) *Server {
	if config.Listen == "" {
		config.Listen = DefaultListen
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = DefaultCacheTTL
	}
	return &Server{
		config:    config,
		extractor: extractor,
		streams:   cache.New[*StreamList](config.CacheTTL),
		previews:  cache.New[*Preview](config.CacheTTL),
		log:       zap.S().Named("helper"),
	}
}

// Router builds the gin handler tree. Exposed separately from Run so tests
// can drive it with httptest.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), corsMiddleware())

	router.GET("/health", s.handleHealth)
	api := router.Group("/api/v1")
	api.GET("/streams/:videoId", s.handleStreams)
	api.GET("/preview/:videoId", s.handlePreview)
	api.GET("/download/:videoId", s.handleDownload)

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Endpoint not found"})
	})
	return router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.config.Listen,
		Handler: s.Router(),
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Infow("helper listening", "addr", s.config.Listen)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"message": "ytdown local helper is running",
	})
}

func (s *Server) handleStreams(c *gin.Context) {
	id, ok := paramVideoID(c)
	if !ok {
		return
	}

	cacheKey := "video_" + id.String()
	if list, ok := s.streams.Get(cacheKey); ok {
		s.log.Debugw("cache hit", "video_id", id)
		c.JSON(http.StatusOK, list)
		return
	}

	started := time.Now()
	list, err := s.extractor.Streams(c.Request.Context(), id)
	if err != nil {
		s.renderExtractorError(c, id, err)
		return
	}
	s.streams.Set(cacheKey, list)
	s.log.Infow("processed video", "video_id", id, "elapsed", time.Since(started))
	c.JSON(http.StatusOK, list)
}

func (s *Server) handlePreview(c *gin.Context) {
	id, ok := paramVideoID(c)
	if !ok {
		return
	}

	cacheKey := "preview_" + id.String()
	if preview, ok := s.previews.Get(cacheKey); ok {
		c.JSON(http.StatusOK, preview)
		return
	}

	preview, err := s.extractor.Preview(c.Request.Context(), id)
	if err != nil {
		s.renderExtractorError(c, id, err)
		return
	}
	s.previews.Set(cacheKey, preview)
	c.JSON(http.StatusOK, preview)
}

func (s *Server) handleDownload(c *gin.Context) {
	id, ok := paramVideoID(c)
	if !ok {
		return
	}
	quality := c.DefaultQuery("quality", "best")
	format := c.DefaultQuery("format", "mp4")

	result, err := s.extractor.DirectDownload(c.Request.Context(), id, quality, format)
	if err != nil {
		if errors.Is(err, ErrNoDirectStream) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Could not get direct download URL"})
			return
		}
		s.renderExtractorError(c, id, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) renderExtractorError(c *gin.Context, id ytdown.VideoID, err error) {
	s.log.Warnw("extraction failed", "video_id", id, "error", err)
	if errors.Is(err, context.DeadlineExceeded) {
		c.JSON(http.StatusRequestTimeout, gin.H{"error": "Request timeout - video processing took too long"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{
		"error":   "Failed to process video",
		"details": err.Error(),
	})
}

func paramVideoID(c *gin.Context) (ytdown.VideoID, bool) {
	id, err := ytdown.ParseVideoID(c.Param("videoId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid video ID format"})
		return "", false
	}
	return id, true
}

// corsMiddleware lets browser extensions hit the helper from any origin.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Accept, Accept-Language, Cache-Control, Pragma")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
