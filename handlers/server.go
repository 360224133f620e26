// Package handlers exposes the indexed event feed over a REST API.
package handlers

import (
	"context"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/intentnet/portal/db"
	"github.com/intentnet/portal/logging"
	"github.com/intentnet/portal/services"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100

	shutdownTimeout = 10 * time.Second
)

var intentHashPattern = regexp.MustCompile(`^0x[0-9a-f]{64}$`)

// Server serves the read-only API over the indexed database.
type Server struct {
	logger  zerolog.Logger
	db      db.Database
	metrics *services.MetricsService
	srv     *http.Server
}

// NewServer builds the server and its routes. metrics may be nil, in which
// case /metrics is not registered.
func NewServer(logger zerolog.Logger, database db.Database, metrics *services.MetricsService) *Server {
	s := &Server{
		logger:  logging.WithModule(logger, "api"),
		db:      database,
		metrics: metrics,
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.Default())

	router.GET("/health", s.Health)
	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics.Handler()))
	}

	v1 := router.Group("/api/v1")
	{
		v1.GET("/intents", s.ListIntents)
		v1.GET("/intents/:hash", s.GetIntent)
		v1.GET("/fulfillments/:hash", s.GetFulfillment)
		v1.GET("/settlements", s.ListSettlements)
	}

	s.srv = &http.Server{Handler: router}
	return s
}

// Router exposes the handler for tests.
func (s *Server) Router() http.Handler {
	return s.srv.Handler
}

// StartAsync serves on addr in the background and returns a shutdown
// callback.
func (s *Server) StartAsync(addr string) func(context.Context) {
	s.srv.Addr = addr

	go func() {
		s.logger.Info().Str("addr", addr).Msg("starting HTTP server")
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Err(err).Msg("HTTP server error")
		}
	}()

	return func(ctx context.Context) {
		s.logger.Info().Msg("shutting down HTTP server")
		ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
		defer cancel()
		if err := s.srv.Shutdown(ctx); err != nil {
			s.logger.Err(err).Msg("failed to shutdown HTTP server")
		}
	}
}

// Health reports liveness of the API and its database.
func (s *Server) Health(c *gin.Context) {
	if err := s.db.Ping(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ListIntents returns intents newest-first, optionally filtered by status.
func (s *Server) ListIntents(c *gin.Context) {
	limit, offset, ok := pagination(c)
	if !ok {
		return
	}

	intents, err := s.db.ListIntents(c.Request.Context(), limit, offset, c.Query("status"))
	if err != nil {
		s.logger.Err(err).Msg("list intents")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list intents"})
		return
	}
	c.JSON(http.StatusOK, intents)
}

// GetIntent returns one intent by its hash.
func (s *Server) GetIntent(c *gin.Context) {
	hash := c.Param("hash")
	if !intentHashPattern.MatchString(hash) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid intent hash format"})
		return
	}

	intent, err := s.db.GetIntent(c.Request.Context(), hash)
	if errors.Is(err, db.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "intent not found"})
		return
	}
	if err != nil {
		s.logger.Err(err).Str(logging.FieldIntent, hash).Msg("get intent")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get intent"})
		return
	}
	c.JSON(http.StatusOK, intent)
}

// GetFulfillment returns the fulfillment of an intent, if any.
func (s *Server) GetFulfillment(c *gin.Context) {
	hash := c.Param("hash")
	if !intentHashPattern.MatchString(hash) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid intent hash format"})
		return
	}

	fulfillment, err := s.db.GetFulfillment(c.Request.Context(), hash)
	if errors.Is(err, db.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "fulfillment not found"})
		return
	}
	if err != nil {
		s.logger.Err(err).Str(logging.FieldIntent, hash).Msg("get fulfillment")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get fulfillment"})
		return
	}
	c.JSON(http.StatusOK, fulfillment)
}

// ListSettlements returns settlements newest-first.
func (s *Server) ListSettlements(c *gin.Context) {
	limit, offset, ok := pagination(c)
	if !ok {
		return
	}

	settlements, err := s.db.ListSettlements(c.Request.Context(), limit, offset)
	if err != nil {
		s.logger.Err(err).Msg("list settlements")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list settlements"})
		return
	}
	c.JSON(http.StatusOK, settlements)
}

func pagination(c *gin.Context) (limit, offset int, ok bool) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultPageSize)))
	if err != nil || limit < 1 || limit > maxPageSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit parameter"})
		return 0, 0, false
	}
	offset, err = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid offset parameter"})
		return 0, 0, false
	}
	return limit, offset, true
}
