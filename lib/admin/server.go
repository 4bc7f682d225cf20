// Package admin serves pool statistics, Prometheus metrics and health
// checks over HTTP.
package admin

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "github.com/go-i2p/sqlpool/lib/errors"
	"github.com/go-i2p/sqlpool/lib/metrics"
	"github.com/go-i2p/sqlpool/lib/pool"
	"github.com/go-i2p/sqlpool/lib/ratelimit"
	"github.com/go-i2p/sqlpool/lib/resilience"
	"github.com/go-i2p/sqlpool/version"
)

func init() {
	gin.SetMode(gin.ReleaseMode)
}

// StatsSource is anything that can report pool statistics.
type StatsSource interface {
	Stats() pool.Stats
}

// Config holds admin server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., "127.0.0.1:8080")
	ListenAddr string
	// Source provides the statistics to serve
	Source StatsSource
	// Backend is reported by the health endpoint
	Backend string
	// Check, if set, is served at /check. It should lease a resource,
	// ping it and give it back.
	Check func(context.Context) error
	// CheckTimeout bounds each check; zero means 5 seconds.
	CheckTimeout time.Duration
	// Breaker, if set, is served at /breaker and gates readiness.
	Breaker *resilience.Breaker
	// RequestsPerSecond and BurstSize limit requests per client address.
	// A zero rate disables limiting.
	RequestsPerSecond float64
	BurstSize         int
	// Logger is the structured logger
	Logger *slog.Logger
}

// Server is the admin HTTP server.
type Server struct {
	httpServer *http.Server
	engine     *gin.Engine
	source     StatsSource
	backend    string
	check      func(context.Context) error
	checkWait  time.Duration
	breaker    *resilience.Breaker
	limiter    *ratelimit.KeyedLimiter
	logger     *slog.Logger

	mu      sync.RWMutex
	running bool
	addr    string
}

// New creates an admin server. Call Start to begin serving.
func New(cfg Config) (*Server, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("admin: stats source is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	if cfg.CheckTimeout <= 0 {
		cfg.CheckTimeout = 5 * time.Second
	}

	s := &Server{
		source:    cfg.Source,
		backend:   cfg.Backend,
		check:     cfg.Check,
		checkWait: cfg.CheckTimeout,
		breaker:   cfg.Breaker,
		logger:    cfg.Logger,
	}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.BurstSize
		if burst <= 0 {
			burst = int(cfg.RequestsPerSecond) + 1
		}
		s.limiter = ratelimit.NewKeyed(cfg.RequestsPerSecond, burst, 5*time.Minute)
	}

	r := gin.New()
	r.Use(gin.Recovery(), s.logRequests)
	if s.limiter != nil {
		r.Use(s.rateLimit)
	}

	r.GET("/stats", s.handleStats)
	r.GET("/metrics", s.handleMetrics)
	r.GET("/healthz", s.handleLiveness)
	r.GET("/readyz", s.handleReadiness)
	if s.check != nil {
		r.GET("/check", s.handleCheck)
	}
	if s.breaker != nil {
		r.GET("/breaker", s.handleBreaker)
	}
	s.engine = r

	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return s, nil
}

// Handler returns the HTTP handler, for embedding or testing.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start starts the admin server.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true
	s.mu.Unlock()

	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return fmt.Errorf("listen: %w", err)
	}

	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.mu.Unlock()

	s.logger.Info("admin server started", "addr", s.Addr())

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the address the server is listening on, once started.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}

// Stop stops the admin server gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	s.logger.Info("admin server stopped")
	return nil
}

func (s *Server) logRequests(c *gin.Context) {
	start := time.Now()
	c.Header("X-Content-Type-Options", "nosniff")

	c.Next()

	s.logger.Debug("request",
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"status", c.Writer.Status(),
		"remote", c.ClientIP(),
		"duration", time.Since(start),
	)
}

func (s *Server) rateLimit(c *gin.Context) {
	ip := c.ClientIP()
	if !s.limiter.Allow(ip) {
		s.logger.Warn("rate limited", "remote", ip, "path", c.Request.URL.Path)
		c.Header("Retry-After", "1")
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
		return
	}
	c.Next()
}

func (s *Server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.source.Stats())
}

func (s *Server) handleMetrics(c *gin.Context) {
	pool.UpdateMetrics(s.source.Stats())
	metrics.Handler().ServeHTTP(c.Writer, c.Request)
}

// HealthResponse contains the liveness response.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version,omitempty"`
	Backend   string `json:"backend,omitempty"`
}

// handleLiveness reports that the process is serving requests.
func (s *Server) handleLiveness(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "alive",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   version.Full(),
		Backend:   s.backend,
	})
}

// handleReadiness reports whether the pool can still hand out resources.
func (s *Server) handleReadiness(c *gin.Context) {
	stats := s.source.Stats()
	if stats.Closed {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not_ready",
			"reason": "pool_closed",
		})
		return
	}
	if s.breaker != nil && s.breaker.State() == resilience.Open {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not_ready",
			"reason": "backend_unavailable",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"count":  stats.Count,
		"idle":   stats.Idle,
		"max":    stats.MaxSize,
	})
}

// handleCheck leases one resource end to end. Failures are reported with
// the status their error code maps to and a client-safe message.
func (s *Server) handleCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), s.checkWait)
	defer cancel()

	start := time.Now()
	if err := s.check(ctx); err != nil {
		apiErr := apperrors.FromSentinel(err)
		s.logger.Warn("check failed", "code", apiErr.Code.String(), "error", err)
		c.JSON(apiErr.Code.HTTPStatus(), gin.H{
			"status": "failed",
			"code":   apiErr.Code.String(),
			"error":  apiErr.SafeMessage(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"duration": time.Since(start).String(),
	})
}

func (s *Server) handleBreaker(c *gin.Context) {
	c.JSON(http.StatusOK, s.breaker.Stats())
}
