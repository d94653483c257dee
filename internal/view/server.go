package view

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tools.zach/dev/presenced/internal/history"
	"tools.zach/dev/presenced/internal/logger"
	"tools.zach/dev/presenced/internal/presence"
)

// shutdownTimeout bounds graceful shutdown of in-flight HTTP requests.
const shutdownTimeout = 5 * time.Second

// defaultHistoryLimit is used when /history has no limit parameter.
const defaultHistoryLimit = 20

// requestIDHeader carries the per-request ID, echoed back when the client
// supplies one.
const requestIDHeader = "X-Request-ID"

// Source provides the current poller state.
type Source interface {
	Snapshot() presence.Snapshot
}

// History lists recently displayed lines.
type History interface {
	Recent(ctx context.Context, limit int) ([]history.Entry, error)
}

// ServerOptions configures [NewServer].
type ServerOptions struct {
	Source Source
	// History backs /history. Nil disables the endpoint.
	History History
	// Gatherer backs /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
	// Version is reported by /healthz.
	Version string
	Logger  *slog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// Server exposes the rendered presence line.
type Server struct {
	engine *gin.Engine
	log    *slog.Logger
}

func init() {
	gin.SetMode(gin.ReleaseMode)
}

// NewServer builds the HTTP routes.
func NewServer(opts ServerOptions) *Server {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "http")
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	r := gin.New()
	r.Use(requestID(), gin.Recovery(), requestLogger(log))

	r.GET("/presence", func(c *gin.Context) {
		c.Header("Cache-Control", "no-store")
		d := Render(opts.Source.Snapshot(), now())
		if d == nil {
			c.Status(http.StatusNoContent)
			return
		}
		c.JSON(http.StatusOK, d)
	})

	r.GET("/healthz", func(c *gin.Context) {
		snap := opts.Source.Snapshot()
		body := gin.H{
			"status":     "ok",
			"version":    opts.Version,
			"poller":     snap.Status.String(),
			"generation": snap.Generation,
			"error_kind": errorKind(snap),
		}
		if !snap.UpdatedAt.IsZero() {
			body["updated_at"] = snap.UpdatedAt
			body["updated"] = humanize.RelTime(snap.UpdatedAt, now(), "ago", "from now")
		}
		c.JSON(http.StatusOK, body)
	})

	if opts.History != nil {
		r.GET("/history", func(c *gin.Context) {
			limit := defaultHistoryLimit
			if raw := c.Query("limit"); raw != "" {
				n, err := strconv.Atoi(raw)
				if err != nil || n < 1 {
					c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
					return
				}
				limit = n
			}
			entries, err := opts.History.Recent(c.Request.Context(), limit)
			if err != nil {
				log.Warn("history query failed", "error", err, "request_id", c.GetString(requestIDHeader))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "history unavailable"})
				return
			}
			c.JSON(http.StatusOK, entries)
		})
	}

	if opts.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	return &Server{engine: r, log: log}
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Serve listens on addr until ctx ends, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener serves on ln until ctx ends. ln is closed on return.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", "addr", ln.Addr().String())
		errc <- srv.Serve(ln)
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	s.log.Info("http server stopped")
	return nil
}

// requestID tags each request with an ID, reusing a valid incoming one.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Set(requestIDHeader, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// requestLogger logs each request at trace level.
func requestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Trace(log, "request",
			"request_id", c.GetString(requestIDHeader),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

func errorKind(snap presence.Snapshot) string {
	if snap.Err == nil {
		return ""
	}
	return presence.ErrorKind(snap.Err)
}
