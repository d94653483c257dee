// Package logger provides the daemon's slog handler and rotating log sink.
//
// Log output format:
//
//	2006-01-02T15:04:05.000Z [LEVEL] message | key=value, key2="two words"
//
// Custom levels beyond the standard slog set:
//   - LevelTrace (-8): per-tick poll tracing
//   - LevelFail  (12): unrecoverable errors
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// ///////////////////////////////////////////////
// Custom Levels
// ///////////////////////////////////////////////

const (
	LevelTrace slog.Level = -8
	LevelDebug slog.Level = slog.LevelDebug // -4
	LevelInfo  slog.Level = slog.LevelInfo  // 0
	LevelWarn  slog.Level = slog.LevelWarn  // 4
	LevelError slog.Level = slog.LevelError // 8
	LevelFail  slog.Level = 12
)

// levelName returns the display name for a log level.
func levelName(l slog.Level) string {
	switch {
	case l <= LevelTrace:
		return "TRACE"
	case l <= LevelDebug:
		return "DEBUG"
	case l <= LevelInfo:
		return "INFO"
	case l <= LevelWarn:
		return "WARN"
	case l <= LevelError:
		return "ERROR"
	default:
		return "FAIL"
	}
}

// ParseLevel converts a level string to slog.Level.
// Supports: trace, debug, info, warn, error, fail (case-insensitive).
// Returns LevelInfo for unrecognized strings.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return LevelTrace
	case "debug":
		return LevelDebug
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	case "fail":
		return LevelFail
	default:
		return LevelInfo
	}
}

// ///////////////////////////////////////////////
// Handler
// ///////////////////////////////////////////////

// lineEnding is CRLF on Windows, LF elsewhere.
var lineEnding = "\n"

func init() {
	if runtime.GOOS == "windows" {
		lineEnding = "\r\n"
	}
}

// Handler is a slog.Handler that writes one line per record.
type Handler struct {
	// w is the destination writer for formatted log output.
	w io.Writer
	// mu serializes writes to w; shared by every handler derived from the root.
	mu *sync.Mutex
	// level is the minimum severity that this handler will emit.
	level slog.Level
	// attrs holds attributes added via [Handler.WithAttrs], already prefixed.
	attrs []slog.Attr
	// group is the dot-separated key prefix set via [Handler.WithGroup].
	group string
}

// NewHandler creates a Handler that writes to w, filtering records below level.
func NewHandler(w io.Writer, level slog.Level) *Handler {
	return &Handler{w: w, level: level, mu: &sync.Mutex{}}
}

// Enabled reports whether the handler handles records at the given level.
func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

// Handle formats and writes a log record.
func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	var buf strings.Builder

	buf.WriteString(r.Time.UTC().Format("2006-01-02T15:04:05.000Z"))
	buf.WriteString(" [")
	buf.WriteString(levelName(r.Level))
	buf.WriteString("] ")
	buf.WriteString(r.Message)

	n := 0
	writeAttr := func(key string, v slog.Value) {
		if n == 0 {
			buf.WriteString(" | ")
		} else {
			buf.WriteString(", ")
		}
		n++
		buf.WriteString(key)
		buf.WriteByte('=')
		buf.WriteString(formatValue(v))
	}
	for _, a := range h.attrs {
		writeAttr(a.Key, a.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(h.prefixed(a.Key), a.Value)
		return true
	})

	buf.WriteString(lineEnding)

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, buf.String())
	return err
}

// formatValue renders v, quoting strings that contain separators so a line
// stays unambiguous to split on ", ".
func formatValue(v slog.Value) string {
	s := v.Resolve().String()
	if s == "" || strings.ContainsAny(s, " ,=|\"") {
		return strconv.Quote(s)
	}
	return s
}

// prefixed returns key qualified by the handler's group.
func (h *Handler) prefixed(key string) string {
	if h.group == "" {
		return key
	}
	return h.group + "." + key
}

// WithAttrs returns a new Handler with the given attributes pre-applied.
// Keys are qualified by the current group at the time of the call.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	for _, a := range attrs {
		newAttrs = append(newAttrs, slog.Attr{Key: h.prefixed(a.Key), Value: a.Value})
	}
	return &Handler{w: h.w, mu: h.mu, level: h.level, attrs: newAttrs, group: h.group}
}

// WithGroup returns a new Handler whose record keys are prefixed with name.
func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &Handler{w: h.w, mu: h.mu, level: h.level, attrs: h.attrs, group: h.prefixed(name)}
}

// ///////////////////////////////////////////////
// Logger Constructor
// ///////////////////////////////////////////////

// Options configures [New].
type Options struct {
	// Path is the log file; rotated by size.
	Path string
	// Level is the minimum level written.
	Level slog.Level
	// MaxSizeMB is the rotation threshold.
	MaxSizeMB int
	// Stderr additionally tees every line to standard error.
	Stderr bool
}

// New creates a slog.Logger writing to a rotating log file, and to stderr
// when requested. The returned io.Closer must be closed on shutdown.
func New(opts Options) (*slog.Logger, io.Closer) {
	lj := &lumberjack.Logger{
		Filename:   opts.Path,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: 3,
		MaxAge:     28,
	}

	var w io.Writer = lj
	if opts.Stderr {
		w = io.MultiWriter(lj, os.Stderr)
	}
	return slog.New(NewHandler(w, opts.Level)), lj
}

// ///////////////////////////////////////////////
// Helper Functions
// ///////////////////////////////////////////////

// Trace logs a message at LevelTrace.
func Trace(logger *slog.Logger, msg string, args ...any) {
	logger.Log(context.Background(), LevelTrace, msg, args...)
}

// Fail logs a message at LevelFail.
func Fail(logger *slog.Logger, msg string, args ...any) {
	logger.Log(context.Background(), LevelFail, msg, args...)
}
