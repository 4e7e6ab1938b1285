// Package debug gates verbose logging by category.
//
// KETTE_DEBUG (or logging.debug) names the categories to log, comma
// separated, with "all" matching every category. KETTE_LOG_LEVEL (or
// logging.level) sets the slog level; TRACE additionally logs raw request
// headers.
//
//	debug.Log("proxy", "forwarding", "url", u)
package debug

import (
	"context"
	"io"
	"log/slog"
	"maps"
	"os"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/rhuss/kette/pkg/config"
)

const (
	envCategories = "KETTE_DEBUG"
	envLevel      = "KETTE_LOG_LEVEL"
	allCategories = "all"
)

// LevelTrace sits below slog.LevelDebug.
const LevelTrace = slog.LevelDebug - 4

type categorySet map[string]struct{}

var active atomic.Pointer[categorySet]

func init() {
	setCategories(os.Getenv(envCategories))
}

// Setup applies the logging section, with the environment taking
// precedence, and installs the resulting logger as the slog default.
func Setup(cfg config.LoggingConfig) *slog.Logger {
	return setup(os.Stderr, cfg)
}

func setup(w io.Writer, cfg config.LoggingConfig) *slog.Logger {
	setCategories(envOr(envCategories, cfg.Debug))

	opts := &slog.HandlerOptions{Level: ParseLevel(envOr(envLevel, cfg.Level))}
	var h slog.Handler = slog.NewTextHandler(w, opts)
	if strings.EqualFold(cfg.Format, "json") {
		h = slog.NewJSONHandler(w, opts)
	}
	logger := slog.New(h)
	slog.SetDefault(logger)
	return logger
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func setCategories(list string) {
	set := categorySet{}
	for _, c := range strings.Split(list, ",") {
		if c = strings.ToLower(strings.TrimSpace(c)); c != "" {
			set[c] = struct{}{}
		}
	}
	active.Store(&set)
}

// Enabled reports whether category is being logged.
func Enabled(category string) bool {
	set := *active.Load()
	_, all := set[allCategories]
	_, one := set[category]
	return all || one
}

// Categories returns the active categories, sorted.
func Categories() []string {
	return slices.Sorted(maps.Keys(*active.Load()))
}

// Log writes msg at debug level when category is enabled.
func Log(category, msg string, args ...any) {
	if Enabled(category) {
		slog.Debug(msg, append([]any{"debug", category}, args...)...)
	}
}

// Trace writes msg at trace level when category is enabled.
func Trace(category, msg string, args ...any) {
	if TraceEnabled(category) {
		slog.Log(context.Background(), LevelTrace, msg, append([]any{"debug", category}, args...)...)
	}
}

// TraceEnabled reports whether Trace output for category would be emitted.
func TraceEnabled(category string) bool {
	return Enabled(category) && slog.Default().Enabled(context.Background(), LevelTrace)
}

var levels = map[string]slog.Level{
	"TRACE":   LevelTrace,
	"DEBUG":   slog.LevelDebug,
	"INFO":    slog.LevelInfo,
	"WARN":    slog.LevelWarn,
	"WARNING": slog.LevelWarn,
	"ERROR":   slog.LevelError,
}

// ParseLevel maps a level name to a slog.Level. Unknown names give INFO.
func ParseLevel(s string) slog.Level {
	if l, ok := levels[strings.ToUpper(strings.TrimSpace(s))]; ok {
		return l
	}
	return slog.LevelInfo
}

// Truncate shortens s to n bytes, marking the cut with "...".
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
