// Package obslog provides config-gated, category-keyed structured logging.
// Every Muninn subsystem pulls its logger by Category; when verbose logging is
// disabled the loggers are cheap no-op-level zap loggers so call sites never
// need to branch on whether logging is enabled.
package obslog

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category names one Muninn subsystem's log stream.
type Category string

const (
	CategoryEnrich    Category = "enrich"
	CategoryCache     Category = "cache"
	CategoryParse     Category = "parse"
	CategoryFormat    Category = "format"
	CategoryLifecycle Category = "lifecycle"
	CategoryRelate    Category = "relate"
	CategorySession   Category = "session"
	CategoryInsight   Category = "insight"
	CategoryStartup   Category = "startup"
	CategoryStore     Category = "store"
)

var (
	mu       sync.RWMutex
	base     *zap.Logger
	loggers  = make(map[Category]*zap.Logger)
	verbose  bool
	initDone bool
)

// Init configures the root zap logger once at process start. verbose toggles
// DebugLevel; when false, only Info-and-above is emitted (matching the
// teacher's debug_mode config gate).
func Init(verboseMode bool) error {
	mu.Lock()
	defer mu.Unlock()

	verbose = verboseMode
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}
	cfg.DisableStacktrace = true

	l, err := cfg.Build()
	if err != nil {
		return err
	}
	base = l
	loggers = make(map[Category]*zap.Logger)
	initDone = true
	return nil
}

// Get returns the logger for category, lazily deriving it from the base
// logger (or a process-wide no-op logger if Init was never called, so tests
// and library callers never crash on a nil logger).
func Get(category Category) *zap.Logger {
	mu.RLock()
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}
	root := base
	if root == nil {
		root = zap.NewNop()
	}
	l := root.With(zap.String("category", string(category)))
	loggers[category] = l
	return l
}

// Sync flushes all buffered log entries; callers should defer this at process
// shutdown (teacher's cleanup-chain pattern, §5).
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	if base != nil {
		_ = base.Sync()
	}
}

// Verbose reports whether debug-level logging is currently enabled.
func Verbose() bool {
	mu.RLock()
	defer mu.RUnlock()
	return verbose
}
