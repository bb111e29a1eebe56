// Package logging provides categorized, debug-gated diagnostic logging for
// querynerd. Logs go to a single JSON file under the workspace log dir;
// when debug mode is off every call is a no-op. The blackboard, not this
// package, is the audit record; these logs exist for developers.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category identifies the subsystem a log line belongs to.
type Category string

const (
	CategoryBoot       Category = "boot"
	CategorySession    Category = "session"
	CategoryLoop       Category = "loop"
	CategoryPerception Category = "perception"
	CategoryDecision   Category = "decision"
	CategoryAction     Category = "action"
	CategoryMemory     Category = "memory"
	CategoryBlackboard Category = "blackboard"
)

var (
	mu         sync.RWMutex
	base       *zap.SugaredLogger
	categories map[string]bool
)

// Options controls log output.
type Options struct {
	DebugMode  bool
	Level      string          // debug, info, warn, error
	Categories map[string]bool // empty means all enabled
	Dir        string          // log directory; empty means stderr
}

// Initialize builds the process logger. Call once at startup; before
// initialization (or with DebugMode false) all helpers are no-ops.
func Initialize(opts Options) error {
	mu.Lock()
	defer mu.Unlock()

	if !opts.DebugMode {
		base = zap.NewNop().Sugar()
		categories = nil
		return nil
	}

	level := zapcore.DebugLevel
	switch opts.Level {
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	}

	sink := zapcore.AddSync(os.Stderr)
	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		file, err := os.OpenFile(filepath.Join(opts.Dir, "querynerd.log"),
			os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		sink = zapcore.AddSync(file)
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), sink, level)
	base = zap.New(core).Sugar()
	categories = opts.Categories
	return nil
}

// L returns the logger for a category, or a no-op logger when the
// category is disabled or logging is uninitialized.
func L(cat Category) *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	if base == nil {
		return zap.NewNop().Sugar()
	}
	if len(categories) > 0 && !categories[string(cat)] {
		return zap.NewNop().Sugar()
	}
	return base.With("cat", string(cat))
}

// Per-category printf helpers for terse call sites.

func Boot(format string, args ...any)       { L(CategoryBoot).Infof(format, args...) }
func Session(format string, args ...any)    { L(CategorySession).Infof(format, args...) }
func Loop(format string, args ...any)       { L(CategoryLoop).Infof(format, args...) }
func Perception(format string, args ...any) { L(CategoryPerception).Infof(format, args...) }
func Decision(format string, args ...any)   { L(CategoryDecision).Infof(format, args...) }
func Action(format string, args ...any)     { L(CategoryAction).Infof(format, args...) }
func Memory(format string, args ...any)     { L(CategoryMemory).Infof(format, args...) }

func LoopError(format string, args ...any)       { L(CategoryLoop).Errorf(format, args...) }
func PerceptionError(format string, args ...any) { L(CategoryPerception).Errorf(format, args...) }
func DecisionError(format string, args ...any)   { L(CategoryDecision).Errorf(format, args...) }
func ActionError(format string, args ...any)     { L(CategoryAction).Errorf(format, args...) }
func MemoryError(format string, args ...any)     { L(CategoryMemory).Errorf(format, args...) }
