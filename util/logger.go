// Package util provides low-level helpers shared by all other packages.
package util

import (
	"fmt"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogLevel controls output verbosity.
type LogLevel int

const (
	LogQuiet   LogLevel = 0
	LogNormal  LogLevel = 1
	LogVerbose LogLevel = 2
	LogDebug   LogLevel = 3
)

// zap has no levels below Debug, so the two chattiest levels sit under it.
const (
	zapVerbose = zapcore.DebugLevel
	zapDebug   = zapcore.DebugLevel - 1
)

// LogFile configures the optional rotating log file.
type LogFile struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Logger writes levelled messages to stderr (and optionally a rotating
// file) with [ERR]/[WRN]/[INF]/[VRB]/[DBG] prefixes.  It is a thin
// printf-style facade over a zap core.
type Logger struct {
	level      LogLevel
	output     io.Writer
	file       *lumberjack.Logger
	timestamps bool // if true, prepend timestamps on the primary output

	mu sync.RWMutex
	zl *zap.Logger
}

// NewLogger returns a Logger that prints messages at or below the given
// verbosity (0 = quiet, 1 = normal, 2 = verbose, 3 = debug).  Timestamps
// are enabled in debug mode and whenever stderr is not a terminal.
func NewLogger(verbosity int) *Logger {
	l := &Logger{
		level:      LogLevel(verbosity),
		output:     os.Stderr,
		timestamps: verbosity >= 3 || !term.IsTerminal(int(os.Stderr.Fd())),
	}
	l.rebuild()
	return l
}

// SetTimestamps enables or disables timestamp prefixes.
func (l *Logger) SetTimestamps(on bool) {
	l.mu.Lock()
	l.timestamps = on
	l.mu.Unlock()
	l.rebuild()
}

// SetOutput overrides the output writer (default: os.Stderr).
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	l.output = w
	l.mu.Unlock()
	l.rebuild()
}

// SetFile tees every message into a size-rotated log file.  The file
// always carries timestamps.
func (l *Logger) SetFile(f LogFile) {
	l.mu.Lock()
	if l.file != nil {
		l.file.Close() //nolint:errcheck
	}
	l.file = &lumberjack.Logger{
		Filename:   f.Path,
		MaxSize:    atLeast(f.MaxSizeMB, 10),
		MaxBackups: atLeast(f.MaxBackups, 1),
		MaxAge:     atLeast(f.MaxAgeDays, 7),
	}
	l.mu.Unlock()
	l.rebuild()
}

// Level returns the current log level.
func (l *Logger) Level() LogLevel { return l.level }

// Info prints when verbosity ≥ 1.  Prefixed with [INF].
func (l *Logger) Info(format string, args ...interface{}) {
	l.write(zapcore.InfoLevel, format, args...)
}

// Warn prints when verbosity ≥ 1.  Prefixed with [WRN].
func (l *Logger) Warn(format string, args ...interface{}) {
	l.write(zapcore.WarnLevel, format, args...)
}

// Verbose prints when verbosity ≥ 2.  Prefixed with [VRB].
func (l *Logger) Verbose(format string, args ...interface{}) {
	l.write(zapVerbose, format, args...)
}

// Debug prints when verbosity ≥ 3.  Prefixed with [DBG].
func (l *Logger) Debug(format string, args ...interface{}) {
	l.write(zapDebug, format, args...)
}

// Error always prints regardless of verbosity.  Prefixed with [ERR].
func (l *Logger) Error(format string, args ...interface{}) {
	l.write(zapcore.ErrorLevel, format, args...)
}

// Close flushes and releases the log file, if any.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	_ = l.zl.Sync()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

func (l *Logger) write(lvl zapcore.Level, format string, args ...interface{}) {
	l.mu.RLock()
	zl := l.zl
	l.mu.RUnlock()

	if ce := zl.Check(lvl, fmt.Sprintf(format, args...)); ce != nil {
		ce.Write()
	}
}

func (l *Logger) rebuild() {
	l.mu.Lock()
	defer l.mu.Unlock()

	enabled := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return lvl >= threshold(l.level)
	})

	cores := []zapcore.Core{
		zapcore.NewCore(newEncoder(l.timestamps), zapcore.Lock(zapcore.AddSync(l.output)), enabled),
	}
	if l.file != nil {
		cores = append(cores, zapcore.NewCore(newEncoder(true), zapcore.AddSync(l.file), enabled))
	}
	l.zl = zap.New(zapcore.NewTee(cores...))
}

func threshold(level LogLevel) zapcore.Level {
	switch {
	case level >= LogDebug:
		return zapDebug
	case level == LogVerbose:
		return zapVerbose
	case level == LogNormal:
		return zapcore.InfoLevel
	default:
		return zapcore.ErrorLevel
	}
}

func newEncoder(timestamps bool) zapcore.Encoder {
	cfg := zapcore.EncoderConfig{
		MessageKey:       "msg",
		LevelKey:         "level",
		EncodeLevel:      prefixLevelEncoder,
		ConsoleSeparator: " ",
	}
	if timestamps {
		cfg.TimeKey = "ts"
		cfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	}
	return zapcore.NewConsoleEncoder(cfg)
}

func prefixLevelEncoder(lvl zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	switch {
	case lvl >= zapcore.ErrorLevel:
		enc.AppendString("[ERR]")
	case lvl == zapcore.WarnLevel:
		enc.AppendString("[WRN]")
	case lvl == zapcore.InfoLevel:
		enc.AppendString("[INF]")
	case lvl == zapVerbose:
		enc.AppendString("[VRB]")
	default:
		enc.AppendString("[DBG]")
	}
}

func atLeast(v, min int) int {
	if v < min {
		return min
	}
	return v
}
