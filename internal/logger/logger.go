package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/corefs-project/corefs/internal/cfg"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	defaultLoggerFactory = &loggerFactory{format: "text"}
	defaultLevel         = new(slog.LevelVar)
	defaultLogger        = slog.New(defaultLoggerFactory.createJsonOrTextHandler(os.Stderr, defaultLevel, ""))
)

func init() {
	defaultLevel.Set(LevelInfo)
}

// Init rebuilds the default logger from c, wiring a lumberjack-backed
// async sink when c.File is set. The returned close func must be called
// during unmount to flush and rotate cleanly.
func Init(c *cfg.LoggingConfig) (close func() error, err error) {
	defaultLoggerFactory.format = c.Format
	setLoggingLevel(string(c.Severity), defaultLevel)

	var async *AsyncLogger
	var out io.Writer = os.Stderr

	if c.File != "" {
		lj := &lumberjack.Logger{
			Filename:   c.File,
			MaxSize:    c.LogRotate.MaxFileSizeMb,
			MaxBackups: c.LogRotate.BackupFileCount,
			Compress:   c.LogRotate.Compress,
		}
		async = NewAsyncLogger(lj, 4096)
		out = async
	}

	defaultLogger = slog.New(defaultLoggerFactory.createJsonOrTextHandler(out, defaultLevel, ""))

	if async != nil {
		return async.Close, nil
	}
	return func() error { return nil }, nil
}

// CurrentLevel reports the running trace severity as a cfg.LogSeverity
// name, for the pseudo namespace's /logger/debug read side (§4.10).
func CurrentLevel() string {
	return severityName(defaultLevel.Level())
}

// SetLevel adjusts the running trace severity, validating level against
// the same ladder cfg.LogSeverity accepts. Used by /logger/debug's write
// side to change verbosity without a remount.
func SetLevel(level string) error {
	upper := strings.ToUpper(level)
	if !cfg.IsValidSeverity(upper) {
		return fmt.Errorf("logger: unknown severity %q", level)
	}
	setLoggingLevel(upper, defaultLevel)
	return nil
}

func Tracef(format string, args ...any) { logf(LevelTrace, format, args...) }
func Debugf(format string, args ...any) { logf(LevelDebug, format, args...) }
func Infof(format string, args ...any)  { logf(LevelInfo, format, args...) }
func Warnf(format string, args ...any)  { logf(LevelWarn, format, args...) }
func Errorf(format string, args ...any) { logf(LevelError, format, args...) }

func logf(level slog.Level, format string, args ...any) {
	if !defaultLogger.Enabled(context.Background(), level) {
		return
	}
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	defaultLogger.Log(context.Background(), level, msg)
}
