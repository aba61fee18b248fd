package log

import (
	"io"
	"os"

	"github.com/YuminosukeSato/pimaml/pkg/errors"
	"github.com/rs/zerolog"
)

const (
	ErrAttrKey        = "error"
	StacktraceAttrKey = "stacktrace"
)

// Setup installs the process-wide zerolog provider.
// format is "json" (default) or "console". Field names follow the Cloud
// Logging convention (severity, message) in JSON mode.
func Setup(loglevel, format string, w io.Writer) error {
	level, err := ParseLevel(loglevel)
	if err != nil {
		return err
	}
	if w == nil {
		w = os.Stderr
	}
	switch format {
	case "", "json":
		zerolog.LevelFieldName = "severity"
		zerolog.MessageFieldName = "message"
	case "console":
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	default:
		return errors.NewValidationError("log-format", "must be json or console", format)
	}
	SetProvider(NewZerologProvider(w, level))
	return nil
}

// ParseLevel converts a level name to a Level.
func ParseLevel(level string) (Level, error) {
	switch level {
	case "info", "":
		return LevelInfo, nil
	case "debug":
		return LevelDebug, nil
	case "warn":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, errors.NewValidationError("log-level", "must be debug, info, warn or error", level)
	}
}

// ErrAttr returns the key/value pair used to attach err to a log call:
//
//	logger.Error("stage failed", log.ErrAttr(err)...)
func ErrAttr(err error) []any {
	return []any{ErrAttrKey, err}
}
