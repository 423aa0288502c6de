package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
)

const (
	EnvLogLevel = "PARAMUX_LOG_LEVEL"
	EnvJSONLog  = "PARAMUX_JSON_LOG"
	EnvLogPath  = "PARAMUX_LOG_PATH"

	// Prefix marks every non-JSON line written by paramux tools.
	Prefix = "🔀 "
)

// NewLogger creates a new hclog logger with standard settings
func NewLogger(name string, level string, output io.Writer) hclog.Logger {
	if output == nil {
		output = os.Stderr
	}

	jsonFormat := os.Getenv(EnvJSONLog) == "1"

	// "json:debug" selects JSON output inline with the level
	if strings.HasPrefix(level, "json") {
		jsonFormat = true
		if _, after, ok := strings.Cut(level, ":"); ok && after != "" {
			level = after
		} else {
			level = "info"
		}
	}

	if !jsonFormat {
		output = NewPrefixWriter(Prefix, output)
	}

	return hclog.New(&hclog.LoggerOptions{
		Name:       name,
		Level:      hclog.LevelFromString(level),
		JSONFormat: jsonFormat,
		Output:     output,
		TimeFormat: "2006-01-02T15:04:05Z",
		TimeFn: func() time.Time {
			return time.Now().UTC()
		},
	})
}

// GetLogLevel returns the configured log level from environment
func GetLogLevel() string {
	level := os.Getenv(EnvLogLevel)
	if level == "" {
		level = "warn"
	}
	return level
}

// ResolveLevel picks the effective level and reports where it came from.
// Precedence: explicit flag, PARAMUX_LOG_LEVEL, configured value, "warn".
func ResolveLevel(flagLevel, configLevel string) (level string, source string) {
	switch {
	case flagLevel != "":
		return flagLevel, "flag --log-level"
	case os.Getenv(EnvLogLevel) != "":
		return os.Getenv(EnvLogLevel), EnvLogLevel
	case configLevel != "":
		return configLevel, "config log.level"
	default:
		return "warn", "default"
	}
}

// Output returns the writer selected by PARAMUX_LOG_PATH, falling back to stderr.
func Output() io.Writer {
	if logPath := os.Getenv(EnvLogPath); logPath != "" {
		if file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
			return file
		}
	}
	return os.Stderr
}

// OrNull returns logger, or a null logger when logger is nil.
func OrNull(logger hclog.Logger) hclog.Logger {
	if logger == nil {
		return hclog.NewNullLogger()
	}
	return logger
}
