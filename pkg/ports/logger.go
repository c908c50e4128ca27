// Package ports defines the interfaces the watermark engine consumes.
// Adapters under pkg/adapters implement them; pkg/mocks provides test doubles.
package ports

// LogLevel represents the severity level of a log message.
type LogLevel int

const (
	// LevelDebug is for per-stage internals: mask sizes, placement counts, device details.
	LevelDebug LogLevel = iota
	// LevelInfo is for run-level progress such as one line per processed file.
	LevelInfo
	// LevelWarn is for recoverable problems, e.g. a GPU failure that fell back to CPU.
	LevelWarn
	// LevelError is for failures of a job or of the whole run.
	LevelError
	// LevelQuiet suppresses all log output.
	LevelQuiet
)

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	case LevelQuiet:
		return "quiet"
	default:
		return "unknown"
	}
}

// ParseLogLevel parses a string into a LogLevel. Unknown names map to info.
func ParseLogLevel(s string) LogLevel {
	switch s {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	case "quiet":
		return LevelQuiet
	default:
		return LevelInfo
	}
}

// Logger abstracts logging with translatable message keys.
// The msg argument is a format string that doubles as the lookup key
// for localized text.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})

	// WithComponent returns a Logger that prefixes messages with the
	// component name, e.g. "glyph" or "gpu".
	WithComponent(component string) Logger
}
