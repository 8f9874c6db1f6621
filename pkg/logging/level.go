package logging

import "strings"

// Level represents a log level
type Level int32

const (
	// DebugLevel covers per-entry replication chatter
	DebugLevel Level = iota
	// InfoLevel is the default; role changes and elections log here
	InfoLevel
	// WarnLevel flags degraded but recoverable states (lost quorum, stale reads)
	WarnLevel
	// ErrorLevel is reserved for broken invariants
	ErrorLevel
)

// String returns the string representation of a log level
func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a string to a Level, defaulting to InfoLevel
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return DebugLevel
	case "WARN", "WARNING":
		return WarnLevel
	case "ERROR":
		return ErrorLevel
	default:
		return InfoLevel
	}
}
