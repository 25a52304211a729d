package slogobs

import (
	"os"
	"strings"
)

// Format represents the output format for logs.
type Format string

const (
	// FormatCompact is single-line key=value output (default for development).
	// Example: time=2026-03-01T10:40:35Z level=INFO msg="chat committed" component=orchestrator
	FormatCompact Format = "compact"

	// FormatJSON is one JSON object per line (for production/log aggregation).
	// Example: {"time":"2026-03-01T10:40:35Z","level":"INFO","msg":"chat committed"}
	FormatJSON Format = "json"
)

// ParseFormat parses a format string and returns the corresponding Format.
// "text" and "pretty" are accepted as synonyms of compact. Unknown values
// return FormatCompact.
func ParseFormat(s string) Format {
	switch strings.TrimSpace(strings.ToLower(s)) {
	case "json":
		return FormatJSON
	default:
		return FormatCompact
	}
}

// GetFormatFromEnv retrieves the log format from environment variables.
// It checks TAXASSIST_LOG_FORMAT first, then falls back to LOG_FORMAT.
func GetFormatFromEnv() Format {
	if format := os.Getenv("TAXASSIST_LOG_FORMAT"); format != "" {
		return ParseFormat(format)
	}
	if format := os.Getenv("LOG_FORMAT"); format != "" {
		return ParseFormat(format)
	}
	return FormatCompact
}

// String returns the string representation of the Format.
func (f Format) String() string {
	return string(f)
}
