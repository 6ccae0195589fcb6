// Package utils provides structured JSON logging shared by every
// subsystem, with PII/secret redaction applied at log time.
package utils

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"time"
)

// LogLevel represents logging severity
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
	LogLevelFatal LogLevel = "fatal"
)

// StructuredLogger provides JSON structured logging, optionally scoped
// to a single component via With.
type StructuredLogger struct {
	writer    io.Writer
	minLevel  LogLevel
	component string
}

// LogEntry represents a structured log entry
type LogEntry struct {
	Timestamp string                 `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Service   string                 `json:"service,omitempty"`
	Component string                 `json:"component,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// NewStructuredLogger creates a new structured logger
func NewStructuredLogger(minLevel LogLevel) *StructuredLogger {
	return &StructuredLogger{
		writer:   os.Stdout,
		minLevel: minLevel,
	}
}

// With returns a copy of the logger scoped to the given component name
// (e.g. "obs", "twitch", "playback"), stamped on every entry it emits.
func (l *StructuredLogger) With(component string) *StructuredLogger {
	scoped := *l
	scoped.component = component
	return &scoped
}

// shouldLog checks if the log level should be logged
func (l *StructuredLogger) shouldLog(level LogLevel) bool {
	levels := map[LogLevel]int{
		LogLevelDebug: 0,
		LogLevelInfo:  1,
		LogLevelWarn:  2,
		LogLevelError: 3,
		LogLevelFatal: 4,
	}
	return levels[level] >= levels[l.minLevel]
}

// log writes a structured log entry
func (l *StructuredLogger) log(entry *LogEntry) {
	if !l.shouldLog(LogLevel(entry.Level)) {
		return
	}

	entry.Timestamp = time.Now().UTC().Format(time.RFC3339)
	entry.Service = "cliparino"
	if entry.Component == "" {
		entry.Component = l.component
	}

	// Redact PII from message and error
	entry.Message = RedactPII(entry.Message)
	if entry.Error != "" {
		entry.Error = RedactPII(entry.Error)
	}

	// Redact PII from fields
	if entry.Fields != nil {
		entry.Fields = RedactPIIFromFields(entry.Fields)
	}

	data, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to marshal log entry: %v\n", err)
		return
	}
	fmt.Fprintln(l.writer, string(data))
}

// Debug logs a debug message
func (l *StructuredLogger) Debug(message string, fields ...map[string]interface{}) {
	entry := LogEntry{Level: string(LogLevelDebug), Message: message}
	if len(fields) > 0 {
		entry.Fields = fields[0]
	}
	l.log(&entry)
}

// Info logs an info message
func (l *StructuredLogger) Info(message string, fields ...map[string]interface{}) {
	entry := LogEntry{Level: string(LogLevelInfo), Message: message}
	if len(fields) > 0 {
		entry.Fields = fields[0]
	}
	l.log(&entry)
}

// Warn logs a warning message
func (l *StructuredLogger) Warn(message string, fields ...map[string]interface{}) {
	entry := LogEntry{Level: string(LogLevelWarn), Message: message}
	if len(fields) > 0 {
		entry.Fields = fields[0]
	}
	l.log(&entry)
}

// Error logs an error message
func (l *StructuredLogger) Error(message string, err error, fields ...map[string]interface{}) {
	entry := LogEntry{Level: string(LogLevelError), Message: message}
	if err != nil {
		entry.Error = err.Error()
	}
	if len(fields) > 0 {
		entry.Fields = fields[0]
	}
	l.log(&entry)
}

// Fatal logs a fatal message and exits the process
func (l *StructuredLogger) Fatal(message string, err error, fields ...map[string]interface{}) {
	entry := LogEntry{Level: string(LogLevelFatal), Message: message}
	if err != nil {
		entry.Error = err.Error()
	}
	if len(fields) > 0 {
		entry.Fields = fields[0]
	}
	l.log(&entry)
	os.Exit(1)
}

// Patterns for PII redaction
var (
	emailPattern      = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Z|a-z]{2,}\b`)
	creditCardPattern = regexp.MustCompile(`\b\d{4}[-\s]?\d{4}[-\s]?\d{4}[-\s]?\d{4}\b`)
	phonePattern      = regexp.MustCompile(`\b(\+?1[-.\s]?)?(\(?\d{3}\)?[-.\s]?)?\d{3}[-.\s]?\d{4}\b`)
	ssnPattern        = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)
	passwordPattern   = regexp.MustCompile(`(?i)(password|passwd|pwd|secret|token|apikey|api_key|access_token|auth_token)(["']?)\s*[:=]\s*["']([^"'\s,}&]+)["']?`)
	bearerPattern     = regexp.MustCompile(`(?i)Bearer\s+[A-Za-z0-9\-._~+/]+=*`)
)

// RedactPII redacts personally identifiable information and secrets
// (notably OAuth access tokens) from a string before it reaches a log line.
func RedactPII(text string) string {
	text = emailPattern.ReplaceAllString(text, "[REDACTED_EMAIL]")
	text = creditCardPattern.ReplaceAllString(text, "[REDACTED_CARD]")
	text = phonePattern.ReplaceAllString(text, "[REDACTED_PHONE]")
	text = ssnPattern.ReplaceAllString(text, "[REDACTED_SSN]")
	text = passwordPattern.ReplaceAllString(text, `${1}${2}:"[REDACTED]"`)
	text = bearerPattern.ReplaceAllString(text, "Bearer [REDACTED_TOKEN]")
	return text
}

// RedactPIIFromFields redacts PII from log entry fields
func RedactPIIFromFields(fields map[string]interface{}) map[string]interface{} {
	if fields == nil {
		return nil
	}

	redacted := make(map[string]interface{})
	for key, value := range fields {
		lowerKey := strings.ToLower(key)

		if strings.Contains(lowerKey, "password") ||
			strings.Contains(lowerKey, "secret") ||
			strings.Contains(lowerKey, "token") ||
			strings.Contains(lowerKey, "api_key") ||
			strings.Contains(lowerKey, "apikey") ||
			strings.Contains(lowerKey, "authorization") ||
			strings.Contains(lowerKey, "auth") {
			redacted[key] = "[REDACTED]"
			continue
		}

		if str, ok := value.(string); ok {
			redacted[key] = RedactPII(str)
		} else {
			redacted[key] = value
		}
	}
	return redacted
}
