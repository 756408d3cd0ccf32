package config

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/gobwas/glob"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "bridge.workers")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// appIDRegex matches registered application identifiers.
var appIDRegex = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)

const (
	maxWorkers       = 1024
	minHeartbeatMs   = 1
	maxLogBackups    = 100
	maxPatternLength = 256
)

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateBridge()...)
	errors = append(errors, c.validateHeartbeat()...)
	errors = append(errors, c.validateWatch()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

func (c *Config) validateBridge() []ValidationError {
	var errors []ValidationError

	if !appIDRegex.MatchString(c.Bridge.App) {
		errors = append(errors, ValidationError{
			Field:   "bridge.app",
			Value:   c.Bridge.App,
			Message: "must start with a lowercase letter and contain only lowercase letters, digits, '-' or '_'",
		})
	}
	if c.Bridge.Workers < 0 || c.Bridge.Workers > maxWorkers {
		errors = append(errors, ValidationError{
			Field:   "bridge.workers",
			Value:   c.Bridge.Workers,
			Message: fmt.Sprintf("must be between 0 and %d", maxWorkers),
		})
	}
	if c.Bridge.RequestsPerWorker < 0 {
		errors = append(errors, ValidationError{
			Field:   "bridge.requests_per_worker",
			Value:   c.Bridge.RequestsPerWorker,
			Message: "must be non-negative",
		})
	}
	if c.Bridge.RunFor < 0 {
		errors = append(errors, ValidationError{
			Field:   "bridge.run_for",
			Value:   c.Bridge.RunFor,
			Message: "must be non-negative (0 runs until interrupted)",
		})
	}

	return errors
}

func (c *Config) validateHeartbeat() []ValidationError {
	var errors []ValidationError

	if c.Heartbeat.IntervalMs < minHeartbeatMs {
		errors = append(errors, ValidationError{
			Field:   "heartbeat.interval_ms",
			Value:   c.Heartbeat.IntervalMs,
			Message: fmt.Sprintf("must be at least %d", minHeartbeatMs),
		})
	}
	if c.Heartbeat.MaxBeats < 0 {
		errors = append(errors, ValidationError{
			Field:   "heartbeat.max_beats",
			Value:   c.Heartbeat.MaxBeats,
			Message: "must be non-negative (0 = never quit)",
		})
	}

	return errors
}

func (c *Config) validateWatch() []ValidationError {
	var errors []ValidationError

	if c.Watch.DebounceMs < 0 {
		errors = append(errors, ValidationError{
			Field:   "watch.debounce_ms",
			Value:   c.Watch.DebounceMs,
			Message: "must be non-negative",
		})
	}
	if strings.ContainsRune(c.Watch.Dir, '\x00') {
		errors = append(errors, ValidationError{
			Field:   "watch.dir",
			Value:   c.Watch.Dir,
			Message: "contains invalid null character",
		})
	}
	if strings.ContainsAny(c.Watch.QuitFile, "/\x00") {
		errors = append(errors, ValidationError{
			Field:   "watch.quit_file",
			Value:   c.Watch.QuitFile,
			Message: "must be a base name without path separators",
		})
	}
	errors = append(errors, validatePatterns(c.Watch.Patterns, "watch.patterns")...)

	return errors
}

// validatePatterns checks that every pattern compiles as a glob.
func validatePatterns(patterns []string, fieldPrefix string) []ValidationError {
	var errors []ValidationError

	seen := make(map[string]bool)
	for i, p := range patterns {
		field := fmt.Sprintf("%s[%d]", fieldPrefix, i)
		switch {
		case strings.TrimSpace(p) == "":
			errors = append(errors, ValidationError{Field: field, Value: p, Message: "pattern cannot be empty"})
			continue
		case len(p) > maxPatternLength:
			errors = append(errors, ValidationError{
				Field:   field,
				Value:   p,
				Message: fmt.Sprintf("pattern exceeds maximum length of %d characters", maxPatternLength),
			})
			continue
		}
		if _, err := glob.Compile(p); err != nil {
			errors = append(errors, ValidationError{
				Field:   field,
				Value:   p,
				Message: fmt.Sprintf("invalid glob: %v", err),
			})
		}
		if seen[p] {
			errors = append(errors, ValidationError{Field: field, Value: p, Message: "duplicate pattern"})
		}
		seen[p] = true
	}

	return errors
}

func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}
	if c.Logging.MaxSizeMB < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be non-negative (0 disables rotation)",
		})
	}
	if c.Logging.MaxBackups < 0 || c.Logging.MaxBackups > maxLogBackups {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: fmt.Sprintf("must be between 0 and %d", maxLogBackups),
		})
	}
	if c.Logging.Compress && c.Logging.MaxSizeMB == 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.compress",
			Value:   c.Logging.Compress,
			Message: "has no effect when rotation is disabled (logging.max_size_mb = 0)",
		})
	}

	return errors
}
