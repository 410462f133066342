package config

import (
	"fmt"
	"strings"

	"github.com/spot-perf/spot/internal/sqldb"
)

// Validator is the interface for validating configuration.
type Validator interface {
	Validate() error
}

// ValidationError represents a single validation error.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// MultiValidationError represents multiple validation errors.
type MultiValidationError struct {
	Errors []ValidationError
}

// Error implements the error interface.
func (e *MultiValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "no validation errors"
	}

	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("validation failed with %d errors:\n", len(e.Errors)))
	for i, err := range e.Errors {
		builder.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return builder.String()
}

// Validate validates Config.
func (c *Config) Validate() error {
	var errors []ValidationError

	if c.Tool.Path == "" {
		errors = append(errors, ValidationError{
			Field:   "tool.path",
			Message: "tool path is required",
		})
	}

	if c.Tool.Timeout < 0 {
		errors = append(errors, ValidationError{
			Field:   "tool.timeout",
			Message: "tool timeout cannot be negative",
		})
	}

	if c.Tool.MaxRetries < 0 {
		errors = append(errors, ValidationError{
			Field:   "tool.max_retries",
			Message: "max retries cannot be negative",
		})
	}

	if c.Tool.InitialBackoff < 0 {
		errors = append(errors, ValidationError{
			Field:   "tool.initial_backoff",
			Message: "initial backoff cannot be negative",
		})
	}

	if _, err := sqldb.ParseDialect(c.Store.Driver); err != nil {
		errors = append(errors, ValidationError{
			Field:   "store.driver",
			Message: "store driver must be 'duckdb' or 'sqlite'",
		})
	}

	if c.Workers < 1 {
		errors = append(errors, ValidationError{
			Field:   "workers",
			Message: "workers must be positive",
		})
	}

	if c.DurationKey == "" {
		errors = append(errors, ValidationError{
			Field:   "duration_key",
			Message: "duration key is required",
		})
	}

	switch strings.ToLower(c.Logging.Level) {
	case "", "trace", "debug", "info", "warn", "warning", "error", "disabled", "off":
	default:
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("unknown log level %q", c.Logging.Level),
		})
	}

	if len(errors) > 0 {
		return &MultiValidationError{Errors: errors}
	}
	return nil
}
