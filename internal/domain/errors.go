package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrUnknownCategory  = errors.New("unknown category")
	ErrUnknownMetric    = errors.New("unknown metric")
	ErrInvalidRecord    = errors.New("invalid activity record")
	ErrInvalidDate      = errors.New("invalid date")
	ErrInvalidOutcome   = errors.New("invalid outcome")
	ErrInvalidDirection = errors.New("invalid direction")
	ErrInvalidPool      = errors.New("invalid pool")
	ErrInvalidPeriodKey = errors.New("invalid period key")
)

// ConfigurationError is raised while loading the timezone or goal registry.
// It is fatal: the engine must not start with a bad configuration.
type ConfigurationError struct {
	Field  string
	Reason string
	Err    error
}

func (e ConfigurationError) Error() string {
	msg := fmt.Sprintf("configuration: %s: %s", e.Field, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e ConfigurationError) Unwrap() error { return e.Err }

// UnknownCategory wraps ErrUnknownCategory with the offending name.
func UnknownCategory(category string) error {
	return fmt.Errorf("%w: %q", ErrUnknownCategory, category)
}
