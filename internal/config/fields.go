package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrNegativeDuration = errors.New("duration must not be negative")

// FieldError ties a rejected value to its dotted config path.
type FieldError struct {
	Path  string
	Value string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %v (got %q)", e.Path, e.Err, e.Value)
}

func (e *FieldError) Unwrap() error { return e.Err }

// ParseDurationField parses an optional Go duration; blank means 0.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	switch {
	case err != nil:
		return 0, &FieldError{Path: path, Value: raw, Err: err}
	case d < 0:
		return 0, &FieldError{Path: path, Value: raw, Err: ErrNegativeDuration}
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with def substituted for
// blank or zero values.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil || d > 0 {
		return d, err
	}
	return def, nil
}
