package repair

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyInput    = errors.New("empty model output")
	ErrNoJSONObject  = errors.New("no JSON object found in model output")
	ErrUnparseable   = errors.New("model output could not be repaired into valid JSON")
	ErrInvalidConfig = errors.New("invalid repair configuration")
)

// UnparseableError is returned once every attempt has failed. It carries the
// last candidate and the decoder error so callers can log or inspect them.
type UnparseableError struct {
	Attempts       int
	LastErr        error
	Candidate      string
	DiagnosticPath string
}

func (e *UnparseableError) Error() string {
	msg := fmt.Sprintf("failed to parse JSON after %d attempts: %v", e.Attempts, e.LastErr)
	if e.DiagnosticPath != "" {
		msg += fmt.Sprintf(" (diagnostic: %s)", e.DiagnosticPath)
	}
	return msg
}

func (e *UnparseableError) Unwrap() []error {
	return []error{ErrUnparseable, e.LastErr}
}

type ConfigError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s %v: %s", e.Field, e.Value, e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return ErrInvalidConfig
}

// ErrorKind is the category of a JSON decode failure, used to pick a targeted fix.
type ErrorKind string

const (
	KindPropertyName       ErrorKind = "expecting_property_name"
	KindDelimiter          ErrorKind = "expecting_delimiter"
	KindUnterminatedString ErrorKind = "unterminated_string"
	KindValue              ErrorKind = "expecting_value"
	KindUnexpectedEnd      ErrorKind = "unexpected_end"
	KindOther              ErrorKind = "other"
)

// ParseError is a classified decoder failure.
type ParseError struct {
	Kind   ErrorKind
	Offset int64
	Err    error
}

func (e *ParseError) Error() string {
	if e.Offset > 0 {
		return fmt.Sprintf("%s: %v (offset %d)", e.Kind, e.Err, e.Offset)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
