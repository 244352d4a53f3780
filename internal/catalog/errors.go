package catalog

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationKind distinguishes why a payload was rejected.
type ValidationKind string

const (
	// KindMissingKey is a payload without a natural key. The HTTP layer
	// answers it with 418.
	KindMissingKey ValidationKind = "MISSING_KEY"
	// KindMissingField is a create without every required column.
	KindMissingField ValidationKind = "MISSING_FIELD"
)

// ValidationError rejects an upsert payload.
type ValidationError struct {
	Kind    ValidationKind
	Fields  []string
	Message string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Kind, e.Message, strings.Join(e.Fields, ", "))
}

// Is matches another ValidationError of the same kind.
func (e *ValidationError) Is(target error) bool {
	t, ok := target.(*ValidationError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// ErrMissingKey matches any missing-key ValidationError via errors.Is.
var ErrMissingKey = &ValidationError{Kind: KindMissingKey}

// ParseError reports a payload value that could not be parsed.
type ParseError struct {
	Field string
	Value any
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid value %v for %s: %v", e.Value, e.Field, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// IsMissingKey reports whether err is a missing-key rejection.
func IsMissingKey(err error) bool {
	return errors.Is(err, ErrMissingKey)
}

// IsValidation reports whether err is any ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsParse reports whether err is a ParseError.
func IsParse(err error) bool {
	var p *ParseError
	return errors.As(err, &p)
}
