package factory

import (
	"errors"
	"fmt"
)

var (
	ErrMissingArgument = errors.New("factory: missing required argument")
	ErrInvalidArgument = errors.New("factory: invalid argument type")

	ErrUnknownImplementation = errors.New("factory: unknown implementation")
)

// ConfigError reports a configuration field that is absent or of the wrong
// type. errors.Is matches ErrMissingArgument or ErrInvalidArgument.
type ConfigError struct {
	Kind     error
	Field    string
	Expected string // ErrInvalidArgument only
	Got      string // ErrInvalidArgument only
}

func (e *ConfigError) Error() string {
	if errors.Is(e.Kind, ErrInvalidArgument) {
		return fmt.Sprintf("Invalid Argument Type Expected [%s] for [%s] but got [%s]", e.Expected, e.Field, e.Got)
	}
	return fmt.Sprintf("Missing Required Argument [%s]", e.Field)
}

func (e *ConfigError) Unwrap() error { return e.Kind }

func missing(field string) error {
	return &ConfigError{Kind: ErrMissingArgument, Field: field}
}

func invalid(field, expected string, got any) error {
	return &ConfigError{Kind: ErrInvalidArgument, Field: field, Expected: expected, Got: typeName(got)}
}

type unknownError struct{ name string }

func (e unknownError) Error() string {
	return fmt.Sprintf("Implementation [%s] does not exist", e.name)
}
func (e unknownError) Unwrap() error { return ErrUnknownImplementation }

func typeName(v any) string {
	if v == nil {
		return "nil"
	}
	return fmt.Sprintf("%T", v)
}
