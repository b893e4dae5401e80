package domain

import (
	"errors"
	"fmt"
)

var ErrUnknownModel = errors.New("unsupported or unknown model")

// ModelError carries the identifier that failed to resolve
type ModelError struct {
	Err        error
	Identifier string
}

func (e *ModelError) Error() string {
	return fmt.Sprintf("Unsupported or Unknown Model: %s", e.Identifier)
}

func (e *ModelError) Unwrap() error {
	return e.Err
}

func NewUnknownModelError(identifier string) *ModelError {
	return &ModelError{Identifier: identifier, Err: ErrUnknownModel}
}

type ConfigError struct {
	Value  any
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration for %s=%v: %s", e.Field, e.Value, e.Reason)
}

func NewConfigError(field string, value any, reason string) *ConfigError {
	return &ConfigError{Field: field, Value: value, Reason: reason}
}
