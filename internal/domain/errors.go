package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks rejected input. Match with errors.Is; details live on *ValidationError.
	ErrValidation = errors.New("validation failed")
	// ErrRuleNotFound is returned when a rule id does not exist.
	ErrRuleNotFound = errors.New("rule not found")
	// ErrBuiltinRule is returned when a mutation targets a built-in rule.
	ErrBuiltinRule = errors.New("built-in rules cannot be modified")
	// ErrStorage marks a datastore failure.
	ErrStorage = errors.New("storage failure")
)

// ValidationError describes a single invalid input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// StorageError wraps a failure from the underlying store.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() []error { return []error{ErrStorage, e.Err} }

// storageErr passes domain errors through and wraps everything else.
func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrValidation) || errors.Is(err, ErrRuleNotFound) || errors.Is(err, ErrBuiltinRule) || errors.Is(err, ErrStorage) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}
