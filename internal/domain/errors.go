package domain

import (
	"errors"
	"fmt"
)

var (
	ErrSettingsNotLoaded    = errors.New("settings are not loaded")
	ErrSubmissionInProgress = errors.New("an order submission is already in progress")
	ErrSyncInProgress       = errors.New("queue sync is already in progress")
	ErrEntryNotFound        = errors.New("queue entry not found")
	ErrItemNotFound         = errors.New("item not found in cart")
)

// ValidationError is a user error caught before any network attempt. It is never queued.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// NetworkError marks a failure that may succeed on a later attempt:
// unreachable host, timeout, reset connection or an unavailable server.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network failure: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// BusinessError is a well-formed rejection from the order service.
// Retrying the same payload will not change the answer.
type BusinessError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *BusinessError) Error() string {
	return e.Message
}

// PersistenceError means the durable copy of the queue could not be written.
// The in-memory state remains authoritative for the session.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func IsNetwork(err error) bool {
	var n *NetworkError
	return errors.As(err, &n)
}

func IsBusiness(err error) bool {
	var b *BusinessError
	return errors.As(err, &b)
}

func IsPersistence(err error) bool {
	var p *PersistenceError
	return errors.As(err, &p)
}
