// Package errors defines application-specific error types and sentinel errors.
package errors

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for common conditions.
var (
	ErrEmitterDestroyed = errors.New("emitter is destroyed")
	ErrNoSink           = errors.New("no sink registered")
	ErrUnknownKey       = errors.New("unknown emitter key")
	ErrConsumerClosed   = errors.New("consumer is closed")
	ErrPublisherClosed  = errors.New("publisher is closed")
	ErrInvalidRecord    = errors.New("invalid record")
	ErrWriterClosed     = errors.New("storage writer is closed")
	ErrConnectionLost   = errors.New("connection lost")
	ErrDraining         = errors.New("ingestion is draining")
)

// FlushError reports a flush whose sink invocations were all rejected.
// The batch it describes has been returned to the key's pending buffer.
type FlushError struct {
	Key      string
	Attempts int
	Records  int
	Err      error
}

func (e *FlushError) Error() string {
	return fmt.Sprintf("flush error: key=%s attempts=%d records=%d: %v",
		e.Key, e.Attempts, e.Records, e.Err)
}

func (e *FlushError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether a later flush of the same batch may succeed.
func (e *FlushError) IsRetryable() bool {
	return !errors.Is(e.Err, ErrEmitterDestroyed)
}

// ValidationError represents a record validation failure.
type ValidationError struct {
	RecordID string
	Field    string
	Reason   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: record_id=%s field=%s: %s",
		e.RecordID, e.Field, e.Reason)
}

// Is lets errors.Is(err, ErrInvalidRecord) match any validation failure.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidRecord
}

// StorageError represents a storage operation failure.
type StorageError struct {
	Operation string
	Path      string
	Err       error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error: operation=%s path=%s: %v",
		e.Operation, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// PublishError represents a Kafka publish failure for part of a batch.
type PublishError struct {
	Topic  string
	Failed int
	Total  int
	Err    error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish error: topic=%s failed=%d/%d: %v",
		e.Topic, e.Failed, e.Total, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether the publish may succeed on retry.
func (e *PublishError) IsRetryable() bool {
	return !errors.Is(e.Err, ErrPublisherClosed)
}

// Retryable defines an interface for errors that can indicate if they are retryable.
type Retryable interface {
	error
	IsRetryable() bool
}

// IsRetryable checks if an error is retryable.
// It first checks if the error implements the Retryable interface,
// then falls back to checking specific error types and sentinel errors.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var retryable Retryable
	if errors.As(err, &retryable) {
		return retryable.IsRetryable()
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	if errors.Is(err, ErrConnectionLost) {
		return true
	}

	return false
}

// IsRetryable determines if a StorageError is retryable based on the operation type.
func (e *StorageError) IsRetryable() bool {
	return e.Operation == "write" || e.Operation == "upload" || e.Operation == "create"
}
