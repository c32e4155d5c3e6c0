package prediction

import (
	"errors"
	"fmt"

	"github.com/i474232898/crop-yield-service/internal/model"
)

var (
	// ErrModelUnavailable is the service-level precondition failure: no record is created.
	ErrModelUnavailable = model.ErrUnavailable
	// ErrIDGeneration is a system error raised when a unique request id cannot be produced.
	ErrIDGeneration = errors.New("failed to generate a unique request id")
	// ErrNotFound is returned by stores when a record does not exist for the owner.
	ErrNotFound = errors.New("prediction not found")
	// ErrAlreadyExists is returned by stores when a request id is reused.
	ErrAlreadyExists = errors.New("prediction already exists")
	// ErrInvalidTransition is returned when a record is moved out of a terminal state.
	ErrInvalidTransition = errors.New("invalid prediction status transition")
)

// ValidationError is returned for malformed requests before any record exists.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string { return "invalid prediction request: " + e.Err.Error() }
func (e *ValidationError) Unwrap() error { return e.Err }

// PredictionError is returned when a failure happened after the pending record was
// persisted. The record has been moved to the error state (best effort).
type PredictionError struct {
	RequestID string
	Err       error
}

func (e *PredictionError) Error() string {
	return fmt.Sprintf("prediction failed: %v", e.Err)
}

func (e *PredictionError) Unwrap() error { return e.Err }
