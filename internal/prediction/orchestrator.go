// Package prediction runs the lifecycle of a crop-yield prediction request:
// validation, a pending record, rainfall resolution, the model call and the
// terminal record update.
package prediction

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/i474232898/crop-yield-service/internal/farm"
	"github.com/i474232898/crop-yield-service/internal/model"
)

// Store persists prediction records in per-owner namespaces.
type Store interface {
	// CreatePrediction stores a new record and fails with ErrAlreadyExists on id reuse.
	CreatePrediction(ctx context.Context, ownerID string, rec Record) error
	// FinalizePrediction replaces a pending record with its terminal version. It fails with
	// ErrInvalidTransition when the stored record is no longer pending.
	FinalizePrediction(ctx context.Context, ownerID string, rec Record) error
	GetPrediction(ctx context.Context, ownerID, requestID string) (Record, error)
	// ListPredictions returns the owner's records, newest first.
	ListPredictions(ctx context.Context, ownerID string) ([]Record, error)
}

// Recorder receives diagnostic signals. Implementations must be safe for concurrent use.
type Recorder interface {
	PredictionOutcome(outcome string)
	RainfallResolved(source, reason string)
}

// Outcome labels passed to Recorder.PredictionOutcome.
const (
	OutcomeComplete            = "complete"
	OutcomeError               = "error"
	OutcomeRejectedUnavailable = "rejected_unavailable"
	OutcomeRejectedInvalid     = "rejected_invalid"
)

// Dependencies are the collaborators an Orchestrator is built from.
type Dependencies struct {
	Store   Store
	Farms   farm.Lookup
	Weather WeatherResolver
	Model   model.Predictor

	// Optional.
	Recorder Recorder
	NewID    func() (string, error)
	Now      func() time.Time
}

// Orchestrator runs prediction requests. It holds no per-request state and is safe
// for concurrent use.
type Orchestrator struct {
	store    Store
	farms    farm.Lookup
	weather  WeatherResolver
	model    model.Predictor
	recorder Recorder
	newID    func() (string, error)
	now      func() time.Time
}

// NewOrchestrator validates the dependencies and builds an Orchestrator.
func NewOrchestrator(deps Dependencies) (*Orchestrator, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("prediction store is required")
	case deps.Farms == nil:
		return nil, errors.New("farm lookup is required")
	case deps.Weather == nil:
		return nil, errors.New("weather resolver is required")
	case deps.Model == nil:
		return nil, errors.New("model is required")
	}

	o := &Orchestrator{
		store:    deps.Store,
		farms:    deps.Farms,
		weather:  deps.Weather,
		model:    deps.Model,
		recorder: deps.Recorder,
		newID:    deps.NewID,
		now:      deps.Now,
	}
	if o.newID == nil {
		o.newID = newRequestID
	}
	if o.now == nil {
		o.now = func() time.Time { return time.Now().UTC() }
	}
	return o, nil
}

func newRequestID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// ModelAvailable reports whether predictions can currently be accepted.
func (o *Orchestrator) ModelAvailable() bool {
	return o.model.Available()
}

// Crops lists the crop names the model recognizes.
func (o *Orchestrator) Crops() []string {
	if !o.model.Available() {
		return nil
	}
	return o.model.Crops()
}

// Submit runs one prediction request for ownerID.
//
// Failures before the pending record is written (model unavailable, invalid request,
// id generation, the initial write) leave no trace. Every later failure is recorded
// on the record before it is returned as a *PredictionError. Nothing is retried.
func (o *Orchestrator) Submit(ctx context.Context, ownerID string, req Request) (Response, error) {
	if !o.model.Available() {
		o.outcome(OutcomeRejectedUnavailable)
		return Response{}, ErrModelUnavailable
	}
	if ownerID == "" {
		o.outcome(OutcomeRejectedInvalid)
		return Response{}, &ValidationError{Err: errors.New("owner id is required")}
	}
	if err := req.Validate(); err != nil {
		o.outcome(OutcomeRejectedInvalid)
		return Response{}, err
	}

	requestID, err := o.newID()
	if err != nil || requestID == "" {
		return Response{}, fmt.Errorf("%w: %v", ErrIDGeneration, err)
	}

	pending := NewPendingRecord(requestID, ownerID, req, o.now())
	if err := o.store.CreatePrediction(ctx, ownerID, pending); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return Response{}, fmt.Errorf("%w: request id %s already in use", ErrIDGeneration, requestID)
		}
		return Response{}, fmt.Errorf("failed to persist prediction request: %w", err)
	}

	// The record exists now; the rest of the pipeline runs to a terminal state even if
	// the caller goes away.
	ctx = context.WithoutCancel(ctx)

	rain := o.resolveRainfall(ctx, ownerID, pending.Inputs)
	if o.recorder != nil {
		o.recorder.RainfallResolved(string(rain.Source), rain.Reason)
	}

	out, err := o.model.Predict(ctx, pending.Inputs.modelInput(rain.Rainfall))
	if err == nil {
		err = out.Validate()
	}
	if err != nil {
		return Response{}, o.fail(ctx, pending, err)
	}

	resp := FormatResponse(requestID, pending.Inputs, out, rain)
	done := pending
	if err := done.Complete(resp, o.now()); err != nil {
		return Response{}, o.fail(ctx, pending, err)
	}
	if err := o.store.FinalizePrediction(ctx, ownerID, done); err != nil {
		return Response{}, o.fail(ctx, pending, fmt.Errorf("failed to record prediction result: %w", err))
	}

	o.outcome(OutcomeComplete)
	return resp, nil
}

// fail moves the pending record to error and returns the caller-facing error.
func (o *Orchestrator) fail(ctx context.Context, pending Record, cause error) error {
	o.outcome(OutcomeError)

	failed := pending
	if err := failed.Fail(cause.Error(), o.now()); err != nil {
		log.Printf("ERROR: prediction %s: %v", pending.RequestID, err)
	} else if err := o.store.FinalizePrediction(ctx, pending.OwnerID, failed); err != nil {
		log.Printf("ERROR: prediction %s could not be marked as failed, record stays pending: %v", pending.RequestID, err)
	}

	return &PredictionError{RequestID: pending.RequestID, Err: cause}
}

func (o *Orchestrator) outcome(label string) {
	if o.recorder != nil {
		o.recorder.PredictionOutcome(label)
	}
}

// Get returns one of the owner's records.
func (o *Orchestrator) Get(ctx context.Context, ownerID, requestID string) (Record, error) {
	return o.store.GetPrediction(ctx, ownerID, requestID)
}

// History returns the owner's records, newest first. Pending records may be
// in flight or orphaned by a crash; they are returned as they are.
func (o *Orchestrator) History(ctx context.Context, ownerID string) ([]Record, error) {
	return o.store.ListPredictions(ctx, ownerID)
}
