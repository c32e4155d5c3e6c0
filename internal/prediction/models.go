package prediction

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/i474232898/crop-yield-service/internal/model"
)

var validate = validator.New()

// Request is a prediction request as accepted from a client. It is never mutated
// after acceptance; the record stores a snapshot of it.
type Request struct {
	FarmID      string   `json:"farm_id" validate:"required_without=Rainfall"`
	Crop        string   `json:"crop" validate:"required"`
	Area        float64  `json:"area" validate:"gt=0"`
	Production  float64  `json:"production" validate:"gt=0"`
	Rainfall    *float64 `json:"rainfall,omitempty" validate:"omitempty,gte=0"`
	Fertilizer  *float64 `json:"fertilizer" validate:"required,gte=0"`
	Pesticide   *float64 `json:"pesticide" validate:"required,gte=0"`
	Temperature *float64 `json:"temperature,omitempty"`
	Humidity    *float64 `json:"humidity,omitempty" validate:"omitempty,gte=0,lte=100"`
	SowingDate  *string  `json:"sowing_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

// Validate checks required fields and ranges.
func (r Request) Validate() error {
	if err := validate.Struct(r); err != nil {
		return &ValidationError{Err: err}
	}
	return nil
}

func (r Request) modelInput(rainfall float64) model.Input {
	return model.Input{
		Crop:       r.Crop,
		Area:       r.Area,
		Production: r.Production,
		Rainfall:   rainfall,
		Fertilizer: deref(r.Fertilizer),
		Pesticide:  deref(r.Pesticide),
	}
}

// Clone deep-copies the request so changes through its pointers cannot leak between copies.
func (r Request) Clone() Request {
	c := r
	c.Rainfall = clone(r.Rainfall)
	c.Fertilizer = clone(r.Fertilizer)
	c.Pesticide = clone(r.Pesticide)
	c.Temperature = clone(r.Temperature)
	c.Humidity = clone(r.Humidity)
	if r.SowingDate != nil {
		s := *r.SowingDate
		c.SowingDate = &s
	}
	return c
}

// Status is a record's lifecycle state.
type Status string

const (
	StatusPending  Status = "pending"
	StatusComplete Status = "complete"
	StatusError    Status = "error"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusError
}

// WeatherData is the environmental context reported with a prediction.
type WeatherData struct {
	Rainfall    float64  `json:"rainfall"`
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
}

// Clone deep-copies the reading's optional values.
func (w WeatherData) Clone() WeatherData {
	return WeatherData{
		Rainfall:    w.Rainfall,
		Temperature: clone(w.Temperature),
		Humidity:    clone(w.Humidity),
	}
}

// Response is the stable response contract returned to clients and stored as a
// complete record's outputs.
type Response struct {
	RequestID          string             `json:"request_id"`
	FarmID             string             `json:"farm_id"`
	PredictedYield     float64            `json:"predicted_yield_kg_per_ha"`
	ConfidenceInterval model.Interval     `json:"confidence_interval"`
	ModelVersion       string             `json:"model_version"`
	FeatureImportance  map[string]float64 `json:"feature_importance"`
	WeatherData        WeatherData        `json:"weather_data"`
}

// Clone deep-copies the response.
func (r Response) Clone() Response {
	c := r
	if r.FeatureImportance != nil {
		c.FeatureImportance = make(map[string]float64, len(r.FeatureImportance))
		for k, v := range r.FeatureImportance {
			c.FeatureImportance[k] = v
		}
	}
	c.WeatherData = r.WeatherData.Clone()
	return c
}

// Record is the persisted lifecycle of one accepted request.
// Outputs is set iff Status is complete; ErrorMessage is set iff Status is error.
type Record struct {
	RequestID    string     `json:"request_id"`
	OwnerID      string     `json:"owner_id"`
	FarmID       string     `json:"farm_id"`
	Inputs       Request    `json:"inputs"`
	Status       Status     `json:"status"`
	Outputs      *Response  `json:"outputs,omitempty"`
	ErrorMessage string     `json:"error,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// NewPendingRecord creates the initial record for an accepted request.
func NewPendingRecord(requestID, ownerID string, req Request, createdAt time.Time) Record {
	return Record{
		RequestID: requestID,
		OwnerID:   ownerID,
		FarmID:    req.FarmID,
		Inputs:    req.Clone(),
		Status:    StatusPending,
		CreatedAt: createdAt,
	}
}

// Complete moves a pending record to complete with the given outputs.
func (r *Record) Complete(out Response, at time.Time) error {
	if r.Status != StatusPending {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, StatusComplete)
	}
	r.Status = StatusComplete
	r.Outputs = &out
	r.ErrorMessage = ""
	r.CompletedAt = &at
	return nil
}

// Fail moves a pending record to error with a human-readable message.
func (r *Record) Fail(message string, at time.Time) error {
	if r.Status != StatusPending {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, StatusError)
	}
	if message == "" {
		message = "unknown error"
	}
	r.Status = StatusError
	r.Outputs = nil
	r.ErrorMessage = message
	r.CompletedAt = &at
	return nil
}

// CheckInvariants verifies that status, outputs, error and completion time agree.
func (r Record) CheckInvariants() error {
	switch r.Status {
	case StatusPending:
		if r.Outputs != nil || r.ErrorMessage != "" || r.CompletedAt != nil {
			return fmt.Errorf("pending record %s carries a result", r.RequestID)
		}
	case StatusComplete:
		if r.Outputs == nil || r.ErrorMessage != "" || r.CompletedAt == nil {
			return fmt.Errorf("complete record %s must have outputs only", r.RequestID)
		}
	case StatusError:
		if r.Outputs != nil || r.ErrorMessage == "" || r.CompletedAt == nil {
			return fmt.Errorf("error record %s must have an error message only", r.RequestID)
		}
	default:
		return fmt.Errorf("record %s has unknown status %q", r.RequestID, r.Status)
	}
	return nil
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}

func clone(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}
