// Package model defines the yield prediction capability consumed by the
// orchestrator and the backends that provide it.
package model

import (
	"context"
	"errors"
	"math"
)

var (
	// ErrUnavailable is returned when no model is loaded.
	ErrUnavailable = errors.New("ML model not available")
	// ErrCropNotRecognized is returned for crops the model was not trained on.
	ErrCropNotRecognized = errors.New("crop not recognized")
	// ErrInvalidOutcome is returned when a backend produces a result that cannot be served.
	ErrInvalidOutcome = errors.New("model returned an invalid result")
)

// Feature names, in the order the model consumes them.
const (
	FeatureArea       = "area"
	FeatureProduction = "production"
	FeatureRainfall   = "rainfall"
	FeatureFertilizer = "fertilizer"
	FeaturePesticide  = "pesticide"
)

// Features lists every model input feature.
var Features = []string{FeatureArea, FeatureProduction, FeatureRainfall, FeatureFertilizer, FeaturePesticide}

// Input is what the model needs to produce a prediction.
type Input struct {
	Crop       string
	Area       float64
	Production float64
	Rainfall   float64
	Fertilizer float64
	Pesticide  float64
}

func (in Input) values() map[string]float64 {
	return map[string]float64{
		FeatureArea:       in.Area,
		FeatureProduction: in.Production,
		FeatureRainfall:   in.Rainfall,
		FeatureFertilizer: in.Fertilizer,
		FeaturePesticide:  in.Pesticide,
	}
}

// Interval is a confidence interval around a predicted value.
type Interval struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// Outcome is the raw, unrounded model output.
type Outcome struct {
	PredictedYield     float64            `json:"predicted_yield"`
	ConfidenceInterval Interval           `json:"confidence_interval"`
	ModelVersion       string             `json:"model_version"`
	FeatureImportance  map[string]float64 `json:"feature_importance"`
}

// Validate rejects outcomes that cannot be turned into a response.
func (o Outcome) Validate() error {
	for _, v := range []float64{o.PredictedYield, o.ConfidenceInterval.Lower, o.ConfidenceInterval.Upper} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return ErrInvalidOutcome
		}
	}
	if o.ConfidenceInterval.Lower > o.ConfidenceInterval.Upper {
		return ErrInvalidOutcome
	}
	for _, v := range o.FeatureImportance {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return ErrInvalidOutcome
		}
	}
	return nil
}

// Predictor is the opaque yield model.
type Predictor interface {
	Available() bool
	Crops() []string
	Version() string
	Predict(ctx context.Context, in Input) (Outcome, error)
	Close() error
}

// Unavailable is a Predictor that never has a model loaded.
type Unavailable struct{}

func (Unavailable) Available() bool { return false }
func (Unavailable) Crops() []string { return nil }
func (Unavailable) Version() string { return "" }
func (Unavailable) Close() error    { return nil }

func (Unavailable) Predict(ctx context.Context, in Input) (Outcome, error) {
	return Outcome{}, ErrUnavailable
}
