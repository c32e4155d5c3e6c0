package prediction

import (
	"math"

	"github.com/i474232898/crop-yield-service/internal/model"
)

// round2 rounds half away from zero to two decimal places.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// FormatResponse builds the response envelope. Rounding happens here and nowhere else.
func FormatResponse(requestID string, req Request, out model.Outcome, rain RainfallResolution) Response {
	importance := make(map[string]float64, len(out.FeatureImportance))
	for k, v := range out.FeatureImportance {
		importance[k] = v
	}

	wd := WeatherData{
		Rainfall:    rain.Rainfall,
		Temperature: clone(req.Temperature),
		Humidity:    clone(req.Humidity),
	}
	if rain.Reading != nil {
		if wd.Temperature == nil {
			wd.Temperature = clone(&rain.Reading.Temperature)
		}
		if wd.Humidity == nil {
			wd.Humidity = clone(&rain.Reading.Humidity)
		}
	}

	return Response{
		RequestID:      requestID,
		FarmID:         req.FarmID,
		PredictedYield: round2(out.PredictedYield),
		ConfidenceInterval: model.Interval{
			Lower: round2(out.ConfidenceInterval.Lower),
			Upper: round2(out.ConfidenceInterval.Upper),
		},
		ModelVersion:      out.ModelVersion,
		FeatureImportance: importance,
		WeatherData:       wd,
	}
}
