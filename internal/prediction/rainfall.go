package prediction

import (
	"context"
	"log"

	"github.com/i474232898/crop-yield-service/internal/weather"
)

// DefaultRainfall is used whenever rainfall cannot be taken from the request or the weather source.
const DefaultRainfall = weather.DefaultRainfall

// RainfallSource says which link of the fallback chain produced the rainfall value.
type RainfallSource string

const (
	RainfallFromRequest RainfallSource = "request"
	RainfallFromWeather RainfallSource = "weather"
	RainfallDefault     RainfallSource = "default"
)

// Reasons for falling back to DefaultRainfall.
const (
	ReasonFarmNotFound        = "farm_not_found"
	ReasonFarmLookupFailed    = "farm_lookup_failed"
	ReasonInvalidFarmLocation = "invalid_farm_location"
)

// RainfallResolution is the typed result of the rainfall fallback chain.
type RainfallResolution struct {
	Rainfall float64
	Source   RainfallSource
	// Reason is empty unless Source is RainfallDefault.
	Reason string
	// Reading is set when a weather provider answered.
	Reading *weather.Reading
	// Err is kept for diagnostics only and never surfaced to callers.
	Err error
}

// WeatherResolver looks up current conditions and never fails.
type WeatherResolver interface {
	ResolveDetailed(ctx context.Context, lat, lon float64) weather.Resolution
}

// resolveRainfall walks request value -> farm + weather -> default. It never fails.
func (o *Orchestrator) resolveRainfall(ctx context.Context, ownerID string, req Request) RainfallResolution {
	if req.Rainfall != nil {
		return RainfallResolution{Rainfall: *req.Rainfall, Source: RainfallFromRequest}
	}

	f, found, err := o.farms.Find(ctx, ownerID, req.FarmID)
	switch {
	case err != nil:
		log.Printf("WARN: rainfall: farm lookup %s failed, using default: %v", req.FarmID, err)
		return defaultRainfall(ReasonFarmLookupFailed, err)
	case !found:
		log.Printf("INFO: rainfall: farm %s not found for owner, using default", req.FarmID)
		return defaultRainfall(ReasonFarmNotFound, nil)
	case !f.Location.Valid():
		log.Printf("WARN: rainfall: farm %s has invalid location %+v, using default", req.FarmID, f.Location)
		return defaultRainfall(ReasonInvalidFarmLocation, nil)
	}

	res := o.weather.ResolveDetailed(ctx, f.Location.Lat, f.Location.Lon)
	if res.Fallback() {
		log.Printf("INFO: rainfall: weather for farm %s fell back to default (%s)", req.FarmID, res.Reason)
		return RainfallResolution{
			Rainfall: res.Reading.Rainfall,
			Source:   RainfallDefault,
			Reason:   "weather_" + string(res.Reason),
		}
	}

	reading := res.Reading
	return RainfallResolution{
		Rainfall: reading.Rainfall,
		Source:   RainfallFromWeather,
		Reading:  &reading,
	}
}

func defaultRainfall(reason string, err error) RainfallResolution {
	return RainfallResolution{
		Rainfall: DefaultRainfall,
		Source:   RainfallDefault,
		Reason:   reason,
		Err:      err,
	}
}
