package weather

import (
	"context"
	"fmt"
	"log"
)

// FailureObserver is notified when a provider fails to answer.
type FailureObserver interface {
	ProviderFailed(provider string)
}

// Resolver turns coordinates into a Reading by trying providers in order and
// falling back to DefaultReading. It never returns an error.
type Resolver struct {
	providers []Provider
	observer  FailureObserver
}

// NewResolver creates a Resolver. With no providers every lookup yields the default reading.
func NewResolver(providers []Provider, observer FailureObserver) *Resolver {
	return &Resolver{
		providers: providers,
		observer:  observer,
	}
}

// Providers returns the names of the configured providers in the order they are tried.
func (r *Resolver) Providers() []string {
	names := make([]string, 0, len(r.providers))
	for _, p := range r.providers {
		names = append(names, p.Name())
	}
	return names
}

// Resolve returns the reading for the given coordinates.
func (r *Resolver) Resolve(ctx context.Context, lat, lon float64) Reading {
	return r.ResolveDetailed(ctx, lat, lon).Reading
}

// ResolveDetailed returns the reading along with where it came from.
func (r *Resolver) ResolveDetailed(ctx context.Context, lat, lon float64) Resolution {
	loc := Location{Lat: lat, Lon: lon}
	if !loc.Valid() {
		log.Printf("weather: invalid coordinates %f,%f; using default reading", lat, lon)
		return fallback(ReasonInvalidCoordinates, nil)
	}
	if len(r.providers) == 0 {
		return fallback(ReasonNoProvider, nil)
	}

	var errs []error
	for _, p := range r.providers {
		pr, err := p.Fetch(ctx, loc)
		if err != nil {
			log.Printf("weather: provider %s fetch failed for %f,%f: %v", p.Name(), lat, lon, err)
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
			if r.observer != nil {
				r.observer.ProviderFailed(p.Name())
			}
			continue
		}

		return Resolution{
			Reading: Reading{
				Temperature: pr.TemperatureC,
				Humidity:    pr.HumidityPct,
				Rainfall:    pr.PrecipMmHour * HoursPerDay,
			},
			Source:   SourceProvider,
			Provider: p.Name(),
			Errors:   errs,
		}
	}

	log.Printf("weather: no provider answered for %f,%f; using default reading", lat, lon)
	return fallback(ReasonProviderFailed, errs)
}

func fallback(reason FallbackReason, errs []error) Resolution {
	return Resolution{
		Reading: DefaultReading(),
		Source:  SourceDefault,
		Reason:  reason,
		Errors:  errs,
	}
}
