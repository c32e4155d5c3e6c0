package farm

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/i474232898/crop-yield-service/internal/weather"
)

var validate = validator.New()

// ValidationError wraps a rejected farm registration.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string { return "invalid farm: " + e.Err.Error() }
func (e *ValidationError) Unwrap() error { return e.Err }

// NewFarm is a registration request. Either Location or Address must be set.
type NewFarm struct {
	Name     string            `json:"name" validate:"required"`
	Location *weather.Location `json:"location" validate:"required_without=Address"`
	Address  *Address          `json:"address" validate:"required_without=Location"`
	SoilType string            `json:"soil_type" validate:"required"`
	AreaHa   float64           `json:"area_ha" validate:"gt=0"`
}

// Service manages farms and serves lookups for the prediction path.
type Service struct {
	store    Store
	geocoder Geocoder
	now      func() time.Time
}

// NewService creates a Service. geocoder may be nil.
func NewService(store Store, geocoder Geocoder) *Service {
	return &Service{
		store:    store,
		geocoder: geocoder,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Create registers a farm under the owner's namespace and returns it.
func (s *Service) Create(ctx context.Context, ownerID string, nf NewFarm) (Farm, error) {
	if err := validate.Struct(nf); err != nil {
		return Farm{}, &ValidationError{Err: err}
	}

	var loc weather.Location
	switch {
	case nf.Location != nil:
		loc = *nf.Location
	case s.geocoder == nil:
		return Farm{}, &ValidationError{Err: ErrGeocoderDisabled}
	default:
		var err error
		loc, err = s.geocoder.Geocode(ctx, *nf.Address)
		if err != nil {
			return Farm{}, &ValidationError{Err: fmt.Errorf("geocode address: %w", err)}
		}
	}
	if !loc.Valid() {
		return Farm{}, &ValidationError{Err: fmt.Errorf("location %f,%f is out of range", loc.Lat, loc.Lon)}
	}

	f := Farm{
		FarmID:    uuid.NewString(),
		Name:      nf.Name,
		Location:  loc,
		SoilType:  nf.SoilType,
		AreaHa:    nf.AreaHa,
		CreatedAt: s.now(),
	}
	if err := s.store.CreateFarm(ctx, ownerID, f); err != nil {
		return Farm{}, fmt.Errorf("failed to add farm: %w", err)
	}
	return f, nil
}

// List returns the owner's farms, newest first.
func (s *Service) List(ctx context.Context, ownerID string) ([]Farm, error) {
	return s.store.ListFarms(ctx, ownerID)
}

// Find implements Lookup.
func (s *Service) Find(ctx context.Context, ownerID, farmID string) (Farm, bool, error) {
	f, err := s.store.GetFarm(ctx, ownerID, farmID)
	if errors.Is(err, ErrNotFound) {
		return Farm{}, false, nil
	}
	if err != nil {
		log.Printf("ERROR: farm lookup %s/%s failed: %v", ownerID, farmID, err)
		return Farm{}, false, err
	}
	return f, true, nil
}
