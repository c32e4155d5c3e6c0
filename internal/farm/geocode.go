package farm

import (
	"context"
	"errors"
	"sync"

	"github.com/kelvins/geocoder"

	"github.com/i474232898/crop-yield-service/internal/weather"
)

// ErrGeocoderDisabled is returned when an address is given but no geocoder is configured.
var ErrGeocoderDisabled = errors.New("address geocoding is not configured")

// Address is a postal address used when a farm is registered without coordinates.
type Address struct {
	Street     string `json:"street"`
	City       string `json:"city" validate:"required"`
	State      string `json:"state"`
	Country    string `json:"country" validate:"required"`
	PostalCode string `json:"postal_code"`
}

// Geocoder turns an address into coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, addr Address) (weather.Location, error)
}

// GoogleGeocoder resolves addresses through the Google Geocoding API.
type GoogleGeocoder struct{}

var geocoderKeyOnce sync.Once

// NewGoogleGeocoder configures the geocoding client. The key is process-wide in the
// underlying library, so only the first call takes effect.
func NewGoogleGeocoder(apiKey string) (*GoogleGeocoder, error) {
	if apiKey == "" {
		return nil, ErrGeocoderDisabled
	}
	geocoderKeyOnce.Do(func() {
		geocoder.ApiKey = apiKey
	})
	return &GoogleGeocoder{}, nil
}

func (g *GoogleGeocoder) Geocode(ctx context.Context, addr Address) (weather.Location, error) {
	if err := ctx.Err(); err != nil {
		return weather.Location{}, err
	}
	loc, err := geocoder.Geocoding(geocoder.Address{
		Street:     addr.Street,
		City:       addr.City,
		State:      addr.State,
		Country:    addr.Country,
		PostalCode: addr.PostalCode,
	})
	if err != nil {
		return weather.Location{}, err
	}
	return weather.Location{Lat: loc.Latitude, Lon: loc.Longitude}, nil
}
