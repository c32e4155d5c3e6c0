package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/i474232898/crop-yield-service/internal/weather"
)

// OpenMeteoProvider implements the weather.Provider interface for Open-Meteo.
// It needs no API key.
type OpenMeteoProvider struct {
	base
}

func NewOpenMeteoProvider(client *http.Client, opts ...Option) *OpenMeteoProvider {
	return &OpenMeteoProvider{
		base: newBase("openmeteo", "https://api.open-meteo.com/v1/forecast", client, opts),
	}
}

func (p *OpenMeteoProvider) Fetch(ctx context.Context, loc weather.Location) (weather.ProviderReading, error) {
	values := url.Values{}
	values.Set("latitude", strconv.FormatFloat(loc.Lat, 'f', -1, 64))
	values.Set("longitude", strconv.FormatFloat(loc.Lon, 'f', -1, 64))
	values.Set("current", "temperature_2m,relative_humidity_2m,precipitation")

	var payload struct {
		Current *struct {
			Temperature   *float64 `json:"temperature_2m"`
			Humidity      *float64 `json:"relative_humidity_2m"`
			Precipitation float64  `json:"precipitation"`
		} `json:"current"`
	}

	if err := p.getJSON(ctx, p.baseURL+"?"+values.Encode(), &payload); err != nil {
		return weather.ProviderReading{}, err
	}
	if payload.Current == nil || payload.Current.Temperature == nil || payload.Current.Humidity == nil {
		return weather.ProviderReading{}, fmt.Errorf("openmeteo: %w: current", errMissingField)
	}

	return weather.ProviderReading{
		ProviderName: p.name,
		TemperatureC: *payload.Current.Temperature,
		HumidityPct:  *payload.Current.Humidity,
		PrecipMmHour: payload.Current.Precipitation,
	}, nil
}
