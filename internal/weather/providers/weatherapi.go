package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/i474232898/crop-yield-service/internal/weather"
)

// WeatherAPIProvider implements the weather.Provider interface for WeatherAPI.com.
type WeatherAPIProvider struct {
	base
	apiKey string
}

func NewWeatherAPIProvider(client *http.Client, apiKey string, opts ...Option) *WeatherAPIProvider {
	return &WeatherAPIProvider{
		base:   newBase("weatherapi", "https://api.weatherapi.com/v1/current.json", client, opts),
		apiKey: apiKey,
	}
}

func (p *WeatherAPIProvider) Fetch(ctx context.Context, loc weather.Location) (weather.ProviderReading, error) {
	if p.apiKey == "" {
		return weather.ProviderReading{}, fmt.Errorf("weatherapi: %w", errMissingAPIKey)
	}

	values := url.Values{}
	values.Set("key", p.apiKey)
	// WeatherAPI accepts "lat,lon" in q.
	values.Set("q", fmt.Sprintf("%f,%f", loc.Lat, loc.Lon))

	var payload struct {
		Current *struct {
			TempC    *float64 `json:"temp_c"`
			Humidity *float64 `json:"humidity"`
			PrecipMm float64  `json:"precip_mm"`
		} `json:"current"`
	}

	if err := p.getJSON(ctx, p.baseURL+"?"+values.Encode(), &payload); err != nil {
		return weather.ProviderReading{}, err
	}
	if payload.Current == nil || payload.Current.TempC == nil || payload.Current.Humidity == nil {
		return weather.ProviderReading{}, fmt.Errorf("weatherapi: %w: current", errMissingField)
	}

	return weather.ProviderReading{
		ProviderName: p.name,
		TemperatureC: *payload.Current.TempC,
		HumidityPct:  *payload.Current.Humidity,
		PrecipMmHour: payload.Current.PrecipMm,
	}, nil
}
