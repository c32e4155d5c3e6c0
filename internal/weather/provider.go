package weather

import (
	"context"
)

// ProviderReading is a single provider's normalized current conditions.
// PrecipMmHour is precipitation over the last hour; the resolver scales it to a daily rate.
type ProviderReading struct {
	ProviderName string

	TemperatureC float64
	HumidityPct  float64
	PrecipMmHour float64
}

// Provider abstracts a weather data source (e.g. OpenWeatherMap, WeatherAPI, Open-Meteo).
type Provider interface {
	Name() string
	Fetch(ctx context.Context, loc Location) (ProviderReading, error)
}
