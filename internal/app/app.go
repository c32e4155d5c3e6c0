// Package app builds the service's collaborators from configuration.
package app

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/i474232898/crop-yield-service/internal/config"
	"github.com/i474232898/crop-yield-service/internal/farm"
	"github.com/i474232898/crop-yield-service/internal/metrics"
	"github.com/i474232898/crop-yield-service/internal/model"
	"github.com/i474232898/crop-yield-service/internal/prediction"
	"github.com/i474232898/crop-yield-service/internal/profile"
	"github.com/i474232898/crop-yield-service/internal/scheduler"
	"github.com/i474232898/crop-yield-service/internal/store"
	"github.com/i474232898/crop-yield-service/internal/weather"
	"github.com/i474232898/crop-yield-service/internal/weather/providers"
)

// App holds every long-lived collaborator of the service.
type App struct {
	Config *config.AppConfig

	Store       store.Store
	Model       model.Predictor
	Weather     *weather.Resolver
	Farms       *farm.Service
	Profiles    *profile.Service
	Predictions *prediction.Orchestrator
	Metrics     *metrics.Metrics
	Scheduler   *scheduler.Scheduler

	registry *prometheus.Registry
}

// New builds the service. The model is loaded once here; when it cannot be
// loaded the service runs without it unless cfg.ModelRequired is set.
func New(ctx context.Context, cfg *config.AppConfig) (*App, error) {
	a := &App{Config: cfg, registry: prometheus.NewRegistry()}

	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(a.registry)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	a.Metrics = m

	st, err := store.Open(cfg.StoreDriver, cfg.StoreDSN)
	if err != nil {
		return nil, err
	}
	a.Store = st
	log.Printf("INFO: using %s store", cfg.StoreDriver)

	predictor, err := loadModel(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Model = predictor

	// Shared HTTP client for outbound provider calls.
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	a.Weather = weather.NewResolver(weatherProviders(cfg, httpClient), a.Metrics)
	log.Printf("INFO: weather providers: %v", a.Weather.Providers())

	var geo farm.Geocoder
	if cfg.GeocoderAPIKey != "" {
		g, err := farm.NewGoogleGeocoder(cfg.GeocoderAPIKey)
		if err != nil {
			a.Close()
			return nil, err
		}
		geo = g
	}
	a.Farms = farm.NewService(a.Store, geo)
	a.Profiles = profile.NewService(a.Store)

	a.Predictions, err = prediction.NewOrchestrator(prediction.Dependencies{
		Store:    a.Store,
		Farms:    a.Farms,
		Weather:  a.Weather,
		Model:    a.Model,
		Recorder: a.Metrics,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Scheduler = scheduler.New(a.Store, a.Metrics, cfg.PendingAuditInterval, cfg.PendingStaleAfter)
	return a, nil
}

func loadModel(ctx context.Context, cfg *config.AppConfig) (model.Predictor, error) {
	var (
		predictor model.Predictor
		err       error
	)
	switch cfg.ModelBackend {
	case "grpc":
		var remote *model.RemoteModel
		remote, err = model.DialRemote(ctx, cfg.ModelGRPCAddr, cfg.HTTPTimeout)
		if err == nil {
			predictor = remote
		}
	default:
		var table *model.TableModel
		table, err = model.LoadTable(cfg.ModelTablePath, cfg.ModelVersion)
		if err == nil {
			predictor = table
		}
	}

	if err == nil && !predictor.Available() {
		_ = predictor.Close()
		err = model.ErrUnavailable
	}
	if err != nil {
		if cfg.ModelRequired {
			return nil, fmt.Errorf("failed to load model: %w", err)
		}
		log.Printf("WARN: model could not be loaded, predictions are disabled: %v", err)
		return model.Unavailable{}, nil
	}

	log.Printf("INFO: model %s loaded with %d crops", predictor.Version(), len(predictor.Crops()))
	return predictor, nil
}

func weatherProviders(cfg *config.AppConfig, client *http.Client) []weather.Provider {
	var provs []weather.Provider
	if cfg.OpenWeatherAPIKey != "" {
		provs = append(provs, providers.NewOpenWeatherProvider(client, cfg.OpenWeatherAPIKey))
	}
	if cfg.WeatherAPIKey != "" {
		provs = append(provs, providers.NewWeatherAPIProvider(client, cfg.WeatherAPIKey))
	}
	// Open-Meteo needs no API key.
	if cfg.OpenMeteoEnabled {
		provs = append(provs, providers.NewOpenMeteoProvider(client))
	}
	return provs
}

// MetricsHandler serves the application's registry in the Prometheus text format.
func (a *App) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})
}

// Start launches background jobs.
func (a *App) Start() error {
	return a.Scheduler.Start()
}

// Close releases resources in reverse order of construction.
func (a *App) Close() {
	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}
	if a.Model != nil {
		if err := a.Model.Close(); err != nil {
			log.Printf("ERROR: closing model: %v", err)
		}
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			log.Printf("ERROR: closing store: %v", err)
		}
	}
}
