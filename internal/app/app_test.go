package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/i474232898/crop-yield-service/internal/config"
)

func testConfig(t *testing.T) *config.AppConfig {
	t.Helper()
	return &config.AppConfig{
		HTTPTimeout:       time.Second,
		JWTSecret:         "secret",
		StoreDriver:       "memory",
		ModelBackend:      "table",
		ModelTablePath:    filepath.Join(t.TempDir(), "missing.csv"),
		ModelVersion:      "test-1",
		PredictRateRPS:    1,
		PredictRateBurst:  1,
		PendingStaleAfter: time.Hour,
	}
}

func TestNewDegradesWithoutModel(t *testing.T) {
	a, err := New(context.Background(), testConfig(t))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer a.Close()

	if a.Predictions.ModelAvailable() {
		t.Fatal("expected model to be unavailable")
	}
	if len(a.Weather.Providers()) != 0 {
		t.Fatalf("expected no weather providers, got %v", a.Weather.Providers())
	}
}

func TestNewFailsWhenModelRequired(t *testing.T) {
	cfg := testConfig(t)
	cfg.ModelRequired = true

	if _, err := New(context.Background(), cfg); err == nil {
		t.Fatal("expected error when the model is required")
	}
}

func TestNewLoadsTableAndProviders(t *testing.T) {
	cfg := testConfig(t)
	cfg.ModelTablePath = filepath.Join(t.TempDir(), "coefficients.csv")
	table := "crop,intercept,area,production,rainfall,fertilizer,pesticide,residual_std\n" +
		"rice,500,1,0,0.5,0,0,20\n"
	if err := os.WriteFile(cfg.ModelTablePath, []byte(table), 0o600); err != nil {
		t.Fatalf("write table: %v", err)
	}
	cfg.OpenWeatherAPIKey = "key"
	cfg.OpenMeteoEnabled = true

	a, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer a.Close()

	if !a.Predictions.ModelAvailable() {
		t.Fatal("expected model to be available")
	}
	if crops := a.Predictions.Crops(); len(crops) != 1 || crops[0] != "rice" {
		t.Fatalf("unexpected crops %v", crops)
	}
	if got := a.Weather.Providers(); len(got) != 2 {
		t.Fatalf("expected two providers, got %v", got)
	}
	if a.MetricsHandler() == nil {
		t.Fatal("expected metrics handler")
	}
}
