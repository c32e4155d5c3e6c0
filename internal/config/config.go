package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type AppConfig struct {
	Port        string
	HTTPTimeout time.Duration

	// JWTSecret verifies HS256 bearer tokens.
	JWTSecret   string
	CORSOrigins string

	StoreDriver string // memory, sqlite or postgres
	StoreDSN    string

	ModelBackend   string // table or grpc
	ModelTablePath string
	ModelVersion   string
	ModelGRPCAddr  string
	// ModelRequired makes startup fail when the model cannot be loaded.
	ModelRequired bool

	OpenWeatherAPIKey string
	WeatherAPIKey     string
	OpenMeteoEnabled  bool
	GeocoderAPIKey    string

	PredictRateRPS   float64
	PredictRateBurst int

	PendingAuditInterval time.Duration
	PendingStaleAfter    time.Duration
}

// source resolves a key from the environment first and the optional config file second.
type source struct {
	file map[string]string
}

// Load reads configuration from the environment, layered over an optional YAML
// file named by CONFIG_PATH, with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}

	src := source{file: map[string]string{}}
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		file, err := readFile(path)
		if err != nil {
			return nil, err
		}
		src.file = file
	}
	return load(src)
}

func readFile(path string) (map[string]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var values map[string]string
	if err := yaml.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	out := make(map[string]string, len(values))
	for k, v := range values {
		out[strings.ToUpper(k)] = v
	}
	return out, nil
}

func load(src source) (*AppConfig, error) {
	cfg := &AppConfig{}
	var err error

	cfg.Port = src.getDefault("PORT", "8000")
	if cfg.HTTPTimeout, err = src.getDuration("HTTP_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}

	cfg.JWTSecret = src.get("AUTH_JWT_SECRET")
	if cfg.JWTSecret == "" {
		return nil, errors.New("AUTH_JWT_SECRET is required")
	}
	cfg.CORSOrigins = src.getDefault("CORS_ORIGINS", "http://localhost:3000")

	cfg.StoreDriver = strings.ToLower(src.getDefault("STORE_DRIVER", "memory"))
	switch cfg.StoreDriver {
	case "memory", "sqlite", "postgres":
	default:
		return nil, fmt.Errorf("invalid STORE_DRIVER %q", cfg.StoreDriver)
	}
	cfg.StoreDSN = src.get("STORE_DSN")

	cfg.ModelBackend = strings.ToLower(src.getDefault("MODEL_BACKEND", "table"))
	switch cfg.ModelBackend {
	case "table", "grpc":
	default:
		return nil, fmt.Errorf("invalid MODEL_BACKEND %q", cfg.ModelBackend)
	}
	cfg.ModelTablePath = src.getDefault("MODEL_TABLE_PATH", "models/yield_coefficients.csv")
	cfg.ModelVersion = src.getDefault("MODEL_VERSION", "1.0.0")
	cfg.ModelGRPCAddr = src.get("MODEL_GRPC_ADDR")
	if cfg.ModelRequired, err = src.getBool("MODEL_REQUIRED", false); err != nil {
		return nil, err
	}

	cfg.OpenWeatherAPIKey = src.get("OPENWEATHER_API_KEY")
	cfg.WeatherAPIKey = src.get("WEATHERAPI_API_KEY")
	if cfg.OpenMeteoEnabled, err = src.getBool("OPENMETEO_ENABLED", false); err != nil {
		return nil, err
	}
	cfg.GeocoderAPIKey = src.get("GEOCODER_API_KEY")

	if cfg.PredictRateRPS, err = src.getFloat("PREDICT_RATE_RPS", 2); err != nil {
		return nil, err
	}
	if cfg.PredictRateBurst, err = src.getInt("PREDICT_RATE_BURST", 10); err != nil {
		return nil, err
	}

	if cfg.PendingAuditInterval, err = src.getDuration("PENDING_AUDIT_INTERVAL", 15*time.Minute); err != nil {
		return nil, err
	}
	if cfg.PendingStaleAfter, err = src.getDuration("PENDING_STALE_AFTER", time.Hour); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (s source) get(key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return s.file[key]
}

func (s source) getDefault(key, def string) string {
	if v := s.get(key); v != "" {
		return v
	}
	return def
}

func (s source) getInt(key string, def int) (int, error) {
	v := s.get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func (s source) getFloat(key string, def float64) (float64, error) {
	v := s.get(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func (s source) getBool(key string, def bool) (bool, error) {
	v := s.get(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func (s source) getDuration(key string, def time.Duration) (time.Duration, error) {
	v := s.get(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
