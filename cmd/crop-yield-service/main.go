package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	httpapi "github.com/i474232898/crop-yield-service/internal/api/http"
	"github.com/i474232898/crop-yield-service/internal/app"
	"github.com/i474232898/crop-yield-service/internal/config"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("ERROR: %v", err)
	}
}

// run returns instead of exiting so deferred teardown always happens.
func run() error {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize service: %w", err)
	}
	defer svc.Close()

	// Background audit of orphaned pending predictions.
	if err := svc.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	// Basic app configuration
	fiberApp := fiber.New(fiber.Config{
		AppName:               "crop-yield-service",
		DisableStartupMessage: true,
		ReadTimeout:           cfg.HTTPTimeout,
		WriteTimeout:          cfg.HTTPTimeout * 3,
		ErrorHandler:          httpapi.ErrorHandler,
	})

	// Global middleware
	fiberApp.Use(logger.New())
	fiberApp.Use(recover.New())
	fiberApp.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowCredentials: true,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
	}))

	// Basic health endpoint
	fiberApp.Get("/health", func(c *fiber.Ctx) error {
		if err := svc.Store.Ping(c.UserContext()); err != nil {
			return fiber.NewError(fiber.StatusServiceUnavailable, "store unavailable")
		}
		return c.JSON(fiber.Map{
			"status":       "ok",
			"service":      "crop-yield-service",
			"model_loaded": svc.Predictions.ModelAvailable(),
		})
	})

	// API routes.
	httpapi.RegisterRoutes(fiberApp, httpapi.Deps{
		Predictions:  svc.Predictions,
		Farms:        svc.Farms,
		Profiles:     svc.Profiles,
		JWTSecret:    []byte(cfg.JWTSecret),
		PredictRPS:   cfg.PredictRateRPS,
		PredictBurst: cfg.PredictRateBurst,
		Metrics:      svc.MetricsHandler(),
	})

	go func() {
		if err := fiberApp.Listen(":" + cfg.Port); err != nil {
			log.Printf("fiber server stopped: %v", err)
		}
	}()
	log.Printf("INFO: listening on :%s", cfg.Port)

	// Wait for termination signal
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := fiberApp.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("error during shutdown: %v", err)
	}
	return nil
}
