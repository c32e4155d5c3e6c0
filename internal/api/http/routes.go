package httpapi

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/i474232898/crop-yield-service/internal/farm"
	"github.com/i474232898/crop-yield-service/internal/prediction"
	"github.com/i474232898/crop-yield-service/internal/profile"
)

// Deps are the services the HTTP layer exposes.
type Deps struct {
	Predictions *prediction.Orchestrator
	Farms       *farm.Service
	Profiles    *profile.Service

	JWTSecret    []byte
	PredictRPS   float64
	PredictBurst int

	// Metrics is served on /metrics when set.
	Metrics http.Handler
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, deps Deps) {
	h := &handlers{
		predictions: deps.Predictions,
		farms:       deps.Farms,
		profiles:    deps.Profiles,
	}

	app.Get("/", h.root)
	if deps.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(deps.Metrics))
	}

	api := app.Group("/api")
	api.Get("/crops", h.crops)

	auth := RequireAuth(deps.JWTSecret)
	limiter := newOwnerLimiter(deps.PredictRPS, deps.PredictBurst)

	api.Post("/predict", auth, limiter.middleware(), h.predict)
	api.Get("/predictions/:id", auth, h.getPrediction)
	api.Get("/get-predictions", auth, h.listPredictions)
	api.Post("/add-farm", auth, h.addFarm)
	api.Get("/get-farms", auth, h.listFarms)
	api.Post("/update-profile", auth, h.updateProfile)
}

type handlers struct {
	predictions *prediction.Orchestrator
	farms       *farm.Service
	profiles    *profile.Service
}

func (h *handlers) root(c *fiber.Ctx) error {
	crops := h.predictions.Crops()
	if crops == nil {
		crops = []string{}
	}
	return c.JSON(fiber.Map{
		"message":         "Crop Yield Prediction API",
		"status":          "running",
		"model_loaded":    h.predictions.ModelAvailable(),
		"available_crops": crops,
	})
}

func (h *handlers) crops(c *fiber.Ctx) error {
	if !h.predictions.ModelAvailable() {
		return fiber.NewError(fiber.StatusServiceUnavailable, prediction.ErrModelUnavailable.Error())
	}
	return c.JSON(fiber.Map{"crops": h.predictions.Crops()})
}

func (h *handlers) predict(c *fiber.Ctx) error {
	var req prediction.Request
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body: "+err.Error())
	}

	resp, err := h.predictions.Submit(c.UserContext(), ownerID(c), req)
	if err != nil {
		return predictError(err)
	}
	return c.JSON(resp)
}

// predictError maps orchestrator failures to HTTP errors.
func predictError(err error) error {
	var verr *prediction.ValidationError
	var perr *prediction.PredictionError
	switch {
	case errors.Is(err, prediction.ErrModelUnavailable):
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	case errors.As(err, &verr):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.As(err, &perr):
		return fiber.NewError(fiber.StatusInternalServerError, "Prediction failed: "+perr.Err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, "Prediction failed: "+err.Error())
	}
}

func (h *handlers) getPrediction(c *fiber.Ctx) error {
	rec, err := h.predictions.Get(c.UserContext(), ownerID(c), c.Params("id"))
	if err != nil {
		if errors.Is(err, prediction.ErrNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "prediction not found")
		}
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to get prediction: "+err.Error())
	}
	return c.JSON(rec)
}

func (h *handlers) listPredictions(c *fiber.Ctx) error {
	records, err := h.predictions.History(c.UserContext(), ownerID(c))
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to get predictions: "+err.Error())
	}
	return c.JSON(fiber.Map{"predictions": records})
}

func (h *handlers) addFarm(c *fiber.Ctx) error {
	var nf farm.NewFarm
	if err := c.BodyParser(&nf); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body: "+err.Error())
	}

	f, err := h.farms.Create(c.UserContext(), ownerID(c), nf)
	if err != nil {
		var verr *farm.ValidationError
		if errors.As(err, &verr) {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to add farm: "+err.Error())
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"farm_id": f.FarmID,
		"farm":    f,
		"message": "Farm added successfully",
	})
}

func (h *handlers) listFarms(c *fiber.Ctx) error {
	farms, err := h.farms.List(c.UserContext(), ownerID(c))
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to get farms: "+err.Error())
	}
	return c.JSON(fiber.Map{"farms": farms})
}

func (h *handlers) updateProfile(c *fiber.Ctx) error {
	var p profile.Profile
	if err := c.BodyParser(&p); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body: "+err.Error())
	}

	saved, err := h.profiles.Update(c.UserContext(), ownerID(c), p)
	if err != nil {
		var verr *profile.ValidationError
		if errors.As(err, &verr) {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to update profile: "+err.Error())
	}
	return c.JSON(fiber.Map{
		"message": "Profile updated successfully",
		"profile": saved,
	})
}

// ErrorHandler renders every error as {"error": true, "message": ...}.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": err.Error(),
	})
}
