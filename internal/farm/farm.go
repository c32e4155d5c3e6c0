package farm

import (
	"context"
	"errors"
	"time"

	"github.com/i474232898/crop-yield-service/internal/weather"
)

var (
	// ErrNotFound is returned by stores when a farm does not exist for the owner.
	ErrNotFound = errors.New("farm not found")
	// ErrAlreadyExists is returned when a farm id is reused within an owner's namespace.
	ErrAlreadyExists = errors.New("farm already exists")
)

// Farm is a user's registered field. It is read-only from the prediction path.
type Farm struct {
	FarmID    string           `json:"farm_id"`
	Name      string           `json:"name"`
	Location  weather.Location `json:"location"`
	SoilType  string           `json:"soil_type"`
	AreaHa    float64          `json:"area_ha"`
	CreatedAt time.Time        `json:"created_at"`
}

// Store persists farms in per-owner namespaces.
type Store interface {
	CreateFarm(ctx context.Context, ownerID string, f Farm) error
	GetFarm(ctx context.Context, ownerID, farmID string) (Farm, error)
	// ListFarms returns the owner's farms, newest first.
	ListFarms(ctx context.Context, ownerID string) ([]Farm, error)
}

// Lookup finds a farm for an owner. A miss is reported as found=false with a nil error.
type Lookup interface {
	Find(ctx context.Context, ownerID, farmID string) (Farm, bool, error)
}
