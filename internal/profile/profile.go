package profile

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
)

// DefaultRole is assigned when a profile update does not name one.
const DefaultRole = "farmer"

// ErrNotFound is returned by stores when the owner has no profile yet.
var ErrNotFound = errors.New("profile not found")

var validate = validator.New()

// Profile is the user document kept alongside an owner's farms and predictions.
type Profile struct {
	Name      string    `json:"name" validate:"required"`
	Email     string    `json:"email" validate:"required,email"`
	Phone     *string   `json:"phone"`
	Role      string    `json:"role" validate:"omitempty,oneof=farmer agronomist"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ApplyFunc computes the profile to store from the current one, which is nil
// when the owner has none yet.
type ApplyFunc func(current *Profile) (Profile, error)

// Store keeps one profile per owner.
type Store interface {
	// UpdateProfile reads, applies and writes the owner's profile atomically.
	UpdateProfile(ctx context.Context, ownerID string, apply ApplyFunc) (Profile, error)
	GetProfile(ctx context.Context, ownerID string) (Profile, error)
}

// Clone copies the profile, including its optional fields.
func (p Profile) Clone() Profile {
	c := p
	if p.Phone != nil {
		phone := *p.Phone
		c.Phone = &phone
	}
	return c
}

// ValidationError wraps a rejected profile update.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string { return "invalid profile: " + e.Err.Error() }
func (e *ValidationError) Unwrap() error { return e.Err }

type Service struct {
	store Store
	now   func() time.Time
}

func NewService(store Store) *Service {
	return &Service{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Update validates and stores the profile, returning what was written.
// Optional fields left empty keep their stored values.
func (s *Service) Update(ctx context.Context, ownerID string, p Profile) (Profile, error) {
	return s.store.UpdateProfile(ctx, ownerID, func(current *Profile) (Profile, error) {
		next := p.Clone()
		if current != nil {
			if next.Phone == nil {
				next.Phone = current.Phone
			}
			if next.Role == "" {
				next.Role = current.Role
			}
		}
		if next.Role == "" {
			next.Role = DefaultRole
		}
		if err := validate.Struct(next); err != nil {
			return Profile{}, &ValidationError{Err: err}
		}
		next.UpdatedAt = s.now()
		return next, nil
	})
}

func (s *Service) Get(ctx context.Context, ownerID string) (Profile, error) {
	return s.store.GetProfile(ctx, ownerID)
}
