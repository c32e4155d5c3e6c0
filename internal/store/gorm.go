package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/i474232898/crop-yield-service/internal/farm"
	"github.com/i474232898/crop-yield-service/internal/prediction"
	"github.com/i474232898/crop-yield-service/internal/profile"
	"github.com/i474232898/crop-yield-service/internal/weather"
)

type farmRow struct {
	OwnerID   string `gorm:"primaryKey;size:128"`
	FarmID    string `gorm:"primaryKey;size:64"`
	Name      string `gorm:"size:256"`
	Lat       float64
	Lon       float64
	SoilType  string `gorm:"size:64"`
	AreaHa    float64
	CreatedAt time.Time `gorm:"index;autoCreateTime:false"`
}

func (farmRow) TableName() string { return "farms" }

type predictionRow struct {
	OwnerID      string               `gorm:"primaryKey;size:128"`
	RequestID    string               `gorm:"primaryKey;size:64"`
	FarmID       string               `gorm:"index;size:64"`
	Inputs       prediction.Request   `gorm:"serializer:json"`
	Status       string               `gorm:"index;size:16"`
	Outputs      *prediction.Response `gorm:"serializer:json"`
	ErrorMessage string
	CreatedAt    time.Time `gorm:"index;autoCreateTime:false"`
	CompletedAt  *time.Time
}

func (predictionRow) TableName() string { return "predictions" }

type profileRow struct {
	OwnerID   string `gorm:"primaryKey;size:128"`
	Name      string
	Email     string
	Phone     *string
	Role      string    `gorm:"size:32"`
	UpdatedAt time.Time `gorm:"autoUpdateTime:false"`
}

func (profileRow) TableName() string { return "profiles" }

// GormStore persists everything through gorm. Rows are keyed by (owner_id, id),
// which gives each owner its own namespace.
type GormStore struct {
	db *gorm.DB
}

// OpenGorm opens a sqlite or postgres database and migrates the tables.
func OpenGorm(driver, dsn string) (*GormStore, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		if dsn == "" {
			dsn = "crop-yield.db"
		}
		dialector = sqlite.Open(dsn)
	case "postgres":
		if dsn == "" {
			return nil, errors.New("postgres store requires STORE_DSN")
		}
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported gorm driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", driver, err)
	}
	return NewGormStore(db)
}

// NewGormStore wraps an open database and migrates the tables.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&farmRow{}, &predictionRow{}, &profileRow{}); err != nil {
		return nil, fmt.Errorf("automigrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) CreateFarm(ctx context.Context, ownerID string, f farm.Farm) error {
	row := farmRow{
		OwnerID:   ownerID,
		FarmID:    f.FarmID,
		Name:      f.Name,
		Lat:       f.Location.Lat,
		Lon:       f.Location.Lon,
		SoilType:  f.SoilType,
		AreaHa:    f.AreaHa,
		CreatedAt: f.CreatedAt,
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&farmRow{}).Where("owner_id = ? AND farm_id = ?", ownerID, f.FarmID).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: %s", farm.ErrAlreadyExists, f.FarmID)
		}
		if err := tx.Create(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("%w: %s", farm.ErrAlreadyExists, f.FarmID)
			}
			return err
		}
		return nil
	})
}

func (s *GormStore) GetFarm(ctx context.Context, ownerID, farmID string) (farm.Farm, error) {
	var row farmRow
	err := s.db.WithContext(ctx).Where("owner_id = ? AND farm_id = ?", ownerID, farmID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return farm.Farm{}, farm.ErrNotFound
	}
	if err != nil {
		return farm.Farm{}, err
	}
	return row.toFarm(), nil
}

func (s *GormStore) ListFarms(ctx context.Context, ownerID string) ([]farm.Farm, error) {
	var rows []farmRow
	if err := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at desc, farm_id desc").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]farm.Farm, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toFarm())
	}
	return out, nil
}

func (r farmRow) toFarm() farm.Farm {
	return farm.Farm{
		FarmID:    r.FarmID,
		Name:      r.Name,
		Location:  weather.Location{Lat: r.Lat, Lon: r.Lon},
		SoilType:  r.SoilType,
		AreaHa:    r.AreaHa,
		CreatedAt: r.CreatedAt.UTC(),
	}
}

func (s *GormStore) CreatePrediction(ctx context.Context, ownerID string, rec prediction.Record) error {
	row := toPredictionRow(ownerID, rec)
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&predictionRow{}).Where("owner_id = ? AND request_id = ?", ownerID, rec.RequestID).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: %s", prediction.ErrAlreadyExists, rec.RequestID)
		}
		if err := tx.Create(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("%w: %s", prediction.ErrAlreadyExists, rec.RequestID)
			}
			return err
		}
		return nil
	})
}

// FinalizePrediction is a compare-and-set on status = pending.
func (s *GormStore) FinalizePrediction(ctx context.Context, ownerID string, rec prediction.Record) error {
	if !rec.Status.Terminal() {
		return fmt.Errorf("%w: finalize with status %s", prediction.ErrInvalidTransition, rec.Status)
	}

	row := toPredictionRow(ownerID, rec)
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&row).
			Where("status = ?", string(prediction.StatusPending)).
			Select("Status", "Outputs", "ErrorMessage", "CompletedAt").
			Updates(&row)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 1 {
			return nil
		}

		var current predictionRow
		err := tx.Where("owner_id = ? AND request_id = ?", ownerID, rec.RequestID).First(&current).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return prediction.ErrNotFound
		}
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: %s is already %s", prediction.ErrInvalidTransition, rec.RequestID, current.Status)
	})
}

func (s *GormStore) GetPrediction(ctx context.Context, ownerID, requestID string) (prediction.Record, error) {
	var row predictionRow
	err := s.db.WithContext(ctx).Where("owner_id = ? AND request_id = ?", ownerID, requestID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return prediction.Record{}, prediction.ErrNotFound
	}
	if err != nil {
		return prediction.Record{}, err
	}
	return row.toRecord(), nil
}

func (s *GormStore) ListPredictions(ctx context.Context, ownerID string) ([]prediction.Record, error) {
	var rows []predictionRow
	if err := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at desc, request_id desc").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]prediction.Record, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toRecord())
	}
	return out, nil
}

func (s *GormStore) StalePending(ctx context.Context, cutoff time.Time) (int, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&predictionRow{}).
		Where("status = ? AND created_at < ?", string(prediction.StatusPending), cutoff.UTC()).
		Count(&n).Error
	return int(n), err
}

func toPredictionRow(ownerID string, rec prediction.Record) predictionRow {
	return predictionRow{
		OwnerID:      ownerID,
		RequestID:    rec.RequestID,
		FarmID:       rec.FarmID,
		Inputs:       rec.Inputs,
		Status:       string(rec.Status),
		Outputs:      rec.Outputs,
		ErrorMessage: rec.ErrorMessage,
		CreatedAt:    rec.CreatedAt,
		CompletedAt:  rec.CompletedAt,
	}
}

func (r predictionRow) toRecord() prediction.Record {
	rec := prediction.Record{
		RequestID:    r.RequestID,
		OwnerID:      r.OwnerID,
		FarmID:       r.FarmID,
		Inputs:       r.Inputs,
		Status:       prediction.Status(r.Status),
		Outputs:      r.Outputs,
		ErrorMessage: r.ErrorMessage,
		CreatedAt:    r.CreatedAt.UTC(),
	}
	if r.CompletedAt != nil {
		t := r.CompletedAt.UTC()
		rec.CompletedAt = &t
	}
	return rec
}

// UpdateProfile runs apply inside a transaction that holds the owner's row.
// Postgres locks it with SELECT ... FOR UPDATE; sqlite serializes writers itself.
func (s *GormStore) UpdateProfile(ctx context.Context, ownerID string, apply profile.ApplyFunc) (profile.Profile, error) {
	var out profile.Profile
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row profileRow
		var current *profile.Profile
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("owner_id = ?", ownerID).
			First(&row).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
		case err != nil:
			return err
		default:
			p := row.toProfile()
			current = &p
		}

		next, err := apply(current)
		if err != nil {
			return err
		}
		if err := tx.Save(&profileRow{
			OwnerID:   ownerID,
			Name:      next.Name,
			Email:     next.Email,
			Phone:     next.Phone,
			Role:      next.Role,
			UpdatedAt: next.UpdatedAt,
		}).Error; err != nil {
			return err
		}
		out = next
		return nil
	})
	if err != nil {
		return profile.Profile{}, err
	}
	return out, nil
}

func (s *GormStore) GetProfile(ctx context.Context, ownerID string) (profile.Profile, error) {
	var row profileRow
	err := s.db.WithContext(ctx).Where("owner_id = ?", ownerID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return profile.Profile{}, profile.ErrNotFound
	}
	if err != nil {
		return profile.Profile{}, err
	}
	return row.toProfile(), nil
}

func (r profileRow) toProfile() profile.Profile {
	return profile.Profile{
		Name:      r.Name,
		Email:     r.Email,
		Phone:     r.Phone,
		Role:      r.Role,
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
