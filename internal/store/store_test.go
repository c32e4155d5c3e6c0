package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/i474232898/crop-yield-service/internal/farm"
	"github.com/i474232898/crop-yield-service/internal/model"
	"github.com/i474232898/crop-yield-service/internal/prediction"
	"github.com/i474232898/crop-yield-service/internal/profile"
	"github.com/i474232898/crop-yield-service/internal/weather"
)

func ptr(v float64) *float64 { return &v }

func backends(t *testing.T) map[string]Store {
	t.Helper()

	db, err := OpenGorm("sqlite", filepath.Join(t.TempDir(), "store.db"))
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": db,
	}
}

func pendingRecord(id, owner string, createdAt time.Time) prediction.Record {
	req := prediction.Request{
		FarmID:     "farm-1",
		Crop:       "wheat",
		Area:       10,
		Production: 100,
		Fertilizer: ptr(50),
		Pesticide:  ptr(2),
		Humidity:   ptr(55),
	}
	return prediction.NewPendingRecord(id, owner, req, createdAt)
}

func sampleResponse(id string) prediction.Response {
	return prediction.Response{
		RequestID:          id,
		FarmID:             "farm-1",
		PredictedYield:     2670.12,
		ConfidenceInterval: model.Interval{Lower: 2474.5, Upper: 2866},
		ModelVersion:       "v1",
		FeatureImportance:  map[string]float64{"area": 0.25, "production": 0.75},
		WeatherData:        prediction.WeatherData{Rainfall: 100, Humidity: ptr(55)},
	}
}

func TestFarmsAreScopedPerOwner(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			older := farm.Farm{FarmID: "f1", Name: "North", Location: weather.Location{Lat: 10, Lon: 20}, SoilType: "loam", AreaHa: 3, CreatedAt: base}
			newer := farm.Farm{FarmID: "f2", Name: "South", Location: weather.Location{Lat: -5, Lon: 30}, SoilType: "clay", AreaHa: 7, CreatedAt: base.Add(time.Hour)}

			if err := s.CreateFarm(ctx, "alice", older); err != nil {
				t.Fatalf("create farm: %v", err)
			}
			if err := s.CreateFarm(ctx, "alice", newer); err != nil {
				t.Fatalf("create farm: %v", err)
			}
			if err := s.CreateFarm(ctx, "alice", older); !errors.Is(err, farm.ErrAlreadyExists) {
				t.Fatalf("expected ErrAlreadyExists, got %v", err)
			}

			got, err := s.GetFarm(ctx, "alice", "f1")
			if err != nil {
				t.Fatalf("get farm: %v", err)
			}
			if got.Location != older.Location || got.Name != "North" || !got.CreatedAt.Equal(base) {
				t.Fatalf("unexpected farm %+v", got)
			}

			if _, err := s.GetFarm(ctx, "bob", "f1"); !errors.Is(err, farm.ErrNotFound) {
				t.Fatalf("expected ErrNotFound for another owner, got %v", err)
			}

			list, err := s.ListFarms(ctx, "alice")
			if err != nil {
				t.Fatalf("list farms: %v", err)
			}
			if len(list) != 2 || list[0].FarmID != "f2" || list[1].FarmID != "f1" {
				t.Fatalf("expected newest first, got %+v", list)
			}

			empty, err := s.ListFarms(ctx, "bob")
			if err != nil {
				t.Fatalf("list farms: %v", err)
			}
			if len(empty) != 0 {
				t.Fatalf("expected no farms for bob, got %d", len(empty))
			}
		})
	}
}

func TestPredictionLifecycle(t *testing.T) {
	ctx := context.Background()
	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			rec := pendingRecord("req-1", "alice", created)
			if err := s.CreatePrediction(ctx, "alice", rec); err != nil {
				t.Fatalf("create prediction: %v", err)
			}
			if err := s.CreatePrediction(ctx, "alice", rec); !errors.Is(err, prediction.ErrAlreadyExists) {
				t.Fatalf("expected ErrAlreadyExists, got %v", err)
			}

			got, err := s.GetPrediction(ctx, "alice", "req-1")
			if err != nil {
				t.Fatalf("get prediction: %v", err)
			}
			if got.Status != prediction.StatusPending || got.Outputs != nil || got.CompletedAt != nil {
				t.Fatalf("unexpected pending record %+v", got)
			}
			if got.Inputs.Fertilizer == nil || *got.Inputs.Fertilizer != 50 || got.Inputs.Rainfall != nil {
				t.Fatalf("inputs not preserved: %+v", got.Inputs)
			}

			// Finalizing with a non-terminal status is refused.
			if err := s.FinalizePrediction(ctx, "alice", rec); !errors.Is(err, prediction.ErrInvalidTransition) {
				t.Fatalf("expected ErrInvalidTransition, got %v", err)
			}

			done := rec
			if err := done.Complete(sampleResponse("req-1"), created.Add(time.Second)); err != nil {
				t.Fatalf("complete: %v", err)
			}
			if err := s.FinalizePrediction(ctx, "alice", done); err != nil {
				t.Fatalf("finalize: %v", err)
			}

			got, err = s.GetPrediction(ctx, "alice", "req-1")
			if err != nil {
				t.Fatalf("get prediction: %v", err)
			}
			if err := got.CheckInvariants(); err != nil {
				t.Fatalf("invariants: %v", err)
			}
			if got.Status != prediction.StatusComplete || got.Outputs.PredictedYield != 2670.12 {
				t.Fatalf("unexpected complete record %+v", got)
			}
			if got.Outputs.FeatureImportance["production"] != 0.75 {
				t.Fatalf("feature importance not preserved: %+v", got.Outputs.FeatureImportance)
			}

			// A terminal record never changes again.
			failed := rec
			if err := failed.Fail("late failure", created.Add(2*time.Second)); err != nil {
				t.Fatalf("fail: %v", err)
			}
			if err := s.FinalizePrediction(ctx, "alice", failed); !errors.Is(err, prediction.ErrInvalidTransition) {
				t.Fatalf("expected ErrInvalidTransition, got %v", err)
			}
			got, _ = s.GetPrediction(ctx, "alice", "req-1")
			if got.Status != prediction.StatusComplete {
				t.Fatalf("terminal record was overwritten: %+v", got)
			}

			if err := s.FinalizePrediction(ctx, "alice", failedRecord("missing", created)); !errors.Is(err, prediction.ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
			if _, err := s.GetPrediction(ctx, "bob", "req-1"); !errors.Is(err, prediction.ErrNotFound) {
				t.Fatalf("expected ErrNotFound for another owner, got %v", err)
			}
		})
	}
}

func failedRecord(id string, at time.Time) prediction.Record {
	rec := pendingRecord(id, "alice", at)
	_ = rec.Fail("boom", at)
	return rec
}

func TestListPredictionsNewestFirstAndStaleCount(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			for i, id := range []string{"a", "b", "c"} {
				if err := s.CreatePrediction(ctx, "alice", pendingRecord(id, "alice", base.Add(time.Duration(i)*time.Minute))); err != nil {
					t.Fatalf("create %s: %v", id, err)
				}
			}
			if err := s.CreatePrediction(ctx, "bob", pendingRecord("d", "bob", base)); err != nil {
				t.Fatalf("create d: %v", err)
			}

			failed := pendingRecord("a", "alice", base)
			if err := failed.Fail("model exploded", base.Add(time.Hour)); err != nil {
				t.Fatalf("fail: %v", err)
			}
			if err := s.FinalizePrediction(ctx, "alice", failed); err != nil {
				t.Fatalf("finalize: %v", err)
			}

			list, err := s.ListPredictions(ctx, "alice")
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(list) != 3 {
				t.Fatalf("expected 3 records, got %d", len(list))
			}
			if list[0].RequestID != "c" || list[1].RequestID != "b" || list[2].RequestID != "a" {
				t.Fatalf("unexpected order: %s %s %s", list[0].RequestID, list[1].RequestID, list[2].RequestID)
			}
			if list[2].Status != prediction.StatusError || list[2].ErrorMessage != "model exploded" {
				t.Fatalf("unexpected error record %+v", list[2])
			}

			// Pending: b (+1m), c (+2m) for alice and d (+0) for bob.
			n, err := s.StalePending(ctx, base.Add(90*time.Second))
			if err != nil {
				t.Fatalf("stale pending: %v", err)
			}
			if n != 2 {
				t.Fatalf("expected 2 stale pending records, got %d", n)
			}
		})
	}
}

func TestProfileUpdate(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := s.GetProfile(ctx, "alice"); !errors.Is(err, profile.ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}

			phone := "+15550100"
			_, err := s.UpdateProfile(ctx, "alice", func(current *profile.Profile) (profile.Profile, error) {
				if current != nil {
					t.Fatalf("expected no current profile, got %+v", current)
				}
				return profile.Profile{Name: "Alice", Email: "alice@example.com", Phone: &phone, Role: "farmer", UpdatedAt: at}, nil
			})
			if err != nil {
				t.Fatalf("update: %v", err)
			}

			_, err = s.UpdateProfile(ctx, "alice", func(current *profile.Profile) (profile.Profile, error) {
				if current == nil || current.Phone == nil || *current.Phone != phone {
					t.Fatalf("expected stored profile with phone, got %+v", current)
				}
				next := *current
				next.Role = "agronomist"
				next.Phone = nil
				return next, nil
			})
			if err != nil {
				t.Fatalf("update: %v", err)
			}

			got, err := s.GetProfile(ctx, "alice")
			if err != nil {
				t.Fatalf("get profile: %v", err)
			}
			if got.Role != "agronomist" || got.Phone != nil || got.Email != "alice@example.com" {
				t.Fatalf("unexpected profile %+v", got)
			}

			// A rejected update leaves the stored profile alone.
			boom := errors.New("rejected")
			if _, err := s.UpdateProfile(ctx, "alice", func(*profile.Profile) (profile.Profile, error) {
				return profile.Profile{}, boom
			}); !errors.Is(err, boom) {
				t.Fatalf("expected apply error, got %v", err)
			}
			got, _ = s.GetProfile(ctx, "alice")
			if got.Role != "agronomist" {
				t.Fatalf("profile changed by a rejected update: %+v", got)
			}
		})
	}
}

func TestMemoryStoreCopiesRecordPointers(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	rec := pendingRecord("req-1", "alice", at)
	if err := rec.Complete(sampleResponse("req-1"), at); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := s.CreatePrediction(ctx, "alice", rec); err != nil {
		t.Fatalf("create: %v", err)
	}

	// Mutating the caller's copy after the write must not reach the store.
	*rec.Inputs.Fertilizer = 999
	*rec.Outputs.WeatherData.Humidity = 1

	got, err := s.GetPrediction(ctx, "alice", "req-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if *got.Inputs.Fertilizer != 50 || *got.Outputs.WeatherData.Humidity != 55 {
		t.Fatalf("stored record shares pointers with the caller: %+v", got)
	}

	// Neither may mutating a read result.
	*got.Inputs.Pesticide = 999
	*got.Outputs.WeatherData.Humidity = 1
	again, _ := s.GetPrediction(ctx, "alice", "req-1")
	if *again.Inputs.Pesticide != 2 || *again.Outputs.WeatherData.Humidity != 55 {
		t.Fatalf("stored record shares pointers with a reader: %+v", again)
	}
}

func TestOpenSelectsBackend(t *testing.T) {
	s, err := Open("memory", "")
	if err != nil {
		t.Fatalf("open memory: %v", err)
	}
	if _, ok := s.(*MemoryStore); !ok {
		t.Fatalf("expected *MemoryStore, got %T", s)
	}
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}

	if _, err := Open("mongo", ""); err == nil {
		t.Fatal("expected error for unknown driver")
	}
	if _, err := Open("postgres", ""); err == nil {
		t.Fatal("expected error for postgres without dsn")
	}
}
