package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/i474232898/crop-yield-service/internal/farm"
	"github.com/i474232898/crop-yield-service/internal/prediction"
	"github.com/i474232898/crop-yield-service/internal/profile"
)

// namespace holds everything stored for one owner.
type namespace struct {
	farms       map[string]farm.Farm
	predictions map[string]prediction.Record
	profile     *profile.Profile
}

// MemoryStore is a concurrency-safe in-memory implementation of every store
// contract. Values are copied on the way in and out.
type MemoryStore struct {
	mu sync.RWMutex

	// key: owner id
	data map[string]*namespace
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]*namespace),
	}
}

// ns returns the owner's namespace, creating it. Callers must hold the write lock.
func (s *MemoryStore) ns(ownerID string) *namespace {
	n, ok := s.data[ownerID]
	if !ok {
		n = &namespace{
			farms:       make(map[string]farm.Farm),
			predictions: make(map[string]prediction.Record),
		}
		s.data[ownerID] = n
	}
	return n
}

func (s *MemoryStore) CreateFarm(ctx context.Context, ownerID string, f farm.Farm) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.ns(ownerID)
	if _, exists := n.farms[f.FarmID]; exists {
		return fmt.Errorf("%w: %s", farm.ErrAlreadyExists, f.FarmID)
	}
	n.farms[f.FarmID] = f
	return nil
}

func (s *MemoryStore) GetFarm(ctx context.Context, ownerID, farmID string) (farm.Farm, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.data[ownerID]
	if !ok {
		return farm.Farm{}, farm.ErrNotFound
	}
	f, ok := n.farms[farmID]
	if !ok {
		return farm.Farm{}, farm.ErrNotFound
	}
	return f, nil
}

func (s *MemoryStore) ListFarms(ctx context.Context, ownerID string) ([]farm.Farm, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.data[ownerID]
	if !ok {
		return []farm.Farm{}, nil
	}
	out := make([]farm.Farm, 0, len(n.farms))
	for _, f := range n.farms {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].FarmID > out[j].FarmID
	})
	return out, nil
}

func (s *MemoryStore) CreatePrediction(ctx context.Context, ownerID string, rec prediction.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.ns(ownerID)
	if _, exists := n.predictions[rec.RequestID]; exists {
		return fmt.Errorf("%w: %s", prediction.ErrAlreadyExists, rec.RequestID)
	}
	n.predictions[rec.RequestID] = copyRecord(rec)
	return nil
}

// FinalizePrediction only replaces records that are still pending.
func (s *MemoryStore) FinalizePrediction(ctx context.Context, ownerID string, rec prediction.Record) error {
	if !rec.Status.Terminal() {
		return fmt.Errorf("%w: finalize with status %s", prediction.ErrInvalidTransition, rec.Status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.data[ownerID]
	if !ok {
		return prediction.ErrNotFound
	}
	current, ok := n.predictions[rec.RequestID]
	if !ok {
		return prediction.ErrNotFound
	}
	if current.Status != prediction.StatusPending {
		return fmt.Errorf("%w: %s is already %s", prediction.ErrInvalidTransition, rec.RequestID, current.Status)
	}
	n.predictions[rec.RequestID] = copyRecord(rec)
	return nil
}

func (s *MemoryStore) GetPrediction(ctx context.Context, ownerID, requestID string) (prediction.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.data[ownerID]
	if !ok {
		return prediction.Record{}, prediction.ErrNotFound
	}
	rec, ok := n.predictions[requestID]
	if !ok {
		return prediction.Record{}, prediction.ErrNotFound
	}
	return copyRecord(rec), nil
}

func (s *MemoryStore) ListPredictions(ctx context.Context, ownerID string) ([]prediction.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.data[ownerID]
	if !ok {
		return []prediction.Record{}, nil
	}
	out := make([]prediction.Record, 0, len(n.predictions))
	for _, rec := range n.predictions {
		out = append(out, copyRecord(rec))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].RequestID > out[j].RequestID
	})
	return out, nil
}

// StalePending counts pending records created before cutoff, across all owners.
func (s *MemoryStore) StalePending(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, n := range s.data {
		for _, rec := range n.predictions {
			if rec.Status == prediction.StatusPending && rec.CreatedAt.Before(cutoff) {
				count++
			}
		}
	}
	return count, nil
}

// UpdateProfile runs apply and stores its result under the write lock.
func (s *MemoryStore) UpdateProfile(ctx context.Context, ownerID string, apply profile.ApplyFunc) (profile.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.ns(ownerID)
	var current *profile.Profile
	if n.profile != nil {
		cp := n.profile.Clone()
		current = &cp
	}
	next, err := apply(current)
	if err != nil {
		return profile.Profile{}, err
	}
	stored := next.Clone()
	n.profile = &stored
	return next, nil
}

func (s *MemoryStore) GetProfile(ctx context.Context, ownerID string) (profile.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.data[ownerID]
	if !ok || n.profile == nil {
		return profile.Profile{}, profile.ErrNotFound
	}
	return n.profile.Clone(), nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

// copyRecord deep-copies everything a record reaches through pointers or maps.
func copyRecord(rec prediction.Record) prediction.Record {
	cp := rec
	cp.Inputs = rec.Inputs.Clone()
	if rec.Outputs != nil {
		out := rec.Outputs.Clone()
		cp.Outputs = &out
	}
	if rec.CompletedAt != nil {
		t := *rec.CompletedAt
		cp.CompletedAt = &t
	}
	return cp
}
