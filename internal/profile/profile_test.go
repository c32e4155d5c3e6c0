package profile_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/i474232898/crop-yield-service/internal/profile"
	"github.com/i474232898/crop-yield-service/internal/store"
)

func TestUpdateDefaultsRole(t *testing.T) {
	ctx := context.Background()
	svc := profile.NewService(store.NewMemoryStore())

	p, err := svc.Update(ctx, "alice", profile.Profile{Name: "Alice", Email: "alice@example.com"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if p.Role != profile.DefaultRole {
		t.Fatalf("expected role %q, got %q", profile.DefaultRole, p.Role)
	}
	if p.UpdatedAt.IsZero() {
		t.Fatal("expected updated_at to be set")
	}

	got, err := svc.Get(ctx, "alice")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Email != "alice@example.com" {
		t.Fatalf("unexpected profile %+v", got)
	}
}

func TestUpdateValidation(t *testing.T) {
	ctx := context.Background()
	svc := profile.NewService(store.NewMemoryStore())

	bad := []profile.Profile{
		{Email: "alice@example.com"},
		{Name: "Alice", Email: "not-an-email"},
		{Name: "Alice", Email: "alice@example.com", Role: "overlord"},
		{Name: "Alice", Email: "alice@example.com", Role: "admin"},
	}
	for _, p := range bad {
		_, err := svc.Update(ctx, "alice", p)
		var verr *profile.ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("expected ValidationError for %+v, got %v", p, err)
		}
	}

	if _, err := svc.Get(ctx, "alice"); !errors.Is(err, profile.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after rejected updates, got %v", err)
	}
}

func TestUpdateKeepsOptionalFields(t *testing.T) {
	ctx := context.Background()
	svc := profile.NewService(store.NewMemoryStore())

	phone := "+15550100"
	if _, err := svc.Update(ctx, "alice", profile.Profile{Name: "Alice", Email: "alice@example.com", Phone: &phone, Role: "agronomist"}); err != nil {
		t.Fatalf("update: %v", err)
	}

	p, err := svc.Update(ctx, "alice", profile.Profile{Name: "Alice B", Email: "alice@example.com"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if p.Name != "Alice B" || p.Role != "agronomist" || p.Phone == nil || *p.Phone != phone {
		t.Fatalf("expected optional fields to be kept, got %+v", p)
	}
}

func TestConcurrentUpdatesKeepEachField(t *testing.T) {
	ctx := context.Background()
	phone := "+15550100"

	for i := 0; i < 50; i++ {
		svc := profile.NewService(store.NewMemoryStore())
		if _, err := svc.Update(ctx, "alice", profile.Profile{Name: "Alice", Email: "alice@example.com"}); err != nil {
			t.Fatalf("seed: %v", err)
		}

		var wg sync.WaitGroup
		errs := make(chan error, 2)
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := svc.Update(ctx, "alice", profile.Profile{Name: "Alice", Email: "alice@example.com", Phone: &phone})
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := svc.Update(ctx, "alice", profile.Profile{Name: "Alice", Email: "alice@example.com", Role: "agronomist"})
			errs <- err
		}()
		wg.Wait()
		close(errs)
		for err := range errs {
			if err != nil {
				t.Fatalf("update: %v", err)
			}
		}

		got, err := svc.Get(ctx, "alice")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.Phone == nil || *got.Phone != phone || got.Role != "agronomist" {
			t.Fatalf("iteration %d: lost a concurrent update: %+v", i, got)
		}
	}
}
