package weather

import (
	"context"
	"errors"
	"testing"
)

type stubProvider struct {
	name    string
	reading ProviderReading
	err     error
	calls   int
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Fetch(ctx context.Context, loc Location) (ProviderReading, error) {
	s.calls++
	return s.reading, s.err
}

type countingObserver struct {
	failed []string
}

func (c *countingObserver) ProviderFailed(provider string) {
	c.failed = append(c.failed, provider)
}

func TestResolveWithoutProvidersReturnsDefault(t *testing.T) {
	r := NewResolver(nil, nil)

	res := r.ResolveDetailed(context.Background(), 10, 10)
	if res.Reading != DefaultReading() {
		t.Fatalf("expected default reading, got %+v", res.Reading)
	}
	if res.Reason != ReasonNoProvider || !res.Fallback() {
		t.Fatalf("unexpected resolution: %+v", res)
	}
}

func TestResolveScalesHourlyPrecipitation(t *testing.T) {
	p := &stubProvider{name: "a", reading: ProviderReading{TemperatureC: 20, HumidityPct: 50, PrecipMmHour: 2.5}}
	r := NewResolver([]Provider{p}, nil)

	got := r.Resolve(context.Background(), 1, 2)
	want := Reading{Temperature: 20, Humidity: 50, Rainfall: 60}
	if got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}

func TestResolveFallsThroughProviders(t *testing.T) {
	obs := &countingObserver{}
	first := &stubProvider{name: "first", err: errors.New("boom")}
	second := &stubProvider{name: "second", reading: ProviderReading{TemperatureC: 15, HumidityPct: 80}}
	r := NewResolver([]Provider{first, second}, obs)

	res := r.ResolveDetailed(context.Background(), 1, 2)
	if res.Source != SourceProvider || res.Provider != "second" {
		t.Fatalf("unexpected resolution: %+v", res)
	}
	if len(res.Errors) != 1 || len(obs.failed) != 1 || obs.failed[0] != "first" {
		t.Fatalf("expected one recorded failure, got %v / %v", res.Errors, obs.failed)
	}
}

func TestResolveAllProvidersFailing(t *testing.T) {
	p := &stubProvider{name: "down", err: errors.New("unreachable")}
	r := NewResolver([]Provider{p}, nil)

	res := r.ResolveDetailed(context.Background(), 1, 2)
	if res.Reading != DefaultReading() || res.Reason != ReasonProviderFailed {
		t.Fatalf("unexpected resolution: %+v", res)
	}
}

func TestResolveInvalidCoordinatesSkipsProviders(t *testing.T) {
	p := &stubProvider{name: "a"}
	r := NewResolver([]Provider{p}, nil)

	res := r.ResolveDetailed(context.Background(), 95, 0)
	if res.Reason != ReasonInvalidCoordinates || p.calls != 0 {
		t.Fatalf("unexpected resolution %+v after %d calls", res, p.calls)
	}
}
