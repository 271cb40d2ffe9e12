package app

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/licensio/contract-service/internal/domain"
)

// fakeRates is a RateSource with a switchable table and failure mode.
type fakeRates struct {
	rates   map[string]float64
	err     error
	fetches int
}

func (f *fakeRates) FetchRates(context.Context) (map[string]float64, error) {
	f.fetches++
	if f.err != nil {
		return nil, f.err
	}
	return f.rates, nil
}

func newTestConverter(source RateSource) *Converter {
	return NewConverter(source, 15*time.Minute, testLogger())
}

func TestGetRate_PLNIsInternal(t *testing.T) {
	source := &fakeRates{err: errors.New("must not be called")}
	c := newTestConverter(source)

	rate, err := c.GetRate(context.Background(), "pln")
	if err != nil {
		t.Fatalf("PLN rate failed: %v", err)
	}
	if rate.Rate != 1.0 || rate.Source != domain.RateSourceInternal {
		t.Fatalf("PLN rate = %+v, want 1.0 from internal", rate)
	}
	if source.fetches != 0 {
		t.Fatal("PLN must never hit the provider")
	}
}

func TestGetRate_LiveThenCache(t *testing.T) {
	source := &fakeRates{rates: map[string]float64{"USD": 0.25, "EUR": 0.20}}
	c := newTestConverter(source)
	ctx := context.Background()

	rate, err := c.GetRate(ctx, "USD")
	if err != nil {
		t.Fatalf("live fetch failed: %v", err)
	}
	if rate.Source != domain.RateSourceLive || rate.Rate != 0.25 {
		t.Fatalf("first lookup = %+v, want 0.25 from live", rate)
	}

	// Second lookup inside the TTL is served from cache, no new fetch. The full
	// table was cached, so a different currency also avoids a fetch.
	rate, err = c.GetRate(ctx, "usd")
	if err != nil {
		t.Fatalf("cached fetch failed: %v", err)
	}
	if rate.Source != domain.RateSourceCache {
		t.Fatalf("second lookup source = %s, want cache", rate.Source)
	}
	if _, err := c.GetRate(ctx, "EUR"); err != nil {
		t.Fatalf("EUR lookup failed: %v", err)
	}
	if source.fetches != 1 {
		t.Fatalf("provider fetched %d times, want 1", source.fetches)
	}
}

func TestGetRate_ExpiredCacheRefetches(t *testing.T) {
	source := &fakeRates{rates: map[string]float64{"USD": 0.25}}
	c := newTestConverter(source)
	ctx := context.Background()

	if _, err := c.GetRate(ctx, "USD"); err != nil {
		t.Fatalf("first fetch failed: %v", err)
	}

	c.now = func() time.Time { return time.Now().Add(16 * time.Minute) }
	source.rates = map[string]float64{"USD": 0.26}

	rate, err := c.GetRate(ctx, "USD")
	if err != nil {
		t.Fatalf("refetch failed: %v", err)
	}
	if rate.Source != domain.RateSourceLive || rate.Rate != 0.26 {
		t.Fatalf("expired lookup = %+v, want 0.26 from live", rate)
	}
	if source.fetches != 2 {
		t.Fatalf("provider fetched %d times, want 2", source.fetches)
	}
}

func TestGetRate_StaleCacheWhenProviderDown(t *testing.T) {
	source := &fakeRates{rates: map[string]float64{"USD": 0.25}}
	c := newTestConverter(source)
	ctx := context.Background()

	if _, err := c.GetRate(ctx, "USD"); err != nil {
		t.Fatalf("first fetch failed: %v", err)
	}

	c.now = func() time.Time { return time.Now().Add(16 * time.Minute) }
	source.err = errors.New("connection refused")

	rate, err := c.GetRate(ctx, "USD")
	if err != nil {
		t.Fatalf("stale lookup failed: %v", err)
	}
	if rate.Source != domain.RateSourceCache || rate.Rate != 0.25 {
		t.Fatalf("stale lookup = %+v, want 0.25 from cache", rate)
	}
}

func TestGetRate_StaticFallbackOnColdCache(t *testing.T) {
	source := &fakeRates{err: errors.New("connection refused")}
	c := newTestConverter(source)
	ctx := context.Background()

	rate, err := c.GetRate(ctx, "USD")
	if err != nil {
		t.Fatalf("fallback lookup failed: %v", err)
	}
	if rate.Source != domain.RateSourceFallback || rate.Rate != 0.24 {
		t.Fatalf("fallback lookup = %+v, want 0.24 from fallback", rate)
	}

	// The fallback rate is cached: a second lookup inside the TTL serves the same
	// value from cache without touching the provider again.
	rate, err = c.GetRate(ctx, "USD")
	if err != nil {
		t.Fatalf("second lookup failed: %v", err)
	}
	if rate.Source != domain.RateSourceCache || rate.Rate != 0.24 {
		t.Fatalf("second lookup = %+v, want 0.24 from cache", rate)
	}
	if source.fetches != 1 {
		t.Fatalf("provider fetched %d times, want 1", source.fetches)
	}
}

func TestGetRate_UnsupportedCurrency(t *testing.T) {
	// Provider reachable but does not quote the currency: unsupported, even
	// though the static table would know USD.
	source := &fakeRates{rates: map[string]float64{"EUR": 0.20}}
	c := newTestConverter(source)

	if _, err := c.GetRate(context.Background(), "USD"); !errors.Is(err, domain.ErrUnsupportedCurrency) {
		t.Fatalf("expected unsupported currency, got %v", err)
	}

	// Provider down and the currency is unknown everywhere: also unsupported.
	down := &fakeRates{err: errors.New("connection refused")}
	c = newTestConverter(down)
	if _, err := c.GetRate(context.Background(), "XXX"); !errors.Is(err, domain.ErrUnsupportedCurrency) {
		t.Fatalf("expected unsupported currency, got %v", err)
	}
}

func TestConvertBetween_PivotsThroughPLN(t *testing.T) {
	source := &fakeRates{rates: map[string]float64{"USD": 0.25, "EUR": 0.20}}
	c := newTestConverter(source)

	// 100 USD -> 400 PLN -> 80 EUR.
	got, err := c.ConvertBetween(context.Background(), 100, "USD", "EUR")
	if err != nil {
		t.Fatalf("convert failed: %v", err)
	}
	if math.Abs(got-80) > 1e-9 {
		t.Fatalf("ConvertBetween = %v, want 80", got)
	}
}
