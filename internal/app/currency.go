/**
 * @description
 * Currency conversion with a layered rate lookup. All prices are stored in PLN;
 * reports can be requested in another currency. Rates resolve in order:
 *
 *   1. internal: PLN to PLN is always 1.0 and never leaves the process.
 *   2. cache:    a rate fetched within the TTL is served from memory.
 *   3. live:     the provider's full PLN table is fetched and cached.
 *   4. fallback: when the provider is unreachable, a stale cached rate is
 *                reused; failing that, a static table of approximate rates.
 *
 * A currency missing from a successful provider response is unsupported, even if
 * the static table knows it: the provider is authoritative when reachable.
 *
 * @dependencies
 * - context, log/slog, strings, sync, time: Standard Go libraries.
 * - internal/domain: ExchangeRate model and error taxonomy.
 */

package app

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/licensio/contract-service/internal/domain"
)

// DefaultRateTTL is how long a fetched rate is served from cache before the
// provider is consulted again.
const DefaultRateTTL = 15 * time.Minute

// fallbackRates holds approximate units-per-PLN rates used only when the
// provider is unreachable and the cache has nothing for the currency.
var fallbackRates = map[string]float64{
	"USD": 0.24, "EUR": 0.22, "GBP": 0.19, "CHF": 0.22,
	"CZK": 5.50, "SEK": 2.60, "NOK": 2.70, "DKK": 1.65,
	"HUF": 90.0, "RON": 1.10, "BGN": 0.43, "HRK": 1.65,
	"CAD": 0.33, "AUD": 0.37, "JPY": 36.0,
}

// RateSource fetches the full PLN-based rate table from the external provider.
type RateSource interface {
	FetchRates(ctx context.Context) (map[string]float64, error)
}

// Converter resolves exchange rates and converts PLN amounts. Safe for
// concurrent use; the cache is guarded by a mutex.
type Converter struct {
	source RateSource
	ttl    time.Duration
	logger *slog.Logger

	mu    sync.Mutex
	cache map[string]domain.ExchangeRate

	// now is swapped out in tests.
	now func() time.Time
}

// NewConverter creates a converter backed by the given rate provider.
func NewConverter(source RateSource, ttl time.Duration, logger *slog.Logger) *Converter {
	if ttl <= 0 {
		ttl = DefaultRateTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Converter{
		source: source,
		ttl:    ttl,
		logger: logger.With("component", "currency_converter"),
		cache:  make(map[string]domain.ExchangeRate),
		now:    time.Now,
	}
}

// GetRate resolves the PLN rate for a target currency through the layered lookup.
func (c *Converter) GetRate(ctx context.Context, currency string) (*domain.ExchangeRate, error) {
	code := strings.ToUpper(strings.TrimSpace(currency))
	if code == "" || code == "PLN" {
		return &domain.ExchangeRate{
			BaseCurrency:   "PLN",
			TargetCurrency: "PLN",
			Rate:           1.0,
			FetchedAt:      c.now().UTC(),
			Source:         domain.RateSourceInternal,
		}, nil
	}

	now := c.now().UTC()

	c.mu.Lock()
	defer c.mu.Unlock()

	if cached, ok := c.cache[code]; ok && now.Sub(cached.FetchedAt) < c.ttl {
		cached.Source = domain.RateSourceCache
		return &cached, nil
	}

	rates, err := c.source.FetchRates(ctx)
	if err != nil {
		c.logger.Warn("rate provider unreachable, degrading", "currency", code, "error", err)
		return c.degradedRate(code, now)
	}

	// Refresh the whole cache from the authoritative table.
	for target, rate := range rates {
		c.cache[strings.ToUpper(target)] = domain.ExchangeRate{
			BaseCurrency:   "PLN",
			TargetCurrency: strings.ToUpper(target),
			Rate:           rate,
			FetchedAt:      now,
			Source:         domain.RateSourceLive,
		}
	}

	live, ok := c.cache[code]
	if !ok {
		return nil, domain.ErrUnsupportedCurrency
	}
	return &live, nil
}

// degradedRate serves a rate without the provider: stale cache first, then the
// static fallback table. Called with the mutex held.
func (c *Converter) degradedRate(code string, now time.Time) (*domain.ExchangeRate, error) {
	if stale, ok := c.cache[code]; ok {
		stale.Source = domain.RateSourceCache
		return &stale, nil
	}
	if rate, ok := fallbackRates[code]; ok {
		c.logger.Warn("serving static fallback rate", "currency", code, "rate", rate)
		fallback := domain.ExchangeRate{
			BaseCurrency:   "PLN",
			TargetCurrency: code,
			Rate:           rate,
			FetchedAt:      now,
			Source:         domain.RateSourceFallback,
		}
		// Cache it so lookups inside the TTL do not re-hit the dead provider.
		c.cache[code] = fallback
		return &fallback, nil
	}
	return nil, domain.ErrUnsupportedCurrency
}

// Convert converts a PLN amount to the target currency. The returned rate tells
// the caller which source served it.
func (c *Converter) Convert(ctx context.Context, amountPLN float64, currency string) (float64, *domain.ExchangeRate, error) {
	rate, err := c.GetRate(ctx, currency)
	if err != nil {
		return 0, nil, err
	}
	return amountPLN * rate.Rate, rate, nil
}

// ConvertBetween converts between two arbitrary currencies by pivoting through
// PLN, since every cached rate is PLN-based.
func (c *Converter) ConvertBetween(ctx context.Context, amount float64, from, to string) (float64, error) {
	fromRate, err := c.GetRate(ctx, from)
	if err != nil {
		return 0, err
	}
	toRate, err := c.GetRate(ctx, to)
	if err != nil {
		return 0, err
	}
	return amount / fromRate.Rate * toRate.Rate, nil
}
