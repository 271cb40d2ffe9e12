package domain

import "time"

// Rate sources, in order of preference.
const (
	RateSourceInternal = "internal"
	RateSourceCache    = "cache"
	RateSourceLive     = "live"
	RateSourceFallback = "fallback"
)

// ExchangeRate is an ephemeral PLN-based exchange rate. It is never persisted;
// the converter holds it in its in-memory cache keyed by target currency code.
type ExchangeRate struct {
	BaseCurrency   string    `json:"base_currency"`
	TargetCurrency string    `json:"target_currency"`
	Rate           float64   `json:"rate"`
	FetchedAt      time.Time `json:"fetched_at"`
	Source         string    `json:"source"`
}
