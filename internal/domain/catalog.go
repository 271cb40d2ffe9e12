/**
 * @description
 * Read-only catalog entities the billing engine prices against: software systems
 * and promotional discounts. Both are owned by external management surfaces; the
 * engine selects them but never mutates them.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// PricingType describes how a software system is sold.
type PricingType string

const (
	PricingTypeSubscription PricingType = "subscription"
	PricingTypeUpfront      PricingType = "upfront"
	PricingTypeBoth         PricingType = "both"
)

// SoftwareSystem is the licensed product a contract is written for.
type SoftwareSystem struct {
	ID                uuid.UUID   `json:"id"`
	Name              string      `json:"name"`
	CurrentVersion    string      `json:"current_version"`
	Category          string      `json:"category"`
	PricingType       PricingType `json:"pricing_type"`
	UpfrontPrice      *float64    `json:"upfront_price,omitempty"`
	SubscriptionPrice *float64    `json:"subscription_price,omitempty"`
}

// DiscountKind describes which pricing models a discount applies to.
type DiscountKind string

const (
	DiscountKindSubscription DiscountKind = "subscription"
	DiscountKindUpfront      DiscountKind = "upfront"
	DiscountKindBoth         DiscountKind = "both"
)

// Discount is a time-bounded promotional reduction. A nil SoftwareSystemID means
// the discount applies globally.
type Discount struct {
	ID               uuid.UUID    `json:"id"`
	Name             string       `json:"name"`
	PercentageValue  float64      `json:"percentage_value"`
	Kind             DiscountKind `json:"kind"`
	StartDate        time.Time    `json:"start_date"`
	EndDate          time.Time    `json:"end_date"`
	IsActive         bool         `json:"is_active"`
	SoftwareSystemID *uuid.UUID   `json:"software_system_id,omitempty"`
}

// CurrentlyActive reports whether the discount can be applied at the given time.
func (d *Discount) CurrentlyActive(now time.Time) bool {
	return d.IsActive && !now.Before(d.StartDate) && !now.After(d.EndDate)
}
