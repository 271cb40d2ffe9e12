/**
 * @description
 * This file defines the core domain models for the contract-service. A Contract is the
 * central entity: it carries the price computed at signing time, the validity window, and
 * the lifecycle status. Payments are loaded alongside the contract so that the derived
 * amounts (total paid, remaining, fully paid) are always computed from the snapshot
 * instead of being stored and drifting out of sync.
 *
 * @notes
 * - Prices are PLN amounts rounded to 2 decimal places when persisted. Intermediate
 *   pricing math is kept unrounded so sequential discounts compose exactly.
 */

package domain

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// ContractStatus is the lifecycle state of a contract.
type ContractStatus string

const (
	ContractStatusCreated   ContractStatus = "created"
	ContractStatusSigned    ContractStatus = "signed"
	ContractStatusExpired   ContractStatus = "expired"
	ContractStatusCancelled ContractStatus = "cancelled"
)

// Client discriminators. Clients live in an external registration system; the
// billing engine only ever references them by id + type.
const (
	ClientTypeIndividual = "individual"
	ClientTypeCompany    = "company"
)

// Contract duration and support-year bounds enforced at creation.
const (
	MinContractDuration = 3 * 24 * time.Hour
	MaxContractDuration = 30 * 24 * time.Hour
	MinSupportYears     = 1
	MaxSupportYears     = 3

	// Each support year beyond the first adds a flat surcharge to the base price.
	SupportYearSurcharge = 1000.0

	// Returning clients get a further 5% off the already-discounted price.
	ReturningClientDiscountRate = 0.05
)

// Contract represents a fixed-term software-licensing contract.
// Maps to the `contracts` table.
type Contract struct {
	ID               uuid.UUID      `json:"id"`
	ClientID         uuid.UUID      `json:"client_id"`
	ClientType       string         `json:"client_type"`
	SoftwareSystemID uuid.UUID      `json:"software_system_id"`
	SoftwareVersion  string         `json:"software_version"`
	StartDate        time.Time      `json:"start_date"`
	EndDate          time.Time      `json:"end_date"`
	SupportYears     int            `json:"support_years"`
	BasePrice        float64        `json:"base_price"`
	FinalPrice       float64        `json:"final_price"`

	AppliedDiscountPercentage float64    `json:"applied_discount_percentage,omitempty"`
	AppliedDiscountAmount     float64    `json:"applied_discount_amount,omitempty"`
	AppliedDiscountID         *uuid.UUID `json:"applied_discount_id,omitempty"`

	IsReturningClientDiscountApplied bool    `json:"is_returning_client_discount_applied"`
	ReturningClientDiscountAmount    float64 `json:"returning_client_discount_amount,omitempty"`

	Status    ContractStatus `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`

	// Payments is populated when the contract is loaded with its ledger.
	Payments []Payment `json:"payments,omitempty"`
}

// CreateContractRequest is the DTO for incoming contract-creation API requests.
type CreateContractRequest struct {
	ClientID         uuid.UUID `json:"client_id"`
	ClientType       string    `json:"client_type"`
	SoftwareSystemID uuid.UUID `json:"software_system_id"`
	SoftwareVersion  string    `json:"software_version"`
	StartDate        time.Time `json:"start_date"`
	EndDate          time.Time `json:"end_date"`
	SupportYears     int       `json:"support_years"`
}

// Round2 rounds a PLN amount to 2 decimal places. All persisted and reported
// money values go through this.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// TotalPaid is the sum of completed payments on the loaded snapshot. Pending,
// failed and refunded payments never count toward the paid total.
func (c *Contract) TotalPaid() float64 {
	var total float64
	for _, p := range c.Payments {
		if p.Status == PaymentStatusCompleted {
			total += p.Amount
		}
	}
	return total
}

// Remaining is the amount still owed against the final price.
func (c *Contract) Remaining() float64 {
	return c.FinalPrice - c.TotalPaid()
}

// FullyPaid reports whether the completed-payment total has reached the final price.
func (c *Contract) FullyPaid() bool {
	return c.TotalPaid() >= c.FinalPrice
}

// Overdue reports whether the payment deadline has passed while the contract is
// still awaiting full payment.
func (c *Contract) Overdue(now time.Time) bool {
	return c.Status == ContractStatusCreated && now.After(c.EndDate)
}

// ValidDuration checks the [3,30] day contract window.
func (c *CreateContractRequest) ValidDuration() bool {
	d := c.EndDate.Sub(c.StartDate)
	return d >= MinContractDuration && d <= MaxContractDuration
}

// AcceptsPayment returns nil when the contract can take a new payment of the given
// amount, or the business-rule error that rejects it. It must be evaluated on a
// snapshot loaded under the same transaction that inserts the payment.
func (c *Contract) AcceptsPayment(amount float64, now time.Time) error {
	switch c.Status {
	case ContractStatusExpired:
		return NewConflictError("contract is expired and cannot accept payments")
	case ContractStatusCancelled:
		return NewConflictError("contract is cancelled and cannot accept payments")
	}
	// An overdue contract that the sweep has not reached yet is treated as expired.
	if c.Overdue(now) {
		return NewConflictError("contract has passed its end date and cannot accept payments")
	}
	remaining := c.Remaining()
	if remaining <= 0 {
		return NewConflictError("contract is already fully paid")
	}
	if amount > remaining {
		return NewConflictErrorf("payment of %.2f exceeds remaining amount %.2f", amount, Round2(remaining))
	}
	return nil
}

// Promote moves a created contract to signed once its ledger covers the final
// price. It returns true when the transition happened. This is the only path by
// which a contract becomes signed.
func (c *Contract) Promote() bool {
	if c.Status != ContractStatusCreated || !c.FullyPaid() {
		return false
	}
	c.Status = ContractStatusSigned
	return true
}

// ShouldExpire reports whether the expiration sweep must process this contract:
// still created, past its end date, and not fully paid.
func (c *Contract) ShouldExpire(now time.Time) bool {
	return c.Overdue(now) && !c.FullyPaid()
}

// Expire transitions the contract to expired and refunds every completed payment
// on the snapshot, stamping the refund time. It returns the refunded payments.
// Callers persist the mutated snapshot in the same transaction that loaded it.
func (c *Contract) Expire(now time.Time) []Payment {
	c.Status = ContractStatusExpired
	var refunded []Payment
	for i := range c.Payments {
		if c.Payments[i].Status != PaymentStatusCompleted {
			continue
		}
		c.Payments[i].Status = PaymentStatusRefunded
		refundedAt := now
		c.Payments[i].RefundedAt = &refundedAt
		refunded = append(refunded, c.Payments[i])
	}
	return refunded
}
