/**
 * @description
 * Payment domain model and settlement rules. A payment belongs to exactly one
 * contract and only `completed` payments count toward the contract's paid total.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// PaymentStatus is the settlement state of a single payment.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

// Payment represents one entry in a contract's payment ledger.
// Maps to the `payments` table.
type Payment struct {
	ID         uuid.UUID     `json:"id"`
	ContractID uuid.UUID     `json:"contract_id"`
	Amount     float64       `json:"amount"`
	Method     string        `json:"method"`
	Status     PaymentStatus `json:"status"`
	Note       string        `json:"note,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	FailedAt    *time.Time `json:"failed_at,omitempty"`
	RefundedAt  *time.Time `json:"refunded_at,omitempty"`
}

// RecordPaymentRequest is the DTO for the immediate-completion payment path.
type RecordPaymentRequest struct {
	ContractID uuid.UUID `json:"contract_id"`
	Amount     float64   `json:"amount"`
	Method     string    `json:"method"`
}

// SettlePaymentRequest is the DTO for settling a pending payment created through
// the two-phase gateway flow.
type SettlePaymentRequest struct {
	Status PaymentStatus `json:"status"`
	Note   string        `json:"note,omitempty"`
}

// ValidSettlementStatus reports whether a status is an acceptable terminal state
// for a pending payment.
func ValidSettlementStatus(s PaymentStatus) bool {
	switch s {
	case PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusRefunded:
		return true
	}
	return false
}

// Settle moves a pending payment to its terminal status, stamping the matching
// timestamp. A payment that is not pending cannot be settled; in particular a
// completed payment never silently reverts.
func (p *Payment) Settle(status PaymentStatus, note string, now time.Time) error {
	if p.Status != PaymentStatusPending {
		return NewConflictErrorf("payment %s is %s, only pending payments can be settled", p.ID, p.Status)
	}
	if !ValidSettlementStatus(status) {
		return NewValidationError("settlement status must be completed, failed or refunded")
	}
	p.Status = status
	if note != "" {
		p.Note = note
	}
	ts := now
	switch status {
	case PaymentStatusCompleted:
		p.CompletedAt = &ts
	case PaymentStatusFailed:
		p.FailedAt = &ts
	case PaymentStatusRefunded:
		p.RefundedAt = &ts
	}
	return nil
}
