/**
 * @description
 * This file defines the `Repository` interface, the contract for all data access the
 * billing engine needs. The ledger and lifecycle operations are deliberately coarse:
 * each one is a single atomic transaction in the PostgreSQL implementation, because
 * payment recording and contract expiration are read-check-then-write sequences that
 * would otherwise race under concurrent requests.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/google/uuid: Entity identifiers.
 * - internal/domain: Domain models and pure business rules.
 */

package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/licensio/contract-service/internal/domain"
)

// PaymentResult is the outcome of an atomic ledger write: the persisted payment,
// the contract snapshot after the write, and whether this write promoted the
// contract to signed.
type PaymentResult struct {
	Payment  *domain.Payment
	Contract *domain.Contract
	Promoted bool
}

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Catalog and client lookups (read-only collaborators).
	ClientExists(ctx context.Context, clientID uuid.UUID, clientType string) (bool, error)
	FindSoftwareSystemByID(ctx context.Context, id uuid.UUID) (*domain.SoftwareSystem, error)
	// FindBestActiveUpfrontDiscount returns the currently active upfront-applicable
	// discount with the highest percentage for the system, or nil when none applies.
	FindBestActiveUpfrontDiscount(ctx context.Context, systemID uuid.UUID, now time.Time) (*domain.Discount, error)

	// Contract methods.
	CreateContract(ctx context.Context, c *domain.Contract) error
	FindContractByID(ctx context.Context, id uuid.UUID) (*domain.Contract, error)
	ListContracts(ctx context.Context) ([]domain.Contract, error)
	HasActiveContract(ctx context.Context, clientID uuid.UUID, clientType string, systemID uuid.UUID) (bool, error)
	HasSignedContract(ctx context.Context, clientID uuid.UUID, clientType string) (bool, error)

	// Ledger methods. Each executes as one transaction with the contract row locked.
	RecordPayment(ctx context.Context, contractID uuid.UUID, amount float64, method string, now time.Time) (*PaymentResult, error)
	CreatePendingPayment(ctx context.Context, contractID uuid.UUID, amount float64, method string, now time.Time) (*domain.Payment, error)
	SettlePayment(ctx context.Context, paymentID uuid.UUID, status domain.PaymentStatus, note string, now time.Time) (*PaymentResult, error)
	FindPaymentByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error)
	ListPayments(ctx context.Context) ([]domain.Payment, error)
	ListPaymentsByContract(ctx context.Context, contractID uuid.UUID) ([]domain.Payment, error)

	// Lifecycle methods. Expiration refunds completed payments in the same transaction.
	ExpireOverdueContracts(ctx context.Context, now time.Time) ([]domain.Contract, error)
	ExpireContract(ctx context.Context, contractID uuid.UUID, now time.Time) (bool, error)

	// Revenue aggregates, optionally filtered by software system.
	SumSignedContractRevenue(ctx context.Context, systemID *uuid.UUID) (float64, error)
	SumCompletedPaymentsOnCreatedContracts(ctx context.Context, systemID *uuid.UUID) (float64, error)
	SumActiveContractValue(ctx context.Context, systemID *uuid.UUID) (float64, error)
}
