/**
 * @description
 * This file contains the core business logic for the contract-service. The `Service`
 * struct orchestrates contract creation and the read-side operations, coordinating
 * between the database repository, the currency converter, and the message broker.
 *
 * Key features:
 * - Prices new contracts from the software system's upfront price, support-year
 *   surcharges, the best active promotional discount and the returning-client reduction.
 * - Sweeps overdue contracts lazily before creation so a stale created contract never
 *   blocks a client from starting a new one.
 * - Publishes events to RabbitMQ for asynchronous processing by other services.
 *
 * @dependencies
 * - context, log/slog, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID generation.
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/rabbitmq: For event publishing.
 */

package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/licensio/contract-service/internal/domain"
	"github.com/licensio/contract-service/internal/store"
	"github.com/licensio/contract-service/pkg/rabbitmq"
)

// Service provides the core business logic for contracts and payments.
type Service struct {
	repo          store.Repository
	converter     *Converter
	eventProducer rabbitmq.Publisher
	logger        *slog.Logger

	// now is swapped out in tests.
	now func() time.Time
}

// NewService creates a new contract service instance.
func NewService(repo store.Repository, converter *Converter, producer rabbitmq.Publisher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:          repo,
		converter:     converter,
		eventProducer: producer,
		logger:        logger.With("component", "contract_service"),
		now:           time.Now,
	}
}

// CreateContract validates, prices and persists a new contract in the created state.
func (s *Service) CreateContract(ctx context.Context, req domain.CreateContractRequest) (*domain.Contract, error) {
	now := s.now().UTC()

	if req.ClientType != domain.ClientTypeIndividual && req.ClientType != domain.ClientTypeCompany {
		return nil, domain.NewValidationErrorf("client type must be %q or %q", domain.ClientTypeIndividual, domain.ClientTypeCompany)
	}
	if req.SupportYears < domain.MinSupportYears || req.SupportYears > domain.MaxSupportYears {
		return nil, domain.NewValidationErrorf("support years must be between %d and %d", domain.MinSupportYears, domain.MaxSupportYears)
	}
	if !req.ValidDuration() {
		return nil, domain.NewValidationError("contract duration must be between 3 and 30 days")
	}
	if req.SoftwareVersion == "" {
		return nil, domain.NewValidationError("software version is required")
	}

	// Lazy sweep: expire anything overdue first so a stale created contract does
	// not trip the duplicate-contract check below.
	if expired, err := s.repo.ExpireOverdueContracts(ctx, now); err != nil {
		s.logger.Warn("pre-create expiration sweep failed", "error", err)
	} else if len(expired) > 0 {
		s.logger.Info("pre-create expiration sweep expired contracts", "count", len(expired))
		s.publishExpired(ctx, expired, now)
	}

	exists, err := s.repo.ClientExists(ctx, req.ClientID, req.ClientType)
	if err != nil {
		return nil, fmt.Errorf("failed to check client: %w", err)
	}
	if !exists {
		return nil, domain.NewNotFoundError("client", req.ClientID)
	}

	system, err := s.repo.FindSoftwareSystemByID(ctx, req.SoftwareSystemID)
	if err != nil {
		return nil, err
	}
	if system.PricingType == domain.PricingTypeSubscription || system.UpfrontPrice == nil {
		return nil, domain.NewConfigurationError("software system does not support upfront pricing")
	}

	hasActive, err := s.repo.HasActiveContract(ctx, req.ClientID, req.ClientType, req.SoftwareSystemID)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing contracts: %w", err)
	}
	if hasActive {
		return nil, domain.NewConflictError("client already has an active contract for this software system")
	}

	returning, err := s.repo.HasSignedContract(ctx, req.ClientID, req.ClientType)
	if err != nil {
		return nil, fmt.Errorf("failed to check returning-client status: %w", err)
	}

	discount, err := s.repo.FindBestActiveUpfrontDiscount(ctx, req.SoftwareSystemID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to look up discounts: %w", err)
	}

	pricing := domain.ComputePrice(*system.UpfrontPrice, req.SupportYears, discount, returning)

	contract := &domain.Contract{
		ID:               uuid.New(),
		ClientID:         req.ClientID,
		ClientType:       req.ClientType,
		SoftwareSystemID: req.SoftwareSystemID,
		SoftwareVersion:  req.SoftwareVersion,
		StartDate:        req.StartDate,
		EndDate:          req.EndDate,
		SupportYears:     req.SupportYears,
		BasePrice:        pricing.BasePrice,
		FinalPrice:       pricing.FinalPrice,

		AppliedDiscountPercentage: pricing.DiscountPercentage,
		AppliedDiscountAmount:     pricing.DiscountAmount,

		IsReturningClientDiscountApplied: pricing.ReturningClientApplied,
		ReturningClientDiscountAmount:    pricing.ReturningClientAmount,

		Status:    domain.ContractStatusCreated,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if pricing.Discount != nil {
		id := pricing.Discount.ID
		contract.AppliedDiscountID = &id
	}

	if err := s.repo.CreateContract(ctx, contract); err != nil {
		return nil, fmt.Errorf("failed to create contract: %w", err)
	}

	s.logger.Info("contract created",
		"contract_id", contract.ID,
		"client_id", contract.ClientID,
		"final_price", contract.FinalPrice,
		"returning_client", contract.IsReturningClientDiscountApplied,
	)
	return contract, nil
}

// GetContract retrieves a contract with its payment ledger.
func (s *Service) GetContract(ctx context.Context, id uuid.UUID) (*domain.Contract, error) {
	return s.repo.FindContractByID(ctx, id)
}

// ListContracts retrieves all contracts with their ledgers.
func (s *Service) ListContracts(ctx context.Context) ([]domain.Contract, error) {
	return s.repo.ListContracts(ctx)
}

// GetPayment retrieves a single payment.
func (s *Service) GetPayment(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	return s.repo.FindPaymentByID(ctx, id)
}

// ListPayments retrieves the full payment ledger.
func (s *Service) ListPayments(ctx context.Context) ([]domain.Payment, error) {
	return s.repo.ListPayments(ctx)
}

// ListContractPayments retrieves the ledger for one contract.
func (s *Service) ListContractPayments(ctx context.Context, contractID uuid.UUID) ([]domain.Payment, error) {
	if _, err := s.repo.FindContractByID(ctx, contractID); err != nil {
		return nil, err
	}
	return s.repo.ListPaymentsByContract(ctx, contractID)
}
