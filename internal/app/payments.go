/**
 * @description
 * Payment use cases. Two entry paths exist: the immediate path where a payment is
 * recorded as completed in one step, and the two-phase gateway path where a pending
 * payment is created first and settled later by a gateway callback. Both delegate
 * the read-check-write sequence to the repository so it runs under the contract
 * row lock, and both can promote the contract to signed.
 */

package app

import (
	"context"

	"github.com/google/uuid"
	"github.com/licensio/contract-service/internal/domain"
	"github.com/licensio/contract-service/internal/store"
)

func validatePaymentInput(amount float64, method string) error {
	if amount <= 0 {
		return domain.NewValidationError("payment amount must be positive")
	}
	if method == "" {
		return domain.NewValidationError("payment method is required")
	}
	return nil
}

// RecordPayment records an immediately-completed payment against a contract and
// promotes the contract to signed when the ledger reaches the final price.
func (s *Service) RecordPayment(ctx context.Context, req domain.RecordPaymentRequest) (*store.PaymentResult, error) {
	if err := validatePaymentInput(req.Amount, req.Method); err != nil {
		return nil, err
	}
	now := s.now().UTC()

	result, err := s.repo.RecordPayment(ctx, req.ContractID, req.Amount, req.Method, now)
	if err != nil {
		return nil, err
	}

	s.logger.Info("payment recorded",
		"payment_id", result.Payment.ID,
		"contract_id", req.ContractID,
		"amount", result.Payment.Amount,
		"remaining", domain.Round2(result.Contract.Remaining()),
	)
	s.publishPaymentRecorded(ctx, result.Payment, now)
	if result.Promoted {
		s.publishSigned(ctx, result.Contract, now)
	}
	return result, nil
}

// CreatePendingPayment opens a two-phase payment. The amount is validated against
// the contract's remaining balance now, but the ledger total is unaffected until
// the payment settles as completed.
func (s *Service) CreatePendingPayment(ctx context.Context, req domain.RecordPaymentRequest) (*domain.Payment, error) {
	if err := validatePaymentInput(req.Amount, req.Method); err != nil {
		return nil, err
	}
	now := s.now().UTC()

	payment, err := s.repo.CreatePendingPayment(ctx, req.ContractID, req.Amount, req.Method, now)
	if err != nil {
		return nil, err
	}
	s.logger.Info("pending payment created",
		"payment_id", payment.ID,
		"contract_id", req.ContractID,
		"amount", payment.Amount,
	)
	return payment, nil
}

// SettlePayment moves a pending payment to its terminal status. A completed
// settlement counts toward the ledger and may promote the contract.
func (s *Service) SettlePayment(ctx context.Context, paymentID uuid.UUID, req domain.SettlePaymentRequest) (*store.PaymentResult, error) {
	if !domain.ValidSettlementStatus(req.Status) {
		return nil, domain.NewValidationError("settlement status must be completed, failed or refunded")
	}
	now := s.now().UTC()

	result, err := s.repo.SettlePayment(ctx, paymentID, req.Status, req.Note, now)
	if err != nil {
		return nil, err
	}

	s.logger.Info("payment settled",
		"payment_id", paymentID,
		"contract_id", result.Payment.ContractID,
		"status", result.Payment.Status,
	)
	s.publishPaymentRecorded(ctx, result.Payment, now)
	if result.Promoted {
		s.publishSigned(ctx, result.Contract, now)
	}
	return result, nil
}
