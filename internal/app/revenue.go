/**
 * @description
 * Revenue reporting. Two views over the same ledger:
 *
 *   current:   money the company can already count on — signed contract prices
 *              plus completed partial payments on contracts still in created.
 *   predicted: the optimistic projection — every created and signed contract is
 *              assumed to reach full payment.
 *
 * Both views accept an optional software-system filter and a target currency.
 * Amounts are summed in PLN first and converted once at the end.
 */

package app

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/licensio/contract-service/internal/domain"
)

// RevenueReport is the result of a revenue query, converted to the requested currency.
type RevenueReport struct {
	Amount     float64    `json:"amount"`
	Currency   string     `json:"currency"`
	RateSource string     `json:"rate_source"`
	SystemID   *uuid.UUID `json:"software_system_id,omitempty"`
}

// CurrentRevenue reports recognized revenue: signed contracts at full price plus
// completed payments held against created contracts.
func (s *Service) CurrentRevenue(ctx context.Context, systemID *uuid.UUID, currency string) (*RevenueReport, error) {
	signed, err := s.repo.SumSignedContractRevenue(ctx, systemID)
	if err != nil {
		return nil, fmt.Errorf("failed to sum signed revenue: %w", err)
	}
	partials, err := s.repo.SumCompletedPaymentsOnCreatedContracts(ctx, systemID)
	if err != nil {
		return nil, fmt.Errorf("failed to sum partial payments: %w", err)
	}
	return s.convertRevenue(ctx, signed+partials, currency, systemID)
}

// PredictedRevenue reports the projection where every open contract is fully paid.
func (s *Service) PredictedRevenue(ctx context.Context, systemID *uuid.UUID, currency string) (*RevenueReport, error) {
	total, err := s.repo.SumActiveContractValue(ctx, systemID)
	if err != nil {
		return nil, fmt.Errorf("failed to sum contract value: %w", err)
	}
	return s.convertRevenue(ctx, total, currency, systemID)
}

// GetRate exposes the converter's layered rate lookup for a single currency.
func (s *Service) GetRate(ctx context.Context, currency string) (*domain.ExchangeRate, error) {
	return s.converter.GetRate(ctx, currency)
}

func (s *Service) convertRevenue(ctx context.Context, amountPLN float64, currency string, systemID *uuid.UUID) (*RevenueReport, error) {
	converted, rate, err := s.converter.Convert(ctx, amountPLN, currency)
	if err != nil {
		return nil, err
	}
	return &RevenueReport{
		Amount:     domain.Round2(converted),
		Currency:   rate.TargetCurrency,
		RateSource: rate.Source,
		SystemID:   systemID,
	}, nil
}
