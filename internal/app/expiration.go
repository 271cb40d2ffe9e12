/**
 * @description
 * Expiration use cases. A created contract that passes its end date without being
 * fully paid expires, and every completed payment it collected is refunded. The
 * sweep is idempotent: already-expired contracts are filtered out by status, so
 * running it twice refunds nothing twice.
 */

package app

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/licensio/contract-service/internal/domain"
)

// ExpireOverdueContracts runs one expiration sweep and returns how many
// contracts it expired. The scheduler calls this on its interval; contract
// creation calls it lazily as well.
func (s *Service) ExpireOverdueContracts(ctx context.Context) (int, error) {
	now := s.now().UTC()

	expired, err := s.repo.ExpireOverdueContracts(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("expiration sweep failed: %w", err)
	}
	if len(expired) == 0 {
		return 0, nil
	}

	for i := range expired {
		c := &expired[i]
		s.logger.Info("contract expired",
			"contract_id", c.ID,
			"client_id", c.ClientID,
			"refunded_payments", len(c.Payments),
		)
	}
	s.publishExpired(ctx, expired, now)
	return len(expired), nil
}

// ExpireContract applies the expiration rule to one contract. It returns true
// when the contract was expired by this call and false when there was nothing to
// do, which keeps the operation safe to retry.
func (s *Service) ExpireContract(ctx context.Context, contractID uuid.UUID) (bool, error) {
	now := s.now().UTC()

	expired, err := s.repo.ExpireContract(ctx, contractID, now)
	if err != nil {
		return false, err
	}
	if !expired {
		return false, nil
	}

	contract, err := s.repo.FindContractByID(ctx, contractID)
	if err == nil {
		s.logger.Info("contract expired", "contract_id", contract.ID, "client_id", contract.ClientID)
		s.publishExpired(ctx, []domain.Contract{*contract}, now)
	}
	return true, nil
}
