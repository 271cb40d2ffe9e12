/**
 * @description
 * Event publishing helpers. Publishing is best-effort: a broker failure is logged
 * and never fails the operation that produced the event, because the database
 * write has already committed.
 */

package app

import (
	"context"
	"time"

	"github.com/licensio/contract-service/internal/domain"
	"github.com/licensio/contract-service/pkg/rabbitmq"
)

func (s *Service) publishSigned(ctx context.Context, c *domain.Contract, now time.Time) {
	if s.eventProducer == nil {
		return
	}
	event := rabbitmq.ContractSignedEvent{
		ContractID: c.ID,
		ClientID:   c.ClientID,
		FinalPrice: c.FinalPrice,
		Timestamp:  now,
	}
	if err := s.eventProducer.Publish(ctx, rabbitmq.ContractEventsExchange, "contract.signed", event); err != nil {
		s.logger.Warn("failed to publish contract.signed event", "contract_id", c.ID, "error", err)
	}
}

func (s *Service) publishExpired(ctx context.Context, contracts []domain.Contract, now time.Time) {
	if s.eventProducer == nil {
		return
	}
	for i := range contracts {
		c := &contracts[i]
		var refunded float64
		for _, p := range c.Payments {
			if p.Status == domain.PaymentStatusRefunded {
				refunded += p.Amount
			}
		}
		event := rabbitmq.ContractExpiredEvent{
			ContractID:     c.ID,
			ClientID:       c.ClientID,
			RefundedAmount: domain.Round2(refunded),
			Timestamp:      now,
		}
		if err := s.eventProducer.Publish(ctx, rabbitmq.ContractEventsExchange, "contract.expired", event); err != nil {
			s.logger.Warn("failed to publish contract.expired event", "contract_id", c.ID, "error", err)
		}
	}
}

func (s *Service) publishPaymentRecorded(ctx context.Context, p *domain.Payment, now time.Time) {
	if s.eventProducer == nil {
		return
	}
	event := rabbitmq.PaymentRecordedEvent{
		PaymentID:  p.ID,
		ContractID: p.ContractID,
		Amount:     p.Amount,
		Status:     string(p.Status),
		Timestamp:  now,
	}
	if err := s.eventProducer.Publish(ctx, rabbitmq.ContractEventsExchange, "payment.recorded", event); err != nil {
		s.logger.Warn("failed to publish payment.recorded event", "payment_id", p.ID, "error", err)
	}
}
