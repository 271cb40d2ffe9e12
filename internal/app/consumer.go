/**
 * @description
 * Consumer for asynchronous settlement callbacks from the payment gateway. The
 * gateway publishes a settlement event for every pending payment it resolves;
 * this handler applies it through the same SettlePayment path the HTTP API uses,
 * so promotion and event publishing behave identically on both paths.
 */

package app

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/licensio/contract-service/internal/domain"
)

// GatewaySettlementExchange is the topic exchange gateway callbacks arrive on.
const GatewaySettlementExchange = "payment_gateway_events"

// GatewaySettlementEvent is the payload the payment gateway publishes when a
// pending payment resolves.
type GatewaySettlementEvent struct {
	PaymentID uuid.UUID `json:"payment_id"`
	Status    string    `json:"status"`
	Note      string    `json:"note,omitempty"`
}

// GatewaySettlementConsumer settles pending payments from gateway events.
type GatewaySettlementConsumer struct {
	service *Service
	logger  *slog.Logger
}

func NewGatewaySettlementConsumer(service *Service, logger *slog.Logger) *GatewaySettlementConsumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &GatewaySettlementConsumer{
		service: service,
		logger:  logger.With("component", "settlement_consumer"),
	}
}

// HandleMessage processes one settlement event. It returns true when the message
// should be acknowledged; only transient errors trigger a redelivery.
func (c *GatewaySettlementConsumer) HandleMessage(body []byte) bool {
	var event GatewaySettlementEvent
	if err := json.Unmarshal(body, &event); err != nil {
		c.logger.Error("failed to unmarshal settlement payload", "error", err)
		return true
	}
	if event.PaymentID == uuid.Nil {
		c.logger.Error("settlement event missing payment id")
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	status := normalizeSettlementStatus(event.Status)
	_, err := c.service.SettlePayment(ctx, event.PaymentID, domain.SettlePaymentRequest{
		Status: status,
		Note:   event.Note,
	})
	if err == nil {
		return true
	}

	// A missing payment or a payment that is no longer pending cannot be fixed
	// by redelivery; acknowledge and drop.
	if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrConflict) || errors.Is(err, domain.ErrValidation) {
		c.logger.Warn("dropping unprocessable settlement event",
			"payment_id", event.PaymentID, "status", event.Status, "error", err)
		return true
	}

	c.logger.Error("settlement processing failed, requeueing", "payment_id", event.PaymentID, "error", err)
	return false
}

func normalizeSettlementStatus(status string) domain.PaymentStatus {
	switch strings.TrimSpace(strings.ToLower(status)) {
	case "successful", "success", "completed":
		return domain.PaymentStatusCompleted
	case "failed", "failure", "declined":
		return domain.PaymentStatusFailed
	case "refunded", "reversed":
		return domain.PaymentStatusRefunded
	default:
		return domain.PaymentStatus(status)
	}
}
