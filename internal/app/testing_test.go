package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/licensio/contract-service/internal/domain"
	"github.com/licensio/contract-service/internal/store"
)

// memRepo is an in-memory store.Repository used by the service tests. It applies
// the same domain rules the PostgreSQL implementation applies inside its
// transactions, with a single mutex standing in for row locks.
type memRepo struct {
	mu        sync.Mutex
	clients   map[string]bool
	systems   map[uuid.UUID]*domain.SoftwareSystem
	discounts []domain.Discount
	contracts map[uuid.UUID]*domain.Contract
	payments  map[uuid.UUID]*domain.Payment
}

func newMemRepo() *memRepo {
	return &memRepo{
		clients:   make(map[string]bool),
		systems:   make(map[uuid.UUID]*domain.SoftwareSystem),
		contracts: make(map[uuid.UUID]*domain.Contract),
		payments:  make(map[uuid.UUID]*domain.Payment),
	}
}

func clientKey(id uuid.UUID, clientType string) string {
	return fmt.Sprintf("%s|%s", id, clientType)
}

func (m *memRepo) addClient(id uuid.UUID, clientType string) {
	m.clients[clientKey(id, clientType)] = true
}

func (m *memRepo) addSystem(s *domain.SoftwareSystem) {
	m.systems[s.ID] = s
}

func (m *memRepo) ClientExists(_ context.Context, clientID uuid.UUID, clientType string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clients[clientKey(clientID, clientType)], nil
}

func (m *memRepo) FindSoftwareSystemByID(_ context.Context, id uuid.UUID) (*domain.SoftwareSystem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.systems[id]
	if !ok {
		return nil, domain.NewNotFoundError("software system", id)
	}
	return s, nil
}

func (m *memRepo) FindBestActiveUpfrontDiscount(_ context.Context, systemID uuid.UUID, now time.Time) (*domain.Discount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *domain.Discount
	for i := range m.discounts {
		d := &m.discounts[i]
		if d.SoftwareSystemID != nil && *d.SoftwareSystemID != systemID {
			continue
		}
		if d.Kind == domain.DiscountKindSubscription || !d.CurrentlyActive(now) {
			continue
		}
		if best == nil || d.PercentageValue > best.PercentageValue {
			best = d
		}
	}
	if best == nil {
		return nil, nil
	}
	copy := *best
	return &copy, nil
}

func (m *memRepo) CreateContract(_ context.Context, c *domain.Contract) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := *c
	stored.Payments = nil
	m.contracts[c.ID] = &stored
	return nil
}

// loadContract assembles a snapshot copy of a contract plus its ledger.
// Called with the mutex held.
func (m *memRepo) loadContract(id uuid.UUID) (*domain.Contract, error) {
	stored, ok := m.contracts[id]
	if !ok {
		return nil, domain.NewNotFoundError("contract", id)
	}
	snapshot := *stored
	snapshot.Payments = nil
	for _, p := range m.payments {
		if p.ContractID == id {
			snapshot.Payments = append(snapshot.Payments, *p)
		}
	}
	return &snapshot, nil
}

func (m *memRepo) FindContractByID(_ context.Context, id uuid.UUID) (*domain.Contract, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadContract(id)
}

func (m *memRepo) ListContracts(_ context.Context) ([]domain.Contract, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Contract
	for id := range m.contracts {
		c, err := m.loadContract(id)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, nil
}

func (m *memRepo) HasActiveContract(_ context.Context, clientID uuid.UUID, clientType string, systemID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.contracts {
		if c.ClientID == clientID && c.ClientType == clientType && c.SoftwareSystemID == systemID &&
			(c.Status == domain.ContractStatusCreated || c.Status == domain.ContractStatusSigned) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memRepo) HasSignedContract(_ context.Context, clientID uuid.UUID, clientType string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.contracts {
		if c.ClientID == clientID && c.ClientType == clientType && c.Status == domain.ContractStatusSigned {
			return true, nil
		}
	}
	return false, nil
}

func (m *memRepo) RecordPayment(_ context.Context, contractID uuid.UUID, amount float64, method string, now time.Time) (*store.PaymentResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	contract, err := m.loadContract(contractID)
	if err != nil {
		return nil, err
	}
	if err := contract.AcceptsPayment(amount, now); err != nil {
		return nil, err
	}

	completedAt := now
	payment := &domain.Payment{
		ID:          uuid.New(),
		ContractID:  contractID,
		Amount:      domain.Round2(amount),
		Method:      method,
		Status:      domain.PaymentStatusCompleted,
		CreatedAt:   now,
		CompletedAt: &completedAt,
	}
	m.payments[payment.ID] = payment

	contract.Payments = append(contract.Payments, *payment)
	promoted := contract.Promote()
	if promoted {
		m.contracts[contractID].Status = domain.ContractStatusSigned
		m.contracts[contractID].UpdatedAt = now
	}
	return &store.PaymentResult{Payment: payment, Contract: contract, Promoted: promoted}, nil
}

func (m *memRepo) CreatePendingPayment(_ context.Context, contractID uuid.UUID, amount float64, method string, now time.Time) (*domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	contract, err := m.loadContract(contractID)
	if err != nil {
		return nil, err
	}
	if err := contract.AcceptsPayment(amount, now); err != nil {
		return nil, err
	}

	payment := &domain.Payment{
		ID:         uuid.New(),
		ContractID: contractID,
		Amount:     domain.Round2(amount),
		Method:     method,
		Status:     domain.PaymentStatusPending,
		CreatedAt:  now,
	}
	m.payments[payment.ID] = payment
	copy := *payment
	return &copy, nil
}

func (m *memRepo) SettlePayment(_ context.Context, paymentID uuid.UUID, status domain.PaymentStatus, note string, now time.Time) (*store.PaymentResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.payments[paymentID]
	if !ok {
		return nil, domain.NewNotFoundError("payment", paymentID)
	}
	if err := stored.Settle(status, note, now); err != nil {
		return nil, err
	}

	contract, err := m.loadContract(stored.ContractID)
	if err != nil {
		return nil, err
	}

	promoted := false
	if status == domain.PaymentStatusCompleted {
		promoted = contract.Promote()
		if promoted {
			m.contracts[contract.ID].Status = domain.ContractStatusSigned
			m.contracts[contract.ID].UpdatedAt = now
		}
	}
	copy := *stored
	return &store.PaymentResult{Payment: &copy, Contract: contract, Promoted: promoted}, nil
}

func (m *memRepo) FindPaymentByID(_ context.Context, id uuid.UUID) (*domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return nil, domain.NewNotFoundError("payment", id)
	}
	copy := *p
	return &copy, nil
}

func (m *memRepo) ListPayments(_ context.Context) ([]domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Payment
	for _, p := range m.payments {
		out = append(out, *p)
	}
	return out, nil
}

func (m *memRepo) ListPaymentsByContract(_ context.Context, contractID uuid.UUID) ([]domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Payment
	for _, p := range m.payments {
		if p.ContractID == contractID {
			out = append(out, *p)
		}
	}
	return out, nil
}

// expireLocked applies the expiration rule to one stored contract. Called with
// the mutex held.
func (m *memRepo) expireLocked(id uuid.UUID, now time.Time) (*domain.Contract, bool, error) {
	contract, err := m.loadContract(id)
	if err != nil {
		return nil, false, err
	}
	if !contract.ShouldExpire(now) {
		return nil, false, nil
	}
	contract.Expire(now)
	m.contracts[id].Status = domain.ContractStatusExpired
	m.contracts[id].UpdatedAt = now
	for i := range contract.Payments {
		p := contract.Payments[i]
		if p.Status == domain.PaymentStatusRefunded {
			m.payments[p.ID].Status = domain.PaymentStatusRefunded
			m.payments[p.ID].RefundedAt = p.RefundedAt
		}
	}
	return contract, true, nil
}

func (m *memRepo) ExpireOverdueContracts(_ context.Context, now time.Time) ([]domain.Contract, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var expired []domain.Contract
	for id := range m.contracts {
		c, ok, err := m.expireLocked(id, now)
		if err != nil {
			return nil, err
		}
		if ok {
			expired = append(expired, *c)
		}
	}
	return expired, nil
}

func (m *memRepo) ExpireContract(_ context.Context, contractID uuid.UUID, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok, err := m.expireLocked(contractID, now)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return ok, nil
}

func (m *memRepo) SumSignedContractRevenue(_ context.Context, systemID *uuid.UUID) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total float64
	for _, c := range m.contracts {
		if c.Status != domain.ContractStatusSigned {
			continue
		}
		if systemID != nil && c.SoftwareSystemID != *systemID {
			continue
		}
		total += c.FinalPrice
	}
	return total, nil
}

func (m *memRepo) SumCompletedPaymentsOnCreatedContracts(_ context.Context, systemID *uuid.UUID) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total float64
	for _, p := range m.payments {
		if p.Status != domain.PaymentStatusCompleted {
			continue
		}
		c, ok := m.contracts[p.ContractID]
		if !ok || c.Status != domain.ContractStatusCreated {
			continue
		}
		if systemID != nil && c.SoftwareSystemID != *systemID {
			continue
		}
		total += p.Amount
	}
	return total, nil
}

func (m *memRepo) SumActiveContractValue(_ context.Context, systemID *uuid.UUID) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total float64
	for _, c := range m.contracts {
		if c.Status != domain.ContractStatusCreated && c.Status != domain.ContractStatusSigned {
			continue
		}
		if systemID != nil && c.SoftwareSystemID != *systemID {
			continue
		}
		total += c.FinalPrice
	}
	return total, nil
}

// recordingPublisher captures published events for assertions.
type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

type publishedEvent struct {
	Exchange   string
	RoutingKey string
	Body       interface{}
}

func (p *recordingPublisher) Publish(_ context.Context, exchange, routingKey string, body interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{Exchange: exchange, RoutingKey: routingKey, Body: body})
	return nil
}

func (p *recordingPublisher) Close() {}

func (p *recordingPublisher) keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.RoutingKey)
	}
	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(t *testing.T, repo store.Repository) (*Service, *recordingPublisher) {
	t.Helper()
	pub := &recordingPublisher{}
	converter := NewConverter(staticRates{}, DefaultRateTTL, testLogger())
	return NewService(repo, converter, pub, testLogger()), pub
}

// staticRates is a RateSource that always succeeds with a fixed table.
type staticRates struct{}

func (staticRates) FetchRates(context.Context) (map[string]float64, error) {
	return map[string]float64{"USD": 0.25, "EUR": 0.20}, nil
}
