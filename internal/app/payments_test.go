package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/licensio/contract-service/internal/domain"
)

func seedContract(t *testing.T, repo *memRepo, finalPrice float64, endDate time.Time) *domain.Contract {
	t.Helper()
	c := &domain.Contract{
		ID:               uuid.New(),
		ClientID:         uuid.New(),
		ClientType:       domain.ClientTypeCompany,
		SoftwareSystemID: uuid.New(),
		SoftwareVersion:  "4.2",
		StartDate:        endDate.Add(-10 * 24 * time.Hour),
		EndDate:          endDate,
		SupportYears:     1,
		BasePrice:        finalPrice,
		FinalPrice:       finalPrice,
		Status:           domain.ContractStatusCreated,
		CreatedAt:        time.Now(),
		UpdatedAt:        time.Now(),
	}
	if err := repo.CreateContract(context.Background(), c); err != nil {
		t.Fatalf("seed contract: %v", err)
	}
	return c
}

func TestRecordPayment_LedgerAndPromotion(t *testing.T) {
	repo := newMemRepo()
	svc, pub := newTestService(t, repo)
	contract := seedContract(t, repo, 3000, time.Now().Add(5*24*time.Hour))
	ctx := context.Background()

	// Partial payment: accepted, no promotion.
	res, err := svc.RecordPayment(ctx, domain.RecordPaymentRequest{
		ContractID: contract.ID, Amount: 2500, Method: "transfer",
	})
	if err != nil {
		t.Fatalf("partial payment rejected: %v", err)
	}
	if res.Promoted {
		t.Fatal("partial payment must not promote")
	}
	if got := res.Contract.Remaining(); got != 500 {
		t.Fatalf("remaining = %v, want 500", got)
	}

	// Overpayment against the remaining 500 is a conflict.
	if _, err := svc.RecordPayment(ctx, domain.RecordPaymentRequest{
		ContractID: contract.ID, Amount: 1000, Method: "transfer",
	}); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict on overpayment, got %v", err)
	}

	// Exact remaining completes the ledger and promotes.
	res, err = svc.RecordPayment(ctx, domain.RecordPaymentRequest{
		ContractID: contract.ID, Amount: 500, Method: "card",
	})
	if err != nil {
		t.Fatalf("final payment rejected: %v", err)
	}
	if !res.Promoted {
		t.Fatal("expected promotion on full payment")
	}
	if res.Contract.Status != domain.ContractStatusSigned {
		t.Fatalf("contract status = %s, want signed", res.Contract.Status)
	}

	stored, err := repo.FindContractByID(ctx, contract.ID)
	if err != nil {
		t.Fatalf("reload contract: %v", err)
	}
	if stored.Status != domain.ContractStatusSigned {
		t.Fatalf("persisted status = %s, want signed", stored.Status)
	}

	keys := pub.keys()
	var recorded, signed int
	for _, k := range keys {
		switch k {
		case "payment.recorded":
			recorded++
		case "contract.signed":
			signed++
		}
	}
	if recorded != 2 || signed != 1 {
		t.Fatalf("published events = %v, want 2x payment.recorded and 1x contract.signed", keys)
	}
}

func TestRecordPayment_ValidatesInput(t *testing.T) {
	repo := newMemRepo()
	svc, _ := newTestService(t, repo)
	contract := seedContract(t, repo, 3000, time.Now().Add(5*24*time.Hour))

	if _, err := svc.RecordPayment(context.Background(), domain.RecordPaymentRequest{
		ContractID: contract.ID, Amount: 0, Method: "transfer",
	}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for zero amount, got %v", err)
	}
	if _, err := svc.RecordPayment(context.Background(), domain.RecordPaymentRequest{
		ContractID: contract.ID, Amount: 100, Method: "",
	}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for missing method, got %v", err)
	}
}

func TestRecordPayment_UnknownContract(t *testing.T) {
	repo := newMemRepo()
	svc, _ := newTestService(t, repo)

	_, err := svc.RecordPayment(context.Background(), domain.RecordPaymentRequest{
		ContractID: uuid.New(), Amount: 100, Method: "transfer",
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestTwoPhaseSettlementFlow(t *testing.T) {
	repo := newMemRepo()
	svc, pub := newTestService(t, repo)
	contract := seedContract(t, repo, 3000, time.Now().Add(5*24*time.Hour))
	ctx := context.Background()

	pending, err := svc.CreatePendingPayment(ctx, domain.RecordPaymentRequest{
		ContractID: contract.ID, Amount: 3000, Method: "gateway",
	})
	if err != nil {
		t.Fatalf("pending payment rejected: %v", err)
	}
	if pending.Status != domain.PaymentStatusPending {
		t.Fatalf("status = %s, want pending", pending.Status)
	}

	// The pending payment does not count yet.
	loaded, err := repo.FindContractByID(ctx, contract.ID)
	if err != nil {
		t.Fatalf("reload contract: %v", err)
	}
	if paid := loaded.TotalPaid(); paid != 0 {
		t.Fatalf("TotalPaid = %v before settlement, want 0", paid)
	}

	res, err := svc.SettlePayment(ctx, pending.ID, domain.SettlePaymentRequest{
		Status: domain.PaymentStatusCompleted, Note: "gateway confirmed",
	})
	if err != nil {
		t.Fatalf("settlement failed: %v", err)
	}
	if !res.Promoted {
		t.Fatal("completed settlement of the full amount must promote")
	}

	// Settling twice is a conflict.
	if _, err := svc.SettlePayment(ctx, pending.ID, domain.SettlePaymentRequest{
		Status: domain.PaymentStatusFailed,
	}); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict on double settlement, got %v", err)
	}

	found := false
	for _, k := range pub.keys() {
		if k == "contract.signed" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected contract.signed event after settlement")
	}
}

func TestSettlePayment_FailedDoesNotPromote(t *testing.T) {
	repo := newMemRepo()
	svc, _ := newTestService(t, repo)
	contract := seedContract(t, repo, 3000, time.Now().Add(5*24*time.Hour))
	ctx := context.Background()

	pending, err := svc.CreatePendingPayment(ctx, domain.RecordPaymentRequest{
		ContractID: contract.ID, Amount: 3000, Method: "gateway",
	})
	if err != nil {
		t.Fatalf("pending payment rejected: %v", err)
	}

	res, err := svc.SettlePayment(ctx, pending.ID, domain.SettlePaymentRequest{
		Status: domain.PaymentStatusFailed, Note: "card declined",
	})
	if err != nil {
		t.Fatalf("settlement failed: %v", err)
	}
	if res.Promoted {
		t.Fatal("failed settlement must not promote")
	}
	if res.Payment.FailedAt == nil {
		t.Fatal("failed settlement must stamp FailedAt")
	}

	loaded, _ := repo.FindContractByID(ctx, contract.ID)
	if loaded.Status != domain.ContractStatusCreated {
		t.Fatalf("contract status = %s, want created", loaded.Status)
	}
}
