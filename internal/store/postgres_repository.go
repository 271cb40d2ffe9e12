/**
 * @description
 * PostgreSQL implementation of the `Repository` interface. Ledger and lifecycle
 * operations run inside a single transaction and take a `FOR UPDATE` lock on the
 * contract row, so two concurrent payments for the same contract can never both
 * pass the remaining-amount check before either commits.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: PostgreSQL driver and transactions.
 * - internal/domain: Domain models and the pure rules evaluated on locked snapshots.
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/licensio/contract-service/internal/domain"
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const contractColumns = `
	id, client_id, client_type, software_system_id, software_version,
	start_date, end_date, support_years, base_price, final_price,
	applied_discount_percentage, applied_discount_amount, applied_discount_id,
	is_returning_client_discount_applied, returning_client_discount_amount,
	status, created_at, updated_at`

const paymentColumns = `
	id, contract_id, amount, method, status, COALESCE(note, ''),
	created_at, completed_at, failed_at, refunded_at`

func scanContract(row pgx.Row, c *domain.Contract) error {
	return row.Scan(
		&c.ID, &c.ClientID, &c.ClientType, &c.SoftwareSystemID, &c.SoftwareVersion,
		&c.StartDate, &c.EndDate, &c.SupportYears, &c.BasePrice, &c.FinalPrice,
		&c.AppliedDiscountPercentage, &c.AppliedDiscountAmount, &c.AppliedDiscountID,
		&c.IsReturningClientDiscountApplied, &c.ReturningClientDiscountAmount,
		&c.Status, &c.CreatedAt, &c.UpdatedAt,
	)
}

func scanPayment(row pgx.Row, p *domain.Payment) error {
	return row.Scan(
		&p.ID, &p.ContractID, &p.Amount, &p.Method, &p.Status, &p.Note,
		&p.CreatedAt, &p.CompletedAt, &p.FailedAt, &p.RefundedAt,
	)
}

// ClientExists checks the client registry tables owned by the client-management
// surface. Soft-deleted individual clients do not count.
func (r *PostgresRepository) ClientExists(ctx context.Context, clientID uuid.UUID, clientType string) (bool, error) {
	var query string
	switch clientType {
	case domain.ClientTypeIndividual:
		query = `SELECT EXISTS(SELECT 1 FROM individual_clients WHERE id = $1 AND NOT is_deleted)`
	case domain.ClientTypeCompany:
		query = `SELECT EXISTS(SELECT 1 FROM company_clients WHERE id = $1)`
	default:
		return false, nil
	}
	var exists bool
	if err := r.db.QueryRow(ctx, query, clientID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// FindSoftwareSystemByID retrieves a software system from the catalog.
func (r *PostgresRepository) FindSoftwareSystemByID(ctx context.Context, id uuid.UUID) (*domain.SoftwareSystem, error) {
	var s domain.SoftwareSystem
	query := `
		SELECT id, name, current_version, category, pricing_type, upfront_price, subscription_price
		FROM software_systems
		WHERE id = $1`
	err := r.db.QueryRow(ctx, query, id).Scan(
		&s.ID, &s.Name, &s.CurrentVersion, &s.Category, &s.PricingType,
		&s.UpfrontPrice, &s.SubscriptionPrice,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("software system", id)
		}
		return nil, err
	}
	return &s, nil
}

// FindBestActiveUpfrontDiscount selects the highest-percentage discount that is
// active now and applies to upfront pricing for the given system. A discount
// with a NULL software_system_id applies to every system.
func (r *PostgresRepository) FindBestActiveUpfrontDiscount(ctx context.Context, systemID uuid.UUID, now time.Time) (*domain.Discount, error) {
	var d domain.Discount
	query := `
		SELECT id, name, percentage_value, kind, start_date, end_date, is_active, software_system_id
		FROM discounts
		WHERE (software_system_id = $1 OR software_system_id IS NULL)
		  AND is_active
		  AND kind IN ('upfront', 'both')
		  AND start_date <= $2
		  AND end_date >= $2
		ORDER BY percentage_value DESC
		LIMIT 1`
	err := r.db.QueryRow(ctx, query, systemID, now).Scan(
		&d.ID, &d.Name, &d.PercentageValue, &d.Kind,
		&d.StartDate, &d.EndDate, &d.IsActive, &d.SoftwareSystemID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &d, nil
}

// CreateContract inserts a freshly priced contract.
func (r *PostgresRepository) CreateContract(ctx context.Context, c *domain.Contract) error {
	query := `
		INSERT INTO contracts (
			id, client_id, client_type, software_system_id, software_version,
			start_date, end_date, support_years, base_price, final_price,
			applied_discount_percentage, applied_discount_amount, applied_discount_id,
			is_returning_client_discount_applied, returning_client_discount_amount,
			status, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`
	_, err := r.db.Exec(ctx, query,
		c.ID, c.ClientID, c.ClientType, c.SoftwareSystemID, c.SoftwareVersion,
		c.StartDate, c.EndDate, c.SupportYears, c.BasePrice, c.FinalPrice,
		c.AppliedDiscountPercentage, c.AppliedDiscountAmount, c.AppliedDiscountID,
		c.IsReturningClientDiscountApplied, c.ReturningClientDiscountAmount,
		c.Status, c.CreatedAt, c.UpdatedAt,
	)
	return err
}

func (r *PostgresRepository) findContract(ctx context.Context, q querier, id uuid.UUID, forUpdate bool) (*domain.Contract, error) {
	query := `SELECT ` + contractColumns + ` FROM contracts WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var c domain.Contract
	if err := scanContract(q.QueryRow(ctx, query, id), &c); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("contract", id)
		}
		return nil, err
	}
	payments, err := r.findPaymentsByContract(ctx, q, id)
	if err != nil {
		return nil, err
	}
	c.Payments = payments
	return &c, nil
}

func (r *PostgresRepository) findPaymentsByContract(ctx context.Context, q querier, contractID uuid.UUID) ([]domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE contract_id = $1 ORDER BY created_at`
	rows, err := q.Query(ctx, query, contractID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []domain.Payment
	for rows.Next() {
		var p domain.Payment
		if err := scanPayment(rows, &p); err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// FindContractByID loads a contract together with its payment ledger.
func (r *PostgresRepository) FindContractByID(ctx context.Context, id uuid.UUID) (*domain.Contract, error) {
	return r.findContract(ctx, r.db, id, false)
}

// ListContracts loads all contracts with their ledgers.
func (r *PostgresRepository) ListContracts(ctx context.Context) ([]domain.Contract, error) {
	rows, err := r.db.Query(ctx, `SELECT `+contractColumns+` FROM contracts ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contracts []domain.Contract
	for rows.Next() {
		var c domain.Contract
		if err := scanContract(rows, &c); err != nil {
			return nil, err
		}
		contracts = append(contracts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range contracts {
		payments, err := r.findPaymentsByContract(ctx, r.db, contracts[i].ID)
		if err != nil {
			return nil, err
		}
		contracts[i].Payments = payments
	}
	return contracts, nil
}

// HasActiveContract reports whether the client already holds a created or signed
// contract for the software system.
func (r *PostgresRepository) HasActiveContract(ctx context.Context, clientID uuid.UUID, clientType string, systemID uuid.UUID) (bool, error) {
	var exists bool
	query := `
		SELECT EXISTS(
			SELECT 1 FROM contracts
			WHERE client_id = $1 AND client_type = $2 AND software_system_id = $3
			  AND status IN ('created', 'signed')
		)`
	if err := r.db.QueryRow(ctx, query, clientID, clientType, systemID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// HasSignedContract reports whether the client holds a signed contract for any
// software system. This is the returning-client check.
func (r *PostgresRepository) HasSignedContract(ctx context.Context, clientID uuid.UUID, clientType string) (bool, error) {
	var exists bool
	query := `
		SELECT EXISTS(
			SELECT 1 FROM contracts
			WHERE client_id = $1 AND client_type = $2 AND status = 'signed'
		)`
	if err := r.db.QueryRow(ctx, query, clientID, clientType).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func insertPayment(ctx context.Context, tx pgx.Tx, p *domain.Payment) error {
	query := `
		INSERT INTO payments (
			id, contract_id, amount, method, status, note,
			created_at, completed_at, failed_at, refunded_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`
	_, err := tx.Exec(ctx, query,
		p.ID, p.ContractID, p.Amount, p.Method, p.Status, p.Note,
		p.CreatedAt, p.CompletedAt, p.FailedAt, p.RefundedAt,
	)
	return err
}

func markContractStatus(ctx context.Context, tx pgx.Tx, contractID uuid.UUID, status domain.ContractStatus, now time.Time) error {
	_, err := tx.Exec(ctx,
		`UPDATE contracts SET status = $2, updated_at = $3 WHERE id = $1`,
		contractID, status, now,
	)
	return err
}

// RecordPayment validates and records an immediately-completed payment in one
// transaction, promoting the contract to signed when the ledger reaches the
// final price.
func (r *PostgresRepository) RecordPayment(ctx context.Context, contractID uuid.UUID, amount float64, method string, now time.Time) (*PaymentResult, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	contract, err := r.findContract(ctx, tx, contractID, true)
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
	if err := insertPayment(ctx, tx, payment); err != nil {
		return nil, fmt.Errorf("failed to insert payment: %w", err)
	}

	contract.Payments = append(contract.Payments, *payment)
	promoted := contract.Promote()
	if promoted {
		if err := markContractStatus(ctx, tx, contractID, domain.ContractStatusSigned, now); err != nil {
			return nil, fmt.Errorf("failed to promote contract: %w", err)
		}
		contract.UpdatedAt = now
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit payment: %w", err)
	}
	return &PaymentResult{Payment: payment, Contract: contract, Promoted: promoted}, nil
}

// CreatePendingPayment records a payment as pending for the two-phase gateway
// flow. The same acceptance rules apply but the contract status is untouched.
func (r *PostgresRepository) CreatePendingPayment(ctx context.Context, contractID uuid.UUID, amount float64, method string, now time.Time) (*domain.Payment, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	contract, err := r.findContract(ctx, tx, contractID, true)
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
	if err := insertPayment(ctx, tx, payment); err != nil {
		return nil, fmt.Errorf("failed to insert pending payment: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit pending payment: %w", err)
	}
	return payment, nil
}

// SettlePayment finalizes a pending payment. A completed settlement re-runs the
// full-payment check and may promote the contract, exactly like RecordPayment.
// The contract row is locked before the payment row so settlements and direct
// payments take locks in the same order.
func (r *PostgresRepository) SettlePayment(ctx context.Context, paymentID uuid.UUID, status domain.PaymentStatus, note string, now time.Time) (*PaymentResult, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var contractID uuid.UUID
	err = tx.QueryRow(ctx, `SELECT contract_id FROM payments WHERE id = $1`, paymentID).Scan(&contractID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("payment", paymentID)
		}
		return nil, err
	}

	contract, err := r.findContract(ctx, tx, contractID, true)
	if err != nil {
		return nil, err
	}

	var payment *domain.Payment
	for i := range contract.Payments {
		if contract.Payments[i].ID == paymentID {
			payment = &contract.Payments[i]
			break
		}
	}
	if payment == nil {
		return nil, domain.NewNotFoundError("payment", paymentID)
	}

	if err := payment.Settle(status, note, now); err != nil {
		return nil, err
	}

	query := `
		UPDATE payments
		SET status = $2, note = $3, completed_at = $4, failed_at = $5, refunded_at = $6
		WHERE id = $1`
	if _, err := tx.Exec(ctx, query,
		payment.ID, payment.Status, payment.Note,
		payment.CompletedAt, payment.FailedAt, payment.RefundedAt,
	); err != nil {
		return nil, fmt.Errorf("failed to settle payment: %w", err)
	}

	promoted := false
	if status == domain.PaymentStatusCompleted {
		promoted = contract.Promote()
		if promoted {
			if err := markContractStatus(ctx, tx, contract.ID, domain.ContractStatusSigned, now); err != nil {
				return nil, fmt.Errorf("failed to promote contract: %w", err)
			}
			contract.UpdatedAt = now
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit settlement: %w", err)
	}
	return &PaymentResult{Payment: payment, Contract: contract, Promoted: promoted}, nil
}

// FindPaymentByID retrieves a single payment.
func (r *PostgresRepository) FindPaymentByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	var p domain.Payment
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`
	if err := scanPayment(r.db.QueryRow(ctx, query, id), &p); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("payment", id)
		}
		return nil, err
	}
	return &p, nil
}

// ListPayments retrieves every payment in the ledger.
func (r *PostgresRepository) ListPayments(ctx context.Context) ([]domain.Payment, error) {
	rows, err := r.db.Query(ctx, `SELECT `+paymentColumns+` FROM payments ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []domain.Payment
	for rows.Next() {
		var p domain.Payment
		if err := scanPayment(rows, &p); err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// ListPaymentsByContract retrieves the ledger for one contract.
func (r *PostgresRepository) ListPaymentsByContract(ctx context.Context, contractID uuid.UUID) ([]domain.Payment, error) {
	return r.findPaymentsByContract(ctx, r.db, contractID)
}

func expireContractTx(ctx context.Context, tx pgx.Tx, contract *domain.Contract, now time.Time) error {
	contract.Expire(now)
	if err := markContractStatus(ctx, tx, contract.ID, domain.ContractStatusExpired, now); err != nil {
		return fmt.Errorf("failed to mark contract expired: %w", err)
	}
	_, err := tx.Exec(ctx, `
		UPDATE payments
		SET status = 'refunded', refunded_at = $2
		WHERE contract_id = $1 AND status = 'completed'`,
		contract.ID, now,
	)
	if err != nil {
		return fmt.Errorf("failed to refund payments: %w", err)
	}
	return nil
}

// ExpireOverdueContracts expires every created contract past its end date that is
// not fully paid, refunding its completed payments, all in one transaction. The
// status filter makes repeated sweeps no-ops for already-expired contracts.
func (r *PostgresRepository) ExpireOverdueContracts(ctx context.Context, now time.Time) ([]domain.Contract, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT id FROM contracts
		WHERE status = 'created' AND end_date < $1
		ORDER BY end_date
		FOR UPDATE`,
		now,
	)
	if err != nil {
		return nil, err
	}
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var expired []domain.Contract
	for _, id := range ids {
		contract, err := r.findContract(ctx, tx, id, false)
		if err != nil {
			return nil, err
		}
		if !contract.ShouldExpire(now) {
			continue
		}
		if err := expireContractTx(ctx, tx, contract, now); err != nil {
			return nil, err
		}
		expired = append(expired, *contract)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit expiration sweep: %w", err)
	}
	return expired, nil
}

// ExpireContract applies the expiration rule to a single contract. It returns
// false without error when the contract is missing, not created, not yet past
// its end date, or already fully paid.
func (r *PostgresRepository) ExpireContract(ctx context.Context, contractID uuid.UUID, now time.Time) (bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	contract, err := r.findContract(ctx, tx, contractID, true)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if !contract.ShouldExpire(now) {
		return false, nil
	}
	if err := expireContractTx(ctx, tx, contract, now); err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit expiration: %w", err)
	}
	return true, nil
}

// SumSignedContractRevenue sums the final prices of signed contracts.
func (r *PostgresRepository) SumSignedContractRevenue(ctx context.Context, systemID *uuid.UUID) (float64, error) {
	query := `SELECT COALESCE(SUM(final_price), 0) FROM contracts WHERE status = 'signed'`
	args := []any{}
	if systemID != nil {
		query += ` AND software_system_id = $1`
		args = append(args, *systemID)
	}
	var total float64
	if err := r.db.QueryRow(ctx, query, args...).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

// SumActiveContractValue sums the final prices of created and signed contracts.
// This is the optimistic projection that assumes every open contract gets paid.
func (r *PostgresRepository) SumActiveContractValue(ctx context.Context, systemID *uuid.UUID) (float64, error) {
	query := `SELECT COALESCE(SUM(final_price), 0) FROM contracts WHERE status IN ('created', 'signed')`
	args := []any{}
	if systemID != nil {
		query += ` AND software_system_id = $1`
		args = append(args, *systemID)
	}
	var total float64
	if err := r.db.QueryRow(ctx, query, args...).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

// SumCompletedPaymentsOnCreatedContracts sums completed payments held against
// contracts still in the created state.
func (r *PostgresRepository) SumCompletedPaymentsOnCreatedContracts(ctx context.Context, systemID *uuid.UUID) (float64, error) {
	query := `
		SELECT COALESCE(SUM(p.amount), 0)
		FROM payments p
		JOIN contracts c ON c.id = p.contract_id
		WHERE p.status = 'completed' AND c.status = 'created'`
	args := []any{}
	if systemID != nil {
		query += ` AND c.software_system_id = $1`
		args = append(args, *systemID)
	}
	var total float64
	if err := r.db.QueryRow(ctx, query, args...).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}
