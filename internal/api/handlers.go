/**
 * @description
 * This file contains the HTTP handlers for the contract-service's API endpoints.
 * Handlers are responsible for parsing incoming requests, calling the appropriate
 * methods on the application service, and writing the HTTP response. They act as the
 * bridge between the web layer and the business logic layer.
 *
 * Error mapping is uniform: validation and configuration problems are 400, unknown
 * records are 404, business-rule rejections are 409, throttled payment submission
 * is 429, and an exhausted rate provider is 503.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - github.com/go-chi/chi/v5: URL parameter extraction.
 * - internal/app, internal/domain: For service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/licensio/contract-service/internal/app"
	"github.com/licensio/contract-service/internal/domain"
)

const paymentRateLimitScope = "payment_submission"

// ContractHandlers holds the application service that handlers will use.
type ContractHandlers struct {
	service            *app.Service
	limiter            app.RateLimiter
	paymentLimitPerMin int
}

// NewContractHandlers creates a new instance of ContractHandlers.
func NewContractHandlers(service *app.Service, limiter app.RateLimiter, paymentLimitPerMin int) *ContractHandlers {
	return &ContractHandlers{
		service:            service,
		limiter:            limiter,
		paymentLimitPerMin: paymentLimitPerMin,
	}
}

func (h *ContractHandlers) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("level=error component=api msg=\"failed to encode response\" err=%v", err)
	}
}

func (h *ContractHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// writeDomainError maps the domain error taxonomy onto HTTP status codes.
func (h *ContractHandlers) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrConfiguration), errors.Is(err, domain.ErrUnsupportedCurrency):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrUpstreamUnavailable):
		h.writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		log.Printf("level=error component=api msg=\"unhandled service error\" err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func parseIDParam(r *http.Request, name string) (uuid.UUID, error) {
	raw := chi.URLParam(r, name)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, domain.NewValidationErrorf("invalid %s: %q", name, raw)
	}
	return id, nil
}

// checkPaymentRateLimit throttles payment submission per contract. A Redis
// failure degrades to allowing the request; throttling is protection, not a
// correctness guarantee.
func (h *ContractHandlers) checkPaymentRateLimit(w http.ResponseWriter, r *http.Request, contractID uuid.UUID) bool {
	if h.limiter == nil || h.paymentLimitPerMin <= 0 {
		return true
	}
	count, retryAfter, err := h.limiter.ConsumeRateLimit(
		r.Context(), paymentRateLimitScope, contractID.String(), h.paymentLimitPerMin, time.Minute)
	if err != nil {
		log.Printf("level=warn component=api msg=\"rate limiter unavailable; allowing request\" err=%v", err)
		return true
	}
	if count > h.paymentLimitPerMin {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		h.writeError(w, http.StatusTooManyRequests, "Too many payment attempts for this contract. Please retry later.")
		return false
	}
	return true
}

// CreateContractHandler handles requests to create a new contract.
func (h *ContractHandlers) CreateContractHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateContractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("level=warn component=api endpoint=create_contract outcome=reject reason=invalid_json err=%v", err)
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	contract, err := h.service.CreateContract(r.Context(), req)
	if err != nil {
		log.Printf("level=warn component=api endpoint=create_contract outcome=failed client_id=%s err=%v", req.ClientID, err)
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, contract)
}

// GetContractHandler returns one contract with its payment ledger.
func (h *ContractHandlers) GetContractHandler(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "contractID")
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	contract, err := h.service.GetContract(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, contract)
}

// ListContractsHandler returns all contracts.
func (h *ContractHandlers) ListContractsHandler(w http.ResponseWriter, r *http.Request) {
	contracts, err := h.service.ListContracts(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, contracts)
}

// RecordPaymentHandler records an immediately-completed payment on a contract.
func (h *ContractHandlers) RecordPaymentHandler(w http.ResponseWriter, r *http.Request) {
	contractID, err := parseIDParam(r, "contractID")
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if !h.checkPaymentRateLimit(w, r, contractID) {
		return
	}

	var req domain.RecordPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	req.ContractID = contractID

	result, err := h.service.RecordPayment(r.Context(), req)
	if err != nil {
		log.Printf("level=warn component=api endpoint=record_payment outcome=failed contract_id=%s err=%v", contractID, err)
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"payment":         result.Payment,
		"contract_status": result.Contract.Status,
		"remaining":       domain.Round2(result.Contract.Remaining()),
		"promoted":        result.Promoted,
	})
}

// CreatePendingPaymentHandler opens a two-phase payment for gateway settlement.
func (h *ContractHandlers) CreatePendingPaymentHandler(w http.ResponseWriter, r *http.Request) {
	contractID, err := parseIDParam(r, "contractID")
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if !h.checkPaymentRateLimit(w, r, contractID) {
		return
	}

	var req domain.RecordPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	req.ContractID = contractID

	payment, err := h.service.CreatePendingPayment(r.Context(), req)
	if err != nil {
		log.Printf("level=warn component=api endpoint=create_pending_payment outcome=failed contract_id=%s err=%v", contractID, err)
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, payment)
}

// SettlePaymentHandler settles a pending payment.
func (h *ContractHandlers) SettlePaymentHandler(w http.ResponseWriter, r *http.Request) {
	paymentID, err := parseIDParam(r, "paymentID")
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	var req domain.SettlePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	result, err := h.service.SettlePayment(r.Context(), paymentID, req)
	if err != nil {
		log.Printf("level=warn component=api endpoint=settle_payment outcome=failed payment_id=%s err=%v", paymentID, err)
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"payment":         result.Payment,
		"contract_status": result.Contract.Status,
		"promoted":        result.Promoted,
	})
}

// GetPaymentHandler returns one payment.
func (h *ContractHandlers) GetPaymentHandler(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "paymentID")
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	payment, err := h.service.GetPayment(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, payment)
}

// ListPaymentsHandler returns the full payment ledger.
func (h *ContractHandlers) ListPaymentsHandler(w http.ResponseWriter, r *http.Request) {
	payments, err := h.service.ListPayments(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, payments)
}

// ListContractPaymentsHandler returns the ledger for one contract.
func (h *ContractHandlers) ListContractPaymentsHandler(w http.ResponseWriter, r *http.Request) {
	contractID, err := parseIDParam(r, "contractID")
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	payments, err := h.service.ListContractPayments(r.Context(), contractID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, payments)
}

// ExpireContractHandler applies the expiration rule to a single contract.
func (h *ContractHandlers) ExpireContractHandler(w http.ResponseWriter, r *http.Request) {
	contractID, err := parseIDParam(r, "contractID")
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	expired, err := h.service.ExpireContract(r.Context(), contractID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]bool{"expired": expired})
}

// SweepHandler triggers one expiration sweep on demand.
func (h *ContractHandlers) SweepHandler(w http.ResponseWriter, r *http.Request) {
	count, err := h.service.ExpireOverdueContracts(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]int{"expired": count})
}

// GetRateHandler returns the current PLN exchange rate for one currency.
func (h *ContractHandlers) GetRateHandler(w http.ResponseWriter, r *http.Request) {
	currency := chi.URLParam(r, "currency")
	rate, err := h.service.GetRate(r.Context(), currency)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rate)
}

func revenueQuery(r *http.Request) (*uuid.UUID, string, error) {
	currency := r.URL.Query().Get("currency")
	raw := r.URL.Query().Get("software_system_id")
	if raw == "" {
		return nil, currency, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, "", domain.NewValidationErrorf("invalid software_system_id: %q", raw)
	}
	return &id, currency, nil
}

// CurrentRevenueHandler reports recognized revenue, optionally filtered and converted.
func (h *ContractHandlers) CurrentRevenueHandler(w http.ResponseWriter, r *http.Request) {
	systemID, currency, err := revenueQuery(r)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	report, err := h.service.CurrentRevenue(r.Context(), systemID, currency)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

// PredictedRevenueHandler reports projected revenue, optionally filtered and converted.
func (h *ContractHandlers) PredictedRevenueHandler(w http.ResponseWriter, r *http.Request) {
	systemID, currency, err := revenueQuery(r)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	report, err := h.service.PredictedRevenue(r.Context(), systemID, currency)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}
