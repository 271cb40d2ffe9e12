/**
 * @description
 * This file sets up the HTTP router for the contract-service. It defines the API
 * endpoints, associates them with their corresponding handlers, and applies any
 * necessary middleware, such as for authentication.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// ContractRoutes creates and returns a new router for the contract service.
func ContractRoutes(h *ContractHandlers, jwtSecret string) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Group routes that require authentication.
	r.Group(func(r chi.Router) {
		r.Use(JWTAuthMiddleware(jwtSecret))

		// Contract endpoints
		r.Post("/contracts", h.CreateContractHandler)
		r.Get("/contracts", h.ListContractsHandler)
		r.Get("/contracts/{contractID}", h.GetContractHandler)
		r.Post("/contracts/{contractID}/expire", h.ExpireContractHandler)

		// Payment endpoints
		r.Get("/contracts/{contractID}/payments", h.ListContractPaymentsHandler)
		r.Post("/contracts/{contractID}/payments", h.RecordPaymentHandler)
		r.Post("/contracts/{contractID}/payments/pending", h.CreatePendingPaymentHandler)
		r.Get("/payments", h.ListPaymentsHandler)
		r.Get("/payments/{paymentID}", h.GetPaymentHandler)
		r.Post("/payments/{paymentID}/settle", h.SettlePaymentHandler)

		// Maintenance and reporting endpoints
		r.Post("/maintenance/expiration-sweep", h.SweepHandler)
		r.Get("/revenue/current", h.CurrentRevenueHandler)
		r.Get("/revenue/predicted", h.PredictedRevenueHandler)
		r.Get("/rates/{currency}", h.GetRateHandler)
	})

	return r
}
