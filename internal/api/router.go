/**
 * @description
 * This file sets up the HTTP router for the deal-service. It defines the API
 * endpoints, associates them with their corresponding handlers, and applies
 * middleware for logging, panic recovery, CORS, and authentication.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 * - github.com/go-chi/cors: CORS middleware for browser clients.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// DealRoutes creates and returns a new router for the deal service.
func DealRoutes(h *DealHandlers, jwksURL string) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Public platform parameters
	r.Get("/platform", h.PlatformInfoHandler)

	// Group routes that require authentication.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(jwksURL))

		r.Post("/deals", h.CreateDealHandler)
		r.Get("/deals", h.ListDealsHandler)
		r.Get("/deals/{dealID}", h.GetDealHandler)
		r.Post("/deals/{dealID}/fund", h.FundDealHandler)
		r.Post("/deals/{dealID}/content", h.SubmitContentHandler)
		r.Post("/deals/{dealID}/approve", h.ApproveDealHandler)
		r.Post("/deals/{dealID}/dispute", h.DisputeDealHandler)
		r.Post("/deals/{dealID}/resolve", h.ResolveDisputeHandler)
		r.Post("/deals/{dealID}/cancel", h.CancelDealHandler)
		r.Post("/deals/{dealID}/emergency-cancel", h.EmergencyCancelDealHandler)

		// Audit log reads
		r.Get("/deals/{dealID}/audit", h.DealAuditHandler)
		r.Get("/audit", h.SearchAuditHandler)
		r.Get("/audit/entries/{entryID}", h.GetAuditEntryHandler)
		r.Get("/audit/actors/{actorID}", h.ActorAuditHandler)
		r.Get("/audit/actions/{action}", h.ActionAuditHandler)

		// Diagnostics
		r.Get("/scheduler/deals", h.ScheduledDealsHandler)
	})

	return r
}
