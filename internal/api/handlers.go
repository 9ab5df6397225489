/**
 * @description
 * This file contains the HTTP handlers for the deal-service's API endpoints.
 * Handlers are responsible for parsing incoming requests, calling the
 * appropriate methods on the coordinator, and writing the HTTP response. The
 * coordinator has already normalized every failure into the application
 * error taxonomy, so error translation here is a single kind-to-status
 * mapping.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/apperr, internal/domain: Coordinator, error taxonomy, models.
 */

package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Geekz-Wit-Attitudes/etharis-sub000/internal/actor"
	"github.com/Geekz-Wit-Attitudes/etharis-sub000/internal/app"
	"github.com/Geekz-Wit-Attitudes/etharis-sub000/internal/apperr"
	"github.com/Geekz-Wit-Attitudes/etharis-sub000/internal/domain"
)

// DealHandlers holds the coordinator and audit reader that handlers use.
type DealHandlers struct {
	service *app.Service
	audits  AuditReader
}

// AuditReader is the read-side of the audit log exposed over HTTP.
type AuditReader interface {
	Entry(ctx context.Context, id uuid.UUID) (*domain.AuditLogEntry, error)
	ForRecord(ctx context.Context, tableName, recordID string, limit int) ([]domain.AuditLogEntry, error)
	ForActor(ctx context.Context, actorID string, limit int) ([]domain.AuditLogEntry, error)
	ForAction(ctx context.Context, action domain.AuditAction, limit int) ([]domain.AuditLogEntry, error)
	Search(ctx context.Context, filter domain.AuditSearchFilter) ([]domain.AuditLogEntry, error)
}

// NewDealHandlers creates a new instance of DealHandlers.
func NewDealHandlers(service *app.Service, audits AuditReader) *DealHandlers {
	return &DealHandlers{service: service, audits: audits}
}

// CreateDealHandler handles deal creation. The authenticated actor is the
// brand side of the deal.
func (h *DealHandlers) CreateDealHandler(w http.ResponseWriter, r *http.Request) {
	info, ok := actor.FromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get actor from context")
		return
	}

	var req domain.CreateDealRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.service.CreateDeal(r.Context(), info.ActorID, req)
	if err != nil {
		h.writeServiceError(w, "create_deal", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, result)
}

// GetDealHandler returns one deal by id.
func (h *DealHandlers) GetDealHandler(w http.ResponseWriter, r *http.Request) {
	dealID := chi.URLParam(r, "dealID")
	deal, err := h.service.GetDealByID(r.Context(), dealID)
	if err != nil {
		h.writeServiceError(w, "get_deal", err)
		return
	}
	h.writeJSON(w, http.StatusOK, deal)
}

// ListDealsHandler lists the deals the authenticated actor participates in.
// `role=brand` lists deals where the actor is the brand; anything else lists
// the creator side.
func (h *DealHandlers) ListDealsHandler(w http.ResponseWriter, r *http.Request) {
	info, ok := actor.FromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get actor from context")
		return
	}

	isBrand := r.URL.Query().Get("role") == "brand"
	deals, err := h.service.GetDeals(r.Context(), info.ActorID, isBrand)
	if err != nil {
		h.writeServiceError(w, "list_deals", err)
		return
	}
	h.writeJSON(w, http.StatusOK, deals)
}

// FundDealHandler locks the brand's funds into escrow.
func (h *DealHandlers) FundDealHandler(w http.ResponseWriter, r *http.Request) {
	dealID := chi.URLParam(r, "dealID")
	result, err := h.service.FundDeal(r.Context(), dealID)
	if err != nil {
		h.writeServiceError(w, "fund_deal", err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// SubmitContentHandler records the creator's content submission.
func (h *DealHandlers) SubmitContentHandler(w http.ResponseWriter, r *http.Request) {
	dealID := chi.URLParam(r, "dealID")

	var req domain.SubmitContentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.service.SubmitContent(r.Context(), dealID, req.ContentURL)
	if err != nil {
		h.writeServiceError(w, "submit_content", err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// ApproveDealHandler releases escrow to the creator.
func (h *DealHandlers) ApproveDealHandler(w http.ResponseWriter, r *http.Request) {
	dealID := chi.URLParam(r, "dealID")
	result, err := h.service.ApproveDeal(r.Context(), dealID)
	if err != nil {
		h.writeServiceError(w, "approve_deal", err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// DisputeDealHandler flags a deal as disputed.
func (h *DealHandlers) DisputeDealHandler(w http.ResponseWriter, r *http.Request) {
	dealID := chi.URLParam(r, "dealID")

	var req domain.DisputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.service.InitiateDispute(r.Context(), dealID, req.Reason)
	if err != nil {
		h.writeServiceError(w, "dispute_deal", err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// ResolveDisputeHandler settles an open dispute.
func (h *DealHandlers) ResolveDisputeHandler(w http.ResponseWriter, r *http.Request) {
	dealID := chi.URLParam(r, "dealID")

	var req domain.ResolveDisputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.service.ResolveDispute(r.Context(), dealID, req.Accept)
	if err != nil {
		h.writeServiceError(w, "resolve_dispute", err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// CancelDealHandler cancels an unfunded deal.
func (h *DealHandlers) CancelDealHandler(w http.ResponseWriter, r *http.Request) {
	dealID := chi.URLParam(r, "dealID")
	result, err := h.service.CancelDeal(r.Context(), dealID)
	if err != nil {
		h.writeServiceError(w, "cancel_deal", err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// EmergencyCancelDealHandler force-cancels a funded deal.
func (h *DealHandlers) EmergencyCancelDealHandler(w http.ResponseWriter, r *http.Request) {
	dealID := chi.URLParam(r, "dealID")
	result, err := h.service.EmergencyCancelDeal(r.Context(), dealID)
	if err != nil {
		h.writeServiceError(w, "emergency_cancel_deal", err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// ScheduledDealsHandler lists the deal ids with an armed deadline timer, for
// operational diagnostics.
func (h *DealHandlers) ScheduledDealsHandler(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{"deal_ids": h.service.ScheduledDealIDs()})
}

// PlatformInfoHandler returns the public platform parameters.
func (h *DealHandlers) PlatformInfoHandler(w http.ResponseWriter, r *http.Request) {
	info, err := h.service.PlatformInfo(r.Context())
	if err != nil {
		h.writeServiceError(w, "platform_info", err)
		return
	}
	h.writeJSON(w, http.StatusOK, info)
}

// writeServiceError maps a normalized application error to its HTTP response.
func (h *DealHandlers) writeServiceError(w http.ResponseWriter, endpoint string, err error) {
	appErr := apperr.From(err)
	if appErr == nil {
		log.Printf("level=error component=api endpoint=%s msg=\"unclassified error reached handler\" err=%v", endpoint, err)
		h.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if appErr.Kind == apperr.KindInternal || appErr.Kind == apperr.KindDecode {
		log.Printf("level=error component=api endpoint=%s kind=%s err=%v", endpoint, appErr.Kind, err)
	}
	h.writeJSON(w, appErr.HTTPStatus(), map[string]string{
		"error": appErr.Error(),
		"kind":  string(appErr.Kind),
	})
}

// writeJSON is a helper for writing JSON responses.
func (h *DealHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *DealHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
