/**
 * @description
 * HTTP handlers for the audit log read endpoints. The audit trail is
 * append-only; this surface only exposes history and multi-predicate search,
 * never mutation.
 */

package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Geekz-Wit-Attitudes/etharis-sub000/internal/domain"
	"github.com/Geekz-Wit-Attitudes/etharis-sub000/internal/store"
)

// GetAuditEntryHandler returns a single audit entry by its id.
func (h *DealHandlers) GetAuditEntryHandler(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "entryID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid audit entry id")
		return
	}
	entry, err := h.audits.Entry(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrAuditEntryNotFound) {
			h.writeError(w, http.StatusNotFound, "Audit entry not found")
			return
		}
		h.writeServiceError(w, "get_audit_entry", err)
		return
	}
	h.writeJSON(w, http.StatusOK, entry)
}

// DealAuditHandler returns the audit history for one deal, newest first.
func (h *DealHandlers) DealAuditHandler(w http.ResponseWriter, r *http.Request) {
	dealID := chi.URLParam(r, "dealID")
	entries, err := h.audits.ForRecord(r.Context(), "deals", dealID, queryInt(r, "limit"))
	if err != nil {
		h.writeServiceError(w, "deal_audit", err)
		return
	}
	h.writeJSON(w, http.StatusOK, entries)
}

// ActorAuditHandler returns the entries attributed to one actor, newest first.
func (h *DealHandlers) ActorAuditHandler(w http.ResponseWriter, r *http.Request) {
	actorID := chi.URLParam(r, "actorID")
	entries, err := h.audits.ForActor(r.Context(), actorID, queryInt(r, "limit"))
	if err != nil {
		h.writeServiceError(w, "actor_audit", err)
		return
	}
	h.writeJSON(w, http.StatusOK, entries)
}

// ActionAuditHandler returns the entries recorded for one business action,
// newest first.
func (h *DealHandlers) ActionAuditHandler(w http.ResponseWriter, r *http.Request) {
	action := domain.AuditAction(chi.URLParam(r, "action"))
	entries, err := h.audits.ForAction(r.Context(), action, queryInt(r, "limit"))
	if err != nil {
		h.writeServiceError(w, "action_audit", err)
		return
	}
	h.writeJSON(w, http.StatusOK, entries)
}

// SearchAuditHandler searches the audit log across the supported predicates.
// All query parameters are optional and combine with AND semantics.
func (h *DealHandlers) SearchAuditHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.AuditSearchFilter{
		TableName: q.Get("table"),
		RecordID:  q.Get("record_id"),
		ActorID:   q.Get("actor_id"),
		Action:    domain.AuditAction(q.Get("action")),
		Limit:     queryInt(r, "limit"),
	}

	var err error
	if filter.From, err = queryTime(r, "from"); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid 'from' timestamp; expected RFC 3339 or epoch seconds")
		return
	}
	if filter.To, err = queryTime(r, "to"); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid 'to' timestamp; expected RFC 3339 or epoch seconds")
		return
	}

	entries, err := h.audits.Search(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, "search_audit", err)
		return
	}
	h.writeJSON(w, http.StatusOK, entries)
}

func queryInt(r *http.Request, name string) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0
	}
	return value
}

// queryTime parses a timestamp query parameter, accepting RFC 3339 or epoch
// seconds. An absent parameter yields the zero time (no constraint).
func queryTime(r *http.Request, name string) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, nil
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts, nil
	}
	epoch, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(epoch, 0).UTC(), nil
}
