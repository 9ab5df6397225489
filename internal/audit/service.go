/**
 * @description
 * The audit log service. It is the only writer of audit entries: it pulls
 * actor attribution from the request context, computes the minimal field
 * diff through the delta engine, and appends one immutable entry per
 * recorded mutation. Read methods are thin pass-throughs to the repository
 * with the result-count ceiling enforced there.
 *
 * @dependencies
 * - internal/actor: ambient actor attribution.
 * - internal/delta: minimal before/after diffing.
 * - internal/store: the append-only persistence contract.
 */

package audit

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/Geekz-Wit-Attitudes/etharis-sub000/internal/actor"
	"github.com/Geekz-Wit-Attitudes/etharis-sub000/internal/delta"
	"github.com/Geekz-Wit-Attitudes/etharis-sub000/internal/domain"
	"github.com/Geekz-Wit-Attitudes/etharis-sub000/internal/store"
)

// Service appends and reads audit log entries.
type Service struct {
	repo   store.Repository
	logger *slog.Logger
}

// NewService creates a new audit service instance.
func NewService(repo store.Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// RecordParams describes one mutation to audit.
type RecordParams struct {
	TableName string
	RecordID  string
	Action    domain.AuditAction

	// Before/After are flat field snapshots; the recorded changes are their
	// minimal diff. Both nil means the mutation carries no field-level data
	// (the entry is still written: the transition itself happened).
	Before map[string]any
	After  map[string]any

	// ActorID overrides the ambient actor when set. Leave nil to take the
	// actor from the request context; system-triggered work runs on a
	// context with no actor and is recorded with a null actor.
	ActorID *string

	// SuppressIfUnchanged skips the entry entirely when the diff is empty.
	// Callers decide whether "no field changed" still deserves a record.
	SuppressIfUnchanged bool

	// Metadata is merged over the request-derived metadata (origin ip,
	// client agent).
	Metadata map[string]string
}

// Record appends one audit entry. It returns the written entry, or nil when
// suppression applied.
func (s *Service) Record(ctx context.Context, params RecordParams) (*domain.AuditLogEntry, error) {
	changes := delta.Diff(params.Before, params.After)
	if changes == nil && params.SuppressIfUnchanged {
		return nil, nil
	}

	actorID := params.ActorID
	if actorID == nil {
		actorID = actor.ID(ctx)
	}

	metadata := actor.Metadata(ctx)
	if len(params.Metadata) > 0 {
		if metadata == nil {
			metadata = make(map[string]string, len(params.Metadata))
		}
		for key, value := range params.Metadata {
			metadata[key] = value
		}
	}

	entry := &domain.AuditLogEntry{
		TableName: params.TableName,
		RecordID:  params.RecordID,
		Action:    params.Action,
		ActorID:   actorID,
		Changes:   changes,
		Metadata:  metadata,
	}
	if err := s.repo.InsertAuditEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to record audit entry: %w", err)
	}
	return entry, nil
}

// Entry fetches one audit entry by id.
func (s *Service) Entry(ctx context.Context, id uuid.UUID) (*domain.AuditLogEntry, error) {
	return s.repo.GetAuditEntry(ctx, id)
}

// ForRecord lists the audit trail of one entity, newest first.
func (s *Service) ForRecord(ctx context.Context, tableName, recordID string, limit int) ([]domain.AuditLogEntry, error) {
	return s.repo.ListAuditEntriesByRecord(ctx, tableName, recordID, limit)
}

// ForActor lists the entries attributed to one actor, newest first.
func (s *Service) ForActor(ctx context.Context, actorID string, limit int) ([]domain.AuditLogEntry, error) {
	return s.repo.ListAuditEntriesByActor(ctx, actorID, limit)
}

// ForAction lists the entries recorded for one business action, newest first.
func (s *Service) ForAction(ctx context.Context, action domain.AuditAction, limit int) ([]domain.AuditLogEntry, error) {
	return s.repo.ListAuditEntriesByAction(ctx, action, limit)
}

// Search applies a multi-predicate filter, capped at store.MaxSearchResults.
func (s *Service) Search(ctx context.Context, filter domain.AuditSearchFilter) ([]domain.AuditLogEntry, error) {
	return s.repo.SearchAuditEntries(ctx, filter)
}
