/**
 * @description
 * This file defines the `Repository` interface for the deal-service's
 * persistence needs. The only durable state this service owns is the audit
 * log; deal state itself lives on the ledger and is never persisted here.
 * Defining an interface decouples the audit service and the reconciliation
 * pass from the PostgreSQL implementation and keeps them testable with
 * in-memory stubs.
 *
 * @dependencies
 * - context: Standard Go library.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/Geekz-Wit-Attitudes/etharis-sub000/internal/domain"
)

var (
	ErrAuditEntryNotFound = errors.New("audit entry not found")
	ErrDuplicateEntry     = errors.New("duplicate audit entry")
)

// MaxSearchResults is the hard cap applied to every audit read to bound
// response size.
const MaxSearchResults = 500

// Repository defines the data access contract for audit log entries.
// Entries are append-only; there are deliberately no update or delete
// methods.
type Repository interface {
	// InsertAuditEntry durably appends one immutable entry.
	InsertAuditEntry(ctx context.Context, entry *domain.AuditLogEntry) error

	// GetAuditEntry fetches one entry by id, or ErrAuditEntryNotFound.
	GetAuditEntry(ctx context.Context, id uuid.UUID) (*domain.AuditLogEntry, error)

	// ListAuditEntriesByRecord fetches entries for one entity, newest first.
	ListAuditEntriesByRecord(ctx context.Context, tableName, recordID string, limit int) ([]domain.AuditLogEntry, error)

	// ListAuditEntriesByActor fetches entries attributed to one actor, newest first.
	ListAuditEntriesByActor(ctx context.Context, actorID string, limit int) ([]domain.AuditLogEntry, error)

	// ListAuditEntriesByAction fetches entries for one business action, newest first.
	ListAuditEntriesByAction(ctx context.Context, action domain.AuditAction, limit int) ([]domain.AuditLogEntry, error)

	// SearchAuditEntries applies every non-zero predicate of the filter,
	// newest first, capped at MaxSearchResults.
	SearchAuditEntries(ctx context.Context, filter domain.AuditSearchFilter) ([]domain.AuditLogEntry, error)

	// ListKnownDealIDs returns the distinct deal ids the audit log has seen.
	// The reconciliation pass re-reads these from the ledger after a restart.
	ListKnownDealIDs(ctx context.Context) ([]string, error)
}
