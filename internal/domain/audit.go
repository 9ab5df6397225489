/**
 * @description
 * Audit domain models. An AuditLogEntry is append-only and immutable once
 * written: it records what changed, for which entity, by whom. Entries are
 * never updated or deleted by this service.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction is the closed set of business actions recorded in the audit log.
type AuditAction string

const (
	ActionCreate          AuditAction = "CREATE"
	ActionFund            AuditAction = "FUND"
	ActionSubmit          AuditAction = "SUBMIT"
	ActionApprove         AuditAction = "APPROVE"
	ActionDispute         AuditAction = "DISPUTE"
	ActionResolve         AuditAction = "RESOLVE"
	ActionCancel          AuditAction = "CANCEL"
	ActionAutoRelease     AuditAction = "AUTO_RELEASE"
	ActionAutoRefund      AuditAction = "AUTO_REFUND"
	ActionEmergencyCancel AuditAction = "EMERGENCY_CANCEL"
)

// FieldChange is the minimal before/after record for one changed field.
type FieldChange struct {
	From any `json:"from"`
	To   any `json:"to"`
}

// AuditLogEntry is one immutable audit record.
// ActorID is nil for system-triggered actions (auto-release, auto-refund).
// Changes is nil when the mutation produced no field-level difference.
type AuditLogEntry struct {
	ID        uuid.UUID              `json:"id"`
	TableName string                 `json:"table_name"`
	RecordID  string                 `json:"record_id"`
	Action    AuditAction            `json:"action"`
	ActorID   *string                `json:"actor_id,omitempty"`
	Changes   map[string]FieldChange `json:"changes,omitempty"`
	Metadata  map[string]string      `json:"metadata,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// AuditSearchFilter is the multi-predicate filter for audit log searches.
// Zero values mean "no constraint" for that predicate.
type AuditSearchFilter struct {
	TableName string
	RecordID  string
	ActorID   string
	Action    AuditAction
	From      time.Time
	To        time.Time
	Limit     int
}
