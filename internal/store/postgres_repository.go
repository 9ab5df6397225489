/**
 * @description
 * PostgreSQL implementation of the `Repository` interface. All queries touch
 * the single `audit_logs` table:
 *
 *   audit_logs(id uuid pk, table_name text, record_id text, action text,
 *              actor_id text null, changes jsonb null, metadata jsonb null,
 *              created_at timestamptz)
 *
 * Rows are insert-only; no UPDATE or DELETE statement exists in this file.
 *
 * @dependencies
 * - context, encoding/json, errors, fmt, strings: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Geekz-Wit-Attitudes/etharis-sub000/internal/domain"
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const auditColumns = "id, table_name, record_id, action, actor_id, changes, metadata, created_at"

// InsertAuditEntry appends one immutable audit row.
func (r *PostgresRepository) InsertAuditEntry(ctx context.Context, entry *domain.AuditLogEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}

	var changesJSON []byte
	if len(entry.Changes) > 0 {
		encoded, err := json.Marshal(entry.Changes)
		if err != nil {
			return fmt.Errorf("failed to encode audit changes: %w", err)
		}
		changesJSON = encoded
	}

	var metadataJSON []byte
	if len(entry.Metadata) > 0 {
		encoded, err := json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode audit metadata: %w", err)
		}
		metadataJSON = encoded
	}

	query := `
		INSERT INTO audit_logs (id, table_name, record_id, action, actor_id, changes, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		RETURNING created_at`
	err := r.db.QueryRow(ctx, query,
		entry.ID, entry.TableName, entry.RecordID, string(entry.Action),
		entry.ActorID, changesJSON, metadataJSON,
	).Scan(&entry.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateEntry
		}
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}

// GetAuditEntry fetches one entry by id.
func (r *PostgresRepository) GetAuditEntry(ctx context.Context, id uuid.UUID) (*domain.AuditLogEntry, error) {
	query := fmt.Sprintf(`SELECT %s FROM audit_logs WHERE id = $1`, auditColumns)
	rows, err := r.db.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get audit entry: %w", err)
	}
	defer rows.Close()

	entries, err := scanAuditEntries(rows)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ErrAuditEntryNotFound
	}
	return &entries[0], nil
}

// ListAuditEntriesByRecord fetches entries for one entity, newest first.
func (r *PostgresRepository) ListAuditEntriesByRecord(ctx context.Context, tableName, recordID string, limit int) ([]domain.AuditLogEntry, error) {
	query := fmt.Sprintf(`SELECT %s FROM audit_logs WHERE table_name = $1 AND record_id = $2 ORDER BY created_at DESC LIMIT $3`, auditColumns)
	rows, err := r.db.Query(ctx, query, tableName, recordID, capLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries by record: %w", err)
	}
	defer rows.Close()
	return scanAuditEntries(rows)
}

// ListAuditEntriesByActor fetches entries attributed to one actor, newest first.
func (r *PostgresRepository) ListAuditEntriesByActor(ctx context.Context, actorID string, limit int) ([]domain.AuditLogEntry, error) {
	query := fmt.Sprintf(`SELECT %s FROM audit_logs WHERE actor_id = $1 ORDER BY created_at DESC LIMIT $2`, auditColumns)
	rows, err := r.db.Query(ctx, query, actorID, capLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries by actor: %w", err)
	}
	defer rows.Close()
	return scanAuditEntries(rows)
}

// ListAuditEntriesByAction fetches entries for one business action, newest first.
func (r *PostgresRepository) ListAuditEntriesByAction(ctx context.Context, action domain.AuditAction, limit int) ([]domain.AuditLogEntry, error) {
	query := fmt.Sprintf(`SELECT %s FROM audit_logs WHERE action = $1 ORDER BY created_at DESC LIMIT $2`, auditColumns)
	rows, err := r.db.Query(ctx, query, string(action), capLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries by action: %w", err)
	}
	defer rows.Close()
	return scanAuditEntries(rows)
}

// SearchAuditEntries applies every non-zero predicate of the filter.
func (r *PostgresRepository) SearchAuditEntries(ctx context.Context, filter domain.AuditSearchFilter) ([]domain.AuditLogEntry, error) {
	conditions := make([]string, 0, 6)
	args := make([]any, 0, 6)

	addCondition := func(clause string, value any) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf(clause, len(args)))
	}

	if filter.TableName != "" {
		addCondition("table_name = $%d", filter.TableName)
	}
	if filter.RecordID != "" {
		addCondition("record_id = $%d", filter.RecordID)
	}
	if filter.ActorID != "" {
		addCondition("actor_id = $%d", filter.ActorID)
	}
	if filter.Action != "" {
		addCondition("action = $%d", string(filter.Action))
	}
	if !filter.From.IsZero() {
		addCondition("created_at >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		addCondition("created_at <= $%d", filter.To)
	}

	query := "SELECT " + auditColumns + " FROM audit_logs"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	args = append(args, capLimit(filter.Limit))
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search audit entries: %w", err)
	}
	defer rows.Close()
	return scanAuditEntries(rows)
}

// ListKnownDealIDs returns the distinct deal ids present in the audit log.
func (r *PostgresRepository) ListKnownDealIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT DISTINCT record_id FROM audit_logs WHERE table_name = 'deals'`)
	if err != nil {
		return nil, fmt.Errorf("failed to list known deal ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan deal id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func capLimit(limit int) int {
	if limit <= 0 || limit > MaxSearchResults {
		return MaxSearchResults
	}
	return limit
}

func scanAuditEntries(rows pgx.Rows) ([]domain.AuditLogEntry, error) {
	var entries []domain.AuditLogEntry
	for rows.Next() {
		var (
			entry        domain.AuditLogEntry
			action       string
			changesJSON  []byte
			metadataJSON []byte
		)
		if err := rows.Scan(&entry.ID, &entry.TableName, &entry.RecordID, &action,
			&entry.ActorID, &changesJSON, &metadataJSON, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entry.Action = domain.AuditAction(action)
		if len(changesJSON) > 0 {
			if err := json.Unmarshal(changesJSON, &entry.Changes); err != nil {
				return nil, fmt.Errorf("failed to decode audit changes: %w", err)
			}
		}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &entry.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode audit metadata: %w", err)
			}
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
