package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/campuspay/campuspay/internal/apierror"
	"github.com/campuspay/campuspay/model"
)

const auditInsertQuery = `
	INSERT INTO audit_logs(audit_id,action_type,resource_type,resource_id,actor,before_state,after_state,created_at)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

// RecordAudit appends an audit entry outside of any surrounding SQL
// transaction. Mutations that must be atomic with their audit trail go
// through TransitionStatus instead, which writes the entry in-transaction.
func (d Datasource) RecordAudit(ctx context.Context, entry *model.AuditLogEntry) error {
	_, err := d.Conn.ExecContext(ctx, auditInsertQuery,
		entry.AuditID, entry.ActionType, entry.ResourceType, entry.ResourceID, entry.Actor, nullableJSON(entry.Before), nullableJSON(entry.After), entry.CreatedAt)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record audit entry", err)
	}
	return nil
}

func recordAuditTx(ctx context.Context, tx *sql.Tx, entry *model.AuditLogEntry) error {
	_, err := tx.ExecContext(ctx, auditInsertQuery,
		entry.AuditID, entry.ActionType, entry.ResourceType, entry.ResourceID, entry.Actor, nullableJSON(entry.Before), nullableJSON(entry.After), entry.CreatedAt)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record audit entry", err)
	}
	return nil
}

func nullableJSON(raw []byte) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return raw
}

// GetAuditLogs lists audit entries newest first, filtered by whichever
// fields of the filter are set.
func (d Datasource) GetAuditLogs(ctx context.Context, filter AuditFilter) ([]*model.AuditLogEntry, error) {
	var conditions []string
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.ResourceType != "" {
		conditions = append(conditions, "resource_type = "+arg(filter.ResourceType))
	}
	if filter.ResourceID != "" {
		conditions = append(conditions, "resource_id = "+arg(filter.ResourceID))
	}
	if filter.Actor != "" {
		conditions = append(conditions, "actor = "+arg(filter.Actor))
	}
	if !filter.From.IsZero() {
		conditions = append(conditions, "created_at >= "+arg(filter.From))
	}
	if !filter.To.IsZero() {
		conditions = append(conditions, "created_at <= "+arg(filter.To))
	}

	query := `
		SELECT audit_id, action_type, resource_type, resource_id, COALESCE(actor, ''), before_state, after_state, created_at
		FROM audit_logs`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += " ORDER BY created_at DESC LIMIT " + arg(limit) + " OFFSET " + arg(filter.Offset)

	rows, err := d.Conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve audit logs", err)
	}
	defer rows.Close()

	var entries []*model.AuditLogEntry
	for rows.Next() {
		entry := &model.AuditLogEntry{}
		var before, after []byte
		if err := rows.Scan(&entry.AuditID, &entry.ActionType, &entry.ResourceType, &entry.ResourceID, &entry.Actor, &before, &after, &entry.CreatedAt); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan audit log row", err)
		}
		entry.Before = before
		entry.After = after
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error iterating audit log rows", err)
	}
	return entries, nil
}
