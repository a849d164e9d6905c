package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/campuspay/campuspay/internal/apierror"
	"github.com/campuspay/campuspay/model"
)

func (d Datasource) CreateFraudAlert(ctx context.Context, alert *model.FraudAlert) (*model.FraudAlert, error) {
	_, err := d.Conn.ExecContext(ctx,
		`INSERT INTO fraud_alerts(alert_id,transaction_id,alert_type,risk_score,status,resolved_by,notes,created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		alert.AlertID, alert.TransactionID, alert.AlertType, alert.RiskScore, alert.Status, alert.ResolvedBy, alert.Notes, alert.CreatedAt,
	)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record fraud alert", err)
	}
	return alert, nil
}

func (d Datasource) GetFraudAlert(ctx context.Context, alertID string) (*model.FraudAlert, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT alert_id, transaction_id, alert_type, risk_score, status, COALESCE(resolved_by, ''), COALESCE(notes, ''), created_at
		FROM fraud_alerts
		WHERE alert_id = $1
	`, alertID)

	alert := &model.FraudAlert{}
	err := row.Scan(&alert.AlertID, &alert.TransactionID, &alert.AlertType, &alert.RiskScore, &alert.Status, &alert.ResolvedBy, &alert.Notes, &alert.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Fraud alert with ID '%s' not found", alertID), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve fraud alert", err)
	}
	return alert, nil
}

// GetOpenFraudAlert finds an unresolved alert of one type on a transaction.
// Returns (nil, nil) when none is open.
func (d Datasource) GetOpenFraudAlert(ctx context.Context, transactionID, alertType string) (*model.FraudAlert, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT alert_id, transaction_id, alert_type, risk_score, status, COALESCE(resolved_by, ''), COALESCE(notes, ''), created_at
		FROM fraud_alerts
		WHERE transaction_id = $1 AND alert_type = $2 AND status IN ($3, $4)
		ORDER BY created_at DESC
		LIMIT 1
	`, transactionID, alertType, model.AlertActive, model.AlertInvestigating)

	alert := &model.FraudAlert{}
	err := row.Scan(&alert.AlertID, &alert.TransactionID, &alert.AlertType, &alert.RiskScore, &alert.Status, &alert.ResolvedBy, &alert.Notes, &alert.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve open fraud alert", err)
	}
	return alert, nil
}

// GetFraudAlerts lists alerts newest first, optionally filtered by status.
func (d Datasource) GetFraudAlerts(ctx context.Context, status string, limit, offset int) ([]*model.FraudAlert, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT alert_id, transaction_id, alert_type, risk_score, status, COALESCE(resolved_by, ''), COALESCE(notes, ''), created_at
		FROM fraud_alerts
	`
	args := []interface{}{}
	if status != "" {
		query += ` WHERE status = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
		args = append(args, status, limit, offset)
	} else {
		query += ` ORDER BY created_at DESC LIMIT $1 OFFSET $2`
		args = append(args, limit, offset)
	}

	rows, err := d.Conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve fraud alerts", err)
	}
	defer rows.Close()

	var alerts []*model.FraudAlert
	for rows.Next() {
		alert := &model.FraudAlert{}
		if err := rows.Scan(&alert.AlertID, &alert.TransactionID, &alert.AlertType, &alert.RiskScore, &alert.Status, &alert.ResolvedBy, &alert.Notes, &alert.CreatedAt); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan fraud alert row", err)
		}
		alerts = append(alerts, alert)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error iterating fraud alert rows", err)
	}
	return alerts, nil
}

// ResolveFraudAlert settles an alert with a reviewer verdict. Only alerts
// still open or under investigation can be resolved.
func (d Datasource) ResolveFraudAlert(ctx context.Context, alertID, status, resolvedBy, notes string, entry *model.AuditLogEntry) (*model.FraudAlert, error) {
	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	result, err := tx.ExecContext(ctx, `
		UPDATE fraud_alerts
		SET status = $2, resolved_by = $3, notes = $4
		WHERE alert_id = $1 AND status IN ($5, $6)
	`, alertID, status, resolvedBy, notes, model.AlertActive, model.AlertInvestigating)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to resolve fraud alert", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return nil, apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("Fraud alert '%s' is already resolved", alertID), nil)
	}

	if entry != nil {
		if err := recordAuditTx(ctx, tx, entry); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit alert resolution", err)
	}
	return d.GetFraudAlert(ctx, alertID)
}
