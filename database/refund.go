package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/campuspay/campuspay/internal/apierror"
	"github.com/campuspay/campuspay/model"
)

// CreateRefundGuarded inserts a refund only if the transaction's settled and
// pending refunds plus the new amount stay within the captured amount. The
// parent row is locked FOR UPDATE for the duration so two concurrent refunds
// cannot both read the same remaining balance. The audit entry commits with
// the refund row.
func (d Datasource) CreateRefundGuarded(ctx context.Context, refund *model.RefundRecord, entry *model.AuditLogEntry) (*model.RefundRecord, error) {
	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var captured int64
	err = tx.QueryRowContext(ctx,
		`SELECT amount FROM transactions WHERE transaction_id = $1 FOR UPDATE`,
		refund.TransactionID).Scan(&captured)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Transaction with ID '%s' not found", refund.TransactionID), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to lock transaction for refund", err)
	}

	var refunded int64
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0)
		FROM refunds
		WHERE transaction_id = $1 AND status IN ($2, $3)
	`, refund.TransactionID, model.RefundPending, model.RefundSucceeded).Scan(&refunded)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to sum existing refunds", err)
	}

	if refunded+refund.Amount > captured {
		return nil, apierror.NewAPIError(apierror.ErrRefundExceedsAvailable,
			fmt.Sprintf("Refund of %d exceeds remaining refundable amount %d on transaction '%s'", refund.Amount, captured-refunded, refund.TransactionID), nil)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO refunds(refund_id,transaction_id,amount,reason,status,initiated_by,created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		refund.RefundID, refund.TransactionID, refund.Amount, refund.Reason, refund.Status, refund.InitiatedBy, refund.CreatedAt,
	)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record refund", err)
	}

	if entry != nil {
		if err := recordAuditTx(ctx, tx, entry); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit refund", err)
	}
	return refund, nil
}

func (d Datasource) GetRefund(ctx context.Context, refundID string) (*model.RefundRecord, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT refund_id, transaction_id, amount, COALESCE(reason, ''), status, COALESCE(initiated_by, ''), created_at
		FROM refunds
		WHERE refund_id = $1
	`, refundID)

	refund := &model.RefundRecord{}
	err := row.Scan(&refund.RefundID, &refund.TransactionID, &refund.Amount, &refund.Reason, &refund.Status, &refund.InitiatedBy, &refund.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Refund with ID '%s' not found", refundID), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve refund", err)
	}
	return refund, nil
}

func (d Datasource) GetRefundsByTransaction(ctx context.Context, transactionID string) ([]*model.RefundRecord, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT refund_id, transaction_id, amount, COALESCE(reason, ''), status, COALESCE(initiated_by, ''), created_at
		FROM refunds
		WHERE transaction_id = $1
		ORDER BY created_at ASC
	`, transactionID)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve refunds", err)
	}
	defer rows.Close()

	var refunds []*model.RefundRecord
	for rows.Next() {
		refund := &model.RefundRecord{}
		if err := rows.Scan(&refund.RefundID, &refund.TransactionID, &refund.Amount, &refund.Reason, &refund.Status, &refund.InitiatedBy, &refund.CreatedAt); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan refund row", err)
		}
		refunds = append(refunds, refund)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error iterating refund rows", err)
	}
	return refunds, nil
}

// FindDuplicateRefund looks for a live refund on the same transaction with
// the same amount and reason inside the dedupe window. Used to catch
// double-submitted refund requests before they reach the gateway.
func (d Datasource) FindDuplicateRefund(ctx context.Context, transactionID string, amount int64, reason string, window time.Duration) (*model.RefundRecord, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT refund_id, transaction_id, amount, COALESCE(reason, ''), status, COALESCE(initiated_by, ''), created_at
		FROM refunds
		WHERE transaction_id = $1 AND amount = $2 AND reason = $3
		  AND status IN ($4, $5)
		  AND created_at > $6
		ORDER BY created_at DESC
		LIMIT 1
	`, transactionID, amount, reason, model.RefundPending, model.RefundSucceeded, time.Now().Add(-window))

	refund := &model.RefundRecord{}
	err := row.Scan(&refund.RefundID, &refund.TransactionID, &refund.Amount, &refund.Reason, &refund.Status, &refund.InitiatedBy, &refund.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to check for duplicate refund", err)
	}
	return refund, nil
}

func (d Datasource) UpdateRefundStatus(ctx context.Context, refundID string, status string, entry *model.AuditLogEntry) (*model.RefundRecord, error) {
	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	result, err := tx.ExecContext(ctx,
		`UPDATE refunds SET status = $2 WHERE refund_id = $1`, refundID, status)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update refund status", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Refund with ID '%s' not found", refundID), nil)
	}

	if entry != nil {
		if err := recordAuditTx(ctx, tx, entry); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit refund update", err)
	}
	return d.GetRefund(ctx, refundID)
}

func (d Datasource) SumSettledRefunds(ctx context.Context, transactionID string) (int64, error) {
	var total int64
	err := d.Conn.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0)
		FROM refunds
		WHERE transaction_id = $1 AND status = $2
	`, transactionID, model.RefundSucceeded).Scan(&total)
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to sum settled refunds", err)
	}
	return total, nil
}
