package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/campuspay/campuspay/internal/apierror"
	"github.com/campuspay/campuspay/model"
)

// retryLease bounds how long a claimed attempt may sit in retrying before it
// counts as orphaned. A worker that dies between claim and settlement leaves
// the row in retrying; once the lease expires the row is claimable again and
// the recovery sweep re-enqueues it.
const retryLease = 10 * time.Minute

func (d Datasource) CreateRetry(ctx context.Context, retry *model.PaymentRetryRecord, entry *model.AuditLogEntry) (*model.PaymentRetryRecord, error) {
	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO payment_retries(retry_id,transaction_id,attempt_count,max_attempts,next_retry_at,status,last_error,created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		retry.RetryID, retry.TransactionID, retry.AttemptCount, retry.MaxAttempts, retry.NextRetryAt, retry.Status, retry.LastError, retry.CreatedAt,
	)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record payment retry", err)
	}

	if entry != nil {
		if err := recordAuditTx(ctx, tx, entry); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit payment retry", err)
	}
	return retry, nil
}

func (d Datasource) GetRetry(ctx context.Context, retryID string) (*model.PaymentRetryRecord, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT retry_id, transaction_id, attempt_count, max_attempts, next_retry_at, status, COALESCE(last_error, ''), created_at
		FROM payment_retries
		WHERE retry_id = $1
	`, retryID)

	retry := &model.PaymentRetryRecord{}
	err := row.Scan(&retry.RetryID, &retry.TransactionID, &retry.AttemptCount, &retry.MaxAttempts, &retry.NextRetryAt, &retry.Status, &retry.LastError, &retry.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Payment retry with ID '%s' not found", retryID), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve payment retry", err)
	}
	return retry, nil
}

func (d Datasource) GetActiveRetryByTransaction(ctx context.Context, transactionID string) (*model.PaymentRetryRecord, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT retry_id, transaction_id, attempt_count, max_attempts, next_retry_at, status, COALESCE(last_error, ''), created_at
		FROM payment_retries
		WHERE transaction_id = $1 AND status IN ($2, $3)
		ORDER BY created_at DESC
		LIMIT 1
	`, transactionID, model.RetryPending, model.RetryRetrying)

	retry := &model.PaymentRetryRecord{}
	err := row.Scan(&retry.RetryID, &retry.TransactionID, &retry.AttemptCount, &retry.MaxAttempts, &retry.NextRetryAt, &retry.Status, &retry.LastError, &retry.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve active retry", err)
	}
	return retry, nil
}

// ClaimRetryAttempt advances a pending retry to retrying and bumps the
// attempt counter in one conditional UPDATE. The status fence plus the
// attempt ceiling makes the claim a lease: if two workers race on the same
// retry id only one sees an affected row, and the other backs off. A row
// stuck in retrying past the lease is claimable again; the lost attempt
// stays counted. Returns (record, false, nil) when the retry is not
// claimable.
func (d Datasource) ClaimRetryAttempt(ctx context.Context, retryID string) (*model.PaymentRetryRecord, bool, error) {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE payment_retries
		SET status = $2, attempt_count = attempt_count + 1
		WHERE retry_id = $1 AND attempt_count < max_attempts
		  AND (status = $3 OR (status = $2 AND next_retry_at <= $4))
	`, retryID, model.RetryRetrying, model.RetryPending, time.Now().Add(-retryLease))
	if err != nil {
		return nil, false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to claim retry attempt", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}

	retry, getErr := d.GetRetry(ctx, retryID)
	if getErr != nil {
		return nil, false, getErr
	}
	return retry, rowsAffected == 1, nil
}

// SettleRetry finishes an attempt: back to pending with a fresh schedule,
// or terminally succeeded, failed, or abandoned.
func (d Datasource) SettleRetry(ctx context.Context, retryID string, status string, nextRetryAt *time.Time, lastError string, entry *model.AuditLogEntry) error {
	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	result, err := tx.ExecContext(ctx, `
		UPDATE payment_retries
		SET status = $2, next_retry_at = $3, last_error = $4
		WHERE retry_id = $1
	`, retryID, status, nextRetryAt, lastError)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to settle retry", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Payment retry with ID '%s' not found", retryID), nil)
	}

	if entry != nil {
		if err := recordAuditTx(ctx, tx, entry); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit retry settlement", err)
	}
	return nil
}

// GetDueRetries returns retries whose schedule has elapsed: pending records
// past their due time, plus retrying records orphaned longer than the lease.
// The recovery sweep uses this on startup to re-enqueue work that was
// scheduled in a previous process lifetime.
func (d Datasource) GetDueRetries(ctx context.Context, asOf time.Time, limit int) ([]*model.PaymentRetryRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT retry_id, transaction_id, attempt_count, max_attempts, next_retry_at, status, COALESCE(last_error, ''), created_at
		FROM payment_retries
		WHERE next_retry_at IS NOT NULL
		  AND ((status = $1 AND next_retry_at <= $2) OR (status = $3 AND next_retry_at <= $4))
		ORDER BY next_retry_at ASC
		LIMIT $5
	`, model.RetryPending, asOf, model.RetryRetrying, asOf.Add(-retryLease), limit)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve due retries", err)
	}
	defer rows.Close()

	var retries []*model.PaymentRetryRecord
	for rows.Next() {
		retry := &model.PaymentRetryRecord{}
		if err := rows.Scan(&retry.RetryID, &retry.TransactionID, &retry.AttemptCount, &retry.MaxAttempts, &retry.NextRetryAt, &retry.Status, &retry.LastError, &retry.CreatedAt); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan retry row", err)
		}
		retries = append(retries, retry)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error iterating retry rows", err)
	}
	return retries, nil
}
