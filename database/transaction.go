package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/campuspay/campuspay/internal/apierror"
	"github.com/campuspay/campuspay/model"
)

// CreateTransaction inserts a transaction if no row with its gateway id
// exists yet, and returns the current row either way. First sight of a
// transaction usually comes from its first webhook event.
func (d Datasource) CreateTransaction(ctx context.Context, txn *model.Transaction) (*model.Transaction, error) {
	metaDataJSON, err := json.Marshal(txn.MetaData)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal metadata", err)
	}

	_, err = d.Conn.ExecContext(ctx,
		`INSERT INTO transactions(transaction_id,amount,currency,status,risk_score,actor,failure_reason,created_at,updated_at,meta_data)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		 ON CONFLICT (transaction_id) DO NOTHING`,
		txn.TransactionID, txn.Amount, txn.Currency, txn.Status, txn.RiskScore, txn.Actor, txn.FailureReason, txn.CreatedAt, txn.UpdatedAt, metaDataJSON,
	)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record transaction", err)
	}

	return d.GetTransaction(ctx, txn.TransactionID)
}

// GetTransaction retrieves a transaction by its gateway id, consulting the
// read cache first when one is attached.
func (d Datasource) GetTransaction(ctx context.Context, id string) (*model.Transaction, error) {
	cacheKey := fmt.Sprintf("transactions:%s", id)
	if d.Cache != nil {
		var cached model.Transaction
		if err := d.Cache.Get(ctx, cacheKey, &cached); err == nil && cached.TransactionID == id {
			return &cached, nil
		}
	}

	row := d.Conn.QueryRowContext(ctx, `
		SELECT transaction_id, amount, currency, status, risk_score, COALESCE(actor, ''), COALESCE(failure_reason, ''), created_at, updated_at, meta_data
		FROM transactions
		WHERE transaction_id = $1
	`, id)

	txn := &model.Transaction{}
	var metaDataJSON []byte
	err := row.Scan(&txn.TransactionID, &txn.Amount, &txn.Currency, &txn.Status, &txn.RiskScore, &txn.Actor, &txn.FailureReason, &txn.CreatedAt, &txn.UpdatedAt, &metaDataJSON)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Transaction with ID '%s' not found", id), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve transaction", err)
	}

	if len(metaDataJSON) > 0 {
		if err := json.Unmarshal(metaDataJSON, &txn.MetaData); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to unmarshal metadata", err)
		}
	}

	if d.Cache != nil {
		if err := d.Cache.Set(ctx, cacheKey, txn, time.Minute); err != nil {
			log.Printf("Failed to cache transaction %s: %v", id, err)
		}
	}

	return txn, nil
}

// TransitionStatus applies a guarded status transition. The UPDATE is fenced
// on the expected current status, so a concurrent transition loses cleanly,
// and the audit entry plus any side-effect statements commit in the same SQL
// transaction. A failed audit write aborts the whole mutation.
func (d Datasource) TransitionStatus(ctx context.Context, txn *model.Transaction, newStatus string, entry *model.AuditLogEntry, sideEffects ...TxOp) (*model.Transaction, error) {
	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	result, err := tx.ExecContext(ctx, `
		UPDATE transactions
		SET status = $3, failure_reason = $4, risk_score = $5, updated_at = NOW()
		WHERE transaction_id = $1 AND status = $2
	`, txn.TransactionID, txn.Status, newStatus, txn.FailureReason, txn.RiskScore)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update transaction status", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return nil, apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("Transaction '%s' is no longer in status '%s'", txn.TransactionID, txn.Status), nil)
	}

	if entry != nil {
		if err := recordAuditTx(ctx, tx, entry); err != nil {
			return nil, err
		}
	}

	for _, op := range sideEffects {
		if err := op(tx); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit status transition", err)
	}

	if d.Cache != nil {
		_ = d.Cache.Delete(ctx, fmt.Sprintf("transactions:%s", txn.TransactionID))
	}

	updated := *txn
	updated.Status = newStatus
	updated.UpdatedAt = time.Now()
	return &updated, nil
}
