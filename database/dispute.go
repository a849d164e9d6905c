package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/campuspay/campuspay/internal/apierror"
	"github.com/campuspay/campuspay/model"
)

// CreateDispute inserts a dispute together with its audit entry. A partial
// unique index keeps at most one active dispute per transaction, so a second
// open dispute surfaces here as a conflict rather than a duplicate row.
func (d Datasource) CreateDispute(ctx context.Context, dispute *model.DisputeRecord, entry *model.AuditLogEntry) (*model.DisputeRecord, error) {
	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO disputes(dispute_id,transaction_id,amount,status,evidence_due_by,evidence_submitted,created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		dispute.DisputeID, dispute.TransactionID, dispute.Amount, dispute.Status, dispute.EvidenceDueBy, dispute.EvidenceSubmitted, dispute.CreatedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code.Name() == "unique_violation" {
			return nil, apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("Transaction '%s' already has an active dispute", dispute.TransactionID), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record dispute", err)
	}

	if entry != nil {
		if err := recordAuditTx(ctx, tx, entry); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit dispute", err)
	}
	return dispute, nil
}

func (d Datasource) GetDispute(ctx context.Context, disputeID string) (*model.DisputeRecord, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT dispute_id, transaction_id, amount, status, evidence_due_by, evidence_submitted, created_at
		FROM disputes
		WHERE dispute_id = $1
	`, disputeID)

	dispute := &model.DisputeRecord{}
	err := row.Scan(&dispute.DisputeID, &dispute.TransactionID, &dispute.Amount, &dispute.Status, &dispute.EvidenceDueBy, &dispute.EvidenceSubmitted, &dispute.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Dispute with ID '%s' not found", disputeID), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve dispute", err)
	}
	return dispute, nil
}

func (d Datasource) GetActiveDisputeByTransaction(ctx context.Context, transactionID string) (*model.DisputeRecord, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT dispute_id, transaction_id, amount, status, evidence_due_by, evidence_submitted, created_at
		FROM disputes
		WHERE transaction_id = $1 AND status IN ($2, $3)
	`, transactionID, model.DisputeNeedsResponse, model.DisputeUnderReview)

	dispute := &model.DisputeRecord{}
	err := row.Scan(&dispute.DisputeID, &dispute.TransactionID, &dispute.Amount, &dispute.Status, &dispute.EvidenceDueBy, &dispute.EvidenceSubmitted, &dispute.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve active dispute", err)
	}
	return dispute, nil
}

// MarkEvidenceSubmitted flips the evidence flag and moves the dispute to
// under_review, but only while it still needs a response. Zero rows affected
// means the dispute has moved on and the caller decides whether the window
// closed or the dispute already settled.
func (d Datasource) MarkEvidenceSubmitted(ctx context.Context, disputeID string, entry *model.AuditLogEntry) error {
	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	result, err := tx.ExecContext(ctx, `
		UPDATE disputes
		SET evidence_submitted = TRUE, status = $2
		WHERE dispute_id = $1 AND status = $3
	`, disputeID, model.DisputeUnderReview, model.DisputeNeedsResponse)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to submit evidence", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("Dispute '%s' is not awaiting evidence", disputeID), nil)
	}

	if entry != nil {
		if err := recordAuditTx(ctx, tx, entry); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit evidence submission", err)
	}
	return nil
}

// CloseDispute moves an active dispute to a terminal outcome. Returns false
// without error when the dispute was already settled, so duplicate closing
// events fall through quietly without an extra audit entry.
func (d Datasource) CloseDispute(ctx context.Context, disputeID string, status string, entry *model.AuditLogEntry) (bool, error) {
	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	result, err := tx.ExecContext(ctx, `
		UPDATE disputes
		SET status = $2
		WHERE dispute_id = $1 AND status IN ($3, $4)
	`, disputeID, status, model.DisputeNeedsResponse, model.DisputeUnderReview)
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to close dispute", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return false, nil
	}

	if entry != nil {
		if err := recordAuditTx(ctx, tx, entry); err != nil {
			return false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit dispute closure", err)
	}
	return true, nil
}
