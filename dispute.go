/*
Copyright 2025 CampusPay Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package campuspay

import (
	"context"
	"fmt"
	"time"

	"github.com/campuspay/campuspay/internal/apierror"
	"github.com/campuspay/campuspay/model"
)

// applyDisputeCreated opens a dispute from the gateway's webhook and moves
// the transaction to disputed. A transaction carries at most one active
// dispute; the constraint lives in the store, and a second creation event
// is skipped as out of order.
func (c *CampusPay) applyDisputeCreated(ctx context.Context, txn *model.Transaction, event *model.WebhookEvent, data *model.EventData) error {
	if data.DisputeID == "" {
		c.recordSkippedEvent(ctx, txn, event, "dispute event missing dispute id")
		return nil
	}

	active, err := c.datasource.GetActiveDisputeByTransaction(ctx, txn.TransactionID)
	if err != nil {
		return err
	}
	if active != nil {
		c.recordSkippedEvent(ctx, txn, event, fmt.Sprintf("transaction already has active dispute %s", active.DisputeID))
		return nil
	}

	amount := data.Amount
	if amount == 0 {
		amount = txn.Amount
	}
	dispute := &model.DisputeRecord{
		DisputeID:     data.DisputeID,
		TransactionID: txn.TransactionID,
		Amount:        amount,
		Status:        model.DisputeNeedsResponse,
		CreatedAt:     time.Now(),
	}
	if data.EvidenceDueBy != nil {
		dispute.EvidenceDueBy = *data.EvidenceDueBy
	}

	entry := model.NewAuditEntry(model.ActionDisputeOpened, "dispute", dispute.DisputeID, txn.Actor, nil,
		map[string]interface{}{"transaction_id": txn.TransactionID, "amount": amount, "event_id": event.EventID})
	if _, err := c.datasource.CreateDispute(ctx, dispute, entry); err != nil {
		return err
	}

	if txn.CanTransition(model.StatusDisputed) {
		if _, err := c.transition(ctx, txn, model.StatusDisputed, event.EventID); err != nil {
			return err
		}
	}
	return nil
}

// applyDisputeOutcome settles an active dispute with the gateway's verdict.
// Duplicate outcome deliveries find the dispute already settled and fall
// through without a second audit entry.
func (c *CampusPay) applyDisputeOutcome(ctx context.Context, txn *model.Transaction, event *model.WebhookEvent, data *model.EventData, outcome string) error {
	disputeID := data.DisputeID
	if disputeID == "" {
		c.recordSkippedEvent(ctx, txn, event, "dispute event missing dispute id")
		return nil
	}

	dispute, err := c.datasource.GetDispute(ctx, disputeID)
	if err != nil {
		return err
	}

	entry := model.NewAuditEntry(model.ActionDisputeClosed, "dispute", disputeID, txn.Actor,
		map[string]interface{}{"status": dispute.Status},
		map[string]interface{}{"status": outcome, "event_id": event.EventID})
	applied, err := c.datasource.CloseDispute(ctx, disputeID, outcome, entry)
	if err != nil {
		return err
	}
	if !applied {
		c.recordSkippedEvent(ctx, txn, event, fmt.Sprintf("dispute %s already settled", disputeID))
	}
	return nil
}

// SubmitEvidence attaches merchant evidence to a dispute that still needs a
// response. The window closes at evidence_due_by; late submissions are
// rejected without touching the record.
func (c *CampusPay) SubmitEvidence(ctx context.Context, disputeID, actor string, evidence map[string]interface{}) (*model.DisputeRecord, error) {
	dispute, err := c.datasource.GetDispute(ctx, disputeID)
	if err != nil {
		return nil, err
	}

	if !dispute.IsActive() {
		return nil, apierror.NewAPIError(apierror.ErrEvidenceWindowClosed,
			fmt.Sprintf("Dispute '%s' is already settled as '%s'", disputeID, dispute.Status), nil)
	}
	if dispute.Status != model.DisputeNeedsResponse {
		return nil, apierror.NewAPIError(apierror.ErrConflict,
			fmt.Sprintf("Evidence already submitted for dispute '%s'", disputeID), nil)
	}
	if !dispute.EvidenceDueBy.IsZero() && time.Now().After(dispute.EvidenceDueBy) {
		return nil, apierror.NewAPIError(apierror.ErrEvidenceWindowClosed,
			fmt.Sprintf("Evidence window for dispute '%s' closed at %s", disputeID, dispute.EvidenceDueBy.Format(time.RFC3339)), nil)
	}

	entry := model.NewAuditEntry(model.ActionEvidenceSubmit, "dispute", disputeID, actor,
		map[string]interface{}{"status": dispute.Status},
		map[string]interface{}{"status": model.DisputeUnderReview, "evidence": evidence})
	if err := c.datasource.MarkEvidenceSubmitted(ctx, disputeID, entry); err != nil {
		return nil, err
	}
	return c.datasource.GetDispute(ctx, disputeID)
}

// GetDispute returns a dispute record by id.
func (c *CampusPay) GetDispute(ctx context.Context, disputeID string) (*model.DisputeRecord, error) {
	return c.datasource.GetDispute(ctx, disputeID)
}
