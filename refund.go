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

	"github.com/sirupsen/logrus"

	"github.com/campuspay/campuspay/config"
	"github.com/campuspay/campuspay/gateway"
	"github.com/campuspay/campuspay/internal/apierror"
	"github.com/campuspay/campuspay/model"
)

// RequestRefund initiates a refund against a captured transaction. A nil
// amount means a full refund of whatever remains refundable. The insert is
// guarded by a row-locking aggregate so concurrent refunds can never exceed
// the captured amount, and an identical request inside the dedupe window
// returns the existing record instead of a second one.
//
// The record persists as pending; the gateway's refund.succeeded or
// refund.failed event settles it through the state machine.
func (c *CampusPay) RequestRefund(ctx context.Context, transactionID string, amount *int64, reason, actor string) (*model.RefundRecord, error) {
	cfg, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	txn, err := c.datasource.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if txn.Status != model.StatusSucceeded {
		return nil, apierror.NewAPIError(apierror.ErrConflict,
			fmt.Sprintf("Transaction '%s' is not refundable in status '%s'", transactionID, txn.Status), nil)
	}

	refundAmount := txn.Amount
	if amount != nil {
		refundAmount = *amount
	}
	if refundAmount <= 0 {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "Refund amount must be positive", nil)
	}

	if existing, err := c.datasource.FindDuplicateRefund(ctx, transactionID, refundAmount, reason, cfg.RefundDedupeWindow); err != nil {
		return nil, err
	} else if existing != nil {
		logrus.WithField("refund_id", existing.RefundID).Info("duplicate refund request, returning existing record")
		return existing, nil
	}

	refund := &model.RefundRecord{
		RefundID:      model.GenerateUUIDWithSuffix("rfd"),
		TransactionID: transactionID,
		Amount:        refundAmount,
		Reason:        reason,
		Status:        model.RefundPending,
		InitiatedBy:   actor,
		CreatedAt:     time.Now(),
	}
	entry := model.NewAuditEntry(model.ActionRefundRequested, "refund", refund.RefundID, actor, nil,
		map[string]interface{}{"transaction_id": transactionID, "amount": refundAmount, "reason": reason})

	refund, err = c.datasource.CreateRefundGuarded(ctx, refund, entry)
	if err != nil {
		return nil, err
	}

	if err := c.gateway.SubmitRefund(ctx, refund.RefundID, gateway.RefundRequest{
		TransactionID: transactionID,
		Amount:        refundAmount,
		Reason:        reason,
	}); err != nil {
		// Permanent rejections settle the record now. Transient failures
		// leave it pending; the gateway delivers the outcome by webhook.
		if apiErr, ok := err.(apierror.APIError); ok && apiErr.Code == apierror.ErrGatewayRejected {
			failEntry := model.NewAuditEntry(model.ActionRefundCompleted, "refund", refund.RefundID, actor,
				map[string]interface{}{"status": refund.Status},
				map[string]interface{}{"status": model.RefundFailed})
			if _, markErr := c.datasource.UpdateRefundStatus(ctx, refund.RefundID, model.RefundFailed, failEntry); markErr != nil {
				logrus.Errorf("failed to mark refund %s failed: %v", refund.RefundID, markErr)
			}
			return nil, err
		}
		logrus.WithField("refund_id", refund.RefundID).Warnf("gateway refund submission pending: %v", err)
	}

	return refund, nil
}

// GetRefund returns a refund record by id.
func (c *CampusPay) GetRefund(ctx context.Context, refundID string) (*model.RefundRecord, error) {
	return c.datasource.GetRefund(ctx, refundID)
}

// GetRefundsByTransaction lists all refunds recorded against a transaction.
func (c *CampusPay) GetRefundsByTransaction(ctx context.Context, transactionID string) ([]*model.RefundRecord, error) {
	return c.datasource.GetRefundsByTransaction(ctx, transactionID)
}

// applyRefundSucceeded settles a pending refund from the gateway's webhook.
// When the transaction is fully refunded it moves to refunded.
func (c *CampusPay) applyRefundSucceeded(ctx context.Context, txn *model.Transaction, event *model.WebhookEvent, data *model.EventData) error {
	if data.RefundID == "" {
		c.recordSkippedEvent(ctx, txn, event, "refund event missing refund id")
		return nil
	}

	refund, err := c.datasource.GetRefund(ctx, data.RefundID)
	if err != nil {
		return err
	}
	if refund.Status != model.RefundPending {
		c.recordSkippedEvent(ctx, txn, event, fmt.Sprintf("refund %s already settled as %s", refund.RefundID, refund.Status))
		return nil
	}

	entry := model.NewAuditEntry(model.ActionRefundCompleted, "refund", refund.RefundID, txn.Actor,
		map[string]interface{}{"status": refund.Status},
		map[string]interface{}{"status": model.RefundSucceeded, "event_id": event.EventID})
	if _, err := c.datasource.UpdateRefundStatus(ctx, refund.RefundID, model.RefundSucceeded, entry); err != nil {
		return err
	}

	settled, err := c.datasource.SumSettledRefunds(ctx, txn.TransactionID)
	if err != nil {
		return err
	}
	if settled >= txn.Amount && txn.CanTransition(model.StatusRefunded) {
		if _, err := c.transition(ctx, txn, model.StatusRefunded, event.EventID); err != nil {
			return err
		}
	}
	return nil
}

// applyRefundFailed settles a pending refund as failed.
func (c *CampusPay) applyRefundFailed(ctx context.Context, txn *model.Transaction, event *model.WebhookEvent, data *model.EventData) error {
	if data.RefundID == "" {
		c.recordSkippedEvent(ctx, txn, event, "refund event missing refund id")
		return nil
	}

	refund, err := c.datasource.GetRefund(ctx, data.RefundID)
	if err != nil {
		return err
	}
	if refund.Status != model.RefundPending {
		c.recordSkippedEvent(ctx, txn, event, fmt.Sprintf("refund %s already settled as %s", refund.RefundID, refund.Status))
		return nil
	}

	entry := model.NewAuditEntry(model.ActionRefundCompleted, "refund", refund.RefundID, txn.Actor,
		map[string]interface{}{"status": refund.Status},
		map[string]interface{}{"status": model.RefundFailed, "event_id": event.EventID, "reason": data.FailureReason})
	_, err = c.datasource.UpdateRefundStatus(ctx, refund.RefundID, model.RefundFailed, entry)
	return err
}
