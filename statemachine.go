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

	"github.com/campuspay/campuspay/internal/apierror"
	redlock "github.com/campuspay/campuspay/internal/lock"
	"github.com/campuspay/campuspay/model"
)

// transitionFn applies one event type to a transaction that is already
// locked and loaded.
type transitionFn func(c *CampusPay, ctx context.Context, txn *model.Transaction, event *model.WebhookEvent, data *model.EventData) error

// transitionTable keys event handling by event type. Adding an event type
// means adding a row here, nothing else.
var transitionTable = map[string]transitionFn{
	model.EventPaymentActionRequired: paymentStatusHandler(model.StatusRequiresAction),
	model.EventPaymentProcessing:     paymentStatusHandler(model.StatusProcessing),
	model.EventPaymentSucceeded:      paymentStatusHandler(model.StatusSucceeded),
	model.EventPaymentFailed:         paymentStatusHandler(model.StatusFailed),
	model.EventPaymentCanceled:       paymentStatusHandler(model.StatusCanceled),
	model.EventRefundSucceeded:       (*CampusPay).applyRefundSucceeded,
	model.EventRefundFailed:          (*CampusPay).applyRefundFailed,
	model.EventDisputeCreated:        (*CampusPay).applyDisputeCreated,
	model.EventDisputeWon:            disputeOutcomeHandler(model.DisputeWon),
	model.EventDisputeLost:           disputeOutcomeHandler(model.DisputeLost),
	model.EventDisputeClosed:         disputeOutcomeHandler(model.DisputeClosed),
}

// ApplyEvent drives a verified, durably recorded event through the
// transaction lifecycle. Ordering is guaranteed per transaction only: the
// event queues shard by transaction id, and a redis lock covers processing
// for the multi-worker case. Unknown and out-of-order events are kept for
// audit and skipped without failing the pipeline.
func (c *CampusPay) ApplyEvent(ctx context.Context, event *model.WebhookEvent) error {
	_, data, err := parseEnvelope(event.RawPayload)
	if err != nil {
		return err
	}

	locker := redlock.NewLocker(c.redis, fmt.Sprintf("txn:%s", event.TransactionID), model.GenerateUUIDWithSuffix("lock"))
	if err := locker.WaitLock(ctx, 30*time.Second, time.Minute); err != nil {
		return err
	}
	defer func() {
		if err := locker.Unlock(ctx); err != nil {
			logrus.Errorf("failed to release lock for transaction %s: %v", event.TransactionID, err)
		}
	}()

	txn, err := c.getOrCreateTransaction(ctx, event, data)
	if err != nil {
		return err
	}

	handler, ok := transitionTable[event.EventType]
	if !ok {
		c.recordSkippedEvent(ctx, txn, event, "unknown event type")
		return nil
	}
	return handler(c, ctx, txn, event, data)
}

// getOrCreateTransaction loads the transaction an event refers to, creating
// it on first sight. The gateway does not send a separate creation call;
// the first event for an unseen transaction id implies one.
func (c *CampusPay) getOrCreateTransaction(ctx context.Context, event *model.WebhookEvent, data *model.EventData) (*model.Transaction, error) {
	txn, err := c.datasource.GetTransaction(ctx, event.TransactionID)
	if err == nil {
		return txn, nil
	}
	if apiErr, ok := err.(apierror.APIError); !ok || apiErr.Code != apierror.ErrNotFound {
		return nil, err
	}

	now := time.Now()
	return c.datasource.CreateTransaction(ctx, &model.Transaction{
		TransactionID: event.TransactionID,
		Amount:        data.Amount,
		Currency:      data.Currency,
		Status:        model.StatusCreated,
		RiskScore:     data.RiskScore,
		Actor:         data.Actor,
		CreatedAt:     now,
		UpdatedAt:     now,
		MetaData:      data.MetaData,
	})
}

// paymentStatusHandler builds a handler that moves the transaction to a
// target lifecycle status.
func paymentStatusHandler(target string) transitionFn {
	return func(c *CampusPay, ctx context.Context, txn *model.Transaction, event *model.WebhookEvent, data *model.EventData) error {
		if !txn.CanTransition(target) {
			c.recordSkippedEvent(ctx, txn, event, fmt.Sprintf("transition %s -> %s not allowed", txn.Status, target))
			return nil
		}

		if data.RiskScore > 0 {
			txn.RiskScore = data.RiskScore
		}
		if target == model.StatusFailed {
			txn.FailureReason = data.FailureReason
		}

		updated, err := c.transition(ctx, txn, target, event.EventID)
		if err != nil {
			return err
		}

		// Every applied transition feeds the fraud signals; card-testing
		// bursts surface mostly as declined transactions.
		c.EvaluateFraud(ctx, updated)

		if target == model.StatusFailed && model.IsRetryableFailure(data.FailureReason) {
			if _, err := c.ScheduleRetry(ctx, updated, data.FailureReason); err != nil {
				logrus.WithField("transaction_id", updated.TransactionID).Errorf("failed to schedule retry: %v", err)
			}
		}
		return nil
	}
}

// transition applies one guarded status change with its audit entry and
// fans out a notification once committed.
func (c *CampusPay) transition(ctx context.Context, txn *model.Transaction, target, triggeredBy string) (*model.Transaction, error) {
	before := map[string]interface{}{"status": txn.Status}
	after := map[string]interface{}{"status": target, "event_id": triggeredBy}
	entry := model.NewAuditEntry(model.ActionStatusTransition, "transaction", txn.TransactionID, txn.Actor, before, after)

	updated, err := c.datasource.TransitionStatus(ctx, txn, target, entry)
	if err != nil {
		return nil, err
	}

	if err := SendNotification(NotificationPayload{
		Event:   fmt.Sprintf("transaction.%s", target),
		Payload: updated,
	}); err != nil {
		logrus.Errorf("failed to enqueue notification for transaction %s: %v", updated.TransactionID, err)
	}
	return updated, nil
}

// recordSkippedEvent keeps an audit trace for events that were received but
// not applied. The pipeline itself does not error; the event still settles
// as processed.
func (c *CampusPay) recordSkippedEvent(ctx context.Context, txn *model.Transaction, event *model.WebhookEvent, reason string) {
	logrus.WithFields(logrus.Fields{
		"event_id":       event.EventID,
		"event_type":     event.EventType,
		"transaction_id": event.TransactionID,
	}).Warnf("skipping event: %s", reason)

	entry := model.NewAuditEntry(model.ActionOutOfOrderEvent, "transaction", event.TransactionID, txn.Actor,
		map[string]interface{}{"status": txn.Status},
		map[string]interface{}{"event_id": event.EventID, "event_type": event.EventType, "reason": reason})
	if err := c.datasource.RecordAudit(ctx, entry); err != nil {
		logrus.Errorf("failed to record skipped event audit for %s: %v", event.EventID, err)
	}
}

func disputeOutcomeHandler(outcome string) transitionFn {
	return func(c *CampusPay, ctx context.Context, txn *model.Transaction, event *model.WebhookEvent, data *model.EventData) error {
		return c.applyDisputeOutcome(ctx, txn, event, data, outcome)
	}
}
