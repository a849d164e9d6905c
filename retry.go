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
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/campuspay/campuspay/config"
	"github.com/campuspay/campuspay/gateway"
	"github.com/campuspay/campuspay/internal/apierror"
	"github.com/campuspay/campuspay/model"
)

// backoffDelay computes the wait before a given attempt:
// min(maxDelay, base * 2^attempt), spread by the jitter fraction so a burst
// of failures does not come back as a burst of retries.
func backoffDelay(cfg config.RetryConfig, attempt int) time.Duration {
	delay := float64(cfg.BaseDelay) * math.Pow(2, float64(attempt))
	if delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	if cfg.JitterFraction > 0 {
		jitter := delay * cfg.JitterFraction
		delay = delay - jitter + rand.Float64()*2*jitter
	}
	return time.Duration(delay)
}

// ScheduleRetry opens a retry record for a failed capture and enqueues the
// first attempt. One active retry per transaction; scheduling while one is
// open returns the open record.
func (c *CampusPay) ScheduleRetry(ctx context.Context, txn *model.Transaction, reason string) (*model.PaymentRetryRecord, error) {
	cfg, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	if !model.IsRetryableFailure(reason) {
		return nil, apierror.NewAPIError(apierror.ErrConflict,
			fmt.Sprintf("Failure reason '%s' is not retryable", reason), nil)
	}

	active, err := c.datasource.GetActiveRetryByTransaction(ctx, txn.TransactionID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return active, nil
	}

	nextRetryAt := time.Now().Add(backoffDelay(cfg.Retry, 0))
	retry := &model.PaymentRetryRecord{
		RetryID:       model.GenerateUUIDWithSuffix("rty"),
		TransactionID: txn.TransactionID,
		AttemptCount:  0,
		MaxAttempts:   cfg.Retry.MaxAttempts,
		NextRetryAt:   &nextRetryAt,
		Status:        model.RetryPending,
		LastError:     reason,
		CreatedAt:     time.Now(),
	}

	entry := model.NewAuditEntry(model.ActionRetryScheduled, "payment_retry", retry.RetryID, txn.Actor, nil,
		map[string]interface{}{"transaction_id": txn.TransactionID, "reason": reason, "next_retry_at": nextRetryAt})
	retry, err = c.datasource.CreateRetry(ctx, retry, entry)
	if err != nil {
		return nil, err
	}

	if err := c.queue.EnqueueRetryAttempt(ctx, retry, nextRetryAt); err != nil {
		logrus.WithField("retry_id", retry.RetryID).Errorf("failed to enqueue retry attempt: %v", err)
	}
	return retry, nil
}

// RequestManualRetry schedules a retry on operator demand, bypassing the
// retryable-reason check but not the transaction status check.
func (c *CampusPay) RequestManualRetry(ctx context.Context, transactionID, actor string) (*model.PaymentRetryRecord, error) {
	cfg, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	txn, err := c.datasource.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if txn.Status != model.StatusFailed {
		return nil, apierror.NewAPIError(apierror.ErrConflict,
			fmt.Sprintf("Transaction '%s' is not in a failed state", transactionID), nil)
	}

	active, err := c.datasource.GetActiveRetryByTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return active, nil
	}

	now := time.Now()
	retry := &model.PaymentRetryRecord{
		RetryID:       model.GenerateUUIDWithSuffix("rty"),
		TransactionID: transactionID,
		AttemptCount:  0,
		MaxAttempts:   cfg.Retry.MaxAttempts,
		NextRetryAt:   &now,
		Status:        model.RetryPending,
		LastError:     txn.FailureReason,
		CreatedAt:     now,
	}
	entry := model.NewAuditEntry(model.ActionRetryScheduled, "payment_retry", retry.RetryID, actor, nil,
		map[string]interface{}{"transaction_id": transactionID, "manual": true})
	retry, err = c.datasource.CreateRetry(ctx, retry, entry)
	if err != nil {
		return nil, err
	}

	if err := c.queue.EnqueueRetryAttempt(ctx, retry, now); err != nil {
		logrus.WithField("retry_id", retry.RetryID).Errorf("failed to enqueue manual retry: %v", err)
	}
	return retry, nil
}

// ProcessRetryTask is the asynq handler for scheduled retry attempts.
func (c *CampusPay) ProcessRetryTask(ctx context.Context, task *asynq.Task) error {
	var payload RetryTaskPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logrus.Errorf("Error unmarshaling retry task payload: %v", err)
		return err
	}
	return c.executeRetryAttempt(ctx, payload.RetryID)
}

// executeRetryAttempt claims the next attempt on a retry record and runs it
// against the gateway. The claim is an atomic lease: a concurrent worker on
// the same record sees the claim fail and walks away.
func (c *CampusPay) executeRetryAttempt(ctx context.Context, retryID string) error {
	cfg, err := config.Fetch()
	if err != nil {
		return err
	}

	retry, claimed, err := c.datasource.ClaimRetryAttempt(ctx, retryID)
	if err != nil {
		return err
	}
	if !claimed {
		logrus.WithField("retry_id", retryID).Infof("retry not claimable in status %s, skipping", retry.Status)
		return nil
	}

	// The transaction may have settled while the attempt waited.
	txn, err := c.datasource.GetTransaction(ctx, retry.TransactionID)
	if err != nil {
		return err
	}
	if txn.Status != model.StatusFailed {
		logrus.WithField("retry_id", retryID).Infof("transaction %s now %s, abandoning retry", txn.TransactionID, txn.Status)
		entry := model.NewAuditEntry(model.ActionRetryAbandoned, "payment_retry", retryID, txn.Actor,
			map[string]interface{}{"status": model.RetryRetrying},
			map[string]interface{}{"status": model.RetryAbandoned, "reason": "transaction no longer failed"})
		return c.datasource.SettleRetry(ctx, retryID, model.RetryAbandoned, nil, retry.LastError, entry)
	}

	captureErr := c.gateway.AttemptCapture(ctx, retryID, gateway.RetryRequest{
		TransactionID: retry.TransactionID,
		Attempt:       retry.AttemptCount,
	})
	if captureErr == nil {
		return c.settleRetrySuccess(ctx, retry, txn)
	}

	if apiErr, ok := captureErr.(apierror.APIError); ok && apiErr.Code == apierror.ErrGatewayRejected {
		entry := model.NewAuditEntry(model.ActionRetryAbandoned, "payment_retry", retryID, txn.Actor,
			map[string]interface{}{"status": model.RetryRetrying},
			map[string]interface{}{"status": model.RetryFailed, "reason": apiErr.Message})
		return c.datasource.SettleRetry(ctx, retryID, model.RetryFailed, nil, apiErr.Message, entry)
	}

	return c.handleTransientRetryFailure(ctx, cfg, retry, txn, captureErr)
}

func (c *CampusPay) settleRetrySuccess(ctx context.Context, retry *model.PaymentRetryRecord, txn *model.Transaction) error {
	if err := c.datasource.SettleRetry(ctx, retry.RetryID, model.RetrySucceeded, nil, "", nil); err != nil {
		return err
	}
	txn.FailureReason = ""
	if _, err := c.transition(ctx, txn, model.StatusSucceeded, retry.RetryID); err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{
		"retry_id":       retry.RetryID,
		"transaction_id": txn.TransactionID,
		"attempt":        retry.AttemptCount,
	}).Info("retry attempt succeeded")
	return nil
}

// handleTransientRetryFailure either re-schedules the record or abandons it
// once the attempt ceiling is reached. Abandonment raises a fraud signal
// check on the failure pattern.
func (c *CampusPay) handleTransientRetryFailure(ctx context.Context, cfg *config.Configuration, retry *model.PaymentRetryRecord, txn *model.Transaction, captureErr error) error {
	if retry.AttemptCount >= retry.MaxAttempts {
		entry := model.NewAuditEntry(model.ActionRetryAbandoned, "payment_retry", retry.RetryID, txn.Actor,
			map[string]interface{}{"status": model.RetryRetrying, "attempts": retry.AttemptCount},
			map[string]interface{}{"status": model.RetryAbandoned, "reason": captureErr.Error()})
		if err := c.datasource.SettleRetry(ctx, retry.RetryID, model.RetryAbandoned, nil, captureErr.Error(), entry); err != nil {
			return err
		}
		c.raiseAlert(ctx, txn, model.AlertTypeRetryExhausted,
			fmt.Sprintf("transaction %s abandoned after %d retry attempts", txn.TransactionID, retry.AttemptCount))
		return nil
	}

	nextRetryAt := time.Now().Add(backoffDelay(cfg.Retry, retry.AttemptCount))
	if err := c.datasource.SettleRetry(ctx, retry.RetryID, model.RetryPending, &nextRetryAt, captureErr.Error(), nil); err != nil {
		return err
	}
	if err := c.queue.EnqueueRetryAttempt(ctx, retry, nextRetryAt); err != nil {
		logrus.WithField("retry_id", retry.RetryID).Errorf("failed to re-enqueue retry: %v", err)
	}
	logrus.WithFields(logrus.Fields{
		"retry_id": retry.RetryID,
		"attempt":  retry.AttemptCount,
		"next_at":  nextRetryAt,
	}).Info("retry attempt failed, rescheduled")
	return nil
}

// RetryRecoveryProcessor re-enqueues retry records whose due time passed
// without an attempt running, typically after a worker crash or a lost
// enqueue. It polls on an interval for as long as the worker runs.
type RetryRecoveryProcessor struct {
	campuspay    *CampusPay
	batchSize    int
	pollInterval time.Duration
	stopCh       chan struct{}
}

func NewRetryRecoveryProcessor(campuspay *CampusPay) *RetryRecoveryProcessor {
	return &RetryRecoveryProcessor{
		campuspay:    campuspay,
		batchSize:    500,
		pollInterval: 30 * time.Second,
		stopCh:       make(chan struct{}),
	}
}

func (p *RetryRecoveryProcessor) Start(ctx context.Context) {
	go func() {
		// Immediate pass on startup, then the poll loop.
		p.sweep(ctx)
		ticker := time.NewTicker(p.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				logrus.Info("Retry recovery processor context cancelled")
				return
			case <-p.stopCh:
				logrus.Info("Retry recovery processor stopped")
				return
			case <-ticker.C:
				p.sweep(ctx)
			}
		}
	}()
	logrus.Info("Retry recovery processor started")
}

func (p *RetryRecoveryProcessor) Stop() {
	close(p.stopCh)
}

func (p *RetryRecoveryProcessor) sweep(ctx context.Context) int {
	due, err := p.campuspay.datasource.GetDueRetries(ctx, time.Now(), p.batchSize)
	if err != nil {
		logrus.Errorf("failed to load due retries: %v", err)
		return 0
	}
	for _, retry := range due {
		if err := p.campuspay.queue.EnqueueRetryAttempt(ctx, retry, time.Now()); err != nil {
			logrus.WithField("retry_id", retry.RetryID).Errorf("failed to re-enqueue due retry: %v", err)
		}
	}
	if len(due) > 0 {
		logrus.Infof("re-enqueued %d overdue retries", len(due))
	}
	return len(due)
}
