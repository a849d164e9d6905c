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
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/campuspay/campuspay/config"
	"github.com/campuspay/campuspay/internal/apierror"
	"github.com/campuspay/campuspay/internal/signature"
	"github.com/campuspay/campuspay/model"
)

// IngestResult reports how an incoming webhook delivery was handled.
type IngestResult struct {
	EventID   string `json:"event_id"`
	Duplicate bool   `json:"duplicate"`
}

// IngestEvent is the single entry point for gateway webhook deliveries.
// It verifies the signature, parses the envelope, records the event exactly
// once, and hands first-seen events to the worker queue. The delivery is
// acknowledged as soon as the event row is durable; processing latency never
// blocks the gateway's retry loop.
//
// Signature verification happens exactly once, here. A parse failure after a
// valid signature is a malformed event, not a security rejection.
func (c *CampusPay) IngestEvent(ctx context.Context, payload []byte, providedSignature, timestamp string) (*IngestResult, error) {
	cfg, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	verifier := signature.NewVerifier(cfg.SigningSecretBytes(), cfg.Webhook.TimestampTolerance)
	if err := verifier.Verify(payload, providedSignature, timestamp); err != nil {
		logrus.WithField("error", err).Warn("rejected webhook delivery")
		return nil, err
	}

	envelope, data, err := parseEnvelope(payload)
	if err != nil {
		return nil, err
	}

	event := &model.WebhookEvent{
		EventID:          envelope.ID,
		EventType:        envelope.Type,
		TransactionID:    data.TransactionID,
		RawPayload:       payload,
		ProcessingStatus: model.EventPending,
		ReceivedAt:       time.Now(),
	}

	inserted, existing, err := c.datasource.InsertEventIfNew(ctx, event)
	if err != nil {
		return nil, err
	}
	if !inserted {
		logrus.WithField("event_id", existing.EventID).Info("duplicate webhook delivery acknowledged")
		return &IngestResult{EventID: existing.EventID, Duplicate: true}, nil
	}

	if err := c.queue.EnqueueEvent(ctx, event); err != nil {
		// The event row is durable. The startup sweep will pick up pending
		// events whose enqueue was lost.
		logrus.WithField("event_id", event.EventID).Errorf("failed to enqueue event: %v", err)
	}

	return &IngestResult{EventID: event.EventID, Duplicate: false}, nil
}

// parseEnvelope decodes the envelope and its data block, checking the fields
// every event must carry.
func parseEnvelope(payload []byte) (*model.EventEnvelope, *model.EventData, error) {
	var envelope model.EventEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, nil, apierror.NewAPIError(apierror.ErrMalformedEvent, "Event payload is not valid JSON", err)
	}
	if envelope.ID == "" || envelope.Type == "" {
		return nil, nil, apierror.NewAPIError(apierror.ErrMalformedEvent, "Event is missing id or type", nil)
	}

	var data model.EventData
	if len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, &data); err != nil {
			return nil, nil, apierror.NewAPIError(apierror.ErrMalformedEvent, "Event data block is not valid JSON", err)
		}
	}
	if data.TransactionID == "" {
		return nil, nil, apierror.NewAPIError(apierror.ErrMalformedEvent, "Event data is missing transaction id", nil)
	}
	return &envelope, &data, nil
}

// ProcessEventTask is the asynq handler for queued webhook events. It applies
// the event through the state machine and settles the event row either way.
func (c *CampusPay) ProcessEventTask(ctx context.Context, task *asynq.Task) error {
	var payload EventTaskPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logrus.Errorf("Error unmarshaling event task payload: %v", err)
		return err
	}
	return c.processEvent(ctx, &payload.Event)
}

func (c *CampusPay) processEvent(ctx context.Context, event *model.WebhookEvent) error {
	if err := c.ApplyEvent(ctx, event); err != nil {
		if markErr := c.datasource.MarkEventFailed(ctx, event.EventID, err.Error()); markErr != nil {
			logrus.WithField("event_id", event.EventID).Errorf("failed to mark event failed: %v", markErr)
		}
		return err
	}
	if err := c.datasource.MarkEventProcessed(ctx, event.EventID); err != nil {
		logrus.WithField("event_id", event.EventID).Errorf("failed to mark event processed: %v", err)
		return err
	}
	return nil
}

// SweepPendingEvents re-enqueues events that were recorded but never made it
// to the queue, typically after a crash between insert and enqueue.
func (c *CampusPay) SweepPendingEvents(ctx context.Context, olderThan time.Duration) int {
	events, err := c.datasource.GetStalePendingEvents(ctx, olderThan, 500)
	if err != nil {
		logrus.Errorf("failed to load stale pending events: %v", err)
		return 0
	}
	for _, event := range events {
		if err := c.queue.EnqueueEvent(ctx, event); err != nil {
			logrus.WithField("event_id", event.EventID).Errorf("failed to re-enqueue pending event: %v", err)
		}
	}
	return len(events)
}
