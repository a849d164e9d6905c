package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/campuspay/campuspay/internal/apierror"
	"github.com/campuspay/campuspay/model"
)

// InsertEventIfNew records a webhook event exactly once. The unique
// constraint on event_id is the idempotency anchor; ON CONFLICT DO NOTHING
// plus the affected-row count tells us in one round trip whether this
// delivery is the first. Returns (true, event) when the event was inserted
// and (false, existing) when a row already carried the id.
func (d Datasource) InsertEventIfNew(ctx context.Context, event *model.WebhookEvent) (bool, *model.WebhookEvent, error) {
	result, err := d.Conn.ExecContext(ctx,
		`INSERT INTO webhook_events(event_id,event_type,transaction_id,raw_payload,processing_status,received_at)
		 VALUES ($1,$2,$3,$4,$5,$6)
		 ON CONFLICT (event_id) DO NOTHING`,
		event.EventID, event.EventType, event.TransactionID, event.RawPayload, event.ProcessingStatus, event.ReceivedAt,
	)
	if err != nil {
		return false, nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record webhook event", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rowsAffected == 1 {
		return true, event, nil
	}

	existing, err := d.GetWebhookEvent(ctx, event.EventID)
	if err != nil {
		return false, nil, err
	}
	return false, existing, nil
}

func (d Datasource) GetWebhookEvent(ctx context.Context, eventID string) (*model.WebhookEvent, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT event_id, event_type, transaction_id, raw_payload, processing_status, COALESCE(failure_reason, ''), received_at, processed_at
		FROM webhook_events
		WHERE event_id = $1
	`, eventID)

	event := &model.WebhookEvent{}
	err := row.Scan(&event.EventID, &event.EventType, &event.TransactionID, &event.RawPayload, &event.ProcessingStatus, &event.FailureReason, &event.ReceivedAt, &event.ProcessedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Webhook event with ID '%s' not found", eventID), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve webhook event", err)
	}
	return event, nil
}

// GetStalePendingEvents returns events still pending after the given age.
// The startup sweep re-enqueues these; losing an enqueue between the insert
// and the queue write must not strand the event.
func (d Datasource) GetStalePendingEvents(ctx context.Context, olderThan time.Duration, limit int) ([]*model.WebhookEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT event_id, event_type, transaction_id, raw_payload, processing_status, COALESCE(failure_reason, ''), received_at, processed_at
		FROM webhook_events
		WHERE processing_status = $1 AND received_at < $2
		ORDER BY received_at ASC
		LIMIT $3
	`, model.EventPending, time.Now().Add(-olderThan), limit)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve stale pending events", err)
	}
	defer rows.Close()

	var events []*model.WebhookEvent
	for rows.Next() {
		event := &model.WebhookEvent{}
		if err := rows.Scan(&event.EventID, &event.EventType, &event.TransactionID, &event.RawPayload, &event.ProcessingStatus, &event.FailureReason, &event.ReceivedAt, &event.ProcessedAt); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan webhook event row", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error iterating webhook event rows", err)
	}
	return events, nil
}

func (d Datasource) MarkEventProcessed(ctx context.Context, eventID string) error {
	return d.settleEvent(ctx, eventID, model.EventProcessed, "")
}

func (d Datasource) MarkEventFailed(ctx context.Context, eventID string, reason string) error {
	return d.settleEvent(ctx, eventID, model.EventFailed, reason)
}

func (d Datasource) settleEvent(ctx context.Context, eventID, status, reason string) error {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE webhook_events
		SET processing_status = $2, failure_reason = $3, processed_at = $4
		WHERE event_id = $1
	`, eventID, status, reason, time.Now())
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update webhook event status", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Webhook event with ID '%s' not found", eventID), nil)
	}
	return nil
}
