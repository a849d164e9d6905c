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

package database

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/campuspay/campuspay/internal/apierror"
	"github.com/campuspay/campuspay/model"
)

func newTestEvent() *model.WebhookEvent {
	return &model.WebhookEvent{
		EventID:          "evt_" + model.GenerateUUIDWithSuffix("test"),
		EventType:        model.EventPaymentSucceeded,
		TransactionID:    "txn_123",
		RawPayload:       json.RawMessage(`{"id":"evt_1","type":"payment.succeeded"}`),
		ProcessingStatus: model.EventPending,
		ReceivedAt:       time.Now(),
	}
}

func TestInsertEventIfNew_FirstDelivery(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer func() { _ = db.Close() }()

	ds := Datasource{Conn: db}
	event := newTestEvent()

	mock.ExpectExec("INSERT INTO webhook_events").
		WithArgs(event.EventID, event.EventType, event.TransactionID, []byte(event.RawPayload), event.ProcessingStatus, event.ReceivedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))

	inserted, got, err := ds.InsertEventIfNew(context.Background(), event)
	assert.NoError(t, err)
	assert.True(t, inserted)
	assert.Equal(t, event, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertEventIfNew_DuplicateDelivery(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer func() { _ = db.Close() }()

	ds := Datasource{Conn: db}
	event := newTestEvent()

	mock.ExpectExec("INSERT INTO webhook_events").
		WithArgs(event.EventID, event.EventType, event.TransactionID, []byte(event.RawPayload), event.ProcessingStatus, event.ReceivedAt).
		WillReturnResult(sqlmock.NewResult(0, 0))

	rows := sqlmock.NewRows([]string{"event_id", "event_type", "transaction_id", "raw_payload", "processing_status", "failure_reason", "received_at", "processed_at"}).
		AddRow(event.EventID, event.EventType, event.TransactionID, []byte(event.RawPayload), model.EventProcessed, "", event.ReceivedAt, nil)
	mock.ExpectQuery("SELECT event_id, event_type, transaction_id").
		WithArgs(event.EventID).
		WillReturnRows(rows)

	inserted, existing, err := ds.InsertEventIfNew(context.Background(), event)
	assert.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, event.EventID, existing.EventID)
	assert.Equal(t, model.EventProcessed, existing.ProcessingStatus)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetWebhookEvent_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer func() { _ = db.Close() }()

	ds := Datasource{Conn: db}

	mock.ExpectQuery("SELECT event_id, event_type, transaction_id").
		WithArgs("evt_missing").
		WillReturnRows(sqlmock.NewRows([]string{"event_id"}))

	_, err = ds.GetWebhookEvent(context.Background(), "evt_missing")
	assert.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrNotFound, apiErr.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkEventProcessed(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer func() { _ = db.Close() }()

	ds := Datasource{Conn: db}

	mock.ExpectExec("UPDATE webhook_events").
		WithArgs("evt_1", model.EventProcessed, "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = ds.MarkEventProcessed(context.Background(), "evt_1")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkEventFailed_UnknownEvent(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer func() { _ = db.Close() }()

	ds := Datasource{Conn: db}

	mock.ExpectExec("UPDATE webhook_events").
		WithArgs("evt_gone", model.EventFailed, "boom", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = ds.MarkEventFailed(context.Background(), "evt_gone", "boom")
	assert.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrNotFound, apiErr.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetStalePendingEvents(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer func() { _ = db.Close() }()

	ds := Datasource{Conn: db}
	received := time.Now().Add(-10 * time.Minute)

	rows := sqlmock.NewRows([]string{"event_id", "event_type", "transaction_id", "raw_payload", "processing_status", "failure_reason", "received_at", "processed_at"}).
		AddRow("evt_a", model.EventPaymentProcessing, "txn_1", []byte(`{}`), model.EventPending, "", received, nil).
		AddRow("evt_b", model.EventPaymentSucceeded, "txn_2", []byte(`{}`), model.EventPending, "", received, nil)
	mock.ExpectQuery("SELECT event_id, event_type, transaction_id").
		WithArgs(model.EventPending, sqlmock.AnyArg(), 100).
		WillReturnRows(rows)

	events, err := ds.GetStalePendingEvents(context.Background(), 5*time.Minute, 0)
	assert.NoError(t, err)
	assert.Len(t, events, 2)
	assert.Equal(t, "evt_a", events[0].EventID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
