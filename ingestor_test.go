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
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"

	"github.com/campuspay/campuspay/config"
	"github.com/campuspay/campuspay/database"
	"github.com/campuspay/campuspay/internal/apierror"
	"github.com/campuspay/campuspay/internal/signature"
	"github.com/campuspay/campuspay/model"
)

const testSigningSecret = "whsec_test"

// newTestService wires a CampusPay instance against sqlmock and miniredis.
func newTestService(t *testing.T) (*CampusPay, sqlmock.Sqlmock) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("an error '%s' occurred when starting miniredis", err)
	}
	t.Cleanup(mr.Close)

	config.MockConfig(&config.Configuration{
		Redis: config.RedisConfig{Dns: mr.Addr()},
		Webhook: config.WebhookConfig{
			SigningSecrets:     []string{testSigningSecret},
			TimestampTolerance: 5 * time.Minute,
		},
		Retry: config.RetryConfig{
			BaseDelay:   time.Second,
			MaxDelay:    time.Minute,
			MaxAttempts: 3,
		},
		Gateway: config.GatewayConfig{
			BaseUrl: "http://gateway.example.com",
			ApiKey:  "sk_test_123",
		},
		Fraud: config.FraudConfig{
			RiskScoreThreshold: 0.75,
			VelocityWindow:     10 * time.Minute,
			VelocityLimit:      20,
			ProbingAmountFloor: 500,
			ProbingCount:       5,
		},
		Queue: config.QueueConfig{
			EventQueue:     "new:event",
			RetryQueue:     "new:retry",
			NotifierQueue:  "new:notifier",
			NumberOfQueues: 2,
		},
	})

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database Connection", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	service, err := NewCampusPay(&database.Datasource{Conn: db})
	if err != nil {
		t.Fatalf("Error creating CampusPay instance: %s", err)
	}
	return service, mock
}

// signedPayload signs a payload the way the gateway does.
func signedPayload(payload []byte) (string, string) {
	ts := fmt.Sprintf("%d", time.Now().Unix())
	v := signature.NewVerifier([][]byte{[]byte(testSigningSecret)}, 5*time.Minute)
	return v.Sign(payload, ts), ts
}

func TestIngestEvent_FirstDelivery(t *testing.T) {
	service, mock := newTestService(t)

	payload := []byte(`{"id":"evt_first","type":"payment.succeeded","created":1700000000,"data":{"transaction":"txn_1","amount":2500,"currency":"USD"}}`)
	sig, ts := signedPayload(payload)

	mock.ExpectExec("INSERT INTO webhook_events").
		WithArgs("evt_first", "payment.succeeded", "txn_1", payload, model.EventPending, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	result, err := service.IngestEvent(context.Background(), payload, sig, ts)
	assert.NoError(t, err)
	assert.Equal(t, "evt_first", result.EventID)
	assert.False(t, result.Duplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIngestEvent_DuplicateDelivery(t *testing.T) {
	service, mock := newTestService(t)

	payload := []byte(`{"id":"evt_dup","type":"payment.succeeded","created":1700000000,"data":{"transaction":"txn_1","amount":2500,"currency":"USD"}}`)
	sig, ts := signedPayload(payload)

	mock.ExpectExec("INSERT INTO webhook_events").
		WithArgs("evt_dup", "payment.succeeded", "txn_1", payload, model.EventPending, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	rows := sqlmock.NewRows([]string{"event_id", "event_type", "transaction_id", "raw_payload", "processing_status", "failure_reason", "received_at", "processed_at"}).
		AddRow("evt_dup", "payment.succeeded", "txn_1", payload, model.EventProcessed, "", time.Now(), nil)
	mock.ExpectQuery("SELECT event_id, event_type, transaction_id").
		WithArgs("evt_dup").
		WillReturnRows(rows)

	result, err := service.IngestEvent(context.Background(), payload, sig, ts)
	assert.NoError(t, err)
	assert.Equal(t, "evt_dup", result.EventID)
	assert.True(t, result.Duplicate, "a replayed delivery is acknowledged, never reprocessed")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIngestEvent_InvalidSignature(t *testing.T) {
	service, mock := newTestService(t)

	payload := []byte(`{"id":"evt_bad","type":"payment.succeeded","data":{"transaction":"txn_1"}}`)
	ts := fmt.Sprintf("%d", time.Now().Unix())

	_, err := service.IngestEvent(context.Background(), payload, "deadbeef", ts)
	assert.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrSignatureInvalid, apiErr.Code)
	assert.NoError(t, mock.ExpectationsWereMet(), "a rejected delivery must not touch the database")
}

func TestIngestEvent_MalformedPayload(t *testing.T) {
	service, mock := newTestService(t)

	payload := []byte(`{"id":"evt_noid"`)
	sig, ts := signedPayload(payload)

	_, err := service.IngestEvent(context.Background(), payload, sig, ts)
	assert.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrMalformedEvent, apiErr.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIngestEvent_MissingTransactionID(t *testing.T) {
	service, _ := newTestService(t)

	payload := []byte(`{"id":"evt_notxn","type":"payment.succeeded","data":{"amount":100}}`)
	sig, ts := signedPayload(payload)

	_, err := service.IngestEvent(context.Background(), payload, sig, ts)
	assert.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrMalformedEvent, apiErr.Code)
}

func TestSweepPendingEvents(t *testing.T) {
	service, mock := newTestService(t)
	received := time.Now().Add(-10 * time.Minute)

	rows := sqlmock.NewRows([]string{"event_id", "event_type", "transaction_id", "raw_payload", "processing_status", "failure_reason", "received_at", "processed_at"}).
		AddRow("evt_stale", "payment.processing", "txn_1", []byte(`{}`), model.EventPending, "", received, nil)
	mock.ExpectQuery("SELECT event_id, event_type, transaction_id").
		WithArgs(model.EventPending, sqlmock.AnyArg(), 500).
		WillReturnRows(rows)

	swept := service.SweepPendingEvents(context.Background(), 5*time.Minute)
	assert.Equal(t, 1, swept)
	assert.NoError(t, mock.ExpectationsWereMet())
}
