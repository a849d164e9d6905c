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

package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/campuspay/campuspay"
	"github.com/campuspay/campuspay/config"
	"github.com/campuspay/campuspay/database"
	"github.com/campuspay/campuspay/internal/signature"
	"github.com/campuspay/campuspay/model"
)

const testSigningSecret = "whsec_api_test"

type TestRequest struct {
	Payload  io.Reader
	Router   *gin.Engine
	Response interface{}
	Method   string
	Route    string
	Auth     string
	Header   map[string]string
}

func SetUpTestRequest(s TestRequest) (*httptest.ResponseRecorder, error) {
	req := httptest.NewRequest(s.Method, s.Route, s.Payload)
	for key, value := range s.Header {
		req.Header.Set(key, value)
	}
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	s.Router.ServeHTTP(resp, req)

	err := json.NewDecoder(resp.Body).Decode(&s.Response)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func setupRouter(t *testing.T) (*gin.Engine, sqlmock.Sqlmock, error) {
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

	service, err := campuspay.NewCampusPay(&database.Datasource{Conn: db})
	if err != nil {
		return nil, nil, err
	}
	router := NewAPI(service).Router()

	return router, mock, nil
}

// signDelivery signs a payload the way the gateway signs deliveries.
func signDelivery(payload []byte) (string, string) {
	ts := fmt.Sprintf("%d", time.Now().Unix())
	v := signature.NewVerifier([][]byte{[]byte(testSigningSecret)}, 5*time.Minute)
	return v.Sign(payload, ts), ts
}

func TestIngestWebhook(t *testing.T) {
	router, mock, err := setupRouter(t)
	if err != nil {
		t.Fatalf("Failed to setup router: %v", err)
	}

	payload := []byte(`{"id":"evt_api_1","type":"payment.succeeded","data":{"transaction":"txn_api_1","amount":2500,"currency":"USD"}}`)
	sig, ts := signDelivery(payload)

	mock.ExpectExec("INSERT INTO webhook_events").
		WithArgs("evt_api_1", "payment.succeeded", "txn_api_1", payload, model.EventPending, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	var response campuspay.IngestResult
	resp, err := SetUpTestRequest(TestRequest{
		Payload:  bytes.NewBuffer(payload),
		Router:   router,
		Method:   "POST",
		Route:    "/webhooks/payments",
		Response: &response,
		Header: map[string]string{
			SignatureHeader:          sig,
			SignatureTimestampHeader: ts,
		},
	})
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "evt_api_1", response.EventID)
	assert.False(t, response.Duplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIngestWebhookDuplicateDelivery(t *testing.T) {
	router, mock, err := setupRouter(t)
	if err != nil {
		t.Fatalf("Failed to setup router: %v", err)
	}

	payload := []byte(`{"id":"evt_api_2","type":"payment.succeeded","data":{"transaction":"txn_api_2","amount":1200,"currency":"USD"}}`)
	sig, ts := signDelivery(payload)

	mock.ExpectExec("INSERT INTO webhook_events").
		WithArgs("evt_api_2", "payment.succeeded", "txn_api_2", payload, model.EventPending, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	rows := sqlmock.NewRows([]string{"event_id", "event_type", "transaction_id", "raw_payload", "processing_status", "failure_reason", "received_at", "processed_at"}).
		AddRow("evt_api_2", "payment.succeeded", "txn_api_2", payload, model.EventProcessed, "", time.Now(), nil)
	mock.ExpectQuery("SELECT event_id, event_type, transaction_id").
		WithArgs("evt_api_2").
		WillReturnRows(rows)

	var response campuspay.IngestResult
	resp, err := SetUpTestRequest(TestRequest{
		Payload:  bytes.NewBuffer(payload),
		Router:   router,
		Method:   "POST",
		Route:    "/webhooks/payments",
		Response: &response,
		Header: map[string]string{
			SignatureHeader:          sig,
			SignatureTimestampHeader: ts,
		},
	})
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Code, "a replayed delivery is acknowledged, never retried by the gateway")
	assert.True(t, response.Duplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIngestWebhookInvalidSignature(t *testing.T) {
	router, mock, err := setupRouter(t)
	if err != nil {
		t.Fatalf("Failed to setup router: %v", err)
	}

	payload := []byte(`{"id":"evt_api_3","type":"payment.succeeded","data":{"transaction":"txn_api_3"}}`)
	ts := fmt.Sprintf("%d", time.Now().Unix())

	var response map[string]interface{}
	resp, err := SetUpTestRequest(TestRequest{
		Payload:  bytes.NewBuffer(payload),
		Router:   router,
		Method:   "POST",
		Route:    "/webhooks/payments",
		Response: &response,
		Header: map[string]string{
			SignatureHeader:          "deadbeef",
			SignatureTimestampHeader: ts,
		},
	})
	assert.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.NoError(t, mock.ExpectationsWereMet(), "a rejected delivery must not touch the database")
}
