package gateway

import (
	"context"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"

	"github.com/campuspay/campuspay/config"
	"github.com/campuspay/campuspay/internal/apierror"
)

func newTestClient() *Client {
	return NewClient(config.GatewayConfig{
		BaseUrl: "http://gateway.example.com",
		ApiKey:  "sk_test_123",
	})
}

func TestSubmitRefund_Success(t *testing.T) {
	client := newTestClient()
	httpmock.ActivateNonDefault(client.httpClient)
	defer httpmock.DeactivateAndReset()

	var gotKey string
	httpmock.RegisterResponder("POST", "http://gateway.example.com/v1/refunds",
		func(req *http.Request) (*http.Response, error) {
			gotKey = req.Header.Get("Idempotency-Key")
			return httpmock.NewStringResponse(200, `{"status":"accepted"}`), nil
		})

	err := client.SubmitRefund(context.Background(), "rfd_1", RefundRequest{
		TransactionID: "txn_1",
		Amount:        500,
		Reason:        "requested_by_customer",
	})
	assert.NoError(t, err)
	assert.Equal(t, "rfd_1", gotKey)
}

func TestSubmitRefund_RetriesTransientFailure(t *testing.T) {
	client := newTestClient()
	httpmock.ActivateNonDefault(client.httpClient)
	defer httpmock.DeactivateAndReset()

	calls := 0
	httpmock.RegisterResponder("POST", "http://gateway.example.com/v1/refunds",
		func(req *http.Request) (*http.Response, error) {
			calls++
			if calls == 1 {
				return httpmock.NewStringResponse(503, `{"message":"upstream unavailable"}`), nil
			}
			return httpmock.NewStringResponse(200, `{"status":"accepted"}`), nil
		})

	err := client.SubmitRefund(context.Background(), "rfd_2", RefundRequest{TransactionID: "txn_1", Amount: 500})
	assert.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestSubmitRefund_RejectionIsNotRetried(t *testing.T) {
	client := newTestClient()
	httpmock.ActivateNonDefault(client.httpClient)
	defer httpmock.DeactivateAndReset()

	calls := 0
	httpmock.RegisterResponder("POST", "http://gateway.example.com/v1/refunds",
		func(req *http.Request) (*http.Response, error) {
			calls++
			return httpmock.NewStringResponse(422, `{"status":"rejected","message":"refund already processed"}`), nil
		})

	err := client.SubmitRefund(context.Background(), "rfd_3", RefundRequest{TransactionID: "txn_1", Amount: 500})
	assert.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrGatewayRejected, apiErr.Code)
	assert.Equal(t, 1, calls, "a gateway rejection must not be retried")
}

func TestAttemptCapture_IdempotencyKeyScopedToAttempt(t *testing.T) {
	client := newTestClient()
	httpmock.ActivateNonDefault(client.httpClient)
	defer httpmock.DeactivateAndReset()

	var gotKey string
	httpmock.RegisterResponder("POST", "http://gateway.example.com/v1/captures/retry",
		func(req *http.Request) (*http.Response, error) {
			gotKey = req.Header.Get("Idempotency-Key")
			return httpmock.NewStringResponse(200, `{"status":"accepted"}`), nil
		})

	err := client.AttemptCapture(context.Background(), "rty_1", RetryRequest{TransactionID: "txn_1", Attempt: 3})
	assert.NoError(t, err)
	assert.Equal(t, "rty_1:3", gotKey)
}

func TestAttemptCapture_CanceledContext(t *testing.T) {
	client := newTestClient()
	httpmock.ActivateNonDefault(client.httpClient)
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("POST", "http://gateway.example.com/v1/captures/retry",
		httpmock.NewStringResponder(503, `{"message":"unavailable"}`))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := client.AttemptCapture(ctx, "rty_2", RetryRequest{TransactionID: "txn_1", Attempt: 1})
	assert.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrGatewayTimeout, apiErr.Code)
}
