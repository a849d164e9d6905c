// Package gateway is the outbound client for the payment gateway. Refund
// submissions and payment retry attempts go through it. Calls carry an
// idempotency key so a replay after a transport failure cannot double-apply.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"

	"github.com/campuspay/campuspay/config"
	"github.com/campuspay/campuspay/internal/apierror"
)

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(cfg config.GatewayConfig) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    cfg.BaseUrl,
		apiKey:     cfg.ApiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type RefundRequest struct {
	TransactionID string `json:"transaction_id"`
	Amount        int64  `json:"amount"`
	Reason        string `json:"reason,omitempty"`
}

type RetryRequest struct {
	TransactionID string `json:"transaction_id"`
	Attempt       int    `json:"attempt"`
}

type gatewayResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// SubmitRefund asks the gateway to execute a refund. The refund id doubles
// as the idempotency key.
func (c *Client) SubmitRefund(ctx context.Context, refundID string, req RefundRequest) error {
	return c.post(ctx, "/v1/refunds", refundID, req)
}

// AttemptCapture asks the gateway to re-run a failed capture. The composite
// key ties the idempotency scope to the specific attempt number.
func (c *Client) AttemptCapture(ctx context.Context, retryID string, req RetryRequest) error {
	key := fmt.Sprintf("%s:%d", retryID, req.Attempt)
	return c.post(ctx, "/v1/captures/retry", key, req)
}

func (c *Client) post(ctx context.Context, path, idempotencyKey string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "failed to marshal gateway request")
	}

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(errors.Wrap(err, "failed to build gateway request"))
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Idempotency-Key", idempotencyKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return errors.Wrap(err, "gateway request failed")
		}
		defer resp.Body.Close()

		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

		switch {
		case resp.StatusCode < 300:
			return nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return errors.Errorf("gateway returned %d: %s", resp.StatusCode, respBody)
		default:
			var gr gatewayResponse
			_ = json.Unmarshal(respBody, &gr)
			return backoff.Permanent(apierror.NewAPIError(apierror.ErrGatewayRejected,
				fmt.Sprintf("Gateway rejected request: %s", gr.Message), errors.Errorf("gateway returned %d", resp.StatusCode)))
		}
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	if err := backoff.Retry(operation, bo); err != nil {
		var apiErr apierror.APIError
		if errors.As(err, &apiErr) {
			return apiErr
		}
		if ctx.Err() != nil || isTimeout(err) {
			return apierror.NewAPIError(apierror.ErrGatewayTimeout, "Gateway request timed out", err)
		}
		return apierror.NewAPIError(apierror.ErrGatewayRejected, "Gateway request failed after retries", err)
	}
	return nil
}

func isTimeout(err error) bool {
	type timeout interface{ Timeout() bool }
	var t timeout
	return errors.As(err, &t) && t.Timeout()
}
