package model

import "time"

const (
	RetryPending   = "pending"
	RetryRetrying  = "retrying"
	RetrySucceeded = "succeeded"
	RetryFailed    = "failed"
	RetryAbandoned = "abandoned"
)

// Failure reasons the gateway reports that are worth re-attempting. Anything
// else (card declined, fraud block) is terminal and never scheduled.
var retryableReasons = map[string]bool{
	"network_error":      true,
	"timeout":            true,
	"issuer_unavailable": true,
	"gateway_timeout":    true,
}

// IsRetryableFailure reports whether a gateway failure reason qualifies for a
// scheduled re-attempt.
func IsRetryableFailure(reason string) bool {
	return retryableReasons[reason]
}

// PaymentRetryRecord is the durable state of a delayed re-attempt. attempt_count
// is non-decreasing and never exceeds MaxAttempts; next_retry_at survives
// process restarts so a recovery sweep can re-enqueue overdue work.
type PaymentRetryRecord struct {
	ID            int64      `json:"-"`
	RetryID       string     `json:"id"`
	TransactionID string     `json:"transaction_id"`
	AttemptCount  int        `json:"attempt_count"`
	MaxAttempts   int        `json:"max_attempts"`
	NextRetryAt   *time.Time `json:"next_retry_at,omitempty"`
	Status        string     `json:"status"`
	LastError     string     `json:"last_error,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}
