package model

import (
	"encoding/json"
	"time"
)

const (
	EventPending   = "pending"
	EventProcessed = "processed"
	EventFailed    = "failed"
	EventDuplicate = "duplicate"
)

// Gateway event types recognized by the state machine dispatch table.
const (
	EventPaymentActionRequired = "payment.action_required"
	EventPaymentProcessing     = "payment.processing"
	EventPaymentSucceeded      = "payment.succeeded"
	EventPaymentFailed         = "payment.failed"
	EventPaymentCanceled       = "payment.canceled"
	EventRefundSucceeded       = "refund.succeeded"
	EventRefundFailed          = "refund.failed"
	EventDisputeCreated        = "dispute.created"
	EventDisputeWon            = "dispute.won"
	EventDisputeLost           = "dispute.lost"
	EventDisputeClosed         = "dispute.closed"
)

// EventEnvelope is the wire format of an inbound gateway notification.
type EventEnvelope struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Created int64           `json:"created"`
	Data    json.RawMessage `json:"data"`
}

// EventData is the payload common to payment events. Refund and dispute
// events reuse the transaction reference and add their own fields.
type EventData struct {
	TransactionID string                 `json:"transaction"`
	Amount        int64                  `json:"amount"`
	Currency      string                 `json:"currency"`
	Actor         string                 `json:"actor,omitempty"`
	RiskScore     float64                `json:"risk_score,omitempty"`
	FailureReason string                 `json:"failure_reason,omitempty"`
	RefundID      string                 `json:"refund,omitempty"`
	DisputeID     string                 `json:"dispute,omitempty"`
	EvidenceDueBy *time.Time             `json:"evidence_due_by,omitempty"`
	MetaData      map[string]interface{} `json:"meta_data,omitempty"`
}

// WebhookEvent is the durable record of a received gateway event. The event id
// is the idempotency key; the row is immutable once processed and retained for
// replay and audit.
type WebhookEvent struct {
	ID               int64           `json:"-"`
	EventID          string          `json:"id"`
	EventType        string          `json:"type"`
	TransactionID    string          `json:"transaction_id"`
	RawPayload       json.RawMessage `json:"payload"`
	ProcessingStatus string          `json:"processing_status"`
	FailureReason    string          `json:"failure_reason,omitempty"`
	ReceivedAt       time.Time       `json:"received_at"`
	ProcessedAt      *time.Time      `json:"processed_at,omitempty"`
}
