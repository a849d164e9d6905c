package model

import (
	"encoding/json"
	"time"
)

const (
	ActionStatusTransition = "status_transition"
	ActionRefundRequested  = "refund_requested"
	ActionRefundCompleted  = "refund_completed"
	ActionDisputeOpened    = "dispute_opened"
	ActionEvidenceSubmit   = "evidence_submitted"
	ActionDisputeClosed    = "dispute_closed"
	ActionRetryScheduled   = "retry_scheduled"
	ActionRetryAbandoned   = "retry_abandoned"
	ActionAlertResolved    = "alert_resolved"
	ActionOutOfOrderEvent  = "out_of_order_event"
)

// AuditLogEntry is append-only. Entries are written in the same SQL
// transaction as the mutation they describe; neither commits without the other.
type AuditLogEntry struct {
	ID           int64           `json:"-"`
	AuditID      string          `json:"id"`
	ActionType   string          `json:"action_type"`
	ResourceType string          `json:"resource_type"`
	ResourceID   string          `json:"resource_id"`
	Actor        string          `json:"actor"`
	Before       json.RawMessage `json:"before,omitempty"`
	After        json.RawMessage `json:"after,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// NewAuditEntry builds an entry with marshalled before/after snapshots.
// Snapshot marshalling failures surface as nil payloads rather than blocking
// the audit write; the action and resource identifiers always persist.
func NewAuditEntry(actionType, resourceType, resourceID, actor string, before, after interface{}) *AuditLogEntry {
	entry := &AuditLogEntry{
		AuditID:      GenerateUUIDWithSuffix("aud"),
		ActionType:   actionType,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Actor:        actor,
		CreatedAt:    time.Now(),
	}
	if before != nil {
		if b, err := json.Marshal(before); err == nil {
			entry.Before = b
		}
	}
	if after != nil {
		if a, err := json.Marshal(after); err == nil {
			entry.After = a
		}
	}
	return entry
}
