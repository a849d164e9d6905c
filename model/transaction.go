package model

import (
	"encoding/json"
	"time"
)

const (
	StatusCreated        = "created"
	StatusRequiresAction = "requires_action"
	StatusProcessing     = "processing"
	StatusSucceeded      = "succeeded"
	StatusFailed         = "failed"
	StatusCanceled       = "canceled"
	StatusRefunded       = "refunded"
	StatusDisputed       = "disputed"
)

// allowedTransitions encodes the lifecycle DAG. The only back-edge is the
// retry loop processing -> requires_action -> processing; failed -> succeeded
// exists solely for the retry capture path. failed is not terminal while a
// retry can still land, so cancellation stays open for it too.
var allowedTransitions = map[string][]string{
	StatusCreated:        {StatusRequiresAction, StatusProcessing, StatusSucceeded, StatusFailed, StatusCanceled},
	StatusRequiresAction: {StatusProcessing, StatusCanceled},
	StatusProcessing:     {StatusRequiresAction, StatusSucceeded, StatusFailed, StatusCanceled},
	StatusFailed:         {StatusSucceeded, StatusCanceled},
	StatusSucceeded:      {StatusRefunded, StatusDisputed},
	StatusDisputed:       {},
	StatusRefunded:       {},
	StatusCanceled:       {},
}

// Transaction is the canonical record of a single payment attempt. The id is
// gateway-issued; amounts are integer minor units in the gateway's currency.
type Transaction struct {
	ID            int64                  `json:"-"`
	TransactionID string                 `json:"id"`
	Amount        int64                  `json:"amount"`
	Currency      string                 `json:"currency"`
	Status        string                 `json:"status"`
	RiskScore     float64                `json:"risk_score"`
	Actor         string                 `json:"actor,omitempty"`
	FailureReason string                 `json:"failure_reason,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
	MetaData      map[string]interface{} `json:"meta_data,omitempty"`
}

// CanTransition reports whether moving from the transaction's current status
// to target is a legal edge of the lifecycle DAG.
func (transaction *Transaction) CanTransition(target string) bool {
	for _, next := range allowedTransitions[transaction.Status] {
		if next == target {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further event-driven transition is permitted.
// succeeded is not terminal: refund and dispute overlays still apply to it.
func (transaction *Transaction) IsTerminal() bool {
	switch transaction.Status {
	case StatusCanceled, StatusRefunded, StatusDisputed:
		return true
	}
	return false
}

func (transaction *Transaction) ToJSON() ([]byte, error) {
	return json.Marshal(transaction)
}
