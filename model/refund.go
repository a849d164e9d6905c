package model

import "time"

const (
	RefundPending   = "pending"
	RefundSucceeded = "succeeded"
	RefundFailed    = "failed"
	RefundCanceled  = "canceled"
)

// RefundRecord tracks a monetary reversal against a succeeded transaction.
// The summed amount of all pending and succeeded refunds never exceeds the
// original transaction amount.
type RefundRecord struct {
	ID            int64     `json:"-"`
	RefundID      string    `json:"id"`
	TransactionID string    `json:"transaction_id"`
	Amount        int64     `json:"amount"`
	Reason        string    `json:"reason"`
	Status        string    `json:"status"`
	InitiatedBy   string    `json:"initiated_by"`
	CreatedAt     time.Time `json:"created_at"`
}
