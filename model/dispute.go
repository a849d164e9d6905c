package model

import "time"

const (
	DisputeNeedsResponse = "needs_response"
	DisputeUnderReview   = "under_review"
	DisputeWon           = "won"
	DisputeLost          = "lost"
	DisputeClosed        = "closed"
)

// DisputeRecord tracks a chargeback claim. At most one active dispute exists
// per transaction at a time.
type DisputeRecord struct {
	ID                int64     `json:"-"`
	DisputeID         string    `json:"id"`
	TransactionID     string    `json:"transaction_id"`
	Amount            int64     `json:"amount"`
	Status            string    `json:"status"`
	EvidenceDueBy     time.Time `json:"evidence_due_by"`
	EvidenceSubmitted bool      `json:"evidence_submitted"`
	CreatedAt         time.Time `json:"created_at"`
}

// IsActive reports whether the dispute still accepts status updates.
func (d *DisputeRecord) IsActive() bool {
	return d.Status == DisputeNeedsResponse || d.Status == DisputeUnderReview
}
