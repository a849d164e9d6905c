package model

import "time"

const (
	AlertActive        = "active"
	AlertInvestigating = "investigating"
	AlertResolved      = "resolved"
	AlertFalsePositive = "false_positive"
)

const (
	AlertTypeRiskScore      = "risk_score_threshold"
	AlertTypeVelocity       = "velocity"
	AlertTypeSmallAmount    = "small_amount_probing"
	AlertTypeRetryExhausted = "retry_exhausted"
)

// FraudAlert is a raised heuristic signal. Alerts never block a transaction;
// blocking is a downstream policy decision made through ResolveAlert.
type FraudAlert struct {
	ID            int64     `json:"-"`
	AlertID       string    `json:"id"`
	TransactionID string    `json:"transaction_id"`
	AlertType     string    `json:"alert_type"`
	RiskScore     float64   `json:"risk_score"`
	Status        string    `json:"status"`
	ResolvedBy    string    `json:"resolved_by,omitempty"`
	Notes         string    `json:"notes,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}
