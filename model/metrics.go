package model

import "time"

// MetricsSummary is the read-only aggregate view consumed by dashboards.
// It is computed on demand from the persisted entities; nothing here feeds
// back into the processing pipeline.
type MetricsSummary struct {
	Since                time.Time        `json:"since"`
	TransactionsByStatus map[string]int64 `json:"transactions_by_status"`
	EventsReceived       int64            `json:"events_received"`
	EventsProcessed      int64            `json:"events_processed"`
	EventsFailed         int64            `json:"events_failed"`
	RefundVolume         int64            `json:"refund_volume"`
	DisputesOpen         int64            `json:"disputes_open"`
	AlertsActive         int64            `json:"alerts_active"`
	RetriesAbandoned     int64            `json:"retries_abandoned"`
	GeneratedAt          time.Time        `json:"generated_at"`
}
