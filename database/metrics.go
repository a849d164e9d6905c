package database

import (
	"context"
	"time"

	"github.com/campuspay/campuspay/internal/apierror"
	"github.com/campuspay/campuspay/model"
)

// GetMetricsSummary aggregates operational counts over records created since
// the cutoff. Reads are plain aggregates over the live tables; there is no
// separate rollup store.
func (d Datasource) GetMetricsSummary(ctx context.Context, since time.Time) (*model.MetricsSummary, error) {
	summary := &model.MetricsSummary{
		Since:                since,
		TransactionsByStatus: make(map[string]int64),
		GeneratedAt:          time.Now(),
	}

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT status, COUNT(*)
		FROM transactions
		WHERE created_at >= $1
		GROUP BY status
	`, since)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to count transactions by status", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan status count", err)
		}
		summary.TransactionsByStatus[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error iterating status counts", err)
	}

	err = d.Conn.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE processing_status = $2),
		       COUNT(*) FILTER (WHERE processing_status = $3)
		FROM webhook_events
		WHERE received_at >= $1
	`, since, model.EventProcessed, model.EventFailed).Scan(&summary.EventsReceived, &summary.EventsProcessed, &summary.EventsFailed)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to count webhook events", err)
	}

	err = d.Conn.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0)
		FROM refunds
		WHERE created_at >= $1 AND status = $2
	`, since, model.RefundSucceeded).Scan(&summary.RefundVolume)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to sum refund volume", err)
	}

	err = d.Conn.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM disputes
		WHERE status IN ($1, $2)
	`, model.DisputeNeedsResponse, model.DisputeUnderReview).Scan(&summary.DisputesOpen)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to count open disputes", err)
	}

	err = d.Conn.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM fraud_alerts
		WHERE status IN ($1, $2)
	`, model.AlertActive, model.AlertInvestigating).Scan(&summary.AlertsActive)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to count active fraud alerts", err)
	}

	err = d.Conn.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM payment_retries
		WHERE created_at >= $1 AND status = $2
	`, since, model.RetryAbandoned).Scan(&summary.RetriesAbandoned)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to count abandoned retries", err)
	}

	return summary, nil
}
