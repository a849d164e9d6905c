package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/campuspay/campuspay/model"
)

// IDataSource defines the interface for data source operations, grouping related functionalities.
type IDataSource interface {
	transaction
	webhookEvent
	refund
	dispute
	fraudAlert
	paymentRetry
	auditLog
	metrics
}

// transaction defines methods for handling transactions.
type transaction interface {
	CreateTransaction(ctx context.Context, txn *model.Transaction) (*model.Transaction, error)                                 // Inserts a transaction if it does not exist yet
	GetTransaction(ctx context.Context, id string) (*model.Transaction, error)                                                 // Retrieves a transaction by ID
	TransitionStatus(ctx context.Context, txn *model.Transaction, newStatus string, entry *model.AuditLogEntry, sideEffects ...TxOp) (*model.Transaction, error) // Applies a guarded status transition with its audit entry atomically
}

// webhookEvent defines methods for the durable event store backing ingestion idempotency.
type webhookEvent interface {
	InsertEventIfNew(ctx context.Context, event *model.WebhookEvent) (bool, *model.WebhookEvent, error) // Atomic check-and-insert on event id
	GetWebhookEvent(ctx context.Context, eventID string) (*model.WebhookEvent, error)
	MarkEventProcessed(ctx context.Context, eventID string) error
	MarkEventFailed(ctx context.Context, eventID string, reason string) error
	GetStalePendingEvents(ctx context.Context, olderThan time.Duration, limit int) ([]*model.WebhookEvent, error) // Startup sweep source
}

// refund defines methods for refund records and the conservation guard.
type refund interface {
	CreateRefundGuarded(ctx context.Context, rfd *model.RefundRecord, entry *model.AuditLogEntry) (*model.RefundRecord, error) // Inserts a refund after verifying available amount under a row lock
	GetRefund(ctx context.Context, refundID string) (*model.RefundRecord, error)
	GetRefundsByTransaction(ctx context.Context, transactionID string) ([]*model.RefundRecord, error)
	FindDuplicateRefund(ctx context.Context, transactionID string, amount int64, reason string, window time.Duration) (*model.RefundRecord, error)
	UpdateRefundStatus(ctx context.Context, refundID string, status string, entry *model.AuditLogEntry) (*model.RefundRecord, error)
	SumSettledRefunds(ctx context.Context, transactionID string) (int64, error) // Sum of succeeded refund amounts
}

// dispute defines methods for chargeback records.
type dispute interface {
	CreateDispute(ctx context.Context, dsp *model.DisputeRecord, entry *model.AuditLogEntry) (*model.DisputeRecord, error)
	GetDispute(ctx context.Context, disputeID string) (*model.DisputeRecord, error)
	GetActiveDisputeByTransaction(ctx context.Context, transactionID string) (*model.DisputeRecord, error)
	MarkEvidenceSubmitted(ctx context.Context, disputeID string, entry *model.AuditLogEntry) error
	CloseDispute(ctx context.Context, disputeID string, status string, entry *model.AuditLogEntry) (bool, error) // Applies only while the dispute is still active
}

// fraudAlert defines methods for heuristic alerts.
type fraudAlert interface {
	CreateFraudAlert(ctx context.Context, alert *model.FraudAlert) (*model.FraudAlert, error)
	GetFraudAlert(ctx context.Context, alertID string) (*model.FraudAlert, error)
	GetOpenFraudAlert(ctx context.Context, transactionID, alertType string) (*model.FraudAlert, error) // Dedupe lookup for raising alerts
	GetFraudAlerts(ctx context.Context, status string, limit, offset int) ([]*model.FraudAlert, error)
	ResolveFraudAlert(ctx context.Context, alertID, status, resolvedBy, notes string, entry *model.AuditLogEntry) (*model.FraudAlert, error)
}

// paymentRetry defines methods for the durable retry queue state.
type paymentRetry interface {
	CreateRetry(ctx context.Context, retry *model.PaymentRetryRecord, entry *model.AuditLogEntry) (*model.PaymentRetryRecord, error)
	GetRetry(ctx context.Context, retryID string) (*model.PaymentRetryRecord, error)
	GetActiveRetryByTransaction(ctx context.Context, transactionID string) (*model.PaymentRetryRecord, error)
	ClaimRetryAttempt(ctx context.Context, retryID string) (*model.PaymentRetryRecord, bool, error) // Atomic lease: bumps attempt_count within bounds
	SettleRetry(ctx context.Context, retryID string, status string, nextRetryAt *time.Time, lastError string, entry *model.AuditLogEntry) error
	GetDueRetries(ctx context.Context, due time.Time, limit int) ([]*model.PaymentRetryRecord, error) // Recovery sweep source
}

// auditLog defines methods for the append-only audit trail.
type auditLog interface {
	RecordAudit(ctx context.Context, entry *model.AuditLogEntry) error
	GetAuditLogs(ctx context.Context, filter AuditFilter) ([]*model.AuditLogEntry, error)
}

// metrics defines the read-only aggregates consumed by dashboards.
type metrics interface {
	GetMetricsSummary(ctx context.Context, since time.Time) (*model.MetricsSummary, error)
}

// TxOp is an extra statement executed inside the same SQL transaction as a
// status transition, so side-effect records commit or roll back with it.
type TxOp func(tx *sql.Tx) error

// AuditFilter narrows audit trail queries. Zero values mean "any".
type AuditFilter struct {
	ResourceType string
	ResourceID   string
	Actor        string
	From         time.Time
	To           time.Time
	Limit        int
	Offset       int
}
