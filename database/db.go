package database

import (
	"database/sql"
	"log"
	"sync"

	"github.com/campuspay/campuspay/config"
	"github.com/campuspay/campuspay/internal/cache"

	_ "github.com/lib/pq"
)

// Declare a package-level variable to hold the singleton instance.
// Ensure the instance is not accessible outside the package.
var instance *Datasource
var once sync.Once

type Datasource struct {
	Conn  *sql.DB
	Cache cache.Cache
}

func NewDataSource(configuration *config.Configuration) (IDataSource, error) {
	con, err := GetDBConnection(configuration)
	if err != nil {
		return nil, err
	}
	return con, nil
}

// GetDBConnection provides a global access point to the instance and initializes it if it's not already.
func GetDBConnection(configuration *config.Configuration) (*Datasource, error) {
	var err error
	once.Do(func() {
		con, errConn := ConnectDB(configuration.DataSource.Dns)
		if errConn != nil {
			err = errConn
			return
		}
		instance = &Datasource{Conn: con, Cache: nil}
	})
	if err != nil {
		return nil, err
	}
	return instance, nil
}

func ConnectDB(dns string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dns)
	if err != nil {
		return nil, err
	}
	err = db.Ping()
	if err != nil {
		log.Printf("database Connection error: %v", err)
		return nil, err
	}
	err = createTransactionTable(db)
	if err != nil {
		return nil, err
	}
	err = createWebhookEventTable(db)
	if err != nil {
		return nil, err
	}
	err = createRefundTable(db)
	if err != nil {
		return nil, err
	}
	err = createDisputeTable(db)
	if err != nil {
		return nil, err
	}
	err = createFraudAlertTable(db)
	if err != nil {
		return nil, err
	}
	err = createPaymentRetryTable(db)
	if err != nil {
		return nil, err
	}
	err = createAuditLogTable(db)
	if err != nil {
		return nil, err
	}
	return db, nil
}

// createTransactionTable creates a PostgreSQL table for the Transaction struct
func createTransactionTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS transactions (
			id SERIAL PRIMARY KEY,
			transaction_id TEXT NOT NULL UNIQUE,
			amount BIGINT NOT NULL,
			currency TEXT NOT NULL,
			status TEXT NOT NULL,
			risk_score DOUBLE PRECISION NOT NULL DEFAULT 0,
			actor TEXT,
			failure_reason TEXT,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
			meta_data JSONB
		)
	`)
	if err != nil {
		log.Printf("Error creating transactions table: %v", err)
	}
	return err
}

// createWebhookEventTable creates a PostgreSQL table for the WebhookEvent
// struct. The unique constraint on event_id is what makes the ingestion
// check-and-insert atomic under concurrent duplicate deliveries.
func createWebhookEventTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS webhook_events (
			id SERIAL PRIMARY KEY,
			event_id TEXT NOT NULL UNIQUE,
			event_type TEXT NOT NULL,
			transaction_id TEXT,
			raw_payload JSONB NOT NULL,
			processing_status TEXT NOT NULL DEFAULT 'pending',
			failure_reason TEXT,
			received_at TIMESTAMP NOT NULL DEFAULT NOW(),
			processed_at TIMESTAMP
		)
	`)
	if err != nil {
		log.Printf("Error creating webhook_events table: %v", err)
	}
	return err
}

// createRefundTable creates a PostgreSQL table for the RefundRecord struct
func createRefundTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS refunds (
			id SERIAL PRIMARY KEY,
			refund_id TEXT NOT NULL UNIQUE,
			transaction_id TEXT NOT NULL REFERENCES transactions(transaction_id),
			amount BIGINT NOT NULL,
			reason TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			initiated_by TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		log.Printf("Error creating refunds table: %v", err)
	}
	return err
}

// createDisputeTable creates a PostgreSQL table for the DisputeRecord struct.
// The partial unique index enforces at most one active dispute per transaction.
func createDisputeTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS disputes (
			id SERIAL PRIMARY KEY,
			dispute_id TEXT NOT NULL UNIQUE,
			transaction_id TEXT NOT NULL REFERENCES transactions(transaction_id),
			amount BIGINT NOT NULL,
			status TEXT NOT NULL DEFAULT 'needs_response',
			evidence_due_by TIMESTAMP NOT NULL,
			evidence_submitted BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		);
		CREATE UNIQUE INDEX IF NOT EXISTS disputes_one_active
			ON disputes (transaction_id)
			WHERE status IN ('needs_response', 'under_review')
	`)
	if err != nil {
		log.Printf("Error creating disputes table: %v", err)
	}
	return err
}

// createFraudAlertTable creates a PostgreSQL table for the FraudAlert struct
func createFraudAlertTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS fraud_alerts (
			id SERIAL PRIMARY KEY,
			alert_id TEXT NOT NULL UNIQUE,
			transaction_id TEXT NOT NULL,
			alert_type TEXT NOT NULL,
			risk_score DOUBLE PRECISION NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'active',
			resolved_by TEXT,
			notes TEXT,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		log.Printf("Error creating fraud_alerts table: %v", err)
	}
	return err
}

// createPaymentRetryTable creates a PostgreSQL table for the PaymentRetryRecord struct
func createPaymentRetryTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS payment_retries (
			id SERIAL PRIMARY KEY,
			retry_id TEXT NOT NULL UNIQUE,
			transaction_id TEXT NOT NULL REFERENCES transactions(transaction_id),
			attempt_count INT NOT NULL DEFAULT 0,
			max_attempts INT NOT NULL,
			next_retry_at TIMESTAMP,
			status TEXT NOT NULL DEFAULT 'pending',
			last_error TEXT,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			CHECK (attempt_count <= max_attempts)
		)
	`)
	if err != nil {
		log.Printf("Error creating payment_retries table: %v", err)
	}
	return err
}

// createAuditLogTable creates a PostgreSQL table for the AuditLogEntry struct.
// Rows are append-only; nothing in the codebase updates or deletes them.
func createAuditLogTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS audit_logs (
			id SERIAL PRIMARY KEY,
			audit_id TEXT NOT NULL UNIQUE,
			action_type TEXT NOT NULL,
			resource_type TEXT NOT NULL,
			resource_id TEXT NOT NULL,
			actor TEXT NOT NULL,
			before_state JSONB,
			after_state JSONB,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		log.Printf("Error creating audit_logs table: %v", err)
	}
	return err
}
