/*
Copyright 2025 CampusPay Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package database

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/campuspay/campuspay/internal/apierror"
	"github.com/campuspay/campuspay/model"
)

func newTestRefund(amount int64) *model.RefundRecord {
	return &model.RefundRecord{
		RefundID:      model.GenerateUUIDWithSuffix("rfd"),
		TransactionID: "txn_guarded",
		Amount:        amount,
		Reason:        "requested_by_customer",
		Status:        model.RefundPending,
		InitiatedBy:   "staff_1",
		CreatedAt:     time.Now(),
	}
}

func TestCreateRefundGuarded_WithinCapturedAmount(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer func() { _ = db.Close() }()

	ds := Datasource{Conn: db}
	refund := newTestRefund(400)
	entry := model.NewAuditEntry(model.ActionRefundRequested, "refund", refund.RefundID, "staff_1", nil, refund)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT amount FROM transactions").
		WithArgs(refund.TransactionID).
		WillReturnRows(sqlmock.NewRows([]string{"amount"}).AddRow(1000))
	mock.ExpectQuery(`SELECT COALESCE\(SUM\(amount\), 0\)`).
		WithArgs(refund.TransactionID, model.RefundPending, model.RefundSucceeded).
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(500))
	mock.ExpectExec("INSERT INTO refunds").
		WithArgs(refund.RefundID, refund.TransactionID, refund.Amount, refund.Reason, refund.Status, refund.InitiatedBy, refund.CreatedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO audit_logs").
		WithArgs(entry.AuditID, entry.ActionType, entry.ResourceType, entry.ResourceID, entry.Actor, sqlmock.AnyArg(), sqlmock.AnyArg(), entry.CreatedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	got, err := ds.CreateRefundGuarded(context.Background(), refund, entry)
	assert.NoError(t, err)
	assert.Equal(t, refund, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateRefundGuarded_ExceedsCapturedAmount(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer func() { _ = db.Close() }()

	ds := Datasource{Conn: db}
	refund := newTestRefund(600)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT amount FROM transactions").
		WithArgs(refund.TransactionID).
		WillReturnRows(sqlmock.NewRows([]string{"amount"}).AddRow(1000))
	mock.ExpectQuery(`SELECT COALESCE\(SUM\(amount\), 0\)`).
		WithArgs(refund.TransactionID, model.RefundPending, model.RefundSucceeded).
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(500))
	mock.ExpectRollback()

	_, err = ds.CreateRefundGuarded(context.Background(), refund, nil)
	assert.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrRefundExceedsAvailable, apiErr.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateRefundGuarded_UnknownTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer func() { _ = db.Close() }()

	ds := Datasource{Conn: db}
	refund := newTestRefund(100)
	refund.TransactionID = "txn_missing"

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT amount FROM transactions").
		WithArgs(refund.TransactionID).
		WillReturnRows(sqlmock.NewRows([]string{"amount"}))
	mock.ExpectRollback()

	_, err = ds.CreateRefundGuarded(context.Background(), refund, nil)
	assert.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrNotFound, apiErr.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindDuplicateRefund_NoMatch(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer func() { _ = db.Close() }()

	ds := Datasource{Conn: db}

	mock.ExpectQuery("SELECT refund_id, transaction_id, amount").
		WithArgs("txn_1", int64(250), "duplicate_charge", model.RefundPending, model.RefundSucceeded, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"refund_id"}))

	dup, err := ds.FindDuplicateRefund(context.Background(), "txn_1", 250, "duplicate_charge", time.Hour)
	assert.NoError(t, err)
	assert.Nil(t, dup)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindDuplicateRefund_Match(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer func() { _ = db.Close() }()

	ds := Datasource{Conn: db}
	created := time.Now().Add(-time.Minute)

	rows := sqlmock.NewRows([]string{"refund_id", "transaction_id", "amount", "reason", "status", "initiated_by", "created_at"}).
		AddRow("rfd_existing", "txn_1", int64(250), "duplicate_charge", model.RefundPending, "staff_1", created)
	mock.ExpectQuery("SELECT refund_id, transaction_id, amount").
		WithArgs("txn_1", int64(250), "duplicate_charge", model.RefundPending, model.RefundSucceeded, sqlmock.AnyArg()).
		WillReturnRows(rows)

	dup, err := ds.FindDuplicateRefund(context.Background(), "txn_1", 250, "duplicate_charge", time.Hour)
	assert.NoError(t, err)
	assert.NotNil(t, dup)
	assert.Equal(t, "rfd_existing", dup.RefundID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateRefundStatus_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer func() { _ = db.Close() }()

	ds := Datasource{Conn: db}

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE refunds SET status").
		WithArgs("rfd_missing", model.RefundSucceeded).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err = ds.UpdateRefundStatus(context.Background(), "rfd_missing", model.RefundSucceeded, nil)
	assert.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrNotFound, apiErr.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSumSettledRefunds(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer func() { _ = db.Close() }()

	ds := Datasource{Conn: db}

	mock.ExpectQuery(`SELECT COALESCE\(SUM\(amount\), 0\)`).
		WithArgs("txn_1", model.RefundSucceeded).
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(750))

	total, err := ds.SumSettledRefunds(context.Background(), "txn_1")
	assert.NoError(t, err)
	assert.Equal(t, int64(750), total)
	assert.NoError(t, mock.ExpectationsWereMet())
}
