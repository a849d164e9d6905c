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
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	"github.com/campuspay/campuspay/internal/apierror"
	"github.com/campuspay/campuspay/model"
)

func newTestDispute() *model.DisputeRecord {
	return &model.DisputeRecord{
		DisputeID:     model.GenerateUUIDWithSuffix("dsp"),
		TransactionID: "txn_disputed",
		Amount:        1500,
		Status:        model.DisputeNeedsResponse,
		EvidenceDueBy: time.Now().Add(7 * 24 * time.Hour),
		CreatedAt:     time.Now(),
	}
}

func TestCreateDispute(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer func() { _ = db.Close() }()

	ds := Datasource{Conn: db}
	dispute := newTestDispute()
	entry := model.NewAuditEntry(model.ActionDisputeOpened, "dispute", dispute.DisputeID, "gateway", nil, dispute)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO disputes").
		WithArgs(dispute.DisputeID, dispute.TransactionID, dispute.Amount, dispute.Status, dispute.EvidenceDueBy, dispute.EvidenceSubmitted, dispute.CreatedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO audit_logs").
		WithArgs(entry.AuditID, entry.ActionType, entry.ResourceType, entry.ResourceID, entry.Actor, sqlmock.AnyArg(), sqlmock.AnyArg(), entry.CreatedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	got, err := ds.CreateDispute(context.Background(), dispute, entry)
	assert.NoError(t, err)
	assert.Equal(t, dispute, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateDispute_SecondActiveDispute(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer func() { _ = db.Close() }()

	ds := Datasource{Conn: db}
	dispute := newTestDispute()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO disputes").
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	_, err = ds.CreateDispute(context.Background(), dispute, nil)
	assert.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrConflict, apiErr.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkEvidenceSubmitted_DisputeMovedOn(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer func() { _ = db.Close() }()

	ds := Datasource{Conn: db}

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE disputes").
		WithArgs("dsp_1", model.DisputeUnderReview, model.DisputeNeedsResponse).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err = ds.MarkEvidenceSubmitted(context.Background(), "dsp_1", nil)
	assert.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrConflict, apiErr.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCloseDispute_AlreadySettled(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer func() { _ = db.Close() }()

	ds := Datasource{Conn: db}

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE disputes").
		WithArgs("dsp_1", model.DisputeWon, model.DisputeNeedsResponse, model.DisputeUnderReview).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	applied, err := ds.CloseDispute(context.Background(), "dsp_1", model.DisputeWon, nil)
	assert.NoError(t, err)
	assert.False(t, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCloseDispute_Applied(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer func() { _ = db.Close() }()

	ds := Datasource{Conn: db}
	entry := model.NewAuditEntry(model.ActionDisputeClosed, "dispute", "dsp_1", "gateway", nil, map[string]interface{}{"status": model.DisputeLost})

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE disputes").
		WithArgs("dsp_1", model.DisputeLost, model.DisputeNeedsResponse, model.DisputeUnderReview).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO audit_logs").
		WithArgs(entry.AuditID, entry.ActionType, entry.ResourceType, entry.ResourceID, entry.Actor, sqlmock.AnyArg(), sqlmock.AnyArg(), entry.CreatedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	applied, err := ds.CloseDispute(context.Background(), "dsp_1", model.DisputeLost, entry)
	assert.NoError(t, err)
	assert.True(t, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetActiveDisputeByTransaction_NoneActive(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer func() { _ = db.Close() }()

	ds := Datasource{Conn: db}

	mock.ExpectQuery("SELECT dispute_id, transaction_id, amount").
		WithArgs("txn_1", model.DisputeNeedsResponse, model.DisputeUnderReview).
		WillReturnRows(sqlmock.NewRows([]string{"dispute_id"}))

	dispute, err := ds.GetActiveDisputeByTransaction(context.Background(), "txn_1")
	assert.NoError(t, err)
	assert.Nil(t, dispute)
	assert.NoError(t, mock.ExpectationsWereMet())
}
