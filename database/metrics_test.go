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

	"github.com/campuspay/campuspay/model"
)

func TestGetMetricsSummary(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database Connection", err)
	}
	defer db.Close()
	ds := Datasource{Conn: db}

	since := time.Now().Add(-24 * time.Hour)

	statusRows := sqlmock.NewRows([]string{"status", "count"}).
		AddRow(model.StatusSucceeded, int64(120)).
		AddRow(model.StatusFailed, int64(7))
	mock.ExpectQuery("SELECT status, COUNT").
		WithArgs(since).
		WillReturnRows(statusRows)

	mock.ExpectQuery("SELECT COUNT\\(\\*\\),").
		WithArgs(since, model.EventProcessed, model.EventFailed).
		WillReturnRows(sqlmock.NewRows([]string{"count", "processed", "failed"}).AddRow(int64(200), int64(190), int64(3)))

	mock.ExpectQuery("SELECT COALESCE\\(SUM\\(amount\\), 0\\)").
		WithArgs(since, model.RefundSucceeded).
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(int64(45000)))

	mock.ExpectQuery("SELECT COUNT\\(\\*\\)\\s+FROM disputes").
		WithArgs(model.DisputeNeedsResponse, model.DisputeUnderReview).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(2)))

	mock.ExpectQuery("SELECT COUNT\\(\\*\\)\\s+FROM fraud_alerts").
		WithArgs(model.AlertActive, model.AlertInvestigating).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(4)))

	mock.ExpectQuery("SELECT COUNT\\(\\*\\)\\s+FROM payment_retries").
		WithArgs(since, model.RetryAbandoned).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(1)))

	summary, err := ds.GetMetricsSummary(context.Background(), since)
	assert.NoError(t, err)
	assert.Equal(t, int64(120), summary.TransactionsByStatus[model.StatusSucceeded])
	assert.Equal(t, int64(200), summary.EventsReceived)
	assert.Equal(t, int64(190), summary.EventsProcessed)
	assert.Equal(t, int64(45000), summary.RefundVolume)
	assert.Equal(t, int64(2), summary.DisputesOpen)
	assert.Equal(t, int64(4), summary.AlertsActive)
	assert.Equal(t, int64(1), summary.RetriesAbandoned)
	assert.NoError(t, mock.ExpectationsWereMet())
}
