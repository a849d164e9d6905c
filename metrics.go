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

package campuspay

import (
	"context"
	"time"

	"github.com/campuspay/campuspay/database"
	"github.com/campuspay/campuspay/model"
)

// GetMetricsSummary returns the operational aggregates for dashboards:
// transaction counts by status, event processing totals, refund volume,
// open disputes, active alerts, and abandoned retries since the cutoff.
// Reads come straight off the live tables.
func (c *CampusPay) GetMetricsSummary(ctx context.Context, since time.Time) (*model.MetricsSummary, error) {
	if since.IsZero() {
		since = time.Now().Add(-24 * time.Hour)
	}
	return c.datasource.GetMetricsSummary(ctx, since)
}

// GetTransaction returns a transaction by its gateway id.
func (c *CampusPay) GetTransaction(ctx context.Context, transactionID string) (*model.Transaction, error) {
	return c.datasource.GetTransaction(ctx, transactionID)
}

// GetAuditLogs returns audit entries matching the filter, newest first.
func (c *CampusPay) GetAuditLogs(ctx context.Context, filter database.AuditFilter) ([]*model.AuditLogEntry, error) {
	return c.datasource.GetAuditLogs(ctx, filter)
}
