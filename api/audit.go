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
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/campuspay/campuspay/database"
)

// GetAuditLogs lists audit entries, newest first, filterable by resource,
// actor, and time range.
func (a Api) GetAuditLogs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	filter := database.AuditFilter{
		ResourceType: c.Query("resource_type"),
		ResourceID:   c.Query("resource_id"),
		Actor:        c.Query("actor"),
		Limit:        limit,
		Offset:       offset,
	}
	if from := c.Query("from"); from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "from must be RFC3339 (e.g., 2025-04-22T15:28:03+00:00)"})
			return
		}
		filter.From = t
	}
	if to := c.Query("to"); to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "to must be RFC3339 (e.g., 2025-04-22T15:28:03+00:00)"})
			return
		}
		filter.To = t
	}

	resp, err := a.campuspay.GetAuditLogs(c.Request.Context(), filter)
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GetMetricsSummary returns operational aggregates since the requested
// cutoff (default: last 24 hours).
func (a Api) GetMetricsSummary(c *gin.Context) {
	var since time.Time
	if s := c.Query("since"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "since must be RFC3339 (e.g., 2025-04-22T15:28:03+00:00)"})
			return
		}
		since = t
	}

	resp, err := a.campuspay.GetMetricsSummary(c.Request.Context(), since)
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
