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

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	model2 "github.com/campuspay/campuspay/api/model"
)

// GetTransaction retrieves a transaction by its gateway id.
//
// Responses:
// - 404 Not Found: If the transaction does not exist.
// - 200 OK: The transaction.
func (a Api) GetTransaction(c *gin.Context) {
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /:id"})
		return
	}

	resp, err := a.campuspay.GetTransaction(c.Request.Context(), id)
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// RequestRefund initiates a refund against a transaction.
//
// Responses:
// - 400 Bad Request: On binding or validation errors.
// - 409 Conflict: If the amount exceeds what remains refundable.
// - 201 Created: The refund record (pending until the gateway settles it).
func (a Api) RequestRefund(c *gin.Context) {
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /:id"})
		return
	}

	var newRefund model2.RequestRefund
	if err := c.ShouldBindJSON(&newRefund); err != nil {
		logrus.Error(err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}

	if err := newRefund.ValidateRequestRefund(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	resp, err := a.campuspay.RequestRefund(c.Request.Context(), id, newRefund.Amount, newRefund.Reason, newRefund.InitiatedBy)
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// GetTransactionRefunds lists all refunds recorded against a transaction.
func (a Api) GetTransactionRefunds(c *gin.Context) {
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /:id"})
		return
	}

	resp, err := a.campuspay.GetRefundsByTransaction(c.Request.Context(), id)
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// RequestRetry schedules a manual capture retry for a failed transaction.
//
// Responses:
// - 409 Conflict: If the transaction is not in a failed state.
// - 201 Created: The retry record.
func (a Api) RequestRetry(c *gin.Context) {
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /:id"})
		return
	}

	var newRetry model2.RequestRetry
	if err := c.ShouldBindJSON(&newRetry); err != nil {
		logrus.Error(err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}

	if err := newRetry.ValidateRequestRetry(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	resp, err := a.campuspay.RequestManualRetry(c.Request.Context(), id, newRetry.RequestedBy)
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}
