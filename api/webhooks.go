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
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/campuspay/campuspay/internal/apierror"
)

const (
	SignatureHeader          = "Signature"
	SignatureTimestampHeader = "Signature-Timestamp"
)

// IngestWebhook receives payment gateway event deliveries. The response is
// 200 as soon as the event is durably recorded, duplicates included; the
// gateway's retry loop must never cause reprocessing. Signature, timestamp,
// and parse failures return 400 with a structured code.
func (a Api) IngestWebhook(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": apierror.ErrMalformedEvent, "message": "Failed to read request body"}})
		return
	}

	result, err := a.campuspay.IngestEvent(c.Request.Context(), payload,
		c.GetHeader(SignatureHeader), c.GetHeader(SignatureTimestampHeader))
	if err != nil {
		a.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// respondError maps service errors to structured HTTP responses. Raw
// gateway error text never reaches the caller; only apierror codes do.
func (a Api) respondError(c *gin.Context, err error) {
	status := apierror.MapErrorToHTTPStatus(err)
	if apiErr, ok := err.(apierror.APIError); ok {
		c.JSON(status, gin.H{"error": gin.H{"code": apiErr.Code, "message": apiErr.Message}})
		return
	}
	logrus.Error(err)
	c.JSON(status, gin.H{"error": gin.H{"code": apierror.ErrInternalServer, "message": "Internal server error"}})
}
