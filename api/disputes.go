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

// GetDispute retrieves a dispute by its id.
func (a Api) GetDispute(c *gin.Context) {
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /:id"})
		return
	}

	resp, err := a.campuspay.GetDispute(c.Request.Context(), id)
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// SubmitEvidence attaches merchant evidence to an open dispute.
//
// Responses:
// - 410 Gone: If the evidence window has closed or the dispute settled.
// - 200 OK: The updated dispute record.
func (a Api) SubmitEvidence(c *gin.Context) {
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /:id"})
		return
	}

	var evidence model2.SubmitEvidence
	if err := c.ShouldBindJSON(&evidence); err != nil {
		logrus.Error(err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}

	if err := evidence.ValidateSubmitEvidence(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	resp, err := a.campuspay.SubmitEvidence(c.Request.Context(), id, evidence.SubmittedBy, evidence.Evidence)
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
