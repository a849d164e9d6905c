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
	"github.com/gin-gonic/gin"

	"github.com/campuspay/campuspay"
	"github.com/campuspay/campuspay/api/middleware"
	"github.com/campuspay/campuspay/config"
)

type Api struct {
	campuspay *campuspay.CampusPay
	router    *gin.Engine
}

func (a Api) Router() *gin.Engine {
	router := a.router
	router.POST("/webhooks/payments", a.IngestWebhook)

	router.GET("/transactions/:id", a.GetTransaction)
	router.POST("/transactions/:id/refunds", a.RequestRefund)
	router.GET("/transactions/:id/refunds", a.GetTransactionRefunds)
	router.POST("/transactions/:id/retries", a.RequestRetry)

	router.GET("/disputes/:id", a.GetDispute)
	router.POST("/disputes/:id/evidence", a.SubmitEvidence)

	router.GET("/fraud-alerts", a.GetFraudAlerts)
	router.GET("/fraud-alerts/:id", a.GetFraudAlert)
	router.POST("/fraud-alerts/:id/resolve", a.ResolveFraudAlert)

	router.GET("/audit-logs", a.GetAuditLogs)
	router.GET("/metrics/summary", a.GetMetricsSummary)

	return a.router
}

func NewAPI(b *campuspay.CampusPay) *Api {
	gin.SetMode(gin.ReleaseMode)
	conf, err := config.Fetch()
	if err != nil {
		return nil
	}
	r := gin.Default()
	r.Use(middleware.RateLimitMiddleware(conf))
	if conf.Server.Secure {
		// The webhook route authenticates by HMAC signature, not secret key.
		r.Use(middleware.SecretKeyAuthMiddleware("/webhooks/payments"))
	}

	r.GET("/", func(c *gin.Context) {
		c.JSON(200, "server running...")
	})

	return &Api{campuspay: b, router: r}
}
