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
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/campuspay/campuspay/config"
	"github.com/campuspay/campuspay/internal/apierror"
	"github.com/campuspay/campuspay/internal/notification"
	"github.com/campuspay/campuspay/model"
)

// EvaluateFraud runs the scoring heuristics against a transaction on every
// lifecycle change, failures included. Alerts flag, they never block: a
// transaction that trips every signal still settles, and a reviewer resolves
// the alert afterwards. Evaluation failures are logged and swallowed for the
// same reason.
func (c *CampusPay) EvaluateFraud(ctx context.Context, txn *model.Transaction) {
	cfg, err := config.Fetch()
	if err != nil {
		logrus.Errorf("fraud evaluation skipped, config unavailable: %v", err)
		return
	}

	if txn.RiskScore >= cfg.Fraud.RiskScoreThreshold {
		c.raiseAlert(ctx, txn, model.AlertTypeRiskScore,
			fmt.Sprintf("gateway risk score %.2f at or above threshold %.2f", txn.RiskScore, cfg.Fraud.RiskScoreThreshold))
	}

	if txn.Actor == "" {
		return
	}

	count, err := c.recordActorActivity(ctx, txn, cfg.Fraud.VelocityWindow)
	if err != nil {
		logrus.Errorf("fraud velocity tracking failed for actor %s: %v", txn.Actor, err)
		return
	}

	if count > int64(cfg.Fraud.VelocityLimit) {
		c.raiseAlert(ctx, txn, model.AlertTypeVelocity,
			fmt.Sprintf("actor %s made %d transactions within %s", txn.Actor, count, cfg.Fraud.VelocityWindow))
	}

	if txn.Amount < cfg.Fraud.ProbingAmountFloor {
		small, err := c.countSmallAmounts(ctx, txn, cfg.Fraud)
		if err != nil {
			logrus.Errorf("fraud probing check failed for actor %s: %v", txn.Actor, err)
			return
		}
		if small >= int64(cfg.Fraud.ProbingCount) {
			c.raiseAlert(ctx, txn, model.AlertTypeSmallAmount,
				fmt.Sprintf("actor %s made %d transactions under %d within %s", txn.Actor, small, cfg.Fraud.ProbingAmountFloor, cfg.Fraud.VelocityWindow))
		}
	}
}

// recordActorActivity appends the transaction to the actor's sliding window
// and returns the member count inside it. The window lives in a redis sorted
// set scored by unix time, trimmed on every write.
func (c *CampusPay) recordActorActivity(ctx context.Context, txn *model.Transaction, window time.Duration) (int64, error) {
	now := time.Now()
	key := fmt.Sprintf("fraud:velocity:%s", txn.Actor)
	cutoff := now.Add(-window)

	pipe := c.redis.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(now.UnixNano()),
		Member: fmt.Sprintf("%s:%d", txn.TransactionID, txn.Amount),
	})
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(cutoff.UnixNano(), 10))
	card := pipe.ZCard(ctx, key)
	pipe.Expire(ctx, key, window+time.Minute)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return card.Val(), nil
}

// countSmallAmounts counts window members whose recorded amount is under the
// probing floor. Member format is "<txn_id>:<amount>".
func (c *CampusPay) countSmallAmounts(ctx context.Context, txn *model.Transaction, cfg config.FraudConfig) (int64, error) {
	key := fmt.Sprintf("fraud:velocity:%s", txn.Actor)
	members, err := c.redis.ZRange(ctx, key, 0, -1).Result()
	if err != nil {
		return 0, err
	}

	var small int64
	for _, member := range members {
		for i := len(member) - 1; i >= 0; i-- {
			if member[i] == ':' {
				if amount, err := strconv.ParseInt(member[i+1:], 10, 64); err == nil && amount < cfg.ProbingAmountFloor {
					small++
				}
				break
			}
		}
	}
	return small, nil
}

// raiseAlert records a fraud alert unless one of the same type is already
// open for the transaction, then pushes it to the notification channels.
func (c *CampusPay) raiseAlert(ctx context.Context, txn *model.Transaction, alertType, notes string) {
	existing, err := c.datasource.GetOpenFraudAlert(ctx, txn.TransactionID, alertType)
	if err != nil {
		logrus.Errorf("failed to check for open alert: %v", err)
		return
	}
	if existing != nil {
		return
	}

	alert := &model.FraudAlert{
		AlertID:       model.GenerateUUIDWithSuffix("frd"),
		TransactionID: txn.TransactionID,
		AlertType:     alertType,
		RiskScore:     txn.RiskScore,
		Status:        model.AlertActive,
		Notes:         notes,
		CreatedAt:     time.Now(),
	}
	if _, err := c.datasource.CreateFraudAlert(ctx, alert); err != nil {
		logrus.Errorf("failed to record fraud alert for %s: %v", txn.TransactionID, err)
		return
	}

	logrus.WithFields(logrus.Fields{
		"alert_id":       alert.AlertID,
		"transaction_id": txn.TransactionID,
		"alert_type":     alertType,
	}).Warn("fraud alert raised")
	notification.NotifyError(fmt.Errorf("fraud alert %s on transaction %s: %s", alertType, txn.TransactionID, notes))
}

// ResolveAlert settles a fraud alert with a reviewer verdict.
func (c *CampusPay) ResolveAlert(ctx context.Context, alertID, action, notes, actor string) (*model.FraudAlert, error) {
	var target string
	switch action {
	case "investigate":
		target = model.AlertInvestigating
	case "resolve":
		target = model.AlertResolved
	case "false_positive":
		target = model.AlertFalsePositive
	default:
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, fmt.Sprintf("Unknown alert action '%s'", action), nil)
	}

	alert, err := c.datasource.GetFraudAlert(ctx, alertID)
	if err != nil {
		return nil, err
	}

	entry := model.NewAuditEntry(model.ActionAlertResolved, "fraud_alert", alertID, actor,
		map[string]interface{}{"status": alert.Status},
		map[string]interface{}{"status": target, "notes": notes})
	return c.datasource.ResolveFraudAlert(ctx, alertID, target, actor, notes, entry)
}

// GetFraudAlert returns a fraud alert by id.
func (c *CampusPay) GetFraudAlert(ctx context.Context, alertID string) (*model.FraudAlert, error) {
	return c.datasource.GetFraudAlert(ctx, alertID)
}

// GetFraudAlerts lists alerts, optionally filtered by status.
func (c *CampusPay) GetFraudAlerts(ctx context.Context, status string, limit, offset int) ([]*model.FraudAlert, error) {
	return c.datasource.GetFraudAlerts(ctx, status, limit, offset)
}
