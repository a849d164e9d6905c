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
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"github.com/campuspay/campuspay/config"
	redis_db "github.com/campuspay/campuspay/internal/redis-db"
	"github.com/campuspay/campuspay/model"
)

// Queue wraps the asynq client used to hand webhook events and payment
// retries to the worker process.
type Queue struct {
	Client    *asynq.Client
	Inspector *asynq.Inspector
}

// EventTaskPayload is the payload carried by an event-processing task.
type EventTaskPayload struct {
	Event model.WebhookEvent `json:"event"`
}

// RetryTaskPayload is the payload carried by a scheduled retry task.
type RetryTaskPayload struct {
	RetryID       string `json:"retry_id"`
	TransactionID string `json:"transaction_id"`
	Attempt       int    `json:"attempt"`
}

// NewQueue initializes a new Queue instance with the provided configuration.
func NewQueue(conf *config.Configuration) *Queue {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns)
	if err != nil {
		log.Fatalf("Error parsing Redis URL: %v", err)
	}

	queueOptions := asynq.RedisClientOpt{Addr: redisOption.Addr, Password: redisOption.Password, DB: redisOption.DB}
	client := asynq.NewClient(queueOptions)
	inspector := asynq.NewInspector(queueOptions)
	return &Queue{
		Client:    client,
		Inspector: inspector,
	}
}

// EnqueueEvent hands a verified webhook event to the worker pool. Events are
// sharded across the event queues by transaction id, so every event for one
// transaction lands on the same queue and is applied serially. The task id is
// the event id, which deduplicates concurrent enqueues of the same delivery.
func (q *Queue) EnqueueEvent(ctx context.Context, event *model.WebhookEvent) error {
	cfg, err := config.Fetch()
	if err != nil {
		return err
	}

	payload, err := json.Marshal(EventTaskPayload{Event: *event})
	if err != nil {
		return err
	}

	queueIndex := hashTransactionID(event.TransactionID) % cfg.Queue.NumberOfQueues
	queueName := fmt.Sprintf("%s_%d", cfg.Queue.EventQueue, queueIndex+1)

	taskOptions := []asynq.Option{asynq.TaskID(event.EventID), asynq.Queue(queueName), asynq.MaxRetry(5)}
	task := asynq.NewTask(queueName, payload, taskOptions...)
	info, err := q.Client.EnqueueContext(ctx, task)
	if err != nil {
		if err == asynq.ErrTaskIDConflict {
			return nil
		}
		log.Println(err, info)
		return err
	}
	log.Printf(" [*] Successfully enqueued event: %s", event.EventID)
	return nil
}

// EnqueueRetryAttempt schedules a retry attempt task for execution at the
// given time. The task id includes the attempt number so re-enqueuing the
// same lease is a no-op while an earlier copy is still pending.
func (q *Queue) EnqueueRetryAttempt(ctx context.Context, retry *model.PaymentRetryRecord, runAt time.Time) error {
	cfg, err := config.Fetch()
	if err != nil {
		return err
	}

	payload, err := json.Marshal(RetryTaskPayload{
		RetryID:       retry.RetryID,
		TransactionID: retry.TransactionID,
		Attempt:       retry.AttemptCount,
	})
	if err != nil {
		return err
	}

	taskOptions := []asynq.Option{
		asynq.TaskID(fmt.Sprintf("%s:%d", retry.RetryID, retry.AttemptCount)),
		asynq.Queue(cfg.Queue.RetryQueue),
	}
	if until := time.Until(runAt); until > 0 {
		taskOptions = append(taskOptions, asynq.ProcessIn(until))
	}

	task := asynq.NewTask(cfg.Queue.RetryQueue, payload, taskOptions...)
	info, err := q.Client.EnqueueContext(ctx, task)
	if err != nil {
		if err == asynq.ErrTaskIDConflict {
			return nil
		}
		log.Println(err, info)
		return err
	}
	log.Printf(" [*] Successfully enqueued retry attempt: %s attempt %d", retry.RetryID, retry.AttemptCount)
	return nil
}

// hashTransactionID returns a consistent hash value for a transaction id.
func hashTransactionID(transactionID string) int {
	hasher := fnv.New32a()
	_, _ = hasher.Write([]byte(transactionID))
	return int(hasher.Sum32())
}

// GetEventFromQueue retrieves a queued event task by its event id, checking
// each event shard in turn.
func (q *Queue) GetEventFromQueue(eventID string) (*model.WebhookEvent, error) {
	cfg, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	for i := 1; i <= cfg.Queue.NumberOfQueues; i++ {
		queueName := fmt.Sprintf("%s_%d", cfg.Queue.EventQueue, i)
		task, err := q.Inspector.GetTaskInfo(queueName, eventID)
		if err == nil && task != nil {
			var payload EventTaskPayload
			if err := json.Unmarshal(task.Payload, &payload); err != nil {
				return nil, err
			}
			return &payload.Event, nil
		}
	}
	return nil, nil
}
