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
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"

	"github.com/campuspay/campuspay/config"
	"github.com/campuspay/campuspay/model"
)

func TestSendNotification(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("an error '%s' occurred when starting miniredis", err)
	}
	defer mr.Close()

	mockConfig := &config.Configuration{
		Redis: config.RedisConfig{
			Dns: mr.Addr(),
		},
		Queue: config.QueueConfig{
			NotifierQueue: "new:notifier",
		},
		Notification: config.Notification{Webhook: struct {
			Url     string            `json:"url"`
			Headers map[string]string `json:"headers"`
		}(struct {
			Url     string
			Headers map[string]string
		}{Url: "https://localhost:5001/notify", Headers: nil})},
	}
	config.MockConfig(mockConfig)

	testData := NotificationPayload{
		Event: "transaction.updated",
		Payload: model.Transaction{
			TransactionID: "txn_notify",
			Status:        model.StatusSucceeded,
		},
	}

	err = SendNotification(testData)
	assert.NoError(t, err)

	// Verify that the task was enqueued
	tasks := mr.Keys()
	assert.NotEmpty(t, tasks)
}

func TestSendNotificationWithoutURLIsDisabled(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("an error '%s' occurred when starting miniredis", err)
	}
	defer mr.Close()

	config.MockConfig(&config.Configuration{
		Redis: config.RedisConfig{Dns: mr.Addr()},
		Queue: config.QueueConfig{NotifierQueue: "new:notifier"},
	})

	err = SendNotification(NotificationPayload{Event: "transaction.updated"})
	assert.NoError(t, err)
	assert.Empty(t, mr.Keys())
}
