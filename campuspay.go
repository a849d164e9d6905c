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
	"embed"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/campuspay/campuspay/config"
	"github.com/campuspay/campuspay/database"
	"github.com/campuspay/campuspay/gateway"
	redis_db "github.com/campuspay/campuspay/internal/redis-db"
)

// CampusPay is the main application service. It carries the datasource, the
// task queue, the payment gateway client, and a shared Redis handle used for
// locks and fraud velocity tracking.
type CampusPay struct {
	queue      *Queue
	redis      redis.UniversalClient
	datasource database.IDataSource
	gateway    *gateway.Client
}

//go:embed sql/*.sql
var SQLFiles embed.FS

// NewCampusPay initializes a new CampusPay instance with the provided
// datasource. It fetches the configuration and wires up the Redis client,
// task queue, and gateway client.
func NewCampusPay(db database.IDataSource) (*CampusPay, error) {
	configuration, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	redisClient, err := redis_db.NewRedisClient([]string{fmt.Sprintf("redis://%s", configuration.Redis.Dns)})
	if err != nil {
		return nil, err
	}
	newQueue := NewQueue(configuration)
	gatewayClient := gateway.NewClient(configuration.Gateway)

	return &CampusPay{
		datasource: db,
		queue:      newQueue,
		redis:      redisClient.Client(),
		gateway:    gatewayClient,
	}, nil
}

// Queue exposes the task queue, mainly for the worker command.
func (c *CampusPay) Queue() *Queue {
	return c.queue
}
