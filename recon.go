/*
Copyright 2025 Recon Authors.

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

package recon

import (
	"embed"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/reconcilehq/recon/cache"
	"github.com/reconcilehq/recon/config"
	"github.com/reconcilehq/recon/database"
	redis_db "github.com/reconcilehq/recon/internal/redis-db"
)

// Recon wires the ingestion pipeline and the matching engine to their
// collaborators. Both are stateless over their job inputs; all shared state
// lives in the datasource, the queue and redis.
type Recon struct {
	queue      *Queue
	redis      redis.UniversalClient
	cache      cache.Cache
	datasource database.IDataSource
}

//go:embed sql/*.sql
var SQLFiles embed.FS

// NewRecon initializes a new instance of Recon with the provided database datasource.
// It fetches the configuration and initializes the Redis client, the progress
// cache and the task queue.
func NewRecon(db database.IDataSource) (*Recon, error) {
	configuration, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	redisClient, err := redis_db.NewRedisClient([]string{fmt.Sprintf("redis://%s", configuration.Redis.Dns)})
	if err != nil {
		return nil, err
	}
	progressCache, err := cache.NewCache()
	if err != nil {
		return nil, err
	}
	newQueue := NewQueue(configuration)

	return &Recon{
		datasource: db,
		queue:      newQueue,
		redis:      redisClient.Client(),
		cache:      progressCache,
	}, nil
}
