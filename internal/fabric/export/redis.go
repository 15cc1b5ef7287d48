// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package export

import (
	"context"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Evaler abstracts the minimal surface needed from a Redis client.
type Evaler interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error)
}

// GoRedisEvaler wraps github.com/redis/go-redis/v9 as an Evaler.
type GoRedisEvaler struct{ c *redis.Client }

// NewGoRedisEvaler dials addr (e.g. "127.0.0.1:6379") and returns an Evaler.
func NewGoRedisEvaler(addr string) *GoRedisEvaler {
	return &GoRedisEvaler{c: redis.NewClient(&redis.Options{Addr: addr})}
}

func (g *GoRedisEvaler) Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error) {
	return g.c.Eval(ctx, script, keys, args...).Result()
}

// RedisSink applies counter deltas idempotently using a Lua script:
//  1. SETNX commit:<switch>:<metric>:<commit_id> 1
//  2. If set -> HINCRBY counter:<switch> <metric> delta
//  3. EXPIRE the marker for leak protection
//
// If SETNX fails (already applied), the script is a no-op.
type RedisSink struct {
	client    Evaler
	markerTTL time.Duration
}

// NewRedisSink returns a sink with the given client and marker TTL.
func NewRedisSink(client Evaler, markerTTL time.Duration) *RedisSink {
	if markerTTL <= 0 {
		markerTTL = 24 * time.Hour
	}
	return &RedisSink{client: client, markerTTL: markerTTL}
}

const redisLuaScript = `
local counterKey = KEYS[1]
local markerKey = KEYS[2]
local metric = ARGV[1]
local delta = tonumber(ARGV[2])
local ttlSeconds = tonumber(ARGV[3])
local set = redis.call('SETNX', markerKey, 1)
if set == 1 then
  redis.call('HINCRBY', counterKey, metric, delta)
  if ttlSeconds and ttlSeconds > 0 then
    redis.call('EXPIRE', markerKey, ttlSeconds)
  end
  return 1
else
  return 0
end
`

// CounterKey is the per-switch Redis hash holding every metric's running
// total.
func CounterKey(switchID uint32) string { return fmt.Sprintf("fabric:counters:%d", switchID) }

// CommitMarkerKey is the idempotency marker key for one export commit.
func CommitMarkerKey(switchID uint32, metric, commitID string) string {
	return fmt.Sprintf("fabric:commit:%d:%s:%s", switchID, metric, commitID)
}

// CommitBatch applies entries using one EVAL per entry.
func (r *RedisSink) CommitBatch(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	for _, e := range entries {
		if e.CommitID == "" {
			return errors.New("export.Entry.CommitID must be set")
		}
		keys := []string{CounterKey(e.SwitchID), CommitMarkerKey(e.SwitchID, e.Metric, e.CommitID)}
		args := []interface{}{e.Metric, e.Delta, int(r.markerTTL.Seconds())}
		if _, err := r.client.Eval(ctx, redisLuaScript, keys, args...); err != nil {
			return fmt.Errorf("redis eval switch=%d metric=%s commit=%s: %w", e.SwitchID, e.Metric, e.CommitID, err)
		}
	}
	return nil
}
