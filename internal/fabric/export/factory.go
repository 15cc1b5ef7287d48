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
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Options holds the knobs needed to build any of the Sink adapters below.
type Options struct {
	RedisAddr      string
	RedisMarkerTTL time.Duration
	KafkaTopic     string
	PostgresDB     *sql.DB // required for "postgres"; nil elsewhere
}

// BuildSink constructs a Sink from a string selector, mirroring the
// demo-friendly, dependency-optional wiring the persistence layer this is
// grounded on used for its own adapter selection.
//
// Supported adapters:
//   - "mock" (default): in-process accumulator, no external dependency.
//   - "redis": idempotent Redis adapter; uses a real client if Opts.RedisAddr
//     is set, otherwise a logging stand-in.
//   - "kafka": idempotent Kafka adapter; always uses a logging producer (no
//     broker dependency is wired into this module).
//   - "postgres": requires Opts.PostgresDB; returns an error otherwise to
//     avoid silently constructing a sink around a nil *sql.DB.
func BuildSink(adapter string, opts Options) (Sink, error) {
	switch adapter {
	case "", "mock":
		return NewMockSink(), nil
	case "redis":
		ttl := opts.RedisMarkerTTL
		if ttl <= 0 {
			ttl = 24 * time.Hour
		}
		var ev Evaler
		if opts.RedisAddr != "" {
			ev = NewGoRedisEvaler(opts.RedisAddr)
		} else {
			ev = LoggingEvaler{}
		}
		return NewRedisSink(ev, ttl), nil
	case "kafka":
		topic := opts.KafkaTopic
		if topic == "" {
			topic = "fabric-counters"
		}
		return NewKafkaSink(LoggingProducer{}, topic), nil
	case "postgres":
		if opts.PostgresDB == nil {
			return nil, errors.New("postgres adapter requires Options.PostgresDB")
		}
		return NewPostgresSink(opts.PostgresDB, true), nil
	default:
		return nil, fmt.Errorf("unknown export adapter: %s", adapter)
	}
}
