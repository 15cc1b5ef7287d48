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

// Package export provides idempotent counter-snapshot export adapters for
// Redis, Kafka, and Postgres, plus an in-memory mock.
//
// Each adapter implements a common commit shape carrying an idempotency key
// so that a retried export (crash, timeout, duplicate delivery) applying the
// same delta twice is a no-op rather than double counting.
package export

import "context"

// Entry is the adapter-facing shape for one switch counter's delta since
// its last successful export.
//
// Fields:
//   - SwitchID: the switch the counter belongs to.
//   - Metric: counter name, e.g. "reroutes_total".
//   - Delta: the counter's increase since the last committed export.
//   - CommitID: globally unique idempotency key for this export. Reusing
//     the same id for a retried commit makes the operation idempotent.
//
// Callers are responsible for generating stable CommitIDs across retries
// (a monotonic per-switch-per-metric sequence number is a typical choice).
type Entry struct {
	SwitchID uint32
	Metric   string
	Delta    int64
	CommitID string
}

// Sink is the minimal API supported by every export adapter. Implementations
// must apply each entry atomically with respect to its idempotency key and
// must be safe to retry: a duplicate CommitID for the same (SwitchID,
// Metric) becomes a no-op.
type Sink interface {
	CommitBatch(ctx context.Context, entries []Entry) error
}
