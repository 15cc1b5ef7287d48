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
	"fmt"
	"sync"
)

// LoggingEvaler is a dependency-free demo Evaler that just prints what it
// would have sent to Redis. Not for production use.
type LoggingEvaler struct{}

func (LoggingEvaler) Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	fmt.Printf("[export redis-demo] EVAL script(len=%d) KEYS=%v ARGS=%v\n", len(script), keys, args)
	return int64(1), nil
}

// LoggingProducer is a dependency-free demo Producer that just prints what
// it would have published to Kafka. Not for production use.
type LoggingProducer struct{}

func (LoggingProducer) Produce(ctx context.Context, topic string, key, value []byte, headers map[string]string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	fmt.Printf("[export kafka-demo] topic=%s key=%s value=%s headers=%v\n", topic, key, value, headers)
	return nil
}

// MockSink accumulates every committed delta in memory, keyed by
// (SwitchID, Metric), deduplicating by CommitID the same way a real adapter
// would. Used by tests and the demo's default run.
type MockSink struct {
	mu      sync.Mutex
	totals  map[uint32]map[string]int64
	applied map[string]bool
}

func NewMockSink() *MockSink {
	return &MockSink{totals: make(map[uint32]map[string]int64), applied: make(map[string]bool)}
}

func (m *MockSink) CommitBatch(ctx context.Context, entries []Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		marker := fmt.Sprintf("%d:%s:%s", e.SwitchID, e.Metric, e.CommitID)
		if m.applied[marker] {
			continue
		}
		m.applied[marker] = true
		if m.totals[e.SwitchID] == nil {
			m.totals[e.SwitchID] = make(map[string]int64)
		}
		m.totals[e.SwitchID][e.Metric] += e.Delta
	}
	return nil
}

// Totals returns a copy of the accumulated per-switch metric totals.
func (m *MockSink) Totals() map[uint32]map[string]int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[uint32]map[string]int64, len(m.totals))
	for sw, metrics := range m.totals {
		cp := make(map[string]int64, len(metrics))
		for k, v := range metrics {
			cp[k] = v
		}
		out[sw] = cp
	}
	return out
}
