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
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Producer is a minimal abstraction over a Kafka client. Implementations
// should enable an idempotent producer (enable.idempotence=true) and use
// CommitID as the message key so broker dedup and per-key ordering hold.
type Producer interface {
	Produce(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
}

// KafkaSink publishes counter-delta commits as Kafka messages for streaming
// telemetry pipelines. It does not apply state locally; downstream consumers
// materialize the running totals and must track the last-applied CommitID
// per (SwitchID, Metric) to ignore duplicates.
type KafkaSink struct {
	producer       Producer
	topic          string
	defaultTimeout time.Duration
}

func NewKafkaSink(p Producer, topic string) *KafkaSink {
	return &KafkaSink{producer: p, topic: topic, defaultTimeout: 10 * time.Second}
}

// message is the serialized payload sent to Kafka; message key is CommitID.
type message struct {
	SwitchID uint32 `json:"switch_id"`
	Metric   string `json:"metric"`
	Delta    int64  `json:"delta"`
	CommitID string `json:"commit_id"`
	TsUnixMs int64  `json:"ts_unix_ms"`
}

func (k *KafkaSink) CommitBatch(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); !ok && k.defaultTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, k.defaultTimeout)
		defer cancel()
	}
	nowMs := time.Now().UnixMilli()
	for _, e := range entries {
		if e.CommitID == "" {
			return errors.New("export.Entry.CommitID must be set")
		}
		msg := message{SwitchID: e.SwitchID, Metric: e.Metric, Delta: e.Delta, CommitID: e.CommitID, TsUnixMs: nowMs}
		b, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("marshal kafka message: %w", err)
		}
		headers := map[string]string{"content-type": "application/json"}
		if err := k.producer.Produce(ctx, k.topic, []byte(e.CommitID), b, headers); err != nil {
			return fmt.Errorf("kafka produce switch=%d metric=%s commit=%s: %w", e.SwitchID, e.Metric, e.CommitID, err)
		}
	}
	return nil
}
