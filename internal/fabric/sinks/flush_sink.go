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

// Package sinks provides buffered JSONL append sinks for post-run diagnostic
// logs: per-flow VOQ flush timing error and per-switch routing events.
package sinks

import (
	"bufio"
	"encoding/json"
	"os"
	"sync"
	"time"
)

// FlushRecord is one VOQ flush observation: how far the flush actually fired
// from the deadline computed when it was armed (spec.md section 9's open
// question on extra_voq_flush_time sizing).
type FlushRecord struct {
	SwitchID      uint32 `json:"switch_id"`
	FlowKey       uint64 `json:"flow_key"`
	ScheduledNs   int64  `json:"scheduled_ns"`
	ActualNs      int64  `json:"actual_ns"`
	ErrorNs       int64  `json:"error_ns"`
	ByTail        bool   `json:"by_tail"`
}

// FlushDiagnosticSink is a buffered JSONL sink for FlushRecords. Safe for
// concurrent use; optimized for append-only export at end of run.
type FlushDiagnosticSink struct {
	mu   sync.Mutex
	f    *os.File
	w    *bufio.Writer
	path string

	lastFlush time.Time
}

// NewFlushDiagnosticSink opens (or creates) the file at path in append mode.
// Call Close() when done.
func NewFlushDiagnosticSink(path string) (*FlushDiagnosticSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &FlushDiagnosticSink{f: f, w: bufio.NewWriterSize(f, 1<<20), path: path, lastFlush: time.Now()}, nil
}

// OnFlushRecords writes the records as JSON lines.
func (s *FlushDiagnosticSink) OnFlushRecords(recs []FlushRecord) {
	if len(recs) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	enc := json.NewEncoder(s.w)
	for _, r := range recs {
		if err := enc.Encode(&r); err != nil {
			_ = s.w.Flush()
			_ = enc.Encode(&r)
		}
	}
	if time.Since(s.lastFlush) > 100*time.Millisecond {
		_ = s.w.Flush()
		s.lastFlush = time.Now()
	}
}

// Flush forces buffered data to be written to disk.
func (s *FlushDiagnosticSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastFlush = time.Now()
	return s.w.Flush()
}

// Close flushes and closes the underlying file.
func (s *FlushDiagnosticSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.w.Flush()
	return s.f.Close()
}

// ReadAllFlushRecords reads the entire flush-diagnostic log. Intended for
// offline analysis of flush-deadline estimation error.
func ReadAllFlushRecords(path string) ([]FlushRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var out []FlushRecord
	scanner := bufio.NewScanner(f)
	buf := make([]byte, 0, 1<<20)
	scanner.Buffer(buf, 1<<26)
	for scanner.Scan() {
		var r FlushRecord
		if err := json.Unmarshal(scanner.Bytes(), &r); err == nil {
			out = append(out, r)
		}
	}
	return out, scanner.Err()
}
