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

// Package stats supplies a prometheus-backed core.Counters implementation,
// one instance per switch, each incrementing the same global CounterVecs
// under its own "switch" label (the same global-registration-plus-labeled-
// cardinality shape as the churn telemetry module this is grounded on,
// scaled to a fixed, small number of switches rather than unbounded keys).
package stats

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	flowletTimeoutsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fabric_flowlet_timeouts_total",
		Help: "Flowlet-gap timeouts observed (path re-selected) per switch.",
	}, []string{"switch"})
	reroutesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fabric_reroutes_total",
		Help: "Epoch/path reroute events per switch.",
	}, []string{"switch"})
	outOfOrderEnqueuedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fabric_out_of_order_enqueued_total",
		Help: "Packets buffered into a VOQ for reordering elimination per switch.",
	}, []string{"switch"})
	voqFlushByDeadlineTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fabric_voq_flush_by_deadline_total",
		Help: "VOQ flushes triggered by the computed deadline firing per switch.",
	}, []string{"switch"})
	voqFlushByTailTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fabric_voq_flush_by_tail_total",
		Help: "VOQ flushes triggered by an observed TAIL packet per switch.",
	}, []string{"switch"})
	replyTimelyTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fabric_reply_timely_total",
		Help: "CONWEAVE REPLYs accepted before their deadline per switch.",
	}, []string{"switch"})
	replyTimeoutTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fabric_reply_timeout_total",
		Help: "CONWEAVE reply-deadline expirations (TAIL emitted) per switch.",
	}, []string{"switch"})
	notifySentTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fabric_notify_sent_total",
		Help: "CONWEAVE NOTIFY control packets emitted per switch.",
	}, []string{"switch"})
)

func init() {
	prometheus.MustRegister(
		flowletTimeoutsTotal, reroutesTotal, outOfOrderEnqueuedTotal,
		voqFlushByDeadlineTotal, voqFlushByTailTotal,
		replyTimelyTotal, replyTimeoutTotal, notifySentTotal,
	)
}

// Snapshot is a point-in-time read of one switch's counters, independent of
// the prometheus registry (cmd/fabric-demo reads it to build
// internal/fabric/export entries without scraping /metrics).
type Snapshot struct {
	FlowletTimeouts     uint64
	Reroutes            uint64
	OutOfOrderEnqueued  uint64
	VOQFlushByDeadline  uint64
	VOQFlushByTail      uint64
	ReplyTimely         uint64
	ReplyTimeout        uint64
	NotifySent          uint64
}

// SwitchCounters implements core.Counters for exactly one switch.
type SwitchCounters struct {
	label string

	mu   sync.Mutex
	snap Snapshot
}

// NewSwitchCounters returns a Counters implementation labeling every
// increment with switchID.
func NewSwitchCounters(switchID uint32) *SwitchCounters {
	return &SwitchCounters{label: fmt.Sprintf("%d", switchID)}
}

func (c *SwitchCounters) FlowletTimeout() {
	flowletTimeoutsTotal.WithLabelValues(c.label).Inc()
	c.mu.Lock()
	c.snap.FlowletTimeouts++
	c.mu.Unlock()
}

func (c *SwitchCounters) Reroute() {
	reroutesTotal.WithLabelValues(c.label).Inc()
	c.mu.Lock()
	c.snap.Reroutes++
	c.mu.Unlock()
}

func (c *SwitchCounters) OutOfOrderEnqueued() {
	outOfOrderEnqueuedTotal.WithLabelValues(c.label).Inc()
	c.mu.Lock()
	c.snap.OutOfOrderEnqueued++
	c.mu.Unlock()
}

func (c *SwitchCounters) VOQFlushByDeadline() {
	voqFlushByDeadlineTotal.WithLabelValues(c.label).Inc()
	c.mu.Lock()
	c.snap.VOQFlushByDeadline++
	c.mu.Unlock()
}

func (c *SwitchCounters) VOQFlushByTail() {
	voqFlushByTailTotal.WithLabelValues(c.label).Inc()
	c.mu.Lock()
	c.snap.VOQFlushByTail++
	c.mu.Unlock()
}

func (c *SwitchCounters) ReplyTimely() {
	replyTimelyTotal.WithLabelValues(c.label).Inc()
	c.mu.Lock()
	c.snap.ReplyTimely++
	c.mu.Unlock()
}

func (c *SwitchCounters) ReplyTimeout() {
	replyTimeoutTotal.WithLabelValues(c.label).Inc()
	c.mu.Lock()
	c.snap.ReplyTimeout++
	c.mu.Unlock()
}

func (c *SwitchCounters) NotifySent() {
	notifySentTotal.WithLabelValues(c.label).Inc()
	c.mu.Lock()
	c.snap.NotifySent++
	c.mu.Unlock()
}

// Snapshot returns a copy of this switch's counters as observed so far.
func (c *SwitchCounters) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}
