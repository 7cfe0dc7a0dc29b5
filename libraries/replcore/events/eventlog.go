// Copyright 2026 Parsec DB, Inc.
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

// Package events is the controller's append-only event log: which
// controller ran which task and operation, when, and how it went.
package events

import (
	"context"
	"sync"
	"time"
)

// Event is one controller event, keyed by (controller, timestamp).
type Event struct {
	ControllerID    string            `json:"controller_id"`
	Timestamp       time.Time         `json:"timestamp"`
	Task            string            `json:"task"`
	Operation       string            `json:"operation"`
	OperationStatus string            `json:"operation_status"`
	Data            map[string]string `json:"data,omitempty"`
}

// Filter narrows event queries; empty fields match everything.
type Filter struct {
	ControllerID    string
	Task            string
	Operation       string
	OperationStatus string
	From            time.Time
	To              time.Time
}

func (f Filter) matches(e *Event) bool {
	if f.ControllerID != "" && f.ControllerID != e.ControllerID {
		return false
	}
	if f.Task != "" && f.Task != e.Task {
		return false
	}
	if f.Operation != "" && f.Operation != e.Operation {
		return false
	}
	if f.OperationStatus != "" && f.OperationStatus != e.OperationStatus {
		return false
	}
	if !f.From.IsZero() && e.Timestamp.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && e.Timestamp.After(f.To) {
		return false
	}
	return true
}

// Log records and queries controller events.
type Log interface {
	Record(ctx context.Context, e Event) error
	Query(ctx context.Context, f Filter) ([]Event, error)
}

// MemLog is an in-memory Log, append-only in timestamp order.
type MemLog struct {
	mu     sync.Mutex
	events []Event
}

var _ Log = (*MemLog)(nil)

func NewMemLog() *MemLog { return &MemLog{} }

func (l *MemLog) Record(ctx context.Context, e Event) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
	return nil
}

func (l *MemLog) Query(ctx context.Context, f Filter) ([]Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []Event
	for i := range l.events {
		if f.matches(&l.events[i]) {
			out = append(out, l.events[i])
		}
	}
	return out, nil
}
