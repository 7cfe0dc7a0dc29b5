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

// Package contr is the replica/request control plane: single-RPC requests
// and multi-request jobs with explicit state machines, a health monitor
// that evicts unresponsive workers, and the job catalog (service
// management, cluster health, replica sync, director index, replication
// level enforcement, per-worker SQL).
package contr

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/parsecdb/parsec/libraries/czarcore/wire"
)

// RequestState is the lifecycle of one worker RPC.
type RequestState string

const (
	RequestCreated    RequestState = "CREATED"
	RequestInQueue    RequestState = "IN_QUEUE"
	RequestInProgress RequestState = "IN_PROGRESS"
	RequestFinished   RequestState = "FINISHED"
	RequestCancelled  RequestState = "CANCELLED"
	RequestFailed     RequestState = "FAILED"
	RequestTimeout    RequestState = "TIMEOUT"
)

// ExtendedState separates how a non-FINISHED request went wrong.
type ExtendedState string

const (
	ExtendedNone      ExtendedState = "NONE"
	ExtendedTransport ExtendedState = "TRANSPORT_ERROR" // worker unreachable
	ExtendedApp       ExtendedState = "APPLICATION_ERROR" // worker rejected or failed the operation
)

// Performance records the request timeline.
type Performance struct {
	CreatedAt  time.Time
	StartedAt  time.Time
	FinishedAt time.Time
}

// Request runs one RPC against one worker with a deadline, tracking the
// state machine CREATED -> IN_QUEUE -> IN_PROGRESS -> terminal.
type Request struct {
	ID         string
	WorkerName string
	Priority   int
	TimeoutSec int

	mu       sync.Mutex
	state    RequestState
	extended ExtendedState
	err      error
	perf     Performance
}

// RequestFunc is the actual RPC; it observes ctx's deadline.
type RequestFunc func(ctx context.Context) error

// NewRequest creates a request in CREATED.
func NewRequest(workerName string, priority, timeoutSec int) *Request {
	return &Request{
		ID:         uuid.NewString(),
		WorkerName: workerName,
		Priority:   priority,
		TimeoutSec: timeoutSec,
		state:      RequestCreated,
		extended:   ExtendedNone,
		perf:       Performance{CreatedAt: time.Now()},
	}
}

// State returns the current request state.
func (r *Request) State() RequestState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Extended returns the error classification of a failed request.
func (r *Request) Extended() ExtendedState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.extended
}

// Err returns the failure of a FAILED or TIMEOUT request.
func (r *Request) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Perf returns the request timeline.
func (r *Request) Perf() Performance {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.perf
}

// Queue moves the request to IN_QUEUE.
func (r *Request) Queue() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == RequestCreated {
		r.state = RequestInQueue
	}
}

// Cancel terminates a request that has not started.
func (r *Request) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.state {
	case RequestCreated, RequestInQueue:
		r.state = RequestCancelled
		r.perf.FinishedAt = time.Now()
	}
}

// Run executes fn under the request deadline, driving the state machine.
func (r *Request) Run(ctx context.Context, fn RequestFunc) {
	r.mu.Lock()
	if r.state == RequestCancelled {
		r.mu.Unlock()
		return
	}
	r.state = RequestInProgress
	r.perf.StartedAt = time.Now()
	r.mu.Unlock()

	if r.TimeoutSec > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(r.TimeoutSec)*time.Second)
		defer cancel()
	}

	err := fn(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.perf.FinishedAt = time.Now()

	switch {
	case err == nil:
		r.state = RequestFinished
	case ctx.Err() == context.DeadlineExceeded:
		r.state = RequestTimeout
		r.extended = ExtendedTransport
		r.err = err
	case wire.ErrTransport.Is(err):
		r.state = RequestFailed
		r.extended = ExtendedTransport
		r.err = err
	default:
		r.state = RequestFailed
		r.extended = ExtendedApp
		r.err = err
	}
}
