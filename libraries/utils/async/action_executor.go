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

package async

import (
	"context"
	"fmt"
	"sync"
)

// ActionFunc is the work callback executed by an ActionExecutor for every
// value passed to Execute.
type ActionFunc func(ctx context.Context, val interface{}) error

// ActionExecutor runs an ActionFunc against queued values with a bounded
// number of concurrent goroutines. When concurrency is 1 values are processed
// in the order they were queued. When maxBuffer is greater than zero, Execute
// blocks once that many values are waiting.
type ActionExecutor struct {
	ctx         context.Context
	action      ActionFunc
	concurrency uint32
	maxBuffer   uint64

	mu      sync.Mutex
	notFull *sync.Cond
	drained *sync.Cond
	queue   []interface{}
	running uint32
	err     error
}

// NewActionExecutor creates an ActionExecutor with the given concurrency and
// buffering limits. A maxBuffer of 0 means the queue is unbounded.
func NewActionExecutor(ctx context.Context, action ActionFunc, concurrency uint32, maxBuffer uint64) *ActionExecutor {
	if concurrency == 0 {
		concurrency = 1
	}

	ae := &ActionExecutor{
		ctx:         ctx,
		action:      action,
		concurrency: concurrency,
		maxBuffer:   maxBuffer,
	}
	ae.notFull = sync.NewCond(&ae.mu)
	ae.drained = sync.NewCond(&ae.mu)

	return ae
}

// Execute queues val for processing, spawning a worker goroutine if fewer
// than the configured number are running.
func (ae *ActionExecutor) Execute(val interface{}) {
	ae.mu.Lock()
	defer ae.mu.Unlock()

	if ae.maxBuffer > 0 {
		for uint64(len(ae.queue)) >= ae.maxBuffer {
			ae.notFull.Wait()
		}
	}

	ae.queue = append(ae.queue, val)

	if ae.running < ae.concurrency {
		ae.running++
		go ae.work()
	}
}

// WaitForEmpty blocks until all queued values have been processed, then
// returns the first error encountered since the last call. The error is
// cleared, so a subsequent call returns nil unless new work fails.
func (ae *ActionExecutor) WaitForEmpty() error {
	ae.mu.Lock()
	defer ae.mu.Unlock()

	for len(ae.queue) > 0 || ae.running > 0 {
		ae.drained.Wait()
	}

	err := ae.err
	ae.err = nil
	return err
}

func (ae *ActionExecutor) work() {
	for {
		ae.mu.Lock()
		if len(ae.queue) == 0 {
			ae.running--
			if ae.running == 0 {
				ae.drained.Broadcast()
			}
			ae.mu.Unlock()
			return
		}

		val := ae.queue[0]
		ae.queue = ae.queue[1:]
		ae.notFull.Signal()
		ae.mu.Unlock()

		if err := ae.safeCall(val); err != nil {
			ae.mu.Lock()
			if ae.err == nil {
				ae.err = err
			}
			ae.mu.Unlock()
		}
	}
}

func (ae *ActionExecutor) safeCall(val interface{}) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in action: %v", r)
		}
	}()

	return ae.action(ae.ctx, val)
}
