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

// Package qdisp schedules per-chunk query fragments: it packs jobs into
// per-worker uber jobs, drives their submission and retry through a
// priority pool, merges arriving results exactly once, and squashes all
// outstanding work on cancellation or early LIMIT completion.
package qdisp

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/parsecdb/parsec/libraries/utils/async"
)

// PoolConfig sizes the QdispPool. RunSizes[p] bounds concurrency at
// priority p; missing entries fall back to 1. MinRunningSizes is kept for
// configuration parity: each priority owns its executor, so its minimum is
// its own bound.
type PoolConfig struct {
	PoolSize        int
	MaxPriority     int
	RunSizes        []int
	MinRunningSizes []int
}

// Command is one unit of pool work, tagged with the query it belongs to so
// queued work can be cancelled wholesale.
type Command struct {
	QueryID  uint64
	Priority int
	Fn       func(ctx context.Context)

	cancelled int32
}

func (c *Command) cancel() { atomic.StoreInt32(&c.cancelled, 1) }

func (c *Command) isCancelled() bool { return atomic.LoadInt32(&c.cancelled) != 0 }

// QdispPool executes commands with bounded concurrency per priority level.
// Priority 0 is the most urgent.
type QdispPool struct {
	executors []*async.ActionExecutor

	mu      sync.Mutex
	pending map[uint64]map[*Command]struct{}
}

// NewQdispPool builds the pool. ctx bounds the lifetime of all commands.
func NewQdispPool(ctx context.Context, cfg PoolConfig) *QdispPool {
	p := &QdispPool{pending: make(map[uint64]map[*Command]struct{})}

	for prio := 0; prio <= cfg.MaxPriority; prio++ {
		concurrency := 1
		if prio < len(cfg.RunSizes) && cfg.RunSizes[prio] > 0 {
			concurrency = cfg.RunSizes[prio]
		}
		p.executors = append(p.executors,
			async.NewActionExecutor(ctx, p.run, uint32(concurrency), 0))
	}
	return p
}

func (p *QdispPool) run(ctx context.Context, val interface{}) error {
	cmd := val.(*Command)
	defer p.forget(cmd)

	if cmd.isCancelled() || ctx.Err() != nil {
		return nil
	}
	cmd.Fn(ctx)
	return nil
}

// Submit queues a command at its priority. Negative priorities are clamped
// to 0, priorities above MaxPriority to MaxPriority.
func (p *QdispPool) Submit(cmd *Command) {
	prio := cmd.Priority
	if prio < 0 {
		prio = 0
	}
	if prio >= len(p.executors) {
		prio = len(p.executors) - 1
	}

	p.mu.Lock()
	if p.pending[cmd.QueryID] == nil {
		p.pending[cmd.QueryID] = make(map[*Command]struct{})
	}
	p.pending[cmd.QueryID][cmd] = struct{}{}
	p.mu.Unlock()

	p.executors[prio].Execute(cmd)
}

// CancelQuery marks every queued command of a query cancelled. Commands
// already running are unaffected; cancellation of queued work is
// idempotent.
func (p *QdispPool) CancelQuery(queryID uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for cmd := range p.pending[queryID] {
		cmd.cancel()
	}
}

// Drain blocks until all queued commands have run, returning the first
// executor error since the last drain.
func (p *QdispPool) Drain() error {
	var first error
	for _, ex := range p.executors {
		if err := ex.WaitForEmpty(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (p *QdispPool) forget(cmd *Command) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cmds, ok := p.pending[cmd.QueryID]; ok {
		delete(cmds, cmd)
		if len(cmds) == 0 {
			delete(p.pending, cmd.QueryID)
		}
	}
}
