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

package qdisp

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolRunsCommands(t *testing.T) {
	pool := NewQdispPool(context.Background(), PoolConfig{
		PoolSize:    4,
		MaxPriority: 2,
		RunSizes:    []int{2, 2, 2},
	})

	var ran int64
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		pool.Submit(&Command{
			QueryID:  1,
			Priority: i % 3,
			Fn: func(context.Context) {
				atomic.AddInt64(&ran, 1)
				wg.Done()
			},
		})
	}
	wg.Wait()
	assert.Equal(t, int64(50), atomic.LoadInt64(&ran))
	require.NoError(t, pool.Drain())
}

func TestPoolConcurrencyBound(t *testing.T) {
	pool := NewQdispPool(context.Background(), PoolConfig{
		PoolSize:    2,
		MaxPriority: 0,
		RunSizes:    []int{2},
	})

	var cur, max int64
	var mu sync.Mutex
	block := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		pool.Submit(&Command{QueryID: 1, Fn: func(context.Context) {
			defer wg.Done()
			mu.Lock()
			cur++
			if cur > max {
				max = cur
			}
			mu.Unlock()
			<-block
			mu.Lock()
			cur--
			mu.Unlock()
		}})
	}
	close(block)
	wg.Wait()
	assert.LessOrEqual(t, max, int64(2))
}

func TestPoolCancelByQuery(t *testing.T) {
	pool := NewQdispPool(context.Background(), PoolConfig{
		PoolSize:    1,
		MaxPriority: 0,
		RunSizes:    []int{1},
	})

	started := make(chan struct{})
	release := make(chan struct{})
	var ranOther, ranCancelled int64

	pool.Submit(&Command{QueryID: 7, Fn: func(context.Context) {
		close(started)
		<-release
	}})
	<-started

	// queued behind the running command
	for i := 0; i < 5; i++ {
		pool.Submit(&Command{QueryID: 7, Fn: func(context.Context) {
			atomic.AddInt64(&ranCancelled, 1)
		}})
	}
	pool.Submit(&Command{QueryID: 8, Fn: func(context.Context) {
		atomic.AddInt64(&ranOther, 1)
	}})

	pool.CancelQuery(7)
	// cancellation is idempotent
	pool.CancelQuery(7)
	close(release)

	require.NoError(t, pool.Drain())
	assert.Equal(t, int64(0), atomic.LoadInt64(&ranCancelled))
	assert.Equal(t, int64(1), atomic.LoadInt64(&ranOther))
}
