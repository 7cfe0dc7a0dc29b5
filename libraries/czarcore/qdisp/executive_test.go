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
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/parsecdb/parsec/libraries/czarcore/qmeta"
	"github.com/parsecdb/parsec/libraries/czarcore/wire"
)

type fakeResolver struct {
	workers []wire.WorkerAddr
}

func (r *fakeResolver) WorkerFor(database string, chunkID int, exclude map[string]bool) (wire.WorkerAddr, error) {
	for i := 0; i < len(r.workers); i++ {
		w := r.workers[(chunkID+i)%len(r.workers)]
		if !exclude[w.Name] {
			return w, nil
		}
	}
	return wire.WorkerAddr{}, fmt.Errorf("no worker available for chunk %d", chunkID)
}

type fakeComms struct {
	mu          sync.Mutex
	exec        *Executive
	failPerWork map[string]int // remaining submit failures per worker
	hold        bool           // never deliver results
	rowsPerJob  uint64
	cancels     int64
	submits     int64
}

func (c *fakeComms) SubmitUberJob(ctx context.Context, w wire.WorkerAddr, req *wire.UberJobRequest) (*wire.UberJobResponse, error) {
	atomic.AddInt64(&c.submits, 1)

	c.mu.Lock()
	if c.failPerWork[w.Name] > 0 {
		c.failPerWork[w.Name]--
		c.mu.Unlock()
		return nil, wire.ErrTransport.New("connection refused")
	}
	hold := c.hold
	rows := c.rowsPerJob * uint64(len(req.Fragments))
	c.mu.Unlock()

	if !hold {
		go c.exec.OnResultFileReady(&wire.ResultFileReady{
			QueryID:   req.QueryID,
			UberJobID: req.UberJobID,
			Worker:    w.Name,
			FileURL:   "http://" + w.Name + "/result",
			Rows:      rows,
		})
	}
	return &wire.UberJobResponse{ID: req.ID, Status: "QUEUED"}, nil
}

func (c *fakeComms) CancelQuery(ctx context.Context, w wire.WorkerAddr, queryID uint64, uberJobIDs []uint64) error {
	atomic.AddInt64(&c.cancels, 1)
	return nil
}

type fakeMerger struct {
	mu     sync.Mutex
	merged map[uint64]bool
	rows   uint64
}

func (m *fakeMerger) MergeResultFile(ctx context.Context, file *wire.ResultFileReady) (MergeResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.merged == nil {
		m.merged = make(map[uint64]bool)
	}
	if m.merged[file.UberJobID] {
		return MergeResult{}, nil
	}
	m.merged[file.UberJobID] = true
	m.rows += file.Rows
	return MergeResult{Rows: file.Rows, Bytes: file.Bytes}, nil
}

func newTestExecutive(t *testing.T, cfg Config, comms *fakeComms, nChunks int) (*Executive, *qmeta.MessageStore) {
	pool := NewQdispPool(context.Background(), PoolConfig{PoolSize: 4, MaxPriority: 1, RunSizes: []int{2, 2}})
	msgs := qmeta.NewMessageStore()
	resolver := &fakeResolver{workers: []wire.WorkerAddr{
		{Name: "worker-A", Host: "a", Port: 25000},
		{Name: "worker-B", Host: "b", Port: 25000},
	}}
	merger := &fakeMerger{}

	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 5
	}
	cfg.AttemptSleep = time.Millisecond
	cfg.Database = "LSST"

	exec := NewExecutive(cfg, comms, resolver, merger, pool, msgs, nil)
	comms.exec = exec

	for i := 0; i < nChunks; i++ {
		exec.AddJob(JobDescription{
			JobID:   uint64(i + 1),
			ChunkID: 100 + i,
			Queries: []string{fmt.Sprintf("SELECT * FROM LSST.Object_%d", 100+i)},
		})
	}
	return exec, msgs
}

func TestExecutiveAllChunksSucceed(t *testing.T) {
	comms := &fakeComms{rowsPerJob: 5}
	exec, msgs := newTestExecutive(t, Config{QueryID: 1, UberJobMaxChunks: 2}, comms, 4)

	exec.Start(context.Background())
	status := exec.Join()

	assert.Equal(t, qmeta.StatusCompleted, status)
	assert.Equal(t, 4, exec.CompletedChunks())
	assert.Equal(t, uint64(20), exec.TotalResultRows())
	me := exec.MultiError()
	assert.True(t, me.Empty())

	s := msgs.Summarize()
	assert.Equal(t, 4, s.CompleteCount)
	assert.Equal(t, qmeta.SeverityInfo, s.Severity)
}

func TestExecutiveRetriesWorkerFailure(t *testing.T) {
	comms := &fakeComms{
		rowsPerJob:  1,
		failPerWork: map[string]int{"worker-A": 1},
	}
	exec, _ := newTestExecutive(t, Config{QueryID: 2, UberJobMaxChunks: 1}, comms, 4)

	exec.Start(context.Background())
	status := exec.Join()

	assert.Equal(t, qmeta.StatusCompleted, status)
	assert.Equal(t, 4, exec.CompletedChunks())
	// at least one extra submission happened for the retried uber job
	assert.Greater(t, atomic.LoadInt64(&comms.submits), int64(4))
}

func TestExecutiveTerminalFailureAfterMaxAttempts(t *testing.T) {
	comms := &fakeComms{
		rowsPerJob:  1,
		failPerWork: map[string]int{"worker-A": 1000, "worker-B": 1000},
	}
	exec, msgs := newTestExecutive(t, Config{QueryID: 3, UberJobMaxChunks: 4, MaxAttempts: 2}, comms, 2)

	exec.Start(context.Background())
	status := exec.Join()

	assert.Equal(t, qmeta.StatusFailed, status)
	me := exec.MultiError()
	assert.False(t, me.Empty())

	// attempts never exceed the bound: two single-job uber jobs, each
	// submitted once per allowed attempt
	assert.Equal(t, int64(4), atomic.LoadInt64(&comms.submits))

	s := msgs.Summarize()
	assert.Equal(t, qmeta.SeverityError, s.Severity)
	assert.NotEmpty(t, s.MultiError)
}

func TestExecutiveSquashIsIdempotent(t *testing.T) {
	comms := &fakeComms{rowsPerJob: 1, hold: true}
	exec, msgs := newTestExecutive(t, Config{QueryID: 4, UberJobMaxChunks: 1}, comms, 3)

	exec.Start(context.Background())
	time.Sleep(20 * time.Millisecond)
	exec.Squash("user cancel")
	exec.Squash("user cancel")

	status := exec.Join()
	assert.Equal(t, qmeta.StatusAborted, status)

	squashMsgs := 0
	for _, m := range msgs.Messages() {
		if m.Text == "Query Execution Squashed." {
			squashMsgs++
		}
	}
	assert.Equal(t, 1, squashMsgs)
}

func TestExecutiveLimitEarlyTermination(t *testing.T) {
	comms := &fakeComms{rowsPerJob: 10}
	exec, _ := newTestExecutive(t, Config{QueryID: 5, UberJobMaxChunks: 1, RowLimit: 10}, comms, 4)

	exec.Start(context.Background())
	status := exec.Join()

	assert.Equal(t, qmeta.StatusCompleted, status)
	assert.True(t, exec.LimitReached())
	assert.GreaterOrEqual(t, exec.TotalResultRows(), uint64(10))
}
