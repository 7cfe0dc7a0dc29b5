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

package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parsecdb/parsec/libraries/replcore/config"
)

func newTestRegistry(t *testing.T) *Registry {
	cfg, err := config.NewConfiguration(context.Background(), config.NewMemStore())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, cfg.AddFamily(ctx, &config.Family{
		Name: "production", ReplicationLevel: 1, NumStripes: 60, NumSubStripes: 12, Overlap: 0.025,
	}))
	require.NoError(t, cfg.AddDatabase(ctx, &config.Database{Name: "LSST", Family: "production"}))
	require.NoError(t, cfg.AddDatabase(ctx, &config.Database{Name: "SDSS", Family: "production"}))

	return NewRegistry(cfg)
}

func TestBeginTransaction(t *testing.T) {
	r := newTestRegistry(t)

	tr, err := r.Begin(context.Background(), "LSST", nil)
	require.NoError(t, err)
	assert.Equal(t, Started, tr.State)
	assert.Equal(t, uint64(1), tr.ID)
	assert.False(t, tr.BeginTime.IsZero())
	assert.False(t, tr.StartTime.IsZero())
}

func TestBeginUnknownDatabase(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.Begin(context.Background(), "nope", nil)
	assert.True(t, config.ErrNotFound.Is(err))
}

func TestBeginPublishedDatabaseRejected(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.cfg.SetDatabasePublished(context.Background(), "LSST", true)
	require.NoError(t, err)

	_, err = r.Begin(context.Background(), "LSST", nil)
	assert.True(t, ErrTransaction.Is(err))
}

func TestBeginSetupFailure(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.Begin(context.Background(), "LSST", func(ctx context.Context) error {
		return errors.New("worker exploded")
	})
	require.Error(t, err)

	// the row stays, in START_FAILED
	all := r.Transactions("LSST")
	require.Len(t, all, 1)
	assert.Equal(t, StartFailed, all[0].State)
	assert.False(t, r.HasActive("LSST"))
}

// At most one transaction of a database may be IS_STARTING: begins
// serialize on the per-database named mutex.
func TestBeginSerializesPerDatabase(t *testing.T) {
	r := newTestRegistry(t)

	var mu sync.Mutex
	starting := 0
	maxStarting := 0

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Begin(context.Background(), "LSST", func(ctx context.Context) error {
				mu.Lock()
				starting++
				if starting > maxStarting {
					maxStarting = starting
				}
				mu.Unlock()
				time.Sleep(2 * time.Millisecond)
				mu.Lock()
				starting--
				mu.Unlock()
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxStarting)
	assert.Len(t, r.Transactions("LSST"), 8)
}

func TestBeginDifferentDatabasesDoNotSerialize(t *testing.T) {
	r := newTestRegistry(t)

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_, _ = r.Begin(context.Background(), "LSST", func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	// SDSS begins while LSST's begin is still holding its own mutex
	done := make(chan struct{})
	go func() {
		_, err := r.Begin(context.Background(), "SDSS", nil)
		assert.NoError(t, err)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("begin on another database blocked")
	}
	close(release)
}

func TestUpdateTransitions(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	tr, err := r.Begin(ctx, "LSST", nil)
	require.NoError(t, err)

	got, err := r.Update(ctx, tr.ID, Finished)
	require.NoError(t, err)
	assert.Equal(t, Finished, got.State)
	assert.False(t, got.EndTime.IsZero())

	// terminal transactions accept nothing further
	_, err = r.Update(ctx, tr.ID, Aborted)
	assert.True(t, ErrTransaction.Is(err))
}

func TestBeginThenAbortLeavesNoStartedRow(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	tr, err := r.Begin(ctx, "LSST", nil)
	require.NoError(t, err)

	_, err = r.Update(ctx, tr.ID, Aborted)
	require.NoError(t, err)

	for _, tx := range r.Transactions("LSST") {
		assert.NotEqual(t, Started, tx.State)
	}
	assert.False(t, r.HasActive("LSST"))
}

func TestActiveTransactionBlocksFlag(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	tr, err := r.Begin(ctx, "LSST", nil)
	require.NoError(t, err)
	assert.True(t, r.HasActive("LSST"))
	assert.False(t, r.HasActive("SDSS"))

	_, err = r.Update(ctx, tr.ID, Finished)
	require.NoError(t, err)
	assert.False(t, r.HasActive("LSST"))
}

func TestUpdateUnknownTransaction(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.Update(context.Background(), 77, Finished)
	assert.True(t, ErrNoSuchTransaction.Is(err))
}

func TestContributionsAppendOnly(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	tr, err := r.Begin(ctx, "LSST", nil)
	require.NoError(t, err)

	require.NoError(t, r.AddContribution(Contribution{
		TransactionID: tr.ID, WorkerName: "worker-A", Table: "Object", Chunk: 1, ContributionID: 1, NumRows: 100,
	}))
	require.NoError(t, r.AddContribution(Contribution{
		TransactionID: tr.ID, WorkerName: "worker-B", Table: "Object", Chunk: 2, ContributionID: 2, NumRows: 50,
	}))

	contribs := r.Contributions(tr.ID)
	require.Len(t, contribs, 2)
	assert.Equal(t, "worker-A", contribs[0].WorkerName)
	assert.Equal(t, uint64(2), contribs[1].ContributionID)

	assert.Error(t, r.AddContribution(Contribution{TransactionID: 99}))
}
