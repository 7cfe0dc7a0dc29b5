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

package config

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConfig(t *testing.T) *Configuration {
	cfg, err := NewConfiguration(context.Background(), NewMemStore())
	require.NoError(t, err)
	return cfg
}

func testWorker(name string) *Worker {
	return &Worker{
		Name:      name,
		IsEnabled: true,
		Svc:       HostPort{Host: name + ".example.org", Port: 25000},
		Fs:        HostPort{Host: name + ".example.org", Port: 25001},
		DataDir:   "/qserv/data",
	}
}

func TestParamsDefaultsAndWrites(t *testing.T) {
	cfg := newTestConfig(t)
	ctx := context.Background()

	val, err := cfg.GetInt("controller", "num_threads")
	require.NoError(t, err)
	assert.Equal(t, int64(16), val)

	require.NoError(t, cfg.SetFromString(ctx, "controller", "num_threads", "32"))

	// successful writes are visible on next read
	val, err = cfg.GetInt("controller", "num_threads")
	require.NoError(t, err)
	assert.Equal(t, int64(32), val)

	_, err = cfg.GetString("controller", "no_such_param")
	assert.True(t, ErrNotFound.Is(err))
}

func TestReadOnlyParamCannotBeSet(t *testing.T) {
	cfg := newTestConfig(t)

	err := cfg.SetFromString(context.Background(), "common", "instance_id", "other")
	require.Error(t, err)
	assert.True(t, ErrReadOnly.Is(err))

	// the failed write did not mutate anything
	val, err := cfg.GetString("common", "instance_id")
	require.NoError(t, err)
	assert.Equal(t, "", val)
}

func TestSetRejectsBadTypedValue(t *testing.T) {
	cfg := newTestConfig(t)

	err := cfg.SetFromString(context.Background(), "controller", "num_threads", "not-a-number")
	require.Error(t, err)

	val, _ := cfg.GetInt("controller", "num_threads")
	assert.Equal(t, int64(16), val)
}

func TestSecurityParamsMaskedInDump(t *testing.T) {
	cfg := newTestConfig(t)
	ctx := context.Background()
	require.NoError(t, cfg.SetFromString(ctx, "database", "password", "hunter2"))

	for _, view := range cfg.Dump(false) {
		if view.Category == "database" && view.Name == "password" {
			assert.Equal(t, "xxxxx", view.Value)
		}
	}
	for _, view := range cfg.Dump(true) {
		if view.Category == "database" && view.Name == "password" {
			assert.Equal(t, "hunter2", view.Value)
		}
	}
}

func TestAddDeleteWorkerRoundTrip(t *testing.T) {
	cfg := newTestConfig(t)
	ctx := context.Background()

	require.NoError(t, cfg.AddWorker(ctx, testWorker("worker-A")))
	require.NoError(t, cfg.AddWorker(ctx, testWorker("worker-B")))

	assert.True(t, ErrConflict.Is(cfg.AddWorker(ctx, testWorker("worker-A"))))

	require.NoError(t, cfg.DeleteWorker(ctx, "worker-B"))
	workers := cfg.Workers()
	require.Len(t, workers, 1)
	assert.Equal(t, "worker-A", workers[0].Name)

	assert.True(t, ErrNotFound.Is(cfg.DeleteWorker(ctx, "worker-B")))
}

func TestWorkerPartialUpdateTriState(t *testing.T) {
	cfg := newTestConfig(t)
	ctx := context.Background()
	require.NoError(t, cfg.AddWorker(ctx, testWorker("worker-A")))

	// disable only; read-only flag untouched
	w, err := cfg.UpdateWorker(ctx, "worker-A", WorkerUpdate{
		IsEnabled:  FlagFalse,
		IsReadOnly: FlagUnchanged,
	})
	require.NoError(t, err)
	assert.False(t, w.IsEnabled)
	assert.False(t, w.IsReadOnly)

	// read-only only; enabled flag untouched
	w, err = cfg.UpdateWorker(ctx, "worker-A", WorkerUpdate{
		IsEnabled:  FlagUnchanged,
		IsReadOnly: FlagTrue,
	})
	require.NoError(t, err)
	assert.False(t, w.IsEnabled)
	assert.True(t, w.IsReadOnly)
}

func TestFamilyValidation(t *testing.T) {
	cfg := newTestConfig(t)
	ctx := context.Background()

	err := cfg.AddFamily(ctx, &Family{Name: "bad", ReplicationLevel: 0, NumStripes: 60, NumSubStripes: 12, Overlap: 0.01})
	assert.True(t, ErrConfig.Is(err))

	err = cfg.AddFamily(ctx, &Family{Name: "bad", ReplicationLevel: 2, NumStripes: 60, NumSubStripes: 12, Overlap: 0})
	assert.True(t, ErrConfig.Is(err))

	require.NoError(t, cfg.AddFamily(ctx,
		&Family{Name: "production", ReplicationLevel: 2, NumStripes: 60, NumSubStripes: 12, Overlap: 0.025}))
}

func TestFamilyDeleteCascadesToDatabases(t *testing.T) {
	cfg := newTestConfig(t)
	ctx := context.Background()

	require.NoError(t, cfg.AddFamily(ctx,
		&Family{Name: "production", ReplicationLevel: 2, NumStripes: 60, NumSubStripes: 12, Overlap: 0.025}))
	require.NoError(t, cfg.AddDatabase(ctx, &Database{
		Name:              "LSST",
		Family:            "production",
		PartitionedTables: []string{"Object"},
		DirectorTable:     "Object",
		DirectorTableKey:  "objectId",
	}))

	require.NoError(t, cfg.DeleteFamily(ctx, "production"))

	_, err := cfg.Database("LSST")
	assert.True(t, ErrNotFound.Is(err))
}

func TestAddDatabaseValidatesFamilyAndDirector(t *testing.T) {
	cfg := newTestConfig(t)
	ctx := context.Background()

	err := cfg.AddDatabase(ctx, &Database{Name: "LSST", Family: "missing"})
	assert.True(t, ErrNotFound.Is(err))

	require.NoError(t, cfg.AddFamily(ctx,
		&Family{Name: "production", ReplicationLevel: 1, NumStripes: 60, NumSubStripes: 12, Overlap: 0.025}))

	err = cfg.AddDatabase(ctx, &Database{
		Name:          "LSST",
		Family:        "production",
		DirectorTable: "Object", // not registered as partitioned
	})
	assert.True(t, ErrConfig.Is(err))
}

func TestPublishDatabase(t *testing.T) {
	cfg := newTestConfig(t)
	ctx := context.Background()

	require.NoError(t, cfg.AddFamily(ctx,
		&Family{Name: "production", ReplicationLevel: 1, NumStripes: 60, NumSubStripes: 12, Overlap: 0.025}))
	require.NoError(t, cfg.AddDatabase(ctx, &Database{Name: "LSST", Family: "production"}))

	d, err := cfg.SetDatabasePublished(ctx, "LSST", true)
	require.NoError(t, err)
	assert.True(t, d.IsPublished)

	d, err = cfg.SetDatabasePublished(ctx, "LSST", false)
	require.NoError(t, err)
	assert.False(t, d.IsPublished)
}
