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

package contr

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parsecdb/parsec/libraries/czarcore/wire"
	"github.com/parsecdb/parsec/libraries/replcore/config"
	"github.com/parsecdb/parsec/libraries/replcore/events"
)

type fakeClient struct {
	mu            sync.Mutex
	failService   map[string]bool // worker -> transport failure
	failPing      map[string]bool // "worker/service" -> down
	setReplicas   map[string]*wire.SetReplicasRequest
	addCalls      []string
	removeCalls   []string
	indexRows     map[int][][]string
	sqlExtended   int
}

func (f *fakeClient) ServiceCmd(ctx context.Context, w wire.WorkerAddr, op wire.ServiceOp) (*wire.ServiceResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failService[w.Name] {
		return nil, wire.ErrTransport.New("connection refused")
	}
	return &wire.ServiceResponse{State: "RUNNING", Service: wire.ServiceState{State: string(op)}}, nil
}

func (f *fakeClient) Ping(ctx context.Context, w wire.WorkerAddr, service string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPing[w.Name+"/"+service] || f.failPing[w.Name+"/*"] {
		return wire.ErrTransport.New("no route to host")
	}
	return nil
}

func (f *fakeClient) GetReplicas(ctx context.Context, w wire.WorkerAddr, req *wire.GetReplicasRequest) (*wire.ReplicaResponse, error) {
	return &wire.ReplicaResponse{}, nil
}

func (f *fakeClient) SetReplicas(ctx context.Context, w wire.WorkerAddr, req *wire.SetReplicasRequest) (*wire.ReplicaResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setReplicas == nil {
		f.setReplicas = make(map[string]*wire.SetReplicasRequest)
	}
	f.setReplicas[w.Name] = req
	return &wire.ReplicaResponse{}, nil
}

func (f *fakeClient) AddReplica(ctx context.Context, w wire.WorkerAddr, req *wire.AddReplicaRequest) (*wire.ReplicaResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addCalls = append(f.addCalls, w.Name)
	return &wire.ReplicaResponse{}, nil
}

func (f *fakeClient) RemoveReplica(ctx context.Context, w wire.WorkerAddr, req *wire.RemoveReplicaRequest) (*wire.ReplicaResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removeCalls = append(f.removeCalls, w.Name)
	return &wire.ReplicaResponse{}, nil
}

func (f *fakeClient) RunSql(ctx context.Context, w wire.WorkerAddr, req *wire.SqlRequest) (*wire.SqlResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &wire.SqlResponse{ID: req.ID, ExtendedStatus: f.sqlExtended}, nil
}

func (f *fakeClient) DirectorIndexData(ctx context.Context, w wire.WorkerAddr, req *wire.DirectorIndexRequest) (*wire.DirectorIndexResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &wire.DirectorIndexResponse{Rows: f.indexRows[req.Chunk]}, nil
}

type execRecorder struct {
	mu      sync.Mutex
	queries []string
}

type execResult struct{}

func (execResult) LastInsertId() (int64, error) { return 0, nil }
func (execResult) RowsAffected() (int64, error) { return 1, nil }

func (r *execRecorder) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queries = append(r.queries, query)
	return execResult{}, nil
}

func (r *execRecorder) has(substr string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, q := range r.queries {
		if strings.Contains(q, substr) {
			return true
		}
	}
	return false
}

func newTestController(t *testing.T, client WorkerClient) *Controller {
	cfg, err := config.NewConfiguration(context.Background(), config.NewMemStore())
	require.NoError(t, err)
	ctx := context.Background()

	for _, name := range []string{"worker-A", "worker-B", "worker-C"} {
		require.NoError(t, cfg.AddWorker(ctx, &config.Worker{
			Name:      name,
			IsEnabled: true,
			Svc:       config.HostPort{Host: name, Port: 25000},
			Fs:        config.HostPort{Host: name, Port: 25001},
		}))
	}
	require.NoError(t, cfg.AddFamily(ctx, &config.Family{
		Name: "production", ReplicationLevel: 2, NumStripes: 60, NumSubStripes: 12, Overlap: 0.025,
	}))
	require.NoError(t, cfg.AddDatabase(ctx, &config.Database{
		Name:              "LSST",
		Family:            "production",
		PartitionedTables: []string{"Object"},
		DirectorTable:     "Object",
		DirectorTableKey:  "objectId",
		Columns: map[string][]config.Column{
			"Object": {{Name: "objectId", Type: "BIGINT UNSIGNED"}},
		},
	}))

	return NewController(cfg, client, events.NewMemLog())
}

func TestRequestStateMachine(t *testing.T) {
	r := NewRequest("worker-A", 0, 10)
	assert.Equal(t, RequestCreated, r.State())
	r.Queue()
	assert.Equal(t, RequestInQueue, r.State())

	r.Run(context.Background(), func(ctx context.Context) error { return nil })
	assert.Equal(t, RequestFinished, r.State())
	assert.Equal(t, ExtendedNone, r.Extended())
}

func TestRequestErrorClassification(t *testing.T) {
	r := NewRequest("worker-A", 0, 10)
	r.Run(context.Background(), func(ctx context.Context) error {
		return wire.ErrTransport.New("connection refused")
	})
	assert.Equal(t, RequestFailed, r.State())
	assert.Equal(t, ExtendedTransport, r.Extended())

	r = NewRequest("worker-A", 0, 10)
	r.Run(context.Background(), func(ctx context.Context) error {
		return wire.ErrApplication.New("bad query")
	})
	assert.Equal(t, RequestFailed, r.State())
	assert.Equal(t, ExtendedApp, r.Extended())
}

func TestRequestCancelBeforeRun(t *testing.T) {
	r := NewRequest("worker-A", 0, 10)
	r.Queue()
	r.Cancel()
	assert.Equal(t, RequestCancelled, r.State())

	// running a cancelled request is a no-op
	r.Run(context.Background(), func(ctx context.Context) error { return nil })
	assert.Equal(t, RequestCancelled, r.State())
}

func TestServiceManagementAllAck(t *testing.T) {
	client := &fakeClient{}
	c := newTestController(t, client)

	job := NewServiceManagementJob(wire.ServiceStatus, 10)
	require.NoError(t, job.Run(context.Background(), c))

	assert.Equal(t, JobFinished, job.State())
	assert.Equal(t, JobSuccess, job.Result())
	assert.Len(t, job.Results, 3)
}

func TestServiceManagementPartialFailure(t *testing.T) {
	client := &fakeClient{failService: map[string]bool{"worker-B": true}}
	c := newTestController(t, client)

	job := NewServiceManagementJob(wire.ServiceDrain, 10)
	err := job.Run(context.Background(), c)
	require.Error(t, err)
	assert.Equal(t, JobFailure, job.Result())

	// per-worker state is still reported for the workers that answered
	assert.Len(t, job.Results, 2)
	p := job.Progress()
	assert.Equal(t, 3, p.Total)
	assert.Equal(t, 1, p.Failed)
}

func TestClusterHealthReportsPerService(t *testing.T) {
	client := &fakeClient{failPing: map[string]bool{
		"worker-B/qserv":       true,
		"worker-C/replication": true,
	}}
	c := newTestController(t, client)

	job := NewClusterHealthJob(5)
	require.NoError(t, job.Run(context.Background(), c))

	assert.Equal(t, WorkerHealth{Replication: true, Qserv: true}, job.Health["worker-A"])
	assert.Equal(t, WorkerHealth{Replication: true, Qserv: false}, job.Health["worker-B"])
	assert.Equal(t, WorkerHealth{Replication: false, Qserv: true}, job.Health["worker-C"])
}

func TestQservSyncPushesGoodChunks(t *testing.T) {
	client := &fakeClient{}
	c := newTestController(t, client)

	c.Replicas().Set(Replica{Worker: "worker-A", Database: "LSST", Chunk: 1, Status: wire.ReplicaComplete})
	c.Replicas().Set(Replica{Worker: "worker-A", Database: "LSST", Chunk: 2, Status: wire.ReplicaComplete})
	c.Replicas().Set(Replica{Worker: "worker-B", Database: "LSST", Chunk: 3, Status: wire.ReplicaComplete})
	// incomplete replicas are not pushed
	c.Replicas().Set(Replica{Worker: "worker-B", Database: "LSST", Chunk: 4, Status: wire.ReplicaIncomplete})

	job := NewQservSyncJob("production", 10, false)
	require.NoError(t, job.Run(context.Background(), c))

	require.NotNil(t, client.setReplicas["worker-A"])
	assert.Equal(t, []int{1, 2}, client.setReplicas["worker-A"].Chunks["LSST"])
	assert.Equal(t, []int{3}, client.setReplicas["worker-B"].Chunks["LSST"])
	// worker-C serves nothing but still gets the (empty) sync
	require.NotNil(t, client.setReplicas["worker-C"])
	assert.Empty(t, client.setReplicas["worker-C"].Chunks)
}

func TestQservSyncUnknownFamily(t *testing.T) {
	c := newTestController(t, &fakeClient{})
	job := NewQservSyncJob("nope", 10, false)
	err := job.Run(context.Background(), c)
	assert.True(t, config.ErrNotFound.Is(err))
}

func TestDirectorIndexBuild(t *testing.T) {
	client := &fakeClient{indexRows: map[int][][]string{
		1: {{"42", "1", "0"}, {"43", "1", "1"}},
		2: {{"44", "2", "0"}},
	}}
	c := newTestController(t, client)
	c.Replicas().Set(Replica{Worker: "worker-A", Database: "LSST", Chunk: 1, Status: wire.ReplicaComplete})
	c.Replicas().Set(Replica{Worker: "worker-B", Database: "LSST", Chunk: 2, Status: wire.ReplicaComplete})

	db := &execRecorder{}
	job := NewDirectorIndexJob("LSST", "Object", true, true, 10)
	require.NoError(t, job.Run(context.Background(), c, db))

	assert.True(t, db.has("DROP TABLE IF EXISTS LSST.Object__idx"))
	assert.True(t, db.has("CREATE TABLE IF NOT EXISTS LSST.Object__idx (`objectId` BIGINT UNSIGNED NOT NULL, chunkId INT, subChunkId INT, UNIQUE KEY (`objectId`))"))
	assert.True(t, db.has("INSERT IGNORE INTO LSST.Object__idx"))
	assert.Empty(t, job.Errors)

	// reissuing the identical request is idempotent: INSERT IGNORE with a
	// unique key merges nothing new and the build succeeds again
	job2 := NewDirectorIndexJob("LSST", "Object", true, true, 10)
	require.NoError(t, job2.Run(context.Background(), c, db))
}

func TestDirectorIndexNonUniqueKeySpec(t *testing.T) {
	client := &fakeClient{}
	c := newTestController(t, client)
	db := &execRecorder{}

	job := NewDirectorIndexJob("LSST", "Object", false, false, 10)
	require.NoError(t, job.Run(context.Background(), c, db))

	assert.False(t, db.has("DROP TABLE"))
	assert.True(t, db.has("KEY (`objectId`)"))
	assert.False(t, db.has("UNIQUE KEY"))
}

func TestDirectorIndexUnknownDirector(t *testing.T) {
	c := newTestController(t, &fakeClient{})
	job := NewDirectorIndexJob("LSST", "Source", false, true, 10)
	err := job.Run(context.Background(), c, &execRecorder{})
	assert.Error(t, err)
}

func TestReplicationJobRaisesLevel(t *testing.T) {
	client := &fakeClient{}
	c := newTestController(t, client)

	// chunk 1 has a single replica; the family wants two
	c.Replicas().Set(Replica{Worker: "worker-A", Database: "LSST", Chunk: 1, Status: wire.ReplicaComplete})

	job := NewReplicationJob("production", 10)
	require.NoError(t, job.Run(context.Background(), c))

	client.mu.Lock()
	adds := append([]string{}, client.addCalls...)
	client.mu.Unlock()
	require.Len(t, adds, 1)
	assert.NotEqual(t, "worker-A", adds[0])

	// the family now meets its level
	assert.Len(t, c.Replicas().WorkersFor("LSST", 1), 2)
}

func TestReplicationJobTrimsExcess(t *testing.T) {
	client := &fakeClient{}
	c := newTestController(t, client)

	for _, w := range []string{"worker-A", "worker-B", "worker-C"} {
		c.Replicas().Set(Replica{Worker: w, Database: "LSST", Chunk: 1, Status: wire.ReplicaComplete})
	}

	job := NewReplicationJob("production", 10)
	require.NoError(t, job.Run(context.Background(), c))

	client.mu.Lock()
	removes := append([]string{}, client.removeCalls...)
	client.mu.Unlock()
	assert.Len(t, removes, 1)
	assert.Len(t, c.Replicas().WorkersFor("LSST", 1), 2)
}

func TestSqlJobEncodesErrno(t *testing.T) {
	client := &fakeClient{sqlExtended: 1146}
	c := newTestController(t, client)

	job := NewSqlJob("worker-A", "SELECT 1", "root", "", 100, 10)
	err := job.Run(context.Background(), c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1146")
}

func TestHealthMonitorEvictsAfterTimeout(t *testing.T) {
	client := &fakeClient{failPing: map[string]bool{"worker-B/*": true}}
	c := newTestController(t, client)

	hm := NewHealthMonitor(c, 10*time.Millisecond, 30*time.Millisecond)
	var evicted []string
	var mu sync.Mutex
	hm.OnEvict(func(name string) {
		mu.Lock()
		evicted = append(evicted, name)
		mu.Unlock()
	})

	ctx := context.Background()
	hm.ProbeOnce(ctx) // establishes lastSeen
	assert.False(t, hm.IsEvicted("worker-B"))

	time.Sleep(40 * time.Millisecond)
	hm.ProbeOnce(ctx)

	assert.True(t, hm.IsEvicted("worker-B"))
	assert.False(t, hm.IsEvicted("worker-A"))
	mu.Lock()
	assert.Equal(t, []string{"worker-B"}, evicted)
	mu.Unlock()

	// recovery clears the eviction
	client.mu.Lock()
	client.failPing = map[string]bool{}
	client.mu.Unlock()
	hm.ProbeOnce(ctx)
	assert.False(t, hm.IsEvicted("worker-B"))
}

func TestReplicaIndex(t *testing.T) {
	ri := NewReplicaIndex()
	ri.Set(Replica{Worker: "worker-B", Database: "LSST", Chunk: 5, Status: wire.ReplicaComplete})
	ri.Set(Replica{Worker: "worker-A", Database: "LSST", Chunk: 5, Status: wire.ReplicaComplete})
	ri.Set(Replica{Worker: "worker-A", Database: "LSST", Chunk: 9, Status: wire.ReplicaIncomplete})
	ri.Set(Replica{Worker: "worker-A", Database: "OTHER", Chunk: 7, Status: wire.ReplicaComplete})

	assert.Equal(t, []string{"worker-A", "worker-B"}, ri.WorkersFor("LSST", 5))
	assert.Empty(t, ri.WorkersFor("LSST", 9))
	assert.Equal(t, []int{5}, ri.Chunks("LSST"))
	assert.Equal(t, []int{7}, ri.Chunks("OTHER"))

	ri.ResetWorker("worker-A")
	assert.Equal(t, []string{"worker-B"}, ri.WorkersFor("LSST", 5))
	assert.Empty(t, ri.Chunks("OTHER"))
}

func TestRegistryWorkerFor(t *testing.T) {
	c := newTestController(t, &fakeClient{})
	c.Replicas().Set(Replica{Worker: "worker-A", Database: "LSST", Chunk: 3, Status: wire.ReplicaComplete})
	c.Replicas().Set(Replica{Worker: "worker-B", Database: "LSST", Chunk: 3, Status: wire.ReplicaComplete})

	reg := NewRegistry(c.Config(), c.Replicas(), nil)

	w, err := reg.WorkerFor("LSST", 3, nil)
	require.NoError(t, err)
	assert.Equal(t, "worker-A", w.Name)

	w, err = reg.WorkerFor("LSST", 3, map[string]bool{"worker-A": true})
	require.NoError(t, err)
	assert.Equal(t, "worker-B", w.Name)

	_, err = reg.WorkerFor("LSST", 99, nil)
	assert.True(t, ErrNoWorker.Is(err))
}
