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
	"fmt"
	"strings"
	"sync"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"

	"github.com/parsecdb/parsec/libraries/czarcore/wire"
	"github.com/parsecdb/parsec/libraries/replcore/config"
)

// SQLExec is the local database surface the director-index builder
// writes through; satisfied by sqlx.DB.
type SQLExec interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// ServiceManagementJob runs one control operation (STATUS, SUSPEND,
// RESUME, REQUESTS, DRAIN) on every enabled worker. The job succeeds iff
// every worker acknowledges.
type ServiceManagementJob struct {
	Job
	Op         wire.ServiceOp
	TimeoutSec int

	mu      sync.Mutex
	Results map[string]*wire.ServiceResponse
}

func NewServiceManagementJob(op wire.ServiceOp, timeoutSec int) *ServiceManagementJob {
	return &ServiceManagementJob{
		Job:     newJob("SERVICE_MANAGEMENT"),
		Op:      op,
		TimeoutSec: timeoutSec,
		Results: make(map[string]*wire.ServiceResponse),
	}
}

func (j *ServiceManagementJob) Run(ctx context.Context, c *Controller) error {
	ctx = j.begin(ctx)
	c.record(ctx, j.Type, string(j.Op), "BEGIN", nil)

	c.eachWorker(ctx, &j.Job, c.enabledWorkers(), j.TimeoutSec, func(ctx context.Context, w *config.Worker) error {
		addr, err := c.workerAddr(w.Name)
		if err != nil {
			return err
		}
		resp, err := c.client.ServiceCmd(ctx, addr, j.Op)
		if err != nil {
			return err
		}
		j.mu.Lock()
		j.Results[w.Name] = resp
		j.mu.Unlock()
		return nil
	})

	result := j.allFinishedOK()
	j.end(result)
	c.record(ctx, j.Type, string(j.Op), string(result), nil)
	if result != JobSuccess {
		return ErrJob.New(j.ID, "service operation "+string(j.Op)+" was not acknowledged by all workers")
	}
	return nil
}

// WorkerHealth is the probe outcome for one worker.
type WorkerHealth struct {
	Replication bool `json:"replication"`
	Qserv       bool `json:"qserv"`
}

// ClusterHealthJob pings the replication and query services of every
// enabled worker. Any subset of services may be down; the job itself succeeds
// whenever every probe ran.
type ClusterHealthJob struct {
	Job
	TimeoutSec int

	mu     sync.Mutex
	Health map[string]WorkerHealth
}

func NewClusterHealthJob(timeoutSec int) *ClusterHealthJob {
	return &ClusterHealthJob{Job: newJob("CLUSTER_HEALTH"), TimeoutSec: timeoutSec, Health: make(map[string]WorkerHealth)}
}

func (j *ClusterHealthJob) Run(ctx context.Context, c *Controller) error {
	ctx = j.begin(ctx)

	c.eachWorker(ctx, &j.Job, c.enabledWorkers(), j.TimeoutSec, func(ctx context.Context, w *config.Worker) error {
		var h WorkerHealth
		if addr, err := c.workerAddr(w.Name); err == nil {
			h.Replication = c.client.Ping(ctx, addr, "replication") == nil
		}
		if addr, err := c.qservAddr(w.Name); err == nil {
			h.Qserv = c.client.Ping(ctx, addr, "qserv") == nil
		}
		j.mu.Lock()
		j.Health[w.Name] = h
		j.mu.Unlock()
		return nil
	})

	j.end(JobSuccess)
	return nil
}

// QservSyncJob pushes the catalog's good chunk lists to every worker of a
// family, so the workers' served chunk sets match the replica index. It
// records the previous and new chunk set per worker.
type QservSyncJob struct {
	Job
	FamilyName string
	TimeoutSec int
	Force      bool

	mu   sync.Mutex
	Prev map[string][]int
	New  map[string][]int
}

func NewQservSyncJob(family string, timeoutSec int, force bool) *QservSyncJob {
	return &QservSyncJob{
		Job:        newJob("QSERV_SYNC"),
		FamilyName: family,
		TimeoutSec: timeoutSec,
		Force:      force,
		Prev:       make(map[string][]int),
		New:        make(map[string][]int),
	}
}

func (j *QservSyncJob) Run(ctx context.Context, c *Controller) error {
	if _, err := c.cfg.Family(j.FamilyName); err != nil {
		return err
	}
	ctx = j.begin(ctx)
	c.record(ctx, j.Type, j.FamilyName, "BEGIN", nil)

	// database -> worker -> good chunks, from the placement index
	perWorker := make(map[string]map[string][]int)
	for _, d := range c.cfg.Databases() {
		if d.Family != j.FamilyName {
			continue
		}
		for worker, chunks := range c.replicas.GoodChunks(d.Name) {
			if perWorker[worker] == nil {
				perWorker[worker] = make(map[string][]int)
			}
			perWorker[worker][d.Name] = chunks
		}
	}

	c.eachWorker(ctx, &j.Job, c.enabledWorkers(), j.TimeoutSec, func(ctx context.Context, w *config.Worker) error {
		addr, err := c.qservAddr(w.Name)
		if err != nil {
			return err
		}
		chunks := perWorker[w.Name]
		if chunks == nil {
			chunks = make(map[string][]int)
		}

		resp, err := c.client.SetReplicas(ctx, addr, &wire.SetReplicasRequest{Chunks: chunks, Force: j.Force})
		if err != nil {
			return err
		}

		var prev, next []int
		for _, r := range resp.Replicas {
			prev = append(prev, r.Chunk)
		}
		for _, dbChunks := range chunks {
			next = append(next, dbChunks...)
		}
		j.mu.Lock()
		j.Prev[w.Name] = prev
		j.New[w.Name] = next
		j.mu.Unlock()
		return nil
	})

	result := j.allFinishedOK()
	j.end(result)
	c.record(ctx, j.Type, j.FamilyName, string(result), nil)
	if result != JobSuccess {
		return ErrJob.New(j.ID, "replica sync of family "+j.FamilyName+" was not acknowledged by all workers")
	}
	return nil
}

// DirectorIndexJob builds (or rebuilds) the director index of one
// director table: it creates <db>.<table>__idx locally and fills it with
// (key, chunkId, subChunkId) rows extracted from every chunk replica.
// UniquePrimaryKey must be decided by the caller; with a unique key,
// repeated inserts of a chunk's rows are idempotent no-ops.
type DirectorIndexJob struct {
	Job
	Database         string
	DirectorTable    string
	Rebuild          bool
	UniquePrimaryKey bool
	TimeoutSec       int

	mu sync.Mutex
	// Errors maps worker -> chunk -> failure.
	Errors map[string]map[int]string
}

func NewDirectorIndexJob(database, directorTable string, rebuild, uniquePrimaryKey bool, timeoutSec int) *DirectorIndexJob {
	return &DirectorIndexJob{
		Job:              newJob("DIRECTOR_INDEX"),
		Database:         database,
		DirectorTable:    directorTable,
		Rebuild:          rebuild,
		UniquePrimaryKey: uniquePrimaryKey,
		TimeoutSec:       timeoutSec,
		Errors:           make(map[string]map[int]string),
	}
}

// IndexTableName is the qualified director index table.
func (j *DirectorIndexJob) IndexTableName() string {
	return j.Database + "." + j.DirectorTable + "__idx"
}

func (j *DirectorIndexJob) Run(ctx context.Context, c *Controller, localDb SQLExec) error {
	d, err := c.cfg.Database(j.Database)
	if err != nil {
		return err
	}
	if d.DirectorTable != j.DirectorTable {
		return config.ErrNotFound.New("director table", j.Database+"."+j.DirectorTable)
	}

	ctx = j.begin(ctx)
	c.record(ctx, j.Type, j.IndexTableName(), "BEGIN", nil)

	if err := j.createIndexTable(ctx, d, localDb); err != nil {
		j.end(JobFailure)
		c.record(ctx, j.Type, j.IndexTableName(), "FAILURE", map[string]string{"error": err.Error()})
		return err
	}

	// one extraction request per chunk, to one worker holding it
	type chunkSource struct {
		chunk  int
		worker string
	}
	var sources []chunkSource
	for _, chunk := range c.replicas.Chunks(j.Database) {
		workers := c.replicas.WorkersFor(j.Database, chunk)
		if len(workers) == 0 {
			continue
		}
		sources = append(sources, chunkSource{chunk: chunk, worker: workers[0]})
	}

	for _, src := range sources {
		req := NewRequest(src.worker, 0, j.TimeoutSec)
		j.track(req)
		src := src
		req.Run(ctx, func(ctx context.Context) error {
			err := j.loadChunk(ctx, c, localDb, src.worker, src.chunk)
			if err != nil {
				j.mu.Lock()
				if j.Errors[src.worker] == nil {
					j.Errors[src.worker] = make(map[int]string)
				}
				j.Errors[src.worker][src.chunk] = err.Error()
				j.mu.Unlock()
			}
			return err
		})
	}

	result := j.allFinishedOK()
	j.end(result)
	c.record(ctx, j.Type, j.IndexTableName(), string(result), nil)
	if result != JobSuccess {
		return ErrJob.New(j.ID, "director index build of "+j.IndexTableName()+" failed; rebuild required")
	}
	return nil
}

func (j *DirectorIndexJob) createIndexTable(ctx context.Context, d *config.Database, localDb SQLExec) error {
	if j.Rebuild {
		if _, err := localDb.ExecContext(ctx, "DROP TABLE IF EXISTS "+j.IndexTableName()); err != nil {
			return err
		}
	}

	keyCol := d.DirectorTableKey
	keyType := "BIGINT"
	for _, col := range d.Columns[d.DirectorTable] {
		if col.Name == keyCol && col.Type != "" {
			keyType = col.Type
		}
	}

	keySpec := fmt.Sprintf("KEY (`%s`)", keyCol)
	if j.UniquePrimaryKey {
		keySpec = fmt.Sprintf("UNIQUE KEY (`%s`)", keyCol)
	}
	stmt := fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (`%s` %s NOT NULL, chunkId INT, subChunkId INT, %s)",
		j.IndexTableName(), keyCol, keyType, keySpec)
	_, err := localDb.ExecContext(ctx, stmt)
	return err
}

func (j *DirectorIndexJob) loadChunk(ctx context.Context, c *Controller, localDb SQLExec, worker string, chunk int) error {
	addr, err := c.workerAddr(worker)
	if err != nil {
		return err
	}
	resp, err := c.client.DirectorIndexData(ctx, addr, &wire.DirectorIndexRequest{
		Database:      j.Database,
		DirectorTable: j.DirectorTable,
		Chunk:         chunk,
	})
	if err != nil {
		return err
	}
	if len(resp.Rows) == 0 {
		return nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "INSERT IGNORE INTO %s VALUES ", j.IndexTableName())
	args := make([]interface{}, 0, 3*len(resp.Rows))
	for i, row := range resp.Rows {
		if len(row) != 3 {
			return fmt.Errorf("malformed index row for chunk %d", chunk)
		}
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("(?,?,?)")
		args = append(args, row[0], row[1], row[2])
	}
	_, err = localDb.ExecContext(ctx, sb.String(), args...)
	return err
}

// ReplicationJob brings every chunk of a family up to the family's
// replication level: under-replicated chunks gain replicas on workers not
// yet holding them, over-replicated chunks lose their extras. Worker RPCs
// retry with exponential backoff.
type ReplicationJob struct {
	Job
	FamilyName string
	TimeoutSec int
	MaxRetries uint64

	mu      sync.Mutex
	Added   map[string][]int
	Removed map[string][]int
}

func NewReplicationJob(family string, timeoutSec int) *ReplicationJob {
	return &ReplicationJob{
		Job:        newJob("REPLICATION"),
		FamilyName: family,
		TimeoutSec: timeoutSec,
		MaxRetries: 3,
		Added:      make(map[string][]int),
		Removed:    make(map[string][]int),
	}
}

func (j *ReplicationJob) Run(ctx context.Context, c *Controller) error {
	family, err := c.cfg.Family(j.FamilyName)
	if err != nil {
		return err
	}
	ctx = j.begin(ctx)
	c.record(ctx, j.Type, j.FamilyName, "BEGIN", nil)

	workers := c.enabledWorkers()
	failed := false

	for _, d := range c.cfg.Databases() {
		if d.Family != j.FamilyName {
			continue
		}
		for _, chunk := range c.replicas.Chunks(d.Name) {
			holders := c.replicas.WorkersFor(d.Name, chunk)
			level := len(holders)

			switch {
			case level < family.ReplicationLevel:
				for _, w := range workers {
					if level >= family.ReplicationLevel {
						break
					}
					if containsStr(holders, w.Name) || w.IsReadOnly {
						continue
					}
					if err := j.addReplica(ctx, c, w.Name, d.Name, chunk); err != nil {
						log.WithFields(log.Fields{"worker": w.Name, "db": d.Name, "chunk": chunk}).
							WithError(err).Warn("replica creation failed")
						failed = true
						continue
					}
					level++
				}
			case level > family.ReplicationLevel:
				for _, w := range holders[family.ReplicationLevel:] {
					if err := j.removeReplica(ctx, c, w, d.Name, chunk); err != nil {
						log.WithFields(log.Fields{"worker": w, "db": d.Name, "chunk": chunk}).
							WithError(err).Warn("replica removal failed")
						failed = true
					}
				}
			}
		}
	}

	result := JobSuccess
	if failed {
		result = JobFailure
	}
	j.end(result)
	c.record(ctx, j.Type, j.FamilyName, string(result), nil)
	if failed {
		return ErrJob.New(j.ID, "family "+j.FamilyName+" did not reach its replication level")
	}
	return nil
}

func (j *ReplicationJob) addReplica(ctx context.Context, c *Controller, worker, database string, chunk int) error {
	req := NewRequest(worker, 0, j.TimeoutSec)
	j.track(req)
	req.Run(ctx, func(ctx context.Context) error {
		addr, err := c.workerAddr(worker)
		if err != nil {
			return err
		}
		op := func() error {
			_, err := c.client.AddReplica(ctx, addr, &wire.AddReplicaRequest{Database: database, Chunks: []int{chunk}})
			return err
		}
		return backoff.Retry(op, backoff.WithContext(
			backoff.WithMaxRetries(backoff.NewExponentialBackOff(), j.MaxRetries), ctx))
	})
	if req.State() != RequestFinished {
		return req.Err()
	}

	c.replicas.Set(Replica{Worker: worker, Database: database, Chunk: chunk, Status: wire.ReplicaComplete})
	j.mu.Lock()
	j.Added[worker] = append(j.Added[worker], chunk)
	j.mu.Unlock()
	return nil
}

func (j *ReplicationJob) removeReplica(ctx context.Context, c *Controller, worker, database string, chunk int) error {
	req := NewRequest(worker, 0, j.TimeoutSec)
	j.track(req)
	req.Run(ctx, func(ctx context.Context) error {
		addr, err := c.workerAddr(worker)
		if err != nil {
			return err
		}
		op := func() error {
			_, err := c.client.RemoveReplica(ctx, addr, &wire.RemoveReplicaRequest{Database: database, Chunks: []int{chunk}})
			return err
		}
		return backoff.Retry(op, backoff.WithContext(
			backoff.WithMaxRetries(backoff.NewExponentialBackOff(), j.MaxRetries), ctx))
	})
	if req.State() != RequestFinished {
		return req.Err()
	}

	c.replicas.Remove(worker, database, chunk)
	j.mu.Lock()
	j.Removed[worker] = append(j.Removed[worker], chunk)
	j.mu.Unlock()
	return nil
}

// SqlJob executes one SQL statement on one worker's database service.
// The response's extended status carries the MySQL errno of a failed
// statement.
type SqlJob struct {
	Job
	WorkerName string
	Query      string
	User       string
	Password   string
	MaxRows    uint64
	TimeoutSec int

	Response *wire.SqlResponse
}

func NewSqlJob(worker, query, user, password string, maxRows uint64, timeoutSec int) *SqlJob {
	return &SqlJob{
		Job:        newJob("SQL"),
		WorkerName: worker,
		Query:      query,
		User:       user,
		Password:   password,
		MaxRows:    maxRows,
		TimeoutSec: timeoutSec,
	}
}

func (j *SqlJob) Run(ctx context.Context, c *Controller) error {
	ctx = j.begin(ctx)

	req := NewRequest(j.WorkerName, 0, j.TimeoutSec)
	j.track(req)
	req.Run(ctx, func(ctx context.Context) error {
		addr, err := c.workerAddr(j.WorkerName)
		if err != nil {
			return err
		}
		resp, err := c.client.RunSql(ctx, addr, &wire.SqlRequest{
			Query:    j.Query,
			User:     j.User,
			Password: j.Password,
			MaxRows:  j.MaxRows,
		})
		if err != nil {
			return err
		}
		j.Response = resp
		return nil
	})

	result := j.allFinishedOK()
	j.end(result)
	if result != JobSuccess {
		return ErrJob.New(j.ID, "sql execution on "+j.WorkerName+" failed")
	}
	if j.Response != nil && j.Response.ExtendedStatus != 0 {
		return ErrJob.New(j.ID, fmt.Sprintf("sql execution on %s failed with mysql errno %d",
			j.WorkerName, j.Response.ExtendedStatus))
	}
	return nil
}

func containsStr(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
