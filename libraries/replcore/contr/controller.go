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
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/parsecdb/parsec/libraries/czarcore/wire"
	"github.com/parsecdb/parsec/libraries/replcore/config"
	"github.com/parsecdb/parsec/libraries/replcore/events"
)

// WorkerClient is the worker RPC surface the control plane uses;
// satisfied by wire.Client.
type WorkerClient interface {
	ServiceCmd(ctx context.Context, w wire.WorkerAddr, op wire.ServiceOp) (*wire.ServiceResponse, error)
	Ping(ctx context.Context, w wire.WorkerAddr, service string) error
	GetReplicas(ctx context.Context, w wire.WorkerAddr, req *wire.GetReplicasRequest) (*wire.ReplicaResponse, error)
	SetReplicas(ctx context.Context, w wire.WorkerAddr, req *wire.SetReplicasRequest) (*wire.ReplicaResponse, error)
	AddReplica(ctx context.Context, w wire.WorkerAddr, req *wire.AddReplicaRequest) (*wire.ReplicaResponse, error)
	RemoveReplica(ctx context.Context, w wire.WorkerAddr, req *wire.RemoveReplicaRequest) (*wire.ReplicaResponse, error)
	RunSql(ctx context.Context, w wire.WorkerAddr, req *wire.SqlRequest) (*wire.SqlResponse, error)
	DirectorIndexData(ctx context.Context, w wire.WorkerAddr, req *wire.DirectorIndexRequest) (*wire.DirectorIndexResponse, error)
}

// Controller owns the control-plane state of one replication controller
// process: the configuration, the replica placement index and the event
// log every job reports into.
type Controller struct {
	ID string

	cfg      *config.Configuration
	client   WorkerClient
	eventLog events.Log
	replicas *ReplicaIndex
}

func NewController(cfg *config.Configuration, client WorkerClient, eventLog events.Log) *Controller {
	return &Controller{
		ID:       uuid.NewString(),
		cfg:      cfg,
		client:   client,
		eventLog: eventLog,
		replicas: NewReplicaIndex(),
	}
}

// Config exposes the configuration service.
func (c *Controller) Config() *config.Configuration { return c.cfg }

// Replicas exposes the placement index.
func (c *Controller) Replicas() *ReplicaIndex { return c.replicas }

// workerAddr resolves the replication service endpoint of a worker.
func (c *Controller) workerAddr(name string) (wire.WorkerAddr, error) {
	w, err := c.cfg.Worker(name)
	if err != nil {
		return wire.WorkerAddr{}, err
	}
	return wire.WorkerAddr{Name: w.Name, Host: w.Svc.Host, Port: w.Svc.Port}, nil
}

// qservAddr resolves the query service endpoint of a worker.
func (c *Controller) qservAddr(name string) (wire.WorkerAddr, error) {
	w, err := c.cfg.Worker(name)
	if err != nil {
		return wire.WorkerAddr{}, err
	}
	return wire.WorkerAddr{Name: w.Name, Host: w.Fs.Host, Port: w.Fs.Port}, nil
}

// enabledWorkers lists workers eligible for new work.
func (c *Controller) enabledWorkers() []*config.Worker {
	var out []*config.Worker
	for _, w := range c.cfg.Workers() {
		if w.IsEnabled {
			out = append(out, w)
		}
	}
	return out
}

// record appends one event to the controller log.
func (c *Controller) record(ctx context.Context, task, operation, status string, data map[string]string) {
	err := c.eventLog.Record(ctx, events.Event{
		ControllerID:    c.ID,
		Timestamp:       time.Now(),
		Task:            task,
		Operation:       operation,
		OperationStatus: status,
		Data:            data,
	})
	if err != nil {
		log.WithError(err).Warn("event log append failed")
	}
}

// eachWorker runs one request per worker concurrently, tracking each on
// the job. fn runs under the request deadline.
func (c *Controller) eachWorker(ctx context.Context, job *Job, workers []*config.Worker,
	timeoutSec int, fn func(ctx context.Context, w *config.Worker) error) {

	var wg sync.WaitGroup
	for _, w := range workers {
		req := NewRequest(w.Name, 0, timeoutSec)
		job.track(req)

		wg.Add(1)
		go func(w *config.Worker, req *Request) {
			defer wg.Done()
			req.Run(ctx, func(ctx context.Context) error {
				return fn(ctx, w)
			})
		}(w, req)
	}
	wg.Wait()
}

// SyncInventory refreshes the replica index from one worker's reported
// inventory.
func (c *Controller) SyncInventory(ctx context.Context, workerName string) error {
	addr, err := c.workerAddr(workerName)
	if err != nil {
		return err
	}

	var databases []string
	for _, d := range c.cfg.Databases() {
		databases = append(databases, d.Name)
	}

	resp, err := c.client.GetReplicas(ctx, addr, &wire.GetReplicasRequest{Databases: databases})
	if err != nil {
		return err
	}

	c.replicas.ResetWorker(workerName)
	for _, info := range resp.Replicas {
		c.replicas.Set(Replica{
			Worker:     workerName,
			Database:   info.Database,
			Chunk:      info.Chunk,
			Status:     info.Status,
			VerifyTime: time.Unix(info.VerifyTime, 0),
			Files:      info.Files,
		})
	}
	return nil
}
