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

	errkind "gopkg.in/src-d/go-errors.v1"

	"github.com/parsecdb/parsec/libraries/czarcore/wire"
	"github.com/parsecdb/parsec/libraries/replcore/config"
)

// ErrNoWorker is returned when no eligible worker holds a chunk.
var ErrNoWorker = errkind.NewKind("no eligible worker holds chunk %d of %s")

// Registry adapts the configuration and the replica index into the
// topology view the czar dispatches against.
type Registry struct {
	cfg      *config.Configuration
	replicas *ReplicaIndex
	health   *HealthMonitor // optional
}

func NewRegistry(cfg *config.Configuration, replicas *ReplicaIndex, health *HealthMonitor) *Registry {
	return &Registry{cfg: cfg, replicas: replicas, health: health}
}

// WorkerFor deterministically picks the responsible worker for a chunk:
// the first enabled, non-evicted holder of a COMPLETE replica, in name
// order, skipping excluded workers.
func (r *Registry) WorkerFor(database string, chunkID int, exclude map[string]bool) (wire.WorkerAddr, error) {
	for _, name := range r.replicas.WorkersFor(database, chunkID) {
		if exclude[name] {
			continue
		}
		if r.health != nil && r.health.IsEvicted(name) {
			continue
		}
		w, err := r.cfg.Worker(name)
		if err != nil || !w.IsEnabled {
			continue
		}
		return wire.WorkerAddr{Name: w.Name, Host: w.Fs.Host, Port: w.Fs.Port}, nil
	}
	return wire.WorkerAddr{}, ErrNoWorker.New(chunkID, database)
}

// Chunks lists the chunks of a database with at least one good replica.
func (r *Registry) Chunks(ctx context.Context, database string) ([]int, error) {
	if _, err := r.cfg.Database(database); err != nil {
		return nil, err
	}
	return r.replicas.Chunks(database), nil
}

// AllWorkers lists the query-service endpoints of all enabled workers.
func (r *Registry) AllWorkers(ctx context.Context) ([]wire.WorkerAddr, error) {
	var out []wire.WorkerAddr
	for _, w := range r.cfg.Workers() {
		if !w.IsEnabled {
			continue
		}
		out = append(out, wire.WorkerAddr{Name: w.Name, Host: w.Fs.Host, Port: w.Fs.Port})
	}
	return out, nil
}
