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
	"sync"
	"time"

	"github.com/google/btree"

	"github.com/parsecdb/parsec/libraries/czarcore/wire"
)

// Replica is the control plane's view of one chunk replica on one worker.
type Replica struct {
	Worker     string
	Database   string
	Chunk      int
	Status     string // wire.ReplicaComplete etc.
	VerifyTime time.Time
	Files      []wire.ReplicaFileInfo
}

// replicaKey orders the index by (database, chunk, worker).
type replicaKey struct {
	database string
	chunk    int
	worker   string
}

func replicaLess(a, b replicaKey) bool {
	if a.database != b.database {
		return a.database < b.database
	}
	if a.chunk != b.chunk {
		return a.chunk < b.chunk
	}
	return a.worker < b.worker
}

// ReplicaIndex is the in-memory chunk placement index the dispatcher and
// the sync/replication jobs read. It is rebuilt from worker inventories.
type ReplicaIndex struct {
	mu   sync.RWMutex
	tree *btree.BTreeG[replicaKey]
	info map[replicaKey]*Replica
}

func NewReplicaIndex() *ReplicaIndex {
	return &ReplicaIndex{
		tree: btree.NewG[replicaKey](16, replicaLess),
		info: make(map[replicaKey]*Replica),
	}
}

// Set records one replica, replacing any previous record of the same
// (worker, database, chunk).
func (ri *ReplicaIndex) Set(r Replica) {
	key := replicaKey{database: r.Database, chunk: r.Chunk, worker: r.Worker}
	ri.mu.Lock()
	defer ri.mu.Unlock()
	ri.tree.ReplaceOrInsert(key)
	cp := r
	ri.info[key] = &cp
}

// Remove drops one replica record.
func (ri *ReplicaIndex) Remove(worker, database string, chunk int) {
	key := replicaKey{database: database, chunk: chunk, worker: worker}
	ri.mu.Lock()
	defer ri.mu.Unlock()
	ri.tree.Delete(key)
	delete(ri.info, key)
}

// ResetWorker drops every record of one worker, e.g. before reloading its
// inventory or after its removal from the registry.
func (ri *ReplicaIndex) ResetWorker(worker string) {
	ri.mu.Lock()
	defer ri.mu.Unlock()

	var doomed []replicaKey
	ri.tree.Ascend(func(key replicaKey) bool {
		if key.worker == worker {
			doomed = append(doomed, key)
		}
		return true
	})
	for _, key := range doomed {
		ri.tree.Delete(key)
		delete(ri.info, key)
	}
}

// WorkersFor lists the workers holding a COMPLETE replica of a chunk, in
// name order.
func (ri *ReplicaIndex) WorkersFor(database string, chunk int) []string {
	ri.mu.RLock()
	defer ri.mu.RUnlock()

	var workers []string
	ri.tree.AscendGreaterOrEqual(replicaKey{database: database, chunk: chunk}, func(key replicaKey) bool {
		if key.database != database || key.chunk != chunk {
			return false
		}
		if r := ri.info[key]; r != nil && r.Status == wire.ReplicaComplete {
			workers = append(workers, key.worker)
		}
		return true
	})
	return workers
}

// Chunks lists the distinct chunks of a database with at least one
// COMPLETE replica, ascending.
func (ri *ReplicaIndex) Chunks(database string) []int {
	ri.mu.RLock()
	defer ri.mu.RUnlock()

	var chunks []int
	last := -1
	ri.tree.AscendGreaterOrEqual(replicaKey{database: database, chunk: -1 << 31}, func(key replicaKey) bool {
		if key.database != database {
			return false
		}
		if r := ri.info[key]; r != nil && r.Status == wire.ReplicaComplete && key.chunk != last {
			chunks = append(chunks, key.chunk)
			last = key.chunk
		}
		return true
	})
	return chunks
}

// GoodChunks maps each worker to the COMPLETE chunks it holds for a
// database.
func (ri *ReplicaIndex) GoodChunks(database string) map[string][]int {
	ri.mu.RLock()
	defer ri.mu.RUnlock()

	out := make(map[string][]int)
	ri.tree.AscendGreaterOrEqual(replicaKey{database: database, chunk: -1 << 31}, func(key replicaKey) bool {
		if key.database != database {
			return false
		}
		if r := ri.info[key]; r != nil && r.Status == wire.ReplicaComplete {
			out[key.worker] = append(out[key.worker], key.chunk)
		}
		return true
	})
	return out
}

// Replicas snapshots every record of a database.
func (ri *ReplicaIndex) Replicas(database string) []Replica {
	ri.mu.RLock()
	defer ri.mu.RUnlock()

	var out []Replica
	ri.tree.AscendGreaterOrEqual(replicaKey{database: database, chunk: -1 << 31}, func(key replicaKey) bool {
		if key.database != database {
			return false
		}
		if r := ri.info[key]; r != nil {
			out = append(out, *r)
		}
		return true
	})
	return out
}
