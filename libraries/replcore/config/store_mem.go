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
	"sync"
)

// MemStore is an in-memory Store for tests and single-process setups.
type MemStore struct {
	mu   sync.Mutex
	snap *Snapshot
}

var _ Store = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{snap: NewSnapshot()}
}

func (s *MemStore) Load(ctx context.Context) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := NewSnapshot()
	for k, v := range s.snap.Params {
		out.Params[k] = v
	}
	for k, v := range s.snap.Workers {
		cp := *v
		out.Workers[k] = &cp
	}
	for k, v := range s.snap.Families {
		cp := *v
		out.Families[k] = &cp
	}
	for k, v := range s.snap.Databases {
		cp := *v
		out.Databases[k] = &cp
	}
	return out, nil
}

func (s *MemStore) SaveParam(ctx context.Context, category, name, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Params[category+"."+name] = value
	return nil
}

func (s *MemStore) UpsertWorker(ctx context.Context, w *Worker) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *w
	s.snap.Workers[w.Name] = &cp
	return nil
}

func (s *MemStore) DeleteWorker(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snap.Workers, name)
	return nil
}

func (s *MemStore) UpsertFamily(ctx context.Context, f *Family) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *f
	s.snap.Families[f.Name] = &cp
	return nil
}

func (s *MemStore) DeleteFamily(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snap.Families, name)
	for dbName, db := range s.snap.Databases {
		if db.Family == name {
			delete(s.snap.Databases, dbName)
		}
	}
	return nil
}

func (s *MemStore) UpsertDatabase(ctx context.Context, d *Database) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *d
	s.snap.Databases[d.Name] = &cp
	return nil
}

func (s *MemStore) DeleteDatabase(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snap.Databases, name)
	return nil
}
