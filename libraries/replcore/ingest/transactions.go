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

// Package ingest tracks super-transactions: named, state-tracked units of
// ingest against one database. Transactions serialize their
// schema-altering begin phase through a per-database named mutex and
// carry an append-only contribution audit.
package ingest

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"gopkg.in/src-d/go-errors.v1"

	"github.com/parsecdb/parsec/libraries/replcore/config"
)

var (
	// ErrTransaction is a transaction lifecycle violation.
	ErrTransaction = errors.NewKind("transaction: %s")

	// ErrNoSuchTransaction is a lookup of an unknown transaction id.
	ErrNoSuchTransaction = errors.NewKind("transaction: no such transaction: %d")
)

// State is the lifecycle state of a super-transaction.
type State string

const (
	IsStarting   State = "IS_STARTING"
	Started      State = "STARTED"
	IsFinishing  State = "IS_FINISHING"
	IsAborting   State = "IS_ABORTING"
	Finished     State = "FINISHED"
	Aborted      State = "ABORTED"
	StartFailed  State = "START_FAILED"
	FinishFailed State = "FINISH_FAILED"
	AbortFailed  State = "ABORT_FAILED"
)

// IsTerminal reports whether no further transitions are possible.
func (s State) IsTerminal() bool {
	switch s {
	case Finished, Aborted, StartFailed, FinishFailed, AbortFailed:
		return true
	}
	return false
}

var validNext = map[State][]State{
	IsStarting:  {Started, StartFailed},
	Started:     {IsFinishing, IsAborting},
	IsFinishing: {Finished, FinishFailed, IsAborting},
	IsAborting:  {Aborted, AbortFailed},
}

func canTransition(from, to State) bool {
	for _, s := range validNext[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transaction is one super-transaction record.
type Transaction struct {
	ID       uint64                 `json:"id"`
	Database string                 `json:"database"`
	State    State                  `json:"state"`

	BeginTime      time.Time `json:"begin_time"`
	StartTime      time.Time `json:"start_time"`
	TransitionTime time.Time `json:"transition_time"`
	EndTime        time.Time `json:"end_time"`

	Context map[string]interface{} `json:"context,omitempty"`
}

// Contribution is one append-only audit record of data pushed into a
// transaction.
type Contribution struct {
	TransactionID  uint64 `json:"transaction_id"`
	WorkerName     string `json:"worker"`
	Table          string `json:"table"`
	Chunk          int    `json:"chunk"`
	ContributionID uint64 `json:"contribution_id"`
	NumRows        uint64 `json:"num_rows"`
	NumBytes       uint64 `json:"num_bytes"`
}

// NamedMutexRegistry hands out process-wide mutexes by name.
type NamedMutexRegistry struct {
	mu      sync.Mutex
	mutexes map[string]*sync.Mutex
}

func NewNamedMutexRegistry() *NamedMutexRegistry {
	return &NamedMutexRegistry{mutexes: make(map[string]*sync.Mutex)}
}

// Get returns the mutex registered under name, creating it on first use.
func (r *NamedMutexRegistry) Get(name string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.mutexes[name]
	if !ok {
		m = &sync.Mutex{}
		r.mutexes[name] = m
	}
	return m
}

// Registry manages the transactions of one controller.
type Registry struct {
	cfg     *config.Configuration
	mutexes *NamedMutexRegistry

	mu       sync.Mutex
	nextID   uint64
	byID     map[uint64]*Transaction
	contribs []Contribution
}

func NewRegistry(cfg *config.Configuration) *Registry {
	return &Registry{
		cfg:     cfg,
		mutexes: NewNamedMutexRegistry(),
		byID:    make(map[uint64]*Transaction),
	}
}

// Begin creates a transaction against a registered, unpublished database.
// The per-database named mutex "database:<db>" is held across the whole
// begin phase, so at most one transaction of a database is IS_STARTING at
// any moment. setup runs the worker-side preparation; a nil setup means
// there is nothing to prepare.
func (r *Registry) Begin(ctx context.Context, database string, setup func(ctx context.Context) error) (*Transaction, error) {
	d, err := r.cfg.Database(database)
	if err != nil {
		return nil, err
	}
	if d.IsPublished {
		return nil, ErrTransaction.New("database " + database + " is published; unpublish before ingesting")
	}

	lock := r.mutexes.Get("database:" + database)
	lock.Lock()
	defer lock.Unlock()

	r.mu.Lock()
	r.nextID++
	t := &Transaction{
		ID:        r.nextID,
		Database:  database,
		State:     IsStarting,
		BeginTime: time.Now(),
	}
	r.byID[t.ID] = t
	r.mu.Unlock()

	var setupErr error
	if setup != nil {
		setupErr = setup(ctx)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if setupErr != nil {
		t.State = StartFailed
		t.EndTime = time.Now()
		return nil, ErrTransaction.New("transaction setup failed: " + setupErr.Error())
	}
	t.State = Started
	t.StartTime = time.Now()
	cp := *t
	return &cp, nil
}

// Update moves a transaction to newState, enforcing the state machine.
// Requesting FINISHED or ABORTED from STARTED passes through the
// corresponding transitional state.
func (r *Registry) Update(ctx context.Context, id uint64, newState State) (*Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.byID[id]
	if !ok {
		return nil, ErrNoSuchTransaction.New(id)
	}

	// callers ask for the end state; route through the transitional one
	if t.State == Started {
		switch newState {
		case Finished, FinishFailed:
			t.State = IsFinishing
			t.TransitionTime = time.Now()
		case Aborted, AbortFailed:
			t.State = IsAborting
			t.TransitionTime = time.Now()
		}
	}

	if !canTransition(t.State, newState) {
		return nil, ErrTransaction.New(
			"illegal transition " + string(t.State) + " -> " + string(newState) +
				" for transaction " + strconv.FormatUint(id, 10))
	}

	t.State = newState
	t.TransitionTime = time.Now()
	if newState.IsTerminal() {
		t.EndTime = time.Now()
	}
	cp := *t
	return &cp, nil
}

// Transaction retrieves one transaction.
func (r *Registry) Transaction(id uint64) (*Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byID[id]
	if !ok {
		return nil, ErrNoSuchTransaction.New(id)
	}
	cp := *t
	return &cp, nil
}

// Transactions lists transactions, optionally restricted to one database,
// in id order.
func (r *Registry) Transactions(database string) []*Transaction {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*Transaction
	for _, t := range r.byID {
		if database != "" && t.Database != database {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// HasActive reports whether any transaction of a database is in a
// non-terminal state. An active transaction blocks un-publishing.
func (r *Registry) HasActive(database string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.byID {
		if t.Database == database && !t.State.IsTerminal() {
			return true
		}
	}
	return false
}

// AddContribution appends one audit record. Records are append-only and
// keyed by (transaction, worker, table, chunk, contribution).
func (r *Registry) AddContribution(c Contribution) error {
	if _, err := r.Transaction(c.TransactionID); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.contribs = append(r.contribs, c)
	return nil
}

// Contributions lists the audit records of one transaction in insertion
// order.
func (r *Registry) Contributions(transactionID uint64) []Contribution {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Contribution
	for _, c := range r.contribs {
		if c.TransactionID == transactionID {
			out = append(out, c)
		}
	}
	return out
}
