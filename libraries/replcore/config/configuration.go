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
	"sort"
	"strconv"
	"sync"
)

// Store persists configuration mutations. Mutations are applied to the
// backing store first; the service then reloads and publishes a fresh
// snapshot, so readers always see fully persisted state.
type Store interface {
	Load(ctx context.Context) (*Snapshot, error)

	SaveParam(ctx context.Context, category, name, value string) error

	UpsertWorker(ctx context.Context, w *Worker) error
	DeleteWorker(ctx context.Context, name string) error

	UpsertFamily(ctx context.Context, f *Family) error
	// DeleteFamily cascades to the family's databases and their replica
	// records.
	DeleteFamily(ctx context.Context, name string) error

	UpsertDatabase(ctx context.Context, d *Database) error
	DeleteDatabase(ctx context.Context, name string) error
}

// Configuration serves typed parameters and the cluster registry from an
// in-memory snapshot guarded by a single RW lock. Writers persist, then
// reload, then publish.
type Configuration struct {
	store Store

	mu   sync.RWMutex
	snap *Snapshot
}

// NewConfiguration loads the initial snapshot from the store.
func NewConfiguration(ctx context.Context, store Store) (*Configuration, error) {
	snap, err := store.Load(ctx)
	if err != nil {
		return nil, err
	}
	return &Configuration{store: store, snap: snap}, nil
}

// reload republishes the snapshot after a successful mutation.
func (c *Configuration) reload(ctx context.Context) error {
	snap, err := c.store.Load(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.snap = snap
	c.mu.Unlock()
	return nil
}

// GetString reads a parameter as text. Unset parameters fall back to the
// schema default.
func (c *Configuration) GetString(category, name string) (string, error) {
	def, ok := SchemaLookup(category, name)
	if !ok {
		return "", ErrNotFound.New("parameter", category+"."+name)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if val, ok := c.snap.Params[category+"."+name]; ok {
		return val, nil
	}
	return def.Default, nil
}

// GetInt reads an integer parameter.
func (c *Configuration) GetInt(category, name string) (int64, error) {
	str, err := c.GetString(category, name)
	if err != nil {
		return 0, err
	}
	if str == "" {
		return 0, nil
	}
	val, err := strconv.ParseInt(str, 10, 64)
	if err != nil {
		return 0, ErrConfig.New("parameter " + category + "." + name + " is not an integer: " + str)
	}
	return val, nil
}

// SetFromString validates and persists a parameter value, then publishes
// the new snapshot. Read-only parameters cannot be set; the store is not
// touched when validation fails.
func (c *Configuration) SetFromString(ctx context.Context, category, name, value string) error {
	def, ok := SchemaLookup(category, name)
	if !ok {
		return ErrNotFound.New("parameter", category+"."+name)
	}
	if def.ReadOnly {
		return ErrReadOnly.New(category, name)
	}
	if err := validate(def, value); err != nil {
		return err
	}

	if err := c.store.SaveParam(ctx, category, name, value); err != nil {
		return err
	}
	return c.reload(ctx)
}

func validate(def ParamDef, value string) error {
	var err error
	switch def.Type {
	case TypeInt:
		_, err = strconv.ParseInt(value, 10, 64)
	case TypeUint:
		_, err = strconv.ParseUint(value, 10, 64)
	case TypeFloat:
		_, err = strconv.ParseFloat(value, 64)
	case TypeBool:
		_, err = strconv.ParseBool(value)
	}
	if err != nil {
		return ErrConfig.New("bad value " + value + " for " + def.Category + "." + def.Name)
	}
	return nil
}

// ParamView is one dumped parameter with its schema metadata.
type ParamView struct {
	Category    string `json:"category"`
	Name        string `json:"parameter"`
	Value       string `json:"value"`
	Description string `json:"description"`
	ReadOnly    bool   `json:"read_only"`
	Security    bool   `json:"security"`
}

// Dump returns every schema parameter with its effective value. Security
// context values are masked unless showSecurity is set.
func (c *Configuration) Dump(showSecurity bool) []ParamView {
	c.mu.RLock()
	defer c.mu.RUnlock()

	views := make([]ParamView, 0, len(Schema))
	for _, def := range Schema {
		val, ok := c.snap.Params[def.Category+"."+def.Name]
		if !ok {
			val = def.Default
		}
		if def.Security && !showSecurity {
			val = "xxxxx"
		}
		views = append(views, ParamView{
			Category:    def.Category,
			Name:        def.Name,
			Value:       val,
			Description: def.Description,
			ReadOnly:    def.ReadOnly,
			Security:    def.Security,
		})
	}
	return views
}

// Workers lists the registered workers sorted by name.
func (c *Configuration) Workers() []*Worker {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*Worker, 0, len(c.snap.Workers))
	for _, w := range c.snap.Workers {
		cp := *w
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Worker retrieves one worker record.
func (c *Configuration) Worker(name string) (*Worker, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	w, ok := c.snap.Workers[name]
	if !ok {
		return nil, ErrNotFound.New("worker", name)
	}
	cp := *w
	return &cp, nil
}

// AddWorker registers a worker.
func (c *Configuration) AddWorker(ctx context.Context, w *Worker) error {
	if w.Name == "" {
		return ErrConfig.New("worker name is empty")
	}
	c.mu.RLock()
	_, exists := c.snap.Workers[w.Name]
	c.mu.RUnlock()
	if exists {
		return ErrConflict.New("worker " + w.Name + " already exists")
	}

	if err := c.store.UpsertWorker(ctx, w); err != nil {
		return err
	}
	return c.reload(ctx)
}

// UpdateWorker applies a partial flag update; FlagUnchanged fields keep
// their value.
func (c *Configuration) UpdateWorker(ctx context.Context, name string, update WorkerUpdate) (*Worker, error) {
	w, err := c.Worker(name)
	if err != nil {
		return nil, err
	}

	switch update.IsEnabled {
	case FlagTrue:
		w.IsEnabled = true
	case FlagFalse:
		w.IsEnabled = false
	}
	switch update.IsReadOnly {
	case FlagTrue:
		w.IsReadOnly = true
	case FlagFalse:
		w.IsReadOnly = false
	}

	if err := c.store.UpsertWorker(ctx, w); err != nil {
		return nil, err
	}
	if err := c.reload(ctx); err != nil {
		return nil, err
	}
	return c.Worker(name)
}

// DeleteWorker unregisters a worker; its replica records go with it.
func (c *Configuration) DeleteWorker(ctx context.Context, name string) error {
	if _, err := c.Worker(name); err != nil {
		return err
	}
	if err := c.store.DeleteWorker(ctx, name); err != nil {
		return err
	}
	return c.reload(ctx)
}

// Families lists the registered database families sorted by name.
func (c *Configuration) Families() []*Family {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*Family, 0, len(c.snap.Families))
	for _, f := range c.snap.Families {
		cp := *f
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Family retrieves one family record.
func (c *Configuration) Family(name string) (*Family, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	f, ok := c.snap.Families[name]
	if !ok {
		return nil, ErrNotFound.New("family", name)
	}
	cp := *f
	return &cp, nil
}

// AddFamily registers a family after validating its invariants.
func (c *Configuration) AddFamily(ctx context.Context, f *Family) error {
	if err := f.Validate(); err != nil {
		return err
	}
	c.mu.RLock()
	_, exists := c.snap.Families[f.Name]
	c.mu.RUnlock()
	if exists {
		return ErrConflict.New("family " + f.Name + " already exists")
	}

	if err := c.store.UpsertFamily(ctx, f); err != nil {
		return err
	}
	return c.reload(ctx)
}

// DeleteFamily unregisters a family, cascading to its databases.
func (c *Configuration) DeleteFamily(ctx context.Context, name string) error {
	if _, err := c.Family(name); err != nil {
		return err
	}
	if err := c.store.DeleteFamily(ctx, name); err != nil {
		return err
	}
	return c.reload(ctx)
}

// Databases lists registered databases sorted by name.
func (c *Configuration) Databases() []*Database {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*Database, 0, len(c.snap.Databases))
	for _, d := range c.snap.Databases {
		cp := *d
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Database retrieves one database record.
func (c *Configuration) Database(name string) (*Database, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	d, ok := c.snap.Databases[name]
	if !ok {
		return nil, ErrNotFound.New("database", name)
	}
	cp := *d
	return &cp, nil
}

// AddDatabase registers a database under an existing family.
func (c *Configuration) AddDatabase(ctx context.Context, d *Database) error {
	if d.Name == "" {
		return ErrConfig.New("database name is empty")
	}
	if _, err := c.Family(d.Family); err != nil {
		return err
	}
	c.mu.RLock()
	_, exists := c.snap.Databases[d.Name]
	c.mu.RUnlock()
	if exists {
		return ErrConflict.New("database " + d.Name + " already exists")
	}

	// the director table must itself be registered as partitioned
	if d.DirectorTable != "" && !contains(d.PartitionedTables, d.DirectorTable) {
		return ErrConfig.New("director table " + d.DirectorTable + " of " + d.Name + " is not registered as partitioned")
	}

	if err := c.store.UpsertDatabase(ctx, d); err != nil {
		return err
	}
	return c.reload(ctx)
}

// SetDatabasePublished publishes or unpublishes a database.
func (c *Configuration) SetDatabasePublished(ctx context.Context, name string, published bool) (*Database, error) {
	d, err := c.Database(name)
	if err != nil {
		return nil, err
	}
	d.IsPublished = published

	if err := c.store.UpsertDatabase(ctx, d); err != nil {
		return nil, err
	}
	if err := c.reload(ctx); err != nil {
		return nil, err
	}
	return c.Database(name)
}

// DeleteDatabase unregisters a database and its tables.
func (c *Configuration) DeleteDatabase(ctx context.Context, name string) error {
	if _, err := c.Database(name); err != nil {
		return err
	}
	if err := c.store.DeleteDatabase(ctx, name); err != nil {
		return err
	}
	return c.reload(ctx)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
