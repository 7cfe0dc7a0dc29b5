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

// Package config is the replication system's configuration service: a
// typed, schema-declared parameter store plus the registry of workers,
// database families and databases, persisted in the replication database
// and served from an in-process snapshot.
package config

import (
	"gopkg.in/src-d/go-errors.v1"
)

var (
	// ErrConfig is a bad or missing configuration value.
	ErrConfig = errors.NewKind("config: %s")

	// ErrNotFound is an unknown parameter, worker, family or database.
	ErrNotFound = errors.NewKind("config: no such %s: %s")

	// ErrReadOnly is an attempt to set a read-only parameter.
	ErrReadOnly = errors.NewKind("config: parameter %s.%s is read-only")

	// ErrConflict is a mutation that would violate registry invariants.
	ErrConflict = errors.NewKind("config: %s")
)

// ParamType declares how a parameter value is validated.
type ParamType int

const (
	TypeString ParamType = iota
	TypeInt
	TypeUint
	TypeFloat
	TypeBool
)

// ParamDef is the schema entry of one configuration parameter.
type ParamDef struct {
	Category    string
	Name        string
	Type        ParamType
	Default     string
	Description string

	// ReadOnly parameters can never be set through the service.
	ReadOnly bool

	// Security marks values (passwords) that are masked in dumps unless
	// explicitly requested.
	Security bool
}

// Schema declares every known parameter. Unknown parameters cannot be set
// or read.
var Schema = []ParamDef{
	{Category: "common", Name: "instance_id", Type: TypeString, ReadOnly: true,
		Description: "unique identifier of this cluster installation"},
	{Category: "common", Name: "database_schema_version", Type: TypeInt, Default: "14", ReadOnly: true,
		Description: "schema version of the persistent store"},

	{Category: "controller", Name: "num_threads", Type: TypeInt, Default: "16",
		Description: "size of the controller request processing pool"},
	{Category: "controller", Name: "http_server_port", Type: TypeInt, Default: "25081",
		Description: "port of the HTTP control surface"},
	{Category: "controller", Name: "request_timeout_sec", Type: TypeInt, Default: "300",
		Description: "default timeout of worker-service requests"},
	{Category: "controller", Name: "job_timeout_sec", Type: TypeInt, Default: "600",
		Description: "default timeout of multi-request jobs"},
	{Category: "controller", Name: "worker_evict_timeout_sec", Type: TypeInt, Default: "180",
		Description: "probe failure window before a worker is evicted"},
	{Category: "controller", Name: "health_probe_interval_sec", Type: TypeInt, Default: "60",
		Description: "interval between worker health probes"},

	{Category: "database", Name: "host", Type: TypeString, Default: "localhost",
		Description: "replication database host"},
	{Category: "database", Name: "port", Type: TypeInt, Default: "3306",
		Description: "replication database port"},
	{Category: "database", Name: "user", Type: TypeString, Default: "qsreplica",
		Description: "replication database user"},
	{Category: "database", Name: "password", Type: TypeString, Security: true,
		Description: "replication database password"},

	{Category: "worker", Name: "svc_port", Type: TypeInt, Default: "25000",
		Description: "default worker replication service port"},
	{Category: "worker", Name: "fs_port", Type: TypeInt, Default: "25001",
		Description: "default worker file service port"},
	{Category: "worker", Name: "http_loader_port", Type: TypeInt, Default: "25004",
		Description: "default worker ingest service port"},

	{Category: "xrootd", Name: "request_timeout_sec", Type: TypeInt, Default: "180",
		Description: "timeout of data-channel requests"},
}

// SchemaLookup finds a parameter definition.
func SchemaLookup(category, name string) (ParamDef, bool) {
	for _, def := range Schema {
		if def.Category == category && def.Name == name {
			return def, true
		}
	}
	return ParamDef{}, false
}

// HostPort is one network endpoint of a worker service.
type HostPort struct {
	Host string `db:"host" json:"host"`
	Port int    `db:"port" json:"port"`
}

// Worker is the registry record of one worker node.
type Worker struct {
	Name       string `json:"name"`
	IsEnabled  bool   `json:"is_enabled"`
	IsReadOnly bool   `json:"is_read_only"`

	Svc        HostPort `json:"svc"`
	Fs         HostPort `json:"fs"`
	Db         HostPort `json:"db"`
	DbUser     string   `json:"db_user"`
	Loader     HostPort `json:"loader"`
	LoaderTmp  string   `json:"loader_tmp_dir"`
	Exporter   HostPort `json:"exporter"`
	ExportTmp  string   `json:"exporter_tmp_dir"`
	HttpLoader HostPort `json:"http_loader"`
	HttpTmp    string   `json:"http_loader_tmp_dir"`
	DataDir    string   `json:"data_dir"`
}

// Tri-state used by partial worker updates: -1 leaves a flag unchanged.
const (
	FlagUnchanged = -1
	FlagFalse     = 0
	FlagTrue      = 1
)

// WorkerUpdate is a partial mutation of a worker's control flags.
type WorkerUpdate struct {
	IsEnabled  int `json:"is-enabled"`
	IsReadOnly int `json:"is-read-only"`
}

// Family is a database family: databases sharing partitioning geometry and
// a replication level.
type Family struct {
	Name             string  `json:"name"`
	ReplicationLevel int     `json:"replication_level"`
	NumStripes       int     `json:"num_stripes"`
	NumSubStripes    int     `json:"num_sub_stripes"`
	Overlap          float64 `json:"overlap"`
}

// Validate enforces the strictly-positive family invariants.
func (f *Family) Validate() error {
	if f.Name == "" {
		return ErrConfig.New("family name is empty")
	}
	if f.ReplicationLevel <= 0 || f.NumStripes <= 0 || f.NumSubStripes <= 0 {
		return ErrConfig.New("family " + f.Name + " requires strictly positive replication level and striping")
	}
	if f.Overlap <= 0 {
		return ErrConfig.New("family " + f.Name + " requires a positive overlap")
	}
	return nil
}

// Column is one column of a registered table.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Database is the registry record of one database.
type Database struct {
	Name        string `json:"name"`
	Family      string `json:"family"`
	IsPublished bool   `json:"is_published"`

	PartitionedTables []string `json:"partitioned_tables"`
	RegularTables     []string `json:"regular_tables"`

	DirectorTable     string `json:"director_table"`
	DirectorTableKey  string `json:"director_table_key"`
	ChunkIdColName    string `json:"chunk_id_col_name"`
	SubChunkIdColName string `json:"sub_chunk_id_col_name"`

	Columns map[string][]Column `json:"columns"`
}

// HasTable reports whether a table is registered in the database.
func (d *Database) HasTable(table string) bool {
	for _, t := range d.PartitionedTables {
		if t == table {
			return true
		}
	}
	for _, t := range d.RegularTables {
		if t == table {
			return true
		}
	}
	return false
}

// Snapshot is one immutable view of the whole configuration.
type Snapshot struct {
	Params    map[string]string // "category.name" -> value
	Workers   map[string]*Worker
	Families  map[string]*Family
	Databases map[string]*Database
}

// NewSnapshot creates an empty snapshot with schema defaults applied.
func NewSnapshot() *Snapshot {
	s := &Snapshot{
		Params:    make(map[string]string),
		Workers:   make(map[string]*Worker),
		Families:  make(map[string]*Family),
		Databases: make(map[string]*Database),
	}
	for _, def := range Schema {
		if def.Default != "" {
			s.Params[def.Category+"."+def.Name] = def.Default
		}
	}
	return s
}
