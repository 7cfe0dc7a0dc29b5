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

// Package wire defines the request and response envelopes exchanged with
// workers over HTTP/JSON. Every response repeats the id of the request it
// answers.
package wire

// ServiceOp is a worker service-management operation.
type ServiceOp string

const (
	ServiceStatus   ServiceOp = "STATUS"
	ServiceSuspend  ServiceOp = "SUSPEND"
	ServiceResume   ServiceOp = "RESUME"
	ServiceRequests ServiceOp = "REQUESTS"
	ServiceDrain    ServiceOp = "DRAIN"
)

// ServiceRequest asks a worker to report or change its service state.
type ServiceRequest struct {
	ID   uint64    `json:"id"`
	Type ServiceOp `json:"type"`
}

// ServiceState is the queue detail a worker reports.
type ServiceState struct {
	StartTime   int64    `json:"start_time"`
	State       string   `json:"state"`
	NewRequests []uint64 `json:"new_requests"`
	InProgress  []uint64 `json:"in_progress"`
	Finished    []uint64 `json:"finished"`
}

// ServiceResponse answers a ServiceRequest.
type ServiceResponse struct {
	ID      uint64       `json:"id"`
	State   string       `json:"state"`
	Service ServiceState `json:"service"`
}

// SqlRequest runs a SQL statement on a worker's database service.
type SqlRequest struct {
	ID       uint64 `json:"id"`
	Query    string `json:"query"`
	User     string `json:"user"`
	Password string `json:"password"`
	MaxRows  uint64 `json:"max_rows"`
}

// SqlField describes one column of a worker SQL result set, mirroring the
// MySQL protocol field packet.
type SqlField struct {
	Name      string `json:"name"`
	OrgName   string `json:"org_name"`
	Table     string `json:"table"`
	OrgTable  string `json:"org_table"`
	Db        string `json:"db"`
	Catalog   string `json:"catalog"`
	Def       string `json:"def"`
	Length    uint32 `json:"length"`
	MaxLength uint32 `json:"max_length"`
	Flags     uint32 `json:"flags"`
	Decimals  uint32 `json:"decimals"`
	Type      int32  `json:"type"`
}

// SqlRow is one row; Nulls marks NULL cells.
type SqlRow struct {
	Cells []string `json:"cells"`
	Nulls []bool   `json:"nulls"`
}

// SqlResultSet is one result set of a worker SQL execution.
type SqlResultSet struct {
	Error       string     `json:"error"`
	CharSetName string     `json:"char_set_name"`
	HasResult   bool       `json:"has_result"`
	Fields      []SqlField `json:"fields"`
	Rows        []SqlRow   `json:"rows"`
}

// SqlResponse answers a SqlRequest. ExtendedStatus carries the MySQL errno
// when the statement failed, 0 otherwise.
type SqlResponse struct {
	ID             uint64         `json:"id"`
	ExtendedStatus int            `json:"extended_status"`
	Results        []SqlResultSet `json:"results"`
}

// ReplicaFileInfo describes one file of a chunk replica.
type ReplicaFileInfo struct {
	Name              string `json:"name"`
	Size              uint64 `json:"size"`
	Mtime             int64  `json:"mtime"`
	Cs                string `json:"cs"`
	BeginTransferTime int64  `json:"begin_transfer_time"`
	EndTransferTime   int64  `json:"end_transfer_time"`
	InSize            uint64 `json:"in_size"`
}

// Replica status values.
const (
	ReplicaNotFound   = "NOT_FOUND"
	ReplicaCorrupt    = "CORRUPT"
	ReplicaIncomplete = "INCOMPLETE"
	ReplicaComplete   = "COMPLETE"
)

// ReplicaInfo describes one chunk replica on one worker.
type ReplicaInfo struct {
	Status     string            `json:"status"`
	Worker     string            `json:"worker"`
	Database   string            `json:"database"`
	Chunk      int               `json:"chunk"`
	VerifyTime int64             `json:"verify_time"`
	Files      []ReplicaFileInfo `json:"file_info_many"`
}

// AddReplicaRequest materializes chunk replicas on a worker.
type AddReplicaRequest struct {
	ID       uint64 `json:"id"`
	Database string `json:"database"`
	Chunks   []int  `json:"chunks"`
}

// RemoveReplicaRequest drops chunk replicas from a worker.
type RemoveReplicaRequest struct {
	ID       uint64 `json:"id"`
	Database string `json:"database"`
	Chunks   []int  `json:"chunks"`
	Force    bool   `json:"force"`
}

// SetReplicasRequest replaces the set of chunks a worker serves for the
// databases of one family.
type SetReplicasRequest struct {
	ID     uint64         `json:"id"`
	Chunks map[string][]int `json:"chunks"` // database -> good chunks
	Force  bool           `json:"force"`
}

// GetReplicasRequest reads the chunk inventory of a worker.
type GetReplicasRequest struct {
	ID        uint64   `json:"id"`
	Databases []string `json:"databases"`
	InUseOnly bool     `json:"in_use_only"`
}

// ReplicaResponse answers the replica mutation and inventory requests.
type ReplicaResponse struct {
	ID       uint64        `json:"id"`
	Error    string        `json:"error"`
	Replicas []ReplicaInfo `json:"replicas"`
}

// ChunkFragment is one per-chunk job of an uber job: the queries to run
// against one chunk, with the sub-chunk ids to iterate when the statement
// addresses sub-chunks.
type ChunkFragment struct {
	JobID     uint64   `json:"job_id"`
	Attempt   int      `json:"attempt"`
	ChunkID   int      `json:"chunk_id"`
	SubChunks []int    `json:"sub_chunks"`
	Queries   []string `json:"queries"`
}

// ScanTable mirrors qana scan classification for worker scheduling.
type ScanTable struct {
	Db           string `json:"db"`
	Table        string `json:"table"`
	LockInMemory bool   `json:"lock_in_memory"`
	ScanRating   int    `json:"scan_rating"`
}

// UberJobRequest submits a batch of chunk fragments of one query to one
// worker.
type UberJobRequest struct {
	ID          uint64          `json:"id"`
	QueryID     uint64          `json:"query_id"`
	UberJobID   uint64          `json:"uber_job_id"`
	CzarID      uint64          `json:"czar_id"`
	MaxTableSiz uint64          `json:"max_table_size"`
	ScanInfo    []ScanTable     `json:"scan_info"`
	Interactive bool            `json:"interactive"`
	Fragments   []ChunkFragment `json:"fragments"`
}

// UberJobResponse acknowledges an uber-job submission.
type UberJobResponse struct {
	ID      uint64 `json:"id"`
	Status  string `json:"status"`
	Error   string `json:"error"`
}

// ResultFileReady is the worker's completion notice for one uber job,
// pointing at the result file to collect.
type ResultFileReady struct {
	QueryID   uint64 `json:"query_id"`
	UberJobID uint64 `json:"uber_job_id"`
	Worker    string `json:"worker"`
	FileURL   string `json:"file_url"`
	Rows      uint64 `json:"rows"`
	Bytes     uint64 `json:"bytes"`
	Error     string `json:"error"`
	Retryable bool   `json:"retryable"`
}

// CancelQueryRequest stops work for one query, or for a subset of its uber
// jobs when UberJobIDs is non-empty.
type CancelQueryRequest struct {
	ID         uint64   `json:"id"`
	QueryID    uint64   `json:"query_id"`
	UberJobIDs []uint64 `json:"uber_job_ids"`
}

// CancelAfterRestartRequest tells a worker to drop all work for queries
// with id at or below LastQueryID, issued by a restarted czar.
type CancelAfterRestartRequest struct {
	ID          uint64 `json:"id"`
	CzarID      uint64 `json:"czar_id"`
	LastQueryID uint64 `json:"last_query_id"`
}

// Ack is the generic acknowledgement envelope.
type Ack struct {
	ID    uint64 `json:"id"`
	Error string `json:"error"`
}

// DirectorIndexRequest extracts director-index rows (key, chunkId,
// subChunkId) for one chunk of a director table.
type DirectorIndexRequest struct {
	ID            uint64 `json:"id"`
	Database      string `json:"database"`
	DirectorTable string `json:"director_table"`
	Chunk         int    `json:"chunk"`
}

// DirectorIndexResponse carries the extracted index rows.
type DirectorIndexResponse struct {
	ID    uint64     `json:"id"`
	Error string     `json:"error"`
	Rows  [][]string `json:"rows"` // key, chunkId, subChunkId
}

// PingResponse answers health probes.
type PingResponse struct {
	ID      uint64 `json:"id"`
	Service string `json:"service"`
	Status  string `json:"status"`
}
