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

// Package qmeta persists per-query metadata: the QInfo registry, czar
// identities, progress rows and the per-query message log. Queries get
// their identifiers here; ids are monotonic per czar and survive process
// restarts.
package qmeta

import (
	"context"
	"time"

	"gopkg.in/src-d/go-errors.v1"
)

// QueryID identifies one user query.
type QueryID = uint64

// CzarID identifies one czar in the metadata database.
type CzarID = uint64

// ErrQueryNotFound is returned for lookups of unknown query ids.
var ErrQueryNotFound = errors.NewKind("qmeta: no such query: %d")

// QueryStatus is the lifecycle state of a user query.
type QueryStatus string

const (
	StatusExecuting QueryStatus = "EXECUTING"
	StatusCompleted QueryStatus = "COMPLETED"
	StatusFailed    QueryStatus = "FAILED"
	StatusAborted   QueryStatus = "ABORTED"
)

// Severity classifies a query message.
type Severity string

const (
	SeverityInfo  Severity = "INFO"
	SeverityError Severity = "ERROR"
)

// Message sources used by the completion summary.
const (
	SourceComplete   = "COMPLETE"
	SourceCancel     = "CANCEL"
	SourceMultiError = "MULTIERROR"
	SourceWorker     = "WORKER"
	SourceMerge      = "MERGE"
)

// SummaryChunkID marks the per-query summary row in a message table.
const SummaryChunkID = -1

// QInfo is the persistent record of one user query.
type QInfo struct {
	QueryID        QueryID     `db:"queryId"`
	CzarID         CzarID      `db:"czarId"`
	Status         QueryStatus `db:"status"`
	Query          string      `db:"query"`
	ResultQuery    string      `db:"resultQuery"`
	MessageTable   string      `db:"messageTable"`
	Submitted      time.Time   `db:"submitted"`
	Completed      *time.Time  `db:"completed"`
	ChunkCount     int         `db:"chunkCount"`
	CollectedBytes uint64      `db:"collectedBytes"`
	CollectedRows  uint64      `db:"collectedRows"`
	FinalRows      uint64      `db:"finalRows"`
}

// QProgress is the transient progress record of a running query.
type QProgress struct {
	QueryID         QueryID    `db:"queryId"`
	TotalChunks     int        `db:"totalChunks"`
	CompletedChunks int        `db:"completedChunks"`
	QueryBegin      time.Time  `db:"queryBegin"`
	LastUpdate      *time.Time `db:"lastUpdate"`
}

// QueryCounts carries the final row/byte tallies written at completion.
type QueryCounts struct {
	ChunkCount     int
	CollectedBytes uint64
	CollectedRows  uint64
	FinalRows      uint64
}

// QMeta is the metadata store interface the czar runs against.
type QMeta interface {
	// RegisterCzar returns the persistent id of the named czar, creating a
	// record on first use.
	RegisterCzar(ctx context.Context, name string) (CzarID, error)

	// RegisterQuery creates a QInfo row in EXECUTING state and returns the
	// newly assigned query id.
	RegisterQuery(ctx context.Context, info *QInfo) (QueryID, error)

	// CompleteQuery moves a query to a terminal status with final counts.
	CompleteQuery(ctx context.Context, qid QueryID, status QueryStatus, counts QueryCounts) error

	// SetResultQuery records the proxy-visible SELECT for a query.
	SetResultQuery(ctx context.Context, qid QueryID, resultQuery string) error

	// SetMessageTable records the message table created for a query; the
	// name embeds the query id, which is only known after registration.
	SetMessageTable(ctx context.Context, qid QueryID, messageTable string) error

	// AddMessages appends messages to the persistent per-query log.
	AddMessages(ctx context.Context, qid QueryID, msgs []QueryMessage) error

	// UpdateProgress upserts the QProgress row of a running query.
	UpdateProgress(ctx context.Context, qid QueryID, totalChunks, completedChunks int) error

	// EndProgress removes the QProgress row once a query is finished.
	EndProgress(ctx context.Context, qid QueryID) error

	// GetQueryInfo retrieves the QInfo row of a query.
	GetQueryInfo(ctx context.Context, qid QueryID) (*QInfo, error)

	// GetQueryProgress retrieves the QProgress row, or nil when none
	// exists because the query already finished.
	GetQueryProgress(ctx context.Context, qid QueryID) (*QProgress, error)

	// LastQueryID returns the highest query id ever assigned, 0 when no
	// query was ever run. Used as the cancel high-watermark after a czar
	// restart.
	LastQueryID(ctx context.Context) (QueryID, error)
}
