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

// Package rproc merges per-chunk worker results into the query's result
// table on the local result database. Merging is single-writer per query
// and idempotent per contribution, so worker retries never double-insert.
package rproc

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"
	log "github.com/sirupsen/logrus"
	errkind "gopkg.in/src-d/go-errors.v1"

	"github.com/parsecdb/parsec/libraries/czarcore/qana"
	"github.com/parsecdb/parsec/libraries/czarcore/qdisp"
	"github.com/parsecdb/parsec/libraries/czarcore/wire"
)

// ErrSql wraps result-database failures.
var ErrSql = errkind.NewKind("result db: %s")

// ErrBadResultFile is a malformed worker result file.
var ErrBadResultFile = errkind.NewKind("bad result file: %s")

// SQLExec is the slice of a database handle the merger needs; satisfied by
// sqlx.DB.
type SQLExec interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

// FileFetcher retrieves worker result files; satisfied by wire.Client.
type FileFetcher interface {
	FetchResultFile(ctx context.Context, fileURL string, dst io.Writer) (int64, error)
}

// resultFile is the on-wire format of one uber-job result: the schema of
// the produced columns plus the row data.
type resultFile struct {
	Fields []wire.SqlField `json:"fields"`
	Rows   []wire.SqlRow   `json:"rows"`
}

// Config tunes one merger.
type Config struct {
	// ResultDb is the database holding result and message tables.
	ResultDb string

	// ResultLimitBytes caps the cumulative collected bytes of one query;
	// 0 means unlimited.
	ResultLimitBytes uint64
}

// InfileMerger ingests result files for one query.
type InfileMerger struct {
	db      SQLExec
	fetcher FileFetcher
	cfg     Config

	queryID uint64
	table   string // unqualified result table name

	mu             sync.Mutex
	tableCreated   bool
	merged         map[uint64]struct{}
	collectedBytes uint64
	collectedRows  uint64
	tooLarge       bool
}

var _ qdisp.Merger = (*InfileMerger)(nil)

// NewInfileMerger creates the merger for one query's result table.
func NewInfileMerger(db SQLExec, fetcher FileFetcher, cfg Config, queryID uint64, resultTable string) *InfileMerger {
	return &InfileMerger{
		db:      db,
		fetcher: fetcher,
		cfg:     cfg,
		queryID: queryID,
		table:   resultTable,
		merged:  make(map[uint64]struct{}),
	}
}

// CollectedBytes returns the bytes fetched and merged so far.
func (m *InfileMerger) CollectedBytes() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.collectedBytes
}

// CollectedRows returns the rows merged so far.
func (m *InfileMerger) CollectedRows() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.collectedRows
}

// MergeResultFile fetches one uber-job result and inserts its rows into
// the result table. A contribution already merged under the same
// fingerprint is discarded, which makes retries and duplicate deliveries
// no-ops.
func (m *InfileMerger) MergeResultFile(ctx context.Context, file *wire.ResultFileReady) (qdisp.MergeResult, error) {
	fp := contributionFingerprint(file)

	m.mu.Lock()
	if m.tooLarge {
		m.mu.Unlock()
		return qdisp.MergeResult{TooLarge: true}, nil
	}
	if _, dup := m.merged[fp]; dup {
		m.mu.Unlock()
		log.WithFields(log.Fields{"qid": m.queryID, "uberjob": file.UberJobID}).
			Debug("discarding superseded result contribution")
		return qdisp.MergeResult{}, nil
	}
	m.mu.Unlock()

	var buf bytes.Buffer
	n, err := m.fetcher.FetchResultFile(ctx, file.FileURL, &buf)
	if err != nil {
		return qdisp.MergeResult{}, err
	}

	var rf resultFile
	if err := json.Unmarshal(buf.Bytes(), &rf); err != nil {
		return qdisp.MergeResult{}, ErrBadResultFile.New(err.Error())
	}

	// the merge is single-writer per query from here on
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, dup := m.merged[fp]; dup {
		return qdisp.MergeResult{}, nil
	}
	if m.cfg.ResultLimitBytes > 0 && m.collectedBytes+uint64(n) > m.cfg.ResultLimitBytes {
		m.tooLarge = true
		log.WithFields(log.Fields{
			"qid":   m.queryID,
			"have":  humanize.Bytes(m.collectedBytes),
			"limit": humanize.Bytes(m.cfg.ResultLimitBytes),
		}).Warn("result size limit exceeded")
		return qdisp.MergeResult{TooLarge: true}, nil
	}

	if !m.tableCreated {
		if err := m.createTable(ctx, rf.Fields); err != nil {
			return qdisp.MergeResult{}, err
		}
		m.tableCreated = true
	}

	if len(rf.Rows) > 0 {
		if err := m.insertRows(ctx, &rf); err != nil {
			return qdisp.MergeResult{}, err
		}
	}

	m.merged[fp] = struct{}{}
	m.collectedBytes += uint64(n)
	m.collectedRows += uint64(len(rf.Rows))
	return qdisp.MergeResult{Rows: uint64(len(rf.Rows)), Bytes: uint64(n)}, nil
}

// Finalize runs the merge pass over the collected rows when the query
// aggregates, and returns the final row count of the result table.
func (m *InfileMerger) Finalize(ctx context.Context, plan qana.MergePlan) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.tableCreated {
		// no contribution arrived; an empty result table still has to exist
		if _, err := m.db.ExecContext(ctx,
			fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (dummy INT)", m.qualified())); err != nil {
			return 0, ErrSql.New(err.Error())
		}
		m.tableCreated = true
		return 0, nil
	}

	if plan.NeedsMerge {
		tmp := m.qualified() + "_m"
		stmt := fmt.Sprintf("CREATE TABLE %s AS SELECT %s FROM %s", tmp, plan.SelectList, m.qualified())
		if plan.GroupBy != "" {
			stmt += " GROUP BY " + plan.GroupBy
		}
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return 0, ErrSql.New(err.Error())
		}
		if _, err := m.db.ExecContext(ctx, fmt.Sprintf("DROP TABLE %s", m.qualified())); err != nil {
			return 0, ErrSql.New(err.Error())
		}
		if _, err := m.db.ExecContext(ctx,
			fmt.Sprintf("RENAME TABLE %s TO %s", tmp, m.qualified())); err != nil {
			return 0, ErrSql.New(err.Error())
		}
	}

	var rows uint64
	if err := m.db.GetContext(ctx, &rows,
		fmt.Sprintf("SELECT COUNT(*) FROM %s", m.qualified())); err != nil {
		return 0, ErrSql.New(err.Error())
	}
	return rows, nil
}

// Discard drops the result table of an abandoned query.
func (m *InfileMerger) Discard(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", m.qualified()))
	if err != nil {
		return ErrSql.New(err.Error())
	}
	return nil
}

func (m *InfileMerger) qualified() string {
	return m.cfg.ResultDb + "." + m.table
}

func (m *InfileMerger) createTable(ctx context.Context, fields []wire.SqlField) error {
	if len(fields) == 0 {
		return ErrBadResultFile.New("result schema has no fields")
	}
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = fmt.Sprintf("`%s` %s", f.Name, columnType(f))
	}
	stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", m.qualified(), strings.Join(cols, ","))
	if _, err := m.db.ExecContext(ctx, stmt); err != nil {
		return ErrSql.New(err.Error())
	}
	return nil
}

func (m *InfileMerger) insertRows(ctx context.Context, rf *resultFile) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "INSERT INTO %s VALUES ", m.qualified())

	args := make([]interface{}, 0, len(rf.Rows)*len(rf.Fields))
	ph := "(" + strings.TrimSuffix(strings.Repeat("?,", len(rf.Fields)), ",") + ")"
	for i, row := range rf.Rows {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(ph)
		for j := range rf.Fields {
			if j < len(row.Nulls) && row.Nulls[j] {
				args = append(args, nil)
			} else if j < len(row.Cells) {
				args = append(args, row.Cells[j])
			} else {
				args = append(args, nil)
			}
		}
	}

	if _, err := m.db.ExecContext(ctx, sb.String(), args...); err != nil {
		return ErrSql.New(err.Error())
	}
	return nil
}

// contributionFingerprint keys one merged contribution. A retried uber job
// gets a new id, so its contribution never collides with a superseded
// attempt's; results of superseded uber jobs are dropped by the Executive
// before they reach the merger.
func contributionFingerprint(file *wire.ResultFileReady) uint64 {
	return xxhash.Sum64String(fmt.Sprintf("%d:%d:%s", file.QueryID, file.UberJobID, file.Worker))
}

// MySQL protocol type codes the workers report, reduced to the storage
// types the result table needs.
func columnType(f wire.SqlField) string {
	switch f.Type {
	case 1, 2, 3, 8, 9, 13, 16:
		if f.Flags&0x20 != 0 { // UNSIGNED_FLAG
			return "BIGINT UNSIGNED"
		}
		return "BIGINT"
	case 4:
		return "FLOAT"
	case 5, 0, 246:
		return "DOUBLE"
	case 7, 10, 11, 12:
		return "DATETIME"
	default:
		return "BLOB"
	}
}
