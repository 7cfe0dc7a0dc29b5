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

package czar

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/parsecdb/parsec/libraries/czarcore/qana"
	"github.com/parsecdb/parsec/libraries/czarcore/qdisp"
	"github.com/parsecdb/parsec/libraries/czarcore/qmeta"
	"github.com/parsecdb/parsec/libraries/czarcore/qproc"
	"github.com/parsecdb/parsec/libraries/czarcore/query"
)

// Finalizer ingests collected results at query end; satisfied by
// rproc.InfileMerger.
type Finalizer interface {
	qdisp.Merger
	Finalize(ctx context.Context, plan qana.MergePlan) (uint64, error)
	CollectedBytes() uint64
	CollectedRows() uint64
	Discard(ctx context.Context) error
}

// UserQuery is the czar-side state of one submitted query.
type UserQuery struct {
	queryID qmeta.QueryID
	czarID  qmeta.CzarID

	sql   string
	stmt  *query.SelectStmt
	qctx  *qana.QueryContext
	specs []qproc.ChunkSpec

	resultDb     string
	resultTable  string // unqualified
	messageTable string // unqualified

	exec   *qdisp.Executive
	merger Finalizer
	msgs   *qmeta.MessageStore
	meta   qmeta.QMeta

	mu       sync.Mutex
	status   qmeta.QueryStatus
	joined   chan struct{}
	joinOnce sync.Once
	killOnce sync.Once
}

// QueryID returns the query's id.
func (uq *UserQuery) QueryID() qmeta.QueryID { return uq.queryID }

// Status returns the current lifecycle state.
func (uq *UserQuery) Status() qmeta.QueryStatus {
	uq.mu.Lock()
	defer uq.mu.Unlock()
	return uq.status
}

func (uq *UserQuery) setStatus(s qmeta.QueryStatus) {
	uq.mu.Lock()
	uq.status = s
	uq.mu.Unlock()
}

// Done reports whether the query reached a terminal state.
func (uq *UserQuery) Done() bool {
	return uq.Status() != qmeta.StatusExecuting
}

// MessageStore returns the query's in-memory message log.
func (uq *UserQuery) MessageStore() *qmeta.MessageStore { return uq.msgs }

// Submit begins dispatch. A query with LIMIT 0 or no chunks to visit
// completes immediately without contacting workers.
func (uq *UserQuery) Submit(ctx context.Context) {
	if uq.stmt.Limit == 0 || len(uq.specs) == 0 || uq.exec == nil {
		log.WithFields(log.Fields{"qid": uq.queryID}).Debug("query completes without dispatch")
		go uq.finalize(qmeta.StatusCompleted)
		return
	}

	uq.exec.Start(ctx)
	go func() {
		status := uq.exec.Join()
		uq.finalize(status)
	}()
}

// Join blocks until the query is finished, merged and recorded.
func (uq *UserQuery) Join() qmeta.QueryStatus {
	<-uq.joined
	return uq.Status()
}

// Kill cancels the query. Killing a finished query is a no-op.
func (uq *UserQuery) Kill(reason string) {
	if uq.Done() {
		return
	}
	uq.killOnce.Do(func() {
		log.WithFields(log.Fields{"qid": uq.queryID, "reason": reason}).Info("killing query")
		if uq.exec != nil {
			uq.exec.Squash(reason)
		}
	})
}

// Discard drops the query's transient resources. Catalog rows in the
// metadata database stay.
func (uq *UserQuery) Discard(ctx context.Context) error {
	if !uq.Done() {
		return fmt.Errorf("query %d is still executing", uq.queryID)
	}
	return uq.merger.Discard(ctx)
}

// ResultTableName returns the qualified result table.
func (uq *UserQuery) ResultTableName() string {
	return uq.resultDb + "." + uq.resultTable
}

// MessageTableName returns the qualified message table.
func (uq *UserQuery) MessageTableName() string {
	return uq.resultDb + "." + uq.messageTable
}

// ResultQuery renders the proxy-visible SELECT over the merged result
// table. ORDER BY and LIMIT are applied here because chunk fan-out does
// not preserve ordering.
func (uq *UserQuery) ResultQuery() string {
	var cols []string
	for _, name := range uq.qctx.ResultColumns {
		cols = append(cols, "`"+name+"`")
	}
	sel := "*"
	if len(cols) > 0 {
		sel = strings.Join(cols, ",")
	}

	result := "SELECT " + sel + " FROM " + uq.ResultTableName()

	if len(uq.stmt.OrderBy) > 0 {
		var terms []string
		for _, ot := range uq.stmt.OrderBy {
			term := "`" + ot.Expr.ResultName() + "`"
			if ot.Desc {
				term += " DESC"
			}
			terms = append(terms, term)
		}
		result += " ORDER BY " + strings.Join(terms, ",")
	}
	if uq.stmt.Limit != query.NoLimit {
		result += " LIMIT " + strconv.FormatInt(uq.stmt.Limit, 10)
	}
	return result
}

// finalize merges collected rows and persists final counts and messages.
// The message table is released by the submitter once Join returns.
func (uq *UserQuery) finalize(status qmeta.QueryStatus) {
	defer uq.joinOnce.Do(func() { close(uq.joined) })

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	finalRows := uint64(0)
	if status == qmeta.StatusCompleted {
		rows, err := uq.merger.Finalize(ctx, uq.qctx.Merge)
		if err != nil {
			log.WithFields(log.Fields{"qid": uq.queryID}).WithError(err).Error("result merge pass failed")
			uq.msgs.Add(uq.queryID, qmeta.SummaryChunkID, -5, qmeta.SeverityError,
				qmeta.SourceMultiError, err.Error())
			status = qmeta.StatusFailed
		} else {
			finalRows = rows
		}
	}

	uq.setStatus(status)

	counts := qmeta.QueryCounts{FinalRows: finalRows}
	if uq.exec != nil {
		counts.ChunkCount = uq.exec.TotalJobs()
	}
	counts.CollectedBytes = uq.merger.CollectedBytes()
	counts.CollectedRows = uq.merger.CollectedRows()

	if err := uq.meta.CompleteQuery(ctx, uq.queryID, status, counts); err != nil {
		log.WithFields(log.Fields{"qid": uq.queryID}).WithError(err).Error("recording query completion failed")
	}
	if err := uq.meta.EndProgress(ctx, uq.queryID); err != nil {
		log.WithFields(log.Fields{"qid": uq.queryID}).WithError(err).Warn("removing progress row failed")
	}
	if err := uq.meta.AddMessages(ctx, uq.queryID, uq.msgs.Messages()); err != nil {
		log.WithFields(log.Fields{"qid": uq.queryID}).WithError(err).Warn("persisting query messages failed")
	}
}
