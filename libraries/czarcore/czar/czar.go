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

// Package czar implements the coordinator's user-query lifecycle: it
// parses and analyzes incoming SQL, creates the per-query result and
// message tables, dispatches per-chunk work through an Executive, and
// hands the proxy a SELECT over the merged result table.
package czar

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/parsecdb/parsec/libraries/czarcore/css"
	"github.com/parsecdb/parsec/libraries/czarcore/parse"
	"github.com/parsecdb/parsec/libraries/czarcore/qana"
	"github.com/parsecdb/parsec/libraries/czarcore/qdisp"
	"github.com/parsecdb/parsec/libraries/czarcore/qmeta"
	"github.com/parsecdb/parsec/libraries/czarcore/qproc"
	"github.com/parsecdb/parsec/libraries/czarcore/query"
	"github.com/parsecdb/parsec/libraries/czarcore/wire"
	"github.com/parsecdb/parsec/libraries/utils/config"
)

// Registry resolves cluster topology for dispatch: which workers exist and
// which chunks they hold. The replication control plane maintains it.
type Registry interface {
	qdisp.WorkerResolver
	qproc.ChunkInventory

	// AllWorkers lists every enabled worker.
	AllWorkers(ctx context.Context) ([]wire.WorkerAddr, error)
}

// Comms is the worker client surface the czar needs beyond dispatch.
type Comms interface {
	qdisp.WorkerComms
	CancelAfterRestart(ctx context.Context, w wire.WorkerAddr, czarID, lastQueryID uint64) error
}

// MergerFactory builds the per-query result merger; wired to
// rproc.NewInfileMerger in production.
type MergerFactory func(queryID qmeta.QueryID, resultTable string) Finalizer

// SubmitResult is what the proxy gets back for one submitted query.
type SubmitResult struct {
	ErrorMessage string
	ResultTable  string
	MessageTable string
	ResultQuery  string
	QueryID      qmeta.QueryID
}

// ClientThreadID identifies one proxy client thread for KILL handling.
type ClientThreadID struct {
	ClientID string
	ThreadID int
}

// Czar coordinates all user queries of one coordinator process. Construct
// one per process and pass it by reference.
type Czar struct {
	cfg  *Config
	id   qmeta.CzarID
	name string

	catalog  *css.Facade
	meta     qmeta.QMeta
	registry Registry
	comms    Comms
	pool     *qdisp.QdispPool
	resultDB SQLExec
	gen      *qproc.Generator
	mergers  MergerFactory

	mu            sync.Mutex
	idToQuery     map[qmeta.QueryID]*UserQuery
	clientToQuery map[ClientThreadID]*UserQuery
}

// Deps bundles the collaborators of a Czar.
type Deps struct {
	Meta     qmeta.QMeta
	Catalog  *css.Facade
	Registry Registry
	Comms    Comms
	Pool     *qdisp.QdispPool
	ResultDB SQLExec
	Gen      *qproc.Generator
	Mergers  MergerFactory
}

// NewCzar registers the czar identity, determines the last query id
// assigned before this process started and broadcasts the restart cancel
// high-watermark to all workers.
func NewCzar(ctx context.Context, cfg *Config, deps Deps) (*Czar, error) {
	id, err := deps.Meta.RegisterCzar(ctx, cfg.Name)
	if err != nil {
		return nil, err
	}

	c := &Czar{
		cfg:           cfg,
		id:            id,
		name:          cfg.Name,
		catalog:       deps.Catalog,
		meta:          deps.Meta,
		registry:      deps.Registry,
		comms:         deps.Comms,
		pool:          deps.Pool,
		resultDB:      deps.ResultDB,
		gen:           deps.Gen,
		mergers:       deps.Mergers,
		idToQuery:     make(map[qmeta.QueryID]*UserQuery),
		clientToQuery: make(map[ClientThreadID]*UserQuery),
	}

	lastID, err := deps.Meta.LastQueryID(ctx)
	if err != nil {
		return nil, err
	}

	if cfg.NotifyWorkersOnRestart && lastID > 0 {
		c.notifyWorkersOnRestart(ctx, lastID)
	}

	log.WithFields(log.Fields{"czar": cfg.Name, "id": id, "lastQueryId": lastID}).
		Info("czar instance created")
	return c, nil
}

// notifyWorkersOnRestart tells every worker to drop fragments of queries
// submitted before this restart.
func (c *Czar) notifyWorkersOnRestart(ctx context.Context, lastID uint64) {
	workers, err := c.registry.AllWorkers(ctx)
	if err != nil {
		log.WithError(err).Warn("cannot list workers for restart cancel broadcast")
		return
	}
	for _, w := range workers {
		if err := c.comms.CancelAfterRestart(ctx, w, c.id, lastID); err != nil {
			log.WithFields(log.Fields{"worker": w.Name}).WithError(err).
				Warn("restart cancel broadcast failed")
		}
	}
}

// SubmitQuery runs the full submit path: parse, analyze, register, lock
// the message table, enumerate chunks, dispatch. Errors before dispatch
// surface in ErrorMessage and create no result table.
func (c *Czar) SubmitQuery(ctx context.Context, sql string, hints map[string]string) SubmitResult {
	hintsCfg := config.NewMapConfig(hints)
	clientID := hintsCfg.GetStringOrDefault("client_dst_name", "")
	threadID := -1
	if v, err := config.GetInt(hintsCfg, "server_thread_id"); err == nil {
		threadID = int(v)
	}
	defaultDb := hintsCfg.GetStringOrDefault("db", "")

	log.WithFields(log.Fields{"client": clientID, "db": defaultDb}).Infof("new query: %s", sql)

	stmt, err := parse.Select(sql)
	if err != nil {
		return SubmitResult{ErrorMessage: err.Error()}
	}

	analyzer, err := qana.NewDefaultAnalyzer(qana.AnalyzerConfig{
		InteractiveChunkLimit: c.cfg.InteractiveChunkLimit,
		DefaultScanRating:     c.cfg.DefaultScanRating,
		SlowestScanRating:     c.cfg.SlowestScanRating,
		LockInMemory:          true,
	})
	if err != nil {
		return SubmitResult{ErrorMessage: err.Error()}
	}

	qctx := &qana.QueryContext{Css: c.catalog, DefaultDb: defaultDb}
	if err := analyzer.Apply(qctx, stmt); err != nil {
		return SubmitResult{ErrorMessage: err.Error()}
	}

	info := &qmeta.QInfo{CzarID: c.id, Query: sql}
	qid, err := c.meta.RegisterQuery(ctx, info)
	if err != nil {
		return SubmitResult{ErrorMessage: err.Error()}
	}

	resultTable := fmt.Sprintf("result_%d", qid)
	messageTable := fmt.Sprintf("message_%d", qid)
	if err := c.meta.SetMessageTable(ctx, qid, messageTable); err != nil {
		return SubmitResult{ErrorMessage: err.Error()}
	}

	msgTable := NewMessageTable(c.cfg.ResultDb+"."+messageTable, c.resultDB)
	if err := msgTable.Lock(ctx); err != nil {
		return SubmitResult{ErrorMessage: err.Error()}
	}

	uq, err := c.buildUserQuery(ctx, qid, sql, stmt, qctx, analyzer, resultTable, messageTable)
	if err != nil {
		// release the proxy; the query never dispatched
		_ = msgTable.Unlock(ctx, nil)
		return SubmitResult{ErrorMessage: err.Error()}
	}

	resultQuery := uq.ResultQuery()
	if err := c.meta.SetResultQuery(ctx, qid, resultQuery); err != nil {
		log.WithFields(log.Fields{"qid": qid}).WithError(err).Warn("recording result query failed")
	}

	c.rememberQuery(clientID, threadID, uq)

	// wait for completion in the background so the proxy is not blocked;
	// unlocking the message table is what releases the proxy's read
	go func() {
		uq.Submit(context.Background())
		status := uq.Join()
		if err := msgTable.Unlock(context.Background(), uq.MessageStore()); err != nil {
			log.WithFields(log.Fields{"qid": qid}).WithError(err).
				Error("query finalization failed, proxy may hang on message table")
		}
		log.WithFields(log.Fields{"qid": qid, "status": status}).Info("query finished")
	}()

	return SubmitResult{
		ResultTable:  uq.ResultTableName(),
		MessageTable: uq.MessageTableName(),
		ResultQuery:  resultQuery,
		QueryID:      qid,
	}
}

// buildUserQuery enumerates chunks, applies the final scan downgrade and
// assembles the Executive and merger for one query.
func (c *Czar) buildUserQuery(ctx context.Context, qid qmeta.QueryID, sql string,
	stmt *query.SelectStmt, qctx *qana.QueryContext, analyzer *qana.Analyzer,
	resultTable, messageTable string) (*UserQuery, error) {

	specs, err := c.gen.Chunks(ctx, qctx)
	if err != nil {
		return nil, err
	}
	analyzer.FinalizeChunkCount(qctx, len(specs))

	msgs := qmeta.NewMessageStore()
	merger := c.mergers(qid, resultTable)

	uq := &UserQuery{
		queryID:      qid,
		czarID:       c.id,
		sql:          sql,
		stmt:         stmt,
		qctx:         qctx,
		specs:        specs,
		resultDb:     c.cfg.ResultDb,
		resultTable:  resultTable,
		messageTable: messageTable,
		merger:       merger,
		msgs:         msgs,
		meta:         c.meta,
		status:       qmeta.StatusExecuting,
		joined:       make(chan struct{}),
	}

	if stmt.Limit == 0 || len(specs) == 0 {
		return uq, nil
	}

	// LIMIT can terminate dispatch early only when merging cannot reorder
	// or combine rows
	var rowLimit uint64
	pushLimit := false
	if stmt.Limit > 0 && !qctx.Merge.NeedsMerge && len(stmt.OrderBy) == 0 {
		rowLimit = uint64(stmt.Limit)
		pushLimit = true
	}

	var scan []wire.ScanTable
	for _, st := range qctx.ScanInfo.Tables {
		scan = append(scan, wire.ScanTable{
			Db: st.Db, Table: st.Table, LockInMemory: st.LockInMemory, ScanRating: st.ScanRating,
		})
	}

	progress := func(total, completed int) {
		pctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.meta.UpdateProgress(pctx, qid, total, completed); err != nil {
			log.WithFields(log.Fields{"qid": qid}).WithError(err).Debug("progress update failed")
		}
	}

	exec := qdisp.NewExecutive(qdisp.Config{
		QueryID:          uint64(qid),
		CzarID:           uint64(c.id),
		Database:         qctx.DominantDb,
		Scan:             scan,
		Interactive:      qctx.Interactive,
		UberJobMaxChunks: c.cfg.UberJobMaxChunks,
		MaxAttempts:      c.cfg.MaxAttempts,
		AttemptSleep:     time.Duration(c.cfg.AttemptSleepSeconds) * time.Second,
		RowLimit:         rowLimit,
		ProgressInterval: time.Duration(c.cfg.SecondsBetweenQMetaUpdates) * time.Second,
	}, c.comms, c.registry, merger, c.pool, msgs, progress)

	for _, desc := range qproc.MakeJobs(stmt, specs, pushLimit) {
		exec.AddJob(desc)
	}
	uq.exec = exec
	return uq, nil
}

// KillQuery handles the kill statements the proxy forwards. Unknown or
// already finished targets return an error.
func (c *Czar) KillQuery(ctx context.Context, killStmt, clientID string) error {
	log.WithFields(log.Fields{"client": clientID}).Infof("kill request: %s", killStmt)

	c.cleanupQueryHistory()

	var uq *UserQuery
	if threadID, ok := isKill(killStmt); ok {
		c.mu.Lock()
		uq = c.clientToQuery[ClientThreadID{ClientID: clientID, ThreadID: threadID}]
		c.mu.Unlock()
		if uq == nil {
			return fmt.Errorf("unknown thread ID: %s", killStmt)
		}
	} else if queryID, ok := isCancel(killStmt); ok {
		c.mu.Lock()
		uq = c.idToQuery[queryID]
		c.mu.Unlock()
		if uq == nil {
			return fmt.Errorf("unknown or finished query ID: %s", killStmt)
		}
	} else {
		return fmt.Errorf("failed to parse kill query: %s", killStmt)
	}

	if uq.Done() {
		return fmt.Errorf("query has already finished: %s", killStmt)
	}

	// killing can take long; do not block the proxy
	go uq.Kill("proxy kill request")
	return nil
}

// OnResultFileReady routes a worker completion notice to its query.
func (c *Czar) OnResultFileReady(file *wire.ResultFileReady) {
	c.mu.Lock()
	uq := c.idToQuery[file.QueryID]
	c.mu.Unlock()

	if uq == nil || uq.exec == nil {
		log.WithFields(log.Fields{"qid": file.QueryID}).Debug("result notice for unknown query")
		return
	}
	uq.exec.OnResultFileReady(file)
}

// OnWorkerEvicted returns the evicted worker's in-flight jobs to PENDING
// across all running queries.
func (c *Czar) OnWorkerEvicted(workerName string) {
	c.mu.Lock()
	var active []*UserQuery
	for _, uq := range c.idToQuery {
		if !uq.Done() && uq.exec != nil {
			active = append(active, uq)
		}
	}
	c.mu.Unlock()

	for _, uq := range active {
		uq.exec.KillIncompleteUberJobsOnWorker(workerName)
	}
}

// GetQueryInfo joins the QInfo and QProgress records of one query.
func (c *Czar) GetQueryInfo(ctx context.Context, qid qmeta.QueryID) (*qmeta.QInfo, *qmeta.QProgress, error) {
	info, err := c.meta.GetQueryInfo(ctx, qid)
	if err != nil {
		return nil, nil, err
	}
	progress, err := c.meta.GetQueryProgress(ctx, qid)
	if err != nil {
		return nil, nil, err
	}
	if progress == nil {
		// the query is over; synthesize final progress from QInfo
		progress = &qmeta.QProgress{
			QueryID:         qid,
			TotalChunks:     info.ChunkCount,
			CompletedChunks: info.ChunkCount,
			QueryBegin:      info.Submitted,
			LastUpdate:      info.Completed,
		}
	}
	return info, progress, nil
}

// rememberQuery indexes a running query for later kills, pruning finished
// entries first.
func (c *Czar) rememberQuery(clientID string, threadID int, uq *UserQuery) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cleanupQueryHistoryLocked()

	c.idToQuery[uq.queryID] = uq
	if clientID != "" && threadID >= 0 {
		c.clientToQuery[ClientThreadID{ClientID: clientID, ThreadID: threadID}] = uq
	}
}

func (c *Czar) cleanupQueryHistory() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleanupQueryHistoryLocked()
}

// cleanupQueryHistoryLocked drops finished queries from both maps so the
// maps do not pin completed query state.
func (c *Czar) cleanupQueryHistoryLocked() {
	for id, uq := range c.idToQuery {
		if uq.Done() {
			delete(c.idToQuery, id)
		}
	}
	for key, uq := range c.clientToQuery {
		if uq.Done() {
			delete(c.clientToQuery, key)
		}
	}
}
