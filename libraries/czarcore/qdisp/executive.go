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

package qdisp

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/parsecdb/parsec/libraries/czarcore/qmeta"
	"github.com/parsecdb/parsec/libraries/czarcore/wire"
)

// WorkerComms is the subset of the worker client the Executive uses.
type WorkerComms interface {
	SubmitUberJob(ctx context.Context, w wire.WorkerAddr, req *wire.UberJobRequest) (*wire.UberJobResponse, error)
	CancelQuery(ctx context.Context, w wire.WorkerAddr, queryID uint64, uberJobIDs []uint64) error
}

// WorkerResolver maps a chunk to the worker currently responsible for it.
// Workers named in exclude must not be chosen.
type WorkerResolver interface {
	WorkerFor(database string, chunkID int, exclude map[string]bool) (wire.WorkerAddr, error)
}

// MergeResult reports one successful merge.
type MergeResult struct {
	Rows     uint64
	Bytes    uint64
	TooLarge bool
}

// Merger ingests uber-job result files. Implementations must be idempotent
// per (queryID, uberJobID, worker): merging a duplicate result is a no-op
// reporting zero rows. Results of superseded uber jobs never reach the
// Merger; the Executive drops them.
type Merger interface {
	MergeResultFile(ctx context.Context, file *wire.ResultFileReady) (MergeResult, error)
}

// Config carries the per-query dispatch parameters.
type Config struct {
	QueryID uint64
	CzarID  uint64

	Database    string
	Scan        []wire.ScanTable
	Interactive bool

	// UberJobMaxChunks bounds how many jobs share one uber job.
	UberJobMaxChunks int

	// MaxAttempts bounds per-job attempts across retries.
	MaxAttempts int

	// AttemptSleep is the pause before a failed uber job's work is
	// reassigned.
	AttemptSleep time.Duration

	// RowLimit, when non-zero, enables LIMIT early termination: once that
	// many rows have been merged, outstanding work is squashed.
	RowLimit uint64

	// ProgressInterval drives periodic progress pushes, 0 disables them.
	ProgressInterval time.Duration

	// Priority places the query's commands in the QdispPool.
	Priority int
}

type eventKind int

const (
	evResultFile eventKind = iota
	evMergeDone
	evUberJobFailed
	evWorkerLost
	evRetryReady
	evSquashed
)

type event struct {
	kind      eventKind
	file      *wire.ResultFileReady
	uberJobID uint64
	worker    string
	jobs      []*Job
	code      int
	msg       string
}

// Executive dispatches the per-chunk jobs of one user query, reconciling
// worker completions in a single loop so no job/result/message locks nest.
type Executive struct {
	cfg      Config
	comms    WorkerComms
	resolver WorkerResolver
	merger   Merger
	pool     *QdispPool
	msgs     *qmeta.MessageStore
	progress func(totalChunks, completedChunks int)

	jobMapMtx sync.Mutex
	jobMap    map[uint64]*Job

	uberJobsMapMtx sync.Mutex
	uberJobsMap    map[uint64]*UberJob

	chunkToJobMapMtx sync.Mutex
	chunkToJobMap    map[int]uint64 // chunk -> job id; ids keep Jobs collectable

	errorsMutex sync.Mutex
	multiError  MultiError

	totalJobs        int64
	finishedJobs     int64
	requestCount     int64
	dataIgnoredCount int64
	totalResultRows  uint64

	cancelled        int32
	limitRowComplete int32
	readyToExecute   int32

	nextUberJobID uint64
	events        chan event
	done          chan struct{}
	finishOnce    sync.Once
	finalStatus   qmeta.QueryStatus

	runCtx    context.Context
	runCancel context.CancelFunc
}

// NewExecutive creates an Executive. progress may be nil.
func NewExecutive(cfg Config, comms WorkerComms, resolver WorkerResolver, merger Merger,
	pool *QdispPool, msgs *qmeta.MessageStore, progress func(total, completed int)) *Executive {

	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.UberJobMaxChunks <= 0 {
		cfg.UberJobMaxChunks = 1000
	}

	return &Executive{
		cfg:           cfg,
		comms:         comms,
		resolver:      resolver,
		merger:        merger,
		pool:          pool,
		msgs:          msgs,
		progress:      progress,
		jobMap:        make(map[uint64]*Job),
		uberJobsMap:   make(map[uint64]*UberJob),
		chunkToJobMap: make(map[int]uint64),
		events:        make(chan event, 1024),
		done:          make(chan struct{}),
	}
}

// AddJob registers one per-chunk job. All jobs are added before Start.
func (e *Executive) AddJob(desc JobDescription) {
	job := NewJob(desc)

	e.jobMapMtx.Lock()
	e.jobMap[desc.JobID] = job
	e.jobMapMtx.Unlock()

	e.chunkToJobMapMtx.Lock()
	e.chunkToJobMap[desc.ChunkID] = desc.JobID
	e.chunkToJobMapMtx.Unlock()

	atomic.AddInt64(&e.totalJobs, 1)
}

// TotalJobs returns the number of registered jobs.
func (e *Executive) TotalJobs() int { return int(atomic.LoadInt64(&e.totalJobs)) }

// TotalResultRows returns the rows merged so far.
func (e *Executive) TotalResultRows() uint64 { return atomic.LoadUint64(&e.totalResultRows) }

// DataIgnoredCount counts results that arrived after the query stopped
// accepting data (LIMIT reached or squash) or for uber jobs no longer
// tracked.
func (e *Executive) DataIgnoredCount() int { return int(atomic.LoadInt64(&e.dataIgnoredCount)) }

// CompletedChunks returns the number of jobs in a terminal state.
func (e *Executive) CompletedChunks() int { return int(atomic.LoadInt64(&e.finishedJobs)) }

// MultiError snapshots the recorded per-worker failures.
func (e *Executive) MultiError() MultiError {
	e.errorsMutex.Lock()
	defer e.errorsMutex.Unlock()
	return MultiError{entries: e.multiError.Entries()}
}

// Start assigns jobs to workers and begins dispatch. It returns once
// submission commands are queued; Join waits for the outcome.
func (e *Executive) Start(ctx context.Context) {
	if !atomic.CompareAndSwapInt32(&e.readyToExecute, 0, 1) {
		return
	}
	e.runCtx, e.runCancel = context.WithCancel(ctx)

	go e.reconcile()
	if e.cfg.ProgressInterval > 0 && e.progress != nil {
		go e.progressLoop()
	}

	e.jobMapMtx.Lock()
	pending := make([]*Job, 0, len(e.jobMap))
	for _, job := range e.jobMap {
		pending = append(pending, job)
	}
	e.jobMapMtx.Unlock()

	if len(pending) == 0 {
		e.finish()
		return
	}
	e.assignAndSubmit(pending, nil)
}

// assignAndSubmit groups jobs by responsible worker, packs them into uber
// jobs and queues their submission.
func (e *Executive) assignAndSubmit(jobs []*Job, exclude map[string]bool) {
	byWorker := make(map[string][]*Job)
	workers := make(map[string]wire.WorkerAddr)

	for _, job := range jobs {
		w, err := e.resolver.WorkerFor(e.cfg.Database, job.Desc.ChunkID, exclude)
		if err != nil {
			e.jobTerminallyFailed(job, -1, "no worker for chunk: "+err.Error())
			continue
		}
		byWorker[w.Name] = append(byWorker[w.Name], job)
		workers[w.Name] = w
	}

	for name, workerJobs := range byWorker {
		for start := 0; start < len(workerJobs); start += e.cfg.UberJobMaxChunks {
			end := start + e.cfg.UberJobMaxChunks
			if end > len(workerJobs) {
				end = len(workerJobs)
			}
			e.submitUberJob(workers[name], workerJobs[start:end])
		}
	}
}

func (e *Executive) submitUberJob(w wire.WorkerAddr, jobs []*Job) {
	uj := &UberJob{
		ID:      atomic.AddUint64(&e.nextUberJobID, 1),
		QueryID: e.cfg.QueryID,
		Worker:  w,
		Jobs:    jobs,
	}
	for _, job := range jobs {
		if err := job.Assign(uj.ID); err != nil {
			log.WithFields(log.Fields{"qid": e.cfg.QueryID, "job": job.Desc.JobID}).
				WithError(err).Warn("skipping unassignable job")
		}
	}

	e.uberJobsMapMtx.Lock()
	e.uberJobsMap[uj.ID] = uj
	e.uberJobsMapMtx.Unlock()

	e.pool.Submit(&Command{
		QueryID:  e.cfg.QueryID,
		Priority: e.cfg.Priority,
		Fn: func(ctx context.Context) {
			if e.isCancelled() {
				return
			}
			atomic.AddInt64(&e.requestCount, 1)
			for _, job := range uj.Jobs {
				_ = job.SetStatus(JobRunning)
			}
			_, err := e.comms.SubmitUberJob(ctx, uj.Worker, uj.Request(e.cfg.CzarID, e.cfg.Scan, e.cfg.Interactive))
			if err != nil {
				e.postEvent(event{kind: evUberJobFailed, uberJobID: uj.ID, code: -2, msg: err.Error()})
			}
		},
	})
}

// OnResultFileReady delivers a worker completion notice for one uber job.
// It is called from the czar's worker-facing endpoint.
func (e *Executive) OnResultFileReady(file *wire.ResultFileReady) {
	if file.Error != "" {
		code := -3
		if !file.Retryable {
			code = -4
		}
		e.postEvent(event{kind: evUberJobFailed, uberJobID: file.UberJobID, code: code, msg: file.Error})
		return
	}
	e.postEvent(event{kind: evResultFile, file: file, uberJobID: file.UberJobID})
}

// KillIncompleteUberJobsOnWorker returns the unfinished work held by an
// evicted worker to PENDING and reassigns it elsewhere.
func (e *Executive) KillIncompleteUberJobsOnWorker(workerName string) {
	e.postEvent(event{kind: evWorkerLost, worker: workerName})
}

// Squash cancels all outstanding work: the flag stops further dispatch,
// queued pool commands are dropped, and in-flight workers get cancel RPCs
// issued outside any Executive lock.
func (e *Executive) Squash(reason string) {
	if !atomic.CompareAndSwapInt32(&e.cancelled, 0, 1) {
		return
	}
	log.WithFields(log.Fields{"qid": e.cfg.QueryID, "reason": reason}).Info("squashing query")
	e.msgs.Add(e.cfg.QueryID, qmeta.SummaryChunkID, 0, qmeta.SeverityInfo, qmeta.SourceCancel,
		"Query Execution Squashed.")

	e.pool.CancelQuery(e.cfg.QueryID)

	e.uberJobsMapMtx.Lock()
	active := make([]*UberJob, 0, len(e.uberJobsMap))
	for _, uj := range e.uberJobsMap {
		active = append(active, uj)
	}
	e.uberJobsMapMtx.Unlock()

	// cancel RPCs are network bound; issue them outside the lock
	go func() {
		for _, uj := range active {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := e.comms.CancelQuery(ctx, uj.Worker, e.cfg.QueryID, []uint64{uj.ID}); err != nil {
				log.WithFields(log.Fields{"qid": e.cfg.QueryID, "worker": uj.Worker.Name}).
					WithError(err).Debug("cancel RPC failed")
			}
			cancel()
		}
		e.postEvent(event{kind: evSquashed})
	}()
}

// LimitReached reports whether LIMIT early termination fired.
func (e *Executive) LimitReached() bool { return atomic.LoadInt32(&e.limitRowComplete) != 0 }

func (e *Executive) isCancelled() bool { return atomic.LoadInt32(&e.cancelled) != 0 }

// Join blocks until the query reaches a terminal state and returns it.
func (e *Executive) Join() qmeta.QueryStatus {
	<-e.done
	return e.finalStatus
}

func (e *Executive) postEvent(ev event) {
	select {
	case e.events <- ev:
	case <-e.done:
	}
}

// reconcile is the single loop that applies worker outcomes to job state.
func (e *Executive) reconcile() {
	for {
		select {
		case <-e.runCtx.Done():
			e.finish()
			return
		case ev := <-e.events:
			switch ev.kind {
			case evResultFile:
				e.queueMerge(ev.file)
			case evMergeDone:
				e.completeUberJob(ev.uberJobID)
			case evUberJobFailed:
				e.failUberJob(ev.uberJobID, ev.code, ev.msg)
			case evWorkerLost:
				e.workerLost(ev.worker)
			case evRetryReady:
				if !e.isCancelled() {
					e.assignAndSubmit(ev.jobs, map[string]bool{ev.worker: true})
				} else {
					e.cancelJobs(ev.jobs)
				}
			case evSquashed:
				e.cancelRemaining()
			}
			if e.allJobsFinished() {
				e.finish()
				return
			}
		}
	}
}

// queueMerge schedules merging of a result file on the pool. Results
// arriving after LIMIT completion or squash, and results of uber jobs no
// longer tracked (superseded by a retry or already completed), are counted
// and dropped.
func (e *Executive) queueMerge(file *wire.ResultFileReady) {
	e.uberJobsMapMtx.Lock()
	_, tracked := e.uberJobsMap[file.UberJobID]
	e.uberJobsMapMtx.Unlock()

	if !tracked || e.isCancelled() || e.LimitReached() {
		atomic.AddInt64(&e.dataIgnoredCount, 1)
		return
	}

	e.pool.Submit(&Command{
		QueryID:  e.cfg.QueryID,
		Priority: e.cfg.Priority,
		Fn: func(ctx context.Context) {
			if e.isCancelled() || e.LimitReached() {
				atomic.AddInt64(&e.dataIgnoredCount, 1)
				return
			}
			res, err := e.merger.MergeResultFile(ctx, file)
			if err != nil {
				// local result database failures are terminal for the query
				e.recordError(-5, "merge failed: "+err.Error(), JobFailedTerminal)
				e.Squash("merge failure")
				return
			}
			if res.TooLarge {
				e.recordError(-6, "result size limit exceeded", JobFailedTerminal)
				e.Squash("result too large")
				return
			}

			total := atomic.AddUint64(&e.totalResultRows, res.Rows)
			if e.cfg.RowLimit > 0 && total >= e.cfg.RowLimit {
				if atomic.CompareAndSwapInt32(&e.limitRowComplete, 0, 1) {
					e.postEvent(event{kind: evMergeDone, uberJobID: file.UberJobID})
					e.squashForLimit()
					return
				}
			}
			e.postEvent(event{kind: evMergeDone, uberJobID: file.UberJobID})
		},
	})
}

// squashForLimit stops remaining work without marking the query aborted:
// the LIMIT is satisfied, the query completes.
func (e *Executive) squashForLimit() {
	log.WithFields(log.Fields{"qid": e.cfg.QueryID}).Debug("row limit reached, stopping dispatch")
	e.pool.CancelQuery(e.cfg.QueryID)

	e.uberJobsMapMtx.Lock()
	active := make([]*UberJob, 0, len(e.uberJobsMap))
	for _, uj := range e.uberJobsMap {
		active = append(active, uj)
	}
	e.uberJobsMapMtx.Unlock()

	go func() {
		for _, uj := range active {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			_ = e.comms.CancelQuery(ctx, uj.Worker, e.cfg.QueryID, []uint64{uj.ID})
			cancel()
		}
		e.postEvent(event{kind: evSquashed})
	}()
}

func (e *Executive) completeUberJob(uberJobID uint64) {
	uj := e.takeUberJob(uberJobID)
	if uj == nil {
		return
	}
	for _, job := range uj.Jobs {
		if job.Status().IsTerminal() {
			continue
		}
		_ = job.SetStatus(JobSuccess)
		atomic.AddInt64(&e.finishedJobs, 1)
		e.msgs.Add(e.cfg.QueryID, job.Desc.ChunkID, 0, qmeta.SeverityInfo, qmeta.SourceComplete, "chunk complete")
	}
}

func (e *Executive) failUberJob(uberJobID uint64, code int, msg string) {
	uj := e.takeUberJob(uberJobID)
	if uj == nil {
		return
	}
	log.WithFields(log.Fields{"qid": e.cfg.QueryID, "uberjob": uberJobID, "worker": uj.Worker.Name}).
		Warnf("uber job failed: %s", msg)

	if e.isCancelled() {
		e.cancelJobs(uj.Jobs)
		return
	}

	var retry []*Job
	for _, job := range uj.Jobs {
		if job.Status().IsTerminal() {
			continue
		}
		_ = job.SetStatus(JobFailedRetryable)
		if attempt := job.Retry(); attempt > e.cfg.MaxAttempts {
			e.jobTerminallyFailed(job, code, msg)
			continue
		}
		retry = append(retry, job)
	}
	if len(retry) == 0 {
		return
	}

	worker := uj.Worker.Name
	sleep := e.cfg.AttemptSleep
	if sleep <= 0 {
		sleep = time.Millisecond
	}
	time.AfterFunc(sleep, func() {
		e.postEvent(event{kind: evRetryReady, jobs: retry, worker: worker})
	})
}

func (e *Executive) workerLost(workerName string) {
	e.uberJobsMapMtx.Lock()
	var lost []uint64
	for id, uj := range e.uberJobsMap {
		if uj.Worker.Name == workerName {
			lost = append(lost, id)
		}
	}
	e.uberJobsMapMtx.Unlock()

	for _, id := range lost {
		e.failUberJob(id, -7, "worker "+workerName+" evicted")
	}
}

func (e *Executive) jobTerminallyFailed(job *Job, code int, msg string) {
	_ = job.SetStatus(JobFailedTerminal)
	atomic.AddInt64(&e.finishedJobs, 1)
	e.recordError(code, msg, JobFailedTerminal)
	e.msgs.Add(e.cfg.QueryID, job.Desc.ChunkID, code, qmeta.SeverityError, qmeta.SourceMultiError, msg)
}

func (e *Executive) cancelJobs(jobs []*Job) {
	for _, job := range jobs {
		if job.Status().IsTerminal() {
			continue
		}
		_ = job.SetStatus(JobCancelled)
		atomic.AddInt64(&e.finishedJobs, 1)
		e.msgs.Add(e.cfg.QueryID, job.Desc.ChunkID, 0, qmeta.SeverityInfo, qmeta.SourceCancel, "chunk cancelled")
	}
}

// cancelRemaining finalizes every job still tracked after a squash.
func (e *Executive) cancelRemaining() {
	e.uberJobsMapMtx.Lock()
	active := make([]*UberJob, 0, len(e.uberJobsMap))
	for _, uj := range e.uberJobsMap {
		active = append(active, uj)
	}
	e.uberJobsMap = make(map[uint64]*UberJob)
	e.uberJobsMapMtx.Unlock()

	for _, uj := range active {
		e.cancelJobs(uj.Jobs)
	}

	// jobs never packed into an uber job
	e.jobMapMtx.Lock()
	var loose []*Job
	for _, job := range e.jobMap {
		if !job.Status().IsTerminal() && job.UberJobID() == 0 {
			loose = append(loose, job)
		}
	}
	e.jobMapMtx.Unlock()
	e.cancelJobs(loose)
}

func (e *Executive) takeUberJob(id uint64) *UberJob {
	e.uberJobsMapMtx.Lock()
	defer e.uberJobsMapMtx.Unlock()
	uj := e.uberJobsMap[id]
	delete(e.uberJobsMap, id)
	return uj
}

func (e *Executive) recordError(code int, msg string, status JobStatus) {
	e.errorsMutex.Lock()
	defer e.errorsMutex.Unlock()
	e.multiError.Add(code, msg, status)
}

func (e *Executive) allJobsFinished() bool {
	total := atomic.LoadInt64(&e.totalJobs)
	return total > 0 && atomic.LoadInt64(&e.finishedJobs) >= total
}

func (e *Executive) finish() {
	e.finishOnce.Do(func() {
		me := e.MultiError()
		switch {
		case !me.Empty():
			e.finalStatus = qmeta.StatusFailed
		case e.isCancelled():
			e.finalStatus = qmeta.StatusAborted
		default:
			e.finalStatus = qmeta.StatusCompleted
		}

		if e.progress != nil {
			e.progress(e.TotalJobs(), e.CompletedChunks())
		}
		if e.runCancel != nil {
			e.runCancel()
		}
		close(e.done)
	})
}

func (e *Executive) progressLoop() {
	ticker := time.NewTicker(e.cfg.ProgressInterval)
	defer ticker.Stop()
	for {
		select {
		case <-e.done:
			return
		case <-ticker.C:
			e.progress(e.TotalJobs(), e.CompletedChunks())
		}
	}
}
