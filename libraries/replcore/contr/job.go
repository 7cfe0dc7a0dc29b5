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

package contr

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"gopkg.in/src-d/go-errors.v1"
)

// ErrJob aggregates per-request failures of one job.
var ErrJob = errors.NewKind("job %s: %s")

// JobState is the coarse lifecycle of a multi-request job.
type JobState string

const (
	JobCreated    JobState = "CREATED"
	JobInProgress JobState = "IN_PROGRESS"
	JobFinished   JobState = "FINISHED"
)

// JobResult is the outcome of a FINISHED job.
type JobResult string

const (
	JobSuccess   JobResult = "SUCCESS"
	JobFailure   JobResult = "FAILURE"
	JobCancelled JobResult = "CANCELLED"
)

// Progress is the request tally of a running job.
type Progress struct {
	Total    int
	Finished int
	Failed   int
}

// Job orchestrates a set of requests with a completion rule. Concrete
// jobs embed it and drive their requests through track.
type Job struct {
	ID   string
	Type string

	mu       sync.Mutex
	state    JobState
	result   JobResult
	requests []*Request
	started  time.Time
	finished time.Time
	cancel   context.CancelFunc
}

func newJob(jobType string) Job {
	return Job{ID: uuid.NewString(), Type: jobType, state: JobCreated}
}

// State returns the job lifecycle state.
func (j *Job) State() JobState {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Result returns the outcome of a finished job.
func (j *Job) Result() JobResult {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.result
}

// Progress tallies the job's requests.
func (j *Job) Progress() Progress {
	j.mu.Lock()
	defer j.mu.Unlock()

	p := Progress{Total: len(j.requests)}
	for _, r := range j.requests {
		switch r.State() {
		case RequestFinished:
			p.Finished++
		case RequestFailed, RequestTimeout, RequestCancelled:
			p.Failed++
		}
	}
	return p
}

// Requests snapshots the job's requests.
func (j *Job) Requests() []*Request {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]*Request(nil), j.requests...)
}

// Cancel stops a running job; unstarted requests terminate CANCELLED.
func (j *Job) Cancel() {
	j.mu.Lock()
	cancel := j.cancel
	reqs := append([]*Request(nil), j.requests...)
	j.mu.Unlock()

	for _, r := range reqs {
		r.Cancel()
	}
	if cancel != nil {
		cancel()
	}
}

// begin moves the job to IN_PROGRESS and derives its run context.
func (j *Job) begin(ctx context.Context) context.Context {
	ctx, cancel := context.WithCancel(ctx)
	j.mu.Lock()
	j.state = JobInProgress
	j.started = time.Now()
	j.cancel = cancel
	j.mu.Unlock()
	return ctx
}

// track registers a request with the job.
func (j *Job) track(r *Request) {
	j.mu.Lock()
	j.requests = append(j.requests, r)
	j.mu.Unlock()
	r.Queue()
}

// end finishes the job with the given result.
func (j *Job) end(result JobResult) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.state = JobFinished
	j.result = result
	j.finished = time.Now()
	if j.cancel != nil {
		j.cancel()
	}
}

// allFinishedOK is the default success rule: every request FINISHED.
func (j *Job) allFinishedOK() JobResult {
	cancelled := false
	for _, r := range j.Requests() {
		switch r.State() {
		case RequestFinished:
		case RequestCancelled:
			cancelled = true
		default:
			return JobFailure
		}
	}
	if cancelled {
		return JobCancelled
	}
	return JobSuccess
}
