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
	"sync"

	"gopkg.in/src-d/go-errors.v1"
)

// ErrBadTransition is an attempted backward job state edge.
var ErrBadTransition = errors.NewKind("job %d: illegal transition %s -> %s")

// JobStatus is the lifecycle state of one per-chunk job.
type JobStatus int

const (
	JobPending JobStatus = iota
	JobAssigned
	JobRunning
	JobSuccess
	JobFailedRetryable
	JobFailedTerminal
	JobCancelled
)

var jobStatusNames = map[JobStatus]string{
	JobPending:         "PENDING",
	JobAssigned:        "ASSIGNED",
	JobRunning:         "RUNNING",
	JobSuccess:         "SUCCESS",
	JobFailedRetryable: "FAILED_RETRYABLE",
	JobFailedTerminal:  "FAILED_TERMINAL",
	JobCancelled:       "CANCELLED",
}

func (s JobStatus) String() string { return jobStatusNames[s] }

// IsTerminal reports whether no further transitions can happen within the
// current attempt.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobSuccess, JobFailedRetryable, JobFailedTerminal, JobCancelled:
		return true
	}
	return false
}

// JobDescription is the immutable payload of a job: the fragment queries
// for one chunk.
type JobDescription struct {
	JobID     uint64
	ChunkID   int
	SubChunks []int
	Queries   []string
}

// Job tracks one per-chunk fragment through dispatch. State transitions
// within one attempt are monotonic; a retry starts a fresh attempt back at
// PENDING with the attempt counter bumped.
type Job struct {
	Desc JobDescription

	mu        sync.Mutex
	status    JobStatus
	attempt   int
	uberJobID uint64
}

func NewJob(desc JobDescription) *Job {
	return &Job{Desc: desc, attempt: 1}
}

// Status returns the current state.
func (j *Job) Status() JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

// Attempt returns the 1-based attempt number.
func (j *Job) Attempt() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.attempt
}

// UberJobID returns the uber job currently carrying this job, 0 when
// unassigned.
func (j *Job) UberJobID() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.uberJobID
}

// SetStatus advances the job state. Backward edges fail.
func (j *Job) SetStatus(next JobStatus) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if next < j.status || j.status.IsTerminal() {
		return ErrBadTransition.New(j.Desc.JobID, j.status, next)
	}
	j.status = next
	return nil
}

// Assign binds the job to an uber job and moves it to ASSIGNED.
func (j *Job) Assign(uberJobID uint64) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.status != JobPending {
		return ErrBadTransition.New(j.Desc.JobID, j.status, JobAssigned)
	}
	j.status = JobAssigned
	j.uberJobID = uberJobID
	return nil
}

// Retry begins a new attempt: the counter is bumped and the state returns
// to PENDING. The caller checks the attempt bound.
func (j *Job) Retry() int {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.attempt++
	j.status = JobPending
	j.uberJobID = 0
	return j.attempt
}
