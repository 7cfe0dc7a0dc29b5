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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobForwardTransitions(t *testing.T) {
	j := NewJob(JobDescription{JobID: 1, ChunkID: 10})
	assert.Equal(t, JobPending, j.Status())
	assert.Equal(t, 1, j.Attempt())

	require.NoError(t, j.Assign(99))
	assert.Equal(t, JobAssigned, j.Status())
	assert.Equal(t, uint64(99), j.UberJobID())

	require.NoError(t, j.SetStatus(JobRunning))
	require.NoError(t, j.SetStatus(JobSuccess))
}

func TestJobNoBackwardTransitions(t *testing.T) {
	j := NewJob(JobDescription{JobID: 1})
	require.NoError(t, j.SetStatus(JobRunning))

	err := j.SetStatus(JobAssigned)
	require.Error(t, err)
	assert.True(t, ErrBadTransition.Is(err))

	require.NoError(t, j.SetStatus(JobCancelled))
	// terminal states accept nothing further
	assert.Error(t, j.SetStatus(JobCancelled))
}

func TestJobRetryStartsFreshAttempt(t *testing.T) {
	j := NewJob(JobDescription{JobID: 1})
	require.NoError(t, j.Assign(5))
	require.NoError(t, j.SetStatus(JobRunning))
	require.NoError(t, j.SetStatus(JobFailedRetryable))

	attempt := j.Retry()
	assert.Equal(t, 2, attempt)
	assert.Equal(t, JobPending, j.Status())
	assert.Equal(t, uint64(0), j.UberJobID())

	require.NoError(t, j.Assign(6))
}
