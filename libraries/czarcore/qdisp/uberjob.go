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
	"github.com/parsecdb/parsec/libraries/czarcore/wire"
)

// UberJob is a worker-local bundle of jobs of one query. Its jobs complete
// when the uber job completes; a failed uber job fails (and possibly
// retries) all of them together.
type UberJob struct {
	ID      uint64
	QueryID uint64
	Worker  wire.WorkerAddr
	Jobs    []*Job
}

// Request builds the wire envelope submitting this uber job.
func (uj *UberJob) Request(czarID uint64, scan []wire.ScanTable, interactive bool) *wire.UberJobRequest {
	req := &wire.UberJobRequest{
		QueryID:     uj.QueryID,
		UberJobID:   uj.ID,
		CzarID:      czarID,
		ScanInfo:    scan,
		Interactive: interactive,
	}
	for _, job := range uj.Jobs {
		req.Fragments = append(req.Fragments, wire.ChunkFragment{
			JobID:     job.Desc.JobID,
			Attempt:   job.Attempt(),
			ChunkID:   job.Desc.ChunkID,
			SubChunks: append([]int(nil), job.Desc.SubChunks...),
			Queries:   append([]string(nil), job.Desc.Queries...),
		})
	}
	return req
}
