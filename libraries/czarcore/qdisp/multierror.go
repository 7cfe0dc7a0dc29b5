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
	"fmt"
	"strings"
)

// ErrorEntry is one recorded per-worker failure.
type ErrorEntry struct {
	Code   int
	Msg    string
	Status JobStatus
}

// MultiError aggregates per-worker failures of one query. The zero value
// is ready to use; it is not safe for concurrent use and is guarded by the
// Executive's errors mutex.
type MultiError struct {
	entries []ErrorEntry
}

func (me *MultiError) Add(code int, msg string, status JobStatus) {
	me.entries = append(me.entries, ErrorEntry{Code: code, Msg: msg, Status: status})
}

func (me *MultiError) Empty() bool { return len(me.entries) == 0 }

func (me *MultiError) Entries() []ErrorEntry {
	return append([]ErrorEntry(nil), me.entries...)
}

func (me *MultiError) Error() string {
	if len(me.entries) == 0 {
		return ""
	}
	parts := make([]string, len(me.entries))
	for i, e := range me.entries {
		parts[i] = fmt.Sprintf("[%d] %s (%s)", e.Code, e.Msg, e.Status)
	}
	return strings.Join(parts, "; ")
}
