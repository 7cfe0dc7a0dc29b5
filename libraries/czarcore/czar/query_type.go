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
	"regexp"
	"strconv"
)

// Kill-statement forms the proxy forwards:
//
//	KILL QUERY <threadId>      kill the running query of a proxy thread
//	KILL CONNECTION <threadId> same, plus the connection
//	KILL <threadId>            alias for KILL CONNECTION
//	CANCEL <queryId>           kill by query id
var (
	killRe   = regexp.MustCompile(`(?i)^\s*KILL\s+(?:QUERY\s+|CONNECTION\s+)?(\d+)\s*;?\s*$`)
	cancelRe = regexp.MustCompile(`(?i)^\s*CANCEL\s+(\d+)\s*;?\s*$`)
)

// isKill parses the thread id out of a KILL statement.
func isKill(stmt string) (int, bool) {
	m := killRe.FindStringSubmatch(stmt)
	if m == nil {
		return 0, false
	}
	id, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return id, true
}

// isCancel parses the query id out of a CANCEL statement.
func isCancel(stmt string) (uint64, bool) {
	m := cancelRe.FindStringSubmatch(stmt)
	if m == nil {
		return 0, false
	}
	id, err := strconv.ParseUint(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
