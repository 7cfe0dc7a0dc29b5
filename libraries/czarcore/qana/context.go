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

// Package qana runs ordered semantic passes over a parsed SELECT: table
// resolution, match-table duplicate filtering, director-index pushdown,
// scan classification and aggregation splitting. The passes annotate a
// QueryContext the dispatcher and merger consume.
package qana

import (
	"gopkg.in/src-d/go-errors.v1"

	"github.com/parsecdb/parsec/libraries/czarcore/css"
	"github.com/parsecdb/parsec/libraries/czarcore/query"
)

// ErrQuery is an analysis failure: an unknown table, an unresolvable
// column, an unsupported construct.
var ErrQuery = errors.NewKind("query analysis: %s")

// ScanTableInfo describes one partitioned table a scan query reads.
type ScanTableInfo struct {
	Db           string
	Table        string
	LockInMemory bool
	ScanRating   int
}

// ScanInfo classifies a query as a shared scan. An empty table list means
// the query is interactive.
type ScanInfo struct {
	Tables []ScanTableInfo
	Rating int
}

// IsScan reports whether the query participates in shared scans.
func (si *ScanInfo) IsScan() bool { return len(si.Tables) > 0 }

// MergePlan describes the merge pass the result processor runs over the
// collected per-chunk rows when the query aggregates or groups.
type MergePlan struct {
	// NeedsMerge is set when per-chunk rows must be combined by a second
	// SELECT over the result table rather than used directly.
	NeedsMerge bool

	// SelectList and GroupBy are the rendered projection and grouping of
	// the merge pass.
	SelectList string
	GroupBy    string
}

// QueryContext carries cross-pass analysis state for one user query.
type QueryContext struct {
	Css       *css.Facade
	DefaultDb string

	// DominantDb is the database the query belongs to after table
	// resolution.
	DominantDb string

	// AreaRestrictors and SecIdxRestrictors are the chunk-enumeration
	// inputs extracted from the WHERE clause.
	AreaRestrictors   []*query.AreaRestrictor
	SecIdxRestrictors []*query.SecIdxRestrictor

	// SecIdxDb and SecIdxTable name the director table whose index serves
	// the secondary-index restrictors.
	SecIdxDb    string
	SecIdxTable string

	ScanInfo    ScanInfo
	Interactive bool

	Merge MergePlan

	// ResultColumns are the column names of the result table, in select
	// order, used for the proxy-visible SELECT.
	ResultColumns []string

	// resolved maps bind names (alias or table name) to FROM entries.
	resolved map[string]*query.TableRef
}

// ResolvedTable returns the FROM entry a bind name refers to.
func (ctx *QueryContext) ResolvedTable(bindName string) (*query.TableRef, bool) {
	tr, ok := ctx.resolved[bindName]
	return tr, ok
}

// HasSecIdxRestrictor reports whether a director-key restrictor was
// extracted, making the query a point lookup.
func (ctx *QueryContext) HasSecIdxRestrictor() bool {
	return len(ctx.SecIdxRestrictors) > 0
}
