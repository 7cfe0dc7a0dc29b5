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

package qana

import (
	"github.com/parsecdb/parsec/libraries/czarcore/query"
)

// TablePlugin resolves every table and column reference against the
// catalog. It must run before every other pass: it fills in default
// databases, verifies tables exist, binds column qualifiers to FROM
// entries, annotates chunk levels and records the dominant database.
type TablePlugin struct{}

func (*TablePlugin) Name() string              { return "table" }
func (*TablePlugin) Phase() Phase              { return PhaseResolve }
func (*TablePlugin) NeedsResolvedTables() bool { return false }

func (p *TablePlugin) Apply(ctx *QueryContext, stmt *query.SelectStmt) error {
	if len(stmt.From) == 0 {
		return ErrQuery.New("query has no FROM clause")
	}

	ctx.resolved = make(map[string]*query.TableRef)
	var all []*query.TableRef
	for _, tr := range stmt.From {
		all = append(all, tr)
		for _, js := range tr.Joins {
			all = append(all, js.Right)
		}
	}

	for _, tr := range all {
		if tr.Db == "" {
			if ctx.DefaultDb == "" {
				return ErrQuery.New("table " + tr.Table + " has no database and no default database is set")
			}
			tr.Db = ctx.DefaultDb
		}
		ok, err := ctx.Css.ContainsTable(tr.Db, tr.Table)
		if err != nil {
			return err
		}
		if !ok {
			return ErrQuery.New("no such table " + tr.Db + "." + tr.Table)
		}

		level, err := ctx.Css.GetChunkLevel(tr.Db, tr.Table)
		if err != nil {
			return err
		}
		tr.ChunkLevel = level

		bind := tr.BindName()
		if _, dup := ctx.resolved[bind]; dup {
			return ErrQuery.New("duplicate table reference " + bind)
		}
		ctx.resolved[bind] = tr
		// an unaliased table is addressable by bare name and db.name
		if tr.Alias == "" {
			ctx.resolved[tr.Db+"."+tr.Table] = tr
		}

		if ctx.DominantDb == "" || (tr.ChunkLevel > 0 && !p.dominantIsChunked(ctx)) {
			ctx.DominantDb = tr.Db
		}
	}

	if stmt.Where != nil {
		for _, r := range stmt.Where.Restrictors {
			if ar, ok := r.(*query.AreaRestrictor); ok {
				ctx.AreaRestrictors = append(ctx.AreaRestrictors, ar)
			}
		}
	}

	primary := all[0]
	var resolveErr error
	stmt.VisitColumnRefs(func(cr *query.ColumnRef) {
		if resolveErr != nil || cr == nil {
			return
		}
		resolveErr = p.resolveColumn(ctx, primary, cr)
	})
	return resolveErr
}

func (p *TablePlugin) dominantIsChunked(ctx *QueryContext) bool {
	for _, tr := range ctx.resolved {
		if tr.Db == ctx.DominantDb && tr.ChunkLevel > 0 {
			return true
		}
	}
	return false
}

// resolveColumn normalizes db.table.col qualifiers: unqualified columns
// bind to the primary FROM table, table qualifiers may be aliases or bare
// table names, and alias-bound references drop the database qualifier.
func (p *TablePlugin) resolveColumn(ctx *QueryContext, primary *query.TableRef, cr *query.ColumnRef) error {
	if cr.Table == "" {
		cr.Table = primary.BindName()
		if primary.Alias == "" {
			cr.Db = primary.Db
		}
		return nil
	}

	key := cr.Table
	if cr.Db != "" {
		key = cr.Db + "." + cr.Table
	}
	tr, ok := ctx.resolved[key]
	if !ok {
		tr, ok = ctx.resolved[cr.Table]
	}
	if !ok {
		return ErrQuery.New("column " + cr.String() + " does not resolve to a table in FROM")
	}

	cr.Table = tr.BindName()
	if tr.Alias == "" {
		cr.Db = tr.Db
	} else {
		cr.Db = ""
	}
	return nil
}
