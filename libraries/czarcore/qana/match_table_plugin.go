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

// MatchTablePlugin filters partitioner-duplicated rows out of non-join
// queries over a match table. The partitioner stores a match row on every
// chunk either director row lands on, flagging copies whose first director
// is non-local; the filter
//
//	(dirCol1 IS NULL OR flagCol<>2)
//
// keeps exactly one copy of each match. Join queries are left to the
// general table machinery.
type MatchTablePlugin struct{}

func (*MatchTablePlugin) Name() string              { return "match-table" }
func (*MatchTablePlugin) Phase() Phase              { return PhaseAnalyze }
func (*MatchTablePlugin) NeedsResolvedTables() bool { return true }

func (p *MatchTablePlugin) Apply(ctx *QueryContext, stmt *query.SelectStmt) error {
	if len(stmt.From) != 1 || len(stmt.From[0].Joins) != 0 {
		return nil
	}

	tr := stmt.From[0]
	isMatch, err := ctx.Css.IsMatchTable(tr.Db, tr.Table)
	if err != nil {
		return err
	}
	if !isMatch {
		return nil
	}

	params, err := ctx.Css.GetMatchTableParams(tr.Db, tr.Table)
	if err != nil {
		return err
	}

	bindDb := tr.Db
	if tr.Alias != "" {
		bindDb = ""
	}
	filter := &query.BoolFactor{Terms: []query.BoolFactorTerm{
		&query.BoolTermFactor{Term: &query.OrTerm{Terms: []query.BoolTerm{
			&query.BoolFactor{Terms: []query.BoolFactorTerm{
				&query.NullPredicate{Value: query.NewColumnExpr(bindDb, tr.BindName(), params.DirColName1)},
			}},
			&query.BoolFactor{Terms: []query.BoolFactorTerm{
				&query.CompPredicate{
					Left:  query.NewColumnExpr(bindDb, tr.BindName(), params.FlagColName),
					Op:    "<>",
					Right: query.NewConstExpr("2"),
				},
			}},
		}}},
	}}

	if stmt.Where == nil {
		stmt.Where = &query.WhereClause{}
	}
	stmt.Where.Tree = query.NewAndedTerm(stmt.Where.Tree, filter)
	return nil
}
