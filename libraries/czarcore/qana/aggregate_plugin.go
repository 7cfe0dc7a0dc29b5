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
	"fmt"
	"strings"

	"github.com/parsecdb/parsec/libraries/czarcore/query"
)

// AggregatePlugin splits aggregates into a worker pass and a merge pass.
// The statement is rewritten in place into the per-chunk worker form;
// ctx.Merge receives the SELECT the result processor runs over the
// collected rows. GROUP BY survives on both sides. ORDER BY is never
// pushed to workers; the proxy-visible SELECT applies it over the merged
// result table.
type AggregatePlugin struct{}

func (*AggregatePlugin) Name() string              { return "aggregate" }
func (*AggregatePlugin) Phase() Phase              { return PhasePhysical }
func (*AggregatePlugin) NeedsResolvedTables() bool { return true }

func (p *AggregatePlugin) Apply(ctx *QueryContext, stmt *query.SelectStmt) error {
	for _, ve := range stmt.SelectList {
		ctx.ResultColumns = append(ctx.ResultColumns, ve.ResultName())
	}

	needsMerge := stmt.HasAggregate() || len(stmt.GroupBy) > 0 || stmt.Distinct
	if !needsMerge {
		return nil
	}

	var workerList []*query.ValueExpr
	var mergeList []string
	for i, ve := range stmt.SelectList {
		if !ve.IsAggregate() {
			workerList = append(workerList, ve)
			mergeList = append(mergeList, "`"+ve.ResultName()+"`")
			continue
		}

		worker, merge, err := splitAggregate(i, ve)
		if err != nil {
			return err
		}
		workerList = append(workerList, worker...)
		mergeList = append(mergeList, merge)
	}
	stmt.SelectList = workerList

	var mergeGroupBy []string
	for _, ve := range stmt.GroupBy {
		mergeGroupBy = append(mergeGroupBy, "`"+groupByResultName(stmt, ve)+"`")
	}

	ctx.Merge = MergePlan{
		NeedsMerge: true,
		SelectList: strings.Join(mergeList, ","),
		GroupBy:    strings.Join(mergeGroupBy, ","),
	}
	return nil
}

// splitAggregate rewrites one aggregate select entry into worker-side
// partials and the merge expression recombining them. Partial columns are
// named QS<i>_<OP> so they cannot collide with user aliases.
func splitAggregate(idx int, ve *query.ValueExpr) ([]*query.ValueExpr, string, error) {
	fn := ve.Factor.Func
	origName := ve.ResultName()
	if fn.Distinct {
		return nil, "", ErrQuery.New("DISTINCT aggregates cannot be split across chunks")
	}

	partial := func(op string) string { return fmt.Sprintf("QS%d_%s", idx+1, op) }

	switch strings.ToUpper(fn.Name) {
	case "COUNT":
		w := ve.Clone()
		w.Alias = partial("COUNT")
		return []*query.ValueExpr{w},
			fmt.Sprintf("SUM(`%s`) AS `%s`", w.Alias, origName), nil
	case "SUM":
		w := ve.Clone()
		w.Alias = partial("SUM")
		return []*query.ValueExpr{w},
			fmt.Sprintf("SUM(`%s`) AS `%s`", w.Alias, origName), nil
	case "MIN":
		w := ve.Clone()
		w.Alias = partial("MIN")
		return []*query.ValueExpr{w},
			fmt.Sprintf("MIN(`%s`) AS `%s`", w.Alias, origName), nil
	case "MAX":
		w := ve.Clone()
		w.Alias = partial("MAX")
		return []*query.ValueExpr{w},
			fmt.Sprintf("MAX(`%s`) AS `%s`", w.Alias, origName), nil
	case "AVG":
		sum := query.NewFuncExpr("SUM", true, cloneArgs(fn)...)
		sum.Alias = partial("SUM")
		count := query.NewFuncExpr("COUNT", true, cloneArgs(fn)...)
		count.Alias = partial("COUNT")
		merge := fmt.Sprintf("(SUM(`%s`)/SUM(`%s`)) AS `%s`", sum.Alias, count.Alias, origName)
		return []*query.ValueExpr{sum, count}, merge, nil
	default:
		return nil, "", ErrQuery.New("aggregate " + fn.Name + " cannot be split across chunks")
	}
}

func cloneArgs(fn *query.FuncExpr) []*query.ValueExpr {
	args := make([]*query.ValueExpr, len(fn.Args))
	for i, arg := range fn.Args {
		args[i] = arg.Clone()
	}
	return args
}

// groupByResultName finds the result-table column name a GROUP BY entry
// refers to: the select alias when the grouped column is selected under
// one, else its own rendered name.
func groupByResultName(stmt *query.SelectStmt, ge *query.ValueExpr) string {
	gcr := ge.ColumnRef()
	if gcr != nil {
		for _, ve := range stmt.SelectList {
			if cr := ve.ColumnRef(); cr != nil && cr.Equal(gcr) {
				return ve.ResultName()
			}
		}
		return gcr.Column
	}
	return ge.ResultName()
}
