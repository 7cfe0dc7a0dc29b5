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

package query

import "strconv"

// WhereClause pairs the predicate tree with the restrictors extracted from
// it during analysis.
type WhereClause struct {
	Restrictors []Restrictor
	Tree        BoolTerm
}

func (wc *WhereClause) Clone() *WhereClause {
	if wc == nil {
		return nil
	}
	c := &WhereClause{}
	for _, r := range wc.Restrictors {
		switch r := r.(type) {
		case *AreaRestrictor:
			c.Restrictors = append(c.Restrictors, r.Clone())
		case *SecIdxRestrictor:
			c.Restrictors = append(c.Restrictors, r.Clone())
		}
	}
	if wc.Tree != nil {
		c.Tree = wc.Tree.Clone()
	}
	return c
}

// OrderTerm is one ORDER BY entry.
type OrderTerm struct {
	Expr *ValueExpr
	Desc bool
}

func (ot OrderTerm) Clone() OrderTerm {
	return OrderTerm{Expr: ot.Expr.Clone(), Desc: ot.Desc}
}

func (ot OrderTerm) Equal(other OrderTerm) bool {
	return ot.Desc == other.Desc && ot.Expr.Equal(other.Expr)
}

// NoLimit is the Limit value of a statement without a LIMIT clause.
const NoLimit = int64(-1)

// SelectStmt is the IR of one SELECT statement. It is deep-copyable so the
// analysis pipeline can derive the per-worker and merge statements without
// mutating trees still referenced elsewhere.
type SelectStmt struct {
	Distinct   bool
	SelectList []*ValueExpr
	From       []*TableRef
	Where      *WhereClause
	GroupBy    []*ValueExpr
	Having     BoolTerm
	OrderBy    []OrderTerm
	Limit      int64
}

func NewSelectStmt() *SelectStmt {
	return &SelectStmt{Limit: NoLimit}
}

func (ss *SelectStmt) Clone() *SelectStmt {
	c := &SelectStmt{Distinct: ss.Distinct, Limit: ss.Limit}
	for _, ve := range ss.SelectList {
		c.SelectList = append(c.SelectList, ve.Clone())
	}
	for _, tr := range ss.From {
		c.From = append(c.From, tr.Clone())
	}
	c.Where = ss.Where.Clone()
	for _, ve := range ss.GroupBy {
		c.GroupBy = append(c.GroupBy, ve.Clone())
	}
	if ss.Having != nil {
		c.Having = ss.Having.Clone()
	}
	for _, ot := range ss.OrderBy {
		c.OrderBy = append(c.OrderBy, ot.Clone())
	}
	return c
}

func (ss *SelectStmt) Equal(other *SelectStmt) bool {
	if ss == nil || other == nil {
		return ss == other
	}
	if ss.Distinct != other.Distinct || ss.Limit != other.Limit ||
		len(ss.SelectList) != len(other.SelectList) || len(ss.From) != len(other.From) ||
		len(ss.GroupBy) != len(other.GroupBy) || len(ss.OrderBy) != len(other.OrderBy) {
		return false
	}
	for i := range ss.SelectList {
		if !ss.SelectList[i].Equal(other.SelectList[i]) {
			return false
		}
	}
	for i := range ss.From {
		if !ss.From[i].Equal(other.From[i]) {
			return false
		}
	}
	if (ss.Where == nil) != (other.Where == nil) {
		return false
	}
	if ss.Where != nil {
		if (ss.Where.Tree == nil) != (other.Where.Tree == nil) {
			return false
		}
		if ss.Where.Tree != nil && !ss.Where.Tree.Equal(other.Where.Tree) {
			return false
		}
	}
	for i := range ss.GroupBy {
		if !ss.GroupBy[i].Equal(other.GroupBy[i]) {
			return false
		}
	}
	if (ss.Having == nil) != (other.Having == nil) {
		return false
	}
	if ss.Having != nil && !ss.Having.Equal(other.Having) {
		return false
	}
	for i := range ss.OrderBy {
		if !ss.OrderBy[i].Equal(other.OrderBy[i]) {
			return false
		}
	}
	return true
}

// HasAggregate reports whether any select-list entry is an aggregate.
func (ss *SelectStmt) HasAggregate() bool {
	for _, ve := range ss.SelectList {
		if ve.IsAggregate() {
			return true
		}
	}
	return false
}

// VisitColumnRefs calls f for every column reference in the statement.
func (ss *SelectStmt) VisitColumnRefs(f func(*ColumnRef)) {
	for _, ve := range ss.SelectList {
		ve.VisitColumnRefs(f)
	}
	if ss.Where != nil && ss.Where.Tree != nil {
		ss.Where.Tree.VisitColumnRefs(f)
	}
	for _, tr := range ss.From {
		for _, js := range tr.Joins {
			if js.On != nil {
				js.On.VisitColumnRefs(f)
			}
		}
	}
	for _, ve := range ss.GroupBy {
		ve.VisitColumnRefs(f)
	}
	if ss.Having != nil {
		ss.Having.VisitColumnRefs(f)
	}
	for _, ot := range ss.OrderBy {
		ot.Expr.VisitColumnRefs(f)
	}
}

// RenderTo serializes the statement onto qt. opts controls which trailing
// clauses are included; per-chunk fragments omit ORDER BY because fan-out
// does not preserve ordering, and carry LIMIT only when it is pushed down.
func (ss *SelectStmt) RenderTo(qt *QueryTemplate, opts RenderOptions) {
	qt.Append("SELECT")
	if ss.Distinct {
		qt.Append("DISTINCT")
	}
	for i, ve := range ss.SelectList {
		if i > 0 {
			qt.Append(",")
		}
		ve.RenderWithAlias(qt)
	}

	if len(ss.From) > 0 {
		qt.Append("FROM")
		for i, tr := range ss.From {
			if i > 0 {
				qt.Append(",")
			}
			tr.Render(qt)
		}
	}

	if ss.Where != nil && ss.Where.Tree != nil {
		qt.Append("WHERE")
		ss.Where.Tree.Render(qt)
	}

	if len(ss.GroupBy) > 0 {
		qt.Append("GROUP", "BY")
		for i, ve := range ss.GroupBy {
			if i > 0 {
				qt.Append(",")
			}
			ve.Render(qt)
		}
	}

	if ss.Having != nil {
		qt.Append("HAVING")
		ss.Having.Render(qt)
	}

	if opts.WithOrderBy && len(ss.OrderBy) > 0 {
		qt.Append("ORDER", "BY")
		for i, ot := range ss.OrderBy {
			if i > 0 {
				qt.Append(",")
			}
			ot.Expr.Render(qt)
			if ot.Desc {
				qt.Append("DESC")
			}
		}
	}

	if opts.WithLimit && ss.Limit != NoLimit {
		qt.Append("LIMIT", strconv.FormatInt(ss.Limit, 10))
	}
}

// RenderOptions selects which trailing clauses RenderTo includes.
type RenderOptions struct {
	WithOrderBy bool
	WithLimit   bool
}

// RenderAll includes every clause of the statement.
var RenderAll = RenderOptions{WithOrderBy: true, WithLimit: true}

// Template builds the full template for the statement.
func (ss *SelectStmt) Template(opts RenderOptions) *QueryTemplate {
	var qt QueryTemplate
	ss.RenderTo(&qt, opts)
	return &qt
}

// String renders the statement unscoped with all clauses.
func (ss *SelectStmt) String() string {
	return ss.Template(RenderAll).String()
}
