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

// SecIndexPlugin rewrites director-key predicates into secondary-index
// restrictors. A top-level conjunct of the form key=const, key IN (...) or
// key BETWEEN a AND b over a director key column is removed from the
// predicate tree; chunk enumeration then hits the director index instead
// of scanning.
type SecIndexPlugin struct{}

func (*SecIndexPlugin) Name() string              { return "sec-index" }
func (*SecIndexPlugin) Phase() Phase              { return PhaseAnalyze }
func (*SecIndexPlugin) NeedsResolvedTables() bool { return true }

func (p *SecIndexPlugin) Apply(ctx *QueryContext, stmt *query.SelectStmt) error {
	if stmt.Where == nil || stmt.Where.Tree == nil {
		return nil
	}

	var conjuncts []query.BoolTerm
	if and, ok := stmt.Where.Tree.(*query.AndTerm); ok {
		conjuncts = and.Terms
	} else {
		conjuncts = []query.BoolTerm{stmt.Where.Tree}
	}

	var kept []query.BoolTerm
	for _, term := range conjuncts {
		restr, err := p.extract(ctx, term)
		if err != nil {
			return err
		}
		if restr == nil {
			kept = append(kept, term)
			continue
		}
		stmt.Where.Restrictors = append(stmt.Where.Restrictors, restr)
		ctx.SecIdxRestrictors = append(ctx.SecIdxRestrictors, restr)
	}

	switch len(kept) {
	case 0:
		stmt.Where.Tree = nil
	case 1:
		stmt.Where.Tree = kept[0]
	default:
		stmt.Where.Tree = &query.AndTerm{Terms: kept}
	}
	return nil
}

// extract returns the restrictor a conjunct amounts to, or nil when the
// conjunct is not a director-key lookup.
func (p *SecIndexPlugin) extract(ctx *QueryContext, term query.BoolTerm) (*query.SecIdxRestrictor, error) {
	bf, ok := term.(*query.BoolFactor)
	if !ok || len(bf.Terms) != 1 {
		return nil, nil
	}

	switch pred := bf.Terms[0].(type) {
	case *query.CompPredicate:
		if pred.Op != "=" {
			return nil, nil
		}
		if cr, val := columnAndConst(pred.Left, pred.Right); cr != nil {
			return p.restrictorFor(ctx, cr, query.SecIdxEqual, []string{val})
		}
		if cr, val := columnAndConst(pred.Right, pred.Left); cr != nil {
			return p.restrictorFor(ctx, cr, query.SecIdxEqual, []string{val})
		}
	case *query.InPredicate:
		if pred.HasNot {
			return nil, nil
		}
		cr := pred.Value.ColumnRef()
		if cr == nil {
			return nil, nil
		}
		var vals []string
		for _, cand := range pred.Cands {
			c := constText(cand)
			if c == "" {
				return nil, nil
			}
			vals = append(vals, c)
		}
		return p.restrictorFor(ctx, cr, query.SecIdxIn, vals)
	case *query.BetweenPredicate:
		if pred.HasNot {
			return nil, nil
		}
		cr := pred.Value.ColumnRef()
		min, max := constText(pred.Min), constText(pred.Max)
		if cr == nil || min == "" || max == "" {
			return nil, nil
		}
		return p.restrictorFor(ctx, cr, query.SecIdxBetween, []string{min, max})
	}
	return nil, nil
}

func (p *SecIndexPlugin) restrictorFor(ctx *QueryContext, cr *query.ColumnRef, op query.SecIdxOp, vals []string) (*query.SecIdxRestrictor, error) {
	tr, ok := ctx.ResolvedTable(cr.Table)
	if !ok {
		return nil, nil
	}

	secCols, err := ctx.Css.GetSecIndexColNames(tr.Db, tr.Table)
	if err != nil {
		return nil, err
	}
	for _, col := range secCols {
		if col != cr.Column {
			continue
		}
		dirTable, err := ctx.Css.GetDirTable(tr.Db, tr.Table)
		if err != nil {
			return nil, err
		}
		ctx.SecIdxDb = tr.Db
		ctx.SecIdxTable = dirTable
		return &query.SecIdxRestrictor{Column: cr.Clone(), Op: op, Values: vals}, nil
	}
	return nil, nil
}

func columnAndConst(a, b *query.ValueExpr) (*query.ColumnRef, string) {
	cr := a.ColumnRef()
	if cr == nil {
		return nil, ""
	}
	val := constText(b)
	if val == "" {
		return nil, ""
	}
	return cr, val
}

func constText(ve *query.ValueExpr) string {
	if ve != nil && ve.Factor != nil && ve.Factor.Type == query.ConstValue {
		return ve.Factor.Const
	}
	return ""
}
