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

// Package parse converts SQL text into the query IR. The heavy lifting is
// done by the vitess parser; this package maps its AST onto the IR node
// set and extracts spatial restrictor functions from the predicate tree.
package parse

import (
	"strconv"
	"strings"

	"github.com/dolthub/vitess/go/vt/sqlparser"
	errkind "gopkg.in/src-d/go-errors.v1"

	"github.com/parsecdb/parsec/libraries/czarcore/query"
)

// ErrParse is returned for statements the IR cannot represent, wrapping
// the parser's own syntax errors as well.
var ErrParse = errkind.NewKind("parse: %s")

// areaSpecPrefix marks spatial restrictor pseudo-functions in user SQL,
// e.g. areaspec_box(lonMin,latMin,lonMax,latMax).
const areaSpecPrefix = "areaspec_"

// Select parses sql, which must be a single SELECT statement, into the IR.
func Select(sql string) (*query.SelectStmt, error) {
	stmt, err := sqlparser.Parse(sql)
	if err != nil {
		return nil, ErrParse.New(err.Error())
	}

	sel, ok := stmt.(*sqlparser.Select)
	if !ok {
		return nil, ErrParse.New("only SELECT statements are supported")
	}
	return convertSelect(sel)
}

func convertSelect(sel *sqlparser.Select) (*query.SelectStmt, error) {
	ss := query.NewSelectStmt()
	ss.Distinct = sel.QueryOpts.Distinct

	for _, se := range sel.SelectExprs {
		ve, err := convertSelectExpr(se)
		if err != nil {
			return nil, err
		}
		ss.SelectList = append(ss.SelectList, ve)
	}

	for _, te := range sel.From {
		tr, err := convertTableExpr(te)
		if err != nil {
			return nil, err
		}
		ss.From = append(ss.From, tr)
	}

	if sel.Where != nil {
		wc := &query.WhereClause{}
		tree, restrs, err := convertWhere(sel.Where.Expr)
		if err != nil {
			return nil, err
		}
		wc.Tree = tree
		wc.Restrictors = restrs
		if wc.Tree != nil || len(wc.Restrictors) > 0 {
			ss.Where = wc
		}
	}

	for _, ge := range sel.GroupBy {
		ve, err := convertValueExpr(ge)
		if err != nil {
			return nil, err
		}
		ss.GroupBy = append(ss.GroupBy, ve)
	}

	if sel.Having != nil {
		tree, err := convertBoolExpr(sel.Having.Expr)
		if err != nil {
			return nil, err
		}
		ss.Having = tree
	}

	for _, oe := range sel.OrderBy {
		ve, err := convertValueExpr(oe.Expr)
		if err != nil {
			return nil, err
		}
		ss.OrderBy = append(ss.OrderBy, query.OrderTerm{Expr: ve, Desc: oe.Direction == sqlparser.DescScr})
	}

	if sel.Limit != nil {
		limit, err := convertLimit(sel.Limit)
		if err != nil {
			return nil, err
		}
		ss.Limit = limit
	}

	return ss, nil
}

func convertLimit(limit *sqlparser.Limit) (int64, error) {
	val, ok := limit.Rowcount.(*sqlparser.SQLVal)
	if !ok || val.Type != sqlparser.IntVal {
		return 0, ErrParse.New("LIMIT requires an integer literal")
	}
	n, err := strconv.ParseInt(string(val.Val), 10, 64)
	if err != nil || n < 0 {
		return 0, ErrParse.New("bad LIMIT value " + string(val.Val))
	}
	if limit.Offset != nil {
		return 0, ErrParse.New("LIMIT with OFFSET is not supported")
	}
	return n, nil
}

func convertSelectExpr(se sqlparser.SelectExpr) (*query.ValueExpr, error) {
	switch se := se.(type) {
	case *sqlparser.StarExpr:
		table := ""
		if !se.TableName.IsEmpty() {
			table = se.TableName.Name.String()
		}
		return query.NewStarExpr(table), nil
	case *sqlparser.AliasedExpr:
		ve, err := convertValueExpr(se.Expr)
		if err != nil {
			return nil, err
		}
		if !se.As.IsEmpty() {
			ve.Alias = se.As.String()
		}
		return ve, nil
	default:
		return nil, ErrParse.New("unsupported select expression " + sqlparser.String(se))
	}
}

func convertTableExpr(te sqlparser.TableExpr) (*query.TableRef, error) {
	switch te := te.(type) {
	case *sqlparser.AliasedTableExpr:
		tn, ok := te.Expr.(sqlparser.TableName)
		if !ok {
			return nil, ErrParse.New("subqueries in FROM are not supported")
		}
		return query.NewTableRef(tn.DbQualifier.String(), tn.Name.String(), te.As.String()), nil
	case *sqlparser.JoinTableExpr:
		left, err := convertTableExpr(te.LeftExpr)
		if err != nil {
			return nil, err
		}
		right, err := convertTableExpr(te.RightExpr)
		if err != nil {
			return nil, err
		}
		js := &query.JoinSpec{Type: strings.ToUpper(te.Join), Right: right}
		if te.Condition.On != nil {
			on, err := convertBoolExpr(te.Condition.On)
			if err != nil {
				return nil, err
			}
			js.On = on
		}
		left.Joins = append(left.Joins, js)
		return left, nil
	case *sqlparser.ParenTableExpr:
		if len(te.Exprs) != 1 {
			return nil, ErrParse.New("unsupported parenthesized FROM list")
		}
		return convertTableExpr(te.Exprs[0])
	default:
		return nil, ErrParse.New("unsupported table expression " + sqlparser.String(te))
	}
}

func convertValueExpr(e sqlparser.Expr) (*query.ValueExpr, error) {
	switch e := e.(type) {
	case *sqlparser.ColName:
		return query.NewColumnExpr(
			e.Qualifier.DbQualifier.String(),
			e.Qualifier.Name.String(),
			e.Name.String()), nil
	case *sqlparser.SQLVal:
		return query.NewConstExpr(literalText(e)), nil
	case *sqlparser.NullVal:
		return query.NewConstExpr("NULL"), nil
	case sqlparser.BoolVal:
		if e {
			return query.NewConstExpr("TRUE"), nil
		}
		return query.NewConstExpr("FALSE"), nil
	case *sqlparser.FuncExpr:
		return convertFuncExpr(e)
	case *sqlparser.ParenExpr:
		return convertValueExpr(e.Expr)
	default:
		// carried through verbatim; the rewriter treats it as opaque
		return &query.ValueExpr{
			Factor: &query.ValueFactor{Type: query.ExprValue, Expr: sqlparser.String(e)},
		}, nil
	}
}

func convertFuncExpr(e *sqlparser.FuncExpr) (*query.ValueExpr, error) {
	name := e.Name.String()
	args := make([]*query.ValueExpr, 0, len(e.Exprs))
	for _, se := range e.Exprs {
		arg, err := convertSelectExpr(se)
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
	}

	ve := query.NewFuncExpr(strings.ToUpper(name), e.IsAggregate(), args...)
	ve.Factor.Func.Distinct = e.Distinct
	return ve, nil
}

func literalText(v *sqlparser.SQLVal) string {
	switch v.Type {
	case sqlparser.StrVal:
		return "'" + strings.ReplaceAll(string(v.Val), "'", "''") + "'"
	default:
		return string(v.Val)
	}
}

// convertWhere converts the WHERE expression, pulling areaspec restrictor
// functions out of the top-level conjunction.
func convertWhere(e sqlparser.Expr) (query.BoolTerm, []query.Restrictor, error) {
	var restrs []query.Restrictor
	var terms []query.BoolTerm

	for _, conj := range splitAnd(e) {
		if fn, ok := conj.(*sqlparser.FuncExpr); ok {
			if r, ok, err := convertAreaSpec(fn); err != nil {
				return nil, nil, err
			} else if ok {
				restrs = append(restrs, r)
				continue
			}
		}
		term, err := convertBoolExpr(conj)
		if err != nil {
			return nil, nil, err
		}
		terms = append(terms, term)
	}

	switch len(terms) {
	case 0:
		return nil, restrs, nil
	case 1:
		return terms[0], restrs, nil
	default:
		return &query.AndTerm{Terms: terms}, restrs, nil
	}
}

func splitAnd(e sqlparser.Expr) []sqlparser.Expr {
	if and, ok := e.(*sqlparser.AndExpr); ok {
		return append(splitAnd(and.Left), splitAnd(and.Right)...)
	}
	return []sqlparser.Expr{e}
}

func convertAreaSpec(fn *sqlparser.FuncExpr) (*query.AreaRestrictor, bool, error) {
	name := strings.ToLower(fn.Name.String())
	if !strings.HasPrefix(name, areaSpecPrefix) {
		return nil, false, nil
	}
	shape, ok := query.AreaShapeFromName(strings.TrimPrefix(name, areaSpecPrefix))
	if !ok {
		return nil, false, ErrParse.New("unknown area restrictor " + name)
	}

	params := make([]float64, 0, len(fn.Exprs))
	for _, se := range fn.Exprs {
		ae, ok := se.(*sqlparser.AliasedExpr)
		if !ok {
			return nil, false, ErrParse.New("bad argument to " + name)
		}
		val, ok := ae.Expr.(*sqlparser.SQLVal)
		if !ok || (val.Type != sqlparser.IntVal && val.Type != sqlparser.FloatVal) {
			return nil, false, ErrParse.New(name + " arguments must be numeric literals")
		}
		f, err := strconv.ParseFloat(string(val.Val), 64)
		if err != nil {
			return nil, false, ErrParse.New("bad numeric literal " + string(val.Val))
		}
		params = append(params, f)
	}
	return &query.AreaRestrictor{Shape: shape, Params: params}, true, nil
}

func convertBoolExpr(e sqlparser.Expr) (query.BoolTerm, error) {
	switch e := e.(type) {
	case *sqlparser.OrExpr:
		var terms []query.BoolTerm
		for _, sub := range splitOr(e) {
			term, err := convertBoolExpr(sub)
			if err != nil {
				return nil, err
			}
			terms = append(terms, term)
		}
		return &query.OrTerm{Terms: terms}, nil
	case *sqlparser.AndExpr:
		var terms []query.BoolTerm
		for _, sub := range splitAnd(e) {
			term, err := convertBoolExpr(sub)
			if err != nil {
				return nil, err
			}
			terms = append(terms, term)
		}
		return &query.AndTerm{Terms: terms}, nil
	case *sqlparser.ParenExpr:
		inner, err := convertBoolExpr(e.Expr)
		if err != nil {
			return nil, err
		}
		return &query.BoolFactor{Terms: []query.BoolFactorTerm{&query.BoolTermFactor{Term: inner}}}, nil
	case *sqlparser.NotExpr:
		inner, err := convertBoolExpr(e.Expr)
		if err != nil {
			return nil, err
		}
		return &query.BoolFactor{Terms: []query.BoolFactorTerm{
			&query.PassTerm{Text: "NOT"},
			&query.BoolTermFactor{Term: inner},
		}}, nil
	default:
		factor, err := convertFactorTerm(e)
		if err != nil {
			return nil, err
		}
		return &query.BoolFactor{Terms: []query.BoolFactorTerm{factor}}, nil
	}
}

func splitOr(e sqlparser.Expr) []sqlparser.Expr {
	if or, ok := e.(*sqlparser.OrExpr); ok {
		return append(splitOr(or.Left), splitOr(or.Right)...)
	}
	return []sqlparser.Expr{e}
}

func convertFactorTerm(e sqlparser.Expr) (query.BoolFactorTerm, error) {
	switch e := e.(type) {
	case *sqlparser.ComparisonExpr:
		return convertComparison(e)
	case *sqlparser.RangeCond:
		value, err := convertValueExpr(e.Left)
		if err != nil {
			return nil, err
		}
		min, err := convertValueExpr(e.From)
		if err != nil {
			return nil, err
		}
		max, err := convertValueExpr(e.To)
		if err != nil {
			return nil, err
		}
		return &query.BetweenPredicate{
			Value:  value,
			Min:    min,
			Max:    max,
			HasNot: e.Operator == sqlparser.NotBetweenStr,
		}, nil
	case *sqlparser.IsExpr:
		switch e.Operator {
		case sqlparser.IsNullStr, sqlparser.IsNotNullStr:
			value, err := convertValueExpr(e.Expr)
			if err != nil {
				return nil, err
			}
			return &query.NullPredicate{Value: value, HasNot: e.Operator == sqlparser.IsNotNullStr}, nil
		}
		return &query.PassTerm{Text: sqlparser.String(e)}, nil
	default:
		return &query.PassTerm{Text: sqlparser.String(e)}, nil
	}
}

func convertComparison(e *sqlparser.ComparisonExpr) (query.BoolFactorTerm, error) {
	switch e.Operator {
	case sqlparser.InStr, sqlparser.NotInStr:
		value, err := convertValueExpr(e.Left)
		if err != nil {
			return nil, err
		}
		tuple, ok := e.Right.(sqlparser.ValTuple)
		if !ok {
			return nil, ErrParse.New("IN requires a literal list")
		}
		in := &query.InPredicate{Value: value, HasNot: e.Operator == sqlparser.NotInStr}
		for _, cand := range tuple {
			cv, err := convertValueExpr(cand)
			if err != nil {
				return nil, err
			}
			in.Cands = append(in.Cands, cv)
		}
		return in, nil
	default:
		left, err := convertValueExpr(e.Left)
		if err != nil {
			return nil, err
		}
		right, err := convertValueExpr(e.Right)
		if err != nil {
			return nil, err
		}
		return &query.CompPredicate{Left: left, Op: strings.ToUpper(e.Operator), Right: right}, nil
	}
}
