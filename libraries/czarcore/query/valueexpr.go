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

import "strings"

// ValueFactorType discriminates the variants of a ValueFactor.
type ValueFactorType int

const (
	ColumnValue ValueFactorType = iota
	ConstValue
	StarValue
	FuncValue
	AggValue
	ExprValue
)

// FuncExpr is a function application, aggregate or plain.
type FuncExpr struct {
	Name     string
	Args     []*ValueExpr
	Distinct bool
}

func (fe *FuncExpr) Clone() *FuncExpr {
	if fe == nil {
		return nil
	}
	c := &FuncExpr{Name: fe.Name, Distinct: fe.Distinct}
	for _, arg := range fe.Args {
		c.Args = append(c.Args, arg.Clone())
	}
	return c
}

func (fe *FuncExpr) Equal(other *FuncExpr) bool {
	if fe == nil || other == nil {
		return fe == other
	}
	if !strings.EqualFold(fe.Name, other.Name) || fe.Distinct != other.Distinct ||
		len(fe.Args) != len(other.Args) {
		return false
	}
	for i := range fe.Args {
		if !fe.Args[i].Equal(other.Args[i]) {
			return false
		}
	}
	return true
}

func (fe *FuncExpr) Render(qt *QueryTemplate) {
	qt.Append(fe.Name, "(")
	if fe.Distinct {
		qt.Append("DISTINCT")
	}
	for i, arg := range fe.Args {
		if i > 0 {
			qt.Append(",")
		}
		arg.Render(qt)
	}
	qt.Append(")")
}

// ValueFactor is one multiplicative factor of a value expression: a column,
// a constant, a star, a function or aggregate application, or an arbitrary
// opaque expression carried through verbatim.
type ValueFactor struct {
	Type      ValueFactorType
	ColumnRef *ColumnRef
	Const     string
	Func      *FuncExpr
	Expr      string // ExprValue: raw SQL carried through
}

func (vf *ValueFactor) Clone() *ValueFactor {
	if vf == nil {
		return nil
	}
	return &ValueFactor{
		Type:      vf.Type,
		ColumnRef: vf.ColumnRef.Clone(),
		Const:     vf.Const,
		Func:      vf.Func.Clone(),
		Expr:      vf.Expr,
	}
}

func (vf *ValueFactor) Equal(other *ValueFactor) bool {
	if vf == nil || other == nil {
		return vf == other
	}
	return vf.Type == other.Type &&
		vf.ColumnRef.Equal(other.ColumnRef) &&
		vf.Const == other.Const &&
		vf.Func.Equal(other.Func) &&
		vf.Expr == other.Expr
}

func (vf *ValueFactor) Render(qt *QueryTemplate) {
	switch vf.Type {
	case ColumnValue:
		vf.ColumnRef.Render(qt)
	case ConstValue:
		qt.Append(vf.Const)
	case StarValue:
		if vf.ColumnRef != nil && vf.ColumnRef.Table != "" {
			qt.Append(vf.ColumnRef.Table + ".*")
		} else {
			qt.Append("*")
		}
	case FuncValue, AggValue:
		vf.Func.Render(qt)
	case ExprValue:
		qt.Append(vf.Expr)
	}
}

// ValueExpr is a single value-producing expression with an optional alias.
type ValueExpr struct {
	Factor *ValueFactor
	Alias  string
}

// NewColumnExpr builds a ValueExpr over a single column reference.
func NewColumnExpr(db, table, column string) *ValueExpr {
	return &ValueExpr{Factor: &ValueFactor{Type: ColumnValue, ColumnRef: NewColumnRef(db, table, column)}}
}

// NewConstExpr builds a ValueExpr over a literal.
func NewConstExpr(lit string) *ValueExpr {
	return &ValueExpr{Factor: &ValueFactor{Type: ConstValue, Const: lit}}
}

// NewStarExpr builds the "*" (or "t.*") expression.
func NewStarExpr(table string) *ValueExpr {
	vf := &ValueFactor{Type: StarValue}
	if table != "" {
		vf.ColumnRef = NewColumnRef("", table, "")
	}
	return &ValueExpr{Factor: vf}
}

// NewFuncExpr builds a function application expression. agg marks SQL
// aggregates, which the aggregation plugin splits across workers.
func NewFuncExpr(name string, agg bool, args ...*ValueExpr) *ValueExpr {
	typ := FuncValue
	if agg {
		typ = AggValue
	}
	return &ValueExpr{Factor: &ValueFactor{Type: typ, Func: &FuncExpr{Name: name, Args: args}}}
}

func (ve *ValueExpr) Clone() *ValueExpr {
	if ve == nil {
		return nil
	}
	return &ValueExpr{Factor: ve.Factor.Clone(), Alias: ve.Alias}
}

func (ve *ValueExpr) Equal(other *ValueExpr) bool {
	if ve == nil || other == nil {
		return ve == other
	}
	return ve.Alias == other.Alias && ve.Factor.Equal(other.Factor)
}

// IsAggregate reports whether the expression is an aggregate application.
func (ve *ValueExpr) IsAggregate() bool {
	return ve.Factor != nil && ve.Factor.Type == AggValue
}

// IsStar reports whether the expression is "*" or "t.*".
func (ve *ValueExpr) IsStar() bool {
	return ve.Factor != nil && ve.Factor.Type == StarValue
}

// ColumnRef returns the column this expression references directly, or nil.
func (ve *ValueExpr) ColumnRef() *ColumnRef {
	if ve.Factor != nil && ve.Factor.Type == ColumnValue {
		return ve.Factor.ColumnRef
	}
	return nil
}

// VisitColumnRefs calls f for every column reference in the expression.
func (ve *ValueExpr) VisitColumnRefs(f func(*ColumnRef)) {
	if ve == nil || ve.Factor == nil {
		return
	}
	switch ve.Factor.Type {
	case ColumnValue:
		f(ve.Factor.ColumnRef)
	case FuncValue, AggValue:
		for _, arg := range ve.Factor.Func.Args {
			arg.VisitColumnRefs(f)
		}
	}
}

// Render emits the expression without its alias.
func (ve *ValueExpr) Render(qt *QueryTemplate) {
	ve.Factor.Render(qt)
}

// RenderWithAlias emits the expression including an AS clause if aliased.
func (ve *ValueExpr) RenderWithAlias(qt *QueryTemplate) {
	ve.Factor.Render(qt)
	if ve.Alias != "" {
		qt.Append("AS", "`"+ve.Alias+"`")
	}
}

// ResultName returns the name the expression's column has in a result
// table: the alias if present, the bare column name for plain column
// references, else the rendered expression.
func (ve *ValueExpr) ResultName() string {
	if ve.Alias != "" {
		return ve.Alias
	}
	if cr := ve.ColumnRef(); cr != nil {
		return cr.Column
	}
	var qt QueryTemplate
	ve.Render(&qt)
	return qt.String()
}
