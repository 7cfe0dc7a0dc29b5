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

// BoolFactorTerm is one operand inside a BoolFactor.
type BoolFactorTerm interface {
	Render(qt *QueryTemplate)
	Clone() BoolFactorTerm
	Equal(other BoolFactorTerm) bool
	VisitColumnRefs(f func(*ColumnRef))
}

// PassTerm carries a token through unexamined.
type PassTerm struct {
	Text string
}

func (t *PassTerm) Render(qt *QueryTemplate)  { qt.Append(t.Text) }
func (t *PassTerm) Clone() BoolFactorTerm     { c := *t; return &c }
func (t *PassTerm) VisitColumnRefs(func(*ColumnRef)) {}

func (t *PassTerm) Equal(other BoolFactorTerm) bool {
	o, ok := other.(*PassTerm)
	return ok && t.Text == o.Text
}

// PassListTerm carries a parenthesized comma-separated list through
// unexamined.
type PassListTerm struct {
	Texts []string
}

func (t *PassListTerm) Render(qt *QueryTemplate) {
	qt.Append("(")
	for i, text := range t.Texts {
		if i > 0 {
			qt.Append(",")
		}
		qt.Append(text)
	}
	qt.Append(")")
}

func (t *PassListTerm) Clone() BoolFactorTerm {
	return &PassListTerm{Texts: append([]string(nil), t.Texts...)}
}

func (t *PassListTerm) Equal(other BoolFactorTerm) bool {
	o, ok := other.(*PassListTerm)
	if !ok || len(t.Texts) != len(o.Texts) {
		return false
	}
	for i := range t.Texts {
		if t.Texts[i] != o.Texts[i] {
			return false
		}
	}
	return true
}

func (t *PassListTerm) VisitColumnRefs(func(*ColumnRef)) {}

// BoolTermFactor embeds a BoolTerm as a factor term, rendering it in
// parentheses when its precedence is weaker.
type BoolTermFactor struct {
	Term BoolTerm
}

func (t *BoolTermFactor) Render(qt *QueryTemplate) {
	paren := t.Term.OpPrecedence() < OtherPrecedence
	if paren {
		qt.Append("(")
	}
	t.Term.Render(qt)
	if paren {
		qt.Append(")")
	}
}

func (t *BoolTermFactor) Clone() BoolFactorTerm { return &BoolTermFactor{Term: t.Term.Clone()} }

func (t *BoolTermFactor) Equal(other BoolFactorTerm) bool {
	o, ok := other.(*BoolTermFactor)
	return ok && t.Term.Equal(o.Term)
}

func (t *BoolTermFactor) VisitColumnRefs(f func(*ColumnRef)) { t.Term.VisitColumnRefs(f) }

// CompPredicate is a binary comparison.
type CompPredicate struct {
	Left  *ValueExpr
	Op    string // =, <>, !=, <, >, <=, >=, LIKE, NOT LIKE
	Right *ValueExpr
}

func (t *CompPredicate) Render(qt *QueryTemplate) {
	t.Left.Render(qt)
	qt.Append(t.Op)
	t.Right.Render(qt)
}

func (t *CompPredicate) Clone() BoolFactorTerm {
	return &CompPredicate{Left: t.Left.Clone(), Op: t.Op, Right: t.Right.Clone()}
}

func (t *CompPredicate) Equal(other BoolFactorTerm) bool {
	o, ok := other.(*CompPredicate)
	return ok && t.Op == o.Op && t.Left.Equal(o.Left) && t.Right.Equal(o.Right)
}

func (t *CompPredicate) VisitColumnRefs(f func(*ColumnRef)) {
	t.Left.VisitColumnRefs(f)
	t.Right.VisitColumnRefs(f)
}

// NullPredicate is "expr IS [NOT] NULL".
type NullPredicate struct {
	Value  *ValueExpr
	HasNot bool
}

func (t *NullPredicate) Render(qt *QueryTemplate) {
	t.Value.Render(qt)
	qt.Append("IS")
	if t.HasNot {
		qt.Append("NOT")
	}
	qt.Append("NULL")
}

func (t *NullPredicate) Clone() BoolFactorTerm {
	return &NullPredicate{Value: t.Value.Clone(), HasNot: t.HasNot}
}

func (t *NullPredicate) Equal(other BoolFactorTerm) bool {
	o, ok := other.(*NullPredicate)
	return ok && t.HasNot == o.HasNot && t.Value.Equal(o.Value)
}

func (t *NullPredicate) VisitColumnRefs(f func(*ColumnRef)) { t.Value.VisitColumnRefs(f) }

// BetweenPredicate is "expr [NOT] BETWEEN min AND max".
type BetweenPredicate struct {
	Value  *ValueExpr
	Min    *ValueExpr
	Max    *ValueExpr
	HasNot bool
}

func (t *BetweenPredicate) Render(qt *QueryTemplate) {
	t.Value.Render(qt)
	if t.HasNot {
		qt.Append("NOT")
	}
	qt.Append("BETWEEN")
	t.Min.Render(qt)
	qt.Append("AND")
	t.Max.Render(qt)
}

func (t *BetweenPredicate) Clone() BoolFactorTerm {
	return &BetweenPredicate{
		Value:  t.Value.Clone(),
		Min:    t.Min.Clone(),
		Max:    t.Max.Clone(),
		HasNot: t.HasNot,
	}
}

func (t *BetweenPredicate) Equal(other BoolFactorTerm) bool {
	o, ok := other.(*BetweenPredicate)
	return ok && t.HasNot == o.HasNot &&
		t.Value.Equal(o.Value) && t.Min.Equal(o.Min) && t.Max.Equal(o.Max)
}

func (t *BetweenPredicate) VisitColumnRefs(f func(*ColumnRef)) {
	t.Value.VisitColumnRefs(f)
	t.Min.VisitColumnRefs(f)
	t.Max.VisitColumnRefs(f)
}

// InPredicate is "expr [NOT] IN (cand, ...)".
type InPredicate struct {
	Value  *ValueExpr
	Cands  []*ValueExpr
	HasNot bool
}

func (t *InPredicate) Render(qt *QueryTemplate) {
	t.Value.Render(qt)
	if t.HasNot {
		qt.Append("NOT")
	}
	qt.Append("IN", "(")
	for i, cand := range t.Cands {
		if i > 0 {
			qt.Append(",")
		}
		cand.Render(qt)
	}
	qt.Append(")")
}

func (t *InPredicate) Clone() BoolFactorTerm {
	c := &InPredicate{Value: t.Value.Clone(), HasNot: t.HasNot}
	for _, cand := range t.Cands {
		c.Cands = append(c.Cands, cand.Clone())
	}
	return c
}

func (t *InPredicate) Equal(other BoolFactorTerm) bool {
	o, ok := other.(*InPredicate)
	if !ok || t.HasNot != o.HasNot || !t.Value.Equal(o.Value) || len(t.Cands) != len(o.Cands) {
		return false
	}
	for i := range t.Cands {
		if !t.Cands[i].Equal(o.Cands[i]) {
			return false
		}
	}
	return true
}

func (t *InPredicate) VisitColumnRefs(f func(*ColumnRef)) {
	t.Value.VisitColumnRefs(f)
	for _, cand := range t.Cands {
		cand.VisitColumnRefs(f)
	}
}
