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

// Operator precedence levels, used to decide where parentheses are needed
// when a term is rendered inside another term.
const (
	UnknownPrecedence = iota
	OrPrecedence
	AndPrecedence
	OtherPrecedence
)

// BoolTerm is a boolean-valued term of a WHERE or HAVING clause.
type BoolTerm interface {
	// OpPrecedence returns the binding strength of this term's operator.
	OpPrecedence() int

	// Render serializes the term onto qt.
	Render(qt *QueryTemplate)

	// Clone makes a deep copy.
	Clone() BoolTerm

	// Equal compares structurally.
	Equal(other BoolTerm) bool

	// VisitColumnRefs calls f for every column reference in the term.
	VisitColumnRefs(f func(*ColumnRef))
}

// OrTerm is a disjunction of terms.
type OrTerm struct {
	Terms []BoolTerm
}

// AndTerm is a conjunction of terms.
type AndTerm struct {
	Terms []BoolTerm
}

// BoolFactor is a leaf-level conjunction operand: a sequence of factor
// terms rendered adjacently.
type BoolFactor struct {
	Terms []BoolFactorTerm
}

// UnknownTerm wraps a term of unknown precedence; it always renders with
// parentheses.
type UnknownTerm struct {
	Child BoolTerm
}

func (t *OrTerm) OpPrecedence() int      { return OrPrecedence }
func (t *AndTerm) OpPrecedence() int     { return AndPrecedence }
func (t *BoolFactor) OpPrecedence() int  { return OtherPrecedence }
func (t *UnknownTerm) OpPrecedence() int { return UnknownPrecedence }

func renderList(qt *QueryTemplate, parentPrec int, terms []BoolTerm, sep string) {
	for i, term := range terms {
		if i > 0 {
			qt.Append(sep)
		}
		paren := term.OpPrecedence() < parentPrec
		if paren {
			qt.Append("(")
		}
		term.Render(qt)
		if paren {
			qt.Append(")")
		}
	}
}

func (t *OrTerm) Render(qt *QueryTemplate) {
	renderList(qt, t.OpPrecedence(), t.Terms, "OR")
}

func (t *AndTerm) Render(qt *QueryTemplate) {
	renderList(qt, t.OpPrecedence(), t.Terms, "AND")
}

func (t *BoolFactor) Render(qt *QueryTemplate) {
	for _, f := range t.Terms {
		f.Render(qt)
	}
}

func (t *UnknownTerm) Render(qt *QueryTemplate) {
	qt.Append("(")
	t.Child.Render(qt)
	qt.Append(")")
}

func cloneTerms(terms []BoolTerm) []BoolTerm {
	if terms == nil {
		return nil
	}
	out := make([]BoolTerm, len(terms))
	for i, t := range terms {
		out[i] = t.Clone()
	}
	return out
}

func (t *OrTerm) Clone() BoolTerm  { return &OrTerm{Terms: cloneTerms(t.Terms)} }
func (t *AndTerm) Clone() BoolTerm { return &AndTerm{Terms: cloneTerms(t.Terms)} }

func (t *BoolFactor) Clone() BoolTerm {
	c := &BoolFactor{}
	for _, f := range t.Terms {
		c.Terms = append(c.Terms, f.Clone())
	}
	return c
}

func (t *UnknownTerm) Clone() BoolTerm { return &UnknownTerm{Child: t.Child.Clone()} }

func equalTerms(a, b []BoolTerm) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

func (t *OrTerm) Equal(other BoolTerm) bool {
	o, ok := other.(*OrTerm)
	return ok && equalTerms(t.Terms, o.Terms)
}

func (t *AndTerm) Equal(other BoolTerm) bool {
	o, ok := other.(*AndTerm)
	return ok && equalTerms(t.Terms, o.Terms)
}

func (t *BoolFactor) Equal(other BoolTerm) bool {
	o, ok := other.(*BoolFactor)
	if !ok || len(t.Terms) != len(o.Terms) {
		return false
	}
	for i := range t.Terms {
		if !t.Terms[i].Equal(o.Terms[i]) {
			return false
		}
	}
	return true
}

func (t *UnknownTerm) Equal(other BoolTerm) bool {
	o, ok := other.(*UnknownTerm)
	return ok && t.Child.Equal(o.Child)
}

func (t *OrTerm) VisitColumnRefs(f func(*ColumnRef)) {
	for _, term := range t.Terms {
		term.VisitColumnRefs(f)
	}
}

func (t *AndTerm) VisitColumnRefs(f func(*ColumnRef)) {
	for _, term := range t.Terms {
		term.VisitColumnRefs(f)
	}
}

func (t *BoolFactor) VisitColumnRefs(f func(*ColumnRef)) {
	for _, term := range t.Terms {
		term.VisitColumnRefs(f)
	}
}

func (t *UnknownTerm) VisitColumnRefs(f func(*ColumnRef)) {
	t.Child.VisitColumnRefs(f)
}

// NewAndedTerm returns a term equivalent to "left AND right", merging into
// an existing conjunction when possible. Either side may be nil.
func NewAndedTerm(left, right BoolTerm) BoolTerm {
	if left == nil {
		return right
	}
	if right == nil {
		return left
	}
	if and, ok := left.(*AndTerm); ok {
		and.Terms = append(and.Terms, right)
		return and
	}
	return &AndTerm{Terms: []BoolTerm{left, right}}
}
