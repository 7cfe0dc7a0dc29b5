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

// JoinSpec is a join attached to a table reference in the FROM list.
type JoinSpec struct {
	Type  string // JOIN, LEFT JOIN, RIGHT JOIN, CROSS JOIN
	Right *TableRef
	On    BoolTerm // nil for ON-less joins
}

func (js *JoinSpec) Clone() *JoinSpec {
	c := &JoinSpec{Type: js.Type, Right: js.Right.Clone()}
	if js.On != nil {
		c.On = js.On.Clone()
	}
	return c
}

func (js *JoinSpec) Equal(other *JoinSpec) bool {
	if js.Type != other.Type || !js.Right.Equal(other.Right) {
		return false
	}
	if (js.On == nil) != (other.On == nil) {
		return false
	}
	return js.On == nil || js.On.Equal(other.On)
}

// TableRef is one entry of the FROM list. Table resolution fills Db and
// ChunkLevel; fragment generation sets Overlap on the full-overlap copy of
// a statement. Both drive how the reference renders per chunk.
type TableRef struct {
	Db    string
	Table string
	Alias string
	Joins []*JoinSpec

	// ChunkLevel mirrors TableEntry: 0 plain, 1 chunked, 2 addressed per
	// sub-chunk in this query.
	ChunkLevel int

	// Overlap selects the full-overlap sub-chunk table in fragment SQL.
	Overlap bool
}

func NewTableRef(db, table, alias string) *TableRef {
	return &TableRef{Db: db, Table: table, Alias: alias}
}

func (tr *TableRef) Clone() *TableRef {
	if tr == nil {
		return nil
	}
	c := &TableRef{
		Db:         tr.Db,
		Table:      tr.Table,
		Alias:      tr.Alias,
		ChunkLevel: tr.ChunkLevel,
		Overlap:    tr.Overlap,
	}
	for _, js := range tr.Joins {
		c.Joins = append(c.Joins, js.Clone())
	}
	return c
}

func (tr *TableRef) Equal(other *TableRef) bool {
	if tr == nil || other == nil {
		return tr == other
	}
	if tr.Db != other.Db || tr.Table != other.Table || tr.Alias != other.Alias ||
		tr.ChunkLevel != other.ChunkLevel || tr.Overlap != other.Overlap ||
		len(tr.Joins) != len(other.Joins) {
		return false
	}
	for i := range tr.Joins {
		if !tr.Joins[i].Equal(other.Joins[i]) {
			return false
		}
	}
	return true
}

// BindName returns the name column references bind to: the alias when
// present, else the bare table name.
func (tr *TableRef) BindName() string {
	if tr.Alias != "" {
		return tr.Alias
	}
	return tr.Table
}

func (tr *TableRef) Render(qt *QueryTemplate) {
	qt.AppendTable(TableEntry{
		Db:         tr.Db,
		Table:      tr.Table,
		ChunkLevel: tr.ChunkLevel,
		Overlap:    tr.Overlap,
	})
	if tr.Alias != "" {
		qt.Append("AS", "`"+tr.Alias+"`")
	}
	for _, js := range tr.Joins {
		qt.Append(js.Type)
		js.Right.Render(qt)
		if js.On != nil {
			qt.Append("ON")
			js.On.Render(qt)
		}
	}
}
