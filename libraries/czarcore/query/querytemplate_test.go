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

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTemplateSpacing(t *testing.T) {
	var qt QueryTemplate
	qt.Append("SELECT", "COUNT", "(", "*", ")", "FROM", "t", "WHERE", "a", "<>", "2")
	assert.Equal(t, "SELECT COUNT(*) FROM t WHERE a<>2", qt.String())
}

func TestTemplateChunkScoping(t *testing.T) {
	var qt QueryTemplate
	qt.Append("SELECT", "*", "FROM")
	qt.AppendTable(TableEntry{Db: "LSST", Table: "Object", ChunkLevel: 1})

	assert.Equal(t, "SELECT * FROM LSST.Object", qt.String())
	assert.Equal(t, "SELECT * FROM LSST.Object_1234", qt.Render(ChunkTarget{Chunk: 1234, SubChunk: -1}))
}

func TestTemplateSubChunkScoping(t *testing.T) {
	plain := TableEntry{Db: "LSST", Table: "Object", ChunkLevel: 2}
	overlap := TableEntry{Db: "LSST", Table: "Object", ChunkLevel: 2, Overlap: true}
	target := ChunkTarget{Chunk: 7, SubChunk: 3}

	assert.Equal(t, "Subchunks_LSST_7.Object_7_3", plain.render(target))
	assert.Equal(t, "Subchunks_LSST_7.ObjectFullOverlap_7_3", overlap.render(target))
}

func TestSelectStmtRenderOptions(t *testing.T) {
	ss := NewSelectStmt()
	ss.SelectList = []*ValueExpr{NewColumnExpr("", "t", "a")}
	ss.From = []*TableRef{NewTableRef("db", "t", "")}
	ss.OrderBy = []OrderTerm{{Expr: NewColumnExpr("", "t", "a"), Desc: true}}
	ss.Limit = 10

	assert.Equal(t, "SELECT t.a FROM db.t ORDER BY t.a DESC LIMIT 10", ss.String())
	assert.Equal(t, "SELECT t.a FROM db.t",
		ss.Template(RenderOptions{}).String())
}

func TestBoolTermPrecedenceParens(t *testing.T) {
	or := &OrTerm{Terms: []BoolTerm{
		&BoolFactor{Terms: []BoolFactorTerm{&PassTerm{Text: "a=1"}}},
		&BoolFactor{Terms: []BoolFactorTerm{&PassTerm{Text: "b=2"}}},
	}}
	and := &AndTerm{Terms: []BoolTerm{
		or,
		&BoolFactor{Terms: []BoolFactorTerm{&PassTerm{Text: "c=3"}}},
	}}

	var qt QueryTemplate
	and.Render(&qt)
	assert.Equal(t, "(a=1 OR b=2) AND c=3", qt.String())
}

func TestCloneIsDeep(t *testing.T) {
	ss := NewSelectStmt()
	ss.SelectList = []*ValueExpr{NewColumnExpr("db", "t", "a")}
	ss.From = []*TableRef{NewTableRef("db", "t", "")}
	ss.Where = &WhereClause{Tree: &BoolFactor{Terms: []BoolFactorTerm{
		&CompPredicate{Left: NewColumnExpr("db", "t", "a"), Op: "=", Right: NewConstExpr("1")},
	}}}

	c := ss.Clone()
	assert.True(t, ss.Equal(c))

	c.SelectList[0].Factor.ColumnRef.Column = "b"
	c.From[0].ChunkLevel = 1
	assert.False(t, ss.Equal(c))
	assert.Equal(t, "a", ss.SelectList[0].Factor.ColumnRef.Column)
	assert.Equal(t, 0, ss.From[0].ChunkLevel)
}

func TestSecIdxRestrictorLookupSQL(t *testing.T) {
	r := &SecIdxRestrictor{
		Column: NewColumnRef("LSST", "Object", "objectId"),
		Op:     SecIdxEqual,
		Values: []string{"42"},
	}
	assert.Equal(t,
		"SELECT chunkId, subChunkId FROM qservMeta.LSST__Object WHERE objectId=42",
		r.IndexLookupSQL("qservMeta", "LSST__Object", "objectId"))

	r = &SecIdxRestrictor{Op: SecIdxBetween, Values: []string{"1", "5"}}
	assert.Equal(t,
		"SELECT chunkId, subChunkId FROM m.t WHERE k BETWEEN 1 AND 5",
		r.IndexLookupSQL("m", "t", "k"))
}
