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

// Package query holds the intermediate representation of a user SELECT
// statement: value expressions, boolean terms, restrictors and table
// references. Every node renders itself onto a QueryTemplate, a token
// sequence with placeholders for chunk-scoped table names that is later
// instantiated once per chunk.
package query

import (
	"fmt"
	"strings"
)

// ChunkTarget identifies one chunk (and optionally one sub-chunk) a
// template is being instantiated for. SubChunk is -1 when the query does
// not address sub-chunks.
type ChunkTarget struct {
	Chunk    int
	SubChunk int
}

// NoTarget renders a template with unscoped table names, as the user wrote
// them.
var NoTarget = ChunkTarget{Chunk: -1, SubChunk: -1}

// TemplateEntry is one token of a QueryTemplate.
type TemplateEntry interface {
	render(t ChunkTarget) string
}

// StringEntry is a literal SQL token.
type StringEntry string

func (se StringEntry) render(ChunkTarget) string { return string(se) }

// TableEntry is a placeholder for a possibly chunk-scoped table name.
// Depending on the chunk level and the overlap flag it renders as one of
//
//	db.table
//	db.table_<chunkId>
//	Subchunks_<db>_<chunkId>.<table>_<chunkId>_<subChunkId>
//	Subchunks_<db>_<chunkId>.<table>FullOverlap_<chunkId>_<subChunkId>
type TableEntry struct {
	Db    string
	Table string

	// ChunkLevel is 0 for unpartitioned tables, 1 for chunked tables and 2
	// for tables addressed per sub-chunk in this query.
	ChunkLevel int

	// Overlap selects the full-overlap rendition of a sub-chunked table.
	Overlap bool
}

func (te TableEntry) render(t ChunkTarget) string {
	if t.Chunk < 0 || te.ChunkLevel == 0 {
		if te.Db == "" {
			return te.Table
		}
		return te.Db + "." + te.Table
	}

	// a sub-chunked table addressed without a sub-chunk target renders at
	// chunk granularity
	if te.ChunkLevel == 1 || t.SubChunk < 0 {
		return fmt.Sprintf("%s.%s_%d", te.Db, te.Table, t.Chunk)
	}

	table := te.Table
	if te.Overlap {
		table += "FullOverlap"
	}
	return fmt.Sprintf("Subchunks_%s_%d.%s_%d_%d", te.Db, t.Chunk, table, t.Chunk, t.SubChunk)
}

// QueryTemplate is an ordered sequence of tokens and placeholders that
// renders to a SQL string for a given chunk target.
type QueryTemplate struct {
	entries []TemplateEntry
}

// Append adds literal tokens to the template. Multi-word strings are kept
// as a single entry; spacing is resolved at render time.
func (qt *QueryTemplate) Append(tokens ...string) {
	for _, tok := range tokens {
		if tok != "" {
			qt.entries = append(qt.entries, StringEntry(tok))
		}
	}
}

// AppendTable adds a table-name placeholder.
func (qt *QueryTemplate) AppendTable(te TableEntry) {
	qt.entries = append(qt.entries, te)
}

// AppendTemplate splices another template's entries into this one.
func (qt *QueryTemplate) AppendTemplate(other *QueryTemplate) {
	qt.entries = append(qt.entries, other.entries...)
}

// Len returns the number of entries in the template.
func (qt *QueryTemplate) Len() int { return len(qt.entries) }

// String renders the template without chunk scoping.
func (qt *QueryTemplate) String() string {
	return qt.Render(NoTarget)
}

// Render instantiates the template for one chunk target. Adjacent tokens
// are separated by a space only where required: two identifier characters
// may not touch, punctuation may.
func (qt *QueryTemplate) Render(t ChunkTarget) string {
	var sb strings.Builder
	prev := byte(0)
	for _, e := range qt.entries {
		tok := e.render(t)
		if tok == "" {
			continue
		}
		if prev != 0 && needsSpace(prev, tok[0]) {
			sb.WriteByte(' ')
		}
		sb.WriteString(tok)
		prev = tok[len(tok)-1]
	}
	return sb.String()
}

func needsSpace(prev, next byte) bool {
	return (isIdentChar(prev) || prev == ')') && isIdentChar(next)
}

func isIdentChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '_', c == '$', c == '*', c == '\'', c == '"', c == '`':
		// quotes and stars touching an identifier still need separation
		return true
	}
	return false
}
