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

// Package qproc turns an analyzed statement into per-chunk work: it
// enumerates the chunks the query touches (through the director index, the
// spatial restrictors, or the full inventory) and renders the fragment
// queries each chunk needs.
package qproc

import (
	"context"
	"sort"

	"github.com/parsecdb/parsec/libraries/czarcore/css"
	"github.com/parsecdb/parsec/libraries/czarcore/qana"
	"github.com/parsecdb/parsec/libraries/czarcore/qdisp"
	"github.com/parsecdb/parsec/libraries/czarcore/query"
)

// ChunkSpec names one chunk and, for sub-chunked execution, its sub-chunk
// ids.
type ChunkSpec struct {
	ChunkID   int
	SubChunks []int
}

// ChunkInventory lists the chunks a database currently has in the cluster.
type ChunkInventory interface {
	Chunks(ctx context.Context, database string) ([]int, error)
}

// IndexReader resolves secondary-index lookup SQL into (chunk, subChunk)
// coordinates against the local director index.
type IndexReader interface {
	LookupChunks(ctx context.Context, lookupSQL string) ([]ChunkSpec, error)
}

// DirectorIndexTable names the local index table of a director table.
func DirectorIndexTable(database, directorTable string) string {
	return directorTable + "__idx"
}

// Generator enumerates chunks and renders fragments for one query.
type Generator struct {
	css       *css.Facade
	inventory ChunkInventory
	index     IndexReader
}

func NewGenerator(f *css.Facade, inventory ChunkInventory, index IndexReader) *Generator {
	return &Generator{css: f, inventory: inventory, index: index}
}

// Chunks enumerates the chunk specs the query must visit, in ascending
// chunk order with empty chunks removed.
func (g *Generator) Chunks(ctx context.Context, qctx *qana.QueryContext) ([]ChunkSpec, error) {
	db := qctx.DominantDb

	var specs []ChunkSpec
	switch {
	case qctx.HasSecIdxRestrictor():
		merged := make(map[int]map[int]struct{})
		for _, restr := range qctx.SecIdxRestrictors {
			lookupSQL := restr.IndexLookupSQL(
				qctx.SecIdxDb,
				DirectorIndexTable(qctx.SecIdxDb, qctx.SecIdxTable),
				restr.Column.Column)
			found, err := g.index.LookupChunks(ctx, lookupSQL)
			if err != nil {
				return nil, err
			}
			for _, spec := range found {
				if merged[spec.ChunkID] == nil {
					merged[spec.ChunkID] = make(map[int]struct{})
				}
				for _, sc := range spec.SubChunks {
					merged[spec.ChunkID][sc] = struct{}{}
				}
			}
		}
		for chunk, subs := range merged {
			spec := ChunkSpec{ChunkID: chunk}
			for sc := range subs {
				spec.SubChunks = append(spec.SubChunks, sc)
			}
			sort.Ints(spec.SubChunks)
			specs = append(specs, spec)
		}

	case len(qctx.AreaRestrictors) > 0:
		striping, err := g.css.GetDbStriping(db)
		if err != nil {
			return nil, err
		}
		grid := NewGrid(striping)

		hit := make(map[int]struct{})
		for _, restr := range qctx.AreaRestrictors {
			for _, chunk := range grid.IntersectingChunks(restr) {
				hit[chunk] = struct{}{}
			}
		}

		// restrict to chunks that exist in the cluster
		all, err := g.inventory.Chunks(ctx, db)
		if err != nil {
			return nil, err
		}
		for _, chunk := range all {
			if _, ok := hit[chunk]; ok {
				specs = append(specs, ChunkSpec{ChunkID: chunk, SubChunks: grid.SubChunks()})
			}
		}

	default:
		all, err := g.inventory.Chunks(ctx, db)
		if err != nil {
			return nil, err
		}
		var subChunks []int
		if striping, err := g.css.GetDbStriping(db); err == nil {
			subChunks = NewGrid(striping).SubChunks()
		}
		for _, chunk := range all {
			specs = append(specs, ChunkSpec{ChunkID: chunk, SubChunks: subChunks})
		}
	}

	filtered := specs[:0]
	for _, spec := range specs {
		empty, err := g.css.IsEmptyChunk(db, spec.ChunkID)
		if err != nil {
			return nil, err
		}
		if !empty {
			filtered = append(filtered, spec)
		}
	}
	specs = filtered

	sort.Slice(specs, func(i, j int) bool { return specs[i].ChunkID < specs[j].ChunkID })
	return specs, nil
}

// MakeJobs renders the per-chunk fragment queries into job descriptions.
// For overlap self-joins of sub-chunked tables each sub-chunk contributes a
// plain and a full-overlap rendition.
func MakeJobs(stmt *query.SelectStmt, specs []ChunkSpec, pushLimit bool) []qdisp.JobDescription {
	opts := query.RenderOptions{WithLimit: pushLimit}
	overlapJoin := isOverlapJoin(stmt)

	var overlapTemplate *query.QueryTemplate
	template := stmt.Template(opts)
	if overlapJoin {
		overlapStmt := stmt.Clone()
		markSecondSubChunked(overlapStmt)
		overlapTemplate = overlapStmt.Template(opts)
	}

	jobs := make([]qdisp.JobDescription, 0, len(specs))
	for i, spec := range specs {
		desc := qdisp.JobDescription{
			JobID:     uint64(i + 1),
			ChunkID:   spec.ChunkID,
			SubChunks: append([]int(nil), spec.SubChunks...),
		}

		if overlapJoin && len(spec.SubChunks) > 0 {
			for _, sc := range spec.SubChunks {
				target := query.ChunkTarget{Chunk: spec.ChunkID, SubChunk: sc}
				desc.Queries = append(desc.Queries, template.Render(target))
				desc.Queries = append(desc.Queries, overlapTemplate.Render(target))
			}
		} else {
			desc.Queries = []string{template.Render(query.ChunkTarget{Chunk: spec.ChunkID, SubChunk: -1})}
		}
		jobs = append(jobs, desc)
	}
	return jobs
}

// isOverlapJoin reports whether the statement joins two sub-chunked table
// references, requiring sub-chunk iteration with overlap tables.
func isOverlapJoin(stmt *query.SelectStmt) bool {
	n := 0
	for _, tr := range stmt.From {
		if tr.ChunkLevel == 2 {
			n++
		}
		for _, js := range tr.Joins {
			if js.Right.ChunkLevel == 2 {
				n++
			}
		}
	}
	return n >= 2
}

// markSecondSubChunked sets the overlap flag on every sub-chunked
// reference after the first, producing the full-overlap rendition.
func markSecondSubChunked(stmt *query.SelectStmt) {
	first := true
	mark := func(tr *query.TableRef) {
		if tr.ChunkLevel != 2 {
			return
		}
		if first {
			first = false
			return
		}
		tr.Overlap = true
	}
	for _, tr := range stmt.From {
		mark(tr)
		for _, js := range tr.Joins {
			mark(js.Right)
		}
	}
}
