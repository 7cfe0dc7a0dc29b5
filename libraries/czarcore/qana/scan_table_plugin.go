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

// ScanTablePlugin classifies a query as a shared scan or an interactive
// point lookup. A query restricted through the director index never scans;
// anything else that reads a partitioned table does, and is rated so the
// worker scheduler can group it with scans of similar weight.
type ScanTablePlugin struct {
	cfg AnalyzerConfig
}

func NewScanTablePlugin(cfg AnalyzerConfig) *ScanTablePlugin {
	return &ScanTablePlugin{cfg: cfg}
}

func (*ScanTablePlugin) Name() string              { return "scan-table" }
func (*ScanTablePlugin) Phase() Phase              { return PhaseAnalyze }
func (*ScanTablePlugin) NeedsResolvedTables() bool { return true }

func (p *ScanTablePlugin) Apply(ctx *QueryContext, stmt *query.SelectStmt) error {
	if ctx.HasSecIdxRestrictor() {
		ctx.Interactive = true
		return nil
	}

	seen := make(map[string]struct{})
	for _, tr := range stmt.From {
		p.addScanTable(ctx, tr, seen)
		for _, js := range tr.Joins {
			p.addScanTable(ctx, js.Right, seen)
		}
	}

	if !ctx.ScanInfo.IsScan() {
		ctx.Interactive = true
	}
	return nil
}

func (p *ScanTablePlugin) addScanTable(ctx *QueryContext, tr *query.TableRef, seen map[string]struct{}) {
	if tr.ChunkLevel == 0 {
		return
	}
	key := tr.Db + "." + tr.Table
	if _, dup := seen[key]; dup {
		return
	}
	seen[key] = struct{}{}

	rating := p.cfg.DefaultScanRating
	if rating > p.cfg.SlowestScanRating {
		rating = p.cfg.SlowestScanRating
	}
	ctx.ScanInfo.Tables = append(ctx.ScanInfo.Tables, ScanTableInfo{
		Db:           tr.Db,
		Table:        tr.Table,
		LockInMemory: p.cfg.LockInMemory,
		ScanRating:   rating,
	})
	if rating > ctx.ScanInfo.Rating {
		ctx.ScanInfo.Rating = rating
	}
	if ctx.ScanInfo.Rating > p.cfg.SlowestScanRating {
		ctx.ScanInfo.Rating = p.cfg.SlowestScanRating
	}
}

// Finalize downgrades a scan to interactive once the chunk count is known
// to be below the configured limit.
func (p *ScanTablePlugin) Finalize(ctx *QueryContext, chunkCount int) {
	if chunkCount < p.cfg.InteractiveChunkLimit {
		ctx.ScanInfo.Tables = nil
		ctx.ScanInfo.Rating = 0
		ctx.Interactive = true
	}
}
