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

// Phase orders plugin execution. Plugins run in non-decreasing phase
// order; table resolution must happen before anything else.
type Phase int

const (
	PhaseResolve Phase = iota
	PhaseAnalyze
	PhasePhysical
)

// Plugin is one analysis pass.
type Plugin interface {
	Name() string
	Phase() Phase

	// NeedsResolvedTables marks plugins that read resolved table and
	// column bindings. Such a plugin must be scheduled after a plugin of
	// PhaseResolve.
	NeedsResolvedTables() bool

	Apply(ctx *QueryContext, stmt *query.SelectStmt) error
}

// Analyzer runs a validated plugin sequence.
type Analyzer struct {
	plugins []Plugin
	scan    *ScanTablePlugin
}

// NewAnalyzer validates plugin ordering and returns an Analyzer. The first
// plugin must run at PhaseResolve, phases must be non-decreasing, and a
// plugin that needs resolved tables may not be scheduled before resolution
// has happened.
func NewAnalyzer(plugins ...Plugin) (*Analyzer, error) {
	if len(plugins) == 0 {
		return nil, ErrQuery.New("analyzer requires at least one plugin")
	}
	if plugins[0].Phase() != PhaseResolve {
		return nil, ErrQuery.New("first plugin " + plugins[0].Name() + " must run at the resolve phase")
	}

	resolved := false
	prev := PhaseResolve
	a := &Analyzer{}
	for _, p := range plugins {
		if p.Phase() < prev {
			return nil, ErrQuery.New("plugin " + p.Name() + " is scheduled out of phase order")
		}
		if p.NeedsResolvedTables() && !resolved {
			return nil, ErrQuery.New("plugin " + p.Name() + " requires table resolution but is scheduled before it")
		}
		if p.Phase() == PhaseResolve {
			resolved = true
		}
		prev = p.Phase()
		a.plugins = append(a.plugins, p)
		if sp, ok := p.(*ScanTablePlugin); ok {
			a.scan = sp
		}
	}
	return a, nil
}

// NewDefaultAnalyzer builds the standard pipeline: table resolution,
// match-table duplicate filter, director-index pushdown, scan
// classification and aggregation split.
func NewDefaultAnalyzer(cfg AnalyzerConfig) (*Analyzer, error) {
	return NewAnalyzer(
		&TablePlugin{},
		&MatchTablePlugin{},
		&SecIndexPlugin{},
		NewScanTablePlugin(cfg),
		&AggregatePlugin{},
	)
}

// AnalyzerConfig carries the tunables of the standard pipeline.
type AnalyzerConfig struct {
	// InteractiveChunkLimit is the chunk count below which a scan is
	// downgraded to interactive at the final pass.
	InteractiveChunkLimit int

	// DefaultScanRating is the rating given to every scan table.
	DefaultScanRating int

	// SlowestScanRating is the clamp applied to table ratings.
	SlowestScanRating int

	// LockInMemory marks scan tables for in-memory locking on workers.
	LockInMemory bool
}

// Apply runs every plugin over the statement.
func (a *Analyzer) Apply(ctx *QueryContext, stmt *query.SelectStmt) error {
	for _, p := range a.plugins {
		if err := p.Apply(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// FinalizeChunkCount applies the interactive downgrade once the number of
// chunks the query touches is known.
func (a *Analyzer) FinalizeChunkCount(ctx *QueryContext, chunkCount int) {
	if a.scan != nil {
		a.scan.Finalize(ctx, chunkCount)
	}
}
