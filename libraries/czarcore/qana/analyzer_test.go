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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parsecdb/parsec/libraries/czarcore/css"
	"github.com/parsecdb/parsec/libraries/czarcore/parse"
	"github.com/parsecdb/parsec/libraries/czarcore/query"
)

func testFacade(t *testing.T) *css.Facade {
	f, err := css.NewFacade(css.NewMapKVStore(map[string]string{
		css.VersionKey: css.Version,

		"/DBS/LSST":                "READY",
		"/DBS/LSST/partitioningId": "1",

		"/DBS/LSST/TABLES/Object":                        "",
		"/DBS/LSST/TABLES/Object/partitioning/lon":       "ra_PS",
		"/DBS/LSST/TABLES/Object/partitioning/lat":       "decl_PS",
		"/DBS/LSST/TABLES/Object/partitioning/dir":       "objectId",
		"/DBS/LSST/TABLES/Object/partitioning/subChunks": "1",

		"/DBS/LSST/TABLES/Source":                         "",
		"/DBS/LSST/TABLES/Source/partitioning/lon":        "ra",
		"/DBS/LSST/TABLES/Source/partitioning/lat":        "decl",
		"/DBS/LSST/TABLES/Source/partitioning/dirDb":      "LSST",
		"/DBS/LSST/TABLES/Source/partitioning/dirTable":   "Object",
		"/DBS/LSST/TABLES/Source/partitioning/dirColName": "objectId",

		"/DBS/LSST/TABLES/RefObjMatch":                   "",
		"/DBS/LSST/TABLES/RefObjMatch/match/dirTable1":   "Object",
		"/DBS/LSST/TABLES/RefObjMatch/match/dirColName1": "objectId",
		"/DBS/LSST/TABLES/RefObjMatch/match/dirTable2":   "Source",
		"/DBS/LSST/TABLES/RefObjMatch/match/dirColName2": "sourceId",
		"/DBS/LSST/TABLES/RefObjMatch/match/flagColName": "flag",

		"/DBS/LSST/TABLES/Filter": "",

		"/PARTITIONING/_1/nStripes":    "60",
		"/PARTITIONING/_1/nSubStripes": "18",
		"/PARTITIONING/_1/overlap":     "0.025",
	}))
	require.NoError(t, err)
	return f
}

func testAnalyzerConfig() AnalyzerConfig {
	return AnalyzerConfig{
		InteractiveChunkLimit: 10,
		DefaultScanRating:     1,
		SlowestScanRating:     3,
		LockInMemory:          true,
	}
}

func analyze(t *testing.T, sql string) (*QueryContext, *query.SelectStmt) {
	stmt, err := parse.Select(sql)
	require.NoError(t, err)

	a, err := NewDefaultAnalyzer(testAnalyzerConfig())
	require.NoError(t, err)

	ctx := &QueryContext{Css: testFacade(t), DefaultDb: "LSST"}
	require.NoError(t, a.Apply(ctx, stmt))
	return ctx, stmt
}

func TestAnalyzerOrdering(t *testing.T) {
	// a plugin needing resolution cannot lead the pipeline
	_, err := NewAnalyzer(&MatchTablePlugin{})
	assert.Error(t, err)

	// phases may not run backwards
	_, err = NewAnalyzer(&TablePlugin{}, &AggregatePlugin{}, &MatchTablePlugin{})
	assert.Error(t, err)

	_, err = NewAnalyzer(&TablePlugin{}, &MatchTablePlugin{}, &AggregatePlugin{})
	assert.NoError(t, err)
}

func TestTableResolution(t *testing.T) {
	ctx, stmt := analyze(t, "SELECT ra_PS FROM Object WHERE decl_PS > 3")

	assert.Equal(t, "LSST", ctx.DominantDb)
	require.Len(t, stmt.From, 1)
	assert.Equal(t, "LSST", stmt.From[0].Db)
	assert.Equal(t, 2, stmt.From[0].ChunkLevel)

	// unqualified columns bind to the primary table
	cr := stmt.SelectList[0].ColumnRef()
	require.NotNil(t, cr)
	assert.Equal(t, "LSST", cr.Db)
	assert.Equal(t, "Object", cr.Table)
}

func TestTableResolutionUnknownTable(t *testing.T) {
	stmt, err := parse.Select("SELECT x FROM NoSuchTable")
	require.NoError(t, err)

	a, err := NewDefaultAnalyzer(testAnalyzerConfig())
	require.NoError(t, err)

	err = a.Apply(&QueryContext{Css: testFacade(t), DefaultDb: "LSST"}, stmt)
	assert.Error(t, err)
}

func TestMatchTableRewrite(t *testing.T) {
	_, stmt := analyze(t, "SELECT * FROM RefObjMatch WHERE sourceId > 5")

	rendered := stmt.String()
	assert.Contains(t, rendered, "LSST.RefObjMatch.objectId IS NULL OR LSST.RefObjMatch.flag<>2")
}

func TestMatchTableJoinNotRewritten(t *testing.T) {
	_, stmt := analyze(t, "SELECT * FROM RefObjMatch AS m JOIN Object AS o ON m.objectId = o.objectId")
	assert.NotContains(t, stmt.String(), "IS NULL")
}

func TestSecIndexPushdown(t *testing.T) {
	ctx, stmt := analyze(t, "SELECT ra_PS FROM Object WHERE objectId = 42")

	require.Len(t, ctx.SecIdxRestrictors, 1)
	restr := ctx.SecIdxRestrictors[0]
	assert.Equal(t, query.SecIdxEqual, restr.Op)
	assert.Equal(t, []string{"42"}, restr.Values)
	assert.Equal(t, "Object", ctx.SecIdxTable)

	// the restrictor must not survive in the fragment WHERE
	assert.NotContains(t, stmt.String(), "objectId")
	assert.True(t, ctx.Interactive)
	assert.False(t, ctx.ScanInfo.IsScan())
}

func TestSecIndexPushdownIn(t *testing.T) {
	ctx, stmt := analyze(t, "SELECT ra_PS FROM Object WHERE objectId IN (1, 2, 3) AND decl_PS > 0")

	require.Len(t, ctx.SecIdxRestrictors, 1)
	assert.Equal(t, query.SecIdxIn, ctx.SecIdxRestrictors[0].Op)
	assert.Equal(t, []string{"1", "2", "3"}, ctx.SecIdxRestrictors[0].Values)

	// the non-index conjunct survives
	assert.Contains(t, stmt.String(), "decl_PS>0")
	assert.NotContains(t, stmt.String(), "IN")
}

func TestScanClassification(t *testing.T) {
	ctx, _ := analyze(t, "SELECT ra_PS FROM Object WHERE decl_PS > 3")

	require.True(t, ctx.ScanInfo.IsScan())
	assert.False(t, ctx.Interactive)
	assert.Equal(t, "Object", ctx.ScanInfo.Tables[0].Table)
	assert.Equal(t, 1, ctx.ScanInfo.Rating)

	a, err := NewDefaultAnalyzer(testAnalyzerConfig())
	require.NoError(t, err)

	// below the interactive chunk limit the scan is downgraded
	a.FinalizeChunkCount(ctx, 3)
	assert.False(t, ctx.ScanInfo.IsScan())
	assert.Equal(t, 0, ctx.ScanInfo.Rating)
	assert.True(t, ctx.Interactive)
}

func TestScanNotDowngradedAboveLimit(t *testing.T) {
	ctx, _ := analyze(t, "SELECT ra_PS FROM Object")

	a, err := NewDefaultAnalyzer(testAnalyzerConfig())
	require.NoError(t, err)

	a.FinalizeChunkCount(ctx, 500)
	assert.True(t, ctx.ScanInfo.IsScan())
}

func TestAggregateSplitCount(t *testing.T) {
	ctx, stmt := analyze(t, "SELECT COUNT(*) FROM Object")

	require.True(t, ctx.Merge.NeedsMerge)
	assert.Equal(t, []string{"COUNT(*)"}, ctx.ResultColumns)

	worker := stmt.String()
	assert.Contains(t, worker, "COUNT(*) AS `QS1_COUNT`")
	assert.Equal(t, "SUM(`QS1_COUNT`) AS `COUNT(*)`", ctx.Merge.SelectList)
}

func TestAggregateSplitAvgWithGroupBy(t *testing.T) {
	ctx, stmt := analyze(t, "SELECT filterId, AVG(flux) AS af FROM Source GROUP BY filterId")

	require.True(t, ctx.Merge.NeedsMerge)
	worker := stmt.String()
	assert.Contains(t, worker, "SUM(LSST.Source.flux) AS `QS2_SUM`")
	assert.Contains(t, worker, "COUNT(LSST.Source.flux) AS `QS2_COUNT`")
	assert.Contains(t, worker, "GROUP BY")

	assert.Contains(t, ctx.Merge.SelectList, "(SUM(`QS2_SUM`)/SUM(`QS2_COUNT`)) AS `af`")
	assert.Equal(t, "`filterId`", ctx.Merge.GroupBy)
}

func TestPlainQueryNeedsNoMerge(t *testing.T) {
	ctx, _ := analyze(t, "SELECT ra_PS, decl_PS FROM Object WHERE decl_PS > 3")
	assert.False(t, ctx.Merge.NeedsMerge)
	assert.Equal(t, []string{"ra_PS", "decl_PS"}, ctx.ResultColumns)
}
