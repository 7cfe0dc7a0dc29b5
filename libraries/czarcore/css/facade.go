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

// Package css reads the cluster catalog: which databases and tables exist,
// how tables are partitioned into chunks and sub-chunks, and how match and
// director tables relate. The catalog is a versioned key-value tree; the
// facade loads it once into memory and serves lookups from the snapshot.
package css

import (
	"sort"
	"strconv"
	"strings"
)

// Version is the catalog schema version this build understands. Opening a
// catalog with a different value under VersionKey fails.
const Version = "2"

// VersionKey is the key holding the catalog schema version.
const VersionKey = "/css_meta/version"

// Striping holds the partitioning geometry of a database family.
type Striping struct {
	Stripes    int
	SubStripes int
	Overlap    float64
}

// MatchTableParams describes the two director tables a match table relates
// and its duplication flag column.
type MatchTableParams struct {
	DirTable1   string
	DirColName1 string
	DirTable2   string
	DirColName2 string
	FlagColName string
}

// PartitionCols names the longitude, latitude and director-key columns of a
// partitioned table.
type PartitionCols struct {
	Lon string
	Lat string
	Dir string
}

type tableInfo struct {
	chunkLevel int // 0 plain, 1 chunked, 2 sub-chunked
	partCols   PartitionCols
	dirDb      string
	dirTable   string
	dirColName string
	isMatch    bool
	match      MatchTableParams
}

type dbInfo struct {
	partID      string
	striping    Striping
	tables      map[string]*tableInfo
	emptyChunks map[int]struct{}
}

// Facade is a read-only view over one catalog snapshot.
type Facade struct {
	dbs map[string]*dbInfo
}

// NewFacade loads the catalog from kv, verifying the schema version first.
func NewFacade(kv KVStore) (*Facade, error) {
	ver, err := kv.Get(VersionKey)
	if ErrNoSuchKey.Is(err) {
		return nil, ErrVersionMissing.New(VersionKey)
	} else if err != nil {
		return nil, err
	}
	if ver != Version {
		return nil, ErrVersionMismatch.New(ver, Version)
	}

	f := &Facade{dbs: make(map[string]*dbInfo)}

	dbNames, err := kv.Children("/DBS")
	if err != nil {
		return nil, err
	}
	for _, db := range dbNames {
		di, err := loadDb(kv, db)
		if err != nil {
			return nil, err
		}
		f.dbs[db] = di
	}

	// structural invariants
	for db, di := range f.dbs {
		for table, ti := range di.tables {
			if ti.isMatch {
				if _, ok := di.tables[ti.match.DirTable1]; !ok {
					return nil, ErrBadCatalog.New(
						"match table " + db + "." + table + " references unknown director " + ti.match.DirTable1)
				}
				if _, ok := di.tables[ti.match.DirTable2]; !ok {
					return nil, ErrBadCatalog.New(
						"match table " + db + "." + table + " references unknown director " + ti.match.DirTable2)
				}
			}
			if ti.chunkLevel > 0 && di.partID == "" {
				return nil, ErrBadCatalog.New(
					"chunked table " + db + "." + table + " in database without a partitioning id")
			}
		}
	}

	return f, nil
}

func loadDb(kv KVStore, db string) (*dbInfo, error) {
	dbKey := "/DBS/" + db
	di := &dbInfo{tables: make(map[string]*tableInfo), emptyChunks: make(map[int]struct{})}

	if partID, err := kv.Get(dbKey + "/partitioningId"); err == nil {
		di.partID = partID
		pKey := "/PARTITIONING/_" + partID
		var loadErr error
		di.striping.Stripes, loadErr = getInt(kv, pKey+"/nStripes")
		if loadErr != nil {
			return nil, loadErr
		}
		di.striping.SubStripes, loadErr = getInt(kv, pKey+"/nSubStripes")
		if loadErr != nil {
			return nil, loadErr
		}
		overlapStr, loadErr := kv.Get(pKey + "/overlap")
		if loadErr != nil {
			return nil, loadErr
		}
		di.striping.Overlap, loadErr = strconv.ParseFloat(overlapStr, 64)
		if loadErr != nil {
			return nil, ErrBadCatalog.New("bad overlap for partitioning " + partID + ": " + overlapStr)
		}
	}

	if kv.Exists(dbKey + "/TABLES") {
		tableNames, err := kv.Children(dbKey + "/TABLES")
		if err != nil {
			return nil, err
		}
		for _, table := range tableNames {
			ti, err := loadTable(kv, dbKey+"/TABLES/"+table)
			if err != nil {
				return nil, err
			}
			di.tables[table] = ti
		}
	}

	if ecStr, err := kv.Get("/EMPTYCHUNKS/" + db); err == nil && ecStr != "" {
		for _, tok := range strings.Split(ecStr, ",") {
			id, err := strconv.Atoi(strings.TrimSpace(tok))
			if err != nil {
				return nil, ErrBadCatalog.New("bad empty chunk id for " + db + ": " + tok)
			}
			di.emptyChunks[id] = struct{}{}
		}
	}

	return di, nil
}

func loadTable(kv KVStore, tableKey string) (*tableInfo, error) {
	ti := &tableInfo{}

	partKey := tableKey + "/partitioning"
	if kv.Exists(partKey) {
		ti.chunkLevel = 1
		ti.partCols.Lon, _ = kv.Get(partKey + "/lon")
		ti.partCols.Lat, _ = kv.Get(partKey + "/lat")
		ti.partCols.Dir, _ = kv.Get(partKey + "/dir")
		if sub, err := kv.Get(partKey + "/subChunks"); err == nil && sub == "1" {
			ti.chunkLevel = 2
		}
		ti.dirDb, _ = kv.Get(partKey + "/dirDb")
		ti.dirTable, _ = kv.Get(partKey + "/dirTable")
		ti.dirColName, _ = kv.Get(partKey + "/dirColName")
	}

	matchKey := tableKey + "/match"
	if kv.Exists(matchKey) {
		ti.isMatch = true
		ti.match.DirTable1, _ = kv.Get(matchKey + "/dirTable1")
		ti.match.DirColName1, _ = kv.Get(matchKey + "/dirColName1")
		ti.match.DirTable2, _ = kv.Get(matchKey + "/dirTable2")
		ti.match.DirColName2, _ = kv.Get(matchKey + "/dirColName2")
		ti.match.FlagColName, _ = kv.Get(matchKey + "/flagColName")
	}

	return ti, nil
}

func getInt(kv KVStore, key string) (int, error) {
	str, err := kv.Get(key)
	if err != nil {
		return 0, err
	}
	val, err := strconv.Atoi(str)
	if err != nil {
		return 0, ErrBadCatalog.New("bad integer at " + key + ": " + str)
	}
	return val, nil
}

// ContainsDb reports whether db is registered.
func (f *Facade) ContainsDb(db string) bool {
	_, ok := f.dbs[db]
	return ok
}

// ContainsTable reports whether db.table is registered.
func (f *Facade) ContainsTable(db, table string) (bool, error) {
	di, ok := f.dbs[db]
	if !ok {
		return false, ErrNoSuchDb.New(db)
	}
	_, ok = di.tables[table]
	return ok, nil
}

// GetAllowedDbs returns the names of all registered databases, sorted.
func (f *Facade) GetAllowedDbs() []string {
	names := make([]string, 0, len(f.dbs))
	for name := range f.dbs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TableIsChunked reports whether db.table is partitioned into chunks.
func (f *Facade) TableIsChunked(db, table string) (bool, error) {
	ti, err := f.table(db, table)
	if err != nil {
		return false, err
	}
	return ti.chunkLevel >= 1, nil
}

// TableIsSubChunked reports whether db.table is additionally partitioned
// into sub-chunks.
func (f *Facade) TableIsSubChunked(db, table string) (bool, error) {
	ti, err := f.table(db, table)
	if err != nil {
		return false, err
	}
	return ti.chunkLevel == 2, nil
}

// IsMatchTable reports whether db.table is a match table.
func (f *Facade) IsMatchTable(db, table string) (bool, error) {
	ti, err := f.table(db, table)
	if err != nil {
		return false, err
	}
	return ti.isMatch, nil
}

// GetChunkLevel returns 0 for plain tables, 1 for chunked and 2 for
// sub-chunked tables.
func (f *Facade) GetChunkLevel(db, table string) (int, error) {
	ti, err := f.table(db, table)
	if err != nil {
		return 0, err
	}
	return ti.chunkLevel, nil
}

// GetChunkedTables returns the chunked tables of db, sorted.
func (f *Facade) GetChunkedTables(db string) ([]string, error) {
	return f.tablesAtLevel(db, 1)
}

// GetSubChunkedTables returns the sub-chunked tables of db, sorted.
func (f *Facade) GetSubChunkedTables(db string) ([]string, error) {
	return f.tablesAtLevel(db, 2)
}

// GetPartitionCols returns the lon/lat/director columns of db.table.
func (f *Facade) GetPartitionCols(db, table string) (PartitionCols, error) {
	ti, err := f.table(db, table)
	if err != nil {
		return PartitionCols{}, err
	}
	return ti.partCols, nil
}

// GetDirTable returns the director table of db.table. A director table is
// its own director.
func (f *Facade) GetDirTable(db, table string) (string, error) {
	ti, err := f.table(db, table)
	if err != nil {
		return "", err
	}
	if ti.dirTable == "" {
		return table, nil
	}
	return ti.dirTable, nil
}

// GetDirColName returns the director key column of db.table.
func (f *Facade) GetDirColName(db, table string) (string, error) {
	ti, err := f.table(db, table)
	if err != nil {
		return "", err
	}
	if ti.dirColName != "" {
		return ti.dirColName, nil
	}
	return ti.partCols.Dir, nil
}

// GetSecIndexColNames returns the columns of db.table usable as secondary
// index lookups.
func (f *Facade) GetSecIndexColNames(db, table string) ([]string, error) {
	dirCol, err := f.GetDirColName(db, table)
	if err != nil {
		return nil, err
	}
	if dirCol == "" {
		return nil, nil
	}
	return []string{dirCol}, nil
}

// GetDbStriping returns the chunk striping geometry of db.
func (f *Facade) GetDbStriping(db string) (Striping, error) {
	di, ok := f.dbs[db]
	if !ok {
		return Striping{}, ErrNoSuchDb.New(db)
	}
	return di.striping, nil
}

// GetOverlap returns the sub-chunk overlap of db in degrees.
func (f *Facade) GetOverlap(db string) (float64, error) {
	s, err := f.GetDbStriping(db)
	if err != nil {
		return 0, err
	}
	return s.Overlap, nil
}

// GetMatchTableParams returns the match parameters of db.table. The result
// is the zero value when the table is not a match table.
func (f *Facade) GetMatchTableParams(db, table string) (MatchTableParams, error) {
	ti, err := f.table(db, table)
	if err != nil {
		return MatchTableParams{}, err
	}
	return ti.match, nil
}

// IsEmptyChunk reports whether chunk holds no rows for db and can be skipped
// at dispatch.
func (f *Facade) IsEmptyChunk(db string, chunk int) (bool, error) {
	di, ok := f.dbs[db]
	if !ok {
		return false, ErrNoSuchDb.New(db)
	}
	_, empty := di.emptyChunks[chunk]
	return empty, nil
}

func (f *Facade) table(db, table string) (*tableInfo, error) {
	di, ok := f.dbs[db]
	if !ok {
		return nil, ErrNoSuchDb.New(db)
	}
	ti, ok := di.tables[table]
	if !ok {
		return nil, ErrNoSuchTable.New(db, table)
	}
	return ti, nil
}

func (f *Facade) tablesAtLevel(db string, minLevel int) ([]string, error) {
	di, ok := f.dbs[db]
	if !ok {
		return nil, ErrNoSuchDb.New(db)
	}
	var names []string
	for name, ti := range di.tables {
		if ti.chunkLevel >= minLevel {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}
