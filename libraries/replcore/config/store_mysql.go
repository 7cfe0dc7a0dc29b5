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

package config

import (
	"context"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

// ExpectedSchemaVersion is the persistent-store schema this build reads
// and writes. Load fails on any other version.
const ExpectedSchemaVersion = 14

// MySQLStore persists configuration in the replication database.
//
// Logical layout: config_param(category,param,value),
// config_worker(name,is_enabled,is_read_only,record),
// config_database_family(name,...),
// config_database(name,family_name,is_published,record),
// replica(worker,database,chunk,...). Worker and database records,
// tables included, are stored as JSON blobs.
type MySQLStore struct {
	db *sqlx.DB
}

var _ Store = (*MySQLStore)(nil)

func NewMySQLStore(db *sqlx.DB) *MySQLStore {
	return &MySQLStore{db: db}
}

// MySQLSchema creates the configuration tables.
const MySQLSchema = `
CREATE TABLE IF NOT EXISTS config_param (
    category VARCHAR(255) NOT NULL,
    param VARCHAR(255) NOT NULL,
    value TEXT NOT NULL,
    PRIMARY KEY (category, param)
) ENGINE=InnoDB;

CREATE TABLE IF NOT EXISTS config_worker (
    name VARCHAR(255) NOT NULL,
    is_enabled TINYINT(1) NOT NULL DEFAULT 1,
    is_read_only TINYINT(1) NOT NULL DEFAULT 0,
    record TEXT NOT NULL,
    PRIMARY KEY (name)
) ENGINE=InnoDB;

CREATE TABLE IF NOT EXISTS config_database_family (
    name VARCHAR(255) NOT NULL,
    min_replication_level INT NOT NULL,
    num_stripes INT NOT NULL,
    num_sub_stripes INT NOT NULL,
    overlap DOUBLE NOT NULL,
    PRIMARY KEY (name)
) ENGINE=InnoDB;

CREATE TABLE IF NOT EXISTS config_database (
    name VARCHAR(255) NOT NULL,
    family_name VARCHAR(255) NOT NULL,
    is_published TINYINT(1) NOT NULL DEFAULT 0,
    record TEXT NOT NULL,
    PRIMARY KEY (name),
    KEY (family_name)
) ENGINE=InnoDB;

CREATE TABLE IF NOT EXISTS replica (
    worker VARCHAR(255) NOT NULL,
    ` + "`database`" + ` VARCHAR(255) NOT NULL,
    chunk INT NOT NULL,
    status VARCHAR(32) NOT NULL,
    verify_time BIGINT NOT NULL DEFAULT 0,
    files TEXT,
    PRIMARY KEY (worker, ` + "`database`" + `, chunk)
) ENGINE=InnoDB;
`

func (s *MySQLStore) Load(ctx context.Context) (*Snapshot, error) {
	if err := s.checkSchemaVersion(ctx); err != nil {
		return nil, err
	}

	snap := NewSnapshot()

	rows := []struct {
		Category string `db:"category"`
		Param    string `db:"param"`
		Value    string `db:"value"`
	}{}
	if err := s.db.SelectContext(ctx, &rows, "SELECT category, param, value FROM config_param"); err != nil {
		return nil, errors.Wrap(err, "loading config params")
	}
	for _, r := range rows {
		snap.Params[r.Category+"."+r.Param] = r.Value
	}

	workers := []struct {
		Name   string `db:"name"`
		Record string `db:"record"`
	}{}
	if err := s.db.SelectContext(ctx, &workers, "SELECT name, record FROM config_worker"); err != nil {
		return nil, errors.Wrap(err, "loading workers")
	}
	for _, r := range workers {
		var w Worker
		if err := json.Unmarshal([]byte(r.Record), &w); err != nil {
			return nil, errors.Wrapf(err, "decoding worker %s", r.Name)
		}
		snap.Workers[w.Name] = &w
	}

	families := []struct {
		Name             string  `db:"name"`
		ReplicationLevel int     `db:"min_replication_level"`
		NumStripes       int     `db:"num_stripes"`
		NumSubStripes    int     `db:"num_sub_stripes"`
		Overlap          float64 `db:"overlap"`
	}{}
	if err := s.db.SelectContext(ctx, &families,
		"SELECT name, min_replication_level, num_stripes, num_sub_stripes, overlap FROM config_database_family"); err != nil {
		return nil, errors.Wrap(err, "loading families")
	}
	for _, r := range families {
		snap.Families[r.Name] = &Family{
			Name:             r.Name,
			ReplicationLevel: r.ReplicationLevel,
			NumStripes:       r.NumStripes,
			NumSubStripes:    r.NumSubStripes,
			Overlap:          r.Overlap,
		}
	}

	databases := []struct {
		Name   string `db:"name"`
		Record string `db:"record"`
	}{}
	if err := s.db.SelectContext(ctx, &databases, "SELECT name, record FROM config_database"); err != nil {
		return nil, errors.Wrap(err, "loading databases")
	}
	for _, r := range databases {
		var d Database
		if err := json.Unmarshal([]byte(r.Record), &d); err != nil {
			return nil, errors.Wrapf(err, "decoding database %s", r.Name)
		}
		snap.Databases[d.Name] = &d
	}

	return snap, nil
}

func (s *MySQLStore) checkSchemaVersion(ctx context.Context) error {
	var version int
	err := s.db.GetContext(ctx, &version,
		"SELECT value FROM config_param WHERE category='common' AND param='database_schema_version'")
	if err != nil {
		// a fresh installation carries no version row yet
		return nil
	}
	if version != ExpectedSchemaVersion {
		return ErrConfig.New(
			"persistent schema version mismatch: found " +
				strconv.Itoa(version) + ", expected " + strconv.Itoa(ExpectedSchemaVersion))
	}
	return nil
}

func (s *MySQLStore) SaveParam(ctx context.Context, category, name, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO config_param (category, param, value) VALUES (?, ?, ?)
		 ON DUPLICATE KEY UPDATE value=VALUES(value)`, category, name, value)
	return errors.Wrapf(err, "saving parameter %s.%s", category, name)
}

func (s *MySQLStore) UpsertWorker(ctx context.Context, w *Worker) error {
	record, err := json.Marshal(w)
	if err != nil {
		return errors.Wrapf(err, "encoding worker %s", w.Name)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO config_worker (name, is_enabled, is_read_only, record) VALUES (?, ?, ?, ?)
		 ON DUPLICATE KEY UPDATE is_enabled=VALUES(is_enabled),
		        is_read_only=VALUES(is_read_only), record=VALUES(record)`,
		w.Name, w.IsEnabled, w.IsReadOnly, record)
	return errors.Wrapf(err, "saving worker %s", w.Name)
}

func (s *MySQLStore) DeleteWorker(ctx context.Context, name string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "opening delete transaction")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM replica WHERE worker=?", name); err != nil {
		return errors.Wrapf(err, "deleting replicas of worker %s", name)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM config_worker WHERE name=?", name); err != nil {
		return errors.Wrapf(err, "deleting worker %s", name)
	}
	return tx.Commit()
}

func (s *MySQLStore) UpsertFamily(ctx context.Context, f *Family) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO config_database_family
		        (name, min_replication_level, num_stripes, num_sub_stripes, overlap)
		 VALUES (?, ?, ?, ?, ?)
		 ON DUPLICATE KEY UPDATE min_replication_level=VALUES(min_replication_level),
		        num_stripes=VALUES(num_stripes), num_sub_stripes=VALUES(num_sub_stripes),
		        overlap=VALUES(overlap)`,
		f.Name, f.ReplicationLevel, f.NumStripes, f.NumSubStripes, f.Overlap)
	return errors.Wrapf(err, "saving family %s", f.Name)
}

func (s *MySQLStore) DeleteFamily(ctx context.Context, name string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "opening delete transaction")
	}
	defer tx.Rollback()

	dbs := []string{}
	if err := tx.SelectContext(ctx, &dbs, "SELECT name FROM config_database WHERE family_name=?", name); err != nil {
		return errors.Wrapf(err, "listing databases of family %s", name)
	}
	for _, db := range dbs {
		if _, err := tx.ExecContext(ctx, "DELETE FROM replica WHERE `database`=?", db); err != nil {
			return errors.Wrapf(err, "deleting replicas of database %s", db)
		}
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM config_database WHERE family_name=?", name); err != nil {
		return errors.Wrapf(err, "deleting databases of family %s", name)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM config_database_family WHERE name=?", name); err != nil {
		return errors.Wrapf(err, "deleting family %s", name)
	}
	return tx.Commit()
}

func (s *MySQLStore) UpsertDatabase(ctx context.Context, d *Database) error {
	record, err := json.Marshal(d)
	if err != nil {
		return errors.Wrapf(err, "encoding database %s", d.Name)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO config_database (name, family_name, is_published, record) VALUES (?, ?, ?, ?)
		 ON DUPLICATE KEY UPDATE family_name=VALUES(family_name),
		        is_published=VALUES(is_published), record=VALUES(record)`,
		d.Name, d.Family, d.IsPublished, record)
	return errors.Wrapf(err, "saving database %s", d.Name)
}

func (s *MySQLStore) DeleteDatabase(ctx context.Context, name string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "opening delete transaction")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM replica WHERE `database`=?", name); err != nil {
		return errors.Wrapf(err, "deleting replicas of database %s", name)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM config_database WHERE name=?", name); err != nil {
		return errors.Wrapf(err, "deleting database %s", name)
	}
	return tx.Commit()
}
