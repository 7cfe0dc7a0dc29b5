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

package qmeta

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

// Schema is the metadata database schema. It is applied with multiStatement
// connections at install time.
const Schema = `
CREATE TABLE IF NOT EXISTS QCzar (
    czarId BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
    czar VARCHAR(255) NOT NULL,
    PRIMARY KEY (czarId),
    UNIQUE KEY (czar)
) ENGINE=InnoDB;

CREATE TABLE IF NOT EXISTS QInfo (
    queryId BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
    czarId BIGINT UNSIGNED NOT NULL,
    status ENUM('EXECUTING','COMPLETED','FAILED','ABORTED') NOT NULL DEFAULT 'EXECUTING',
    submitted TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    completed TIMESTAMP NULL DEFAULT NULL,
    chunkCount INT NOT NULL DEFAULT 0,
    collectedBytes BIGINT UNSIGNED NOT NULL DEFAULT 0,
    collectedRows BIGINT UNSIGNED NOT NULL DEFAULT 0,
    finalRows BIGINT UNSIGNED NOT NULL DEFAULT 0,
    messageTable VARCHAR(255) NOT NULL DEFAULT '',
    resultQuery MEDIUMTEXT,
    query MEDIUMTEXT NOT NULL,
    PRIMARY KEY (queryId),
    KEY (czarId)
) ENGINE=InnoDB;

CREATE TABLE IF NOT EXISTS QMessages (
    queryId BIGINT UNSIGNED NOT NULL,
    chunkId INT NOT NULL,
    severity ENUM('INFO','ERROR') NOT NULL,
    code SMALLINT NOT NULL,
    message VARCHAR(1024) NOT NULL,
    timestamp BIGINT UNSIGNED NOT NULL,
    KEY (queryId)
) ENGINE=InnoDB;

CREATE TABLE IF NOT EXISTS QProgress (
    queryId BIGINT UNSIGNED NOT NULL,
    totalChunks INT NOT NULL,
    completedChunks INT NOT NULL,
    queryBegin TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    lastUpdate TIMESTAMP NULL DEFAULT NULL,
    PRIMARY KEY (queryId)
) ENGINE=InnoDB;
`

// MySQLQMeta is the production QMeta backed by the metadata database.
type MySQLQMeta struct {
	db *sqlx.DB
}

var _ QMeta = (*MySQLQMeta)(nil)

// NewMySQLQMeta wraps an open connection to the metadata database.
func NewMySQLQMeta(db *sqlx.DB) *MySQLQMeta {
	return &MySQLQMeta{db: db}
}

func (m *MySQLQMeta) RegisterCzar(ctx context.Context, name string) (CzarID, error) {
	_, err := m.db.ExecContext(ctx,
		"INSERT INTO QCzar (czar) VALUES (?) ON DUPLICATE KEY UPDATE czarId=czarId", name)
	if err != nil {
		return 0, errors.Wrap(err, "registering czar")
	}

	var id CzarID
	err = m.db.GetContext(ctx, &id, "SELECT czarId FROM QCzar WHERE czar=?", name)
	if err != nil {
		return 0, errors.Wrap(err, "reading czar id")
	}
	return id, nil
}

func (m *MySQLQMeta) RegisterQuery(ctx context.Context, info *QInfo) (QueryID, error) {
	res, err := m.db.ExecContext(ctx,
		"INSERT INTO QInfo (czarId, status, messageTable, query) VALUES (?, 'EXECUTING', ?, ?)",
		info.CzarID, info.MessageTable, info.Query)
	if err != nil {
		return 0, errors.Wrap(err, "registering query")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, errors.Wrap(err, "reading new query id")
	}
	return QueryID(id), nil
}

func (m *MySQLQMeta) CompleteQuery(ctx context.Context, qid QueryID, status QueryStatus, counts QueryCounts) error {
	res, err := m.db.ExecContext(ctx,
		`UPDATE QInfo SET status=?, completed=NOW(), chunkCount=?,
		        collectedBytes=?, collectedRows=?, finalRows=?
		 WHERE queryId=?`,
		status, counts.ChunkCount, counts.CollectedBytes, counts.CollectedRows, counts.FinalRows, qid)
	if err != nil {
		return errors.Wrapf(err, "completing query %d", qid)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrQueryNotFound.New(qid)
	}
	return nil
}

func (m *MySQLQMeta) SetResultQuery(ctx context.Context, qid QueryID, resultQuery string) error {
	_, err := m.db.ExecContext(ctx,
		"UPDATE QInfo SET resultQuery=? WHERE queryId=?", resultQuery, qid)
	return errors.Wrapf(err, "recording result query for %d", qid)
}

func (m *MySQLQMeta) SetMessageTable(ctx context.Context, qid QueryID, messageTable string) error {
	_, err := m.db.ExecContext(ctx,
		"UPDATE QInfo SET messageTable=? WHERE queryId=?", messageTable, qid)
	return errors.Wrapf(err, "recording message table for %d", qid)
}

func (m *MySQLQMeta) AddMessages(ctx context.Context, qid QueryID, msgs []QueryMessage) error {
	if len(msgs) == 0 {
		return nil
	}
	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "opening message transaction")
	}
	defer tx.Rollback()

	for _, msg := range msgs {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO QMessages (queryId, chunkId, severity, code, message, timestamp) VALUES (?, ?, ?, ?, ?, ?)",
			qid, msg.ChunkID, msg.Severity, msg.Code, truncateMessage(msg.Text), msg.Timestamp.Unix())
		if err != nil {
			return errors.Wrapf(err, "appending message for %d", qid)
		}
	}
	return tx.Commit()
}

func (m *MySQLQMeta) UpdateProgress(ctx context.Context, qid QueryID, totalChunks, completedChunks int) error {
	_, err := m.db.ExecContext(ctx,
		`INSERT INTO QProgress (queryId, totalChunks, completedChunks, lastUpdate)
		 VALUES (?, ?, ?, NOW())
		 ON DUPLICATE KEY UPDATE totalChunks=VALUES(totalChunks),
		        completedChunks=VALUES(completedChunks), lastUpdate=NOW()`,
		qid, totalChunks, completedChunks)
	return errors.Wrapf(err, "updating progress for %d", qid)
}

func (m *MySQLQMeta) EndProgress(ctx context.Context, qid QueryID) error {
	_, err := m.db.ExecContext(ctx, "DELETE FROM QProgress WHERE queryId=?", qid)
	return errors.Wrapf(err, "ending progress for %d", qid)
}

func (m *MySQLQMeta) GetQueryInfo(ctx context.Context, qid QueryID) (*QInfo, error) {
	var info QInfo
	err := m.db.GetContext(ctx, &info,
		`SELECT queryId, czarId, status, submitted, completed, chunkCount,
		        collectedBytes, collectedRows, finalRows, messageTable,
		        COALESCE(resultQuery, '') AS resultQuery, query
		 FROM QInfo WHERE queryId=?`, qid)
	if err == sql.ErrNoRows {
		return nil, ErrQueryNotFound.New(qid)
	} else if err != nil {
		return nil, errors.Wrapf(err, "reading query %d", qid)
	}
	return &info, nil
}

func (m *MySQLQMeta) GetQueryProgress(ctx context.Context, qid QueryID) (*QProgress, error) {
	var p QProgress
	err := m.db.GetContext(ctx, &p,
		"SELECT queryId, totalChunks, completedChunks, queryBegin, lastUpdate FROM QProgress WHERE queryId=?", qid)
	if err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, errors.Wrapf(err, "reading progress for %d", qid)
	}
	return &p, nil
}

func (m *MySQLQMeta) LastQueryID(ctx context.Context) (QueryID, error) {
	var id uint64
	err := m.db.GetContext(ctx, &id, "SELECT COALESCE(MAX(queryId), 0) FROM QInfo")
	if err != nil {
		return 0, errors.Wrap(err, "reading last query id")
	}
	return id, nil
}

const maxMessageLen = 1024

func truncateMessage(text string) string {
	if len(text) > maxMessageLen {
		return text[:maxMessageLen]
	}
	return text
}
