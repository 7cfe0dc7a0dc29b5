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

package czar

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	errkind "gopkg.in/src-d/go-errors.v1"

	"github.com/parsecdb/parsec/libraries/czarcore/qmeta"
)

// ErrSql wraps result-database failures of the czar itself.
var ErrSql = errkind.NewKind("czar sql: %s")

// SQLExec is the slice of a database handle the czar needs on the result
// database; satisfied by sqlx.DB.
type SQLExec interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

const createMessageTableTmpl = "CREATE TABLE IF NOT EXISTS %s " +
	"(chunkId INT, code SMALLINT, message VARCHAR(1024), " +
	"severity ENUM('INFO','ERROR'), timeStamp BIGINT UNSIGNED) " +
	"ENGINE=MEMORY"

// MessageTable manages the per-query message table the proxy blocks on.
// The czar creates and write-locks it at submit; the proxy's read then
// waits until the query finishes and the czar unlocks.
type MessageTable struct {
	name string // qualified table name
	db   SQLExec
}

func NewMessageTable(qualifiedName string, db SQLExec) *MessageTable {
	return &MessageTable{name: qualifiedName, db: db}
}

// Create creates the table without locking it.
func (mt *MessageTable) Create(ctx context.Context) error {
	if _, err := mt.db.ExecContext(ctx, fmt.Sprintf(createMessageTableTmpl, mt.name)); err != nil {
		return ErrSql.New(err.Error())
	}
	return nil
}

// Lock creates the table and takes the write lock the proxy will block on.
func (mt *MessageTable) Lock(ctx context.Context) error {
	if err := mt.Create(ctx); err != nil {
		return err
	}
	if _, err := mt.db.ExecContext(ctx, fmt.Sprintf("LOCK TABLES %s WRITE", mt.name)); err != nil {
		return ErrSql.New(err.Error())
	}
	return nil
}

// Unlock stores the query's messages plus the summary row and releases the
// lock, letting the proxy read the table.
func (mt *MessageTable) Unlock(ctx context.Context, store *qmeta.MessageStore) error {
	if store != nil {
		if err := mt.saveQueryMessages(ctx, store); err != nil {
			return err
		}
	}
	// mysql can only unlock all locked tables of the session
	if _, err := mt.db.ExecContext(ctx, "UNLOCK TABLES"); err != nil {
		return ErrSql.New(err.Error())
	}
	return nil
}

func (mt *MessageTable) saveQueryMessages(ctx context.Context, store *qmeta.MessageStore) error {
	summary := store.Summarize()
	text := fmt.Sprintf("Completed chunks=%d cancelled chunks=%d\n%s",
		summary.CompleteCount, summary.CancelCount, summary.MultiError)
	log.WithFields(log.Fields{"table": mt.name}).Debugf("storing summary: %s", strings.TrimSpace(text))

	insert := fmt.Sprintf(
		"INSERT INTO %s (chunkId, code, message, severity, timeStamp) VALUES (?, ?, ?, ?, ?)", mt.name)
	if _, err := mt.db.ExecContext(ctx, insert,
		qmeta.SummaryChunkID, -1, text, string(summary.Severity), time.Now().Unix()); err != nil {
		return ErrSql.New(err.Error())
	}

	for _, m := range store.Messages() {
		if m.Source == qmeta.SourceMultiError || m.Severity == qmeta.SeverityError {
			if _, err := mt.db.ExecContext(ctx, insert,
				m.ChunkID, m.Code, m.Text, string(m.Severity), m.Timestamp.Unix()); err != nil {
				return ErrSql.New(err.Error())
			}
		}
	}
	return nil
}
