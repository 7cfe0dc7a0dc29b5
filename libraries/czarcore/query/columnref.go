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

// ColumnRef is a possibly qualified column reference. After table
// resolution Table holds the alias or table name the column binds to and Db
// the database it lives in.
type ColumnRef struct {
	Db     string
	Table  string
	Column string
}

func NewColumnRef(db, table, column string) *ColumnRef {
	return &ColumnRef{Db: db, Table: table, Column: column}
}

func (cr *ColumnRef) Clone() *ColumnRef {
	if cr == nil {
		return nil
	}
	c := *cr
	return &c
}

func (cr *ColumnRef) Equal(other *ColumnRef) bool {
	if cr == nil || other == nil {
		return cr == other
	}
	return *cr == *other
}

func (cr *ColumnRef) Render(qt *QueryTemplate) {
	qt.Append(cr.String())
}

func (cr *ColumnRef) String() string {
	str := cr.Column
	if cr.Table != "" {
		str = cr.Table + "." + str
	}
	if cr.Db != "" {
		str = cr.Db + "." + str
	}
	return str
}
