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

package css

import "gopkg.in/src-d/go-errors.v1"

var (
	// ErrNoSuchKey is returned when a key is absent from the key-value store.
	ErrNoSuchKey = errors.NewKind("css: no such key: %s")

	// ErrNoSuchDb is returned when a database is not registered in the catalog.
	ErrNoSuchDb = errors.NewKind("css: no such database: %s")

	// ErrNoSuchTable is returned when a table is not registered in the catalog.
	ErrNoSuchTable = errors.NewKind("css: no such table: %s.%s")

	// ErrVersionMissing is returned when the catalog has no version key.
	ErrVersionMissing = errors.NewKind("css: catalog version key %s is missing")

	// ErrVersionMismatch is returned when the catalog version does not match
	// the version this build understands.
	ErrVersionMismatch = errors.NewKind("css: catalog version mismatch: got %s, expected %s")

	// ErrBadCatalog is returned when the catalog content violates a structural
	// invariant, e.g. a match table referencing an unregistered director.
	ErrBadCatalog = errors.NewKind("css: bad catalog: %s")
)
