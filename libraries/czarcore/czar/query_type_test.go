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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsKill(t *testing.T) {
	tests := []struct {
		stmt string
		id   int
		ok   bool
	}{
		{"KILL QUERY 123", 123, true},
		{"KILL CONNECTION 45", 45, true},
		{"KILL 7", 7, true},
		{"kill query 9;", 9, true},
		{"  KILL   QUERY   10  ", 10, true},
		{"CANCEL 5", 0, false},
		{"KILL", 0, false},
		{"KILL QUERY abc", 0, false},
		{"SELECT 1", 0, false},
	}

	for _, test := range tests {
		t.Run(test.stmt, func(t *testing.T) {
			id, ok := isKill(test.stmt)
			assert.Equal(t, test.ok, ok)
			if ok {
				assert.Equal(t, test.id, id)
			}
		})
	}
}

func TestIsCancel(t *testing.T) {
	id, ok := isCancel("CANCEL 99")
	assert.True(t, ok)
	assert.Equal(t, uint64(99), id)

	id, ok = isCancel("cancel 12;")
	assert.True(t, ok)
	assert.Equal(t, uint64(12), id)

	_, ok = isCancel("KILL 99")
	assert.False(t, ok)
}
