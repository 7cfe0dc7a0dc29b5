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

package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemLogFilters(t *testing.T) {
	l := NewMemLog()
	ctx := context.Background()

	require.NoError(t, l.Record(ctx, Event{
		ControllerID: "c1", Task: "QSERV_SYNC", Operation: "production", OperationStatus: "BEGIN",
	}))
	require.NoError(t, l.Record(ctx, Event{
		ControllerID: "c1", Task: "QSERV_SYNC", Operation: "production", OperationStatus: "SUCCESS",
	}))
	require.NoError(t, l.Record(ctx, Event{
		ControllerID: "c2", Task: "REPLICATION", Operation: "production", OperationStatus: "FAILURE",
	}))

	all, err := l.Query(ctx, Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	sync, err := l.Query(ctx, Filter{Task: "QSERV_SYNC"})
	require.NoError(t, err)
	assert.Len(t, sync, 2)

	failed, err := l.Query(ctx, Filter{OperationStatus: "FAILURE"})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "c2", failed[0].ControllerID)

	byController, err := l.Query(ctx, Filter{ControllerID: "c1", OperationStatus: "SUCCESS"})
	require.NoError(t, err)
	assert.Len(t, byController, 1)

	// events retain insertion (timestamp) order
	for i := 1; i < len(all); i++ {
		assert.False(t, all[i].Timestamp.Before(all[i-1].Timestamp))
	}
}
