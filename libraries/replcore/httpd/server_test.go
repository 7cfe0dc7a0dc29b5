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

package httpd

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parsecdb/parsec/libraries/czarcore/wire"
	"github.com/parsecdb/parsec/libraries/replcore/config"
	"github.com/parsecdb/parsec/libraries/replcore/contr"
	"github.com/parsecdb/parsec/libraries/replcore/events"
	"github.com/parsecdb/parsec/libraries/replcore/ingest"
)

type nullClient struct{}

func (nullClient) ServiceCmd(ctx context.Context, w wire.WorkerAddr, op wire.ServiceOp) (*wire.ServiceResponse, error) {
	return &wire.ServiceResponse{}, nil
}
func (nullClient) Ping(ctx context.Context, w wire.WorkerAddr, service string) error { return nil }
func (nullClient) GetReplicas(ctx context.Context, w wire.WorkerAddr, req *wire.GetReplicasRequest) (*wire.ReplicaResponse, error) {
	return &wire.ReplicaResponse{}, nil
}
func (nullClient) SetReplicas(ctx context.Context, w wire.WorkerAddr, req *wire.SetReplicasRequest) (*wire.ReplicaResponse, error) {
	return &wire.ReplicaResponse{}, nil
}
func (nullClient) AddReplica(ctx context.Context, w wire.WorkerAddr, req *wire.AddReplicaRequest) (*wire.ReplicaResponse, error) {
	return &wire.ReplicaResponse{}, nil
}
func (nullClient) RemoveReplica(ctx context.Context, w wire.WorkerAddr, req *wire.RemoveReplicaRequest) (*wire.ReplicaResponse, error) {
	return &wire.ReplicaResponse{}, nil
}
func (nullClient) RunSql(ctx context.Context, w wire.WorkerAddr, req *wire.SqlRequest) (*wire.SqlResponse, error) {
	return &wire.SqlResponse{ID: req.ID}, nil
}
func (nullClient) DirectorIndexData(ctx context.Context, w wire.WorkerAddr, req *wire.DirectorIndexRequest) (*wire.DirectorIndexResponse, error) {
	return &wire.DirectorIndexResponse{}, nil
}

type nullDB struct{}

type nullResult struct{}

func (nullResult) LastInsertId() (int64, error) { return 0, nil }
func (nullResult) RowsAffected() (int64, error) { return 1, nil }

func (nullDB) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return nullResult{}, nil
}

type harness struct {
	server *Server
	http   *httptest.Server
	token  string
	cfg    *config.Configuration
}

func newHarness(t *testing.T) *harness {
	cfg, err := config.NewConfiguration(context.Background(), config.NewMemStore())
	require.NoError(t, err)

	ctrl := contr.NewController(cfg, nullClient{}, events.NewMemLog())
	trans := ingest.NewRegistry(cfg)
	srv := NewServer(cfg, ctrl, trans, events.NewMemLog(), nullDB{}, "test-instance", []byte("secret"))

	token, err := srv.IssueToken("admin")
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &harness{server: srv, http: ts, token: token, cfg: cfg}
}

// call sends a JSON request with the API version injected; auth toggles
// the admin token.
func (h *harness) call(t *testing.T, method, path string, payload map[string]interface{}, auth bool) (*http.Response, map[string]interface{}) {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	if _, ok := payload["version"]; !ok {
		payload["version"] = APIVersion
	}
	data, err := json.Marshal(payload)
	require.NoError(t, err)

	req, err := http.NewRequest(method, h.http.URL+path, bytes.NewReader(data))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if auth {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func (h *harness) addFamily(t *testing.T) {
	resp, _ := h.call(t, http.MethodPost, "/replication/config/family", map[string]interface{}{
		"name":              "production",
		"replication_level": 2,
		"num_stripes":       60,
		"num_sub_stripes":   12,
		"overlap":           0.025,
	}, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetaVersion(t *testing.T) {
	h := newHarness(t)

	resp, body := h.call(t, http.MethodGet, "/meta/version", nil, false)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "replication-controller", body["kind"])
	assert.Equal(t, "test-instance", body["instance_id"])
	assert.NotEmpty(t, body["id"])
}

func TestVersionMismatchRejected(t *testing.T) {
	h := newHarness(t)

	resp, body := h.call(t, http.MethodGet, "/replication/config",
		map[string]interface{}{"version": APIVersion + 1}, false)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["error"], "version")
}

func TestMutationsRequireAuth(t *testing.T) {
	h := newHarness(t)

	resp, _ := h.call(t, http.MethodPost, "/replication/config/family", map[string]interface{}{
		"name": "x", "replication_level": 1, "num_stripes": 1, "num_sub_stripes": 1, "overlap": 0.1,
	}, false)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// reads do not need auth
	resp, _ = h.call(t, http.MethodGet, "/replication/config", nil, false)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestConfigGeneralUpdate(t *testing.T) {
	h := newHarness(t)

	resp, _ := h.call(t, http.MethodPut, "/replication/config/general", map[string]interface{}{
		"category": "controller", "parameter": "num_threads", "value": "24",
	}, true)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	val, err := h.cfg.GetInt("controller", "num_threads")
	require.NoError(t, err)
	assert.Equal(t, int64(24), val)

	// read-only parameters map to 400
	resp, _ = h.call(t, http.MethodPut, "/replication/config/general", map[string]interface{}{
		"category": "common", "parameter": "instance_id", "value": "nope",
	}, true)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWorkerLifecycle(t *testing.T) {
	h := newHarness(t)

	resp, _ := h.call(t, http.MethodPost, "/replication/config/worker", map[string]interface{}{
		"worker": map[string]interface{}{
			"name": "worker-A",
			"svc":  map[string]interface{}{"host": "a.example.org", "port": 25000},
		},
	}, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// partial update: only the read-only flag changes
	resp, body := h.call(t, http.MethodPut, "/replication/config/worker/worker-A", map[string]interface{}{
		"is-read-only": 1,
	}, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	worker := body["worker"].(map[string]interface{})
	assert.Equal(t, true, worker["is_read_only"])
	assert.Equal(t, true, worker["is_enabled"])

	resp, _ = h.call(t, http.MethodDelete, "/replication/config/worker/worker-A", nil, true)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = h.call(t, http.MethodDelete, "/replication/config/worker/worker-A", nil, true)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestFamilyValidationOverHTTP(t *testing.T) {
	h := newHarness(t)

	resp, _ := h.call(t, http.MethodPost, "/replication/config/family", map[string]interface{}{
		"name": "bad", "replication_level": 0, "num_stripes": 60, "num_sub_stripes": 12, "overlap": 0.025,
	}, true)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTransactionLifecycleOverHTTP(t *testing.T) {
	h := newHarness(t)
	h.addFamily(t)

	require.NoError(t, h.cfg.AddDatabase(context.Background(),
		&config.Database{Name: "LSST", Family: "production"}))

	resp, body := h.call(t, http.MethodPost, "/ingest/trans",
		map[string]interface{}{"database": "LSST"}, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	trans := body["transaction"].(map[string]interface{})
	assert.Equal(t, "STARTED", trans["state"])
	id := uint64(trans["id"].(float64))

	resp, body = h.call(t, http.MethodPut, fmt.Sprintf("/ingest/trans/%d", id),
		map[string]interface{}{"state": "FINISHED"}, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "FINISHED", body["transaction"].(map[string]interface{})["state"])

	// finishing again is an illegal transition
	resp, _ = h.call(t, http.MethodPut, fmt.Sprintf("/ingest/trans/%d", id),
		map[string]interface{}{"state": "FINISHED"}, true)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = h.call(t, http.MethodPut, "/ingest/trans/999",
		map[string]interface{}{"state": "FINISHED"}, true)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUnpublishBlockedByActiveTransaction(t *testing.T) {
	h := newHarness(t)
	h.addFamily(t)
	require.NoError(t, h.cfg.AddDatabase(context.Background(),
		&config.Database{Name: "LSST", Family: "production"}))

	resp, _ := h.call(t, http.MethodPost, "/ingest/trans",
		map[string]interface{}{"database": "LSST"}, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// publish is fine, un-publish is blocked while the transaction is open
	resp, _ = h.call(t, http.MethodPut, "/replication/config/database/LSST",
		map[string]interface{}{"publish": 0}, true)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestSecondaryIndexRequiresUniqueKeyChoice(t *testing.T) {
	h := newHarness(t)
	h.addFamily(t)
	require.NoError(t, h.cfg.AddDatabase(context.Background(), &config.Database{
		Name:              "LSST",
		Family:            "production",
		PartitionedTables: []string{"Object"},
		DirectorTable:     "Object",
		DirectorTableKey:  "objectId",
	}))

	// unique_primary_key has no default
	resp, _ := h.call(t, http.MethodPost, "/ingest/index/secondary", map[string]interface{}{
		"database": "LSST", "director_table": "Object", "rebuild": true,
	}, true)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := h.call(t, http.MethodPost, "/ingest/index/secondary", map[string]interface{}{
		"database": "LSST", "director_table": "Object", "rebuild": true, "unique_primary_key": true,
	}, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "LSST.Object__idx", body["index_table"])
}
