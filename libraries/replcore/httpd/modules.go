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
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/parsecdb/parsec/libraries/czarcore/wire"
	"github.com/parsecdb/parsec/libraries/replcore/config"
	"github.com/parsecdb/parsec/libraries/replcore/contr"
	"github.com/parsecdb/parsec/libraries/replcore/events"
	"github.com/parsecdb/parsec/libraries/replcore/ingest"
)

func (s *Server) metaVersion(w http.ResponseWriter, req *http.Request) {
	respond(w, http.StatusOK, map[string]interface{}{
		"kind":                    "replication-controller",
		"id":                      s.ctrl.ID,
		"database_schema_version": config.ExpectedSchemaVersion,
		"instance_id":             s.instanceID,
		"version":                 APIVersion,
	})
}

func (s *Server) getConfig(w http.ResponseWriter, req *http.Request, b *body) {
	showSecurity := req.URL.Query().Get("show_password") == "1"
	respond(w, http.StatusOK, map[string]interface{}{
		"config": map[string]interface{}{
			"parameters": s.cfg.Dump(showSecurity),
			"workers":    s.cfg.Workers(),
			"families":   s.cfg.Families(),
			"databases":  s.cfg.Databases(),
		},
	})
}

func (s *Server) putConfigGeneral(w http.ResponseWriter, req *http.Request, b *body) {
	var category, parameter, value string
	if err := b.decode("category", &category); err != nil {
		respondServiceError(w, err)
		return
	}
	if err := b.decode("parameter", &parameter); err != nil {
		respondServiceError(w, err)
		return
	}
	if err := b.decode("value", &value); err != nil {
		respondServiceError(w, err)
		return
	}

	if err := s.cfg.SetFromString(req.Context(), category, parameter, value); err != nil {
		respondServiceError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]interface{}{"parameters": s.cfg.Dump(false)})
}

func (s *Server) postWorker(w http.ResponseWriter, req *http.Request, b *body) {
	var worker config.Worker
	if err := b.decode("worker", &worker); err != nil {
		respondServiceError(w, err)
		return
	}
	// flags arrive as tri-states for symmetry with updates
	enabled, readOnly := config.FlagTrue, config.FlagFalse
	_ = b.decodeOptional("is-enabled", &enabled)
	_ = b.decodeOptional("is-read-only", &readOnly)
	worker.IsEnabled = enabled != config.FlagFalse
	worker.IsReadOnly = readOnly == config.FlagTrue

	if err := s.cfg.AddWorker(req.Context(), &worker); err != nil {
		respondServiceError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]interface{}{"worker": worker})
}

func (s *Server) putWorker(w http.ResponseWriter, req *http.Request, b *body) {
	name := mux.Vars(req)["worker"]

	update := config.WorkerUpdate{IsEnabled: config.FlagUnchanged, IsReadOnly: config.FlagUnchanged}
	if err := b.decodeOptional("is-enabled", &update.IsEnabled); err != nil {
		respondServiceError(w, err)
		return
	}
	if err := b.decodeOptional("is-read-only", &update.IsReadOnly); err != nil {
		respondServiceError(w, err)
		return
	}

	worker, err := s.cfg.UpdateWorker(req.Context(), name, update)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]interface{}{"worker": worker})
}

func (s *Server) deleteWorker(w http.ResponseWriter, req *http.Request, b *body) {
	name := mux.Vars(req)["worker"]
	if err := s.cfg.DeleteWorker(req.Context(), name); err != nil {
		respondServiceError(w, err)
		return
	}
	s.ctrl.Replicas().ResetWorker(name)
	respond(w, http.StatusOK, map[string]interface{}{"success": 1})
}

func (s *Server) postFamily(w http.ResponseWriter, req *http.Request, b *body) {
	family := config.Family{}
	if err := b.decode("name", &family.Name); err != nil {
		respondServiceError(w, err)
		return
	}
	if err := b.decode("replication_level", &family.ReplicationLevel); err != nil {
		respondServiceError(w, err)
		return
	}
	if err := b.decode("num_stripes", &family.NumStripes); err != nil {
		respondServiceError(w, err)
		return
	}
	if err := b.decode("num_sub_stripes", &family.NumSubStripes); err != nil {
		respondServiceError(w, err)
		return
	}
	if err := b.decode("overlap", &family.Overlap); err != nil {
		respondServiceError(w, err)
		return
	}

	if err := s.cfg.AddFamily(req.Context(), &family); err != nil {
		respondServiceError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]interface{}{"family": family})
}

func (s *Server) deleteFamily(w http.ResponseWriter, req *http.Request, b *body) {
	name := mux.Vars(req)["family"]
	if err := s.cfg.DeleteFamily(req.Context(), name); err != nil {
		respondServiceError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]interface{}{"success": 1})
}

// putDatabase publishes or unpublishes a database. Un-publishing is
// blocked while the database has an active ingest transaction.
func (s *Server) putDatabase(w http.ResponseWriter, req *http.Request, b *body) {
	name := mux.Vars(req)["database"]

	var publish int
	if err := b.decode("publish", &publish); err != nil {
		respondServiceError(w, err)
		return
	}

	if publish == 0 && s.trans.HasActive(name) {
		respondError(w, http.StatusConflict,
			"database "+name+" has active ingest transactions")
		return
	}

	d, err := s.cfg.SetDatabasePublished(req.Context(), name, publish != 0)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]interface{}{"database": d})
}

func (s *Server) getWorkers(w http.ResponseWriter, req *http.Request, b *body) {
	respond(w, http.StatusOK, map[string]interface{}{"workers": s.cfg.Workers()})
}

func (s *Server) getEvents(w http.ResponseWriter, req *http.Request, b *body) {
	q := req.URL.Query()
	filter := events.Filter{
		Task:            q.Get("task"),
		Operation:       q.Get("operation"),
		OperationStatus: q.Get("operation_status"),
	}
	found, err := s.eventLog.Query(req.Context(), filter)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]interface{}{"events": found})
}

func (s *Server) postSql(w http.ResponseWriter, req *http.Request, b *body) {
	var worker, query, user, password string
	if err := b.decode("worker", &worker); err != nil {
		respondServiceError(w, err)
		return
	}
	if err := b.decode("query", &query); err != nil {
		respondServiceError(w, err)
		return
	}
	_ = b.decodeOptional("user", &user)
	_ = b.decodeOptional("password", &password)
	var maxRows uint64
	_ = b.decodeOptional("max_rows", &maxRows)

	job := contr.NewSqlJob(worker, query, user, password, maxRows, s.requestTimeoutSec())
	if err := job.Run(req.Context(), s.ctrl); err != nil {
		respondServiceError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]interface{}{"result_sets": job.Response})
}

func (s *Server) getTransactions(w http.ResponseWriter, req *http.Request, b *body) {
	database := req.URL.Query().Get("database")
	respond(w, http.StatusOK, map[string]interface{}{
		"transactions": s.trans.Transactions(database),
	})
}

func (s *Server) postTransaction(w http.ResponseWriter, req *http.Request, b *body) {
	var database string
	if err := b.decode("database", &database); err != nil {
		respondServiceError(w, err)
		return
	}

	t, err := s.trans.Begin(req.Context(), database, nil)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]interface{}{"transaction": t})
}

func (s *Server) putTransaction(w http.ResponseWriter, req *http.Request, b *body) {
	id, err := strconv.ParseUint(mux.Vars(req)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "bad transaction id")
		return
	}

	var state string
	if err := b.decode("state", &state); err != nil {
		respondServiceError(w, err)
		return
	}

	t, err := s.trans.Update(req.Context(), id, ingest.State(state))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]interface{}{"transaction": t})
}

// postSecondaryIndex builds or rebuilds a director index. The
// unique_primary_key parameter has no default: the caller must decide.
func (s *Server) postSecondaryIndex(w http.ResponseWriter, req *http.Request, b *body) {
	var database, directorTable string
	if err := b.decode("database", &database); err != nil {
		respondServiceError(w, err)
		return
	}
	if err := b.decode("director_table", &directorTable); err != nil {
		respondServiceError(w, err)
		return
	}
	var unique bool
	if err := b.decode("unique_primary_key", &unique); err != nil {
		respondServiceError(w, err)
		return
	}
	var rebuild bool
	_ = b.decodeOptional("rebuild", &rebuild)

	job := contr.NewDirectorIndexJob(database, directorTable, rebuild, unique, s.requestTimeoutSec())
	if err := job.Run(req.Context(), s.ctrl, s.localDb); err != nil {
		if len(job.Errors) > 0 {
			respond(w, http.StatusInternalServerError, map[string]interface{}{
				"error":  err.Error(),
				"errors": job.Errors,
			})
			return
		}
		respondServiceError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]interface{}{"success": 1, "index_table": job.IndexTableName()})
}

func (s *Server) requestTimeoutSec() int {
	timeout, err := s.cfg.GetInt("controller", "request_timeout_sec")
	if err != nil || timeout <= 0 {
		return 300
	}
	return int(timeout)
}

func (s *Server) postService(w http.ResponseWriter, req *http.Request, b *body) {
	var operation string
	if err := b.decode("operation", &operation); err != nil {
		respondServiceError(w, err)
		return
	}
	op := wire.ServiceOp(strings.ToUpper(operation))
	switch op {
	case wire.ServiceStatus, wire.ServiceSuspend, wire.ServiceResume, wire.ServiceRequests, wire.ServiceDrain:
	default:
		respondError(w, http.StatusBadRequest, "unknown service operation "+operation)
		return
	}

	job := contr.NewServiceManagementJob(op, s.requestTimeoutSec())
	err := job.Run(req.Context(), s.ctrl)
	payload := map[string]interface{}{"result": job.Result(), "workers": job.Results}
	if err != nil {
		payload["error"] = err.Error()
		respond(w, http.StatusOK, payload)
		return
	}
	respond(w, http.StatusOK, payload)
}

func (s *Server) postQservSync(w http.ResponseWriter, req *http.Request, b *body) {
	var family string
	if err := b.decode("family", &family); err != nil {
		respondServiceError(w, err)
		return
	}
	var force bool
	_ = b.decodeOptional("force", &force)

	job := contr.NewQservSyncJob(family, s.requestTimeoutSec(), force)
	if err := job.Run(req.Context(), s.ctrl); err != nil {
		respondServiceError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]interface{}{
		"result": job.Result(),
		"prev":   job.Prev,
		"new":    job.New,
	})
}

func (s *Server) postReplicationLevel(w http.ResponseWriter, req *http.Request, b *body) {
	var family string
	if err := b.decode("family", &family); err != nil {
		respondServiceError(w, err)
		return
	}

	job := contr.NewReplicationJob(family, s.requestTimeoutSec())
	if err := job.Run(req.Context(), s.ctrl); err != nil {
		respondServiceError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]interface{}{
		"result":  job.Result(),
		"added":   job.Added,
		"removed": job.Removed,
	})
}

func (s *Server) getClusterHealth(w http.ResponseWriter, req *http.Request, b *body) {
	job := contr.NewClusterHealthJob(s.requestTimeoutSec())
	if err := job.Run(req.Context(), s.ctrl); err != nil {
		respondServiceError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]interface{}{"workers": job.Health})
}
