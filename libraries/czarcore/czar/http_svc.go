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
	"net/http"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/parsecdb/parsec/libraries/czarcore/qmeta"
	"github.com/parsecdb/parsec/libraries/czarcore/wire"
)

// HttpSvc is the czar's service endpoint: the proxy submits and kills
// queries here, and workers push uber-job completion notices back.
type HttpSvc struct {
	czar *Czar
}

func NewHttpSvc(c *Czar) *HttpSvc {
	return &HttpSvc{czar: c}
}

// Handler builds the czar's route table.
func (s *HttpSvc) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/czar/query", s.submitQuery).Methods(http.MethodPost)
	r.HandleFunc("/czar/query/kill", s.killQuery).Methods(http.MethodPost)
	r.HandleFunc("/czar/query/{id}", s.queryInfo).Methods(http.MethodGet)
	r.HandleFunc("/czar/result-ready", s.resultReady).Methods(http.MethodPost)
	return r
}

type submitRequest struct {
	Query string            `json:"query"`
	Hints map[string]string `json:"hints"`
}

type submitResponse struct {
	ErrorMessage string `json:"error_message,omitempty"`
	ResultTable  string `json:"result_table,omitempty"`
	MessageTable string `json:"message_table,omitempty"`
	ResultQuery  string `json:"result_query,omitempty"`
	QueryID      uint64 `json:"query_id,omitempty"`
}

func (s *HttpSvc) submitQuery(w http.ResponseWriter, req *http.Request) {
	var in submitRequest
	if err := json.NewDecoder(req.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, submitResponse{ErrorMessage: "malformed request: " + err.Error()})
		return
	}

	res := s.czar.SubmitQuery(req.Context(), in.Query, in.Hints)
	status := http.StatusOK
	if res.ErrorMessage != "" {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, submitResponse{
		ErrorMessage: res.ErrorMessage,
		ResultTable:  res.ResultTable,
		MessageTable: res.MessageTable,
		ResultQuery:  res.ResultQuery,
		QueryID:      uint64(res.QueryID),
	})
}

type killRequest struct {
	Query    string `json:"query"`
	ClientID string `json:"client_id"`
}

func (s *HttpSvc) killQuery(w http.ResponseWriter, req *http.Request) {
	var in killRequest
	if err := json.NewDecoder(req.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := s.czar.KillQuery(req.Context(), in.Query, in.ClientID); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"success": 1})
}

func (s *HttpSvc) queryInfo(w http.ResponseWriter, req *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(req)["id"], 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad query id"})
		return
	}

	info, progress, err := s.czar.GetQueryInfo(req.Context(), id)
	if err != nil {
		status := http.StatusInternalServerError
		if qmeta.ErrQueryNotFound.Is(err) {
			status = http.StatusNotFound
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"query": info, "progress": progress})
}

func (s *HttpSvc) resultReady(w http.ResponseWriter, req *http.Request) {
	var file wire.ResultFileReady
	if err := json.NewDecoder(req.Body).Decode(&file); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	s.czar.OnResultFileReady(&file)
	writeJSON(w, http.StatusOK, map[string]int{"success": 1})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.WithError(err).Warn("response encoding failed")
	}
}
