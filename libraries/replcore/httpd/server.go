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

// Package httpd is the versioned JSON REST surface of the replication
// controller: configuration, ingest transactions, director index builds,
// monitoring. Handlers stay thin; they parse a request, call one service
// method and serialize the result.
package httpd

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/codegangsta/negroni"
	jwt "github.com/dgrijalva/jwt-go"
	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/parsecdb/parsec/libraries/replcore/config"
	"github.com/parsecdb/parsec/libraries/replcore/contr"
	"github.com/parsecdb/parsec/libraries/replcore/events"
	"github.com/parsecdb/parsec/libraries/replcore/ingest"
)

// APIVersion is the protocol version of this surface. Every request must
// carry the same value in its body or in the "version" query parameter.
const APIVersion = 12

// AuthType gates one route.
type AuthType int

const (
	AuthNone AuthType = iota
	AuthRequired
)

// Server wires the REST routes to the underlying services.
type Server struct {
	cfg        *config.Configuration
	ctrl       *contr.Controller
	trans      *ingest.Registry
	eventLog   events.Log
	localDb    contr.SQLExec
	instanceID string
	authSecret []byte
}

func NewServer(cfg *config.Configuration, ctrl *contr.Controller, trans *ingest.Registry,
	eventLog events.Log, localDb contr.SQLExec, instanceID string, authSecret []byte) *Server {
	return &Server{
		cfg:        cfg,
		ctrl:       ctrl,
		trans:      trans,
		eventLog:   eventLog,
		localDb:    localDb,
		instanceID: instanceID,
		authSecret: authSecret,
	}
}

// Handler builds the full middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/meta/version", s.metaVersion).Methods(http.MethodGet)

	r.HandleFunc("/replication/config", s.route(AuthNone, s.getConfig)).Methods(http.MethodGet)
	r.HandleFunc("/replication/config/general", s.route(AuthRequired, s.putConfigGeneral)).Methods(http.MethodPut)
	r.HandleFunc("/replication/config/worker", s.route(AuthRequired, s.postWorker)).Methods(http.MethodPost)
	r.HandleFunc("/replication/config/worker/{worker}", s.route(AuthRequired, s.putWorker)).Methods(http.MethodPut)
	r.HandleFunc("/replication/config/worker/{worker}", s.route(AuthRequired, s.deleteWorker)).Methods(http.MethodDelete)
	r.HandleFunc("/replication/config/family", s.route(AuthRequired, s.postFamily)).Methods(http.MethodPost)
	r.HandleFunc("/replication/config/family/{family}", s.route(AuthRequired, s.deleteFamily)).Methods(http.MethodDelete)
	r.HandleFunc("/replication/config/database/{database}", s.route(AuthRequired, s.putDatabase)).Methods(http.MethodPut)

	r.HandleFunc("/replication/controller/events", s.route(AuthNone, s.getEvents)).Methods(http.MethodGet)
	r.HandleFunc("/replication/worker", s.route(AuthNone, s.getWorkers)).Methods(http.MethodGet)
	r.HandleFunc("/replication/sql", s.route(AuthRequired, s.postSql)).Methods(http.MethodPost)
	r.HandleFunc("/replication/service", s.route(AuthRequired, s.postService)).Methods(http.MethodPost)
	r.HandleFunc("/replication/qserv/sync", s.route(AuthRequired, s.postQservSync)).Methods(http.MethodPost)
	r.HandleFunc("/replication/level", s.route(AuthRequired, s.postReplicationLevel)).Methods(http.MethodPost)
	r.HandleFunc("/replication/health", s.route(AuthNone, s.getClusterHealth)).Methods(http.MethodGet)

	r.HandleFunc("/ingest/trans", s.route(AuthNone, s.getTransactions)).Methods(http.MethodGet)
	r.HandleFunc("/ingest/trans", s.route(AuthRequired, s.postTransaction)).Methods(http.MethodPost)
	r.HandleFunc("/ingest/trans/{id}", s.route(AuthRequired, s.putTransaction)).Methods(http.MethodPut)
	r.HandleFunc("/ingest/index/secondary", s.route(AuthRequired, s.postSecondaryIndex)).Methods(http.MethodPost)

	n := negroni.New(negroni.NewRecovery())
	n.UseHandler(r)
	return n
}

// body is the decoded JSON payload plus raw access for handler structs.
type body struct {
	raw map[string]json.RawMessage
}

func parseBody(req *http.Request) (*body, error) {
	b := &body{raw: make(map[string]json.RawMessage)}
	if req.Body == nil || req.ContentLength == 0 {
		return b, nil
	}
	if err := json.NewDecoder(req.Body).Decode(&b.raw); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *body) decode(key string, dst interface{}) error {
	raw, ok := b.raw[key]
	if !ok {
		return config.ErrConfig.New("required parameter " + key + " is missing")
	}
	return json.Unmarshal(raw, dst)
}

func (b *body) decodeOptional(key string, dst interface{}) error {
	raw, ok := b.raw[key]
	if !ok {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

func (b *body) has(key string) bool {
	_, ok := b.raw[key]
	return ok
}

type handlerFunc func(w http.ResponseWriter, req *http.Request, b *body)

// route wraps a handler with body parsing, the API-version check and auth
// gating.
func (s *Server) route(auth AuthType, fn handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if auth == AuthRequired && !s.authorized(req) {
			respondError(w, http.StatusUnauthorized, "authorization required")
			return
		}

		b, err := parseBody(req)
		if err != nil {
			respondError(w, http.StatusBadRequest, "malformed JSON body: "+err.Error())
			return
		}
		if !s.versionOK(req, b) {
			respondError(w, http.StatusBadRequest, "API version mismatch")
			return
		}
		fn(w, req, b)
	}
}

// versionOK accepts the version from the body or the query string.
func (s *Server) versionOK(req *http.Request, b *body) bool {
	var version int
	if b.has("version") {
		if err := b.decode("version", &version); err != nil {
			return false
		}
		return version == APIVersion
	}
	if v := req.URL.Query().Get("version"); v != "" {
		version, err := strconv.Atoi(v)
		return err == nil && version == APIVersion
	}
	return false
}

// authorized validates the bearer token of a mutating request.
func (s *Server) authorized(req *http.Request) bool {
	header := req.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return false
	}
	tokenStr := strings.TrimPrefix(header, "Bearer ")

	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, config.ErrConfig.New("unexpected token signing method")
		}
		return s.authSecret, nil
	})
	return err == nil && token.Valid
}

// IssueToken signs an admin token for this surface.
func (s *Server) IssueToken(subject string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": subject})
	return token.SignedString(s.authSecret)
}

func respond(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.WithError(err).Warn("response encoding failed")
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respond(w, status, map[string]interface{}{"error": msg})
}

// respondServiceError maps service errors onto HTTP statuses.
func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case config.ErrNotFound.Is(err), ingest.ErrNoSuchTransaction.Is(err):
		respondError(w, http.StatusNotFound, err.Error())
	case config.ErrConflict.Is(err):
		respondError(w, http.StatusConflict, err.Error())
	case config.ErrConfig.Is(err), config.ErrReadOnly.Is(err), ingest.ErrTransaction.Is(err):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}
