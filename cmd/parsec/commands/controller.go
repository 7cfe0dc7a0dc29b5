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

package commands

import (
	"fmt"
	"net/http"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/parsecdb/parsec/libraries/czarcore/wire"
	"github.com/parsecdb/parsec/libraries/replcore/config"
	"github.com/parsecdb/parsec/libraries/replcore/contr"
	"github.com/parsecdb/parsec/libraries/replcore/events"
	"github.com/parsecdb/parsec/libraries/replcore/httpd"
	"github.com/parsecdb/parsec/libraries/replcore/ingest"
)

func newControllerCmd() *cobra.Command {
	var dsn, instanceID string

	cmd := &cobra.Command{
		Use:   "controller",
		Short: "Run the replication controller and its HTTP control surface",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := viper.GetString("auth_secret")
			if secret == "" {
				return fmt.Errorf("an auth secret is required (flag --auth-secret or PARSEC_AUTH_SECRET)")
			}
			return runController(cmd, dsn, instanceID, []byte(secret))
		},
	}
	cmd.Flags().StringVar(&dsn, "dsn", "", "replication database DSN; empty runs on an in-memory store")
	cmd.Flags().StringVar(&instanceID, "instance-id", "parsec", "cluster installation identifier")
	cmd.Flags().String("auth-secret", "", "HMAC secret signing admin tokens")
	_ = viper.BindPFlag("auth_secret", cmd.Flags().Lookup("auth-secret"))
	return cmd
}

func runController(cmd *cobra.Command, dsn, instanceID string, secret []byte) error {
	ctx := cmd.Context()

	var store config.Store
	if dsn == "" {
		log.Warn("no DSN given, configuration will not survive restarts")
		store = config.NewMemStore()
	} else {
		db, err := sqlx.Open("mysql", dsn)
		if err != nil {
			return transportError{err}
		}
		store = config.NewMySQLStore(db)
	}

	cfg, err := config.NewConfiguration(ctx, store)
	if err != nil {
		return err
	}

	timeout, _ := cfg.GetInt("xrootd", "request_timeout_sec")
	client := wire.NewClient(time.Duration(timeout)*time.Second, 2)
	eventLog := events.NewMemLog()
	ctrl := contr.NewController(cfg, client, eventLog)
	trans := ingest.NewRegistry(cfg)

	probeInterval, _ := cfg.GetInt("controller", "health_probe_interval_sec")
	evictTimeout, _ := cfg.GetInt("controller", "worker_evict_timeout_sec")
	health := contr.NewHealthMonitor(ctrl,
		time.Duration(probeInterval)*time.Second, time.Duration(evictTimeout)*time.Second)
	health.Start(ctx)
	defer health.Stop()

	var localDb contr.SQLExec
	if dsn != "" {
		db, err := sqlx.Open("mysql", dsn)
		if err != nil {
			return transportError{err}
		}
		localDb = db
	} else {
		localDb = noopExec{}
	}

	srv := httpd.NewServer(cfg, ctrl, trans, eventLog, localDb, instanceID, secret)

	port, _ := cfg.GetInt("controller", "http_server_port")
	addr := fmt.Sprintf(":%d", port)
	log.WithFields(log.Fields{"addr": addr, "controller": ctrl.ID}).Info("controller listening")
	if err := http.ListenAndServe(addr, srv.Handler()); err != nil {
		return transportError{err}
	}
	return nil
}
