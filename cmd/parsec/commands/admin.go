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
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/parsecdb/parsec/libraries/replcore/httpd"
)

// noopExec satisfies the local SQL surface when the controller runs
// without a database.
type noopExec struct{}

type noopResult struct{}

func (noopResult) LastInsertId() (int64, error) { return 0, nil }
func (noopResult) RowsAffected() (int64, error) { return 0, nil }

func (noopExec) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return noopResult{}, nil
}

// adminClient calls the controller's REST surface.
type adminClient struct {
	baseURL string
	token   string
}

func newAdminClient() *adminClient {
	return &adminClient{
		baseURL: viper.GetString("controller_url"),
		token:   viper.GetString("auth_token"),
	}
}

// call performs one JSON request. Domain failures (4xx) come back as
// plain errors; wire failures are transportError so the process exits
// with code 2.
func (c *adminClient) call(method, path string, payload map[string]interface{}, out interface{}) error {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	payload["version"] = httpd.APIVersion
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return transportError{err}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return transportError{err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return transportError{err}
	}

	if resp.StatusCode >= 500 {
		return transportError{fmt.Errorf("controller returned %d: %s", resp.StatusCode, body)}
	}
	if resp.StatusCode >= 400 {
		var decoded struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &decoded) == nil && decoded.Error != "" {
			return fmt.Errorf("%s", decoded.Error)
		}
		return fmt.Errorf("controller returned %d", resp.StatusCode)
	}

	if out != nil {
		return json.Unmarshal(body, out)
	}
	return nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newAdminCmd() *cobra.Command {
	admin := &cobra.Command{
		Use:   "admin",
		Short: "Administer a running replication controller",
	}
	admin.PersistentFlags().String("url", "http://localhost:25081", "controller base URL")
	admin.PersistentFlags().String("token", "", "admin auth token")
	_ = viper.BindPFlag("controller_url", admin.PersistentFlags().Lookup("url"))
	_ = viper.BindPFlag("auth_token", admin.PersistentFlags().Lookup("token"))

	admin.AddCommand(newAdminConfigCmd())
	admin.AddCommand(newAdminWorkersCmd())
	admin.AddCommand(newAdminHealthCmd())
	admin.AddCommand(newAdminTransCmd())
	admin.AddCommand(newAdminIndexCmd())
	admin.AddCommand(newAdminSyncCmd())
	return admin
}

func newAdminSyncCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "sync <family>",
		Short: "Push the catalog's good chunk lists to the workers of a family",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out map[string]interface{}
			err := newAdminClient().call(http.MethodPost, "/replication/qserv/sync", map[string]interface{}{
				"family": args[0], "force": force,
			}, &out)
			if err != nil {
				return err
			}
			return printJSON(out)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "force the sync even for workers in transient states")
	return cmd
}

func newAdminConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Dump the controller configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			var out map[string]interface{}
			if err := newAdminClient().call(http.MethodGet, "/replication/config", nil, &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	}

	set := &cobra.Command{
		Use:   "set <category> <parameter> <value>",
		Short: "Set a configuration parameter",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return newAdminClient().call(http.MethodPut, "/replication/config/general", map[string]interface{}{
				"category": args[0], "parameter": args[1], "value": args[2],
			}, nil)
		},
	}
	cmd.AddCommand(set)
	return cmd
}

func newAdminWorkersCmd() *cobra.Command {
	workers := &cobra.Command{
		Use:   "workers",
		Short: "Manage the worker registry",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List registered workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			var out map[string]interface{}
			if err := newAdminClient().call(http.MethodGet, "/replication/worker", nil, &out); err != nil {
				return err
			}
			return printJSON(out["workers"])
		},
	}

	var host string
	var port int
	add := &cobra.Command{
		Use:   "add <name>",
		Short: "Register a worker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return newAdminClient().call(http.MethodPost, "/replication/config/worker", map[string]interface{}{
				"worker": map[string]interface{}{
					"name": args[0],
					"svc":  map[string]interface{}{"host": host, "port": port},
					"fs":   map[string]interface{}{"host": host, "port": port + 1},
				},
			}, nil)
		},
	}
	add.Flags().StringVar(&host, "host", "", "worker host")
	add.Flags().IntVar(&port, "port", 25000, "worker replication service port")
	_ = add.MarkFlagRequired("host")

	remove := &cobra.Command{
		Use:   "delete <name>",
		Short: "Unregister a worker and its replica records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return newAdminClient().call(http.MethodDelete, "/replication/config/worker/"+args[0], nil, nil)
		},
	}

	workers.AddCommand(list, add, remove)
	return workers
}

func newAdminHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Probe the replication and query services of every worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			var out map[string]interface{}
			if err := newAdminClient().call(http.MethodGet, "/replication/health", nil, &out); err != nil {
				return err
			}
			return printJSON(out["workers"])
		},
	}
}

func newAdminTransCmd() *cobra.Command {
	trans := &cobra.Command{
		Use:   "trans",
		Short: "Manage ingest transactions",
	}

	list := &cobra.Command{
		Use:   "list [database]",
		Short: "List transactions",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/ingest/trans"
			if len(args) == 1 {
				path += "?database=" + args[0]
			}
			var out map[string]interface{}
			if err := newAdminClient().call(http.MethodGet, path, nil, &out); err != nil {
				return err
			}
			return printJSON(out["transactions"])
		},
	}

	begin := &cobra.Command{
		Use:   "begin <database>",
		Short: "Begin a transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out map[string]interface{}
			err := newAdminClient().call(http.MethodPost, "/ingest/trans",
				map[string]interface{}{"database": args[0]}, &out)
			if err != nil {
				return err
			}
			return printJSON(out["transaction"])
		},
	}

	end := &cobra.Command{
		Use:   "end <id> <state>",
		Short: "End a transaction (FINISHED or ABORTED)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := strconv.ParseUint(args[0], 10, 64); err != nil {
				return fmt.Errorf("bad transaction id %q", args[0])
			}
			var out map[string]interface{}
			err := newAdminClient().call(http.MethodPut, "/ingest/trans/"+args[0],
				map[string]interface{}{"state": args[1]}, &out)
			if err != nil {
				return err
			}
			return printJSON(out["transaction"])
		},
	}

	trans.AddCommand(list, begin, end)
	return trans
}

func newAdminIndexCmd() *cobra.Command {
	var rebuild, unique bool

	cmd := &cobra.Command{
		Use:   "index <database> <director-table>",
		Short: "Build or rebuild a director index",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("unique-primary-key") {
				return fmt.Errorf("--unique-primary-key must be set explicitly (true or false)")
			}
			var out map[string]interface{}
			err := newAdminClient().call(http.MethodPost, "/ingest/index/secondary", map[string]interface{}{
				"database":           args[0],
				"director_table":     args[1],
				"rebuild":            rebuild,
				"unique_primary_key": unique,
			}, &out)
			if err != nil {
				return err
			}
			return printJSON(out)
		},
	}
	cmd.Flags().BoolVar(&rebuild, "rebuild", false, "drop and recreate the index table")
	cmd.Flags().BoolVar(&unique, "unique-primary-key", false, "enforce a unique director key")
	return cmd
}
