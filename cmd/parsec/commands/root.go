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

// Package commands wires the parsec command line: the czar and
// replication-controller services plus the admin client.
package commands

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/parsecdb/parsec/libraries/czarcore/wire"
)

// Exit codes: 0 success, 1 domain error (bad input, config error, unknown
// entity), 2 transport or I/O error.
const (
	exitOK        = 0
	exitDomainErr = 1
	exitTransport = 2
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "parsec",
		Short:         "parsec distributed spatial SQL coordinator and replication control plane",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("log-level", "info", "logging level (trace..panic)")
	_ = viper.BindPFlag("log_level", root.PersistentFlags().Lookup("log-level"))
	viper.SetEnvPrefix("PARSEC")
	viper.AutomaticEnv()

	cobra.OnInitialize(func() {
		level, err := log.ParseLevel(viper.GetString("log_level"))
		if err != nil {
			level = log.InfoLevel
		}
		log.SetLevel(level)
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	})

	root.AddCommand(newCzarCmd())
	root.AddCommand(newControllerCmd())
	root.AddCommand(newAdminCmd())
	return root
}

// Execute runs the CLI and maps errors onto exit codes.
func Execute() int {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		if wire.ErrTransport.Is(err) || isTransportErr(err) {
			return exitTransport
		}
		return exitDomainErr
	}
	return exitOK
}

// transportError marks failures of the wire rather than the request.
type transportError struct{ err error }

func (e transportError) Error() string { return e.err.Error() }
func (e transportError) Unwrap() error { return e.err }

func isTransportErr(err error) bool {
	_, ok := err.(transportError)
	return ok
}
