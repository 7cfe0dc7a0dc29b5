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
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	_ "github.com/go-sql-driver/mysql"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jmoiron/sqlx"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"

	"github.com/parsecdb/parsec/libraries/czarcore/css"
	"github.com/parsecdb/parsec/libraries/czarcore/czar"
	"github.com/parsecdb/parsec/libraries/czarcore/qdisp"
	"github.com/parsecdb/parsec/libraries/czarcore/qmeta"
	"github.com/parsecdb/parsec/libraries/czarcore/qproc"
	"github.com/parsecdb/parsec/libraries/czarcore/rproc"
	"github.com/parsecdb/parsec/libraries/czarcore/wire"
	"github.com/parsecdb/parsec/libraries/replcore/config"
	"github.com/parsecdb/parsec/libraries/replcore/contr"
	"github.com/parsecdb/parsec/libraries/replcore/events"
)

func newCzarCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "czar",
		Short: "Run the query coordinator",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCzar(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "/etc/parsec/czar.yaml", "czar configuration file")
	return cmd
}

// indexReader resolves director-index lookups against the local result
// database connection. Point lookups repeat heavily, so resolved lookup
// statements are cached.
type indexReader struct {
	db    *sqlx.DB
	cache *lru.Cache[string, []qproc.ChunkSpec]
}

func newIndexReader(db *sqlx.DB) *indexReader {
	cache, _ := lru.New[string, []qproc.ChunkSpec](4096)
	return &indexReader{db: db, cache: cache}
}

func (r *indexReader) LookupChunks(ctx context.Context, lookupSQL string) ([]qproc.ChunkSpec, error) {
	if specs, ok := r.cache.Get(lookupSQL); ok {
		return specs, nil
	}

	rows := []struct {
		ChunkID    int `db:"chunkId"`
		SubChunkID int `db:"subChunkId"`
	}{}
	if err := r.db.SelectContext(ctx, &rows, lookupSQL); err != nil {
		return nil, err
	}

	byChunk := make(map[int][]int)
	for _, row := range rows {
		byChunk[row.ChunkID] = append(byChunk[row.ChunkID], row.SubChunkID)
	}
	specs := make([]qproc.ChunkSpec, 0, len(byChunk))
	for chunk, subs := range byChunk {
		specs = append(specs, qproc.ChunkSpec{ChunkID: chunk, SubChunks: subs})
	}
	r.cache.Add(lookupSQL, specs)
	return specs, nil
}

func runCzar(ctx context.Context, configPath string) error {
	cfg, err := czar.LoadConfig(configPath)
	if err != nil {
		return err
	}

	resultDB, err := sqlx.Open("mysql", cfg.ResultDSN)
	if err != nil {
		return transportError{err}
	}
	qmetaDB, err := sqlx.Open("mysql", cfg.QMetaDSN)
	if err != nil {
		return transportError{err}
	}
	replDB, err := sqlx.Open("mysql", cfg.ReplicationDSN)
	if err != nil {
		return transportError{err}
	}

	facade, err := loadCatalog(cfg.CssFile)
	if err != nil {
		return err
	}

	replCfg, err := config.NewConfiguration(ctx, config.NewMySQLStore(replDB))
	if err != nil {
		return err
	}

	client := wire.NewClient(time.Duration(cfg.WorkerResponseTimeoutSec)*time.Second, cfg.WorkerMaxRetries)
	ctrl := contr.NewController(replCfg, client, events.NewMemLog())

	for _, w := range replCfg.Workers() {
		if err := ctrl.SyncInventory(ctx, w.Name); err != nil {
			log.WithFields(log.Fields{"worker": w.Name}).WithError(err).
				Warn("initial inventory sync failed")
		}
	}

	probeInterval, _ := replCfg.GetInt("controller", "health_probe_interval_sec")
	evictTimeout, _ := replCfg.GetInt("controller", "worker_evict_timeout_sec")
	health := contr.NewHealthMonitor(ctrl,
		time.Duration(probeInterval)*time.Second, time.Duration(evictTimeout)*time.Second)

	registry := contr.NewRegistry(replCfg, ctrl.Replicas(), health)
	pool := qdisp.NewQdispPool(ctx, qdisp.PoolConfig{
		PoolSize:        cfg.QdispPoolSize,
		MaxPriority:     cfg.QdispMaxPriority,
		RunSizes:        cfg.QdispVectRunSizes,
		MinRunningSizes: cfg.QdispVectMinRunningSizes,
	})

	mergers := func(qid qmeta.QueryID, table string) czar.Finalizer {
		return rproc.NewInfileMerger(resultDB, client, rproc.Config{
			ResultDb:         cfg.ResultDb,
			ResultLimitBytes: cfg.ResultLimitBytes,
		}, uint64(qid), table)
	}

	c, err := czar.NewCzar(ctx, cfg, czar.Deps{
		Meta:     qmeta.NewMySQLQMeta(qmetaDB),
		Catalog:  facade,
		Registry: registry,
		Comms:    client,
		Pool:     pool,
		ResultDB: resultDB,
		Gen:      qproc.NewGenerator(facade, registry, newIndexReader(resultDB)),
		Mergers:  mergers,
	})
	if err != nil {
		return err
	}

	health.OnEvict(c.OnWorkerEvicted)
	health.Start(ctx)
	defer health.Stop()

	addr := fmt.Sprintf(":%d", cfg.HttpPort)
	log.WithFields(log.Fields{"addr": addr, "czar": cfg.Name}).Info("czar service listening")
	if err := http.ListenAndServe(addr, czar.NewHttpSvc(c).Handler()); err != nil {
		return transportError{err}
	}
	return nil
}

// loadCatalog reads a catalog snapshot file: a flat YAML map of catalog
// key to value.
func loadCatalog(path string) (*css.Facade, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	kv := map[string]string{}
	if err := yaml.Unmarshal(data, &kv); err != nil {
		return nil, err
	}
	return css.NewFacade(css.NewMapKVStore(kv))
}
