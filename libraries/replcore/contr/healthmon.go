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

package contr

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// HealthMonitor probes workers periodically and evicts any worker whose
// probes have been failing for longer than the eviction window. Eviction
// notifies the subscribed callbacks, which return the worker's in-flight
// dispatch work to the pending state.
type HealthMonitor struct {
	ctrl          *Controller
	probeInterval time.Duration
	evictTimeout  time.Duration

	mu       sync.Mutex
	lastSeen map[string]time.Time
	evicted  map[string]bool
	onEvict  []func(workerName string)

	stop chan struct{}
	done chan struct{}
}

func NewHealthMonitor(ctrl *Controller, probeInterval, evictTimeout time.Duration) *HealthMonitor {
	return &HealthMonitor{
		ctrl:          ctrl,
		probeInterval: probeInterval,
		evictTimeout:  evictTimeout,
		lastSeen:      make(map[string]time.Time),
		evicted:       make(map[string]bool),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// OnEvict subscribes a callback invoked once per eviction.
func (hm *HealthMonitor) OnEvict(fn func(workerName string)) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.onEvict = append(hm.onEvict, fn)
}

// Start launches the probe loop.
func (hm *HealthMonitor) Start(ctx context.Context) {
	go func() {
		defer close(hm.done)
		ticker := time.NewTicker(hm.probeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-hm.stop:
				return
			case <-ticker.C:
				hm.ProbeOnce(ctx)
			}
		}
	}()
}

// Stop terminates the probe loop and waits for it to exit.
func (hm *HealthMonitor) Stop() {
	close(hm.stop)
	<-hm.done
}

// IsEvicted reports whether a worker is currently evicted.
func (hm *HealthMonitor) IsEvicted(workerName string) bool {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	return hm.evicted[workerName]
}

// ProbeOnce probes every enabled worker once and applies the eviction
// rule.
func (hm *HealthMonitor) ProbeOnce(ctx context.Context) {
	now := time.Now()

	for _, w := range hm.ctrl.enabledWorkers() {
		addr, err := hm.ctrl.workerAddr(w.Name)
		if err != nil {
			continue
		}

		pctx, cancel := context.WithTimeout(ctx, hm.probeInterval)
		err = hm.ctrl.client.Ping(pctx, addr, "replication")
		cancel()

		hm.mu.Lock()
		if _, ok := hm.lastSeen[w.Name]; !ok {
			hm.lastSeen[w.Name] = now
		}
		if err == nil {
			hm.lastSeen[w.Name] = now
			if hm.evicted[w.Name] {
				log.WithFields(log.Fields{"worker": w.Name}).Info("worker recovered")
				delete(hm.evicted, w.Name)
			}
			hm.mu.Unlock()
			continue
		}

		silent := now.Sub(hm.lastSeen[w.Name])
		alreadyEvicted := hm.evicted[w.Name]
		evict := !alreadyEvicted && silent >= hm.evictTimeout
		if evict {
			hm.evicted[w.Name] = true
		}
		callbacks := append([]func(string){}, hm.onEvict...)
		hm.mu.Unlock()

		if evict {
			log.WithFields(log.Fields{"worker": w.Name, "silent": silent}).Warn("evicting worker")
			for _, fn := range callbacks {
				fn(w.Name)
			}
		}
	}
}
