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

package async

import "sync"

// WaitGroup behaves like sync.WaitGroup except that Add may be called
// concurrently with Wait. Wait returns whenever the counter reaches zero;
// the counter may grow again afterwards.
type WaitGroup struct {
	mu   sync.Mutex
	cond *sync.Cond
	n    int64
}

func (wg *WaitGroup) Add(delta int) {
	wg.mu.Lock()
	defer wg.mu.Unlock()

	wg.n += int64(delta)
	if wg.n < 0 {
		panic("async.WaitGroup: negative counter")
	}
	if wg.n == 0 && wg.cond != nil {
		wg.cond.Broadcast()
	}
}

func (wg *WaitGroup) Done() {
	wg.Add(-1)
}

func (wg *WaitGroup) Wait() {
	wg.mu.Lock()
	defer wg.mu.Unlock()

	if wg.cond == nil {
		wg.cond = sync.NewCond(&wg.mu)
	}
	for wg.n > 0 {
		wg.cond.Wait()
	}
}
