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

import (
	"io"
	"sync"

	"github.com/pkg/errors"
)

// ErrWrongEpoch is returned by Push when the supplied epoch does not match
// the buffer's current epoch, meaning the buffer was Reset since the caller
// last observed it.
var ErrWrongEpoch = errors.New("wrong epoch")

var errClosedBuffer = errors.New("ring buffer closed")

// RingBuffer is a growable FIFO shared by concurrent producers and
// consumers. It starts with allocSize slots and doubles when full. Reset
// advances an epoch counter so stale producers fail instead of writing into
// a reused buffer.
type RingBuffer struct {
	mu       sync.Mutex
	notEmpty *sync.Cond

	items  []interface{}
	head   int
	len    int
	closed bool
	epoch  int
}

// NewRingBuffer creates a RingBuffer with an initial capacity of allocSize.
func NewRingBuffer(allocSize int) *RingBuffer {
	if allocSize < 1 {
		allocSize = 1
	}

	rb := &RingBuffer{items: make([]interface{}, allocSize)}
	rb.notEmpty = sync.NewCond(&rb.mu)
	return rb
}

// Push appends item to the buffer. It fails with ErrWrongEpoch if epoch is
// stale and with an error if the buffer has been closed.
func (rb *RingBuffer) Push(item interface{}, epoch int) error {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.closed {
		return errClosedBuffer
	}
	if epoch != rb.epoch {
		return ErrWrongEpoch
	}

	if rb.len == len(rb.items) {
		rb.grow()
	}

	rb.items[(rb.head+rb.len)%len(rb.items)] = item
	rb.len++
	rb.notEmpty.Signal()
	return nil
}

// Pop blocks until an item is available or the buffer is closed and empty,
// in which case it returns io.EOF.
func (rb *RingBuffer) Pop() (interface{}, error) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	for rb.len == 0 {
		if rb.closed {
			return nil, io.EOF
		}
		rb.notEmpty.Wait()
	}

	return rb.popLocked(), nil
}

// TryPop returns the next item without blocking. The bool result is false
// when no item was available.
func (rb *RingBuffer) TryPop() (interface{}, bool) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.len == 0 {
		return nil, false
	}
	return rb.popLocked(), true
}

// Close wakes all blocked consumers. Outstanding items may still be popped;
// once the buffer drains, Pop returns io.EOF.
func (rb *RingBuffer) Close() error {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.closed = true
	rb.notEmpty.Broadcast()
	return nil
}

// Reset discards buffered items and advances the epoch, returning the new
// value. Pushes carrying the old epoch fail with ErrWrongEpoch.
func (rb *RingBuffer) Reset() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.head = 0
	rb.len = 0
	rb.epoch++
	return rb.epoch
}

func (rb *RingBuffer) popLocked() interface{} {
	item := rb.items[rb.head]
	rb.items[rb.head] = nil
	rb.head = (rb.head + 1) % len(rb.items)
	rb.len--
	return item
}

func (rb *RingBuffer) grow() {
	bigger := make([]interface{}, 2*len(rb.items))
	for i := 0; i < rb.len; i++ {
		bigger[i] = rb.items[(rb.head+i)%len(rb.items)]
	}
	rb.items = bigger
	rb.head = 0
}
