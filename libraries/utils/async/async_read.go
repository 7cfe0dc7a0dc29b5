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
	"context"
	"io"
	"sync"
)

// ReadFunc reads the next item from some underlying source. It returns
// io.EOF when the source is exhausted.
type ReadFunc func(ctx context.Context) (interface{}, error)

type readRes struct {
	val interface{}
	err error
}

// AsyncReader pulls items from a ReadFunc on a background goroutine,
// buffering up to bufferSize results ahead of the consumer.
type AsyncReader struct {
	rf      ReadFunc
	resBuf  chan readRes
	cancel  context.CancelFunc
	once    sync.Once
	stopped chan struct{}
}

// NewAsyncReader creates an AsyncReader reading from rf with the given
// read-ahead buffer size. Start must be called before Read.
func NewAsyncReader(rf ReadFunc, bufferSize int) *AsyncReader {
	if bufferSize < 1 {
		bufferSize = 1
	}

	return &AsyncReader{
		rf:      rf,
		resBuf:  make(chan readRes, bufferSize),
		stopped: make(chan struct{}),
	}
}

// Start launches the background read loop.
func (rd *AsyncReader) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	rd.cancel = cancel

	go func() {
		defer close(rd.stopped)
		defer close(rd.resBuf)
		for {
			val, err := rd.rf(ctx)

			select {
			case rd.resBuf <- readRes{val, err}:
			case <-ctx.Done():
				return
			}

			if err != nil {
				return
			}
		}
	}()

	return nil
}

// Read returns the next item in source order. Once the source is exhausted
// every subsequent call returns io.EOF.
func (rd *AsyncReader) Read() (interface{}, error) {
	res, ok := <-rd.resBuf
	if !ok {
		return nil, io.EOF
	}
	return res.val, res.err
}

// Close stops the background goroutine and waits for it to exit.
func (rd *AsyncReader) Close() error {
	rd.once.Do(func() {
		if rd.cancel != nil {
			rd.cancel()
		}
		// drain so the read loop cannot be blocked on send
		go func() {
			for range rd.resBuf {
			}
		}()
	})
	<-rd.stopped
	return nil
}
