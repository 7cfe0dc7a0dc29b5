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

package qmeta

import (
	"sync"
	"time"
)

// QueryMessage is one structured message attached to a query. ChunkID is
// SummaryChunkID for query-level messages.
type QueryMessage struct {
	QueryID   QueryID
	ChunkID   int
	Code      int
	Severity  Severity
	Source    string
	Text      string
	Timestamp time.Time
	sequence  uint64
}

// MessageStore collects the messages of one running query in memory. The
// store totally orders messages by (timestamp, sequence); the sequence
// breaks ties between messages added within clock resolution.
type MessageStore struct {
	mu   sync.Mutex
	seq  uint64
	msgs []QueryMessage
}

func NewMessageStore() *MessageStore {
	return &MessageStore{}
}

// Add appends a message, stamping it with the current time and the next
// sequence number.
func (ms *MessageStore) Add(qid QueryID, chunkID, code int, severity Severity, source, text string) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.seq++
	ms.msgs = append(ms.msgs, QueryMessage{
		QueryID:   qid,
		ChunkID:   chunkID,
		Code:      code,
		Severity:  severity,
		Source:    source,
		Text:      text,
		Timestamp: time.Now(),
		sequence:  ms.seq,
	})
}

// Count returns the number of stored messages.
func (ms *MessageStore) Count() int {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return len(ms.msgs)
}

// Messages returns a snapshot of all messages in insertion order, which is
// also (timestamp, sequence) order.
func (ms *MessageStore) Messages() []QueryMessage {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return append([]QueryMessage(nil), ms.msgs...)
}

// Summary condenses the store into the data of the chunkId=-1 summary row:
// completion and cancellation tallies plus the concatenated MULTIERROR
// text. Severity is ERROR iff any MULTIERROR message exists.
type Summary struct {
	CompleteCount int
	CancelCount   int
	MultiError    string
	Severity      Severity
}

func (ms *MessageStore) Summarize() Summary {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	s := Summary{Severity: SeverityInfo}
	for _, m := range ms.msgs {
		switch m.Source {
		case SourceComplete:
			s.CompleteCount++
		case SourceCancel:
			s.CancelCount++
		case SourceMultiError:
			s.MultiError += m.Text + "\n"
			s.Severity = SeverityError
		}
	}
	return s
}
