// Copyright 2024 BINARY Members
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

package key

import (
	"encoding/binary"

	"github.com/google/uuid"
)

// CommitVersion is a monotone, unsigned commit counter. 0 is the sentinel
// meaning "before any commit".
type CommitVersion uint64

const NoVersion CommitVersion = 0

func (v CommitVersion) Before(other CommitVersion) bool { return v < other }
func (v CommitVersion) AtOrBefore(other CommitVersion) bool { return v <= other }

// WindowStart truncates v down to the start of its window of size w.
func (v CommitVersion) WindowStart(w uint64) CommitVersion {
	if w == 0 {
		return v
	}
	return CommitVersion((uint64(v) / w) * w)
}

// TransactionID identifies one command transaction for tracing/logging.
type TransactionID uuid.UUID

func NewTransactionID() TransactionID { return TransactionID(uuid.New()) }

func (id TransactionID) String() string { return uuid.UUID(id).String() }

// FlowID identifies a materialized-view flow definition.
type FlowID uint64

// FlowKey encodes id as a KindFlow key, the form stored in the system
// catalog and referenced by SystemChange entries in the CDC stream.
func FlowKey(id FlowID) EncodedKey {
	rest := make([]byte, 8)
	binary.BigEndian.PutUint64(rest, uint64(id))
	return New(KindFlow, rest)
}

// ParseFlowID decodes a key built by FlowKey. Returns false if k is not a
// well-formed KindFlow key.
func ParseFlowID(k EncodedKey) (FlowID, bool) {
	if len(k) != 9 {
		return 0, false
	}
	if Kind(k[0]) != KindFlow {
		return 0, false
	}
	return FlowID(binary.BigEndian.Uint64(k[1:])), true
}

// CheckpointKey encodes id's per-flow checkpoint key: "all CDC up to and
// including this version has been durably applied by flow id".
func CheckpointKey(id FlowID) EncodedKey {
	rest := make([]byte, 8)
	binary.BigEndian.PutUint64(rest, uint64(id))
	return New(KindCheckpoint, rest)
}

// ConsumerKey encodes name's consumer-level checkpoint key, tracked
// independently of any single flow's checkpoint.
func ConsumerKey(name string) EncodedKey {
	return New(KindConsumer, []byte(name))
}

// EncodeVersion and DecodeVersion give CommitVersion a fixed 8-byte
// big-endian on-disk form, used for checkpoint values.
func EncodeVersion(v CommitVersion) []byte {
	out := make([]byte, 8)
	binary.BigEndian.PutUint64(out, uint64(v))
	return out
}

func DecodeVersion(b []byte) (CommitVersion, bool) {
	if len(b) != 8 {
		return 0, false
	}
	return CommitVersion(binary.BigEndian.Uint64(b)), true
}

// Row is a single versioned value: either live data or a tombstone marking a
// delete. Older snapshots still see the pre-delete row at a lower version.
type Row struct {
	Key       EncodedKey
	Value     []byte
	Version   CommitVersion
	Tombstone bool
}

func (r Row) Clone() Row {
	out := r
	out.Key = r.Key.Clone()
	if r.Value != nil {
		out.Value = make([]byte, len(r.Value))
		copy(out.Value, r.Value)
	}
	return out
}
