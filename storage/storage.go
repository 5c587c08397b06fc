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

// Package storage defines the versioned and unversioned storage surfaces the
// concurrency core writes through, plus in-memory reference implementations
// of both so the oracle, the command transaction, and the flow coordinator
// have something concrete to drive in tests. A real deployment would swap
// these for an on-disk engine; on-disk formats are out of scope here.
package storage

import (
	"github.com/reifydb/reifydb-sub004/key"
)

// VersionedStorage is the read surface of the MVCC row store: every read is
// pinned to a snapshot version and sees exactly the writes committed at or
// before it.
type VersionedStorage interface {
	Get(k key.EncodedKey, version key.CommitVersion) (key.Row, bool, error)
	Range(r key.EncodedKeyRange, version key.CommitVersion) ([]key.Row, error)
	RangeRev(r key.EncodedKeyRange, version key.CommitVersion) ([]key.Row, error)
	Prefix(p key.EncodedKey, version key.CommitVersion) ([]key.Row, error)
}

// VersionedCommand is the write surface: Apply lands every row in writes as
// one atomic commit at version. Only the Oracle-serialized commit path calls
// Apply; nothing else should write to a VersionedStorage directly.
type VersionedCommand interface {
	VersionedStorage
	Apply(writes []key.Row, version key.CommitVersion) error
}

// UnversionedQuery reads the current (unversioned) value of a key, for state
// with no MVCC history, just a current value, such as catalog metadata.
type UnversionedQuery interface {
	Get(k key.EncodedKey) ([]byte, bool, error)
	Range(r key.EncodedKeyRange) ([]key.Row, error)
}

// UnversionedCommand additionally allows writing the current value.
type UnversionedCommand interface {
	UnversionedQuery
	Set(k key.EncodedKey, v []byte) error
	Delete(k key.EncodedKey) error
}

// UnversionedStorage scopes every read or write inside a single lock-held
// callback, so a caller that needs read-then-write atomicity (a checkpoint
// bump, say) never races another WithCommand caller.
type UnversionedStorage interface {
	WithQuery(fn func(UnversionedQuery) error) error
	WithCommand(fn func(UnversionedCommand) error) error
}
