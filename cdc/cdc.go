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

// Package cdc carries the change-data-capture stream every commit produces:
// one batch per commit version, holding both the row-level changes flows
// consume and the system-catalog changes (new flow definitions, schema
// changes) the flow coordinator itself watches for.
package cdc

import (
	"github.com/reifydb/reifydb-sub004/key"
)

// OriginKind distinguishes a row change produced by a user-visible table
// write (Primitive) from one produced by the system catalog (System).
type OriginKind int

const (
	OriginPrimitive OriginKind = iota + 1
	OriginSystem
)

// Origin identifies where a Change came from. Source is only meaningful
// when Kind is OriginPrimitive — it is the table, view, or ringbuffer key
// the row belongs to, the value flow.Analyzer indexes on to route changes
// to the flows that depend on that source. Txn.Commit in the root package
// sets Source to the written row's own key.
type Origin struct {
	Kind   OriginKind
	Source key.EncodedKey
}

// RowOp names the kind of row mutation a Change records.
type RowOp int

const (
	RowInsert RowOp = iota + 1
	RowUpdate
	RowDelete
)

// Change is one row mutation inside a commit. Pre is nil for an insert,
// Post is nil for a delete.
type Change struct {
	Origin Origin
	Op     RowOp
	Key    key.EncodedKey
	Pre    []byte
	Post   []byte
}

// SystemChangeOp names the kind of system-catalog mutation a SystemChange
// records.
type SystemChangeOp int

const (
	SystemInsert SystemChangeOp = iota + 1
	SystemUpdate
	SystemDelete
)

// SystemChange is one system-catalog mutation inside a commit — most
// importantly, a Flow definition insert, which is how the flow coordinator
// discovers a newly created flow.
type SystemChange struct {
	Kind key.Kind
	Op   SystemChangeOp
	Key  key.EncodedKey
	Pre  []byte
	Post []byte
}

// CdcBatch is everything one commit produced for CDC consumers.
type CdcBatch struct {
	Version       key.CommitVersion
	Changes       []Change
	SystemChanges []SystemChange
}

// ExtractNewFlowIDs scans a batch's system changes for newly inserted flow
// definitions, the signal the flow coordinator's Consume handler uses to
// discover flows it hasn't registered yet.
func ExtractNewFlowIDs(batch CdcBatch) []key.FlowID {
	var out []key.FlowID
	for _, sc := range batch.SystemChanges {
		if sc.Kind != key.KindFlow || sc.Op != SystemInsert {
			continue
		}
		if id, ok := key.ParseFlowID(sc.Key); ok {
			out = append(out, id)
		}
	}
	return out
}

// Stream is the CDC transport: Emit appends one commit's batch, ReadRange
// replays committed batches in version order for backfill and live
// consumption alike.
type Stream interface {
	Emit(batch CdcBatch) error
	// ReadRange returns every batch with fromExclusive < version <=
	// toInclusive, oldest first, capped at limit entries (0 means
	// unlimited).
	ReadRange(fromExclusive, toInclusive key.CommitVersion, limit int) ([]CdcBatch, error)
}
