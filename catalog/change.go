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

// Package catalog tracks the schema/table/view definition changes a single
// command transaction makes, so that on commit the flow coordinator and any
// post-commit interceptor can see exactly what catalog shape changed without
// re-diffing the whole catalog.
package catalog

import (
	"github.com/juju/errors"

	"github.com/reifydb/reifydb-sub004/key"
)

// Operation names the kind of catalog mutation a Change records.
type Operation int

const (
	OpCreate Operation = iota + 1
	OpUpdate
	OpDelete
)

func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Change records one mutation to a catalog entity of type T. Pre is nil for
// a create, Post is nil for a delete; both are set for an update. Changes
// are appended, never coalesced: a key updated twice in one transaction
// produces two Change entries, not one merged entry, so a post-commit
// interceptor can observe every intermediate shape the transaction produced.
type Change[T any] struct {
	Pre  *T
	Post *T
	Op   Operation
}

// SchemaDef, TableDef, and ViewDef are the minimal identity carried by a
// catalog change. The full definition (columns, constraints, ringbuffer
// config, ...) lives in the catalog itself; the change tracker only needs
// enough to identify what changed and let downstream consumers reload the
// current definition if they need more.
type SchemaDef struct {
	ID   key.EncodedKey
	Name string
}

type TableDef struct {
	ID       key.EncodedKey
	SchemaID key.EncodedKey
	Name     string
}

type ViewDef struct {
	ID       key.EncodedKey
	SchemaID key.EncodedKey
	Name     string
}

// LogEntry is one line of the transaction's catalog operation log, the
// ordered record of every Track* call regardless of entity kind.
type LogEntry struct {
	Kind string // "schema", "table", "view"
	ID   string
	Op   Operation
}

// TransactionalChanges accumulates every catalog mutation a single command
// transaction makes. It is not safe for concurrent use — a CommandTransaction
// owns exactly one and never shares it across goroutines.
type TransactionalChanges struct {
	Schemas []Change[SchemaDef]
	Tables  []Change[TableDef]
	Views   []Change[ViewDef]

	log            []LogEntry
	pendingCreates map[string]struct{}
}

// NewTransactionalChanges returns an empty tracker.
func NewTransactionalChanges() *TransactionalChanges {
	return &TransactionalChanges{
		pendingCreates: make(map[string]struct{}),
	}
}

// Reset clears every tracked change, for reuse across transactions (e.g. a
// pooled CommandTransaction after rollback).
func (t *TransactionalChanges) Reset() {
	t.Schemas = nil
	t.Tables = nil
	t.Views = nil
	t.log = nil
	t.pendingCreates = make(map[string]struct{})
}

// Log returns the ordered operation log across every entity kind.
func (t *TransactionalChanges) Log() []LogEntry {
	return t.log
}

func pendingKey(kind, id string) string {
	return kind + ":" + id
}

// TrackSchemaCreated records a new schema. Returns ErrAlreadyPending if this
// schema was already created earlier in the same transaction.
func (t *TransactionalChanges) TrackSchemaCreated(post SchemaDef) error {
	pk := pendingKey("schema", post.ID.String())
	if _, ok := t.pendingCreates[pk]; ok {
		return errors.Annotatef(ErrAlreadyPending, "schema %q", post.Name)
	}
	t.pendingCreates[pk] = struct{}{}
	t.Schemas = append(t.Schemas, Change[SchemaDef]{Post: &post, Op: OpCreate})
	t.log = append(t.log, LogEntry{Kind: "schema", ID: post.ID.String(), Op: OpCreate})
	return nil
}

// TrackSchemaUpdated records a schema definition change. Always appends —
// never coalesces with a prior update in the same transaction.
func (t *TransactionalChanges) TrackSchemaUpdated(pre, post SchemaDef) {
	t.Schemas = append(t.Schemas, Change[SchemaDef]{Pre: &pre, Post: &post, Op: OpUpdate})
	t.log = append(t.log, LogEntry{Kind: "schema", ID: post.ID.String(), Op: OpUpdate})
}

// TrackSchemaDeleted records a schema removal and clears its pending-create
// guard, so a create-delete-create sequence within one transaction is legal.
func (t *TransactionalChanges) TrackSchemaDeleted(pre SchemaDef) {
	delete(t.pendingCreates, pendingKey("schema", pre.ID.String()))
	t.Schemas = append(t.Schemas, Change[SchemaDef]{Pre: &pre, Op: OpDelete})
	t.log = append(t.log, LogEntry{Kind: "schema", ID: pre.ID.String(), Op: OpDelete})
}

// TrackTableCreated records a new table. Returns ErrAlreadyPending if this
// table was already created earlier in the same transaction.
func (t *TransactionalChanges) TrackTableCreated(post TableDef) error {
	pk := pendingKey("table", post.ID.String())
	if _, ok := t.pendingCreates[pk]; ok {
		return errors.Annotatef(ErrAlreadyPending, "table %q", post.Name)
	}
	t.pendingCreates[pk] = struct{}{}
	t.Tables = append(t.Tables, Change[TableDef]{Post: &post, Op: OpCreate})
	t.log = append(t.log, LogEntry{Kind: "table", ID: post.ID.String(), Op: OpCreate})
	return nil
}

func (t *TransactionalChanges) TrackTableUpdated(pre, post TableDef) {
	t.Tables = append(t.Tables, Change[TableDef]{Pre: &pre, Post: &post, Op: OpUpdate})
	t.log = append(t.log, LogEntry{Kind: "table", ID: post.ID.String(), Op: OpUpdate})
}

func (t *TransactionalChanges) TrackTableDeleted(pre TableDef) {
	delete(t.pendingCreates, pendingKey("table", pre.ID.String()))
	t.Tables = append(t.Tables, Change[TableDef]{Pre: &pre, Op: OpDelete})
	t.log = append(t.log, LogEntry{Kind: "table", ID: pre.ID.String(), Op: OpDelete})
}

// TrackViewCreated records a new materialized view. Returns ErrAlreadyPending
// if this view was already created earlier in the same transaction.
func (t *TransactionalChanges) TrackViewCreated(post ViewDef) error {
	pk := pendingKey("view", post.ID.String())
	if _, ok := t.pendingCreates[pk]; ok {
		return errors.Annotatef(ErrAlreadyPending, "view %q", post.Name)
	}
	t.pendingCreates[pk] = struct{}{}
	t.Views = append(t.Views, Change[ViewDef]{Post: &post, Op: OpCreate})
	t.log = append(t.log, LogEntry{Kind: "view", ID: post.ID.String(), Op: OpCreate})
	return nil
}

func (t *TransactionalChanges) TrackViewUpdated(pre, post ViewDef) {
	t.Views = append(t.Views, Change[ViewDef]{Pre: &pre, Post: &post, Op: OpUpdate})
	t.log = append(t.log, LogEntry{Kind: "view", ID: post.ID.String(), Op: OpUpdate})
}

func (t *TransactionalChanges) TrackViewDeleted(pre ViewDef) {
	delete(t.pendingCreates, pendingKey("view", pre.ID.String()))
	t.Views = append(t.Views, Change[ViewDef]{Pre: &pre, Op: OpDelete})
	t.log = append(t.log, LogEntry{Kind: "view", ID: pre.ID.String(), Op: OpDelete})
}

// IsEmpty reports whether the transaction tracked no catalog change at all.
func (t *TransactionalChanges) IsEmpty() bool {
	return len(t.Schemas) == 0 && len(t.Tables) == 0 && len(t.Views) == 0
}
