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

package reifydb

import (
	"bytes"
	"encoding/gob"

	"github.com/juju/errors"

	"github.com/reifydb/reifydb-sub004/catalog"
	"github.com/reifydb/reifydb-sub004/cdc"
	"github.com/reifydb/reifydb-sub004/interceptor"
	"github.com/reifydb/reifydb-sub004/key"
	"github.com/reifydb/reifydb-sub004/oracle"
)

type txnState int

const (
	txnActive txnState = iota
	txnCommitted
	txnRolledBack
)

// writeOp is one key's pending mutation inside a transaction's write
// buffer. pre is captured once, from the versioned store at read_version,
// the first time the key is touched; later sets/removes to the same key
// update post/tomb but never re-fetch pre — a set then a set then a delete
// inside one transaction still reports the original pre-transaction value
// as the CDC "before" snapshot.
type writeOp struct {
	pre  []byte
	post []byte
	tomb bool
}

// Txn is a command transaction: the per-session object a caller reads and
// writes through, accumulating a write buffer and a conflict footprint until
// Commit submits both to the Oracle. Not safe for concurrent use — exactly
// one goroutine owns a Txn for its lifetime, matching the "not Send/Sync"
// discipline the concurrency core assumes for this object.
type Txn struct {
	id       key.TransactionID
	state    txnState
	engine   *Engine
	readOnly bool

	readVersion key.CommitVersion
	conflicts   *oracle.ConflictManager

	writeOrder []key.EncodedKey
	writes     map[string]*writeOp

	changes    *catalog.TransactionalChanges
	viewWrites []key.EncodedKey
}

// newTxn constructs an active transaction at readVersion. Engine.Begin is
// the only caller.
func newTxn(engine *Engine, readVersion key.CommitVersion, readOnly bool) *Txn {
	return &Txn{
		id:          key.NewTransactionID(),
		state:       txnActive,
		engine:      engine,
		readOnly:    readOnly,
		readVersion: readVersion,
		conflicts:   oracle.NewConflictManager(),
		writes:      make(map[string]*writeOp),
		changes:     catalog.NewTransactionalChanges(),
	}
}

func (t *Txn) checkActive() error {
	switch t.state {
	case txnCommitted, txnRolledBack:
		return errors.Trace(ErrAlreadyTerminal)
	default:
		return nil
	}
}

// ID returns the transaction's identifier, for tracing and log correlation.
func (t *Txn) ID() key.TransactionID {
	return t.id
}

// ReadVersion returns the MVCC snapshot this transaction reads at.
func (t *Txn) ReadVersion() key.CommitVersion {
	return t.readVersion
}

// Get reads the write buffer first (so a transaction always sees its own
// writes), falling back to the versioned store at read_version. Every call
// marks a read on the conflict manager, including keys served from the
// write buffer, so a later writer of the same key is still detected as a
// conflict against this transaction's snapshot.
func (t *Txn) Get(k key.EncodedKey) (key.Row, bool, error) {
	if err := t.checkActive(); err != nil {
		return key.Row{}, false, err
	}

	t.conflicts.MarkRead(k)

	if w, ok := t.writes[k.String()]; ok {
		if w.tomb {
			return key.Row{}, false, nil
		}
		return key.Row{Key: k, Value: w.post, Version: t.readVersion}, true, nil
	}

	return t.engine.storage.Get(k, t.readVersion)
}

// Set buffers a write, replacing any prior buffered write to k. Marks k as
// written on the conflict manager.
func (t *Txn) Set(k key.EncodedKey, value []byte) error {
	return t.buffer(k, value, false)
}

// Remove buffers a tombstone for k. Marks k as written on the conflict
// manager.
func (t *Txn) Remove(k key.EncodedKey) error {
	return t.buffer(k, nil, true)
}

func (t *Txn) buffer(k key.EncodedKey, value []byte, tomb bool) error {
	if err := t.checkActive(); err != nil {
		return err
	}
	if t.readOnly {
		return errors.New("transaction is read-only")
	}
	if len(k) == 0 {
		return errors.New("key is empty")
	}

	ks := k.String()
	w, buffered := t.writes[ks]
	if !buffered {
		w = &writeOp{}
		if row, found, err := t.engine.storage.Get(k, t.readVersion); err != nil {
			return errors.Annotate(ErrStorageFailure, err.Error())
		} else if found {
			w.pre = row.Value
		}
	}

	// Row pre hooks fire before the write lands in the buffer; an error
	// aborts this write only, not the transaction.
	if err := interceptor.FireRow(t.preRowChain(w.pre, tomb), &interceptor.RowContext{Key: k, Pre: w.pre, Post: value}); err != nil {
		return errors.Annotate(ErrInterceptorFailure, err.Error())
	}

	if !buffered {
		t.writes[ks] = w
		t.writeOrder = append(t.writeOrder, k.Clone())
	}
	w.post = value
	w.tomb = tomb

	t.conflicts.MarkWrite(k)
	return nil
}

// preRowChain classifies a buffered write the way its CDC change will be
// classified: a delete if it tombstones, an insert if the key had no value
// at read_version, an update otherwise.
func (t *Txn) preRowChain(pre []byte, tomb bool) *interceptor.Chain[interceptor.RowFunc] {
	switch {
	case tomb:
		return &t.engine.chains.TablePreDelete
	case pre == nil:
		return &t.engine.chains.TablePreInsert
	default:
		return &t.engine.chains.TablePreUpdate
	}
}

// Range returns every live row in r, merging the write buffer over the
// versioned store's view at read_version, ascending by key. Marks the range
// on the conflict manager.
func (t *Txn) Range(r key.EncodedKeyRange) ([]key.Row, error) {
	if err := t.checkActive(); err != nil {
		return nil, err
	}
	t.conflicts.MarkRange(r)
	rows, err := t.engine.storage.Range(r, t.readVersion)
	if err != nil {
		return nil, errors.Annotate(ErrStorageFailure, err.Error())
	}
	return t.overlayBuffer(rows, r), nil
}

// RangeRev is Range in descending key order.
func (t *Txn) RangeRev(r key.EncodedKeyRange) ([]key.Row, error) {
	rows, err := t.Range(r)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return rows, nil
}

// Prefix returns every live row whose key begins with p, merging the write
// buffer the same way Range does.
func (t *Txn) Prefix(p key.EncodedKey) ([]key.Row, error) {
	return t.Range(key.Prefix(p))
}

// overlayBuffer merges t's buffered writes falling within r into store
// rows, last-write-wins, dropping tombstoned keys. rows must already be
// sorted ascending by key.
func (t *Txn) overlayBuffer(rows []key.Row, r key.EncodedKeyRange) []key.Row {
	if len(t.writes) == 0 {
		return rows
	}

	byKey := make(map[string]key.Row, len(rows))
	for _, row := range rows {
		byKey[row.Key.String()] = row
	}

	for ks, w := range t.writes {
		k := key.FromString(ks)
		if !r.Contains(k) {
			continue
		}
		if w.tomb {
			delete(byKey, ks)
			continue
		}
		byKey[ks] = key.Row{Key: k, Value: w.post, Version: t.readVersion}
	}

	out := make([]key.Row, 0, len(byKey))
	for _, row := range byKey {
		out = append(out, row)
	}
	sortRowsByKey(out)
	return out
}

func sortRowsByKey(rows []key.Row) {
	for i := 1; i < len(rows); i++ {
		for j := i; j > 0 && rows[j].Key.Compare(rows[j-1].Key) < 0; j-- {
			rows[j], rows[j-1] = rows[j-1], rows[j]
		}
	}
}

// TrackSchemaCreated records a new schema definition. Fails with
// ErrPendingInTransaction if this schema id was already created earlier in
// the same transaction.
func (t *Txn) TrackSchemaCreated(def catalog.SchemaDef) error {
	if err := t.checkActive(); err != nil {
		return err
	}
	if err := t.changes.TrackSchemaCreated(def); err != nil {
		return errors.Trace(ErrPendingInTransaction)
	}
	return nil
}

func (t *Txn) TrackSchemaUpdated(pre, post catalog.SchemaDef) error {
	if err := t.checkActive(); err != nil {
		return err
	}
	if err := interceptor.FireSchema(&t.engine.chains.SchemaPreUpdate, &interceptor.SchemaContext{Pre: &pre, Post: &post}); err != nil {
		return errors.Annotate(ErrInterceptorFailure, err.Error())
	}
	t.changes.TrackSchemaUpdated(pre, post)
	return nil
}

func (t *Txn) TrackSchemaDeleted(pre catalog.SchemaDef) error {
	if err := t.checkActive(); err != nil {
		return err
	}
	if err := interceptor.FireSchema(&t.engine.chains.SchemaPreDelete, &interceptor.SchemaContext{Pre: &pre}); err != nil {
		return errors.Annotate(ErrInterceptorFailure, err.Error())
	}
	t.changes.TrackSchemaDeleted(pre)
	return nil
}

// TrackTableCreated records a new table definition. Fails with
// ErrPendingInTransaction if this table id was already created earlier in
// the same transaction.
func (t *Txn) TrackTableCreated(def catalog.TableDef) error {
	if err := t.checkActive(); err != nil {
		return err
	}
	if err := t.changes.TrackTableCreated(def); err != nil {
		return errors.Trace(ErrPendingInTransaction)
	}
	return nil
}

func (t *Txn) TrackTableUpdated(pre, post catalog.TableDef) error {
	if err := t.checkActive(); err != nil {
		return err
	}
	if err := interceptor.FireTable(&t.engine.chains.TableDefPreUpdate, &interceptor.TableContext{Pre: &pre, Post: &post}); err != nil {
		return errors.Annotate(ErrInterceptorFailure, err.Error())
	}
	t.changes.TrackTableUpdated(pre, post)
	return nil
}

func (t *Txn) TrackTableDeleted(pre catalog.TableDef) error {
	if err := t.checkActive(); err != nil {
		return err
	}
	if err := interceptor.FireTable(&t.engine.chains.TableDefPreDelete, &interceptor.TableContext{Pre: &pre}); err != nil {
		return errors.Annotate(ErrInterceptorFailure, err.Error())
	}
	t.changes.TrackTableDeleted(pre)
	return nil
}

// TrackViewCreated records a new materialized view definition. Fails with
// ErrPendingInTransaction if this view id was already created earlier in the
// same transaction.
func (t *Txn) TrackViewCreated(def catalog.ViewDef) error {
	if err := t.checkActive(); err != nil {
		return err
	}
	if err := t.changes.TrackViewCreated(def); err != nil {
		return errors.Trace(ErrPendingInTransaction)
	}
	return nil
}

func (t *Txn) TrackViewUpdated(pre, post catalog.ViewDef) error {
	if err := t.checkActive(); err != nil {
		return err
	}
	if err := interceptor.FireView(&t.engine.chains.ViewPreUpdate, &interceptor.ViewContext{Pre: &pre, Post: &post}); err != nil {
		return errors.Annotate(ErrInterceptorFailure, err.Error())
	}
	t.changes.TrackViewUpdated(pre, post)
	return nil
}

func (t *Txn) TrackViewDeleted(pre catalog.ViewDef) error {
	if err := t.checkActive(); err != nil {
		return err
	}
	if err := interceptor.FireView(&t.engine.chains.ViewPreDelete, &interceptor.ViewContext{Pre: &pre}); err != nil {
		return errors.Annotate(ErrInterceptorFailure, err.Error())
	}
	t.changes.TrackViewDeleted(pre)
	return nil
}

// Changes exposes the transaction's catalog change log, for an interceptor
// that wants to inspect it outside the pre_commit/post_commit hook
// invocations (e.g. a custom pre-insert hook cross-checking a pending
// table creation).
func (t *Txn) Changes() *catalog.TransactionalChanges {
	return t.changes
}

// TrackViewChange records that this transaction wrote to view, so the
// pre_commit chain can see it via CommitContext.ViewTriggers and re-trigger
// any transactional flow sourcing that view inside the same commit. Callers
// are expected to be a View's own write path, not general users.
func (t *Txn) TrackViewChange(view key.EncodedKey) {
	t.viewWrites = append(t.viewWrites, view.Clone())
}

// ViewTriggers returns every view key tracked via TrackViewChange so far.
func (t *Txn) ViewTriggers() []key.EncodedKey {
	return t.viewWrites
}

// Commit runs the full commit sequence: pre_commit interceptors, Oracle
// submission, versioned-store apply, CDC emission, post_commit
// interceptors. Returns the new commit version on success.
func (t *Txn) Commit() (key.CommitVersion, error) {
	if err := t.checkActive(); err != nil {
		return key.NoVersion, err
	}

	if err := interceptor.FireCommit(&t.engine.chains.PreCommit, &interceptor.CommitContext{Changes: t.changes, ViewTriggers: t.viewWrites}); err != nil {
		t.discard()
		return key.NoVersion, errors.Annotate(ErrInterceptorFailure, err.Error())
	}

	version, err := t.engine.oracle.Commit(t.readVersion, t.conflicts)
	if err != nil {
		t.discard()
		if errors.Is(err, oracle.ErrConflict) {
			return key.NoVersion, errors.Trace(ErrConflict)
		}
		return key.NoVersion, errors.Annotate(ErrStorageFailure, err.Error())
	}

	rows := make([]key.Row, 0, len(t.writeOrder))
	changes := make([]cdc.Change, 0, len(t.writeOrder))
	for _, k := range t.writeOrder {
		w := t.writes[k.String()]

		row := key.Row{Key: k, Version: version}
		var op cdc.RowOp
		switch {
		case w.tomb:
			row.Tombstone = true
			op = cdc.RowDelete
		case w.pre == nil:
			row.Value = w.post
			op = cdc.RowInsert
		default:
			row.Value = w.post
			op = cdc.RowUpdate
		}
		rows = append(rows, row)

		changes = append(changes, cdc.Change{
			Origin: cdc.Origin{Kind: cdc.OriginPrimitive, Source: k},
			Op:     op,
			Key:    k,
			Pre:    w.pre,
			Post:   w.post,
		})
	}

	if len(rows) > 0 {
		if err := t.engine.storage.Apply(rows, version); err != nil {
			return key.NoVersion, errors.Annotate(ErrStorageFailure, err.Error())
		}
	}

	batch := cdc.CdcBatch{
		Version:       version,
		Changes:       changes,
		SystemChanges: buildSystemChanges(t.changes),
	}
	if err := t.engine.cdcStream.Emit(batch); err != nil {
		return key.NoVersion, errors.Annotate(ErrStorageFailure, err.Error())
	}

	t.state = txnCommitted

	// Post hooks run after the commit is durable; a failure here surfaces
	// to the caller but cannot unwind version.
	if err := t.firePostRowHooks(changes); err != nil {
		t.engine.logger.Errorf("txn %s: post row hook failed after commit %d: %v", t.id, version, err)
		return version, errors.Annotate(ErrInterceptorFailure, err.Error())
	}
	if err := t.firePostCatalogHooks(); err != nil {
		t.engine.logger.Errorf("txn %s: post hook failed after commit %d: %v", t.id, version, err)
		return version, errors.Annotate(ErrInterceptorFailure, err.Error())
	}
	if err := interceptor.FireCommit(&t.engine.chains.PostCommit, &interceptor.CommitContext{Changes: t.changes, ViewTriggers: t.viewWrites}); err != nil {
		t.engine.logger.Errorf("txn %s: post commit hook failed after commit %d: %v", t.id, version, err)
		return version, errors.Annotate(ErrInterceptorFailure, err.Error())
	}

	return version, nil
}

// firePostRowHooks replays the committed row changes in write order,
// invoking the post chain matching each change's operation.
func (t *Txn) firePostRowHooks(changes []cdc.Change) error {
	chains := t.engine.chains
	for _, ch := range changes {
		var chain *interceptor.Chain[interceptor.RowFunc]
		switch ch.Op {
		case cdc.RowInsert:
			chain = &chains.TablePostInsert
		case cdc.RowUpdate:
			chain = &chains.TablePostUpdate
		case cdc.RowDelete:
			chain = &chains.TablePostDelete
		}
		if err := interceptor.FireRow(chain, &interceptor.RowContext{Key: ch.Key, Pre: ch.Pre, Post: ch.Post}); err != nil {
			return err
		}
	}
	return nil
}

// firePostCatalogHooks replays the catalog change log in order, invoking the
// post hook matching each entry's entity kind and operation. Runs only after
// the commit is durable; an error here cannot unwind the commit, it only
// surfaces to the caller.
func (t *Txn) firePostCatalogHooks() error {
	chains := t.engine.chains
	var si, ti, vi int
	for _, entry := range t.changes.Log() {
		switch entry.Kind {
		case "schema":
			ch := t.changes.Schemas[si]
			si++
			ctx := &interceptor.SchemaContext{Pre: ch.Pre, Post: ch.Post}
			switch ch.Op {
			case catalog.OpCreate:
				if err := interceptor.FireSchema(&chains.SchemaPostCreate, ctx); err != nil {
					return err
				}
			case catalog.OpUpdate:
				if err := interceptor.FireSchema(&chains.SchemaPostUpdate, ctx); err != nil {
					return err
				}
			}
		case "table":
			ch := t.changes.Tables[ti]
			ti++
			ctx := &interceptor.TableContext{Pre: ch.Pre, Post: ch.Post}
			switch ch.Op {
			case catalog.OpCreate:
				if err := interceptor.FireTable(&chains.TableDefPostCreate, ctx); err != nil {
					return err
				}
			case catalog.OpUpdate:
				if err := interceptor.FireTable(&chains.TableDefPostUpdate, ctx); err != nil {
					return err
				}
			}
		case "view":
			ch := t.changes.Views[vi]
			vi++
			ctx := &interceptor.ViewContext{Pre: ch.Pre, Post: ch.Post}
			switch ch.Op {
			case catalog.OpCreate:
				if err := interceptor.FireView(&chains.ViewPostCreate, ctx); err != nil {
					return err
				}
			case catalog.OpUpdate:
				if err := interceptor.FireView(&chains.ViewPostUpdate, ctx); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// Rollback discards the write buffer and catalog changes and signals the
// Oracle's query watermark at read_version. Safe to call on an
// already-terminal transaction only via checkActive's error.
func (t *Txn) Rollback() error {
	if err := t.checkActive(); err != nil {
		return err
	}
	t.discard()
	return nil
}

func (t *Txn) discard() {
	t.writes = nil
	t.writeOrder = nil
	t.changes.Reset()
	t.engine.oracle.DoneRead(t.readVersion)
	t.state = txnRolledBack
}

// buildSystemChanges walks the catalog's operation log in order, pairing
// each log entry with its corresponding Change[T] to produce the CDC
// system-change stream the flow coordinator scans for new flow
// registrations and other consumers scan for schema/table/view history.
func buildSystemChanges(tc *catalog.TransactionalChanges) []cdc.SystemChange {
	log := tc.Log()
	if len(log) == 0 {
		return nil
	}

	schemas := tc.Schemas
	tables := tc.Tables
	views := tc.Views
	var si, ti, vi int

	out := make([]cdc.SystemChange, 0, len(log))
	for _, entry := range log {
		switch entry.Kind {
		case "schema":
			out = append(out, systemChangeOf(key.KindSchema, entry, schemas[si].Pre, schemas[si].Post))
			si++
		case "table":
			out = append(out, systemChangeOf(key.KindTable, entry, tables[ti].Pre, tables[ti].Post))
			ti++
		case "view":
			out = append(out, systemChangeOf(key.KindView, entry, views[vi].Pre, views[vi].Post))
			vi++
		}
	}
	return out
}

func systemChangeOf[T any](kind key.Kind, entry catalog.LogEntry, pre, post *T) cdc.SystemChange {
	sc := cdc.SystemChange{
		Kind: kind,
		Op:   systemOpOf(entry.Op),
		Key:  key.New(kind, []byte(entry.ID)),
	}
	if pre != nil {
		sc.Pre = encodeDef(pre)
	}
	if post != nil {
		sc.Post = encodeDef(post)
	}
	return sc
}

func systemOpOf(op catalog.Operation) cdc.SystemChangeOp {
	switch op {
	case catalog.OpCreate:
		return cdc.SystemInsert
	case catalog.OpDelete:
		return cdc.SystemDelete
	default:
		return cdc.SystemUpdate
	}
}

func encodeDef(v any) []byte {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil
	}
	return buf.Bytes()
}
