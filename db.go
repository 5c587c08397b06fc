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

// Package reifydb wires the MVCC oracle, the versioned and unversioned
// storage tiers, the CDC stream, and the interceptor chains into the Engine
// command transactions run against.
package reifydb

import (
	"sync/atomic"

	"github.com/reifydb/reifydb-sub004/cdc"
	"github.com/reifydb/reifydb-sub004/flow"
	"github.com/reifydb/reifydb-sub004/interceptor"
	"github.com/reifydb/reifydb-sub004/key"
	"github.com/reifydb/reifydb-sub004/oracle"
	"github.com/reifydb/reifydb-sub004/pkg/logger"
	"github.com/reifydb/reifydb-sub004/storage"
)

// Engine is the concurrency core's entry point: one per database, owning
// the Oracle, the storage tiers, the CDC stream, the interceptor chains
// every Txn commits through, and the flow coordinator that drives
// incremental views off that same CDC stream.
type Engine struct {
	config Config
	logger logger.Logger

	oracle      *oracle.Oracle
	storage     storage.VersionedCommand
	unversioned storage.UnversionedStorage
	cdcStream   cdc.Stream
	chains      *interceptor.Chains

	flowCatalog     flow.Catalog
	flowCoordinator *flow.Coordinator

	closed atomic.Bool
}

// Open constructs an Engine from config, wiring an in-memory reference
// storage tier, CDC stream, and a flow coordinator backed by a pass-through
// worker pool. A deployment backed by a durable storage tier, CDC
// transport, or custom flow executor supplies its own via the lower-level
// engine constructor (not exposed here — on-disk layout is out of scope).
func Open(config Config) (*Engine, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}

	versions := oracle.NewAtomicVersionProvider(key.NoVersion)
	orc := oracle.New(config.WindowSize, config.MaxWindows, config.CleanupThreshold, versions)

	e := &Engine{
		config:      config,
		logger:      logger.GetLogger(),
		oracle:      orc,
		storage:     storage.NewMemory(),
		unversioned: storage.NewMemoryUnversioned(),
		cdcStream:   cdc.NewMemoryStream(),
		chains:      interceptor.NewChains(),
		flowCatalog: flow.NewMapCatalog(),
	}

	pool := flow.NewPool(config.NumWorkers, flow.PassthroughExecutor{})
	e.flowCoordinator = flow.NewCoordinator(e.FlowEngine(), e.flowCatalog, pool, flow.Config{
		NumWorkers:        config.NumWorkers,
		BackfillChunkSize: config.BackfillChunkSize,
	})
	e.logger.Debugf("engine opened: window size %d, %d flow workers", config.WindowSize, config.NumWorkers)
	return e, nil
}

// Close stops the Engine's flow coordinator and worker pool, then its
// Oracle, releasing every goroutine blocked on a watermark or a mailbox.
// Safe to call more than once.
func (e *Engine) Close() {
	if e.closed.CompareAndSwap(false, true) {
		e.flowCoordinator.Close()
		e.oracle.Close()
	}
}

// FlowCatalog exposes the Engine's flow catalog for registering
// subscription and derived flow definitions before they are consumed.
func (e *Engine) FlowCatalog() flow.Catalog {
	return e.flowCatalog
}

// FlowCoordinator exposes the Engine's flow coordinator for driving CDC
// consume rounds.
func (e *Engine) FlowCoordinator() *flow.Coordinator {
	return e.flowCoordinator
}

// Chains exposes the Engine's interceptor chains for registration. Callers
// register hooks once at startup, before opening any transaction that
// should observe them.
func (e *Engine) Chains() *interceptor.Chains {
	return e.chains
}

// Unversioned exposes the Engine's unversioned storage tier directly, for
// callers that need catalog metadata outside a command transaction.
func (e *Engine) Unversioned() storage.UnversionedStorage {
	return e.unversioned
}

// CDC exposes the Engine's CDC stream directly, for a flow coordinator
// consuming commits.
func (e *Engine) CDC() cdc.Stream {
	return e.cdcStream
}

// Begin opens a new command transaction at the current MVCC snapshot.
// write controls whether Set/Remove are permitted; the catalog Track*
// methods do not check it.
func (e *Engine) Begin(write bool) *Txn {
	rv := e.oracle.BeginRead()
	return newTxn(e, rv, !write)
}

// View runs fn inside a read-only transaction and always rolls back
// afterward — a read-only transaction has nothing to commit.
func (e *Engine) View(fn func(*Txn) error) error {
	t := e.Begin(false)
	if err := fn(t); err != nil {
		_ = t.Rollback()
		return err
	}
	return t.Rollback()
}

// Update runs fn inside a read-write transaction and commits on success,
// rolling back if fn returns an error.
func (e *Engine) Update(fn func(*Txn) error) error {
	t := e.Begin(true)
	if err := fn(t); err != nil {
		_ = t.Rollback()
		return err
	}
	_, err := t.Commit()
	return err
}
