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

package flow

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reifydb/reifydb-sub004/cdc"
	"github.com/reifydb/reifydb-sub004/key"
)

// fakeStore is a minimal synchronous key-value backend for coordinator
// tests — just enough to exercise Get/Set/Remove/TrackViewChange without
// pulling in the root package's oracle and versioned storage.
type fakeStore struct {
	mu           sync.Mutex
	data         map[string][]byte
	viewTriggers []key.EncodedKey
}

func newFakeStore() *fakeStore { return &fakeStore{data: make(map[string][]byte)} }

func (s *fakeStore) get(k key.EncodedKey) (key.Row, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[k.String()]
	if !ok {
		return key.Row{}, false, nil
	}
	return key.Row{Key: k, Value: v}, true, nil
}

func (s *fakeStore) set(k key.EncodedKey, v []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[k.String()] = append([]byte(nil), v...)
}

func (s *fakeStore) remove(k key.EncodedKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, k.String())
}

type fakeTxn struct{ store *fakeStore }

func (t *fakeTxn) Get(k key.EncodedKey) (key.Row, bool, error) { return t.store.get(k) }
func (t *fakeTxn) Set(k key.EncodedKey, v []byte) error        { t.store.set(k, v); return nil }
func (t *fakeTxn) Remove(k key.EncodedKey) error                { t.store.remove(k); return nil }
func (t *fakeTxn) TrackViewChange(view key.EncodedKey) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	t.store.viewTriggers = append(t.store.viewTriggers, view)
}

type fakeEngine struct {
	store  *fakeStore
	stream cdc.Stream
	// gate, if non-nil, is read from once before every Update runs its
	// closure — tests use it to hold the coordinator in phaseFinalizing
	// long enough to observe busy-rejection of a concurrent Consume.
	gate chan struct{}
	// entered, if non-nil, receives a signal each time Update is entered,
	// before the gate is read.
	entered chan struct{}
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{store: newFakeStore(), stream: cdc.NewMemoryStream()}
}

func (e *fakeEngine) View(fn func(Txn) error) error { return fn(&fakeTxn{store: e.store}) }

func (e *fakeEngine) Update(fn func(Txn) error) error {
	if e.entered != nil {
		e.entered <- struct{}{}
	}
	if e.gate != nil {
		<-e.gate
	}
	return fn(&fakeTxn{store: e.store})
}

func (e *fakeEngine) CDC() cdc.Stream { return e.stream }

func newTestCoordinator(engine *fakeEngine, cat Catalog, cfg Config) (*Coordinator, *Pool) {
	pool := NewPool(cfg.NumWorkers, PassthroughExecutor{})
	return NewCoordinator(engine, cat, pool, cfg), pool
}

func TestCoordinatorSubscriptionFlowActivatesAndRoutesChanges(t *testing.T) {
	engine := newFakeEngine()
	cat := NewMapCatalog()
	source := tableKey("orders")
	cat.Register(FlowDef{ID: 7, Kind: KindSubscription, Sources: []key.EncodedKey{source}})

	coord, pool := newTestCoordinator(engine, cat, Config{NumWorkers: 2})
	defer pool.Close()
	defer coord.Close()

	batch := cdc.CdcBatch{
		Version: 1,
		Changes: []cdc.Change{
			{Origin: cdc.Origin{Kind: cdc.OriginPrimitive, Source: source}, Op: cdc.RowInsert, Key: source, Post: []byte("row1")},
		},
		SystemChanges: []cdc.SystemChange{
			{Kind: key.KindFlow, Op: cdc.SystemInsert, Key: key.FlowKey(7)},
		},
	}

	err := coord.Consume(context.Background(), []cdc.CdcBatch{batch}, "consumer-a", 1)
	require.NoError(t, err)

	st, ok := coord.states.Get(7)
	require.True(t, ok)
	assert.Equal(t, StatusActive, st.Status)
	assert.Equal(t, key.CommitVersion(1), st.Checkpoint)

	row, ok, err := engine.store.get(source)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("row1"), row.Value)

	cpRow, ok, err := engine.store.get(key.CheckpointKey(7))
	require.NoError(t, err)
	require.True(t, ok)
	v, ok := key.DecodeVersion(cpRow.Value)
	require.True(t, ok)
	assert.Equal(t, key.CommitVersion(1), v)

	consumerRow, ok, err := engine.store.get(key.ConsumerKey("consumer-a"))
	require.NoError(t, err)
	require.True(t, ok)
	v, ok = key.DecodeVersion(consumerRow.Value)
	require.True(t, ok)
	assert.Equal(t, key.CommitVersion(1), v)
}

func TestCoordinatorRejectsConcurrentConsume(t *testing.T) {
	engine := newFakeEngine()
	gate := make(chan struct{})
	engine.gate = gate
	engine.entered = make(chan struct{}, 1)

	cat := NewMapCatalog()
	coord, pool := newTestCoordinator(engine, cat, Config{NumWorkers: 1})
	defer pool.Close()
	defer coord.Close()

	first := make(chan error, 1)
	go func() {
		first <- coord.Consume(context.Background(), []cdc.CdcBatch{{Version: 1}}, "c1", 1)
	}()
	// Wait until the first Consume is held in finalize, so the probes below
	// cannot become the in-flight round themselves.
	<-engine.entered

	var busyErr error
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		busyErr = coord.Consume(context.Background(), nil, "c2", 1)
		if errors.Is(busyErr, ErrCoordinatorBusy) {
			break
		}
		time.Sleep(time.Millisecond)
	}
	assert.True(t, errors.Is(busyErr, ErrCoordinatorBusy))

	close(gate)
	require.NoError(t, <-first)
}

// TestCoordinatorBackfillAdvancesInChunks is a scaled-down replica of the
// derived-flow backfill scenario: chunk size 2, current_version 10, one
// change per version. Inside the one Consume the flow advances through five
// backfill chunks (in-memory checkpoint 2, 4, 6, 8, 10); the test checks
// that it ends Active with both its in-memory and its persisted checkpoint
// at 10.
func TestCoordinatorBackfillAdvancesInChunks(t *testing.T) {
	engine := newFakeEngine()
	source := tableKey("events")

	const total = 10
	for v := key.CommitVersion(1); v <= total; v++ {
		err := engine.stream.Emit(cdc.CdcBatch{
			Version: v,
			Changes: []cdc.Change{
				{Origin: cdc.Origin{Kind: cdc.OriginPrimitive, Source: source}, Op: cdc.RowInsert, Key: source, Post: []byte{byte(v)}},
			},
		})
		require.NoError(t, err)
	}

	cat := NewMapCatalog()
	cat.Register(FlowDef{ID: 9, Kind: KindDerived, Sources: []key.EncodedKey{source}})

	coord, pool := newTestCoordinator(engine, cat, Config{NumWorkers: 1, BackfillChunkSize: 2})
	defer pool.Close()
	defer coord.Close()

	discoverBatch := cdc.CdcBatch{
		Version: total,
		SystemChanges: []cdc.SystemChange{
			{Kind: key.KindFlow, Op: cdc.SystemInsert, Key: key.FlowKey(9)},
		},
	}

	err := coord.Consume(context.Background(), []cdc.CdcBatch{discoverBatch}, "consumer-b", total)
	require.NoError(t, err)

	st, ok := coord.states.Get(9)
	require.True(t, ok)
	assert.Equal(t, StatusActive, st.Status)
	assert.Equal(t, key.CommitVersion(total), st.Checkpoint)

	cpRow, ok, err := engine.store.get(key.CheckpointKey(9))
	require.NoError(t, err)
	require.True(t, ok)
	v, ok := key.DecodeVersion(cpRow.Value)
	require.True(t, ok)
	assert.Equal(t, key.CommitVersion(total), v)
}

func TestCoordinatorAlreadyCachedDerivedFlowIsRemovedFromCatalog(t *testing.T) {
	engine := newFakeEngine()
	cat := NewMapCatalog()
	cat.Register(FlowDef{ID: 3, Kind: KindDerived, Sources: []key.EncodedKey{tableKey("t")}})
	// Mark already-known by loading it once ahead of time.
	_, _, err := cat.GetOrLoadFlow(3)
	require.NoError(t, err)

	coord, pool := newTestCoordinator(engine, cat, Config{NumWorkers: 1})
	defer pool.Close()
	defer coord.Close()

	batch := cdc.CdcBatch{
		Version: 1,
		SystemChanges: []cdc.SystemChange{
			{Kind: key.KindFlow, Op: cdc.SystemInsert, Key: key.FlowKey(3)},
		},
	}
	err = coord.Consume(context.Background(), []cdc.CdcBatch{batch}, "", 1)
	require.NoError(t, err)

	_, ok := coord.states.Get(3)
	assert.False(t, ok, "already-cached derived flow should not gain its own FlowStates entry")
	assert.True(t, coord.analyzer.Has(3))

	_, _, err = cat.GetOrLoadFlow(3)
	assert.ErrorIs(t, err, ErrFlowNotFound)
}
