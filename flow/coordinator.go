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
	"slices"
	"sync"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"

	"github.com/reifydb/reifydb-sub004/cdc"
	"github.com/reifydb/reifydb-sub004/key"
)

// Txn is the minimal command-transaction surface the coordinator's finalize
// step needs: apply the round's pending writes, persist checkpoints, and
// flag which views were touched so pre_commit can re-trigger any
// transactional flow sourcing them inside the same commit.
type Txn interface {
	Get(k key.EncodedKey) (key.Row, bool, error)
	Set(k key.EncodedKey, value []byte) error
	Remove(k key.EncodedKey) error
	TrackViewChange(view key.EncodedKey)
}

// Engine is the minimal storage-engine surface the coordinator needs: a
// read-only and a read-write transaction scope, plus the CDC stream
// backfill replays from.
type Engine interface {
	View(fn func(Txn) error) error
	Update(fn func(Txn) error) error
	CDC() cdc.Stream
}

// Config tunes one Coordinator.
type Config struct {
	NumWorkers        int
	BackfillChunkSize key.CommitVersion
	Clock             clock.Clock
}

func (c Config) withDefaults() Config {
	if c.NumWorkers < 1 {
		c.NumWorkers = 1
	}
	if c.BackfillChunkSize == 0 {
		c.BackfillChunkSize = 1000
	}
	if c.Clock == nil {
		c.Clock = clock.WallClock
	}
	return c
}

// phase is the Coordinator's state-machine position.
type phase int

const (
	phaseIdle phase = iota
	phaseRegisteringFlows
	phaseSubmittingBatches
	phaseAdvancingBackfill
	phaseFinalizing
)

// consumeMsg is one external Consume request delivered through the
// mailbox.
type consumeMsg struct {
	batches        []cdc.CdcBatch
	consumerKey    string
	currentVersion key.CommitVersion
	reply          chan error
}

// poolReplyMsg carries one pool round's outcome back into the actor loop,
// tagged with the phase it answers. A reply tagged for a phase the
// coordinator has already left is ignored — it cannot happen given the
// single in-flight round this design guarantees, but the tag makes that
// invariant checkable rather than assumed.
type poolReplyMsg struct {
	forPhase  phase
	responses []PoolResponse
	err       error
}

// consumeContext is the saved continuation for one in-flight Consume round:
// every phase reads and updates it, and finish/finishWithError consume it.
type consumeContext struct {
	reply          chan error
	consumerKey    string
	currentVersion key.CommitVersion
	latestVersion  key.CommitVersion

	allChanges []cdc.Change

	discoveryQueue []key.FlowID

	pending     *Pending
	checkpoints map[key.FlowID]key.CommitVersion

	backfillQueue []key.FlowID

	startedAt time.Time
}

// Coordinator is the single-threaded CDC consumer: one goroutine, messages
// processed one at a time, so it needs no locks of its own — exclusion is
// bought with actor discipline instead of a mutex.
type Coordinator struct {
	engine   Engine
	catalog  Catalog
	analyzer *Analyzer
	pool     *Pool
	states   *FlowStates
	tracker  *Tracker
	cfg      Config

	mailbox        chan consumeMsg
	poolReplyC     chan poolReplyMsg
	finalizeReplyC chan error
	closeC         chan struct{}
	closedOnce     sync.Once
	stopped        chan struct{}

	phase phase
	ctx   *consumeContext
}

// NewCoordinator starts the actor goroutine and returns immediately.
func NewCoordinator(engine Engine, flowCatalog Catalog, pool *Pool, cfg Config) *Coordinator {
	c := &Coordinator{
		engine:         engine,
		catalog:        flowCatalog,
		analyzer:       NewAnalyzer(),
		pool:           pool,
		states:         NewFlowStates(),
		tracker:        NewTracker(),
		cfg:            cfg.withDefaults(),
		mailbox:        make(chan consumeMsg),
		poolReplyC:     make(chan poolReplyMsg, 4),
		finalizeReplyC: make(chan error, 1),
		closeC:         make(chan struct{}),
		stopped:        make(chan struct{}),
		phase:          phaseIdle,
	}
	go c.run()
	return c
}

// Tracker exposes the per-source lag tracker for client lag queries.
func (c *Coordinator) Tracker() *Tracker { return c.tracker }

// Consume delivers one round of CDC batches for consumerKey, currently at
// currentVersion. It blocks until the coordinator replies — success,
// failure, or ErrCoordinatorBusy if a round is already in flight — or until
// ctx is done.
func (c *Coordinator) Consume(ctx context.Context, batches []cdc.CdcBatch, consumerKey string, currentVersion key.CommitVersion) error {
	reply := make(chan error, 1)
	msg := consumeMsg{batches: batches, consumerKey: consumerKey, currentVersion: currentVersion, reply: reply}
	select {
	case c.mailbox <- msg:
	case <-c.stopped:
		return errors.Trace(ErrCoordinatorStopped)
	case <-ctx.Done():
		return errors.Trace(ctx.Err())
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return errors.Trace(ctx.Err())
	}
}

// Close stops the actor goroutine and waits for it to exit. Any Consume
// still waiting in the mailbox receives ErrCoordinatorStopped.
func (c *Coordinator) Close() {
	c.closedOnce.Do(func() { close(c.closeC) })
	<-c.stopped
	c.pool.Close()
}

func (c *Coordinator) run() {
	defer close(c.stopped)
	for {
		select {
		case msg := <-c.mailbox:
			c.handleMailbox(msg)
		case pr := <-c.poolReplyC:
			if pr.forPhase != c.phase {
				continue
			}
			c.handlePoolReply(pr)
		case err := <-c.finalizeReplyC:
			if c.phase != phaseFinalizing {
				continue
			}
			c.onFinalizeReply(err)
		case <-c.closeC:
			c.drainMailbox()
			return
		}
	}
}

func (c *Coordinator) drainMailbox() {
	for {
		select {
		case msg := <-c.mailbox:
			msg.reply <- errors.Trace(ErrCoordinatorStopped)
		default:
			return
		}
	}
}

func (c *Coordinator) handleMailbox(msg consumeMsg) {
	if c.phase != phaseIdle {
		msg.reply <- errors.Trace(ErrCoordinatorBusy)
		return
	}
	c.beginConsume(msg)
}

// beginConsume is the "Consume entry" + "Flow discovery" steps: capture
// latest_version, update the per-source lag tracker, and classify every
// newly-discovered flow as subscription, already-cached-elsewhere, or
// new-derived.
func (c *Coordinator) beginConsume(msg consumeMsg) {
	cctx := &consumeContext{
		reply:          msg.reply,
		consumerKey:    msg.consumerKey,
		currentVersion: msg.currentVersion,
		pending:        NewPending(),
		checkpoints:    make(map[key.FlowID]key.CommitVersion),
		startedAt:      c.cfg.Clock.Now(),
	}

	var latest key.CommitVersion
	for _, batch := range msg.batches {
		if batch.Version > latest {
			latest = batch.Version
		}
		for _, ch := range batch.Changes {
			if ch.Origin.Kind == cdc.OriginPrimitive {
				c.tracker.Update(ch.Origin.Source, batch.Version)
			}
		}
		cctx.allChanges = append(cctx.allChanges, batch.Changes...)
	}
	cctx.latestVersion = latest

	discovered := make(map[key.FlowID]struct{})
	for _, batch := range msg.batches {
		for _, id := range cdc.ExtractNewFlowIDs(batch) {
			discovered[id] = struct{}{}
		}
	}

	var toRegister []key.FlowID
	for id := range discovered {
		def, isNew, err := c.catalog.GetOrLoadFlow(id)
		if err != nil {
			c.finishWithError(cctx, errors.Annotatef(err, "load flow %d", id))
			return
		}
		switch {
		case def.IsSubscription():
			c.states.RegisterActive(id, cctx.currentVersion)
			c.analyzer.Add(def)
			toRegister = append(toRegister, id)
		case !isNew:
			c.catalog.Remove(id)
			c.analyzer.Add(def)
		default:
			c.states.RegisterBackfilling(id)
			if cp := c.loadCheckpoint(id); cp > key.NoVersion {
				c.states.UpdateCheckpoint(id, cp)
			}
			c.analyzer.Add(def)
			toRegister = append(toRegister, id)
		}
	}
	slices.Sort(toRegister)
	cctx.discoveryQueue = toRegister

	c.ctx = cctx
	c.registerNextFlow()
}

// registerNextFlow is the "Flow registration phase": one RegisterFlow round
// trip per newly-discovered flow, strictly sequential.
func (c *Coordinator) registerNextFlow() {
	if len(c.ctx.discoveryQueue) == 0 {
		c.proceedToSubmit()
		return
	}
	id := c.ctx.discoveryQueue[0]
	c.ctx.discoveryQueue = c.ctx.discoveryQueue[1:]
	c.phase = phaseRegisteringFlows
	go func() {
		err := c.pool.RegisterFlow(context.Background(), id)
		c.poolReplyC <- poolReplyMsg{forPhase: phaseRegisteringFlows, err: err}
	}()
}

func (c *Coordinator) handlePoolReply(pr poolReplyMsg) {
	switch c.phase {
	case phaseRegisteringFlows:
		if pr.err != nil {
			c.finishWithError(c.ctx, errors.Trace(pr.err))
			return
		}
		c.registerNextFlow()
	case phaseSubmittingBatches:
		c.onSubmitReply(pr)
	case phaseAdvancingBackfill:
		c.onBackfillReply(pr)
	}
}

// proceedToSubmit is the "Batch submission phase": route every active
// flow's filtered changes to worker flow_id % num_workers and submit all
// batches as one pool request.
func (c *Coordinator) proceedToSubmit() {
	active := c.states.ActiveFlowIDs()
	batches := make(map[int]WorkerBatch)
	for _, id := range active {
		filtered := c.analyzer.FilterForFlow(id, c.ctx.allChanges)
		if len(filtered) == 0 {
			continue
		}
		wid := c.pool.WorkerFor(id)
		b, ok := batches[wid]
		if !ok {
			b = NewWorkerBatch(c.ctx.latestVersion)
		}
		b.AddInstruction(FlowInstruction{FlowID: id, ToVersion: c.ctx.latestVersion, Changes: filtered})
		batches[wid] = b
	}

	if len(batches) == 0 {
		c.proceedToBackfill()
		return
	}

	c.phase = phaseSubmittingBatches
	go func() {
		responses, err := c.pool.Submit(context.Background(), batches)
		c.poolReplyC <- poolReplyMsg{forPhase: phaseSubmittingBatches, responses: responses, err: err}
	}()
}

func (c *Coordinator) onSubmitReply(pr poolReplyMsg) {
	if pr.err != nil {
		c.finishWithError(c.ctx, errors.Trace(pr.err))
		return
	}
	for _, resp := range pr.responses {
		if resp.Err != nil {
			c.finishWithError(c.ctx, errors.Trace(resp.Err))
			return
		}
		c.ctx.pending.Merge(resp.Pending)
		for id, v := range resp.Updated {
			c.ctx.checkpoints[id] = v
			c.states.UpdateCheckpoint(id, v)
		}
	}
	c.proceedToBackfill()
}

// proceedToBackfill is the "Backfill phase" entry: snapshot every
// Backfilling flow and advance them one chunk at a time.
func (c *Coordinator) proceedToBackfill() {
	c.ctx.backfillQueue = c.states.BackfillingFlowIDs()
	c.advanceNextBackfillFlow()
}

// advanceNextBackfillFlow drives one Backfilling flow through steps 1-6 of
// the backfill phase, skipping flows synchronously (already caught up, or
// an empty chunk after filtering) and suspending — returning to the actor
// loop — the moment a chunk is actually submitted to the pool. The next
// iteration resumes in onBackfillReply.
func (c *Coordinator) advanceNextBackfillFlow() {
	for len(c.ctx.backfillQueue) > 0 {
		id := c.ctx.backfillQueue[0]
		st, ok := c.states.Get(id)
		if !ok {
			c.ctx.backfillQueue = c.ctx.backfillQueue[1:]
			continue
		}
		if st.Checkpoint >= c.ctx.currentVersion {
			c.states.Activate(id)
			c.ctx.backfillQueue = c.ctx.backfillQueue[1:]
			continue
		}

		to := st.Checkpoint + c.cfg.BackfillChunkSize
		if to > c.ctx.currentVersion {
			to = c.ctx.currentVersion
		}

		batches, err := c.engine.CDC().ReadRange(st.Checkpoint, to, 0)
		if err != nil {
			c.finishWithError(c.ctx, errors.Annotatef(ErrBackfillFailure, "read range: %v", err))
			return
		}

		var changes []cdc.Change
		for _, b := range batches {
			changes = append(changes, b.Changes...)
		}
		filtered := c.analyzer.FilterForFlow(id, changes)

		if len(filtered) == 0 {
			c.states.UpdateCheckpoint(id, to)
			if to >= c.ctx.currentVersion {
				c.states.Activate(id)
			}
			c.ctx.backfillQueue = c.ctx.backfillQueue[1:]
			continue
		}

		wid := c.pool.WorkerFor(id)
		workerBatches := map[int]WorkerBatch{
			wid: {
				StateVersion: to,
				Instructions: []FlowInstruction{{FlowID: id, ToVersion: to, Changes: filtered}},
			},
		}
		c.phase = phaseAdvancingBackfill
		go func() {
			responses, err := c.pool.Submit(context.Background(), workerBatches)
			c.poolReplyC <- poolReplyMsg{forPhase: phaseAdvancingBackfill, responses: responses, err: err}
		}()
		return
	}
	c.finish()
}

func (c *Coordinator) onBackfillReply(pr poolReplyMsg) {
	if pr.err != nil {
		c.finishWithError(c.ctx, errors.Annotatef(ErrBackfillFailure, "submit: %v", pr.err))
		return
	}
	id := c.ctx.backfillQueue[0]
	resp := pr.responses[0]
	if resp.Err != nil {
		c.finishWithError(c.ctx, errors.Annotatef(ErrBackfillFailure, "execute: %v", resp.Err))
		return
	}
	c.ctx.pending.Merge(resp.Pending)
	to := resp.StateVersion
	c.ctx.checkpoints[id] = to
	c.states.UpdateCheckpoint(id, to)
	// The flow stays at the head of the queue until it catches up to
	// current_version; each resume advances it one more chunk.
	if to >= c.ctx.currentVersion {
		c.states.Activate(id)
		c.ctx.backfillQueue = c.ctx.backfillQueue[1:]
	}
	c.advanceNextBackfillFlow()
}

// finish is the "Finalize" step: one command transaction applying every
// pending write, every advanced checkpoint, and the consumer-level
// checkpoint, atomically. View writes are flagged via TrackViewChange so
// pre_commit can re-trigger any transactional flow sourcing them before
// this same commit lands. Dispatched through a goroutine like every other
// phase, so the actor loop stays free to reply ErrCoordinatorBusy to any
// Consume arriving while the commit is in flight.
func (c *Coordinator) finish() {
	c.phase = phaseFinalizing
	cctx := c.ctx
	go func() {
		c.finalizeReplyC <- c.engine.Update(func(txn Txn) error {
			for _, e := range cctx.pending.IterSorted() {
				switch e.Op {
				case PendingSet:
					if err := txn.Set(e.Key, e.Value); err != nil {
						return err
					}
				case PendingRemove:
					if err := txn.Remove(e.Key); err != nil {
						return err
					}
				}
			}
			for id, v := range cctx.checkpoints {
				if err := txn.Set(key.CheckpointKey(id), key.EncodeVersion(v)); err != nil {
					return err
				}
			}
			if cctx.consumerKey != "" {
				if err := txn.Set(key.ConsumerKey(cctx.consumerKey), key.EncodeVersion(cctx.latestVersion)); err != nil {
					return err
				}
			}
			for _, v := range cctx.pending.TakeViewChanges() {
				txn.TrackViewChange(v)
			}
			return nil
		})
	}()
}

func (c *Coordinator) onFinalizeReply(err error) {
	cctx := c.ctx
	if err != nil {
		c.finishWithError(cctx, errors.Annotate(err, "finalize"))
		return
	}
	c.tracker.RecordRoundLatency(c.cfg.Clock.Now().Sub(cctx.startedAt))
	c.resetPhase()
	cctx.reply <- nil
}

func (c *Coordinator) finishWithError(cctx *consumeContext, err error) {
	c.tracker.RecordRoundLatency(c.cfg.Clock.Now().Sub(cctx.startedAt))
	c.resetPhase()
	cctx.reply <- err
}

// loadCheckpoint reads id's persisted checkpoint, if any. Used only when a
// derived flow is first discovered, so the coordinator resumes a backfill
// already in progress from a prior process lifetime rather than restarting
// it at zero. Once registered, FlowStates is the coordinator's authoritative
// checkpoint source for the rest of this process's life, kept consistent
// with storage by finish() updating both atomically.
func (c *Coordinator) loadCheckpoint(id key.FlowID) key.CommitVersion {
	var v key.CommitVersion
	_ = c.engine.View(func(txn Txn) error {
		row, ok, err := txn.Get(key.CheckpointKey(id))
		if err != nil || !ok {
			return nil
		}
		if dv, ok := key.DecodeVersion(row.Value); ok {
			v = dv
		}
		return nil
	})
	return v
}

func (c *Coordinator) resetPhase() {
	c.phase = phaseIdle
	c.ctx = nil
}
