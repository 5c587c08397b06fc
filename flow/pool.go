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

	"github.com/juju/errors"
	"golang.org/x/sync/errgroup"

	"github.com/reifydb/reifydb-sub004/key"
)

// PoolResponse is one worker's reply to a WorkerBatch: the merged pending
// writes every instruction in the batch produced, or the first error
// encountered (processing of that worker's remaining instructions stops at
// the first failure, matching the coordinator's fail-the-whole-round
// semantics for backfill and live consume alike).
type PoolResponse struct {
	WorkerID     int
	StateVersion key.CommitVersion
	Pending      *Pending
	Updated      map[key.FlowID]key.CommitVersion
	Err          error
}

// workerJob is one WorkerBatch dispatched to a worker's mailbox, paired
// with the channel its response is delivered on.
type workerJob struct {
	batch WorkerBatch
	reply chan PoolResponse
}

// Pool owns a fixed set of workers, each a single goroutine with its own
// mailbox channel, so that every flow assigned to a worker is only ever
// touched by that worker's goroutine — FIFO-per-worker ordering without any
// locking in Executor implementations.
type Pool struct {
	workers    []chan workerJob
	executor   Executor
	wg         sync.WaitGroup
	closed     chan struct{}
	terminated chan struct{}
	closedOnce sync.Once
}

// NewPool starts numWorkers goroutines, each dispatching through executor.
func NewPool(numWorkers int, executor Executor) *Pool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	p := &Pool{
		workers:    make([]chan workerJob, numWorkers),
		executor:   executor,
		closed:     make(chan struct{}),
		terminated: make(chan struct{}),
	}
	for i := range p.workers {
		p.workers[i] = make(chan workerJob, 8)
		p.wg.Add(1)
		go p.runWorker(i, p.workers[i])
	}
	return p
}

// WorkerFor returns which worker id is assigned to, matching the
// coordinator's routing rule.
func (p *Pool) WorkerFor(id key.FlowID) int {
	return int(id) % len(p.workers)
}

// RegisterFlow round-trips an empty batch through id's assigned worker's
// mailbox. The pass-through executor needs no per-flow worker state, so
// this exists purely to establish the FIFO ordering guarantee before any
// real instruction for id is submitted, matching the "send RegisterFlow,
// wait for reply before registering the next" rule.
func (p *Pool) RegisterFlow(ctx context.Context, id key.FlowID) error {
	wid := p.WorkerFor(id)
	reply := make(chan PoolResponse, 1)
	job := workerJob{reply: reply}
	select {
	case <-p.closed:
		return errors.Trace(ErrCoordinatorStopped)
	default:
	}
	select {
	case p.workers[wid] <- job:
	case <-ctx.Done():
		return errors.Trace(ctx.Err())
	case <-p.closed:
		return errors.Trace(ErrCoordinatorStopped)
	}
	select {
	case resp := <-reply:
		return resp.Err
	case <-ctx.Done():
		return errors.Trace(ctx.Err())
	case <-p.terminated:
		return errors.Trace(ErrCoordinatorStopped)
	}
}

// runWorker loops on the mailbox until Close. Jobs already buffered when the
// close signal lands are still processed, so no sender is left waiting on a
// reply that will never come.
func (p *Pool) runWorker(id int, jobs chan workerJob) {
	defer p.wg.Done()
	for {
		select {
		case job := <-jobs:
			job.reply <- p.process(id, job.batch)
		case <-p.closed:
			for {
				select {
				case job := <-jobs:
					job.reply <- p.process(id, job.batch)
				default:
					return
				}
			}
		}
	}
}

func (p *Pool) process(workerID int, batch WorkerBatch) PoolResponse {
	merged := NewPending()
	updated := make(map[key.FlowID]key.CommitVersion, len(batch.Instructions))
	for _, instr := range batch.Instructions {
		out, err := p.executor.Execute(instr)
		if err != nil {
			return PoolResponse{
				WorkerID:     workerID,
				StateVersion: batch.StateVersion,
				Err:          errors.Annotatef(err, "execute flow %d", instr.FlowID),
			}
		}
		merged.Merge(out)
		updated[instr.FlowID] = instr.ToVersion
	}
	return PoolResponse{
		WorkerID:     workerID,
		StateVersion: batch.StateVersion,
		Pending:      merged,
		Updated:      updated,
	}
}

// Submit dispatches one batch per worker concurrently and waits for every
// worker addressed to reply, fanning out with errgroup. Workers not present
// in batches are left untouched. The returned slice holds one response per
// addressed worker, in no particular order; each carries its WorkerID.
func (p *Pool) Submit(ctx context.Context, batches map[int]WorkerBatch) ([]PoolResponse, error) {
	if len(batches) == 0 {
		return nil, nil
	}
	workerIDs := make([]int, 0, len(batches))
	for wid := range batches {
		workerIDs = append(workerIDs, wid)
	}

	responses := make([]PoolResponse, len(workerIDs))
	g, gctx := errgroup.WithContext(ctx)
	for i, wid := range workerIDs {
		i, wid := i, wid
		batch := batches[wid]
		g.Go(func() error {
			reply := make(chan PoolResponse, 1)
			select {
			case p.workers[wid] <- workerJob{batch: batch, reply: reply}:
			case <-gctx.Done():
				return gctx.Err()
			case <-p.closed:
				return errors.Trace(ErrCoordinatorStopped)
			}
			select {
			case resp := <-reply:
				responses[i] = resp
				return nil
			case <-gctx.Done():
				return gctx.Err()
			case <-p.terminated:
				return errors.Trace(ErrCoordinatorStopped)
			}
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errors.Trace(err)
	}
	return responses, nil
}

// Close stops accepting new work, waits for every worker goroutine to drain
// and exit, then releases any sender still waiting for a reply.
func (p *Pool) Close() {
	p.closedOnce.Do(func() {
		close(p.closed)
		p.wg.Wait()
		close(p.terminated)
	})
}
