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

// Package flow implements the CDC-driven flow coordinator: a single-threaded
// actor that consumes change-data-capture batches, routes them to a pool of
// flow workers, advances per-flow checkpoints, and backfills newly
// registered flows in bounded chunks. The actual dataflow evaluation a flow
// performs (joins, aggregation, columnar transforms) belongs to the
// evaluator and is out of scope; this package only owns routing, phase
// sequencing, and checkpoint durability.
package flow

import (
	"slices"

	"github.com/reifydb/reifydb-sub004/key"
)

// Kind distinguishes how a flow's checkpoint starts out. A subscription
// flow tails the live CDC stream from the moment it is registered; a
// derived flow replays history from version zero until its checkpoint
// catches up.
type Kind int

const (
	KindSubscription Kind = iota + 1
	KindDerived
)

// FlowDef is the minimal shape the coordinator needs to route CDC to a
// flow: its identity, whether it starts backfilling or tailing live, the
// primitive/view sources it reads, and the view it produces (if any). The
// full flow definition (operators, expressions) lives in the catalog this
// package treats as an external collaborator.
type FlowDef struct {
	ID       key.FlowID
	Kind     Kind
	Sources  []key.EncodedKey
	SinkView key.EncodedKey
}

// IsSubscription reports whether this flow starts Active at the live CDC
// tail rather than Backfilling from version zero.
func (f FlowDef) IsSubscription() bool { return f.Kind == KindSubscription }

// Status is a flow's lifecycle stage inside the coordinator. The
// transition Backfilling -> Active is one-way.
type Status int

const (
	StatusBackfilling Status = iota + 1
	StatusActive
)

func (s Status) String() string {
	if s == StatusActive {
		return "active"
	}
	return "backfilling"
}

// State is one flow's coordinator-side bookkeeping: its lifecycle stage and
// the last CDC version it has durably applied.
type State struct {
	Status     Status
	Checkpoint key.CommitVersion
}

// FlowStates holds every flow the coordinator knows about. It is owned
// exclusively by the coordinator's actor goroutine and needs no locking —
// the same "no locks, actor discipline" rule the coordinator itself
// follows.
type FlowStates struct {
	entries map[key.FlowID]*State
}

// NewFlowStates returns an empty table.
func NewFlowStates() *FlowStates {
	return &FlowStates{entries: make(map[key.FlowID]*State)}
}

// RegisterActive adds id as Active, tailing the live stream from at.
func (s *FlowStates) RegisterActive(id key.FlowID, at key.CommitVersion) {
	s.entries[id] = &State{Status: StatusActive, Checkpoint: at}
}

// RegisterBackfilling adds id as Backfilling from checkpoint zero.
func (s *FlowStates) RegisterBackfilling(id key.FlowID) {
	s.entries[id] = &State{Status: StatusBackfilling, Checkpoint: key.NoVersion}
}

// Activate transitions id to Active. A no-op if id is unknown.
func (s *FlowStates) Activate(id key.FlowID) {
	if st, ok := s.entries[id]; ok {
		st.Status = StatusActive
	}
}

// UpdateCheckpoint records id's most recently applied version. A no-op if
// id is unknown.
func (s *FlowStates) UpdateCheckpoint(id key.FlowID, v key.CommitVersion) {
	if st, ok := s.entries[id]; ok {
		st.Checkpoint = v
	}
}

// Get returns id's current state.
func (s *FlowStates) Get(id key.FlowID) (State, bool) {
	st, ok := s.entries[id]
	if !ok {
		return State{}, false
	}
	return *st, true
}

// ActiveFlowIDs returns every Active flow, sorted ascending for
// deterministic routing and test assertions.
func (s *FlowStates) ActiveFlowIDs() []key.FlowID {
	return s.idsWithStatus(StatusActive)
}

// BackfillingFlowIDs returns every Backfilling flow, sorted ascending.
func (s *FlowStates) BackfillingFlowIDs() []key.FlowID {
	return s.idsWithStatus(StatusBackfilling)
}

func (s *FlowStates) idsWithStatus(status Status) []key.FlowID {
	var out []key.FlowID
	for id, st := range s.entries {
		if st.Status == status {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out
}
