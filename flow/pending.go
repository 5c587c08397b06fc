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
	"slices"

	"github.com/reifydb/reifydb-sub004/key"
)

// PendingOp names the kind of write a Pending entry records.
type PendingOp int

const (
	PendingSet PendingOp = iota + 1
	PendingRemove
)

// Entry is one key's accumulated pending write, in the form a command
// transaction's Set/Remove expects.
type Entry struct {
	Key   key.EncodedKey
	Op    PendingOp
	Value []byte
}

// Pending accumulates the writes one or more worker replies produced during
// a single Consume round, merged last-write-wins by key, plus the set of
// view keys touched — tracked separately so the coordinator's finalize step
// can trigger any transactional flow sourcing those views inside the same
// commit. Not safe for concurrent use; owned by exactly one goroutine at a
// time (a worker while building its own reply, the coordinator while
// merging replies).
type Pending struct {
	order       []key.EncodedKey
	entries     map[string]Entry
	viewChanges []key.EncodedKey
}

// NewPending returns an empty accumulator.
func NewPending() *Pending {
	return &Pending{entries: make(map[string]Entry)}
}

// Set records a last-write-wins write of k to v.
func (p *Pending) Set(k key.EncodedKey, v []byte) {
	p.put(k, Entry{Op: PendingSet, Value: slices.Clone(v)})
}

// Remove records a last-write-wins tombstone of k.
func (p *Pending) Remove(k key.EncodedKey) {
	p.put(k, Entry{Op: PendingRemove})
}

func (p *Pending) put(k key.EncodedKey, e Entry) {
	ks := k.String()
	if _, ok := p.entries[ks]; !ok {
		p.order = append(p.order, k.Clone())
	}
	e.Key = k.Clone()
	p.entries[ks] = e
}

// TrackViewChange records that view was written to, for finalize to
// re-trigger any transactional flow sourcing it.
func (p *Pending) TrackViewChange(view key.EncodedKey) {
	p.viewChanges = append(p.viewChanges, view.Clone())
}

// TakeViewChanges returns and clears the tracked view keys.
func (p *Pending) TakeViewChanges() []key.EncodedKey {
	out := p.viewChanges
	p.viewChanges = nil
	return out
}

// Merge folds other into p, last-write-wins by key, and appends other's
// tracked view changes. A nil other is a no-op.
func (p *Pending) Merge(other *Pending) {
	if other == nil {
		return
	}
	for _, k := range other.order {
		e := other.entries[k.String()]
		p.put(k, e)
	}
	p.viewChanges = append(p.viewChanges, other.viewChanges...)
}

// IterSorted returns every pending entry in ascending key order.
func (p *Pending) IterSorted() []Entry {
	out := make([]Entry, 0, len(p.order))
	keys := slices.Clone(p.order)
	slices.SortFunc(keys, func(a, b key.EncodedKey) int { return a.Compare(b) })
	for _, k := range keys {
		out = append(out, p.entries[k.String()])
	}
	return out
}

// Len reports how many keys are pending.
func (p *Pending) Len() int { return len(p.order) }
