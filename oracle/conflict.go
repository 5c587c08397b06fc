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

package oracle

import (
	"github.com/reifydb/reifydb-sub004/key"
)

// ConflictManager accumulates the read set, write set, and range reads a
// single transaction touches during its lifetime. The Oracle keeps one of
// these per committed transaction (inside its window) and consults it when
// validating a later transaction's commit.
type ConflictManager struct {
	reads      map[string]struct{}
	writes     map[string]struct{}
	ranges     []key.EncodedKeyRange
	hasRangeOp bool
}

// NewConflictManager returns an empty tracker.
func NewConflictManager() *ConflictManager {
	return &ConflictManager{
		reads:  make(map[string]struct{}),
		writes: make(map[string]struct{}),
	}
}

// MarkRead records k as read by this transaction.
func (c *ConflictManager) MarkRead(k key.EncodedKey) {
	c.reads[k.String()] = struct{}{}
}

// MarkWrite records k as written (or deleted) by this transaction.
func (c *ConflictManager) MarkWrite(k key.EncodedKey) {
	c.writes[k.String()] = struct{}{}
}

// MarkRange records a range scan, e.g. a table scan or an index prefix scan.
// Any key later written inside this range by another transaction is a
// conflict with this transaction's snapshot read.
func (c *ConflictManager) MarkRange(r key.EncodedKeyRange) {
	c.ranges = append(c.ranges, r)
	c.hasRangeOp = true
}

// WriteKeys returns every key this transaction wrote, used by the Oracle to
// index a newly committed transaction into the window's key_to_windows map
// and bloom filter.
func (c *ConflictManager) WriteKeys() []key.EncodedKey {
	out := make([]key.EncodedKey, 0, len(c.writes))
	for k := range c.writes {
		out = append(out, key.FromString(k))
	}
	return out
}

// ReadKeys returns every key this transaction read, used by the Oracle's
// window-selection step to find candidate windows via key_to_windows.
func (c *ConflictManager) ReadKeys() []key.EncodedKey {
	out := make([]key.EncodedKey, 0, len(c.reads))
	for k := range c.reads {
		out = append(out, key.FromString(k))
	}
	return out
}

// HasReadsOrWrites reports whether this transaction touched any key at all
// (reads, writes, or ranges). An empty conflict manager never conflicts and
// never needs window indexing.
func (c *ConflictManager) HasReadsOrWrites() bool {
	return len(c.reads) > 0 || len(c.writes) > 0 || c.hasRangeOp
}

// HasRangeOp reports whether this transaction performed at least one range
// scan.
func (c *ConflictManager) HasRangeOp() bool {
	return c.hasRangeOp
}

// HasConflict reports whether c (the transaction attempting to commit)
// conflicts with old (a transaction that committed during c's lifetime).
// old is already durable and irrevocable, so only old's writes can
// invalidate c — nothing c did can retroactively invalidate old. The
// clauses:
//
//  1. old wrote a key c read: c's snapshot of that key is stale.
//  2. old wrote a key c also wrote: lost-update.
//  3. old wrote a key inside one of c's scanned ranges: c's range read
//     missed that key and is stale.
func (c *ConflictManager) HasConflict(old *ConflictManager) bool {
	if old == nil || len(old.writes) == 0 {
		return false
	}

	// A transaction that wrote nothing and scanned no range commits at
	// its own snapshot regardless of ordering. Read-only transactions
	// never abort.
	if len(c.writes) == 0 && !c.hasRangeOp {
		return false
	}

	for w := range old.writes {
		if _, ok := c.reads[w]; ok {
			return true
		}
		if _, ok := c.writes[w]; ok {
			return true
		}
	}

	if c.hasRangeOp && len(c.ranges) > 0 {
		for w := range old.writes {
			wk := key.FromString(w)
			for _, rg := range c.ranges {
				if rg.Contains(wk) {
					return true
				}
			}
		}
	}

	return false
}
