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
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/reifydb/reifydb-sub004/key"
)

func TestConflictManagerEmptyNeverConflicts(t *testing.T) {
	a := NewConflictManager()
	b := NewConflictManager()
	assert.False(t, a.HasConflict(b))
	assert.False(t, a.HasReadsOrWrites())
}

func TestConflictManagerWriteWriteConflict(t *testing.T) {
	a := NewConflictManager()
	a.MarkWrite(key.FromString("x"))

	b := NewConflictManager()
	b.MarkWrite(key.FromString("x"))

	assert.True(t, a.HasConflict(b))
}

func TestConflictManagerReadInvalidatedByOldWrite(t *testing.T) {
	a := NewConflictManager()
	a.MarkRead(key.FromString("x"))
	a.MarkWrite(key.FromString("y"))

	old := NewConflictManager()
	old.MarkWrite(key.FromString("x"))

	assert.True(t, a.HasConflict(old))
}

func TestConflictManagerOldReadDoesNotBlockNewWrite(t *testing.T) {
	// old already committed; its read of "x" cannot be retroactively
	// invalidated by a write that lands after it. Only old's writes
	// matter to a later committer.
	a := NewConflictManager()
	a.MarkWrite(key.FromString("x"))

	old := NewConflictManager()
	old.MarkRead(key.FromString("x"))

	assert.False(t, a.HasConflict(old))
}

func TestConflictManagerDifferentKeysNoConflict(t *testing.T) {
	a := NewConflictManager()
	a.MarkWrite(key.FromString("x"))

	b := NewConflictManager()
	b.MarkWrite(key.FromString("y"))

	assert.False(t, a.HasConflict(b))
}

func TestConflictManagerReadOnlyNeverConflicts(t *testing.T) {
	// A pure reader commits at its own snapshot: with no writes and no
	// ranges of its own there is nothing a concurrent commit can
	// invalidate that it still intends to publish.
	a := NewConflictManager()
	a.MarkRead(key.FromString("x"))

	b := NewConflictManager()
	b.MarkWrite(key.FromString("x"))

	assert.False(t, a.HasConflict(b))
}

func TestConflictManagerOldRangeDoesNotBlockNewWrite(t *testing.T) {
	// Same one-directional rule for ranges: a range old scanned before
	// committing is already settled, so a later write inside it is not a
	// conflict for the writer.
	a := NewConflictManager()
	a.MarkWrite(key.FromString("key5"))

	old := NewConflictManager()
	old.MarkRange(key.Range(key.FromString("key0"), key.FromString("key9")))

	assert.False(t, a.HasConflict(old))
}

func TestConflictManagerOldWriteInsideNewRange(t *testing.T) {
	// The transaction attempting to commit did a range scan, and the
	// already-committed transaction wrote inside it: the scan is stale.
	a := NewConflictManager()
	a.MarkRange(key.Range(key.FromString("key0"), key.FromString("key9")))

	old := NewConflictManager()
	old.MarkWrite(key.FromString("key5"))

	assert.True(t, a.HasConflict(old))
}

func TestConflictManagerOldWriteOutsideNewRange(t *testing.T) {
	a := NewConflictManager()
	a.MarkRange(key.Range(key.FromString("key0"), key.FromString("key9")))

	old := NewConflictManager()
	old.MarkWrite(key.FromString("zzz"))

	assert.False(t, a.HasConflict(old))
}

func TestConflictManagerMultiKeyScenario(t *testing.T) {
	a := NewConflictManager()
	a.MarkRead(key.FromString("k1"))
	a.MarkWrite(key.FromString("k2"))

	old := NewConflictManager()
	old.MarkWrite(key.FromString("k1"))
	old.MarkWrite(key.FromString("k3"))

	assert.True(t, a.HasConflict(old))
}
