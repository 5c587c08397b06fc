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
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/reifydb/reifydb-sub004/key"
)

func TestPendingLastWriteWins(t *testing.T) {
	p := NewPending()
	k := key.New(key.KindRow, []byte("a"))

	p.Set(k, []byte("first"))
	p.Set(k, []byte("second"))

	assert.Equal(t, 1, p.Len())
	entries := p.IterSorted()
	assert.Equal(t, []byte("second"), entries[0].Value)
	assert.Equal(t, PendingSet, entries[0].Op)
}

func TestPendingSetThenRemove(t *testing.T) {
	p := NewPending()
	k := key.New(key.KindRow, []byte("a"))

	p.Set(k, []byte("v"))
	p.Remove(k)

	entries := p.IterSorted()
	assert.Len(t, entries, 1)
	assert.Equal(t, PendingRemove, entries[0].Op)
	assert.Nil(t, entries[0].Value)
}

func TestPendingIterSortedOrder(t *testing.T) {
	p := NewPending()
	p.Set(key.New(key.KindRow, []byte("c")), []byte("1"))
	p.Set(key.New(key.KindRow, []byte("a")), []byte("2"))
	p.Set(key.New(key.KindRow, []byte("b")), []byte("3"))

	entries := p.IterSorted()
	assert.Len(t, entries, 3)
	assert.True(t, entries[0].Key.Compare(entries[1].Key) < 0)
	assert.True(t, entries[1].Key.Compare(entries[2].Key) < 0)
}

func TestPendingMerge(t *testing.T) {
	a := NewPending()
	a.Set(key.New(key.KindRow, []byte("x")), []byte("a1"))

	b := NewPending()
	b.Set(key.New(key.KindRow, []byte("y")), []byte("b1"))
	b.Set(key.New(key.KindRow, []byte("x")), []byte("b2"))

	a.Merge(b)

	assert.Equal(t, 2, a.Len())
	entries := a.IterSorted()
	byKey := make(map[string][]byte)
	for _, e := range entries {
		byKey[e.Key.String()] = e.Value
	}
	assert.Equal(t, []byte("b2"), byKey[key.New(key.KindRow, []byte("x")).String()])
}

func TestPendingViewChangeTracking(t *testing.T) {
	p := NewPending()
	view := key.New(key.KindView, []byte("v1"))
	p.TrackViewChange(view)
	p.TrackViewChange(view)

	changes := p.TakeViewChanges()
	assert.Len(t, changes, 2)
	assert.Empty(t, p.TakeViewChanges())
}
