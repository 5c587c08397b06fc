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

// Package skiplist is a generic ordered in-memory map keyed by key.EncodedKey,
// used by the storage package to hold one commit generation of a shard of
// its versioned row store.
package skiplist

import (
	"math/rand"
	"time"
	"unsafe"

	"github.com/reifydb/reifydb-sub004/key"
)

var _headKey = key.FromString("\x00HEAD")

// SkipList
// Level 3:       3 ----------- 9 ----------- 21 --------- 26
// Level 2:       3 ----- 6 ---- 9 ------ 19 -- 21 ---- 25 -- 26
// Level 1:       3 -- 6 -- 7 -- 9 -- 12 -- 19 -- 21 -- 25 -- 26
// next of Element 3 [ ->6, ->6, ->9 ]
// next of Element 6 [ ->7, ->9 ]
type SkipList struct {
	maxLevel int
	p        float64
	level    int
	rand     *rand.Rand
	size     int
	head     *Element
}

type Element struct {
	key.Row
	next []*Element
}

func New(maxLevel int, p float64) *SkipList {
	return &SkipList{
		maxLevel: maxLevel,
		p:        p,
		level:    1,
		rand:     rand.New(rand.NewSource(time.Now().UnixNano())),
		size:     0,
		head: &Element{
			Row: key.Row{
				Key: _headKey,
			},
			next: make([]*Element, maxLevel),
		},
	}
}

func (s *SkipList) Reset() *SkipList {
	return New(s.maxLevel, s.p)
}

func (s *SkipList) Size() int {
	return s.size
}

// Set inserts or overwrites the row at row.Key, keeping only the newest
// version per key — the shard holds live rows for one storage tier, not a
// version history.
func (s *SkipList) Set(row key.Row) {
	curr := s.head
	update := make([]*Element, s.maxLevel)

	for i := s.maxLevel - 1; i >= 0; i-- {
		for curr.next[i] != nil && curr.next[i].Key.Compare(row.Key) < 0 {
			curr = curr.next[i]
		}
		update[i] = curr
	}

	// update
	if curr.next[0] != nil && curr.next[0].Key.Equal(row.Key) {
		s.size += len(row.Value) - len(curr.next[0].Value)

		curr.next[0].Value = row.Value
		curr.next[0].Tombstone = row.Tombstone
		curr.next[0].Version = row.Version
		return
	}

	// add
	level := s.randomLevel()

	if level > s.level {
		for i := s.level; i < level; i++ {
			update[i] = s.head
		}
		s.level = level
	}

	e := &Element{
		Row:  row.Clone(),
		next: make([]*Element, level),
	}

	for i := range level {
		e.next[i] = update[i].next[i]
		update[i].next[i] = e
	}
	s.size += len(row.Key) + len(row.Value) + int(unsafe.Sizeof(row.Tombstone)) + len(e.next)*int(unsafe.Sizeof((*Element)(nil)))
}

func (s *SkipList) Get(k key.EncodedKey) (key.Row, bool) {
	curr := s.head

	for i := s.maxLevel - 1; i >= 0; i-- {
		for curr.next[i] != nil && curr.next[i].Key.Compare(k) < 0 {
			curr = curr.next[i]
		}
	}

	curr = curr.next[0]

	if curr != nil && curr.Key.Equal(k) {
		return curr.Row, true
	}
	return key.Row{}, false
}

func (s *SkipList) All() []key.Row {
	var all []key.Row
	curr := s.head.next[0]
	for curr != nil {
		all = append(all, curr.Row)
		curr = curr.next[0]
	}
	return all
}

// Scan returns every row in the half-open range [start, end), end == nil
// meaning unbounded above.
func (s *SkipList) Scan(start, end key.EncodedKey) []key.Row {
	curr := s.head
	for i := s.maxLevel - 1; i >= 0; i-- {
		for curr.next[i] != nil && curr.next[i].Key.Compare(start) < 0 {
			curr = curr.next[i]
		}
	}

	var out []key.Row
	curr = curr.next[0]
	for curr != nil {
		if end != nil && curr.Key.Compare(end) >= 0 {
			break
		}
		out = append(out, curr.Row)
		curr = curr.next[0]
	}
	return out
}

// Delete removes k outright. Storage layers prefer Set with Tombstone: true
// so readers at older versions still see the prior value; Delete is for
// reclaiming space once a key is known unreachable.
func (s *SkipList) Delete(k key.EncodedKey) bool {
	curr := s.head
	update := make([]*Element, s.maxLevel)

	for i := s.maxLevel - 1; i >= 0; i-- {
		for curr.next[i] != nil && curr.next[i].Key.Compare(k) < 0 {
			curr = curr.next[i]
		}
		update[i] = curr
	}

	curr = curr.next[0]

	if curr != nil && curr.Key.Equal(k) {
		for i := range s.level {
			if update[i].next[i] != curr {
				break
			}
			update[i].next[i] = curr.next[i]
		}
		s.size -= len(curr.Key) + len(curr.Value) + int(unsafe.Sizeof(curr.Tombstone)) + len(curr.next)*int(unsafe.Sizeof((*Element)(nil)))

		for s.level > 1 && s.head.next[s.level-1] == nil {
			s.level--
		}
		return true
	}
	return false
}

// n < MaxLevel, return level == n has probability P^n
func (s *SkipList) randomLevel() int {
	level := 1
	for s.rand.Float64() < s.p && level < s.maxLevel {
		level++
	}
	return level
}
