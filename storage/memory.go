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

package storage

import (
	"cmp"
	"slices"
	"sync"

	"github.com/juju/errors"

	"github.com/reifydb/reifydb-sub004/key"
	"github.com/reifydb/reifydb-sub004/pkg/kway"
	"github.com/reifydb/reifydb-sub004/pkg/skiplist"
)

// _shardPrefixLen is how many leading bytes of a key identify its shard: the
// kind byte plus up to 8 bytes of table/entity id, mirroring the per-table
// RwLock<OrderedMap> shards the design note describes without requiring this
// reference store to understand catalog structure.
const _shardPrefixLen = 9

const _skipListMaxLevel = 9
const _skipListP = 0.5

func shardKeyOf(k key.EncodedKey) string {
	n := len(k)
	if n > _shardPrefixLen {
		n = _shardPrefixLen
	}
	return string(k[:n])
}

// generation is one commit's worth of rows, frozen at Apply time. Memory
// keeps generations in commit-version order and reconciles them with a
// k-way merge on read — the "multiple sorted runs" shape of an LSM
// memtable/immutable list, without ever touching disk.
type generation struct {
	version key.CommitVersion
	data    *skiplist.SkipList
}

type shard struct {
	mu          sync.RWMutex
	generations []*generation
}

// Memory is an in-memory VersionedCommand. It never compacts or evicts old
// generations — it exists to drive and test the concurrency core, not to
// run a production row store.
type Memory struct {
	mu     sync.RWMutex
	shards map[string]*shard
}

// NewMemory returns an empty versioned store.
func NewMemory() *Memory {
	return &Memory{shards: make(map[string]*shard)}
}

func (m *Memory) shardFor(shardKey string) *shard {
	m.mu.RLock()
	s, ok := m.shards[shardKey]
	m.mu.RUnlock()
	if ok {
		return s
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok = m.shards[shardKey]; ok {
		return s
	}
	s = &shard{}
	m.shards[shardKey] = s
	return s
}

func (m *Memory) allShards() []*shard {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*shard, 0, len(m.shards))
	for _, s := range m.shards {
		out = append(out, s)
	}
	return out
}

// Apply lands every row in writes as one commit at version. Rows are grouped
// by shard and each shard gets exactly one new generation, so two writes to
// the same shard in the same Apply call land in a single generation rather
// than creating two.
func (m *Memory) Apply(writes []key.Row, version key.CommitVersion) error {
	byShard := make(map[string][]key.Row)
	for _, row := range writes {
		row.Version = version
		sk := shardKeyOf(row.Key)
		byShard[sk] = append(byShard[sk], row)
	}

	for sk, rows := range byShard {
		s := m.shardFor(sk)
		sl := skiplist.New(_skipListMaxLevel, _skipListP)
		for _, row := range rows {
			sl.Set(row)
		}

		s.mu.Lock()
		i := len(s.generations)
		for i > 0 && s.generations[i-1].version > version {
			i--
		}
		s.generations = slices.Insert(s.generations, i, &generation{version: version, data: sl})
		s.mu.Unlock()
	}

	return nil
}

// Get returns the row visible to version, or (_, false, nil) if no write at
// or before version touched k, or the most recent such write was a delete.
func (m *Memory) Get(k key.EncodedKey, version key.CommitVersion) (key.Row, bool, error) {
	s := m.shardFor(shardKeyOf(k))

	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := len(s.generations) - 1; i >= 0; i-- {
		gen := s.generations[i]
		if gen.version > version {
			continue
		}
		if row, ok := gen.data.Get(k); ok {
			if row.Tombstone {
				return key.Row{}, false, nil
			}
			return row, true, nil
		}
	}
	return key.Row{}, false, nil
}

// Range returns every live row in r visible to version, ascending by key.
func (m *Memory) Range(r key.EncodedKeyRange, version key.CommitVersion) ([]key.Row, error) {
	return m.rangeMerged(r, version)
}

// RangeRev is Range in descending key order.
func (m *Memory) RangeRev(r key.EncodedKeyRange, version key.CommitVersion) ([]key.Row, error) {
	rows, err := m.rangeMerged(r, version)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return rows, nil
}

// Prefix returns every live row whose key begins with p, visible to version.
func (m *Memory) Prefix(p key.EncodedKey, version key.CommitVersion) ([]key.Row, error) {
	return m.rangeMerged(key.Prefix(p), version)
}

func (m *Memory) rangeMerged(r key.EncodedKeyRange, version key.CommitVersion) ([]key.Row, error) {
	var lists [][]key.Row

	for _, s := range m.allShards() {
		s.mu.RLock()
		for _, gen := range s.generations {
			if gen.version > version {
				continue
			}
			rows := gen.data.Scan(r.Start, r.End)
			if len(rows) > 0 {
				lists = append(lists, rows)
			}
		}
		s.mu.RUnlock()
	}

	if len(lists) == 0 {
		return nil, nil
	}
	return kway.Merge(lists...), nil
}

var _ VersionedCommand = (*Memory)(nil)

// MemoryUnversioned is an in-memory UnversionedStorage: a single mutex-guarded
// map, with WithQuery/WithCommand providing the atomicity boundary a caller
// needs around a read-modify-write (a checkpoint bump, a catalog metadata
// update).
type MemoryUnversioned struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryUnversioned returns an empty unversioned store.
func NewMemoryUnversioned() *MemoryUnversioned {
	return &MemoryUnversioned{data: make(map[string][]byte)}
}

func (m *MemoryUnversioned) WithQuery(fn func(UnversionedQuery) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fn(&unversionedView{m: m})
}

func (m *MemoryUnversioned) WithCommand(fn func(UnversionedCommand) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(&unversionedView{m: m})
}

// unversionedView is handed to the caller's callback; it's only ever used
// while the owning Memory's lock is held, so it needs no lock of its own.
type unversionedView struct {
	m *MemoryUnversioned
}

func (v *unversionedView) Get(k key.EncodedKey) ([]byte, bool, error) {
	val, ok := v.m.data[k.String()]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(val))
	copy(out, val)
	return out, true, nil
}

func (v *unversionedView) Range(r key.EncodedKeyRange) ([]key.Row, error) {
	var out []key.Row
	for ks, val := range v.m.data {
		k := key.FromString(ks)
		if r.Contains(k) {
			out = append(out, key.Row{Key: k.Clone(), Value: val})
		}
	}
	slices.SortFunc(out, func(a, b key.Row) int {
		return cmp.Compare(a.Key.String(), b.Key.String())
	})
	return out, nil
}

func (v *unversionedView) Set(k key.EncodedKey, val []byte) error {
	if len(k) == 0 {
		return errors.New("empty key")
	}
	stored := make([]byte, len(val))
	copy(stored, val)
	v.m.data[k.String()] = stored
	return nil
}

func (v *unversionedView) Delete(k key.EncodedKey) error {
	delete(v.m.data, k.String())
	return nil
}

var _ UnversionedStorage = (*MemoryUnversioned)(nil)
