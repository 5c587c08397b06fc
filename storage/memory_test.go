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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reifydb/reifydb-sub004/key"
)

func TestMemoryGetVisibleAtOrBeforeVersion(t *testing.T) {
	m := NewMemory()

	require.NoError(t, m.Apply([]key.Row{{Key: key.FromString("a"), Value: []byte("v1")}}, 1))
	require.NoError(t, m.Apply([]key.Row{{Key: key.FromString("a"), Value: []byte("v2")}}, 2))

	row, ok, err := m.Get(key.FromString("a"), 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), row.Value)

	row, ok, err = m.Get(key.FromString("a"), 2)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v2"), row.Value)

	_, ok, err = m.Get(key.FromString("a"), 0)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryTombstoneHidesOlderValue(t *testing.T) {
	m := NewMemory()

	require.NoError(t, m.Apply([]key.Row{{Key: key.FromString("a"), Value: []byte("v1")}}, 1))
	require.NoError(t, m.Apply([]key.Row{{Key: key.FromString("a"), Tombstone: true}}, 2))

	_, ok, err := m.Get(key.FromString("a"), 2)
	require.NoError(t, err)
	assert.False(t, ok)

	row, ok, err := m.Get(key.FromString("a"), 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), row.Value)
}

func TestMemoryRangeMergesShardsAndGenerations(t *testing.T) {
	m := NewMemory()

	require.NoError(t, m.Apply([]key.Row{
		{Key: key.FromString("a"), Value: []byte("1")},
		{Key: key.FromString("c"), Value: []byte("3")},
	}, 1))
	require.NoError(t, m.Apply([]key.Row{
		{Key: key.FromString("b"), Value: []byte("2")},
	}, 2))

	rows, err := m.Range(key.Range(key.FromString("a"), key.FromString("z")), 2)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "a", rows[0].Key.String())
	assert.Equal(t, "b", rows[1].Key.String())
	assert.Equal(t, "c", rows[2].Key.String())
}

func TestMemoryRangeRevReversesOrder(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Apply([]key.Row{
		{Key: key.FromString("a"), Value: []byte("1")},
		{Key: key.FromString("b"), Value: []byte("2")},
	}, 1))

	rows, err := m.RangeRev(key.Range(key.FromString("a"), key.FromString("z")), 1)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "b", rows[0].Key.String())
	assert.Equal(t, "a", rows[1].Key.String())
}

func TestMemoryPrefix(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Apply([]key.Row{
		{Key: key.FromString("row-1"), Value: []byte("1")},
		{Key: key.FromString("row-2"), Value: []byte("2")},
		{Key: key.FromString("other"), Value: []byte("3")},
	}, 1))

	rows, err := m.Prefix(key.FromString("row-"), 1)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestMemoryUnversionedWithCommandIsAtomic(t *testing.T) {
	m := NewMemoryUnversioned()

	err := m.WithCommand(func(cmd UnversionedCommand) error {
		return cmd.Set(key.FromString("checkpoint"), []byte{1})
	})
	require.NoError(t, err)

	err = m.WithQuery(func(q UnversionedQuery) error {
		val, ok, err := q.Get(key.FromString("checkpoint"))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, []byte{1}, val)
		return nil
	})
	require.NoError(t, err)
}

func TestMemoryUnversionedDelete(t *testing.T) {
	m := NewMemoryUnversioned()
	require.NoError(t, m.WithCommand(func(cmd UnversionedCommand) error {
		return cmd.Set(key.FromString("x"), []byte{1})
	}))
	require.NoError(t, m.WithCommand(func(cmd UnversionedCommand) error {
		return cmd.Delete(key.FromString("x"))
	}))

	err := m.WithQuery(func(q UnversionedQuery) error {
		_, ok, err := q.Get(key.FromString("x"))
		require.NoError(t, err)
		assert.False(t, ok)
		return nil
	})
	require.NoError(t, err)
}
