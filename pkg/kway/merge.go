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

// Package kway merges multiple sorted, newest-list-last row lists into one
// sorted, deduplicated list, keeping the newest version per key and dropping
// tombstones from the final output. Used by the storage tier when a query
// has to reconcile rows across multiple shards or snapshot tiers.
package kway

import (
	"cmp"
	"container/heap"
	"slices"

	"github.com/reifydb/reifydb-sub004/key"
)

func Merge(lists ...[]key.Row) []key.Row {
	h := &Heap{}
	heap.Init(h)

	// push first element of each list
	for i, list := range lists {
		if len(list) > 0 {
			heap.Push(h, Element{
				Row: list[0],
				LI:  i,
			})
			lists[i] = list[1:]
		}
	}

	latest := make(map[string]key.Row)

	for h.Len() > 0 {
		// pop minimum element
		e := heap.Pop(h).(Element)
		latest[e.Key.String()] = e.Row
		// push next element
		if len(lists[e.LI]) > 0 {
			heap.Push(h, Element{
				Row: lists[e.LI][0],
				LI:  e.LI,
			})
			lists[e.LI] = lists[e.LI][1:]
		}
	}

	var merged []key.Row

	for _, row := range latest {
		if row.Tombstone {
			continue
		}
		merged = append(merged, row)
	}

	slices.SortFunc(merged, func(a, b key.Row) int {
		return cmp.Compare(a.Key.String(), b.Key.String())
	})

	return merged
}
