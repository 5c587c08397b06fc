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

	"github.com/reifydb/reifydb-sub004/cdc"
	"github.com/reifydb/reifydb-sub004/key"
)

func tableKey(name string) key.EncodedKey { return key.New(key.KindTable, []byte(name)) }
func viewKey(name string) key.EncodedKey  { return key.New(key.KindView, []byte(name)) }

func TestAnalyzerFilterDirectSource(t *testing.T) {
	a := NewAnalyzer()
	orders := tableKey("orders")
	a.Add(FlowDef{ID: 1, Sources: []key.EncodedKey{orders}})

	changes := []cdc.Change{
		{Origin: cdc.Origin{Kind: cdc.OriginPrimitive, Source: orders}, Key: orders},
		{Origin: cdc.Origin{Kind: cdc.OriginPrimitive, Source: tableKey("unrelated")}, Key: tableKey("unrelated")},
	}

	filtered := a.FilterForFlow(1, changes)
	assert.Len(t, filtered, 1)
	assert.True(t, filtered[0].Origin.Source.Equal(orders))
}

func TestAnalyzerFilterSystemChangesAlwaysPass(t *testing.T) {
	a := NewAnalyzer()
	a.Add(FlowDef{ID: 1, Sources: []key.EncodedKey{tableKey("orders")}})

	changes := []cdc.Change{
		{Origin: cdc.Origin{Kind: cdc.OriginSystem}, Key: key.New(key.KindFlow, []byte{0, 0, 0, 0, 0, 0, 0, 2})},
	}

	filtered := a.FilterForFlow(1, changes)
	assert.Len(t, filtered, 1)
}

func TestAnalyzerTransitiveThroughView(t *testing.T) {
	a := NewAnalyzer()
	orders := tableKey("orders")
	ordersView := viewKey("orders_view")

	// Flow 1 produces ordersView from orders.
	a.Add(FlowDef{ID: 1, Sources: []key.EncodedKey{orders}, SinkView: ordersView})
	// Flow 2 is transactional, sourcing ordersView.
	a.Add(FlowDef{ID: 2, Sources: []key.EncodedKey{ordersView}})

	changes := []cdc.Change{
		{Origin: cdc.Origin{Kind: cdc.OriginPrimitive, Source: orders}, Key: orders},
	}

	// Flow 2 doesn't declare `orders` directly, but resolves it one hop
	// through its producer flow 1.
	filtered := a.FilterForFlow(2, changes)
	assert.Len(t, filtered, 1)
}

func TestAnalyzerRemoveDropsFromGraph(t *testing.T) {
	a := NewAnalyzer()
	a.Add(FlowDef{ID: 1, Sources: []key.EncodedKey{tableKey("orders")}})
	assert.True(t, a.Has(1))

	a.Remove(1)
	assert.False(t, a.Has(1))
	assert.Empty(t, a.FilterForFlow(1, []cdc.Change{
		{Origin: cdc.Origin{Kind: cdc.OriginPrimitive, Source: tableKey("orders")}, Key: tableKey("orders")},
	}))
}
