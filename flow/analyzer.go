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
	"github.com/reifydb/reifydb-sub004/cdc"
	"github.com/reifydb/reifydb-sub004/key"
)

// Analyzer is the flow source/sink dependency graph: which flows depend on
// which primitive or view sources, and which flow produces which view.
// Maintained incrementally as flows register (Add) or are dropped (Remove);
// lookups (FilterForFlow) are on the hot path of every Consume round, so the
// graph is kept as simple indexed maps rather than a precomputed transitive
// closure — a closure would need invalidating on every Add/Remove.
type Analyzer struct {
	sourcesOf      map[key.FlowID][]key.EncodedKey
	sinkOf         map[key.FlowID]key.EncodedKey
	producerOfView map[string]key.FlowID
	known          map[key.FlowID]struct{}
}

// NewAnalyzer returns an empty graph.
func NewAnalyzer() *Analyzer {
	return &Analyzer{
		sourcesOf:      make(map[key.FlowID][]key.EncodedKey),
		sinkOf:         make(map[key.FlowID]key.EncodedKey),
		producerOfView: make(map[string]key.FlowID),
		known:          make(map[key.FlowID]struct{}),
	}
}

// Add registers (or re-registers) def's sources and sink in the graph.
func (a *Analyzer) Add(def FlowDef) {
	if old, ok := a.sinkOf[def.ID]; ok {
		delete(a.producerOfView, old.String())
	}
	a.known[def.ID] = struct{}{}
	a.sourcesOf[def.ID] = def.Sources
	if def.SinkView != nil {
		a.sinkOf[def.ID] = def.SinkView
		a.producerOfView[def.SinkView.String()] = def.ID
	}
}

// Has reports whether id has been added to the graph.
func (a *Analyzer) Has(id key.FlowID) bool {
	_, ok := a.known[id]
	return ok
}

// Remove drops id from the graph entirely.
func (a *Analyzer) Remove(id key.FlowID) {
	if v, ok := a.sinkOf[id]; ok {
		delete(a.producerOfView, v.String())
		delete(a.sinkOf, id)
	}
	delete(a.sourcesOf, id)
	delete(a.known, id)
}

// FilterForFlow returns the subset of changes relevant to id: every
// system-origin change (catalog mutations are always relevant — they may be
// new-flow registrations other flows need to see) plus every
// primitive-origin change whose source lies in id's transitive source
// closure.
func (a *Analyzer) FilterForFlow(id key.FlowID, changes []cdc.Change) []cdc.Change {
	sources := a.transitiveSources(id)

	out := make([]cdc.Change, 0, len(changes))
	for _, ch := range changes {
		if ch.Origin.Kind != cdc.OriginPrimitive {
			out = append(out, ch)
			continue
		}
		if _, ok := sources[ch.Origin.Source.String()]; ok {
			out = append(out, ch)
		}
	}
	return out
}

// transitiveSources resolves id's declared sources plus, for any declared
// source that is itself a view produced by another registered flow, that
// producer flow's own sources — one extra hop, matching the "view sources
// resolve through their producer flow" rule in the coordinator's filtering
// design note. No further hops are taken; chained transactional views are
// not expected at this depth.
func (a *Analyzer) transitiveSources(id key.FlowID) map[string]struct{} {
	declared := a.sourcesOf[id]
	set := make(map[string]struct{}, len(declared))
	for _, src := range declared {
		set[src.String()] = struct{}{}
	}
	for _, src := range declared {
		producer, ok := a.producerOfView[src.String()]
		if !ok {
			continue
		}
		for _, s2 := range a.sourcesOf[producer] {
			set[s2.String()] = struct{}{}
		}
	}
	return set
}
