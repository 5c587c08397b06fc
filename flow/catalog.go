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
	"sync"

	"github.com/juju/errors"

	"github.com/reifydb/reifydb-sub004/key"
)

// Catalog resolves a flow ID into its FlowDef the first time the
// coordinator sees it referenced by a CDC system change, and forgets it
// again once dropped. The coordinator treats lookups as possibly expensive
// (the real implementation reads the schema catalog via a transaction) so
// Catalog is an interface the coordinator depends on rather than owns.
type Catalog interface {
	// GetOrLoadFlow returns id's definition, loading and caching it on
	// first reference. isNew reports whether this call performed the
	// load (the coordinator uses this to decide whether to register a
	// fresh backfill or subscription state).
	GetOrLoadFlow(id key.FlowID) (def FlowDef, isNew bool, err error)

	// Remove forgets id, e.g. once its sink view has been dropped.
	Remove(id key.FlowID)
}

// MapCatalog is a Catalog backed by an explicit registry of definitions,
// populated ahead of time via Register or Preload. It never performs I/O;
// GetOrLoadFlow fails with ErrFlowNotFound for anything not pre-registered.
// Suitable both as a test double and as the catalog-less deployment mode
// where flow definitions are supplied out of band.
type MapCatalog struct {
	mu    sync.Mutex
	defs  map[key.FlowID]FlowDef
	known map[key.FlowID]struct{}
}

// NewMapCatalog returns an empty MapCatalog.
func NewMapCatalog() *MapCatalog {
	return &MapCatalog{
		defs:  make(map[key.FlowID]FlowDef),
		known: make(map[key.FlowID]struct{}),
	}
}

// Register makes def resolvable by GetOrLoadFlow.
func (c *MapCatalog) Register(def FlowDef) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.defs[def.ID] = def
}

// Preload registers every def in defs in one call.
func (c *MapCatalog) Preload(defs []FlowDef) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, def := range defs {
		c.defs[def.ID] = def
	}
}

func (c *MapCatalog) GetOrLoadFlow(id key.FlowID) (FlowDef, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	def, ok := c.defs[id]
	if !ok {
		return FlowDef{}, false, errors.Annotatef(ErrFlowNotFound, "flow %d", id)
	}
	_, seen := c.known[id]
	c.known[id] = struct{}{}
	return def, !seen, nil
}

func (c *MapCatalog) Remove(id key.FlowID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.defs, id)
	delete(c.known, id)
}
