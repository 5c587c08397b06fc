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

package reifydb

import (
	"github.com/reifydb/reifydb-sub004/cdc"
	"github.com/reifydb/reifydb-sub004/flow"
)

// flowEngine adapts *Engine to flow.Engine. *Txn already implements
// flow.Txn directly (Get/Set/Remove/TrackViewChange match by signature);
// only View/Update need adapting, since Engine's versions take a
// func(*Txn) error rather than the interface-typed func(flow.Txn) error
// the flow package depends on.
type flowEngine struct {
	engine *Engine
}

// FlowEngine exposes e as a flow.Engine, for constructing a
// flow.Coordinator against this database.
func (e *Engine) FlowEngine() flow.Engine {
	return flowEngine{engine: e}
}

func (f flowEngine) View(fn func(flow.Txn) error) error {
	return f.engine.View(func(t *Txn) error { return fn(t) })
}

func (f flowEngine) Update(fn func(flow.Txn) error) error {
	return f.engine.Update(func(t *Txn) error { return fn(t) })
}

func (f flowEngine) CDC() cdc.Stream {
	return f.engine.CDC()
}
