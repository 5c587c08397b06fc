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

// Executor runs one FlowInstruction and returns the writes it produces.
// The actual dataflow graph evaluation (operators, joins, aggregation) is
// out of scope for this package; Executor is the seam a real evaluator
// plugs into. Implementations must be safe to call concurrently across
// different flow IDs but are only ever called once at a time per flow ID
// (each worker processes its own flows serially).
type Executor interface {
	Execute(instr FlowInstruction) (*Pending, error)
}

// PassthroughExecutor is a reference Executor that writes each change's
// post-image verbatim under its own key (or removes it, for deletes),
// without evaluating any operator graph. It exists so the coordinator and
// pool can be exercised end to end without a real dataflow engine attached,
// the same role the in-memory storage backends play for the transaction
// engine.
type PassthroughExecutor struct{}

func (PassthroughExecutor) Execute(instr FlowInstruction) (*Pending, error) {
	p := NewPending()
	for _, ch := range instr.Changes {
		if ch.Post == nil {
			p.Remove(ch.Key)
			continue
		}
		p.Set(ch.Key, ch.Post)
	}
	return p, nil
}
