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

// FlowInstruction tells one worker to advance one flow to toVersion using
// changes, already filtered down to that flow's source closure.
type FlowInstruction struct {
	FlowID    key.FlowID
	ToVersion key.CommitVersion
	Changes   []cdc.Change
}

// WorkerBatch groups every instruction routed to a single worker in one
// Consume (or backfill) round, tagged with the query snapshot the
// instructions were filtered against.
type WorkerBatch struct {
	StateVersion key.CommitVersion
	Instructions []FlowInstruction
}

// NewWorkerBatch returns an empty batch tagged with stateVersion.
func NewWorkerBatch(stateVersion key.CommitVersion) WorkerBatch {
	return WorkerBatch{StateVersion: stateVersion}
}

// AddInstruction appends instr to the batch.
func (b *WorkerBatch) AddInstruction(instr FlowInstruction) {
	b.Instructions = append(b.Instructions, instr)
}
