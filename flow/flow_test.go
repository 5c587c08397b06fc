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

	"github.com/reifydb/reifydb-sub004/key"
)

func TestFlowStatesRegisterActive(t *testing.T) {
	s := NewFlowStates()
	s.RegisterActive(1, 5000)

	st, ok := s.Get(1)
	assert.True(t, ok)
	assert.Equal(t, StatusActive, st.Status)
	assert.Equal(t, key.CommitVersion(5000), st.Checkpoint)
}

func TestFlowStatesRegisterBackfillingThenActivate(t *testing.T) {
	s := NewFlowStates()
	s.RegisterBackfilling(2)

	st, ok := s.Get(2)
	assert.True(t, ok)
	assert.Equal(t, StatusBackfilling, st.Status)
	assert.Equal(t, key.NoVersion, st.Checkpoint)

	s.UpdateCheckpoint(2, 1000)
	s.Activate(2)

	st, ok = s.Get(2)
	assert.True(t, ok)
	assert.Equal(t, StatusActive, st.Status)
	assert.Equal(t, key.CommitVersion(1000), st.Checkpoint)
}

func TestFlowStatesIDListsAreSortedAndPartitioned(t *testing.T) {
	s := NewFlowStates()
	s.RegisterActive(3, 10)
	s.RegisterActive(1, 10)
	s.RegisterBackfilling(2)
	s.RegisterBackfilling(5)

	assert.Equal(t, []key.FlowID{1, 3}, s.ActiveFlowIDs())
	assert.Equal(t, []key.FlowID{2, 5}, s.BackfillingFlowIDs())
}

func TestFlowDefIsSubscription(t *testing.T) {
	sub := FlowDef{ID: 1, Kind: KindSubscription}
	derived := FlowDef{ID: 2, Kind: KindDerived}

	assert.True(t, sub.IsSubscription())
	assert.False(t, derived.IsSubscription())
}
