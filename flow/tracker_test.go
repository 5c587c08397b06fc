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
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/reifydb/reifydb-sub004/key"
)

func TestTrackerUpdateIsMonotone(t *testing.T) {
	tr := NewTracker()
	src := tableKey("orders")

	tr.Update(src, 5)
	tr.Update(src, 3) // stale observation must not regress
	assert.Equal(t, key.CommitVersion(5), tr.Lag(src, 10))

	tr.Update(src, 8)
	assert.Equal(t, key.CommitVersion(2), tr.Lag(src, 10))
}

func TestTrackerLagOfUnknownSourceIsZero(t *testing.T) {
	tr := NewTracker()
	assert.Equal(t, key.NoVersion, tr.Lag(tableKey("never-seen"), 100))
}

func TestTrackerLagNeverNegative(t *testing.T) {
	tr := NewTracker()
	src := tableKey("t")
	tr.Update(src, 9)
	assert.Equal(t, key.NoVersion, tr.Lag(src, 9))
	assert.Equal(t, key.NoVersion, tr.Lag(src, 5))
}

func TestTrackerRoundLatency(t *testing.T) {
	tr := NewTracker()
	assert.Zero(t, tr.LastRoundLatency())
	tr.RecordRoundLatency(42 * time.Millisecond)
	assert.Equal(t, 42*time.Millisecond, tr.LastRoundLatency())
}
