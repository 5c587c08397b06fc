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
	"time"

	"github.com/reifydb/reifydb-sub004/key"
)

// Tracker records, per source key, the last CDC version the coordinator has
// routed a change from — used to report how far behind a flow's sources the
// flow itself has fallen. It also records the duration of the most recently
// completed Consume round, timed with the coordinator's injectable clock so
// tests can fake time. Owned by the coordinator goroutine; no locking.
type Tracker struct {
	last             map[string]key.CommitVersion
	lastRoundLatency time.Duration
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{last: make(map[string]key.CommitVersion)}
}

// RecordRoundLatency stores how long the most recently completed Consume
// round took end to end, from mailbox receipt to finalize commit.
func (t *Tracker) RecordRoundLatency(d time.Duration) {
	t.lastRoundLatency = d
}

// LastRoundLatency returns the duration of the most recently completed
// Consume round, or zero if none has completed yet.
func (t *Tracker) LastRoundLatency() time.Duration {
	return t.lastRoundLatency
}

// Update records that source has been observed at version v, if v is newer
// than what was previously recorded.
func (t *Tracker) Update(source key.EncodedKey, v key.CommitVersion) {
	ks := source.String()
	if prev, ok := t.last[ks]; !ok || v > prev {
		t.last[ks] = v
	}
}

// Lag returns how far behind current the most recently observed version of
// source is. Zero if source has never been observed or is already current.
func (t *Tracker) Lag(source key.EncodedKey, current key.CommitVersion) key.CommitVersion {
	prev, ok := t.last[source.String()]
	if !ok || current <= prev {
		return 0
	}
	return current - prev
}
