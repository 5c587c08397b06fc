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

package oracle

import (
	"sync/atomic"

	"github.com/reifydb/reifydb-sub004/key"
)

// VersionProvider hands out the next commit version. The Oracle always calls
// Next while holding its versionLock, so a provider doesn't need its own
// locking for ordering guarantees — only for concurrent-read safety.
type VersionProvider interface {
	// Next returns a version strictly greater than every version it has
	// returned before.
	Next() key.CommitVersion
	// Current returns the last version handed out, or key.NoVersion if
	// none has been yet.
	Current() key.CommitVersion
}

// AtomicVersionProvider is a lock-free VersionProvider backed by a single
// atomic counter.
type AtomicVersionProvider struct {
	counter atomic.Uint64
}

// NewAtomicVersionProvider returns a provider whose first Next() call
// returns start+1.
func NewAtomicVersionProvider(start key.CommitVersion) *AtomicVersionProvider {
	p := &AtomicVersionProvider{}
	p.counter.Store(uint64(start))
	return p
}

func (p *AtomicVersionProvider) Next() key.CommitVersion {
	return key.CommitVersion(p.counter.Add(1))
}

func (p *AtomicVersionProvider) Current() key.CommitVersion {
	return key.CommitVersion(p.counter.Load())
}
