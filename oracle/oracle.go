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

// Package oracle implements the MVCC commit oracle: serializable snapshot
// isolation via a sliding window of recently committed transactions, gated
// by a per-window bloom filter so the common case (no overlap) costs a
// handful of hash lookups instead of a full scan.
package oracle

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/juju/errors"

	"github.com/reifydb/reifydb-sub004/key"
	"github.com/reifydb/reifydb-sub004/pkg/filter"
	"github.com/reifydb/reifydb-sub004/pkg/watermark"
)

// committedTransaction is one transaction's conflict footprint, kept around
// only as long as its window survives.
type committedTransaction struct {
	version   key.CommitVersion
	conflicts *ConflictManager
}

// committedWindow groups every transaction committed within one window of
// commit versions. The bloom filter lets checkWindows skip a window in O(k)
// hash probes instead of walking every transaction in it.
type committedWindow struct {
	mu           sync.RWMutex
	transactions []committedTransaction
	modifiedKeys map[string]struct{}
	bloom        *filter.Filter
	maxVersion   key.CommitVersion
}

func newCommittedWindow(expectedSize int) *committedWindow {
	return &committedWindow{
		modifiedKeys: make(map[string]struct{}),
		bloom:        filter.New(expectedSize, 0.01),
	}
}

func (w *committedWindow) addTransaction(version key.CommitVersion, c *ConflictManager) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.transactions = append(w.transactions, committedTransaction{version: version, conflicts: c})
	for _, k := range c.WriteKeys() {
		w.modifiedKeys[k.String()] = struct{}{}
		w.bloom.Add(k)
	}
	if version > w.maxVersion {
		w.maxVersion = version
	}
}

func (w *committedWindow) mightHaveKey(k key.EncodedKey) bool {
	return w.bloom.Contains(k)
}

// fallbackWindowCount is how many of the most recent windows
// selectCandidateWindows falls back to when a transaction recorded no reads, writes, or ranges at
// all but still needs a conservative check (e.g. a transaction that issued
// only non-key-bearing statements).
const fallbackWindowCount = 5

// Oracle assigns commit versions and rejects commits that would violate
// serializable snapshot isolation. One Oracle per database.
type Oracle struct {
	mu           sync.RWMutex
	windows      map[key.CommitVersion]*committedWindow
	windowOrder  []key.CommitVersion // ascending window-start order
	keyToWindows map[string][]key.CommitVersion

	versionLock sync.Mutex
	versions    VersionProvider

	query   *watermark.WaterMark
	command *watermark.WaterMark
	closer  *watermark.Closer

	windowSize       key.CommitVersion
	maxWindows       int
	cleanupThreshold int

	closed atomic.Bool
}

// New constructs an Oracle. windowSize, maxWindows, and cleanupThreshold
// should come from Config; versions is typically a fresh
// AtomicVersionProvider seeded with the storage tier's last persisted
// version.
func New(windowSize key.CommitVersion, maxWindows, cleanupThreshold int, versions VersionProvider) *Oracle {
	query := watermark.New()
	command := watermark.New()
	o := &Oracle{
		windows:          make(map[key.CommitVersion]*committedWindow),
		keyToWindows:     make(map[string][]key.CommitVersion),
		versions:         versions,
		query:            query,
		command:          command,
		closer:           watermark.NewCloser(query, command),
		windowSize:       windowSize,
		maxWindows:       maxWindows,
		cleanupThreshold: cleanupThreshold,
	}
	return o
}

// Close stops the Oracle's watermarks. Safe to call more than once.
func (o *Oracle) Close() {
	if o.closed.CompareAndSwap(false, true) {
		o.closer.Close()
	}
}

// BeginRead starts a new snapshot read at the current version and returns
// it. The caller must eventually call DoneRead with the same version, or
// call Commit (which signals read-done internally as part of the commit
// protocol).
func (o *Oracle) BeginRead() key.CommitVersion {
	ts := o.versions.Current()
	o.query.Begin(uint64(ts))
	return ts
}

// DoneRead signals that a read-only transaction at ts is finished. Do not
// call this for a transaction that went on to Commit — Commit signals its
// own read-done as step 3 of the commit protocol.
func (o *Oracle) DoneRead(ts key.CommitVersion) {
	o.query.Done(uint64(ts))
}

// ReadWatermark exposes the query watermark's DoneUntil, the highest version
// below which every read has completed.
func (o *Oracle) ReadWatermark() key.CommitVersion {
	return key.CommitVersion(o.query.DoneUntil())
}

// CommitWatermark exposes the command watermark's DoneUntil, the highest
// version below which every commit has been recorded in its window. The
// caller applies a commit's writes to storage after Commit returns, so this
// watermark does not cover the storage write.
func (o *Oracle) CommitWatermark() key.CommitVersion {
	return key.CommitVersion(o.command.DoneUntil())
}

// Commit runs the seven-step commit protocol: select candidate windows,
// check them for conflicts, signal the transaction's own read as done,
// allocate a commit version, record the transaction into its window,
// opportunistically garbage-collect old windows, and finally signal the new
// commit as done. Returns ErrConflict if any candidate window holds a
// transaction that conflicts with readVersion's reads, writes, or ranges.
func (o *Oracle) Commit(readVersion key.CommitVersion, conflicts *ConflictManager) (key.CommitVersion, error) {
	if o.closed.Load() {
		return key.NoVersion, errors.Trace(ErrOracleClosed)
	}

	// Step 1: select candidate windows.
	candidates := o.selectCandidateWindows(readVersion, conflicts)

	// Step 2: check windows for conflicts.
	if err := o.checkWindows(candidates, readVersion, conflicts); err != nil {
		return key.NoVersion, err
	}

	// Step 3: signal this transaction's own read as done. Only after
	// this point may other transactions' window-cleanup treat
	// readVersion as fully retired.
	o.query.Done(uint64(readVersion))

	// Step 4: allocate a commit version, serialized against every other
	// concurrent committer.
	o.versionLock.Lock()
	version := o.versions.Next()
	o.versionLock.Unlock()

	// Step 5: record the commit into its window.
	o.addCommittedTransaction(version, conflicts)

	// Step 6: opportunistically evict old windows once the live window
	// count crosses cleanupThreshold.
	o.mu.RLock()
	windowCount := len(o.windowOrder)
	o.mu.RUnlock()
	if windowCount > o.cleanupThreshold {
		o.cleanupOldWindows()
	}

	// Step 7: signal the new commit as done.
	o.command.Done(uint64(version))

	return version, nil
}

func (o *Oracle) selectCandidateWindows(readVersion key.CommitVersion, conflicts *ConflictManager) []key.CommitVersion {
	o.mu.RLock()
	defer o.mu.RUnlock()

	keys := conflicts.WriteKeys()
	keys = append(keys, conflicts.ReadKeys()...)

	seen := make(map[key.CommitVersion]struct{})
	for _, k := range keys {
		for _, ws := range o.keyToWindows[k.String()] {
			seen[ws] = struct{}{}
		}
	}
	if len(seen) > 0 {
		out := make([]key.CommitVersion, 0, len(seen))
		for ws := range seen {
			out = append(out, ws)
		}
		return out
	}

	// The key index found nothing. Ranges cannot be indexed by key, so a
	// transaction with range reads must fall back to every live window.
	if conflicts.HasRangeOp() {
		out := make([]key.CommitVersion, len(o.windowOrder))
		copy(out, o.windowOrder)
		return out
	}

	// Keys were recorded but none appear in any window: nothing committed
	// recently touched them, so the transaction conflicts with nothing.
	if len(keys) > 0 {
		return nil
	}

	// No keys and no range op recorded at all: conservatively fall back
	// to the most recent windows that could still contain versions at
	// or after readVersion.
	var out []key.CommitVersion
	for i := len(o.windowOrder) - 1; i >= 0 && len(out) < fallbackWindowCount; i-- {
		ws := o.windowOrder[i]
		if w, ok := o.windows[ws]; ok && w.maxVersion >= readVersion {
			out = append(out, ws)
		}
	}
	return out
}

func (o *Oracle) checkWindows(candidates []key.CommitVersion, readVersion key.CommitVersion, conflicts *ConflictManager) error {
	o.mu.RLock()
	windows := make([]*committedWindow, 0, len(candidates))
	for _, ws := range candidates {
		if w, ok := o.windows[ws]; ok {
			windows = append(windows, w)
		}
	}
	o.mu.RUnlock()

	gateKeys := conflicts.WriteKeys()
	gateKeys = append(gateKeys, conflicts.ReadKeys()...)

	for _, w := range windows {
		w.mu.RLock()
		if w.maxVersion <= readVersion {
			w.mu.RUnlock()
			continue
		}

		// The bloom filter only gates explicit-key probes. A range read
		// can conflict with a write the filter knows nothing about, so
		// range transactions scan the window unconditionally.
		if len(gateKeys) > 0 && !conflicts.HasRangeOp() {
			maybeHit := false
			for _, k := range gateKeys {
				if w.mightHaveKey(k) {
					maybeHit = true
					break
				}
			}
			if !maybeHit {
				w.mu.RUnlock()
				continue
			}
		}

		for _, txn := range w.transactions {
			if txn.version <= readVersion {
				continue
			}
			if conflicts.HasConflict(txn.conflicts) {
				w.mu.RUnlock()
				return errors.Trace(ErrConflict)
			}
		}
		w.mu.RUnlock()
	}

	return nil
}

func (o *Oracle) addCommittedTransaction(version key.CommitVersion, conflicts *ConflictManager) {
	ws := version.WindowStart(uint64(o.windowSize))

	o.mu.Lock()
	defer o.mu.Unlock()

	w, ok := o.windows[ws]
	if !ok {
		w = newCommittedWindow(int(o.windowSize))
		o.windows[ws] = w
		o.windowOrder = insertSorted(o.windowOrder, ws)
	}

	for _, k := range conflicts.WriteKeys() {
		ks := k.String()
		already := false
		for _, existing := range o.keyToWindows[ks] {
			if existing == ws {
				already = true
				break
			}
		}
		if !already {
			o.keyToWindows[ks] = append(o.keyToWindows[ks], ws)
		}
	}

	w.addTransaction(version, conflicts)
}

// cleanupOldWindows evicts the oldest windows until at most maxWindows
// remain, synchronous and inline with Commit rather than backgrounded.
// Each evicted window's start is removed from every keyToWindows entry it
// touched, dropping entries that become empty, so the index never outgrows
// the live window set.
func (o *Oracle) cleanupOldWindows() {
	o.mu.Lock()
	defer o.mu.Unlock()

	for len(o.windowOrder) > o.maxWindows {
		evict := o.windowOrder[0]
		if w, ok := o.windows[evict]; ok {
			for ks := range w.modifiedKeys {
				starts := o.keyToWindows[ks]
				for i, s := range starts {
					if s == evict {
						o.keyToWindows[ks] = append(starts[:i], starts[i+1:]...)
						break
					}
				}
				if len(o.keyToWindows[ks]) == 0 {
					delete(o.keyToWindows, ks)
				}
			}
		}
		delete(o.windows, evict)
		o.windowOrder = o.windowOrder[1:]
	}
}

func insertSorted(order []key.CommitVersion, ws key.CommitVersion) []key.CommitVersion {
	i := sort.Search(len(order), func(i int) bool { return order[i] >= ws })
	if i < len(order) && order[i] == ws {
		return order
	}
	order = append(order, 0)
	copy(order[i+1:], order[i:])
	order[i] = ws
	return order
}
