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

package cdc

import (
	"bytes"
	"encoding/gob"
	"sort"
	"sync"

	"github.com/juju/errors"

	"github.com/reifydb/reifydb-sub004/key"
	"github.com/reifydb/reifydb-sub004/pkg/bufferpool"
	"github.com/reifydb/reifydb-sub004/pkg/utils"
)

// storedBatch is one CdcBatch after gob-encoding and s2 compression, kept
// around only as compressed bytes: a MemoryStream can otherwise grow without
// bound across a long-running test or backfill rehearsal.
type storedBatch struct {
	version    key.CommitVersion
	compressed []byte
}

// MemoryStream is an in-memory, append-only Stream. Batches are encoded with
// encoding/gob and compressed with s2 before being retained, reusing
// pkg/bufferpool buffers for the encode scratch space.
type MemoryStream struct {
	mu      sync.RWMutex
	batches []storedBatch
}

// NewMemoryStream returns an empty stream.
func NewMemoryStream() *MemoryStream {
	return &MemoryStream{}
}

// Emit encodes and compresses batch and appends it. Emit must be called in
// increasing version order — the single-writer commit path is the only
// caller, so this is never contended.
func (s *MemoryStream) Emit(batch CdcBatch) error {
	raw := bufferpool.Pool.Get()
	defer bufferpool.Pool.Put(raw)

	enc := gob.NewEncoder(raw)
	if err := enc.Encode(batch); err != nil {
		return errors.Annotate(err, "cdc: encode batch")
	}

	compressed := bufferpool.Pool.Get()
	defer bufferpool.Pool.Put(compressed)

	if err := utils.Compress(raw, compressed); err != nil {
		return errors.Annotate(err, "cdc: compress batch")
	}

	stored := make([]byte, compressed.Len())
	copy(stored, compressed.Bytes())

	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, storedBatch{version: batch.Version, compressed: stored})
	return nil
}

// ReadRange decodes and returns every batch with fromExclusive < version <=
// toInclusive, oldest first, capped at limit entries (0 means unlimited).
func (s *MemoryStream) ReadRange(fromExclusive, toInclusive key.CommitVersion, limit int) ([]CdcBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := sort.Search(len(s.batches), func(i int) bool {
		return s.batches[i].version > fromExclusive
	})

	var out []CdcBatch
	for i := start; i < len(s.batches); i++ {
		b := s.batches[i]
		if b.version > toInclusive {
			break
		}

		decompressed := bufferpool.Pool.Get()
		if err := utils.Decompress(bytes.NewReader(b.compressed), decompressed); err != nil {
			bufferpool.Pool.Put(decompressed)
			return nil, errors.Annotate(err, "cdc: decompress batch")
		}

		var batch CdcBatch
		dec := gob.NewDecoder(decompressed)
		decErr := dec.Decode(&batch)
		bufferpool.Pool.Put(decompressed)
		if decErr != nil {
			return nil, errors.Annotate(decErr, "cdc: decode batch")
		}

		out = append(out, batch)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

var _ Stream = (*MemoryStream)(nil)
