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

package filter

import (
	"hash"
	"math"

	"github.com/spaolacci/murmur3"

	"github.com/reifydb/reifydb-sub004/key"
)

const _defaultP = 0.01

// Filter is a fixed-size Bloom filter over key.EncodedKey. It never produces
// false negatives: Contains can return a false "maybe" but never a false
// "no".
type Filter struct {
	bitset  []bool
	hashFns []hash.Hash32
	m       int
}

// New creates a new Filter sized for n expected elements at false-positive
// rate p.
func New(n int, p float64) *Filter {
	if n <= 0 {
		n = 1
	}
	// size of bitset
	// m = -(n * ln(p)) / (ln(2)^2)
	m := int(math.Ceil(-float64(n) * math.Log(p) / math.Pow(math.Log(2), 2)))
	if m <= 0 {
		m = 1
	}
	// nums of hash functions used
	// k = (m/n) * ln(2)
	k := int(math.Round((float64(m) / float64(n)) * math.Log(2)))
	if k <= 0 {
		k = 1
	}

	hashFns := make([]hash.Hash32, k)
	for i := range k {
		hashFns[i] = murmur3.New32WithSeed(uint32(i))
	}

	return &Filter{
		bitset:  make([]bool, m),
		hashFns: hashFns,
		m:       m,
	}
}

// Build constructs a Filter sized for the default false-positive rate from a
// batch of keys.
func Build(keys []key.EncodedKey) *Filter {
	f := New(len(keys), _defaultP)
	for _, k := range keys {
		f.Add(k)
	}
	return f
}

// Add records k as present in the filter.
func (f *Filter) Add(k key.EncodedKey) {
	for _, fn := range f.hashFns {
		_, _ = fn.Write(k)
		index := int(fn.Sum32()) % f.m
		f.bitset[index] = true
		fn.Reset()
	}
}

// Contains reports whether k might be present. false is definitive; true is
// a "maybe" that the caller must confirm against the real key index.
func (f *Filter) Contains(k key.EncodedKey) bool {
	for _, fn := range f.hashFns {
		_, _ = fn.Write(k)
		index := int(fn.Sum32()) % f.m
		fn.Reset()
		if !f.bitset[index] {
			return false
		}
	}
	return true
}
