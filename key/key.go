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

// Package key defines the opaque, lexicographically ordered byte keys shared
// by every versioned and unversioned store in the concurrency core.
package key

import "bytes"

// Kind tags the first byte of an EncodedKey, letting callers route a key to
// the right prefix scan without decoding the rest of it.
type Kind byte

const (
	KindRow Kind = iota + 1
	KindFlow
	KindSchema
	KindTable
	KindView
	KindCheckpoint
	KindConsumer
)

// EncodedKey is an opaque, ordered byte sequence. Two keys compare equal iff
// their bytes compare equal; ordering is lexicographic.
type EncodedKey []byte

// New tags key with kind as its leading byte.
func New(kind Kind, rest ...[]byte) EncodedKey {
	n := 1
	for _, r := range rest {
		n += len(r)
	}
	buf := make([]byte, 1, n)
	buf[0] = byte(kind)
	for _, r := range rest {
		buf = append(buf, r...)
	}
	return buf
}

// Raw wraps an arbitrary byte slice as a key without a kind prefix. Used by
// callers (tests, simple key-value workloads) that don't need kind routing.
func Raw(b []byte) EncodedKey { return EncodedKey(b) }

// FromString is a convenience constructor for string-valued keys.
func FromString(s string) EncodedKey { return EncodedKey(s) }

// Kind returns the key's leading byte as a Kind. Returns (0, false) for an
// empty key.
func (k EncodedKey) Kind() (Kind, bool) {
	if len(k) == 0 {
		return 0, false
	}
	return Kind(k[0]), true
}

// String renders the key for logs and map keys. Raw bytes, not re-encoded.
func (k EncodedKey) String() string { return string(k) }

// Compare returns -1, 0, or 1 per bytes.Compare semantics.
func (k EncodedKey) Compare(other EncodedKey) int {
	return bytes.Compare(k, other)
}

// Equal reports whether two keys are byte-identical.
func (k EncodedKey) Equal(other EncodedKey) bool {
	return bytes.Equal(k, other)
}

// Clone returns an independent copy of the key's bytes.
func (k EncodedKey) Clone() EncodedKey {
	if k == nil {
		return nil
	}
	out := make(EncodedKey, len(k))
	copy(out, k)
	return out
}

// EncodedKeyRange is a half-open interval [Start, End) over the key space.
// A nil End means "unbounded above".
type EncodedKeyRange struct {
	Start EncodedKey
	End   EncodedKey
}

// RangeFrom builds a range starting at start with no upper bound.
func RangeFrom(start EncodedKey) EncodedKeyRange {
	return EncodedKeyRange{Start: start}
}

// Range builds the half-open range [start, end).
func Range(start, end EncodedKey) EncodedKeyRange {
	return EncodedKeyRange{Start: start, End: end}
}

// Prefix builds the range covering every key beginning with p.
func Prefix(p EncodedKey) EncodedKeyRange {
	return EncodedKeyRange{Start: p, End: prefixUpperBound(p)}
}

func prefixUpperBound(p EncodedKey) EncodedKey {
	if len(p) == 0 {
		return nil
	}
	end := make(EncodedKey, len(p))
	copy(end, p)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] != 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	// All bytes were 0xff: the range is unbounded above.
	return nil
}

// Contains reports whether k falls inside the half-open range.
func (r EncodedKeyRange) Contains(k EncodedKey) bool {
	if k.Compare(r.Start) < 0 {
		return false
	}
	if r.End == nil {
		return true
	}
	return k.Compare(r.End) < 0
}

// String renders the range for logs.
func (r EncodedKeyRange) String() string {
	if r.End == nil {
		return "[" + r.Start.String() + ", +inf)"
	}
	return "[" + r.Start.String() + ", " + r.End.String() + ")"
}
