// Copyright 2025 BINARY Members
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

package watermark

import "sync"

// Closer coordinates shutdown of a group of WaterMarks (and any other
// stoppable background actor) so each is stopped exactly once regardless of
// how many call sites race to tear the owner down.
type Closer struct {
	mu      sync.Mutex
	stopped bool
	marks   []*WaterMark
	extra   []func()
}

// NewCloser builds a Closer owning the given WaterMarks.
func NewCloser(marks ...*WaterMark) *Closer {
	return &Closer{marks: marks}
}

// Add registers an additional WaterMark to be stopped by Close.
func (c *Closer) Add(w *WaterMark) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		w.Stop()
		return
	}
	c.marks = append(c.marks, w)
}

// AddFunc registers an arbitrary shutdown hook to run once, after every
// WaterMark has stopped.
func (c *Closer) AddFunc(f func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		f()
		return
	}
	c.extra = append(c.extra, f)
}

// Close stops every owned WaterMark and runs every registered hook. Safe to
// call more than once; only the first call does any work.
func (c *Closer) Close() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	marks := c.marks
	extra := c.extra
	c.marks = nil
	c.extra = nil
	c.mu.Unlock()

	for _, w := range marks {
		w.Stop()
	}
	for _, f := range extra {
		f()
	}
}
