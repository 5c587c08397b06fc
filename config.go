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

package reifydb

import "github.com/reifydb/reifydb-sub004/key"

// Config holds every tunable the concurrency core accepts. Every other knob
// belongs to an external collaborator (storage tier, parser, evaluator).
type Config struct {
	// Oracle window tuning.
	WindowSize       key.CommitVersion
	MaxWindows       int
	CleanupThreshold int

	// Flow coordinator tuning.
	BackfillChunkSize key.CommitVersion
	NumWorkers        int
}

var DefaultConfig = Config{
	WindowSize:        1000,
	MaxWindows:         50,
	CleanupThreshold:   40,
	BackfillChunkSize: 1000,
	NumWorkers:        4,
}

func (c *Config) validate() error {
	if c.WindowSize == 0 {
		c.WindowSize = DefaultConfig.WindowSize
	}
	if c.MaxWindows <= 0 {
		c.MaxWindows = DefaultConfig.MaxWindows
	}
	if c.CleanupThreshold <= 0 {
		c.CleanupThreshold = DefaultConfig.CleanupThreshold
	}
	if c.CleanupThreshold > c.MaxWindows {
		c.CleanupThreshold = c.MaxWindows
	}
	if c.BackfillChunkSize == 0 {
		c.BackfillChunkSize = DefaultConfig.BackfillChunkSize
	}
	if c.NumWorkers <= 0 {
		c.NumWorkers = DefaultConfig.NumWorkers
	}
	return nil
}
