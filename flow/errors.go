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

import "github.com/juju/errors"

var (
	// ErrCoordinatorBusy is returned by Consume when a round is already
	// in flight; the coordinator processes one Consume at a time.
	ErrCoordinatorBusy = errors.New("flow: coordinator busy")

	// ErrCoordinatorStopped is returned by any call made after Close.
	ErrCoordinatorStopped = errors.New("flow: coordinator stopped")

	// ErrBackfillFailure wraps an error raised while advancing a
	// backfilling flow, distinguishing it from a live-consume failure
	// in logs.
	ErrBackfillFailure = errors.New("flow: backfill advance failed")

	// ErrFlowNotFound is returned by a Catalog when asked to resolve an
	// id it has no definition for.
	ErrFlowNotFound = errors.New("flow: definition not found")
)
