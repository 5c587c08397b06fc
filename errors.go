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

import "github.com/juju/errors"

// Sentinel error kinds. Wrap a sentinel with errors.Annotatef at the call
// site; unwrap with errors.Cause to recover the kind.
var (
	// ErrConflict is returned when the Oracle rejects a commit because a
	// concurrently-committed transaction invalidated this one's reads or
	// writes. User-actionable: retry with a fresh read version.
	ErrConflict = errors.New("transaction conflict")

	// ErrAlreadyTerminal is returned by any operation on a transaction
	// that already committed or rolled back. Programmer error.
	ErrAlreadyTerminal = errors.New("transaction already committed or rolled back")

	// ErrPendingInTransaction is returned when a catalog entity is
	// tracked as Created twice in the same transaction. Programmer
	// error, not a data conflict.
	ErrPendingInTransaction = errors.New("entity already pending in transaction")

	// ErrInterceptorFailure wraps any error returned by a hook. The
	// surrounding operation (and the transaction, for pre_commit) is
	// rolled back.
	ErrInterceptorFailure = errors.New("interceptor failed")

	// ErrStorageFailure wraps an underlying storage tier I/O failure.
	ErrStorageFailure = errors.New("storage failure")

	// ErrActorStopped names the error kind for a message sent to a
	// shut-down actor mailbox. Nothing in this package returns it; the
	// flow package reports that case as flow.ErrCoordinatorStopped.
	ErrActorStopped = errors.New("actor stopped")

	// ErrBackfillFailure names the error kind for a CDC read or worker
	// submission failure during flow backfill. Nothing in this package
	// returns it; the flow package reports that case as
	// flow.ErrBackfillFailure.
	ErrBackfillFailure = errors.New("backfill failed")
)
