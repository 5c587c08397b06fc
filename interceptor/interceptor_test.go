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

package interceptor

import (
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reifydb/reifydb-sub004/catalog"
)

func TestChainFiresInRegistrationOrder(t *testing.T) {
	chains := NewChains()

	var order []int
	chains.TablePreInsert.Register(func(*RowContext) error {
		order = append(order, 1)
		return nil
	})
	chains.TablePreInsert.Register(func(*RowContext) error {
		order = append(order, 2)
		return nil
	})
	chains.TablePreInsert.Register(func(*RowContext) error {
		order = append(order, 3)
		return nil
	})

	require.NoError(t, FireRow(&chains.TablePreInsert, &RowContext{}))
	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestChainStopsAtFirstError(t *testing.T) {
	chains := NewChains()

	var ran []int
	boom := errors.New("boom")
	chains.TablePreDelete.Register(func(*RowContext) error {
		ran = append(ran, 1)
		return nil
	})
	chains.TablePreDelete.Register(func(*RowContext) error {
		ran = append(ran, 2)
		return boom
	})
	chains.TablePreDelete.Register(func(*RowContext) error {
		ran = append(ran, 3)
		return nil
	})

	err := FireRow(&chains.TablePreDelete, &RowContext{})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, []int{1, 2}, ran)
}

func TestEmptyChainFiresCleanly(t *testing.T) {
	chains := NewChains()
	assert.Equal(t, 0, chains.SchemaPostCreate.Len())
	require.NoError(t, FireSchema(&chains.SchemaPostCreate, &SchemaContext{}))
}

func TestPostCommitSeesTransactionalChanges(t *testing.T) {
	chains := NewChains()

	var seen *catalog.TransactionalChanges
	chains.PostCommit.Register(func(ctx *CommitContext) error {
		seen = ctx.Changes
		return nil
	})

	tc := catalog.NewTransactionalChanges()
	require.NoError(t, tc.TrackTableCreated(catalog.TableDef{Name: "orders"}))

	require.NoError(t, FireCommit(&chains.PostCommit, &CommitContext{Changes: tc}))
	require.NotNil(t, seen)
	assert.False(t, seen.IsEmpty())
}

func TestViewChainIndependentFromTableDefChain(t *testing.T) {
	chains := NewChains()

	var viewFired, tableFired bool
	chains.ViewPreUpdate.Register(func(*ViewContext) error {
		viewFired = true
		return nil
	})
	chains.TableDefPreUpdate.Register(func(*TableContext) error {
		tableFired = true
		return nil
	})

	require.NoError(t, FireView(&chains.ViewPreUpdate, &ViewContext{}))
	assert.True(t, viewFired)
	assert.False(t, tableFired)
}

func TestRowChainIndependentFromDefChain(t *testing.T) {
	// The row DML family and the table def family are distinct hook
	// points: a definition change must not fire row hooks and vice versa.
	chains := NewChains()

	var rows, defs int
	chains.TablePreDelete.Register(func(*RowContext) error {
		rows++
		return nil
	})
	chains.TableDefPreDelete.Register(func(*TableContext) error {
		defs++
		return nil
	})

	require.NoError(t, FireTable(&chains.TableDefPreDelete, &TableContext{}))
	assert.Equal(t, 0, rows)
	assert.Equal(t, 1, defs)
}
