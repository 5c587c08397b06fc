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

// Package interceptor defines the hook chains a command transaction fires
// around catalog mutations and commit. Every chain runs its interceptors in
// registration order; an error from any interceptor aborts the surrounding
// operation. There is no priority field — a chain's order is exactly the
// order Register was called in.
package interceptor

import (
	"github.com/reifydb/reifydb-sub004/catalog"
	"github.com/reifydb/reifydb-sub004/key"
)

// RowContext is passed to every table row DML hook: the key being written
// and its before/after images. Pre is nil for an insert, Post is nil for a
// delete.
type RowContext struct {
	Key  key.EncodedKey
	Pre  []byte
	Post []byte
}

// TableContext is passed to every table_def_* hook.
type TableContext struct {
	Pre  *catalog.TableDef
	Post *catalog.TableDef
}

// SchemaContext is passed to every schema_def_* hook.
type SchemaContext struct {
	Pre  *catalog.SchemaDef
	Post *catalog.SchemaDef
}

// ViewContext is passed to every view_def_* hook.
type ViewContext struct {
	Pre  *catalog.ViewDef
	Post *catalog.ViewDef
}

// CommitContext is passed to pre_commit and post_commit hooks. Changes is
// never nil, but may be IsEmpty() for a transaction that touched only row
// data. ViewTriggers lists every view key the transaction recorded through
// Txn.TrackViewChange, so a
// flow coordinator's pre_commit hook can re-trigger any transactional flow
// sourcing one of those views inside the same commit.
type CommitContext struct {
	Changes      *catalog.TransactionalChanges
	ViewTriggers []key.EncodedKey
}

type (
	RowFunc    func(*RowContext) error
	TableFunc  func(*TableContext) error
	SchemaFunc func(*SchemaContext) error
	ViewFunc   func(*ViewContext) error
	CommitFunc func(*CommitContext) error
)

// Chain is a registration-ordered list of hook functions sharing one call
// signature. The zero value is an empty chain ready to register into.
type Chain[F any] struct {
	fns []F
}

// Register appends fn to the end of the chain. Interceptors fire in the
// order they were registered; there is no priority to reorder them.
func (c *Chain[F]) Register(fn F) {
	c.fns = append(c.fns, fn)
}

// Len reports how many interceptors are registered.
func (c *Chain[F]) Len() int {
	return len(c.fns)
}

// Chains holds one chain per hook point in the transaction's interceptor
// contract. Two distinct families cover tables: the row DML family
// (TablePreInsert ... TablePostDelete) fires around every row write a
// transaction buffers and commits, while the def family (TableDefPostCreate
// ... TableDefPreDelete) fires around table-definition changes, symmetric
// with the schema and view def families. Pre hooks run before the change is
// recorded; post hooks run after the commit is durable.
type Chains struct {
	TablePreInsert  Chain[RowFunc]
	TablePostInsert Chain[RowFunc]
	TablePreUpdate  Chain[RowFunc]
	TablePostUpdate Chain[RowFunc]
	TablePreDelete  Chain[RowFunc]
	TablePostDelete Chain[RowFunc]

	SchemaPostCreate Chain[SchemaFunc]
	SchemaPreUpdate  Chain[SchemaFunc]
	SchemaPostUpdate Chain[SchemaFunc]
	SchemaPreDelete  Chain[SchemaFunc]

	TableDefPostCreate Chain[TableFunc]
	TableDefPreUpdate  Chain[TableFunc]
	TableDefPostUpdate Chain[TableFunc]
	TableDefPreDelete  Chain[TableFunc]

	ViewPostCreate Chain[ViewFunc]
	ViewPreUpdate  Chain[ViewFunc]
	ViewPostUpdate Chain[ViewFunc]
	ViewPreDelete  Chain[ViewFunc]

	PreCommit  Chain[CommitFunc]
	PostCommit Chain[CommitFunc]
}

// NewChains returns an empty set of chains, all firing zero interceptors
// until registered.
func NewChains() *Chains {
	return &Chains{}
}

// FireRow invokes every interceptor in chain in registration order against
// ctx, stopping and returning the first error.
func FireRow(chain *Chain[RowFunc], ctx *RowContext) error {
	for _, fn := range chain.fns {
		if err := fn(ctx); err != nil {
			return err
		}
	}
	return nil
}

// FireTable invokes every interceptor in chain in registration order against
// ctx, stopping and returning the first error.
func FireTable(chain *Chain[TableFunc], ctx *TableContext) error {
	for _, fn := range chain.fns {
		if err := fn(ctx); err != nil {
			return err
		}
	}
	return nil
}

// FireSchema invokes every interceptor in chain in registration order
// against ctx, stopping and returning the first error.
func FireSchema(chain *Chain[SchemaFunc], ctx *SchemaContext) error {
	for _, fn := range chain.fns {
		if err := fn(ctx); err != nil {
			return err
		}
	}
	return nil
}

// FireView invokes every interceptor in chain in registration order against
// ctx, stopping and returning the first error.
func FireView(chain *Chain[ViewFunc], ctx *ViewContext) error {
	for _, fn := range chain.fns {
		if err := fn(ctx); err != nil {
			return err
		}
	}
	return nil
}

// FireCommit invokes every interceptor in chain in registration order
// against ctx, stopping and returning the first error.
func FireCommit(chain *Chain[CommitFunc], ctx *CommitContext) error {
	for _, fn := range chain.fns {
		if err := fn(ctx); err != nil {
			return err
		}
	}
	return nil
}
