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

package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reifydb/reifydb-sub004/key"
)

func schema(name string) SchemaDef {
	return SchemaDef{ID: key.New(key.KindSchema, []byte(name)), Name: name}
}

func TestTrackSchemaCreatedGuardsAgainstDoubleCreate(t *testing.T) {
	tc := NewTransactionalChanges()

	require.NoError(t, tc.TrackSchemaCreated(schema("public")))
	err := tc.TrackSchemaCreated(schema("public"))
	assert.ErrorIs(t, err, ErrAlreadyPending)

	assert.Len(t, tc.Schemas, 1)
}

func TestTrackSchemaUpdatedNeverCoalesces(t *testing.T) {
	tc := NewTransactionalChanges()

	s := schema("public")
	tc.TrackSchemaUpdated(s, SchemaDef{ID: s.ID, Name: "public_v2"})
	tc.TrackSchemaUpdated(SchemaDef{ID: s.ID, Name: "public_v2"}, SchemaDef{ID: s.ID, Name: "public_v3"})

	require.Len(t, tc.Schemas, 2)
	assert.Equal(t, "public_v2", tc.Schemas[0].Post.Name)
	assert.Equal(t, "public_v3", tc.Schemas[1].Post.Name)
}

func TestTrackSchemaDeletedClearsPendingGuard(t *testing.T) {
	tc := NewTransactionalChanges()

	s := schema("temp")
	require.NoError(t, tc.TrackSchemaCreated(s))
	tc.TrackSchemaDeleted(s)

	// A create after a delete in the same transaction must be legal
	// again — the entity no longer exists from the transaction's point
	// of view.
	require.NoError(t, tc.TrackSchemaCreated(s))
	assert.Len(t, tc.Schemas, 3)
}

func TestOperationLogOrdersAcrossKinds(t *testing.T) {
	tc := NewTransactionalChanges()

	require.NoError(t, tc.TrackSchemaCreated(schema("s1")))
	require.NoError(t, tc.TrackTableCreated(TableDef{ID: key.New(key.KindTable, []byte("t1")), Name: "t1"}))
	tc.TrackSchemaUpdated(schema("s1"), SchemaDef{ID: schema("s1").ID, Name: "s1_renamed"})

	log := tc.Log()
	require.Len(t, log, 3)
	assert.Equal(t, "schema", log[0].Kind)
	assert.Equal(t, OpCreate, log[0].Op)
	assert.Equal(t, "table", log[1].Kind)
	assert.Equal(t, "schema", log[2].Kind)
	assert.Equal(t, OpUpdate, log[2].Op)
}

func TestIsEmpty(t *testing.T) {
	tc := NewTransactionalChanges()
	assert.True(t, tc.IsEmpty())

	require.NoError(t, tc.TrackTableCreated(TableDef{ID: key.New(key.KindTable, []byte("t1")), Name: "t1"}))
	assert.False(t, tc.IsEmpty())
}

func TestReset(t *testing.T) {
	tc := NewTransactionalChanges()
	require.NoError(t, tc.TrackSchemaCreated(schema("s1")))

	tc.Reset()
	assert.True(t, tc.IsEmpty())
	assert.Empty(t, tc.Log())

	// After Reset, the pending-create guard no longer remembers s1.
	require.NoError(t, tc.TrackSchemaCreated(schema("s1")))
}
