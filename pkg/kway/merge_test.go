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

package kway

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/reifydb/reifydb-sub004/key"
)

func r(k, v string) key.Row {
	return key.Row{Key: key.FromString(k), Value: []byte(v)}
}

func keysOf(rows []key.Row) []string {
	var out []string
	for _, row := range rows {
		out = append(out, row.Key.String())
	}
	return out
}

func TestMerge(t *testing.T) {
	list1 := []key.Row{r("a", "1"), r("c", "3")}
	list2 := []key.Row{r("b", "2"), r("d", "4")}

	result := Merge(list1, list2)
	assert.Equal(t, []string{"a", "b", "c", "d"}, keysOf(result))
}

func TestMergeDuplicate(t *testing.T) {
	list1 := []key.Row{r("a", "10"), r("b", "2"), r("c", "10"), r("d", "4")}
	list2 := []key.Row{r("a", "1"), r("c", "3")}

	result := Merge(list1, list2)
	assert.Equal(t, []string{"a", "b", "c", "d"}, keysOf(result))
	for _, row := range result {
		if row.Key.String() == "a" {
			assert.Equal(t, []byte("1"), row.Value)
		}
		if row.Key.String() == "c" {
			assert.Equal(t, []byte("3"), row.Value)
		}
	}
}

func TestMergeTombstone(t *testing.T) {
	list1 := []key.Row{r("a", "10"), r("b", "2"), r("c", "10"), r("d", "4")}
	list2 := []key.Row{
		{Key: key.FromString("a"), Value: []byte("1"), Tombstone: true},
		{Key: key.FromString("c"), Value: []byte("3"), Tombstone: true},
	}

	result := Merge(list1, list2)
	assert.Equal(t, []string{"b", "d"}, keysOf(result))
}
