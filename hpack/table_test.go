// Copyright 2025 The packetd Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package hpack

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticTableLookup(t *testing.T) {
	tbl := NewTable(4096)

	index, withValue := tbl.Lookup(":method", "GET")
	assert.Equal(t, 2, index)
	assert.True(t, withValue)

	index, withValue = tbl.Lookup("content-type", "text/plain")
	assert.Equal(t, 31, index)
	assert.False(t, withValue)

	e, ok := tbl.Get(31)
	require.True(t, ok)
	assert.Equal(t, "content-type", e.Name)
}

func TestDynamicTableInsertAndEvict(t *testing.T) {
	tbl := NewTable(64)

	idx := tbl.Add(Entry{Name: "x", Value: "1", HasValue: true})
	assert.Equal(t, StaticTableSize+1, idx)
	assert.Equal(t, 1, tbl.Len())

	// Second entry should evict the first once the budget is exceeded.
	tbl.Add(Entry{Name: "y", Value: "22", HasValue: true})
	assert.Equal(t, 1, tbl.Len())

	e, ok := tbl.Get(StaticTableSize + 1)
	require.True(t, ok)
	assert.Equal(t, "y", e.Name)
}

func TestDynamicTablePrefersNameAndValueMatch(t *testing.T) {
	tbl := NewTable(4096)
	tbl.Add(Entry{Name: "x-custom", Value: "a", HasValue: true})
	tbl.Add(Entry{Name: "x-custom", Value: "b", HasValue: true})

	index, withValue := tbl.Lookup("x-custom", "a")
	assert.True(t, withValue)
	e, _ := tbl.Get(index)
	assert.Equal(t, "a", e.Value)
}

func TestSetMaxEvicts(t *testing.T) {
	tbl := NewTable(4096)
	tbl.Add(Entry{Name: "x", Value: "1", HasValue: true})
	tbl.Add(Entry{Name: "y", Value: "2", HasValue: true})
	require.Equal(t, 2, tbl.Len())

	tbl.SetMax(40)
	assert.Equal(t, 1, tbl.Len())
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	enc := NewEncoder(4096)
	dec := NewDecoder(4096)

	var buf []byte
	write := func(key, value string) {
		var b bytes.Buffer
		enc.EncodeField(&b, key, value)
		buf = append(buf, b.Bytes()...)
	}
	write(":method", "GET")
	write(":path", "/widgets/123")
	write("x-request-id", "abc-def-ghi")

	fields, err := dec.DecodeFields(buf)
	require.NoError(t, err)
	require.Len(t, fields, 3)
	assert.Equal(t, Field{Name: ":method", Value: "GET"}, fields[0])
	assert.Equal(t, Field{Name: ":path", Value: "/widgets/123"}, fields[1])
	assert.Equal(t, Field{Name: "x-request-id", Value: "abc-def-ghi"}, fields[2])
}
