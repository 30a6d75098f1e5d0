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

package json

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name string `json:"name"`
	Age  int    `json:"age"`
}

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	in := sample{Name: "alice", Age: 30}
	b, err := Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"alice","age":30}`, string(b))

	var out sample
	require.NoError(t, Unmarshal(b, &out))
	assert.Equal(t, in, out)
}

func TestMarshalIndentProducesIndentedOutput(t *testing.T) {
	b, err := MarshalIndent(sample{Name: "bob", Age: 1}, "", "  ")
	require.NoError(t, err)
	assert.Contains(t, string(b), "\n  \"name\"")
}

func TestUnmarshalInvalidJSONReturnsError(t *testing.T) {
	var out sample
	err := Unmarshal([]byte("{not json"), &out)
	assert.Error(t, err)
}
