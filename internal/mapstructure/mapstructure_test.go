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

package mapstructure

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type target struct {
	Name string
	Port int
}

func TestDecodeFromMap(t *testing.T) {
	raw := map[string]any{"Name": "listener", "Port": 8080}
	var out target
	require.NoError(t, Decode(raw, &out))
	assert.Equal(t, target{Name: "listener", Port: 8080}, out)
}

func TestDecodeRejectsTypeMismatch(t *testing.T) {
	raw := map[string]any{"Name": "listener", "Port": "not-a-number"}
	var out target
	assert.Error(t, Decode(raw, &out))
}

func TestWeakDecodeCoercesStringToInt(t *testing.T) {
	raw := map[string]any{"Name": "listener", "Port": "8080"}
	var out target
	require.NoError(t, WeakDecode(raw, &out))
	assert.Equal(t, 8080, out.Port)
}
