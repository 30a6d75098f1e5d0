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

package common

import (
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetBuildInfoDefaultsToEmptyValues(t *testing.T) {
	info := GetBuildInfo()
	assert.Equal(t, BuildInfo{}, info)
}

func TestConcurrencyIsTwiceNumCPU(t *testing.T) {
	assert.Equal(t, runtime.NumCPU()*2, Concurrency())
}

func TestStartedReturnsProcessStartTimestamp(t *testing.T) {
	assert.InDelta(t, time.Now().Unix(), Started(), 5)
}

func TestOptionsGetIntCoercesStrings(t *testing.T) {
	o := NewOptions()
	o.Merge("port", "8080")

	v, err := o.GetInt("port")
	require.NoError(t, err)
	assert.Equal(t, 8080, v)
}

func TestOptionsGetBool(t *testing.T) {
	o := NewOptions()
	o.Merge("enabled", true)

	v, err := o.GetBool("enabled")
	require.NoError(t, err)
	assert.True(t, v)
}

func TestOptionsGetStringSlice(t *testing.T) {
	o := NewOptions()
	o.Merge("names", []string{"a", "b"})

	v, err := o.GetStringSlice("names")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, v)
}

func TestOptionsGetIntMissingKeyIsZeroWithoutError(t *testing.T) {
	o := NewOptions()
	_, err := o.GetInt("missing")
	assert.NoError(t, err, "cast.ToIntE treats a missing key as the zero value, not an error")
}

func TestRecordTypeString(t *testing.T) {
	assert.Equal(t, "accesslog", RecordAccessLog.String())
	assert.Equal(t, "metrics", RecordMetrics.String())
	assert.Equal(t, "traces", RecordTraces.String())
	assert.Equal(t, "archive", RecordArchive.String())
	assert.Equal(t, "unknown", RecordType(99).String())
}
