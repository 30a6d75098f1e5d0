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

package archive

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packetd/httpcore/common"
	"github.com/packetd/httpcore/exporter"
	"github.com/packetd/httpcore/stream"
)

func TestSinkerName(t *testing.T) {
	s := &Sinker{}
	assert.Equal(t, common.RecordArchive, s.Name())
}

func TestSinkEnqueuesRoundTrip(t *testing.T) {
	s := &Sinker{cfg: &exporter.ArchiveConfig{}, queue: make(chan *stream.RoundTrip, 1)}
	rt := &stream.RoundTrip{Method: "GET", Path: "/a"}

	require.NoError(t, s.Sink(rt))
	require.Len(t, s.queue, 1)
	assert.Equal(t, rt, <-s.queue)
}

func TestSinkDropsWhenQueueFull(t *testing.T) {
	s := &Sinker{cfg: &exporter.ArchiveConfig{}, queue: make(chan *stream.RoundTrip, 1)}
	s.queue <- &stream.RoundTrip{Method: "first"}

	err := s.Sink(&stream.RoundTrip{Method: "second"})
	require.NoError(t, err, "Sink never returns an error, it drops silently on a full queue")

	require.Len(t, s.queue, 1)
	assert.Equal(t, "first", (<-s.queue).Method)
}

func TestFlattenHeaderTakesFirstValue(t *testing.T) {
	h := map[string][]string{
		"Content-Type": {"application/json", "charset=utf-8"},
		"X-Empty":      {},
	}
	out := flattenHeader(h)
	assert.Equal(t, "application/json", out["Content-Type"])
	_, ok := out["X-Empty"]
	assert.False(t, ok)
}

func TestFlattenHeaderHandlesNil(t *testing.T) {
	out := flattenHeader(nil)
	assert.Empty(t, out)
}
