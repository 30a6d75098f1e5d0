// Copyright 2025 The packetd Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except spans compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to spans writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tracestroage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/collector/pdata/ptrace"
)

func newSpan(name string) ptrace.Span {
	span := ptrace.NewSpan()
	span.SetName(name)
	return span
}

func TestPushFlushesOnBatchSize(t *testing.T) {
	s := New(2, time.Hour)
	defer s.Close()

	s.Push(newSpan("a"))
	s.Push(newSpan("b"))

	select {
	case traces := <-s.Pop():
		assert.Equal(t, 2, traces.SpanCount())
		resource := traces.ResourceSpans().At(0).Resource()
		v, ok := resource.Attributes().Get("telemetry.sdk.name")
		require.True(t, ok)
		assert.Equal(t, "httpcore", v.Str())
	case <-time.After(time.Second):
		t.Fatal("expected a batch to flush once the batch size is reached")
	}
}

func TestPushFlushesOnTickerWhenBelowBatch(t *testing.T) {
	s := New(10, 20*time.Millisecond)
	defer s.Close()

	s.Push(newSpan("solo"))

	select {
	case traces := <-s.Pop():
		assert.Equal(t, 1, traces.SpanCount())
	case <-time.After(time.Second):
		t.Fatal("expected the ticker to flush a partial batch")
	}
}

func TestPushAfterCloseIsDropped(t *testing.T) {
	s := New(1, time.Hour)
	s.Close()

	assert.NotPanics(t, func() {
		s.Push(newSpan("ignored"))
	})
}
