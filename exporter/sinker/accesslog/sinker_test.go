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

package accesslog

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packetd/httpcore/common"
	"github.com/packetd/httpcore/stream"
)

type nopCloserBuffer struct {
	*buffer
}

type buffer struct {
	data []byte
}

func (b *buffer) Write(p []byte) (int, error) {
	b.data = append(b.data, p...)
	return len(p), nil
}

func (nopCloserBuffer) Close() error { return nil }

func newSinker() (*Sinker, *buffer) {
	b := &buffer{}
	return &Sinker{wr: nopCloserBuffer{b}}, b
}

func TestSinkerName(t *testing.T) {
	s, _ := newSinker()
	assert.Equal(t, common.RecordAccessLog, s.Name())
}

func TestSinkWritesCommonLogFormatLine(t *testing.T) {
	s, buf := newSinker()
	rt := &stream.RoundTrip{
		RemoteIP:  "10.0.0.1",
		Method:    "GET",
		Path:      "/index.html",
		Proto:     "HTTP/1.1",
		Status:    200,
		RespBytes: 512,
		StartedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		ReqHeader: http.Header{"Referer": []string{"https://example.com"}},
	}
	require.NoError(t, s.Sink(rt))

	line := string(buf.data)
	assert.Contains(t, line, "10.0.0.1")
	assert.Contains(t, line, `"GET /index.html HTTP/1.1"`)
	assert.Contains(t, line, "200 512")
	assert.Contains(t, line, "https://example.com")
}

func TestSinkDefaultsMissingHeadersToDash(t *testing.T) {
	s, buf := newSinker()
	rt := &stream.RoundTrip{StartedAt: time.Now()}
	require.NoError(t, s.Sink(rt))

	line := string(buf.data)
	assert.Contains(t, line, `"-" "-"`)
}

func TestCloseDelegatesToUnderlyingWriter(t *testing.T) {
	s, _ := newSinker()
	assert.NoError(t, s.Close())
}
