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

package httperror

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packetd/httpcore/stream"
)

type fakeResponder struct {
	headersSent  bool
	status       int
	headers      map[string]string
	altBody      string
	redirectURI  string
	plainText    bool
	showErrors   bool
	errorDocs    map[int]string
	currentURI   string
}

func newFakeResponder() *fakeResponder {
	return &fakeResponder{headers: map[string]string{}, errorDocs: map[int]string{}}
}

func (f *fakeResponder) HeadersSent() bool        { return f.headersSent }
func (f *fakeResponder) SetStatus(code int)       { f.status = code }
func (f *fakeResponder) SetHeader(n, v string)    { f.headers[n] = v }
func (f *fakeResponder) SetAltBody(body string)   { f.altBody = body }
func (f *fakeResponder) Redirect(uri string)      { f.redirectURI = uri }
func (f *fakeResponder) AcceptsPlainText() bool   { return f.plainText }
func (f *fakeResponder) ShowErrors() bool         { return f.showErrors }
func (f *fakeResponder) CurrentURI() string       { return f.currentURI }
func (f *fakeResponder) ErrorDocument(status int) (string, bool) {
	uri, ok := f.errorDocs[status]
	return uri, ok
}

func TestErrorFirstWinsAndSetsStatus(t *testing.T) {
	s := stream.New(1)
	r := newFakeResponder()
	r.plainText = true

	Error(s, r, Metrics{}, 404, "no route for %s", "/foo")

	assert.True(t, s.Error)
	assert.Equal(t, 404, s.ErrorStatus)
	assert.Equal(t, "no route for /foo", s.ErrorMessage)
	assert.Equal(t, 404, r.status)
	assert.Equal(t, "no route for /foo\n", r.altBody)
	assert.True(t, s.Finalized())
}

func TestErrorSecondCallDoesNotOverwrite(t *testing.T) {
	s := stream.New(1)
	r := newFakeResponder()

	Error(s, r, Metrics{}, 500, "first")
	r.status = 0 // reset to detect whether Error touches the responder again
	Error(s, r, Metrics{}, 400, "second")

	assert.Equal(t, 500, s.ErrorStatus)
	assert.Equal(t, "first", s.ErrorMessage)
	assert.Equal(t, 0, r.status, "responder must not be touched once an error has landed")
}

func TestErrorIncrementsMetrics(t *testing.T) {
	s := stream.New(1)
	r := newFakeResponder()
	var errs, notFound int
	m := Metrics{
		IncErrors:   func() { errs++ },
		IncNotFound: func() { notFound++ },
	}

	Error(s, r, m, 404, "missing")
	assert.Equal(t, 1, errs)
	assert.Equal(t, 1, notFound)
}

func TestErrorAbortWhenHeadersAlreadySent(t *testing.T) {
	s := stream.New(1)
	r := newFakeResponder()
	r.headersSent = true

	Error(s, r, Metrics{}, 500, "late failure")
	assert.True(t, s.Aborted(), "cannot rewrite a response whose headers are already on the wire")
}

func TestErrorRedirectsToErrorDocument(t *testing.T) {
	s := stream.New(1)
	r := newFakeResponder()
	r.currentURI = "/broken"
	r.errorDocs[404] = "/404.html"

	Error(s, r, Metrics{}, 404, "missing")
	assert.Equal(t, "/404.html", r.redirectURI)
	assert.Empty(t, r.altBody, "redirect path should not also synthesize an inline body")
}

func TestErrorABORTFlagAbortsStream(t *testing.T) {
	s := stream.New(1)
	r := newFakeResponder()

	Error(s, r, Metrics{}, 500|int(ABORT), "fatal")
	assert.True(t, s.Aborted())
}

func TestErrorCLOSEFlagClearsKeepAlive(t *testing.T) {
	s := stream.New(3)
	r := newFakeResponder()

	Error(s, r, Metrics{}, 400|int(CLOSE), "bad")
	assert.Equal(t, 0, s.KeepAliveCount)
	assert.True(t, s.EOF)
}

func TestBadRequestConvenienceWrapper(t *testing.T) {
	s := stream.New(1)
	r := newFakeResponder()
	BadRequest(s, r, Metrics{}, "bad input")
	assert.Equal(t, 400, s.ErrorStatus)
}

func TestLimitAlwaysClosesConnection(t *testing.T) {
	s := stream.New(1)
	r := newFakeResponder()
	Limit(s, r, Metrics{}, 413, "too much data")
	assert.Equal(t, 413, s.ErrorStatus)
	assert.Equal(t, 0, s.KeepAliveCount)
}

func TestMemoryAlwaysAborts(t *testing.T) {
	s := stream.New(1)
	r := newFakeResponder()
	Memory(s, r, Metrics{})
	assert.Equal(t, 500, s.ErrorStatus)
	assert.True(t, s.Aborted())
}

type fakeNetResponder struct {
	streams   []*stream.Stream
	responder *fakeResponder
	goAway    int
	closed    bool
}

func (n *fakeNetResponder) LiveStreams() []*stream.Stream       { return n.streams }
func (n *fakeNetResponder) Responder(*stream.Stream) Responder { return n.responder }
func (n *fakeNetResponder) SendGoAway(code int)                { n.goAway = code }
func (n *fakeNetResponder) Close()                              { n.closed = true }

func TestNetErrorShortCircuitsAllStreamsAndSendsGoAway(t *testing.T) {
	s1, s2 := stream.New(1), stream.New(1)
	n := &fakeNetResponder{streams: []*stream.Stream{s1, s2}, responder: newFakeResponder()}

	NetError(n, Metrics{}, nil, "connection reset")

	require.True(t, s1.Aborted())
	require.True(t, s2.Aborted())
	assert.Equal(t, 0x2, n.goAway)
	assert.True(t, n.closed)
}
