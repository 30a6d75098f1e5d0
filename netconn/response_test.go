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

package netconn

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewResponseDefaultsToOK(t *testing.T) {
	r := newResponse("HTTP/1.1", nil, false)
	assert.Equal(t, http.StatusOK, r.status)
	assert.False(t, r.HeadersSent())
}

func TestResponseEntityLengthParsesContentLength(t *testing.T) {
	r := newResponse("HTTP/1.1", nil, false)
	r.SetHeader("Content-Length", "1024")
	assert.Equal(t, int64(1024), r.EntityLength())
}

func TestResponseEntityLengthDefaultsToZeroWhenMissing(t *testing.T) {
	r := newResponse("HTTP/1.1", nil, false)
	assert.Equal(t, int64(0), r.EntityLength())
}

func TestResponseWriteHeadersMarksSentAndEncodesStatusLine(t *testing.T) {
	r := newResponse("HTTP/1.1", nil, false)
	r.SetStatus(404)
	r.SetHeader("Content-Type", "text/plain")

	p := r.WriteHeaders()
	require.True(t, r.HeadersSent())

	out := string(p.Bytes())
	assert.True(t, strings.HasPrefix(out, "HTTP/1.1 404"))
	assert.Contains(t, out, "Content-Type: text/plain")
	assert.True(t, strings.HasSuffix(out, "\r\n\r\n"))
}

func TestResponseErrorDocumentLookup(t *testing.T) {
	r := newResponse("HTTP/1.1", map[int]string{404: "/404.html"}, false)
	uri, ok := r.ErrorDocument(404)
	assert.True(t, ok)
	assert.Equal(t, "/404.html", uri)

	_, ok = r.ErrorDocument(500)
	assert.False(t, ok)
}

func TestResponseAltBody(t *testing.T) {
	r := newResponse("HTTP/1.1", nil, false)
	_, has := r.AltBody()
	assert.False(t, has)

	r.SetAltBody("oops")
	body, has := r.AltBody()
	assert.True(t, has)
	assert.Equal(t, "oops", string(body))
}

func TestResponseRedirectAndCurrentURI(t *testing.T) {
	r := newResponse("HTTP/1.1", nil, false)
	r.uri = "/old"
	r.Redirect("/new")
	assert.Equal(t, "/old", r.CurrentURI())
	assert.Equal(t, "/new", r.redirectTo)
}
