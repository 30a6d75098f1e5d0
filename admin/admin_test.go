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

package admin

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packetd/httpcore/confengine"
)

type fakeHealthReporter struct {
	conns, sessions int64
}

func (f fakeHealthReporter) ActiveConnections() int64 { return f.conns }
func (f fakeHealthReporter) ActiveSessions() int64    { return f.sessions }

func TestNewReturnsNilWhenDisabled(t *testing.T) {
	conf, err := confengine.LoadContent([]byte(`
admin:
  enabled: false
`))
	require.NoError(t, err)

	s, err := New(conf)
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestNewBuildsServerWhenEnabled(t *testing.T) {
	conf, err := confengine.LoadContent([]byte(`
admin:
  enabled: true
  address: 127.0.0.1:0
  pprof: true
  timeout: 5s
`))
	require.NoError(t, err)

	s, err := New(conf)
	require.NoError(t, err)
	require.NotNil(t, s)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	s.router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRegisterHealthServesJSON(t *testing.T) {
	conf, err := confengine.LoadContent([]byte(`
admin:
  enabled: true
  address: 127.0.0.1:0
`))
	require.NoError(t, err)

	s, err := New(conf)
	require.NoError(t, err)
	s.RegisterHealth(fakeHealthReporter{conns: 3, sessions: 7})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	s.router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"active_connections":3,"active_sessions":7}`, rr.Body.String())
}

func TestRegisterGetRouteMountsHandler(t *testing.T) {
	conf, err := confengine.LoadContent([]byte(`
admin:
  enabled: true
  address: 127.0.0.1:0
`))
	require.NoError(t, err)

	s, err := New(conf)
	require.NoError(t, err)
	s.RegisterGetRoute("/custom", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/custom", nil)
	s.router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusTeapot, rr.Code)
}

func TestPprofRoutesRegisteredWhenEnabled(t *testing.T) {
	conf, err := confengine.LoadContent([]byte(`
admin:
  enabled: true
  address: 127.0.0.1:0
  pprof: true
`))
	require.NoError(t, err)

	s, err := New(conf)
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/debug/pprof/cmdline", nil)
	s.router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestPprofRoutesAbsentWhenDisabled(t *testing.T) {
	conf, err := confengine.LoadContent([]byte(`
admin:
  enabled: true
  address: 127.0.0.1:0
  pprof: false
`))
	require.NoError(t, err)

	s, err := New(conf)
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/debug/pprof/cmdline", nil)
	s.router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
