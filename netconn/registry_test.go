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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packetd/httpcore/confengine"
	"github.com/packetd/httpcore/filter/byterange"
	"github.com/packetd/httpcore/pipeline"
	"github.com/packetd/httpcore/stream"
)

func buildChain(t *testing.T, stageName string, ctx *stageContext) *pipeline.Chain {
	t.Helper()

	conf, err := confengine.LoadContent([]byte(`
pipeline:
  - name: test
    stages: ["` + stageName + `"]
`))
	require.NoError(t, err)

	pl, err := pipeline.New(conf, NewRegistry())
	require.NoError(t, err)

	chain, err := pl.Build("test", 8, 1024, ctx)
	require.NoError(t, err)
	return chain
}

func TestRegistryBuildsHandlerStage(t *testing.T) {
	ctx := &stageContext{
		Stream:   stream.New(1),
		Response: newResponse("HTTP/1.1", nil, false),
	}
	chain := buildChain(t, "handler", ctx)

	require.Len(t, chain.Stages(), 1)
	assert.Equal(t, "handler", chain.Stages()[0].Name())
}

func TestRegistryBuildsByterangeStage(t *testing.T) {
	ctx := &stageContext{
		Response: newResponse("HTTP/1.1", nil, false),
		Ranges:   []byterange.Range{{Start: 0, End: 10}},
		Boundary: "BOUND",
	}
	chain := buildChain(t, "byterange", ctx)

	require.Len(t, chain.Stages(), 1)
	assert.Equal(t, "byterange", chain.Stages()[0].Name())
}

func TestRegistryUnregisteredStageErrors(t *testing.T) {
	conf, err := confengine.LoadContent([]byte(`
pipeline:
  - name: test
    stages: ["nope"]
`))
	require.NoError(t, err)

	pl, err := pipeline.New(conf, NewRegistry())
	require.NoError(t, err)

	_, err = pl.Build("test", 8, 1024, &stageContext{})
	assert.Error(t, err)
}
