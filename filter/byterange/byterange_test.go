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

package byterange

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSimpleRange(t *testing.T) {
	ranges := Parse("bytes=0-499")
	require.Len(t, ranges, 1)
	// RFC 7233 "0-499" is inclusive of byte 499; Range.End is exclusive.
	assert.Equal(t, Range{Start: 0, End: 500}, ranges[0])
}

func TestParseMultipleRanges(t *testing.T) {
	ranges := Parse("bytes=0-99, 200-299")
	require.Len(t, ranges, 2)
	assert.Equal(t, Range{Start: 0, End: 100}, ranges[0])
	assert.Equal(t, Range{Start: 200, End: 300}, ranges[1])
}

func TestParseOpenEndedRange(t *testing.T) {
	ranges := Parse("bytes=500-")
	require.Len(t, ranges, 1)
	assert.Equal(t, Range{Start: 500, End: -1}, ranges[0])
}

func TestParseSuffixRange(t *testing.T) {
	ranges := Parse("bytes=-500")
	require.Len(t, ranges, 1)
	assert.Equal(t, Range{Start: -500, End: -1}, ranges[0])
}

func TestParseRejectsUnknownUnit(t *testing.T) {
	assert.Nil(t, Parse("frames=0-10"))
}

func TestParseRejectsMalformedRange(t *testing.T) {
	assert.Nil(t, Parse("bytes=abc"))
}

func TestNormalizeOpenEndedRange(t *testing.T) {
	out, err := Normalize([]Range{{Start: 500, End: -1}}, 1000)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, Range{Start: 500, End: 1000}, out[0])
}

func TestNormalizeSuffixRange(t *testing.T) {
	out, err := Normalize([]Range{{Start: -500, End: -1}}, 1000)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, Range{Start: 500, End: 1000}, out[0])
}

func TestNormalizeClampsToLength(t *testing.T) {
	out, err := Normalize([]Range{{Start: 0, End: 5000}}, 1000)
	require.NoError(t, err)
	assert.Equal(t, Range{Start: 0, End: 1000}, out[0])
}

func TestNormalizeRejectsUnsatisfiableRange(t *testing.T) {
	_, err := Normalize([]Range{{Start: 2000, End: 3000}}, 1000)
	assert.Error(t, err)
}

func TestNormalizeRejectsUnknownLength(t *testing.T) {
	_, err := Normalize([]Range{{Start: 0, End: 10}}, -1)
	assert.Error(t, err)
}

func TestContentRangeWithKnownLength(t *testing.T) {
	assert.Equal(t, "bytes 0-499/1000", ContentRange(Range{Start: 0, End: 500}, 1000))
}

func TestContentRangeWithUnknownLength(t *testing.T) {
	assert.Equal(t, "bytes 0-499/*", ContentRange(Range{Start: 0, End: 500}, -1))
}

func TestRangeLen(t *testing.T) {
	assert.Equal(t, int64(500), Range{Start: 0, End: 500}.Len())
}
