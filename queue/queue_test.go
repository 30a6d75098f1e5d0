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

package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packetd/httpcore/packet"
)

func dataPacket(s string) *packet.Packet {
	p := packet.NewDataPacket(len(s))
	p.Write([]byte(s))
	return p
}

func TestNewQueueStartsEmpty(t *testing.T) {
	q := New("q", Outgoing, 0, 0)
	assert.True(t, q.Empty())
	assert.Equal(t, 0, q.Count())
	assert.Nil(t, q.First())
	assert.Nil(t, q.Get())
}

func TestPutAndGetPreserveFIFOOrder(t *testing.T) {
	q := New("q", Incoming, 0, 0)
	q.Put(dataPacket("a"))
	q.Put(dataPacket("b"))
	q.Put(dataPacket("c"))

	assert.Equal(t, 3, q.Count())
	assert.Equal(t, "a", string(q.Get().Bytes()))
	assert.Equal(t, "b", string(q.Get().Bytes()))
	assert.Equal(t, "c", string(q.Get().Bytes()))
	assert.Nil(t, q.Get())
	assert.True(t, q.Empty())
}

func TestPutBackReinsertsAtFront(t *testing.T) {
	q := New("q", Outgoing, 0, 0)
	q.Put(dataPacket("second"))
	q.PutBack(dataPacket("first"))

	assert.Equal(t, "first", string(q.Get().Bytes()))
	assert.Equal(t, "second", string(q.Get().Bytes()))
}

func TestPutBackOnEmptyQueueSetsLast(t *testing.T) {
	q := New("q", Outgoing, 0, 0)
	q.PutBack(dataPacket("only"))

	assert.Equal(t, 4, q.Count())
	got := q.Get()
	require.NotNil(t, got)
	assert.Equal(t, "only", string(got.Bytes()))
	assert.True(t, q.Empty())
}

func TestRoomUnboundedWhenMaxIsZero(t *testing.T) {
	q := New("q", Outgoing, 0, 0)
	assert.Equal(t, 1<<30, q.Room())
}

func TestRoomShrinksAsDataIsQueued(t *testing.T) {
	q := New("q", Outgoing, 10, 0)
	assert.Equal(t, 10, q.Room())
	q.Put(dataPacket("abcd"))
	assert.Equal(t, 6, q.Room())
}

func TestRoomNeverGoesNegative(t *testing.T) {
	q := New("q", Outgoing, 2, 0)
	q.Put(dataPacket("abcdef"))
	assert.Equal(t, 0, q.Room())
}

func TestSuspendAndResume(t *testing.T) {
	q := New("q", Outgoing, 0, 0)
	assert.False(t, q.Suspended())
	q.Suspend()
	assert.True(t, q.Suspended())
	q.Resume()
	assert.False(t, q.Suspended())
}

func TestFirstDoesNotDequeue(t *testing.T) {
	q := New("q", Outgoing, 0, 0)
	q.Put(dataPacket("x"))

	assert.Equal(t, "x", string(q.First().Bytes()))
	assert.Equal(t, 1, q.Count(), "First must not consume the packet")
}

func TestDiscardDropsEverythingByDefault(t *testing.T) {
	q := New("q", Outgoing, 0, 0)
	q.Put(dataPacket("a"))
	q.Put(dataPacket("b"))
	q.Put(packet.NewEndPacket())

	q.Discard(false)
	assert.True(t, q.Empty())
	assert.Equal(t, 0, q.Count())
}

func TestDiscardDataOnlyKeepsStructuralPackets(t *testing.T) {
	q := New("q", Outgoing, 0, 0)
	q.Put(dataPacket("a"))
	q.Put(dataPacket("b"))
	end := packet.NewEndPacket()
	q.Put(end)

	q.Discard(true)
	assert.False(t, q.Empty())
	got := q.Get()
	require.NotNil(t, got)
	assert.True(t, got.IsEnd())
	assert.Nil(t, q.Get())
}
