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

package connector

import (
	"net"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packetd/httpcore/packet"
	"github.com/packetd/httpcore/queue"
)

type fakeConn struct {
	writes [][]byte
	err    error
	limit  int64 // max bytes accepted on the first call, 0 = unlimited; later calls write 0 bytes
	calls  int
}

func (c *fakeConn) Write(b net.Buffers) (int64, error) {
	c.calls++
	if c.err != nil {
		return 0, c.err
	}
	if c.limit > 0 && c.calls > 1 {
		return 0, nil
	}
	var total int64
	for _, chunk := range b {
		n := len(chunk)
		if c.limit > 0 && total+int64(n) > c.limit {
			n = int(c.limit - total)
		}
		c.writes = append(c.writes, append([]byte(nil), chunk[:n]...))
		total += int64(n)
		if c.limit > 0 && total >= c.limit {
			break
		}
	}
	return total, nil
}

func TestOutgoingServiceWritesFullQueueAndFinalizes(t *testing.T) {
	conn := &fakeConn{}
	var finalized bool
	c := New("conn", conn, Hooks{OnFinalize: func() { finalized = true }})

	q := queue.New("out", queue.Outgoing, 0, 0)
	p := packet.NewDataPacket(5)
	p.Write([]byte("hello"))
	q.Put(p)
	q.Put(packet.NewEndPacket())

	c.OutgoingService(q)

	require.Len(t, conn.writes, 1)
	assert.Equal(t, "hello", string(conn.writes[0]))
	assert.True(t, finalized)
}

func TestOutgoingServiceHandlesPartialWrite(t *testing.T) {
	conn := &fakeConn{limit: 3}
	var writable bool
	c := New("conn", conn, Hooks{OnWritable: func() { writable = true }})

	q := queue.New("out", queue.Outgoing, 0, 0)
	p := packet.NewDataPacket(5)
	p.Write([]byte("hello"))
	q.Put(p)

	c.OutgoingService(q)

	assert.True(t, writable, "partial write without an END packet should request another writable notification")
	assert.Equal(t, 2, p.Len(), "consumed bytes must be dropped from the front of Content")
}

func TestOutgoingServiceReportsBlockedOnEAGAIN(t *testing.T) {
	conn := &fakeConn{err: syscall.EAGAIN}
	var blocked bool
	c := New("conn", conn, Hooks{OnBlocked: func() { blocked = true }})

	q := queue.New("out", queue.Outgoing, 0, 0)
	p := packet.NewDataPacket(5)
	p.Write([]byte("hello"))
	q.Put(p)

	c.OutgoingService(q)
	assert.True(t, blocked)
}

func TestOutgoingServiceReportsDisconnectOnEPIPE(t *testing.T) {
	conn := &fakeConn{err: syscall.EPIPE}
	var disconnected, finalized bool
	c := New("conn", conn, Hooks{
		OnDisconnect: func() { disconnected = true },
		OnFinalize:   func() { finalized = true },
	})

	q := queue.New("out", queue.Outgoing, 0, 0)
	p := packet.NewDataPacket(5)
	p.Write([]byte("hello"))
	q.Put(p)

	c.OutgoingService(q)
	assert.True(t, disconnected)
	assert.True(t, finalized)
}

func TestOutgoingServiceSkipsEmptyMiddlePackets(t *testing.T) {
	conn := &fakeConn{}
	c := New("conn", conn, Hooks{})

	q := queue.New("out", queue.Outgoing, 0, 0)
	q.Put(packet.NewDataPacket(0))
	p := packet.NewDataPacket(3)
	p.Write([]byte("abc"))
	q.Put(p)
	q.Put(packet.NewEndPacket())

	c.OutgoingService(q)
	require.Len(t, conn.writes, 1)
	assert.Equal(t, "abc", string(conn.writes[0]))
}
