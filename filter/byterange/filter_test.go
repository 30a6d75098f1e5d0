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

	"github.com/packetd/httpcore/packet"
	"github.com/packetd/httpcore/queue"
)

type fakeResponder struct {
	status  int
	headers map[string]string
	length  int64
}

func newFakeResponder(length int64) *fakeResponder {
	return &fakeResponder{headers: map[string]string{}, length: length}
}

func (f *fakeResponder) SetStatus(code int)       { f.status = code }
func (f *fakeResponder) SetHeader(n, v string)    { f.headers[n] = v }
func (f *fakeResponder) EntityLength() int64      { return f.length }

type stubNext struct {
	target *queue.Queue
	accept bool
}

func (s *stubNext) NextQueue(queue.Direction) *queue.Queue       { return s.target }
func (s *stubNext) WillAccept(*queue.Queue, *packet.Packet) bool { return s.accept }
func (s *stubNext) NotifyReadable()                              {}
func (s *stubNext) Dispatch(queue.Direction, *packet.Packet)      {}

func TestStartSetsPartialContentStatus(t *testing.T) {
	r := newFakeResponder(1000)
	f := NewFilter("byterange", r, []Range{{Start: 0, End: 500}}, "")
	f.Start(queue.New("out", queue.Outgoing, 0, 0))
	assert.Equal(t, 206, r.status)
	assert.Equal(t, "bytes", r.headers["Accept-Ranges"])
}

func TestOutgoingServiceTrimsToSingleRange(t *testing.T) {
	r := newFakeResponder(10)
	f := NewFilter("byterange", r, []Range{{Start: 2, End: 5}}, "")
	f.Start(queue.New("out", queue.Outgoing, 0, 0))

	downstream := queue.New("down", queue.Outgoing, 0, 0)
	f.SetNext(&stubNext{target: downstream, accept: true})

	q := queue.New("out", queue.Outgoing, 0, 0)
	p := packet.NewDataPacket(10)
	p.Write([]byte("0123456789"))
	q.Put(p)
	q.Put(packet.NewEndPacket())

	f.OutgoingService(q)

	var got []byte
	for d := downstream.First(); d != nil; d = d.Next() {
		if !d.IsEnd() {
			got = append(got, d.Bytes()...)
		}
	}
	assert.Equal(t, "234", string(got))
}

func TestOutgoingServiceSkipsDataBeforeRange(t *testing.T) {
	r := newFakeResponder(10)
	f := NewFilter("byterange", r, []Range{{Start: 5, End: 8}}, "")
	f.Start(queue.New("out", queue.Outgoing, 0, 0))

	downstream := queue.New("down", queue.Outgoing, 0, 0)
	f.SetNext(&stubNext{target: downstream, accept: true})

	q := queue.New("out", queue.Outgoing, 0, 0)
	p1 := packet.NewDataPacket(5)
	p1.Write([]byte("01234"))
	q.Put(p1)
	p2 := packet.NewDataPacket(5)
	p2.Write([]byte("56789"))
	q.Put(p2)
	q.Put(packet.NewEndPacket())

	f.OutgoingService(q)

	var got []byte
	for d := downstream.First(); d != nil; d = d.Next() {
		if !d.IsEnd() {
			got = append(got, d.Bytes()...)
		}
	}
	assert.Equal(t, "567", string(got))
}

func TestOutgoingServiceMultipartInsertsBoundaries(t *testing.T) {
	r := newFakeResponder(10)
	f := NewFilter("byterange", r, []Range{{Start: 0, End: 2}, {Start: 5, End: 7}}, "BOUND")
	f.Start(queue.New("out", queue.Outgoing, 0, 0))

	downstream := queue.New("down", queue.Outgoing, 0, 0)
	f.SetNext(&stubNext{target: downstream, accept: true})

	q := queue.New("out", queue.Outgoing, 0, 0)
	p := packet.NewDataPacket(10)
	p.Write([]byte("0123456789"))
	q.Put(p)
	q.Put(packet.NewEndPacket())

	f.OutgoingService(q)

	var packets [][]byte
	for d := downstream.First(); d != nil; d = d.Next() {
		if !d.IsEnd() {
			packets = append(packets, d.Bytes())
		}
	}
	require.Len(t, packets, 5, "expected boundary+data per range plus a final boundary")

	assert.Contains(t, string(packets[0]), "--BOUND\r\n")
	assert.Contains(t, string(packets[0]), "Content-Range: bytes 0-1/10")
	assert.Equal(t, "01", string(packets[1]), "range body bytes must reach the wire, not just the boundary header")

	assert.Contains(t, string(packets[2]), "--BOUND\r\n")
	assert.Contains(t, string(packets[2]), "Content-Range: bytes 5-6/10")
	assert.Equal(t, "56", string(packets[3]), "range body bytes must reach the wire, not just the boundary header")

	assert.Contains(t, string(packets[4]), "--BOUND--\r\n")

	last := downstream.First()
	for d := last; d.Next() != nil; d = d.Next() {
		last = d.Next()
	}
	assert.True(t, last.IsEnd())
}
