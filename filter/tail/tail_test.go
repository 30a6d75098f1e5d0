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

package tail

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packetd/httpcore/httperror"
	"github.com/packetd/httpcore/packet"
	"github.com/packetd/httpcore/queue"
	"github.com/packetd/httpcore/stream"
)

type stubNext struct {
	target *queue.Queue
	accept bool
}

func (s *stubNext) NextQueue(queue.Direction) *queue.Queue        { return s.target }
func (s *stubNext) WillAccept(*queue.Queue, *packet.Packet) bool  { return s.accept }
func (s *stubNext) NotifyReadable()                               {}
func (s *stubNext) Dispatch(dir queue.Direction, p *packet.Packet) {
	if dir == queue.Incoming && s.target != nil {
		s.target.Put(p)
	}
}

type stubHeaders struct {
	header *packet.Packet
	body   []byte
	hasAlt bool
}

func (h *stubHeaders) WriteHeaders() *packet.Packet      { return h.header }
func (h *stubHeaders) AltBody() ([]byte, bool)           { return h.body, h.hasAlt }

func TestIncomingEnforcesFormSizeLimit(t *testing.T) {
	s := stream.New(1)
	f := New("tail", s, Limits{RxFormSize: 10}, &stubHeaders{})

	var limited bool
	p := packet.NewDataPacket(20)
	p.Write(make([]byte, 20))

	f.Incoming(queue.New("in", queue.Incoming, 0, 0), p, func() { limited = true })
	assert.True(t, limited)
}

func TestIncomingForwardsUnderLimit(t *testing.T) {
	s := stream.New(1)
	downstream := queue.New("down", queue.Incoming, 0, 0)
	next := &stubNext{target: downstream}
	f := New("tail", s, Limits{RxFormSize: 100}, &stubHeaders{})
	f.SetNext(next)

	p := packet.NewDataPacket(10)
	p.Write(make([]byte, 10))

	var limited bool
	f.Incoming(queue.New("in", queue.Incoming, 0, 0), p, func() { limited = true })
	assert.False(t, limited)
	assert.False(t, downstream.Empty())
}

func TestIncomingAppendsEndPacketOnEOF(t *testing.T) {
	s := stream.New(1)
	s.SetEOF()
	f := New("tail", s, Limits{}, &stubHeaders{})

	q := queue.New("in", queue.Incoming, 0, 0)
	p := packet.NewDataPacket(1)
	p.Write([]byte("a"))
	f.Incoming(q, p, nil)

	last := q.First()
	for last.Next() != nil {
		last = last.Next()
	}
	assert.True(t, last.IsEnd())
}

func TestOutgoingWritesHeadersOnce(t *testing.T) {
	s := stream.New(1)
	headerPkt := packet.NewHeaderPacket(nil)
	f := New("tail", s, Limits{}, &stubHeaders{header: headerPkt})

	q := queue.New("out", queue.Outgoing, 0, 0)
	p1 := packet.NewDataPacket(1)
	p1.Write([]byte("a"))
	p2 := packet.NewDataPacket(1)
	p2.Write([]byte("b"))

	f.Outgoing(q, p1, s, nopResponder{}, httperror.Metrics{})
	f.Outgoing(q, p2, s, nopResponder{}, httperror.Metrics{})

	var count int
	for p := q.First(); p != nil; p = p.Next() {
		count++
	}
	assert.Equal(t, 3, count, "header + two data packets, header written exactly once")
}

func TestOutgoingEnforcesBodySizeLimit(t *testing.T) {
	s := stream.New(1)
	f := New("tail", s, Limits{TxBodySize: 5}, &stubHeaders{header: packet.NewHeaderPacket(nil)})

	q := queue.New("out", queue.Outgoing, 0, 0)
	p := packet.NewDataPacket(10)
	p.Write(make([]byte, 10))

	f.Outgoing(q, p, s, nopResponder{}, httperror.Metrics{})
	assert.True(t, s.Error)
	assert.Equal(t, 413, s.ErrorStatus)
}

type nopResponder struct{}

func (nopResponder) HeadersSent() bool                  { return false }
func (nopResponder) SetStatus(int)                      {}
func (nopResponder) SetHeader(string, string)            {}
func (nopResponder) SetAltBody(string)                   {}
func (nopResponder) Redirect(string)                     {}
func (nopResponder) AcceptsPlainText() bool               { return true }
func (nopResponder) ShowErrors() bool                     { return false }
func (nopResponder) ErrorDocument(int) (string, bool)     { return "", false }
func (nopResponder) CurrentURI() string                   { return "/" }

func TestOutgoingServiceDrainsWithinWindow(t *testing.T) {
	s := stream.New(1)
	f := New("tail", s, Limits{}, &stubHeaders{})
	downstream := queue.New("down", queue.Outgoing, 0, 5)
	f.SetNext(&stubNext{target: downstream, accept: true})

	q := queue.New("out", queue.Outgoing, 0, 0)
	p := packet.NewDataPacket(3)
	p.Write([]byte("abc"))
	q.Put(p)

	f.OutgoingService(q, 100)
	assert.True(t, q.Empty())
	assert.Equal(t, 3, downstream.Count())
}

func TestOutgoingServiceSuspendsWhenWindowTooSmall(t *testing.T) {
	s := stream.New(1)
	f := New("tail", s, Limits{}, &stubHeaders{})
	downstream := queue.New("down", queue.Outgoing, 0, 100)
	f.SetNext(&stubNext{target: downstream, accept: true})

	q := queue.New("out", queue.Outgoing, 0, 0)
	p := packet.NewDataPacket(10)
	p.Write(make([]byte, 10))
	q.Put(p)

	f.OutgoingService(q, 0)
	require.False(t, q.Empty(), "packet should be put back when the window cannot absorb it")
	assert.True(t, q.Suspended())
}
