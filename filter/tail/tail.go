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

// Package tail 实现管道两端的边界过滤器: incoming 侧做表单体大小限制与 EOF 收尾
// outgoing 侧在首包前合成响应首部/替代体 并在下游无法吸收时挂起自身
package tail

import (
	"github.com/packetd/httpcore/httperror"
	"github.com/packetd/httpcore/packet"
	"github.com/packetd/httpcore/queue"
	"github.com/packetd/httpcore/stage"
	"github.com/packetd/httpcore/stream"
)

// HeaderWriter 在首个 outgoing 包到达时被调用一次 用于合成已编码的响应首部
type HeaderWriter interface {
	// WriteHeaders 返回编码后的首部 Packet 可能因过大被调用方再切分
	WriteHeaders() *packet.Packet
	AltBody() (body []byte, has bool)
}

// Limits 承载该流允许的请求体/响应体上限 0 表示不限
type Limits struct {
	RxFormSize int64
	TxBodySize int64
}

// Filter 是边界过滤器 一个实例同时挂在 incoming 与 outgoing 两侧
type Filter struct {
	stage.Base

	Stream  *stream.Stream
	Limits  Limits
	Headers HeaderWriter
	NetEOF  func() bool

	headersCreated bool
	bytesWritten   int64
	rxCount        int64
}

// New 创建一个边界过滤器
func New(name string, s *stream.Stream, limits Limits, headers HeaderWriter) *Filter {
	return &Filter{
		Base:    stage.Base{StageName: name, StageKind: stage.KindFilter},
		Stream:  s,
		Limits:  limits,
		Headers: headers,
	}
}

// Incoming 对应 incomingTail: 检测网络 EOF 落实到流 校验表单体大小上限
func (f *Filter) Incoming(q *queue.Queue, p *packet.Packet, onLimit func()) {
	if f.NetEOF != nil && f.NetEOF() && !f.Stream.EOF {
		f.Stream.SetEOF()
	}
	f.rxCount += int64(p.Len())
	if f.Limits.RxFormSize > 0 && f.rxCount >= f.Limits.RxFormSize {
		if onLimit != nil {
			onLimit()
		}
		return
	}
	if f.Base.Next != nil {
		if next := f.Base.Next.NextQueue(queue.Incoming); next != nil {
			f.Base.Next.Dispatch(queue.Incoming, p)
		}
	}
	if f.Stream.EOF {
		q.Put(packet.NewEndPacket())
	}
}

// Outgoing 对应 outgoingTail: 首包前合成首部(+替代体) 随后统计响应体大小
func (f *Filter) Outgoing(q *queue.Queue, p *packet.Packet, s *stream.Stream, r httperror.Responder, m httperror.Metrics) {
	if !f.headersCreated {
		f.headersCreated = true
		headers := f.Headers.WriteHeaders()
		maxSize := q.PacketSize
		for maxSize > 0 && headers.Len() > maxSize {
			tail := headers.Split(maxSize)
			q.Put(headers)
			headers = tail
		}
		q.Put(headers)
		if body, has := f.Headers.AltBody(); has {
			alt := packet.NewDataPacket(len(body))
			alt.Write(body)
			q.Put(alt)
		}
	}
	if p.Flags&packet.FlagData != 0 {
		f.bytesWritten += int64(p.Len())
		if f.Limits.TxBodySize > 0 && f.bytesWritten > f.Limits.TxBodySize {
			flags := 413
			if f.bytesWritten > 0 {
				flags |= int(httperror.ABORT)
			}
			httperror.Error(s, r, m, flags, "transmission exceeded max body of %d bytes", f.Limits.TxBodySize)
		}
	}
	q.Put(p)
}

// streamCanAbsorb 决定下游队列能否吸收 p 必要时原地收缩 p 并把尾部放回队列
//
// window 在 HTTP/2 下取自对端 WINDOW_UPDATE 的流量窗口 在 HTTP/1.x 下退化为 nextMax
func streamCanAbsorb(q *queue.Queue, p *packet.Packet, nextPacketSize, window int) bool {
	room := nextPacketSize
	if window < room {
		room = window
	}
	size := p.Len()
	if size <= room {
		return true
	}
	if room > 0 {
		tail := p.Split(room)
		q.PutBack(tail)
		if p.Len() > 0 {
			return true
		}
	}
	q.Suspend()
	return false
}

// OutgoingService 排空队列到网络 outputq 每个 Packet 先经过 streamCanAbsorb 校验
func (f *Filter) OutgoingService(q *queue.Queue, window int) {
	if f.Base.Next == nil {
		return
	}
	next := f.Base.Next.NextQueue(queue.Outgoing)
	if next == nil {
		return
	}
	for {
		p := q.Get()
		if p == nil {
			return
		}
		if !streamCanAbsorb(q, p, next.PacketSize, window) {
			q.PutBack(p)
			if !next.Suspended() {
				// caller schedules next via stage.Next contract
			}
			return
		}
		if !f.Base.Next.WillAccept(next, p) {
			q.PutBack(p)
			return
		}
		next.Put(p)
	}
}
