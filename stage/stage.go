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

// Package stage 定义请求管道中每个处理环节的统一接口与默认行为
//
// 一个 Stage 可以是 handler (管道终点 不再向下游转发) filter (中间环节)
// 或 connector (outgoing 侧的终点 与网络连接相连) Stage 本身不持有队列
// 队列由 pipeline 在装配阶段为每个 Stage 创建并注入
package stage

import (
	"github.com/packetd/httpcore/packet"
	"github.com/packetd/httpcore/queue"
)

// Kind 标识 Stage 在管道中的角色
type Kind uint8

const (
	KindFilter Kind = iota
	KindHandler
	KindConnector
)

// Decision 是 Match 的返回结果
type Decision uint8

const (
	Accept Decision = iota
	Omit
)

// Stage 是管道环节的统一接口 所有方法都有默认实现 具体实现按需覆盖
type Stage interface {
	Name() string
	Kind() Kind

	// Match 决定该 Stage 是否参与当前方向的处理
	Match(dir queue.Direction) Decision

	Open(q *queue.Queue)
	Start(q *queue.Queue)
	Ready(q *queue.Queue)
	Close(q *queue.Queue)

	// Incoming 处理一个上行 Packet 默认实现转发给下游或挂起等待
	Incoming(q *queue.Queue, p *packet.Packet)
	// Outgoing 处理一个下行 Packet 默认实现入队并调度 OutgoingService
	Outgoing(q *queue.Queue, p *packet.Packet)
	// OutgoingService 被调度器调用 以排空 outgoing 队列
	OutgoingService(q *queue.Queue)
}

// Next 是下游队列的解析器 由 pipeline 在装配时注入 便于默认实现转发数据
type Next interface {
	NextQueue(dir queue.Direction) *queue.Queue
	// WillAccept 判断 target 队列当前是否能接纳 p (用于 outgoing 默认排空逻辑)
	WillAccept(target *queue.Queue, p *packet.Packet) bool
	NotifyReadable()
	// Dispatch 把 p 交给下一个方向上的邻居 incoming 方向会同步驱动下一个 Stage
	// 处理该包 (而不只是入队等待调度) outgoing 方向语义等同于入队
	Dispatch(dir queue.Direction, p *packet.Packet)
}

// Base 提供 Stage 接口的默认(透传)实现 具体 Stage 通过嵌入 Base 只覆盖需要定制的方法
//
// 默认行为与原始实现一致: incoming 转发给下一个队列 outgoing 入队并在非 handler
// 或流已就绪时自动调度 outgoingService 按顺序排空到下一个队列
type Base struct {
	StageName string
	StageKind Kind
	Next      Next
	// StreamReady 在流达到 READY 状态前 handler 不应自动调度 outgoingService
	StreamReady func() bool
}

func (b *Base) Name() string { return b.StageName }
func (b *Base) Kind() Kind   { return b.StageKind }

// SetNext 注入下游解析器 由 pipeline 在装配阶段调用
func (b *Base) SetNext(n Next) { b.Next = n }

func (b *Base) Match(queue.Direction) Decision { return Accept }
func (b *Base) Open(*queue.Queue)              {}
func (b *Base) Start(*queue.Queue)             {}
func (b *Base) Ready(*queue.Queue)             {}
func (b *Base) Close(*queue.Queue)             {}

// Incoming 默认实现: 有下游则同步驱动下一个 Stage 处理 否则保留在本队列并通知可读
func (b *Base) Incoming(q *queue.Queue, p *packet.Packet) {
	if b.Next != nil {
		if next := b.Next.NextQueue(queue.Incoming); next != nil {
			b.Next.Dispatch(queue.Incoming, p)
			return
		}
	}
	q.Put(p)
	if b.Next != nil {
		b.Next.NotifyReadable()
	}
}

// Outgoing 默认实现: 入队并在允许时调度服务例程
func (b *Base) Outgoing(q *queue.Queue, p *packet.Packet) {
	q.Put(p)
	if b.StageKind == KindHandler && b.StreamReady != nil && !b.StreamReady() {
		return
	}
	b.OutgoingService(q)
}

// OutgoingService 默认实现: 排空到下一个队列 遇到拒绝则放回队首并停止
func (b *Base) OutgoingService(q *queue.Queue) {
	if b.Next == nil {
		return
	}
	next := b.Next.NextQueue(queue.Outgoing)
	if next == nil {
		return
	}
	for {
		p := q.Get()
		if p == nil {
			return
		}
		if !b.Next.WillAccept(next, p) {
			q.PutBack(p)
			return
		}
		next.Put(p)
	}
}
