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

// Package queue 实现管道中每个 Stage 两侧 (incoming/outgoing) 持有的 Packet 队列
package queue

import (
	"github.com/packetd/httpcore/packet"
)

// Direction 标识队列方向
type Direction uint8

const (
	Incoming Direction = iota
	Outgoing
)

// Queue 是一个有界的 Packet FIFO 队列
//
// 队列本身不做 I/O 只负责容量记账与挂起(suspend)状态的维护 真正的生产/消费
// 由持有队列的 Stage 驱动 挂起语义与上游 tailFilter 的 streamCanAbsorb 一致:
// 当下游无法继续吸收数据时 队列被挂起 上游停止投递 直至被重新调度
type Queue struct {
	Dir  Direction
	Name string

	// Max 是队列允许积压的最大字节数 超过后应挂起上游 0 表示不限
	Max int
	// PacketSize 是单次向下游投递的建议分片大小 filter/tail 据此切分数据包
	PacketSize int

	first, last *Packet
	count       int
	suspended   bool
}

// Packet 是队列内部链表节点 对外暴露以便迭代而不拷贝
type Packet = packet.Packet

// New 创建一个队列
func New(name string, dir Direction, max, packetSize int) *Queue {
	return &Queue{Name: name, Dir: dir, Max: max, PacketSize: packetSize}
}

// Count 返回当前排队的数据字节数 (不含 Prefix)
func (q *Queue) Count() int { return q.count }

// Empty 返回队列是否为空
func (q *Queue) Empty() bool { return q.first == nil }

// First 返回队首 Packet 不出队
func (q *Queue) First() *Packet { return q.first }

// Suspended 返回队列是否处于挂起状态
func (q *Queue) Suspended() bool { return q.suspended }

// Suspend 挂起队列 上游应暂停向此队列投递
func (q *Queue) Suspend() { q.suspended = true }

// Resume 解除挂起
func (q *Queue) Resume() { q.suspended = false }

// Room 返回队列在不超过 Max 前提下还能吸收的字节数 Max<=0 表示不限
func (q *Queue) Room() int {
	if q.Max <= 0 {
		return 1 << 30
	}
	room := q.Max - q.count
	if room < 0 {
		return 0
	}
	return room
}

// Put 将 p 追加到队尾
func (q *Queue) Put(p *Packet) {
	p.SetNext(nil)
	if q.last == nil {
		q.first, q.last = p, p
	} else {
		q.last.SetNext(p)
		q.last = p
	}
	q.count += p.Len()
}

// PutBack 将 p 重新放回队首 用于下游暂不能吸收时的回退
func (q *Queue) PutBack(p *Packet) {
	p.SetNext(q.first)
	if q.first == nil {
		q.last = p
	}
	q.first = p
	q.count += p.Len()
}

// Get 从队首取出一个 Packet 队列为空时返回 nil
func (q *Queue) Get() *Packet {
	p := q.first
	if p == nil {
		return nil
	}
	q.first = p.Next()
	if q.first == nil {
		q.last = nil
	}
	p.SetNext(nil)
	q.count -= p.Len()
	return p
}

// Discard 丢弃队列中全部待处理数据 dataOnly 为 true 时仅丢弃 Data 类型 Packet
func (q *Queue) Discard(dataOnly bool) {
	var keep *Packet
	var keepTail *Packet
	for p := q.Get(); p != nil; p = q.Get() {
		if dataOnly && !p.IsEndOrHeader() {
			continue
		}
		if keep == nil {
			keep, keepTail = p, p
		} else {
			keepTail.SetNext(p)
			keepTail = p
		}
	}
	q.first, q.last = keep, keepTail
	q.count = 0
	for p := q.first; p != nil; p = p.Next() {
		q.count += p.Len()
	}
}
