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

// Package connector 实现管道终端 outgoing 侧的网络连接器: 使用单次 scatter/gather
// 写入把排队的 Packet 尽可能合并成一次系统调用 支持部分写入续传
package connector

import (
	"errors"
	"io"
	"net"
	"syscall"

	"github.com/packetd/httpcore/packet"
	"github.com/packetd/httpcore/queue"
	"github.com/packetd/httpcore/stage"
)

// maxVector 对应原始实现的 HTTP_MAX_IOVEC 预留两个槽位给安全边界
const maxVector = 64

// Conn 是连接器所需的最小网络写接口
type Conn interface {
	Write(b net.Buffers) (int64, error)
}

// Hooks 聚合连接器在完结/阻塞/出错/断开时需要回调上层的动作
type Hooks struct {
	OnBlocked    func()
	OnError      func(err error)
	OnDisconnect func()
	OnFinalize   func()
	OnWritable   func()
}

// Connector 是管道终端的 outgoing 连接器 stage
type Connector struct {
	stage.Base

	Conn  Conn
	Hooks Hooks

	vector   []item
	pending  []*packet.Packet // 与 vector 条目一一对应的源 Packet 便于 freeNetPackets 记账
}

type item struct {
	fromPrefix bool
	len        int
}

// New 创建一个网络连接器
func New(name string, conn Conn, hooks Hooks) *Connector {
	return &Connector{
		Base:  stage.Base{StageName: name, StageKind: stage.KindConnector},
		Conn:  conn,
		Hooks: hooks,
	}
}

// OutgoingService 驱动一次(或多次,直至阻塞/完结)向 socket 的矢量写入
func (c *Connector) OutgoingService(q *queue.Queue) {
	for !q.Empty() || len(c.vector) > 0 {
		if len(c.vector) == 0 {
			if !c.buildVector(q) {
				break
			}
		}
		buffers, srcs := c.materialize(q)
		n, err := c.Conn.Write(buffers)
		if n > 0 {
			c.freePackets(q, n, srcs)
			c.adjustVector(n)
		}
		if err != nil {
			c.handleWriteError(err)
			return
		}
		if n == 0 {
			break
		}
	}
	if p := q.First(); p != nil && p.IsEnd() {
		if c.Hooks.OnFinalize != nil {
			c.Hooks.OnFinalize()
		}
		return
	}
	if c.Hooks.OnWritable != nil {
		c.Hooks.OnWritable()
	}
}

// buildVector 对应 buildNetVec: 按顺序把 Packet 的 Prefix/Content 摊平进矢量 直到 END 或容量耗尽
func (c *Connector) buildVector(q *queue.Queue) bool {
	count := 0
	for p := q.First(); p != nil && !p.IsEnd(); p = p.Next() {
		if len(c.vector) >= maxVector-2 {
			break
		}
		if p.PrefixLen() == 0 && p.Len() == 0 {
			continue // 中间空包直接跳过 (原实现在此处从链表摘除)
		}
		if p.PrefixLen() > 0 {
			c.vector = append(c.vector, item{fromPrefix: true, len: p.PrefixLen()})
			c.pending = append(c.pending, p)
			count += p.PrefixLen()
		}
		if p.Len() > 0 {
			c.vector = append(c.vector, item{len: p.Len()})
			c.pending = append(c.pending, p)
			count += p.Len()
		}
		if p.IsSolo() {
			break
		}
	}
	return count > 0
}

func (c *Connector) materialize(q *queue.Queue) (net.Buffers, []*packet.Packet) {
	bufs := make(net.Buffers, 0, len(c.vector))
	for i, it := range c.vector {
		p := c.pending[i]
		if it.fromPrefix {
			bufs = append(bufs, p.Prefix.Bytes())
		} else {
			bufs = append(bufs, p.Bytes())
		}
	}
	return bufs, c.pending
}

// freePackets 对应 freeNetPackets: 先消耗 Prefix 再消耗 Content 绝不消耗 END 包
func (c *Connector) freePackets(q *queue.Queue, written int64, srcs []*packet.Packet) {
	remaining := written
	for remaining > 0 {
		p := q.First()
		if p == nil || p.IsEnd() {
			break
		}
		if p.PrefixLen() > 0 {
			n := int64(p.PrefixLen())
			if n > remaining {
				n = remaining
			}
			p.Prefix.Next(int(n))
			remaining -= n
		}
		if remaining > 0 && p.Len() > 0 {
			n := int64(p.Len())
			if n > remaining {
				n = remaining
			}
			p.Content.Next(int(n))
			remaining -= n
		}
		if p.PrefixLen() == 0 && p.Len() == 0 {
			q.Get()
		} else {
			break
		}
	}
}

// adjustVector 对应 adjustNetVec: 清除已写完的条目 对部分写入的首个条目做偏移
func (c *Connector) adjustVector(written int64) {
	total := int64(0)
	for _, it := range c.vector {
		total += int64(it.len)
	}
	if written == total {
		c.vector = c.vector[:0]
		c.pending = c.pending[:0]
		return
	}
	i := 0
	for ; i < len(c.vector); i++ {
		l := int64(c.vector[i].len)
		if written < l {
			c.vector[i].len = int(l - written)
			break
		}
		written -= l
	}
	c.vector = c.vector[i:]
	c.pending = c.pending[i:]
}

func (c *Connector) handleWriteError(err error) {
	if errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EWOULDBLOCK) {
		if c.Hooks.OnBlocked != nil {
			c.Hooks.OnBlocked()
		}
		return
	}
	if errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ENOTCONN) || errors.Is(err, io.EOF) {
		if c.Hooks.OnDisconnect != nil {
			c.Hooks.OnDisconnect()
		}
	} else if c.Hooks.OnError != nil {
		c.Hooks.OnError(err)
	}
	if c.Hooks.OnFinalize != nil {
		c.Hooks.OnFinalize()
	}
}
