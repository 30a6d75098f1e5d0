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
	"fmt"

	"github.com/packetd/httpcore/packet"
	"github.com/packetd/httpcore/queue"
	"github.com/packetd/httpcore/stage"
)

// Responder 是过滤器与响应状态交互所需的最小接口
type Responder interface {
	SetStatus(code int)
	SetHeader(name, value string)
	EntityLength() int64
}

// Filter 是 outgoing 侧的字节范围过滤器 Ranges 为空(未请求范围或范围无法满足)时数据包原样透传
type Filter struct {
	stage.Base

	Responder Responder
	Ranges    []Range // 请求到达顺序的原始范围 (可能含后缀/开放区间) Start 时归一化
	Boundary  string  // 多范围时的 multipart 边界 由调用方生成 (netconn 由连接四元组派生)

	current      int // Ranges 中下一个尚未完全发出的范围索引
	rangePos     int64
	multipart    bool
	boundaryDone bool // 当前 range 的 multipart 边界是否已写出
}

// NewFilter 创建一个范围过滤器 ranges 为 Parse 返回的原始区间 (支持后缀/开放区间) 归一化在 Start 时进行
func NewFilter(name string, r Responder, ranges []Range, boundary string) *Filter {
	return &Filter{
		Base:      stage.Base{StageName: name, StageKind: stage.KindFilter},
		Responder: r,
		Ranges:    ranges,
		Boundary:  boundary,
	}
}

// Start 在首次调度时按实体长度归一化范围 (spec §4.6) 设置 206 状态并(多范围时)准备 multipart 边界
//
// 若范围无法满足或实体长度未知 Normalize 返回错误 此时丢弃 Range 处理 降级为完整响应
func (f *Filter) Start(q *queue.Queue) {
	f.Responder.SetHeader("Accept-Ranges", "bytes")
	if len(f.Ranges) == 0 {
		return
	}
	normalized, err := Normalize(f.Ranges, f.Responder.EntityLength())
	if err != nil {
		f.Ranges = nil
		return
	}
	f.Ranges = normalized
	f.multipart = len(normalized) > 1
	f.Responder.SetStatus(206)
	f.current = 0
	f.boundaryDone = false
}

// OutgoingService 按照 selectBytes 的算法逐包裁剪数据 并在多范围场景下插入边界包
func (f *Filter) OutgoingService(q *queue.Queue) {
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
		if p.IsEnd() {
			if f.multipart {
				next.Put(f.finalBoundaryPacket())
			}
			next.Put(p)
			continue
		}
		if p.Flags&packet.FlagData != 0 {
			out := f.selectBytes(q, next, p)
			if out == nil {
				continue
			}
			if !f.Base.Next.WillAccept(next, out) {
				q.PutBack(out)
				return
			}
			next.Put(out)
			continue
		}
		next.Put(p)
	}
}

// selectBytes 对应原始实现 consumes/trims a single data packet against the current range cursor
//
// multipart 场景下 range 的首个数据片段之前需要插入一个 boundary+Content-Range 包
// 该 boundary 包直接写入 next (不经过 WillAccept 背压检查 与 finalBoundaryPacket 一致)
// 裁剪后的实际数据仍按正常路径通过 WillAccept 返回给调用方转发 绝不能被丢弃
func (f *Filter) selectBytes(q *queue.Queue, next *queue.Queue, p *packet.Packet) *packet.Packet {
	if len(f.Ranges) == 0 {
		return p
	}
	for f.current < len(f.Ranges) {
		r := f.Ranges[f.current]
		length := int64(p.Len())
		if length <= 0 {
			return nil
		}
		endPacket := f.rangePos + length

		switch {
		case endPacket < r.Start:
			f.rangePos += length
			return nil

		case f.rangePos < r.Start:
			gap := r.Start - f.rangePos
			if gap >= length {
				// 整个 Packet 都落在下一个 range 开始之前 没有数据可输出
				f.rangePos += length
				return nil
			}
			f.rangePos += gap
			trim := p.Split(int(gap))
			*p = *trim
			if f.rangePos >= r.End {
				f.current++
				continue
			}

		default:
			span := r.End - f.rangePos
			if span > length {
				span = length
			}
			if span <= 0 {
				return nil
			}
			if length > span {
				tail := p.Split(int(span))
				q.PutBack(tail)
			}
			if f.multipart && !f.boundaryDone {
				next.Put(f.rangePacket(r))
				f.boundaryDone = true
			}
			f.rangePos += span
			if f.rangePos >= r.End {
				f.current++
				f.boundaryDone = false
			}
			return p
		}
	}
	return nil
}

func (f *Filter) rangePacket(r Range) *packet.Packet {
	length := f.Responder.EntityLength()
	p := packet.NewDataPacket(128)
	p.Write([]byte(fmt.Sprintf("\r\n--%s\r\n", f.Boundary)))
	p.Write([]byte("Content-Range: " + ContentRange(r, length) + "\r\n\r\n"))
	return p
}

func (f *Filter) finalBoundaryPacket() *packet.Packet {
	p := packet.NewDataPacket(64)
	p.Write([]byte(fmt.Sprintf("\r\n--%s--\r\n", f.Boundary)))
	return p
}
