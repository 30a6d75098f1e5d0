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

// Package http2 实现 HTTP/2 (RFC 7540/7541) 的帧编解码 首部块装配/拆分 以及
// 基础的流量控制窗口记账 复用 hpack 包提供的静态/动态头部表
package http2

import (
	"encoding/binary"
	"fmt"
)

// FrameType 是 HTTP/2 帧类型 (RFC 7540 §6)
type FrameType uint8

const (
	FrameData         FrameType = 0x0
	FrameHeaders      FrameType = 0x1
	FramePriority     FrameType = 0x2
	FrameRSTStream    FrameType = 0x3
	FrameSettings     FrameType = 0x4
	FramePushPromise  FrameType = 0x5
	FramePing         FrameType = 0x6
	FrameGoAway       FrameType = 0x7
	FrameWindowUpdate FrameType = 0x8
	FrameContinuation FrameType = 0x9
)

// Flag 是帧标志位 语义依帧类型而定
type Flag uint8

const (
	FlagEndStream  Flag = 0x1
	FlagEndHeaders Flag = 0x4
	FlagPadded     Flag = 0x8
	FlagPriority   Flag = 0x20
	FlagAck        Flag = 0x1 // SETTINGS/PING 复用同一比特位
)

// FrameHeaderLen 是帧首部的固定字节数 (RFC 7540 §4.1)
const FrameHeaderLen = 9

// FrameHeader 是每一帧共有的 9 字节首部
type FrameHeader struct {
	Length   uint32 // 24 bit
	Type     FrameType
	Flags    Flag
	StreamID uint32 // 31 bit, 最高位保留
}

// EncodeHeader 把帧首部写入 dst (必须至少有 FrameHeaderLen 容量)
func EncodeHeader(dst []byte, h FrameHeader) {
	dst[0] = byte(h.Length >> 16)
	dst[1] = byte(h.Length >> 8)
	dst[2] = byte(h.Length)
	dst[3] = byte(h.Type)
	dst[4] = byte(h.Flags)
	binary.BigEndian.PutUint32(dst[5:9], h.StreamID&0x7fffffff)
}

// DecodeHeader 解析一段 9 字节的帧首部
func DecodeHeader(b []byte) (FrameHeader, error) {
	if len(b) < FrameHeaderLen {
		return FrameHeader{}, fmt.Errorf("http2: short frame header (%d bytes)", len(b))
	}
	return FrameHeader{
		Length:   uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2]),
		Type:     FrameType(b[3]),
		Flags:    Flag(b[4]),
		StreamID: binary.BigEndian.Uint32(b[5:9]) & 0x7fffffff,
	}, nil
}

// Has 判断 flags 中是否设置了 f
func (h FrameHeader) Has(f Flag) bool { return h.Flags&f != 0 }

// Frame 是一帧完整的数据: 首部 + 负载
type Frame struct {
	Header  FrameHeader
	Payload []byte
}

// Encode 把一个完整帧序列化为字节切片
func Encode(typ FrameType, flags Flag, streamID uint32, payload []byte) []byte {
	buf := make([]byte, FrameHeaderLen+len(payload))
	EncodeHeader(buf, FrameHeader{Length: uint32(len(payload)), Type: typ, Flags: flags, StreamID: streamID})
	copy(buf[FrameHeaderLen:], payload)
	return buf
}

// StripPadding 去除 DATA/HEADERS/PUSH_PROMISE 帧在 PADDED 标志下携带的填充
// 负载结构为: [Pad Length (1B)][数据][填充字节]
func StripPadding(payload []byte, padded bool) ([]byte, error) {
	if !padded {
		return payload, nil
	}
	if len(payload) == 0 {
		return nil, fmt.Errorf("http2: padded frame missing pad length")
	}
	padLen := int(payload[0])
	rest := payload[1:]
	if padLen > len(rest) {
		return nil, fmt.Errorf("http2: pad length %d exceeds payload", padLen)
	}
	return rest[:len(rest)-padLen], nil
}
