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

package http2

import (
	"encoding/binary"
	"fmt"
)

// DefaultWindowSize 是 RFC 7540 §6.9.2 规定的初始流量控制窗口
const DefaultWindowSize = 65535

// FlowWindow 跟踪一个流(或整条连接)的发送方流量控制窗口
//
// 窗口随本端写出的 DATA 字节数递减 随对端发来的 WINDOW_UPDATE 帧递增 下游
// stage (tail filter) 在决定单次最多能吸收多少字节时读取 Available()
type FlowWindow struct {
	size int64
}

// NewFlowWindow 创建一个初始窗口
func NewFlowWindow(initial int64) *FlowWindow {
	return &FlowWindow{size: initial}
}

// Available 返回当前可发送的字节数 可能为负 (对端通过 SETTINGS 缩小了初始窗口)
func (w *FlowWindow) Available() int64 { return w.size }

// Consume 在写出 n 字节 DATA 后扣减窗口
func (w *FlowWindow) Consume(n int64) { w.size -= n }

// Increase 处理一次 WINDOW_UPDATE 自增 overflow 时返回 error (FLOW_CONTROL_ERROR)
func (w *FlowWindow) Increase(n uint32) error {
	if n == 0 {
		return fmt.Errorf("http2: zero-length window update increment")
	}
	next := w.size + int64(n)
	if next > (1<<31 - 1) {
		return fmt.Errorf("http2: window update overflow")
	}
	w.size = next
	return nil
}

// EncodeWindowUpdate 编码一个 WINDOW_UPDATE 帧负载
func EncodeWindowUpdate(increment uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, increment&0x7fffffff)
	return b
}

// DecodeWindowUpdate 解析 WINDOW_UPDATE 帧负载
func DecodeWindowUpdate(payload []byte) (uint32, error) {
	if len(payload) != 4 {
		return 0, fmt.Errorf("http2: malformed WINDOW_UPDATE frame")
	}
	return binary.BigEndian.Uint32(payload) & 0x7fffffff, nil
}

// SettingID 是 SETTINGS 帧中的参数标识 (RFC 7540 §6.5.2)
type SettingID uint16

const (
	SettingHeaderTableSize      SettingID = 0x1
	SettingEnablePush           SettingID = 0x2
	SettingMaxConcurrentStreams SettingID = 0x3
	SettingInitialWindowSize    SettingID = 0x4
	SettingMaxFrameSize         SettingID = 0x5
	SettingMaxHeaderListSize    SettingID = 0x6
)

// Setting 是一条 SETTINGS 参数
type Setting struct {
	ID    SettingID
	Value uint32
}

// EncodeSettings 编码一组 SETTINGS 参数为帧负载 (每条 6 字节)
func EncodeSettings(settings []Setting) []byte {
	buf := make([]byte, 6*len(settings))
	for i, s := range settings {
		binary.BigEndian.PutUint16(buf[i*6:], uint16(s.ID))
		binary.BigEndian.PutUint32(buf[i*6+2:], s.Value)
	}
	return buf
}

// DecodeSettings 解析 SETTINGS 帧负载 长度必须是 6 的倍数
func DecodeSettings(payload []byte) ([]Setting, error) {
	if len(payload)%6 != 0 {
		return nil, fmt.Errorf("http2: malformed SETTINGS frame (length %d)", len(payload))
	}
	settings := make([]Setting, 0, len(payload)/6)
	for i := 0; i < len(payload); i += 6 {
		settings = append(settings, Setting{
			ID:    SettingID(binary.BigEndian.Uint16(payload[i:])),
			Value: binary.BigEndian.Uint32(payload[i+2:]),
		})
	}
	return settings, nil
}
