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

// Package stream 实现单条请求/响应生命周期的状态机
//
// 一个 Stream 对应 HTTP/1.x 连接上的一个请求 或 HTTP/2 连接上的一个流
// 多个 Stream 可以共享同一个底层网络连接 (HTTP/2 多路复用)
package stream

import (
	"net/http"
	"sync"
	"time"
)

// State 是 Stream 生命周期的阶段 严格单调递增 除非发生 Abort 直达 Complete
type State int

const (
	Begin State = iota
	Connected
	First   // 首行已读取
	Parsed  // 首部已解析完毕
	Content // 请求体正在接收
	Ready   // 应用层可以开始响应
	Running // 响应正在发送
	Finalized
	Complete
)

func (s State) String() string {
	switch s {
	case Begin:
		return "begin"
	case Connected:
		return "connected"
	case First:
		return "first"
	case Parsed:
		return "parsed"
	case Content:
		return "content"
	case Ready:
		return "ready"
	case Running:
		return "running"
	case Finalized:
		return "finalized"
	case Complete:
		return "complete"
	default:
		return "unknown"
	}
}

// Stream 是一个请求/响应生命周期的句柄
type Stream struct {
	mu sync.Mutex

	state State

	// Error 是首个落定的错误状态 一旦设置不会被覆盖(消息为空时除外)
	Error        bool
	ErrorMessage string
	ErrorStatus  int

	Disconnect bool
	EOF        bool

	KeepAliveCount int

	finalizedOutput    bool
	finalizedConnector bool

	// TraceID/SpanID 在请求携带 traceparent 首部时由 netconn 填充 纯管道逻辑永远不读取它们
	TraceID string
	SpanID  string

	startedAt time.Time

	// RoundTrip 由 handler 在写出响应时填充 供 exporter 读取
	RoundTrip *RoundTrip
}

// RoundTrip 是一次完整请求/响应交互的归档视图 仅供 exporter 统计/落盘使用
// 管道内部的任何判断都不应依赖它
type RoundTrip struct {
	Method     string
	Path       string
	Proto      string
	RemoteIP   string
	Status     int
	ReqHeader  http.Header
	RespHeader http.Header
	ReqBytes   int64
	RespBytes  int64
	StartedAt  time.Time
	Duration   time.Duration

	// TraceID/SpanID 来自请求的 traceparent 首部 缺失时为空 由 trace sinker 自行生成
	TraceID string
	SpanID  string
}

// New 创建一个处于 Begin 状态的 Stream KeepAliveCount 是该连接允许的剩余请求数
func New(keepAliveCount int) *Stream {
	return &Stream{state: Begin, KeepAliveCount: keepAliveCount, startedAt: time.Now()}
}

// StartedAt 返回该 Stream 的创建时间 用于计算请求耗时
func (s *Stream) StartedAt() time.Time { return s.startedAt }

// State 返回当前状态 并发安全
func (s *Stream) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Advance 将状态推进到 next 若 next 不大于当前状态则忽略 (状态机只能前进)
func (s *Stream) Advance(next State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if next > s.state && s.state != Complete {
		s.state = next
	}
}

// IsReady 返回流是否已达到 Ready 或之后的状态 用于 handler 判定是否可自动调度响应
func (s *Stream) IsReady() bool {
	return s.State() >= Ready
}

// Finalize 将响应两侧标记为已完结 一个 END Packet 应随后被投递到 outgoing tail
func (s *Stream) Finalize() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finalizedOutput = true
	s.finalizedConnector = true
	if s.state < Finalized {
		s.state = Finalized
	}
}

// Finalized 返回响应是否已标记完结
func (s *Stream) Finalized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finalizedOutput
}

// Abort 立即终止流: 清零 keep-alive 标记断开 并跳转到 Complete
// 对 HTTP/1.x 而言 一旦队列排空 断开应触发底层 socket 关闭
func (s *Stream) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.KeepAliveCount = 0
	s.Disconnect = true
	s.state = Complete
}

// SetError 记录流上的首个错误 后续调用只在消息为空时补充消息 不会覆盖已落定的状态
func (s *Stream) SetError(status int, message string) (first bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Error {
		if s.ErrorMessage == "" {
			s.ErrorMessage = message
		}
		return false
	}
	s.Error = true
	s.ErrorStatus = status
	s.ErrorMessage = message
	return true
}

// SetEOF 标记请求侧已读到末尾
func (s *Stream) SetEOF() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.EOF = true
}

// Aborted 返回流是否已被 Abort 终止
func (s *Stream) Aborted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Disconnect
}
