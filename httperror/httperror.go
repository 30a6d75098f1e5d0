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

// Package httperror 实现流级/网络级的错误落定与响应合成 (先到先得)
package httperror

import (
	"fmt"
	"html"
	"strings"

	"go.uber.org/zap"

	"github.com/packetd/httpcore/stream"
)

// Flag 是错误处置修饰位 与 HTTP 状态码一起传递
type Flag int

const (
	// ABORT 强制终止连接 不允许再写任何响应字节
	ABORT Flag = 1 << 16
	// CLOSE 排空当前响应后关闭连接 不复用 keep-alive
	CLOSE Flag = 1 << 17

	flagMask = ABORT | CLOSE
)

// Responder 是向客户端写回响应所需的最小接口 由 handler/connector 层实现
type Responder interface {
	HeadersSent() bool
	SetStatus(code int)
	SetHeader(name, value string)
	SetAltBody(body string)
	// Redirect 触发内部重新分派到 errorDocument 对应的 URI
	Redirect(uri string)
	AcceptsPlainText() bool
	ShowErrors() bool
	ErrorDocument(status int) (uri string, ok bool)
	CurrentURI() string
}

// Metrics 统计回调 由调用方按需接线 (prometheus counters 等)
type Metrics struct {
	IncErrors   func()
	IncNotFound func()
}

// Error 是流级错误落定入口 对应原始实现的 httpError
//
// 首个错误胜出: 后续调用只在消息为空时补充消息 绝不覆盖已记录的状态
func Error(s *stream.Stream, r Responder, m Metrics, flags int, format string, args ...any) {
	status := flags &^ int(flagMask)
	disposition := Flag(flags) & flagMask

	message := fmt.Sprintf(format, args...)
	first := s.SetError(status, message)

	if disposition&CLOSE != 0 || disposition&ABORT != 0 {
		s.SetEOF()
		s.KeepAliveCount = 0
	}
	if !first {
		return
	}

	if m.IncErrors != nil {
		m.IncErrors()
	}
	if status == 404 && m.IncNotFound != nil {
		m.IncNotFound()
	}

	if r == nil {
		return
	}
	r.SetHeader("Cache-Control", "no-cache")

	if r.HeadersSent() {
		s.Abort()
		return
	}
	r.SetStatus(status)

	if uri, ok := r.ErrorDocument(status); ok && uri != r.CurrentURI() {
		r.Redirect(uri)
		s.Finalize()
		return
	}

	if r.AcceptsPlainText() {
		r.SetAltBody(message + "\n")
	} else {
		r.SetAltBody(htmlErrorPage(status, message, r.ShowErrors()))
	}
	s.Finalize()

	if disposition&ABORT != 0 {
		s.Abort()
	}
}

// BadRequest 是 400 BAD_REQUEST 的便捷封装
func BadRequest(s *stream.Stream, r Responder, m Metrics, format string, args ...any) {
	Error(s, r, m, 400, format, args...)
}

// Limit 是触发容量限制时的便捷封装 总是附带 CLOSE 修饰位
func Limit(s *stream.Stream, r Responder, m Metrics, status int, format string, args ...any) {
	Error(s, r, m, status|int(CLOSE), format, args...)
}

// Memory 是内存分配失败时的便捷封装 始终 ABORT
func Memory(s *stream.Stream, r Responder, m Metrics) {
	Error(s, r, m, 500|int(ABORT), "memory allocation failure")
}

// NetResponder 聚合一条网络连接上所有存活 Stream 的错误落定目标
type NetResponder interface {
	LiveStreams() []*stream.Stream
	Responder(s *stream.Stream) Responder
	SendGoAway(code int)
	Close()
}

// NetError 是网络级错误 一次性短路该连接上的全部存活流 HTTP/2 连接额外发送 GOAWAY
func NetError(n NetResponder, m Metrics, log *zap.Logger, format string, args ...any) {
	message := fmt.Sprintf(format, args...)
	if log != nil {
		log.Warn("network error", zap.String("message", message))
	}
	for _, s := range n.LiveStreams() {
		Error(s, n.Responder(s), m, 500|int(ABORT), "%s", message)
	}
	n.SendGoAway(internalErrorCode)
	n.Close()
}

const internalErrorCode = 0x2 // HTTP/2 INTERNAL_ERROR

func htmlErrorPage(status int, message string, showErrors bool) string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html><html><head><title>Error</title></head><body>\n")
	fmt.Fprintf(&b, "<h1>Error %d</h1>\n", status)
	if showErrors {
		b.WriteString("<p>")
		b.WriteString(html.EscapeString(message))
		b.WriteString("</p>\n")
	}
	b.WriteString("</body></html>\n")
	return b.String()
}
