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

// Package handler 是管道的终点 Stage: 把已重组完成的请求交给应用层 Handler
// 并把 Handler 产出的响应重新切成 Packet 送入 outgoing 方向
package handler

import (
	"net/http"
	"time"

	"github.com/packetd/httpcore/auth"
	"github.com/packetd/httpcore/httperror"
	"github.com/packetd/httpcore/packet"
	"github.com/packetd/httpcore/queue"
	"github.com/packetd/httpcore/session"
	"github.com/packetd/httpcore/stage"
	"github.com/packetd/httpcore/stream"
)

// Responder 是 Handler 产出的状态码/首部落到具体协议 (HTTP/1.x 状态行 HTTP/2 :status
// 伪首部) 之前所经过的中间状态 由 netconn 按连接协议实现
type Responder interface {
	SetStatus(code int)
	SetHeader(name, value string)
	EntityLength() int64
}

// Request 是交给应用层 Handler 的已重组请求
type Request struct {
	Method   string
	Path     string
	Query    string
	Proto    string // "HTTP/1.1" 或 "HTTP/2"
	Header   http.Header
	Body     []byte
	Session  *session.Session
	User     *auth.User
	RemoteIP string
}

// Response 是应用层 Handler 的产出 由 Handler Stage 负责切片并写入 outgoing 队列
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Func 是应用层处理函数的签名 与 net/http.HandlerFunc 的角色相当
type Func func(req *Request) *Response

// Stage 是管道的终点 它不再向下游转发 而是调用 Fn 产出响应 写回 outgoing 队列
//
// 对应原始实现中 handler 永远是 stage 链的最后一环 incoming 到达此处即意味着
// 请求已重组完毕 outgoing 从此处开始逆向流向 connector
type Stage struct {
	stage.Base

	Fn        Func
	Stream    *stream.Stream
	Errors    httperror.Responder
	Response  Responder
	Metrics   httperror.Metrics

	req Request
}

// New 创建一个 handler Stage 绑定到具体的 Stream 与应用处理函数
func New(name string, s *stream.Stream, fn Func, errs httperror.Responder, resp Responder, m httperror.Metrics) *Stage {
	h := &Stage{Fn: fn, Stream: s, Errors: errs, Response: resp, Metrics: m}
	h.StageName = name
	h.StageKind = stage.KindHandler
	h.StreamReady = s.IsReady
	return h
}

// BindRequest 由上游 Stage (通常是首部解析阶段) 填充请求元信息
func (h *Stage) BindRequest(req Request) { h.req = req }

// Incoming 请求体数据到达终点: 累积进 Body 直至 End 包出现 随后调用 Fn 并把
// 响应写入自身的 outgoing 队列
func (h *Stage) Incoming(q *queue.Queue, p *packet.Packet) {
	if !p.IsEnd() {
		h.req.Body = append(h.req.Body, p.Bytes()...)
		return
	}
	h.Stream.Advance(stream.Ready)

	resp := h.Fn(&h.req)
	if resp == nil {
		httperror.Error(h.Stream, h.Errors, h.Metrics, 0, "handler produced no response")
		return
	}
	h.Stream.Advance(stream.Running)
	h.writeResponse(q, resp)
}

// writeResponse 只把状态码/首部灌入 Response(供 tail 的 HeaderWriter 读取) 并把
// 正文切成 Packet 送入 outgoing 方向 状态行/首部的协议编码留给 tail 在首包前合成
func (h *Stage) writeResponse(q *queue.Queue, resp *Response) {
	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	h.Response.SetStatus(status)
	for name, values := range resp.Header {
		for _, v := range values {
			h.Response.SetHeader(name, v)
		}
	}

	if len(resp.Body) > 0 {
		bp := packet.NewDataPacket(len(resp.Body))
		bp.Write(resp.Body)
		h.Outgoing(q, bp)
	}
	h.Outgoing(q, packet.NewEndPacket())

	h.Stream.RoundTrip = &stream.RoundTrip{
		Method:     h.req.Method,
		Path:       h.req.Path,
		Proto:      h.req.Proto,
		RemoteIP:   h.req.RemoteIP,
		Status:     status,
		ReqHeader:  h.req.Header,
		RespHeader: resp.Header,
		ReqBytes:   int64(len(h.req.Body)),
		RespBytes:  int64(len(resp.Body)),
		StartedAt:  h.Stream.StartedAt(),
		Duration:   time.Since(h.Stream.StartedAt()),
		TraceID:    h.Stream.TraceID,
		SpanID:     h.Stream.SpanID,
	}
	h.Stream.Finalize()
}
