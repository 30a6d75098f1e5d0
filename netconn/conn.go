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

// Package netconn 把 packet/queue/stage/pipeline/filter/connector 等抽象的管道
// 组件接到一个真实的 net.Listener 上: 负责 accept 循环 HTTP/1.x 与 HTTP/2 的协议
// 识别 请求/流的重组 以及把每条连接标识为 socket.Tuple 供日志与指标使用
//
// 这里取代了原始实现中被动抓包重组 (connstream) 的角色 —— 同样的"流"概念 但驱动源
// 从离线/镜像的数据包流变成了一个真正 accept() 出来的双工 socket
package netconn

import (
	"bytes"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"github.com/packetd/httpcore/auth"
	"github.com/packetd/httpcore/common/socket"
	"github.com/packetd/httpcore/connector"
	"github.com/packetd/httpcore/exporter"
	"github.com/packetd/httpcore/filter/byterange"
	"github.com/packetd/httpcore/filter/tail"
	"github.com/packetd/httpcore/handler"
	"github.com/packetd/httpcore/http1"
	"github.com/packetd/httpcore/httperror"
	"github.com/packetd/httpcore/logger"
	"github.com/packetd/httpcore/packet"
	"github.com/packetd/httpcore/pipeline"
	"github.com/packetd/httpcore/queue"
	"github.com/packetd/httpcore/internal/rescue"
	"github.com/packetd/httpcore/internal/tracekit"
	"github.com/packetd/httpcore/session"
	"github.com/packetd/httpcore/stream"
)

const http2Preface = "PRI * HTTP/2.0\r\n\r\nSM\r\n\r\n"

// Config 汇总一条连接在各组件上需要的行为参数
type Config struct {
	PipelineName string `config:"pipelineName"` // 传给 pipeline.Pipeline.Build 的管道名 默认 "http1"

	MaxQueueBytes int `config:"maxQueueBytes"` // 每个 Stage 两侧队列的最大积压字节数
	PacketSize    int `config:"packetSize"`    // 向下游投递的建议分片大小

	RxFormSize int64 `config:"rxFormSize"` // 请求体大小上限 0 表示不限
	TxBodySize int64 `config:"txBodySize"` // 响应体大小上限 0 表示不限

	ReadTimeout       time.Duration `config:"readTimeout"`
	WriteTimeout      time.Duration `config:"writeTimeout"`
	IdleTimeout       time.Duration `config:"idleTimeout"`
	KeepAliveRequests int           `config:"keepAliveRequests"` // 单连接允许的最大请求数 <=0 时取默认值 100

	// ErrorDocuments 由嵌入方在代码中设置 状态码到自定义错误页路径的映射 不参与配置反序列化
	ErrorDocuments map[int]string
	ShowErrors     bool `config:"showErrors"`
}

func (c Config) withDefaults() Config {
	if c.PipelineName == "" {
		c.PipelineName = "http1"
	}
	if c.MaxQueueBytes <= 0 {
		c.MaxQueueBytes = 1 << 20
	}
	if c.PacketSize <= 0 {
		c.PacketSize = 16 << 10
	}
	if c.KeepAliveRequests <= 0 {
		c.KeepAliveRequests = 100
	}
	return c
}

// Server 驱动一组监听器上的连接 把每条连接重组为请求并分派给应用层 Handler
type Server struct {
	cfg      Config
	pl       *pipeline.Pipeline
	registry *pipeline.Registry
	fn       handler.Func
	sessions *session.Manager
	auth     *auth.Auth
	metrics  httperror.Metrics
	exp      *exporter.Exporter

	activeConns int64
}

// NewServer 创建一个连接驱动器 pl/registry 通常分别来自 pipeline.New(conf) 与
// NewRegistry() sessions/au 为 nil 时分别跳过会话与鉴权 exp 为 nil 时跳过导出
func NewServer(cfg Config, pl *pipeline.Pipeline, registry *pipeline.Registry, fn handler.Func, sessions *session.Manager, au *auth.Auth, m httperror.Metrics, exp *exporter.Exporter) *Server {
	return &Server{cfg: cfg.withDefaults(), pl: pl, registry: registry, fn: fn, sessions: sessions, auth: au, metrics: m, exp: exp}
}

// ActiveConnections 返回当前仍在处理中的连接数 供 admin.HealthReporter 使用
func (s *Server) ActiveConnections() int64 {
	return atomic.LoadInt64(&s.activeConns)
}

// Serve 在 ln 上循环 accept 每条连接派发到独立的 goroutine 处理
func (s *Server) Serve(ln net.Listener) error {
	for {
		c, err := ln.Accept()
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return err
		}
		tuple := tupleFromConn(c)
		go s.handleConn(c, tuple)
	}
}

func tupleFromConn(c net.Conn) socket.Tuple {
	var t socket.Tuple
	if tcp, ok := c.RemoteAddr().(*net.TCPAddr); ok {
		t.SrcIP = socket.ToIPV4(tcp.IP)
		if tcp.IP.To4() == nil {
			t.SrcIP = socket.ToIPV6(tcp.IP)
		}
		t.SrcPort = socket.Port(tcp.Port)
	}
	if tcp, ok := c.LocalAddr().(*net.TCPAddr); ok {
		t.DstIP = socket.ToIPV4(tcp.IP)
		if tcp.IP.To4() == nil {
			t.DstIP = socket.ToIPV6(tcp.IP)
		}
		t.DstPort = socket.Port(tcp.Port)
	}
	return t
}

func (s *Server) handleConn(c net.Conn, tuple socket.Tuple) {
	defer rescue.HandleCrash()
	atomic.AddInt64(&s.activeConns, 1)
	defer atomic.AddInt64(&s.activeConns, -1)
	defer c.Close()

	reader := bufReader{c: c, buf: make([]byte, 0, 4096), tmp: make([]byte, 16<<10)}

	// ALPN/h2c 先知: TLS 连接看 NegotiatedProtocol 明文连接看客户端是否直接发送
	// HTTP/2 连接前言 两者都不满足则走 HTTP/1.x
	if ts, ok := c.(*tls.Conn); ok {
		if err := ts.Handshake(); err != nil {
			logger.Debugf("%s: tls handshake failed: %v", tuple, err)
			return
		}
		if ts.ConnectionState().NegotiatedProtocol == "h2" {
			s.serveHTTP2(c, tuple, &reader)
			return
		}
	} else if reader.peekPreface() {
		s.serveHTTP2(c, tuple, &reader)
		return
	}

	s.serveHTTP1(c, tuple, &reader)
}

// bufReader 是一个极简的、可回退的读缓冲 供请求行解析与 HTTP/2 前言探测共用
type bufReader struct {
	c   net.Conn
	buf []byte
	tmp []byte
}

func (r *bufReader) fill() error {
	n, err := r.c.Read(r.tmp)
	if n > 0 {
		r.buf = append(r.buf, r.tmp[:n]...)
	}
	return err
}

func (r *bufReader) peekPreface() bool {
	for len(r.buf) < len(http2Preface) {
		if err := r.fill(); err != nil {
			return bytes.HasPrefix(r.buf, []byte(http2Preface))
		}
	}
	return bytes.HasPrefix(r.buf, []byte(http2Preface))
}

func (r *bufReader) consume(n int) { r.buf = r.buf[n:] }

// readN 确保缓冲区至少有 n 字节 不足则持续从 socket 读取
func (r *bufReader) readN(n int) ([]byte, error) {
	for len(r.buf) < n {
		if err := r.fill(); err != nil {
			return nil, err
		}
	}
	out := r.buf[:n]
	r.buf = r.buf[n:]
	return out, nil
}

func (s *Server) serveHTTP1(c net.Conn, tuple socket.Tuple, reader *bufReader) {
	netWriter := connWriter{c: c}
	kept := 0

	for {
		if s.cfg.IdleTimeout > 0 {
			c.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))
		}

		req, consumed, err := s.readHeaders(reader)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.Debugf("%s: failed to read request: %v", tuple, err)
			}
			return
		}
		reader.consume(consumed)

		st := stream.New(s.cfg.KeepAliveRequests - kept)
		st.Advance(stream.Connected)

		keepAlive := !req.Close && kept+1 < s.cfg.KeepAliveRequests
		closeAfter := !s.dispatchHTTP1(c, tuple, reader, req, st, netWriter, !keepAlive)
		kept++
		if closeAfter || req.Close {
			return
		}
	}
}

func (s *Server) readHeaders(reader *bufReader) (*http1.Request, int, error) {
	for {
		req, consumed, err := http1.ParseRequest(reader.buf)
		if err == nil {
			return req, consumed, nil
		}
		if !errors.Is(err, http1.ErrIncomplete) {
			return nil, 0, err
		}
		if ferr := reader.fill(); ferr != nil {
			return nil, 0, ferr
		}
	}
}

// dispatchHTTP1 重组一次完整请求/响应 返回值表示连接是否应当保持存活
func (s *Server) dispatchHTTP1(c net.Conn, tuple socket.Tuple, reader *bufReader, req *http1.Request, st *stream.Stream, nc connWriter, forceClose bool) bool {
	st.Advance(stream.First)
	st.Advance(stream.Parsed)

	resp := newResponse(req.Proto, s.cfg.ErrorDocuments, s.cfg.ShowErrors)
	if forceClose {
		resp.SetHeader("Connection", "close")
	} else {
		resp.SetHeader("Connection", "keep-alive")
	}

	hreq := &handler.Request{
		Method:   req.Method,
		Path:     req.Path,
		Query:    req.Query,
		Proto:    req.Proto,
		Header:   req.Header,
		RemoteIP: tuple.SrcIP.String(),
	}
	if tc, ok := tracekit.TraceIDFromHTTPHeader(req.Header); ok {
		st.TraceID = tc.TraceID.String()
		st.SpanID = tc.SpanID.String()
	}

	if s.sessions != nil {
		sess, _ := s.sessions.Resolve(nil, req.Header["Cookie"])
		if sess == nil {
			sess, _ = s.sessions.Create(uintptr(0), uintptr(0))
		}
		if sess != nil {
			hreq.Session = sess
			resp.SetHeader("Set-Cookie", sess.SetCookieHeader())
		}
	}
	if s.auth != nil {
		if user, pass, ok := auth.ParseBasic(req.Header.Get("Authorization")); ok {
			if u, found := s.auth.LookupUser(user); found && auth.Verify(u.Password, pass) {
				hreq.User = u
			}
		}
	}

	var ranges []byterange.Range
	var boundary string
	if rh := req.Header.Get("Range"); rh != "" {
		ranges = byterange.Parse(rh)
		boundary = rangeBoundary(tuple, st)
	}

	ctx := &stageContext{Stream: st, Fn: s.fn, Errors: resp, Response: resp, Metrics: s.metrics, Ranges: ranges, Boundary: boundary}
	chain, err := s.pl.Build(s.cfg.PipelineName, s.cfg.MaxQueueBytes, s.cfg.PacketSize, ctx)
	if err != nil {
		httperror.Error(st, resp, s.metrics, 500, "failed to build pipeline: %v", err)
		s.writeErrorOnly(c, resp)
		return false
	}
	bindRequest(chain, hreq)

	tailFilter := tail.New("tail", st, tail.Limits{RxFormSize: s.cfg.RxFormSize, TxBodySize: s.cfg.TxBodySize}, resp)
	netQ := queue.New("net/out", queue.Outgoing, s.cfg.MaxQueueBytes, s.cfg.PacketSize)
	tailOutQ := queue.New("tail/out", queue.Outgoing, s.cfg.MaxQueueBytes, s.cfg.PacketSize)
	tailInQ := queue.New("tail/in", queue.Incoming, s.cfg.MaxQueueBytes, s.cfg.PacketSize)
	glue := &tailGlue{chain: chain, netQ: netQ}
	tailFilter.SetNext(glue)

	conn := connector.New("connector", nc, connector.Hooks{})

	st.Advance(stream.Content)
	if err := s.streamBody(reader, c, req, tailFilter, tailInQ, st); err != nil {
		httperror.Error(st, resp, s.metrics, 400, "failed to read request body: %v", err)
	}

	for {
		p := chain.OutgoingQueue(0).Get()
		if p == nil {
			break
		}
		tailFilter.Outgoing(tailOutQ, p, st, resp, s.metrics)
	}
	tailFilter.OutgoingService(tailOutQ, s.cfg.PacketSize)

	if s.cfg.WriteTimeout > 0 {
		c.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	}
	conn.OutgoingService(netQ)

	if s.exp != nil && st.RoundTrip != nil {
		s.exp.Export(st.RoundTrip)
	}

	return !forceClose && !st.Aborted() && !hasConnectionClose(resp.header.Get("Connection"))
}

// bindRequest 把已重组好的请求交给 chain 内 handler Stage 的 BindRequest
func bindRequest(chain *pipeline.Chain, req *handler.Request) {
	for _, s := range chain.Stages() {
		if h, ok := s.(*handler.Stage); ok {
			h.BindRequest(*req)
			return
		}
	}
}

// streamBody 按 Content-Length/chunked 把请求体逐块送入 tail 的 incoming 通道
func (s *Server) streamBody(reader *bufReader, c net.Conn, req *http1.Request, tailFilter *tail.Filter, q *queue.Queue, st *stream.Stream) error {
	switch {
	case req.Chunked:
		dec := http1.NewChunkDecoder()
		for {
			if len(reader.buf) == 0 {
				if err := reader.fill(); err != nil {
					return err
				}
			}
			data, done, err := dec.Feed(reader.buf)
			reader.buf = reader.buf[:0]
			if err != nil {
				return err
			}
			if len(data) > 0 {
				p := packet.NewDataPacket(len(data))
				p.Write(data)
				tailFilter.Incoming(q, p, func() { httperror.Limit(st, nil, s.metrics, 413, "request body too large") })
			}
			if done {
				break
			}
		}
	case req.Length > 0:
		remaining := req.Length
		for remaining > 0 {
			chunk, err := reader.readN(minInt64(remaining, int64(len(reader.tmp))))
			if err != nil {
				return err
			}
			p := packet.NewDataPacket(len(chunk))
			p.Write(chunk)
			tailFilter.Incoming(q, p, func() { httperror.Limit(st, nil, s.metrics, 413, "request body too large") })
			remaining -= int64(len(chunk))
		}
	}
	tailFilter.Incoming(q, packet.NewEndPacket(), nil)
	return nil
}

func (s *Server) writeErrorOnly(c net.Conn, resp *response) {
	p := resp.WriteHeaders()
	c.Write(p.Bytes())
	if body, has := resp.AltBody(); has {
		c.Write(body)
	}
}

func hasConnectionClose(v string) bool { return strings.EqualFold(v, "close") }

func minInt64(a, b int64) int {
	if a < b {
		return int(a)
	}
	return int(b)
}

// connWriter 适配 net.Conn 到 connector.Conn (矢量写)
type connWriter struct{ c net.Conn }

func (w connWriter) Write(b net.Buffers) (int64, error) { return b.WriteTo(w.c) }

// tailGlue 实现 stage.Next 把 tail 过滤器粘接到 chain 的第一个 Stage (incoming)
// 与一个独立的网络输出队列 (outgoing) chain 本身的第一个 Stage 没有更下游的
// "Next" (index 0 再往外已经是网络层) 所以它的 OutgoingQueue(0) 需要由调用方
// (dispatchHTTP1) 显式拉取再喂给 tail.Outgoing 详见该函数
type tailGlue struct {
	chain *pipeline.Chain
	netQ  *queue.Queue
}

func (g *tailGlue) NextQueue(dir queue.Direction) *queue.Queue {
	switch dir {
	case queue.Incoming:
		return g.chain.IncomingQueue(0)
	case queue.Outgoing:
		return g.netQ
	}
	return nil
}

func (g *tailGlue) WillAccept(target *queue.Queue, p *packet.Packet) bool {
	return target.Room() >= p.Len() || p.Len() == 0
}

func (g *tailGlue) NotifyReadable() {}

func (g *tailGlue) Dispatch(dir queue.Direction, p *packet.Packet) {
	if dir == queue.Incoming && len(g.chain.Stages()) > 0 {
		g.chain.Stages()[0].Incoming(g.chain.IncomingQueue(0), p)
	}
}

func rangeBoundary(tuple socket.Tuple, st *stream.Stream) string {
	return "httpcore-" + tuple.String()
}
