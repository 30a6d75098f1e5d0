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

package netconn

import (
	"bytes"
	"net"
	"time"

	"github.com/packetd/httpcore/auth"
	"github.com/packetd/httpcore/common/socket"
	"github.com/packetd/httpcore/connector"
	"github.com/packetd/httpcore/filter/byterange"
	"github.com/packetd/httpcore/filter/tail"
	"github.com/packetd/httpcore/handler"
	"github.com/packetd/httpcore/hpack"
	"github.com/packetd/httpcore/http2"
	"github.com/packetd/httpcore/httperror"
	"github.com/packetd/httpcore/internal/tracekit"
	"github.com/packetd/httpcore/logger"
	"github.com/packetd/httpcore/packet"
	"github.com/packetd/httpcore/pipeline"
	"github.com/packetd/httpcore/queue"
	"github.com/packetd/httpcore/stream"
)

// h2Stream 聚合一条 HTTP/2 流在管道中的全部状态 与 HTTP/1.x 的一次请求/响应对应
// 只是 incoming/outgoing 的载体从整条连接换成了某个具体的 stream id
type h2Stream struct {
	id  uint32
	st  *stream.Stream
	rsp *response
	asm http2.HeaderAssembler

	chain    *pipeline.Chain
	tail     *tail.Filter
	tailOutQ *queue.Queue
	tailInQ  *queue.Queue
	sink     *queue.Queue
	window   *http2.FlowWindow
}

// conn2 是一条 HTTP/2 连接的共享状态: 编解码表 连接级流量控制窗口 以及存活的 Stream
type conn2 struct {
	s      *Server
	tuple  socket.Tuple
	reader *bufReader
	c      net.Conn

	hdec *hpack.Decoder
	henc *hpack.Encoder

	connWindow *http2.FlowWindow
	maxFrame   int

	netQ      *queue.Queue
	connector *connector.Connector

	streams map[uint32]*h2Stream
	closed  bool
}

func (s *Server) serveHTTP2(c net.Conn, tuple socket.Tuple, reader *bufReader) {
	if bytes.HasPrefix(reader.buf, []byte(http2Preface)) {
		reader.consume(len(http2Preface))
	}

	cn := &conn2{
		s:          s,
		tuple:      tuple,
		reader:     reader,
		c:          c,
		hdec:       hpack.NewDecoder(4096),
		henc:       hpack.NewEncoder(4096),
		connWindow: http2.NewFlowWindow(http2.DefaultWindowSize),
		maxFrame:   16384,
		streams:    make(map[uint32]*h2Stream),
	}
	cn.netQ = queue.New("h2/net/out", queue.Outgoing, s.cfg.MaxQueueBytes, s.cfg.PacketSize)
	cn.connector = connector.New("h2-connector", connWriter{c: c}, connector.Hooks{})

	// 服务端 SETTINGS 全部取默认值 对端 SETTINGS 的 ACK 在帧循环内响应
	cn.writeFrame(http2.FrameSettings, 0, 0, nil)

	for {
		if s.cfg.IdleTimeout > 0 {
			c.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))
		}
		hdr, err := cn.readFrameHeader()
		if err != nil {
			return
		}
		payload, err := cn.reader.readN(int(hdr.Length))
		if err != nil {
			return
		}
		if err := cn.handleFrame(hdr, payload); err != nil {
			logger.Debugf("%s: http2 connection error: %v", tuple, err)
			cn.goAway()
			return
		}
		if cn.closed {
			return
		}
	}
}

func (cn *conn2) readFrameHeader() (http2.FrameHeader, error) {
	b, err := cn.reader.readN(http2.FrameHeaderLen)
	if err != nil {
		return http2.FrameHeader{}, err
	}
	return http2.DecodeHeader(b)
}

func (cn *conn2) writeFrame(typ http2.FrameType, flags http2.Flag, streamID uint32, payload []byte) {
	raw := http2.Encode(typ, flags, streamID, payload)
	p := packet.NewDataPacket(len(raw))
	p.Write(raw)
	p.Flags |= packet.FlagSolo
	cn.netQ.Put(p)
	cn.connector.OutgoingService(cn.netQ)
}

func (cn *conn2) goAway() {
	cn.writeFrame(http2.FrameGoAway, 0, 0, make([]byte, 8))
	cn.closed = true
}

func (cn *conn2) handleFrame(hdr http2.FrameHeader, payload []byte) error {
	switch hdr.Type {
	case http2.FrameSettings:
		return cn.handleSettings(hdr, payload)
	case http2.FrameWindowUpdate:
		return cn.handleWindowUpdate(hdr, payload)
	case http2.FrameHeaders:
		return cn.handleHeaders(hdr, payload)
	case http2.FrameContinuation:
		return cn.handleContinuation(hdr, payload)
	case http2.FrameData:
		return cn.handleData(hdr, payload)
	case http2.FrameRSTStream:
		delete(cn.streams, hdr.StreamID)
		return nil
	case http2.FramePing:
		if !hdr.Has(http2.FlagAck) {
			cn.writeFrame(http2.FramePing, http2.FlagAck, 0, payload)
		}
		return nil
	case http2.FrameGoAway:
		cn.closed = true
		return nil
	default:
		// PRIORITY/PUSH_PROMISE 等帧不影响核心请求/响应路径 直接忽略
		return nil
	}
}

func (cn *conn2) handleSettings(hdr http2.FrameHeader, payload []byte) error {
	if hdr.Has(http2.FlagAck) {
		return nil
	}
	settings, err := http2.DecodeSettings(payload)
	if err != nil {
		return err
	}
	for _, st := range settings {
		if st.ID == http2.SettingMaxFrameSize && st.Value > 0 {
			cn.maxFrame = int(st.Value)
		}
	}
	cn.writeFrame(http2.FrameSettings, http2.FlagAck, 0, nil)
	return nil
}

func (cn *conn2) handleWindowUpdate(hdr http2.FrameHeader, payload []byte) error {
	inc, err := http2.DecodeWindowUpdate(payload)
	if err != nil {
		return err
	}
	if hdr.StreamID == 0 {
		return cn.connWindow.Increase(inc)
	}
	if st, ok := cn.streams[hdr.StreamID]; ok {
		return st.window.Increase(inc)
	}
	return nil
}

func (cn *conn2) handleHeaders(hdr http2.FrameHeader, payload []byte) error {
	body, err := http2.StripPadding(payload, hdr.Has(http2.FlagPadded))
	if err != nil {
		return err
	}
	st := &h2Stream{id: hdr.StreamID, window: http2.NewFlowWindow(http2.DefaultWindowSize)}
	st.asm.Append(body)
	cn.streams[hdr.StreamID] = st
	if hdr.Has(http2.FlagEndHeaders) {
		return cn.finishHeaders(st, hdr.Has(http2.FlagEndStream))
	}
	return nil
}

func (cn *conn2) handleContinuation(hdr http2.FrameHeader, payload []byte) error {
	st, ok := cn.streams[hdr.StreamID]
	if !ok {
		return nil
	}
	st.asm.Append(payload)
	if hdr.Has(http2.FlagEndHeaders) {
		return cn.finishHeaders(st, false)
	}
	return nil
}

func (cn *conn2) finishHeaders(st *h2Stream, endStream bool) error {
	head, err := st.asm.Decode(cn.hdec)
	if err != nil {
		return err
	}

	st.st = stream.New(0)
	st.st.Advance(stream.Connected)
	st.st.Advance(stream.First)
	st.st.Advance(stream.Parsed)

	st.rsp = newResponse("HTTP/2", cn.s.cfg.ErrorDocuments, cn.s.cfg.ShowErrors)
	hreq := &handler.Request{
		Method:   head.Method,
		Path:     head.Path,
		Proto:    "HTTP/2",
		Header:   head.Header,
		RemoteIP: cn.tuple.SrcIP.String(),
	}
	if head.Authority != "" {
		hreq.Header.Set("Host", head.Authority)
	}
	if tc, ok := tracekit.TraceIDFromHTTPHeader(head.Header); ok {
		st.st.TraceID = tc.TraceID.String()
		st.st.SpanID = tc.SpanID.String()
	}

	if cn.s.sessions != nil {
		sess, _ := cn.s.sessions.Resolve(nil, head.Header["Cookie"])
		if sess == nil {
			sess, _ = cn.s.sessions.Create(uintptr(0), uintptr(st.id))
		}
		if sess != nil {
			hreq.Session = sess
			st.rsp.SetHeader("Set-Cookie", sess.SetCookieHeader())
		}
	}
	if cn.s.auth != nil {
		if user, pass, ok := auth.ParseBasic(head.Header.Get("Authorization")); ok {
			if u, found := cn.s.auth.LookupUser(user); found && auth.Verify(u.Password, pass) {
				hreq.User = u
			}
		}
	}

	var ranges []byterange.Range
	var boundary string
	if rh := head.Header.Get("Range"); rh != "" {
		ranges = byterange.Parse(rh)
		boundary = "httpcore-h2-" + cn.tuple.String()
	}

	ctx := &stageContext{Stream: st.st, Fn: cn.s.fn, Errors: st.rsp, Response: st.rsp, Metrics: cn.s.metrics, Ranges: ranges, Boundary: boundary}
	chain, err := cn.s.pl.Build(cn.s.cfg.PipelineName, cn.s.cfg.MaxQueueBytes, cn.s.cfg.PacketSize, ctx)
	if err != nil {
		return err
	}
	st.chain = chain
	st.tail = tail.New("tail", st.st, tail.Limits{RxFormSize: cn.s.cfg.RxFormSize, TxBodySize: cn.s.cfg.TxBodySize}, st.rsp)
	st.tailOutQ = queue.New("tail/out", queue.Outgoing, cn.s.cfg.MaxQueueBytes, cn.s.cfg.PacketSize)
	st.tailInQ = queue.New("tail/in", queue.Incoming, cn.s.cfg.MaxQueueBytes, cn.s.cfg.PacketSize)
	st.sink = queue.New("h2/sink", queue.Outgoing, cn.s.cfg.MaxQueueBytes, cn.s.cfg.PacketSize)
	st.tail.SetNext(&tailGlue{chain: chain, netQ: st.sink})

	st.st.Advance(stream.Content)
	cn.bindRequest(st, hreq)
	if endStream {
		cn.endStreamBody(st)
	}
	return nil
}

// bindRequest 把已重组好的请求交给 chain 内 handler Stage 的 BindRequest
func (cn *conn2) bindRequest(st *h2Stream, req *handler.Request) {
	for _, s := range st.chain.Stages() {
		if h, ok := s.(*handler.Stage); ok {
			h.BindRequest(*req)
			return
		}
	}
}

func (cn *conn2) handleData(hdr http2.FrameHeader, payload []byte) error {
	st, ok := cn.streams[hdr.StreamID]
	if !ok || st.chain == nil {
		return nil
	}
	body, err := http2.StripPadding(payload, hdr.Has(http2.FlagPadded))
	if err != nil {
		return err
	}
	if len(body) > 0 {
		p := packet.NewDataPacket(len(body))
		p.Write(body)
		st.tail.Incoming(st.tailInQ, p, func() {
			httperror.Limit(st.st, st.rsp, cn.s.metrics, 413, "request body too large")
		})
		cn.writeFrame(http2.FrameWindowUpdate, 0, hdr.StreamID, http2.EncodeWindowUpdate(uint32(len(body))))
	}
	if hdr.Has(http2.FlagEndStream) {
		cn.endStreamBody(st)
	}
	return nil
}

func (cn *conn2) endStreamBody(st *h2Stream) {
	st.tail.Incoming(st.tailInQ, packet.NewEndPacket(), nil)

	for {
		p := st.chain.OutgoingQueue(0).Get()
		if p == nil {
			break
		}
		st.tail.Outgoing(st.tailOutQ, p, st.st, st.rsp, cn.s.metrics)
	}
	window := int(st.window.Available())
	if window <= 0 {
		window = int(http2.DefaultWindowSize)
	}
	st.tail.OutgoingService(st.tailOutQ, window)

	for {
		p := st.sink.Get()
		if p == nil {
			break
		}
		cn.emitStreamPacket(st, p)
	}
	delete(cn.streams, st.id)

	if cn.s.exp != nil && st.st.RoundTrip != nil {
		cn.s.exp.Export(st.st.RoundTrip)
	}
}

// emitStreamPacket 把 tail 产出的 header/data/end Packet 编码成对应的 HTTP/2 帧
// header Packet 需要 HPACK 编码且可能超出对端声明的最大帧尺寸 因而拆成
// HEADERS + 0..N CONTINUATION
func (cn *conn2) emitStreamPacket(st *h2Stream, p *packet.Packet) {
	if p.IsHeader() {
		block := http2.EncodeResponseHead(cn.henc, st.rsp.status, st.rsp.header)
		parts := http2.SplitHeaderBlock(block, cn.maxFrame)
		for i, part := range parts {
			typ := http2.FrameHeaders
			var flags http2.Flag
			if i > 0 {
				typ = http2.FrameContinuation
			}
			if i == len(parts)-1 {
				flags |= http2.FlagEndHeaders
			}
			cn.writeFrame(typ, flags, st.id, part)
		}
		return
	}
	if p.IsEnd() {
		cn.writeFrame(http2.FrameData, http2.FlagEndStream, st.id, nil)
		return
	}
	data := p.Bytes()
	st.window.Consume(int64(len(data)))
	cn.writeFrame(http2.FrameData, 0, st.id, data)
}
