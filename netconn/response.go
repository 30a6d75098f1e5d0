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
	"net/http"
	"strconv"

	"github.com/packetd/httpcore/http1"
	"github.com/packetd/httpcore/packet"
)

// response 是单个 HTTP/1.x 请求的响应落地状态 同时实现 httperror.Responder
// tail.HeaderWriter handler.Responder 与 byterange.Responder 四个接口 把 handler
// stage/tail filter/byterange filter/httperror 四个互不相识的包粘合在一条连接上
type response struct {
	proto string

	status      int
	header      http.Header
	altBody     []byte
	hasAltBody  bool
	headersSent bool

	uri            string
	errorDocuments map[int]string
	showErrors     bool
	plainText      bool

	redirectTo string
}

func newResponse(proto string, errorDocuments map[int]string, showErrors bool) *response {
	return &response{
		proto:          proto,
		status:         http.StatusOK,
		header:         make(http.Header),
		errorDocuments: errorDocuments,
		showErrors:     showErrors,
	}
}

// --- handler.Responder / byterange.Responder ---

func (r *response) SetStatus(code int)              { r.status = code }
func (r *response) SetHeader(name, value string)     { r.header.Set(name, value) }
func (r *response) EntityLength() int64 {
	n, err := strconv.ParseInt(r.header.Get("Content-Length"), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// --- httperror.Responder ---

func (r *response) HeadersSent() bool { return r.headersSent }
func (r *response) SetAltBody(body string) {
	r.altBody = []byte(body)
	r.hasAltBody = true
}
func (r *response) Redirect(uri string)       { r.redirectTo = uri }
func (r *response) AcceptsPlainText() bool    { return r.plainText }
func (r *response) ShowErrors() bool          { return r.showErrors }
func (r *response) CurrentURI() string        { return r.uri }
func (r *response) ErrorDocument(status int) (string, bool) {
	uri, ok := r.errorDocuments[status]
	return uri, ok
}

// --- tail.HeaderWriter ---

// WriteHeaders 编码状态行与首部为单个 Packet 供 tail 在首个 outgoing 包前插入
func (r *response) WriteHeaders() *packet.Packet {
	r.headersSent = true
	var buf bytes.Buffer
	http1.WriteStatusLine(&buf, r.proto, r.status)
	http1.WriteHeaders(&buf, r.header)
	buf.WriteString("\r\n")
	p := packet.NewHeaderPacket(nil)
	p.Write(buf.Bytes())
	return p
}

func (r *response) AltBody() ([]byte, bool) { return r.altBody, r.hasAltBody }
