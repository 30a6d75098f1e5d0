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
	"bytes"
	"fmt"
	"net/http"

	"github.com/packetd/httpcore/hpack"
)

// RFC 7540 要求的伪首部 必须出现在普通首部之前 且名称为小写
const (
	PseudoMethod    = ":method"
	PseudoScheme    = ":scheme"
	PseudoPath      = ":path"
	PseudoAuthority = ":authority"
	PseudoStatus    = ":status"
)

// RequestHead 是从 HEADERS(+CONTINUATION) 帧还原出的请求行等价信息
type RequestHead struct {
	Method    string
	Scheme    string
	Path      string
	Authority string
	Header    http.Header
}

// HeaderAssembler 累积同一个流上 HEADERS + 0..N 个 CONTINUATION 帧的负载
// 直至 END_HEADERS 标志出现 再整体交给 hpack.Decoder 解码
type HeaderAssembler struct {
	buf bytes.Buffer
}

// Append 追加一帧的首部块片段
func (a *HeaderAssembler) Append(fragment []byte) { a.buf.Write(fragment) }

// Decode 解码已累积的全部片段 解码完成后清空累积区 复用同一条连接的动态表 dec
func (a *HeaderAssembler) Decode(dec *hpack.Decoder) (*RequestHead, error) {
	fields, err := dec.DecodeFields(a.buf.Bytes())
	a.buf.Reset()
	if err != nil {
		return nil, err
	}
	head := &RequestHead{Header: make(http.Header)}
	seenRegular := false
	for _, f := range fields {
		switch f.Name {
		case PseudoMethod:
			head.Method = f.Value
		case PseudoScheme:
			head.Scheme = f.Value
		case PseudoPath:
			head.Path = f.Value
		case PseudoAuthority:
			head.Authority = f.Value
		default:
			if len(f.Name) > 0 && f.Name[0] == ':' {
				return nil, fmt.Errorf("http2: unknown pseudo-header %q", f.Name)
			}
			seenRegular = true
			head.Header.Add(f.Name, f.Value)
		}
		_ = seenRegular
	}
	if head.Method == "" || head.Scheme == "" || head.Path == "" {
		return nil, fmt.Errorf("http2: missing mandatory pseudo-header")
	}
	return head, nil
}

// EncodeResponseHead 用 enc 编码一个响应首部块 (:status 伪首部在前 随后常规首部)
func EncodeResponseHead(enc *hpack.Encoder, status int, header http.Header) []byte {
	var buf bytes.Buffer
	enc.EncodeField(&buf, PseudoStatus, fmt.Sprintf("%d", status))
	for name, values := range header {
		for _, v := range values {
			enc.EncodeField(&buf, toLowerASCII(name), v)
		}
	}
	return buf.Bytes()
}

func toLowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// SplitHeaderBlock 把已编码的首部块按 maxFrameSize 切分为 HEADERS 帧负载 + 若干
// CONTINUATION 帧负载 供 connector 在不超过对端声明的最大帧尺寸时分片发送
func SplitHeaderBlock(block []byte, maxFrameSize int) [][]byte {
	if maxFrameSize <= 0 || len(block) <= maxFrameSize {
		return [][]byte{block}
	}
	var parts [][]byte
	for len(block) > 0 {
		n := maxFrameSize
		if n > len(block) {
			n = len(block)
		}
		parts = append(parts, block[:n])
		block = block[n:]
	}
	return parts
}
