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

// Package http1 实现 HTTP/1.x 请求行/首部的增量解析与响应首部/chunked 编码的生成
//
// 解析器按行消费输入 与 packetd 的被动抓包解码器共享同一种"按 CRLF 切割再逐行状态机"
// 的思路 但这里驱动的是一个真实的、来自 accept() 之后的活动 socket 而不是重组后的
// 抓包字节流
package http1

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/packetd/httpcore/internal/splitio"
)

// Request 是解析得到的 HTTP/1.x 请求行 + 首部
type Request struct {
	Method  string
	URL     string
	Path    string
	Query   string
	Proto   string
	Header  http.Header
	Host    string
	Close   bool
	Chunked bool
	Length  int64 // -1 表示未知(chunked) 既无 Content-Length 也非 chunked 时为 0
}

// ErrIncomplete 表示当前缓冲区尚不足以解析出完整的请求行/首部 调用方应等待更多数据
var ErrIncomplete = fmt.Errorf("http1: incomplete request")

// ParseRequest 从 b 中解析请求行与首部 b 中必须已包含首部结束符 ("\r\n\r\n" 或 "\n\n")
// 否则返回 ErrIncomplete consumed 返回首部结束符之后的偏移量
func ParseRequest(b []byte) (*Request, int, error) {
	if !bytes.Contains(b, []byte("\r\n\r\n")) && !bytes.Contains(b, []byte("\n\n")) {
		return nil, 0, ErrIncomplete
	}
	scanner := splitio.NewScanner(b)
	req := &Request{Header: make(http.Header), Length: -1}

	if !scanner.Scan() {
		return nil, 0, ErrIncomplete
	}
	line := trimCRLF(scanner.Bytes())
	parts := strings.SplitN(string(line), " ", 3)
	if len(parts) != 3 {
		return nil, 0, fmt.Errorf("http1: malformed request line %q", line)
	}
	req.Method = parts[0]
	req.URL = parts[1]
	req.Proto = parts[2]
	if i := strings.IndexByte(req.URL, '?'); i >= 0 {
		req.Path, req.Query = req.URL[:i], req.URL[i+1:]
	} else {
		req.Path = req.URL
	}

	consumed := len(scanner.Bytes())
	for scanner.Scan() {
		raw := scanner.Bytes()
		consumed += len(raw)
		trimmed := trimCRLF(raw)
		if len(trimmed) == 0 {
			break
		}
		name, value, ok := splitHeaderLine(trimmed)
		if !ok {
			return nil, 0, fmt.Errorf("http1: malformed header line %q", trimmed)
		}
		req.Header.Add(name, value)
	}

	req.Host = req.Header.Get("Host")
	req.Close = strings.EqualFold(req.Header.Get("Connection"), "close") ||
		(req.Proto == "HTTP/1.0" && !strings.EqualFold(req.Header.Get("Connection"), "keep-alive"))
	req.Chunked = isChunked(req.Header["Transfer-Encoding"])
	if !req.Chunked {
		if cl := req.Header.Get("Content-Length"); cl != "" {
			n, err := strconv.ParseInt(cl, 10, 64)
			if err != nil {
				return nil, 0, fmt.Errorf("http1: bad Content-Length %q", cl)
			}
			req.Length = n
		} else {
			req.Length = 0
		}
	}
	return req, consumed, nil
}

func trimCRLF(b []byte) []byte {
	b = bytes.TrimSuffix(b, splitio.CharCRLF)
	return bytes.TrimSuffix(b, splitio.CharLF)
}

func splitHeaderLine(line []byte) (name, value string, ok bool) {
	i := bytes.IndexByte(line, ':')
	if i < 0 {
		return "", "", false
	}
	name = string(bytes.TrimSpace(line[:i]))
	value = string(bytes.TrimSpace(line[i+1:]))
	return name, value, name != ""
}

func isChunked(te []string) bool {
	for _, v := range te {
		if strings.EqualFold(strings.TrimSpace(v), "chunked") {
			return true
		}
	}
	return false
}
