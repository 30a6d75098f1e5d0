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

package http1

import (
	"bytes"
	"fmt"
	"net/http"
	"sort"
)

// StatusText 返回标准库的状态短语 未知状态码时退化为 "Unknown"
func StatusText(code int) string {
	if t := http.StatusText(code); t != "" {
		return t
	}
	return "Unknown"
}

// WriteStatusLine 写入形如 "HTTP/1.1 200 OK\r\n" 的状态行
func WriteStatusLine(buf *bytes.Buffer, proto string, code int) {
	fmt.Fprintf(buf, "%s %d %s\r\n", proto, code, StatusText(code))
}

// WriteHeaders 写入排序后的首部字段 (按名称排序以保证输出确定性 便于测试与排障) 末尾
// 不写入分隔首部与正文的空行 由调用方在写完全部首部后追加
func WriteHeaders(buf *bytes.Buffer, header http.Header) {
	names := make([]string, 0, len(header))
	for name := range header {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		for _, value := range header[name] {
			fmt.Fprintf(buf, "%s: %s\r\n", name, value)
		}
	}
}

// EncodeChunk 把 data 编码为一个 chunked-transfer chunk: 十六进制长度行 + CRLF + 数据 + CRLF
func EncodeChunk(data []byte) []byte {
	if len(data) == 0 {
		return EncodeLastChunk()
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%x\r\n", len(data))
	buf.Write(data)
	buf.WriteString("\r\n")
	return buf.Bytes()
}

// EncodeLastChunk 返回终止 chunked 流的 "0\r\n\r\n" 序列 (不携带 trailer)
func EncodeLastChunk() []byte {
	return []byte("0\r\n\r\n")
}
