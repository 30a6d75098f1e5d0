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
)

// ChunkDecoder 增量地把 chunked-transfer 编码的请求体还原为原始字节
//
// 调用方每收到新数据就调用 Feed 它返回已就绪的数据块以及是否已读到末尾 chunk
// 非并发安全: 与其所属的 Stream 绑定在同一 goroutine 内驱动
type ChunkDecoder struct {
	buf  bytes.Buffer
	need int64 // 当前 chunk 剩余待读字节数 -1 表示正在等待长度行
	done bool
}

// NewChunkDecoder 创建一个新的解码器
func NewChunkDecoder() *ChunkDecoder {
	return &ChunkDecoder{need: -1}
}

// Feed 追加原始字节并尽可能多地抽取完整数据块
func (d *ChunkDecoder) Feed(b []byte) (data []byte, done bool, err error) {
	if d.done {
		return nil, true, nil
	}
	d.buf.Write(b)

	var out bytes.Buffer
	for {
		if d.need < 0 {
			line, ok := readLine(&d.buf)
			if !ok {
				break
			}
			size, perr := parseChunkSize(line)
			if perr != nil {
				return nil, false, perr
			}
			if size == 0 {
				// 末尾 chunk 之后应紧跟一个空行(trailer 结束) 简化实现: 只丢弃其后的一行 trailer 字段不做解析
				if _, ok := readLine(&d.buf); ok {
					d.done = true
					return out.Bytes(), true, nil
				}
				d.need = 0
				d.done = true
				break
			}
			d.need = size
			continue
		}
		if int64(d.buf.Len()) < d.need+2 { // 数据 + 结尾 CRLF
			break
		}
		chunk := make([]byte, d.need)
		d.buf.Read(chunk)
		d.buf.Next(2) // 丢弃 chunk 数据后的 CRLF
		out.Write(chunk)
		d.need = -1
	}
	return out.Bytes(), d.done, nil
}

func readLine(buf *bytes.Buffer) ([]byte, bool) {
	b := buf.Bytes()
	i := bytes.IndexByte(b, '\n')
	if i < 0 {
		return nil, false
	}
	line := b[:i+1]
	buf.Next(len(line))
	return bytes.TrimRight(line, "\r\n"), true
}

func parseChunkSize(line []byte) (int64, error) {
	if semi := bytes.IndexByte(line, ';'); semi >= 0 {
		line = line[:semi]
	}
	var size int64
	if _, err := fmt.Sscanf(string(line), "%x", &size); err != nil {
		return 0, fmt.Errorf("http1: bad chunk size %q: %w", line, err)
	}
	return size, nil
}
