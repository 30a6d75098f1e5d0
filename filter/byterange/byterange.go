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

// Package byterange 实现 RFC 7233 字节范围请求的解析与响应过滤 (仅作用于 outgoing 侧)
package byterange

import (
	"fmt"
	"strconv"
	"strings"
)

// Range 是归一化前/后的单个字节范围 End 为排他上界 (与原始实现的 end 语义一致)
type Range struct {
	Start, End int64
}

// Len 返回该范围覆盖的字节数
func (r Range) Len() int64 { return r.End - r.Start }

// Parse 解析 `Range: bytes=...` 首部的值为归一化前的范围列表 不理解的单位返回 nil
func Parse(header string) []Range {
	const prefix = "bytes="
	if !strings.HasPrefix(header, prefix) {
		return nil
	}
	var ranges []Range
	for _, part := range strings.Split(header[len(prefix):], ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		dash := strings.IndexByte(part, '-')
		if dash < 0 {
			return nil
		}
		startStr, endStr := part[:dash], part[dash+1:]
		var start, end int64
		var err error
		if startStr == "" {
			// 后缀范围: -N 代表最后 N 个字节 用负数 Start 标记 供 Normalize 识别
			n, perr := strconv.ParseInt(endStr, 10, 64)
			if perr != nil {
				return nil
			}
			ranges = append(ranges, Range{Start: -n, End: -1})
			continue
		}
		if start, err = strconv.ParseInt(startStr, 10, 64); err != nil {
			return nil
		}
		if endStr == "" {
			end = -1
		} else {
			if end, err = strconv.ParseInt(endStr, 10, 64); err != nil {
				return nil
			}
			// RFC 7233 end is inclusive; Range.End is exclusive everywhere
			// else in this package, so convert at the parse boundary.
			end++
		}
		ranges = append(ranges, Range{Start: start, End: end})
	}
	return ranges
}

// Normalize 将解析得到的范围相对 entityLength 归一化为 [start,end) 的绝对字节区间
//
// 规则 (与 fixRangeLength 一致):
//   - start < 0 视为后缀范围: start = length + start (原 -N) end = length
//   - end < 0 视为"到末尾": end = length
//   - start/end 向 [0,length] 钳制 (后缀长度超过 length 时 start 取 0)
//   - 若归一化后 start >= end 该请求视为 BAD_REQUEST (调用方应返回完整 200 响应并
//     丢弃 Range 处理 —— 这是对原实现中 `end = length - end - 1` 这种反直觉写法的保守重新设计)
func Normalize(ranges []Range, length int64) ([]Range, error) {
	if length < 0 {
		return nil, fmt.Errorf("byterange: unknown entity length")
	}
	out := make([]Range, 0, len(ranges))
	for _, r := range ranges {
		start, end := r.Start, r.End
		if start < 0 {
			start = length + start
		}
		if end < 0 || end > length {
			end = length
		}
		if start < 0 {
			start = 0
		}
		if start > length {
			start = length
		}
		if start >= end {
			return nil, fmt.Errorf("byterange: unsatisfiable range [%d,%d) over length %d", r.Start, r.End, length)
		}
		out = append(out, Range{Start: start, End: end})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("byterange: no satisfiable ranges")
	}
	return out, nil
}

// ContentRange 格式化一个 `Content-Range: bytes S-E/L` 首部值 length<0 时 L 写作 "*"
func ContentRange(r Range, length int64) string {
	l := "*"
	if length >= 0 {
		l = strconv.FormatInt(length, 10)
	}
	return fmt.Sprintf("bytes %d-%d/%s", r.Start, r.End-1, l)
}
