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

package hpack

import (
	"bytes"
	"fmt"

	"golang.org/x/net/http2/hpack"
)

// Encoder 将请求/响应头部编码为 HPACK 字节流 持有一张独立的动态表
type Encoder struct {
	Table *Table
	// Huffman 控制是否对字符串字面量使用 Huffman 编码 仅在节省字节时启用
	Huffman bool
}

// NewEncoder 创建一个编码器 max 是动态表字节预算
func NewEncoder(max int) *Encoder {
	return &Encoder{Table: NewTable(max), Huffman: true}
}

// EncodeField 编码单个 key/value 首部字段 追加到 dst
func (e *Encoder) EncodeField(dst *bytes.Buffer, key, value string) {
	index, withValue := e.Table.Lookup(key, value)
	if withValue {
		encodeInt(dst, 0x80, 7, index)
		return
	}
	if index > 0 {
		encodeInt(dst, 0x40, 6, index)
	} else {
		dst.WriteByte(0x40)
		e.encodeString(dst, key)
	}
	e.encodeString(dst, value)
	e.Table.Add(Entry{Name: key, Value: value, HasValue: true})
}

// EncodeFieldNeverIndexed 编码一个不得被中间层缓存的首部字段(如敏感 Cookie)
func (e *Encoder) EncodeFieldNeverIndexed(dst *bytes.Buffer, key, value string) {
	dst.WriteByte(0x10)
	e.encodeString(dst, key)
	e.encodeString(dst, value)
}

func (e *Encoder) encodeString(dst *bytes.Buffer, s string) {
	if e.Huffman && hpack.HuffmanEncodeLength(s) < uint64(len(s)) {
		var buf bytes.Buffer
		hpack.HuffmanEncode(&buf, s)
		encodeInt(dst, 0x80, 7, buf.Len())
		dst.Write(buf.Bytes())
		return
	}
	encodeInt(dst, 0, 7, len(s))
	dst.WriteString(s)
}

// encodeInt 按 RFC 7541 §5.1 编码一个带前缀标志位的整数
func encodeInt(dst *bytes.Buffer, flags byte, prefixBits uint, v int) {
	max := (1 << prefixBits) - 1
	if v < max {
		dst.WriteByte(flags | byte(v))
		return
	}
	dst.WriteByte(flags | byte(max))
	v -= max
	for v >= 128 {
		dst.WriteByte(byte(v%128 + 128))
		v /= 128
	}
	dst.WriteByte(byte(v))
}

// Decoder 从 HPACK 字节流还原首部字段 持有一张独立的动态表
type Decoder struct {
	Table *Table
}

// NewDecoder 创建一个解码器 max 是动态表字节预算
func NewDecoder(max int) *Decoder {
	return &Decoder{Table: NewTable(max)}
}

// Field 是解码得到的一个首部字段
type Field struct {
	Name  string
	Value string
}

// DecodeFields 解析一段完整的 HPACK 编码块 可跨越一个或多个 HEADERS/CONTINUATION 帧拼接后的字节
func (d *Decoder) DecodeFields(b []byte) ([]Field, error) {
	var fields []Field
	for len(b) > 0 {
		first := b[0]
		switch {
		case first&0x80 != 0: // indexed header field
			index, rest, err := decodeInt(b, 0x7f)
			if err != nil {
				return nil, err
			}
			b = rest
			e, ok := d.Table.Get(index)
			if !ok {
				return nil, fmt.Errorf("hpack: invalid index %d", index)
			}
			fields = append(fields, Field{Name: e.Name, Value: e.Value})

		case first&0xc0 == 0x40: // literal with incremental indexing
			name, value, rest, err := d.decodeLiteral(b, 6)
			if err != nil {
				return nil, err
			}
			b = rest
			d.Table.Add(Entry{Name: name, Value: value, HasValue: true})
			fields = append(fields, Field{Name: name, Value: value})

		case first&0xf0 == 0x00, first&0xf0 == 0x10: // literal without / never indexing
			name, value, rest, err := d.decodeLiteral(b, 4)
			if err != nil {
				return nil, err
			}
			b = rest
			fields = append(fields, Field{Name: name, Value: value})

		case first&0xe0 == 0x20: // dynamic table size update
			max, rest, err := decodeInt(b, 0x1f)
			if err != nil {
				return nil, err
			}
			b = rest
			d.Table.SetMax(max)

		default:
			return nil, fmt.Errorf("hpack: invalid field prefix 0x%02x", first)
		}
	}
	return fields, nil
}

// decodeLiteral 解析一个字面量首部 prefixBits 是名称索引字段的前缀位宽 (4 或 6)
func (d *Decoder) decodeLiteral(b []byte, prefixBits uint) (name, value string, rest []byte, err error) {
	mask := byte(1<<prefixBits) - 1
	index, rest, err := decodeInt(b, mask)
	if err != nil {
		return "", "", nil, err
	}
	if index > 0 {
		e, ok := d.Table.Get(index)
		if !ok {
			return "", "", nil, fmt.Errorf("hpack: invalid name index %d", index)
		}
		name = e.Name
	} else {
		name, rest, err = decodeString(rest)
		if err != nil {
			return "", "", nil, err
		}
	}
	value, rest, err = decodeString(rest)
	if err != nil {
		return "", "", nil, err
	}
	return name, value, rest, nil
}

// decodeInt 解析一个带前缀掩码的整数 返回其值与剩余字节
func decodeInt(b []byte, mask byte) (int, []byte, error) {
	if len(b) == 0 {
		return 0, nil, fmt.Errorf("hpack: truncated integer")
	}
	v := int(b[0] & mask)
	b = b[1:]
	if v < int(mask) {
		return v, b, nil
	}
	m := 0
	for {
		if len(b) == 0 {
			return 0, nil, fmt.Errorf("hpack: truncated integer")
		}
		octet := b[0]
		b = b[1:]
		v += int(octet&0x7f) << m
		m += 7
		if octet&0x80 == 0 {
			break
		}
	}
	return v, b, nil
}

// decodeString 解析一个长度前缀(含 Huffman 标志位)的字符串字面量
func decodeString(b []byte) (string, []byte, error) {
	if len(b) == 0 {
		return "", nil, fmt.Errorf("hpack: truncated string")
	}
	huff := b[0]&0x80 != 0
	n, rest, err := decodeInt(b, 0x7f)
	if err != nil {
		return "", nil, err
	}
	if len(rest) < n {
		return "", nil, fmt.Errorf("hpack: truncated string body")
	}
	raw := rest[:n]
	rest = rest[n:]
	if !huff {
		return string(raw), rest, nil
	}
	s, err := hpack.HuffmanDecodeToString(raw)
	if err != nil {
		return "", nil, fmt.Errorf("hpack: huffman decode: %w", err)
	}
	return s, rest, nil
}
