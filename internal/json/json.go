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

// Package json 是 goccy/go-json 的一层极薄封装 统一全仓库的 JSON 编解码入口
package json

import (
	gojson "github.com/goccy/go-json"
)

// Marshal 序列化 v 为 JSON 字节
func Marshal(v any) ([]byte, error) {
	return gojson.Marshal(v)
}

// Unmarshal 将 JSON 字节反序列化到 v
func Unmarshal(data []byte, v any) error {
	return gojson.Unmarshal(data, v)
}

// MarshalIndent 序列化 v 为带缩进的 JSON 字节
func MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return gojson.MarshalIndent(v, prefix, indent)
}
