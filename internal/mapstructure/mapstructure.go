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

// Package mapstructure 是 mitchellh/mapstructure 的一层极薄封装 统一配置解码入口
package mapstructure

import (
	"github.com/mitchellh/mapstructure"
)

// Decode 将 map[string]any 形式的原始配置解码到 out 指向的结构体
func Decode(raw any, out any) error {
	return mapstructure.Decode(raw, out)
}

// WeakDecode 与 Decode 类似 但启用弱类型转换 (如字符串数字互转)
func WeakDecode(raw any, out any) error {
	cfg := &mapstructure.DecoderConfig{WeaklyTypedInput: true, Result: out}
	dec, err := mapstructure.NewDecoder(cfg)
	if err != nil {
		return err
	}
	return dec.Decode(raw)
}
