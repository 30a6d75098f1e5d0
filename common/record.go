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

package common

// RecordType 标识一个导出去向的种类 用作 exporter.Sinker 的注册键
type RecordType uint8

const (
	RecordAccessLog RecordType = iota
	RecordMetrics
	RecordTraces
	RecordArchive
)

func (t RecordType) String() string {
	switch t {
	case RecordAccessLog:
		return "accesslog"
	case RecordMetrics:
		return "metrics"
	case RecordTraces:
		return "traces"
	case RecordArchive:
		return "archive"
	default:
		return "unknown"
	}
}
