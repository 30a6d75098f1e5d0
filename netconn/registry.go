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
	"github.com/packetd/httpcore/filter/byterange"
	"github.com/packetd/httpcore/handler"
	"github.com/packetd/httpcore/httperror"
	"github.com/packetd/httpcore/pipeline"
	"github.com/packetd/httpcore/stage"
	"github.com/packetd/httpcore/stream"
)

// stageContext 是一次请求/流处理期间绑定到 pipeline.Chain 的连接态 通过
// pipeline.Build 的 ctx 参数传给注册在 Registry 中的每个 Factory
type stageContext struct {
	Stream   *stream.Stream
	Fn       handler.Func
	Errors   httperror.Responder
	Response *response
	Metrics  httperror.Metrics

	// Ranges/Boundary 非空时会装配 byterange 过滤器 对应请求携带了 Range 首部
	Ranges   []byterange.Range
	Boundary string
}

// NewRegistry 注册本模块提供的两个通用 Stage: handler (管道终点) 与 byterange
// (outgoing 侧可选的字节范围裁剪) 供 confengine 配置的 `pipeline.stages` 引用
func NewRegistry() *pipeline.Registry {
	reg := pipeline.NewRegistry()
	reg.Register("handler", func(ctx any) stage.Stage {
		c := ctx.(*stageContext)
		return handler.New("handler", c.Stream, c.Fn, c.Errors, c.Response, c.Metrics)
	})
	reg.Register("byterange", func(ctx any) stage.Stage {
		c := ctx.(*stageContext)
		return byterange.NewFilter("byterange", c.Response, c.Ranges, c.Boundary)
	})
	return reg
}
