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

// Package exporter 把完成的请求/响应 round-trip 扇出到若干按配置独立开关的去向
// (访问日志/Prometheus 指标/OTLP 追踪/MongoDB 归档) 对应 exporter/sinker 下的子包
package exporter

import (
	"github.com/hashicorp/go-multierror"

	"github.com/packetd/httpcore/common"
	"github.com/packetd/httpcore/confengine"
	goccyjson "github.com/packetd/httpcore/internal/json"
	"github.com/packetd/httpcore/internal/pubsub"
	"github.com/packetd/httpcore/logger"
	"github.com/packetd/httpcore/stream"
)

// Exporter 持有每个启用去向的 Sinker 实例
type Exporter struct {
	conf Config

	accessLogSinker Sinker
	metricsSinker   Sinker
	tracesSinker    Sinker
	archiveSinker   Sinker

	// watch 独立于上面四个可配置去向 始终广播每一条 round-trip 的摘要 供
	// admin 暴露的实时调试端点订阅 订阅者数为零时 Publish 近乎零开销
	watch *pubsub.PubSub
}

// New 按配置创建已启用去向对应的 Sinker 未启用的去向保持为 nil
func New(conf *confengine.Config) (*Exporter, error) {
	var cfg Config
	if err := conf.UnpackChild("exporter", &cfg); err != nil {
		return nil, err
	}

	e := &Exporter{conf: cfg, watch: pubsub.New()}

	if cfg.AccessLog.Enabled {
		cfg.AccessLog.Validate()
		f := Get(common.RecordAccessLog)
		s, err := f(cfg)
		if err != nil {
			return nil, err
		}
		e.accessLogSinker = s
	}
	if cfg.Metrics.Enabled {
		if err := cfg.Metrics.Validate(); err != nil {
			return nil, err
		}
		f := Get(common.RecordMetrics)
		s, err := f(cfg)
		if err != nil {
			return nil, err
		}
		e.metricsSinker = s
	}
	if cfg.Traces.Enabled {
		if err := cfg.Traces.Validate(); err != nil {
			return nil, err
		}
		f := Get(common.RecordTraces)
		s, err := f(cfg)
		if err != nil {
			return nil, err
		}
		e.tracesSinker = s
	}
	if cfg.Archive.Enabled {
		if err := cfg.Archive.Validate(); err != nil {
			return nil, err
		}
		f := Get(common.RecordArchive)
		s, err := f(cfg)
		if err != nil {
			return nil, err
		}
		e.archiveSinker = s
	}
	return e, nil
}

// Start 目前所有 Sinker 都是同步写入 保留该方法只为与teacher的生命周期对称
// 供 controller 统一调用
func (e *Exporter) Start() {}

// Close 释放全部已启用的 Sinker 单个去向关闭失败不影响其余去向的关闭 所有错误
// 聚合后一并返回
func (e *Exporter) Close() error {
	var result *multierror.Error
	if e.accessLogSinker != nil {
		result = multierror.Append(result, e.accessLogSinker.Close())
	}
	if e.metricsSinker != nil {
		result = multierror.Append(result, e.metricsSinker.Close())
	}
	if e.tracesSinker != nil {
		result = multierror.Append(result, e.tracesSinker.Close())
	}
	if e.archiveSinker != nil {
		result = multierror.Append(result, e.archiveSinker.Close())
	}
	return result.ErrorOrNil()
}

// Export 把 rt 分发给每一个已启用的 Sinker 单个去向失败只记录日志 不影响其余去向
func (e *Exporter) Export(rt *stream.RoundTrip) {
	if e.accessLogSinker != nil {
		if err := e.accessLogSinker.Sink(rt); err != nil {
			logger.Errorf("sink accesslog failed: %v", err)
		}
	}
	if e.metricsSinker != nil {
		if err := e.metricsSinker.Sink(rt); err != nil {
			logger.Errorf("sink metrics failed: %v", err)
		}
	}
	if e.tracesSinker != nil {
		if err := e.tracesSinker.Sink(rt); err != nil {
			logger.Errorf("sink traces failed: %v", err)
		}
	}
	if e.archiveSinker != nil {
		if err := e.archiveSinker.Sink(rt); err != nil {
			logger.Errorf("sink archive failed: %v", err)
		}
	}

	if e.watch.Num() > 0 {
		if b, err := goccyjson.Marshal(rt); err == nil {
			e.watch.Publish(b)
		}
	}
}

// Watch 订阅实时 round-trip 摘要流 返回的 Queue 需在调用方停止监听后 Unwatch
func (e *Exporter) Watch(size int) pubsub.Queue {
	return e.watch.Subscribe(size)
}

// Unwatch 取消订阅并释放队列
func (e *Exporter) Unwatch(q pubsub.Queue) {
	e.watch.Unsubscribe(q)
	q.Close()
}
