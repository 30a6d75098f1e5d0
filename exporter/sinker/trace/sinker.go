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

// Package trace 把每一次完成的 round-trip 转换为一个 OTLP span 经由内部批处理
// 队列按 batch/interval 聚合后以 OTLP/HTTP protobuf 推送到 collector endpoint
package trace

import (
	"bytes"
	"context"
	"net/http"

	"go.opentelemetry.io/collector/pdata/pcommon"
	"go.opentelemetry.io/collector/pdata/ptrace"
	"go.opentelemetry.io/collector/pdata/ptrace/ptraceotlp"
	"go.opentelemetry.io/otel/trace"

	"github.com/packetd/httpcore/common"
	"github.com/packetd/httpcore/exporter"
	"github.com/packetd/httpcore/internal/rescue"
	"github.com/packetd/httpcore/internal/tracekit"
	"github.com/packetd/httpcore/internal/tracestroage"
	"github.com/packetd/httpcore/logger"
	"github.com/packetd/httpcore/stream"
)

func init() {
	exporter.Register(common.RecordTraces, New)
}

type Sinker struct {
	ctx    context.Context
	cancel context.CancelFunc

	cli     *http.Client
	cfg     *exporter.TracesConfig
	storage *tracestroage.Storage
}

func New(conf exporter.Config) (exporter.Sinker, error) {
	cfg := &conf.Traces

	ctx, cancel := context.WithCancel(context.Background())
	s := &Sinker{
		ctx:     ctx,
		cancel:  cancel,
		cfg:     cfg,
		storage: tracestroage.New(cfg.Batch, cfg.Interval),
		cli:     &http.Client{Timeout: cfg.Timeout},
	}

	go s.loop()
	return s, nil
}

func (s *Sinker) Name() common.RecordType {
	return common.RecordTraces
}

// Sink 把一次 round-trip 转换为单个 span 投递到批处理队列 本身不做网络 IO
func (s *Sinker) Sink(rt *stream.RoundTrip) error {
	span := ptrace.NewSpan()
	span.SetTraceID(traceIDOrRandom(rt.TraceID))
	span.SetSpanID(spanIDOrRandom(rt.SpanID))
	span.SetName(rt.Method + " " + rt.Path)
	span.SetKind(ptrace.SpanKindServer)
	span.SetStartTimestamp(pcommon.NewTimestampFromTime(rt.StartedAt))
	span.SetEndTimestamp(pcommon.NewTimestampFromTime(rt.StartedAt.Add(rt.Duration)))

	attrs := span.Attributes()
	attrs.PutStr("http.method", rt.Method)
	attrs.PutStr("http.target", rt.Path)
	attrs.PutStr("http.scheme", rt.Proto)
	attrs.PutInt("http.status_code", int64(rt.Status))
	attrs.PutStr("net.peer.ip", rt.RemoteIP)
	attrs.PutInt("http.request_content_length", rt.ReqBytes)
	attrs.PutInt("http.response_content_length", rt.RespBytes)

	if rt.Status >= 500 {
		span.Status().SetCode(ptrace.StatusCodeError)
	} else {
		span.Status().SetCode(ptrace.StatusCodeOk)
	}

	s.storage.Push(span)
	return nil
}

func (s *Sinker) loop() {
	defer rescue.HandleCrash()
	for {
		select {
		case traces := <-s.storage.Pop():
			if err := s.push(traces); err != nil {
				logger.Warnf("failed to push traces: %v", err)
			}
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Sinker) push(traces ptrace.Traces) error {
	rs := traces.ResourceSpans().At(0).Resource().Attributes()
	rs.PutStr("service.name", s.cfg.ServiceName)

	req := ptraceotlp.NewExportRequestFromTraces(traces)
	b, err := req.MarshalProto()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Endpoint, bytes.NewReader(b))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/x-protobuf")
	for k, v := range s.cfg.Header {
		httpReq.Header.Add(k, v)
	}

	rsp, err := s.cli.Do(httpReq)
	if err != nil {
		return err
	}
	defer rsp.Body.Close()
	return nil
}

func traceIDOrRandom(hex string) pcommon.TraceID {
	if id, err := trace.TraceIDFromHex(hex); err == nil {
		return pcommon.TraceID(id)
	}
	return tracekit.RandomTraceID()
}

func spanIDOrRandom(hex string) pcommon.SpanID {
	if id, err := trace.SpanIDFromHex(hex); err == nil {
		return pcommon.SpanID(id)
	}
	return tracekit.RandomSpanID()
}

func (s *Sinker) Close() error {
	s.storage.Close()
	s.cancel()
	return nil
}
