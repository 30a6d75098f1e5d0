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

// Package metrics 把完成的 round-trip 聚合为计数器/直方图 按配置的 interval
// 以 Prometheus remote-write 协议周期性推送到 endpoint
package metrics

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gogo/protobuf/proto"
	"github.com/golang/snappy"
	"github.com/prometheus/prometheus/prompb"

	"github.com/packetd/httpcore/common"
	"github.com/packetd/httpcore/exporter"
	"github.com/packetd/httpcore/internal/labels"
	"github.com/packetd/httpcore/internal/metricstorage"
	"github.com/packetd/httpcore/internal/rescue"
	"github.com/packetd/httpcore/logger"
	"github.com/packetd/httpcore/stream"
)

func init() {
	exporter.Register(common.RecordMetrics, New)
}

const expired = 5 * time.Minute

// Sinker 持有请求量/耗时/报文大小三组指标 周期性 flush 到远端
type Sinker struct {
	ctx    context.Context
	cancel context.CancelFunc

	cli *http.Client
	cfg *exporter.MetricsConfig

	requestsTotal *metricstorage.Counter
	reqBytes      *metricstorage.Counter
	respBytes     *metricstorage.Counter
	duration      *metricstorage.Histogram
}

func New(conf exporter.Config) (exporter.Sinker, error) {
	cfg := &conf.Metrics

	cli := &http.Client{
		Timeout: cfg.Timeout,
		Transport: &http.Transport{
			MaxIdleConnsPerHost: 10,
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Sinker{
		ctx:    ctx,
		cancel: cancel,
		cfg:    cfg,
		cli:    cli,

		requestsTotal: metricstorage.NewCounter("httpcore_requests_total", expired),
		reqBytes:      metricstorage.NewCounter("httpcore_request_bytes_total", expired),
		respBytes:     metricstorage.NewCounter("httpcore_response_bytes_total", expired),
		duration:      metricstorage.NewHistogram("httpcore_request_duration_seconds", expired, metricstorage.DefBuckets(metricstorage.UnitSeconds)),
	}

	go s.loop()
	return s, nil
}

func (s *Sinker) Name() common.RecordType {
	return common.RecordMetrics
}

// Sink 只做内存聚合 实际推送由后台 loop 周期完成
func (s *Sinker) Sink(rt *stream.RoundTrip) error {
	lbs := labels.Labels{
		{Name: "method", Value: rt.Method},
		{Name: "status", Value: fmt.Sprintf("%d", rt.Status)},
		{Name: "proto", Value: rt.Proto},
	}

	s.requestsTotal.Inc(lbs)
	s.reqBytes.Add(float64(rt.ReqBytes), lbs)
	s.respBytes.Add(float64(rt.RespBytes), lbs)
	s.duration.Observe(rt.Duration.Seconds(), lbs)
	return nil
}

func (s *Sinker) loop() {
	defer rescue.HandleCrash()
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.flush(); err != nil {
				logger.Warnf("failed to flush metrics: %v", err)
			}
			s.requestsTotal.RemoveExpired()
			s.reqBytes.RemoveExpired()
			s.respBytes.RemoveExpired()
			s.duration.RemoveExpired()

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Sinker) flush() error {
	var series []prompb.TimeSeries
	series = append(series, s.requestsTotal.PrompbSeriess()...)
	series = append(series, s.reqBytes.PrompbSeriess()...)
	series = append(series, s.respBytes.PrompbSeriess()...)
	series = append(series, s.duration.PrompbSeriess()...)
	if len(series) == 0 {
		return nil
	}

	wr := &prompb.WriteRequest{Timeseries: series}
	return s.push(wr)
}

func (s *Sinker) push(wr proto.Message) error {
	b, err := proto.Marshal(wr)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.Timeout)
	defer cancel()

	compressed := snappy.Encode(nil, b)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Endpoint, bytes.NewBuffer(compressed))
	if err != nil {
		return err
	}
	req.Header.Add("Content-Encoding", "snappy")
	req.Header.Set("Content-Type", "application/x-protobuf")
	req.Header.Set("X-Prometheus-Remote-Write-Version", "0.1.0")
	for k, v := range s.cfg.Header {
		req.Header.Add(k, v)
	}

	rsp, err := s.cli.Do(req)
	if err != nil {
		return err
	}
	defer rsp.Body.Close()
	io.Copy(io.Discard, rsp.Body)

	if rsp.StatusCode >= 400 {
		return fmt.Errorf("remote write rejected with status %d", rsp.StatusCode)
	}
	return nil
}

func (s *Sinker) Close() error {
	err := s.flush()
	s.cancel()
	return err
}
