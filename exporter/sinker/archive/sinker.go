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

// Package archive 把完成的 round-trip 以尽力而为的方式写入 MongoDB 长期留痕
// 写入走有界队列 队列满时直接丢弃 永不阻塞调用方
package archive

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/packetd/httpcore/common"
	"github.com/packetd/httpcore/exporter"
	"github.com/packetd/httpcore/internal/rescue"
	"github.com/packetd/httpcore/logger"
	"github.com/packetd/httpcore/stream"
)

type record struct {
	Method     string            `bson:"method"`
	Path       string            `bson:"path"`
	Proto      string            `bson:"proto"`
	RemoteIP   string            `bson:"remoteIp"`
	Status     int               `bson:"status"`
	ReqHeader  map[string]string `bson:"reqHeader"`
	RespHeader map[string]string `bson:"respHeader"`
	ReqBytes   int64             `bson:"reqBytes"`
	RespBytes  int64             `bson:"respBytes"`
	StartedAt  time.Time         `bson:"startedAt"`
	DurationMs int64             `bson:"durationMs"`
}

func init() {
	exporter.Register(common.RecordArchive, New)
}

type Sinker struct {
	cfg *exporter.ArchiveConfig

	cli   *mongo.Client
	coll  *mongo.Collection
	queue chan *stream.RoundTrip
	done  chan struct{}
}

func New(conf exporter.Config) (exporter.Sinker, error) {
	cfg := &conf.Archive

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	cli, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, err
	}

	s := &Sinker{
		cfg:   cfg,
		cli:   cli,
		coll:  cli.Database(cfg.Database).Collection(cfg.Collection),
		queue: make(chan *stream.RoundTrip, cfg.QueueSize),
		done:  make(chan struct{}),
	}
	go s.loop()
	return s, nil
}

func (s *Sinker) Name() common.RecordType {
	return common.RecordArchive
}

// Sink 把 rt 投递到有界队列 队列已满时直接丢弃并记录日志
func (s *Sinker) Sink(rt *stream.RoundTrip) error {
	select {
	case s.queue <- rt:
	default:
		logger.Warnf("archive queue full, dropping round-trip for %s %s", rt.Method, rt.Path)
	}
	return nil
}

func (s *Sinker) loop() {
	defer rescue.HandleCrash()
	for {
		select {
		case rt := <-s.queue:
			if err := s.insert(rt); err != nil {
				logger.Warnf("failed to archive round-trip: %v", err)
			}
		case <-s.done:
			return
		}
	}
}

func (s *Sinker) insert(rt *stream.RoundTrip) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
	defer cancel()

	doc := record{
		Method:     rt.Method,
		Path:       rt.Path,
		Proto:      rt.Proto,
		RemoteIP:   rt.RemoteIP,
		Status:     rt.Status,
		ReqHeader:  flattenHeader(rt.ReqHeader),
		RespHeader: flattenHeader(rt.RespHeader),
		ReqBytes:   rt.ReqBytes,
		RespBytes:  rt.RespBytes,
		StartedAt:  rt.StartedAt,
		DurationMs: rt.Duration.Milliseconds(),
	}
	_, err := s.coll.InsertOne(ctx, doc)
	return err
}

func flattenHeader(h map[string][]string) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

func (s *Sinker) Close() error {
	close(s.done)
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
	defer cancel()
	return s.cli.Disconnect(ctx)
}
