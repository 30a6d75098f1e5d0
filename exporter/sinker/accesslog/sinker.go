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

// Package accesslog 把完成的 round-trip 按 Common Log Format 追加写入文件或控制台
package accesslog

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/packetd/httpcore/common"
	"github.com/packetd/httpcore/exporter"
	"github.com/packetd/httpcore/stream"
)

func init() {
	exporter.Register(common.RecordAccessLog, New)
}

type Sinker struct {
	mu sync.Mutex
	wr io.WriteCloser
}

func New(conf exporter.Config) (exporter.Sinker, error) {
	cfg := &conf.AccessLog

	var wr io.WriteCloser
	switch {
	case cfg.Console:
		wr = os.Stdout
	default:
		wr = &lumberjack.Logger{
			Filename:   cfg.Filename,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			LocalTime:  true,
		}
	}

	return &Sinker{wr: wr}, nil
}

func (s *Sinker) Name() common.RecordType {
	return common.RecordAccessLog
}

// Sink 以 `%h %l %u %t "%r" %>s %b "%{Referer}i" "%{User-Agent}i"` 的组合日志格式写入一行
func (s *Sinker) Sink(rt *stream.RoundTrip) error {
	line := formatLine(rt)

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := io.WriteString(s.wr, line)
	return err
}

func formatLine(rt *stream.RoundTrip) string {
	user := "-"
	if rt.ReqHeader != nil {
		if u := rt.ReqHeader.Get("X-Remote-User"); u != "" {
			user = u
		}
	}

	referer := headerOrDash(rt.ReqHeader, "Referer")
	agent := headerOrDash(rt.ReqHeader, "User-Agent")

	return fmt.Sprintf("%s - %s [%s] \"%s %s %s\" %d %d \"%s\" \"%s\"\n",
		rt.RemoteIP,
		user,
		rt.StartedAt.Format("02/Jan/2006:15:04:05 -0700"),
		rt.Method,
		rt.Path,
		rt.Proto,
		rt.Status,
		rt.RespBytes,
		referer,
		agent,
	)
}

func headerOrDash(h http.Header, key string) string {
	if v := h.Get(key); v != "" {
		return v
	}
	return "-"
}

func (s *Sinker) Close() error {
	return s.wr.Close()
}
