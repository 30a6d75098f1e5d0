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

package exporter

import (
	"net/url"
	"time"
)

const defaultTimeout = 15 * time.Second

// Config 汇总四个可独立开关的落地去向 每个去向对应 exporter/sinker 下的一个包
type Config struct {
	AccessLog AccessLogConfig `config:"accesslog"`
	Metrics   MetricsConfig   `config:"metrics"`
	Traces    TracesConfig    `config:"traces"`
	Archive   ArchiveConfig   `config:"archive"`
}

// AccessLogConfig 控制按 Common Log Format 落盘的访问日志
type AccessLogConfig struct {
	Enabled    bool   `config:"enabled"`
	Console    bool   `config:"console"`
	Filename   string `config:"filename"`
	MaxSize    int    `config:"maxSize"`
	MaxBackups int    `config:"maxBackups"`
	MaxAge     int    `config:"maxAge"`
}

func (c *AccessLogConfig) Validate() {
	if c.Filename == "" {
		c.Filename = "access.log"
	}
	if c.MaxSize <= 0 {
		c.MaxSize = 100
	}
	if c.MaxAge <= 0 {
		c.MaxAge = 7
	}
	if c.MaxBackups <= 0 {
		c.MaxBackups = 10
	}
}

// MetricsConfig 控制以 Prometheus remote-write 协议推送的请求指标
type MetricsConfig struct {
	Enabled  bool              `config:"enabled"`
	Endpoint string            `config:"endpoint"`
	Header   map[string]string `config:"header"`
	Interval time.Duration     `config:"interval"`
	Timeout  time.Duration     `config:"timeout"`
}

func (c *MetricsConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if _, err := url.Parse(c.Endpoint); err != nil {
		return err
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.Interval <= 0 {
		c.Interval = time.Minute
	}
	return nil
}

// TracesConfig 控制以 OTLP 资源属性生成的每请求一 span 追踪
type TracesConfig struct {
	Enabled     bool              `config:"enabled"`
	Batch       int               `config:"batch"`
	Endpoint    string            `config:"endpoint"`
	Header      map[string]string `config:"header"`
	Interval    time.Duration     `config:"interval"`
	Timeout     time.Duration     `config:"timeout"`
	ServiceName string            `config:"serviceName"`
}

func (c *TracesConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if _, err := url.Parse(c.Endpoint); err != nil {
		return err
	}
	if c.Batch <= 0 {
		c.Batch = 100
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.Interval <= 0 {
		c.Interval = 3 * time.Second
	}
	if c.ServiceName == "" {
		c.ServiceName = "httpcore"
	}
	return nil
}

// ArchiveConfig 控制把完成的 round-trip 写入 MongoDB 做长期留痕 永不阻塞主流程
type ArchiveConfig struct {
	Enabled    bool          `config:"enabled"`
	URI        string        `config:"uri"`
	Database   string        `config:"database"`
	Collection string        `config:"collection"`
	Timeout    time.Duration `config:"timeout"`
	QueueSize  int           `config:"queueSize"`
}

func (c *ArchiveConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Database == "" {
		c.Database = "httpcore"
	}
	if c.Collection == "" {
		c.Collection = "roundtrips"
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 1000
	}
	return nil
}
