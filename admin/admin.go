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

// Package admin 提供一个与应用流量完全分离的内省/调试监听端口: pprof 剖析
// Prometheus 指标拉取端点 以及一个报告存活连接/会话数的健康检查端点
package admin

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/packetd/httpcore/confengine"
	"github.com/packetd/httpcore/logger"
)

// Config 控制内省服务器是否启用及其监听行为
type Config struct {
	Enabled bool          `config:"enabled"`
	Address string        `config:"address"`
	Pprof   bool          `config:"pprof"`
	Timeout time.Duration `config:"timeout"`
}

// HealthReporter 由 controller 实现 用于把实时连接/会话状态暴露给 /healthz
type HealthReporter interface {
	ActiveConnections() int64
	ActiveSessions() int64
}

// Server 是内省 HTTP 服务器 与应用流量使用不同的监听地址
type Server struct {
	config Config
	router *mux.Router
	server *http.Server
}

// New 创建内省服务器 .Enabled 为 false 时返回空指针 调用方需先判断
func New(conf *confengine.Config) (*Server, error) {
	var config Config
	if err := conf.UnpackChild("admin", &config); err != nil {
		return nil, err
	}
	if !config.Enabled {
		return nil, nil
	}

	router := mux.NewRouter()
	s := &Server{
		config: config,
		router: router,
		server: &http.Server{
			Handler:      router,
			ReadTimeout:  config.Timeout,
			WriteTimeout: config.Timeout,
		},
	}
	router.Methods(http.MethodGet).Path("/metrics").Handler(promhttp.Handler())
	if config.Pprof {
		s.registerPprofRoutes()
	}
	return s, nil
}

// RegisterHealth 挂载 /healthz 读取 rep 当前状态渲染为 JSON
func (s *Server) RegisterHealth(rep HealthReporter) {
	s.router.Methods(http.MethodGet).Path("/healthz").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]int64{
			"active_connections": rep.ActiveConnections(),
			"active_sessions":    rep.ActiveSessions(),
		})
	})
}

// RegisterGetRoute 挂载一个额外的 GET 路由 供 controller 暴露自定义诊断端点
func (s *Server) RegisterGetRoute(path string, f http.HandlerFunc) {
	s.router.Methods(http.MethodGet).Path(path).HandlerFunc(f)
}

// ListenAndServe 在配置的地址上监听 阻塞直至出错
func (s *Server) ListenAndServe() error {
	l, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return err
	}
	logger.Infof("admin server listening on %s", s.config.Address)
	return s.server.Serve(l)
}

func (s *Server) registerPprofRoutes() {
	s.router.Methods(http.MethodGet).Path("/debug/pprof/cmdline").HandlerFunc(pprof.Cmdline)
	s.router.Methods(http.MethodGet).Path("/debug/pprof/profile").HandlerFunc(pprof.Profile)
	s.router.Methods(http.MethodGet).Path("/debug/pprof/symbol").HandlerFunc(pprof.Symbol)
	s.router.Methods(http.MethodGet).Path("/debug/pprof/trace").HandlerFunc(pprof.Trace)
	s.router.Methods(http.MethodGet).Path("/debug/pprof/{other}").HandlerFunc(pprof.Index)
}
