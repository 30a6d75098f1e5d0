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

// Package controller 把 auth/session/pipeline/netconn/exporter/admin 各独立
// 模块按配置装配成一个可启停/可重载的应用进程 对应原始实现里 sniffer/连接池的
// 编排角色 只是流量来源从旁路镜像换成了直接监听的 TCP 连接
package controller

import (
	"context"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/packetd/httpcore/admin"
	"github.com/packetd/httpcore/auth"
	"github.com/packetd/httpcore/common"
	"github.com/packetd/httpcore/confengine"
	"github.com/packetd/httpcore/exporter"
	"github.com/packetd/httpcore/handler"
	"github.com/packetd/httpcore/httperror"
	"github.com/packetd/httpcore/internal/rescue"
	"github.com/packetd/httpcore/logger"
	"github.com/packetd/httpcore/netconn"
	"github.com/packetd/httpcore/pipeline"
	"github.com/packetd/httpcore/session"
)

// Controller 持有一次运行所需的全部组件 Start 之后即开始接受连接
type Controller struct {
	ctx       context.Context
	cancel    context.CancelFunc
	cfg       Config
	buildInfo common.BuildInfo

	pl   *pipeline.Pipeline
	exp  *exporter.Exporter
	au   *auth.Auth
	sess *session.Manager
	svr  *netconn.Server
	adm  *admin.Server

	listener net.Listener
}

func setupLogger(conf *confengine.Config) error {
	var opts logger.Options
	if err := conf.UnpackChild("logger", &opts); err != nil {
		return err
	}

	if opts.Filename == "" {
		opts.Filename = "httpcore.log"
	}
	if opts.MaxBackups <= 0 {
		opts.MaxBackups = 10
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = 7
	}
	if opts.MaxSize <= 0 {
		opts.MaxSize = 100
	}

	logger.SetOptions(opts)
	return nil
}

// setupAuth 把配置中的角色/用户名单灌入 au au 为 nil 时新建一个实例
// Reload 复用同一个 *auth.Auth 实例(先 Reset 再重新灌入) 以便 netconn.Server
// 持有的指针在重载后依旧生效 无需重新装配 Server
func setupAuth(au *auth.Auth, cfg AuthConfig) *auth.Auth {
	if au == nil {
		au = auth.New(nil)
	} else {
		au.Reset()
	}
	// 配置中以逗号分隔 auth 包按空白切分 这里先把逗号换成空格
	for _, r := range cfg.Roles {
		au.AddRole(r.Name, strings.ReplaceAll(r.Abilities, ",", " "))
	}
	for _, u := range cfg.Users {
		au.AddUser(u.Name, u.Password, strings.ReplaceAll(u.Roles, ",", " "))
	}
	return au
}

func setupSession(cfg SessionConfig) *session.Manager {
	cfg = cfg.withDefaults()
	cache := session.NewCache(cfg.GCInterval)
	return session.NewManager(cache, cfg.CookieName, cfg.Lifespan, cfg.MaxActive)
}

// New 按配置装配一个未启动的 Controller fn 是应用层请求处理函数 由调用方提供
func New(conf *confengine.Config, buildInfo common.BuildInfo, fn handler.Func) (*Controller, error) {
	if err := setupLogger(conf); err != nil {
		return nil, err
	}

	var cfg Config
	if err := conf.UnpackChild("controller", &cfg); err != nil {
		return nil, err
	}

	registry := netconn.NewRegistry()
	pl, err := pipeline.New(conf, registry)
	if err != nil {
		return nil, err
	}

	exp, err := exporter.New(conf)
	if err != nil {
		return nil, err
	}

	adm, err := admin.New(conf)
	if err != nil {
		return nil, err
	}

	au := setupAuth(nil, cfg.Auth)
	sess := setupSession(cfg.Session)

	metrics := httperror.Metrics{
		IncErrors:   handlerErrorsTotal.Inc,
		IncNotFound: handlerNotFoundTotal.Inc,
	}

	svr := netconn.NewServer(cfg.Netconn, pl, registry, fn, sess, au, metrics, exp)

	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		ctx:       ctx,
		cancel:    cancel,
		cfg:       cfg,
		buildInfo: buildInfo,
		pl:        pl,
		exp:       exp,
		au:        au,
		sess:      sess,
		svr:       svr,
		adm:       adm,
	}, nil
}

// Start 打开监听端口并开始接受连接 是非阻塞的: 接受循环运行在独立的 goroutine 中
func (c *Controller) Start() error {
	ln, err := net.Listen("tcp", c.cfg.Listen)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", c.cfg.Listen)
	}
	c.listener = ln

	if c.adm != nil {
		c.adm.RegisterHealth(c)
		c.adm.RegisterGetRoute("/watch", c.routeWatch)
		go func() {
			defer rescue.HandleCrash()
			if err := c.adm.ListenAndServe(); err != nil && !errors.Is(err, io.EOF) {
				logger.Errorf("failed to start admin server: %v", err)
			}
		}()
	}

	go func() {
		defer rescue.HandleCrash()
		if err := c.svr.Serve(ln); err != nil && !errors.Is(err, net.ErrClosed) {
			logger.Errorf("failed to serve: %v", err)
		}
	}()

	go c.recordMetricsLoop()

	logger.Infof("controller listening on %s", c.cfg.Listen)
	return nil
}

// recordMetricsLoop 周期性地把存活连接/会话数与构建信息写入 Prometheus 指标
// admin 的 /metrics 端点只是被动地把已注册的指标序列化 需要这个循环来保持新鲜度
func (c *Controller) recordMetricsLoop() {
	defer rescue.HandleCrash()

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	c.recordMetrics()
	for {
		select {
		case <-ticker.C:
			c.recordMetrics()
		case <-c.ctx.Done():
			return
		}
	}
}

// routeWatch 订阅实时 round-trip 摘要流 每行一个 JSON 对象 直至达到 max_message
// 条消息或 timeout 超时无新消息 用于临时性的现场调试而非长期监控
func (c *Controller) routeWatch(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return
	}

	maxMessage, _ := strconv.Atoi(r.URL.Query().Get("max_message"))
	if maxMessage <= 0 {
		maxMessage = 100
	}

	timeout, _ := time.ParseDuration(r.URL.Query().Get("timeout"))
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	q := c.exp.Watch(10)
	defer c.exp.Unwatch(q)

	w.Header().Set("Content-Type", "application/x-ndjson")
	for i := 0; i < maxMessage; i++ {
		data, ok := q.PopTimeout(timeout)
		if !ok {
			return
		}
		w.Write(data.([]byte))
		w.Write([]byte{'\n'})
		flusher.Flush()
	}
}

// ActiveConnections 实现 admin.HealthReporter 返回当前打开的客户端连接数
func (c *Controller) ActiveConnections() int64 {
	return c.svr.ActiveConnections()
}

// ActiveSessions 实现 admin.HealthReporter 返回当前缓存中存活的会话数
func (c *Controller) ActiveSessions() int64 {
	return c.sess.Active()
}

// Reload 目前只支持重建认证用户/角色表 监听地址与管道拓扑的变更需要重启进程
func (c *Controller) Reload(conf *confengine.Config) error {
	var cfg Config
	if err := conf.UnpackChild("controller", &cfg); err != nil {
		return err
	}
	setupAuth(c.au, cfg.Auth)
	c.cfg.Auth = cfg.Auth
	return nil
}

// Stop 关闭监听端口并释放所有导出器资源 不会打断已在处理中的连接
func (c *Controller) Stop() {
	if c.listener != nil {
		c.listener.Close()
	}
	if err := c.exp.Close(); err != nil {
		logger.Errorf("failed to close exporter: %v", err)
	}
	c.cancel()
}
