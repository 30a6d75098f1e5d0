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

// Package pipeline 按配置装配一条请求处理管道: 一组具名 Stage 依次串联
// incoming 方向按声明顺序从前向后流动 outgoing 方向从后向前流动 终点分别是
// 应用 handler 和网络 connector
package pipeline

import (
	"fmt"

	"github.com/packetd/httpcore/confengine"
	"github.com/packetd/httpcore/packet"
	"github.com/packetd/httpcore/queue"
	"github.com/packetd/httpcore/stage"
)

// Config 是单条管道的声明式配置 Stages 按顺序排列 (handler 必须是最后一个)
type Config struct {
	Name   string   `config:"name"`
	Stages []string `config:"stages"`
}

// Factory 按名字构造一个 Stage 实例 fresh 实例 每条连接各自持有自己的状态
//
// ctx 由调用方在 Build 时传入 (通常是绑定到当前连接/请求的 *stream.Stream 等)
// 供需要连接级状态的 Stage (如 handler tail) 在构造时读取
type Factory func(ctx any) stage.Stage

// Registry 维护 Stage 名字到构造函数的映射
type Registry struct {
	factories map[string]Factory
}

// NewRegistry 创建一个空注册表
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register 注册一个具名 Stage 构造函数
func (r *Registry) Register(name string, f Factory) {
	r.factories[name] = f
}

// Pipeline 是从配置加载的一组命名管道定义 配合 Registry 实例化出真正的 Stage 链
type Pipeline struct {
	configs  []Config
	registry *Registry
}

// New 从配置中加载 `pipeline` 节点下声明的管道列表
func New(conf *confengine.Config, registry *Registry) (*Pipeline, error) {
	var configs []Config
	if err := conf.UnpackChild("pipeline", &configs); err != nil {
		return nil, err
	}
	return &Pipeline{configs: configs, registry: registry}, nil
}

// Chain 是一条已装配完成的 Stage 链 实现 stage.Next 以便每个 Stage 的默认实现
// 能够定位下一个队列/判断下游准入
type Chain struct {
	stages  []stage.Stage
	incomeQ []*queue.Queue
	outQ    []*queue.Queue
	onReady func()
}

// Build 按 name 对应的配置实例化一条 Stage 链 并为每个 Stage 创建收发队列
// ctx 透传给每个 Factory 用于绑定连接/请求级状态
func (p *Pipeline) Build(name string, maxQueue, packetSize int, ctx any) (*Chain, error) {
	var cfg *Config
	for i := range p.configs {
		if p.configs[i].Name == name {
			cfg = &p.configs[i]
			break
		}
	}
	if cfg == nil {
		return nil, fmt.Errorf("pipeline: unknown pipeline %q", name)
	}

	c := &Chain{}
	for _, stageName := range cfg.Stages {
		factory, ok := p.registry.factories[stageName]
		if !ok {
			return nil, fmt.Errorf("pipeline: unregistered stage %q", stageName)
		}
		s := factory(ctx)
		c.stages = append(c.stages, s)
		c.incomeQ = append(c.incomeQ, queue.New(s.Name()+"/in", queue.Incoming, maxQueue, packetSize))
		c.outQ = append(c.outQ, queue.New(s.Name()+"/out", queue.Outgoing, maxQueue, packetSize))
	}

	for i, s := range c.stages {
		if base, ok := s.(interface{ SetNext(stage.Next) }); ok {
			base.SetNext(&chainNext{chain: c, index: i})
		}
		s.Open(c.outQ[i])
	}
	return c, nil
}

// Stages 返回链中按声明顺序排列的 Stage
func (c *Chain) Stages() []stage.Stage { return c.stages }

// IncomingQueue 返回第 i 个 Stage 的 incoming 队列
func (c *Chain) IncomingQueue(i int) *queue.Queue { return c.incomeQ[i] }

// OutgoingQueue 返回第 i 个 Stage 的 outgoing 队列
func (c *Chain) OutgoingQueue(i int) *queue.Queue { return c.outQ[i] }

// OnReady 注册一个回调 在链中任一 Stage 通知有可读数据时触发
func (c *Chain) OnReady(f func()) { c.onReady = f }

// chainNext 是 stage.Next 的具体实现: incoming 方向指向下一个 Stage 的 incoming 队列
// outgoing 方向指向上一个 Stage 的 outgoing 队列 (更接近网络) 这与原始实现中
// "incoming 从 connector 走向 handler outgoing 从 handler 走向 connector 的相反顺序"
// 一致 —— 声明顺序即 incoming 的流向 outgoing 反向遍历同一个列表
type chainNext struct {
	chain *Chain
	index int
}

func (n *chainNext) NextQueue(dir queue.Direction) *queue.Queue {
	switch dir {
	case queue.Incoming:
		if n.index+1 < len(n.chain.incomeQ) {
			return n.chain.incomeQ[n.index+1]
		}
	case queue.Outgoing:
		if n.index > 0 {
			return n.chain.outQ[n.index-1]
		}
	}
	return nil
}

// Dispatch incoming 方向同步调用下一个 Stage 的 Incoming (真正驱动处理而不只是排队)
// outgoing 方向维持入队语义 由目标 Stage 自身的 OutgoingService 负责排空
func (n *chainNext) Dispatch(dir queue.Direction, p *packet.Packet) {
	switch dir {
	case queue.Incoming:
		if n.index+1 < len(n.chain.stages) {
			n.chain.stages[n.index+1].Incoming(n.chain.incomeQ[n.index+1], p)
		}
	case queue.Outgoing:
		if n.index > 0 {
			n.chain.outQ[n.index-1].Put(p)
		}
	}
}

func (n *chainNext) WillAccept(target *queue.Queue, p *packet.Packet) bool {
	if target.Suspended() {
		return false
	}
	return target.Room() >= p.Len() || p.Len() == 0
}

func (n *chainNext) NotifyReadable() {
	if n.chain.onReady != nil {
		n.chain.onReady()
	}
}
