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

package controller

import (
	"time"

	"github.com/packetd/httpcore/netconn"
)

// Config 是 controller 顶层配置 聚合了监听地址 认证/会话策略以及 netconn 的
// 连接处理参数 admin/exporter/pipeline 各自持有自己的配置节点 由各自的 New 解析
type Config struct {
	// Listen 是应用流量的监听地址 如 ":8080"
	Listen string `config:"listen"`

	Auth    AuthConfig    `config:"auth"`
	Session SessionConfig `config:"session"`
	Netconn netconn.Config `config:"netconn"`
}

// AuthConfig 声明静态的用户/角色表 用于构造 auth.Auth
//
// 对应原始实现里按配置文件声明用户名单的方式 没有提供动态用户管理接口
type AuthConfig struct {
	Roles []RoleConfig `config:"roles"`
	Users []UserConfig `config:"users"`
}

// RoleConfig 声明一个角色及其拥有的能力 用逗号分隔
type RoleConfig struct {
	Name      string `config:"name"`
	Abilities string `config:"abilities"`
}

// UserConfig 声明一个用户 密码以及它所属的角色 用逗号分隔
type UserConfig struct {
	Name     string `config:"name"`
	Password string `config:"password"`
	Roles    string `config:"roles"`
}

// SessionConfig 控制会话 Cookie 的名称 存活时长以及缓存容量
type SessionConfig struct {
	CookieName string        `config:"cookieName"`
	Lifespan   time.Duration `config:"lifespan"`
	MaxActive  int           `config:"maxActive"`
	GCInterval time.Duration `config:"gcInterval"`
}

func (c SessionConfig) withDefaults() SessionConfig {
	if c.CookieName == "" {
		c.CookieName = "PCSESSID"
	}
	if c.Lifespan <= 0 {
		c.Lifespan = 30 * time.Minute
	}
	if c.MaxActive <= 0 {
		c.MaxActive = 10000
	}
	if c.GCInterval <= 0 {
		c.GCInterval = time.Minute
	}
	return c
}
