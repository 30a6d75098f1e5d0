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

// Package auth 实现角色/用户能力缓存 支持从父级上下文写时复制继承
package auth

import (
	"sort"
	"strings"
	"sync"
)

// Role 是一条具名能力集合
type Role struct {
	Name       string
	Abilities  map[string]struct{}
}

// User 持有密码摘要与展开后的能力集合
type User struct {
	Name      string
	Password  string
	Roles     string
	Abilities map[string]struct{}
}

// Auth 是角色/用户缓存 支持从 Parent 写时复制继承 (GRADUATE_HASH 语义):
// 第一次本地写入才克隆父级哈希 之后的读写只作用于本地副本
type Auth struct {
	mu     sync.RWMutex
	Parent *Auth

	roles      map[string]*Role
	users      map[string]*User
	ownRoles   bool
	ownUsers   bool
}

// New 创建一个鉴权上下文 parent 可为 nil
func New(parent *Auth) *Auth {
	return &Auth{Parent: parent}
}

func cloneRoles(src map[string]*Role) map[string]*Role {
	out := make(map[string]*Role, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

func cloneUsers(src map[string]*User) map[string]*User {
	out := make(map[string]*User, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// graduateRoles 确保本地拥有一份可写的角色表 首次调用时从父级克隆
func (a *Auth) graduateRoles() {
	if a.ownRoles {
		return
	}
	if a.Parent != nil {
		a.Parent.mu.RLock()
		a.roles = cloneRoles(a.Parent.roles)
		a.Parent.mu.RUnlock()
	} else {
		a.roles = make(map[string]*Role)
	}
	a.ownRoles = true
}

func (a *Auth) graduateUsers() {
	if a.ownUsers {
		return
	}
	if a.Parent != nil {
		a.Parent.mu.RLock()
		a.users = cloneUsers(a.Parent.users)
		a.Parent.mu.RUnlock()
	} else {
		a.users = make(map[string]*User)
	}
	a.ownUsers = true
}

// Reset 清空本地角色/用户表 不再继承 Parent 供配置重载时整体替换用户名单
func (a *Auth) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.roles = make(map[string]*Role)
	a.ownRoles = true
	a.users = make(map[string]*User)
	a.ownUsers = true
}

// AddRole 解析以空白分隔的能力串并(覆盖式)注册一个角色
func (a *Auth) AddRole(name, abilities string) *Role {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.graduateRoles()

	r := &Role{Name: name, Abilities: make(map[string]struct{})}
	for _, ability := range strings.Fields(abilities) {
		r.Abilities[ability] = struct{}{}
	}
	a.roles[name] = r
	return r
}

func (a *Auth) lookupRole(name string) (*Role, bool) {
	if a.ownRoles {
		r, ok := a.roles[name]
		return r, ok
	}
	if a.Parent != nil {
		return a.Parent.lookupRole(name)
	}
	return nil, false
}

// RolesToAbilities 把一个角色/字面能力混合的以空白或逗号分隔的串展开为稳定排序后的
// 能力列表 用分隔符 sep 连接 供授权判定与追踪复用
func (a *Auth) RolesToAbilities(roles, sep string) string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	set := map[string]struct{}{}
	for _, token := range strings.FieldsFunc(roles, func(r rune) bool {
		return r == ' ' || r == '\t' || r == ','
	}) {
		if r, ok := a.lookupRole(token); ok {
			for ability := range r.Abilities {
				set[ability] = struct{}{}
			}
		} else {
			set[token] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for ability := range set {
		out = append(out, ability)
	}
	sort.Strings(out)
	return strings.Join(out, sep)
}

// AddUser 注册一个用户 若提供了 roles 字符串 立即展开为能力集合
func (a *Auth) AddUser(name, password, roles string) *User {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.graduateUsers()

	u := &User{Name: name, Password: password, Roles: roles}
	u.Abilities = a.expandRolesLocked(roles)
	a.users[name] = u
	return u
}

func (a *Auth) expandRolesLocked(roles string) map[string]struct{} {
	abilities := make(map[string]struct{})
	if roles == "" {
		return abilities
	}
	for _, token := range strings.Fields(roles) {
		if r, ok := a.lookupRole(token); ok {
			for ability := range r.Abilities {
				abilities[ability] = struct{}{}
			}
		} else {
			abilities[token] = struct{}{}
		}
	}
	return abilities
}

// RecomputeAll 在角色表变动后重新展开所有已缓存用户的能力集合
func (a *Auth) RecomputeAll() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.ownUsers {
		return
	}
	for _, u := range a.users {
		u.Abilities = a.expandRolesLocked(u.Roles)
	}
}

// LookupUser 按用户名查找 (命中父级亦可 未写时复用父级表)
func (a *Auth) LookupUser(name string) (*User, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.ownUsers {
		u, ok := a.users[name]
		return u, ok
	}
	if a.Parent != nil {
		return a.Parent.LookupUser(name)
	}
	return nil, false
}

// RemoveUser 从本地表移除一个用户 (会先触发写时复制)
func (a *Auth) RemoveUser(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.graduateUsers()
	delete(a.users, name)
}

// RenameUser 重命名一个用户
func (a *Auth) RenameUser(oldName, newName string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.graduateUsers()
	u, ok := a.users[oldName]
	if !ok {
		return false
	}
	delete(a.users, oldName)
	u.Name = newName
	a.users[newName] = u
	return true
}

// CanAbility 判断 user 是否持有指定能力
func (u *User) CanAbility(ability string) bool {
	_, ok := u.Abilities[ability]
	return ok
}
