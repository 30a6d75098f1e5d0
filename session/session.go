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

package session

import (
	"crypto/md5"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	goccyjson "github.com/packetd/httpcore/internal/json"
	"github.com/packetd/httpcore/internal/mapstructure"
)

// idSalt 是会话 id 摘要计算使用的固定前缀盐值 与原始实现的 `::http.session::` 一致
const idSalt = "::packetd.session::"

// Manager 按配置的 cookie 名与生存期管理会话的创建/查找/销毁
//
// 创建动作由单一互斥锁串行化 仅用于保护 activeCount 与 max 的比较-自增 其余读写依赖
// 共享 Cache 自身的原子性 这与原始实现"creation is serialised by a single lock" 的描述一致
type Manager struct {
	Cache      *Cache
	CookieName string
	Lifespan   time.Duration
	MaxActive  int

	mu      sync.Mutex
	active  int64
	counter uint64
}

// NewManager 创建一个会话管理器
func NewManager(cache *Cache, cookieName string, lifespan time.Duration, maxActive int) *Manager {
	return &Manager{Cache: cache, CookieName: cookieName, Lifespan: lifespan, MaxActive: maxActive}
}

// Active 返回当前存活的会话数 供 admin 健康检查端点读取
func (m *Manager) Active() int64 { return atomic.LoadInt64(&m.active) }

// Session 是附着在一个 Stream 上的会话句柄 非并发安全: 每个 Stream 同一时刻只应被一个
// goroutine 驱动
type Session struct {
	mgr     *Manager
	id      string
	data    map[string]any
	dirty   bool
	created bool
}

// Resolve 实现身份识别算法: 已绑定会话直接返回 否则在 cookie 头中寻找会话 id 并从共享
// 缓存加载快照 找不到则返回 nil,false (调用方可按需延迟创建)
func (m *Manager) Resolve(bound *Session, cookieHeaders []string) (*Session, bool) {
	if bound != nil {
		return bound, true
	}
	id := findCookieValue(cookieHeaders, m.CookieName)
	if id == "" {
		return nil, false
	}
	raw, ok := m.Cache.Get(id)
	if !ok {
		return nil, false
	}
	data := map[string]any{}
	if len(raw) > 0 {
		if err := goccyjson.Unmarshal(raw, &data); err != nil {
			return nil, false
		}
	}
	return &Session{mgr: m, id: id, data: data, created: true}, true
}

// Create 显式创建一个新会话 activeCount 超出 MaxActive 时返回 false (对应 503)
func (m *Manager) Create(streamPtr, netPtr uintptr) (*Session, bool) {
	m.mu.Lock()
	if m.MaxActive > 0 && m.active >= int64(m.MaxActive) {
		m.mu.Unlock()
		return nil, false
	}
	m.active++
	seq := atomic.AddUint64(&m.counter, 1)
	m.mu.Unlock()

	id := m.generateID(streamPtr, netPtr, seq)
	return &Session{mgr: m, id: id, data: map[string]any{}, created: true}, true
}

// generateID 对应原始实现: MD5(固定盐 ⊕ stream 指针 ⊕ net 指针 ⊕ 当前时钟 ⊕ 单调计数器)
func (m *Manager) generateID(streamPtr, netPtr uintptr, seq uint64) string {
	h := md5.New()
	h.Write([]byte(idSalt))
	fmt.Fprintf(h, "%x-%x-%x-%x", streamPtr, netPtr, time.Now().UnixNano(), seq)
	return fmt.Sprintf("%x", h.Sum(nil))
}

// ID 返回会话 id
func (s *Session) ID() string { return s.id }

// Get 读取一个键 不存在时返回 def
func (s *Session) Get(key string, def any) any {
	if v, ok := s.data[key]; ok {
		return v
	}
	return def
}

// Set 写入一个键 value 为 nil 时等价于删除该键
func (s *Session) Set(key string, value any) {
	if value == nil {
		delete(s.data, key)
	} else {
		s.data[key] = value
	}
	s.dirty = true
}

// Bind 把整张会话表解码进 out 指向的结构体 弱类型转换(数字/字符串互转)
// 供应用层在 Get/Set 之外以强类型方式批量读取会话数据
func (s *Session) Bind(out any) error {
	return mapstructure.WeakDecode(s.data, out)
}

// Write 将整张会话表序列化并写回共享缓存 使用会话的生存期
func (s *Session) Write() error {
	raw, err := goccyjson.Marshal(s.data)
	if err != nil {
		return err
	}
	s.mgr.Cache.Put(s.id, raw, s.mgr.Lifespan)
	s.dirty = false
	return nil
}

// Destroy 移除缓存快照并递减活动会话计数 调用方需要自行清除响应端的 cookie
func (s *Session) Destroy() {
	s.mgr.Cache.Expire(s.id)
	s.mgr.mu.Lock()
	s.mgr.active--
	s.mgr.mu.Unlock()
}

// SetCookieHeader 返回首次创建会话时应下发的 Set-Cookie 首部值
func (s *Session) SetCookieHeader() string {
	return fmt.Sprintf("%s=%s; path=/", s.mgr.CookieName, s.id)
}

// findCookieValue 在若干条 Cookie 首部原文中查找指定名称的值
//
// 接受被引号包裹或裸露的值 以 `,` `;` 或字符串结尾为终止符 并反转义反斜杠转义序列
// 与原始实现对 cookie 解析的宽松策略一致
func findCookieValue(headers []string, name string) string {
	for _, header := range headers {
		if v, ok := scanCookies(header, name); ok {
			return v
		}
	}
	return ""
}

func scanCookies(header, name string) (string, bool) {
	i := 0
	for i < len(header) {
		for i < len(header) && (header[i] == ' ' || header[i] == ';') {
			i++
		}
		eq := strings.IndexByte(header[i:], '=')
		if eq < 0 {
			break
		}
		key := strings.TrimSpace(header[i : i+eq])
		i += eq + 1
		var value string
		if i < len(header) && header[i] == '"' {
			i++
			var b strings.Builder
			for i < len(header) && header[i] != '"' {
				if header[i] == '\\' && i+1 < len(header) {
					i++
				}
				b.WriteByte(header[i])
				i++
			}
			if i < len(header) {
				i++ // skip closing quote
			}
			value = b.String()
		} else {
			start := i
			for i < len(header) && header[i] != ',' && header[i] != ';' {
				i++
			}
			value = strings.TrimSpace(header[start:i])
		}
		if key == name {
			return value, true
		}
		if i < len(header) && (header[i] == ',' || header[i] == ';') {
			i++
		}
	}
	return "", false
}
