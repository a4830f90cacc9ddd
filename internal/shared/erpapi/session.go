package erpapi

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Identity 上游解析出的当前用户身份
type Identity struct {
	UserID          int64  `json:"user_id"`
	Name            string `json:"name"`
	CanSeeSensitive bool   `json:"can_see_sensitive"`
}

// SessionStore 会话存储：凭证→身份解析 + 会话过期观察者
// 身份解析结果短TTL缓存在Redis，避免每个请求都打一次上游/auth/me
type SessionStore struct {
	api    *Client
	rdb    *redis.Client
	logger *zap.Logger
	ttl    time.Duration

	mu        sync.RWMutex
	observers []func()
}

// NewSessionStore 创建会话存储
func NewSessionStore(api *Client, rdb *redis.Client, logger *zap.Logger) *SessionStore {
	s := &SessionStore{
		api:    api,
		rdb:    rdb,
		logger: logger,
		ttl:    2 * time.Minute,
	}
	api.OnSessionExpired(s.notifyExpired)
	return s
}

// OnExpired 注册会话过期观察者（显式注册，替代全局事件广播）
func (s *SessionStore) OnExpired(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

func (s *SessionStore) notifyExpired() {
	s.mu.RLock()
	observers := make([]func(), len(s.observers))
	copy(observers, s.observers)
	s.mu.RUnlock()
	for _, fn := range observers {
		fn()
	}
}

// Resolve 解析凭证对应的身份与敏感字段能力
// 上游失败（401除外）降级为非特权身份而不报错：能力解析属于尽力而为调用
func (s *SessionStore) Resolve(ctx context.Context, token string) (*Identity, error) {
	cacheKey := "auth:me:" + hashToken(token)

	if s.rdb != nil {
		if cached, err := s.rdb.Get(ctx, cacheKey).Result(); err == nil {
			var id Identity
			if json.Unmarshal([]byte(cached), &id) == nil {
				return &id, nil
			}
		}
	}

	var me MeResponse
	if err := s.api.Get(ctx, token, "/api/auth/me", &me); err != nil {
		if IsUnauthorized(err) {
			return nil, err
		}
		// 安全默认：解析失败按非管理员处理，不阻断页面
		s.logger.Warn("Resolve identity failed, degrading to non-privileged", zap.Error(err))
		return &Identity{CanSeeSensitive: false}, nil
	}

	id := &Identity{
		UserID:          me.ID,
		Name:            me.Name,
		CanSeeSensitive: me.CanSeeSensitive(),
	}

	if s.rdb != nil {
		if raw, err := json.Marshal(id); err == nil {
			s.rdb.Set(ctx, cacheKey, raw, s.ttl)
		}
	}
	return id, nil
}

// hashToken 凭证不落缓存键原文
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:16])
}
