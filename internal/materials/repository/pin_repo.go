package repository

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// PinRepository 每用户的置顶请求单id集合
// Redis集合语义天然满足同会话近邻置顶切换的读改写安全
type PinRepository struct {
	rdb *redis.Client
}

func NewPinRepository(rdb *redis.Client) *PinRepository {
	return &PinRepository{rdb: rdb}
}

func pinKey(userID int64) string {
	return fmt.Sprintf("materials:pins:%d", userID)
}

// Pin 置顶
func (r *PinRepository) Pin(ctx context.Context, userID, requestID int64) error {
	return r.rdb.SAdd(ctx, pinKey(userID), requestID).Err()
}

// Unpin 取消本地置顶（上游声明的置顶不受影响，合并时上游true始终保留）
func (r *PinRepository) Unpin(ctx context.Context, userID, requestID int64) error {
	return r.rdb.SRem(ctx, pinKey(userID), requestID).Err()
}

// Set 读取置顶id集合；Redis不可用时返回空集（置顶属尽力而为展示功能）
func (r *PinRepository) Set(ctx context.Context, userID int64) (map[int64]struct{}, error) {
	members, err := r.rdb.SMembers(ctx, pinKey(userID)).Result()
	if err != nil {
		return map[int64]struct{}{}, err
	}
	set := make(map[int64]struct{}, len(members))
	for _, m := range members {
		if id, err := strconv.ParseInt(m, 10, 64); err == nil {
			set[id] = struct{}{}
		}
	}
	return set, nil
}
