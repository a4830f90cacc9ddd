package repository

import (
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Repositories 控制台仓库集合
type Repositories struct {
	Pin         *PinRepository
	ActivityLog *ActivityLogRepository
}

// NewRepositories 创建仓库集合
func NewRepositories(db *gorm.DB, rdb *redis.Client) *Repositories {
	return &Repositories{
		Pin:         NewPinRepository(rdb),
		ActivityLog: NewActivityLogRepository(db),
	}
}
