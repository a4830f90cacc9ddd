package entity

import "time"

// ActivityLog 控制台操作日志（本服务唯一自有的持久化数据，上游不感知）
type ActivityLog struct {
	ID         string `json:"id" gorm:"primaryKey;size:32"`
	EntityType string `json:"entity_type" gorm:"size:50;not null;index:idx_console_activity_entity"` // request/item
	EntityID   int64  `json:"entity_id" gorm:"not null;index:idx_console_activity_entity"`

	Action     string `json:"action" gorm:"size:50;not null"` // create/patch/add_item/remove_item/mark_all_ready/pin/unpin/delete
	FromStatus string `json:"from_status" gorm:"size:20"`
	ToStatus   string `json:"to_status" gorm:"size:20"`

	Content string `json:"content" gorm:"type:text"`

	OperatorID   string    `json:"operator_id" gorm:"size:64"`
	OperatorName string    `json:"operator_name" gorm:"size:100"`
	CreatedAt    time.Time `json:"created_at"`
}

func (ActivityLog) TableName() string {
	return "console_activity_logs"
}
