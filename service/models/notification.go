/*
 * @module service/models/notification
 * @description 通知分发记录模型，状态处理器触发的(角色,消息类型,上下文)三元组的持久化形式
 * @architecture 事件驱动架构 - 数据模型层
 * @documentReference ai_docs/qa_workflow_req.md
 * @stateFlow 通知生成 -> 持久化 -> SSE/MQTT推送 -> 送达标记
 * @rules 通知为尽力而为，发送失败不回滚、不阻塞状态转换
 * @dependencies gorm.io/gorm, github.com/google/uuid
 * @refs service/event/event_service.go
 */

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Notification 通知分发记录
type Notification struct {
	ID                 string `gorm:"type:uuid;primary_key" json:"id"`
	RecipientRole      string `gorm:"not null;size:30;index" json:"recipient_role"`
	RecipientCompanyID string `gorm:"type:varchar(36);index" json:"recipient_company_id"`
	MessageType        string `gorm:"not null;size:50;index" json:"message_type"`
	Context            JSONB  `gorm:"type:jsonb" json:"context"`
	Status             string `gorm:"not null;size:20;default:'pending'" json:"status"` // pending, sent
	SentAt             *time.Time `json:"sent_at,omitempty"`
	CreatedAt          time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	CreatedBy          string     `gorm:"not null;default:'system';size:100" json:"created_by"`
}

// TableName 指定表名
func (Notification) TableName() string {
	return "qa_notifications"
}

// BeforeCreate 创建前钩子
func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.Status == "" {
		n.Status = "pending"
	}
	if n.CreatedBy == "" {
		n.CreatedBy = "system"
	}
	return nil
}
