/*
 * @module service/models/access
 * @description API密钥模型，保护QA引擎对外HTTP操作面
 * @architecture 分层架构 - 数据模型层
 * @documentReference ai_docs/qa_workflow_req.md
 * @stateFlow 密钥签发 -> bcrypt哈希存储 -> 前缀定位 -> 哈希比对
 * @rules 明文密钥仅在签发时返回一次，库中只存哈希
 * @dependencies gorm.io/gorm, github.com/google/uuid
 * @refs service/access/apikey_service.go
 */

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ApiKey API密钥模型
type ApiKey struct {
	ID           string     `gorm:"type:uuid;primary_key" json:"id"`
	Name         string     `gorm:"not null" json:"name"`
	KeyPrefix    string     `gorm:"not null;size:8;index" json:"key_prefix"` // 前缀用于快速定位
	KeyValueHash string     `gorm:"not null;unique" json:"-"`                // 存储bcrypt哈希后的Key值
	Status       string     `gorm:"not null;default:'active'" json:"status"` // active, revoked
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	LastUsedAt   *time.Time `json:"last_used_at,omitempty"`
	CreatedBy    string     `gorm:"size:100" json:"created_by"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// TableName 指定表名
func (ApiKey) TableName() string {
	return "qa_api_keys"
}

// BeforeCreate 创建前钩子
func (k *ApiKey) BeforeCreate(tx *gorm.DB) error {
	if k.ID == "" {
		k.ID = uuid.New().String()
	}
	if k.Status == "" {
		k.Status = "active"
	}
	return nil
}

// IsUsable 判断密钥当前是否可用
func (k *ApiKey) IsUsable(now time.Time) bool {
	if k.Status != "active" {
		return false
	}
	if k.ExpiresAt != nil && k.ExpiresAt.Before(now) {
		return false
	}
	return true
}
