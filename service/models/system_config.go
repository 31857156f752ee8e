/*
 * @module service/models/system_config
 * @description 系统配置模型，存储运营侧可调的引擎配置（如网关专项通知项目白名单）
 * @architecture 数据模型层
 * @documentReference ai_docs/qa_workflow_req.md
 * @stateFlow 配置存储 -> 配置读取 -> 配置更新
 * @rules 配置键唯一；引擎只读白名单内容，成员由运营方维护
 * @dependencies gorm.io/gorm
 * @refs service/meta/programs.go, service/qa/state_machine.go
 */

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SystemConfig 系统配置模型
type SystemConfig struct {
	ID          string    `gorm:"type:varchar(50);primaryKey" json:"id"`
	Key         string    `gorm:"type:varchar(100);not null;uniqueIndex" json:"key"`
	Value       string    `gorm:"type:text;not null" json:"value"`
	Description string    `gorm:"type:text" json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName 指定表名
func (SystemConfig) TableName() string {
	return "system_configs"
}

// BeforeCreate 创建前钩子
func (c *SystemConfig) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return nil
}
