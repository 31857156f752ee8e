/*
 * @module service/models/identity
 * @description 用户与公司模型，为转换守卫提供权限判定依据
 * @architecture 分层架构 - 数据模型层
 * @documentReference ai_docs/qa_workflow_req.md
 * @stateFlow 无状态流转，仅作守卫查询
 * @rules 超级操作员可绕过公司归属守卫
 * @dependencies gorm.io/gorm, github.com/google/uuid
 * @refs service/identity/provider.go
 */

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Company 公司模型（审查方、建造方、评级方统一表示）
type Company struct {
	ID        string    `gorm:"type:uuid;primary_key" json:"id"`
	Name      string    `gorm:"not null;unique" json:"name"`
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName 指定表名
func (Company) TableName() string {
	return "qa_companies"
}

// BeforeCreate 创建前钩子
func (c *Company) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return nil
}

// User 用户模型
type User struct {
	ID              string    `gorm:"type:uuid;primary_key" json:"id"`
	UserName        string    `gorm:"not null;unique" json:"user_name"`
	CompanyID       string    `gorm:"not null;type:varchar(36);index" json:"company_id"`
	IsSuperOperator bool      `gorm:"not null;default:false" json:"is_super_operator"`
	CreatedAt       time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`

	// 关联关系
	Company *Company `gorm:"foreignKey:CompanyID" json:"company,omitempty"`
}

// TableName 指定表名
func (User) TableName() string {
	return "qa_users"
}

// BeforeCreate 创建前钩子
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	return nil
}
