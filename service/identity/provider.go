/*
 * @module service/identity/provider
 * @description 组织/权限提供方，为状态机守卫提供用户公司归属与超级操作员判定
 * @architecture 分层架构 - 协作方接口层
 * @documentReference ai_docs/qa_workflow_req.md
 * @stateFlow 用户查询 -> 归属判定 -> 守卫决策
 * @rules QA引擎只消费本接口，不直接依赖用户管理模块内部实现
 * @dependencies gorm.io/gorm, service/models
 * @refs service/qa/state_machine.go
 */

package identity

import (
	"certqa-service/service/models"

	"gorm.io/gorm"
)

// SystemActorID 协调循环触发自动转换时使用的执行者标识
const SystemActorID = "system"

// Provider 组织/权限提供方接口
type Provider interface {
	// IsSuperOperator 判断用户是否为超级操作员
	IsSuperOperator(userID string) bool
	// CompanyOf 查询用户所属公司，未找到返回空串
	CompanyOf(userID string) string
}

// GormProvider 基于数据库的默认实现
type GormProvider struct {
	db *gorm.DB
}

// NewGormProvider 创建组织/权限提供方实例
func NewGormProvider(db *gorm.DB) *GormProvider {
	return &GormProvider{db: db}
}

// IsSuperOperator 判断用户是否为超级操作员
func (p *GormProvider) IsSuperOperator(userID string) bool {
	if userID == "" || userID == SystemActorID {
		return false
	}
	var user models.User
	if err := p.db.First(&user, "id = ?", userID).Error; err != nil {
		return false
	}
	return user.IsSuperOperator
}

// CompanyOf 查询用户所属公司
func (p *GormProvider) CompanyOf(userID string) string {
	if userID == "" || userID == SystemActorID {
		return ""
	}
	var user models.User
	if err := p.db.First(&user, "id = ?", userID).Error; err != nil {
		return ""
	}
	return user.CompanyID
}
