/*
 * @module service/models/requirement
 * @description QA审查要求策略模型，描述某认证项目何时需要审查、由谁审查及是否阻断认证
 * @architecture 分层架构 - 数据模型层
 * @documentReference ai_docs/qa_workflow_req.md
 * @stateFlow 策略创建 -> 覆盖率评估 -> 审查创建 -> 策略引用保护
 * @rules coverage_pct取值[0,1]；存在关联审查时禁止删除
 * @dependencies gorm.io/gorm, github.com/google/uuid, service/meta
 * @refs service/qa/coverage.go, service/qa/review_service.go
 */

package models

import (
	"certqa-service/service/meta"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// QARequirement QA审查要求策略模型
type QARequirement struct {
	ID          string  `gorm:"type:uuid;primary_key" json:"id"`
	CompanyID   string  `gorm:"not null;type:varchar(36);uniqueIndex:idx_req_company_program_type" json:"company_id"`
	ProgramSlug string  `gorm:"not null;size:50;uniqueIndex:idx_req_company_program_type" json:"program_slug"`
	Type        string  `gorm:"not null;size:40;uniqueIndex:idx_req_company_program_type" json:"type" example:"file"`
	CoveragePct float64 `gorm:"not null;default:0" json:"coverage_pct" example:"0.5"` // 目标抽检覆盖比例 [0,1]
	// GateCertification 为true时，未完成的审查阻断工作项的认证推进
	GateCertification bool `gorm:"not null;default:false" json:"gate_certification"`
	// RequiredCompanyIDs 非空时仅对这些公司可见的工作项参与抽检
	RequiredCompanyIDs JSONBStringArray `gorm:"type:jsonb" json:"required_company_ids,omitempty"`
	CreatedAt          time.Time        `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	CreatedBy          string           `gorm:"not null;default:'system';size:100" json:"created_by"`
	UpdatedAt          time.Time        `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
	UpdatedBy          string           `gorm:"not null;default:'system';size:100" json:"updated_by"`

	// 关联关系
	Reviews []QAReview `gorm:"foreignKey:RequirementID" json:"reviews,omitempty"`
}

// TableName 指定表名
func (QARequirement) TableName() string {
	return "qa_requirements"
}

// BeforeCreate 创建前钩子
func (r *QARequirement) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.CreatedBy == "" {
		r.CreatedBy = "system"
	}
	if r.UpdatedBy == "" {
		r.UpdatedBy = "system"
	}
	return r.Validate()
}

// BeforeUpdate 更新前钩子
func (r *QARequirement) BeforeUpdate(tx *gorm.DB) error {
	if r.UpdatedBy == "" {
		r.UpdatedBy = "system"
	}
	return r.Validate()
}

// Validate 验证策略字段
func (r *QARequirement) Validate() error {
	if !meta.IsValidReviewType(r.Type) {
		return errors.New("无效的审查类型: " + r.Type)
	}
	if r.CoveragePct < 0 || r.CoveragePct > 1 {
		return errors.New("覆盖比例必须在[0,1]范围内")
	}
	return nil
}

// AppliesTo 判断策略是否适用于给定工作项
// 项目必须一致；配置了RequiredCompanyIDs时工作项所属公司须在其中
func (r *QARequirement) AppliesTo(item *WorkItem) bool {
	if item == nil || item.ProgramSlug != r.ProgramSlug {
		return false
	}
	if len(r.RequiredCompanyIDs) == 0 {
		return true
	}
	for _, id := range r.RequiredCompanyIDs {
		if id == item.CompanyID || id == item.RatingCompanyID {
			return true
		}
	}
	return false
}
