/*
 * @module service/models/workitem
 * @description 可认证工作项（home status）与批次（subdivision）模型
 * @architecture 分层架构 - 数据模型层
 * @documentReference ai_docs/qa_workflow_req.md
 * @stateFlow pending_inspection -> inspection_complete -> certification_pending -> certified
 * @rules 工作项生命周期由workitem.Provider推进，QA引擎仅通过门控信号影响推进
 * @dependencies gorm.io/gorm, github.com/google/uuid, service/meta
 * @refs service/workitem/provider.go, service/qa/gating.go
 */

package models

import (
	"certqa-service/service/meta"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// WorkItem 可认证工作项模型
type WorkItem struct {
	ID     string `gorm:"type:uuid;primary_key" json:"id"`
	HomeID string `gorm:"not null;type:varchar(36);index:idx_workitem_home_program,unique" json:"home_id"`
	// ProgramSlug 同一主体(HomeID)在不同项目下各有一个工作项；field审查的影子工作项即同主体、专用项目
	ProgramSlug     string `gorm:"not null;size:50;index:idx_workitem_home_program,unique" json:"program_slug"`
	State           string `gorm:"not null;size:30;default:'pending_inspection'" json:"state"`
	CompanyID       string `gorm:"not null;type:varchar(36);index" json:"company_id"`
	RatingCompanyID string `gorm:"type:varchar(36)" json:"rating_company_id"`
	// CertificationDate 认证日期，认证完成后设置
	CertificationDate *time.Time `json:"certification_date,omitempty"`
	CreatedAt         time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	CreatedBy         string     `gorm:"not null;default:'system';size:100" json:"created_by"`
	UpdatedAt         time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
	UpdatedBy         string     `gorm:"not null;default:'system';size:100" json:"updated_by"`
}

// TableName 指定表名
func (WorkItem) TableName() string {
	return "qa_work_items"
}

// BeforeCreate 创建前钩子
func (w *WorkItem) BeforeCreate(tx *gorm.DB) error {
	if w.ID == "" {
		w.ID = uuid.New().String()
	}
	if w.State == "" {
		w.State = meta.WorkItemStatePendingInspection
	}
	if w.CreatedBy == "" {
		w.CreatedBy = "system"
	}
	if w.UpdatedBy == "" {
		w.UpdatedBy = "system"
	}
	return w.ValidateState()
}

// BeforeUpdate 更新前钩子
func (w *WorkItem) BeforeUpdate(tx *gorm.DB) error {
	if w.UpdatedBy == "" {
		w.UpdatedBy = "system"
	}
	return w.ValidateState()
}

// ValidateState 验证工作项状态
func (w *WorkItem) ValidateState() error {
	if _, ok := meta.WorkItemStateOrder[w.State]; !ok {
		return errors.New("无效的工作项状态: " + w.State)
	}
	return nil
}

// IsCertified 判断是否已完成认证
func (w *WorkItem) IsCertified() bool {
	return w.State == meta.WorkItemStateCertified
}

// IsPastInspectionStage 判断是否已越过待检阶段
func (w *WorkItem) IsPastInspectionStage() bool {
	return meta.WorkItemStateOrder[w.State] > meta.WorkItemStateOrder[meta.WorkItemStatePendingInspection]
}

// Subdivision 批次模型，多个工作项的审查聚合单位
type Subdivision struct {
	ID          string    `gorm:"type:uuid;primary_key" json:"id"`
	Name        string    `gorm:"not null" json:"name"`
	CompanyID   string    `gorm:"not null;type:varchar(36);index" json:"company_id"`
	ProgramSlug string    `gorm:"not null;size:50" json:"program_slug"`
	CreatedAt   time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	CreatedBy   string    `gorm:"not null;default:'system';size:100" json:"created_by"`
	UpdatedAt   time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
	UpdatedBy   string    `gorm:"not null;default:'system';size:100" json:"updated_by"`
}

// TableName 指定表名
func (Subdivision) TableName() string {
	return "qa_subdivisions"
}

// BeforeCreate 创建前钩子
func (s *Subdivision) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	if s.CreatedBy == "" {
		s.CreatedBy = "system"
	}
	if s.UpdatedBy == "" {
		s.UpdatedBy = "system"
	}
	return nil
}
