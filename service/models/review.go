/*
 * @module service/models/review
 * @description QA审查实例模型及其附属记录（备注、意见、状态转换日志）
 * @architecture 分层架构 - 数据模型层
 * @documentReference ai_docs/qa_workflow_req.md
 * @stateFlow 审查创建 -> 状态机转换 -> 终态记录结论
 * @rules work_item_id与subdivision_id恰好设置其一；result非空当且仅当state为complete；备注与意见只追加不删除
 * @dependencies gorm.io/gorm, github.com/google/uuid, service/meta
 * @refs service/qa/state_machine.go, service/qa/review_service.go
 */

package models

import (
	"certqa-service/service/meta"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrReviewSubjectInvariant 审查主体XOR不变量错误
var ErrReviewSubjectInvariant = errors.New("审查必须恰好关联一个工作项或一个批次，不能两者皆无或皆有")

// QAReview QA审查实例模型（策略 × 工作项/批次）
type QAReview struct {
	ID            string  `gorm:"type:uuid;primary_key" json:"id"`
	// 主体唯一性按工作项/批次各建局部唯一索引，NULL列不参与唯一判定故不能共用复合索引
	RequirementID string  `gorm:"not null;type:uuid;uniqueIndex:idx_review_requirement_workitem,where:work_item_id IS NOT NULL;uniqueIndex:idx_review_requirement_subdivision,where:subdivision_id IS NOT NULL" json:"requirement_id"`
	WorkItemID    *string `gorm:"type:varchar(36);uniqueIndex:idx_review_requirement_workitem,where:work_item_id IS NOT NULL;index" json:"work_item_id,omitempty"`
	SubdivisionID *string `gorm:"type:varchar(36);uniqueIndex:idx_review_requirement_subdivision,where:subdivision_id IS NOT NULL;index" json:"subdivision_id,omitempty"`
	State         string  `gorm:"not null;size:30;default:'received'" json:"state" example:"received"`
	// Result 审查结论，仅在进入complete的转换中设置
	Result     *string `gorm:"size:10" json:"result,omitempty"` // pass / fail
	AssigneeID *string `gorm:"type:varchar(36)" json:"assignee_id,omitempty"`
	// OwnerCompanyID 审查方公司，创建后不变
	OwnerCompanyID string `gorm:"not null;type:varchar(36);index" json:"owner_company_id"`

	// HasObservations / HasFailed 为派生字段，每次加载时由关联记录重算，创建时不作为权威值
	HasObservations bool `gorm:"not null;default:false" json:"has_observations"`
	HasFailed       bool `gorm:"not null;default:false" json:"has_failed"`

	// 项目相关评分数据，随终态转换提交
	AwardedPoints *float64         `json:"awarded_points,omitempty"`
	AwardLevel    *string          `gorm:"size:30" json:"award_level,omitempty"`
	Badges        JSONBStringArray `gorm:"type:jsonb" json:"badges,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	CreatedBy string    `gorm:"not null;default:'system';size:100" json:"created_by"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
	UpdatedBy string    `gorm:"not null;default:'system';size:100" json:"updated_by"`

	// 关联关系
	Requirement *QARequirement     `gorm:"foreignKey:RequirementID" json:"requirement,omitempty"`
	Notes       []ReviewNote       `gorm:"foreignKey:ReviewID" json:"notes,omitempty"`
	Transitions []ReviewTransition `gorm:"foreignKey:ReviewID" json:"transitions,omitempty"`
}

// TableName 指定表名
func (QAReview) TableName() string {
	return "qa_reviews"
}

// BeforeSave 保存前钩子，写入时强制校验不变量
func (r *QAReview) BeforeSave(tx *gorm.DB) error {
	if err := r.ValidateSubject(); err != nil {
		return err
	}
	if !meta.IsValidReviewState(r.State) {
		return errors.New("无效的审查状态: " + r.State)
	}
	// result非空当且仅当处于终态
	if r.Result != nil {
		if !meta.IsValidReviewResult(*r.Result) {
			return errors.New("无效的审查结论: " + *r.Result)
		}
		if r.State != meta.ReviewStateComplete {
			return errors.New("审查结论仅允许随进入complete的转换设置")
		}
	} else if r.State == meta.ReviewStateComplete {
		return errors.New("进入complete必须同时给出审查结论")
	}
	return nil
}

// BeforeCreate 创建前钩子
func (r *QAReview) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.State == "" {
		r.State = meta.ReviewStateReceived
	}
	if r.CreatedBy == "" {
		r.CreatedBy = "system"
	}
	if r.UpdatedBy == "" {
		r.UpdatedBy = "system"
	}
	return nil
}

// ValidateSubject 校验主体XOR不变量
func (r *QAReview) ValidateSubject() error {
	hasWorkItem := r.WorkItemID != nil && *r.WorkItemID != ""
	hasSubdivision := r.SubdivisionID != nil && *r.SubdivisionID != ""
	if hasWorkItem == hasSubdivision {
		return ErrReviewSubjectInvariant
	}
	return nil
}

// IsComplete 判断是否已到终态
func (r *QAReview) IsComplete() bool {
	return r.State == meta.ReviewStateComplete
}

// SubjectRef 返回审查主体引用（工作项优先）
func (r *QAReview) SubjectRef() string {
	if r.WorkItemID != nil && *r.WorkItemID != "" {
		return *r.WorkItemID
	}
	if r.SubdivisionID != nil {
		return *r.SubdivisionID
	}
	return ""
}

// ReviewNote 审查备注，只追加的审计记录
type ReviewNote struct {
	ID        string    `gorm:"type:uuid;primary_key" json:"id"`
	ReviewID  string    `gorm:"not null;type:uuid;index" json:"review_id"`
	Content   string    `gorm:"not null;type:text" json:"content"`
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	CreatedBy string    `gorm:"not null;default:'system';size:100" json:"created_by"`

	// 关联关系
	Observations []Observation `gorm:"foreignKey:NoteID" json:"observations,omitempty"`
}

// TableName 指定表名
func (ReviewNote) TableName() string {
	return "qa_review_notes"
}

// BeforeCreate 创建前钩子
func (n *ReviewNote) BeforeCreate(tx *gorm.DB) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedBy == "" {
		n.CreatedBy = "system"
	}
	if n.Content == "" {
		return errors.New("备注内容不能为空")
	}
	return nil
}

// ObservationType 意见类型字典
type ObservationType struct {
	ID          string    `gorm:"type:uuid;primary_key" json:"id"`
	Name        string    `gorm:"not null;unique" json:"name"`
	Description string    `gorm:"type:text" json:"description"`
	CreatedAt   time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName 指定表名
func (ObservationType) TableName() string {
	return "qa_observation_types"
}

// BeforeCreate 创建前钩子
func (o *ObservationType) BeforeCreate(tx *gorm.DB) error {
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	return nil
}

// Observation 结构化审查意见，挂在备注之下
type Observation struct {
	ID                string    `gorm:"type:uuid;primary_key" json:"id"`
	NoteID            string    `gorm:"not null;type:uuid;index" json:"note_id"`
	ObservationTypeID string    `gorm:"not null;type:uuid" json:"observation_type_id"`
	CreatedAt         time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	CreatedBy         string    `gorm:"not null;default:'system';size:100" json:"created_by"`

	// 关联关系
	ObservationType *ObservationType `gorm:"foreignKey:ObservationTypeID" json:"observation_type,omitempty"`
}

// TableName 指定表名
func (Observation) TableName() string {
	return "qa_observations"
}

// BeforeCreate 创建前钩子
func (o *Observation) BeforeCreate(tx *gorm.DB) error {
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	if o.CreatedBy == "" {
		o.CreatedBy = "system"
	}
	return nil
}

// ReviewTransition 状态转换日志，按单调递增的Seq构成审查实例内的逻辑时钟
// 独立于备注审计链，用于周期时长统计与has_failed派生
type ReviewTransition struct {
	ID        string    `gorm:"type:uuid;primary_key" json:"id"`
	ReviewID  string    `gorm:"not null;type:uuid;index:idx_transition_review_seq" json:"review_id"`
	Seq       int64     `gorm:"not null;index:idx_transition_review_seq" json:"seq"`
	FromState string    `gorm:"not null;size:30" json:"from_state"`
	ToState   string    `gorm:"not null;size:30" json:"to_state"`
	ActorID   string    `gorm:"not null;default:'system';size:100" json:"actor_id"`
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName 指定表名
func (ReviewTransition) TableName() string {
	return "qa_review_transitions"
}

// BeforeCreate 创建前钩子
func (t *ReviewTransition) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.ActorID == "" {
		t.ActorID = "system"
	}
	return nil
}
