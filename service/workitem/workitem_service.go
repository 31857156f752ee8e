/*
 * @module service/workitem/workitem_service
 * @description 工作项管理服务，创建与外部状态变更入口，变更后触发协调循环
 * @architecture 分层架构 - 业务服务层
 * @documentReference ai_docs/qa_workflow_req.md
 * @stateFlow 工作项创建 -> 抽检评估 -> 外部状态变更 -> 协调触发
 * @rules 工作项自身状态机归外部模块所有，本服务只承接其变更信号并触发QA协调
 * @dependencies gorm.io/gorm, service/models, service/meta
 * @refs service/qa/reconciler.go, api/controllers/workitem_controller.go
 */

package workitem

import (
	"certqa-service/service/meta"
	"certqa-service/service/models"
	"errors"
	"time"

	"gorm.io/gorm"
)

// Service 工作项管理服务
type Service struct {
	db *gorm.DB
	// afterCreate / afterChange 由初始化装配为协调循环触发
	afterCreate func(workItemID string)
	afterChange func(workItemID string)
}

// NewService 创建工作项管理服务实例
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// SetHooks 设置创建与变更后的回调
func (s *Service) SetHooks(afterCreate, afterChange func(workItemID string)) {
	s.afterCreate = afterCreate
	s.afterChange = afterChange
}

// CreateWorkItem 创建工作项
func (s *Service) CreateWorkItem(item *models.WorkItem, actorID string) error {
	item.CreatedBy = actorID
	item.UpdatedBy = actorID
	if err := s.db.Create(item).Error; err != nil {
		return err
	}
	if s.afterCreate != nil {
		s.afterCreate(item.ID)
	}
	return nil
}

// GetWorkItem 查询工作项
func (s *Service) GetWorkItem(id string) (*models.WorkItem, error) {
	var item models.WorkItem
	if err := s.db.First(&item, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWorkItemNotFound
		}
		return nil, err
	}
	return &item, nil
}

// UpdateState 承接工作项状态的外部变更信号
func (s *Service) UpdateState(id, state, actorID string) (*models.WorkItem, error) {
	if _, ok := meta.WorkItemStateOrder[state]; !ok {
		return nil, errors.New("无效的工作项状态: " + state)
	}

	item, err := s.GetWorkItem(id)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{
		"state":      state,
		"updated_at": time.Now(),
		"updated_by": actorID,
	}
	if state == meta.WorkItemStateCertified && item.CertificationDate == nil {
		now := time.Now()
		updates["certification_date"] = &now
	}
	// 跳过钩子: 列更新的目标模型为空值，state已在上方按封闭集合校验
	if err := s.db.Session(&gorm.Session{SkipHooks: true}).
		Model(&models.WorkItem{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return nil, err
	}

	if s.afterChange != nil {
		s.afterChange(id)
	}
	return s.GetWorkItem(id)
}
