/*
 * @module service/workitem/provider
 * @description 工作项提供方，QA引擎与工作项自身认证状态机之间的唯一接缝
 * @architecture 分层架构 - 协作方接口层
 * @documentReference ai_docs/qa_workflow_req.md
 * @stateFlow 状态查询 -> 阶段判定 -> 尝试推进
 * @rules QA引擎对工作项只读，唯一的写入路径是AttemptAdvance；推进条件由工作项自身状态机决定
 * @dependencies gorm.io/gorm, service/models, service/meta
 * @refs service/qa/gating.go, service/qa/reconciler.go
 */

package workitem

import (
	"certqa-service/service/meta"
	"certqa-service/service/models"
	"errors"
	"log/slog"
	"time"

	"gorm.io/gorm"
)

// ErrWorkItemNotFound 工作项不存在
var ErrWorkItemNotFound = errors.New("工作项不存在")

// Provider 工作项提供方接口
type Provider interface {
	// GetState 查询工作项当前状态
	GetState(workItemID string) (string, error)
	// IsPastInspectionStage 判断工作项是否已越过待检阶段
	IsPastInspectionStage(workItemID string) (bool, error)
	// AttemptAdvance 请求工作项按自身状态机推进一步
	AttemptAdvance(workItemID string) error
}

// GormProvider 基于数据库的默认实现
type GormProvider struct {
	db *gorm.DB
}

// NewGormProvider 创建工作项提供方实例
func NewGormProvider(db *gorm.DB) *GormProvider {
	return &GormProvider{db: db}
}

// GetState 查询工作项当前状态
func (p *GormProvider) GetState(workItemID string) (string, error) {
	var item models.WorkItem
	if err := p.db.First(&item, "id = ?", workItemID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrWorkItemNotFound
		}
		return "", err
	}
	return item.State, nil
}

// IsPastInspectionStage 判断工作项是否已越过待检阶段
func (p *GormProvider) IsPastInspectionStage(workItemID string) (bool, error) {
	var item models.WorkItem
	if err := p.db.First(&item, "id = ?", workItemID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, ErrWorkItemNotFound
		}
		return false, err
	}
	return item.IsPastInspectionStage(), nil
}

// AttemptAdvance 请求工作项推进到下一认证阶段
// 已在终态或仍待检时为无操作；推进采用带状态前置条件的条件更新，容忍并发触发
func (p *GormProvider) AttemptAdvance(workItemID string) error {
	var item models.WorkItem
	if err := p.db.First(&item, "id = ?", workItemID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrWorkItemNotFound
		}
		return err
	}

	var next string
	updates := map[string]interface{}{"updated_at": time.Now()}
	switch item.State {
	case meta.WorkItemStateInspectionComplete:
		next = meta.WorkItemStateCertificationPending
	case meta.WorkItemStateCertificationPending:
		next = meta.WorkItemStateCertified
		now := time.Now()
		updates["certification_date"] = &now
	default:
		// 待检或已认证的工作项无可推进阶段
		return nil
	}
	updates["state"] = next

	// 条件更新跳过模型钩子: 目标模型为空值，next取自封闭状态集无需再校验
	result := p.db.Session(&gorm.Session{SkipHooks: true}).
		Model(&models.WorkItem{}).
		Where("id = ? AND state = ?", workItemID, item.State).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		// 并发触发下状态已被他方推进，视为成功
		slog.Debug("工作项推进时状态已变化，跳过", "work_item_id", workItemID, "expected_state", item.State)
	}
	return nil
}
