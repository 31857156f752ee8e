/*
 * @module service/qa/gating
 * @description 认证门控协调器，依据审查状态判定工作项能否向下一认证阶段推进
 * @architecture 分层架构 - 业务服务层，两个状态机之间的唯一接缝
 * @documentReference ai_docs/qa_workflow_req.md
 * @stateFlow 审查转换/工作项变更 -> 门控重算 -> 尝试推进
 * @rules 仅"已开启且未完成"的网关审查阻断推进；网关策略未开审查不阻断；对工作项只读，唯一写路径是AttemptAdvance
 * @dependencies gorm.io/gorm, service/models, service/meta, service/workitem
 * @refs service/qa/reconciler.go
 */

package qa

import (
	"certqa-service/service/meta"
	"certqa-service/service/models"
	"certqa-service/service/workitem"
	"errors"

	"gorm.io/gorm"
)

// GatingCoordinator 认证门控协调器
type GatingCoordinator struct {
	db       *gorm.DB
	provider workitem.Provider
}

// NewGatingCoordinator 创建门控协调器实例
func NewGatingCoordinator(db *gorm.DB, provider workitem.Provider) *GatingCoordinator {
	return &GatingCoordinator{db: db, provider: provider}
}

// IsEligibleToAdvance 判定工作项是否可向下一认证阶段推进
// 对每个适用于工作项项目且gate_certification为true的策略:
// 存在未完成审查则阻断；从未开启审查不阻断（门控始于审查开启，而非策略配置）
func (g *GatingCoordinator) IsEligibleToAdvance(workItemID string) (bool, error) {
	var item models.WorkItem
	if err := g.db.First(&item, "id = ?", workItemID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, workitem.ErrWorkItemNotFound
		}
		return false, err
	}

	var gatingReqs []models.QARequirement
	if err := g.db.Where("program_slug = ? AND gate_certification = ?", item.ProgramSlug, true).
		Find(&gatingReqs).Error; err != nil {
		return false, err
	}

	for _, req := range gatingReqs {
		if !req.AppliesTo(&item) {
			continue
		}
		var review models.QAReview
		err := g.db.Where("requirement_id = ? AND work_item_id = ?", req.ID, item.ID).
			First(&review).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return false, err
		}
		if review.State != meta.ReviewStateComplete {
			return false, nil
		}
	}
	return true, nil
}

// AttemptAdvanceIfEligible 门控通过时请求工作项推进
// 返回是否发出了推进请求
func (g *GatingCoordinator) AttemptAdvanceIfEligible(workItemID string) (bool, error) {
	eligible, err := g.IsEligibleToAdvance(workItemID)
	if err != nil {
		return false, err
	}
	if !eligible {
		return false, nil
	}
	if err := g.provider.AttemptAdvance(workItemID); err != nil {
		return false, err
	}
	return true, nil
}
