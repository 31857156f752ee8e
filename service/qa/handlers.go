/*
 * @module service/qa/handlers
 * @description 状态转换副作用处理器表，按转换名分发通知副作用
 * @architecture 表驱动分发 - 状态节点处理器映射为纯函数表
 * @documentReference ai_docs/qa_workflow_req.md
 * @stateFlow 转换提交 -> 处理器查表 -> 通知分发
 * @rules 处理器的全部外部效应经由Notifier接口；通知失败不影响已提交的转换
 * @dependencies service/models, service/meta
 * @refs service/qa/state_machine.go, service/event/event_service.go
 */

package qa

import (
	"certqa-service/service/meta"
	"certqa-service/service/models"
	"log/slog"
)

// transitionHandlers 转换名 -> 副作用处理器
var transitionHandlers = map[string]func(*StateMachine, *models.QAReview, *meta.ReviewTransitionDef){
	meta.TransitionInProgressToComplete:                   handleComplete,
	meta.TransitionCorrectionReceivedToComplete:           handleComplete,
	meta.TransitionInProgressToCorrectionRequired:         handleCorrectionRequired,
	meta.TransitionCorrectionReceivedToCorrectionRequired: handleCorrectionRequired,
	meta.TransitionCorrectionRequiredToCorrectionReceived: handleCorrectionReceived,
}

// handleComplete 完成转换的副作用
// 建造方与评级方公司与审查方不同时各发一份完成通知；
// 网关策略且项目在白名单内、结论为fail时改发专项失败通知
func handleComplete(m *StateMachine, review *models.QAReview, def *meta.ReviewTransitionDef) {
	var fresh models.QAReview
	if err := m.db.Preload("Requirement").First(&fresh, "id = ?", review.ID).Error; err != nil {
		slog.Warn("完成通知: 审查加载失败", "review_id", review.ID, "error", err)
		return
	}

	notifyCtx := map[string]interface{}{
		"review_id":        fresh.ID,
		"transition":       def.Name,
		"owner_company_id": fresh.OwnerCompanyID,
	}
	if fresh.Result != nil {
		notifyCtx["result"] = *fresh.Result
	}

	if fresh.WorkItemID != nil {
		var item models.WorkItem
		if err := m.db.First(&item, "id = ?", *fresh.WorkItemID).Error; err == nil {
			notifyCtx["work_item_id"] = item.ID
			notifyCtx["program_slug"] = item.ProgramSlug
			if item.CompanyID != "" && item.CompanyID != fresh.OwnerCompanyID {
				notifyCtx["recipient_company_id"] = item.CompanyID
				m.notifier.Send(meta.RecipientRoleProviderOrg, meta.MessageTypeReviewComplete, notifyCtx)
			}
			if item.RatingCompanyID != "" && item.RatingCompanyID != fresh.OwnerCompanyID {
				notifyCtx["recipient_company_id"] = item.RatingCompanyID
				m.notifier.Send(meta.RecipientRoleRatingOrg, meta.MessageTypeReviewComplete, notifyCtx)
			}

			// 网关策略 + 白名单项目 + fail结论: 专项失败通知
			if fresh.Requirement != nil && fresh.Requirement.GateCertification &&
				fresh.Result != nil && *fresh.Result == meta.ReviewResultFail {
				for _, slug := range GatingNoticePrograms(m.db) {
					if slug == item.ProgramSlug {
						notifyCtx["recipient_company_id"] = item.CompanyID
						m.notifier.Send(meta.RecipientRoleProviderOrg, meta.MessageTypeGatingFailed, notifyCtx)
						break
					}
				}
			}
		}
	}
}

// handleCorrectionRequired 要求整改转换的副作用: 通知工作项所属公司
func handleCorrectionRequired(m *StateMachine, review *models.QAReview, def *meta.ReviewTransitionDef) {
	notifyCtx := map[string]interface{}{
		"review_id":  review.ID,
		"transition": def.Name,
	}
	if review.WorkItemID != nil {
		var item models.WorkItem
		if err := m.db.First(&item, "id = ?", *review.WorkItemID).Error; err == nil {
			notifyCtx["work_item_id"] = item.ID
			notifyCtx["recipient_company_id"] = item.CompanyID
		}
	} else if review.SubdivisionID != nil {
		var sub models.Subdivision
		if err := m.db.First(&sub, "id = ?", *review.SubdivisionID).Error; err == nil {
			notifyCtx["subdivision_id"] = sub.ID
			notifyCtx["recipient_company_id"] = sub.CompanyID
		}
	}
	m.notifier.Send(meta.RecipientRoleSubjectOwner, meta.MessageTypeCorrectionRequired, notifyCtx)
}

// handleCorrectionReceived 整改回复转换的副作用: 通知审查方
// 部分项目族改发"验证方已回复"专项通知
func handleCorrectionReceived(m *StateMachine, review *models.QAReview, def *meta.ReviewTransitionDef) {
	notifyCtx := map[string]interface{}{
		"review_id":            review.ID,
		"transition":           def.Name,
		"recipient_company_id": review.OwnerCompanyID,
	}

	messageType := meta.MessageTypeCorrectionReceived
	if program, ok := meta.GetProgramDefinition(m.subjectProgramSlug(review)); ok && program.VerifierRespondedNotice {
		messageType = meta.MessageTypeVerifierResponded
	}
	m.notifier.Send(meta.RecipientRoleReviewOwner, messageType, notifyCtx)
}
