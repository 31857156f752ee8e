/*
 * @module service/meta/review
 * @description QA审查状态机元数据定义，包括审查类型、状态、转换表和守卫规则
 * @architecture 分层架构 - 元数据层
 * @documentReference ai_docs/qa_workflow_req.md
 * @stateFlow received -> in_progress -> complete / correction_required <-> correction_received -> complete
 * @rules 状态、转换、守卫均为封闭集合，禁止运行时扩展
 * @refs service/qa/state_machine.go
 */

package meta

// 审查类型
const (
	ReviewTypeFile                        = "file"
	ReviewTypeField                       = "field"
	ReviewTypeProgramReview               = "program-review"
	ReviewTypeRoughInspection             = "rough-inspection"
	ReviewTypeRoughInspectionVirtualAudit = "rough-inspection-virtual-audit"
	ReviewTypeFinalInspection             = "final-inspection"
	ReviewTypeDesktopAudit                = "desktop-audit"
	ReviewTypeFinalInspectionVirtualAudit = "final-inspection-virtual-audit"
)

// ReviewTypes 审查类型封闭集合
var ReviewTypes = []string{
	ReviewTypeFile,
	ReviewTypeField,
	ReviewTypeProgramReview,
	ReviewTypeRoughInspection,
	ReviewTypeRoughInspectionVirtualAudit,
	ReviewTypeFinalInspection,
	ReviewTypeDesktopAudit,
	ReviewTypeFinalInspectionVirtualAudit,
}

// IsValidReviewType 验证审查类型
func IsValidReviewType(reviewType string) bool {
	for _, t := range ReviewTypes {
		if t == reviewType {
			return true
		}
	}
	return false
}

// 审查状态
const (
	ReviewStateReceived            = "received"
	ReviewStateInProgress          = "in_progress"
	ReviewStateComplete            = "complete"
	ReviewStateCorrectionRequired  = "correction_required"
	ReviewStateCorrectionReceived  = "correction_received"
)

// ReviewStates 审查状态封闭集合
var ReviewStates = []string{
	ReviewStateReceived,
	ReviewStateInProgress,
	ReviewStateComplete,
	ReviewStateCorrectionRequired,
	ReviewStateCorrectionReceived,
}

// IsValidReviewState 验证审查状态
func IsValidReviewState(state string) bool {
	for _, s := range ReviewStates {
		if s == state {
			return true
		}
	}
	return false
}

// 审查结论
const (
	ReviewResultPass = "pass"
	ReviewResultFail = "fail"
)

// IsValidReviewResult 验证审查结论
func IsValidReviewResult(result string) bool {
	return result == ReviewResultPass || result == ReviewResultFail
}

// 转换守卫类型
// GuardSystem: 仅由协调循环触发，用户调用一律拒绝
// GuardSystemOrOwner: 协调循环或审查方公司（含超级操作员）均可触发
// GuardOwner: 审查方公司或超级操作员
// GuardSubjectOwner: 工作项所属公司或超级操作员
const (
	GuardSystem        = "system"
	GuardSystemOrOwner = "system_or_owner"
	GuardOwner         = "owner"
	GuardSubjectOwner  = "subject_owner"
)

// 转换名称
const (
	TransitionReceivedToInProgress                  = "received_to_in_progress"
	TransitionInProgressToComplete                  = "in_progress_to_complete"
	TransitionInProgressToCorrectionRequired        = "in_progress_to_correction_required"
	TransitionCorrectionRequiredToCorrectionReceived = "correction_required_to_correction_received"
	TransitionCorrectionReceivedToCorrectionRequired = "correction_received_to_correction_required"
	TransitionCorrectionReceivedToComplete          = "correction_received_to_complete"
)

// ReviewTransitionDef 状态转换定义
type ReviewTransitionDef struct {
	Name         string `json:"name"`
	FromState    string `json:"from_state"`
	ToState      string `json:"to_state"`
	Guard        string `json:"guard"`
	RequiresNote bool   `json:"requires_note"`
}

// ReviewTransitionTable 状态转换表（封闭集合，按名称索引）
var ReviewTransitionTable = map[string]ReviewTransitionDef{
	TransitionReceivedToInProgress: {
		Name:      TransitionReceivedToInProgress,
		FromState: ReviewStateReceived,
		ToState:   ReviewStateInProgress,
		Guard:     GuardSystem,
	},
	TransitionInProgressToComplete: {
		Name:      TransitionInProgressToComplete,
		FromState: ReviewStateInProgress,
		ToState:   ReviewStateComplete,
		Guard:     GuardSystemOrOwner,
	},
	TransitionInProgressToCorrectionRequired: {
		Name:         TransitionInProgressToCorrectionRequired,
		FromState:    ReviewStateInProgress,
		ToState:      ReviewStateCorrectionRequired,
		Guard:        GuardOwner,
		RequiresNote: true,
	},
	TransitionCorrectionRequiredToCorrectionReceived: {
		Name:         TransitionCorrectionRequiredToCorrectionReceived,
		FromState:    ReviewStateCorrectionRequired,
		ToState:      ReviewStateCorrectionReceived,
		Guard:        GuardSubjectOwner,
		RequiresNote: true,
	},
	TransitionCorrectionReceivedToCorrectionRequired: {
		Name:         TransitionCorrectionReceivedToCorrectionRequired,
		FromState:    ReviewStateCorrectionReceived,
		ToState:      ReviewStateCorrectionRequired,
		Guard:        GuardOwner,
		RequiresNote: true,
	},
	TransitionCorrectionReceivedToComplete: {
		Name:      TransitionCorrectionReceivedToComplete,
		FromState: ReviewStateCorrectionReceived,
		ToState:   ReviewStateComplete,
		Guard:     GuardSystemOrOwner,
	},
}

// TransitionsFromState 获取某状态出发的全部转换定义
func TransitionsFromState(state string) []ReviewTransitionDef {
	var defs []ReviewTransitionDef
	for _, def := range ReviewTransitionTable {
		if def.FromState == state {
			defs = append(defs, def)
		}
	}
	return defs
}

// IsTerminalState 判断是否为终态
func IsTerminalState(state string) bool {
	return state == ReviewStateComplete
}

// 通知消息类型
const (
	MessageTypeReviewComplete      = "qa_review_complete"
	MessageTypeGatingFailed        = "qa_gating_failed"
	MessageTypeCorrectionRequired  = "qa_correction_required"
	MessageTypeCorrectionReceived  = "qa_correction_received"
	MessageTypeVerifierResponded   = "qa_verifier_responded"
	MessageTypeReviewerAssigned    = "qa_reviewer_assigned"
	MessageTypeReviewRecommended   = "qa_review_recommended"
)

// 通知接收角色
const (
	RecipientRoleReviewOwner   = "review_owner"
	RecipientRoleProviderOrg   = "provider_org"
	RecipientRoleRatingOrg     = "rating_org"
	RecipientRoleSubjectOwner  = "subject_owner"
	RecipientRoleAssignee      = "assignee"
)
