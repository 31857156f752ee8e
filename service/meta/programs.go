/*
 * @module service/meta/programs
 * @description 认证项目元数据定义，包括项目族、奖项等级积分门槛和工作项状态
 * @architecture 分层架构 - 元数据层
 * @documentReference ai_docs/qa_workflow_req.md
 * @stateFlow 工作项: pending_inspection -> inspection_complete -> certification_pending -> certified
 * @rules 奖项等级按积分门槛严格升序排列；申请等级的门槛高于实际积分时拒绝
 * @refs service/qa/state_machine.go, service/workitem/provider.go
 */

package meta

// 工作项状态
const (
	WorkItemStatePendingInspection    = "pending_inspection"
	WorkItemStateInspectionComplete   = "inspection_complete"
	WorkItemStateCertificationPending = "certification_pending"
	WorkItemStateCertified            = "certified"
)

// WorkItemStateOrder 工作项状态顺序，用于阶段比较
var WorkItemStateOrder = map[string]int{
	WorkItemStatePendingInspection:    0,
	WorkItemStateInspectionComplete:   1,
	WorkItemStateCertificationPending: 2,
	WorkItemStateCertified:            3,
}

// 项目族
const (
	ProgramFamilyGreenBuild      = "green-build"
	ProgramFamilyEnergyEfficient = "energy-efficient"
	ProgramFamilyWaterRating     = "water-rating"
	ProgramFamilyQAField         = "qa-field"
)

// QAFieldProgramSlug field类型审查影子工作项挂载的专用项目
const QAFieldProgramSlug = "qa-field-review"

// AwardLevel 奖项等级定义
type AwardLevel struct {
	Name      string  `json:"name"`
	MinPoints float64 `json:"min_points"`
}

// ProgramDefinition 认证项目定义
type ProgramDefinition struct {
	Slug        string       `json:"slug"`
	Family      string       `json:"family"`
	DisplayName string       `json:"display_name"`
	// AwardLevels 按MinPoints严格升序
	AwardLevels []AwardLevel `json:"award_levels,omitempty"`
	// RequiresGradingRecord 终态pass转换要求至少存在一条意见记录或备注
	RequiresGradingRecord bool `json:"requires_grading_record"`
	// VerifierRespondedNotice correction_received转换使用专门的"验证方已回复"通知
	VerifierRespondedNotice bool `json:"verifier_responded_notice"`
}

// ProgramDefinitions 项目定义表（按slug索引）
var ProgramDefinitions = map[string]ProgramDefinition{
	"green-build-2020": {
		Slug:        "green-build-2020",
		Family:      ProgramFamilyGreenBuild,
		DisplayName: "绿色建筑标准 2020",
		AwardLevels: []AwardLevel{
			{Name: "bronze", MinPoints: 75},
			{Name: "silver", MinPoints: 125},
			{Name: "gold", MinPoints: 175},
			{Name: "emerald", MinPoints: 225},
		},
		RequiresGradingRecord:   true,
		VerifierRespondedNotice: true,
	},
	"green-build-remodel": {
		Slug:        "green-build-remodel",
		Family:      ProgramFamilyGreenBuild,
		DisplayName: "绿色建筑改造标准",
		AwardLevels: []AwardLevel{
			{Name: "bronze", MinPoints: 50},
			{Name: "silver", MinPoints: 100},
			{Name: "gold", MinPoints: 150},
		},
		RequiresGradingRecord:   true,
		VerifierRespondedNotice: true,
	},
	"energy-efficient-program": {
		Slug:        "energy-efficient-program",
		Family:      ProgramFamilyEnergyEfficient,
		DisplayName: "能效认证项目",
	},
	"water-rating-program": {
		Slug:        "water-rating-program",
		Family:      ProgramFamilyWaterRating,
		DisplayName: "用水评级项目",
	},
	QAFieldProgramSlug: {
		Slug:        QAFieldProgramSlug,
		Family:      ProgramFamilyQAField,
		DisplayName: "QA现场审查",
	},
}

// GetProgramDefinition 获取项目定义
func GetProgramDefinition(slug string) (ProgramDefinition, bool) {
	def, ok := ProgramDefinitions[slug]
	return def, ok
}

// MinPointsForAwardLevel 查询项目奖项等级的积分门槛
// 返回false表示该项目不存在此等级
func MinPointsForAwardLevel(programSlug, level string) (float64, bool) {
	def, ok := ProgramDefinitions[programSlug]
	if !ok {
		return 0, false
	}
	for _, al := range def.AwardLevels {
		if al.Name == level {
			return al.MinPoints, true
		}
	}
	return 0, false
}

// ConfigKeyGatingNoticePrograms 网关失败专项通知项目白名单的配置键
// 白名单成员由运营方维护，引擎只读
const ConfigKeyGatingNoticePrograms = "qa.gating_notice_programs"

// DefaultGatingNoticePrograms 白名单默认值
var DefaultGatingNoticePrograms = []string{"energy-efficient-program"}
