/*
 * @module service/qa/state_machine
 * @description 审查状态机，带守卫的命名转换分发、乐观并发写入、评分校验与通知副作用
 * @architecture 分层架构 - 业务服务层，表驱动的状态处理器分发
 * @documentReference ai_docs/qa_workflow_req.md
 * @stateFlow received -> in_progress -> complete / correction_required <-> correction_received -> complete
 * @rules 写入前重读持久化状态；以状态前置条件的条件更新实现乐观并发；通知为尽力而为，不回滚转换
 * @dependencies gorm.io/gorm, github.com/spf13/cast, service/models, service/meta, service/identity
 * @refs service/qa/reconciler.go, service/qa/review_service.go
 */

package qa

import (
	"certqa-service/service/identity"
	"certqa-service/service/meta"
	"certqa-service/service/models"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cast"
	"gorm.io/gorm"
)

// Notifier 通知分发方接口，投递为尽力而为，无返回值可供消费
type Notifier interface {
	Send(recipientRole, messageType string, context map[string]interface{})
}

// StateMachine 审查状态机
type StateMachine struct {
	db       *gorm.DB
	identity identity.Provider
	notifier Notifier
	// afterTransition 转换提交后的回调，由初始化装配为协调循环入队
	afterTransition func(reviewID string)
}

// NewStateMachine 创建审查状态机实例
func NewStateMachine(db *gorm.DB, identityProvider identity.Provider, notifier Notifier) *StateMachine {
	return &StateMachine{
		db:       db,
		identity: identityProvider,
		notifier: notifier,
	}
}

// SetAfterTransitionHook 设置转换提交后的回调
func (m *StateMachine) SetAfterTransitionHook(hook func(reviewID string)) {
	m.afterTransition = hook
}

// TransitionRequest 转换请求
type TransitionRequest struct {
	ReviewID   string       `json:"review_id"`
	Transition string       `json:"transition"`
	ActorID    string       `json:"actor_id"`
	Note       string       `json:"note,omitempty"`
	// Payload 终态转换携带的结论与评分数据: result, awarded_points, award_level, badges
	Payload models.JSONB `json:"payload,omitempty"`
}

// Transition 执行一次命名状态转换
// 所有同步拒绝均不改变持久化状态
func (m *StateMachine) Transition(req *TransitionRequest) (*models.QAReview, error) {
	def, ok := meta.ReviewTransitionTable[req.Transition]
	if !ok {
		return nil, fmt.Errorf("%w: 未知转换 %s", ErrInvalidTransition, req.Transition)
	}

	// 写入前重读持久化状态，不信任跨异步边界携带的内存副本
	var review models.QAReview
	if err := m.db.Preload("Requirement").First(&review, "id = ?", req.ReviewID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if review.State != def.FromState {
		transitionRejectedTotal.WithLabelValues(def.Name, "invalid_state").Inc()
		return nil, fmt.Errorf("%w: 审查处于 %s，无法执行 %s", ErrInvalidTransition, review.State, def.Name)
	}

	if err := m.checkGuard(&def, req.ActorID, &review); err != nil {
		transitionRejectedTotal.WithLabelValues(def.Name, "forbidden").Inc()
		return nil, err
	}

	if def.RequiresNote && strings.TrimSpace(req.Note) == "" {
		transitionRejectedTotal.WithLabelValues(def.Name, "missing_note").Inc()
		return nil, ErrMissingRequiredNote
	}

	updates := map[string]interface{}{
		"state":      def.ToState,
		"updated_at": time.Now(),
		"updated_by": req.ActorID,
	}

	entersComplete := def.ToState == meta.ReviewStateComplete
	if _, hasResult := req.Payload["result"]; hasResult && !entersComplete {
		// 结论只允许随进入终态的转换设置
		transitionRejectedTotal.WithLabelValues(def.Name, "result_outside_complete").Inc()
		return nil, fmt.Errorf("%w: 审查结论仅允许随终态转换提交", ErrInvalidTransition)
	}
	if entersComplete {
		terminal, err := m.validateTerminalPayload(&review, req.Payload)
		if err != nil {
			return nil, err
		}
		updates["result"] = terminal.Result
		if terminal.AwardedPoints != nil {
			updates["awarded_points"] = terminal.AwardedPoints
		}
		if terminal.AwardLevel != nil {
			updates["award_level"] = terminal.AwardLevel
		}
		if len(terminal.Badges) > 0 {
			updates["badges"] = terminal.Badges
		}
	}

	err := m.db.Transaction(func(tx *gorm.DB) error {
		// 乐观并发: 以先前状态为写入前置条件，被并发修改时拒绝
		// 条件更新跳过模型钩子: 目标模型为空值，字段校验已在上方前置完成
		result := tx.Session(&gorm.Session{SkipHooks: true}).
			Model(&models.QAReview{}).
			Where("id = ? AND state = ?", review.ID, def.FromState).
			Updates(updates)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: 状态已被并发修改", ErrInvalidTransition)
		}

		if strings.TrimSpace(req.Note) != "" {
			note := &models.ReviewNote{
				ReviewID:  review.ID,
				Content:   req.Note,
				CreatedBy: req.ActorID,
			}
			if err := tx.Create(note).Error; err != nil {
				return err
			}
		}

		return m.appendTransitionLog(tx, &review, &def, req.ActorID)
	})
	if err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			transitionRejectedTotal.WithLabelValues(def.Name, "concurrent_write").Inc()
		}
		return nil, err
	}

	actorType := "user"
	if req.ActorID == identity.SystemActorID {
		actorType = "system"
	}
	transitionTotal.WithLabelValues(def.Name, actorType).Inc()

	// 副作用处理器: 仅通过Notifier产生外部效应，失败不回滚转换
	if handler, ok := transitionHandlers[def.Name]; ok {
		handler(m, &review, &def)
	}

	if m.afterTransition != nil {
		m.afterTransition(review.ID)
	}

	var updated models.QAReview
	if err := m.db.Preload("Requirement").First(&updated, "id = ?", review.ID).Error; err != nil {
		return nil, err
	}
	return &updated, nil
}

// checkGuard 校验执行者是否满足转换守卫
// 系统身份仅认协调循环传入的SystemActorID，空执行者一律按普通用户拒绝
func (m *StateMachine) checkGuard(def *meta.ReviewTransitionDef, actorID string, review *models.QAReview) error {
	isSystem := actorID == identity.SystemActorID

	switch def.Guard {
	case meta.GuardSystem:
		if !isSystem {
			return fmt.Errorf("%w: %s 仅允许系统触发", ErrForbidden, def.Name)
		}
		return nil
	case meta.GuardSystemOrOwner:
		if isSystem {
			return nil
		}
		return m.requireOwner(actorID, review)
	case meta.GuardOwner:
		if isSystem {
			return fmt.Errorf("%w: %s 不允许系统触发", ErrForbidden, def.Name)
		}
		return m.requireOwner(actorID, review)
	case meta.GuardSubjectOwner:
		if isSystem {
			return fmt.Errorf("%w: %s 不允许系统触发", ErrForbidden, def.Name)
		}
		return m.requireSubjectOwner(actorID, review)
	default:
		return fmt.Errorf("%w: 未知守卫 %s", ErrForbidden, def.Guard)
	}
}

// requireOwner 执行者须属于审查方公司或为超级操作员
func (m *StateMachine) requireOwner(actorID string, review *models.QAReview) error {
	if m.identity.IsSuperOperator(actorID) {
		return nil
	}
	if m.identity.CompanyOf(actorID) == review.OwnerCompanyID {
		return nil
	}
	return fmt.Errorf("%w: 执行者不属于审查方公司", ErrForbidden)
}

// requireSubjectOwner 执行者须属于工作项/批次所属公司或为超级操作员
func (m *StateMachine) requireSubjectOwner(actorID string, review *models.QAReview) error {
	if m.identity.IsSuperOperator(actorID) {
		return nil
	}
	company := m.identity.CompanyOf(actorID)
	if company == "" {
		return fmt.Errorf("%w: 执行者无公司归属", ErrForbidden)
	}
	if review.WorkItemID != nil {
		var item models.WorkItem
		if err := m.db.First(&item, "id = ?", *review.WorkItemID).Error; err == nil && item.CompanyID == company {
			return nil
		}
	}
	if review.SubdivisionID != nil {
		var sub models.Subdivision
		if err := m.db.First(&sub, "id = ?", *review.SubdivisionID).Error; err == nil && sub.CompanyID == company {
			return nil
		}
	}
	return fmt.Errorf("%w: 执行者不属于工作项所属公司", ErrForbidden)
}

// terminalPayload 终态转换解析后的评分数据
type terminalPayload struct {
	Result        string
	AwardedPoints *float64
	AwardLevel    *string
	Badges        models.JSONBStringArray
}

// validateTerminalPayload 校验进入终态的结论与项目评分数据
func (m *StateMachine) validateTerminalPayload(review *models.QAReview, payload models.JSONB) (*terminalPayload, error) {
	rawResult, ok := payload["result"]
	if !ok {
		transitionRejectedTotal.WithLabelValues("terminal", "missing_result").Inc()
		return nil, ErrMissingRequiredResult
	}
	result := cast.ToString(rawResult)
	if !meta.IsValidReviewResult(result) {
		return nil, fmt.Errorf("%w: 无效结论 %q", ErrValidationFailed, result)
	}

	terminal := &terminalPayload{Result: result}
	if raw, ok := payload["awarded_points"]; ok {
		points := cast.ToFloat64(raw)
		terminal.AwardedPoints = &points
	}
	if raw, ok := payload["award_level"]; ok {
		level := cast.ToString(raw)
		terminal.AwardLevel = &level
	}
	if raw, ok := payload["badges"]; ok {
		terminal.Badges = cast.ToStringSlice(raw)
	}

	if result == meta.ReviewResultFail {
		return terminal, nil
	}

	programSlug := m.subjectProgramSlug(review)
	program, found := meta.GetProgramDefinition(programSlug)
	if !found {
		// 项目元数据缺失属引用不一致，按可恢复处理: 跳过项目级校验
		slog.Warn("项目定义缺失，跳过评分校验", "review_id", review.ID, "program_slug", programSlug)
		return terminal, nil
	}

	// 申请奖项等级时，实际积分必须达到等级门槛（门槛严格升序）
	if terminal.AwardLevel != nil && *terminal.AwardLevel != "" {
		minPoints, ok := meta.MinPointsForAwardLevel(program.Slug, *terminal.AwardLevel)
		if !ok {
			transitionRejectedTotal.WithLabelValues("terminal", "unknown_award_level").Inc()
			return nil, fmt.Errorf("%w: 项目 %s 不存在奖项等级 %q", ErrValidationFailed, program.Slug, *terminal.AwardLevel)
		}
		points := 0.0
		if terminal.AwardedPoints != nil {
			points = *terminal.AwardedPoints
		}
		if points < minPoints {
			transitionRejectedTotal.WithLabelValues("terminal", "points_below_threshold").Inc()
			return nil, fmt.Errorf("%w: 奖项等级 %q 要求至少 %.0f 积分，实际 %.0f",
				ErrValidationFailed, *terminal.AwardLevel, minPoints, points)
		}
	}

	// 部分项目族要求终态前已存在结构化意见或至少一条备注
	if program.RequiresGradingRecord {
		if !m.hasGradingRecord(review.ID) {
			transitionRejectedTotal.WithLabelValues("terminal", "missing_grading_record").Inc()
			return nil, fmt.Errorf("%w: 该项目要求终态前至少存在一条意见记录或备注", ErrValidationFailed)
		}
	}

	return terminal, nil
}

// hasGradingRecord 判断审查是否已有意见记录或备注
func (m *StateMachine) hasGradingRecord(reviewID string) bool {
	var noteCount int64
	m.db.Model(&models.ReviewNote{}).Where("review_id = ?", reviewID).Count(&noteCount)
	if noteCount > 0 {
		return true
	}
	var obsCount int64
	m.db.Model(&models.Observation{}).
		Joins("JOIN qa_review_notes ON qa_review_notes.id = qa_observations.note_id").
		Where("qa_review_notes.review_id = ?", reviewID).
		Count(&obsCount)
	return obsCount > 0
}

// subjectProgramSlug 解析审查主体所属认证项目
func (m *StateMachine) subjectProgramSlug(review *models.QAReview) string {
	if review.WorkItemID != nil {
		var item models.WorkItem
		if err := m.db.First(&item, "id = ?", *review.WorkItemID).Error; err == nil {
			return item.ProgramSlug
		}
	}
	if review.SubdivisionID != nil {
		var sub models.Subdivision
		if err := m.db.First(&sub, "id = ?", *review.SubdivisionID).Error; err == nil {
			return sub.ProgramSlug
		}
	}
	if review.Requirement != nil {
		return review.Requirement.ProgramSlug
	}
	return ""
}

// appendTransitionLog 追加转换日志并观测状态停留时长
// Seq在实例内单调递增，构成单审查实例的逻辑时钟
func (m *StateMachine) appendTransitionLog(tx *gorm.DB, review *models.QAReview, def *meta.ReviewTransitionDef, actorID string) error {
	var last models.ReviewTransition
	var seq int64 = 1
	prevAt := review.CreatedAt
	err := tx.Where("review_id = ?", review.ID).Order("seq DESC").First(&last).Error
	if err == nil {
		seq = last.Seq + 1
		prevAt = last.CreatedAt
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	entry := &models.ReviewTransition{
		ReviewID:  review.ID,
		Seq:       seq,
		FromState: def.FromState,
		ToState:   def.ToState,
		ActorID:   actorID,
	}
	if err := tx.Create(entry).Error; err != nil {
		return err
	}

	stateDurationSeconds.WithLabelValues(def.FromState, def.ToState).
		Observe(time.Since(prevAt).Seconds())
	return nil
}

// GatingNoticePrograms 读取网关失败专项通知的项目白名单
// 白名单存储于系统配置，缺失时回退到默认值
func GatingNoticePrograms(db *gorm.DB) []string {
	var cfg models.SystemConfig
	if err := db.First(&cfg, "key = ?", meta.ConfigKeyGatingNoticePrograms).Error; err != nil {
		return meta.DefaultGatingNoticePrograms
	}
	var slugs []string
	if err := json.Unmarshal([]byte(cfg.Value), &slugs); err != nil {
		slog.Warn("网关通知白名单配置解析失败，使用默认值", "error", err)
		return meta.DefaultGatingNoticePrograms
	}
	return slugs
}
