/*
 * @module service/qa/review_service
 * @description 审查实例管理服务，创建/删除/加载审查、备注与意见追加、审查员改派
 * @architecture 分层架构 - 业务服务层
 * @documentReference ai_docs/qa_workflow_req.md
 * @stateFlow 审查创建 -> 影子工作项维护 -> 派生字段重算 -> 删除保护
 * @rules 主体XOR与唯一性在写入时拒绝；field类型审查维护影子工作项；影子缺失按可恢复处理
 * @dependencies gorm.io/gorm, service/models, service/meta, service/identity
 * @refs service/qa/state_machine.go, service/qa/reconciler.go
 */

package qa

import (
	"certqa-service/service/identity"
	"certqa-service/service/meta"
	"certqa-service/service/models"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/gorm"
)

// ReviewService 审查实例管理服务
type ReviewService struct {
	db       *gorm.DB
	identity identity.Provider
	notifier Notifier
	// afterCreate 创建提交后的回调，由初始化装配为协调循环入队
	afterCreate func(reviewID string)
}

// NewReviewService 创建审查管理服务实例
func NewReviewService(db *gorm.DB, identityProvider identity.Provider, notifier Notifier) *ReviewService {
	return &ReviewService{
		db:       db,
		identity: identityProvider,
		notifier: notifier,
	}
}

// SetAfterCreateHook 设置创建提交后的回调
func (s *ReviewService) SetAfterCreateHook(hook func(reviewID string)) {
	s.afterCreate = hook
}

// CreateReviewRequest 创建审查请求
type CreateReviewRequest struct {
	RequirementID string  `json:"requirement_id"`
	WorkItemID    *string `json:"work_item_id,omitempty"`
	SubdivisionID *string `json:"subdivision_id,omitempty"`
	AssigneeID    *string `json:"assignee_id,omitempty"`
	ActorID       string  `json:"actor_id"`
}

// CreateReview 创建审查实例
// field类型审查同时get-or-create共享同一主体的影子工作项
func (s *ReviewService) CreateReview(req *CreateReviewRequest) (*models.QAReview, error) {
	var requirement models.QARequirement
	if err := s.db.First(&requirement, "id = ?", req.RequirementID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: 策略 %s", ErrNotFound, req.RequirementID)
		}
		return nil, err
	}
	if !meta.IsValidReviewType(requirement.Type) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPolicyType, requirement.Type)
	}

	review := &models.QAReview{
		RequirementID:  requirement.ID,
		WorkItemID:     req.WorkItemID,
		SubdivisionID:  req.SubdivisionID,
		State:          meta.ReviewStateReceived,
		AssigneeID:     req.AssigneeID,
		OwnerCompanyID: requirement.CompanyID,
		CreatedBy:      req.ActorID,
		UpdatedBy:      req.ActorID,
	}
	if err := review.ValidateSubject(); err != nil {
		return nil, err
	}

	// 同策略同主体唯一
	dup := s.db.Model(&models.QAReview{}).Where("requirement_id = ?", requirement.ID)
	if review.WorkItemID != nil {
		dup = dup.Where("work_item_id = ?", *review.WorkItemID)
	} else {
		dup = dup.Where("subdivision_id = ?", *review.SubdivisionID)
	}
	var count int64
	if err := dup.Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrAlreadyExists
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(review).Error; err != nil {
			return err
		}
		if requirement.Type == meta.ReviewTypeField && review.WorkItemID != nil {
			return s.ensureShadowWorkItem(tx, *review.WorkItemID)
		}
		return nil
	})
	if err != nil {
		// 预检与写入之间的并发创建由唯一索引兜底
		if isUniqueViolation(err) {
			return nil, ErrAlreadyExists
		}
		return nil, err
	}

	if s.afterCreate != nil {
		s.afterCreate(review.ID)
	}
	return review, nil
}

// ensureShadowWorkItem get-or-create field审查的影子工作项
// 影子与原工作项共享HomeID，但挂在QA专用项目下
func (s *ReviewService) ensureShadowWorkItem(tx *gorm.DB, workItemID string) error {
	var item models.WorkItem
	if err := tx.First(&item, "id = ?", workItemID).Error; err != nil {
		return err
	}

	var shadow models.WorkItem
	err := tx.First(&shadow, "home_id = ? AND program_slug = ?", item.HomeID, meta.QAFieldProgramSlug).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	shadow = models.WorkItem{
		HomeID:          item.HomeID,
		ProgramSlug:     meta.QAFieldProgramSlug,
		State:           item.State,
		CompanyID:       item.CompanyID,
		RatingCompanyID: item.RatingCompanyID,
	}
	return tx.Create(&shadow).Error
}

// GetReview 加载审查实例并重算派生字段
// has_observations/has_failed 每次加载由关联记录重算，不信任存储值
func (s *ReviewService) GetReview(reviewID string) (*models.QAReview, error) {
	var review models.QAReview
	err := s.db.Preload("Requirement").
		Preload("Notes").
		Preload("Notes.Observations").
		Preload("Transitions", func(db *gorm.DB) *gorm.DB { return db.Order("seq ASC") }).
		First(&review, "id = ?", reviewID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	hasObservations := false
	for _, note := range review.Notes {
		if len(note.Observations) > 0 {
			hasObservations = true
			break
		}
	}
	hasFailed := false
	for _, t := range review.Transitions {
		if t.ToState == meta.ReviewStateCorrectionRequired {
			hasFailed = true
			break
		}
	}

	// 派生值漂移时写回，保持存储列可用于列表查询（跳过钩子: 目标模型为空值）
	if review.HasObservations != hasObservations || review.HasFailed != hasFailed {
		s.db.Session(&gorm.Session{SkipHooks: true}).
			Model(&models.QAReview{}).Where("id = ?", review.ID).
			Updates(map[string]interface{}{
				"has_observations": hasObservations,
				"has_failed":       hasFailed,
			})
	}
	review.HasObservations = hasObservations
	review.HasFailed = hasFailed
	return &review, nil
}

// ListReviews 按审查方公司列出审查实例
func (s *ReviewService) ListReviews(ownerCompanyID string, page, size int) ([]models.QAReview, int64, error) {
	query := s.db.Model(&models.QAReview{})
	if ownerCompanyID != "" {
		query = query.Where("owner_company_id = ?", ownerCompanyID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var reviews []models.QAReview
	err := query.Preload("Requirement").
		Order("created_at DESC").
		Offset((page - 1) * size).Limit(size).
		Find(&reviews).Error
	return reviews, total, err
}

// DeleteReview 删除审查实例
// 已记录终态结论的审查禁止删除；field类型级联删除影子工作项，影子缺失记录日志后继续
func (s *ReviewService) DeleteReview(reviewID, actorID string) error {
	var review models.QAReview
	if err := s.db.Preload("Requirement").First(&review, "id = ?", reviewID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}

	if !s.identity.IsSuperOperator(actorID) && s.identity.CompanyOf(actorID) != review.OwnerCompanyID {
		return fmt.Errorf("%w: 仅审查方公司或超级操作员可删除审查", ErrForbidden)
	}
	if review.Result != nil {
		return ErrAlreadyComplete
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if review.Requirement != nil && review.Requirement.Type == meta.ReviewTypeField && review.WorkItemID != nil {
			if err := s.deleteShadowWorkItem(tx, *review.WorkItemID); err != nil {
				return err
			}
		}

		// 记录更正: 删除审查时一并清理其审计链
		if err := tx.Where("note_id IN (?)",
			tx.Model(&models.ReviewNote{}).Select("id").Where("review_id = ?", review.ID),
		).Delete(&models.Observation{}).Error; err != nil {
			return err
		}
		if err := tx.Where("review_id = ?", review.ID).Delete(&models.ReviewNote{}).Error; err != nil {
			return err
		}
		if err := tx.Where("review_id = ?", review.ID).Delete(&models.ReviewTransition{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.QAReview{}, "id = ?", review.ID).Error
	})
}

// deleteShadowWorkItem 删除field审查的影子工作项
// 影子缺失属引用不一致，记录日志但不中止删除
func (s *ReviewService) deleteShadowWorkItem(tx *gorm.DB, workItemID string) error {
	var item models.WorkItem
	if err := tx.First(&item, "id = ?", workItemID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			slog.Warn("影子工作项删除: 原工作项不存在", "work_item_id", workItemID)
			return nil
		}
		return err
	}

	result := tx.Where("home_id = ? AND program_slug = ?", item.HomeID, meta.QAFieldProgramSlug).
		Delete(&models.WorkItem{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		slog.Warn("影子工作项缺失，删除继续", "home_id", item.HomeID)
	}
	return nil
}

// AddNote 追加备注及其结构化意见
func (s *ReviewService) AddNote(reviewID, actorID, content string, observationTypeIDs []string) (*models.ReviewNote, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrMissingRequiredNote
	}
	var review models.QAReview
	if err := s.db.First(&review, "id = ?", reviewID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	note := &models.ReviewNote{
		ReviewID:  review.ID,
		Content:   content,
		CreatedBy: actorID,
	}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(note).Error; err != nil {
			return err
		}
		for _, typeID := range observationTypeIDs {
			obs := &models.Observation{
				NoteID:            note.ID,
				ObservationTypeID: typeID,
				CreatedBy:         actorID,
			}
			if err := tx.Create(obs).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return note, nil
}

// UpdateAssignee 改派审查员
// 写路径显式比较改派前后值，发生变化时发送改派通知
func (s *ReviewService) UpdateAssignee(reviewID string, assigneeID *string, actorID string) (*models.QAReview, error) {
	var review models.QAReview
	if err := s.db.First(&review, "id = ?", reviewID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if !s.identity.IsSuperOperator(actorID) && s.identity.CompanyOf(actorID) != review.OwnerCompanyID {
		return nil, fmt.Errorf("%w: 仅审查方公司或超级操作员可改派审查员", ErrForbidden)
	}

	before := ""
	if review.AssigneeID != nil {
		before = *review.AssigneeID
	}
	after := ""
	if assigneeID != nil {
		after = *assigneeID
	}

	if before == after {
		return &review, nil
	}

	// 跳过钩子: 列更新的目标模型为空值，改派不触碰受校验字段
	err := s.db.Session(&gorm.Session{SkipHooks: true}).
		Model(&models.QAReview{}).Where("id = ?", review.ID).
		Updates(map[string]interface{}{
			"assignee_id": assigneeID,
			"updated_at":  time.Now(),
			"updated_by":  actorID,
		}).Error
	if err != nil {
		return nil, err
	}

	s.notifier.Send(meta.RecipientRoleAssignee, meta.MessageTypeReviewerAssigned, map[string]interface{}{
		"review_id":         review.ID,
		"previous_assignee": before,
		"new_assignee":      after,
		"recipient_company_id": review.OwnerCompanyID,
	})

	review.AssigneeID = assigneeID
	return &review, nil
}
