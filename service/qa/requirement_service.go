/*
 * @module service/qa/requirement_service
 * @description 审查要求策略管理服务，策略CRUD与引用保护删除
 * @architecture 分层架构 - 业务服务层
 * @documentReference ai_docs/qa_workflow_req.md
 * @stateFlow 策略创建 -> 策略编辑 -> 引用检查 -> 删除/拒绝
 * @rules 策略仅由审查方公司管理员或超级操作员删除；存在关联审查时删除被显式拒绝
 * @dependencies gorm.io/gorm, service/models, service/meta, service/identity
 * @refs service/qa/coverage.go, api/controllers/requirement_controller.go
 */

package qa

import (
	"certqa-service/service/identity"
	"certqa-service/service/meta"
	"certqa-service/service/models"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// RequirementService 审查要求策略管理服务
type RequirementService struct {
	db       *gorm.DB
	identity identity.Provider
	coverage *CoverageCalculator
}

// NewRequirementService 创建策略管理服务实例
func NewRequirementService(db *gorm.DB, identityProvider identity.Provider, coverage *CoverageCalculator) *RequirementService {
	return &RequirementService{
		db:       db,
		identity: identityProvider,
		coverage: coverage,
	}
}

// CreateRequirement 创建策略
func (s *RequirementService) CreateRequirement(req *models.QARequirement, actorID string) error {
	if !meta.IsValidReviewType(req.Type) {
		return fmt.Errorf("%w: %s", ErrInvalidPolicyType, req.Type)
	}
	if !s.identity.IsSuperOperator(actorID) && s.identity.CompanyOf(actorID) != req.CompanyID {
		return fmt.Errorf("%w: 仅审查方公司或超级操作员可创建策略", ErrForbidden)
	}
	req.CreatedBy = actorID
	req.UpdatedBy = actorID
	return s.db.Create(req).Error
}

// GetRequirement 查询策略
func (s *RequirementService) GetRequirement(id string) (*models.QARequirement, error) {
	var req models.QARequirement
	if err := s.db.First(&req, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &req, nil
}

// ListRequirements 按审查方公司列出策略
func (s *RequirementService) ListRequirements(companyID string) ([]models.QARequirement, error) {
	var reqs []models.QARequirement
	query := s.db.Order("created_at DESC")
	if companyID != "" {
		query = query.Where("company_id = ?", companyID)
	}
	err := query.Find(&reqs).Error
	return reqs, err
}

// UpdateRequirement 更新策略
func (s *RequirementService) UpdateRequirement(id string, updates *models.QARequirement, actorID string) (*models.QARequirement, error) {
	req, err := s.GetRequirement(id)
	if err != nil {
		return nil, err
	}
	if !s.identity.IsSuperOperator(actorID) && s.identity.CompanyOf(actorID) != req.CompanyID {
		return nil, fmt.Errorf("%w: 仅审查方公司或超级操作员可编辑策略", ErrForbidden)
	}

	req.CoveragePct = updates.CoveragePct
	req.GateCertification = updates.GateCertification
	req.RequiredCompanyIDs = updates.RequiredCompanyIDs
	req.UpdatedBy = actorID
	if err := s.db.Save(req).Error; err != nil {
		return nil, err
	}
	return req, nil
}

// DeleteRequirement 删除策略
// 引用完整性: 存在关联审查时显式拒绝，不做级联
func (s *RequirementService) DeleteRequirement(id, actorID string) error {
	req, err := s.GetRequirement(id)
	if err != nil {
		return err
	}
	if !s.identity.IsSuperOperator(actorID) && s.identity.CompanyOf(actorID) != req.CompanyID {
		return fmt.Errorf("%w: 仅审查方公司或超级操作员可删除策略", ErrForbidden)
	}

	var count int64
	if err := s.db.Model(&models.QAReview{}).Where("requirement_id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("%w: 存在 %d 条关联审查", ErrRequirementInUse, count)
	}
	return s.db.Delete(&models.QARequirement{}, "id = ?", id).Error
}

// ActiveCoverage 查询策略活跃覆盖率
func (s *RequirementService) ActiveCoverage(id string) (float64, error) {
	req, err := s.GetRequirement(id)
	if err != nil {
		return 0, err
	}
	return s.coverage.ActiveCoveragePct(req), nil
}

// YearlyCoverage 查询策略年度覆盖率
func (s *RequirementService) YearlyCoverage(id string, year int) (float64, error) {
	req, err := s.GetRequirement(id)
	if err != nil {
		return 0, err
	}
	return s.coverage.YearlyCoveragePct(req, year), nil
}
