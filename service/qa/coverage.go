/*
 * @module service/qa/coverage
 * @description 覆盖率计算器，计算审查方公司在某策略下已完成审查的工作量占比
 * @architecture 分层架构 - 业务服务层
 * @documentReference ai_docs/qa_workflow_req.md
 * @stateFlow 按需计算 -> 抽检建议判定
 * @rules 只读无副作用；每次评估重新计算，不做跨评估缓存；分母为零时返回0
 * @dependencies gorm.io/gorm, service/models, service/meta
 * @refs service/qa/reconciler.go
 */

package qa

import (
	"certqa-service/service/meta"
	"certqa-service/service/models"
	"time"

	"gorm.io/gorm"
)

// CoverageCalculator 覆盖率计算器
type CoverageCalculator struct {
	db *gorm.DB
}

// NewCoverageCalculator 创建覆盖率计算器实例
func NewCoverageCalculator(db *gorm.DB) *CoverageCalculator {
	return &CoverageCalculator{db: db}
}

// ActiveCoveragePct 计算策略的活跃覆盖率
// 分子: 该策略下已完成审查的工作项数
// 分母: 策略所属公司全部未认证工作项数
func (c *CoverageCalculator) ActiveCoveragePct(req *models.QARequirement) float64 {
	var total int64
	c.db.Model(&models.WorkItem{}).
		Where("company_id = ? AND state <> ?", req.CompanyID, meta.WorkItemStateCertified).
		Count(&total)
	if total == 0 {
		return 0
	}

	var reviewed int64
	c.db.Model(&models.QAReview{}).
		Joins("JOIN qa_work_items ON qa_work_items.id = qa_reviews.work_item_id").
		Where("qa_reviews.requirement_id = ? AND qa_reviews.state = ?", req.ID, meta.ReviewStateComplete).
		Where("qa_work_items.company_id = ?", req.CompanyID).
		Count(&reviewed)

	return float64(reviewed) / float64(total)
}

// YearlyCoveragePct 计算策略在某认证年度内的覆盖率
// 仅统计认证日期落在[1月1日, 次年1月1日)且审查结论非空的工作项
func (c *CoverageCalculator) YearlyCoveragePct(req *models.QARequirement, year int) float64 {
	yearStart := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	yearEnd := yearStart.AddDate(1, 0, 0)

	var total int64
	c.db.Model(&models.WorkItem{}).
		Where("company_id = ?", req.CompanyID).
		Where("certification_date >= ? AND certification_date < ?", yearStart, yearEnd).
		Count(&total)
	if total == 0 {
		return 0
	}

	var reviewed int64
	c.db.Model(&models.QAReview{}).
		Joins("JOIN qa_work_items ON qa_work_items.id = qa_reviews.work_item_id").
		Where("qa_reviews.requirement_id = ? AND qa_reviews.result IS NOT NULL", req.ID).
		Where("qa_work_items.company_id = ?", req.CompanyID).
		Where("qa_work_items.certification_date >= ? AND qa_work_items.certification_date < ?", yearStart, yearEnd).
		Count(&reviewed)

	return float64(reviewed) / float64(total)
}
