/*
 * @module service/models/review_test
 * @description 审查实例模型不变量测试
 * @architecture 测试层 - 数据模型验证，确保数据完整性和约束
 * @documentReference ai_docs/qa_workflow_req.md
 * @stateFlow 模型创建 -> 不变量校验 -> 结果断言
 * @rules 主体XOR与结论终态耦合不变量在任何写入路径上均被拒绝
 * @dependencies testing, testify, gorm
 * @refs review.go
 */

package models

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/suite"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ReviewModelTestSuite 审查模型测试套件
type ReviewModelTestSuite struct {
	suite.Suite
	db *gorm.DB
}

// SetupSuite 设置测试套件
func (suite *ReviewModelTestSuite) SetupSuite() {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	suite.Require().NoError(err)

	err = db.AutoMigrate(
		&QARequirement{},
		&QAReview{},
		&ReviewNote{},
		&ObservationType{},
		&Observation{},
		&ReviewTransition{},
		&WorkItem{},
		&Subdivision{},
	)
	suite.Require().NoError(err)
	suite.db = db
}

// SetupTest 设置每个测试
func (suite *ReviewModelTestSuite) SetupTest() {
	for _, table := range []string{
		"qa_observations", "qa_review_notes", "qa_review_transitions",
		"qa_reviews", "qa_requirements", "qa_work_items", "qa_subdivisions",
	} {
		suite.db.Exec(fmt.Sprintf("DELETE FROM %s", table))
	}
}

// createRequirement 创建测试用策略
func (suite *ReviewModelTestSuite) createRequirement() *QARequirement {
	req := &QARequirement{
		CompanyID:   "company-1",
		ProgramSlug: "green-build-2020",
		Type:        "file",
		CoveragePct: 1,
	}
	suite.Require().NoError(suite.db.Create(req).Error)
	return req
}

func (suite *ReviewModelTestSuite) TestSubjectInvariant() {
	req := suite.createRequirement()
	workItemID := "wi-1"
	subdivisionID := "sub-1"

	// 两者皆无
	review := &QAReview{
		RequirementID:  req.ID,
		State:          "received",
		OwnerCompanyID: "company-1",
	}
	err := suite.db.Create(review).Error
	suite.ErrorIs(err, ErrReviewSubjectInvariant)

	// 两者皆有
	review = &QAReview{
		RequirementID:  req.ID,
		WorkItemID:     &workItemID,
		SubdivisionID:  &subdivisionID,
		State:          "received",
		OwnerCompanyID: "company-1",
	}
	err = suite.db.Create(review).Error
	suite.ErrorIs(err, ErrReviewSubjectInvariant)

	// 恰好一个工作项主体
	review = &QAReview{
		RequirementID:  req.ID,
		WorkItemID:     &workItemID,
		State:          "received",
		OwnerCompanyID: "company-1",
	}
	suite.NoError(suite.db.Create(review).Error)
	suite.NotEmpty(review.ID)

	// 恰好一个批次主体
	review = &QAReview{
		RequirementID:  req.ID,
		SubdivisionID:  &subdivisionID,
		State:          "received",
		OwnerCompanyID: "company-1",
	}
	suite.NoError(suite.db.Create(review).Error)
}

func (suite *ReviewModelTestSuite) TestResultRequiresCompleteState() {
	req := suite.createRequirement()
	workItemID := "wi-1"
	pass := "pass"

	// 非终态携带结论被拒绝
	review := &QAReview{
		RequirementID:  req.ID,
		WorkItemID:     &workItemID,
		State:          "in_progress",
		Result:         &pass,
		OwnerCompanyID: "company-1",
	}
	err := suite.db.Create(review).Error
	suite.Error(err)
	suite.Contains(err.Error(), "complete")

	// 终态缺少结论被拒绝
	review = &QAReview{
		RequirementID:  req.ID,
		WorkItemID:     &workItemID,
		State:          "complete",
		OwnerCompanyID: "company-1",
	}
	err = suite.db.Create(review).Error
	suite.Error(err)

	// 终态 + 合法结论通过
	review = &QAReview{
		RequirementID:  req.ID,
		WorkItemID:     &workItemID,
		State:          "complete",
		Result:         &pass,
		OwnerCompanyID: "company-1",
	}
	suite.NoError(suite.db.Create(review).Error)
}

func (suite *ReviewModelTestSuite) TestInvalidStateAndResultRejected() {
	req := suite.createRequirement()
	workItemID := "wi-1"

	review := &QAReview{
		RequirementID:  req.ID,
		WorkItemID:     &workItemID,
		State:          "unknown_state",
		OwnerCompanyID: "company-1",
	}
	suite.Error(suite.db.Create(review).Error)

	bogus := "maybe"
	review = &QAReview{
		RequirementID:  req.ID,
		WorkItemID:     &workItemID,
		State:          "complete",
		Result:         &bogus,
		OwnerCompanyID: "company-1",
	}
	suite.Error(suite.db.Create(review).Error)
}

func (suite *ReviewModelTestSuite) TestRequirementCoverageValidation() {
	req := &QARequirement{
		CompanyID:   "company-1",
		ProgramSlug: "green-build-2020",
		Type:        "file",
		CoveragePct: 1.5,
	}
	suite.Error(suite.db.Create(req).Error)

	req.CoveragePct = -0.1
	suite.Error(suite.db.Create(req).Error)

	req.CoveragePct = 0.5
	suite.NoError(suite.db.Create(req).Error)
}

func (suite *ReviewModelTestSuite) TestRequirementAppliesTo() {
	req := &QARequirement{
		CompanyID:   "company-1",
		ProgramSlug: "green-build-2020",
		Type:        "file",
	}

	item := &WorkItem{ProgramSlug: "green-build-2020", CompanyID: "builder-1"}
	suite.True(req.AppliesTo(item))

	// 项目不一致
	other := &WorkItem{ProgramSlug: "water-rating-program", CompanyID: "builder-1"}
	suite.False(req.AppliesTo(other))

	// 公司范围限定
	req.RequiredCompanyIDs = JSONBStringArray{"builder-2"}
	suite.False(req.AppliesTo(item))

	item.RatingCompanyID = "builder-2"
	suite.True(req.AppliesTo(item))
}

func (suite *ReviewModelTestSuite) TestReviewUniquePerSubject() {
	req := suite.createRequirement()
	workItemID := "wi-1"
	subdivisionID := "sub-1"

	// 同策略同工作项重复创建被局部唯一索引拒绝
	first := &QAReview{
		RequirementID:  req.ID,
		WorkItemID:     &workItemID,
		State:          "received",
		OwnerCompanyID: "company-1",
	}
	suite.NoError(suite.db.Create(first).Error)

	dup := &QAReview{
		RequirementID:  req.ID,
		WorkItemID:     &workItemID,
		State:          "received",
		OwnerCompanyID: "company-1",
	}
	suite.Error(suite.db.Create(dup).Error)

	// 批次主体独立于工作项主体，各自受唯一约束
	subReview := &QAReview{
		RequirementID:  req.ID,
		SubdivisionID:  &subdivisionID,
		State:          "received",
		OwnerCompanyID: "company-1",
	}
	suite.NoError(suite.db.Create(subReview).Error)

	subDup := &QAReview{
		RequirementID:  req.ID,
		SubdivisionID:  &subdivisionID,
		State:          "received",
		OwnerCompanyID: "company-1",
	}
	suite.Error(suite.db.Create(subDup).Error)

	// 不同工作项不受影响
	otherItem := "wi-2"
	other := &QAReview{
		RequirementID:  req.ID,
		WorkItemID:     &otherItem,
		State:          "received",
		OwnerCompanyID: "company-1",
	}
	suite.NoError(suite.db.Create(other).Error)
}

func (suite *ReviewModelTestSuite) TestEmptyNoteRejected() {
	note := &ReviewNote{ReviewID: "r-1", Content: ""}
	suite.Error(suite.db.Create(note).Error)

	note.Content = "整改资料已补充"
	suite.NoError(suite.db.Create(note).Error)
}

// TestReviewModelSuite 运行审查模型测试套件
func TestReviewModelSuite(t *testing.T) {
	suite.Run(t, new(ReviewModelTestSuite))
}
