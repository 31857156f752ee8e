/*
 * @module service/qa/requirement_service_test
 * @description 策略管理服务测试，覆盖权限守卫、类型校验与引用保护删除
 * @architecture 测试层
 * @documentReference ai_docs/qa_workflow_req.md
 * @stateFlow 测试数据准备 -> 服务调用 -> 结果断言
 * @rules 存在关联审查的策略删除被显式拒绝
 * @dependencies testing, testify, certqa-service/testutil
 * @refs requirement_service.go
 */

package qa

import (
	"certqa-service/service/identity"
	"certqa-service/service/meta"
	"certqa-service/service/models"
	"certqa-service/testutil"
	"testing"

	"github.com/stretchr/testify/suite"
)

// RequirementServiceTestSuite 策略管理服务测试套件
type RequirementServiceTestSuite struct {
	suite.Suite
	testDB  *testutil.TestDB
	factory *testutil.TestDataFactory
	service *RequirementService
}

// SetupSuite 设置测试套件
func (suite *RequirementServiceTestSuite) SetupSuite() {
	suite.testDB = testutil.NewTestDB()
	suite.factory = testutil.NewTestDataFactory(suite.testDB.DB)
	suite.service = NewRequirementService(suite.testDB.DB,
		identity.NewGormProvider(suite.testDB.DB),
		NewCoverageCalculator(suite.testDB.DB))
}

// TearDownSuite 清理测试套件
func (suite *RequirementServiceTestSuite) TearDownSuite() {
	suite.testDB.Close()
}

// SetupTest 设置每个测试
func (suite *RequirementServiceTestSuite) SetupTest() {
	suite.testDB.CleanDB()
}

func (suite *RequirementServiceTestSuite) TestCreateRequirement() {
	company := suite.factory.CreateCompany()
	user := suite.factory.CreateUser(company.ID)

	req := &models.QARequirement{
		CompanyID:   company.ID,
		ProgramSlug: "green-build-2020",
		Type:        meta.ReviewTypeFile,
		CoveragePct: 0.25,
	}
	suite.NoError(suite.service.CreateRequirement(req, user.ID))
	suite.NotEmpty(req.ID)
	suite.Equal(user.ID, req.CreatedBy)
}

func (suite *RequirementServiceTestSuite) TestCreateRequirementInvalidType() {
	company := suite.factory.CreateCompany()
	user := suite.factory.CreateUser(company.ID)

	req := &models.QARequirement{
		CompanyID:   company.ID,
		ProgramSlug: "green-build-2020",
		Type:        "drive-by-review",
	}
	suite.ErrorIs(suite.service.CreateRequirement(req, user.ID), ErrInvalidPolicyType)
}

func (suite *RequirementServiceTestSuite) TestCreateRequirementGuard() {
	company := suite.factory.CreateCompany()
	outsider := suite.factory.CreateUser(suite.factory.CreateCompany().ID)

	req := &models.QARequirement{
		CompanyID:   company.ID,
		ProgramSlug: "green-build-2020",
		Type:        meta.ReviewTypeFile,
	}
	suite.ErrorIs(suite.service.CreateRequirement(req, outsider.ID), ErrForbidden)

	// 超级操作员可跨公司创建
	super := suite.factory.CreateUser(suite.factory.CreateCompany().ID, testutil.WithSuperOperator())
	suite.NoError(suite.service.CreateRequirement(req, super.ID))
}

func (suite *RequirementServiceTestSuite) TestUpdateRequirement() {
	company := suite.factory.CreateCompany()
	user := suite.factory.CreateUser(company.ID)
	req := suite.factory.CreateRequirement(company.ID)

	updated, err := suite.service.UpdateRequirement(req.ID, &models.QARequirement{
		CoveragePct:       0.75,
		GateCertification: true,
	}, user.ID)
	suite.NoError(err)
	suite.InDelta(0.75, updated.CoveragePct, 0.001)
	suite.True(updated.GateCertification)
}

func (suite *RequirementServiceTestSuite) TestDeleteRequirementInUse() {
	company := suite.factory.CreateCompany()
	builder := suite.factory.CreateCompany()
	user := suite.factory.CreateUser(company.ID)
	req := suite.factory.CreateRequirement(company.ID)
	item := suite.factory.CreateWorkItem(builder.ID)
	suite.factory.CreateReview(req, item.ID)

	// 存在关联审查时删除被拒绝
	suite.ErrorIs(suite.service.DeleteRequirement(req.ID, user.ID), ErrRequirementInUse)

	// 审查移除后可删除
	suite.testDB.DB.Where("requirement_id = ?", req.ID).Delete(&models.QAReview{})
	suite.NoError(suite.service.DeleteRequirement(req.ID, user.ID))
	_, err := suite.service.GetRequirement(req.ID)
	suite.ErrorIs(err, ErrNotFound)
}

func (suite *RequirementServiceTestSuite) TestCoverageQueries() {
	company := suite.factory.CreateCompany()
	req := suite.factory.CreateRequirement(company.ID)
	item := suite.factory.CreateWorkItem(company.ID)
	suite.factory.CreateReview(req, item.ID,
		testutil.WithReviewState(meta.ReviewStateComplete),
		testutil.WithResult(meta.ReviewResultPass))

	pct, err := suite.service.ActiveCoverage(req.ID)
	suite.NoError(err)
	suite.InDelta(1.0, pct, 0.001)

	_, err = suite.service.ActiveCoverage("missing-id")
	suite.ErrorIs(err, ErrNotFound)
}

// TestRequirementServiceSuite 运行策略管理服务测试套件
func TestRequirementServiceSuite(t *testing.T) {
	suite.Run(t, new(RequirementServiceTestSuite))
}
