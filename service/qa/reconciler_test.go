/*
 * @module service/qa/reconciler_test
 * @description 协调循环测试，覆盖自动转换、幂等性、已删除对象吸收与新建工作项评估
 * @architecture 测试层 - 直接调用协调步骤，不经工作池
 * @documentReference ai_docs/qa_workflow_req.md
 * @stateFlow 测试数据准备 -> 协调执行 -> 状态与通知断言
 * @rules 每一步幂等，重复执行不产生额外效应
 * @dependencies testing, testify, certqa-service/testutil
 * @refs reconciler.go
 */

package qa

import (
	"certqa-service/service/identity"
	"certqa-service/service/meta"
	"certqa-service/service/models"
	"certqa-service/service/workitem"
	"certqa-service/testutil"
	"testing"

	"github.com/stretchr/testify/suite"
)

// ReconcilerTestSuite 协调循环测试套件
type ReconcilerTestSuite struct {
	suite.Suite
	testDB     *testutil.TestDB
	factory    *testutil.TestDataFactory
	notifier   *testutil.RecordingNotifier
	reconciler *Reconciler
}

// SetupSuite 设置测试套件
func (suite *ReconcilerTestSuite) SetupSuite() {
	suite.testDB = testutil.NewTestDB()
	suite.factory = testutil.NewTestDataFactory(suite.testDB.DB)
	suite.notifier = testutil.NewRecordingNotifier()

	db := suite.testDB.DB
	identityProvider := identity.NewGormProvider(db)
	workItemProvider := workitem.NewGormProvider(db)
	machine := NewStateMachine(db, identityProvider, suite.notifier)
	gating := NewGatingCoordinator(db, workItemProvider)
	coverage := NewCoverageCalculator(db)
	reviewService := NewReviewService(db, identityProvider, suite.notifier)
	suite.reconciler = NewReconciler(db, machine, gating, workItemProvider,
		coverage, reviewService, suite.notifier, 1)
}

// TearDownSuite 清理测试套件
func (suite *ReconcilerTestSuite) TearDownSuite() {
	suite.testDB.Close()
}

// SetupTest 设置每个测试
func (suite *ReconcilerTestSuite) SetupTest() {
	suite.testDB.CleanDB()
	suite.notifier.Reset()
}

func (suite *ReconcilerTestSuite) TestAutoTransitionWhenPastInspection() {
	owner := suite.factory.CreateCompany()
	builder := suite.factory.CreateCompany()
	item := suite.factory.CreateWorkItem(builder.ID,
		testutil.WithWorkItemState(meta.WorkItemStateInspectionComplete))
	req := suite.factory.CreateRequirement(owner.ID)
	review := suite.factory.CreateReview(req, item.ID)

	suite.NoError(suite.reconciler.ReconcileReview(review.ID))

	var persisted models.QAReview
	suite.NoError(suite.testDB.DB.First(&persisted, "id = ?", review.ID).Error)
	suite.Equal(meta.ReviewStateInProgress, persisted.State)
}

func (suite *ReconcilerTestSuite) TestReconcileIdempotent() {
	owner := suite.factory.CreateCompany()
	builder := suite.factory.CreateCompany()
	item := suite.factory.CreateWorkItem(builder.ID,
		testutil.WithWorkItemState(meta.WorkItemStateInspectionComplete))
	req := suite.factory.CreateRequirement(owner.ID)
	review := suite.factory.CreateReview(req, item.ID)

	// 重复协调不产生额外转换
	suite.NoError(suite.reconciler.ReconcileReview(review.ID))
	suite.NoError(suite.reconciler.ReconcileReview(review.ID))
	suite.NoError(suite.reconciler.ReconcileReview(review.ID))

	var count int64
	suite.testDB.DB.Model(&models.ReviewTransition{}).
		Where("review_id = ?", review.ID).Count(&count)
	suite.Equal(int64(1), count)
}

func (suite *ReconcilerTestSuite) TestNoAutoTransitionBeforeInspection() {
	owner := suite.factory.CreateCompany()
	builder := suite.factory.CreateCompany()
	item := suite.factory.CreateWorkItem(builder.ID)
	req := suite.factory.CreateRequirement(owner.ID)
	review := suite.factory.CreateReview(req, item.ID)

	suite.NoError(suite.reconciler.ReconcileReview(review.ID))

	var persisted models.QAReview
	suite.NoError(suite.testDB.DB.First(&persisted, "id = ?", review.ID).Error)
	suite.Equal(meta.ReviewStateReceived, persisted.State)
}

func (suite *ReconcilerTestSuite) TestDeletedReviewAbsorbed() {
	suite.NoError(suite.reconciler.ReconcileReview("missing-review-id"))
}

func (suite *ReconcilerTestSuite) TestReconcileWorkItemRunsGatingWithoutReviews() {
	builder := suite.factory.CreateCompany()
	item := suite.factory.CreateWorkItem(builder.ID,
		testutil.WithWorkItemState(meta.WorkItemStateInspectionComplete))

	// 无任何审查时门控仍重算并放行推进
	suite.NoError(suite.reconciler.ReconcileWorkItem(item.ID))

	var persisted models.WorkItem
	suite.NoError(suite.testDB.DB.First(&persisted, "id = ?", item.ID).Error)
	suite.Equal(meta.WorkItemStateCertificationPending, persisted.State)
}

func (suite *ReconcilerTestSuite) TestDeletedWorkItemAbsorbed() {
	suite.NoError(suite.reconciler.ReconcileWorkItem("missing-work-item-id"))
}

func (suite *ReconcilerTestSuite) TestOnWorkItemCreatedFullCoverage() {
	owner := suite.factory.CreateCompany()
	builder := suite.factory.CreateCompany()
	req := suite.factory.CreateRequirement(owner.ID, testutil.WithCoveragePct(1))
	item := suite.factory.CreateWorkItem(builder.ID)

	// 全覆盖策略直接创建审查
	suite.NoError(suite.reconciler.OnWorkItemCreated(item.ID))

	var count int64
	suite.testDB.DB.Model(&models.QAReview{}).
		Where("requirement_id = ? AND work_item_id = ?", req.ID, item.ID).Count(&count)
	suite.Equal(int64(1), count)

	// 重复评估不重复创建
	suite.NoError(suite.reconciler.OnWorkItemCreated(item.ID))
	suite.testDB.DB.Model(&models.QAReview{}).
		Where("requirement_id = ? AND work_item_id = ?", req.ID, item.ID).Count(&count)
	suite.Equal(int64(1), count)
}

func (suite *ReconcilerTestSuite) TestOnWorkItemCreatedSamplingRecommendation() {
	owner := suite.factory.CreateCompany()
	builder := suite.factory.CreateCompany()
	req := suite.factory.CreateRequirement(owner.ID, testutil.WithCoveragePct(0.5))
	item := suite.factory.CreateWorkItem(builder.ID)

	// 部分覆盖策略仅发抽检建议，不自动创建审查
	suite.NoError(suite.reconciler.OnWorkItemCreated(item.ID))

	var count int64
	suite.testDB.DB.Model(&models.QAReview{}).
		Where("requirement_id = ?", req.ID).Count(&count)
	suite.Equal(int64(0), count)

	sent := suite.notifier.MessagesOfType(meta.MessageTypeReviewRecommended)
	suite.Require().Len(sent, 1)
	suite.Equal(meta.RecipientRoleReviewOwner, sent[0].RecipientRole)
	suite.Equal(req.ID, sent[0].Context["requirement_id"])
	suite.Equal(item.ID, sent[0].Context["work_item_id"])
}

func (suite *ReconcilerTestSuite) TestOnWorkItemCreatedSkipsOtherPrograms() {
	owner := suite.factory.CreateCompany()
	builder := suite.factory.CreateCompany()
	suite.factory.CreateRequirement(owner.ID,
		testutil.WithRequirementProgram("water-rating-program"))
	item := suite.factory.CreateWorkItem(builder.ID)

	suite.NoError(suite.reconciler.OnWorkItemCreated(item.ID))

	var count int64
	suite.testDB.DB.Model(&models.QAReview{}).Count(&count)
	suite.Equal(int64(0), count)
	suite.Empty(suite.notifier.Sent)
}

// TestReconcilerSuite 运行协调循环测试套件
func TestReconcilerSuite(t *testing.T) {
	suite.Run(t, new(ReconcilerTestSuite))
}
