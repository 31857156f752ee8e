/*
 * @module service/qa/state_machine_test
 * @description 审查状态机测试，覆盖守卫、备注要求、终态结论与评分校验
 * @architecture 测试层
 * @documentReference ai_docs/qa_workflow_req.md
 * @stateFlow 测试准备 -> 转换执行 -> 状态与副作用断言
 * @rules 同步拒绝不得改变持久化状态；通知副作用经记录通知器断言
 * @dependencies testing, testify, certqa-service/testutil
 * @refs state_machine.go, handlers.go
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

// StateMachineTestSuite 状态机测试套件
type StateMachineTestSuite struct {
	suite.Suite
	testDB   *testutil.TestDB
	factory  *testutil.TestDataFactory
	notifier *testutil.RecordingNotifier
	machine  *StateMachine
}

// SetupSuite 设置测试套件
func (suite *StateMachineTestSuite) SetupSuite() {
	suite.testDB = testutil.NewTestDB()
	suite.factory = testutil.NewTestDataFactory(suite.testDB.DB)
	suite.notifier = testutil.NewRecordingNotifier()
	suite.machine = NewStateMachine(suite.testDB.DB, identity.NewGormProvider(suite.testDB.DB), suite.notifier)
}

// TearDownSuite 清理测试套件
func (suite *StateMachineTestSuite) TearDownSuite() {
	suite.testDB.Close()
}

// SetupTest 设置每个测试
func (suite *StateMachineTestSuite) SetupTest() {
	suite.testDB.CleanDB()
	suite.notifier.Reset()
}

// reviewInState 创建处于指定状态的审查及其周边对象
func (suite *StateMachineTestSuite) reviewInState(state string) (*models.QAReview, *models.WorkItem, *models.Company) {
	owner := suite.factory.CreateCompany()
	builder := suite.factory.CreateCompany()
	item := suite.factory.CreateWorkItem(builder.ID,
		testutil.WithWorkItemState(meta.WorkItemStateInspectionComplete))
	req := suite.factory.CreateRequirement(owner.ID)
	review := suite.factory.CreateReview(req, item.ID, testutil.WithReviewState(state))
	return review, item, owner
}

func (suite *StateMachineTestSuite) TestSystemOnlyTransitionRejectsUser() {
	review, _, owner := suite.reviewInState(meta.ReviewStateReceived)
	user := suite.factory.CreateUser(owner.ID)

	// 审查方用户也无权触发仅系统转换
	_, err := suite.machine.Transition(&TransitionRequest{
		ReviewID:   review.ID,
		Transition: meta.TransitionReceivedToInProgress,
		ActorID:    user.ID,
	})
	suite.ErrorIs(err, ErrForbidden)

	// 拒绝不改变持久化状态
	var persisted models.QAReview
	suite.NoError(suite.testDB.DB.First(&persisted, "id = ?", review.ID).Error)
	suite.Equal(meta.ReviewStateReceived, persisted.State)
}

func (suite *StateMachineTestSuite) TestEmptyActorRejected() {
	review, _, _ := suite.reviewInState(meta.ReviewStateReceived)

	// 空执行者不得享有系统身份
	_, err := suite.machine.Transition(&TransitionRequest{
		ReviewID:   review.ID,
		Transition: meta.TransitionReceivedToInProgress,
		ActorID:    "",
	})
	suite.ErrorIs(err, ErrForbidden)

	// 审查方守卫的转换同样拒绝空执行者
	review2, _, _ := suite.reviewInState(meta.ReviewStateInProgress)
	_, err = suite.machine.Transition(&TransitionRequest{
		ReviewID:   review2.ID,
		Transition: meta.TransitionInProgressToCorrectionRequired,
		ActorID:    "",
		Note:       "备注内容",
	})
	suite.ErrorIs(err, ErrForbidden)

	var persisted models.QAReview
	suite.NoError(suite.testDB.DB.First(&persisted, "id = ?", review.ID).Error)
	suite.Equal(meta.ReviewStateReceived, persisted.State)
}

func (suite *StateMachineTestSuite) TestSystemTransitionSucceeds() {
	review, _, _ := suite.reviewInState(meta.ReviewStateReceived)

	updated, err := suite.machine.Transition(&TransitionRequest{
		ReviewID:   review.ID,
		Transition: meta.TransitionReceivedToInProgress,
		ActorID:    identity.SystemActorID,
	})
	suite.NoError(err)
	suite.Equal(meta.ReviewStateInProgress, updated.State)

	// 转换日志以Seq=1起始
	var transitions []models.ReviewTransition
	suite.NoError(suite.testDB.DB.Where("review_id = ?", review.ID).Order("seq ASC").Find(&transitions).Error)
	suite.Len(transitions, 1)
	suite.Equal(int64(1), transitions[0].Seq)
	suite.Equal(meta.ReviewStateReceived, transitions[0].FromState)
	suite.Equal(meta.ReviewStateInProgress, transitions[0].ToState)
}

func (suite *StateMachineTestSuite) TestTransitionFromWrongState() {
	review, _, _ := suite.reviewInState(meta.ReviewStateInProgress)

	_, err := suite.machine.Transition(&TransitionRequest{
		ReviewID:   review.ID,
		Transition: meta.TransitionReceivedToInProgress,
		ActorID:    identity.SystemActorID,
	})
	suite.ErrorIs(err, ErrInvalidTransition)
}

func (suite *StateMachineTestSuite) TestCorrectionRequiredNeedsNote() {
	review, _, owner := suite.reviewInState(meta.ReviewStateInProgress)
	user := suite.factory.CreateUser(owner.ID)

	_, err := suite.machine.Transition(&TransitionRequest{
		ReviewID:   review.ID,
		Transition: meta.TransitionInProgressToCorrectionRequired,
		ActorID:    user.ID,
	})
	suite.ErrorIs(err, ErrMissingRequiredNote)

	// 携带备注成功，且向工作项所属公司发出整改通知
	updated, err := suite.machine.Transition(&TransitionRequest{
		ReviewID:   review.ID,
		Transition: meta.TransitionInProgressToCorrectionRequired,
		ActorID:    user.ID,
		Note:       "现场照片与评分表不符，要求整改",
	})
	suite.NoError(err)
	suite.Equal(meta.ReviewStateCorrectionRequired, updated.State)

	sent := suite.notifier.MessagesOfType(meta.MessageTypeCorrectionRequired)
	suite.Len(sent, 1)
	suite.Equal(meta.RecipientRoleSubjectOwner, sent[0].RecipientRole)
}

func (suite *StateMachineTestSuite) TestGuardRejectsOtherCompany() {
	review, _, _ := suite.reviewInState(meta.ReviewStateInProgress)
	outsider := suite.factory.CreateUser(suite.factory.CreateCompany().ID)

	_, err := suite.machine.Transition(&TransitionRequest{
		ReviewID:   review.ID,
		Transition: meta.TransitionInProgressToCorrectionRequired,
		ActorID:    outsider.ID,
		Note:       "无关人员的备注",
	})
	suite.ErrorIs(err, ErrForbidden)
}

func (suite *StateMachineTestSuite) TestSuperOperatorBypassesCompanyGuard() {
	review, _, _ := suite.reviewInState(meta.ReviewStateInProgress)
	super := suite.factory.CreateUser(suite.factory.CreateCompany().ID, testutil.WithSuperOperator())

	updated, err := suite.machine.Transition(&TransitionRequest{
		ReviewID:   review.ID,
		Transition: meta.TransitionInProgressToCorrectionRequired,
		ActorID:    super.ID,
		Note:       "超级操作员介入整改",
	})
	suite.NoError(err)
	suite.Equal(meta.ReviewStateCorrectionRequired, updated.State)
}

func (suite *StateMachineTestSuite) TestTerminalRequiresResult() {
	review, _, owner := suite.reviewInState(meta.ReviewStateInProgress)
	user := suite.factory.CreateUser(owner.ID)

	_, err := suite.machine.Transition(&TransitionRequest{
		ReviewID:   review.ID,
		Transition: meta.TransitionInProgressToComplete,
		ActorID:    user.ID,
	})
	suite.ErrorIs(err, ErrMissingRequiredResult)
}

func (suite *StateMachineTestSuite) TestResultOutsideTerminalRejected() {
	review, _, owner := suite.reviewInState(meta.ReviewStateInProgress)
	user := suite.factory.CreateUser(owner.ID)

	_, err := suite.machine.Transition(&TransitionRequest{
		ReviewID:   review.ID,
		Transition: meta.TransitionInProgressToCorrectionRequired,
		ActorID:    user.ID,
		Note:       "问题备注",
		Payload:    models.JSONB{"result": "pass"},
	})
	suite.ErrorIs(err, ErrInvalidTransition)
}

func (suite *StateMachineTestSuite) TestAwardLevelBelowThresholdRejected() {
	review, _, owner := suite.reviewInState(meta.ReviewStateInProgress)
	user := suite.factory.CreateUser(owner.ID)

	// green-build-2020 silver等级要求125积分
	_, err := suite.machine.Transition(&TransitionRequest{
		ReviewID:   review.ID,
		Transition: meta.TransitionInProgressToComplete,
		ActorID:    user.ID,
		Payload: models.JSONB{
			"result":         "pass",
			"awarded_points": 100,
			"award_level":    "silver",
		},
	})
	suite.ErrorIs(err, ErrValidationFailed)
}

func (suite *StateMachineTestSuite) TestAwardLevelMeetingThresholdAccepted() {
	review, _, owner := suite.reviewInState(meta.ReviewStateInProgress)
	user := suite.factory.CreateUser(owner.ID)

	// green-build-2020 要求终态前已有意见记录
	note := &models.ReviewNote{ReviewID: review.ID, Content: "评分核验记录", CreatedBy: user.ID}
	suite.Require().NoError(suite.testDB.DB.Create(note).Error)

	updated, err := suite.machine.Transition(&TransitionRequest{
		ReviewID:   review.ID,
		Transition: meta.TransitionInProgressToComplete,
		ActorID:    user.ID,
		Payload: models.JSONB{
			"result":         "pass",
			"awarded_points": 130,
			"award_level":    "silver",
			"badges":         []string{"net-zero-ready"},
		},
	})
	suite.NoError(err)
	suite.Equal(meta.ReviewStateComplete, updated.State)
	suite.Require().NotNil(updated.Result)
	suite.Equal(meta.ReviewResultPass, *updated.Result)
	suite.Require().NotNil(updated.AwardedPoints)
	suite.Equal(130.0, *updated.AwardedPoints)
}

func (suite *StateMachineTestSuite) TestPassWithoutGradingRecordRejected() {
	review, _, owner := suite.reviewInState(meta.ReviewStateInProgress)
	user := suite.factory.CreateUser(owner.ID)

	// green-build-2020 的pass结论要求已有意见记录或备注
	_, err := suite.machine.Transition(&TransitionRequest{
		ReviewID:   review.ID,
		Transition: meta.TransitionInProgressToComplete,
		ActorID:    user.ID,
		Payload:    models.JSONB{"result": "pass"},
	})
	suite.ErrorIs(err, ErrValidationFailed)

	// fail结论跳过项目级校验
	updated, err := suite.machine.Transition(&TransitionRequest{
		ReviewID:   review.ID,
		Transition: meta.TransitionInProgressToComplete,
		ActorID:    user.ID,
		Payload:    models.JSONB{"result": "fail"},
	})
	suite.NoError(err)
	suite.Equal(meta.ReviewStateComplete, updated.State)
}

func (suite *StateMachineTestSuite) TestCorrectionCycleSeqMonotonic() {
	review, item, owner := suite.reviewInState(meta.ReviewStateInProgress)
	reviewer := suite.factory.CreateUser(owner.ID)
	builderUser := suite.factory.CreateUser(item.CompanyID)

	_, err := suite.machine.Transition(&TransitionRequest{
		ReviewID:   review.ID,
		Transition: meta.TransitionInProgressToCorrectionRequired,
		ActorID:    reviewer.ID,
		Note:       "资料缺失",
	})
	suite.Require().NoError(err)

	// 工作项所属公司回复整改
	_, err = suite.machine.Transition(&TransitionRequest{
		ReviewID:   review.ID,
		Transition: meta.TransitionCorrectionRequiredToCorrectionReceived,
		ActorID:    builderUser.ID,
		Note:       "资料已补充",
	})
	suite.Require().NoError(err)

	var transitions []models.ReviewTransition
	suite.NoError(suite.testDB.DB.Where("review_id = ?", review.ID).Order("seq ASC").Find(&transitions).Error)
	suite.Len(transitions, 2)
	suite.Equal(int64(1), transitions[0].Seq)
	suite.Equal(int64(2), transitions[1].Seq)

	// green-build-2020 使用"验证方已回复"专项通知
	sent := suite.notifier.MessagesOfType(meta.MessageTypeVerifierResponded)
	suite.Len(sent, 1)
	suite.Equal(meta.RecipientRoleReviewOwner, sent[0].RecipientRole)
}

func (suite *StateMachineTestSuite) TestGatingFailedNotice() {
	owner := suite.factory.CreateCompany()
	builder := suite.factory.CreateCompany()
	// energy-efficient-program 在网关专项通知默认白名单内
	item := suite.factory.CreateWorkItem(builder.ID,
		testutil.WithProgram("energy-efficient-program"),
		testutil.WithWorkItemState(meta.WorkItemStateInspectionComplete))
	req := suite.factory.CreateRequirement(owner.ID,
		testutil.WithRequirementProgram("energy-efficient-program"),
		testutil.WithGating())
	review := suite.factory.CreateReview(req, item.ID,
		testutil.WithReviewState(meta.ReviewStateInProgress))
	user := suite.factory.CreateUser(owner.ID)

	_, err := suite.machine.Transition(&TransitionRequest{
		ReviewID:   review.ID,
		Transition: meta.TransitionInProgressToComplete,
		ActorID:    user.ID,
		Payload:    models.JSONB{"result": "fail"},
	})
	suite.NoError(err)

	sent := suite.notifier.MessagesOfType(meta.MessageTypeGatingFailed)
	suite.Len(sent, 1)
	suite.Equal(builder.ID, sent[0].Context["recipient_company_id"])
}

// TestStateMachineSuite 运行状态机测试套件
func TestStateMachineSuite(t *testing.T) {
	suite.Run(t, new(StateMachineTestSuite))
}
